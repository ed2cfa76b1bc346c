package service

import (
	"context"
	"fmt"
	"html"
	"log"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"chatcore/internal/domain"
	"chatcore/internal/metrics"
	"chatcore/internal/security"
)

const maxContentRunes = 5000

// MessageService implements the ingress contract shared by the channel path
// and the synchronous fallback path: membership re-check, payload validation,
// sanitization, persistence, and the conversation timestamp bump.
type MessageService struct {
	conversations domain.ConversationRepository
	participants  domain.ParticipantRepository
	messages      domain.MessageRepository
	encryptor     *security.Encryptor
	sanitizer     *bluemonday.Policy

	MaxMessagesPerConversation int
}

func NewMessageService(
	conversations domain.ConversationRepository,
	participants domain.ParticipantRepository,
	messages domain.MessageRepository,
	encryptor *security.Encryptor,
	maxMessages int,
) *MessageService {
	return &MessageService{
		conversations:              conversations,
		participants:               participants,
		messages:                   messages,
		encryptor:                  encryptor,
		sanitizer:                  bluemonday.StrictPolicy(),
		MaxMessagesPerConversation: maxMessages,
	}
}

type SendInput struct {
	ConversationID int64
	Content        string
	Attachment     *string
	ReplyToID      *int64
}

// Send validates and persists a message. Membership is re-checked on every
// send; the snapshot taken at connect time is not trusted because membership
// can change while a connection is open.
func (s *MessageService) Send(ctx context.Context, in SendInput, senderID string) (*domain.Message, error) {
	conv, err := s.conversations.GetByID(ctx, in.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: get conversation: %v", domain.ErrPersistence, err)
	}
	if conv == nil {
		return nil, fmt.Errorf("%w: conversation %d", domain.ErrNotFound, in.ConversationID)
	}

	isParticipant, err := s.participants.IsParticipant(ctx, in.ConversationID, senderID)
	if err != nil {
		return nil, fmt.Errorf("%w: check participant: %v", domain.ErrPersistence, err)
	}
	if !isParticipant {
		return nil, fmt.Errorf("%w: not a participant of conversation %d", domain.ErrForbidden, in.ConversationID)
	}

	// Strip markup, then undo the sanitizer's entity escaping so plain text
	// round-trips byte-identical: the sender's client matches its optimistic
	// entry against the echoed content.
	content := html.UnescapeString(s.sanitizer.Sanitize(in.Content))

	if len([]rune(content)) > maxContentRunes {
		return nil, fmt.Errorf("%w: message content exceeds %d characters", domain.ErrInvalidInput, maxContentRunes)
	}

	// Markup-only content sanitizes to nothing; the emptiness check runs on
	// what would actually be stored.
	if content == "" && (in.Attachment == nil || *in.Attachment == "") {
		return nil, fmt.Errorf("%w: message needs content or an attachment", domain.ErrInvalidInput)
	}

	encrypted, err := s.encryptor.Encrypt(content)
	if err != nil {
		return nil, fmt.Errorf("encrypt content: %w", err)
	}

	msg := &domain.Message{
		ConversationID: in.ConversationID,
		SenderID:       senderID,
		Content:        encrypted,
		Attachment:     in.Attachment,
		ReplyToID:      in.ReplyToID,
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	metrics.MessagesPersisted.Inc()

	// Second, separate write. If it fails the message is already durable;
	// the stale timestamp is the documented inconsistency window.
	if err := s.conversations.Touch(ctx, in.ConversationID); err != nil {
		log.Printf("message: bump conversation %d: %v", in.ConversationID, err)
	}

	if s.MaxMessagesPerConversation > 0 {
		if err := s.messages.PruneOld(ctx, in.ConversationID, s.MaxMessagesPerConversation); err != nil {
			log.Printf("message: prune conversation %d: %v", in.ConversationID, err)
		}
	}

	return msg, nil
}

// ListMessages returns up to limit messages in chronological order, for a
// requester who must be a participant.
func (s *MessageService) ListMessages(ctx context.Context, conversationID int64, userID string, limit int) ([]*domain.Message, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: get conversation: %v", domain.ErrPersistence, err)
	}
	if conv == nil {
		return nil, fmt.Errorf("%w: conversation %d", domain.ErrNotFound, conversationID)
	}
	isParticipant, err := s.participants.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: check participant: %v", domain.ErrPersistence, err)
	}
	if !isParticipant {
		return nil, fmt.Errorf("%w: not a participant of conversation %d", domain.ErrForbidden, conversationID)
	}

	if limit <= 0 || limit > s.MaxMessagesPerConversation {
		limit = s.MaxMessagesPerConversation
	}

	msgs, err := s.messages.ListForConversation(ctx, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	// Reverse to chronological order (store returns newest first).
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MessageResponse is the wire shape of a persisted message: the broadcast
// payload and the fallback-path response body.
type MessageResponse struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	Attachment     *string   `json:"attachment,omitempty"`
	ReplyToID      *int64    `json:"reply_to_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ToResponse converts a domain message into a decrypted wire DTO.
func (s *MessageService) ToResponse(m *domain.Message) (*MessageResponse, error) {
	content, err := s.encryptor.Decrypt(m.Content)
	if err != nil {
		return nil, fmt.Errorf("decrypt message %d: %w", m.ID, err)
	}
	return &MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        content,
		Attachment:     m.Attachment,
		ReplyToID:      m.ReplyToID,
		CreatedAt:      m.CreatedAt,
	}, nil
}

// ToResponses converts a slice of domain messages into wire DTOs.
func (s *MessageService) ToResponses(msgs []*domain.Message) ([]*MessageResponse, error) {
	res := make([]*MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		dto, err := s.ToResponse(m)
		if err != nil {
			return nil, err
		}
		res = append(res, dto)
	}
	return res, nil
}

// IsParticipant exposes the membership check for transport-level handlers.
func (s *MessageService) IsParticipant(ctx context.Context, conversationID int64, userID string) (bool, error) {
	return s.participants.IsParticipant(ctx, conversationID, userID)
}
