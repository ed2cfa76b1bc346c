package service

import (
	"context"
	"fmt"

	"chatcore/internal/domain"
	"chatcore/internal/security"
)

type ConversationService struct {
	conversations domain.ConversationRepository
	participants  domain.ParticipantRepository
	messages      domain.MessageRepository
	encryptor     *security.Encryptor
}

func NewConversationService(
	conversations domain.ConversationRepository,
	participants domain.ParticipantRepository,
	messages domain.MessageRepository,
	encryptor *security.Encryptor,
) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		participants:  participants,
		messages:      messages,
		encryptor:     encryptor,
	}
}

type GroupCreateInput struct {
	Title          *string
	ParticipantIDs []string
}

// CreateGroup creates a group conversation containing the creator and the
// given participants.
func (s *ConversationService) CreateGroup(ctx context.Context, in GroupCreateInput, creatorID string) (*domain.Conversation, error) {
	if len(in.ParticipantIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one participant is required", domain.ErrInvalidInput)
	}

	uniqueIDs := make([]string, 0, len(in.ParticipantIDs)+1)
	seen := map[string]struct{}{creatorID: {}}
	uniqueIDs = append(uniqueIDs, creatorID)
	for _, id := range in.ParticipantIDs {
		if id == "" {
			return nil, fmt.Errorf("%w: empty participant id", domain.ErrInvalidInput)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniqueIDs = append(uniqueIDs, id)
	}

	conv := &domain.Conversation{
		Title:   in.Title,
		IsGroup: true,
	}
	if err := s.conversations.Create(ctx, conv, uniqueIDs); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return conv, nil
}

// CreateOrGetDirect returns the existing one-to-one conversation between the
// two users, creating it if none exists yet.
func (s *ConversationService) CreateOrGetDirect(ctx context.Context, creatorID, targetID string) (*domain.Conversation, error) {
	if targetID == "" || targetID == creatorID {
		return nil, fmt.Errorf("%w: malformed target identity", domain.ErrInvalidInput)
	}

	existing, err := s.conversations.FindExistingDirect(ctx, creatorID, targetID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if existing != nil {
		return existing, nil
	}

	conv := &domain.Conversation{IsGroup: false}
	if err := s.conversations.Create(ctx, conv, []string{creatorID, targetID}); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return conv, nil
}

// ConversationPreview pairs a conversation with its latest message for listings.
type ConversationPreview struct {
	Conversation *domain.Conversation `json:"conversation"`
	LastMessage  *MessageResponse     `json:"last_message,omitempty"`
}

// ListForUser returns the user's conversations, most recently updated first,
// each with a decrypted last-message preview.
func (s *ConversationService) ListForUser(ctx context.Context, userID string) ([]*ConversationPreview, error) {
	convs, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	res := make([]*ConversationPreview, 0, len(convs))
	for _, c := range convs {
		preview := &ConversationPreview{Conversation: c}
		last, err := s.messages.LastForConversation(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: last message for %d: %v", domain.ErrPersistence, c.ID, err)
		}
		if last != nil {
			content, err := s.encryptor.Decrypt(last.Content)
			if err == nil {
				preview.LastMessage = &MessageResponse{
					ID:             last.ID,
					ConversationID: last.ConversationID,
					SenderID:       last.SenderID,
					Content:        content,
					Attachment:     last.Attachment,
					ReplyToID:      last.ReplyToID,
					CreatedAt:      last.CreatedAt,
				}
			}
		}
		res = append(res, preview)
	}
	return res, nil
}

// Delete removes a conversation and everything hanging off it. Only a
// current participant may delete.
func (s *ConversationService) Delete(ctx context.Context, conversationID int64, userID string) error {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if conv == nil {
		return fmt.Errorf("%w: conversation %d", domain.ErrNotFound, conversationID)
	}
	isParticipant, err := s.participants.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if !isParticipant {
		return fmt.Errorf("%w: not a participant of conversation %d", domain.ErrForbidden, conversationID)
	}
	if err := s.conversations.Delete(ctx, conversationID); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return nil
}

// MarkAsRead is best-effort: a failure here must not break the message flow.
func (s *ConversationService) MarkAsRead(ctx context.Context, conversationID int64, userID string) error {
	isParticipant, err := s.participants.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if !isParticipant {
		return fmt.Errorf("%w: not a participant of conversation %d", domain.ErrForbidden, conversationID)
	}
	return s.conversations.MarkAsRead(ctx, conversationID, userID)
}
