package domain

import (
	"context"
)

// ConversationRepository defines persistence operations for conversations.
type ConversationRepository interface {
	Create(ctx context.Context, c *Conversation, participantIDs []string) error
	GetByID(ctx context.Context, id int64) (*Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]*Conversation, error)
	FindExistingDirect(ctx context.Context, userA, userB string) (*Conversation, error)
	Touch(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	MarkAsRead(ctx context.Context, conversationID int64, userID string) error
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id int64) (*Message, error)
	ListForConversation(ctx context.Context, conversationID int64, limit int) ([]*Message, error)
	LastForConversation(ctx context.Context, conversationID int64) (*Message, error)
	PruneOld(ctx context.Context, conversationID int64, keepLimit int) error
}

// ParticipantRepository defines operations around conversation participants.
type ParticipantRepository interface {
	ListIDs(ctx context.Context, conversationID int64) ([]string, error)
	IsParticipant(ctx context.Context, conversationID int64, userID string) (bool, error)
	ConversationIDsForUser(ctx context.Context, userID string) ([]int64, error)
}

// NotificationRepository defines persistence operations for notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	ListForRecipient(ctx context.Context, recipientID string, limit int) ([]*Notification, error)
}
