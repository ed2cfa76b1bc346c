package domain

import "time"

// Conversation represents a chat thread (direct or group).
type Conversation struct {
	ID        int64     `db:"id" json:"id"`
	Title     *string   `db:"title" json:"title,omitempty"`
	IsGroup   bool      `db:"is_group" json:"is_group"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Participant represents the membership of a user in a conversation.
// Only participants may read from or write to the conversation.
type Participant struct {
	ConversationID int64      `db:"conversation_id" json:"conversation_id"`
	UserID         string     `db:"user_id" json:"user_id"`
	LastReadAt     *time.Time `db:"last_read_at" json:"last_read_at,omitempty"`
	JoinedAt       time.Time  `db:"joined_at" json:"joined_at"`
}

// Message represents a single chat message. Messages are immutable once
// persisted; there is no edit or delete operation on this entity.
type Message struct {
	ID             int64     `db:"id" json:"id"`
	ConversationID int64     `db:"conversation_id" json:"conversation_id"`
	SenderID       string    `db:"sender_id" json:"sender_id"`
	Content        string    `db:"content" json:"content"` // encrypted at rest
	Attachment     *string   `db:"attachment" json:"attachment,omitempty"`
	ReplyToID      *int64    `db:"reply_to_id" json:"reply_to_id,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// NotificationKindMessage tags a message-arrival notification.
const NotificationKindMessage = "message"

// Notification is created once per accepted message for every participant
// other than the sender, and pushed to that participant's personal channel
// if they are currently connected.
type Notification struct {
	ID             int64     `db:"id" json:"id"`
	ConversationID int64     `db:"conversation_id" json:"conversation_id"`
	RecipientID    string    `db:"recipient_id" json:"recipient_id"`
	ActorID        string    `db:"actor_id" json:"actor_id"`
	Kind           string    `db:"kind" json:"kind"`
	Payload        string    `db:"payload" json:"payload"` // opaque JSON blob
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
