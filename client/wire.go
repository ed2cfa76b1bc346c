// Package client implements the conversation-view side of the messaging
// core: an optimistic timeline reconciled against authoritative broadcasts,
// over a WebSocket channel with a synchronous HTTP fallback.
package client

import "time"

// Message is the wire shape of a persisted message as the server broadcasts
// and returns it.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	Attachment     *string   `json:"attachment,omitempty"`
	ReplyToID      *int64    `json:"reply_to_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Notification is the wire shape of a personal-channel notification.
type Notification struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	RecipientID    string    `json:"recipient_id"`
	ActorID        string    `json:"actor_id"`
	Kind           string    `json:"kind"`
	Payload        string    `json:"payload"`
	CreatedAt      time.Time `json:"created_at"`
}

// ServerError is the error event delivered back on the originating
// connection after a failed channel send.
type ServerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Inbound frames carry a type tag; the frame is decoded a second time into
// the per-type struct once the tag is known.
type inboundEnvelope struct {
	Type string `json:"type"`
}

type messageFrame struct {
	Message *Message `json:"message"`
}

type notificationFrame struct {
	Notification *Notification `json:"notification"`
}

type errorFrame struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type sendMessageFrame struct {
	Type           string  `json:"type"`
	ConversationID int64   `json:"conversation_id"`
	Content        string  `json:"content"`
	Attachment     *string `json:"attachment,omitempty"`
	ReplyToID      *int64  `json:"reply_to_id,omitempty"`
}
