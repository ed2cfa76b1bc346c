package ws

import (
	"chatcore/internal/domain"
	"chatcore/internal/service"
)

// Event type tags shared by both directions of the wire.
const (
	EventSendMessage  = "send_message"
	EventMarkRead     = "mark_read"
	EventTyping       = "typing"
	EventMessage      = "message"
	EventNotification = "notification"
	EventError        = "error"
)

// envelope is decoded first to pick the variant; the full frame is then
// decoded into the per-event struct. Malformed frames never reach the
// services.
type envelope struct {
	Type string `json:"type"`
}

type sendMessageEvent struct {
	ConversationID int64   `json:"conversation_id"`
	Content        string  `json:"content"`
	Attachment     *string `json:"attachment,omitempty"`
	ReplyToID      *int64  `json:"reply_to_id,omitempty"`
}

type markReadEvent struct {
	ConversationID int64 `json:"conversation_id"`
}

type typingEvent struct {
	ConversationID int64 `json:"conversation_id"`
}

// MessageEvent carries a persisted message to every subscriber of its
// conversation room, the sender's own connections included.
type MessageEvent struct {
	Type    string                   `json:"type"`
	Message *service.MessageResponse `json:"message"`
}

func NewMessageEvent(m *service.MessageResponse) MessageEvent {
	return MessageEvent{Type: EventMessage, Message: m}
}

// NotificationEvent is delivered to a single participant's personal room.
type NotificationEvent struct {
	Type         string               `json:"type"`
	Notification *domain.Notification `json:"notification"`
}

func NewNotificationEvent(n *domain.Notification) NotificationEvent {
	return NotificationEvent{Type: EventNotification, Notification: n}
}

// TypingEvent forwards a typing indicator to the other participants.
type TypingEvent struct {
	Type           string `json:"type"`
	ConversationID int64  `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

// ErrorEvent is only ever sent to the originating connection.
type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
