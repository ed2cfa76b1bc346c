package fanout

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"chatcore/internal/domain"
	"chatcore/internal/metrics"
	"chatcore/internal/service"
	"chatcore/internal/ws"
)

const snippetRunes = 80

// Notifier broadcasts a persisted message to its conversation room and
// records a notification for every other participant, pushing it to their
// personal room. Everything here is best-effort: a failure for one recipient
// never rolls back persistence or blocks the others.
type Notifier struct {
	hub           *ws.Hub
	participants  domain.ParticipantRepository
	notifications domain.NotificationRepository
	messages      *service.MessageService
}

func New(
	hub *ws.Hub,
	participants domain.ParticipantRepository,
	notifications domain.NotificationRepository,
	messages *service.MessageService,
) *Notifier {
	return &Notifier{
		hub:           hub,
		participants:  participants,
		notifications: notifications,
		messages:      messages,
	}
}

var _ ws.Notifier = (*Notifier)(nil)

type notificationPayload struct {
	ConversationID int64  `json:"conversation_id"`
	MessageID      int64  `json:"message_id"`
	Snippet        string `json:"snippet"`
}

// MessageAccepted runs synchronously in the accepting handler, directly
// after the message insert, so broadcast order within a conversation matches
// persistence order.
func (n *Notifier) MessageAccepted(ctx context.Context, msg *domain.Message) {
	resp, err := n.messages.ToResponse(msg)
	if err != nil {
		log.Printf("fanout: decode message %d: %v", msg.ID, err)
		return
	}

	ids, err := n.participants.ListIDs(ctx, msg.ConversationID)
	if err != nil {
		log.Printf("fanout: participants of %d: %v", msg.ConversationID, err)
		ids = nil
	}

	// Connections that predate this conversation have not joined its room
	// yet; pull them in before broadcasting the first message.
	room := ws.ConversationRoom(msg.ConversationID)
	n.hub.EnsureJoined(room, ids)
	n.hub.Broadcast(room, ws.NewMessageEvent(resp))

	snip := snippet(resp.Content)
	for _, uid := range ids {
		if uid == msg.SenderID {
			continue
		}
		payload, err := json.Marshal(notificationPayload{
			ConversationID: msg.ConversationID,
			MessageID:      msg.ID,
			Snippet:        snip,
		})
		if err != nil {
			continue
		}
		notif := &domain.Notification{
			ConversationID: msg.ConversationID,
			RecipientID:    uid,
			ActorID:        msg.SenderID,
			Kind:           domain.NotificationKindMessage,
			Payload:        string(payload),
		}
		if err := n.notifications.Create(ctx, notif); err != nil {
			log.Printf("fanout: notification for %s: %v", uid, err)
			continue
		}
		metrics.NotificationsCreated.Inc()
		n.hub.Broadcast(ws.UserRoom(uid), ws.NewNotificationEvent(notif))
	}
}

func snippet(s string) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= snippetRunes {
		return string(r)
	}
	return string(r[:snippetRunes])
}
