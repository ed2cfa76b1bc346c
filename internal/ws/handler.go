package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"chatcore/internal/domain"
	"chatcore/internal/metrics"
	"chatcore/internal/security"
	"chatcore/internal/service"
)

// Notifier fans a freshly persisted message out to subscribers. Implemented
// by the fanout package; the indirection avoids an import cycle.
type Notifier interface {
	MessageAccepted(ctx context.Context, msg *domain.Message)
}

type wsAuthError struct {
	status int
	msg    string
}

func (e wsAuthError) Error() string {
	return e.msg
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			// Non-browser clients (the Go client, curl) send no Origin;
			// the bearer token is their gate.
			return true
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

func extractTokenFromWSRequest(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[len("Bearer "):])
		if token != "" {
			return token, nil
		}
	}

	// Browser WebSocket clients cannot set Authorization, so the token may
	// ride in the subprotocol list instead: "bearer, <token>".
	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
			token := parts[1]
			if token != "" {
				return token, nil
			}
		}
	}

	return "", wsAuthError{status: http.StatusUnauthorized, msg: "missing bearer token"}
}

func codeForError(err error) string {
	switch {
	case errors.Is(err, domain.ErrForbidden):
		return "permission_denied"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrPersistence):
		return "persistence_failure"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	default:
		return "internal"
	}
}

func sendError(c *Client, code, msg string) {
	c.Send(ErrorEvent{Type: EventError, Code: code, Message: msg})
}

// MakeHandler returns an HTTP handler for the /ws endpoint.
// The bearer token (Authorization header or Sec-WebSocket-Protocol) is the
// sole authorization gate; a connection that fails it is refused before any
// state is created. After the handshake the connection is subscribed to one
// room per conversation the identity participates in, plus its personal
// room. Events dispatched from the read loop:
//   - send_message -> validate, persist, fan out
//   - mark_read    -> best-effort read marker
//   - typing       -> forward indicator to the other participants
func MakeHandler(
	hub *Hub,
	tokens *security.TokenService,
	participants domain.ParticipantRepository,
	msgSvc *service.MessageService,
	convSvc *service.ConversationService,
	notifier Notifier,
	allowedOrigins []string,
	sendBufferSize int,
) http.HandlerFunc {
	checkOrigin := makeCheckOrigin(allowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin: checkOrigin,
		Subprotocols: []string{
			"bearer",
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		tokenStr, err := extractTokenFromWSRequest(r)
		if err != nil {
			if authErr, ok := err.(wsAuthError); ok {
				http.Error(w, authErr.msg, authErr.status)
				return
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		userID, err := tokens.Verify(tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		client := newClient(conn, userID, sendBufferSize)
		hub.Register(client)
		go client.writePump()
		metrics.ActiveConnections.Inc()
		defer func() {
			hub.Unregister(client)
			metrics.ActiveConnections.Dec()
		}()

		ctx := r.Context()

		// Room join: re-derived from the membership lookup on every connect,
		// so a reconnect lands on exactly the same channel set.
		convIDs, err := participants.ConversationIDsForUser(ctx, userID)
		if err != nil {
			log.Printf("ws: conversations for %s: %v", userID, err)
			sendError(client, "persistence_failure", "failed to join conversation rooms")
			return
		}
		rooms := make([]string, 0, len(convIDs)+1)
		rooms = append(rooms, UserRoom(userID))
		for _, id := range convIDs {
			rooms = append(rooms, ConversationRoom(id))
		}
		hub.Join(client, rooms...)

		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				break
			}

			var env envelope
			if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
				sendError(client, "invalid_input", "malformed event")
				continue
			}

			switch env.Type {

			case EventSendMessage:
				var ev sendMessageEvent
				if err := json.Unmarshal(raw, &ev); err != nil || ev.ConversationID == 0 {
					sendError(client, "invalid_input", "send_message requires conversation_id")
					continue
				}
				msg, err := msgSvc.Send(ctx, service.SendInput{
					ConversationID: ev.ConversationID,
					Content:        ev.Content,
					Attachment:     ev.Attachment,
					ReplyToID:      ev.ReplyToID,
				}, userID)
				if err != nil {
					log.Printf("ws: send from %s: %v", userID, err)
					sendError(client, codeForError(err), "failed to send message")
					continue
				}
				notifier.MessageAccepted(ctx, msg)

			case EventMarkRead:
				var ev markReadEvent
				if err := json.Unmarshal(raw, &ev); err != nil || ev.ConversationID == 0 {
					continue
				}
				if err := convSvc.MarkAsRead(ctx, ev.ConversationID, userID); err != nil {
					log.Printf("ws: mark_read from %s: %v", userID, err)
				}

			case EventTyping:
				var ev typingEvent
				if err := json.Unmarshal(raw, &ev); err != nil || ev.ConversationID == 0 {
					continue
				}
				ok, err := participants.IsParticipant(ctx, ev.ConversationID, userID)
				if err != nil || !ok {
					sendError(client, "permission_denied", "not allowed for this conversation")
					continue
				}
				hub.BroadcastExcept(ConversationRoom(ev.ConversationID), userID, TypingEvent{
					Type:           EventTyping,
					ConversationID: ev.ConversationID,
					UserID:         userID,
				})

			default:
				log.Printf("ws: unknown event type %q from user %s", env.Type, userID)
			}
		}
	}
}
