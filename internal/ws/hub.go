package ws

import (
	"encoding/json"
	"log"
	"strconv"
	"sync"
)

// ConversationRoom names the broadcast room for a conversation.
func ConversationRoom(conversationID int64) string {
	return "conversation:" + strconv.FormatInt(conversationID, 10)
}

// UserRoom names a user's personal room. Every connection of a user is a
// member, so the room doubles as the index of that user's live connections.
func UserRoom(userID string) string {
	return "user:" + userID
}

// Hub owns the connection registry and the room membership index. Rooms are
// derived from participant membership at connect time and never accessed
// outside this package.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[*Client]struct{}),
	}
}

// Register adds a connection to the registry. Room subscriptions are set up
// separately via Join.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
}

// Unregister drops the connection and all of its room subscriptions. No
// explicit per-room unsubscribe exists; disconnect is the only removal path.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	for _, room := range c.rooms.ToSlice() {
		if members, ok := h.rooms[room]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	delete(h.clients, c.ID)
	h.mu.Unlock()
	c.close()
}

// Join subscribes the connection to the given rooms. Joining a room the
// connection is already in is a no-op, which makes reconnects idempotent.
func (h *Hub) Join(c *Client, rooms ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range rooms {
		if !c.rooms.Add(room) {
			continue
		}
		if h.rooms[room] == nil {
			h.rooms[room] = make(map[*Client]struct{})
		}
		h.rooms[room][c] = struct{}{}
	}
}

// EnsureJoined subscribes every live connection of the given users to room.
// Used when a conversation comes into existence after those users connected.
func (h *Hub) EnsureJoined(room string, userIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, uid := range userIDs {
		for c := range h.rooms[UserRoom(uid)] {
			if !c.rooms.Add(room) {
				continue
			}
			if h.rooms[room] == nil {
				h.rooms[room] = make(map[*Client]struct{})
			}
			h.rooms[room][c] = struct{}{}
		}
	}
}

// Broadcast marshals the event once and enqueues it to every member of the
// room. Delivery is best-effort per subscriber.
func (h *Hub) Broadcast(room string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("ws: marshal broadcast for %s: %v", room, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		c.enqueue(b)
	}
}

// BroadcastExcept behaves like Broadcast but skips all connections belonging
// to skipUserID.
func (h *Hub) BroadcastExcept(room string, skipUserID string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("ws: marshal broadcast for %s: %v", room, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		if c.UserID == skipUserID {
			continue
		}
		c.enqueue(b)
	}
}

// RoomsOf returns the rooms a connection is currently subscribed to.
func (h *Hub) RoomsOf(c *Client) []string {
	return c.rooms.ToSlice()
}
