package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chatcore/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one live WebSocket connection. Outbound events go through a
// buffered channel drained by writePump, so broadcasts never block the
// sender's handler.
type Client struct {
	ID     string
	UserID string

	conn      *websocket.Conn
	send      chan []byte
	rooms     mapset.Set[string]
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, userID string, bufSize int) *Client {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, bufSize),
		rooms:  mapset.NewSet[string](),
	}
}

// enqueue hands a pre-marshaled frame to the write pump. A full buffer means
// the subscriber is too slow; the frame is dropped rather than blocking
// delivery to everyone else.
func (c *Client) enqueue(b []byte) bool {
	select {
	case c.send <- b:
		metrics.EventsDelivered.Inc()
		return true
	default:
		metrics.EventsDropped.Inc()
		return false
	}
}

// Send marshals and enqueues an event for this connection only.
func (c *Client) Send(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("ws: marshal event for %s: %v", c.UserID, err)
		return
	}
	if !c.enqueue(b) {
		log.Printf("ws: send buffer full for %s, dropping event", c.UserID)
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case b, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
