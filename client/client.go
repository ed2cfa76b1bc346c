package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conversation is the wire shape of a conversation.
type Conversation struct {
	ID        int64     `json:"id"`
	Title     *string   `json:"title,omitempty"`
	IsGroup   bool      `json:"is_group"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Client talks to the messaging core on behalf of one user. When the
// channel is open, sends go over it and resolve later via their broadcast
// echo; otherwise the synchronous fallback path is used and resolves the
// placeholder directly.
type Client struct {
	baseURL string
	token   string
	userID  string
	httpc   *http.Client

	mu      sync.Mutex // guards conn
	writeMu sync.Mutex // serializes channel writes
	conn    *websocket.Conn

	tlMu      sync.Mutex
	timelines map[int64]*Timeline

	// OnNotification, if set, receives personal-channel notifications.
	OnNotification func(Notification)
	// OnServerError, if set, receives error events from failed channel sends.
	OnServerError func(ServerError)
}

func New(baseURL, token, userID string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		token:     token,
		userID:    userID,
		httpc:     &http.Client{Timeout: 15 * time.Second},
		timelines: make(map[int64]*Timeline),
	}
}

// UserID returns the identity this client authenticates as.
func (c *Client) UserID() string {
	return c.userID
}

// Connect opens the channel and starts consuming broadcasts. Reconnecting
// is idempotent on the server side: the room set is re-derived from
// membership, so no reconciliation state is lost across a reconnect.
func (c *Client) Connect(ctx context.Context) error {
	wsURL := c.baseURL + "/ws"
	if strings.HasPrefix(wsURL, "https://") {
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	} else if strings.HasPrefix(wsURL, "http://") {
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}

	header := http.Header{"Authorization": {"Bearer " + c.token}}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", wsURL, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

// Connected reports whether the channel is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close shuts the channel down. Timelines stay usable; subsequent sends
// take the fallback path.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Timeline returns the reconciliation timeline for a conversation,
// creating it on first use.
func (c *Client) Timeline(conversationID int64) *Timeline {
	c.tlMu.Lock()
	defer c.tlMu.Unlock()
	tl, ok := c.timelines[conversationID]
	if !ok {
		tl = NewTimeline()
		c.timelines[conversationID] = tl
	}
	return tl
}

// Send submits a message optimistically. The placeholder appears in the
// timeline immediately; it resolves via broadcast echo (channel path) or
// the synchronous response (fallback path). On failure the placeholder is
// marked failed and left visible; there is no automatic retry.
func (c *Client) Send(ctx context.Context, conversationID int64, content string, attachment *string, replyToID *int64) (string, error) {
	tl := c.Timeline(conversationID)
	tempID := tl.AddOptimistic(conversationID, c.userID, content, attachment, replyToID)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		frame := sendMessageFrame{
			Type:           "send_message",
			ConversationID: conversationID,
			Content:        content,
			Attachment:     attachment,
			ReplyToID:      replyToID,
		}
		c.writeMu.Lock()
		err := conn.WriteJSON(frame)
		c.writeMu.Unlock()
		if err != nil {
			tl.Fail(tempID)
			return tempID, fmt.Errorf("channel send: %w", err)
		}
		// No synchronous result; the echo arrives as a broadcast.
		return tempID, nil
	}

	msg, err := c.createMessage(ctx, conversationID, content, attachment, replyToID)
	if err != nil {
		tl.Fail(tempID)
		return tempID, err
	}
	tl.Resolve(tempID, *msg)
	return tempID, nil
}

// LoadHistory fetches up to limit persisted messages into the timeline.
func (c *Client) LoadHistory(ctx context.Context, conversationID int64, limit int) error {
	url := fmt.Sprintf("%s/api/conversations/%d/messages", c.baseURL, conversationID)
	if limit > 0 {
		url = fmt.Sprintf("%s?limit=%d", url, limit)
	}
	var msgs []Message
	if err := c.getJSON(ctx, url, &msgs); err != nil {
		return err
	}
	tl := c.Timeline(conversationID)
	for _, m := range msgs {
		tl.Append(m)
	}
	return nil
}

// CreateDirect returns the one-to-one conversation with the target user,
// creating it server-side if needed.
func (c *Client) CreateDirect(ctx context.Context, targetUserID string) (*Conversation, error) {
	body, _ := json.Marshal(map[string]string{"user_id": targetUserID})
	var conv Conversation
	if err := c.postJSON(ctx, c.baseURL+"/api/conversations/direct", body, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env inboundEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		switch env.Type {
		case "message":
			var f messageFrame
			if err := json.Unmarshal(raw, &f); err != nil || f.Message == nil {
				continue
			}
			c.Timeline(f.Message.ConversationID).ApplyBroadcast(*f.Message)
		case "notification":
			var f notificationFrame
			if err := json.Unmarshal(raw, &f); err != nil || f.Notification == nil {
				continue
			}
			if c.OnNotification != nil {
				c.OnNotification(*f.Notification)
			}
		case "error":
			var f errorFrame
			if err := json.Unmarshal(raw, &f); err != nil {
				continue
			}
			if c.OnServerError != nil {
				c.OnServerError(ServerError{Code: f.Code, Message: f.Message})
			}
		}
	}
}

func (c *Client) createMessage(ctx context.Context, conversationID int64, content string, attachment *string, replyToID *int64) (*Message, error) {
	body, err := json.Marshal(map[string]any{
		"content":     content,
		"attachment":  attachment,
		"reply_to_id": replyToID,
	})
	if err != nil {
		return nil, err
	}
	var msg Message
	url := fmt.Sprintf("%s/api/conversations/%d/messages", c.baseURL, conversationID)
	if err := c.postJSON(ctx, url, body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) postJSON(ctx context.Context, url string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("request %s: status %d: %s", req.URL.Path, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
