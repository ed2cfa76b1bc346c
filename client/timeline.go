package client

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Entry is one visible item in a conversation view. Either an authoritative
// persisted message, or an optimistic placeholder awaiting its echo.
type Entry struct {
	// TempID identifies an optimistic placeholder until the authoritative
	// message replaces it. Empty once resolved.
	TempID  string
	Message Message
	Pending bool
	Failed  bool
}

// Timeline maintains the local message list for one conversation and
// reconciles optimistic placeholders with the authoritative messages that
// arrive later, either as a synchronous fallback response or as a broadcast
// echo carrying no correlation id.
type Timeline struct {
	mu      sync.Mutex
	entries []*Entry
}

func NewTimeline() *Timeline {
	return &Timeline{}
}

// Append adds an authoritative message to the end of the list, typically
// during history load. Duplicates by persisted id are dropped.
func (t *Timeline) Append(m Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.findByID(m.ID) != nil {
		return
	}
	t.entries = append(t.entries, &Entry{Message: m})
}

// AddOptimistic inserts a pending placeholder at the end of the visible list
// and returns its temporary id.
func (t *Timeline) AddOptimistic(conversationID int64, senderID, content string, attachment *string, replyToID *int64) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	tempID := uuid.NewString()
	t.entries = append(t.entries, &Entry{
		TempID: tempID,
		Message: Message{
			ConversationID: conversationID,
			SenderID:       senderID,
			Content:        content,
			Attachment:     attachment,
			ReplyToID:      replyToID,
		},
		Pending: true,
	})
	return tempID
}

// Resolve replaces the placeholder with the authoritative message returned
// by the synchronous fallback path. The lookup is deterministic because the
// response is keyed to the exact request.
func (t *Timeline) Resolve(tempID string, m Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if e.TempID == tempID && e.Pending {
			e.Message = m
			e.TempID = ""
			e.Pending = false
			e.Failed = false
			return true
		}
	}
	return false
}

// Fail marks the placeholder as failed and leaves it visible. There is no
// automatic retry; resubmission is the user's call.
func (t *Timeline) Fail(tempID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if e.TempID == tempID && e.Pending {
			e.Pending = false
			e.Failed = true
			return true
		}
	}
	return false
}

// ApplyBroadcast reconciles an authoritative message arriving over the
// channel. Duplicate deliveries and the requester's own fallback result are
// dropped by persisted id. The sender's channel echo carries no correlation
// id, so it is matched against the first pending placeholder with the same
// sender and equal trimmed content; with identical rapid sends this pairing
// is ambiguous, but each echo still consumes exactly one placeholder so the
// final count comes out right. Anything unmatched is a message from another
// participant and is appended.
func (t *Timeline) ApplyBroadcast(m Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.findByID(m.ID) != nil {
		return
	}

	trimmed := strings.TrimSpace(m.Content)
	for _, e := range t.entries {
		if e.Pending && !e.Failed &&
			e.Message.SenderID == m.SenderID &&
			strings.TrimSpace(e.Message.Content) == trimmed {
			e.Message = m
			e.TempID = ""
			e.Pending = false
			return
		}
	}

	t.entries = append(t.entries, &Entry{Message: m})
}

// Entries returns a snapshot of the visible list.
func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	res := make([]Entry, len(t.entries))
	for i, e := range t.entries {
		res[i] = *e
	}
	return res
}

// Len returns the number of visible entries.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// findByID is called with the lock held. Placeholders have id 0 and never match.
func (t *Timeline) findByID(id int64) *Entry {
	if id == 0 {
		return nil
	}
	for _, e := range t.entries {
		if e.Message.ID == id {
			return e
		}
	}
	return nil
}
