package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authoritative(id int64, sender, content string) Message {
	return Message{
		ID:             id,
		ConversationID: 1,
		SenderID:       sender,
		Content:        content,
		CreatedAt:      time.Now(),
	}
}

func TestTimelineOptimisticEcho(t *testing.T) {
	tl := NewTimeline()

	tempID := tl.AddOptimistic(1, "alice", "hi", nil, nil)
	require.NotEmpty(t, tempID)
	require.Equal(t, 1, tl.Len())
	assert.True(t, tl.Entries()[0].Pending)

	tl.ApplyBroadcast(authoritative(42, "alice", "hi"))

	entries := tl.Entries()
	require.Len(t, entries, 1, "echo must replace the placeholder, not append")
	assert.False(t, entries[0].Pending)
	assert.False(t, entries[0].Failed)
	assert.Equal(t, int64(42), entries[0].Message.ID)
	assert.Empty(t, entries[0].TempID)
}

func TestTimelineDuplicateDelivery(t *testing.T) {
	tl := NewTimeline()

	tl.AddOptimistic(1, "alice", "hi", nil, nil)
	tl.ApplyBroadcast(authoritative(42, "alice", "hi"))
	tl.ApplyBroadcast(authoritative(42, "alice", "hi"))

	assert.Equal(t, 1, tl.Len(), "duplicate delivery by persisted id is dropped")
}

func TestTimelineAmbiguousIdenticalSends(t *testing.T) {
	// Two rapid sends with identical content: the placeholder-to-echo
	// pairing is unspecified, but each echo consumes exactly one
	// placeholder and the final count equals the number of sends.
	tl := NewTimeline()

	tl.AddOptimistic(1, "alice", "hi", nil, nil)
	tl.AddOptimistic(1, "alice", "hi", nil, nil)

	tl.ApplyBroadcast(authoritative(10, "alice", "hi"))
	tl.ApplyBroadcast(authoritative(11, "alice", "hi"))

	entries := tl.Entries()
	require.Len(t, entries, 2)
	var ids []int64
	for _, e := range entries {
		assert.False(t, e.Pending)
		ids = append(ids, e.Message.ID)
	}
	assert.ElementsMatch(t, []int64{10, 11}, ids)
}

func TestTimelineOtherParticipantAppends(t *testing.T) {
	tl := NewTimeline()

	tl.AddOptimistic(1, "alice", "hi", nil, nil)
	tl.ApplyBroadcast(authoritative(7, "bob", "hi"))

	entries := tl.Entries()
	require.Len(t, entries, 2, "same content from a different sender must not match the placeholder")
	assert.True(t, entries[0].Pending)
	assert.Equal(t, int64(7), entries[1].Message.ID)
}

func TestTimelineFallbackResolve(t *testing.T) {
	tl := NewTimeline()

	tempID := tl.AddOptimistic(1, "alice", "hi", nil, nil)
	require.True(t, tl.Resolve(tempID, authoritative(5, "alice", "hi")))

	// The server still echoes the message through the channel; the echo
	// must be recognized by id and dropped.
	tl.ApplyBroadcast(authoritative(5, "alice", "hi"))

	entries := tl.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(5), entries[0].Message.ID)
	assert.False(t, entries[0].Pending)
}

func TestTimelineFailedSendStaysVisible(t *testing.T) {
	tl := NewTimeline()

	tempID := tl.AddOptimistic(1, "alice", "hi", nil, nil)
	require.True(t, tl.Fail(tempID))

	entries := tl.Entries()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Failed)
	assert.False(t, entries[0].Pending)

	// Failed entries are out of the matching pool: a later broadcast with
	// the same content is someone else's message.
	tl.ApplyBroadcast(authoritative(9, "alice", "hi"))
	require.Equal(t, 2, tl.Len())
}

func TestTimelineTrimmedContentMatch(t *testing.T) {
	tl := NewTimeline()

	tl.AddOptimistic(1, "alice", "  hi \n", nil, nil)
	tl.ApplyBroadcast(authoritative(3, "alice", "hi"))

	entries := tl.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(3), entries[0].Message.ID)
}

func TestTimelineHistoryAppendDedup(t *testing.T) {
	tl := NewTimeline()

	tl.Append(authoritative(1, "bob", "one"))
	tl.Append(authoritative(2, "bob", "two"))
	tl.Append(authoritative(2, "bob", "two"))

	assert.Equal(t, 2, tl.Len())
}

func TestTimelineResolveUnknownTempID(t *testing.T) {
	tl := NewTimeline()
	assert.False(t, tl.Resolve("nope", authoritative(1, "alice", "hi")))
	assert.False(t, tl.Fail("nope"))
	assert.Equal(t, 0, tl.Len())
}
