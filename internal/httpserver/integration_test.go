package httpserver_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore/client"
	"chatcore/internal/config"
	"chatcore/internal/httpserver"
	"chatcore/internal/security"
	"chatcore/internal/store/sqlite"
	"chatcore/internal/ws"
)

const testSecret = "integration-test-secret"

type testServer struct {
	srv    *httptest.Server
	tokens *security.TokenService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{
		AppName:                    "chatcore",
		Env:                        "test",
		DatabasePath:               filepath.Join(t.TempDir(), "test.db"),
		JWTSecret:                  testSecret,
		AccessTokenMinutes:         60,
		EncryptKey:                 "integration-test-key",
		CORSOrigins:                []string{"http://localhost:3000"},
		MaxMessagesPerConversation: 1000,
		SendBufferSize:             64,
	}

	db, err := sqlite.Open(cfg.DatabasePath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(db))

	tokens := security.NewTokenService(cfg.JWTSecret, time.Hour)
	encryptor, err := security.NewEncryptor([]byte(cfg.EncryptKey))
	require.NoError(t, err)

	srv := httptest.NewServer(httpserver.NewRouter(cfg, db, ws.NewHub(), tokens, encryptor))
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, tokens: tokens}
}

func (ts *testServer) client(t *testing.T, userID string) *client.Client {
	t.Helper()
	tok, err := ts.tokens.Issue(userID)
	require.NoError(t, err)
	return client.New(ts.srv.URL, tok, userID)
}

func (ts *testServer) connect(t *testing.T, userID string) *client.Client {
	t.Helper()
	c := ts.client(t, userID)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, 20*time.Millisecond, msg)
}

func TestMessageDeliveryAndReconciliation(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	alice := ts.connect(t, "alice")
	bob := ts.connect(t, "bob")

	bobNotifs := make(chan client.Notification, 8)
	bob.OnNotification = func(n client.Notification) { bobNotifs <- n }
	aliceNotifs := make(chan client.Notification, 8)
	alice.OnNotification = func(n client.Notification) { aliceNotifs <- n }

	conv, err := alice.CreateDirect(ctx, "bob")
	require.NoError(t, err)

	_, err = alice.Send(ctx, conv.ID, "hi", nil, nil)
	require.NoError(t, err)

	// Bob receives exactly one authoritative message.
	bobTL := bob.Timeline(conv.ID)
	eventually(t, func() bool { return bobTL.Len() == 1 }, "bob should receive the broadcast")
	entries := bobTL.Entries()
	assert.Equal(t, "alice", entries[0].Message.SenderID)
	assert.Equal(t, "hi", entries[0].Message.Content)
	assert.False(t, entries[0].Pending)

	// Alice's echo resolves her placeholder in place, never duplicating it.
	aliceTL := alice.Timeline(conv.ID)
	eventually(t, func() bool {
		es := aliceTL.Entries()
		return len(es) == 1 && !es[0].Pending
	}, "alice's placeholder should resolve from the echo")
	assert.NotZero(t, aliceTL.Entries()[0].Message.ID)

	// Bob gets one personal notification; the sender gets none.
	select {
	case n := <-bobNotifs:
		assert.Equal(t, "bob", n.RecipientID)
		assert.Equal(t, "alice", n.ActorID)
		assert.Equal(t, conv.ID, n.ConversationID)
	case <-time.After(5 * time.Second):
		t.Fatal("bob never received a notification")
	}
	select {
	case n := <-aliceNotifs:
		t.Fatalf("sender must not be notified about their own message: %+v", n)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestEchoResolvesContentWithHTMLSpecials(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	alice := ts.connect(t, "alice")
	bob := ts.connect(t, "bob")

	conv, err := alice.CreateDirect(ctx, "bob")
	require.NoError(t, err)

	// Characters the sanitizer escapes must still round-trip verbatim;
	// otherwise the echo never matches the optimistic entry.
	content := "tom & jerry say 1 < 2"
	_, err = alice.Send(ctx, conv.ID, content, nil, nil)
	require.NoError(t, err)

	aliceTL := alice.Timeline(conv.ID)
	eventually(t, func() bool {
		es := aliceTL.Entries()
		return len(es) == 1 && !es[0].Pending
	}, "echo must resolve the placeholder for plain text containing & and <")
	assert.Equal(t, content, aliceTL.Entries()[0].Message.Content)

	bobTL := bob.Timeline(conv.ID)
	eventually(t, func() bool { return bobTL.Len() == 1 }, "recipient delivery")
	assert.Equal(t, content, bobTL.Entries()[0].Message.Content)
}

func TestFallbackPathEquivalence(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	// Alice never opens the channel; her sends take the synchronous path.
	alice := ts.client(t, "alice")
	bob := ts.connect(t, "bob")

	conv, err := alice.CreateDirect(ctx, "bob")
	require.NoError(t, err)

	tempID, err := alice.Send(ctx, conv.ID, "offline hello", nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, tempID)

	// The synchronous response resolved the placeholder immediately.
	entries := alice.Timeline(conv.ID).Entries()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Pending)
	assert.NotZero(t, entries[0].Message.ID)

	// Connected recipients still receive the broadcast.
	bobTL := bob.Timeline(conv.ID)
	eventually(t, func() bool { return bobTL.Len() == 1 }, "fallback sends must reach connected recipients")
	assert.Equal(t, "offline hello", bobTL.Entries()[0].Message.Content)

	// History agrees with both views.
	require.NoError(t, alice.LoadHistory(ctx, conv.ID, 50))
	assert.Equal(t, 1, alice.Timeline(conv.ID).Len(), "history load must dedupe against the resolved entry")
}

func TestMembershipEnforcedOnBothPaths(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	alice := ts.client(t, "alice")
	conv, err := alice.CreateDirect(ctx, "bob")
	require.NoError(t, err)

	mallory := ts.connect(t, "mallory")
	errs := make(chan client.ServerError, 1)
	mallory.OnServerError = func(e client.ServerError) { errs <- e }

	// Channel path: rejected with an error event on the originating connection.
	_, err = mallory.Send(ctx, conv.ID, "let me in", nil, nil)
	require.NoError(t, err, "the frame itself is accepted; rejection arrives as an event")
	select {
	case e := <-errs:
		assert.Equal(t, "permission_denied", e.Code)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a permission_denied error event")
	}

	// Fallback path: rejected with 403.
	mallory.Close()
	_, err = mallory.Send(ctx, conv.ID, "again", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")

	// Nothing was persisted either way.
	require.NoError(t, alice.LoadHistory(ctx, conv.ID, 50))
	assert.Equal(t, 0, alice.Timeline(conv.ID).Len())

	// Non-participants cannot read history either.
	err = mallory.LoadHistory(ctx, conv.ID, 50)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestHandshakeRequiresValidToken(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	missing := client.New(ts.srv.URL, "", "nobody")
	assert.Error(t, missing.Connect(ctx), "no token must refuse the upgrade")

	garbage := client.New(ts.srv.URL, "not-a-token", "nobody")
	assert.Error(t, garbage.Connect(ctx))

	expired := security.NewTokenService(testSecret, time.Hour)
	tok, err := expired.IssueWithTTL("alice", -time.Minute)
	require.NoError(t, err)
	stale := client.New(ts.srv.URL, tok, "alice")
	assert.Error(t, stale.Connect(ctx))
}

func TestTokenViaSubprotocolHeader(t *testing.T) {
	ts := newTestServer(t)

	tok, err := ts.tokens.Issue("alice")
	require.NoError(t, err)

	wsURL := "ws" + ts.srv.URL[len("http"):] + "/ws"
	dialer := websocket.Dialer{Subprotocols: []string{"bearer", tok}}
	conn, resp, err := dialer.Dial(wsURL, nil)
	require.NoError(t, err, "browser clients carry the token in Sec-WebSocket-Protocol")
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
}

func TestReconnectIsIdempotent(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	alice := ts.connect(t, "alice")
	bob := ts.connect(t, "bob")

	conv, err := alice.CreateDirect(ctx, "bob")
	require.NoError(t, err)

	_, err = alice.Send(ctx, conv.ID, "first", nil, nil)
	require.NoError(t, err)
	bobTL := bob.Timeline(conv.ID)
	eventually(t, func() bool { return bobTL.Len() == 1 }, "first delivery")

	require.NoError(t, bob.Close())
	require.NoError(t, bob.Connect(ctx))

	_, err = alice.Send(ctx, conv.ID, "second", nil, nil)
	require.NoError(t, err)
	eventually(t, func() bool { return bobTL.Len() == 2 }, "delivery after reconnect")

	// Exactly once: the re-derived room set must not duplicate delivery.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 2, bobTL.Len())
}

func TestGroupConversationFanOut(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	alice := ts.connect(t, "alice")
	bob := ts.connect(t, "bob")
	carol := ts.connect(t, "carol")
	dave := ts.connect(t, "dave")

	// Group created over REST while everyone is already connected.
	tok, err := ts.tokens.Issue("alice")
	require.NoError(t, err)
	conv := createGroup(t, ts.srv.URL, tok, "team", []string{"bob", "carol"})

	_, err = alice.Send(ctx, conv.ID, "hello team", nil, nil)
	require.NoError(t, err)

	for name, c := range map[string]*client.Client{"bob": bob, "carol": carol} {
		tl := c.Timeline(conv.ID)
		eventually(t, func() bool { return tl.Len() == 1 }, name+" should receive the group broadcast")
	}

	// Not a member, receives nothing.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 0, dave.Timeline(conv.ID).Len())
}

func TestConversationDeleteCascades(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	alice := ts.client(t, "alice")
	conv, err := alice.CreateDirect(ctx, "bob")
	require.NoError(t, err)
	_, err = alice.Send(ctx, conv.ID, "soon gone", nil, nil)
	require.NoError(t, err)

	tok, err := ts.tokens.Issue("alice")
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodDelete,
		fmt.Sprintf("%s/api/conversations/%d", ts.srv.URL, conv.ID), nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	err = alice.LoadHistory(ctx, conv.ID, 50)
	require.Error(t, err, "messages must go with the conversation")
	assert.Contains(t, err.Error(), "404")
}

func createGroup(t *testing.T, baseURL, token, title string, participantIDs []string) *client.Conversation {
	t.Helper()
	body := fmt.Sprintf(`{"title":%q,"participant_ids":["%s","%s"]}`, title, participantIDs[0], participantIDs[1])
	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/conversations", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var conv client.Conversation
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&conv))
	return &conv
}
