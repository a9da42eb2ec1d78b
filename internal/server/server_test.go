package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/api"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/authflow"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/config"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/events"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/featureflags"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/forum"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/messaging"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/models"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/session"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	srv     *Server
	backend *testutil.Backend
	store   *session.Store
	bus     *events.LocalBus
	poller  *messaging.Poller
}

func newHarness(t *testing.T, signedIn bool) *harness {
	t.Helper()
	backend := testutil.NewBackend(t)
	store := session.NewStore()
	if signedIn {
		store.Set("tok", &models.User{ID: "42", FirstName: "Ada", AccountType: models.AccountClient})
	}
	client := api.NewClient(backend.URL, store)
	bus := events.NewLocalBus()
	flags := featureflags.NewManager("forum_markdown=on")

	poller := messaging.NewPoller(client, store, messaging.WithBus(bus))
	t.Cleanup(poller.Attach(bus))

	cfg := &config.Config{
		Port:            "0",
		AllowedOrigins:  "*",
		CommentMaxDepth: 4,
	}
	srv := New(cfg, Deps{
		Session:  store,
		Bus:      bus,
		Poller:   poller,
		Help:     messaging.NewHelpCenter(client, store, poller),
		Forum:    forum.NewService(client, store),
		Voter:    forum.NewVoter(client, store, bus),
		Renderer: forum.NewRenderer(flags),
		Auth:     authflow.NewFlow(client, store, bus, time.Millisecond),
		Flags:    flags,
		Registry: prometheus.NewRegistry(),
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &harness{srv: srv, backend: backend, store: store, bus: bus, poller: poller}
}

func (h *harness) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := h.srv.App().Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (h *harness) serveConversations(convs ...map[string]any) {
	h.backend.Handle("GET /messages/conversations/user/{id}", testutil.Reply(http.StatusOK, map[string]any{"conversations": convs}))
}

func TestServer_HealthAndMetrics(t *testing.T) {
	h := newHarness(t, false)

	status, body := h.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "up", body["status"])

	status, body = h.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "disabled", body["redis"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := h.srv.App().Test(req, -1)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Correlation-ID"))
}

func TestServer_ReadinessFollowsRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := newHarness(t, false)
	h.srv.redis = rdb

	status, body := h.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["redis"])

	mr.Close()
	status, body = h.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "unhealthy", body["redis"])
}

func TestServer_WidgetNavigation(t *testing.T) {
	h := newHarness(t, true)
	h.serveConversations(
		map[string]any{"ConversationID": 5, "OtherPartyName": "Lakeside Venue", "OtherPartyType": "vendor", "UnreadCount": 2},
		map[string]any{"ConversationID": 6, "OtherPartyName": "Sam", "OtherPartyType": "user", "UnreadCount": 1},
	)
	h.backend.Handle("GET /messages/conversation/{id}", testutil.Reply(http.StatusOK, map[string]any{
		"messages": []map[string]any{{"MessageID": 1, "ConversationID": 5, "SenderID": 42, "Content": "Is June free?"}},
	}))
	h.backend.Handle("POST /messages", testutil.Reply(http.StatusCreated, map[string]any{"success": true}))
	require.NoError(t, h.poller.Tick(context.Background()))

	status, body := h.do(t, http.MethodPost, "/api/widget/toggle", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "home", body["view"])
	assert.EqualValues(t, 3, body["unread"])

	status, body = h.do(t, http.MethodPost, "/api/widget/tab/messages", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "messages", body["view"])
	assert.Len(t, body["conversations"], 1, "client role shows vendor conversations only")

	status, _ = h.do(t, http.MethodPost, "/api/widget/tab/nowhere", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = h.do(t, http.MethodPost, "/api/widget/conversations/99", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = h.do(t, http.MethodPost, "/api/widget/conversations/5", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "chat", body["view"])
	assert.Len(t, body["messages"], 1)

	status, _ = h.do(t, http.MethodPost, "/api/widget/messages", map[string]string{"content": "  Thanks!  "})
	assert.Equal(t, http.StatusCreated, status)
	sent, ok := h.backend.Last(http.MethodPost, "/messages")
	require.True(t, ok)
	var out api.OutgoingMessage
	sent.Decode(t, &out)
	assert.Equal(t, "Thanks!", out.Content)
	assert.Equal(t, models.ID("5"), out.ConversationID)

	status, body = h.do(t, http.MethodPost, "/api/widget/back", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "messages", body["view"])

	status, body = h.do(t, http.MethodPost, "/api/widget/close", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "closed", body["view"])

	status, _ = h.do(t, http.MethodPost, "/api/widget/back", nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestServer_InboxRoleAndSearch(t *testing.T) {
	h := newHarness(t, true)
	h.serveConversations(
		map[string]any{"ConversationID": 5, "OtherPartyName": "Lakeside Venue", "OtherPartyType": "vendor"},
		map[string]any{"ConversationID": 7, "OtherPartyName": "Harbor Catering", "OtherPartyType": "vendor"},
		map[string]any{"ConversationID": 6, "OtherPartyName": "Sam", "OtherPartyType": "user"},
	)
	require.NoError(t, h.poller.Tick(context.Background()))

	_, body := h.do(t, http.MethodGet, "/api/widget?q=harbor", nil)
	assert.Len(t, body["conversations"], 1)

	_, body = h.do(t, http.MethodGet, "/api/widget?role=vendor", nil)
	assert.Equal(t, "vendor", body["role"])
	assert.Len(t, body["conversations"], 1)

	status, _ := h.do(t, http.MethodGet, "/api/widget?role=admin", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = h.do(t, http.MethodPut, "/api/widget/role/vendor", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "vendor", body["role"])
}

func TestServer_SignedOutSendIsUnauthorized(t *testing.T) {
	h := newHarness(t, false)
	status, body := h.do(t, http.MethodPost, "/api/widget/messages", map[string]string{"content": "hi"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.NotEmpty(t, body["error"])
	assert.Empty(t, h.backend.Requests())
}

func TestServer_HelpCenter(t *testing.T) {
	h := newHarness(t, true)
	h.serveConversations()
	h.backend.Handle("GET /public/faqs", testutil.Reply(http.StatusOK, map[string]any{"faqs": []map[string]any{
		{"FAQID": 1, "Question": "How do I book?", "Answer": "Pick a date.", "Category": "booking"},
		{"FAQID": 2, "Question": "Refunds?", "Answer": "Within 14 days.", "Category": "payments"},
	}}))
	h.backend.Handle("POST /public/faqs/{id}/feedback", testutil.Reply(http.StatusOK, map[string]any{"success": true}))
	h.backend.Handle("POST /messages/conversations/support", testutil.Reply(http.StatusCreated, map[string]any{"conversationId": 77}))
	h.backend.Handle("GET /messages/conversation/{id}", testutil.Reply(http.StatusOK, map[string]any{"messages": []any{}}))

	status, body := h.do(t, http.MethodGet, "/api/help/faqs?category=booking", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["faqs"], 1)

	status, _ = h.do(t, http.MethodPost, "/api/help/faqs/1/feedback", map[string]bool{"helpful": true})
	assert.Equal(t, http.StatusNoContent, status)
	assert.Equal(t, 1, h.backend.Count(http.MethodPost, "/public/faqs/1/feedback"))

	status, _ = h.do(t, http.MethodPost, "/api/help/tickets", map[string]string{"subject": " "})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = h.do(t, http.MethodPost, "/api/help/tickets", map[string]string{
		"subject":     "Payment stuck",
		"description": "My deposit shows pending.",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.EqualValues(t, 77, body["conversationId"])
	widget, ok := body["widget"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "chat", widget["view"])
}

func TestServer_PublishOpenEventShowsHome(t *testing.T) {
	h := newHarness(t, true)
	h.serveConversations()

	status, body := h.do(t, http.MethodPost, "/api/events/"+events.OpenMessagingWidget, map[string]any{})
	require.Equal(t, http.StatusAccepted, status)
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, messaging.ViewHome, h.poller.Snapshot().View)

	status, _ = h.do(t, http.MethodPost, "/api/events/"+events.CloseMessagingWidget, nil)
	require.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, messaging.ViewClosed, h.poller.Snapshot().View)

	req := httptest.NewRequest(http.MethodPost, "/api/events/x", strings.NewReader("{not json"))
	resp, err := h.srv.App().Test(req, -1)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func serveThread(h *harness) {
	h.backend.Handle("GET /forum/posts/{slug}", testutil.Reply(http.StatusOK, map[string]any{
		"post": map[string]any{"id": 1, "slug": "venues", "title": "Venues", "content": "**Lakeside** is lovely", "score": 2, "upvoteCount": 2},
		"comments": []map[string]any{
			{"id": 10, "postId": 1, "parentId": nil, "content": "Agreed", "score": 1, "upvoteCount": 1},
			{"id": 11, "postId": 1, "parentId": 10, "content": "Same"},
			{"id": 12, "postId": 1, "parentId": 404, "content": "Lost reply"},
		},
	}))
}

func TestServer_ForumThread(t *testing.T) {
	h := newHarness(t, true)
	serveThread(h)

	status, body := h.do(t, http.MethodGet, "/api/forum/posts/venues", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body["postHtml"], "<strong>Lakeside</strong>")
	comments, ok := body["comments"].([]any)
	require.True(t, ok)
	assert.Len(t, comments, 3)
	assert.Equal(t, []any{float64(12)}, body["orphans"])
}

func TestServer_ForumVote(t *testing.T) {
	h := newHarness(t, true)
	serveThread(h)
	h.backend.Handle("POST /forum/vote", testutil.Reply(http.StatusOK, map[string]any{
		"upvoteCount": 2, "downvoteCount": 0, "score": 2, "userVote": "up",
	}))

	status, body := h.do(t, http.MethodPost, "/api/forum/posts/venues/vote", map[string]any{
		"targetType": "comment", "targetId": "10", "voteType": "up",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "applied", body["outcome"])
	assert.Equal(t, 1, h.backend.Count(http.MethodPost, "/forum/vote"))

	status, _ = h.do(t, http.MethodPost, "/api/forum/posts/venues/vote", map[string]any{
		"targetType": "reply", "targetId": "10", "voteType": "up",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = h.do(t, http.MethodPost, "/api/forum/posts/venues/vote", map[string]any{
		"targetType": "comment", "targetId": "999", "voteType": "up",
	})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_ForumVoteSignedOut(t *testing.T) {
	h := newHarness(t, false)
	serveThread(h)
	var prompts []events.Event
	h.bus.Subscribe(events.OpenSignIn, func(_ context.Context, e events.Event) { prompts = append(prompts, e) })

	status, body := h.do(t, http.MethodPost, "/api/forum/posts/venues/vote", map[string]any{
		"targetType": "post", "targetId": "1", "voteType": "down",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "sign_in_required", body["outcome"])
	assert.Len(t, prompts, 1)
	assert.Zero(t, h.backend.Count(http.MethodPost, "/forum/vote"))
}

func TestServer_SessionChangeRefetchesThread(t *testing.T) {
	h := newHarness(t, false)
	serveThread(h)
	h.backend.Handle("POST /forum/vote", testutil.Reply(http.StatusOK, map[string]any{
		"upvoteCount": 1, "downvoteCount": 1, "score": 0, "userVote": "down",
	}))
	vote := map[string]any{"targetType": "post", "targetId": "1", "voteType": "down"}

	status, _ := h.do(t, http.MethodPost, "/api/forum/posts/venues/vote", vote)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, 1, h.backend.Count(http.MethodGet, "/forum/posts/venues"))

	h.store.Set("tok", &models.User{ID: "42"})
	status, body := h.do(t, http.MethodPost, "/api/forum/posts/venues/vote", vote)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "applied", body["outcome"])
	assert.Equal(t, 2, h.backend.Count(http.MethodGet, "/forum/posts/venues"), "the signed-out copy is not reused")
}

func TestServer_AuthTwoFactor(t *testing.T) {
	h := newHarness(t, false)
	h.backend.Handle("POST /users/login", testutil.Reply(http.StatusOK, map[string]any{
		"twoFactorRequired": true, "email": "ada@example.com",
	}))
	h.backend.Handle("POST /auth/verify-2fa", testutil.Reply(http.StatusOK, map[string]any{
		"token": "session-token",
		"user":  map[string]any{"id": 42, "email": "ada@example.com", "accountType": "client"},
	}))

	_, body := h.do(t, http.MethodPost, "/api/auth/open", nil)
	assert.Equal(t, "login", body["view"])

	status, body := h.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "ada@example.com", "password": "secret"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "twofa", body["view"])
	assert.Equal(t, "ada@example.com", body["pendingEmail"])

	status, body = h.do(t, http.MethodPost, "/api/auth/verify-2fa", map[string]string{"code": "12ab56"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, body["banner"])

	status, body = h.do(t, http.MethodPost, "/api/auth/verify-2fa", map[string]string{"code": "123456"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "loggedIn", body["view"])
	assert.Equal(t, "session-token", h.store.Token())

	status, _ = h.do(t, http.MethodPost, "/api/auth/show-signup", nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestServer_AuthBackendFailureKeepsBanner(t *testing.T) {
	h := newHarness(t, false)
	h.backend.Handle("POST /users/login", testutil.Reply(http.StatusUnauthorized, map[string]any{"message": "Invalid email or password"}))

	status, body := h.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "ada@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid email or password", body["banner"])
	assert.Equal(t, "login", body["view"])
}

func TestServer_Flags(t *testing.T) {
	h := newHarness(t, false)
	status, body := h.do(t, http.MethodGet, "/api/flags", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body[featureflags.ForumMarkdown])
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"no session", session.ErrNoSession, http.StatusUnauthorized},
		{"illegal widget move", messaging.ErrIllegalTransition, http.StatusConflict},
		{"illegal auth move", authflow.ErrIllegalTransition, http.StatusConflict},
		{"unknown conversation", messaging.ErrNoConversation, http.StatusNotFound},
		{"bad code", authflow.ErrInvalidCode, http.StatusBadRequest},
		{"validation", models.NewValidationError("x"), http.StatusBadRequest},
		{"backend down", models.NewAPIError(http.StatusServiceUnavailable, ""), http.StatusBadGateway},
		{"transport", io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func readFrame(t *testing.T, conn *websocket.Conn, typ string) envelope {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var env envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		if env.Type == typ {
			return env
		}
	}
}

func TestServer_WebSocketFeed(t *testing.T) {
	h := newHarness(t, true)
	h.serveConversations(map[string]any{"ConversationID": 5, "OtherPartyName": "Lakeside Venue", "OtherPartyType": "vendor", "UnreadCount": 1})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = h.srv.Serve(ln) }()

	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer func() { _ = conn.Close() }()

	first := readFrame(t, conn, "inbox")
	var snap messaging.Snapshot
	require.NoError(t, json.Unmarshal(first.Payload, &snap))
	assert.Equal(t, messaging.ViewClosed, snap.View)
	require.Eventually(t, func() bool { return h.srv.hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, events.Emit(context.Background(), h.bus, events.SharedComponentsReady, nil))
	ev := readFrame(t, conn, "event")
	var got events.Event
	require.NoError(t, json.Unmarshal(ev.Payload, &got))
	assert.Equal(t, events.SharedComponentsReady, got.Name)

	frame, err := encodeFrame("event", pageEvent{Name: events.OpenMessagingWidget, Detail: json.RawMessage(`{}`)})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))

	for snap.View != messaging.ViewHome || snap.Unread != 1 {
		update := readFrame(t, conn, "inbox")
		require.NoError(t, json.Unmarshal(update.Payload, &snap))
	}
	assert.Len(t, snap.Conversations, 1)
}
