// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/parley/internal/apperrors"
	"github.com/tomtom215/parley/internal/auth"
	"github.com/tomtom215/parley/internal/chat"
	"github.com/tomtom215/parley/internal/config"
	"github.com/tomtom215/parley/internal/directory"
	"github.com/tomtom215/parley/internal/notification"
	"github.com/tomtom215/parley/internal/presence"
)

// tokenAuth treats the token as the user id.
type tokenAuth struct {
	users map[string]*directory.User
}

func (a tokenAuth) Authenticate(_ context.Context, r *http.Request) (*directory.User, error) {
	token := auth.ExtractToken(r)
	if token == "" {
		return nil, auth.ErrNoCredentials
	}
	u, ok := a.users[token]
	if !ok {
		return nil, auth.ErrInvalidCredentials
	}
	return u, nil
}

type fakeStore struct {
	mu           sync.Mutex
	participants map[string]map[string]bool
	messages     map[int64]*chat.Message
	nextID       int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		participants: make(map[string]map[string]bool),
		messages:     make(map[int64]*chat.Message),
	}
}

func (s *fakeStore) addChat(chatID string, users ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[chatID] = make(map[string]bool)
	for _, u := range users {
		s.participants[chatID][u] = true
	}
}

func (s *fakeStore) requireLocked(chatID, userID string) error {
	members, ok := s.participants[chatID]
	if !ok {
		return apperrors.NotFound("chat not found")
	}
	if !members[userID] {
		return apperrors.Forbidden("not a participant of this chat")
	}
	return nil
}

func (s *fakeStore) RequireParticipant(_ context.Context, chatID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requireLocked(chatID, userID)
}

func (s *fakeStore) ActiveParticipantUserIDs(_ context.Context, chatID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for u, active := range s.participants[chatID] {
		if active {
			ids = append(ids, u)
		}
	}
	return ids, nil
}

func (s *fakeStore) CreateMessage(_ context.Context, in chat.CreateMessageInput) (*chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLocked(in.ChatID, in.SenderID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Content) == "" && len(in.AssetIDs) == 0 {
		return nil, apperrors.Validation("message must have content or assets")
	}
	s.nextID++
	m := &chat.Message{ID: s.nextID, ChatID: in.ChatID, SenderID: in.SenderID, Content: in.Content, CreatedAt: time.Now()}
	s.messages[m.ID] = m
	out := *m
	return &out, nil
}

func (s *fakeStore) EditMessage(_ context.Context, userID string, id int64, content string) (*chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.IsDeleted {
		return nil, apperrors.NotFound("message not found")
	}
	if m.SenderID != userID {
		return nil, apperrors.Forbidden("only the author can edit a message")
	}
	m.Content, m.IsEdited = content, true
	out := *m
	return &out, nil
}

func (s *fakeStore) DeleteMessage(_ context.Context, userID string, id int64) (*chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.IsDeleted {
		return nil, apperrors.NotFound("message not found")
	}
	if m.SenderID != userID {
		return nil, apperrors.Forbidden("only the author can delete a message")
	}
	m.IsDeleted = true
	out := *m
	return &out, nil
}

func (s *fakeStore) content(id int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[id].Content
}

// panickyStore panics on every message.
type panickyStore struct {
	*fakeStore
}

func (panickyStore) CreateMessage(context.Context, chat.CreateMessageInput) (*chat.Message, error) {
	panic("boom")
}

type recordingNotifier struct {
	mu       sync.Mutex
	payloads []notification.Payload
}

func (n *recordingNotifier) SendNotification(_ context.Context, p notification.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payloads = append(n.payloads, p)
	return nil
}

func (n *recordingNotifier) snapshot() []notification.Payload {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification.Payload(nil), n.payloads...)
}

type gatewayFixture struct {
	server   *httptest.Server
	gateway  *Gateway
	store    *fakeStore
	notifier *recordingNotifier
	registry *presence.MemoryRegistry
}

func newGatewayFixture(t *testing.T, cfg config.GatewayConfig, wrap func(*fakeStore) MessageStore) *gatewayFixture {
	t.Helper()

	users := map[string]*directory.User{}
	for _, id := range []string{"alice", "bob", "carol", "dave"} {
		users[id] = &directory.User{ID: id, Username: id, DisplayName: strings.ToUpper(id[:1]) + id[1:]}
	}

	f := &gatewayFixture{
		store:    newFakeStore(),
		notifier: &recordingNotifier{},
		registry: presence.NewMemoryRegistry(),
	}
	f.store.addChat("c1", "alice", "bob", "dave")

	var store MessageStore = f.store
	if wrap != nil {
		store = wrap(f.store)
	}
	f.gateway = NewGateway(NewHub(), f.registry, store, f.notifier, cfg)
	f.server = httptest.NewServer(NewHandler(f.gateway, tokenAuth{users: users}, []string{"*"}, nil))
	t.Cleanup(f.server.Close)
	return f
}

func defaultGatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{Path: "/chat", SendBuffer: 64, EventsPerSecond: 100, EventBurst: 100}
}

func (f *gatewayFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/chat?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial as %s: %v", token, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	body, err := json.Marshal(map[string]any{"event": event, "data": data})
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
		t.Fatalf("send %s: %v", event, err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return env
}

func expectEvent(t *testing.T, conn *websocket.Conn, event string, into any) {
	t.Helper()
	env := readEvent(t, conn)
	if env.Event != event {
		t.Fatalf("event = %s (%s), want %s", env.Event, env.Data, event)
	}
	if into != nil {
		if err := json.Unmarshal(env.Data, into); err != nil {
			t.Fatalf("decode %s data: %v", event, err)
		}
	}
}

func expectError(t *testing.T, conn *websocket.Conn, code string) {
	t.Helper()
	var ev ErrorEvent
	expectEvent(t, conn, EventError, &ev)
	if ev.Code != code {
		t.Fatalf("error code = %s (%s), want %s", ev.Code, ev.Message, code)
	}
}

// expectSilence fails if conn receives anything within d. The connection
// cannot be read afterwards.
func expectSilence(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(d))
	if _, raw, err := conn.ReadMessage(); err == nil {
		t.Fatalf("unexpected event %s", raw)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (f *gatewayFixture) connections(userID string) int {
	ids, _ := f.registry.Connections(context.Background(), userID)
	return len(ids)
}

func TestHandler_RejectsUnauthenticated(t *testing.T) {
	t.Parallel()
	f := newGatewayFixture(t, defaultGatewayConfig(), nil)

	for _, query := range []string{"", "?token=mallory"} {
		wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/chat" + query
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if !errors.Is(err, websocket.ErrBadHandshake) {
			t.Fatalf("dial %q error = %v, want ErrBadHandshake", query, err)
		}
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("dial %q status = %d, want 401", query, resp.StatusCode)
		}
		resp.Body.Close()
	}
	if f.gateway.Hub().ClientCount() != 0 {
		t.Error("rejected request registered a client")
	}
}

func TestGateway_ChatFlow(t *testing.T) {
	t.Parallel()
	f := newGatewayFixture(t, defaultGatewayConfig(), nil)

	alice := f.dial(t, "alice")
	waitFor(t, "alice online", func() bool { return f.connections("alice") == 1 })
	bob := f.dial(t, "bob")

	var presenceEv PresenceEvent
	expectEvent(t, alice, EventPresence, &presenceEv)
	if presenceEv != (PresenceEvent{UserID: "bob", IsOnline: true}) {
		t.Errorf("alice presence = %+v", presenceEv)
	}
	expectEvent(t, bob, EventPresence, &presenceEv)
	if presenceEv != (PresenceEvent{UserID: "alice", IsOnline: true}) {
		t.Errorf("bob replay = %+v", presenceEv)
	}

	send(t, alice, EventJoin, JoinPayload{ChatID: "c1"})
	waitFor(t, "alice in room", func() bool { return f.gateway.Hub().RoomSize("c1") == 1 })
	send(t, bob, EventJoin, JoinPayload{ChatID: "c1"})

	var joined UserJoinedEvent
	expectEvent(t, alice, EventUserJoined, &joined)
	if joined.UserID != "bob" || joined.ChatID != "c1" || joined.DisplayName != "Bob" {
		t.Errorf("joined = %+v", joined)
	}

	send(t, alice, EventMessage, MessagePayload{ChatID: "c1", Content: "hi"})
	var got chat.Message
	expectEvent(t, bob, EventMessage, &got)
	if got.Content != "hi" || got.ID == 0 || got.SenderID != "alice" {
		t.Fatalf("bob received %+v", got)
	}
	var echo chat.Message
	expectEvent(t, alice, EventMessage, &echo)
	if echo.ID != got.ID {
		t.Errorf("sender echo id = %d, want %d", echo.ID, got.ID)
	}

	send(t, alice, EventMessageEdit, EditPayload{MessageID: got.ID, Content: "hi!"})
	var edited chat.Message
	expectEvent(t, bob, EventMessageEdited, &edited)
	if edited.Content != "hi!" || edited.ID != got.ID {
		t.Errorf("edited = %+v", edited)
	}
	expectEvent(t, alice, EventMessageEdited, nil)

	send(t, bob, EventTyping, TypingPayload{ChatID: "c1", IsTyping: true})
	var typing TypingEvent
	expectEvent(t, alice, EventTyping, &typing)
	if typing.UserID != "bob" || !typing.IsTyping {
		t.Errorf("typing = %+v", typing)
	}

	// Non-authors cannot edit or delete, and the row is untouched.
	send(t, bob, EventMessageDelete, DeletePayload{MessageID: got.ID})
	expectError(t, bob, apperrors.CodeForbidden)
	send(t, bob, EventMessageEdit, EditPayload{MessageID: got.ID, Content: "pwned"})
	expectError(t, bob, apperrors.CodeForbidden)
	if f.store.content(got.ID) != "hi!" {
		t.Errorf("content = %q after rejected edit", f.store.content(got.ID))
	}

	send(t, alice, EventMessageDelete, DeletePayload{MessageID: got.ID})
	var deleted MessageDeletedEvent
	expectEvent(t, bob, EventMessageDeleted, &deleted)
	if deleted != (MessageDeletedEvent{ChatID: "c1", MessageID: got.ID}) {
		t.Errorf("deleted = %+v", deleted)
	}
	expectEvent(t, alice, EventMessageDeleted, nil)

	send(t, bob, EventLeave, LeavePayload{ChatID: "c1"})
	var left UserLeftEvent
	expectEvent(t, alice, EventUserLeft, &left)
	if left.UserID != "bob" {
		t.Errorf("left = %+v", left)
	}
}

func TestGateway_JoinForbidden(t *testing.T) {
	t.Parallel()
	f := newGatewayFixture(t, defaultGatewayConfig(), nil)

	carol := f.dial(t, "carol")
	send(t, carol, EventJoin, JoinPayload{ChatID: "c1"})
	expectError(t, carol, apperrors.CodeForbidden)

	send(t, carol, EventJoin, JoinPayload{ChatID: "missing"})
	expectError(t, carol, apperrors.CodeNotFound)

	if f.gateway.Hub().RoomSize("c1") != 0 {
		t.Error("non-participant joined the room")
	}

	// Typing needs room membership.
	send(t, carol, EventTyping, TypingPayload{ChatID: "c1", IsTyping: true})
	expectError(t, carol, apperrors.CodeForbidden)
}

func TestGateway_InvalidFrames(t *testing.T) {
	t.Parallel()
	f := newGatewayFixture(t, defaultGatewayConfig(), nil)
	alice := f.dial(t, "alice")

	if err := alice.WriteMessage(websocket.TextMessage, []byte(`{"event":`)); err != nil {
		t.Fatal(err)
	}
	expectError(t, alice, apperrors.CodeValidation)

	send(t, alice, "chat:dance", map[string]string{})
	expectError(t, alice, apperrors.CodeValidation)

	send(t, alice, EventJoin, map[string]string{"chatId": "  "})
	expectError(t, alice, apperrors.CodeValidation)

	send(t, alice, EventMessageEdit, map[string]any{"messageId": "seven"})
	expectError(t, alice, apperrors.CodeValidation)

	send(t, alice, EventMessage, MessagePayload{ChatID: "c1"})
	expectError(t, alice, apperrors.CodeValidation)
}

func TestGateway_RateLimit(t *testing.T) {
	t.Parallel()
	cfg := defaultGatewayConfig()
	cfg.EventsPerSecond, cfg.EventBurst = 0.001, 1
	f := newGatewayFixture(t, cfg, nil)

	alice := f.dial(t, "alice")
	send(t, alice, EventTyping, TypingPayload{ChatID: "c1"})
	expectError(t, alice, apperrors.CodeForbidden)
	send(t, alice, EventTyping, TypingPayload{ChatID: "c1"})
	expectError(t, alice, apperrors.CodeRateLimited)
}

func TestGateway_PanicRecovered(t *testing.T) {
	t.Parallel()
	f := newGatewayFixture(t, defaultGatewayConfig(), func(s *fakeStore) MessageStore {
		return panickyStore{s}
	})

	alice := f.dial(t, "alice")
	send(t, alice, EventMessage, MessagePayload{ChatID: "c1", Content: "hi"})
	expectError(t, alice, apperrors.CodeInternal)

	// The connection survives.
	send(t, alice, EventJoin, JoinPayload{ChatID: "c1"})
	send(t, alice, EventJoin, JoinPayload{ChatID: "nope"})
	expectError(t, alice, apperrors.CodeNotFound)
}

func TestGateway_PresenceLifecycle(t *testing.T) {
	t.Parallel()
	f := newGatewayFixture(t, defaultGatewayConfig(), nil)

	alice := f.dial(t, "alice")
	waitFor(t, "alice online", func() bool { return f.connections("alice") == 1 })

	bob1 := f.dial(t, "bob")
	var ev PresenceEvent
	expectEvent(t, alice, EventPresence, &ev)
	if ev != (PresenceEvent{UserID: "bob", IsOnline: true}) {
		t.Fatalf("presence = %+v", ev)
	}
	waitFor(t, "bob online", func() bool { return f.connections("bob") == 1 })

	// A second connection is not announced but gets the replay.
	bob2 := f.dial(t, "bob")
	expectEvent(t, bob2, EventPresence, &ev)
	if ev.UserID != "alice" {
		t.Errorf("replay = %+v", ev)
	}
	waitFor(t, "second bob connection", func() bool { return f.connections("bob") == 2 })

	_ = bob1.Close()
	waitFor(t, "first bob connection gone", func() bool { return f.connections("bob") == 1 })

	// carol's arrival is the next thing alice hears, so bob1 closing was silent.
	f.dial(t, "carol")
	expectEvent(t, alice, EventPresence, &ev)
	if ev != (PresenceEvent{UserID: "carol", IsOnline: true}) {
		t.Fatalf("presence = %+v, want carol online", ev)
	}

	_ = bob2.Close()
	expectEvent(t, alice, EventPresence, &ev)
	if ev != (PresenceEvent{UserID: "bob", IsOnline: false}) {
		t.Fatalf("presence = %+v, want bob offline", ev)
	}
	expectSilence(t, alice, 200*time.Millisecond)

	online, _ := f.registry.IsOnline(context.Background(), "bob")
	if online {
		t.Error("bob still online")
	}
}

func TestGateway_NotifiesOfflineParticipants(t *testing.T) {
	t.Parallel()
	f := newGatewayFixture(t, defaultGatewayConfig(), nil)

	alice := f.dial(t, "alice")
	f.dial(t, "bob")
	waitFor(t, "bob online", func() bool { return f.connections("bob") == 1 })

	send(t, alice, EventMessage, MessagePayload{ChatID: "c1", Content: "are you there?"})

	waitFor(t, "notification", func() bool { return len(f.notifier.snapshot()) == 1 })
	got := f.notifier.snapshot()[0]
	if got.UserID != "dave" || got.Type != notification.TypeNewMessage {
		t.Errorf("notification = %+v", got)
	}
	if got.EntityID != "c1" || got.ActorID != "alice" || got.Message != "are you there?" {
		t.Errorf("notification = %+v", got)
	}
	if got.Title != "New message from Alice" {
		t.Errorf("title = %q", got.Title)
	}

	time.Sleep(50 * time.Millisecond)
	if n := len(f.notifier.snapshot()); n != 1 {
		t.Errorf("notifications = %d, want 1", n)
	}
}

func TestOriginChecker(t *testing.T) {
	t.Parallel()

	check := originChecker([]string{"https://app.example.com/"})
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://app.example.com", true},
		{"https://evil.example.com", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/chat", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := check(r); got != tt.want {
			t.Errorf("origin %q = %v, want %v", tt.origin, got, tt.want)
		}
	}
	if !originChecker([]string{"*"})(httptest.NewRequest(http.MethodGet, "/chat", nil)) {
		t.Error("wildcard should allow everything")
	}
}

func TestTruncateRunes(t *testing.T) {
	t.Parallel()

	if got := truncateRunes("hello", 10); got != "hello" {
		t.Errorf("got %q", got)
	}
	if got := truncateRunes("ñandú ñandú", 5); got != "ñandú..." {
		t.Errorf("got %q", got)
	}
}
