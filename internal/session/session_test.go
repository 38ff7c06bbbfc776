package session

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/ivankudzin/matchlink/internal/config"
	"github.com/ivankudzin/matchlink/internal/domain"
	"github.com/ivankudzin/matchlink/internal/realtime"
	"github.com/ivankudzin/matchlink/internal/rest"
	"github.com/ivankudzin/matchlink/internal/toasts"
)

type sentMessage struct {
	matchID  int64
	senderID int64
	content  string
}

type channelStub struct {
	mu        sync.Mutex
	handler   func(domain.Envelope)
	connects  int
	identity  realtime.Identity
	joined    []int64
	leaves    int
	sent      []sentMessage
	connected bool
}

func (c *channelStub) Connect(_ context.Context, identity realtime.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	c.identity = identity
	c.connected = true
	return nil
}

func (c *channelStub) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *channelStub) JoinConversation(matchID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined = append(c.joined, matchID)
}

func (c *channelStub) LeaveConversation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leaves++
}

func (c *channelStub) SendMessage(matchID, senderID int64, content, _ string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMessage{matchID: matchID, senderID: senderID, content: content})
	return "client-id"
}

func (c *channelStub) SendTyping(int64, bool) {}

func (c *channelStub) OnEvent(fn func(domain.Envelope)) *realtime.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = fn
	return realtime.NewSubscription(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.handler = nil
	})
}

func (c *channelStub) OnState(func(realtime.State)) *realtime.Subscription {
	return realtime.NewSubscription(func() {})
}

func (c *channelStub) OnOffline(func(error)) *realtime.Subscription {
	return realtime.NewSubscription(func() {})
}

func (c *channelStub) dispatch(t *testing.T, kind domain.EventKind, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal test event: %v", err)
	}
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler != nil {
		handler(domain.Envelope{Kind: kind, Raw: raw})
	}
}

type historyStub struct {
	page rest.MessagePage
	err  error
}

func (h historyStub) ListMessages(context.Context, int64, string, int) (rest.MessagePage, error) {
	return h.page, h.err
}

func testToken(t *testing.T, userID int64, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign test token: %v", err)
	}
	return signed
}

func newTestSession(t *testing.T, chann *channelStub, hist HistorySource, toastQ *toasts.Queue) *Session {
	t.Helper()
	token := testToken(t, 7, time.Now().Add(time.Hour))
	s, err := New(config.Default(), token, User{ID: 7, DisplayName: "Ivan"}, Dependencies{
		Channel: chann,
		History: hist,
		Toasts:  toastQ,
	}, nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return s
}

func messagePayload(id string, matchID, senderID int64) map[string]any {
	return map[string]any{
		"id":        id,
		"match_id":  matchID,
		"sender_id": senderID,
		"sent_at":   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Format(time.RFC3339),
		"content":   "hello",
	}
}

func TestNewRejectsBadTokens(t *testing.T) {
	chann := &channelStub{}

	tests := []struct {
		name  string
		token string
		user  User
	}{
		{name: "empty token", token: "", user: User{ID: 7}},
		{name: "garbage token", token: "not-a-jwt", user: User{ID: 7}},
		{name: "expired token", token: testToken(t, 7, time.Now().Add(-time.Hour)), user: User{ID: 7}},
		{name: "subject mismatch", token: testToken(t, 8, time.Now().Add(time.Hour)), user: User{ID: 7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(config.Default(), tt.token, tt.user, Dependencies{Channel: chann}, nil); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestConnectPassesIdentity(t *testing.T) {
	chann := &channelStub{}
	s := newTestSession(t, chann, nil, nil)
	defer s.Close()

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if chann.identity.UserID != 7 {
		t.Fatalf("unexpected identity user: %d", chann.identity.UserID)
	}
}

func TestOpenConversationSeedsHistoryAndJoins(t *testing.T) {
	chann := &channelStub{}
	hist := historyStub{page: rest.MessagePage{Items: []domain.MessageEvent{
		{ID: "h1", MatchID: 42, SenderID: 9, SentAt: time.Now().UTC(), Content: "old"},
		{ID: "h2", MatchID: 42, SenderID: 7, SentAt: time.Now().UTC(), Content: "older"},
	}}}
	s := newTestSession(t, chann, hist, nil)
	defer s.Close()

	conv, err := s.OpenConversation(context.Background(), 42)
	if err != nil {
		t.Fatalf("open conversation: %v", err)
	}
	if conv.Buffer.Len() != 2 {
		t.Fatalf("history not seeded: %d", conv.Buffer.Len())
	}
	if len(chann.joined) != 1 || chann.joined[0] != 42 {
		t.Fatalf("room not joined: %v", chann.joined)
	}

	// reopening returns the same handle
	again, err := s.OpenConversation(context.Background(), 42)
	if err != nil {
		t.Fatalf("reopen conversation: %v", err)
	}
	if again != conv {
		t.Fatal("reopen created a second conversation")
	}
}

func TestInboundMessageRoutedToOpenConversation(t *testing.T) {
	chann := &channelStub{}
	s := newTestSession(t, chann, nil, nil)
	defer s.Close()

	conv, err := s.OpenConversation(context.Background(), 42)
	if err != nil {
		t.Fatalf("open conversation: %v", err)
	}

	chann.dispatch(t, domain.EventKindMessage, messagePayload("m1", 42, 9))
	if conv.Buffer.Len() != 1 {
		t.Fatalf("message not routed: %d", conv.Buffer.Len())
	}

	// replay of the same event is absorbed
	chann.dispatch(t, domain.EventKindMessage, messagePayload("m1", 42, 9))
	if conv.Buffer.Len() != 1 {
		t.Fatalf("replay grew the buffer: %d", conv.Buffer.Len())
	}

	// message for a conversation with no open screen is ignored
	chann.dispatch(t, domain.EventKindMessage, messagePayload("m2", 99, 9))
	if conv.Buffer.Len() != 1 {
		t.Fatalf("foreign message leaked into buffer: %d", conv.Buffer.Len())
	}
}

func TestMalformedEventsAreDropped(t *testing.T) {
	chann := &channelStub{}
	s := newTestSession(t, chann, nil, nil)
	defer s.Close()

	conv, err := s.OpenConversation(context.Background(), 42)
	if err != nil {
		t.Fatalf("open conversation: %v", err)
	}

	chann.dispatch(t, domain.EventKindMessage, map[string]any{"match_id": 42})
	chann.dispatch(t, domain.EventKind("mystery"), map[string]any{"x": 1})

	if conv.Buffer.Len() != 0 {
		t.Fatalf("malformed event reached buffer: %d", conv.Buffer.Len())
	}
}

func TestNotificationBecomesToast(t *testing.T) {
	chann := &channelStub{}
	toastQ := toasts.NewQueue(time.Hour, nil)
	s := newTestSession(t, chann, nil, toastQ)
	defer s.Close()

	chann.dispatch(t, domain.EventKindNotification, map[string]any{
		"id":      "n1",
		"user_id": 7,
		"title":   "New like",
		"sent_at": time.Now().UTC().Format(time.RFC3339),
	})
	if len(toastQ.Visible()) != 1 {
		t.Fatalf("notification did not toast: %d", len(toastQ.Visible()))
	}

	// notification addressed to another user is dropped
	chann.dispatch(t, domain.EventKindNotification, map[string]any{
		"id":      "n2",
		"user_id": 8,
		"title":   "Not yours",
		"sent_at": time.Now().UTC().Format(time.RFC3339),
	})
	if len(toastQ.Visible()) != 1 {
		t.Fatalf("foreign notification toasted: %d", len(toastQ.Visible()))
	}
}

func TestTypingRoutedToRemoteTracker(t *testing.T) {
	chann := &channelStub{}
	s := newTestSession(t, chann, nil, nil)
	defer s.Close()

	conv, err := s.OpenConversation(context.Background(), 42)
	if err != nil {
		t.Fatalf("open conversation: %v", err)
	}

	chann.dispatch(t, domain.EventKindTyping, map[string]any{
		"match_id": 42, "user_id": 9, "is_typing": true,
	})
	if !conv.Remote.IsTyping(9) {
		t.Fatal("peer typing not tracked")
	}

	// own echo is ignored
	chann.dispatch(t, domain.EventKindTyping, map[string]any{
		"match_id": 42, "user_id": 7, "is_typing": true,
	})
	if conv.Remote.IsTyping(7) {
		t.Fatal("own typing echo tracked as peer")
	}

	chann.dispatch(t, domain.EventKindTyping, map[string]any{
		"match_id": 42, "user_id": 9, "is_typing": false,
	})
	if conv.Remote.IsTyping(9) {
		t.Fatal("typing(false) not applied")
	}
}

func TestCloseConversationLeavesActiveRoomOnly(t *testing.T) {
	chann := &channelStub{}
	s := newTestSession(t, chann, nil, nil)
	defer s.Close()

	if _, err := s.OpenConversation(context.Background(), 42); err != nil {
		t.Fatalf("open conversation: %v", err)
	}
	if _, err := s.OpenConversation(context.Background(), 43); err != nil {
		t.Fatalf("open conversation: %v", err)
	}

	// 42 is no longer the active room; closing it must not leave 43's room
	s.CloseConversation(42)
	if chann.leaves != 0 {
		t.Fatalf("closing a background conversation left the active room")
	}

	s.CloseConversation(43)
	if chann.leaves != 1 {
		t.Fatalf("active room not left: %d", chann.leaves)
	}
}

func TestSendUsesSessionUser(t *testing.T) {
	chann := &channelStub{}
	s := newTestSession(t, chann, nil, nil)
	defer s.Close()

	conv, err := s.OpenConversation(context.Background(), 42)
	if err != nil {
		t.Fatalf("open conversation: %v", err)
	}

	conv.Send("hello there")
	if len(chann.sent) != 1 {
		t.Fatalf("message not emitted: %d", len(chann.sent))
	}
	if chann.sent[0] != (sentMessage{matchID: 42, senderID: 7, content: "hello there"}) {
		t.Fatalf("unexpected emission: %+v", chann.sent[0])
	}
}

func TestCloseStopsEventRouting(t *testing.T) {
	chann := &channelStub{}
	toastQ := toasts.NewQueue(time.Hour, nil)
	s := newTestSession(t, chann, nil, toastQ)

	s.Close()
	if chann.connected {
		t.Fatal("close did not disconnect")
	}

	chann.dispatch(t, domain.EventKindNotification, map[string]any{
		"id":      "n1",
		"user_id": 7,
		"title":   "late",
		"sent_at": time.Now().UTC().Format(time.RFC3339),
	})
	if len(toastQ.Visible()) != 0 {
		t.Fatal("event routed after close")
	}

	// second close is a no-op
	s.Close()
}
