// Package session owns the per-login realtime state: one connection
// manager, the open conversation buffers and typing trackers, and the toast
// queue. It is the single place that routes inbound channel events to the
// component that consumes them.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/matchlink/internal/config"
	"github.com/ivankudzin/matchlink/internal/conversation"
	"github.com/ivankudzin/matchlink/internal/domain"
	"github.com/ivankudzin/matchlink/internal/metrics"
	"github.com/ivankudzin/matchlink/internal/realtime"
	"github.com/ivankudzin/matchlink/internal/rest"
	"github.com/ivankudzin/matchlink/internal/toasts"
)

// Channel is the slice of the connection manager the session consumes. The
// transport handle itself never crosses this boundary.
type Channel interface {
	Connect(ctx context.Context, identity realtime.Identity) error
	Disconnect()
	JoinConversation(matchID int64)
	LeaveConversation()
	SendMessage(matchID, senderID int64, content, messageType string) string
	SendTyping(matchID int64, isTyping bool)
	OnEvent(fn func(domain.Envelope)) *realtime.Subscription
	OnState(fn func(realtime.State)) *realtime.Subscription
	OnOffline(fn func(error)) *realtime.Subscription
}

// HistorySource seeds a conversation buffer with durable history on entry.
type HistorySource interface {
	ListMessages(ctx context.Context, matchID int64, cursor string, limit int) (rest.MessagePage, error)
}

// User is the minimal current-user record read from local storage at
// session start.
type User struct {
	ID          int64
	DisplayName string
}

type Dependencies struct {
	Channel Channel
	History HistorySource
	Toasts  *toasts.Queue
}

type Session struct {
	cfg    config.Config
	log    *zap.Logger
	user   User
	token  string
	chann  Channel
	hist   HistorySource
	toastQ *toasts.Queue

	eventSub *realtime.Subscription

	mu            sync.Mutex
	conversations map[int64]*Conversation
	lastJoined    int64
	closed        bool
}

// New validates the identity token against the user record and wires the
// event routing. The session does not connect yet; call Connect.
func New(cfg config.Config, token string, user User, deps Dependencies, log *zap.Logger) (*Session, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Channel == nil {
		return nil, fmt.Errorf("session channel is not configured")
	}

	tokenUserID, err := IdentityFromToken(token, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if user.ID <= 0 {
		user.ID = tokenUserID
	}
	if user.ID != tokenUserID {
		return nil, fmt.Errorf("token subject %d does not match user %d: %w", tokenUserID, user.ID, ErrTokenInvalid)
	}

	s := &Session{
		cfg:           cfg,
		log:           log,
		user:          user,
		token:         token,
		chann:         deps.Channel,
		hist:          deps.History,
		toastQ:        deps.Toasts,
		conversations: make(map[int64]*Conversation),
	}
	s.eventSub = deps.Channel.OnEvent(s.handleEvent)
	return s, nil
}

func (s *Session) User() User {
	return s.user
}

// Connect establishes the realtime channel for this session.
func (s *Session) Connect(ctx context.Context) error {
	return s.chann.Connect(ctx, realtime.Identity{Token: s.token, UserID: s.user.ID})
}

func (s *Session) OnState(fn func(realtime.State)) *realtime.Subscription {
	return s.chann.OnState(fn)
}

func (s *Session) OnOffline(fn func(error)) *realtime.Subscription {
	return s.chann.OnOffline(fn)
}

// OpenConversation joins the conversation room, seeds the buffer from the
// durable history and returns the conversation handle. Opening an already
// open conversation returns the existing handle.
func (s *Session) OpenConversation(ctx context.Context, matchID int64) (*Conversation, error) {
	if matchID <= 0 {
		return nil, fmt.Errorf("invalid match id")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("session is closed")
	}
	if existing, ok := s.conversations[matchID]; ok {
		s.mu.Unlock()
		return existing, nil
	}

	conv := &Conversation{
		MatchID: matchID,
		Buffer:  conversation.NewBuffer(),
		Remote:  conversation.NewRemoteTyping(s.cfg.Typing.RemoteExpiry),
		local:   conversation.NewLocalTyping(matchID, s.chann, s.cfg.Typing.IdleWindow),
		session: s,
	}
	s.conversations[matchID] = conv
	s.lastJoined = matchID
	s.mu.Unlock()

	if s.hist != nil {
		page, err := s.hist.ListMessages(ctx, matchID, "", s.cfg.REST.PageSize)
		if err != nil {
			// history is informational; the live channel still works
			s.log.Warn("seed conversation history failed",
				zap.Int64("match_id", matchID), zap.Error(err))
		} else {
			for _, msg := range page.Items {
				conv.Buffer.Ingest(msg)
			}
		}
	}

	s.chann.JoinConversation(matchID)
	return conv, nil
}

// CloseConversation tears down the conversation screen state: room left if
// still active, buffer cleared, typing timers canceled.
func (s *Session) CloseConversation(matchID int64) {
	s.mu.Lock()
	conv, ok := s.conversations[matchID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.conversations, matchID)
	wasActive := s.lastJoined == matchID
	if wasActive {
		s.lastJoined = 0
	}
	s.mu.Unlock()

	if wasActive {
		s.chann.LeaveConversation()
	}
	conv.teardown()
}

// Close tears the whole session down: listeners, conversations, toasts,
// transport. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	open := make([]*Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		open = append(open, conv)
	}
	s.conversations = make(map[int64]*Conversation)
	s.mu.Unlock()

	s.eventSub.Cancel()
	for _, conv := range open {
		conv.teardown()
	}
	if s.toastQ != nil {
		s.toastQ.Close()
	}
	s.chann.Disconnect()
}

func (s *Session) handleEvent(env domain.Envelope) {
	switch env.Kind {
	case domain.EventKindMessage:
		ev, err := domain.DecodeMessage(env.Raw)
		if err != nil {
			s.dropInvalid(env.Kind, err)
			return
		}
		s.mu.Lock()
		conv, ok := s.conversations[ev.MatchID]
		s.mu.Unlock()
		if !ok {
			// no open screen for this conversation; durable history will
			// deliver it on entry
			return
		}
		conv.Buffer.Ingest(ev)

	case domain.EventKindNotification:
		ev, err := domain.DecodeNotification(env.Raw)
		if err != nil {
			s.dropInvalid(env.Kind, err)
			return
		}
		if ev.UserID != 0 && ev.UserID != s.user.ID {
			s.dropInvalid(env.Kind, fmt.Errorf("notification for another user"))
			return
		}
		if s.toastQ != nil {
			s.toastQ.Enqueue(ev)
		}
		metrics.EventsTotal.WithLabelValues(string(env.Kind), "ingested").Inc()

	case domain.EventKindTyping:
		ev, err := domain.DecodeTyping(env.Raw)
		if err != nil {
			s.dropInvalid(env.Kind, err)
			return
		}
		if ev.UserID == s.user.ID {
			return
		}
		s.mu.Lock()
		conv, ok := s.conversations[ev.MatchID]
		s.mu.Unlock()
		if !ok {
			return
		}
		conv.Remote.Observe(ev)
		metrics.EventsTotal.WithLabelValues(string(env.Kind), "ingested").Inc()

	case domain.EventKindAck:
		if _, err := domain.DecodeAck(env.Raw); err != nil {
			s.dropInvalid(env.Kind, err)
		}

	default:
		s.dropInvalid(env.Kind, domain.ErrUnknownEvent)
	}
}

func (s *Session) dropInvalid(kind domain.EventKind, err error) {
	if kind == "" {
		kind = "unknown"
	}
	metrics.EventsTotal.WithLabelValues(string(kind), "invalid").Inc()
	s.log.Debug("drop inbound event", zap.String("kind", string(kind)), zap.Error(err))
}

// Conversation is the handle a conversation screen holds while open.
type Conversation struct {
	MatchID int64
	Buffer  *conversation.Buffer
	Remote  *conversation.RemoteTyping

	local   *conversation.LocalTyping
	session *Session
}

// Send emits the message on the channel, best-effort, and returns the
// client-generated message id. The backend echo lands in the buffer.
func (c *Conversation) Send(content string) string {
	return c.session.chann.SendMessage(c.MatchID, c.session.user.ID, content, "text")
}

// Keystroke feeds the debounced local typing state machine.
func (c *Conversation) Keystroke() {
	c.local.Keystroke()
}

// Blur forces the local typing state to idle, for focus loss and
// navigation away.
func (c *Conversation) Blur() {
	c.local.Blur()
}

func (c *Conversation) teardown() {
	c.local.Close()
	c.Remote.Close()
	c.Buffer.Reset()
}
