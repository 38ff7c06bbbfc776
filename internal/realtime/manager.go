// Package realtime owns the single persistent channel to the realtime
// backend: connect/auth/reconnect/teardown, room membership and best-effort
// outbound emission. The transport handle never leaves this package;
// consumers interact through Emit/JoinConversation/Disconnect and the
// subscription API.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ivankudzin/matchlink/internal/config"
	"github.com/ivankudzin/matchlink/internal/domain"
	"github.com/ivankudzin/matchlink/internal/metrics"
)

const (
	maxMessageSize = 4096
	sendQueueSize  = 64
)

var (
	ErrValidation       = errors.New("validation error")
	ErrAuthentication   = errors.New("authentication failed")
	ErrRetriesExhausted = errors.New("reconnect retries exhausted")
)

// Identity is the minimal identity record required before connecting.
type Identity struct {
	Token  string
	UserID int64
}

type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Manager owns zero-or-one live transport per session. All exported methods
// are safe for concurrent use.
type Manager struct {
	cfg  config.RealtimeConfig
	log  *zap.Logger
	subs *dispatcher

	mu          sync.Mutex
	state       State
	conn        *websocket.Conn
	send        chan []byte
	stop        chan struct{}
	identity    Identity
	activeMatch int64
	retries     int
	retryTimer  *time.Timer
	epoch       uint64
	closed      bool
	ctx         context.Context
}

func NewManager(cfg config.RealtimeConfig, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		cfg:    cfg,
		log:    log,
		subs:   newDispatcher(),
		state:  StateDisconnected,
		closed: true,
		ctx:    context.Background(),
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnEvent registers a listener for inbound envelopes. Listeners run on the
// read loop goroutine and must not block.
func (m *Manager) OnEvent(fn func(domain.Envelope)) *Subscription {
	return m.subs.onEvent(fn)
}

func (m *Manager) OnState(fn func(State)) *Subscription {
	return m.subs.onState(fn)
}

// OnOffline registers a listener for the single terminal signal of a connect
// cycle: authentication failure or exhausted retries. Per-attempt transport
// errors are not surfaced.
func (m *Manager) OnOffline(fn func(error)) *Subscription {
	return m.subs.onOffline(fn)
}

// Connect tears down any previous transport and starts a new connect cycle.
// Transport-level failures are not returned; they are logged and retried
// with backoff. Authentication failures are returned and terminate the
// cycle.
func (m *Manager) Connect(ctx context.Context, identity Identity) error {
	if identity.Token == "" || identity.UserID <= 0 {
		return fmt.Errorf("incomplete identity: %w", ErrValidation)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	m.mu.Lock()
	m.teardownLocked()
	m.closed = false
	m.identity = identity
	m.retries = 0
	m.ctx = ctx
	m.setStateLocked(StateConnecting)
	epoch := m.epoch
	m.mu.Unlock()
	m.subs.notifyState(StateConnecting)

	return m.dial(epoch)
}

// Disconnect is an explicit, idempotent teardown. It cancels any pending
// retry and is reachable from every state.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	wasDisconnected := m.state == StateDisconnected && m.closed
	m.teardownLocked()
	m.mu.Unlock()
	if !wasDisconnected {
		m.subs.notifyState(StateDisconnected)
	}
}

// JoinConversation joins the room for matchID, leaving the previously
// joined conversation room first. At most one conversation room is active
// at a time. The active room is remembered and rejoined after reconnects.
func (m *Manager) JoinConversation(matchID int64) {
	if matchID <= 0 {
		return
	}

	m.mu.Lock()
	previous := m.activeMatch
	m.activeMatch = matchID
	m.mu.Unlock()

	if previous != 0 && previous != matchID {
		m.Emit("leave-room", map[string]any{"room": matchRoom(previous)})
	}
	m.Emit("join-room", map[string]any{"room": matchRoom(matchID)})
}

// LeaveConversation leaves the active conversation room, if any.
func (m *Manager) LeaveConversation() {
	m.mu.Lock()
	previous := m.activeMatch
	m.activeMatch = 0
	m.mu.Unlock()

	if previous != 0 {
		m.Emit("leave-room", map[string]any{"room": matchRoom(previous)})
	}
}

// Emit sends an event on the channel, fire-and-forget. When the transport
// is not connected the event is dropped, not queued; durable actions must
// go through the REST layer instead.
func (m *Manager) Emit(event string, data any) {
	m.mu.Lock()
	connected := m.state == StateConnected && m.send != nil
	ch := m.send
	m.mu.Unlock()

	if !connected {
		metrics.EmitsTotal.WithLabelValues(event, "dropped").Inc()
		m.log.Debug("emit dropped, not connected", zap.String("event", event))
		return
	}

	payload, err := json.Marshal(outboundFrame{Event: event, Data: data})
	if err != nil {
		metrics.EmitsTotal.WithLabelValues(event, "dropped").Inc()
		m.log.Warn("marshal outbound frame", zap.String("event", event), zap.Error(err))
		return
	}

	select {
	case ch <- payload:
		metrics.EmitsTotal.WithLabelValues(event, "sent").Inc()
	default:
		metrics.EmitsTotal.WithLabelValues(event, "dropped").Inc()
		m.log.Warn("emit dropped, send queue full", zap.String("event", event))
	}
}

func (m *Manager) dial(epoch uint64) error {
	m.mu.Lock()
	if m.closed || epoch != m.epoch {
		m.mu.Unlock()
		return nil
	}
	ctx := m.ctx
	identity := m.identity
	m.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: m.cfg.HandshakeTimeout}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+identity.Token)

	conn, resp, err := dialer.DialContext(ctx, m.cfg.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			m.log.Error("realtime authentication rejected", zap.Int("status", resp.StatusCode))
			m.failTerminal(ErrAuthentication)
			return ErrAuthentication
		}
		m.log.Warn("realtime connect failed", zap.Error(err))
		metrics.ReconnectsTotal.WithLabelValues("failure").Inc()
		m.scheduleRetry(epoch)
		return nil
	}

	m.mu.Lock()
	if m.closed || epoch != m.epoch {
		m.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	m.conn = conn
	m.send = make(chan []byte, sendQueueSize)
	m.stop = make(chan struct{})
	m.retries = 0
	m.setStateLocked(StateConnected)
	send, stop := m.send, m.stop
	activeMatch := m.activeMatch
	m.mu.Unlock()

	metrics.ReconnectsTotal.WithLabelValues("success").Inc()
	m.subs.notifyState(StateConnected)

	go m.readLoop(conn, epoch)
	go m.writeLoop(conn, send, stop)

	m.Emit("join-room", map[string]any{"room": personalRoom(identity.UserID)})
	if activeMatch != 0 {
		m.Emit("join-room", map[string]any{"room": matchRoom(activeMatch)})
	}

	return nil
}

func (m *Manager) readLoop(conn *websocket.Conn, epoch uint64) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(m.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(m.cfg.PongTimeout))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.log.Warn("realtime read failed", zap.Error(err))
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(m.cfg.PongTimeout))

		var env domain.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			metrics.EventsTotal.WithLabelValues("unknown", "invalid").Inc()
			m.log.Debug("drop malformed inbound frame", zap.Error(err))
			continue
		}
		m.subs.notifyEvent(env)
	}

	m.transportLost(epoch)
}

func (m *Manager) writeLoop(conn *websocket.Conn, send <-chan []byte, stop <-chan struct{}) {
	pingInterval := m.cfg.PongTimeout * 9 / 10
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case payload := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				m.log.Warn("realtime write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

// transportLost handles an unexpected transport failure for the given
// connection epoch. Stale epochs (already torn down or replaced) are
// ignored.
func (m *Manager) transportLost(epoch uint64) {
	m.mu.Lock()
	if m.closed || epoch != m.epoch {
		m.mu.Unlock()
		return
	}
	m.closeTransportLocked()
	m.mu.Unlock()

	m.scheduleRetry(epoch)
}

func (m *Manager) scheduleRetry(epoch uint64) {
	m.mu.Lock()
	if m.closed || epoch != m.epoch {
		m.mu.Unlock()
		return
	}

	m.retries++
	if m.cfg.MaxRetries > 0 && m.retries > m.cfg.MaxRetries {
		m.setStateLocked(StateDisconnected)
		m.closed = true
		m.mu.Unlock()
		metrics.ReconnectsTotal.WithLabelValues("exhausted").Inc()
		m.log.Error("realtime reconnect retries exhausted", zap.Int("attempts", m.cfg.MaxRetries))
		m.subs.notifyState(StateDisconnected)
		m.subs.notifyOffline(ErrRetriesExhausted)
		return
	}

	delay := m.backoff(m.retries)
	m.setStateLocked(StateReconnecting)
	m.retryTimer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		if m.closed || epoch != m.epoch {
			m.mu.Unlock()
			return
		}
		m.setStateLocked(StateConnecting)
		m.mu.Unlock()
		m.subs.notifyState(StateConnecting)
		_ = m.dial(epoch)
	})
	attempt := m.retries
	m.mu.Unlock()

	m.subs.notifyState(StateReconnecting)
	m.log.Info("realtime reconnect scheduled",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay))
}

func (m *Manager) backoff(attempt int) time.Duration {
	base := m.cfg.BackoffBase
	if base <= 0 {
		base = time.Second
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if m.cfg.BackoffMax > 0 && delay >= m.cfg.BackoffMax {
			return m.cfg.BackoffMax
		}
	}
	if m.cfg.BackoffMax > 0 && delay > m.cfg.BackoffMax {
		delay = m.cfg.BackoffMax
	}
	return delay
}

func (m *Manager) failTerminal(err error) {
	m.mu.Lock()
	m.teardownLocked()
	m.mu.Unlock()
	m.subs.notifyState(StateDisconnected)
	m.subs.notifyOffline(err)
}

// teardownLocked cancels the retry timer, closes the transport and marks
// the manager closed. Callers hold m.mu.
func (m *Manager) teardownLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	m.closeTransportLocked()
	m.epoch++
	m.closed = true
	m.retries = 0
	m.setStateLocked(StateDisconnected)
}

func (m *Manager) closeTransportLocked() {
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.send = nil
}

func (m *Manager) setStateLocked(state State) {
	m.state = state
	metrics.ConnectionState.Set(stateGaugeValue(state))
}

func personalRoom(userID int64) string {
	return fmt.Sprintf("user_%d", userID)
}

func matchRoom(matchID int64) string {
	return fmt.Sprintf("match_%d", matchID)
}
