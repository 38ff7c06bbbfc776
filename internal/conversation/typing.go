package conversation

import (
	"sort"
	"sync"
	"time"

	"github.com/ivankudzin/matchlink/internal/domain"
	"github.com/ivankudzin/matchlink/internal/metrics"
)

// TypingEmitter is the slice of the connection manager the local tracker
// needs. Emission is best-effort.
type TypingEmitter interface {
	SendTyping(matchID int64, isTyping bool)
}

// LocalTyping debounces local keystrokes into at most one typing(true) per
// burst and one typing(false) after the inactivity window. One instance per
// conversation; a single timer, never concurrent timers for the same
// conversation.
type LocalTyping struct {
	mu      sync.Mutex
	matchID int64
	emitter TypingEmitter
	window  time.Duration
	timer   *time.Timer
	gen     uint64
	typing  bool
	closed  bool
}

func NewLocalTyping(matchID int64, emitter TypingEmitter, window time.Duration) *LocalTyping {
	if window <= 0 {
		window = 1500 * time.Millisecond
	}
	return &LocalTyping{
		matchID: matchID,
		emitter: emitter,
		window:  window,
	}
}

// Keystroke records typing activity. The first keystroke of a burst emits
// typing(true) immediately; later keystrokes only reset the inactivity
// timer.
func (t *LocalTyping) Keystroke() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(t.window, func() { t.expire(gen) })

	if !t.typing {
		t.typing = true
		t.emitter.SendTyping(t.matchID, true)
	}
}

// Blur forces an immediate transition to idle, cancels the pending timer
// and emits typing(false) if a burst was active. Called on focus loss and
// navigation away so no stale typing state leaks.
func (t *LocalTyping) Blur() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Close tears the tracker down. Behaves like Blur and rejects any further
// keystrokes; a timer firing after Close is a no-op.
func (t *LocalTyping) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.closed = true
}

func (t *LocalTyping) expire(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	// A timer that fired but lost the lock race to a Keystroke is stale.
	if t.closed || !t.typing || gen != t.gen {
		return
	}
	t.typing = false
	t.timer = nil
	t.emitter.SendTyping(t.matchID, false)
}

func (t *LocalTyping) stopLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.typing {
		t.typing = false
		t.emitter.SendTyping(t.matchID, false)
	}
}

// RemoteTyping aggregates inbound typing events for one conversation into
// the set of peers currently typing. Every typing(true) arms a safety
// expiry, longer than the sender's emit window, that removes the peer even
// if the matching typing(false) is lost.
type RemoteTyping struct {
	mu     sync.Mutex
	expiry time.Duration
	peers  map[int64]*remotePeer
	closed bool
	now    func() time.Time
}

type remotePeer struct {
	lastSeen time.Time
	timer    *time.Timer
}

func NewRemoteTyping(expiry time.Duration) *RemoteTyping {
	if expiry <= 0 {
		expiry = 5 * time.Second
	}
	return &RemoteTyping{
		expiry: expiry,
		peers:  make(map[int64]*remotePeer),
		now:    time.Now,
	}
}

// Observe applies one inbound typing event. Duplicate true events refresh
// the expiry; false events remove the peer immediately.
func (r *RemoteTyping) Observe(ev domain.TypingEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	if !ev.IsTyping {
		r.removeLocked(ev.UserID)
		return
	}

	peer, ok := r.peers[ev.UserID]
	if !ok {
		peer = &remotePeer{}
		r.peers[ev.UserID] = peer
		metrics.TypingPeers.Inc()
	}
	peer.lastSeen = r.now()
	if peer.timer != nil {
		peer.timer.Stop()
	}
	userID := ev.UserID
	peer.timer = time.AfterFunc(r.expiry, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			return
		}
		// A refresh may have re-armed the peer while this callback waited
		// on the lock; a fresh lastSeen means the removal is stale.
		cur, ok := r.peers[userID]
		if !ok || r.now().Sub(cur.lastSeen) < r.expiry {
			return
		}
		r.removeLocked(userID)
	})
}

// Peers returns the ids currently flagged typing, sorted for stable output.
func (r *RemoteTyping) Peers() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, 0, len(r.peers))
	for id := range r.peers {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *RemoteTyping) IsTyping(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.peers[userID]
	return ok
}

// Close cancels all expiry timers and empties the set.
func (r *RemoteTyping) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.peers {
		r.removeLocked(id)
	}
	r.closed = true
}

func (r *RemoteTyping) removeLocked(userID int64) {
	peer, ok := r.peers[userID]
	if !ok {
		return
	}
	if peer.timer != nil {
		peer.timer.Stop()
	}
	delete(r.peers, userID)
	metrics.TypingPeers.Dec()
}
