// Package toasts implements the transient notification fan-out queue. Items
// are created from inbound notification events, shown as toasts and
// destroyed after a fixed display duration or explicit dismissal. The queue
// is deliberately decoupled from the durable, REST-backed notification
// list; the two are eventually consistent, never transactionally linked.
package toasts

import (
	"sync"
	"time"

	"github.com/ivankudzin/matchlink/internal/domain"
	"github.com/ivankudzin/matchlink/internal/metrics"
)

// Item is an ephemeral toast. Never persisted.
type Item struct {
	ID        string
	Title     string
	Body      string
	CreatedAt time.Time
}

// Queue is a FIFO of visible toasts. The product currently renders one at a
// time, but the queue supports any depth. Safe for concurrent use.
type Queue struct {
	mu       sync.Mutex
	ttl      time.Duration
	items    []Item
	timers   map[string]*time.Timer
	onChange func([]Item)
	closed   bool
	now      func() time.Time
}

// NewQueue creates a queue whose items self-destruct after ttl. onChange,
// if non-nil, is invoked with the visible items after every mutation.
func NewQueue(ttl time.Duration, onChange func([]Item)) *Queue {
	if ttl <= 0 {
		ttl = 4 * time.Second
	}
	return &Queue{
		ttl:      ttl,
		timers:   make(map[string]*time.Timer),
		onChange: onChange,
		now:      time.Now,
	}
}

// Enqueue appends a toast for the notification event. Deduplicated by id
// against the currently visible queue only, so a backend retry cannot
// produce a second toast while the first is still displayed, while a later
// re-send of the same id (after expiry) shows again.
func (q *Queue) Enqueue(ev domain.NotificationEvent) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}

	for _, item := range q.items {
		if item.ID == ev.ID {
			q.mu.Unlock()
			metrics.ToastsTotal.WithLabelValues("duplicate").Inc()
			return false
		}
	}

	item := Item{
		ID:        ev.ID,
		Title:     ev.Title,
		Body:      ev.Body,
		CreatedAt: q.now(),
	}
	q.items = append(q.items, item)
	id := ev.ID
	q.timers[id] = time.AfterFunc(q.ttl, func() {
		if q.remove(id) {
			metrics.ToastsTotal.WithLabelValues("expired").Inc()
		}
	})
	visible := q.visibleLocked()
	onChange := q.onChange
	q.mu.Unlock()

	metrics.ToastsTotal.WithLabelValues("shown").Inc()
	if onChange != nil {
		onChange(visible)
	}
	return true
}

// Dismiss removes a toast before its timer fires.
func (q *Queue) Dismiss(id string) bool {
	if q.remove(id) {
		metrics.ToastsTotal.WithLabelValues("dismissed").Inc()
		return true
	}
	return false
}

// Visible returns the currently displayed toasts, oldest first.
func (q *Queue) Visible() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.visibleLocked()
}

// Close cancels all expiry timers and empties the queue.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, timer := range q.timers {
		timer.Stop()
		delete(q.timers, id)
	}
	q.items = nil
	q.closed = true
}

func (q *Queue) remove(id string) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}

	if timer, ok := q.timers[id]; ok {
		timer.Stop()
		delete(q.timers, id)
	}

	found := false
	for i, item := range q.items {
		if item.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			found = true
			break
		}
	}
	visible := q.visibleLocked()
	onChange := q.onChange
	q.mu.Unlock()

	if found && onChange != nil {
		onChange(visible)
	}
	return found
}

func (q *Queue) visibleLocked() []Item {
	out := make([]Item, len(q.items))
	copy(out, q.items)
	return out
}
