// Package conversation holds the per-conversation client state: the
// ordered, deduplicated message buffer and the typing presence tracker.
package conversation

import (
	"sync"

	"github.com/ivankudzin/matchlink/internal/domain"
	"github.com/ivankudzin/matchlink/internal/metrics"
)

// Buffer is the ordered message sequence for one open conversation.
// Arrival order is authoritative: the backend is the single ordering source
// for a conversation and client clocks are not trusted, so messages are
// appended in ingest order, never re-sorted by timestamp. Duplicates
// (reconnection replays, repeated pushes) are dropped by identity.
type Buffer struct {
	mu       sync.Mutex
	messages []domain.MessageEvent
	seen     map[domain.EventKey]struct{}
}

func NewBuffer() *Buffer {
	return &Buffer{
		seen: make(map[domain.EventKey]struct{}),
	}
}

// Ingest appends the message unless its identity key is already present.
// Returns false for silently absorbed duplicates. Idempotent: ingesting the
// same event twice leaves the buffer identical to ingesting it once.
func (b *Buffer) Ingest(ev domain.MessageEvent) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := ev.Key()
	if _, ok := b.seen[key]; ok {
		metrics.EventsTotal.WithLabelValues(string(domain.EventKindMessage), "duplicate").Inc()
		return false
	}
	b.seen[key] = struct{}{}
	b.messages = append(b.messages, ev)
	metrics.EventsTotal.WithLabelValues(string(domain.EventKindMessage), "ingested").Inc()
	return true
}

// Messages returns a copy of the buffered sequence in arrival order.
func (b *Buffer) Messages() []domain.MessageEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.MessageEvent, len(b.messages))
	copy(out, b.messages)
	return out
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}

// Reset clears the buffer on conversation screen teardown. Durable history
// comes from the REST message-history fetch on re-entry.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = nil
	b.seen = make(map[domain.EventKey]struct{})
}
