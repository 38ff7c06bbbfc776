package realtime

import (
	"sync"

	"github.com/ivankudzin/matchlink/internal/domain"
)

// Subscription is the handle returned by the On* registration methods.
// Cancel removes the listener; it is safe to call more than once. Every
// subscriber must cancel on teardown so repeated screen entry/exit does not
// leak listeners.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// NewSubscription wraps a cancel func in a handle. Exposed for consumers
// that adapt other listener registries to the same teardown contract.
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

type dispatcher struct {
	mu          sync.Mutex
	nextID      int
	eventSubs   map[int]func(domain.Envelope)
	stateSubs   map[int]func(State)
	offlineSubs map[int]func(error)
}

func newDispatcher() *dispatcher {
	return &dispatcher{
		eventSubs:   make(map[int]func(domain.Envelope)),
		stateSubs:   make(map[int]func(State)),
		offlineSubs: make(map[int]func(error)),
	}
}

func (d *dispatcher) onEvent(fn func(domain.Envelope)) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.eventSubs[id] = fn
	return &Subscription{cancel: func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.eventSubs, id)
	}}
}

func (d *dispatcher) onState(fn func(State)) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.stateSubs[id] = fn
	return &Subscription{cancel: func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.stateSubs, id)
	}}
}

func (d *dispatcher) onOffline(fn func(error)) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.offlineSubs[id] = fn
	return &Subscription{cancel: func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.offlineSubs, id)
	}}
}

func (d *dispatcher) notifyEvent(env domain.Envelope) {
	for _, fn := range d.snapshotEvent() {
		fn(env)
	}
}

func (d *dispatcher) notifyState(state State) {
	for _, fn := range d.snapshotState() {
		fn(state)
	}
}

func (d *dispatcher) notifyOffline(err error) {
	for _, fn := range d.snapshotOffline() {
		fn(err)
	}
}

func (d *dispatcher) snapshotEvent() []func(domain.Envelope) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]func(domain.Envelope), 0, len(d.eventSubs))
	for _, fn := range d.eventSubs {
		out = append(out, fn)
	}
	return out
}

func (d *dispatcher) snapshotState() []func(State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]func(State), 0, len(d.stateSubs))
	for _, fn := range d.stateSubs {
		out = append(out, fn)
	}
	return out
}

func (d *dispatcher) snapshotOffline() []func(error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]func(error), 0, len(d.offlineSubs))
	for _, fn := range d.offlineSubs {
		out = append(out, fn)
	}
	return out
}
