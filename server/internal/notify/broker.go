package notify

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultBuffer is the per-subscriber channel depth.
const DefaultBuffer = 32

// Subscription is one live event stream for a monitor.
type Subscription struct {
	C <-chan Event

	ch     chan Event
	id     string
	broker *Broker
	once   sync.Once
}

// Close detaches the subscription. It is safe to call more than once and
// after the broker already dropped it.
func (s *Subscription) Close() {
	s.broker.remove(s)
}

// Broker multicasts events to the subscribers of each monitor.
type Broker struct {
	buffer int

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// NewBroker creates a Broker whose subscriptions buffer up to buffer events.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker{buffer: buffer, subs: make(map[string]map[*Subscription]struct{})}
}

// Subscribe opens a stream of events for monitorID.
func (b *Broker) Subscribe(monitorID string) *Subscription {
	ch := make(chan Event, b.buffer)
	s := &Subscription{C: ch, ch: ch, id: monitorID, broker: b}

	b.mu.Lock()
	set, ok := b.subs[monitorID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[monitorID] = set
	}
	set[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Publish delivers ev to every subscriber of ev.MonitorID without blocking.
// A subscriber whose buffer is full is dropped and its channel closed.
func (b *Broker) Publish(_ context.Context, ev Event) {
	b.mu.RLock()
	set := b.subs[ev.MonitorID]
	targets := make([]*Subscription, 0, len(set))
	for s := range set {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		if !b.send(s, ev) {
			slog.Warn("notify: subscriber too slow, dropping", "monitor", ev.MonitorID)
			b.remove(s)
		}
	}
}

// send delivers under the read lock so remove cannot close ch concurrently.
func (b *Broker) send(s *Subscription, ev Event) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.subs[s.id][s]; !ok {
		return true
	}
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

// CloseMonitor drops every subscriber of monitorID.
func (b *Broker) CloseMonitor(monitorID string) {
	b.mu.Lock()
	set := b.subs[monitorID]
	delete(b.subs, monitorID)
	b.mu.Unlock()
	for s := range set {
		s.once.Do(func() { close(s.ch) })
	}
}

// Count returns the number of subscribers of monitorID.
func (b *Broker) Count(monitorID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[monitorID])
}

// Close drops every subscriber.
func (b *Broker) Close() {
	b.mu.Lock()
	all := b.subs
	b.subs = make(map[string]map[*Subscription]struct{})
	b.mu.Unlock()
	for _, set := range all {
		for s := range set {
			s.once.Do(func() { close(s.ch) })
		}
	}
}

func (b *Broker) remove(s *Subscription) {
	b.mu.Lock()
	if set, ok := b.subs[s.id]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(b.subs, s.id)
		}
	}
	b.mu.Unlock()
	s.once.Do(func() { close(s.ch) })
}
