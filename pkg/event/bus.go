package event

import (
	"sync"
	"sync/atomic"
	"time"
)

// Subscription is one consumer's ordered view of the event stream.
type Subscription struct {
	// C delivers events in publish order. Closed on Unsubscribe or
	// Bus.Close.
	C <-chan Event

	name  string
	ch    chan Event
	drops atomic.Uint64
}

// Name returns the subscriber name given to Subscribe.
func (s *Subscription) Name() string { return s.name }

// Drops returns the number of events shed for this subscriber.
func (s *Subscription) Drops() uint64 { return s.drops.Load() }

// Bus fans session events out to any number of subscribers, each with an
// independent bounded buffer. Publish never blocks the session driver: a
// subscriber that falls behind sheds its oldest buffered event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]*Subscription)}
}

// Subscribe registers a named consumer. capacity < 1 is raised to 1.
// Re-subscribing an existing name replaces (and closes) the previous
// subscription.
func (b *Bus) Subscribe(name string, capacity int) *Subscription {
	if capacity < 1 {
		capacity = 1
	}
	ch := make(chan Event, capacity)
	sub := &Subscription{C: ch, name: name, ch: ch}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return sub
	}
	if prev, ok := b.subs[name]; ok {
		close(prev.ch)
	}
	b.subs[name] = sub
	return sub
}

// Unsubscribe removes a consumer and closes its channel.
func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[name]; ok {
		delete(b.subs, name)
		close(sub.ch)
	}
}

// Publish appends an event to every subscriber's stream. An unset At field
// is stamped with the current time. Publish never blocks; a full subscriber
// sheds its oldest event to make room.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
			continue
		default:
		}
		select {
		case <-sub.ch:
			sub.drops.Add(1)
		default:
		}
		select {
		case sub.ch <- ev:
		default:
			sub.drops.Add(1)
		}
	}
}

// SubscriberCount reports the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes all subscriber channels and rejects further publishes.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for name, sub := range b.subs {
		delete(b.subs, name)
		close(sub.ch)
	}
}
