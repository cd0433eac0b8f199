package audio

import (
	"sync"
	"sync/atomic"
)

// DropHook is invoked (synchronously, on the publisher goroutine) each time a
// subscriber sheds a frame. It must not block.
type DropHook func(subscriber string)

// Subscription is one consumer's view of a [FrameBus]. Frames arrive on C in
// strict ascending Seq order; when the consumer falls behind the bus sheds
// the oldest buffered frame rather than blocking the publisher.
type Subscription struct {
	// C delivers frames. Closed by Unsubscribe or FrameBus.Close.
	C <-chan AudioFrame

	name   string
	ch     chan AudioFrame
	drops  atomic.Uint64
	paused atomic.Bool
}

// Name returns the subscriber name given to Subscribe.
func (s *Subscription) Name() string { return s.name }

// Drops returns the number of frames shed for this subscriber so far.
func (s *Subscription) Drops() uint64 { return s.drops.Load() }

// Pause stops delivery to this subscription without tearing it down. Frames
// published while paused are discarded silently (not counted as drops).
// Used to gate wake detection while a session is active.
func (s *Subscription) Pause() { s.paused.Store(true) }

// Resume re-enables delivery after a Pause.
func (s *Subscription) Resume() { s.paused.Store(false) }

// Drain discards everything currently buffered and reports how many frames
// were thrown away. Call while paused: draining a live subscription only
// empties what was buffered at call time.
func (s *Subscription) Drain() int {
	n := 0
	for {
		select {
		case _, ok := <-s.ch:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}

// FrameBus fans captured frames out to independent subscribers. There is a
// single publisher (the capture pump) and any number of subscribers, each
// with its own bounded buffer. Publish never blocks: a full subscriber
// buffer sheds its oldest frame to make room, so slow consumers lag but the
// capture path keeps real-time pace.
type FrameBus struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool

	dropHook DropHook
}

// BusOption configures a [FrameBus].
type BusOption func(*FrameBus)

// WithDropHook registers a callback fired on each shed frame, used to feed
// the frame-drop counter metric.
func WithDropHook(hook DropHook) BusOption {
	return func(b *FrameBus) { b.dropHook = hook }
}

// NewFrameBus creates an empty bus ready for subscribers.
func NewFrameBus(opts ...BusOption) *FrameBus {
	b := &FrameBus{subs: make(map[string]*Subscription)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a named consumer with the given buffer capacity.
// capacity must be >= 1; smaller values are raised to 1. Subscribing a name
// that already exists replaces (and closes) the previous subscription.
func (b *FrameBus) Subscribe(name string, capacity int) *Subscription {
	if capacity < 1 {
		capacity = 1
	}
	ch := make(chan AudioFrame, capacity)
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

// Unsubscribe removes a consumer and closes its channel. Unknown names are
// a no-op.
func (b *FrameBus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[name]; ok {
		delete(b.subs, name)
		close(sub.ch)
	}
}

// Publish delivers a frame to every active subscriber. It never blocks: if a
// subscriber's buffer is full, the oldest buffered frame is shed, the drop
// counter incremented, and the new frame enqueued. Call only from the single
// capture pump goroutine.
func (b *FrameBus) Publish(frame AudioFrame) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if sub.paused.Load() {
			continue
		}
		select {
		case sub.ch <- frame:
			continue
		default:
		}
		// Buffer full: shed the oldest frame to keep the newest.
		select {
		case <-sub.ch:
			sub.drops.Add(1)
			if b.dropHook != nil {
				b.dropHook(sub.name)
			}
		default:
		}
		select {
		case sub.ch <- frame:
		default:
			// Lost a race with the consumer; frame dropped entirely.
			sub.drops.Add(1)
			if b.dropHook != nil {
				b.dropHook(sub.name)
			}
		}
	}
}

// Close closes every subscriber channel and rejects further publishes.
func (b *FrameBus) Close() {
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
