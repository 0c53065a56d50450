package runtime

import (
	"budget-chat/contract"
	"budget-chat/domain/event"
	"budget-chat/errors"
	"budget-chat/observability"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

const DefaultBusCapacity = 32

// Bus broadcasts room events to every subscriber.
//
// Publication is serialized, so all subscribers observe the same relative order.
// Each subscriber owns a bounded queue. When a queue is full the oldest unread
// event of that subscriber is dropped: a lagging session skips history rather
// than stalling the room. Publish never blocks on a consumer.
type Bus struct {
	mu       sync.Mutex
	log      *slog.Logger
	stats    *observability.RoomStats
	capacity int
	subs     map[*Subscription]struct{}
	closed   bool
}

func NewBus(log *slog.Logger, capacity int, stats *observability.RoomStats) *Bus {
	if capacity <= 0 {
		capacity = DefaultBusCapacity
	}
	return &Bus{
		log:      log,
		stats:    stats,
		capacity: capacity,
		subs:     make(map[*Subscription]struct{}),
	}
}

// Publish appends e to every current subscriber queue.
func (b *Bus) Publish(e event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for sub := range b.subs {
		if sub.deliver(e) {
			b.stats.EventDropped()
			b.log.Debug("Subscriber lagging, oldest event dropped",
				"dropped", sub.Dropped(), "capacity", b.capacity)
		}
	}
}

// Subscribe registers a subscriber receiving events published from now on.
// After Close, the returned subscription is already closed.
func (b *Bus) Subscribe() contract.ISubscription {
	sub := &Subscription{bus: b, ch: make(chan event.Event, b.capacity)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.closed = true
		close(sub.ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Subscribers returns the number of registered subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscription. Later publications are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		sub.closed = true
		close(sub.ch)
	}
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub.closed {
		return
	}
	delete(b.subs, sub)
	sub.closed = true
	close(sub.ch)
}

// Subscription is one consumer cursor. It must not be shared between sessions.
type Subscription struct {
	bus     *Bus
	ch      chan event.Event
	dropped atomic.Uint64
	closed  bool // guarded by bus.mu
}

// deliver is called with bus.mu held, which makes the publisher the only sender.
// It reports whether an older event had to be discarded.
func (s *Subscription) deliver(e event.Event) bool {
	select {
	case s.ch <- e:
		return false
	default:
	}

	dropped := false
	select {
	case <-s.ch:
		s.dropped.Add(1)
		dropped = true
	default:
		// The consumer drained the queue in between.
	}
	s.ch <- e
	return dropped
}

func (s *Subscription) Events() <-chan event.Event {
	return s.ch
}

// Next blocks until the next event is available.
func (s *Subscription) Next(ctx context.Context) (event.Event, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case e, ok := <-s.ch:
		if !ok {
			return nil, errors.ErrSubscriptionClosed
		}
		return e, nil
	}
}

// Dropped counts events skipped because this subscriber lagged behind.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}
