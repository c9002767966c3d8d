package store

import (
	"sync"
)

// Hub fans full collection snapshots out to registered subscribers.
//
// Each subscriber gets its own delivery goroutine so a slow consumer
// cannot block the store. Deliveries within one subscription happen in
// order; when changes outpace the consumer, intermediate snapshots are
// coalesced into the latest one (snapshots are full, so nothing is
// lost). Fail delivers a terminal error at most once and then removes
// the subscriber.
type Hub[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*hubSub[T]
	closed bool
}

type hubSub[T any] struct {
	pending  chan T
	fail     chan error
	done     chan struct{}
	doneOnce sync.Once

	// deliverMu is held around every callback invocation; Unsubscribe
	// acquires it after closing done, so once Unsubscribe returns no
	// callback is running or will run.
	deliverMu sync.Mutex
}

func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[int]*hubSub[T])}
}

// Subscribe registers a subscriber and immediately schedules delivery
// of the initial snapshot. The returned Unsubscribe is idempotent.
func (h *Hub[T]) Subscribe(initial T, onChange func(T), onErr func(error)) Unsubscribe {
	sub := &hubSub[T]{
		pending: make(chan T, 1),
		fail:    make(chan error, 1),
		done:    make(chan struct{}),
	}
	sub.pending <- initial

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	h.mu.Unlock()

	go func() {
		for {
			select {
			case <-sub.done:
				return
			case snap := <-sub.pending:
				if !sub.deliver(func() { onChange(snap) }) {
					return
				}
			case err := <-sub.fail:
				if onErr != nil {
					sub.deliver(func() { onErr(err) })
				}
				return
			}
		}
	}()

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
		sub.doneOnce.Do(func() { close(sub.done) })
		// Barrier: wait out any callback already in flight.
		sub.deliverMu.Lock()
		defer sub.deliverMu.Unlock()
	}
}

// deliver runs the callback unless the subscription was torn down after
// the select already picked this branch. Returns false once done is
// closed.
func (s *hubSub[T]) deliver(fn func()) bool {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	select {
	case <-s.done:
		return false
	default:
	}
	fn()
	return true
}

// Publish queues a snapshot for every subscriber, replacing any not yet
// consumed one.
func (h *Hub[T]) Publish(snapshot T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		select {
		case <-sub.pending:
		default:
		}
		sub.pending <- snapshot
	}
}

// Fail terminates every active subscription with err.
func (h *Hub[T]) Fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		select {
		case sub.fail <- err:
		default:
		}
		delete(h.subs, id)
	}
}

// Close tears down all subscriptions without delivering an error.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, sub := range h.subs {
		sub.doneOnce.Do(func() { close(sub.done) })
		delete(h.subs, id)
	}
}

// Len reports the number of active subscribers.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
