// Package pubsub provides the synchronous publish/subscribe channels the cart
// uses to notify UI surfaces. Each stream (snapshot, count, stock change) is
// its own Topic; delivery happens on the publisher's goroutine, in
// subscription order, before Publish returns.
package pubsub

import (
	"sync"
)

// Topic fans out values of type T to registered handlers.
// The zero value is ready to use.
type Topic[T any] struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[uint64]func(T)
	order    []uint64

	// last holds the most recent value for replay to late subscribers.
	last    T
	hasLast bool
	replay  bool
}

// NewReplayTopic returns a Topic that immediately delivers the most recently
// published value to each new subscriber (BehaviorSubject semantics).
// Used for state streams such as the snapshot and the count; event streams
// such as stock-change notifications use a plain Topic.
func NewReplayTopic[T any](initial T) *Topic[T] {
	return &Topic[T]{last: initial, hasLast: true, replay: true}
}

// Subscribe registers handler and returns the function that removes it.
// Calling the returned function more than once is harmless.
// Handlers must not publish to, or mutate state feeding, the same topic.
func (t *Topic[T]) Subscribe(handler func(T)) (unsubscribe func()) {
	t.mu.Lock()
	if t.handlers == nil {
		t.handlers = make(map[uint64]func(T))
	}
	id := t.nextID
	t.nextID++
	t.handlers[id] = handler
	t.order = append(t.order, id)
	last, replay := t.last, t.replay && t.hasLast
	t.mu.Unlock()

	if replay {
		handler(last)
	}

	var once sync.Once
	return func() {
		once.Do(func() { t.remove(id) })
	}
}

// Publish delivers v to every current subscriber.
func (t *Topic[T]) Publish(v T) {
	t.mu.Lock()
	if t.replay {
		t.last = v
		t.hasLast = true
	}
	handlers := make([]func(T), 0, len(t.order))
	for _, id := range t.order {
		handlers = append(handlers, t.handlers[id])
	}
	t.mu.Unlock()

	// Deliver outside the lock so handlers may subscribe/unsubscribe.
	for _, h := range handlers {
		h(v)
	}
}

// Len returns the number of active subscribers.
func (t *Topic[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.handlers)
}

func (t *Topic[T]) remove(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.handlers, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}
