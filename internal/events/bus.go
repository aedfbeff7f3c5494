// Package events provides a typed in-process publish/subscribe bus.
package events

import (
	"sync"
)

// Handler receives a published value. Returning false unsubscribes it.
type Handler[T any] func(msg T) bool

type subscriber[T any] struct {
	name string
	fn   Handler[T]
}

// Bus fans each published value out to named subscribers in the order they
// subscribed. Delivery is synchronous on the publishing goroutine.
type Bus[T any] struct {
	mu   sync.RWMutex
	subs []subscriber[T]
}

// New creates an empty bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{}
}

// Subscribe registers fn under name, replacing any subscriber with the same name.
func (b *Bus[T]) Subscribe(name string, fn Handler[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.subs {
		if b.subs[i].name == name {
			b.subs[i].fn = fn
			return
		}
	}
	b.subs = append(b.subs, subscriber[T]{name: name, fn: fn})
}

// Unsubscribe removes the named subscriber and reports whether it existed.
func (b *Bus[T]) Unsubscribe(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.subs {
		if b.subs[i].name == name {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Publish delivers msg to every subscriber.
func (b *Bus[T]) Publish(msg T) {
	if b == nil {
		return
	}

	b.mu.RLock()
	subs := make([]subscriber[T], len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		if !s.fn(msg) {
			b.Unsubscribe(s.name)
		}
	}
}

// Len returns the number of subscribers.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
