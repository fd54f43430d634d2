// Package events dispatches tagged events to subscribers.
package events

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Subscription identifies a handler registered with On or Once.
type Subscription uint64

var nextSubscription atomic.Uint64

type handler[T any] struct {
	id   Subscription
	fn   func(T)
	once bool
}

// Emitter calls the handlers registered for a tag, in registration order.
// It is safe for concurrent use; handlers run on the emitting goroutine
// without any emitter lock held.
type Emitter[T any] struct {
	mu       sync.Mutex
	handlers map[string][]handler[T]
}

func (e *Emitter[T]) On(tag string, fn func(T)) Subscription {
	return e.add(tag, fn, false)
}

// Once registers fn for the next emission of tag only.
func (e *Emitter[T]) Once(tag string, fn func(T)) Subscription {
	return e.add(tag, fn, true)
}

func (e *Emitter[T]) add(tag string, fn func(T), once bool) Subscription {
	id := Subscription(nextSubscription.Add(1))
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers == nil {
		e.handlers = map[string][]handler[T]{}
	}
	e.handlers[tag] = append(e.handlers[tag], handler[T]{id: id, fn: fn, once: once})
	return id
}

// Off removes the handler s from tag and reports whether it was present.
func (e *Emitter[T]) Off(tag string, s Subscription) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remove(tag, s)
}

func (e *Emitter[T]) remove(tag string, s Subscription) bool {
	hs := e.handlers[tag]
	i := slices.IndexFunc(hs, func(h handler[T]) bool { return h.id == s })
	if i < 0 {
		return false
	}
	hs = slices.Delete(slices.Clone(hs), i, i+1)
	if len(hs) == 0 {
		delete(e.handlers, tag)
	} else {
		e.handlers[tag] = hs
	}
	return true
}

// Emit calls the handlers of tag with v and reports whether there were
// any.
func (e *Emitter[T]) Emit(tag string, v T) bool {
	e.mu.Lock()
	hs := e.handlers[tag]
	for _, h := range hs {
		if h.once {
			e.remove(tag, h.id)
		}
	}
	e.mu.Unlock()

	for _, h := range hs {
		h.fn(v)
	}
	return len(hs) > 0
}

// RemoveAll removes the handlers of the given tags, or of every tag when
// none are given.
func (e *Emitter[T]) RemoveAll(tags ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(tags) == 0 {
		clear(e.handlers)
		return
	}
	for _, tag := range tags {
		delete(e.handlers, tag)
	}
}

// Tags returns the tags having at least one handler, sorted.
func (e *Emitter[T]) Tags() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	res := make([]string, 0, len(e.handlers))
	for tag := range e.handlers {
		res = append(res, tag)
	}
	slices.Sort(res)
	return res
}
