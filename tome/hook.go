package tome

import (
	"slices"
	"sync/atomic"
)

// Subscription identifies one subscriber of a node hook. It is returned by
// the On* registration methods and accepted by Unsubscribe.
type Subscription uint64

var nextSubscription atomic.Uint64

type subscriber[T any] struct {
	id Subscription
	fn func(T)
}

// hook is an ordered list of subscribers. It is guarded by the lock of the
// document owning the node.
type hook[T any] struct {
	subs []subscriber[T]
}

func (h *hook[T]) add(fn func(T)) Subscription {
	id := Subscription(nextSubscription.Add(1))
	h.subs = append(h.subs, subscriber[T]{id: id, fn: fn})
	return id
}

func (h *hook[T]) remove(id Subscription) bool {
	i := slices.IndexFunc(h.subs, func(s subscriber[T]) bool { return s.id == id })
	if i < 0 {
		return false
	}
	h.subs = slices.Delete(slices.Clone(h.subs), i, i+1)
	return true
}

// funcs returns a copy of the subscriber functions so they can be invoked
// after the document lock is released.
func (h *hook[T]) funcs() []func(T) {
	if len(h.subs) == 0 {
		return nil
	}
	res := make([]func(T), len(h.subs))
	for i := range h.subs {
		res[i] = h.subs[i].fn
	}
	return res
}

func (h *hook[T]) clear() {
	h.subs = nil
}

func (h *hook[T]) len() int {
	return len(h.subs)
}
