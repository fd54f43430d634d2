package tome

import (
	"fmt"
	"slices"
)

// List is an ordered sequence of nodes, indexed from 0.
type List struct {
	node
	items []Node
	add   hook[int]
	del   hook[int]
}

func (l *List) Kind() Kind { return ListKind }

// OnAdd registers fn to be called with the index of each added item.
func (l *List) OnAdd(fn func(index int)) Subscription {
	d := lockNode(l)
	defer d.unlock()
	return l.add.add(fn)
}

// OnDel registers fn to be called with the index of each deleted item.
func (l *List) OnDel(fn func(index int)) Subscription {
	d := lockNode(l)
	defer d.unlock()
	return l.del.add(fn)
}

func (l *List) Len() int {
	d := lockNode(l)
	defer d.unlock()
	return len(l.items)
}

// At returns the node at index i, or nil if i is out of range.
func (l *List) At(i int) Node {
	d := lockNode(l)
	defer d.unlock()
	if i < 0 || i >= len(l.items) {
		return nil
	}
	return l.items[i]
}

// Items returns the current nodes of the list.
func (l *List) Items() []Node {
	d := lockNode(l)
	defer d.unlock()
	return slices.Clone(l.items)
}

// Set stores v at index i. Setting past the end fills the gap with null
// values and fires OnAdd(i); setting an existing index assigns in place.
func (l *List) Set(i int, v any) error {
	return l.locked(v, func(raw any) error { return l.set(i, raw) })
}

// Del destroys the node at index i and leaves a null value in its place.
func (l *List) Del(i int) error {
	return l.locked(nil, func(any) error { return l.delete(i) })
}

// Move relocates the node at index from to key toKey of the container to.
func (l *List) Move(from int, to Node, toKey any) error {
	src, dst, unlock, err := lockContainers(l, to)
	if err != nil {
		return err
	}
	defer unlock()
	return moveNode(src, from, dst, toKey)
}

// Rename moves the node at index was to index is.
func (l *List) Rename(was, is int) error {
	return l.locked(nil, func(any) error { return moveNode(l, was, l, is) })
}

// Swap exchanges the node at index i with the node at key otherKey of the
// container other.
func (l *List) Swap(i int, other Node, otherKey any) error {
	src, dst, unlock, err := lockContainers(l, other)
	if err != nil {
		return err
	}
	defer unlock()
	return swapNodes(src, i, dst, otherKey)
}

// Push appends v.
func (l *List) Push(v any) error {
	return l.locked(v, func(raw any) error { return l.set(len(l.items), raw) })
}

// Pop removes the last node and returns its value.
func (l *List) Pop() (any, error) {
	var res any
	err := l.locked(nil, func(any) error {
		var err error
		res, err = l.pop()
		return err
	})
	return res, err
}

// Shift removes the first node and returns its value.
func (l *List) Shift() (any, error) {
	var res any
	err := l.locked(nil, func(any) error {
		var err error
		res, err = l.shift()
		return err
	})
	return res, err
}

// Unshift inserts v at index 0.
func (l *List) Unshift(v any) error {
	return l.locked(v, func(raw any) error { return l.unshift(raw) })
}

// Reverse reverses the order of the nodes and fires OnChanged.
func (l *List) Reverse() error {
	return l.locked(nil, func(any) error { return l.reverse() })
}

// Splice deletes deleteCount nodes starting at index and inserts items at
// index. A negative index counts from the end of the list. The values of the
// deleted nodes are returned.
func (l *List) Splice(index, deleteCount int, items ...any) ([]any, error) {
	var res []any
	err := l.locked(items, func(raw any) error {
		var err error
		res, err = l.splice(index, deleteCount, raw.([]any))
		return err
	})
	return res, err
}

// IndexOf returns the index of the first string value equal to s, or -1.
func (l *List) IndexOf(s string) int {
	d := lockNode(l)
	defer d.unlock()
	for i, n := range l.items {
		if v, ok := n.(*Value); ok {
			if str, ok := v.val.(string); ok && str == s {
				return i
			}
		}
	}
	return -1
}

func (l *List) locked(v any, fn func(raw any) error) error {
	raw, err := normalize(v)
	if err != nil {
		return err
	}
	d := lockNode(l)
	defer d.unlock()
	if l.destroyed {
		return ErrDestroyed
	}
	return fn(raw)
}

func (l *List) set(i int, raw any) error {
	if i < 0 {
		return fmt.Errorf("%w: %d", ErrIndex, i)
	}
	if i < len(l.items) {
		return assignNode(l.items[i], raw)
	}
	d := l.doc.Load()
	for len(l.items) < i {
		l.items = append(l.items, d.conjure(l, nil))
	}
	l.items = append(l.items, d.conjure(l, raw))
	emitKey(l, &l.add, i)
	return nil
}

func (l *List) delete(i int) error {
	if i < 0 || i >= len(l.items) {
		return fmt.Errorf("%w: %d (len %d)", ErrIndex, i, len(l.items))
	}
	destroyNode(l.items[i])
	l.items[i] = l.doc.Load().conjure(l, nil)
	emitKey(l, &l.del, i)
	return nil
}

// remove deletes the slot at index i, which must be valid.
func (l *List) remove(i int) {
	destroyNode(l.items[i])
	l.items = slices.Delete(l.items, i, i+1)
}

func (l *List) pop() (any, error) {
	if len(l.items) == 0 {
		return nil, ErrEmpty
	}
	i := len(l.items) - 1
	res := snapshot(l.items[i])
	if err := l.delete(i); err != nil {
		return nil, err
	}
	l.remove(i)
	return res, nil
}

func (l *List) shift() (any, error) {
	if len(l.items) == 0 {
		return nil, ErrEmpty
	}
	res := snapshot(l.items[0])
	if err := l.delete(0); err != nil {
		return nil, err
	}
	l.remove(0)
	return res, nil
}

func (l *List) insert(i int, raw any) {
	n := l.doc.Load().conjure(l, raw)
	l.items = slices.Insert(l.items, i, n)
	emitKey(l, &l.add, i)
}

func (l *List) unshift(raw any) error {
	l.insert(0, raw)
	return nil
}

func (l *List) reverse() error {
	slices.Reverse(l.items)
	emitChanged(l)
	return nil
}

func (l *List) splice(index, deleteCount int, items []any) ([]any, error) {
	n := len(l.items)
	if index < 0 {
		index = max(n+index, 0)
	}
	index = min(index, n)
	deleteCount = max(min(deleteCount, n-index), 0)

	removed := make([]any, deleteCount)
	for i := index + deleteCount - 1; i >= index; i-- {
		removed[i-index] = snapshot(l.items[i])
		if err := l.delete(i); err != nil {
			return nil, err
		}
		l.remove(i)
	}
	for k, it := range items {
		l.insert(index+k, it)
	}
	return removed, nil
}

func (l *List) key(v any) (any, error) {
	i, err := toInt(v)
	if err != nil {
		return nil, err
	}
	if i < 0 {
		return nil, fmt.Errorf("%w: %d", ErrIndex, i)
	}
	return i, nil
}

func (l *List) child(key any) (Node, error) {
	i := key.(int)
	if i >= len(l.items) {
		return nil, fmt.Errorf("%w: %d (len %d)", ErrIndex, i, len(l.items))
	}
	return l.items[i], nil
}

func (l *List) put(key any, n Node) {
	l.items[key.(int)] = n
	n.base().parent = l
}

func (l *List) install(key any, n Node) bool {
	i := key.(int)
	n.base().parent = l
	if i < len(l.items) {
		destroyNode(l.items[i])
		l.items[i] = n
		return false
	}
	d := l.doc.Load()
	for len(l.items) < i {
		l.items = append(l.items, d.conjure(l, nil))
	}
	l.items = append(l.items, n)
	return true
}

func (l *List) vacate(key any) {
	i := key.(int)
	l.items[i].base().parent = nil
	l.items[i] = l.doc.Load().conjure(l, nil)
}

func (l *List) emitAdd(key any) { emitKey(l, &l.add, key.(int)) }
func (l *List) emitDel(key any) { emitKey(l, &l.del, key.(int)) }

func (l *List) replaceChild(old, repl Node) {
	if i := slices.Index(l.items, old); i >= 0 {
		l.items[i] = repl
	}
}
