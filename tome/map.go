package tome

import (
	"fmt"
	"slices"
)

// Map is a keyed collection of nodes. Keys are unique strings kept in
// insertion order; a conjured map starts with its keys sorted.
type Map struct {
	node
	keys []string
	vals map[string]Node
	add  hook[string]
	del  hook[string]
}

func (m *Map) Kind() Kind { return MapKind }

// OnAdd registers fn to be called with each added key.
func (m *Map) OnAdd(fn func(key string)) Subscription {
	d := lockNode(m)
	defer d.unlock()
	return m.add.add(fn)
}

// OnDel registers fn to be called with each deleted key.
func (m *Map) OnDel(fn func(key string)) Subscription {
	d := lockNode(m)
	defer d.unlock()
	return m.del.add(fn)
}

func (m *Map) Len() int {
	d := lockNode(m)
	defer d.unlock()
	return len(m.keys)
}

// Keys returns the keys of m in insertion order.
func (m *Map) Keys() []string {
	d := lockNode(m)
	defer d.unlock()
	return slices.Clone(m.keys)
}

// Get returns the node stored under key.
func (m *Map) Get(key string) (Node, bool) {
	d := lockNode(m)
	defer d.unlock()
	n, ok := m.vals[key]
	return n, ok
}

func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Set stores v under key. A new key fires OnAdd; an existing key is
// assigned in place.
func (m *Map) Set(key string, v any) error {
	return m.locked(v, func(raw any) error { return m.set(key, raw) })
}

// Del destroys the node under key and removes the key.
func (m *Map) Del(key string) error {
	return m.locked(nil, func(any) error { return m.delete(key) })
}

// Move relocates the node under from to key toKey of the container to.
func (m *Map) Move(from string, to Node, toKey any) error {
	src, dst, unlock, err := lockContainers(m, to)
	if err != nil {
		return err
	}
	defer unlock()
	return moveNode(src, from, dst, toKey)
}

// Rename moves the node under was to is.
func (m *Map) Rename(was, is string) error {
	return m.locked(nil, func(any) error { return moveNode(m, was, m, is) })
}

// Swap exchanges the node under key with the node at otherKey of the
// container other.
func (m *Map) Swap(key string, other Node, otherKey any) error {
	src, dst, unlock, err := lockContainers(m, other)
	if err != nil {
		return err
	}
	defer unlock()
	return swapNodes(src, key, dst, otherKey)
}

func (m *Map) locked(v any, fn func(raw any) error) error {
	raw, err := normalize(v)
	if err != nil {
		return err
	}
	d := lockNode(m)
	defer d.unlock()
	if m.destroyed {
		return ErrDestroyed
	}
	return fn(raw)
}

func (m *Map) set(key string, raw any) error {
	if n, ok := m.vals[key]; ok {
		return assignNode(n, raw)
	}
	m.keys = append(m.keys, key)
	m.vals[key] = m.doc.Load().conjure(m, raw)
	emitKey(m, &m.add, key)
	return nil
}

func (m *Map) delete(key string) error {
	n, ok := m.vals[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	destroyNode(n)
	m.vacate(key)
	emitKey(m, &m.del, key)
	return nil
}

func (m *Map) key(v any) (any, error) {
	return toKey(v)
}

func (m *Map) child(key any) (Node, error) {
	n, ok := m.vals[key.(string)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return n, nil
}

func (m *Map) put(key any, n Node) {
	m.vals[key.(string)] = n
	n.base().parent = m
}

func (m *Map) install(key any, n Node) bool {
	k := key.(string)
	n.base().parent = m
	if old, ok := m.vals[k]; ok {
		destroyNode(old)
		m.vals[k] = n
		return false
	}
	m.keys = append(m.keys, k)
	m.vals[k] = n
	return true
}

func (m *Map) vacate(key any) {
	k := key.(string)
	if n, ok := m.vals[k]; ok {
		n.base().parent = nil
	}
	delete(m.vals, k)
	if i := slices.Index(m.keys, k); i >= 0 {
		m.keys = slices.Delete(m.keys, i, i+1)
	}
}

func (m *Map) emitAdd(key any) { emitKey(m, &m.add, key.(string)) }
func (m *Map) emitDel(key any) { emitKey(m, &m.del, key.(string)) }

func (m *Map) replaceChild(old, repl Node) {
	for k, n := range m.vals {
		if n == old {
			m.vals[k] = repl
			return
		}
	}
}
