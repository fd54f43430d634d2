package tome

import (
	"encoding/json"
	"sync/atomic"
)

// Node is one addressable unit of a Document. The concrete types are *Value,
// *List and *Map; the set is closed.
type Node interface {
	Kind() Kind
	// Document returns the document the node currently belongs to.
	Document() *Document
	// Parent returns the container holding the node, or nil for the
	// document root and for detached nodes.
	Parent() Node
	IsRoot() bool
	Destroyed() bool

	// Snapshot returns the raw value of the subtree rooted at the node,
	// built from nil, bool, string, int64, float64, []any and map[string]any.
	Snapshot() any
	MarshalJSON() ([]byte, error)

	Assign(v any) error
	Destroy()
	ApplyOperation(op string, val any) error

	OnChanged(fn func(old any)) Subscription
	OnDestroy(fn func()) Subscription
	Unsubscribe(s Subscription) bool

	base() *node
}

var nextNodeID atomic.Uint64

// node holds the state shared by all node kinds. Apart from doc, every field
// is guarded by the owning document's lock.
type node struct {
	id        uint64
	doc       atomic.Pointer[Document]
	self      Node
	parent    Node
	destroyed bool

	changed hook[any]
	destroy hook[struct{}]
}

func (b *node) init(self Node, d *Document, parent Node) {
	b.id = nextNodeID.Add(1)
	b.self = self
	b.doc.Store(d)
	b.parent = parent
}

func (b *node) base() *node {
	return b
}

func (b *node) Document() *Document {
	return b.doc.Load()
}

func (b *node) Parent() Node {
	d := lockNode(b.self)
	defer d.unlock()
	return b.parent
}

func (b *node) IsRoot() bool {
	d := lockNode(b.self)
	defer d.unlock()
	return d.root == b.self
}

func (b *node) Destroyed() bool {
	d := lockNode(b.self)
	defer d.unlock()
	return b.destroyed
}

func (b *node) Snapshot() any {
	d := lockNode(b.self)
	defer d.unlock()
	return snapshot(b.self)
}

func (b *node) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Snapshot())
}

// Destroy destroys the subtree rooted at the node: children first, then the
// node's own OnDestroy subscribers fire and all of its hooks are cleared.
// Destroying a node twice is a no-op. The node is not removed from its
// parent; use the container's Del for that.
func (b *node) Destroy() {
	d := lockNode(b.self)
	defer d.unlock()
	destroyNode(b.self)
}

func (b *node) OnChanged(fn func(old any)) Subscription {
	d := lockNode(b.self)
	defer d.unlock()
	return b.changed.add(fn)
}

func (b *node) OnDestroy(fn func()) Subscription {
	d := lockNode(b.self)
	defer d.unlock()
	return b.destroy.add(func(struct{}) { fn() })
}

func (b *node) Unsubscribe(s Subscription) bool {
	d := lockNode(b.self)
	defer d.unlock()
	if b.changed.remove(s) || b.destroy.remove(s) {
		return true
	}
	switch n := b.self.(type) {
	case *List:
		return n.add.remove(s) || n.del.remove(s)
	case *Map:
		return n.add.remove(s) || n.del.remove(s)
	}
	return false
}

// Assign replaces the value of the node. Scalars assigned to a *Value are
// stored in place; any other combination conjures a new node which takes
// over the slot and the subscribers of n. After such a replacement n reports
// Destroyed and the new node is found through the parent or Document.Root.
func (b *node) Assign(v any) error {
	raw, err := normalize(v)
	if err != nil {
		return err
	}
	d := lockNode(b.self)
	defer d.unlock()
	return assignNode(b.self, raw)
}

func (b *node) ApplyOperation(op string, val any) error {
	raw, err := normalize(val)
	if err != nil {
		return err
	}
	d := lockNode(b.self)
	defer d.unlock()
	return applyOperation(b.self, op, raw)
}

// emitChanged notifies the OnChanged subscribers of n and of every ancestor
// of n. A node is notified at most once per locked operation.
func emitChanged(n Node) {
	for n != nil {
		b := n.base()
		d := b.doc.Load()
		if _, seen := d.notified[n]; !seen {
			d.notified[n] = struct{}{}
			if fns := b.changed.funcs(); fns != nil {
				d.queue(func() {
					for _, fn := range fns {
						fn(nil)
					}
				})
			}
		}
		n = b.parent
	}
}

func emitKey[K any](n Node, h *hook[K], key K) {
	if fns := h.funcs(); fns != nil {
		n.base().doc.Load().queue(func() {
			for _, fn := range fns {
				fn(key)
			}
		})
	}
	emitChanged(n)
}

func destroyNode(n Node) {
	b := n.base()
	if b.destroyed {
		return
	}
	switch n := n.(type) {
	case *List:
		for _, c := range n.items {
			destroyNode(c)
		}
		n.add.clear()
		n.del.clear()
	case *Map:
		for _, k := range n.keys {
			destroyNode(n.vals[k])
		}
		n.add.clear()
		n.del.clear()
	case *Value:
	}
	b.destroyed = true
	if fns := b.destroy.funcs(); fns != nil {
		b.doc.Load().queue(func() {
			for _, fn := range fns {
				fn(struct{}{})
			}
		})
	}
	b.changed.clear()
	b.destroy.clear()
}

// replaceNode puts repl in the place of old, moving the subscribers of old
// onto repl. Descendants of old are destroyed; old itself is only marked
// destroyed since its subscribers continue on repl.
func replaceNode(old, repl Node) {
	ob, nb := old.base(), repl.base()
	nb.changed, ob.changed = ob.changed, hook[any]{}
	nb.destroy, ob.destroy = ob.destroy, hook[struct{}]{}
	switch o := old.(type) {
	case *List:
		if r, ok := repl.(*List); ok {
			r.add, r.del = o.add, o.del
		}
		o.add.clear()
		o.del.clear()
		for _, c := range o.items {
			destroyNode(c)
		}
		o.items = nil
	case *Map:
		if r, ok := repl.(*Map); ok {
			r.add, r.del = o.add, o.del
		}
		o.add.clear()
		o.del.clear()
		for _, k := range o.keys {
			destroyNode(o.vals[k])
		}
		o.keys, o.vals = nil, map[string]Node{}
	}
	ob.destroyed = true

	nb.parent = ob.parent
	switch p := ob.parent.(type) {
	case nil:
		d := ob.doc.Load()
		if d.root == old {
			d.root = repl
		}
	case *List:
		p.replaceChild(old, repl)
	case *Map:
		p.replaceChild(old, repl)
	}
	ob.parent = nil
	emitChanged(repl)
}

func assignNode(n Node, raw any) error {
	if n.base().destroyed {
		return ErrDestroyed
	}
	if v, ok := n.(*Value); ok && isScalar(raw) {
		v.val = raw
		emitChanged(v)
		return nil
	}
	b := n.base()
	d := b.doc.Load()
	replaceNode(n, d.conjure(b.parent, raw))
	return nil
}

// setDoc moves the subtree rooted at n into document d.
func setDoc(n Node, d *Document) {
	n.base().doc.Store(d)
	switch n := n.(type) {
	case *List:
		for _, c := range n.items {
			setDoc(c, d)
		}
	case *Map:
		for _, c := range n.vals {
			setDoc(c, d)
		}
	}
}

// isAncestor reports whether a is n or one of the ancestors of n.
func isAncestor(a, n Node) bool {
	for n != nil {
		if n == a {
			return true
		}
		n = n.base().parent
	}
	return false
}

func snapshot(n Node) any {
	switch n := n.(type) {
	case *Value:
		return n.val
	case *List:
		res := make([]any, len(n.items))
		for i, c := range n.items {
			res[i] = snapshot(c)
		}
		return res
	case *Map:
		res := make(map[string]any, len(n.keys))
		for _, k := range n.keys {
			res[k] = snapshot(n.vals[k])
		}
		return res
	default:
		return nil
	}
}
