package tome

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mage/mage-sdk-go/debug"
)

var nextDocumentID atomic.Uint64

// Document is a tree of nodes mirroring one server side value.
//
// All nodes of a document share the document's lock: every operation on any
// node holds it for its full duration. Subscribers are called after the lock
// is released but before the operation returns, so a subscriber may read or
// mutate the document it is notified about.
type Document struct {
	id  uint64
	log *slog.Logger

	mu       sync.Mutex
	root     Node
	pending  []func()
	notified map[Node]struct{}
}

// Option configures a Document.
type Option func(*Document)

// WithLogger sets the logger used to report failed diff operations.
func WithLogger(log *slog.Logger) Option {
	return func(d *Document) {
		d.log = log
	}
}

// New conjures the raw value v into a new document.
func New(v any, opts ...Option) (*Document, error) {
	raw, err := normalize(v)
	if err != nil {
		return nil, err
	}
	if debug.Conjure() {
		debug.Logf("tome: conjure %v\n", raw)
	}
	d := newDocument(opts...)
	d.mu.Lock()
	d.root = d.conjure(nil, raw)
	d.unlock()
	return d, nil
}

func newDocument(opts ...Option) *Document {
	d := &Document{
		id:       nextDocumentID.Add(1),
		notified: map[Node]struct{}{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	d.log = d.log.With("component", "tome")
	return d
}

// Root returns the current root node. The root changes when it is assigned
// a value of another kind.
func (d *Document) Root() Node {
	d.mu.Lock()
	defer d.unlock()
	return d.root
}

// Snapshot returns the raw value of the whole document.
func (d *Document) Snapshot() any {
	d.mu.Lock()
	defer d.unlock()
	return snapshot(d.root)
}

func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Snapshot())
}

// Get resolves path from the document root.
func (d *Document) Get(path Path) (Node, error) {
	d.mu.Lock()
	defer d.unlock()
	return resolve(d.root, path)
}

// Destroy destroys every node of the document.
func (d *Document) Destroy() {
	d.mu.Lock()
	defer d.unlock()
	destroyNode(d.root)
}

func (d *Document) queue(fn func()) {
	d.pending = append(d.pending, fn)
}

// release unlocks d and returns the notifications queued while it was held.
func (d *Document) release() []func() {
	pending := d.pending
	d.pending = nil
	clear(d.notified)
	d.mu.Unlock()
	return pending
}

func (d *Document) unlock() {
	dispatch(d.release())
}

func dispatch(pending []func()) {
	for _, fn := range pending {
		fn()
	}
}

// lockNode locks the document n belongs to. A node changes document only
// while both documents are locked, so the ownership is re-checked once the
// lock is held.
func lockNode(n Node) *Document {
	b := n.base()
	for {
		d := b.doc.Load()
		d.mu.Lock()
		if b.doc.Load() == d {
			return d
		}
		d.mu.Unlock()
	}
}

// lockPair locks the documents of a and b. Distinct documents are always
// locked in ascending id order.
func lockPair(a, b Node) (*Document, *Document) {
	ab, bb := a.base(), b.base()
	for {
		da, db := ab.doc.Load(), bb.doc.Load()
		if da == db {
			da.mu.Lock()
			if ab.doc.Load() == da && bb.doc.Load() == da {
				return da, da
			}
			da.mu.Unlock()
			continue
		}
		first, second := da, db
		if second.id < first.id {
			first, second = second, first
		}
		first.mu.Lock()
		second.mu.Lock()
		if ab.doc.Load() == da && bb.doc.Load() == db {
			return da, db
		}
		second.mu.Unlock()
		first.mu.Unlock()
	}
}

func unlockPair(da, db *Document) {
	if da == db {
		da.unlock()
		return
	}
	pa := da.release()
	pb := db.release()
	dispatch(pa)
	dispatch(pb)
}

// Conjure materializes v as the root of a new document.
func Conjure(v any) (Node, error) {
	d, err := New(v)
	if err != nil {
		return nil, err
	}
	return d.Root(), nil
}

// Destroy destroys n and its descendants.
func Destroy(n Node) {
	n.Destroy()
}

// PathValue resolves path starting at root.
func PathValue(root Node, path Path) (Node, error) {
	d := lockNode(root)
	defer d.unlock()
	return resolve(root, path)
}

// EmitParentChange fires OnChanged on the nearest container at or above n.
func EmitParentChange(n Node) error {
	d := lockNode(n)
	defer d.unlock()
	for p := n; p != nil; p = p.base().parent {
		switch p.(type) {
		case *List, *Map:
			emitChanged(p)
			return nil
		}
	}
	return fmt.Errorf("%w: a value cannot be a parent", ErrKind)
}

// conjure builds the node tree for the normalized raw value v.
func (d *Document) conjure(parent Node, v any) Node {
	switch v := v.(type) {
	case []any:
		l := &List{}
		l.init(l, d, parent)
		l.items = make([]Node, len(v))
		for i, x := range v {
			l.items[i] = d.conjure(l, x)
		}
		return l
	case map[string]any:
		m := &Map{vals: make(map[string]Node, len(v))}
		m.init(m, d, parent)
		m.keys = sortedKeys(v)
		for _, k := range m.keys {
			m.vals[k] = d.conjure(m, v[k])
		}
		return m
	default:
		val := &Value{val: v}
		val.init(val, d, parent)
		return val
	}
}
