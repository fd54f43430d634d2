// Package tome implements mutable shared documents ("tomes"): trees of
// observable values which mirror authoritative server state and are updated
// incrementally by ordered diff operations.
//
// # Nodes
//
// A document is made of nodes of three kinds:
//
//   - *Value: a leaf holding one scalar (nil, bool, string, int64, float64)
//   - *List: an ordered sequence of nodes
//   - *Map: a keyed collection of nodes
//
// Every node belongs to exactly one Document and has at most one parent. The
// parent link is only used to propagate change notifications upwards; a
// container exclusively owns its children.
//
// # Creating Documents
//
// Raw parsed values (as produced by encoding/json or a YAML decoder) are
// conjured into nodes:
//
//	doc, err := tome.New(map[string]any{"list": []any{1, 2, 3}})
//	root := doc.Root()
//
// # Observing Changes
//
// Every node accepts OnChanged and OnDestroy subscribers; containers also
// accept OnAdd and OnDel. Registration returns a Subscription used to
// unsubscribe:
//
//	list := node.(*tome.List)
//	sub := list.OnAdd(func(i int) { fmt.Println("added", i) })
//	defer list.Unsubscribe(sub)
//
// A change to a node notifies the node's OnChanged subscribers and then
// those of each ancestor up to the root. Within one operation each node's
// OnChanged subscribers are notified at most once. The old value passed to
// OnChanged subscribers is always nil.
//
// # Applying Diffs
//
// Diff operations address a node by a chain of keys and indices from the
// root:
//
//	err := doc.ApplyDiff([]tome.Op{
//	    {Chain: []any{"list"}, Op: "push", Val: []any{4}},
//	})
//
// Operations are applied in order. The first failing operation stops the
// batch and is returned as an *OpError.
//
// # Concurrency
//
// Each document has one lock shared by all of its nodes, held for the full
// duration of every operation. Operations involving two documents (Move and
// Swap across documents) lock both in ascending document id order.
// Subscribers run after the lock is released and before the operation
// returns, so they may freely read and mutate documents.
package tome
