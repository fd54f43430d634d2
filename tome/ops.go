package tome

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Operation codes understood by ApplyOperation.
const (
	OpAssign  = "assign"
	OpSet     = "set"
	OpDel     = "del"
	OpMove    = "move"
	OpRename  = "rename"
	OpSwap    = "swap"
	OpPush    = "push"
	OpPop     = "pop"
	OpShift   = "shift"
	OpUnshift = "unshift"
	OpReverse = "reverse"
	OpSplice  = "splice"
)

var opKinds = map[string][]Kind{
	OpAssign:  {ValueKind, ListKind, MapKind},
	OpSet:     {ListKind, MapKind},
	OpDel:     {ListKind, MapKind},
	OpMove:    {ListKind, MapKind},
	OpRename:  {ListKind, MapKind},
	OpSwap:    {ListKind, MapKind},
	OpPush:    {ListKind},
	OpPop:     {ListKind},
	OpShift:   {ListKind},
	OpUnshift: {ListKind},
	OpReverse: {ListKind},
	OpSplice:  {ListKind},
}

// checkOp reports ErrUnsupportedOp for unknown codes and ErrKind for codes
// which do not apply to nodes of kind k.
func checkOp(op string, k Kind) error {
	kinds, ok := opKinds[op]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedOp, op)
	}
	if !slices.Contains(kinds, k) {
		return fmt.Errorf("%w: %q does not apply to a %s", ErrKind, op, k)
	}
	return nil
}

// applyOperation applies one diff operation to target. val is normalized and
// the document lock is held.
func applyOperation(target Node, op string, val any) error {
	if err := checkOp(op, target.Kind()); err != nil {
		return err
	}
	if target.base().destroyed {
		return ErrDestroyed
	}
	if op == OpAssign {
		return assignNode(target, val)
	}
	switch t := target.(type) {
	case *List:
		return t.applyOperation(op, val)
	case *Map:
		return t.applyOperation(op, val)
	default:
		return fmt.Errorf("%w: %q on %T", ErrUnsupportedOp, op, target)
	}
}

func (l *List) applyOperation(op string, val any) error {
	switch op {
	case OpSet:
		k, v, err := keyVal(val)
		if err != nil {
			return err
		}
		i, err := toInt(k)
		if err != nil {
			return err
		}
		return l.set(i, v)
	case OpDel:
		i, err := toInt(val)
		if err != nil {
			return err
		}
		return l.delete(i)
	case OpMove, OpSwap:
		return relocate(l, op, val)
	case OpRename:
		pairs, err := renames(val, true)
		if err != nil {
			return err
		}
		for _, p := range pairs {
			if err := moveNode(l, p[0], l, p[1]); err != nil {
				return err
			}
		}
		return nil
	case OpPush:
		items, err := itemsOf(val)
		if err != nil {
			return err
		}
		for _, it := range items {
			if err := l.set(len(l.items), it); err != nil {
				return err
			}
		}
		return nil
	case OpPop:
		_, err := l.pop()
		return err
	case OpShift:
		_, err := l.shift()
		return err
	case OpUnshift:
		items, err := itemsOf(val)
		if err != nil {
			return err
		}
		for i := len(items) - 1; i >= 0; i-- {
			if err := l.unshift(items[i]); err != nil {
				return err
			}
		}
		return nil
	case OpReverse:
		return l.reverse()
	case OpSplice:
		args, err := itemsOf(val)
		if err != nil {
			return err
		}
		if len(args) < 2 {
			return fmt.Errorf("%w: splice needs index and delete count, got %d values", ErrOperand, len(args))
		}
		index, err := toInt(args[0])
		if err != nil {
			return err
		}
		count, err := toInt(args[1])
		if err != nil {
			return err
		}
		_, err = l.splice(index, count, args[2:])
		return err
	}
	return fmt.Errorf("%w: %q on list", ErrUnsupportedOp, op)
}

func (m *Map) applyOperation(op string, val any) error {
	switch op {
	case OpSet:
		k, v, err := keyVal(val)
		if err != nil {
			return err
		}
		key, err := toKey(k)
		if err != nil {
			return err
		}
		return m.set(key, v)
	case OpDel:
		key, err := toKey(val)
		if err != nil {
			return err
		}
		return m.delete(key)
	case OpMove, OpSwap:
		return relocate(m, op, val)
	case OpRename:
		pairs, err := renames(val, false)
		if err != nil {
			return err
		}
		for _, p := range pairs {
			if err := moveNode(m, p[0], m, p[1]); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("%w: %q on map", ErrUnsupportedOp, op)
}

// relocate applies a move or swap operand {key, newParent, newKey} to c. The
// new parent is resolved from the document root; newKey defaults to key.
func relocate(c container, op string, val any) error {
	m, ok := val.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: %s operand must be an object, got %T", ErrOperand, op, val)
	}
	key, ok := m["key"]
	if !ok {
		return fmt.Errorf("%w: %s operand has no key", ErrOperand, op)
	}
	chain, ok := m["newParent"].([]any)
	if !ok {
		return fmt.Errorf("%w: %s operand has no newParent chain", ErrOperand, op)
	}
	path, err := PathFrom(chain)
	if err != nil {
		return err
	}
	pn, err := resolve(c.base().doc.Load().root, path)
	if err != nil {
		return err
	}
	parent, err := asContainer(pn)
	if err != nil {
		return err
	}
	newKey, ok := m["newKey"]
	if !ok || newKey == nil {
		newKey = key
	}
	if op == OpSwap {
		return swapNodes(c, key, parent, newKey)
	}
	return moveNode(c, key, parent, newKey)
}

func keyVal(val any) (any, any, error) {
	m, ok := val.(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("%w: set operand must be an object, got %T", ErrOperand, val)
	}
	k, ok := m["key"]
	if !ok {
		return nil, nil, fmt.Errorf("%w: set operand has no key", ErrOperand)
	}
	return k, m["val"], nil
}

func itemsOf(val any) ([]any, error) {
	switch v := val.(type) {
	case []any:
		return v, nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: expected a list of values, got %T", ErrOperand, val)
}

// renames decodes a {was: is} operand into pairs ordered by the was key:
// numerically for lists, lexically for maps.
func renames(val any, numeric bool) ([][2]any, error) {
	m, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: rename operand must be an object, got %T", ErrOperand, val)
	}
	res := make([][2]any, 0, len(m))
	for was, is := range m {
		var from any = was
		if numeric {
			i, err := strconv.Atoi(was)
			if err != nil {
				return nil, fmt.Errorf("%w: rename key %q is not an index", ErrOperand, was)
			}
			from = i
		}
		res = append(res, [2]any{from, is})
	}
	slices.SortFunc(res, func(a, b [2]any) int {
		if numeric {
			return cmp.Compare(a[0].(int), b[0].(int))
		}
		return strings.Compare(a[0].(string), b[0].(string))
	})
	return res, nil
}
