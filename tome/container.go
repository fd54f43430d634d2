package tome

import "fmt"

// container is implemented by *List and *Map. Keys are canonicalized by
// key before being passed to the other methods: int for lists, string for
// maps. The caller holds the document lock.
type container interface {
	Node
	key(v any) (any, error)
	child(key any) (Node, error)
	// put stores n at an existing key without destroying the previous
	// occupant.
	put(key any, n Node)
	// install stores n at key, destroying any occupant. It reports whether
	// the key was added.
	install(key any, n Node) bool
	// vacate empties the slot at key without destroying its node.
	vacate(key any)
	emitAdd(key any)
	emitDel(key any)
	replaceChild(old, repl Node)
}

func asContainer(n Node) (container, error) {
	switch n := n.(type) {
	case *List:
		return n, nil
	case *Map:
		return n, nil
	default:
		return nil, fmt.Errorf("%w: %s is not a container", ErrKind, n.Kind())
	}
}

// moveNode relocates the node at fromKey in src to toKey in dst. The moved
// subtree keeps its identity and subscribers. The destination is set first
// (OnAdd, or OnChanged when an occupant is replaced), then the source slot
// fires OnDel.
func moveNode(src container, fromKey any, dst container, toKey any) error {
	if src.base().destroyed || dst.base().destroyed {
		return ErrDestroyed
	}
	fk, err := src.key(fromKey)
	if err != nil {
		return err
	}
	tk, err := dst.key(toKey)
	if err != nil {
		return err
	}
	n, err := src.child(fk)
	if err != nil {
		return err
	}
	if src == dst && fk == tk {
		return nil
	}
	if isAncestor(n, dst) {
		return ErrCycle
	}
	src.vacate(fk)
	if dd := dst.base().doc.Load(); n.base().doc.Load() != dd {
		setDoc(n, dd)
	}
	if dst.install(tk, n) {
		dst.emitAdd(tk)
	} else {
		emitChanged(n)
	}
	if !src.base().destroyed {
		src.emitDel(fk)
	}
	return nil
}

// swapNodes exchanges the node at ka in a with the node at kb in b.
func swapNodes(a container, ka any, b container, kb any) error {
	if a.base().destroyed || b.base().destroyed {
		return ErrDestroyed
	}
	ka, err := a.key(ka)
	if err != nil {
		return err
	}
	kb, err = b.key(kb)
	if err != nil {
		return err
	}
	na, err := a.child(ka)
	if err != nil {
		return err
	}
	nb, err := b.child(kb)
	if err != nil {
		return err
	}
	if na == nb {
		return nil
	}
	if isAncestor(na, nb) || isAncestor(nb, na) {
		return ErrCycle
	}
	da, db := a.base().doc.Load(), b.base().doc.Load()
	a.put(ka, nb)
	b.put(kb, na)
	if da != db {
		setDoc(nb, da)
		setDoc(na, db)
	}
	emitChanged(a)
	if b != a {
		emitChanged(b)
	}
	return nil
}

func lockContainers(src Node, dst Node) (container, container, func(), error) {
	da, db := lockPair(src, dst)
	unlock := func() { unlockPair(da, db) }
	s, err := asContainer(src)
	if err != nil {
		unlock()
		return nil, nil, nil, err
	}
	t, err := asContainer(dst)
	if err != nil {
		unlock()
		return nil, nil, nil, err
	}
	return s, t, unlock, nil
}
