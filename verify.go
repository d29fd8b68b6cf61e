package bptreedb

import (
	"fmt"

	"github.com/oda/bptreedb/internal/node"
)

// Verify walks the whole tree checking the invariants that must hold
// between any two public operations. It is meant for tests, not the
// hot path: every check here costs an extra full traversal.
func (t *Tree) Verify() error {
	root := t.root.Node()
	if len(root.Entries) == 0 {
		return nil
	}

	for _, e := range root.Entries {
		if err := t.verifySubtree(e); err != nil {
			return err
		}
	}

	return t.firstLeaf()
}

func (t *Tree) verifySubtree(e node.Entry) error {
	v, err := t.cache.Get(uint32(e.Child.Block))
	if err != nil {
		return err
	}
	defer v.Release()
	n := v.Node()

	if len(n.Entries) < t.layout.MergeSize || len(n.Entries) > t.layout.B {
		return fmt.Errorf("bptreedb: block %d has count %d outside [%d,%d]", e.Child.Block, len(n.Entries), t.layout.MergeSize, t.layout.B)
	}

	minKey, minVal := n.Entries[0].Key, n.Entries[0].Value
	if comparePair(e.Key, e.Value, minKey, minVal) != 0 {
		return fmt.Errorf("bptreedb: block %d's parent minimum does not match its own minimum", e.Child.Block)
	}

	if n.Self.Kind == node.Inner {
		for _, child := range n.Entries {
			if err := t.verifySubtree(child); err != nil {
				return err
			}
		}
	}
	return nil
}

// firstLeaf walks down entry[0] children from the root to the leftmost
// leaf, then follows next_leaf pointers checking strictly ascending order.
func (t *Tree) firstLeaf() error {
	root := t.root.Node()
	if len(root.Entries) == 0 {
		return nil
	}

	block := uint32(root.Entries[0].Child.Block)
	v, err := t.cache.Get(block)
	if err != nil {
		return err
	}
	for v.Node().Self.Kind == node.Inner {
		next := uint32(v.Node().Entries[0].Child.Block)
		v.Release()
		v, err = t.cache.Get(next)
		if err != nil {
			return err
		}
	}

	var prevKey []byte
	var prevVal uint32
	havePrev := false
	for {
		n := v.Node()
		for _, e := range n.Entries {
			if havePrev && comparePair(prevKey, prevVal, e.Key, e.Value) >= 0 {
				v.Release()
				return fmt.Errorf("bptreedb: leaf list is not strictly ascending")
			}
			prevKey, prevVal, havePrev = e.Key, e.Value, true
		}
		next := n.NextLeaf
		v.Release()
		if next == node.MaxIndex {
			return nil
		}
		v, err = t.cache.Get(uint32(next))
		if err != nil {
			return err
		}
	}
}
