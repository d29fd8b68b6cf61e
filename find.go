package bptreedb

import (
	"github.com/oda/bptreedb/internal/node"
)

// Find appends every value bound to key to out, in ascending order. It
// leaves out unchanged if the tree is empty or holds no pair with that key.
func (t *Tree) Find(key []byte, out *[]uint32) error {
	return t.FindIf(key, func(uint32) bool { return true }, out)
}

// FindIf behaves like Find but only appends values for which pred returns true.
func (t *Tree) FindIf(key []byte, pred func(uint32) bool, out *[]uint32) error {
	if err := t.checkKeyWidth(key); err != nil {
		return err
	}
	if t.Empty() {
		return nil
	}

	leafIdx, pos, err := t.descendToLeaf(key)
	if err != nil {
		return err
	}
	if leafIdx == uint32(node.MaxIndex) {
		return nil
	}

	iter, err := t.newIterator(leafIdx, pos)
	if err != nil {
		return err
	}
	defer iter.Close()

	for !iter.End() {
		k, v, err := iter.Pair()
		if err != nil {
			return err
		}
		if node.Compare(k, key) != 0 {
			break
		}
		if pred(v) {
			*out = append(*out, v)
		}
		if err := iter.Advance(); err != nil {
			return err
		}
	}
	return nil
}

// descendToLeaf walks from the root to the leaf that would hold key,
// returning that leaf's block index and the position LowerBound(key)
// finds within it.
func (t *Tree) descendToLeaf(key []byte) (uint32, int, error) {
	cur := t.root.Node()
	for cur.Self.Kind == node.Inner {
		pos := node.LowerBound(len(cur.Entries)-1, func(i int) int {
			return node.Compare(cur.Entries[i+1].Key, key)
		})
		v, err := t.cache.Get(uint32(cur.Entries[pos].Child.Block))
		if err != nil {
			return 0, 0, err
		}
		next := v.Node()
		if next.Self.Kind == node.Leaf {
			leafPos := node.LowerBound(len(next.Entries), node.EntryCompare(next, key))
			idx := v.Index()
			v.Release()
			return idx, leafPos, nil
		}
		curCopy := *next
		v.Release()
		cur = &curCopy
	}
	return uint32(node.MaxIndex), 0, nil
}
