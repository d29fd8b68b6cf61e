package bptreedb

import (
	"github.com/oda/bptreedb/internal/cache"
	"github.com/oda/bptreedb/internal/node"
)

// Erase removes (key, val) from the tree. Erasing a pair that is not
// present is a no-op.
func (t *Tree) Erase(key []byte, val uint32) error {
	if err := t.checkKeyWidth(key); err != nil {
		return err
	}
	if t.Empty() {
		return nil
	}
	_, err := t.eraseDescend(t.root, key, val)
	return err
}

// eraseDescend removes (key, val) below v and reports whether v's own
// count or minimum pair may have changed, which is what an ancestor
// needs to know to re-sync its entry for v and to check v for underflow.
func (t *Tree) eraseDescend(v *cache.Visitor, key []byte, val uint32) (bool, error) {
	n := v.Node()

	if n.Self.Kind == node.Leaf {
		idx := node.BinarySearch(len(n.Entries), entryPairCmp(n.Entries, key, val))
		if idx < 0 {
			return false, nil
		}
		copy(n.Entries[idx:], n.Entries[idx+1:])
		n.Entries = n.Entries[:len(n.Entries)-1]
		n.Self.Count = uint32(len(n.Entries))
		v.Modify()
		return true, nil
	}

	idx := node.BinarySearch(len(n.Entries), entryPairCmp(n.Entries, key, val))
	var pos int
	minimumChanged := false
	if idx >= 0 {
		pos = idx
		minimumChanged = true
	} else {
		ip := ^idx
		if ip == 0 {
			return false, nil
		}
		pos = ip - 1
	}

	childV, err := t.cache.Get(uint32(n.Entries[pos].Child.Block))
	if err != nil {
		return false, err
	}
	defer childV.Release()

	childChanged, err := t.eraseDescend(childV, key, val)
	if err != nil {
		return false, err
	}
	if !childChanged {
		return false, nil
	}

	childNode := childV.Node()
	n.Entries[pos].Child.Count = childNode.Self.Count
	if minimumChanged && len(childNode.Entries) > 0 {
		copy(n.Entries[pos].Key, childNode.Entries[0].Key)
		n.Entries[pos].Value = childNode.Entries[0].Value
	}
	v.Modify()

	if len(childNode.Entries) > t.layout.MergeSize {
		return minimumChanged && pos == 0, nil
	}

	ok, err := t.eraseAmortize(v, pos)
	if err != nil {
		return false, err
	}
	if ok {
		return minimumChanged && pos == 0, nil
	}

	if err := t.merge(v, pos, childV); err != nil {
		return false, err
	}
	return true, nil
}

// eraseAmortize tries to relieve an underfull child at pos by pulling
// entries from a sibling that has entries to spare (count >= AMORT_SIZE).
func (t *Tree) eraseAmortize(parent *cache.Visitor, pos int) (bool, error) {
	pn := parent.Node()

	var leftV, rightV *cache.Visitor
	var err error
	if pos > 0 {
		leftV, err = t.cache.Get(uint32(pn.Entries[pos-1].Child.Block))
		if err != nil {
			return false, err
		}
		defer leftV.Release()
	}
	if pos < len(pn.Entries)-1 {
		rightV, err = t.cache.Get(uint32(pn.Entries[pos+1].Child.Block))
		if err != nil {
			return false, err
		}
		defer rightV.Release()
	}

	childV, err := t.cache.Get(uint32(pn.Entries[pos].Child.Block))
	if err != nil {
		return false, err
	}
	defer childV.Release()
	child := childV.Node()
	under := len(child.Entries)

	useLeft := leftV != nil && len(leftV.Node().Entries) >= t.layout.AmortSize
	useRight := rightV != nil && len(rightV.Node().Entries) >= t.layout.AmortSize

	switch {
	case useLeft && useRight:
		if len(rightV.Node().Entries) >= len(leftV.Node().Entries) {
			useLeft = false
		} else {
			useRight = false
		}
	case !useLeft && !useRight:
		return false, nil
	}

	if useLeft {
		left := leftV.Node()
		over := len(left.Entries)
		move := (over - under) / 2
		if move <= 0 {
			return false, nil
		}
		moved := left.Entries[over-move:]
		child.Entries = append(append([]node.Entry{}, moved...), child.Entries...)
		left.Entries = left.Entries[:over-move]
		left.Self.Count = uint32(len(left.Entries))
		child.Self.Count = uint32(len(child.Entries))
		leftV.Modify()
		childV.Modify()

		pn.Entries[pos-1].Child.Count = left.Self.Count
		pn.Entries[pos].Child.Count = child.Self.Count
		copy(pn.Entries[pos].Key, child.Entries[0].Key)
		pn.Entries[pos].Value = child.Entries[0].Value
		parent.Modify()
		return true, nil
	}

	right := rightV.Node()
	over := len(right.Entries)
	move := (over - under) / 2
	if move <= 0 {
		return false, nil
	}
	child.Entries = append(child.Entries, right.Entries[:move]...)
	right.Entries = right.Entries[move:]
	right.Self.Count = uint32(len(right.Entries))
	child.Self.Count = uint32(len(child.Entries))
	rightV.Modify()
	childV.Modify()

	pn.Entries[pos].Child.Count = child.Self.Count
	pn.Entries[pos+1].Child.Count = right.Self.Count
	copy(pn.Entries[pos+1].Key, right.Entries[0].Key)
	pn.Entries[pos+1].Value = right.Entries[0].Value
	parent.Modify()
	return true, nil
}

// merge resolves a persistently underfull child at pos that amortize
// could not relieve: root contraction, the single-child-emptied-out
// case, or an ordinary merge with the smaller immediate sibling.
func (t *Tree) merge(parent *cache.Visitor, pos int, childV *cache.Visitor) error {
	pn := parent.Node()
	isRoot := parent == t.root

	if isRoot && len(pn.Entries) == 2 && childV.Node().Self.Kind == node.Inner {
		return t.contractRoot(parent)
	}

	if isRoot && len(pn.Entries) == 1 {
		if len(childV.Node().Entries) == 0 {
			t.cache.Recycle(childV)
			pn.Entries = pn.Entries[:0]
			pn.Self.Count = 0
			parent.Modify()
		}
		return nil
	}

	child := childV.Node()
	var leftV, rightV *cache.Visitor
	var err error
	if pos > 0 {
		leftV, err = t.cache.Get(uint32(pn.Entries[pos-1].Child.Block))
		if err != nil {
			return err
		}
	}
	if pos < len(pn.Entries)-1 {
		rightV, err = t.cache.Get(uint32(pn.Entries[pos+1].Child.Block))
		if err != nil {
			if leftV != nil {
				leftV.Release()
			}
			return err
		}
	}

	mergeLeft := leftV != nil
	if leftV != nil && rightV != nil && len(rightV.Node().Entries) < len(leftV.Node().Entries) {
		mergeLeft = false
	}

	if mergeLeft {
		if rightV != nil {
			rightV.Release()
		}
		left := leftV.Node()
		left.Entries = append(left.Entries, child.Entries...)
		if left.Self.Kind == node.Leaf {
			left.NextLeaf = child.NextLeaf
		}
		left.Self.Count = uint32(len(left.Entries))
		leftV.Modify()

		t.cache.Recycle(childV)
		pn.Entries[pos-1].Child.Count = left.Self.Count
		copy(pn.Entries[pos:], pn.Entries[pos+1:])
		pn.Entries = pn.Entries[:len(pn.Entries)-1]
		pn.Self.Count = uint32(len(pn.Entries))
		parent.Modify()
		leftV.Release()
		return nil
	}

	if leftV != nil {
		leftV.Release()
	}

	right := rightV.Node()
	child.Entries = append(child.Entries, right.Entries...)
	if child.Self.Kind == node.Leaf {
		child.NextLeaf = right.NextLeaf
	}
	child.Self.Count = uint32(len(child.Entries))
	childV.Modify()

	t.cache.Recycle(rightV)
	pn.Entries[pos].Child.Count = child.Self.Count
	copy(pn.Entries[pos+1:], pn.Entries[pos+2:])
	pn.Entries = pn.Entries[:len(pn.Entries)-1]
	pn.Self.Count = uint32(len(pn.Entries))
	parent.Modify()
	return nil
}

// contractRoot flattens root's two inner children directly into root,
// reducing the tree's height by one level.
func (t *Tree) contractRoot(root *cache.Visitor) error {
	rn := root.Node()

	leftV, err := t.cache.Get(uint32(rn.Entries[0].Child.Block))
	if err != nil {
		return err
	}
	defer t.cache.Recycle(leftV)
	rightV, err := t.cache.Get(uint32(rn.Entries[1].Child.Block))
	if err != nil {
		return err
	}
	defer t.cache.Recycle(rightV)

	combined := make([]node.Entry, 0, len(leftV.Node().Entries)+len(rightV.Node().Entries))
	combined = append(combined, leftV.Node().Entries...)
	combined = append(combined, rightV.Node().Entries...)

	rn.Entries = combined
	rn.Self.Count = uint32(len(combined))
	root.Modify()
	return nil
}
