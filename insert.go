package bptreedb

import (
	"github.com/oda/bptreedb/internal/cache"
	"github.com/oda/bptreedb/internal/node"
)

// Insert adds (key, val) to the tree. Inserting a pair that is already
// present is a no-op.
func (t *Tree) Insert(key []byte, val uint32) error {
	if err := t.checkKeyWidth(key); err != nil {
		return err
	}

	root := t.root.Node()
	if len(root.Entries) == 0 {
		return t.insertFirst(key, val)
	}

	if _, err := t.insertDescend(t.root, key, val); err != nil {
		return err
	}

	if len(t.root.Node().Entries) > t.layout.B {
		return t.splitRoot()
	}
	return nil
}

func (t *Tree) insertFirst(key []byte, val uint32) error {
	leafV, err := t.cache.Allocate(node.Leaf)
	if err != nil {
		return err
	}
	defer leafV.Release()

	e := t.layout.NewEntry()
	copy(e.Key, key)
	e.Value = val
	leafNode := leafV.Node()
	leafNode.Entries = append(leafNode.Entries, e)
	leafNode.Self.Count = 1
	leafV.Modify()

	root := t.root.Node()
	childEntry := t.layout.NewEntry()
	copy(childEntry.Key, key)
	childEntry.Value = val
	childEntry.Child = node.Header{Block: node.Index(leafV.Index()), Count: 1, Kind: node.Leaf}
	root.Entries = append(root.Entries, childEntry)
	root.Self.Count = uint32(len(root.Entries))
	t.root.Modify()
	return nil
}

// insertDescend inserts (key, val) below v and reports whether v's own
// state changed (entry added, minimum overwritten, or count propagated).
func (t *Tree) insertDescend(v *cache.Visitor, key []byte, val uint32) (bool, error) {
	n := v.Node()

	if n.Self.Kind == node.Leaf {
		idx := node.BinarySearch(len(n.Entries), entryPairCmp(n.Entries, key, val))
		if idx >= 0 {
			return false, nil
		}
		pos := ^idx
		e := t.layout.NewEntry()
		copy(e.Key, key)
		e.Value = val
		n.Entries = append(n.Entries, node.Entry{})
		copy(n.Entries[pos+1:], n.Entries[pos:])
		n.Entries[pos] = e
		n.Self.Count = uint32(len(n.Entries))
		v.Modify()
		return true, nil
	}

	idx := node.BinarySearch(len(n.Entries), entryPairCmp(n.Entries, key, val))
	if idx >= 0 {
		return false, nil
	}

	var pos int
	if ip := ^idx; ip == 0 {
		copy(n.Entries[0].Key, key)
		n.Entries[0].Value = val
		v.Modify()
		pos = 0
	} else {
		pos = ip - 1
	}

	childV, err := t.cache.Get(uint32(n.Entries[pos].Child.Block))
	if err != nil {
		return false, err
	}
	defer childV.Release()

	if _, err := t.insertDescend(childV, key, val); err != nil {
		return false, err
	}

	childNode := childV.Node()
	n.Entries[pos].Child.Count = childNode.Self.Count
	v.Modify()

	if len(childNode.Entries) <= t.layout.B {
		return true, nil
	}

	ok, err := t.insertAmortize(v, pos)
	if err != nil {
		return false, err
	}
	if !ok {
		if err := t.splitChild(v, pos, childV); err != nil {
			return false, err
		}
	}
	return true, nil
}

// insertAmortize tries to relieve an overfull child at pos by shifting
// entries into a sibling that has room (count < AMORT_SIZE). It reports
// whether it found a sibling to use.
func (t *Tree) insertAmortize(parent *cache.Visitor, pos int) (bool, error) {
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
	over := len(child.Entries)

	useLeft := leftV != nil && len(leftV.Node().Entries) < t.layout.AmortSize
	useRight := rightV != nil && len(rightV.Node().Entries) < t.layout.AmortSize

	switch {
	case useLeft && useRight:
		if len(rightV.Node().Entries) <= len(leftV.Node().Entries) {
			useLeft = false
		} else {
			useRight = false
		}
	case !useLeft && !useRight:
		return false, nil
	}

	if useLeft {
		left := leftV.Node()
		under := len(left.Entries)
		move := (over - under) / 2
		if move <= 0 {
			return false, nil
		}
		left.Entries = append(left.Entries, child.Entries[:move]...)
		child.Entries = child.Entries[move:]
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
	under := len(right.Entries)
	move := (over - under) / 2
	if move <= 0 {
		return false, nil
	}
	moved := child.Entries[over-move:]
	right.Entries = append(append([]node.Entry{}, moved...), right.Entries...)
	child.Entries = child.Entries[:over-move]
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

// splitChild allocates a new sibling for the overfull child at pos,
// moving its upper half of entries across, and inserts a new child
// entry for the sibling into parent at pos+1.
func (t *Tree) splitChild(parent *cache.Visitor, pos int, childV *cache.Visitor) error {
	pn := parent.Node()
	child := childV.Node()
	kind := child.Self.Kind

	newV, err := t.cache.Allocate(kind)
	if err != nil {
		return err
	}
	defer newV.Release()
	newNode := newV.Node()

	mid := len(child.Entries) / 2
	newNode.Entries = append(newNode.Entries, child.Entries[mid:]...)
	child.Entries = child.Entries[:mid]
	child.Self.Count = uint32(len(child.Entries))
	newNode.Self.Count = uint32(len(newNode.Entries))

	if kind == node.Leaf {
		newNode.NextLeaf = child.NextLeaf
		child.NextLeaf = node.Index(newV.Index())
	}
	childV.Modify()
	newV.Modify()

	newEntry := t.layout.NewEntry()
	copy(newEntry.Key, newNode.Entries[0].Key)
	newEntry.Value = newNode.Entries[0].Value
	newEntry.Child = node.Header{Block: node.Index(newV.Index()), Count: newNode.Self.Count, Kind: kind}

	pn.Entries = append(pn.Entries, node.Entry{})
	copy(pn.Entries[pos+2:], pn.Entries[pos+1:])
	pn.Entries[pos+1] = newEntry
	pn.Entries[pos].Child.Count = child.Self.Count
	pn.Self.Count = uint32(len(pn.Entries))
	parent.Modify()
	return nil
}

// splitRoot is called when the root's own entry array overflows B. It
// allocates two new inner children and distributes root's entries
// between them, growing the tree by one level.
func (t *Tree) splitRoot() error {
	root := t.root.Node()

	leftV, err := t.cache.Allocate(node.Inner)
	if err != nil {
		return err
	}
	defer leftV.Release()
	rightV, err := t.cache.Allocate(node.Inner)
	if err != nil {
		return err
	}
	defer rightV.Release()

	mid := len(root.Entries) / 2
	leftNode := leftV.Node()
	rightNode := rightV.Node()
	leftNode.Entries = append(leftNode.Entries, root.Entries[:mid]...)
	rightNode.Entries = append(rightNode.Entries, root.Entries[mid:]...)
	leftNode.Self.Count = uint32(len(leftNode.Entries))
	rightNode.Self.Count = uint32(len(rightNode.Entries))
	leftV.Modify()
	rightV.Modify()

	leftEntry := t.layout.NewEntry()
	copy(leftEntry.Key, leftNode.Entries[0].Key)
	leftEntry.Value = leftNode.Entries[0].Value
	leftEntry.Child = node.Header{Block: node.Index(leftV.Index()), Count: leftNode.Self.Count, Kind: node.Inner}

	rightEntry := t.layout.NewEntry()
	copy(rightEntry.Key, rightNode.Entries[0].Key)
	rightEntry.Value = rightNode.Entries[0].Value
	rightEntry.Child = node.Header{Block: node.Index(rightV.Index()), Count: rightNode.Self.Count, Kind: node.Inner}

	root.Entries = []node.Entry{leftEntry, rightEntry}
	root.Self.Count = 2
	t.root.Modify()
	return nil
}
