package bptreedb

import (
	"errors"

	"github.com/oda/bptreedb/internal/cache"
	"github.com/oda/bptreedb/internal/node"
)

// ErrIteratorEnd is returned by Pair when the iterator has reached the end.
var ErrIteratorEnd = errors.New("bptreedb: iterator is at end")

// Iterator walks pairs in ascending (key, value) order starting from
// wherever FindIter positioned it. It is invalidated by any mutation of
// the tree and must be closed when no longer needed.
type Iterator struct {
	t     *Tree
	leaf  *cache.Visitor
	index int // -1 means end
}

func (t *Tree) newIterator(leafBlock uint32, pos int) (*Iterator, error) {
	v, err := t.cache.Get(leafBlock)
	if err != nil {
		return nil, err
	}
	it := &Iterator{t: t, leaf: v, index: pos}
	it.normalize()
	return it, nil
}

// normalize advances across empty/exhausted leaves until index points
// at a real entry or the iterator reaches end.
func (it *Iterator) normalize() {
	for it.index >= len(it.leaf.Node().Entries) {
		next := it.leaf.Node().NextLeaf
		it.leaf.Release()
		if next == node.MaxIndex {
			it.leaf = nil
			it.index = -1
			return
		}
		v, err := it.t.cache.Get(uint32(next))
		if err != nil {
			it.leaf = nil
			it.index = -1
			return
		}
		it.leaf = v
		it.index = 0
	}
}

// FindIter positions an iterator at the first pair with the given key,
// or at end if no such pair exists.
func (t *Tree) FindIter(key []byte) (*Iterator, error) {
	if err := t.checkKeyWidth(key); err != nil {
		return nil, err
	}
	if t.Empty() {
		return &Iterator{t: t, index: -1}, nil
	}
	leafIdx, pos, err := t.descendToLeaf(key)
	if err != nil {
		return nil, err
	}
	if leafIdx == uint32(node.MaxIndex) {
		return &Iterator{t: t, index: -1}, nil
	}
	it, err := t.newIterator(leafIdx, pos)
	if err != nil {
		return nil, err
	}
	if !it.End() {
		k, _, _ := it.Pair()
		if node.Compare(k, key) != 0 {
			it.Close()
			return &Iterator{t: t, index: -1}, nil
		}
	}
	return it, nil
}

// End reports whether the iterator has no current pair.
func (it *Iterator) End() bool { return it.index < 0 }

// Pair returns the (key, value) at the iterator's current position.
func (it *Iterator) Pair() ([]byte, uint32, error) {
	if it.End() {
		return nil, 0, ErrIteratorEnd
	}
	e := it.leaf.Node().Entries[it.index]
	return e.Key, e.Value, nil
}

// Advance moves the iterator to the next pair, or to end.
func (it *Iterator) Advance() error {
	if it.End() {
		return ErrIteratorEnd
	}
	it.index++
	it.normalize()
	return nil
}

// Close releases the iterator's pinned leaf. Safe to call more than once.
func (it *Iterator) Close() {
	if it.leaf != nil {
		it.leaf.Release()
		it.leaf = nil
	}
	it.index = -1
}
