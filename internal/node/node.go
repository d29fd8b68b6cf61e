package node

import (
	"encoding/binary"
	"fmt"
)

// Entry is one slot in a node's entry array.
//
// In a LEAF node, Key/Value hold a stored pair and Child is unused.
// In an INNER node, Child is the header of the i-th subtree and
// Key/Value hold that subtree's minimum pair.
type Entry struct {
	Child Header
	Key   []byte
	Value uint32
}

// Node is the decoded in-memory image of one block.
type Node struct {
	Self     Header // this node's own identity; Count mirrors len(Entries)
	NextLeaf Index  // valid only when Self.Kind == Leaf
	Entries  []Entry
}

// New builds an empty node of the given kind for the given block.
func (l Layout) New(block Index, kind Kind) *Node {
	return &Node{
		Self:     Header{Block: block, Count: 0, Kind: kind},
		NextLeaf: MaxIndex,
		Entries:  make([]Entry, 0, l.B+1),
	}
}

// NewEntry allocates a Key buffer of the configured width.
func (l Layout) NewEntry() Entry {
	return Entry{Key: make([]byte, l.K)}
}

// IsOverflowed reports whether the node temporarily holds more than B
// entries, the transient state split/amortize must resolve before the
// public operation returns.
func (l Layout) IsOverflowed(n *Node) bool {
	return len(n.Entries) > l.B
}

// Encode serializes n into buf, which must be at least BlockBytes() long.
func (l Layout) Encode(n *Node, buf []byte) error {
	if len(buf) < l.blockBytes {
		return fmt.Errorf("node: buffer too small: have %d need %d", len(buf), l.blockBytes)
	}
	if len(n.Entries) > l.B+1 {
		return fmt.Errorf("node: too many entries to encode: %d > %d", len(n.Entries), l.B+1)
	}

	binary.LittleEndian.PutUint32(buf[0:4], packBlockKind(n.Self.Block, n.Self.Kind))
	binary.LittleEndian.PutUint32(buf[4:8], 0) // reserved
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(n.Entries)))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(n.NextLeaf))

	entrySize := l.leafEntrySize
	if n.Self.Kind == Inner {
		entrySize = l.innerEntrySize
	}

	off := l.headerSize
	for i := 0; i < l.B+1; i++ {
		if i < len(n.Entries) {
			e := n.Entries[i]
			if len(e.Key) != l.K {
				return fmt.Errorf("node: entry %d has key width %d, want %d", i, len(e.Key), l.K)
			}
			pos := off
			if n.Self.Kind == Inner {
				binary.LittleEndian.PutUint32(buf[pos:pos+4], packBlockKind(e.Child.Block, e.Child.Kind))
				binary.LittleEndian.PutUint32(buf[pos+4:pos+8], e.Child.Count)
				pos += childHeaderLen
			}
			copy(buf[pos:pos+l.K], e.Key)
			pos += l.K
			binary.LittleEndian.PutUint32(buf[pos:pos+4], e.Value)
		} else {
			for b := off; b < off+entrySize; b++ {
				buf[b] = 0
			}
		}
		off += entrySize
	}
	for ; off < len(buf); off++ {
		buf[off] = 0
	}
	return nil
}

// Decode deserializes a node image out of buf.
func (l Layout) Decode(buf []byte) (*Node, error) {
	if len(buf) < l.blockBytes {
		return nil, fmt.Errorf("node: buffer too small: have %d need %d", len(buf), l.blockBytes)
	}

	blockKind := binary.LittleEndian.Uint32(buf[0:4])
	block, kind := unpackBlockKind(blockKind)
	count := binary.LittleEndian.Uint32(buf[8:12])
	nextLeaf := Index(binary.LittleEndian.Uint32(buf[12:16]))

	if int(count) > l.B+1 {
		return nil, fmt.Errorf("node: decoded count %d exceeds capacity %d", count, l.B+1)
	}

	n := &Node{
		Self:     Header{Block: block, Count: count, Kind: kind},
		NextLeaf: nextLeaf,
		Entries:  make([]Entry, count),
	}

	entrySize := l.leafEntrySize
	if kind == Inner {
		entrySize = l.innerEntrySize
	}

	off := l.headerSize
	for i := 0; i < int(count); i++ {
		pos := off
		var e Entry
		if kind == Inner {
			childBlockKind := binary.LittleEndian.Uint32(buf[pos : pos+4])
			childCount := binary.LittleEndian.Uint32(buf[pos+4 : pos+8])
			cb, ck := unpackBlockKind(childBlockKind)
			e.Child = Header{Block: cb, Count: childCount, Kind: ck}
			pos += childHeaderLen
		}
		e.Key = append([]byte(nil), buf[pos:pos+l.K]...)
		pos += l.K
		e.Value = binary.LittleEndian.Uint32(buf[pos : pos+4])
		n.Entries[i] = e
		off += entrySize
	}

	return n, nil
}
