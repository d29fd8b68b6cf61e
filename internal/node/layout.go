// Package node defines the binary format of B+ tree nodes and the
// binary-search primitives used to navigate a node's entry array.
package node

import "fmt"

// Kind distinguishes an internal (branch) node from a leaf node.
type Kind uint8

const (
	// Inner nodes hold (child header, subtree-minimum pair) entries.
	Inner Kind = 0
	// Leaf nodes hold stored (key, value) pairs directly.
	Leaf Kind = 1
)

func (k Kind) String() string {
	if k == Leaf {
		return "leaf"
	}
	return "inner"
}

// Index identifies a physical block. MaxIndex is the "no next leaf" /
// "no such block" sentinel. The high bit of the serialized form carries
// the node's Kind, so the addressable range is one bit narrower than a
// full uint32.
type Index uint32

// MaxIndex is the sentinel meaning "no next leaf" or "invalid block".
const MaxIndex Index = 0x7fffffff

const kindBit uint32 = 0x80000000

// Header describes a node: the block holding it, how many entries it
// currently has, and whether it is a leaf or an inner node.
type Header struct {
	Block Index
	Count uint32
	Kind  Kind
}

func packBlockKind(block Index, kind Kind) uint32 {
	v := uint32(block)
	if kind == Leaf {
		v |= kindBit
	}
	return v
}

func unpackBlockKind(v uint32) (Index, Kind) {
	kind := Inner
	if v&kindBit != 0 {
		kind = Leaf
	}
	return Index(v &^ kindBit), kind
}

// Layout carries the configuration-time parameters that size a node:
// key width K, fan-out B, and the derived rebalance thresholds.
type Layout struct {
	K         int // key width in bytes
	B         int // max entries per node
	AmortSize int // amortize below this before it's considered for a split alternative
	MergeSize int // underfull below this

	leafEntrySize  int // K + 4 (value)
	innerEntrySize int // 8 (child header) + K + 4 (value)
	headerSize     int // self header (8) + count (4) + next_leaf (4)
	nodeBytes      int // headerSize + (B+1)*max(leafEntrySize, innerEntrySize)
	blockBytes     int // nodeBytes rounded up to a multiple of 4096
}

const (
	valueSize      = 4  // sizeof(uint32)
	childHeaderLen = 8  // block_kind(4) + count(4)
	selfHeaderLen  = 16 // block_kind(4) + reserved(4) + count(4) + next_leaf(4)
	blockAlignment = 4096
)

// NewLayout builds a Layout for key width k and fan-out b, deriving
// AMORT_SIZE = floor(2b/3) and MERGE_SIZE = floor(b/3).
//
// It returns an error if the derived thresholds would violate
// MERGE_SIZE < AMORT_SIZE <= B, which can only happen for degenerately
// small b.
func NewLayout(k, b int) (Layout, error) {
	if k <= 0 {
		return Layout{}, fmt.Errorf("node: key width must be positive, got %d", k)
	}
	if b < 4 {
		return Layout{}, fmt.Errorf("node: fan-out must be at least 4, got %d", b)
	}

	amort := (2 * b) / 3
	merge := b / 3
	if !(merge < amort && amort <= b) {
		return Layout{}, fmt.Errorf("node: derived thresholds invalid for B=%d (amort=%d merge=%d)", b, amort, merge)
	}

	l := Layout{
		K:         k,
		B:         b,
		AmortSize: amort,
		MergeSize: merge,
	}
	l.leafEntrySize = k + valueSize
	l.innerEntrySize = childHeaderLen + k + valueSize
	l.headerSize = selfHeaderLen

	entrySize := l.leafEntrySize
	if l.innerEntrySize > entrySize {
		entrySize = l.innerEntrySize
	}
	l.nodeBytes = l.headerSize + (b+1)*entrySize

	blocks := (l.nodeBytes + blockAlignment - 1) / blockAlignment
	if blocks == 0 {
		blocks = 1
	}
	l.blockBytes = blocks * blockAlignment

	return l, nil
}

// BlockBytes is the fixed size of every block in the data file.
func (l Layout) BlockBytes() int { return l.blockBytes }
