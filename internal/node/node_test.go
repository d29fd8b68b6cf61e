package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLayoutThresholds(t *testing.T) {
	l, err := NewLayout(8, 50)
	require.NoError(t, err)
	assert.Equal(t, 33, l.AmortSize)
	assert.Equal(t, 16, l.MergeSize)
	assert.True(t, l.MergeSize < l.AmortSize)
	assert.True(t, l.AmortSize <= l.B)
	assert.Equal(t, 4096, l.BlockBytes())
}

func TestNewLayoutRejectsDegenerateFanout(t *testing.T) {
	_, err := NewLayout(8, 2)
	assert.Error(t, err)
}

func TestNewLayoutRejectsZeroKeyWidth(t *testing.T) {
	_, err := NewLayout(0, 50)
	assert.Error(t, err)
}

func TestEncodeDecodeLeafRoundTrip(t *testing.T) {
	l, err := NewLayout(8, 50)
	require.NoError(t, err)

	n := l.New(Index(3), Leaf)
	n.NextLeaf = Index(7)
	for i := 0; i < 5; i++ {
		e := l.NewEntry()
		copy(e.Key, []byte{byte(i), 0, 0, 0, 0, 0, 0, 0})
		e.Value = uint32(100 + i)
		n.Entries = append(n.Entries, e)
	}
	n.Self.Count = uint32(len(n.Entries))

	buf := make([]byte, l.BlockBytes())
	require.NoError(t, l.Encode(n, buf))

	got, err := l.Decode(buf)
	require.NoError(t, err)

	assert.Equal(t, n.Self, got.Self)
	assert.Equal(t, n.NextLeaf, got.NextLeaf)
	require.Len(t, got.Entries, len(n.Entries))
	for i := range n.Entries {
		assert.Equal(t, n.Entries[i].Key, got.Entries[i].Key)
		assert.Equal(t, n.Entries[i].Value, got.Entries[i].Value)
	}
}

func TestEncodeDecodeInnerRoundTrip(t *testing.T) {
	l, err := NewLayout(4, 10)
	require.NoError(t, err)

	n := l.New(Index(1), Inner)
	for i := 0; i < 3; i++ {
		e := l.NewEntry()
		copy(e.Key, []byte{byte(i + 1), 0, 0, 0})
		e.Value = uint32(i)
		e.Child = Header{Block: Index(10 + i), Count: uint32(2 + i), Kind: Leaf}
		n.Entries = append(n.Entries, e)
	}
	n.Self.Count = uint32(len(n.Entries))

	buf := make([]byte, l.BlockBytes())
	require.NoError(t, l.Encode(n, buf))

	got, err := l.Decode(buf)
	require.NoError(t, err)

	require.Len(t, got.Entries, 3)
	for i := range n.Entries {
		assert.Equal(t, n.Entries[i].Child, got.Entries[i].Child)
		assert.Equal(t, n.Entries[i].Key, got.Entries[i].Key)
		assert.Equal(t, n.Entries[i].Value, got.Entries[i].Value)
	}
}

func TestEncodeRejectsUndersizedBuffer(t *testing.T) {
	l, err := NewLayout(8, 50)
	require.NoError(t, err)
	n := l.New(Index(0), Leaf)
	err = l.Encode(n, make([]byte, 10))
	assert.Error(t, err)
}

func TestPackUnpackBlockKindRoundTrip(t *testing.T) {
	for _, kind := range []Kind{Inner, Leaf} {
		v := packBlockKind(Index(123456), kind)
		block, k := unpackBlockKind(v)
		assert.Equal(t, Index(123456), block)
		assert.Equal(t, kind, k)
	}
}

func TestBinarySearchFindsExactMatch(t *testing.T) {
	keys := []int{1, 3, 5, 7, 9}
	cmp := func(i int) int { return keys[i] - 5 }
	got := BinarySearch(len(keys), cmp)
	assert.Equal(t, 2, got)
}

func TestBinarySearchReturnsComplementWhenAbsent(t *testing.T) {
	keys := []int{1, 3, 5, 7, 9}
	cmp := func(i int) int { return keys[i] - 4 }
	got := BinarySearch(len(keys), cmp)
	assert.True(t, got < 0)
	assert.Equal(t, 2, ^got)
}

func TestLowerUpperBoundWithDuplicates(t *testing.T) {
	keys := []int{1, 2, 2, 2, 5}
	cmp := func(i int) int { return keys[i] - 2 }
	assert.Equal(t, 1, LowerBound(len(keys), cmp))
	assert.Equal(t, 4, UpperBound(len(keys), cmp))
}

func TestLowerBoundAllGreater(t *testing.T) {
	keys := []int{5, 6, 7}
	cmp := func(i int) int { return keys[i] - 1 }
	assert.Equal(t, 0, LowerBound(len(keys), cmp))
}

func TestUpperBoundAllLess(t *testing.T) {
	keys := []int{1, 2, 3}
	cmp := func(i int) int { return keys[i] - 9 }
	assert.Equal(t, 3, UpperBound(len(keys), cmp))
}

func TestCompareOrdering(t *testing.T) {
	assert.True(t, Compare([]byte{1, 2}, []byte{1, 3}) < 0)
	assert.True(t, Compare([]byte{1, 3}, []byte{1, 2}) > 0)
	assert.Equal(t, 0, Compare([]byte{1, 2}, []byte{1, 2}))
}
