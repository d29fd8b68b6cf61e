package cache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oda/bptreedb/internal/block"
	"github.com/oda/bptreedb/internal/node"
)

func newCache(t *testing.T, capacity int) (*Cache, *block.File, node.Layout) {
	dir := t.TempDir()
	layout, err := node.NewLayout(8, 10)
	require.NoError(t, err)

	f, err := block.Open(filepath.Join(dir, "s.dat"), filepath.Join(dir, "s.bin"), layout.BlockBytes(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	c, err := New(capacity, f, layout, nil)
	require.NoError(t, err)
	return c, f, layout
}

func TestAllocateAndGetRoundTrip(t *testing.T) {
	c, _, _ := newCache(t, 8)

	v, err := c.Allocate(node.Leaf)
	require.NoError(t, err)
	idx := v.Index()
	v.Node().Self.Count = 3
	v.Modify()
	v.Release()

	got, err := c.Get(idx)
	require.NoError(t, err)
	defer got.Release()
	assert.Equal(t, uint32(3), got.Node().Self.Count)
}

func TestEvictionWritesBackDirtySlot(t *testing.T) {
	c, f, layout := newCache(t, 1)

	v1, err := c.Allocate(node.Leaf)
	require.NoError(t, err)
	i1 := v1.Index()
	for k := 0; k < 5; k++ {
		v1.Node().Entries = append(v1.Node().Entries, layout.NewEntry())
	}
	v1.Node().Self.Count = 5
	v1.Modify()
	v1.Release()

	v2, err := c.Allocate(node.Leaf)
	require.NoError(t, err)
	v2.Release()

	buf, err := f.ReadBlock(i1)
	require.NoError(t, err)
	n, err := layout.Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), n.Self.Count)
}

func TestGetOnPinnedSlotDoesNotEvictItself(t *testing.T) {
	c, _, _ := newCache(t, 4)

	v, err := c.Allocate(node.Leaf)
	require.NoError(t, err)
	idx := v.Index()

	v2, err := c.Get(idx)
	require.NoError(t, err)
	assert.Equal(t, idx, v2.Index())

	v.Release()
	v2.Release()
}

func TestOverPinnedReturnsError(t *testing.T) {
	c, _, _ := newCache(t, 1)

	v, err := c.Allocate(node.Leaf)
	require.NoError(t, err)
	_ = v // keep pinned

	_, err = c.Allocate(node.Leaf)
	assert.ErrorIs(t, err, ErrOverPinned)
}

func TestRecycleDetachesSlotWithoutWriteBack(t *testing.T) {
	c, f, _ := newCache(t, 4)

	v, err := c.Allocate(node.Leaf)
	require.NoError(t, err)
	idx := v.Index()
	v.Node().Self.Count = 9
	v.Modify()

	c.Recycle(v)

	// The dirty image was never written: the block lies past the end of the data file.
	require.NoError(t, c.FlushAll())
	_, err = f.ReadBlock(idx)
	assert.ErrorIs(t, err, block.ErrIO)

	reused, err := f.Allocate()
	require.NoError(t, err)
	assert.Equal(t, idx, reused)
}

func TestFlushAllWritesBackAllDirtySlots(t *testing.T) {
	c, f, layout := newCache(t, 4)

	var idxs []uint32
	for i := 0; i < 3; i++ {
		v, err := c.Allocate(node.Leaf)
		require.NoError(t, err)
		for k := 0; k <= i; k++ {
			v.Node().Entries = append(v.Node().Entries, layout.NewEntry())
		}
		v.Node().Self.Count = uint32(i + 1)
		v.Modify()
		idxs = append(idxs, v.Index())
		v.Release()
	}

	require.NoError(t, c.FlushAll())

	for i, idx := range idxs {
		buf, err := f.ReadBlock(idx)
		require.NoError(t, err)
		n, err := layout.Decode(buf)
		require.NoError(t, err)
		assert.Equal(t, uint32(i+1), n.Self.Count)
	}
}
