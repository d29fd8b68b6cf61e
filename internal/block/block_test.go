package block

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paths(t *testing.T) (string, string) {
	dir := t.TempDir()
	return filepath.Join(dir, "store.dat"), filepath.Join(dir, "store.bin")
}

func TestOpenFreshStoreIsEmpty(t *testing.T) {
	dataPath, metaPath := paths(t)
	f, err := Open(dataPath, metaPath, 4096, nil)
	require.NoError(t, err)
	defer f.Close()

	assert.True(t, f.Empty())
	assert.Equal(t, uint32(1), f.Size())
}

func TestAllocateGrowsAndSkipsBlockZero(t *testing.T) {
	dataPath, metaPath := paths(t)
	f, err := Open(dataPath, metaPath, 4096, nil)
	require.NoError(t, err)
	defer f.Close()

	i, err := f.Allocate()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), i)

	j, err := f.Allocate()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), j)
}

func TestWriteReadBlockRoundTrip(t *testing.T) {
	dataPath, metaPath := paths(t)
	f, err := Open(dataPath, metaPath, 4096, nil)
	require.NoError(t, err)
	defer f.Close()

	i, err := f.Allocate()
	require.NoError(t, err)

	buf := make([]byte, 4096)
	for k := range buf {
		buf[k] = byte(k % 256)
	}
	require.NoError(t, f.WriteBlock(i, buf))

	got, err := f.ReadBlock(i)
	require.NoError(t, err)
	assert.Equal(t, buf, got)
}

func TestRecycleReusesBlock(t *testing.T) {
	dataPath, metaPath := paths(t)
	f, err := Open(dataPath, metaPath, 4096, nil)
	require.NoError(t, err)
	defer f.Close()

	i, err := f.Allocate()
	require.NoError(t, err)
	f.Recycle(i)

	j, err := f.Allocate()
	require.NoError(t, err)
	assert.Equal(t, i, j)
}

func TestFreeListSurvivesCloseReopen(t *testing.T) {
	dataPath, metaPath := paths(t)
	f, err := Open(dataPath, metaPath, 4096, nil)
	require.NoError(t, err)

	i, err := f.Allocate()
	require.NoError(t, err)
	_, err = f.Allocate()
	require.NoError(t, err)
	f.Recycle(i)
	require.NoError(t, f.Close())

	f2, err := Open(dataPath, metaPath, 4096, nil)
	require.NoError(t, err)
	defer f2.Close()

	assert.False(t, f2.Empty())
	reused, err := f2.Allocate()
	require.NoError(t, err)
	assert.Equal(t, i, reused)
}

func TestSecondOpenFailsWhileFirstIsLive(t *testing.T) {
	dataPath, metaPath := paths(t)
	f, err := Open(dataPath, metaPath, 4096, nil)
	require.NoError(t, err)
	defer f.Close()

	_, err = Open(dataPath, metaPath, 4096, nil)
	assert.ErrorIs(t, err, ErrLocked)
}

func TestOperationsAfterCloseFail(t *testing.T) {
	dataPath, metaPath := paths(t)
	f, err := Open(dataPath, metaPath, 4096, nil)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = f.Allocate()
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestWriteBlockRejectsWrongSize(t *testing.T) {
	dataPath, metaPath := paths(t)
	f, err := Open(dataPath, metaPath, 4096, nil)
	require.NoError(t, err)
	defer f.Close()

	err = f.WriteBlock(0, make([]byte, 10))
	assert.ErrorIs(t, err, ErrIO)
}
