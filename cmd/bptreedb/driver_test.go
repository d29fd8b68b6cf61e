package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oda/bptreedb"
)

func newDriver(t *testing.T) *Driver {
	dir := t.TempDir()
	tree, err := bptreedb.Open(filepath.Join(dir, "store"), bptreedb.WithKeyWidth(8), bptreedb.WithFanout(6), bptreedb.WithExpectedHeight(4))
	require.NoError(t, err)
	t.Cleanup(func() { tree.Close() })
	return &Driver{Tree: tree, K: 8}
}

func TestScenarioInsertDuplicateKeyAndMiss(t *testing.T) {
	d := newDriver(t)
	input := "5\ninsert a 1\ninsert a 2\ninsert b 3\nfind a\nfind c\n"

	var out strings.Builder
	require.NoError(t, d.Run(context.Background(), strings.NewReader(input), &out))
	assert.Equal(t, "1 2\nnull\n", out.String())
}

func TestScenarioInsertThenDeleteLeavesNothing(t *testing.T) {
	d := newDriver(t)
	input := "4\ninsert x 10\ndelete x 10\nfind x\nfind x\n"

	var out strings.Builder
	require.NoError(t, d.Run(context.Background(), strings.NewReader(input), &out))
	assert.Equal(t, "null\nnull\n", out.String())
}

func TestReopenAfterMetaFileDeletedFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store")
	tree, err := bptreedb.Open(path, bptreedb.WithKeyWidth(8), bptreedb.WithFanout(6), bptreedb.WithExpectedHeight(4))
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		require.NoError(t, tree.Insert(key8(i), uint32(i)))
	}
	require.NoError(t, tree.Close())

	require.NoError(t, os.Remove(path+".bin"))

	_, err = bptreedb.Open(path, bptreedb.WithKeyWidth(8), bptreedb.WithFanout(6), bptreedb.WithExpectedHeight(4))
	assert.Error(t, err)
}

func key8(i int) []byte {
	b := make([]byte, 8)
	copy(b, fmt.Sprintf("%08d", i))
	return b
}
