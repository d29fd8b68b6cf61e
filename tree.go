// Package bptreedb implements a persistent, disk-resident B+ tree that
// stores an ordered multiset of (key, value) pairs with duplicate keys
// permitted. See internal/block, internal/cache and internal/node for
// the block-file, page-cache and node-layout layers it is built on.
package bptreedb

import (
	"errors"
	"fmt"

	"github.com/oda/bptreedb/internal/block"
	"github.com/oda/bptreedb/internal/cache"
	"github.com/oda/bptreedb/internal/logging"
	"github.com/oda/bptreedb/internal/node"
)

// ErrKeySize is returned when a caller passes a key whose length does
// not match the configured key width.
var ErrKeySize = errors.New("bptreedb: key has the wrong width")

// rootBlock is the fixed block index the root node is persisted at.
const rootBlock = 0

// Tree is a persistent B+ tree over (key, value) pairs.
type Tree struct {
	file   *block.File
	cache  *cache.Cache
	layout node.Layout
	log    logging.Logger

	root *cache.Visitor // permanently pinned for the tree's lifetime
}

// Options configures Open. See WithKeyWidth, WithFanout, WithCacheCapacity
// and WithLogger.
type Options struct {
	K      int
	B      int
	Height int
	C      int
	hasC   bool
	Logger logging.Logger
}

// Option mutates Options in place.
type Option func(*Options)

// WithKeyWidth sets the fixed key width in bytes. Default 68.
func WithKeyWidth(k int) Option {
	return func(o *Options) { o.K = k }
}

// WithFanout sets the maximum entries per node, from which AMORT_SIZE
// and MERGE_SIZE are derived. Default 50.
func WithFanout(b int) Option {
	return func(o *Options) { o.B = b }
}

// WithExpectedHeight tells Open how many levels the tree is expected to
// reach, so it can size the page cache as C = 3*height when no explicit
// capacity is given. Default 6.
func WithExpectedHeight(height int) Option {
	return func(o *Options) { o.Height = height }
}

// WithCacheCapacity overrides the page cache's slot count directly. It
// must satisfy C >= 3*height or Open returns an error.
func WithCacheCapacity(c int) Option {
	return func(o *Options) { o.C = c; o.hasC = true }
}

// WithLogger injects a structured logger. The default is a no-op discard logger.
func WithLogger(l logging.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

func defaultOptions() Options {
	return Options{
		K:      68,
		B:      50,
		Height: 6,
		Logger: logging.Discard,
	}
}

// Open opens or creates the tree rooted at path prefix p, writing
// p+".dat" (block file) and p+".bin" (meta/free-list).
func Open(p string, opts ...Option) (*Tree, error) {
	o := defaultOptions()
	for _, apply := range opts {
		apply(&o)
	}
	if o.Logger == nil {
		o.Logger = logging.Discard
	}

	layout, err := node.NewLayout(o.K, o.B)
	if err != nil {
		return nil, fmt.Errorf("bptreedb: %w", err)
	}

	capacity := o.C
	if !o.hasC {
		capacity = 3 * o.Height
	}
	if capacity < 3*o.Height {
		return nil, fmt.Errorf("bptreedb: cache capacity %d is below the required 3*height (%d)", capacity, 3*o.Height)
	}

	f, err := block.Open(p+".dat", p+".bin", layout.BlockBytes(), o.Logger)
	if err != nil {
		return nil, err
	}

	c, err := cache.New(capacity, f, layout, o.Logger)
	if err != nil {
		f.Close()
		return nil, err
	}

	t := &Tree{file: f, cache: c, layout: layout, log: o.Logger}

	if f.Empty() {
		root, err := c.Get(rootBlock)
		if err != nil {
			f.Close()
			return nil, err
		}
		*root.Node() = *layout.New(node.Index(rootBlock), node.Inner)
		root.Modify()
		t.root = root
	} else {
		root, err := c.Get(rootBlock)
		if err != nil {
			f.Close()
			return nil, err
		}
		t.root = root
	}

	o.Logger.Info("bptreedb: opened tree", "path", p, "key_width", o.K, "fanout", o.B, "cache_capacity", capacity)
	return t, nil
}

// Close flushes the root and every dirty cache slot, then closes the
// underlying block file and releases its advisory lock.
func (t *Tree) Close() error {
	t.root.Release()
	if err := t.cache.FlushAll(); err != nil {
		return err
	}
	return t.file.Close()
}

// Empty reports whether the tree currently holds no pairs.
func (t *Tree) Empty() bool {
	return len(t.root.Node().Entries) == 0
}

// Size returns the number of blocks the underlying file has ever
// allocated, including recycled ones; it is a storage metric, not a pair count.
func (t *Tree) Size() uint32 {
	return t.file.Size()
}

func (t *Tree) checkKeyWidth(key []byte) error {
	if len(key) != t.layout.K {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrKeySize, len(key), t.layout.K)
	}
	return nil
}
