// Package cache implements the page cache: a bounded-residency,
// hash-indexed set of decoded node images backed by a block.File, with
// pinned "visitor" handles and LRU eviction.
package cache

import (
	"container/list"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/oda/bptreedb/internal/block"
	"github.com/oda/bptreedb/internal/logging"
	"github.com/oda/bptreedb/internal/node"
)

// TableSize is the number of buckets in the cache's hash index. It is
// independent of cache capacity; a larger table just shortens chains.
const TableSize = 257

// ErrOverPinned is reported when every resident slot is pinned and a new
// slot is needed. Given the C >= 3*height invariant checked at
// construction, a traversal can never actually hit this; surfacing it as
// an error rather than looping forever turns a latent bug into a visible one.
var ErrOverPinned = fmt.Errorf("cache: no unpinned slot available for eviction")

type slot struct {
	index      uint32
	node       *node.Node
	dirty      bool
	pinCount   int
	lruElem    *list.Element
	bucketNext *slot
}

// Cache is the page cache described above.
type Cache struct {
	table    []*slot
	capacity int
	resident int
	lru      *list.List
	free     []*slot

	file   *block.File
	layout node.Layout
	log    logging.Logger
}

// New builds a cache of the given capacity backed by file, decoding and
// encoding node images with layout. capacity must be at least 1.
func New(capacity int, file *block.File, layout node.Layout, log logging.Logger) (*Cache, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("cache: capacity must be positive, got %d", capacity)
	}
	if log == nil {
		log = logging.Discard
	}
	return &Cache{
		table:    make([]*slot, TableSize),
		capacity: capacity,
		lru:      list.New(),
		file:     file,
		layout:   layout,
		log:      log,
	}, nil
}

func bucketOf(index uint32) int {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], index)
	return int(xxhash.Sum64(b[:]) % uint64(TableSize))
}

func (c *Cache) find(index uint32) *slot {
	for s := c.table[bucketOf(index)]; s != nil; s = s.bucketNext {
		if s.index == index {
			return s
		}
	}
	return nil
}

func (c *Cache) link(s *slot) {
	b := bucketOf(s.index)
	s.bucketNext = c.table[b]
	c.table[b] = s
}

func (c *Cache) unlink(s *slot) {
	b := bucketOf(s.index)
	if c.table[b] == s {
		c.table[b] = s.bucketNext
		s.bucketNext = nil
		return
	}
	for prev := c.table[b]; prev != nil; prev = prev.bucketNext {
		if prev.bucketNext == s {
			prev.bucketNext = s.bucketNext
			s.bucketNext = nil
			return
		}
	}
}

// evict picks an unpinned slot to reuse, writing it back first if dirty.
// It returns nil, ErrOverPinned if every resident slot is pinned.
func (c *Cache) evict() (*slot, error) {
	if len(c.free) > 0 {
		n := len(c.free)
		s := c.free[n-1]
		c.free = c.free[:n-1]
		return s, nil
	}
	if c.resident < c.capacity {
		return &slot{}, nil
	}

	for e := c.lru.Back(); e != nil; e = e.Prev() {
		s := e.Value.(*slot)
		if s.pinCount > 0 {
			continue
		}
		if s.dirty {
			if err := c.writeBack(s); err != nil {
				return nil, err
			}
		}
		c.lru.Remove(e)
		c.unlink(s)
		c.resident--
		s.lruElem = nil
		return s, nil
	}
	return nil, ErrOverPinned
}

func (c *Cache) writeBack(s *slot) error {
	buf := make([]byte, c.layout.BlockBytes())
	if err := c.layout.Encode(s.node, buf); err != nil {
		return fmt.Errorf("cache: encode block %d for write-back: %w", s.index, err)
	}
	if err := c.file.WriteBlock(s.index, buf); err != nil {
		return err
	}
	s.dirty = false
	c.log.Debug("cache: wrote back dirty slot", "block", s.index)
	return nil
}

func (c *Cache) install(s *slot) {
	c.lru.PushFront(s)
	s.lruElem = c.lru.Front()
	c.link(s)
	c.resident++
}

// Get returns a pinned Visitor for block i, loading it from the block
// file if it is not already resident.
func (c *Cache) Get(i uint32) (*Visitor, error) {
	if s := c.find(i); s != nil {
		s.pinCount++
		c.lru.MoveToFront(s.lruElem)
		return &Visitor{c: c, s: s}, nil
	}

	s, err := c.evict()
	if err != nil {
		return nil, err
	}

	buf, err := c.file.ReadBlock(i)
	if err != nil {
		return nil, err
	}
	n, err := c.layout.Decode(buf)
	if err != nil {
		return nil, fmt.Errorf("cache: decode block %d: %w", i, err)
	}

	s.index = i
	s.node = n
	s.dirty = false
	s.pinCount = 1
	c.install(s)
	return &Visitor{c: c, s: s}, nil
}

// Allocate obtains a fresh block index from the block file and returns a
// pinned Visitor for a zeroed, dirty-marked slot backing it.
func (c *Cache) Allocate(kind node.Kind) (*Visitor, error) {
	i, err := c.file.Allocate()
	if err != nil {
		return nil, err
	}

	s, err := c.evict()
	if err != nil {
		return nil, err
	}

	s.index = i
	s.node = c.layout.New(node.Index(i), kind)
	s.dirty = true
	s.pinCount = 1
	c.install(s)
	return &Visitor{c: c, s: s}, nil
}

// Recycle detaches v's slot without writing it back, returns the slot to
// the free pool, and recycles its block on the block file.
func (c *Cache) Recycle(v *Visitor) {
	s := v.s
	if s.lruElem != nil {
		c.lru.Remove(s.lruElem)
		c.unlink(s)
		c.resident--
		s.lruElem = nil
	}
	s.pinCount = 0
	s.dirty = false
	s.node = nil
	c.free = append(c.free, s)
	c.file.Recycle(s.index)
	v.s = nil
}

// FlushAll writes every dirty resident slot back to the block file, from
// the most to the least recently used.
func (c *Cache) FlushAll() error {
	for e := c.lru.Front(); e != nil; e = e.Next() {
		s := e.Value.(*slot)
		if s.dirty {
			if err := c.writeBack(s); err != nil {
				return err
			}
		}
	}
	return nil
}

// Visitor is a pinned handle to one resident node image, valid until Release.
type Visitor struct {
	c *Cache
	s *slot
}

// Index is the block index the visitor is pinned to.
func (v *Visitor) Index() uint32 { return v.s.index }

// Node returns a direct pointer to the cached image. It is valid only
// while the visitor remains pinned.
func (v *Visitor) Node() *node.Node { return v.s.node }

// Read copies the cached image into dst.
func (v *Visitor) Read(dst *node.Node) { *dst = *v.s.node }

// Modify marks the slot dirty; call before mutating Node()'s contents.
func (v *Visitor) Modify() { v.s.dirty = true }

// Release unpins the slot. It is safe to call once per Get/Allocate.
func (v *Visitor) Release() {
	if v.s == nil {
		return
	}
	v.s.pinCount--
	v.s = nil
}
