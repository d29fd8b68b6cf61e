// Package block implements the lowest layer of the store: a random
// access file partitioned into fixed-size blocks, with a sidecar
// free-list file and an advisory cross-process lock.
package block

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/oda/bptreedb/internal/logging"
)

// File maps a block index to a fixed-size block of bytes on disk and
// maintains a persistent free-block list in a sidecar meta file.
type File struct {
	data *os.File
	meta *os.File

	blockBytes int
	freeList   []uint32
	nextBlock  uint32
	wasEmpty   bool
	closed     bool

	log logging.Logger
}

// metaHeaderLen is the width of the free_count field the meta file opens with.
const metaHeaderLen = 4

// Open opens or creates the data file at dataPath and the meta file at
// metaPath, sized to hold blocks of blockBytes bytes. It takes an
// advisory exclusive flock on the data file for the lifetime of the
// returned File.
func Open(dataPath, metaPath string, blockBytes int, log logging.Logger) (*File, error) {
	if log == nil {
		log = logging.Discard
	}

	data, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open data file %s: %v", ErrIO, dataPath, err)
	}

	if err := unix.Flock(int(data.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		data.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrLocked, dataPath, err)
	}

	info, err := data.Stat()
	if err != nil {
		data.Close()
		return nil, fmt.Errorf("%w: stat %s: %v", ErrIO, dataPath, err)
	}

	f := &File{
		data:       data,
		blockBytes: blockBytes,
		log:        log,
	}

	if info.Size() == 0 {
		f.wasEmpty = true
		f.nextBlock = 1 // block 0 reserved for the root

		zero := make([]byte, blockBytes)
		if _, err := data.WriteAt(zero, 0); err != nil {
			data.Close()
			return nil, fmt.Errorf("%w: init root block of %s: %v", ErrIO, dataPath, err)
		}

		meta, err := os.OpenFile(metaPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			data.Close()
			return nil, fmt.Errorf("%w: create meta file %s: %v", ErrIO, metaPath, err)
		}
		f.meta = meta
		if err := f.writeMeta(); err != nil {
			data.Close()
			meta.Close()
			return nil, err
		}
		log.Info("block: created new store", "data", dataPath, "meta", metaPath, "block_bytes", blockBytes)
		return f, nil
	}

	meta, err := os.OpenFile(metaPath, os.O_RDWR, 0o644)
	if err != nil {
		data.Close()
		return nil, fmt.Errorf("%w: open meta file %s: %v", ErrIO, metaPath, err)
	}
	f.meta = meta
	if err := f.readMeta(); err != nil {
		data.Close()
		meta.Close()
		return nil, err
	}

	log.Info("block: opened existing store", "data", dataPath, "meta", metaPath, "next_block", f.nextBlock, "free", len(f.freeList))
	return f, nil
}

func (f *File) readMeta() error {
	buf, err := io.ReadAll(f.meta)
	if err != nil {
		return fmt.Errorf("%w: read meta: %v", ErrIO, err)
	}
	if len(buf) < metaHeaderLen+4 {
		return fmt.Errorf("%w: meta file too short (%d bytes)", ErrCorruptMeta, len(buf))
	}

	freeCount := binary.LittleEndian.Uint32(buf[0:4])
	want := metaHeaderLen + int(freeCount)*4 + 4
	if len(buf) < want {
		return fmt.Errorf("%w: meta file truncated, want %d bytes have %d", ErrCorruptMeta, want, len(buf))
	}

	freeList := make([]uint32, freeCount)
	off := metaHeaderLen
	for i := range freeList {
		freeList[i] = binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
	}

	f.freeList = freeList
	f.nextBlock = binary.LittleEndian.Uint32(buf[off : off+4])
	return nil
}

func (f *File) writeMeta() error {
	buf := make([]byte, metaHeaderLen+len(f.freeList)*4+4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(f.freeList)))
	off := metaHeaderLen
	for _, idx := range f.freeList {
		binary.LittleEndian.PutUint32(buf[off:off+4], idx)
		off += 4
	}
	binary.LittleEndian.PutUint32(buf[off:off+4], f.nextBlock)

	if _, err := f.meta.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("%w: write meta: %v", ErrIO, err)
	}
	if err := f.meta.Truncate(int64(len(buf))); err != nil {
		return fmt.Errorf("%w: truncate meta: %v", ErrIO, err)
	}
	return nil
}

// Empty reports whether the data file was just created by this Open call.
func (f *File) Empty() bool { return f.wasEmpty }

// BlockBytes is the fixed size of every block.
func (f *File) BlockBytes() int { return f.blockBytes }

// ReadBlock reads block i into a freshly allocated buffer.
func (f *File) ReadBlock(i uint32) ([]byte, error) {
	if f.closed {
		return nil, ErrClosed
	}
	buf := make([]byte, f.blockBytes)
	n, err := f.data.ReadAt(buf, int64(i)*int64(f.blockBytes))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: read block %d: %v", ErrIO, i, err)
	}
	if n < f.blockBytes {
		return nil, fmt.Errorf("%w: short read of block %d (%d of %d bytes)", ErrIO, i, n, f.blockBytes)
	}
	return buf, nil
}

// WriteBlock writes buf (which must be exactly BlockBytes() long) to block i.
func (f *File) WriteBlock(i uint32, buf []byte) error {
	if f.closed {
		return ErrClosed
	}
	if len(buf) != f.blockBytes {
		return fmt.Errorf("%w: write block %d: buffer is %d bytes, want %d", ErrIO, i, len(buf), f.blockBytes)
	}
	if _, err := f.data.WriteAt(buf, int64(i)*int64(f.blockBytes)); err != nil {
		return fmt.Errorf("%w: write block %d: %v", ErrIO, i, err)
	}
	return nil
}

// Allocate returns the index of a fresh block, preferring one reclaimed
// by a prior Recycle over extending the file. Block 0 is never returned;
// it is reserved for the root.
func (f *File) Allocate() (uint32, error) {
	if f.closed {
		return 0, ErrClosed
	}
	if n := len(f.freeList); n > 0 {
		i := f.freeList[n-1]
		f.freeList = f.freeList[:n-1]
		f.log.Debug("block: allocated from free list", "block", i)
		return i, nil
	}
	if f.nextBlock == 0 {
		return 0, fmt.Errorf("%w: block index space exhausted", ErrCapacityExhausted)
	}
	i := f.nextBlock
	f.nextBlock++
	f.log.Debug("block: allocated by growing file", "block", i)
	return i, nil
}

// Recycle pushes block i onto the free list. The caller promises no
// further reads will reference i until it is reallocated.
func (f *File) Recycle(i uint32) {
	f.freeList = append(f.freeList, i)
	f.log.Debug("block: recycled", "block", i)
}

// Size returns the count of all blocks ever allocated, including those
// now on the free list.
func (f *File) Size() uint32 { return f.nextBlock }

// Flush fsyncs the data and meta files, flushing the free-list state to
// the meta file first.
func (f *File) Flush() error {
	if f.closed {
		return ErrClosed
	}
	if err := f.writeMeta(); err != nil {
		return err
	}
	if err := unix.Fsync(int(f.data.Fd())); err != nil {
		return fmt.Errorf("%w: fsync data file: %v", ErrIO, err)
	}
	if err := unix.Fsync(int(f.meta.Fd())); err != nil {
		return fmt.Errorf("%w: fsync meta file: %v", ErrIO, err)
	}
	return nil
}

// Close flushes and releases the advisory lock. It is safe to call
// Close more than once.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	flushErr := f.Flush()
	f.closed = true

	if err := unix.Flock(int(f.data.Fd()), unix.LOCK_UN); err != nil {
		f.log.Warn("block: failed to release lock", "error", err)
	}
	if err := f.data.Close(); err != nil && flushErr == nil {
		flushErr = fmt.Errorf("%w: close data file: %v", ErrIO, err)
	}
	if err := f.meta.Close(); err != nil && flushErr == nil {
		flushErr = fmt.Errorf("%w: close meta file: %v", ErrIO, err)
	}
	return flushErr
}
