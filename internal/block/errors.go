package block

import "errors"

// Sentinel errors that callers can match with errors.Is. Every error this
// package returns across a layer boundary wraps one of these.
var (
	// ErrIO covers open/read/write/sync failures against the data or meta file.
	ErrIO = errors.New("block: i/o error")
	// ErrCapacityExhausted means the block index space is full.
	ErrCapacityExhausted = errors.New("block: capacity exhausted")
	// ErrLocked means another process already holds the advisory lock on this store.
	ErrLocked = errors.New("block: store already open by another process")
	// ErrCorruptMeta means the sidecar meta file could not be parsed.
	ErrCorruptMeta = errors.New("block: corrupt meta file")
	// ErrClosed means an operation was attempted after Close.
	ErrClosed = errors.New("block: file already closed")
)
