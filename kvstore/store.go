// Package kvstore provides the key-value storage the auction engine persists
// its state through, plus the staging transaction that gives every command
// all-or-nothing commit semantics.
package kvstore

import (
	"errors"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("kvstore: not found")

// Store is a key-value store with atomic batch commit.
type Store interface {
	// Get returns the value stored at key, or ErrNotFound.
	Get(key []byte) ([]byte, error)

	// Has reports whether key is present.
	Has(key []byte) (bool, error)

	// Write applies every operation of the batch atomically.
	Write(b *Batch) error
}

type batchOp struct {
	key    []byte
	value  []byte
	delete bool
}

// Batch is an ordered list of puts and deletes.
type Batch struct {
	ops []batchOp
}

// Put records a write of value at key. Both slices are copied.
func (b *Batch) Put(key, value []byte) {
	b.ops = append(b.ops, batchOp{key: cloneBytes(key), value: cloneBytes(value)})
}

// Delete records removal of key.
func (b *Batch) Delete(key []byte) {
	b.ops = append(b.ops, batchOp{key: cloneBytes(key), delete: true})
}

// Len returns the number of recorded operations.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Reset drops all recorded operations.
func (b *Batch) Reset() {
	b.ops = b.ops[:0]
}

// BatchReplay receives the operations of a batch in order.
type BatchReplay interface {
	Put(key, value []byte)
	Delete(key []byte)
}

// Replay feeds the batch operations to r in insertion order.
func (b *Batch) Replay(r BatchReplay) {
	for _, op := range b.ops {
		if op.delete {
			r.Delete(op.key)
		} else {
			r.Put(op.key, op.value)
		}
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
