package kvstore

import (
	"errors"
)

// ErrTxDone is returned when a committed or discarded Tx is used again.
var ErrTxDone = errors.New("kvstore: transaction already finished")

type staged struct {
	value   []byte
	deleted bool
}

// Tx stages writes on top of a parent Store. Reads see the staged writes
// first. Nothing reaches the parent until Commit, which writes everything
// as one batch.
//
// Tx implements Store, so a Tx can be the parent of another Tx: committing
// the inner one only stages into the outer one.
type Tx struct {
	parent Store
	writes map[string]staged
	batch  Batch
	done   bool
}

// NewTx opens a staging transaction over parent.
func NewTx(parent Store) *Tx {
	return &Tx{
		parent: parent,
		writes: make(map[string]staged),
	}
}

func (tx *Tx) Get(key []byte) ([]byte, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	if s, ok := tx.writes[string(key)]; ok {
		if s.deleted {
			return nil, ErrNotFound
		}
		return cloneBytes(s.value), nil
	}
	return tx.parent.Get(key)
}

func (tx *Tx) Has(key []byte) (bool, error) {
	if tx.done {
		return false, ErrTxDone
	}
	if s, ok := tx.writes[string(key)]; ok {
		return !s.deleted, nil
	}
	return tx.parent.Has(key)
}

// Put stages a write.
func (tx *Tx) Put(key, value []byte) error {
	if tx.done {
		return ErrTxDone
	}
	tx.writes[string(key)] = staged{value: cloneBytes(value)}
	tx.batch.Put(key, value)
	return nil
}

// Delete stages a removal.
func (tx *Tx) Delete(key []byte) error {
	if tx.done {
		return ErrTxDone
	}
	tx.writes[string(key)] = staged{deleted: true}
	tx.batch.Delete(key)
	return nil
}

// Write stages every operation of b. It does not touch the parent.
func (tx *Tx) Write(b *Batch) error {
	if tx.done {
		return ErrTxDone
	}
	b.Replay(txReplay{tx})
	return nil
}

// Pending returns the number of staged operations.
func (tx *Tx) Pending() int {
	return tx.batch.Len()
}

// Commit writes the staged operations to the parent in one batch.
// A Tx with nothing staged commits without touching the parent.
func (tx *Tx) Commit() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	if tx.batch.Len() == 0 {
		return nil
	}
	return tx.parent.Write(&tx.batch)
}

// Discard drops the staged operations. Calling it after Commit is a no-op,
// which makes `defer tx.Discard()` safe.
func (tx *Tx) Discard() {
	if tx.done {
		return
	}
	tx.done = true
	tx.writes = nil
	tx.batch.Reset()
}

type txReplay struct {
	tx *Tx
}

func (r txReplay) Put(key, value []byte) {
	_ = r.tx.Put(key, value)
}

func (r txReplay) Delete(key []byte) {
	_ = r.tx.Delete(key)
}
