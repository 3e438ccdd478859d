// Package storage provides the key-value stores the bridge persists its
// block tree, operator registry and token ledger in.
package storage

import "errors"

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("key not found")

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix in key order.
	// The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// Batch collects writes that are applied together on Commit.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
}

// Batcher is implemented by stores that can commit a Batch atomically.
type Batcher interface {
	NewBatch() Batch
}

// batchOp is a buffered write. A nil value means delete.
type batchOp struct {
	key   []byte
	value []byte
}

func putOp(key, value []byte) batchOp {
	v := make([]byte, len(value))
	copy(v, value)
	return batchOp{key: clone(key), value: v}
}

func deleteOp(key []byte) batchOp {
	return batchOp{key: clone(key)}
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
