// Package kv provides the ordered embedded key-value abstraction every
// higher layer (object db, commit db, ref store, entry index, stager)
// builds on (spec §4.2). Two implementations exist: BadgerStore for
// on-disk repositories, grounded on
// lunfardo314-unitrie/adaptors/badger_adaptor's use of
// github.com/dgraph-io/badger/v4, and MemStore for tests and the
// Stager's transient per-directory buffers, grounded on
// niczy-poon/poon-server/storage/memory.go's MemoryBackend.
package kv

import "context"

// Mode selects how a store is opened.
type Mode int

const (
	ReadWrite Mode = iota
	ReadOnly
)

// Iterator walks a key range in lexicographic order.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() ([]byte, error)
	Close()
	Err() error
}

// Store is the embedded KV contract: atomic single-key writes, point
// lookups, multi-get, and prefix range scans. Many processes may hold a
// Store opened ReadOnly concurrently; at most one process holds it
// ReadWrite at a time (spec §4.2, §5).
type Store interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Put(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error
	MultiGet(ctx context.Context, keys [][]byte) ([][]byte, error)
	Iter(ctx context.Context, prefix []byte) Iterator
	Close() error
}

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errKeyNotFound{}

type errKeyNotFound struct{}

func (errKeyNotFound) Error() string { return "kv: key not found" }
