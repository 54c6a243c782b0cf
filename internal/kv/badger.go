package kv

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// BadgerStore wraps a *badger.DB and implements Store. Put/Delete use
// db.Update, which returns only after the transaction is committed to
// Badger's write-ahead log — a returned nil error is durable, per spec
// §4.2's crash semantics.
type BadgerStore struct {
	db  *badger.DB
	log *zap.SugaredLogger
}

// Open opens (or creates) a Badger database at path. mode=ReadOnly lets
// many processes open the same path concurrently; mode=ReadWrite must be
// held by at most one process (enforced by Badger's own directory lock).
func Open(path string, mode Mode, log *zap.SugaredLogger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Badger's own logging is disabled; log is not passed to Badger.
	if mode == ReadOnly {
		opts.ReadOnly = true
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db, log: log}, nil
}

func (s *BadgerStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	return out, err
}

func (s *BadgerStore) Put(ctx context.Context, key, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (s *BadgerStore) Delete(ctx context.Context, key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

func (s *BadgerStore) MultiGet(ctx context.Context, keys [][]byte) ([][]byte, error) {
	out := make([][]byte, len(keys))
	err := s.db.View(func(txn *badger.Txn) error {
		for i, k := range keys {
			item, err := txn.Get(k)
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out[i] = v
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) Iter(ctx context.Context, prefix []byte) Iterator {
	txn := s.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	it := txn.NewIterator(opts)
	it.Seek(prefix)
	return &badgerIterator{txn: txn, it: it, prefix: prefix, started: false}
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

type badgerIterator struct {
	txn     *badger.Txn
	it      *badger.Iterator
	prefix  []byte
	started bool
	err     error
}

func (i *badgerIterator) Next() bool {
	if !i.started {
		i.started = true
	} else {
		i.it.Next()
	}
	return i.it.ValidForPrefix(i.prefix)
}

func (i *badgerIterator) Key() []byte {
	return append([]byte(nil), i.it.Item().Key()...)
}

func (i *badgerIterator) Value() ([]byte, error) {
	return i.it.Item().ValueCopy(nil)
}

func (i *badgerIterator) Close() {
	i.it.Close()
	i.txn.Discard()
}

func (i *badgerIterator) Err() error { return i.err }
