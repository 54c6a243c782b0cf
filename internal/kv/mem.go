package kv

import (
	"bytes"
	"context"
	"sort"
	"sync"
)

// MemStore is an in-memory Store guarded by a RWMutex, grounded on
// niczy-poon/poon-server/storage/memory.go's MemoryBackend. Used by tests
// and by the Stager for its transient per-directory staged-entry buffers.
type MemStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (m *MemStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemStore) Put(ctx context.Context, key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (m *MemStore) Delete(ctx context.Context, key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *MemStore) MultiGet(ctx context.Context, keys [][]byte) ([][]byte, error) {
	out := make([][]byte, len(keys))
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i, k := range keys {
		if v, ok := m.data[string(k)]; ok {
			out[i] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

func (m *MemStore) Iter(ctx context.Context, prefix []byte) Iterator {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for k := range m.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	pairs := make([][2][]byte, len(keys))
	for i, k := range keys {
		pairs[i] = [2][]byte{[]byte(k), append([]byte(nil), m.data[k]...)}
	}
	return &memIterator{pairs: pairs, idx: -1}
}

func (m *MemStore) Close() error { return nil }

type memIterator struct {
	pairs [][2][]byte
	idx   int
}

func (it *memIterator) Next() bool {
	it.idx++
	return it.idx < len(it.pairs)
}

func (it *memIterator) Key() []byte { return it.pairs[it.idx][0] }

func (it *memIterator) Value() ([]byte, error) { return it.pairs[it.idx][1], nil }

func (it *memIterator) Close() {}

func (it *memIterator) Err() error { return nil }
