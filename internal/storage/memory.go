package storage

import (
	"sort"
	"strings"
	"sync"
)

// MemoryDB is a map-backed DB for tests and throwaway nodes. Stored values
// are private copies.
type MemoryDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *MemoryDB {
	return &MemoryDB{data: make(map[string][]byte)}
}

func (m *MemoryDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.data[string(key)]; ok {
		return clone(v), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryDB) Put(key, value []byte) error {
	return m.apply([]batchOp{putOp(key, value)})
}

func (m *MemoryDB) Delete(key []byte) error {
	return m.apply([]batchOp{deleteOp(key)})
}

func (m *MemoryDB) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[string(key)]
	return ok, nil
}

// ForEach visits a snapshot of the matching entries, so fn is free to
// write to m.
func (m *MemoryDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	for _, kv := range m.snapshot(string(prefix)) {
		if err := fn([]byte(kv.key), kv.value); err != nil {
			return err
		}
	}
	return nil
}

type entry struct {
	key   string
	value []byte
}

func (m *MemoryDB) snapshot(prefix string) []entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []entry
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, entry{k, clone(v)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

// apply runs ops under one write lock. Op values are already copies.
func (m *MemoryDB) apply(ops []batchOp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range ops {
		if op.value == nil {
			delete(m.data, string(op.key))
			continue
		}
		m.data[string(op.key)] = op.value
	}
	return nil
}

// NewBatch returns a batch that lands atomically on Commit.
func (m *MemoryDB) NewBatch() Batch {
	return &memoryBatch{db: m}
}

func (m *MemoryDB) Close() error { return nil }

type memoryBatch struct {
	db  *MemoryDB
	ops []batchOp
}

func (b *memoryBatch) Put(key, value []byte) error {
	b.ops = append(b.ops, putOp(key, value))
	return nil
}

func (b *memoryBatch) Delete(key []byte) error {
	b.ops = append(b.ops, deleteOp(key))
	return nil
}

func (b *memoryBatch) Commit() error {
	ops := b.ops
	b.ops = nil
	return b.db.apply(ops)
}
