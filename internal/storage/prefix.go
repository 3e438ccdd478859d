package storage

// PrefixDB is a namespace inside another DB. Every key it touches is
// stored under prefix, and ForEach hands keys back with the prefix cut off.
// Closing a PrefixDB leaves the shared DB open.
type PrefixDB struct {
	inner  DB
	prefix []byte
}

// NewPrefixDB returns the namespace prefix of inner.
func NewPrefixDB(inner DB, prefix []byte) *PrefixDB {
	return &PrefixDB{inner: inner, prefix: clone(prefix)}
}

func (p *PrefixDB) key(k []byte) []byte {
	return append(clone(p.prefix), k...)
}

// The DB methods act inside the namespace.

func (p *PrefixDB) Get(key []byte) ([]byte, error) { return p.inner.Get(p.key(key)) }
func (p *PrefixDB) Put(key, value []byte) error { return p.inner.Put(p.key(key), value) }
func (p *PrefixDB) Delete(key []byte) error { return p.inner.Delete(p.key(key)) }
func (p *PrefixDB) Has(key []byte) (bool, error) { return p.inner.Has(p.key(key)) }
func (p *PrefixDB) Close() error { return nil }

func (p *PrefixDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	n := len(p.prefix)
	return p.inner.ForEach(p.key(prefix), func(key, value []byte) error {
		return fn(key[n:], value)
	})
}

// NewBatch returns a batch over the namespace. It commits atomically when
// the shared DB supports batches.
func (p *PrefixDB) NewBatch() Batch {
	if b, ok := p.inner.(Batcher); ok {
		return &prefixBatch{ns: p, inner: b.NewBatch()}
	}
	return &directBatch{db: p}
}

type prefixBatch struct {
	ns    *PrefixDB
	inner Batch
}

func (b *prefixBatch) Put(key, value []byte) error { return b.inner.Put(b.ns.key(key), value) }
func (b *prefixBatch) Delete(key []byte) error { return b.inner.Delete(b.ns.key(key)) }
func (b *prefixBatch) Commit() error { return b.inner.Commit() }
