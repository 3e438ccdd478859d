package storage

import (
	"bytes"
	"sort"
)

// Overlay stages writes on top of a base DB. Reads see staged writes first.
// Nothing reaches the base until Commit; Discard drops everything staged.
// A state transition runs against an Overlay so that a failed check leaves
// the base untouched.
//
// Overlay is not safe for concurrent use.
type Overlay struct {
	base   DB
	staged map[string]batchOp
}

// NewOverlay creates an empty overlay over base.
func NewOverlay(base DB) *Overlay {
	return &Overlay{base: base, staged: make(map[string]batchOp)}
}

// Get returns the staged value for key, falling back to the base.
func (o *Overlay) Get(key []byte) ([]byte, error) {
	if op, ok := o.staged[string(key)]; ok {
		if op.value == nil {
			return nil, ErrNotFound
		}
		return clone(op.value), nil
	}
	return o.base.Get(key)
}

// Put stages a write.
func (o *Overlay) Put(key, value []byte) error {
	o.staged[string(key)] = putOp(key, value)
	return nil
}

// Delete stages a removal.
func (o *Overlay) Delete(key []byte) error {
	o.staged[string(key)] = deleteOp(key)
	return nil
}

// Has reports whether key exists after staged writes.
func (o *Overlay) Has(key []byte) (bool, error) {
	if op, ok := o.staged[string(key)]; ok {
		return op.value != nil, nil
	}
	return o.base.Has(key)
}

// ForEach merges base entries with staged writes and visits them in key
// order. Staged deletes hide base entries.
func (o *Overlay) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	merged := make(map[string][]byte)
	err := o.base.ForEach(prefix, func(key, value []byte) error {
		merged[string(key)] = clone(value)
		return nil
	})
	if err != nil {
		return err
	}
	for k, op := range o.staged {
		if !bytes.HasPrefix(op.key, prefix) {
			continue
		}
		if op.value == nil {
			delete(merged, k)
		} else {
			merged[k] = clone(op.value)
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn([]byte(k), merged[k]); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of staged writes.
func (o *Overlay) Len() int {
	return len(o.staged)
}

// Commit applies staged writes to the base, atomically when the base
// implements Batcher, and clears the overlay.
func (o *Overlay) Commit() error {
	if len(o.staged) == 0 {
		return nil
	}
	var b Batch
	if batcher, ok := o.base.(Batcher); ok {
		b = batcher.NewBatch()
	} else {
		b = &directBatch{db: o.base}
	}

	keys := make([]string, 0, len(o.staged))
	for k := range o.staged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		op := o.staged[k]
		var err error
		if op.value == nil {
			err = b.Delete(op.key)
		} else {
			err = b.Put(op.key, op.value)
		}
		if err != nil {
			return err
		}
	}
	if err := b.Commit(); err != nil {
		return err
	}
	o.Discard()
	return nil
}

// Discard drops all staged writes.
func (o *Overlay) Discard() {
	o.staged = make(map[string]batchOp)
}

// Close is a no-op. The base DB manages its own lifecycle.
func (o *Overlay) Close() error {
	return nil
}

// directBatch writes through to a DB without atomicity.
type directBatch struct {
	db  DB
	ops []batchOp
}

func (d *directBatch) Put(key, value []byte) error {
	d.ops = append(d.ops, putOp(key, value))
	return nil
}

func (d *directBatch) Delete(key []byte) error {
	d.ops = append(d.ops, deleteOp(key))
	return nil
}

func (d *directBatch) Commit() error {
	for _, op := range d.ops {
		var err error
		if op.value == nil {
			err = d.db.Delete(op.key)
		} else {
			err = d.db.Put(op.key, op.value)
		}
		if err != nil {
			return err
		}
	}
	d.ops = nil
	return nil
}
