package kv

import (
	"context"
	"io"
	"iter"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

type Pebbledb struct {
	db *pebble.DB

	// pebble doesnt have the same MVCC as tikv. serializing writers is good enough for a single node
	globalWriteLock sync.Mutex
}

type PebbleWrite struct {
	p        *Pebbledb
	batch    *pebble.Batch
	err      error
	commited bool
	closed   bool
	locked   bool
}

func (w *PebbleWrite) lock() {
	if !w.locked {
		w.p.globalWriteLock.Lock()
		w.locked = true
	}
}

func (w *PebbleWrite) unlock() {
	if w.locked {
		w.locked = false
		w.p.globalWriteLock.Unlock()
	}
}

func (w *PebbleWrite) release() {
	if !w.closed {
		w.closed = true
		w.batch.Close()
	}
	w.unlock()
}

func (w *PebbleWrite) Commit(ctx context.Context) error {
	defer w.release()
	if w.err != nil {
		return w.err
	}
	if w.commited {
		return ErrAlreadyCommitted
	}

	_, span := tracer.Start(ctx, "kv.PebbleWrite.Commit")
	defer span.End()

	err := w.batch.Commit(pebble.Sync)
	if err != nil {
		w.err = err
		return err
	}
	w.commited = true
	return nil
}

func (w *PebbleWrite) Rollback() error {
	if w.commited {
		return ErrAlreadyCommitted
	}
	w.release()
	return w.err
}

func (w *PebbleWrite) Put(key []byte, value []byte) error {
	w.lock()
	if w.err != nil {
		return w.err
	}
	err := w.batch.Set(key, value, pebble.Sync)
	if err != nil {
		w.err = err
	}
	log.Debug("[pebble].Put:", "key", string(key), "err", err)
	return w.err
}

func (w *PebbleWrite) Get(ctx context.Context, key []byte) ([]byte, error) {
	w.lock()
	if w.err != nil {
		return nil, w.err
	}
	return pebbleGet(w.batch, key)
}

func (w *PebbleWrite) BatchGet(ctx context.Context, keys [][]byte) (map[string][]byte, error) {
	w.lock()
	if w.err != nil {
		return nil, w.err
	}
	return pebbleBatchGet(w.batch, keys)
}

func (w *PebbleWrite) Del(key []byte) error {
	w.lock()
	if w.err != nil {
		return w.err
	}
	err := w.batch.Delete(key, pebble.Sync)
	if err != nil {
		w.err = err
	}
	log.Debug("[pebble].Del:", "key", string(key), "err", err)
	return w.err
}

func (w *PebbleWrite) Iter(ctx context.Context, start []byte, end []byte) iter.Seq2[KeyAndValue, error] {
	w.lock()
	return pebbleIter(w.batch, start, end)
}

func (w *PebbleWrite) Close() {
	if !w.commited {
		w.Rollback()
	}
	w.release()
}

type PebbleRead struct {
	snapshot *pebble.Snapshot
}

func (r *PebbleRead) Get(ctx context.Context, key []byte) ([]byte, error) {
	return pebbleGet(r.snapshot, key)
}

func (r *PebbleRead) BatchGet(ctx context.Context, keys [][]byte) (map[string][]byte, error) {
	return pebbleBatchGet(r.snapshot, keys)
}

func (r *PebbleRead) Close() {
	r.snapshot.Close()
}

func (r *PebbleRead) Iter(ctx context.Context, start []byte, end []byte) iter.Seq2[KeyAndValue, error] {
	return pebbleIter(r.snapshot, start, end)
}

// pebble.Batch and pebble.Snapshot share these read methods
type pebbleReader interface {
	Get(key []byte) ([]byte, io.Closer, error)
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

func pebbleGet(r pebbleReader, key []byte) ([]byte, error) {
	val, closer, err := r.Get(key)
	if err != nil {
		if err == pebble.ErrNotFound {
			log.Debug("[pebble].Get:", "key", string(key), "err", "not found")
			return nil, nil
		}
		log.Debug("[pebble].Get:", "key", string(key), "err", err)
		return nil, err
	}
	defer closer.Close()

	// the closer invalidates val
	result := make([]byte, len(val))
	copy(result, val)

	log.Debug("[pebble].Get:", "key", string(key))
	return result, nil
}

func pebbleBatchGet(r pebbleReader, keys [][]byte) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		v, err := pebbleGet(r, k)
		if err != nil {
			return nil, err
		}
		if v != nil {
			out[string(k)] = v
		}
	}
	return out, nil
}

func pebbleIter(r pebbleReader, start []byte, end []byte) iter.Seq2[KeyAndValue, error] {
	return func(yield func(KeyAndValue, error) bool) {
		iterOptions := &pebble.IterOptions{
			LowerBound: start,
			UpperBound: end,
		}
		it, err := r.NewIter(iterOptions)
		if err != nil {
			yield(KeyAndValue{}, err)
			return
		}
		defer it.Close()

		for it.First(); it.Valid(); it.Next() {
			// the iterator reuses its buffers
			key := append([]byte(nil), it.Key()...)
			val := append([]byte(nil), it.Value()...)

			log.Debug("[pebble].Iter:", "start", string(start), "end", string(end), "at", string(key))
			if !yield(KeyAndValue{K: key, V: val}, nil) {
				return
			}
		}

		if err := it.Error(); err != nil {
			log.Debug("[pebble].Iter:", "start", string(start), "end", string(end), "err", err)
			yield(KeyAndValue{}, err)
		}
	}
}

func (p *Pebbledb) Close() {
	p.db.Close()
}

func (p *Pebbledb) Write() Write {
	return &PebbleWrite{p: p, batch: p.db.NewIndexedBatch()}
}

// ExclusiveWrite on pebble is a plain write, all writers are serialized anyway.
func (p *Pebbledb) ExclusiveWrite(ctx context.Context, keys ...[]byte) (Write, error) {
	w := &PebbleWrite{p: p, batch: p.db.NewIndexedBatch()}
	w.lock()
	return w, nil
}

func (p *Pebbledb) Read() Read {
	return &PebbleRead{snapshot: p.db.NewSnapshot()}
}

// Ping always succeeds, an open embedded db has nothing to reach.
func (p *Pebbledb) Ping() error {
	return nil
}

func NewPebble(path string) (KV, error) {
	if path == "" {
		path = "pebble-db"
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}

	return &Pebbledb{db: db}, nil
}

// NewMemPebble creates an in-memory Pebble database for tests and throwaway dev servers.
func NewMemPebble() (KV, error) {
	opts := &pebble.Options{
		FS: vfs.NewMem(),
	}

	db, err := pebble.Open("", opts)
	if err != nil {
		return nil, err
	}

	return &Pebbledb{db: db}, nil
}
