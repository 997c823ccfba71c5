package kv

import (
	"context"
	"errors"
	"iter"
	"os"
	"strings"
	"sync"
	"time"

	pingcaplog "github.com/pingcap/log"
	tikverr "github.com/tikv/client-go/v2/error"
	tikvkv "github.com/tikv/client-go/v2/kv"
	"github.com/tikv/client-go/v2/txnkv"
	"github.com/tikv/client-go/v2/txnkv/txnsnapshot"
	"go.uber.org/zap"
)

const defaultPDEndpoint = "127.0.0.1:2379"

var quietOnce sync.Once

// quietTikvLogs routes the tikv client's pingcap/log output through a zap
// logger at warn level.
func quietTikvLogs() {
	l, p, err := pingcaplog.InitLogger(&pingcaplog.Config{})
	if err != nil {
		return
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}
	if built, err := config.Build(); err == nil {
		l = built
	}

	pingcaplog.ReplaceGlobals(l, p)
}

// tikvGetter is what a transaction and a snapshot have in common.
type tikvGetter interface {
	Get(ctx context.Context, k []byte) ([]byte, error)
	BatchGet(ctx context.Context, keys [][]byte) (map[string][]byte, error)
}

type tikvIterator interface {
	Valid() bool
	Key() []byte
	Value() []byte
	Next() error
	Close()
}

func tikvGet(ctx context.Context, src tikvGetter, span string, key []byte) ([]byte, error) {
	ctx, sp := tracer.Start(ctx, span)
	defer sp.End()

	b, err := src.Get(ctx, key)
	if tikverr.IsErrNotFound(err) {
		return nil, nil
	}
	if err != nil {
		log.Debug("tikv get", "key", string(key), "err", err)
		return nil, err
	}
	return b, nil
}

func tikvBatchGet(ctx context.Context, src tikvGetter, span string, keys [][]byte) (map[string][]byte, error) {
	ctx, sp := tracer.Start(ctx, span)
	defer sp.End()

	m, err := src.BatchGet(ctx, keys)
	if err != nil {
		log.Debug("tikv batch get", "keys", len(keys), "err", err)
		return nil, err
	}
	return m, nil
}

// tikvScan adapts a tikv iterator to KeyAndValue pairs. open is called
// lazily, so nothing is read until the sequence is ranged over.
func tikvScan(ctx context.Context, span string, start, end []byte, open func() (tikvIterator, error)) iter.Seq2[KeyAndValue, error] {
	return func(yield func(KeyAndValue, error) bool) {
		_, sp := tracer.Start(ctx, span)
		defer sp.End()

		it, err := open()
		if err != nil {
			log.Debug("tikv iter", "start", string(start), "end", string(end), "err", err)
			yield(KeyAndValue{}, err)
			return
		}
		defer it.Close()

		for it.Valid() {
			if !yield(KeyAndValue{K: it.Key(), V: it.Value()}, nil) {
				return
			}
			if err := it.Next(); err != nil {
				yield(KeyAndValue{}, err)
				return
			}
		}
	}
}

type Tikv struct {
	k *txnkv.Client
}

type TikvWrite struct {
	txn       *txnkv.KVTxn
	err       error
	committed bool
}

func (w *TikvWrite) Commit(ctx context.Context) error {
	if w.err != nil {
		return w.err
	}
	if w.committed {
		return ErrAlreadyCommitted
	}

	ctx, span := tracer.Start(ctx, "kv.TikvWrite.Commit")
	defer span.End()

	if err := w.txn.Commit(ctx); err != nil {
		w.err = err
		return err
	}
	w.committed = true
	return nil
}

func (w *TikvWrite) Rollback() error {
	if w.committed {
		return ErrAlreadyCommitted
	}
	if w.err != nil {
		return w.err
	}
	return w.txn.Rollback()
}

func (w *TikvWrite) Put(key []byte, value []byte) error {
	if w.err != nil {
		return w.err
	}
	if err := w.txn.Set(key, value); err != nil {
		w.Rollback()
		w.err = err
	}
	return w.err
}

func (w *TikvWrite) Del(key []byte) error {
	if w.err != nil {
		return w.err
	}
	if err := w.txn.Delete(key); err != nil {
		w.err = err
	}
	return w.err
}

func (w *TikvWrite) Get(ctx context.Context, key []byte) ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return tikvGet(ctx, w.txn, "kv.TikvWrite.Get", key)
}

func (w *TikvWrite) BatchGet(ctx context.Context, keys [][]byte) (map[string][]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return tikvBatchGet(ctx, w.txn, "kv.TikvWrite.BatchGet", keys)
}

func (w *TikvWrite) Iter(ctx context.Context, start []byte, end []byte) iter.Seq2[KeyAndValue, error] {
	return tikvScan(ctx, "kv.TikvWrite.Iter", start, end, func() (tikvIterator, error) {
		if w.err != nil {
			return nil, w.err
		}
		return w.txn.Iter(start, end)
	})
}

// Close rolls back unless the write was committed.
func (w *TikvWrite) Close() {
	if !w.committed && w.err == nil {
		w.txn.Rollback()
	}
}

type TikvRead struct {
	snap *txnsnapshot.KVSnapshot
	err  error
}

func (r *TikvRead) Get(ctx context.Context, key []byte) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return tikvGet(ctx, r.snap, "kv.TikvRead.Get", key)
}

func (r *TikvRead) BatchGet(ctx context.Context, keys [][]byte) (map[string][]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return tikvBatchGet(ctx, r.snap, "kv.TikvRead.BatchGet", keys)
}

func (r *TikvRead) Iter(ctx context.Context, start []byte, end []byte) iter.Seq2[KeyAndValue, error] {
	return tikvScan(ctx, "kv.TikvRead.Iter", start, end, func() (tikvIterator, error) {
		if r.err != nil {
			return nil, r.err
		}
		return r.snap.Iter(start, end)
	})
}

func (r *TikvRead) Close() {}

func (t *Tikv) Close() {
	t.k.Close()
}

func (t *Tikv) Write() Write {
	txn, err := t.k.Begin()
	return &TikvWrite{txn: txn, err: err}
}

// ExclusiveWrite starts a pessimistic transaction holding locks on keys.
// Lock waits are retried here rather than with aggressive locking, which
// can deadlock.
func (t *Tikv) ExclusiveWrite(ctx context.Context, keys ...[]byte) (Write, error) {
	begin := func() (*txnkv.KVTxn, error) {
		txn, err := t.k.Begin()
		if err != nil {
			return nil, err
		}
		txn.SetPessimistic(true)
		return txn, nil
	}

	txn, err := begin()
	if err != nil {
		return nil, err
	}

	waitMs := int64(100)
	for {
		waitMs++
		lkctx := tikvkv.NewLockCtx(txn.StartTS(), waitMs, time.Now())

		err = txn.LockKeys(ctx, lkctx, keys...)
		switch {
		case err == nil:
			return &TikvWrite{txn: txn}, nil

		case tikverr.IsErrWriteConflict(err):
			// locked, but the keys changed since our start ts
			txn.Rollback()
			if txn, err = begin(); err != nil {
				return nil, err
			}

		case !errors.Is(err, tikverr.ErrLockWaitTimeout):
			txn.Rollback()
			return nil, err
		}

		if ctx.Err() != nil {
			txn.Rollback()
			return nil, ctx.Err()
		}
	}
}

func (t *Tikv) Read() Read {
	ts, err := t.k.CurrentTimestamp("global")
	if err != nil {
		return &TikvRead{err: err}
	}
	return &TikvRead{snap: t.k.GetSnapshot(ts)}
}

func (t *Tikv) Ping() error {
	_, err := t.k.CurrentTimestamp("global")
	return err
}

// pdEndpoints picks the placement driver endpoints: the given ones, else
// the comma separated PD_ENDPOINT, else the local default.
func pdEndpoints(endpoints []string) []string {
	if len(endpoints) > 0 {
		return endpoints
	}
	if env := os.Getenv("PD_ENDPOINT"); env != "" {
		return strings.Split(env, ",")
	}
	return []string{defaultPDEndpoint}
}

// NewTikv connects to a tikv cluster through its placement drivers.
func NewTikv(endpoints ...string) (KV, error) {
	quietOnce.Do(quietTikvLogs)

	k, err := txnkv.NewClient(pdEndpoints(endpoints))
	if err != nil {
		return nil, err
	}
	return &Tikv{k}, nil
}
