package kv

import (
	"context"
	"iter"
)

type KeyAndValue struct {
	K []byte
	V []byte
}

// KV is the ordered transactional store the gateway persists documents in.
// A missing key reads as (nil, nil) on every backend.
type KV interface {
	Close()
	Write() Write
	ExclusiveWrite(ctx context.Context, keys ...[]byte) (Write, error)
	Read() Read
	Ping() error
}

type Read interface {
	BatchGet(ctx context.Context, keys [][]byte) (map[string][]byte, error)
	Get(ctx context.Context, key []byte) ([]byte, error)
	Iter(ctx context.Context, start []byte, end []byte) iter.Seq2[KeyAndValue, error]
	Close()
}

type Write interface {
	Read
	Put(key []byte, value []byte) error
	Del(key []byte) error
	Commit(ctx context.Context) error
	Rollback() error
	Close()
}

// PrefixEnd returns the exclusive upper bound for a scan over prefix.
// Keys are built from valid utf8 separated by 0xff, so 0xff never appears
// inside a segment.
func PrefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix), len(prefix)+1)
	copy(end, prefix)
	return append(end, 0xff)
}
