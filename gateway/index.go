package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/sekolahku/docgate/api"
	"github.com/sekolahku/docgate/kv"
)

// Every scalar field of a document gets an index entry
//
//	f\xff<collection>\xff<field path>\xff<encoded value>\xff<key>\xff
//
// Nested maps extend the field path with a dot, list elements are indexed
// under the path of the list itself. Long strings and timestamps are not
// indexed, queries on them fall back to a collection scan.

const maxIndexedString = 128

func deleteIndex(w kv.Write, collection, key string, rec api.Record) error {
	return writeIndex(w, collection, key, "", map[string]interface{}(rec), true)
}

func createIndex(w kv.Write, collection, key string, rec api.Record) error {
	return writeIndex(w, collection, key, "", map[string]interface{}(rec), false)
}

func writeIndex(w kv.Write, collection, key, path string, obj interface{}, delete bool) error {
	switch v := obj.(type) {

	case []interface{}:
		for _, v := range v {
			if err := writeIndex(w, collection, key, path, v, delete); err != nil {
				return err
			}
		}

	case map[string]interface{}:
		for k, v := range v {
			// 0xff is not valid utf8, but if it ever slips through it
			// would let a value escape its field path
			if strings.IndexByte(k, 0xff) >= 0 || k == "" {
				continue
			}
			p := k
			if path != "" {
				p = path + "." + k
			}
			if err := writeIndex(w, collection, key, p, v, delete); err != nil {
				return err
			}
		}

	default:
		enc, ok := indexValue(v)
		if !ok {
			return nil
		}
		ik := indexKey(collection, path, enc, key)
		if delete {
			return w.Del(ik)
		}
		return w.Put(ik, []byte{0})
	}

	return nil
}

// indexValue encodes a scalar for the index. Values of different types never
// share an encoding.
func indexValue(v interface{}) (string, bool) {
	switch x := v.(type) {
	case nil, time.Time:
		return "", false
	case string:
		if len(x) >= maxIndexedString || strings.IndexByte(x, 0xff) >= 0 {
			return "", false
		}
		return "s" + x, true
	case bool:
		if x {
			return "b1", true
		}
		return "b0", true
	}
	if n, ok := numberText(v); ok {
		return "n" + n, true
	}
	return "", false
}

func indexPrefix(collection, path, enc string) []byte {
	return []byte("f\xff" + collection + "\xff" + path + "\xff" + enc + "\xff")
}

func indexKey(collection, path, enc, key string) []byte {
	return append(indexPrefix(collection, path, enc), []byte(key+"\xff")...)
}

// indexedKeys returns the keys of all documents that have value enc at path,
// in key order.
func indexedKeys(ctx context.Context, r kv.Read, collection, path, enc string) ([]string, error) {
	prefix := indexPrefix(collection, path, enc)

	var keys []string
	for item, err := range r.Iter(ctx, prefix, kv.PrefixEnd(prefix)) {
		if err != nil {
			return nil, err
		}
		rest := item.K[len(prefix):]
		if len(rest) < 1 {
			continue
		}
		keys = append(keys, string(rest[:len(rest)-1]))
	}
	return keys, nil
}
