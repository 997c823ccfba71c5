package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/sekolahku/docgate/api"
)

// timestampTag marks a stored Timestamp. Callers never see it, reads turn it
// back into time.Time.
const timestampTag = "$ts"

var errBadEncoding = errors.New("invalid encoding stored in database")

func DeserializeStore(b []byte) (api.Record, error) {
	if len(b) < 1 {
		return nil, nil
	}
	if b[0] != 'j' {
		return nil, errBadEncoding
	}
	dec := json.NewDecoder(bytes.NewReader(b[1:]))
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	rec := make(api.Record, len(raw))
	for k, v := range raw {
		rec[k] = fromStore(v)
	}
	return rec, nil
}

func SerializeStore(rec api.Record) ([]byte, error) {
	b, err := json.Marshal(toStore(reflect.ValueOf(map[string]interface{}(rec))))
	if err != nil {
		return nil, err
	}
	return append([]byte{'j'}, b...), nil
}

// fromStore normalizes a decoded value: tagged timestamps become time.Time,
// numbers become int64 when integral and float64 otherwise.
func fromStore(v interface{}) interface{} {
	switch v := v.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		f, _ := v.Float64()
		return f
	case map[string]interface{}:
		if len(v) == 1 {
			if s, ok := v[timestampTag].(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
					return t.UTC()
				}
			}
		}
		out := make(map[string]interface{}, len(v))
		for k, vv := range v {
			out[k] = fromStore(vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, vv := range v {
			out[i] = fromStore(vv)
		}
		return out
	}
	return v
}

var timeType = reflect.TypeOf(time.Time{})

// toStore rewrites every time.Time, however deeply nested, into its tagged
// form. Everything else is left for encoding/json.
func toStore(v reflect.Value) interface{} {
	if !v.IsValid() {
		return nil
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		if v.Kind() == reflect.Pointer && v.Type().Elem() == timeType {
			return tagTime(v.Elem().Interface().(time.Time))
		}
		return toStore(v.Elem())

	case reflect.Struct:
		if v.Type() == timeType {
			return tagTime(v.Interface().(time.Time))
		}
		return v.Interface()

	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return v.Interface()
		}
		if v.IsNil() {
			return nil
		}
		out := make(map[string]interface{}, v.Len())
		it := v.MapRange()
		for it.Next() {
			out[it.Key().String()] = toStore(it.Value())
		}
		return out

	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return v.Interface()
		}
		if v.Kind() == reflect.Slice && v.IsNil() {
			return nil
		}
		out := make([]interface{}, v.Len())
		for i := 0; i < v.Len(); i++ {
			out[i] = toStore(v.Index(i))
		}
		return out
	}

	return v.Interface()
}

func tagTime(t time.Time) map[string]interface{} {
	return map[string]interface{}{timestampTag: t.UTC().Format(time.RFC3339Nano)}
}

// normalizeValue brings a caller supplied filter value into the same shape
// stored values have after fromStore.
func normalizeValue(v interface{}) interface{} {
	switch x := v.(type) {
	case nil, bool, string, int64, float64:
		return v
	case time.Time:
		return x.UTC()
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC()
	case json.Number:
		return fromStore(x)
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]interface{}, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = normalizeValue(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]interface{}, rv.Len())
		it := rv.MapRange()
		for it.Next() {
			out[it.Key().String()] = normalizeValue(it.Value().Interface())
		}
		return out
	}
	return v
}

// numberText is the canonical text of a numeric value, used by the index.
func numberText(v interface{}) (string, bool) {
	switch x := normalizeValue(v).(type) {
	case int64:
		return strconv.FormatFloat(float64(x), 'g', -1, 64), true
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), true
	}
	return "", false
}

func describe(v interface{}) string {
	return fmt.Sprintf("%T", v)
}
