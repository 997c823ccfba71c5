package school

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/sekolahku/docgate/api"
	"github.com/sekolahku/docgate/gateway"
)

// Repo reads and writes one collection as T, converting through JSON.
type Repo[T any] struct {
	store      Store
	collection string
}

func NewRepo[T any](store Store, collection string) *Repo[T] {
	return &Repo[T]{store: store, collection: collection}
}

func (r *Repo[T]) Get(ctx context.Context, id string) (*T, bool) {
	rec, ok := r.store.Get(ctx, r.collection, id)
	if !ok {
		return nil, false
	}
	v := new(T)
	if err := fromRecord(rec, v); err != nil {
		return nil, false
	}
	return v, true
}

func (r *Repo[T]) Query(ctx context.Context, filters []api.Filter, opts ...gateway.QueryOption) ([]T, error) {
	recs := r.store.Query(ctx, r.collection, filters, opts...)
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		var v T
		if err := fromRecord(rec, &v); err != nil {
			return nil, fmt.Errorf("%s/%v: %w", r.collection, rec[api.FieldID], err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Save merges v into the record at id, creating it if needed. v must pass
// its validate tags.
func (r *Repo[T]) Save(ctx context.Context, id string, v *T) api.Result {
	if err := Validate(v); err != nil {
		return api.Result{Success: false, Error: err.Error(), Code: gateway.CodeInvalidArgument}
	}
	rec, err := toRecord(v)
	if err != nil {
		return api.Result{Success: false, Error: err.Error()}
	}
	return r.store.CreateOrUpdate(ctx, r.collection, id, rec, true)
}

// SoftDelete marks the record inactive instead of removing it.
func (r *Repo[T]) SoftDelete(ctx context.Context, id string) api.Result {
	return r.store.Update(ctx, r.collection, id, api.Record{FieldStatus: StatusInactive})
}

// toRecord drops the fields the gateway owns.
func toRecord(v interface{}) (api.Record, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var rec api.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	delete(rec, api.FieldID)
	delete(rec, api.FieldCreatedAt)
	delete(rec, api.FieldUpdatedAt)
	return rec, nil
}

func fromRecord(rec api.Record, v interface{}) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
