// Package schema keeps an optional JSON Schema per collection and checks
// full writes against it. Collections without a schema accept anything.
package schema

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/maypok86/otter"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sekolahku/docgate/api"
)

// Collection is where schemas are stored, keyed by the collection they
// describe.
const Collection = "_schemas"

const field = "schema"

var ErrInvalidSchema = errors.New("invalid schema")

// Store is the part of the gateway the registry needs.
type Store interface {
	Get(ctx context.Context, collection, key string) (api.Record, bool)
	CreateOrUpdate(ctx context.Context, collection, key string, payload api.Record, isUpdate bool) api.Result
}

// compiled is what the cache holds. A nil schema caches "no schema".
type compiled struct {
	schema *jsonschema.Schema
}

type Registry struct {
	store Store
	cache otter.Cache[string, *compiled]
}

func NewRegistry(store Store, ttl time.Duration) (*Registry, error) {
	cache, err := otter.MustBuilder[string, *compiled](10000).
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, err
	}
	return &Registry{store: store, cache: cache}, nil
}

// Put compiles and stores the schema for collection.
func (r *Registry) Put(ctx context.Context, collection string, schema map[string]interface{}) error {
	if _, err := compile(collection, schema); err != nil {
		return err
	}

	res := r.store.CreateOrUpdate(ctx, Collection, collection, api.Record{field: schema}, false)
	if !res.Success {
		return fmt.Errorf("storing schema for %s: %s", collection, res.Error)
	}
	r.cache.Delete(collection)
	return nil
}

// Get returns the stored schema for collection.
func (r *Registry) Get(ctx context.Context, collection string) (map[string]interface{}, bool) {
	rec, ok := r.store.Get(ctx, Collection, collection)
	if !ok {
		return nil, false
	}
	schema, ok := rec[field].(map[string]interface{})
	return schema, ok
}

// Validate checks rec against the schema of collection, if there is one.
func (r *Registry) Validate(ctx context.Context, collection string, rec api.Record) error {
	c, found := r.cache.Get(collection)
	if !found {
		var schema *jsonschema.Schema
		if raw, ok := r.Get(ctx, collection); ok {
			var err error
			schema, err = compile(collection, raw)
			if err != nil {
				return err
			}
		}
		c = &compiled{schema: schema}
		r.cache.Set(collection, c)
	}

	if c.schema == nil {
		return nil
	}

	doc, err := asJSON(rec)
	if err != nil {
		return err
	}
	return c.schema.Validate(doc)
}

func compile(collection string, schema map[string]interface{}) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}

	url := "schema://" + collection
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	s, err := compiler.Compile(url)
	if err != nil {
		var se *jsonschema.SchemaError
		if errors.As(err, &se) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, se.Err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return s, nil
}

// asJSON brings a record into the shape the validator expects. Timestamps
// become RFC 3339 strings.
func asJSON(rec api.Record) (interface{}, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
