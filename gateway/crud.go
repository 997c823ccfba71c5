package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sekolahku/docgate/api"
	"github.com/sekolahku/docgate/kv"
)

// CreateOrUpdate writes payload at collection/key. With isUpdate set, an
// existing record gets payload merged over it. Otherwise, or when nothing
// exists yet, the record is replaced and reported as created.
func (g *Gateway) CreateOrUpdate(ctx context.Context, collection, key string, payload api.Record, isUpdate bool) api.Result {
	ctx, span := tracer.Start(ctx, "gateway.CreateOrUpdate")
	defer span.End()

	if key == "" {
		key = uuid.NewString()
	}
	return g.write(ctx, span, "createOrUpdate", collection, key, payload, isUpdate)
}

// Create writes payload at collection/key unconditionally. An empty key gets
// a generated one.
func (g *Gateway) Create(ctx context.Context, collection, key string, payload api.Record) api.Result {
	ctx, span := tracer.Start(ctx, "gateway.Create")
	defer span.End()

	if key == "" {
		key = uuid.NewString()
	}
	return g.write(ctx, span, "create", collection, key, payload, false)
}

// Update merges payload over the record at collection/key. A missing record
// is created instead.
func (g *Gateway) Update(ctx context.Context, collection, key string, payload api.Record) api.Result {
	ctx, span := tracer.Start(ctx, "gateway.Update")
	defer span.End()

	return g.write(ctx, span, "update", collection, key, payload, true)
}

func (g *Gateway) write(ctx context.Context, span trace.Span, op, collection, key string, payload api.Record, merge bool) api.Result {
	span.SetAttributes(attribute.String("collection", collection), attribute.String("key", key))

	if err := validatePath(collection, key); err != nil {
		return g.fail(span, op, err)
	}

	var res api.Result
	err := g.txn(ctx, op, func(w kv.Write, ch changes) error {
		old, err := load(ctx, w, collection, key)
		if err != nil {
			return err
		}

		now := g.clock.Now().UTC()

		var rec api.Record
		if merge && old != nil {
			rec = merged(old, payload, now)
			res = api.Result{Success: true, ID: key, Updated: true}
		} else {
			rec = stamped(payload, old, now)
			res = api.Result{Success: true, ID: key, Created: true}
		}

		if err := store(w, collection, key, old, rec); err != nil {
			return err
		}
		ch.add(collection, key)
		return nil
	})
	if err != nil {
		return g.fail(span, op, err)
	}

	g.countOp(op, true)
	return res
}

// Get returns the record at collection/key with its id injected. A read
// failure is logged and looks the same as a missing record.
func (g *Gateway) Get(ctx context.Context, collection, key string) (api.Record, bool) {
	ctx, span := tracer.Start(ctx, "gateway.Get")
	defer span.End()

	if err := validatePath(collection, key); err != nil {
		g.log.Warn("get", "collection", collection, "key", key, "err", err)
		g.countOp("get", false)
		return nil, false
	}

	r := g.kv.Read()
	defer r.Close()

	rec, err := load(ctx, r, collection, key)
	if err != nil {
		g.log.Warn("get", "collection", collection, "key", key, "err", err)
		span.RecordError(err)
		g.countOp("get", false)
		return nil, false
	}

	g.countOp("get", true)
	if rec == nil {
		return nil, false
	}
	return withID(key, rec), true
}

// Delete removes the record at collection/key. Deleting nothing succeeds.
func (g *Gateway) Delete(ctx context.Context, collection, key string) api.Result {
	ctx, span := tracer.Start(ctx, "gateway.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection), attribute.String("key", key))

	if err := validatePath(collection, key); err != nil {
		return g.fail(span, "delete", err)
	}

	err := g.txn(ctx, "delete", func(w kv.Write, ch changes) error {
		old, err := load(ctx, w, collection, key)
		if err != nil {
			return err
		}
		if old == nil {
			return nil
		}
		if err := remove(w, collection, key, old); err != nil {
			return err
		}
		ch.add(collection, key)
		return nil
	})
	if err != nil {
		return g.fail(span, "delete", err)
	}

	g.countOp("delete", true)
	return api.Result{Success: true, ID: key}
}

func (g *Gateway) fail(span trace.Span, op string, err error) api.Result {
	g.log.Error(op, "err", err)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	g.countOp(op, false)
	return failed(err)
}

// load reads and decodes one document, nil when absent.
func load(ctx context.Context, r kv.Read, collection, key string) (api.Record, error) {
	b, err := r.Get(ctx, docPath(collection, key))
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if len(b) == 0 {
		return nil, nil
	}
	rec, err := DeserializeStore(b)
	if err != nil {
		return nil, fmt.Errorf("unmarshal error: %w", err)
	}
	return rec, nil
}

// store replaces the document and its index entries. old is what the
// document was before, nil if it did not exist.
func store(w kv.Write, collection, key string, old, rec api.Record) error {
	bytes, err := SerializeStore(rec)
	if err != nil {
		return invalidArgument("cannot encode record: %v", err)
	}

	// round trip so the index sees the same shape reads will
	stored, err := DeserializeStore(bytes)
	if err != nil {
		return fmt.Errorf("unmarshal error: %w", err)
	}

	if old != nil {
		if err := deleteIndex(w, collection, key, old); err != nil {
			return fmt.Errorf("index error: %w", err)
		}
	}
	if err := w.Put(docPath(collection, key), bytes); err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if err := createIndex(w, collection, key, stored); err != nil {
		return fmt.Errorf("index error: %w", err)
	}
	return nil
}

func remove(w kv.Write, collection, key string, old api.Record) error {
	if err := deleteIndex(w, collection, key, old); err != nil {
		return fmt.Errorf("index error: %w", err)
	}
	if err := w.Del(docPath(collection, key)); err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	return nil
}

// stamped is payload as a fresh record. created_at survives from old so an
// overwrite does not move it.
func stamped(payload, old api.Record, now time.Time) api.Record {
	rec := make(api.Record, len(payload)+2)
	for k, v := range payload {
		rec[k] = v
	}
	rec[api.FieldCreatedAt] = now
	if old != nil {
		if created, ok := old.CreatedAt(); ok {
			rec[api.FieldCreatedAt] = created
		}
	}
	rec[api.FieldUpdatedAt] = now
	return rec
}

// merged is old with payload's top level fields replacing its own.
func merged(old, payload api.Record, now time.Time) api.Record {
	rec := make(api.Record, len(old)+len(payload)+1)
	for k, v := range old {
		rec[k] = v
	}
	for k, v := range payload {
		if k == api.FieldCreatedAt {
			continue
		}
		rec[k] = v
	}
	rec[api.FieldUpdatedAt] = now
	return rec
}

func withID(key string, rec api.Record) api.Record {
	out := make(api.Record, len(rec)+1)
	out[api.FieldID] = key
	for k, v := range rec {
		out[k] = v
	}
	return out
}
