package gateway

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sekolahku/docgate/api"
	"github.com/sekolahku/docgate/kv"
)

type queryOptions struct {
	orderBy   string
	direction api.Direction
	limit     int
}

type QueryOption func(*queryOptions)

// OrderBy sorts results by field. Records without that field are left out.
func OrderBy(field string, direction api.Direction) QueryOption {
	return func(o *queryOptions) {
		o.orderBy = field
		o.direction = direction
	}
}

// Limit caps the number of results, after ordering. Zero means no limit.
func Limit(n int) QueryOption {
	return func(o *queryOptions) {
		o.limit = n
	}
}

// RequestOptions turns the ordering and limit of a wire request into options.
func RequestOptions(req api.QueryRequest) []QueryOption {
	var opts []QueryOption
	if req.OrderBy != "" {
		opts = append(opts, OrderBy(req.OrderBy, req.Direction))
	}
	if req.Limit > 0 {
		opts = append(opts, Limit(req.Limit))
	}
	return opts
}

// Query returns every record in collection matching all filters. A failing
// query is logged and returns no records.
func (g *Gateway) Query(ctx context.Context, collection string, filters []api.Filter, opts ...QueryOption) []api.Record {
	ctx, span := tracer.Start(ctx, "gateway.Query")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection), attribute.Int("filters", len(filters)))

	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}

	recs, err := g.query(ctx, collection, filters, o)
	if err != nil {
		g.log.Warn("query", "collection", collection, "err", err)
		span.RecordError(err)
		g.countOp("query", false)
		return []api.Record{}
	}

	g.countOp("query", true)
	return recs
}

type predicate struct {
	field string
	op    api.Operator
	value interface{}
}

// compileFilters drops filters without a value and normalizes the rest.
func compileFilters(filters []api.Filter) ([]predicate, error) {
	preds := make([]predicate, 0, len(filters))
	for _, f := range filters {
		if f.Value == nil {
			continue
		}
		if s, ok := f.Value.(string); ok && s == "" {
			continue
		}
		if f.Field == "" {
			return nil, invalidArgument("filter field must not be empty")
		}

		p := predicate{field: f.Field, op: f.Operator, value: normalizeValue(f.Value)}
		switch f.Operator {
		case api.OpEqual, api.OpNotEqual, api.OpLess, api.OpLessEqual,
			api.OpGreater, api.OpGreaterEqual, api.OpArrayContains:
		case api.OpIn, api.OpNotIn:
			if _, ok := p.value.([]interface{}); !ok {
				return nil, invalidArgument("filter %s %s needs a list, got %s", f.Field, f.Operator, describe(f.Value))
			}
		default:
			return nil, invalidArgument("unknown filter operator %q", f.Operator)
		}
		preds = append(preds, p)
	}
	return preds, nil
}

func (p predicate) match(rec api.Record) bool {
	v, ok := lookupField(rec, p.field)
	if !ok {
		return false
	}

	switch p.op {
	case api.OpEqual:
		return equalValues(v, p.value)
	case api.OpNotEqual:
		return v != nil && !equalValues(v, p.value)
	case api.OpLess, api.OpLessEqual, api.OpGreater, api.OpGreaterEqual:
		// range filters only match values of the same type
		if rank(v) != rank(p.value) || v == nil {
			return false
		}
		c := compareValues(v, p.value)
		switch p.op {
		case api.OpLess:
			return c < 0
		case api.OpLessEqual:
			return c <= 0
		case api.OpGreater:
			return c > 0
		}
		return c >= 0
	case api.OpIn:
		for _, want := range p.value.([]interface{}) {
			if equalValues(v, want) {
				return true
			}
		}
		return false
	case api.OpNotIn:
		if v == nil {
			return false
		}
		for _, want := range p.value.([]interface{}) {
			if equalValues(v, want) {
				return false
			}
		}
		return true
	case api.OpArrayContains:
		list, ok := v.([]interface{})
		if !ok {
			return false
		}
		for _, el := range list {
			if equalValues(el, p.value) {
				return true
			}
		}
		return false
	}
	return false
}

// indexed picks the first predicate the equality index can answer.
func indexed(preds []predicate) (predicate, string, bool) {
	for _, p := range preds {
		if p.op != api.OpEqual && p.op != api.OpArrayContains {
			continue
		}
		if enc, ok := indexValue(p.value); ok {
			return p, enc, true
		}
	}
	return predicate{}, "", false
}

func (g *Gateway) query(ctx context.Context, collection string, filters []api.Filter, o queryOptions) ([]api.Record, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	preds, err := compileFilters(filters)
	if err != nil {
		return nil, err
	}

	r := g.kv.Read()
	defer r.Close()

	out := []api.Record{}
	visit := func(key string, b []byte) error {
		rec, err := DeserializeStore(b)
		if err != nil {
			return fmt.Errorf("unmarshal error in %s/%s: %w", collection, key, err)
		}
		if rec == nil {
			return nil
		}
		for _, p := range preds {
			if !p.match(rec) {
				return nil
			}
		}
		out = append(out, withID(key, rec))
		return nil
	}

	if p, enc, ok := indexed(preds); ok {
		keys, err := indexedKeys(ctx, r, collection, p.field, enc)
		if err != nil {
			return nil, fmt.Errorf("index error: %w", err)
		}
		if len(keys) > 0 {
			paths := make([][]byte, len(keys))
			for i, key := range keys {
				paths[i] = docPath(collection, key)
			}
			docs, err := r.BatchGet(ctx, paths)
			if err != nil {
				return nil, fmt.Errorf("database error: %w", err)
			}
			for i, key := range keys {
				b, ok := docs[string(paths[i])]
				if !ok {
					continue
				}
				if err := visit(key, b); err != nil {
					return nil, err
				}
			}
		}
	} else {
		prefix := collectionPrefix(collection)
		for item, err := range r.Iter(ctx, prefix, kv.PrefixEnd(prefix)) {
			if err != nil {
				return nil, fmt.Errorf("database error: %w", err)
			}
			key, err := keyFromPath(collection, item.K)
			if err != nil {
				return nil, err
			}
			if err := visit(key, item.V); err != nil {
				return nil, err
			}
		}
	}

	if o.orderBy != "" {
		ordered := out[:0]
		for _, rec := range out {
			if _, ok := lookupField(rec, o.orderBy); ok {
				ordered = append(ordered, rec)
			}
		}
		out = ordered

		desc := o.direction == api.Desc
		sort.SliceStable(out, func(i, j int) bool {
			vi, _ := lookupField(out[i], o.orderBy)
			vj, _ := lookupField(out[j], o.orderBy)
			c := compareValues(vi, vj)
			if desc {
				return c > 0
			}
			return c < 0
		})
	}

	if o.limit > 0 && len(out) > o.limit {
		out = out[:o.limit]
	}
	return out, nil
}
