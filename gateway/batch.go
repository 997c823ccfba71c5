package gateway

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sekolahku/docgate/api"
	"github.com/sekolahku/docgate/kv"
)

const msgNothingToCommit = "No valid operations to commit"

// BatchCommit checks every operation against the store before admitting it.
// An update of a missing record becomes a set, a delete of a missing record
// is dropped. Admitted operations commit atomically. Operations see the
// effect of earlier operations in the same batch.
func (g *Gateway) BatchCommit(ctx context.Context, ops []api.BatchOp) api.Result {
	ctx, span := tracer.Start(ctx, "gateway.BatchCommit")
	defer span.End()
	span.SetAttributes(attribute.Int("operations", len(ops)))

	var admitted []api.BatchOp
	err := g.txn(ctx, "batch", func(w kv.Write, ch changes) error {
		admitted = admitted[:0]
		now := g.clock.Now().UTC()

		for _, op := range ops {
			if op.Type != api.OpSet && op.Type != api.OpUpdate && op.Type != api.OpDelete {
				g.log.Warn("batch: skipping operation with unknown type", "type", op.Type, "collection", op.Collection, "id", op.ID)
				continue
			}
			if err := validatePath(op.Collection, op.ID); err != nil {
				return err
			}

			old, err := load(ctx, w, op.Collection, op.ID)
			if err != nil {
				return err
			}

			switch op.Type {
			case api.OpUpdate:
				if old == nil {
					g.log.Warn("batch: document to update does not exist, creating it", "collection", op.Collection, "id", op.ID)
					op.Type = api.OpSet
					err = store(w, op.Collection, op.ID, nil, stamped(op.Data, nil, now))
				} else {
					err = store(w, op.Collection, op.ID, old, merged(old, op.Data, now))
				}

			case api.OpSet:
				err = store(w, op.Collection, op.ID, old, stamped(op.Data, old, now))

			case api.OpDelete:
				if old == nil {
					g.log.Warn("batch: document to delete does not exist, skipping", "collection", op.Collection, "id", op.ID)
					continue
				}
				err = remove(w, op.Collection, op.ID, old)
			}
			if err != nil {
				return err
			}

			ch.add(op.Collection, op.ID)
			admitted = append(admitted, op)
		}

		if len(admitted) == 0 {
			return errNothingToCommit
		}
		return nil
	})

	if errors.Is(err, errNothingToCommit) {
		g.countOp("batch", true)
		return api.Result{Success: true, Message: msgNothingToCommit}
	}
	if err != nil {
		return g.fail(span, "batch", err)
	}

	g.countOp("batch", true)
	return api.Result{
		Success:         true,
		OperationsCount: len(admitted),
		Operations:      admitted,
	}
}

// SimpleBatchCommit applies ops without checking them first. An update of a
// missing record fails the whole batch.
func (g *Gateway) SimpleBatchCommit(ctx context.Context, ops []api.BatchOp) api.Result {
	ctx, span := tracer.Start(ctx, "gateway.SimpleBatchCommit")
	defer span.End()
	span.SetAttributes(attribute.Int("operations", len(ops)))

	count := 0
	err := g.txn(ctx, "simpleBatch", func(w kv.Write, ch changes) error {
		count = 0
		now := g.clock.Now().UTC()

		for _, op := range ops {
			if op.Type != api.OpSet && op.Type != api.OpUpdate && op.Type != api.OpDelete {
				g.log.Warn("batch: skipping operation with unknown type", "type", op.Type, "collection", op.Collection, "id", op.ID)
				continue
			}
			if err := validatePath(op.Collection, op.ID); err != nil {
				return err
			}

			// read only to keep the index consistent
			old, err := load(ctx, w, op.Collection, op.ID)
			if err != nil {
				return err
			}

			switch op.Type {
			case api.OpSet:
				rec := make(api.Record, len(op.Data)+2)
				for k, v := range op.Data {
					rec[k] = v
				}
				if rec[api.FieldCreatedAt] == nil {
					if created, ok := old.CreatedAt(); ok {
						rec[api.FieldCreatedAt] = created
					} else {
						rec[api.FieldCreatedAt] = now
					}
				}
				rec[api.FieldUpdatedAt] = now
				err = store(w, op.Collection, op.ID, old, rec)

			case api.OpUpdate:
				if old == nil {
					return notFound("no document to update: %s/%s", op.Collection, op.ID)
				}
				err = store(w, op.Collection, op.ID, old, merged(old, op.Data, now))

			case api.OpDelete:
				if old == nil {
					continue
				}
				err = remove(w, op.Collection, op.ID, old)
			}
			if err != nil {
				return err
			}

			ch.add(op.Collection, op.ID)
			count++
		}
		return nil
	})
	if err != nil {
		return g.fail(span, "simpleBatch", err)
	}

	g.countOp("simpleBatch", true)
	return api.Result{Success: true, OperationsCount: count}
}
