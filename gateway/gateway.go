// Package gateway is the only code that talks to the document store. It owns
// timestamp stamping, the upsert fallbacks and the batch rules. Business
// rules live with the callers.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/lmittmann/tint"
	"go.opentelemetry.io/otel"

	"github.com/sekolahku/docgate/bus"
	"github.com/sekolahku/docgate/kv"
)

var tracer = otel.Tracer("github.com/sekolahku/docgate/gateway")

const maxCommitAttempts = 10

// errNothingToCommit makes txn roll back without it being a failure.
var errNothingToCommit = errors.New("nothing to commit")

type Gateway struct {
	kv      kv.KV
	bus     bus.Bus
	clock   clock.Clock
	log     *slog.Logger
	metrics *metrics
}

type Option func(*Gateway)

// WithBus sets where change events are published. Subscriptions only see
// writes that go through the same bus.
func WithBus(b bus.Bus) Option {
	return func(g *Gateway) { g.bus = b }
}

func WithClock(c clock.Clock) Option {
	return func(g *Gateway) { g.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.log = l }
}

func New(store kv.KV, opts ...Option) *Gateway {
	g := &Gateway{
		kv:      store,
		clock:   clock.New(),
		metrics: newMetrics(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.bus == nil {
		g.bus = bus.NewSolo()
	}
	if g.log == nil {
		g.log = slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelInfo}))
	}
	return g
}

// Ping checks that the store is reachable.
func (g *Gateway) Ping() error {
	return g.kv.Ping()
}

type changeEvent struct {
	Collection string   `json:"collection"`
	IDs        []string `json:"ids"`
}

func changeTopic(collection string) string {
	return "docgate.changes." + collection
}

// changes collects the documents a transaction touched, per collection.
type changes map[string][]string

func (c changes) add(collection, key string) {
	c[collection] = append(c[collection], key)
}

// txn runs fn in one write transaction and commits it. A commit that lost
// against a parallel writer is retried from scratch, so the last writer wins.
func (g *Gateway) txn(ctx context.Context, op string, fn func(w kv.Write, ch changes) error) error {
	var err error
	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		ch := changes{}
		err = g.txn1(ctx, op, ch, fn)
		if err == nil {
			g.metrics.commitRetries.WithLabelValues(op, "success").Observe(float64(attempt))
			g.publish(ch)
			return nil
		}
		if !kv.IsConflict(err) {
			break
		}

		g.log.Warn("commit preempted by a parallel write, retrying", "op", op, "attempt", attempt)
		if attempt > 3 {
			time.Sleep(100 * time.Millisecond)
		} else {
			time.Sleep(10 * time.Millisecond)
		}
	}

	if !errors.Is(err, errNothingToCommit) {
		g.metrics.commitFailures.WithLabelValues(op, ErrorCode(err)).Inc()
	}
	return err
}

func (g *Gateway) txn1(ctx context.Context, op string, ch changes, fn func(w kv.Write, ch changes) error) error {
	w := g.kv.Write()
	defer w.Close()

	if err := fn(w, ch); err != nil {
		w.Rollback()
		return err
	}

	start := time.Now()
	err := w.Commit(ctx)
	g.metrics.commitDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	return err
}

func (g *Gateway) publish(ch changes) {
	for collection, ids := range ch {
		msg, err := json.Marshal(changeEvent{Collection: collection, IDs: ids})
		if err != nil {
			g.log.Error("encoding change event", "err", err)
			continue
		}
		if err := g.bus.Publish(changeTopic(collection), msg); err != nil {
			g.log.Warn("publishing change event", "collection", collection, "err", err)
		}
	}
}
