package gateway

import (
	"context"
	"reflect"
	"sync"

	"go.uber.org/atomic"

	"github.com/sekolahku/docgate/api"
	"github.com/sekolahku/docgate/bus"
)

// Unsubscribe ends a subscription. Calling it more than once is harmless.
type Unsubscribe func()

type subscription struct {
	g          *Gateway
	collection string
	filters    []api.Filter
	onData     func([]api.Record)
	onError    func(error)

	sub    bus.Subscription
	notify chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	closed *atomic.Bool
	once   sync.Once
	last   []api.Record

	// set while run is inside onData or onError
	delivering *atomic.Bool
	done       chan struct{}
}

// Subscribe delivers the records matching filters to onData, once right away
// and again whenever the matching set changes. Deliveries may coalesce and
// never overlap. onError is called at most once, after which nothing more is
// delivered. The subscription ends when the returned function is called or
// ctx is cancelled.
func (g *Gateway) Subscribe(ctx context.Context, collection string, filters []api.Filter, onData func([]api.Record), onError func(error)) Unsubscribe {
	if onError == nil {
		onError = func(error) {}
	}

	s := &subscription{
		g:          g,
		collection: collection,
		filters:    filters,
		onData:     onData,
		onError:    onError,
		notify:     make(chan struct{}, 1),
		closed:     atomic.NewBool(false),
		delivering: atomic.NewBool(false),
		done:       make(chan struct{}),
	}

	if err := validateCollection(collection); err != nil {
		g.log.Warn("subscribe", "collection", collection, "err", err)
		onError(err)
		return func() {}
	}

	// listen before the first read, so a change in between is not missed
	sub, err := g.bus.Subscribe(changeTopic(collection), func([]byte) {
		select {
		case s.notify <- struct{}{}:
		default:
		}
	})
	if err != nil {
		g.log.Warn("subscribe", "collection", collection, "err", err)
		onError(err)
		return func() {}
	}
	s.sub = sub

	recs, err := g.query(ctx, collection, filters, queryOptions{})
	if err != nil {
		sub.Unsubscribe()
		g.log.Warn("subscribe", "collection", collection, "err", err)
		onError(err)
		return func() {}
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	g.metrics.activeSubscriptions.Inc()

	s.last = recs
	onData(recs)

	go s.run()
	return s.stop
}

// stop ends the subscription and waits for the delivery goroutine to exit, so
// no callback starts after it returns. Called while a delivery is in
// progress, for example from inside onData, it does not wait.
func (s *subscription) stop() {
	s.release()
	if !s.delivering.Load() {
		<-s.done
	}
}

func (s *subscription) release() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.cancel()
		if err := s.sub.Unsubscribe(); err != nil {
			s.g.log.Warn("unsubscribe", "collection", s.collection, "err", err)
		}
		s.g.metrics.activeSubscriptions.Dec()
	})
}

func (s *subscription) fail(err error) {
	s.delivering.Store(true)
	defer s.delivering.Store(false)
	if s.closed.Load() {
		return
	}
	s.g.log.Warn("subscription failed", "collection", s.collection, "err", err)
	s.onError(err)
}

func (s *subscription) deliver(recs []api.Record) {
	s.delivering.Store(true)
	defer s.delivering.Store(false)
	if s.closed.Load() {
		return
	}
	s.onData(recs)
}

func (s *subscription) run() {
	defer close(s.done)
	defer s.release()

	for {
		select {
		case <-s.ctx.Done():
			return

		case err := <-s.sub.Err():
			s.fail(err)
			return

		case <-s.notify:
			recs, err := s.g.query(s.ctx, s.collection, s.filters, queryOptions{})
			if s.ctx.Err() != nil {
				return
			}
			if err != nil {
				s.fail(err)
				return
			}
			if reflect.DeepEqual(recs, s.last) {
				continue
			}
			s.last = recs
			s.deliver(recs)
		}
	}
}
