package bus

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
)

// Nats fans change events out across processes sharing one NATS cluster.
type Nats struct {
	nc *nats.Conn

	m    sync.Mutex
	subs map[*nats.Subscription]*natsSub
}

type natsSub struct {
	bus  *Nats
	sub  *nats.Subscription
	err  chan error
	once sync.Once
}

func (s *natsSub) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		s.bus.m.Lock()
		delete(s.bus.subs, s.sub)
		s.bus.m.Unlock()
		err = s.sub.Unsubscribe()
		if err == nats.ErrConnectionClosed || err == nats.ErrBadSubscription {
			err = nil
		}
	})
	return err
}

func (s *natsSub) Err() <-chan error {
	return s.err
}

func (s *natsSub) fail(err error) {
	select {
	case s.err <- err:
	default:
	}
}

func ConnectNats(url string) (*Nats, error) {
	if url == "" {
		url = nats.DefaultURL
	}

	n := &Nats{
		subs: make(map[*nats.Subscription]*natsSub),
	}

	nc, err := nats.Connect(url,
		nats.Name("docgate"),
		nats.ClosedHandler(func(*nats.Conn) {
			n.failAll(ErrClosed)
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			slog.Warn("nats async error", "err", err)
			if sub == nil {
				return
			}
			n.m.Lock()
			s := n.subs[sub]
			n.m.Unlock()
			if s != nil {
				s.fail(err)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	n.nc = nc

	return n, nil
}

func (n *Nats) failAll(err error) {
	n.m.Lock()
	defer n.m.Unlock()
	for _, s := range n.subs {
		s.fail(err)
	}
}

func (n *Nats) Publish(topic string, payload []byte) error {
	return n.nc.Publish(topic, payload)
}

func (n *Nats) Subscribe(topic string, h Handler) (Subscription, error) {
	s := &natsSub{bus: n, err: make(chan error, 1)}

	// hold the lock so an early async error finds the subscription registered
	n.m.Lock()
	defer n.m.Unlock()

	sub, err := n.nc.Subscribe(topic, func(msg *nats.Msg) {
		h(msg.Data)
	})
	if err != nil {
		return nil, err
	}
	s.sub = sub
	n.subs[sub] = s

	return s, nil
}

// Flush waits until the server has processed everything published so far.
func (n *Nats) Flush() error {
	return n.nc.Flush()
}

func (n *Nats) Close() error {
	n.nc.Close()
	return nil
}
