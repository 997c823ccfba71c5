package bus

import (
	"sync"
)

// Solo is an in-process bus for a single node.
type Solo struct {
	m      sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]*soloSub
	closed bool
}

type soloSub struct {
	bus   *Solo
	topic string
	id    uint64
	h     Handler
	err   chan error
	once  sync.Once
}

func (s *soloSub) Unsubscribe() error {
	s.once.Do(func() {
		s.bus.m.Lock()
		defer s.bus.m.Unlock()
		delete(s.bus.subs[s.topic], s.id)
		if len(s.bus.subs[s.topic]) == 0 {
			delete(s.bus.subs, s.topic)
		}
	})
	return nil
}

func (s *soloSub) Err() <-chan error {
	return s.err
}

func (self *Solo) Publish(topic string, v []byte) error {
	self.m.RLock()
	if self.closed {
		self.m.RUnlock()
		return ErrClosed
	}
	handlers := make([]Handler, 0, len(self.subs[topic]))
	for _, sub := range self.subs[topic] {
		handlers = append(handlers, sub.h)
	}
	self.m.RUnlock()

	for _, h := range handlers {
		h(v)
	}
	return nil
}

func (self *Solo) Subscribe(topic string, h Handler) (Subscription, error) {
	self.m.Lock()
	defer self.m.Unlock()

	if self.closed {
		return nil, ErrClosed
	}

	self.nextID++
	sub := &soloSub{
		bus:   self,
		topic: topic,
		id:    self.nextID,
		h:     h,
		err:   make(chan error, 1),
	}
	if self.subs[topic] == nil {
		self.subs[topic] = make(map[uint64]*soloSub)
	}
	self.subs[topic][sub.id] = sub

	return sub, nil
}

// Close fails every live subscription with ErrClosed.
func (self *Solo) Close() error {
	self.m.Lock()
	defer self.m.Unlock()

	if self.closed {
		return nil
	}
	self.closed = true
	for _, subs := range self.subs {
		for _, sub := range subs {
			sub.err <- ErrClosed
		}
	}
	self.subs = nil
	return nil
}

func NewSolo() *Solo {
	return &Solo{
		subs: make(map[string]map[uint64]*soloSub),
	}
}
