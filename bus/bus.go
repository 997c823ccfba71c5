package bus

import (
	"errors"
)

var ErrClosed = errors.New("bus closed")

// Handler receives one published payload. Handlers must not block, slow
// consumers should hand off to their own goroutine.
type Handler func(payload []byte)

type Subscription interface {
	Unsubscribe() error
	// Err delivers at most one terminal error, after which the subscription is dead.
	Err() <-chan error
}

type Bus interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string, h Handler) (Subscription, error)
	Close() error
}
