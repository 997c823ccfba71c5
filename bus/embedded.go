package bus

import (
	"fmt"
	"time"

	natsd "github.com/nats-io/nats-server/v2/server"
)

// Embedded is an in-process NATS server for single node deployments and tests.
type Embedded struct {
	srv *natsd.Server
}

// NewEmbeddedNats starts a server on host:port. Port -1 picks a free one.
func NewEmbeddedNats(host string, port int) (*Embedded, error) {
	if host == "" {
		host = "localhost"
	}
	opts := &natsd.Options{
		Host:   host,
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	}

	srv, err := natsd.NewServer(opts)
	if err != nil {
		return nil, err
	}

	go srv.Start()

	if !srv.ReadyForConnections(5 * time.Second) {
		srv.Shutdown()
		return nil, fmt.Errorf("embedded nats did not become ready")
	}

	return &Embedded{srv: srv}, nil
}

func (e *Embedded) ClientURL() string {
	return e.srv.ClientURL()
}

func (e *Embedded) Shutdown() {
	e.srv.Shutdown()
	e.srv.WaitForShutdown()
}
