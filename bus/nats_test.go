package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startNats(t *testing.T) (*Embedded, *Nats) {
	srv, err := NewEmbeddedNats("127.0.0.1", -1)
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)

	n, err := ConnectNats(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(func() { n.Close() })

	return srv, n
}

func TestNatsPubSub(t *testing.T) {
	_, n := startNats(t)

	got := make(chan string, 1)
	sub, err := n.Subscribe("docgate.changes.users", func(msg []byte) {
		got <- string(msg)
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, n.Flush())

	require.NoError(t, n.Publish("docgate.changes.users", []byte("hello")))

	select {
	case msg := <-got:
		assert.Equal(t, "hello", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestNatsCloseFailsSubscriptions(t *testing.T) {
	_, n := startNats(t)

	sub, err := n.Subscribe("docgate.changes.users", func([]byte) {})
	require.NoError(t, err)

	n.Close()

	select {
	case err := <-sub.Err():
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("expected terminal error after close")
	}
	assert.NoError(t, sub.Unsubscribe())
}
