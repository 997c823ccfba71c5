package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/sekolahku/docgate/api"
	"github.com/sekolahku/docgate/aql"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// watchFilters parses the q parameter. An empty q watches the whole
// collection.
func watchFilters(collection, q string) ([]api.Filter, error) {
	if q == "" {
		return nil, nil
	}
	query, err := aql.Parse(q)
	if err != nil {
		return nil, err
	}
	if query.Collection != collection {
		return nil, fmt.Errorf("query is for %s, not %s", query.Collection, collection)
	}
	return query.Filters, nil
}

// WatchDocuments streams a Snapshot of the matching records over a
// websocket every time the set changes. Ordering and limit in q are ignored.
func (s *server) WatchDocuments(c echo.Context) error {
	collection, err := collectionParam(c)
	if err != nil {
		return err
	}
	filters, err := watchFilters(collection, c.QueryParam("q"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Warn("watch upgrade", "collection", collection, "err", err)
		return nil
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	var mu sync.Mutex
	send := func(snap api.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(snap); err != nil {
			s.log.Debug("watch write", "collection", collection, "err", err)
			cancel()
		}
	}

	unsubscribe := s.gw.Subscribe(ctx, collection, filters,
		func(recs []api.Record) {
			send(api.Snapshot{Records: recs})
		},
		func(err error) {
			send(api.Snapshot{Error: err.Error()})
			cancel()
		},
	)
	defer unsubscribe()

	// the client never sends anything, reading only notices the close
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	<-ctx.Done()

	mu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	mu.Unlock()
	return nil
}
