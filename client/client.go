package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sekolahku/docgate/api"
)

var ErrNotFound = errors.New("not found")

// StatusError is a non-2xx answer without a Result body.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected response: %d", e.Code)
	}
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// Client talks to a docgate server over HTTP.
type Client struct {
	base string
	http *http.Client
}

func New(address string) *Client {
	return &Client{
		base: strings.TrimSuffix(address, "/"),
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		},
	}
}

func (c *Client) url(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.base + "/v1/" + strings.Join(escaped, "/")
}

func (c *Client) do(ctx context.Context, method, u string, body interface{}) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

func decode(resp *http.Response, v interface{}) error {
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	return dec.Decode(v)
}

// statusError reads the echo error body of a failed response.
func statusError(resp *http.Response) error {
	var body api.ErrorResponse
	decode(resp, &body)
	return &StatusError{Code: resp.StatusCode, Message: body.Message}
}

// result decodes a write response. A Result body is returned as is, also for
// failures, so callers can branch on Success and Code.
func result(resp *http.Response, err error) (api.Result, error) {
	if err != nil {
		return api.Result{}, err
	}
	defer resp.Body.Close()

	var res api.Result
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return api.Result{}, err
	}
	if err := json.Unmarshal(raw, &res); err != nil || (!res.Success && res.Error == "" && res.Code == "") {
		var body api.ErrorResponse
		json.Unmarshal(raw, &body)
		return api.Result{}, &StatusError{Code: resp.StatusCode, Message: body.Message}
	}
	return res, nil
}

func (c *Client) Get(ctx context.Context, collection, id string) (api.Record, error) {
	resp, err := c.do(ctx, http.MethodGet, c.url(collection, id), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, statusError(resp)
	}

	var rec api.Record
	if err := decode(resp, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Put is createOrUpdate. With update set an existing document is merged.
func (c *Client) Put(ctx context.Context, collection, id string, rec api.Record, update bool) (api.Result, error) {
	u := c.url(collection, id)
	if update {
		u += "?update=true"
	}
	return result(c.do(ctx, http.MethodPut, u, rec))
}

// Create writes rec, generating an id when none is given.
func (c *Client) Create(ctx context.Context, collection, id string, rec api.Record) (api.Result, error) {
	u := c.url(collection)
	if id != "" {
		u = c.url(collection, id)
	}
	return result(c.do(ctx, http.MethodPost, u, rec))
}

func (c *Client) Update(ctx context.Context, collection, id string, rec api.Record) (api.Result, error) {
	return result(c.do(ctx, http.MethodPatch, c.url(collection, id), rec))
}

func (c *Client) Delete(ctx context.Context, collection, id string) (api.Result, error) {
	return result(c.do(ctx, http.MethodDelete, c.url(collection, id), nil))
}

func (c *Client) Query(ctx context.Context, collection string, req api.QueryRequest) ([]api.Record, error) {
	resp, err := c.do(ctx, http.MethodPost, c.url(collection, "_query"), req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	var out api.QueryResponse
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// Batch commits ops. Validated batches check every operation against the
// store first, simple ones apply them as given.
func (c *Client) Batch(ctx context.Context, ops []api.BatchOp, simple bool) (api.Result, error) {
	u := c.url("_batch")
	if simple {
		u = c.url("_batch", "simple")
	}
	return result(c.do(ctx, http.MethodPost, u, api.BatchRequest{Operations: ops}))
}

func (c *Client) PutSchema(ctx context.Context, collection string, schema map[string]interface{}) error {
	resp, err := c.do(ctx, http.MethodPut, c.url("_schemas", collection), schema)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return statusError(resp)
	}
	return nil
}

func (c *Client) GetSchema(ctx context.Context, collection string) (map[string]interface{}, error) {
	resp, err := c.do(ctx, http.MethodGet, c.url("_schemas", collection), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, statusError(resp)
	}

	var schema map[string]interface{}
	if err := decode(resp, &schema); err != nil {
		return nil, err
	}
	return schema, nil
}

// Watch calls fn with every snapshot of the records matching q until ctx is
// done or the server ends the stream. q is an aql query on collection, an
// empty q watches everything in it.
func (c *Client) Watch(ctx context.Context, collection, q string, fn func(api.Snapshot)) error {
	u := strings.Replace(c.url(collection, "_watch"), "http", "ws", 1)
	if q != "" {
		u += "?q=" + url.QueryEscape(q)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return statusError(resp)
		}
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return ctx.Err()
			}
			return err
		}

		var snap api.Snapshot
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&snap); err != nil {
			return err
		}
		fn(snap)
		if snap.Error != "" {
			return errors.New(snap.Error)
		}
	}
}
