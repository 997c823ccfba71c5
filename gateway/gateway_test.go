package gateway

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/lmittmann/tint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sekolahku/docgate/api"
	"github.com/sekolahku/docgate/bus"
	"github.com/sekolahku/docgate/kv"
)

var testStart = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(tint.NewHandler(io.Discard, nil))
}

func setupTestGateway(t *testing.T, opts ...Option) (*Gateway, *clock.Mock) {
	store, err := kv.NewMemPebble()
	require.NoError(t, err)
	t.Cleanup(store.Close)

	mock := clock.NewMock()
	mock.Set(testStart)

	opts = append([]Option{WithClock(mock), WithLogger(quietLogger())}, opts...)
	return New(store, opts...), mock
}

func assertTime(t *testing.T, want time.Time, got interface{}) {
	t.Helper()
	ts, ok := got.(time.Time)
	if !assert.True(t, ok, "expected time.Time, got %T", got) {
		return
	}
	assert.True(t, want.Equal(ts), "expected %s, got %s", want, ts)
}

var errDiskOnFire = errors.New("disk on fire")

// brokenKV fails every commit and every read.
type brokenKV struct{ kv.KV }

func (b brokenKV) Write() kv.Write { return brokenWrite{b.KV.Write()} }
func (b brokenKV) Read() kv.Read   { return brokenRead{b.KV.Read()} }

type brokenWrite struct{ kv.Write }

func (brokenWrite) Commit(ctx context.Context) error { return errDiskOnFire }

type brokenRead struct{ kv.Read }

func (brokenRead) Get(ctx context.Context, key []byte) ([]byte, error) { return nil, errDiskOnFire }

func (brokenRead) Iter(ctx context.Context, start []byte, end []byte) iter.Seq2[kv.KeyAndValue, error] {
	return func(yield func(kv.KeyAndValue, error) bool) {
		yield(kv.KeyAndValue{}, errDiskOnFire)
	}
}

func setupBrokenGateway(t *testing.T) *Gateway {
	store, err := kv.NewMemPebble()
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return New(brokenKV{store}, WithLogger(quietLogger()), WithBus(bus.NewSolo()))
}

func TestCreateOrUpdateCreatesThenUpdates(t *testing.T) {
	g, mock := setupTestGateway(t)
	ctx := context.Background()

	res := g.CreateOrUpdate(ctx, "grades", "g1", api.Record{"score": 80, "subject_id": "math"}, true)
	require.True(t, res.Success, res.Error)
	assert.True(t, res.Created)
	assert.False(t, res.Updated)
	assert.Equal(t, "g1", res.ID)

	mock.Add(time.Hour)

	res = g.CreateOrUpdate(ctx, "grades", "g1", api.Record{"score": 90}, true)
	require.True(t, res.Success, res.Error)
	assert.False(t, res.Created)
	assert.True(t, res.Updated)

	rec, ok := g.Get(ctx, "grades", "g1")
	require.True(t, ok)
	assert.Equal(t, int64(90), rec["score"])
	assert.Equal(t, "math", rec["subject_id"], "merge must keep untouched fields")
	assertTime(t, testStart, rec[api.FieldCreatedAt])
	assertTime(t, testStart.Add(time.Hour), rec[api.FieldUpdatedAt])
}

func TestCreateOrUpdateWithoutHintReplaces(t *testing.T) {
	g, mock := setupTestGateway(t)
	ctx := context.Background()

	res := g.CreateOrUpdate(ctx, "grades", "g1", api.Record{"score": 80, "subject_id": "math"}, false)
	require.True(t, res.Success, res.Error)

	mock.Add(time.Minute)

	res = g.CreateOrUpdate(ctx, "grades", "g1", api.Record{"score": 70}, false)
	require.True(t, res.Success, res.Error)
	assert.True(t, res.Created)

	rec, ok := g.Get(ctx, "grades", "g1")
	require.True(t, ok)
	assert.Equal(t, int64(70), rec["score"])
	assert.NotContains(t, rec, "subject_id")
	assertTime(t, testStart, rec[api.FieldCreatedAt])
	assertTime(t, testStart.Add(time.Minute), rec[api.FieldUpdatedAt])
}

func TestCreateGeneratesKey(t *testing.T) {
	g, _ := setupTestGateway(t)
	ctx := context.Background()

	res := g.Create(ctx, "announcements", "", api.Record{"title": "libur"})
	require.True(t, res.Success, res.Error)
	require.NotEmpty(t, res.ID)

	rec, ok := g.Get(ctx, "announcements", res.ID)
	require.True(t, ok)
	assert.Equal(t, res.ID, rec[api.FieldID])
	assert.Equal(t, "libur", rec["title"])
}

func TestCreateIgnoresCallerCreatedAt(t *testing.T) {
	g, _ := setupTestGateway(t)
	ctx := context.Background()

	res := g.Create(ctx, "users", "u1", api.Record{"name": "Budi", api.FieldCreatedAt: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.True(t, res.Success, res.Error)

	rec, ok := g.Get(ctx, "users", "u1")
	require.True(t, ok)
	assertTime(t, testStart, rec[api.FieldCreatedAt])
}

func TestUpdateMissingBehavesLikeCreate(t *testing.T) {
	g, _ := setupTestGateway(t)
	ctx := context.Background()

	payload := api.Record{"status": "HADIR", "class_id": "c1"}

	res := g.Update(ctx, "attendance", "a1", payload)
	require.True(t, res.Success, res.Error)
	assert.True(t, res.Created)

	res = g.Create(ctx, "attendance", "a2", payload)
	require.True(t, res.Success, res.Error)

	a1, ok := g.Get(ctx, "attendance", "a1")
	require.True(t, ok)
	a2, ok := g.Get(ctx, "attendance", "a2")
	require.True(t, ok)

	delete(a1, api.FieldID)
	delete(a2, api.FieldID)
	assert.Equal(t, a2, a1)
}

func TestUpdateMergesAndKeepsCreatedAt(t *testing.T) {
	g, mock := setupTestGateway(t)
	ctx := context.Background()

	require.True(t, g.Create(ctx, "users", "u1", api.Record{"name": "Budi", "role": "teacher"}).Success)
	mock.Add(24 * time.Hour)

	res := g.Update(ctx, "users", "u1", api.Record{"role": "school_admin", api.FieldCreatedAt: time.Now()})
	require.True(t, res.Success, res.Error)
	assert.True(t, res.Updated)

	rec, ok := g.Get(ctx, "users", "u1")
	require.True(t, ok)
	assert.Equal(t, "Budi", rec["name"])
	assert.Equal(t, "school_admin", rec["role"])
	assertTime(t, testStart, rec[api.FieldCreatedAt])
	assertTime(t, testStart.Add(24*time.Hour), rec[api.FieldUpdatedAt])
}

func TestUpdateRejectsEmptyKey(t *testing.T) {
	g, _ := setupTestGateway(t)

	res := g.Update(context.Background(), "users", "", api.Record{"name": "Budi"})
	assert.False(t, res.Success)
	assert.Equal(t, CodeInvalidArgument, res.Code)
	assert.NotEmpty(t, res.Error)
}

func TestGetMissing(t *testing.T) {
	g, _ := setupTestGateway(t)
	ctx := context.Background()

	rec, ok := g.Get(ctx, "users", "nobody")
	assert.False(t, ok)
	assert.Nil(t, rec)

	rec, ok = g.Get(ctx, "users", "bad/key")
	assert.False(t, ok)
	assert.Nil(t, rec)
}

func TestGetInjectsIDButDataWins(t *testing.T) {
	g, _ := setupTestGateway(t)
	ctx := context.Background()

	require.True(t, g.Create(ctx, "users", "u1", api.Record{"name": "Budi"}).Success)
	require.True(t, g.Create(ctx, "users", "u2", api.Record{"id": "legacy-7"}).Success)

	rec, ok := g.Get(ctx, "users", "u1")
	require.True(t, ok)
	assert.Equal(t, "u1", rec[api.FieldID])

	rec, ok = g.Get(ctx, "users", "u2")
	require.True(t, ok)
	assert.Equal(t, "legacy-7", rec[api.FieldID])
}

func TestGetNormalizesNestedTimestamps(t *testing.T) {
	g, _ := setupTestGateway(t)
	ctx := context.Background()

	due := time.Date(2024, 4, 1, 0, 0, 0, 0, time.FixedZone("WIB", 7*3600))

	require.True(t, g.Create(ctx, "payments", "p1", api.Record{
		"amount": 150000,
		"rate":   0.5,
		"terms": map[string]interface{}{
			"due":       due,
			"reminders": []interface{}{due.Add(-24 * time.Hour)},
		},
	}).Success)

	rec, ok := g.Get(ctx, "payments", "p1")
	require.True(t, ok)
	assert.Equal(t, int64(150000), rec["amount"])
	assert.Equal(t, 0.5, rec["rate"])

	terms, ok := rec["terms"].(map[string]interface{})
	require.True(t, ok)
	assertTime(t, due, terms["due"])
	reminders, ok := terms["reminders"].([]interface{})
	require.True(t, ok)
	require.Len(t, reminders, 1)
	assertTime(t, due.Add(-24*time.Hour), reminders[0])
}

func TestDeleteIsIdempotent(t *testing.T) {
	g, _ := setupTestGateway(t)
	ctx := context.Background()

	require.True(t, g.Create(ctx, "classes", "c1", api.Record{"name": "7A"}).Success)

	res := g.Delete(ctx, "classes", "c1")
	assert.True(t, res.Success, res.Error)
	_, ok := g.Get(ctx, "classes", "c1")
	assert.False(t, ok)

	res = g.Delete(ctx, "classes", "c1")
	assert.True(t, res.Success, res.Error)

	assert.Empty(t, g.Query(ctx, "classes", []api.Filter{api.Where("name", api.OpEqual, "7A")}))
}

func TestStorageFailureIsReportedNotRaised(t *testing.T) {
	g := setupBrokenGateway(t)
	ctx := context.Background()

	res := g.Create(ctx, "users", "u1", api.Record{"name": "Budi"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "disk on fire")
	assert.Equal(t, CodeInternal, res.Code)

	res = g.CreateOrUpdate(ctx, "users", "u1", api.Record{"name": "Budi"}, true)
	assert.False(t, res.Success)

	res = g.Delete(ctx, "users", "u1")
	assert.False(t, res.Success)

	_, ok := g.Get(ctx, "users", "u1")
	assert.False(t, ok)

	recs := g.Query(ctx, "users", nil)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}
