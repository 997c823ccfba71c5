package schema

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/lmittmann/tint"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sekolahku/docgate/api"
	"github.com/sekolahku/docgate/gateway"
	"github.com/sekolahku/docgate/kv"
)

func setupTestRegistry(t *testing.T) (*Registry, *gateway.Gateway) {
	store, err := kv.NewMemPebble()
	require.NoError(t, err)
	t.Cleanup(store.Close)

	g := gateway.New(store, gateway.WithLogger(slog.New(tint.NewHandler(io.Discard, nil))))
	r, err := NewRegistry(g, time.Minute)
	require.NoError(t, err)
	return r, g
}

var gradeSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"student_id", "score"},
	"properties": map[string]interface{}{
		"student_id": map[string]interface{}{"type": "string"},
		"score":      map[string]interface{}{"type": "number", "minimum": 0, "maximum": 100},
		"created_at": map[string]interface{}{"type": "string", "format": "date-time"},
	},
}

func TestValidateWithoutSchema(t *testing.T) {
	r, _ := setupTestRegistry(t)
	assert.NoError(t, r.Validate(context.Background(), "grades", api.Record{"anything": true}))
}

func TestValidateAgainstSchema(t *testing.T) {
	r, _ := setupTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, "grades", gradeSchema))

	assert.NoError(t, r.Validate(ctx, "grades", api.Record{
		"student_id": "s1",
		"score":      int64(88),
		"created_at": time.Now(),
	}))

	err := r.Validate(ctx, "grades", api.Record{"student_id": "s1", "score": 120})
	require.Error(t, err)
	var ve *jsonschema.ValidationError
	assert.True(t, errors.As(err, &ve))

	assert.Error(t, r.Validate(ctx, "grades", api.Record{"score": 50}))
}

func TestPutReplacesCachedSchema(t *testing.T) {
	r, _ := setupTestRegistry(t)
	ctx := context.Background()

	// cache "no schema" first
	require.NoError(t, r.Validate(ctx, "grades", api.Record{"score": 500}))

	require.NoError(t, r.Put(ctx, "grades", gradeSchema))
	assert.Error(t, r.Validate(ctx, "grades", api.Record{"student_id": "s1", "score": 500}))

	got, ok := r.Get(ctx, "grades")
	require.True(t, ok)
	assert.Equal(t, "object", got["type"])
}

func TestPutRejectsInvalidSchema(t *testing.T) {
	r, _ := setupTestRegistry(t)

	err := r.Put(context.Background(), "grades", map[string]interface{}{"type": 12})
	assert.ErrorIs(t, err, ErrInvalidSchema)

	_, ok := r.Get(context.Background(), "grades")
	assert.False(t, ok)
}
