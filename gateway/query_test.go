package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sekolahku/docgate/api"
)

func setupQueryTestData(t *testing.T, g *Gateway) {
	ctx := context.Background()
	docs := map[string]api.Record{
		"a1": {"class_id": "c1", "student_id": "s1", "date": "2024-01-05", "status": "HADIR", "score": 80},
		"a2": {"class_id": "c1", "student_id": "s2", "date": "2024-01-06", "status": "IZIN", "score": 92.5},
		"a3": {"class_id": "c1", "student_id": "s1", "date": "2024-02-01", "status": "ALFA", "score": 60},
		"a4": {"class_id": "c2", "student_id": "s3", "date": "2024-01-10", "status": "HADIR", "score": 80},
		"a5": {"class_id": "c2", "student_id": "s4", "status": nil, "tags": []interface{}{"late", "excused"},
			"address": map[string]interface{}{"city": "Bandung"}},
	}
	for key, doc := range docs {
		res := g.Create(ctx, "attendance", key, doc)
		require.True(t, res.Success, res.Error)
	}
}

func ids(recs []api.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r[api.FieldID].(string))
	}
	return out
}

func TestQueryFilters(t *testing.T) {
	g, _ := setupTestGateway(t)
	setupQueryTestData(t, g)
	ctx := context.Background()

	tests := []struct {
		name    string
		filters []api.Filter
		want    []string
	}{
		{
			name: "no filters returns everything in key order",
			want: []string{"a1", "a2", "a3", "a4", "a5"},
		},
		{
			name:    "equality",
			filters: []api.Filter{api.Where("class_id", api.OpEqual, "c1")},
			want:    []string{"a1", "a2", "a3"},
		},
		{
			name: "conjunction",
			filters: []api.Filter{
				api.Where("class_id", api.OpEqual, "c1"),
				api.Where("student_id", api.OpEqual, "s1"),
			},
			want: []string{"a1", "a3"},
		},
		{
			name: "date range",
			filters: []api.Filter{
				api.Where("date", api.OpGreaterEqual, "2024-01-01"),
				api.Where("date", api.OpLessEqual, "2024-01-31"),
			},
			want: []string{"a1", "a2", "a4"},
		},
		{
			name:    "int matches float filter value",
			filters: []api.Filter{api.Where("score", api.OpEqual, 80.0)},
			want:    []string{"a1", "a4"},
		},
		{
			name:    "numeric range across int and float",
			filters: []api.Filter{api.Where("score", api.OpGreater, 75)},
			want:    []string{"a1", "a2", "a4"},
		},
		{
			name:    "range never matches other types",
			filters: []api.Filter{api.Where("score", api.OpGreater, "0")},
			want:    []string{},
		},
		{
			name:    "in",
			filters: []api.Filter{api.Where("status", api.OpIn, []string{"HADIR", "IZIN"})},
			want:    []string{"a1", "a2", "a4"},
		},
		{
			name:    "not-in skips null and missing",
			filters: []api.Filter{api.Where("status", api.OpNotIn, []string{"HADIR"})},
			want:    []string{"a2", "a3"},
		},
		{
			name:    "not equal skips null",
			filters: []api.Filter{api.Where("status", api.OpNotEqual, "ALFA")},
			want:    []string{"a1", "a2", "a4"},
		},
		{
			name:    "array contains",
			filters: []api.Filter{api.Where("tags", api.OpArrayContains, "late")},
			want:    []string{"a5"},
		},
		{
			name:    "dotted path",
			filters: []api.Filter{api.Where("address.city", api.OpEqual, "Bandung")},
			want:    []string{"a5"},
		},
		{
			name: "filters without a value are dropped",
			filters: []api.Filter{
				api.Where("class_id", api.OpEqual, "c2"),
				api.Where("student_id", api.OpEqual, ""),
				api.Where("status", api.OpEqual, nil),
			},
			want: []string{"a4", "a5"},
		},
		{
			name:    "missing field never matches",
			filters: []api.Filter{api.Where("subject_id", api.OpNotEqual, "math")},
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(g.Query(ctx, "attendance", tt.filters)))
		})
	}
}

func TestQueryOrderAndLimit(t *testing.T) {
	g, _ := setupTestGateway(t)
	setupQueryTestData(t, g)
	ctx := context.Background()

	recs := g.Query(ctx, "attendance", nil, OrderBy("date", api.Desc))
	assert.Equal(t, []string{"a3", "a4", "a2", "a1"}, ids(recs), "a5 has no date and must be left out")

	recs = g.Query(ctx, "attendance", nil, OrderBy("date", api.Asc), Limit(2))
	assert.Equal(t, []string{"a1", "a2"}, ids(recs))

	recs = g.Query(ctx, "attendance",
		[]api.Filter{api.Where("class_id", api.OpEqual, "c1")},
		OrderBy("score", api.Desc), Limit(1))
	assert.Equal(t, []string{"a2"}, ids(recs))

	recs = g.Query(ctx, "attendance", nil, RequestOptions(api.QueryRequest{OrderBy: "date", Limit: 1})...)
	assert.Equal(t, []string{"a1"}, ids(recs))
}

func TestQueryInvalidFilterReturnsEmpty(t *testing.T) {
	g, _ := setupTestGateway(t)
	setupQueryTestData(t, g)
	ctx := context.Background()

	recs := g.Query(ctx, "attendance", []api.Filter{api.Where("status", "like", "HAD%")})
	assert.NotNil(t, recs)
	assert.Empty(t, recs)

	recs = g.Query(ctx, "attendance", []api.Filter{api.Where("status", api.OpIn, "HADIR")})
	assert.Empty(t, recs)

	recs = g.Query(ctx, "no/such/collection", nil)
	assert.Empty(t, recs)
}

func TestQueryUnknownCollectionIsEmpty(t *testing.T) {
	g, _ := setupTestGateway(t)
	recs := g.Query(context.Background(), "schools", nil)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}

func TestQueryIndexFollowsUpdates(t *testing.T) {
	g, _ := setupTestGateway(t)
	ctx := context.Background()

	require.True(t, g.Create(ctx, "users", "u1", api.Record{"role": "teacher", "active": true}).Success)
	require.True(t, g.Update(ctx, "users", "u1", api.Record{"role": "school_admin"}).Success)

	assert.Empty(t, g.Query(ctx, "users", []api.Filter{api.Where("role", api.OpEqual, "teacher")}))
	assert.Equal(t, []string{"u1"}, ids(g.Query(ctx, "users", []api.Filter{api.Where("role", api.OpEqual, "school_admin")})))
	assert.Equal(t, []string{"u1"}, ids(g.Query(ctx, "users", []api.Filter{api.Where("active", api.OpEqual, true)})))

	require.True(t, g.Delete(ctx, "users", "u1").Success)
	assert.Empty(t, g.Query(ctx, "users", []api.Filter{api.Where("role", api.OpEqual, "school_admin")}))
}

func TestQueryDoesNotLeakAcrossCollections(t *testing.T) {
	g, _ := setupTestGateway(t)
	ctx := context.Background()

	require.True(t, g.Create(ctx, "users", "u1", api.Record{"school_id": "sch1"}).Success)
	require.True(t, g.Create(ctx, "users.archive", "u2", api.Record{"school_id": "sch1"}).Success)

	assert.Equal(t, []string{"u1"}, ids(g.Query(ctx, "users", nil)))
	assert.Equal(t, []string{"u1"}, ids(g.Query(ctx, "users", []api.Filter{api.Where("school_id", api.OpEqual, "sch1")})))
}

func TestCompareValuesTypeOrder(t *testing.T) {
	ordered := []interface{}{
		nil,
		false,
		true,
		int64(-3),
		1.5,
		int64(2),
		testStart,
		"a",
		"b",
		[]interface{}{"a"},
		[]interface{}{"a", "b"},
		map[string]interface{}{"a": int64(1)},
	}
	for i := 0; i < len(ordered)-1; i++ {
		assert.Equal(t, -1, compareValues(ordered[i], ordered[i+1]), "%v < %v", ordered[i], ordered[i+1])
		assert.Equal(t, 1, compareValues(ordered[i+1], ordered[i]), "%v > %v", ordered[i+1], ordered[i])
	}
	assert.True(t, equalValues(int64(2), 2.0))
	assert.False(t, equalValues("2", int64(2)))
}
