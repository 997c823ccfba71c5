package server

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sekolahku/docgate/api"
)

func setupQueryTestData(t *testing.T, e *echo.Echo) {
	docs := map[string]map[string]interface{}{
		"a1": {"class_id": "c1", "student_id": "s1", "date": "2024-01-03", "status": "HADIR"},
		"a2": {"class_id": "c1", "student_id": "s2", "date": "2024-01-03", "status": "ALFA"},
		"a3": {"class_id": "c1", "student_id": "s1", "date": "2024-01-04", "status": "IZIN"},
		"a4": {"class_id": "c2", "student_id": "s3", "date": "2024-01-04", "status": "HADIR"},
		"a5": {"class_id": "c1", "student_id": "s2", "date": "2024-02-01", "status": "HADIR"},
	}
	for id, doc := range docs {
		rec := do(e, http.MethodPut, "/v1/attendance/"+id, doc)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
}

func queryIDs(t *testing.T, e *echo.Echo, req api.QueryRequest) []string {
	t.Helper()
	rec := do(e, http.MethodPost, "/v1/attendance/_query", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp api.QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	ids := make([]string, 0, len(resp.Records))
	for _, r := range resp.Records {
		ids = append(ids, r["id"].(string))
	}
	return ids
}

func TestQueryDocuments_NoFilters(t *testing.T) {
	e, _, _ := setupTestServer(t)
	setupQueryTestData(t, e)

	assert.Equal(t, []string{"a1", "a2", "a3", "a4", "a5"}, queryIDs(t, e, api.QueryRequest{}))
}

func TestQueryDocuments_Filters(t *testing.T) {
	e, _, _ := setupTestServer(t)
	setupQueryTestData(t, e)

	tests := []struct {
		name    string
		filters []api.Filter
		want    []string
	}{
		{
			name:    "equality",
			filters: []api.Filter{api.Where("class_id", api.OpEqual, "c1")},
			want:    []string{"a1", "a2", "a3", "a5"},
		},
		{
			name: "january of one class",
			filters: []api.Filter{
				api.Where("class_id", api.OpEqual, "c1"),
				api.Where("date", api.OpGreaterEqual, "2024-01-01"),
				api.Where("date", api.OpLessEqual, "2024-01-31"),
			},
			want: []string{"a1", "a2", "a3"},
		},
		{
			name:    "in",
			filters: []api.Filter{api.Where("status", api.OpIn, []string{"IZIN", "ALFA"})},
			want:    []string{"a2", "a3"},
		},
		{
			name:    "empty value is ignored",
			filters: []api.Filter{api.Where("class_id", api.OpEqual, ""), api.Where("student_id", api.OpEqual, "s3")},
			want:    []string{"a4"},
		},
		{
			name:    "nothing matches",
			filters: []api.Filter{api.Where("class_id", api.OpEqual, "c9")},
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, queryIDs(t, e, api.QueryRequest{Filters: tt.filters}))
		})
	}
}

func TestQueryDocuments_OrderAndLimit(t *testing.T) {
	e, _, _ := setupTestServer(t)
	setupQueryTestData(t, e)

	got := queryIDs(t, e, api.QueryRequest{
		Filters:   []api.Filter{api.Where("class_id", api.OpEqual, "c1")},
		OrderBy:   "date",
		Direction: api.Desc,
		Limit:     2,
	})
	assert.Equal(t, []string{"a5", "a3"}, got)
}

func TestQueryDocuments_InvalidRequest(t *testing.T) {
	e, _, _ := setupTestServer(t)

	rec := do(e, http.MethodPost, "/v1/attendance/_query", api.QueryRequest{Direction: "sideways"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/v1/attendance/_query", api.QueryRequest{Limit: -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryDocuments_BadFilterReturnsNothing(t *testing.T) {
	e, _, _ := setupTestServer(t)
	setupQueryTestData(t, e)

	got := queryIDs(t, e, api.QueryRequest{Filters: []api.Filter{api.Where("status", "~=", "HADIR")}})
	assert.Empty(t, got)
}
