package aql

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sekolahku/docgate/api"
)

func TestLexer(t *testing.T) {
	tests := []struct {
		input    string
		expected []Token
	}{
		{
			"attendance",
			[]Token{
				{TOKEN_IDENT, "attendance"},
				{TOKEN_EOF, ""},
			},
		},
		{
			"users(role=teacher)",
			[]Token{
				{TOKEN_IDENT, "users"},
				{TOKEN_LPAREN, "("},
				{TOKEN_IDENT, "role"},
				{TOKEN_EQUALS, "="},
				{TOKEN_IDENT, "teacher"},
				{TOKEN_RPAREN, ")"},
				{TOKEN_EOF, ""},
			},
		},
		{
			`attendance(date>=2024-01-01, date<2024-02-01,, score!=-5 status in [HADIR, "IZIN"])`,
			[]Token{
				{TOKEN_IDENT, "attendance"},
				{TOKEN_LPAREN, "("},
				{TOKEN_IDENT, "date"},
				{TOKEN_GREATER_EQUALS, ">="},
				{TOKEN_IDENT, "2024-01-01"},
				{TOKEN_COMMA, ","},
				{TOKEN_IDENT, "date"},
				{TOKEN_LESS, "<"},
				{TOKEN_IDENT, "2024-02-01"},
				{TOKEN_COMMA, ","},
				{TOKEN_COMMA, ","},
				{TOKEN_IDENT, "score"},
				{TOKEN_NOT_EQUALS, "!="},
				{TOKEN_IDENT, "-5"},
				{TOKEN_IDENT, "status"},
				{TOKEN_IDENT, "in"},
				{TOKEN_LBRACKET, "["},
				{TOKEN_IDENT, "HADIR"},
				{TOKEN_COMMA, ","},
				{TOKEN_STRING, "IZIN"},
				{TOKEN_RBRACKET, "]"},
				{TOKEN_RPAREN, ")"},
				{TOKEN_EOF, ""},
			},
		},
		{
			"users(id==?)",
			[]Token{
				{TOKEN_IDENT, "users"},
				{TOKEN_LPAREN, "("},
				{TOKEN_IDENT, "id"},
				{TOKEN_EQUALS, "=="},
				{TOKEN_PARAM, "?"},
				{TOKEN_RPAREN, ")"},
				{TOKEN_EOF, ""},
			},
		},
	}

	for i, tt := range tests {
		l := NewLexer(tt.input)
		tokens := []Token{}
		for {
			tok := l.NextToken()
			tokens = append(tokens, tok)
			if tok.Type == TOKEN_EOF || tok.Type == TOKEN_ILLEGAL {
				break
			}
		}

		if !reflect.DeepEqual(tokens, tt.expected) {
			t.Errorf("test %d: wrong tokens.\nexpected=%+v\ngot=%+v",
				i, tt.expected, tokens)
		}
	}
}

func TestParser(t *testing.T) {
	tests := []struct {
		input       string
		expected    *Query
		shouldError bool
	}{
		{
			input: "school.classes",
			expected: &Query{
				Collection: "school.classes",
			},
		},
		{
			input:       "users(role)",
			shouldError: true,
		},
		{
			input:       "users(role=teacher",
			shouldError: true,
		},
		{
			input: `users(role=teacher, school_id="sch-1" active=true)`,
			expected: &Query{
				Collection: "users",
				Filters: []api.Filter{
					{Field: "role", Operator: api.OpEqual, Value: "teacher"},
					{Field: "school_id", Operator: api.OpEqual, Value: "sch-1"},
					{Field: "active", Operator: api.OpEqual, Value: true},
				},
			},
		},
		{
			input: `grades(score>=75, score<92.5, term==2)`,
			expected: &Query{
				Collection: "grades",
				Filters: []api.Filter{
					{Field: "score", Operator: api.OpGreaterEqual, Value: int64(75)},
					{Field: "score", Operator: api.OpLess, Value: 92.5},
					{Field: "term", Operator: api.OpEqual, Value: int64(2)},
				},
			},
		},
		{
			input: `(limit=10, order=date, desc=true) attendance(class_id=c1, date>=2024-01-01, date<=2024-01-31, status in [HADIR, IZIN])`,
			expected: &Query{
				Collection: "attendance",
				Filters: []api.Filter{
					{Field: "class_id", Operator: api.OpEqual, Value: "c1"},
					{Field: "date", Operator: api.OpGreaterEqual, Value: "2024-01-01"},
					{Field: "date", Operator: api.OpLessEqual, Value: "2024-01-31"},
					{Field: "status", Operator: api.OpIn, Value: []interface{}{"HADIR", "IZIN"}},
				},
				OrderBy:   "date",
				Direction: api.Desc,
				Limit:     10,
			},
		},
		{
			input: `(order=name) (limit=1) schools`,
			expected: &Query{
				Collection: "schools",
				OrderBy:    "name",
				Direction:  api.Asc,
				Limit:      1,
			},
		},
		{
			input: `announcements(tags contains urgent, audience not-in [parent])`,
			expected: &Query{
				Collection: "announcements",
				Filters: []api.Filter{
					{Field: "tags", Operator: api.OpArrayContains, Value: "urgent"},
					{Field: "audience", Operator: api.OpNotIn, Value: []interface{}{"parent"}},
				},
			},
		},
		{
			input:       `(limit=1, limit=2) schools`,
			shouldError: true,
		},
		{
			input:       `(limit=-1) schools`,
			shouldError: true,
		},
		{
			input:       `(cursor=abc) schools`,
			shouldError: true,
		},
	}

	for i, tt := range tests {
		l := NewLexer(tt.input)
		p := NewParser(l)
		actual, err := p.ParseQuery()

		if tt.shouldError {
			if err == nil {
				t.Errorf("test %d: expected error but got none", i)
			}
			continue
		}

		if err != nil {
			t.Errorf("test %d: unexpected error: %v", i, err)
			continue
		}

		if !reflect.DeepEqual(actual, tt.expected) {
			a, _ := json.Marshal(actual)
			b, _ := json.Marshal(tt.expected)
			t.Errorf("test %d: wrong query.\nexpected=%s\ngot=%s",
				i, b, a)
		}
	}
}

func TestEdgeCases(t *testing.T) {
	tests := []struct {
		input       string
		shouldError bool
	}{
		{
			input:       "",
			shouldError: true,
		},
		{
			input:       "users(role===teacher)",
			shouldError: true,
		},
		{
			input:       `users(name="Budi)`,
			shouldError: true,
		},
		{
			input:       `users(status in HADIR)`,
			shouldError: true,
		},
		{
			input:       `users(status in [HADIR)`,
			shouldError: true,
		},
		{
			input:       `users(role!teacher)`,
			shouldError: true,
		},
		{
			input:       "users() extra",
			shouldError: true,
		},
		{
			input:       "school-classes()",
			shouldError: false,
		},
		{
			input:       `users(role=?)`,
			shouldError: true,
		},
	}

	for i, tt := range tests {
		_, err := Parse(tt.input)
		if tt.shouldError && err == nil {
			t.Errorf("test %d: expected error for input '%s' but got none", i, tt.input)
		} else if !tt.shouldError && err != nil {
			t.Errorf("test %d: unexpected error for input '%s': %v", i, tt.input, err)
		}
	}
}

func TestParameterizedQueries(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		params      []interface{}
		expected    *Query
		shouldError bool
	}{
		{
			name:   "Single string parameter",
			input:  `users(name=?)`,
			params: []interface{}{"Siti Rahma"},
			expected: &Query{
				Collection: "users",
				Filters: []api.Filter{
					{Field: "name", Operator: api.OpEqual, Value: "Siti Rahma"},
				},
			},
		},
		{
			name:   "Different operators and a list",
			input:  `attendance(date>=? date<=? status in ?)`,
			params: []interface{}{"2024-01-01", "2024-01-31", []interface{}{"HADIR", "IZIN"}},
			expected: &Query{
				Collection: "attendance",
				Filters: []api.Filter{
					{Field: "date", Operator: api.OpGreaterEqual, Value: "2024-01-01"},
					{Field: "date", Operator: api.OpLessEqual, Value: "2024-01-31"},
					{Field: "status", Operator: api.OpIn, Value: []interface{}{"HADIR", "IZIN"}},
				},
			},
		},
		{
			name:        "Not enough parameters",
			input:       `users(role=? school_id=?)`,
			params:      []interface{}{"teacher"},
			shouldError: true,
		},
		{
			name:        "List parameter must be a list",
			input:       `users(role in ?)`,
			params:      []interface{}{"teacher"},
			shouldError: true,
		},
		{
			name:   "Too many parameters",
			input:  `users(role=?)`,
			params: []interface{}{"teacher", "extra", "params"},
			expected: &Query{
				Collection: "users",
				Filters: []api.Filter{
					{Field: "role", Operator: api.OpEqual, Value: "teacher"},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, err := Parse(tt.input, tt.params...)

			if tt.shouldError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if !reflect.DeepEqual(actual, tt.expected) {
				a, _ := json.Marshal(actual)
				b, _ := json.Marshal(tt.expected)
				t.Errorf("wrong query.\nexpected=%s\ngot=%s", b, a)
			}
		})
	}
}

func TestStringParsesBack(t *testing.T) {
	for _, input := range []string{
		`schools`,
		`(limit=10, order=date, desc=true) attendance(class_id=c1, date>=2024-01-01, status in [HADIR, IZIN])`,
		`announcements(tags contains urgent, audience not-in [parent], score<92.5, active=true)`,
	} {
		q, err := Parse(input)
		require.NoError(t, err, input)

		again, err := Parse(q.String())
		require.NoError(t, err, q.String())
		assert.Equal(t, q, again)
	}
}

func TestRequest(t *testing.T) {
	q, err := Parse(`(limit=5, order=name) users(role=teacher)`)
	require.NoError(t, err)

	assert.Equal(t, api.QueryRequest{
		Filters:   []api.Filter{{Field: "role", Operator: api.OpEqual, Value: "teacher"}},
		OrderBy:   "name",
		Direction: api.Asc,
		Limit:     5,
	}, q.Request())
}
