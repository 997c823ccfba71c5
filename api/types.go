package api

import (
	"time"
)

// Record is a schemaless document. Values are strings, numbers, bools, nil,
// nested maps, lists or time.Time.
type Record map[string]interface{}

const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

// CreatedAt returns the created_at stamp if the record carries one.
func (r Record) CreatedAt() (time.Time, bool) {
	t, ok := r[FieldCreatedAt].(time.Time)
	return t, ok
}

// UpdatedAt returns the updated_at stamp if the record carries one.
func (r Record) UpdatedAt() (time.Time, bool) {
	t, ok := r[FieldUpdatedAt].(time.Time)
	return t, ok
}

type Operator string

const (
	OpEqual         Operator = "=="
	OpNotEqual      Operator = "!="
	OpLess          Operator = "<"
	OpLessEqual     Operator = "<="
	OpGreater       Operator = ">"
	OpGreaterEqual  Operator = ">="
	OpIn            Operator = "in"
	OpNotIn         Operator = "not-in"
	OpArrayContains Operator = "array-contains"
)

type Filter struct {
	Field    string      `json:"field"`
	Operator Operator    `json:"operator"`
	Value    interface{} `json:"value,omitempty"`
}

// Where is shorthand for building a Filter.
func Where(field string, op Operator, value interface{}) Filter {
	return Filter{Field: field, Operator: op, Value: value}
}

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

type QueryRequest struct {
	Filters   []Filter  `json:"filters,omitempty"`
	OrderBy   string    `json:"order_by,omitempty"`
	Direction Direction `json:"direction,omitempty"`
	Limit     int       `json:"limit,omitempty"`
}

type QueryResponse struct {
	Records []Record `json:"records"`
}

type OpType string

const (
	OpSet    OpType = "set"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

type BatchOp struct {
	Type       OpType `json:"type"`
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Data       Record `json:"data,omitempty"`
}

type BatchRequest struct {
	Operations []BatchOp `json:"operations"`
}

// Result is what every write path reports. Callers branch on Success.
type Result struct {
	Success         bool      `json:"success"`
	ID              string    `json:"id,omitempty"`
	Created         bool      `json:"created,omitempty"`
	Updated         bool      `json:"updated,omitempty"`
	Error           string    `json:"error,omitempty"`
	Code            string    `json:"code,omitempty"`
	Message         string    `json:"message,omitempty"`
	OperationsCount int       `json:"operationsCount,omitempty"`
	Operations      []BatchOp `json:"operations,omitempty"`
}

// Snapshot is one message on a watch stream.
type Snapshot struct {
	Records []Record `json:"records,omitempty"`
	Error   string   `json:"error,omitempty"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}
