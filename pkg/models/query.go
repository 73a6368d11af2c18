package models

import (
	"time"
)

// Plan bounds.
const (
	DefaultLimit  = 10
	MaxLimit      = 100
	ResultCeiling = 1000
)

// QueryPlan is a validated read-only query: one collection, one filter
// object and a normalized limit in [1, MaxLimit].
type QueryPlan struct {
	Collection string `json:"collection"`
	Filter     Value  `json:"query"`
	Limit      int    `json:"limit"`
}

// ResultSet is an ordered, immutable list of projected records. Every
// record is an object Value.
type ResultSet struct {
	records []Value
}

// NewResultSet returns a result set holding a copy of records.
func NewResultSet(records []Value) *ResultSet {
	rs := &ResultSet{records: make([]Value, len(records))}
	copy(rs.records, records)
	return rs
}

// Len returns the number of records.
func (r *ResultSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.records)
}

// At returns the i-th record.
func (r *ResultSet) At(i int) Value {
	if r == nil || i < 0 || i >= len(r.records) {
		return Null()
	}
	return r.records[i]
}

// Records returns a copy of the records.
func (r *ResultSet) Records() []Value {
	if r == nil {
		return []Value{}
	}
	out := make([]Value, len(r.records))
	copy(out, r.records)
	return out
}

// MarshalJSON encodes the result set as a JSON array.
func (r *ResultSet) MarshalJSON() ([]byte, error) {
	return Array(r.Records()...).MarshalJSON()
}

// QueryRequest is the inbound natural-language request.
type QueryRequest struct {
	Query         string `json:"query"`
	SchemaSummary string `json:"schema,omitempty"`
}

// QueryResult is the outcome of a successful pipeline run.
type QueryResult struct {
	RequestID     string        `json:"request_id"`
	Plan          *QueryPlan    `json:"plan"`
	Results       *ResultSet    `json:"results"`
	ExecutionTime time.Duration `json:"execution_time"`
}

// QueryResponse is the HTTP envelope returned to callers.
type QueryResponse struct {
	Success         bool       `json:"success"`
	Message         string     `json:"message"`
	RequestID       string     `json:"requestId,omitempty"`
	Data            *ResultSet `json:"data,omitempty"`
	Count           int        `json:"count"`
	GeneratedQuery  *QueryPlan `json:"generatedQuery,omitempty"`
	ExecutionTimeMs int64      `json:"executionTimeMs"`
}

// ErrorResponse is the HTTP body of a failed request.
type ErrorResponse struct {
	Timestamp time.Time              `json:"timestamp"`
	Status    int                    `json:"status"`
	Error     string                 `json:"error"`
	Code      string                 `json:"code"`
	Stage     string                 `json:"stage,omitempty"`
	Message   string                 `json:"message"`
	Path      string                 `json:"path"`
	Details   map[string]interface{} `json:"details,omitempty"`
}
