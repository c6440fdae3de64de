// internal/models/query.go
package models

import "time"

// EntityKind identifies the kind of meaning extracted from a question.
type EntityKind string

const (
	EntityLocation      EntityKind = "location"
	EntityBuildingType  EntityKind = "building_type"
	EntityTimePeriod    EntityKind = "time_period"
	EntityViolationType EntityKind = "violation_type"
)

// EntityValue is a single extracted entity. Recognized marks values that were
// mapped onto a canonical form; unrecognized values keep the raw token so
// downstream stages can decide whether to filter on them at all.
type EntityValue struct {
	Raw        string     `json:"raw"`
	Normalized string     `json:"normalized,omitempty"`
	Recognized bool       `json:"recognized"`
	TimeRange  *TimeRange `json:"timeRange,omitempty"`
}

// TimeRange is a resolved absolute date range.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// EntitySet keeps the ordered entity lists per kind.
type EntitySet map[EntityKind][]EntityValue

// First returns the first entity of the given kind, if any.
func (e EntitySet) First(kind EntityKind) (EntityValue, bool) {
	vals := e[kind]
	if len(vals) == 0 {
		return EntityValue{}, false
	}
	return vals[0], true
}

// Operator is the closed set of filter operators the compiler accepts.
type Operator string

const (
	OpEquals  Operator = "="
	OpLike    Operator = "LIKE"
	OpBetween Operator = "BETWEEN"
)

// Filter is one user- or entity-derived predicate. A BETWEEN filter always
// carries exactly two values in Values; other operators use a single value.
type Filter struct {
	Table    string        `json:"table"`
	Column   string        `json:"column"`
	Operator Operator      `json:"operator"`
	Values   []interface{} `json:"values"`
}

// Aggregation is one group-by request.
type Aggregation struct {
	GroupBy string `json:"groupBy"`
}

// DefaultQueryLimit caps result sets when the user did not ask for a size.
const DefaultQueryLimit = 100

// StructuredQuery is the canonical parsed representation of one user question.
// It is created by the interpreter, merged once against conversation context,
// and never mutated after compilation.
type StructuredQuery struct {
	Intent        Intent        `json:"intent"`
	Entities      EntitySet     `json:"entities"`
	Filters       []Filter      `json:"filters"`
	Aggregations  []Aggregation `json:"aggregations,omitempty"`
	SortOrder     string        `json:"sortOrder,omitempty"`
	Limit         int           `json:"limit"`
	OriginalQuery string        `json:"originalQuery"`
}

// NewStructuredQuery returns a query with defaults applied.
func NewStructuredQuery(raw string) StructuredQuery {
	return StructuredQuery{
		Intent:        IntentUnknown,
		Entities:      EntitySet{},
		Limit:         DefaultQueryLimit,
		OriginalQuery: raw,
	}
}

// Clone returns a deep copy so conversation history never aliases live queries.
func (q StructuredQuery) Clone() StructuredQuery {
	out := q
	out.Entities = EntitySet{}
	for kind, vals := range q.Entities {
		cp := make([]EntityValue, len(vals))
		copy(cp, vals)
		out.Entities[kind] = cp
	}
	out.Filters = make([]Filter, len(q.Filters))
	copy(out.Filters, q.Filters)
	out.Aggregations = make([]Aggregation, len(q.Aggregations))
	copy(out.Aggregations, q.Aggregations)
	return out
}
