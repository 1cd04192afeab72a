package models

import "strings"

// ============================================================================
// Query Shapes
// ============================================================================

// QueryType is the shape of SQL a natural-language query compiles to.
type QueryType string

const (
	QueryTypeComparison  QueryType = "comparison"
	QueryTypeFilter      QueryType = "filter"
	QueryTypeAggregation QueryType = "aggregation"
	QueryTypeData        QueryType = "data"
)

// ValidQueryTypes contains all valid query type values.
var ValidQueryTypes = []QueryType{
	QueryTypeComparison,
	QueryTypeFilter,
	QueryTypeAggregation,
	QueryTypeData,
}

// IsValid reports whether t is a known query type.
func (t QueryType) IsValid() bool {
	for _, v := range ValidQueryTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Operation qualifies a comparison query.
type Operation string

const (
	OperationNone  Operation = ""
	OperationIn    Operation = "IN"
	OperationNotIn Operation = "NOT_IN"
)

// ============================================================================
// Filters
// ============================================================================

// FilterOperator is a predicate operator supported in WHERE clauses.
type FilterOperator string

const (
	FilterOpEq        FilterOperator = "eq"
	FilterOpNe        FilterOperator = "ne"
	FilterOpContains  FilterOperator = "contains"
	FilterOpGt        FilterOperator = "gt"
	FilterOpGte       FilterOperator = "gte"
	FilterOpLt        FilterOperator = "lt"
	FilterOpLte       FilterOperator = "lte"
	FilterOpIsNull    FilterOperator = "is_null"
	FilterOpIsNotNull FilterOperator = "is_not_null"
)

// ValidFilterOperators contains all valid filter operators.
var ValidFilterOperators = []FilterOperator{
	FilterOpEq, FilterOpNe, FilterOpContains,
	FilterOpGt, FilterOpGte, FilterOpLt, FilterOpLte,
	FilterOpIsNull, FilterOpIsNotNull,
}

// IsValid reports whether op is a known filter operator.
func (op FilterOperator) IsValid() bool {
	for _, v := range ValidFilterOperators {
		if v == op {
			return true
		}
	}
	return false
}

// TakesValue reports whether the operator compares against a literal.
func (op FilterOperator) TakesValue() bool {
	return op != FilterOpIsNull && op != FilterOpIsNotNull
}

// Filter is one AND-ed WHERE predicate. Table is the resolved table whose
// column the predicate tests; it is either the intent's source or target table.
type Filter struct {
	Table    string         `json:"table"`
	Column   string         `json:"column"`
	Operator FilterOperator `json:"operator"`
	Value    any            `json:"value,omitempty"`
}

// ============================================================================
// Intent
// ============================================================================

// ColumnPair is one equality between a column on the left side of a join and
// a column on the right side.
type ColumnPair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// AdditionalColumn is a column pulled into the result from a related table.
type AdditionalColumn struct {
	ColumnName  string   `json:"column_name"`
	SourceTable string   `json:"source_table"`
	Alias       string   `json:"alias"`
	Confidence  float64  `json:"confidence"`
	JoinPath    []string `json:"join_path,omitempty"`

	// Path carries the join columns for each hop of JoinPath. Nil when the
	// column lives on the intent's source table.
	Path *JoinPath `json:"path,omitempty"`
}

// QueryIntent is the parsed semantic form of one natural-language query.
type QueryIntent struct {
	Definition  string    `json:"definition"`
	QueryType   QueryType `json:"query_type"`
	SourceTable string    `json:"source_table"`
	TargetTable string    `json:"target_table,omitempty"`
	Operation   Operation `json:"operation,omitempty"`

	// JoinColumns links the target table to the table immediately before it on
	// the primary path (the source table for a single hop).
	JoinColumns []ColumnPair `json:"join_columns"`

	// JoinPath is the resolved primary path. When it spans more than one hop
	// the intermediate tables are joined before the target.
	JoinPath *JoinPath `json:"join_path,omitempty"`

	Filters           []Filter           `json:"filters"`
	GroupBy           string             `json:"group_by,omitempty"`
	AdditionalColumns []AdditionalColumn `json:"additional_columns"`
	Confidence        float64            `json:"confidence"`
}

// HasTarget reports whether the intent joins a second table on its primary path.
func (q *QueryIntent) HasTarget() bool {
	return q.TargetTable != ""
}

// FiltersFor returns the filters that apply to table, preserving order.
func (q *QueryIntent) FiltersFor(table string) []Filter {
	var out []Filter
	for _, f := range q.Filters {
		if strings.EqualFold(f.Table, table) {
			out = append(out, f)
		}
	}
	return out
}
