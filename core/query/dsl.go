// Package query provides a small deferred pipeline over a collection: filter,
// sort and project stages are registered fluently and run in order against a
// single read of the collection when Exec is called.
package query

// ComparisonOperator defines the set of operators that can be used in a
// field condition.
type ComparisonOperator string

// Supported comparison operators.
const (
	ComparisonOperatorEq        ComparisonOperator = "eq"
	ComparisonOperatorNeq       ComparisonOperator = "neq"
	ComparisonOperatorLt        ComparisonOperator = "lt"
	ComparisonOperatorLte       ComparisonOperator = "lte"
	ComparisonOperatorGt        ComparisonOperator = "gt"
	ComparisonOperatorGte       ComparisonOperator = "gte"
	ComparisonOperatorIn        ComparisonOperator = "in"
	ComparisonOperatorNin       ComparisonOperator = "nin"
	ComparisonOperatorContains  ComparisonOperator = "contains"
	ComparisonOperatorExists    ComparisonOperator = "exists"
	ComparisonOperatorNotExists ComparisonOperator = "nexists"
)

// FilterValue is the operand of a condition.
type FilterValue any

// FilterCondition is a single condition against one field.
type FilterCondition struct {
	Field    string
	Operator ComparisonOperator
	Value    FilterValue
}

// SortDirection specifies the direction for sorting.
type SortDirection string

// Supported sort directions.
const (
	SortDirectionAsc  SortDirection = "asc"
	SortDirectionDesc SortDirection = "desc"
)

// SortConfiguration defines the sorting order for one field.
type SortConfiguration struct {
	Field     string
	Direction SortDirection
}

var standardComparisonOperators = map[ComparisonOperator]struct{}{
	ComparisonOperatorEq:        {},
	ComparisonOperatorNeq:       {},
	ComparisonOperatorLt:        {},
	ComparisonOperatorLte:       {},
	ComparisonOperatorGt:        {},
	ComparisonOperatorGte:       {},
	ComparisonOperatorIn:        {},
	ComparisonOperatorNin:       {},
	ComparisonOperatorContains:  {},
	ComparisonOperatorExists:    {},
	ComparisonOperatorNotExists: {},
}

// IsStandard checks if a comparison operator is one of the built-in operators.
func (c ComparisonOperator) IsStandard() bool {
	_, ok := standardComparisonOperators[c]
	return ok
}
