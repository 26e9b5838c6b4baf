package query

import (
	"fmt"
	"strings"
	"sync"

	"github.com/asaidimu/go-repodb/core/schema"
	"go.uber.org/zap"
)

// PredicateFunction performs custom filtering logic on a document. It
// returns true if the document passes the filter.
type PredicateFunction func(doc schema.Document, field string, args FilterValue) (bool, error)

// DataProcessor evaluates field conditions in memory. Operators outside the
// standard set are dispatched to registered predicate functions.
type DataProcessor struct {
	filterFunctions map[ComparisonOperator]PredicateFunction
	mu              sync.RWMutex
	logger          *zap.Logger
}

// NewDataProcessor creates a new DataProcessor instance.
func NewDataProcessor(logger *zap.Logger) *DataProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DataProcessor{
		filterFunctions: make(map[ComparisonOperator]PredicateFunction),
		logger:          logger,
	}
}

// RegisterFilterFunction registers a predicate for a custom operator.
func (p *DataProcessor) RegisterFilterFunction(operator ComparisonOperator, fn PredicateFunction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filterFunctions[operator] = fn
	p.logger.Info("Registered filter function", zap.String("operator", string(operator)))
}

// RegisterFilterFunctions registers multiple predicates from a map.
func (p *DataProcessor) RegisterFilterFunctions(functionMap map[ComparisonOperator]PredicateFunction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for operator, fn := range functionMap {
		p.filterFunctions[operator] = fn
		p.logger.Info("Registered filter function", zap.String("operator", string(operator)))
	}
}

// Evaluate reports whether doc satisfies condition.
func (p *DataProcessor) Evaluate(doc schema.Document, condition *FilterCondition) (bool, error) {
	if condition == nil {
		return true, nil
	}
	if !condition.Operator.IsStandard() {
		p.mu.RLock()
		fn, ok := p.filterFunctions[condition.Operator]
		p.mu.RUnlock()
		if !ok {
			return false, fmt.Errorf("unregistered filter function for operator: %s", condition.Operator)
		}
		return fn(doc, condition.Field, condition.Value)
	}
	return p.evaluateStandardCondition(doc, condition)
}

// evaluateStandardCondition performs the in-memory evaluation for the
// built-in comparison operators.
func (p *DataProcessor) evaluateStandardCondition(doc schema.Document, condition *FilterCondition) (bool, error) {
	fieldValue, present := doc[condition.Field]

	switch condition.Operator {
	case ComparisonOperatorExists:
		return present, nil
	case ComparisonOperatorNotExists:
		return !present, nil
	}

	if !present {
		// Missing fields only satisfy the negative operators.
		return condition.Operator == ComparisonOperatorNeq || condition.Operator == ComparisonOperatorNin, nil
	}

	switch condition.Operator {
	case ComparisonOperatorEq:
		return equalValues(fieldValue, condition.Value), nil
	case ComparisonOperatorNeq:
		return !equalValues(fieldValue, condition.Value), nil
	case ComparisonOperatorGt, ComparisonOperatorGte, ComparisonOperatorLt, ComparisonOperatorLte:
		if fieldValue == nil || condition.Value == nil {
			return false, nil
		}
		cmp, err := compareValues(fieldValue, condition.Value)
		if err != nil {
			return false, fmt.Errorf("unsupported %s comparison on field %q: %w", condition.Operator, condition.Field, err)
		}
		switch condition.Operator {
		case ComparisonOperatorGt:
			return cmp > 0, nil
		case ComparisonOperatorGte:
			return cmp >= 0, nil
		case ComparisonOperatorLt:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	case ComparisonOperatorIn, ComparisonOperatorNin:
		candidates, ok := toSlice(condition.Value)
		if !ok {
			return false, fmt.Errorf("operator %s on field %q requires a list, got %T", condition.Operator, condition.Field, condition.Value)
		}
		found := false
		for _, c := range candidates {
			if equalValues(fieldValue, c) {
				found = true
				break
			}
		}
		return found == (condition.Operator == ComparisonOperatorIn), nil
	case ComparisonOperatorContains:
		if s, ok := fieldValue.(string); ok {
			needle, ok := condition.Value.(string)
			if !ok {
				return false, fmt.Errorf("contains on string field %q requires a string, got %T", condition.Field, condition.Value)
			}
			return strings.Contains(s, needle), nil
		}
		if items, ok := toSlice(fieldValue); ok {
			for _, item := range items {
				if equalValues(item, condition.Value) {
					return true, nil
				}
			}
			return false, nil
		}
		return false, nil
	default:
		return false, fmt.Errorf("unsupported comparison operator: %s", condition.Operator)
	}
}

// Match evaluates doc against every condition, returning true only if all of
// them hold.
func (p *DataProcessor) Match(doc schema.Document, conditions ...FilterCondition) (bool, error) {
	for i := range conditions {
		ok, err := p.Evaluate(doc, &conditions[i])
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}
