package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/asaidimu/go-repodb/core/schema"
)

// Source supplies the records a query runs over.
type Source interface {
	Get(ctx context.Context, name string, force bool) ([]schema.Document, error)
}

// stage is one step of the deferred pipeline.
type stage struct {
	kind string
	run  func([]schema.Document) ([]schema.Document, error)
}

// QueryBuilder composes filter, sort and projection stages over one
// collection. Nothing is read until Exec.
type QueryBuilder struct {
	source     Source
	collection string
	processor  *DataProcessor
	force      bool
	stages     []stage
}

// NewQueryBuilder creates an empty pipeline over collection.
func NewQueryBuilder(source Source, collection string) *QueryBuilder {
	return &QueryBuilder{
		source:     source,
		collection: collection,
		processor:  NewDataProcessor(nil),
	}
}

// WithProcessor sets the processor used for field conditions, typically one
// with custom operators registered.
func (qb *QueryBuilder) WithProcessor(p *DataProcessor) *QueryBuilder {
	if p != nil {
		qb.processor = p
	}
	return qb
}

// Fresh makes Exec bypass the cache and read the collection from the remote
// store.
func (qb *QueryBuilder) Fresh() *QueryBuilder {
	qb.force = true
	return qb
}

// Collection returns the name the builder reads from.
func (qb *QueryBuilder) Collection() string {
	return qb.collection
}

// Clone copies the builder so that further stages do not affect the
// original.
func (qb *QueryBuilder) Clone() *QueryBuilder {
	clone := *qb
	clone.stages = append([]stage(nil), qb.stages...)
	return &clone
}

// Reset removes every registered stage.
func (qb *QueryBuilder) Reset() *QueryBuilder {
	qb.stages = nil
	qb.force = false
	return qb
}

// Where adds a filter stage keeping the records for which fn returns true.
func (qb *QueryBuilder) Where(fn func(schema.Document) bool) *QueryBuilder {
	qb.stages = append(qb.stages, stage{kind: "where", run: func(docs []schema.Document) ([]schema.Document, error) {
		out := make([]schema.Document, 0, len(docs))
		for _, d := range docs {
			if fn(d) {
				out = append(out, d)
			}
		}
		return out, nil
	}})
	return qb
}

// WhereField begins a condition on a single field.
func (qb *QueryBuilder) WhereField(field string) *FilterConditionBuilder {
	return &FilterConditionBuilder{parent: qb, field: field}
}

// Sort adds a single-key sort stage. Records with equal keys keep no
// particular order.
func (qb *QueryBuilder) Sort(field string, direction SortDirection) *QueryBuilder {
	config := SortConfiguration{Field: field, Direction: direction}
	qb.stages = append(qb.stages, stage{kind: "sort", run: func(docs []schema.Document) ([]schema.Document, error) {
		return sortDocuments(docs, config), nil
	}})
	return qb
}

// Project adds a stage that keeps only the named fields of each record.
func (qb *QueryBuilder) Project(fields ...string) *QueryBuilder {
	keep := append([]string(nil), fields...)
	qb.stages = append(qb.stages, stage{kind: "project", run: func(docs []schema.Document) ([]schema.Document, error) {
		out := make([]schema.Document, len(docs))
		for i, d := range docs {
			projected := make(schema.Document, len(keep))
			for _, f := range keep {
				if v, ok := d[f]; ok {
					projected[f] = v
				}
			}
			out[i] = projected
		}
		return out, nil
	}})
	return qb
}

// Exec reads the collection once and runs the stages in registration order.
func (qb *QueryBuilder) Exec(ctx context.Context) ([]schema.Document, error) {
	if qb.source == nil {
		return nil, fmt.Errorf("query on %s has no source", qb.collection)
	}
	docs, err := qb.source.Get(ctx, qb.collection, qb.force)
	if err != nil {
		return nil, fmt.Errorf("query on %s failed: %w", qb.collection, err)
	}
	for i, s := range qb.stages {
		docs, err = s.run(docs)
		if err != nil {
			return nil, fmt.Errorf("query on %s failed at %s stage %d: %w", qb.collection, s.kind, i, err)
		}
	}
	return docs, nil
}

// FilterConditionBuilder builds a single condition on a field.
type FilterConditionBuilder struct {
	parent *QueryBuilder
	field  string
}

// Eq adds an equality condition.
func (fcb *FilterConditionBuilder) Eq(value FilterValue) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorEq, value)
}

// Neq adds a not-equal condition.
func (fcb *FilterConditionBuilder) Neq(value FilterValue) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorNeq, value)
}

// Lt adds a less-than condition.
func (fcb *FilterConditionBuilder) Lt(value FilterValue) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorLt, value)
}

// Lte adds a less-than-or-equal condition.
func (fcb *FilterConditionBuilder) Lte(value FilterValue) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorLte, value)
}

// Gt adds a greater-than condition.
func (fcb *FilterConditionBuilder) Gt(value FilterValue) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorGt, value)
}

// Gte adds a greater-than-or-equal condition.
func (fcb *FilterConditionBuilder) Gte(value FilterValue) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorGte, value)
}

// In checks that the field's value is one of values.
func (fcb *FilterConditionBuilder) In(values ...FilterValue) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorIn, values)
}

// Nin checks that the field's value is none of values.
func (fcb *FilterConditionBuilder) Nin(values ...FilterValue) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorNin, values)
}

// Contains matches a substring of a string field or an element of an array
// field.
func (fcb *FilterConditionBuilder) Contains(value FilterValue) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorContains, value)
}

// Exists checks that the field is present.
func (fcb *FilterConditionBuilder) Exists() *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorExists, nil)
}

// NotExists checks that the field is absent.
func (fcb *FilterConditionBuilder) NotExists() *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorNotExists, nil)
}

// Custom applies an operator registered on the builder's processor.
func (fcb *FilterConditionBuilder) Custom(operator ComparisonOperator, value FilterValue) *QueryBuilder {
	return fcb.addCondition(operator, value)
}

func (fcb *FilterConditionBuilder) addCondition(operator ComparisonOperator, value FilterValue) *QueryBuilder {
	qb := fcb.parent
	condition := FilterCondition{Field: fcb.field, Operator: operator, Value: value}
	qb.stages = append(qb.stages, stage{kind: "where", run: func(docs []schema.Document) ([]schema.Document, error) {
		out := make([]schema.Document, 0, len(docs))
		for _, d := range docs {
			ok, err := qb.processor.Evaluate(d, &condition)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, d)
			}
		}
		return out, nil
	}})
	return qb
}

// sortDocuments orders a copy of docs by one field. Records missing the
// field, or whose values cannot be compared, sort after the rest.
func sortDocuments(docs []schema.Document, config SortConfiguration) []schema.Document {
	out := append([]schema.Document(nil), docs...)
	desc := config.Direction == SortDirectionDesc

	sort.Slice(out, func(i, j int) bool {
		a, aok := out[i][config.Field]
		b, bok := out[j][config.Field]
		if !aok || a == nil {
			return false
		}
		if !bok || b == nil {
			return true
		}
		cmp, err := compareValues(a, b)
		if err != nil {
			return false
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
	return out
}
