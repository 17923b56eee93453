package rda

import (
	"fmt"
	"strings"
)

// =====================================
// Query Building
// =====================================

// QueryOption interface for building store queries
type QueryOption interface {
	Apply(query *Query)
}

// Query is the value object handed to store adapters. It captures the
// collection plus every predicate, ordering, and window the repository
// composed; adapters translate it to their backend's fluent API.
type Query struct {
	Collection string
	Conditions []Condition
	Orders     []Order
	Limit      *int
	Offset     *int
	Fields     []string
}

// Condition represents a query condition
type Condition interface {
	Field() string
	Operator() Operator
	Value() interface{}
	String() string
}

// BasicCondition implements Condition
type BasicCondition struct {
	FieldName string
	Op        Operator
	Val       interface{}
}

func (c BasicCondition) Field() string      { return c.FieldName }
func (c BasicCondition) Operator() Operator { return c.Op }
func (c BasicCondition) Value() interface{} { return c.Val }
func (c BasicCondition) String() string {
	switch c.Op {
	case OpIsNull, OpIsNotNull:
		return c.FieldName + " " + string(c.Op)
	}
	return c.FieldName + " " + string(c.Op) + " ?"
}

// =====================================
// Query Option Implementations
// =====================================

// ConditionOption implements QueryOption for basic conditions
type ConditionOption struct {
	Condition Condition
}

func (o ConditionOption) Apply(query *Query) {
	query.Conditions = append(query.Conditions, o.Condition)
}

// OrderOption implements QueryOption for ordering
type OrderOption struct {
	Order Order
}

func (o OrderOption) Apply(query *Query) {
	query.Orders = append(query.Orders, o.Order)
}

// LimitOption implements QueryOption for limiting results
type LimitOption struct {
	Count int
}

func (o LimitOption) Apply(query *Query) {
	query.Limit = &o.Count
}

// OffsetOption implements QueryOption for result offset
type OffsetOption struct {
	Count int
}

func (o OffsetOption) Apply(query *Query) {
	query.Offset = &o.Count
}

// FieldsOption implements QueryOption for field selection
type FieldsOption struct {
	Fields []string
}

func (o FieldsOption) Apply(query *Query) {
	query.Fields = append(query.Fields, o.Fields...)
}

// =====================================
// Query Builder Functions
// =====================================

// Where creates a basic WHERE condition
func Where(field string, operator Operator, value interface{}) QueryOption {
	return ConditionOption{
		Condition: BasicCondition{
			FieldName: field,
			Op:        operator,
			Val:       value,
		},
	}
}

// WhereCondition creates a condition without wrapping it in an option
func WhereCondition(field string, operator Operator, value interface{}) Condition {
	return BasicCondition{
		FieldName: field,
		Op:        operator,
		Val:       value,
	}
}

// WhereIn creates a WHERE IN condition
func WhereIn(field string, values []interface{}) QueryOption {
	return ConditionOption{
		Condition: BasicCondition{
			FieldName: field,
			Op:        OpIn,
			Val:       values,
		},
	}
}

// WhereLike creates a WHERE LIKE condition
func WhereLike(field string, value string) QueryOption {
	return ConditionOption{
		Condition: BasicCondition{
			FieldName: field,
			Op:        OpLike,
			Val:       value,
		},
	}
}

// WhereNull creates a WHERE IS NULL condition
func WhereNull(field string) QueryOption {
	return ConditionOption{
		Condition: BasicCondition{
			FieldName: field,
			Op:        OpIsNull,
			Val:       nil,
		},
	}
}

// WhereNotNull creates a WHERE IS NOT NULL condition
func WhereNotNull(field string) QueryOption {
	return ConditionOption{
		Condition: BasicCondition{
			FieldName: field,
			Op:        OpIsNotNull,
			Val:       nil,
		},
	}
}

// OrderBy creates an ordering option
func OrderBy(field string, direction OrderDirection) QueryOption {
	return OrderOption{
		Order: Order{
			Field:     field,
			Direction: direction,
		},
	}
}

// Limit creates a limit option
func Limit(count int) QueryOption {
	return LimitOption{Count: count}
}

// Offset creates an offset option
func Offset(count int) QueryOption {
	return OffsetOption{Count: count}
}

// Fields creates a field selection option
func Fields(fields ...string) QueryOption {
	return FieldsOption{Fields: fields}
}

// NewQuery creates a new empty query against a collection
func NewQuery(collection string, opts ...QueryOption) *Query {
	q := &Query{
		Collection: collection,
		Conditions: make([]Condition, 0),
		Orders:     make([]Order, 0),
		Fields:     make([]string, 0),
	}
	for _, opt := range opts {
		opt.Apply(q)
	}
	return q
}

// String renders the query for log lines. Adapters generate the real
// backend statement.
func (q *Query) String() string {
	if q == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(q.Collection)
	if len(q.Conditions) > 0 {
		parts := make([]string, 0, len(q.Conditions))
		for _, c := range q.Conditions {
			parts = append(parts, c.String())
		}
		b.WriteString(" WHERE " + strings.Join(parts, " AND "))
	}
	for i, o := range q.Orders {
		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(fmt.Sprintf("%s %s", o.Field, o.Direction))
	}
	if q.Limit != nil {
		b.WriteString(fmt.Sprintf(" LIMIT %d", *q.Limit))
	}
	if q.Offset != nil {
		b.WriteString(fmt.Sprintf(" OFFSET %d", *q.Offset))
	}
	return b.String()
}
