// Copyright 2025 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package firestore

import (
	"context"
	"fmt"
	"math"
	"net/http"

	"github.com/firebase/firebase-admin-go/internal"
)

// Direction is the sort direction for result ordering.
type Direction string

const (
	// Asc sorts results from smallest to largest.
	Asc Direction = "ASCENDING"

	// Desc sorts results from largest to smallest.
	Desc Direction = "DESCENDING"
)

// StructuredQuery is the wire representation of a Firestore query.
type StructuredQuery struct {
	Select  *Projection          `json:"select,omitempty"`
	From    []*CollectionSelector `json:"from,omitempty"`
	Where   *Filter              `json:"where,omitempty"`
	OrderBy []*Order             `json:"orderBy,omitempty"`
	StartAt *Cursor              `json:"startAt,omitempty"`
	EndAt   *Cursor              `json:"endAt,omitempty"`
	Offset  int                  `json:"offset,omitempty"`
	Limit   *int                 `json:"limit,omitempty"`
}

// CollectionSelector names the collection a query runs against.
type CollectionSelector struct {
	CollectionID   string `json:"collectionId,omitempty"`
	AllDescendants bool   `json:"allDescendants,omitempty"`
}

// Projection selects a subset of document fields to return.
type Projection struct {
	Fields []*FieldReference `json:"fields,omitempty"`
}

// FieldReference names a document field by path.
type FieldReference struct {
	FieldPath string `json:"fieldPath"`
}

// Order is a single sort key.
type Order struct {
	Field     *FieldReference `json:"field"`
	Direction Direction       `json:"direction,omitempty"`
}

// Cursor positions a query relative to a set of field values.
type Cursor struct {
	Values []*Value `json:"values,omitempty"`
	Before bool     `json:"before,omitempty"`
}

// Filter is the recursive query filter tree. Exactly one field is set.
type Filter struct {
	CompositeFilter *CompositeFilter `json:"compositeFilter,omitempty"`
	FieldFilter     *FieldFilter     `json:"fieldFilter,omitempty"`
	UnaryFilter     *UnaryFilter     `json:"unaryFilter,omitempty"`
}

// CompositeFilter combines multiple filters with a single operator.
type CompositeFilter struct {
	Op      string    `json:"op"` // "AND" or "OR"
	Filters []*Filter `json:"filters"`
}

// FieldFilter compares a document field against a value.
type FieldFilter struct {
	Field *FieldReference `json:"field"`
	Op    string          `json:"op"`
	Value *Value          `json:"value"`
}

// UnaryFilter tests a document field for NaN or null.
type UnaryFilter struct {
	Op    string          `json:"op"`
	Field *FieldReference `json:"field"`
}

var comparisonOperators = map[string]string{
	"<":                  "LESS_THAN",
	"<=":                 "LESS_THAN_OR_EQUAL",
	">":                  "GREATER_THAN",
	">=":                 "GREATER_THAN_OR_EQUAL",
	"==":                 "EQUAL",
	"!=":                 "NOT_EQUAL",
	"array-contains":     "ARRAY_CONTAINS",
	"array-contains-any": "ARRAY_CONTAINS_ANY",
	"in":                 "IN",
	"not-in":             "NOT_IN",
}

// Query represents a Firestore query over a collection.
//
// Query values are immutable. Each of the modifier methods returns a new Query that
// includes the modification; the receiver is never changed. Errors encountered while
// building a query are deferred and returned by Get or Listen.
type Query struct {
	c      *Client
	parent string // resource path of the parent document, or the root documents path
	sq     StructuredQuery
	err    error
}

func (r *CollectionRef) query() Query {
	return Query{
		c:      r.c,
		parent: r.parentPath,
		sq: StructuredQuery{
			From: []*CollectionSelector{{CollectionID: r.ID}},
		},
	}
}

// Where returns a new Query that filters the results on the given field.
//
// The op argument must be one of "==", "!=", "<", "<=", ">", ">=", "array-contains",
// "array-contains-any", "in" or "not-in". A nil value with "==" or "!=" produces the
// null-check unary filter; a NaN value produces the NaN-check unary filter.
//
// Successive Where calls always merge into a single AND composite at the root of the
// filter tree, preserving call order. An OR query must be built explicitly with
// WhereOr.
func (q Query) Where(path, op string, value interface{}) Query {
	f, err := newComparisonFilter(path, op, value)
	if err != nil {
		q.err = err
		return q
	}
	return q.appendFilter(f)
}

// WhereOr returns a new Query whose root filter is the OR of the given filters. Any
// existing filter is merged with the OR composite under the root AND per the usual
// flattening rule.
func (q Query) WhereOr(filters ...*Filter) Query {
	or := &Filter{CompositeFilter: &CompositeFilter{Op: "OR", Filters: filters}}
	return q.appendFilter(or)
}

// PropertyFilter builds a leaf filter for use with WhereOr.
func PropertyFilter(path, op string, value interface{}) (*Filter, error) {
	return newComparisonFilter(path, op, value)
}

func newComparisonFilter(path, op string, value interface{}) (*Filter, error) {
	wireOp, ok := comparisonOperators[op]
	if !ok {
		return nil, fmt.Errorf("firestore: invalid operator %q", op)
	}

	if unary := unaryOperatorFor(wireOp, value); unary != "" {
		return &Filter{UnaryFilter: &UnaryFilter{
			Op:    unary,
			Field: &FieldReference{FieldPath: path},
		}}, nil
	}

	v, err := encodeValue(value)
	if err != nil {
		return nil, err
	}
	return &Filter{FieldFilter: &FieldFilter{
		Field: &FieldReference{FieldPath: path},
		Op:    wireOp,
		Value: v,
	}}, nil
}

func unaryOperatorFor(wireOp string, value interface{}) string {
	isNaN := false
	if f, ok := value.(float64); ok {
		isNaN = math.IsNaN(f)
	}
	switch {
	case value == nil && wireOp == "EQUAL":
		return "IS_NULL"
	case value == nil && wireOp == "NOT_EQUAL":
		return "IS_NOT_NULL"
	case isNaN && wireOp == "EQUAL":
		return "IS_NAN"
	case isNaN && wireOp == "NOT_EQUAL":
		return "IS_NOT_NAN"
	}
	return ""
}

// appendFilter merges f into the query's filter tree. The result is always a depth-one
// AND composite (or a single filter), with filters in call order.
func (q Query) appendFilter(f *Filter) Query {
	existing := q.sq.Where
	switch {
	case existing == nil:
		q.sq.Where = f
	case existing.CompositeFilter != nil && existing.CompositeFilter.Op == "AND":
		filters := make([]*Filter, 0, len(existing.CompositeFilter.Filters)+1)
		filters = append(filters, existing.CompositeFilter.Filters...)
		filters = append(filters, f)
		q.sq.Where = &Filter{CompositeFilter: &CompositeFilter{Op: "AND", Filters: filters}}
	default:
		q.sq.Where = &Filter{CompositeFilter: &CompositeFilter{
			Op:      "AND",
			Filters: []*Filter{existing, f},
		}}
	}
	return q
}

// OrderBy returns a new Query that sorts the results by the given field. Multiple
// calls produce a multi-key sort in call order.
func (q Query) OrderBy(path string, dir Direction) Query {
	orders := make([]*Order, 0, len(q.sq.OrderBy)+1)
	orders = append(orders, q.sq.OrderBy...)
	orders = append(orders, &Order{
		Field:     &FieldReference{FieldPath: path},
		Direction: dir,
	})
	q.sq.OrderBy = orders
	return q
}

// Limit returns a new Query that returns at most n results.
func (q Query) Limit(n int) Query {
	q.sq.Limit = &n
	return q
}

// Offset returns a new Query that skips the first n results.
func (q Query) Offset(n int) Query {
	q.sq.Offset = n
	return q
}

// Select returns a new Query that returns only the given field paths.
func (q Query) Select(paths ...string) Query {
	fields := make([]*FieldReference, len(paths))
	for i, p := range paths {
		fields[i] = &FieldReference{FieldPath: p}
	}
	q.sq.Select = &Projection{Fields: fields}
	return q
}

// StartAt returns a new Query that starts at the document with the given field
// values, inclusive. The values correspond, in order, to the OrderBy fields of the
// query.
func (q Query) StartAt(values ...interface{}) Query {
	return q.cursor(values, true, true)
}

// StartAfter returns a new Query that starts after the document with the given field
// values.
func (q Query) StartAfter(values ...interface{}) Query {
	return q.cursor(values, true, false)
}

// EndAt returns a new Query that ends at the document with the given field values,
// inclusive.
func (q Query) EndAt(values ...interface{}) Query {
	return q.cursor(values, false, false)
}

// EndBefore returns a new Query that ends before the document with the given field
// values.
func (q Query) EndBefore(values ...interface{}) Query {
	return q.cursor(values, false, true)
}

func (q Query) cursor(values []interface{}, start, before bool) Query {
	encoded := make([]*Value, len(values))
	for i, v := range values {
		ev, err := encodeValue(v)
		if err != nil {
			q.err = err
			return q
		}
		encoded[i] = ev
	}
	c := &Cursor{Values: encoded, Before: before}
	if start {
		q.sq.StartAt = c
	} else {
		q.sq.EndAt = c
	}
	return q
}

type runQueryRequest struct {
	StructuredQuery *StructuredQuery `json:"structuredQuery"`
}

type runQueryResponse struct {
	Transaction    string    `json:"transaction,omitempty"`
	Document       *Document `json:"document,omitempty"`
	ReadTime       string    `json:"readTime,omitempty"`
	SkippedResults int       `json:"skippedResults,omitempty"`
}

// Get executes the query and returns the matching documents in the order the server
// emitted them. Response envelopes that carry neither a document nor a read time are
// progress indicators and are discarded.
func (q Query) Get(ctx context.Context) (*QuerySnapshot, error) {
	if q.err != nil {
		return nil, q.err
	}

	var envelopes []runQueryResponse
	_, err := q.c.hc.DoAndUnmarshal(ctx, &internal.Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/%s:runQuery", q.c.endpoint, q.parent),
		Body:   internal.NewJSONEntity(&runQueryRequest{StructuredQuery: &q.sq}),
	}, &envelopes)
	if err != nil {
		return nil, err
	}

	snap := &QuerySnapshot{}
	for _, env := range envelopes {
		if env.ReadTime != "" {
			snap.ReadTime = env.ReadTime
		}
		if env.Document != nil {
			snap.Documents = append(snap.Documents, q.c.snapshotForDocument(env.Document, env.ReadTime))
		}
	}
	return snap, nil
}

// Where returns a query over the collection filtered on the given field.
func (r *CollectionRef) Where(path, op string, value interface{}) Query {
	return r.query().Where(path, op, value)
}

// OrderBy returns a query over the collection sorted by the given field.
func (r *CollectionRef) OrderBy(path string, dir Direction) Query {
	return r.query().OrderBy(path, dir)
}

// Limit returns a query over the collection that returns at most n results.
func (r *CollectionRef) Limit(n int) Query {
	return r.query().Limit(n)
}

// Offset returns a query over the collection that skips the first n results.
func (r *CollectionRef) Offset(n int) Query {
	return r.query().Offset(n)
}

// Select returns a query over the collection that returns only the given field paths.
func (r *CollectionRef) Select(paths ...string) Query {
	return r.query().Select(paths...)
}
