// Package clickhouse holds the physical query model and its SQL rendering.
// A Query here is the output of translation: the same expression AST as the
// logical layer, re-targeted at a concrete table with an optional PREWHERE.
package clickhouse

import (
	"github.com/getsentry/snuba/pkg/query"
)

// Query is a query against a ClickHouse table.
type Query struct {
	query.Query

	Table    string
	Prewhere query.Expression
}

// FromLogical lifts a translated logical query onto a table.
func FromLogical(q *query.Query, table string) *Query {
	return &Query{Query: *q, Table: table}
}

// TransformExpressions applies fn to every expression slot, the PREWHERE
// included.
func (q *Query) TransformExpressions(fn func(query.Expression) query.Expression) {
	q.Query.TransformExpressions(fn)
	if q.Prewhere != nil {
		q.Prewhere = q.Prewhere.Transform(fn)
	}
}

// TransformConditions applies fn to the condition trees only: WHERE,
// PREWHERE and HAVING. Processors rewriting comparisons use this so select
// and group-by expressions stay untouched.
func (q *Query) TransformConditions(fn func(query.Expression) query.Expression) {
	if q.Condition != nil {
		q.Condition = q.Condition.Transform(fn)
	}
	if q.Prewhere != nil {
		q.Prewhere = q.Prewhere.Transform(fn)
	}
	if q.Having != nil {
		q.Having = q.Having.Transform(fn)
	}
}

// IterateExpressions walks every expression slot, the PREWHERE included.
func (q *Query) IterateExpressions(fn func(query.Expression)) {
	q.Query.IterateExpressions(fn)
	if q.Prewhere != nil {
		q.Prewhere.Iterate(fn)
	}
}
