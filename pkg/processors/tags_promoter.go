package processors

import (
	"context"

	"github.com/getsentry/snuba/pkg/clickhouse"
	"github.com/getsentry/snuba/pkg/query"
	"github.com/getsentry/snuba/pkg/query/matchers"
)

// NestedColumnPromoter rewrites array lookups on a nested mapping column
// into reads of the promoted first-class column, when one exists for the
// key. Promoted columns that are not already strings get wrapped in
// toString so the result type matches the generic lookup.
type NestedColumnPromoter struct {
	// NestedColumn is the mapping column name, e.g. "tags".
	NestedColumn string

	// Promoted maps tag keys to promoted column names.
	Promoted map[string]string

	// StringColumns are the promoted columns that are already String typed
	// and need no toString wrapping.
	StringColumns map[string]struct{}
}

func (p NestedColumnPromoter) Process(_ context.Context, q *clickhouse.Query, _ query.RequestSettings) error {
	pattern := matchers.FunctionCall(
		matchers.String("arrayElement"),
		matchers.Column(nil, matchers.String(p.NestedColumn+".value")),
		matchers.FunctionCall(
			matchers.String("indexOf"),
			matchers.Column(nil, matchers.String(p.NestedColumn+".key")),
			matchers.Param("key", matchers.Literal(nil)),
		),
	)

	q.TransformExpressions(func(e query.Expression) query.Expression {
		result := pattern.Match(e)
		if result == nil {
			return e
		}
		keyExpr, _ := result.Expression("key")
		key, ok := keyExpr.(*query.Literal).Value.(string)
		if !ok {
			return e
		}
		promoted, ok := p.Promoted[key]
		if !ok {
			return e
		}

		col := &query.Column{ColumnName: promoted}
		if _, isString := p.StringColumns[promoted]; isString {
			col.Alias = e.GetAlias()
			return col
		}
		return &query.FunctionCall{
			Alias:      e.GetAlias(),
			Name:       "toString",
			Parameters: []query.Expression{col},
		}
	})
	return nil
}
