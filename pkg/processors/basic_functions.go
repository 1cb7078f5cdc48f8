package processors

import (
	"context"

	"github.com/getsentry/snuba/pkg/query"
)

// BasicFunctions expands the convenience aggregates the API accepts into
// real ClickHouse expressions. Currently that is error_rate(), which turns
// into the share of sessions whose status is neither ok (0) nor errored
// pending (2).
type BasicFunctions struct{}

func (BasicFunctions) Process(_ context.Context, q *query.Query, _ query.RequestSettings) error {
	q.TransformExpressions(func(e query.Expression) query.Expression {
		fn, ok := e.(*query.FunctionCall)
		if !ok || fn.Name != "error_rate" || len(fn.Parameters) != 0 {
			return e
		}
		status := func() query.Expression { return &query.Column{ColumnName: "status"} }
		return &query.FunctionCall{
			Alias: fn.Alias,
			Name:  "divide",
			Parameters: []query.Expression{
				&query.FunctionCall{
					Name: "countIf",
					Parameters: []query.Expression{
						query.And(
							query.BinaryCondition(query.FnNotEquals, status(), &query.Literal{Value: int64(0)}),
							query.BinaryCondition(query.FnNotEquals, status(), &query.Literal{Value: int64(2)}),
						),
					},
				},
				&query.FunctionCall{Name: "count"},
			},
		}
	})
	return nil
}
