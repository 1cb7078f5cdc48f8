package processors

import (
	"context"

	"github.com/getsentry/snuba/pkg/query"
)

// TimeSeries buckets references to the synthetic time column by the query's
// granularity. Common granularities use the dedicated rounding functions,
// anything else rounds through intDiv on the unix timestamp.
type TimeSeries struct {
	// TimeColumn is the entity's physical time column.
	TimeColumn string
}

const DefaultGranularity = 3600

func (p TimeSeries) Process(_ context.Context, q *query.Query, _ query.RequestSettings) error {
	granularity := DefaultGranularity
	if q.Granularity != nil {
		granularity = *q.Granularity
	}
	if granularity <= 0 {
		return NewUserError("granularity must be positive, got %d", granularity)
	}

	q.TransformExpressions(func(e query.Expression) query.Expression {
		col, ok := e.(*query.Column)
		if !ok || col.ColumnName != "time" {
			return e
		}
		return p.bucket(granularity, col.Alias)
	})
	return nil
}

func (p TimeSeries) bucket(granularity int, alias string) query.Expression {
	if alias == "" {
		alias = "time"
	}
	timeCol := &query.Column{ColumnName: p.TimeColumn}

	switch granularity {
	case 60:
		return &query.FunctionCall{Alias: alias, Name: "toStartOfMinute", Parameters: []query.Expression{timeCol}}
	case 3600:
		return &query.FunctionCall{Alias: alias, Name: "toStartOfHour", Parameters: []query.Expression{timeCol}}
	case 86400:
		return &query.FunctionCall{Alias: alias, Name: "toStartOfDay", Parameters: []query.Expression{timeCol}}
	}

	g := &query.Literal{Value: int64(granularity)}
	return &query.FunctionCall{
		Alias: alias,
		Name:  "toDateTime",
		Parameters: []query.Expression{
			&query.FunctionCall{
				Name: "multiply",
				Parameters: []query.Expression{
					&query.FunctionCall{
						Name: "intDiv",
						Parameters: []query.Expression{
							&query.FunctionCall{Name: "toUInt32", Parameters: []query.Expression{timeCol}},
							g,
						},
					},
					g,
				},
			},
		},
	}
}
