package processors

import (
	"context"
	"strconv"

	"github.com/getsentry/snuba/pkg/clickhouse"
	"github.com/getsentry/snuba/pkg/query"
)

// HexIntColumn handles columns stored as integers but exposed as hex
// strings, like span ids. In conditions the hex literal is parsed into the
// stored integer; everywhere else the column renders back to its hex form
// through lower(hex(col)).
type HexIntColumn struct {
	Columns map[string]struct{}
}

func NewHexIntColumn(columns ...string) HexIntColumn {
	set := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		set[c] = struct{}{}
	}
	return HexIntColumn{Columns: set}
}

func (p HexIntColumn) Process(_ context.Context, q *clickhouse.Query, _ query.RequestSettings) error {
	var processErr error

	q.TransformConditions(func(e query.Expression) query.Expression {
		fn, ok := e.(*query.FunctionCall)
		if !ok || len(fn.Parameters) != 2 {
			return e
		}
		switch fn.Name {
		case query.FnEquals, query.FnNotEquals, query.FnIn, query.FnNotIn:
		default:
			return e
		}
		col, ok := fn.Parameters[0].(*query.Column)
		if !ok {
			return e
		}
		if _, tracked := p.Columns[col.ColumnName]; !tracked {
			return e
		}
		rhs, ok := p.parseLiterals(fn.Parameters[1])
		if !ok {
			return e
		}
		if rhs == nil {
			processErr = NewUserError("not a valid hex id in condition on column %s", col.ColumnName)
			return e
		}
		return &query.FunctionCall{
			Alias:      fn.Alias,
			Name:       fn.Name,
			Parameters: []query.Expression{col, rhs},
		}
	})
	if processErr != nil {
		return processErr
	}

	// outside conditions the stored integer renders back to hex
	transform := func(e query.Expression) query.Expression {
		col, ok := e.(*query.Column)
		if !ok {
			return e
		}
		if _, tracked := p.Columns[col.ColumnName]; !tracked {
			return e
		}
		alias := col.Alias
		if alias == "" {
			alias = col.ColumnName
		}
		return &query.FunctionCall{
			Alias: alias,
			Name:  "lower",
			Parameters: []query.Expression{
				&query.FunctionCall{
					Name:       "hex",
					Parameters: []query.Expression{&query.Column{ColumnName: col.ColumnName}},
				},
			},
		}
	}
	for i := range q.Selected {
		q.Selected[i].Expression = q.Selected[i].Expression.Transform(transform)
	}
	for i := range q.GroupBy {
		q.GroupBy[i] = q.GroupBy[i].Transform(transform)
	}
	for i := range q.OrderBy {
		q.OrderBy[i].Expression = q.OrderBy[i].Expression.Transform(transform)
	}
	return nil
}

func (p HexIntColumn) parseLiterals(e query.Expression) (query.Expression, bool) {
	switch e := e.(type) {
	case *query.Literal:
		s, ok := e.Value.(string)
		if !ok {
			return nil, false
		}
		// ids in the top half of the UInt64 range are valid, so the
		// parsed value must stay unsigned
		parsed, err := strconv.ParseUint(s, 16, 64)
		if err != nil {
			return nil, true
		}
		return &query.Literal{Alias: e.Alias, Value: parsed}, true

	case *query.FunctionCall:
		if e.Name != "tuple" && e.Name != "array" {
			return nil, false
		}
		params := make([]query.Expression, len(e.Parameters))
		for i, param := range e.Parameters {
			parsed, ok := p.parseLiterals(param)
			if !ok || parsed == nil {
				return parsed, ok
			}
			params[i] = parsed
		}
		return &query.FunctionCall{Alias: e.Alias, Name: e.Name, Parameters: params}, true

	default:
		return nil, false
	}
}
