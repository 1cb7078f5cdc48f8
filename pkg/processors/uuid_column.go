package processors

import (
	"context"

	"github.com/google/uuid"

	"github.com/getsentry/snuba/pkg/clickhouse"
	"github.com/getsentry/snuba/pkg/query"
	"github.com/getsentry/snuba/pkg/query/matchers"
)

// UUIDColumn rewrites comparisons against the dash-stripped string form of
// UUID columns into native UUID comparisons, so ClickHouse can use the
// column's index. The API historically accepted event ids as 32 hex chars
// compared against toString(event_id) with the dashes replaced away; both
// that pattern and its literal get rewritten.
type UUIDColumn struct {
	Columns map[string]struct{}
}

func NewUUIDColumn(columns ...string) UUIDColumn {
	set := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		set[c] = struct{}{}
	}
	return UUIDColumn{Columns: set}
}

func (p UUIDColumn) Process(_ context.Context, q *clickhouse.Query, _ query.RequestSettings) error {
	names := make([]string, 0, len(p.Columns))
	for c := range p.Columns {
		names = append(names, c)
	}
	columnPattern := matchers.Param("col", matchers.Column(nil, matchers.AnyOf(names...)))
	strippedPattern := matchers.FunctionCall(
		matchers.String("replaceAll"),
		matchers.FunctionCall(matchers.String("toString"), columnPattern),
		matchers.Literal(matchers.ScalarValue("-")),
		matchers.Literal(matchers.ScalarValue("")),
	)

	var processErr error
	rewrite := func(e query.Expression) query.Expression {
		fn, ok := e.(*query.FunctionCall)
		if !ok || len(fn.Parameters) != 2 {
			return e
		}
		switch fn.Name {
		case query.FnEquals, query.FnNotEquals, query.FnIn, query.FnNotIn:
		default:
			return e
		}

		// the stripped column may sit on either side of a scalar
		// comparison; IN keeps the column on the left
		colIdx := 0
		result := strippedPattern.Match(fn.Parameters[0])
		if result == nil && (fn.Name == query.FnEquals || fn.Name == query.FnNotEquals) {
			colIdx = 1
			result = strippedPattern.Match(fn.Parameters[1])
		}
		if result == nil {
			return e
		}
		col, _ := result.Column("col")

		other, ok := p.rewriteLiterals(fn.Parameters[1-colIdx])
		if !ok {
			// non-literal sides stay as submitted
			return e
		}
		if other == nil {
			processErr = NewUserError("not a valid UUID in condition on column %s", col.ColumnName)
			return e
		}
		params := make([]query.Expression, 2)
		params[colIdx] = col
		params[1-colIdx] = other
		return &query.FunctionCall{
			Alias:      fn.Alias,
			Name:       fn.Name,
			Parameters: params,
		}
	}

	q.TransformConditions(rewrite)
	return processErr
}

// rewriteLiterals parses the literal side of the condition. The second
// return is false when the expression holds anything but literals, in
// which case the condition is left alone. A nil expression with ok=true
// means a literal was present but not a UUID.
func (p UUIDColumn) rewriteLiterals(e query.Expression) (query.Expression, bool) {
	switch e := e.(type) {
	case *query.Literal:
		s, ok := e.Value.(string)
		if !ok {
			return nil, true
		}
		parsed, err := uuid.Parse(s)
		if err != nil {
			return nil, true
		}
		return &query.Literal{Alias: e.Alias, Value: parsed.String()}, true

	case *query.FunctionCall:
		if e.Name != "tuple" && e.Name != "array" {
			return nil, false
		}
		params := make([]query.Expression, len(e.Parameters))
		for i, param := range e.Parameters {
			rewritten, ok := p.rewriteLiterals(param)
			if !ok || rewritten == nil {
				return rewritten, ok
			}
			params[i] = rewritten
		}
		return &query.FunctionCall{Alias: e.Alias, Name: e.Name, Parameters: params}, true

	default:
		return nil, false
	}
}
