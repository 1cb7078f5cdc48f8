package request

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/getsentry/snuba/pkg/query"
)

const dateLayout = "2006-01-02T15:04:05"

// Snuba returns the composed schema accepted on the query endpoint.
func Snuba() *RequestSchema {
	querySchema := &Schema{
		Properties: map[string]Property{
			"selected_columns": {Type: TypeArray, Default: []any{}, HasDefault: true},
			"aggregations":     {Type: TypeArray, Default: []any{}, HasDefault: true},
			"conditions":       {Type: TypeArray, Default: []any{}, HasDefault: true},
			"groupby":          {Type: TypeArray, Default: []any{}, HasDefault: true},
			"having":           {Type: TypeArray, Default: []any{}, HasDefault: true},
			"orderby":          {Type: TypeAny},
			"limit":            {Type: TypeInteger},
			"offset":           {Type: TypeInteger},
			"limitby":          {Type: TypeArray},
			"sample":           {Type: TypeNumber},
			"totals":           {Type: TypeBoolean, Default: false, HasDefault: true},
			"turbo":            {Type: TypeBoolean, Default: false, HasDefault: true},
			"consistent":       {Type: TypeBoolean, Default: false, HasDefault: true},
			"debug":            {Type: TypeBoolean, Default: false, HasDefault: true},
		},
	}
	extensions := map[string]*Schema{
		"timeseries": {
			Properties: map[string]Property{
				"from_date":   {Type: TypeString},
				"to_date":     {Type: TypeString},
				"granularity": {Type: TypeInteger, Default: 3600, HasDefault: true},
			},
			Required: []string{"from_date", "to_date"},
		},
		"project": {
			Properties: map[string]Property{
				"project": {Type: TypeAny},
			},
			Required: []string{"project"},
		},
		"organization": {
			Properties: map[string]Property{
				"organization": {Type: TypeInteger},
			},
		},
	}
	rs, err := NewRequestSchema(querySchema, extensions)
	if err != nil {
		panic(err)
	}
	return rs
}

// Build validates body against the snuba schema and assembles the logical
// query for the named entity. timeColumn anchors the timeseries window.
func Build(body map[string]any, entity, timeColumn string) (*query.Query, query.RequestSettings, error) {
	var settings query.RequestSettings

	req, err := Snuba().Validate(body)
	if err != nil {
		return nil, settings, err
	}
	settings = query.RequestSettings{
		Turbo:      req.Query["turbo"].(bool),
		Consistent: req.Query["consistent"].(bool),
		Debug:      req.Query["debug"].(bool),
	}

	q := &query.Query{Entity: entity}

	for _, raw := range req.Query["selected_columns"].([]any) {
		expr, err := parseColumn(raw)
		if err != nil {
			return nil, settings, err
		}
		q.Selected = append(q.Selected, query.SelectedExpression{
			Name:       expr.GetAlias(),
			Expression: expr,
		})
	}
	for _, raw := range req.Query["aggregations"].([]any) {
		sel, err := parseAggregation(raw)
		if err != nil {
			return nil, settings, err
		}
		q.Selected = append(q.Selected, sel)
	}
	for _, raw := range req.Query["groupby"].([]any) {
		expr, err := parseColumn(raw)
		if err != nil {
			return nil, settings, err
		}
		q.GroupBy = append(q.GroupBy, expr)
		q.Selected = append(q.Selected, query.SelectedExpression{
			Name:       expr.GetAlias(),
			Expression: expr,
		})
	}

	conditions, err := parseConditions(req.Query["conditions"].([]any))
	if err != nil {
		return nil, settings, err
	}
	if window, err := timeWindow(req.Extensions["timeseries"], timeColumn); err != nil {
		return nil, settings, err
	} else if window != nil {
		conditions = append(conditions, window...)
	}
	if projects := projectConditions(req.Extensions["project"]); projects != nil {
		conditions = append(conditions, projects)
	}
	if org, ok := asInt(req.Extensions["organization"]["organization"]); ok {
		conditions = append(conditions, query.Equals(&query.Column{ColumnName: "org_id"}, &query.Literal{Value: int64(org)}))
	}
	if len(conditions) > 0 {
		q.Condition = query.And(conditions...)
	}

	if having, err := parseConditions(req.Query["having"].([]any)); err != nil {
		return nil, settings, err
	} else if len(having) > 0 {
		q.Having = query.And(having...)
	}

	if err := parseOrderBy(req.Query["orderby"], q); err != nil {
		return nil, settings, err
	}
	if limit, ok := asInt(req.Query["limit"]); ok {
		q.Limit = &limit
	}
	if offset, ok := asInt(req.Query["offset"]); ok {
		q.Offset = offset
	}
	if raw, ok := req.Query["limitby"].([]any); ok && len(raw) == 2 {
		n, okN := asInt(raw[0])
		col, okC := raw[1].(string)
		if !okN || !okC {
			return nil, settings, fmt.Errorf("limitby expects [count, column], got %v", raw)
		}
		q.LimitBy = &query.LimitBy{Limit: n, Expression: &query.Column{ColumnName: col}}
	}
	if sample, ok := req.Query["sample"]; ok {
		rate := toFloat(sample)
		q.SampleRate = &rate
	}
	q.Totals = req.Query["totals"].(bool)

	if g, ok := asInt(req.Extensions["timeseries"]["granularity"]); ok {
		q.Granularity = &g
	}

	return q, settings, nil
}

// parseColumn accepts a plain column name, the tags[key] subscript form,
// or a nested [function, [args...], alias] list.
func parseColumn(raw any) (query.Expression, error) {
	switch v := raw.(type) {
	case string:
		if open := strings.IndexByte(v, '['); open > 0 && strings.HasSuffix(v, "]") {
			return &query.SubscriptableReference{
				Alias:  v,
				Column: &query.Column{ColumnName: v[:open]},
				Key:    &query.Literal{Value: v[open+1 : len(v)-1]},
			}, nil
		}
		return &query.Column{Alias: v, ColumnName: v}, nil
	case []any:
		if len(v) < 2 || len(v) > 3 {
			return nil, fmt.Errorf("expected [function, args, alias?], got %v", v)
		}
		name, ok := v[0].(string)
		if !ok {
			return nil, fmt.Errorf("function name must be a string, got %T", v[0])
		}
		args, ok := v[1].([]any)
		if !ok {
			return nil, fmt.Errorf("function arguments must be a list, got %T", v[1])
		}
		fn := &query.FunctionCall{Name: strings.TrimSuffix(name, "()")}
		if len(v) == 3 {
			if fn.Alias, ok = v[2].(string); !ok {
				return nil, fmt.Errorf("alias must be a string, got %T", v[2])
			}
		}
		for _, arg := range args {
			expr, err := parseColumn(arg)
			if err != nil {
				return nil, err
			}
			fn.Parameters = append(fn.Parameters, expr)
		}
		return fn, nil
	case float64, int, int64, bool, nil:
		return &query.Literal{Value: raw}, nil
	default:
		return nil, fmt.Errorf("cannot parse expression from %T", raw)
	}
}

// parseAggregation handles the legacy [function, column, alias] triple.
// The function may carry its own parens ("count()") or curry parameters
// ("quantile(0.9)").
func parseAggregation(raw any) (query.SelectedExpression, error) {
	triple, ok := raw.([]any)
	if !ok || len(triple) != 3 {
		return query.SelectedExpression{}, fmt.Errorf("expected [function, column, alias], got %v", raw)
	}
	name, okName := triple[0].(string)
	alias, okAlias := triple[2].(string)
	if !okName || !okAlias {
		return query.SelectedExpression{}, fmt.Errorf("aggregation function and alias must be strings: %v", raw)
	}

	var params []query.Expression
	switch col := triple[1].(type) {
	case nil:
	case string:
		if col != "" {
			expr, err := parseColumn(col)
			if err != nil {
				return query.SelectedExpression{}, err
			}
			params = append(params, expr)
		}
	case []any:
		for _, c := range col {
			expr, err := parseColumn(c)
			if err != nil {
				return query.SelectedExpression{}, err
			}
			params = append(params, expr)
		}
	default:
		return query.SelectedExpression{}, fmt.Errorf("aggregation column must be a string or list, got %T", col)
	}

	var expr query.Expression
	if open := strings.IndexByte(name, '('); open > 0 && strings.HasSuffix(name, ")") {
		inner := name[open+1 : len(name)-1]
		if inner == "" {
			expr = &query.FunctionCall{Alias: alias, Name: name[:open], Parameters: params}
		} else {
			curried := &query.FunctionCall{Name: name[:open]}
			for _, part := range strings.Split(inner, ",") {
				curried.Parameters = append(curried.Parameters, scalarLiteral(strings.TrimSpace(part)))
			}
			expr = &query.CurriedFunctionCall{Alias: alias, InnerFunction: curried, Parameters: params}
		}
	} else {
		expr = &query.FunctionCall{Alias: alias, Name: name, Parameters: params}
	}
	return query.SelectedExpression{Name: alias, Expression: expr}, nil
}

func scalarLiteral(s string) *query.Literal {
	var f float64
	if _, err := fmt.Sscanf(s, "%g", &f); err == nil {
		return &query.Literal{Value: f}
	}
	return &query.Literal{Value: strings.Trim(s, "'")}
}

var conditionOperators = map[string]string{
	"=":           query.FnEquals,
	"!=":          query.FnNotEquals,
	">":           query.FnGreater,
	">=":          query.FnGreaterOrEquals,
	"<":           query.FnLess,
	"<=":          query.FnLessOrEquals,
	"IN":          query.FnIn,
	"NOT IN":      query.FnNotIn,
	"LIKE":        query.FnLike,
	"NOT LIKE":    query.FnNotLike,
	"IS NULL":     query.FnIsNull,
	"IS NOT NULL": query.FnIsNotNull,
}

// parseConditions turns the legacy condition list into expressions. Each
// element is either a [lhs, op, rhs] triple or a list of triples meaning
// OR of its members.
func parseConditions(raw []any) ([]query.Expression, error) {
	var out []query.Expression
	for _, elem := range raw {
		list, ok := elem.([]any)
		if !ok {
			return nil, fmt.Errorf("condition must be a list, got %T", elem)
		}
		if len(list) > 0 {
			if _, nested := list[0].([]any); nested {
				members, err := parseConditions(list)
				if err != nil {
					return nil, err
				}
				out = append(out, query.Or(members...))
				continue
			}
			if s, isStr := list[0].(string); isStr && len(list) == 3 {
				cond, err := parseConditionTriple(s, list[1], list[2])
				if err != nil {
					return nil, err
				}
				out = append(out, cond)
				continue
			}
		}
		return nil, fmt.Errorf("cannot parse condition %v", elem)
	}
	return out, nil
}

func parseConditionTriple(lhsRaw string, opRaw, rhsRaw any) (query.Expression, error) {
	op, ok := opRaw.(string)
	if !ok {
		return nil, fmt.Errorf("condition operator must be a string, got %T", opRaw)
	}
	fn, known := conditionOperators[strings.ToUpper(op)]
	if !known {
		return nil, fmt.Errorf("unsupported condition operator %q", op)
	}
	lhs, err := parseColumn(lhsRaw)
	if err != nil {
		return nil, err
	}
	if fn == query.FnIsNull || fn == query.FnIsNotNull {
		return &query.FunctionCall{Name: fn, Parameters: []query.Expression{lhs}}, nil
	}

	var rhs query.Expression
	if values, isList := rhsRaw.([]any); isList {
		tuple := &query.FunctionCall{Name: "tuple"}
		for _, v := range values {
			tuple.Parameters = append(tuple.Parameters, &query.Literal{Value: v})
		}
		rhs = tuple
	} else {
		rhs = &query.Literal{Value: rhsRaw}
	}
	return &query.FunctionCall{Name: fn, Parameters: []query.Expression{lhs, rhs}}, nil
}

func parseOrderBy(raw any, q *query.Query) error {
	if raw == nil {
		return nil
	}
	entries, ok := raw.([]any)
	if !ok {
		entries = []any{raw}
	}
	for _, entry := range entries {
		var (
			expr query.Expression
			dir  = query.OrderAsc
		)
		switch v := entry.(type) {
		case string:
			name := v
			if strings.HasPrefix(name, "-") {
				dir = query.OrderDesc
				name = name[1:]
			}
			parsed, err := parseColumn(name)
			if err != nil {
				return err
			}
			expr = parsed
		case []any:
			parsed, err := parseColumn(v)
			if err != nil {
				return err
			}
			expr = parsed
		default:
			return fmt.Errorf("cannot parse orderby entry %T", entry)
		}
		q.OrderBy = append(q.OrderBy, query.OrderBy{Expression: expr, Direction: dir})
	}
	return nil
}

func timeWindow(ext map[string]any, timeColumn string) ([]query.Expression, error) {
	fromRaw, hasFrom := ext["from_date"].(string)
	toRaw, hasTo := ext["to_date"].(string)
	if !hasFrom || !hasTo {
		return nil, nil
	}
	from, err := time.Parse(dateLayout, fromRaw)
	if err != nil {
		return nil, errors.Wrap(err, "parsing from_date")
	}
	to, err := time.Parse(dateLayout, toRaw)
	if err != nil {
		return nil, errors.Wrap(err, "parsing to_date")
	}
	if !to.After(from) {
		return nil, fmt.Errorf("from_date %s must precede to_date %s", fromRaw, toRaw)
	}
	col := &query.Column{ColumnName: timeColumn}
	return []query.Expression{
		&query.FunctionCall{Name: query.FnGreaterOrEquals, Parameters: []query.Expression{col, &query.Literal{Value: from}}},
		&query.FunctionCall{Name: query.FnLess, Parameters: []query.Expression{&query.Column{ColumnName: timeColumn}, &query.Literal{Value: to}}},
	}, nil
}

func projectConditions(ext map[string]any) query.Expression {
	col := &query.Column{ColumnName: "project_id"}
	switch v := ext["project"].(type) {
	case float64:
		return query.Equals(col, &query.Literal{Value: int64(v)})
	case int:
		return query.Equals(col, &query.Literal{Value: int64(v)})
	case int64:
		return query.Equals(col, &query.Literal{Value: v})
	case []any:
		tuple := &query.FunctionCall{Name: "tuple"}
		for _, id := range v {
			tuple.Parameters = append(tuple.Parameters, &query.Literal{Value: toInt64(id)})
		}
		return query.In(col, tuple)
	}
	return nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}
