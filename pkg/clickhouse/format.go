package clickhouse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/snuba/pkg/query"
)

// infixOperators are the condition functions rendered as SQL operators.
// Everything else renders as a function call.
var infixOperators = map[string]string{
	query.FnAnd:             "AND",
	query.FnOr:              "OR",
	query.FnEquals:          "=",
	query.FnNotEquals:       "!=",
	query.FnGreater:         ">",
	query.FnGreaterOrEquals: ">=",
	query.FnLess:            "<",
	query.FnLessOrEquals:    "<=",
	query.FnIn:              "IN",
	query.FnNotIn:           "NOT IN",
	query.FnLike:            "LIKE",
	query.FnNotLike:         "NOT LIKE",
}

var postfixOperators = map[string]string{
	query.FnIsNull:    "IS NULL",
	query.FnIsNotNull: "IS NOT NULL",
}

var bareIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Identifier backquotes a name unless it is a plain identifier.
func Identifier(name string) string {
	if bareIdentifier.MatchString(name) {
		return name
	}
	escaped := strings.NewReplacer("\\", "\\\\", "`", "\\`").Replace(name)
	return "`" + escaped + "`"
}

// QuoteString single-quotes a string literal with ClickHouse escaping.
func QuoteString(s string) string {
	escaped := strings.NewReplacer("\\", "\\\\", "'", "\\'").Replace(s)
	return "'" + escaped + "'"
}

// FormatScalar renders a literal value.
func FormatScalar(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if v {
			return "1"
		}
		return "0"
	case string:
		return QuoteString(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case time.Time:
		return fmt.Sprintf("toDateTime(%s)", QuoteString(v.UTC().Format("2006-01-02T15:04:05")))
	default:
		return QuoteString(fmt.Sprint(v))
	}
}

// FormatExpression renders an expression tree as ClickHouse SQL. Aliased
// nodes render as (expr AS alias) so references to the alias elsewhere in
// the query stay valid.
func FormatExpression(e query.Expression) string {
	body := formatBody(e)
	if alias := e.GetAlias(); alias != "" {
		return fmt.Sprintf("(%s AS %s)", body, Identifier(alias))
	}
	return body
}

func formatBody(e query.Expression) string {
	switch e := e.(type) {
	case *query.Literal:
		return FormatScalar(e.Value)

	case *query.Column:
		if e.TableName != "" {
			return Identifier(e.TableName) + "." + Identifier(e.ColumnName)
		}
		return Identifier(e.ColumnName)

	case *query.FunctionCall:
		return formatFunction(e)

	case *query.CurriedFunctionCall:
		return fmt.Sprintf("%s(%s)", formatBody(e.InnerFunction), formatParams(e.Parameters))

	case *query.SubscriptableReference:
		// untranslated mapping access renders as its canonical expansion
		return fmt.Sprintf("arrayElement(%s.value, indexOf(%s.key, %s))",
			Identifier(e.Column.ColumnName), Identifier(e.Column.ColumnName), FormatScalar(e.Key.Value))

	case *query.Lambda:
		return fmt.Sprintf("(%s -> %s)", strings.Join(e.Parameters, ", "), FormatExpression(e.Transformation))

	case *query.Argument:
		return Identifier(e.Name)

	default:
		panic(fmt.Errorf("unknown expression type %T", e))
	}
}

func formatFunction(fn *query.FunctionCall) string {
	if op, ok := infixOperators[fn.Name]; ok && len(fn.Parameters) == 2 {
		return fmt.Sprintf("(%s %s %s)",
			FormatExpression(fn.Parameters[0]), op, FormatExpression(fn.Parameters[1]))
	}
	if op, ok := postfixOperators[fn.Name]; ok && len(fn.Parameters) == 1 {
		return fmt.Sprintf("(%s %s)", FormatExpression(fn.Parameters[0]), op)
	}
	switch fn.Name {
	case "tuple":
		return "(" + formatParams(fn.Parameters) + ")"
	case "array":
		return "[" + formatParams(fn.Parameters) + "]"
	}
	return fmt.Sprintf("%s(%s)", fn.Name, formatParams(fn.Parameters))
}

func formatParams(params []query.Expression) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = FormatExpression(p)
	}
	return strings.Join(parts, ", ")
}

// FormatQuery renders the full SELECT statement.
func FormatQuery(q *Query) string {
	sb := new(strings.Builder)

	sb.WriteString("SELECT ")
	selected := make([]string, len(q.Selected))
	for i, s := range q.Selected {
		expr := s.Expression
		if s.Name != "" && expr.GetAlias() == "" {
			expr = aliased(expr, s.Name)
		}
		selected[i] = FormatExpression(expr)
	}
	sb.WriteString(strings.Join(selected, ", "))

	sb.WriteString(" FROM ")
	sb.WriteString(Identifier(q.Table))

	if q.Final {
		sb.WriteString(" FINAL")
	}
	if q.SampleRate != nil {
		sb.WriteString(" SAMPLE ")
		sb.WriteString(strconv.FormatFloat(*q.SampleRate, 'g', -1, 64))
	}
	if q.Prewhere != nil {
		sb.WriteString(" PREWHERE ")
		sb.WriteString(FormatExpression(q.Prewhere))
	}
	if q.Condition != nil {
		sb.WriteString(" WHERE ")
		sb.WriteString(FormatExpression(q.Condition))
	}
	if len(q.GroupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(formatParams(q.GroupBy))
		if q.Totals {
			sb.WriteString(" WITH TOTALS")
		}
	}
	if q.Having != nil {
		sb.WriteString(" HAVING ")
		sb.WriteString(FormatExpression(q.Having))
	}
	if len(q.OrderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		parts := make([]string, len(q.OrderBy))
		for i, o := range q.OrderBy {
			parts[i] = FormatExpression(o.Expression) + " " + string(o.Direction)
		}
		sb.WriteString(strings.Join(parts, ", "))
	}
	if q.LimitBy != nil {
		fmt.Fprintf(sb, " LIMIT %d BY %s", q.LimitBy.Limit, FormatExpression(q.LimitBy.Expression))
	}
	if q.Limit != nil {
		fmt.Fprintf(sb, " LIMIT %d OFFSET %d", *q.Limit, q.Offset)
	}

	return sb.String()
}

// aliased returns a copy of e with alias set on the root node.
func aliased(e query.Expression, alias string) query.Expression {
	switch e := e.(type) {
	case *query.Literal:
		out := *e
		out.Alias = alias
		return &out
	case *query.Column:
		out := *e
		out.Alias = alias
		return &out
	case *query.FunctionCall:
		out := *e
		out.Alias = alias
		return &out
	case *query.CurriedFunctionCall:
		out := *e
		out.Alias = alias
		return &out
	case *query.SubscriptableReference:
		out := *e
		out.Alias = alias
		return &out
	case *query.Lambda:
		out := *e
		out.Alias = alias
		return &out
	case *query.Argument:
		out := *e
		out.Alias = alias
		return &out
	default:
		return e
	}
}
