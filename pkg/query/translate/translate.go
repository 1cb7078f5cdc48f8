// Package translate rewrites logical expression trees into their physical
// form. Rule sets hold per-node-kind mappers; the translator applies the
// first applicable mapper per node and falls back to identity, translating
// children with the full rule set throughout.
package translate

import (
	"fmt"

	"github.com/getsentry/snuba/pkg/query"
)

type (
	// Mappers is a rule set, one mapper sequence per node kind. A mapper
	// returns nil when it does not apply; the first non-nil result wins.
	Mappers struct {
		Literals       []LiteralMapper
		Columns        []ColumnMapper
		Subscriptables []SubscriptableMapper
		Functions      []FunctionMapper
		Curried        []CurriedMapper
		Arguments      []ArgumentMapper
		Lambdas        []LambdaMapper
	}

	// The mapper interfaces receive the node and the translator to run on
	// child expressions. What each kind may map to is restricted: see
	// Translator.Translate.
	LiteralMapper interface {
		MapLiteral(*query.Literal, *Translator) (query.Expression, error)
	}
	ColumnMapper interface {
		MapColumn(*query.Column, *Translator) (query.Expression, error)
	}
	SubscriptableMapper interface {
		MapSubscriptable(*query.SubscriptableReference, *Translator) (query.Expression, error)
	}
	FunctionMapper interface {
		MapFunction(*query.FunctionCall, *Translator) (query.Expression, error)
	}
	CurriedMapper interface {
		MapCurried(*query.CurriedFunctionCall, *Translator) (query.Expression, error)
	}
	ArgumentMapper interface {
		MapArgument(*query.Argument, *Translator) (query.Expression, error)
	}
	LambdaMapper interface {
		MapLambda(*query.Lambda, *Translator) (query.Expression, error)
	}

	Translator struct {
		mappers Mappers
	}
)

// Concat appends b's rules after a's, so a's rules take precedence.
func Concat(a, b Mappers) Mappers {
	return Mappers{
		Literals:       append(append([]LiteralMapper{}, a.Literals...), b.Literals...),
		Columns:        append(append([]ColumnMapper{}, a.Columns...), b.Columns...),
		Subscriptables: append(append([]SubscriptableMapper{}, a.Subscriptables...), b.Subscriptables...),
		Functions:      append(append([]FunctionMapper{}, a.Functions...), b.Functions...),
		Curried:        append(append([]CurriedMapper{}, a.Curried...), b.Curried...),
		Arguments:      append(append([]ArgumentMapper{}, a.Arguments...), b.Arguments...),
		Lambdas:        append(append([]LambdaMapper{}, a.Lambdas...), b.Lambdas...),
	}
}

func NewTranslator(mappers Mappers) *Translator {
	return &Translator{mappers: mappers}
}

// Translate maps one expression tree. Output kinds are restricted per input
// kind: a literal stays a literal; a column may become a column, literal or
// function; a subscriptable becomes a function or subscriptable; functions,
// curried calls, arguments and lambdas keep their kind. A mapper producing
// anything else is an error.
func (t *Translator) Translate(e query.Expression) (query.Expression, error) {
	switch e := e.(type) {
	case *query.Literal:
		return t.translateLiteral(e)
	case *query.Column:
		return t.translateColumn(e)
	case *query.SubscriptableReference:
		return t.translateSubscriptable(e)
	case *query.FunctionCall:
		return t.translateFunction(e)
	case *query.CurriedFunctionCall:
		return t.translateCurried(e)
	case *query.Argument:
		return t.translateArgument(e)
	case *query.Lambda:
		return t.translateLambda(e)
	default:
		return nil, fmt.Errorf("unknown expression type %T", e)
	}
}

func (t *Translator) translateLiteral(l *query.Literal) (query.Expression, error) {
	for _, m := range t.mappers.Literals {
		mapped, err := m.MapLiteral(l, t)
		if err != nil {
			return nil, err
		}
		if mapped == nil {
			continue
		}
		if _, ok := mapped.(*query.Literal); !ok {
			return nil, fmt.Errorf("literal %v mapped to %T, want literal", l.Value, mapped)
		}
		return mapped, nil
	}
	return l, nil
}

func (t *Translator) translateColumn(c *query.Column) (query.Expression, error) {
	for _, m := range t.mappers.Columns {
		mapped, err := m.MapColumn(c, t)
		if err != nil {
			return nil, err
		}
		if mapped == nil {
			continue
		}
		switch mapped.(type) {
		case *query.Column, *query.Literal, *query.FunctionCall:
			return mapped, nil
		default:
			return nil, fmt.Errorf("column %s mapped to %T, want column, literal or function", c.ColumnName, mapped)
		}
	}
	return c, nil
}

func (t *Translator) translateSubscriptable(s *query.SubscriptableReference) (query.Expression, error) {
	for _, m := range t.mappers.Subscriptables {
		mapped, err := m.MapSubscriptable(s, t)
		if err != nil {
			return nil, err
		}
		if mapped == nil {
			continue
		}
		switch mapped.(type) {
		case *query.FunctionCall, *query.SubscriptableReference:
			return mapped, nil
		default:
			return nil, fmt.Errorf("subscriptable %s[%v] mapped to %T, want function or subscriptable",
				s.Column.ColumnName, s.Key.Value, mapped)
		}
	}

	// default: translate the parts, which must stay column and literal for
	// the reference to remain well formed
	col, err := t.Translate(s.Column)
	if err != nil {
		return nil, err
	}
	mappedCol, ok := col.(*query.Column)
	if !ok {
		return nil, fmt.Errorf("subscriptable column %s translated to %T and no subscriptable rule applied",
			s.Column.ColumnName, col)
	}
	key, err := t.translateLiteral(s.Key)
	if err != nil {
		return nil, err
	}
	return &query.SubscriptableReference{Alias: s.Alias, Column: mappedCol, Key: key.(*query.Literal)}, nil
}

func (t *Translator) translateFunction(f *query.FunctionCall) (query.Expression, error) {
	for _, m := range t.mappers.Functions {
		mapped, err := m.MapFunction(f, t)
		if err != nil {
			return nil, err
		}
		if mapped == nil {
			continue
		}
		if _, ok := mapped.(*query.FunctionCall); !ok {
			return nil, fmt.Errorf("function %s mapped to %T, want function", f.Name, mapped)
		}
		return mapped, nil
	}

	params, err := t.translateAll(f.Parameters)
	if err != nil {
		return nil, err
	}
	return &query.FunctionCall{Alias: f.Alias, Name: f.Name, Parameters: params}, nil
}

func (t *Translator) translateCurried(c *query.CurriedFunctionCall) (query.Expression, error) {
	for _, m := range t.mappers.Curried {
		mapped, err := m.MapCurried(c, t)
		if err != nil {
			return nil, err
		}
		if mapped == nil {
			continue
		}
		if _, ok := mapped.(*query.CurriedFunctionCall); !ok {
			return nil, fmt.Errorf("curried function %s mapped to %T, want curried function", c.InnerFunction.Name, mapped)
		}
		return mapped, nil
	}

	inner, err := t.translateFunction(c.InnerFunction)
	if err != nil {
		return nil, err
	}
	innerFn, ok := inner.(*query.FunctionCall)
	if !ok {
		return nil, fmt.Errorf("inner function %s translated to %T, want function", c.InnerFunction.Name, inner)
	}
	params, err := t.translateAll(c.Parameters)
	if err != nil {
		return nil, err
	}
	return &query.CurriedFunctionCall{Alias: c.Alias, InnerFunction: innerFn, Parameters: params}, nil
}

func (t *Translator) translateArgument(a *query.Argument) (query.Expression, error) {
	for _, m := range t.mappers.Arguments {
		mapped, err := m.MapArgument(a, t)
		if err != nil {
			return nil, err
		}
		if mapped == nil {
			continue
		}
		if _, ok := mapped.(*query.Argument); !ok {
			return nil, fmt.Errorf("argument %s mapped to %T, want argument", a.Name, mapped)
		}
		return mapped, nil
	}
	return a, nil
}

func (t *Translator) translateLambda(l *query.Lambda) (query.Expression, error) {
	for _, m := range t.mappers.Lambdas {
		mapped, err := m.MapLambda(l, t)
		if err != nil {
			return nil, err
		}
		if mapped == nil {
			continue
		}
		if _, ok := mapped.(*query.Lambda); !ok {
			return nil, fmt.Errorf("lambda mapped to %T, want lambda", mapped)
		}
		return mapped, nil
	}

	body, err := t.Translate(l.Transformation)
	if err != nil {
		return nil, err
	}
	return &query.Lambda{Alias: l.Alias, Parameters: l.Parameters, Transformation: body}, nil
}

func (t *Translator) translateAll(exprs []query.Expression) ([]query.Expression, error) {
	out := make([]query.Expression, len(exprs))
	for i, e := range exprs {
		translated, err := t.Translate(e)
		if err != nil {
			return nil, err
		}
		out[i] = translated
	}
	return out, nil
}

// TranslateQuery maps every expression slot of q with the rule set,
// returning a new query.
func TranslateQuery(q *query.Query, mappers Mappers) (*query.Query, error) {
	t := NewTranslator(mappers)
	out := q.Clone()

	// Transform cannot thread errors, so walk the slots directly.
	for i := range out.Selected {
		mapped, err := t.Translate(out.Selected[i].Expression)
		if err != nil {
			return nil, err
		}
		out.Selected[i].Expression = mapped
	}
	if out.Condition != nil {
		mapped, err := t.Translate(out.Condition)
		if err != nil {
			return nil, err
		}
		out.Condition = mapped
	}
	for i := range out.GroupBy {
		mapped, err := t.Translate(out.GroupBy[i])
		if err != nil {
			return nil, err
		}
		out.GroupBy[i] = mapped
	}
	if out.Having != nil {
		mapped, err := t.Translate(out.Having)
		if err != nil {
			return nil, err
		}
		out.Having = mapped
	}
	for i := range out.OrderBy {
		mapped, err := t.Translate(out.OrderBy[i].Expression)
		if err != nil {
			return nil, err
		}
		out.OrderBy[i].Expression = mapped
	}
	if out.LimitBy != nil {
		mapped, err := t.Translate(out.LimitBy.Expression)
		if err != nil {
			return nil, err
		}
		out.LimitBy.Expression = mapped
	}
	return out, nil
}
