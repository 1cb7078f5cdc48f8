package matchers

import (
	"github.com/getsentry/snuba/pkg/query"
)

type literalPattern struct {
	value Pattern[any]
}

// Literal matches literal nodes whose value matches the given pattern. A
// nil pattern matches any value.
func Literal(value Pattern[any]) Pattern[query.Expression] {
	if value == nil {
		value = AnyScalar()
	}
	return literalPattern{value: value}
}

func (p literalPattern) Match(e query.Expression) *MatchResult {
	lit, ok := e.(*query.Literal)
	if !ok {
		return nil
	}
	return p.value.Match(lit.Value)
}

type columnPattern struct {
	alias Pattern[string]
	name  Pattern[string]
	table Pattern[string]
}

// Column matches column nodes. Nil sub-patterns match anything, so
// Column(nil, nil) matches every column.
func Column(alias, name Pattern[string]) Pattern[query.Expression] {
	return ColumnWithTable(alias, name, nil)
}

func ColumnWithTable(alias, name, table Pattern[string]) Pattern[query.Expression] {
	if alias == nil {
		alias = AnyOptionalString()
	}
	if name == nil {
		name = AnyOptionalString()
	}
	if table == nil {
		table = AnyOptionalString()
	}
	return columnPattern{alias: alias, name: name, table: table}
}

func (p columnPattern) Match(e query.Expression) *MatchResult {
	col, ok := e.(*query.Column)
	if !ok {
		return nil
	}
	result := p.alias.Match(col.Alias)
	if result == nil {
		return nil
	}
	if nameResult := p.name.Match(col.ColumnName); nameResult != nil {
		result.Merge(nameResult)
	} else {
		return nil
	}
	if tableResult := p.table.Match(col.TableName); tableResult != nil {
		return result.Merge(tableResult)
	}
	return nil
}

type functionCallPattern struct {
	name          Pattern[string]
	parameters    []Pattern[query.Expression]
	withOptionals bool
}

// FunctionCall matches a call whose name matches and whose parameters match
// positionally. The call must have exactly len(parameters) parameters.
func FunctionCall(name Pattern[string], parameters ...Pattern[query.Expression]) Pattern[query.Expression] {
	return functionCallPattern{name: name, parameters: parameters}
}

// FunctionCallWithOptionals is FunctionCall, but the call may carry extra
// trailing parameters beyond the patterns given.
func FunctionCallWithOptionals(name Pattern[string], parameters ...Pattern[query.Expression]) Pattern[query.Expression] {
	return functionCallPattern{name: name, parameters: parameters, withOptionals: true}
}

func (p functionCallPattern) Match(e query.Expression) *MatchResult {
	fn, ok := e.(*query.FunctionCall)
	if !ok {
		return nil
	}
	if p.name != nil {
		if p.name.Match(fn.Name) == nil {
			return nil
		}
	}
	if p.withOptionals {
		if len(fn.Parameters) < len(p.parameters) {
			return nil
		}
	} else if len(fn.Parameters) != len(p.parameters) {
		return nil
	}
	result := NewMatchResult()
	for i, pat := range p.parameters {
		paramResult := pat.Match(fn.Parameters[i])
		if paramResult == nil {
			return nil
		}
		result.Merge(paramResult)
	}
	return result
}

type subscriptablePattern struct {
	column Pattern[string]
	key    Pattern[string]
}

// SubscriptableReference matches tags[key] style nodes by column name and
// string key.
func SubscriptableReference(column, key Pattern[string]) Pattern[query.Expression] {
	if column == nil {
		column = AnyString()
	}
	if key == nil {
		key = AnyString()
	}
	return subscriptablePattern{column: column, key: key}
}

func (p subscriptablePattern) Match(e query.Expression) *MatchResult {
	ref, ok := e.(*query.SubscriptableReference)
	if !ok {
		return nil
	}
	result := p.column.Match(ref.Column.ColumnName)
	if result == nil {
		return nil
	}
	key, ok := ref.Key.Value.(string)
	if !ok {
		return nil
	}
	keyResult := p.key.Match(key)
	if keyResult == nil {
		return nil
	}
	return result.Merge(keyResult)
}
