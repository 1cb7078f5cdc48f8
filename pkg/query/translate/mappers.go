package translate

import (
	"github.com/getsentry/snuba/pkg/query"
)

// ColumnToColumn renames a column, keeping the logical name as the alias so
// result columns keep the caller-facing name.
type ColumnToColumn struct {
	FromTable  string
	FromColumn string
	ToTable    string
	ToColumn   string
}

func (m ColumnToColumn) MapColumn(c *query.Column, _ *Translator) (query.Expression, error) {
	if c.TableName != m.FromTable || c.ColumnName != m.FromColumn {
		return nil, nil
	}
	alias := c.Alias
	if alias == "" {
		alias = m.FromColumn
	}
	return &query.Column{Alias: alias, TableName: m.ToTable, ColumnName: m.ToColumn}, nil
}

// ColumnToLiteral replaces a column with a constant, for entity columns
// that are fixed per storage.
type ColumnToLiteral struct {
	FromColumn string
	Value      any
}

func (m ColumnToLiteral) MapColumn(c *query.Column, _ *Translator) (query.Expression, error) {
	if c.ColumnName != m.FromColumn {
		return nil, nil
	}
	alias := c.Alias
	if alias == "" {
		alias = m.FromColumn
	}
	return &query.Literal{Alias: alias, Value: m.Value}, nil
}

// ColumnToFunction wraps a column in a function call, e.g. mapping a
// logical column onto an ifNull wrapper for a nullable storage column.
type ColumnToFunction struct {
	FromColumn string
	Function   string
	Parameters func() []query.Expression
}

func (m ColumnToFunction) MapColumn(c *query.Column, t *Translator) (query.Expression, error) {
	if c.ColumnName != m.FromColumn {
		return nil, nil
	}
	params, err := t.translateAll(m.Parameters())
	if err != nil {
		return nil, err
	}
	alias := c.Alias
	if alias == "" {
		alias = m.FromColumn
	}
	return &query.FunctionCall{Alias: alias, Name: m.Function, Parameters: params}, nil
}

// SubscriptableToFunction expands tags[key] into
// arrayElement(value_column, indexOf(key_column, key)).
type SubscriptableToFunction struct {
	FromColumn  string
	KeyColumn   string
	ValueColumn string
}

func (m SubscriptableToFunction) MapSubscriptable(s *query.SubscriptableReference, t *Translator) (query.Expression, error) {
	if s.Column.ColumnName != m.FromColumn {
		return nil, nil
	}
	key, err := t.Translate(s.Key)
	if err != nil {
		return nil, err
	}
	return &query.FunctionCall{
		Alias: s.Alias,
		Name:  "arrayElement",
		Parameters: []query.Expression{
			&query.Column{ColumnName: m.ValueColumn},
			&query.FunctionCall{
				Name: "indexOf",
				Parameters: []query.Expression{
					&query.Column{ColumnName: m.KeyColumn},
					key,
				},
			},
		},
	}, nil
}

// FunctionNameMapper renames a function, translating its parameters with
// the full rule set.
type FunctionNameMapper struct {
	From string
	To   string
}

func (m FunctionNameMapper) MapFunction(f *query.FunctionCall, t *Translator) (query.Expression, error) {
	if f.Name != m.From {
		return nil, nil
	}
	params, err := t.translateAll(f.Parameters)
	if err != nil {
		return nil, err
	}
	return &query.FunctionCall{Alias: f.Alias, Name: m.To, Parameters: params}, nil
}
