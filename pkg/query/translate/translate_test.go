package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getsentry/snuba/pkg/query"
)

func TestColumnToColumn(t *testing.T) {
	assert := assert.New(t)

	mappers := Mappers{Columns: []ColumnMapper{
		ColumnToColumn{FromColumn: "user", ToColumn: "sentry_user"},
	}}

	out, err := NewTranslator(mappers).Translate(&query.Column{ColumnName: "user"})
	require.NoError(t, err)
	col := out.(*query.Column)
	assert.Equal("sentry_user", col.ColumnName)
	// the logical name survives as the alias
	assert.Equal("user", col.Alias)

	// non-matching columns pass through unchanged
	out, err = NewTranslator(mappers).Translate(&query.Column{ColumnName: "event_id"})
	require.NoError(t, err)
	assert.Equal("event_id", out.(*query.Column).ColumnName)
}

func TestFirstApplicableRuleWins(t *testing.T) {
	assert := assert.New(t)

	mappers := Mappers{Columns: []ColumnMapper{
		ColumnToColumn{FromColumn: "user", ToColumn: "first"},
		ColumnToColumn{FromColumn: "user", ToColumn: "second"},
	}}

	out, err := NewTranslator(mappers).Translate(&query.Column{ColumnName: "user"})
	require.NoError(t, err)
	assert.Equal("first", out.(*query.Column).ColumnName)
}

func TestSubscriptableToFunction(t *testing.T) {
	assert := assert.New(t)

	mappers := Mappers{Subscriptables: []SubscriptableMapper{
		SubscriptableToFunction{FromColumn: "tags", KeyColumn: "tags.key", ValueColumn: "tags.value"},
	}}

	out, err := NewTranslator(mappers).Translate(&query.SubscriptableReference{
		Alias:  "environment_tag",
		Column: &query.Column{ColumnName: "tags"},
		Key:    &query.Literal{Value: "environment"},
	})
	require.NoError(t, err)

	fn := out.(*query.FunctionCall)
	assert.Equal("arrayElement", fn.Name)
	assert.Equal("environment_tag", fn.Alias)
	assert.Equal("tags.value", fn.Parameters[0].(*query.Column).ColumnName)
	index := fn.Parameters[1].(*query.FunctionCall)
	assert.Equal("indexOf", index.Name)
	assert.Equal("tags.key", index.Parameters[0].(*query.Column).ColumnName)
}

func TestSubscriptableDefaultRequiresRule(t *testing.T) {
	// a column rule that maps the subscript base out from under the
	// reference makes the default expansion impossible
	mappers := Mappers{Columns: []ColumnMapper{
		ColumnToLiteral{FromColumn: "tags", Value: "gone"},
	}}

	_, err := NewTranslator(mappers).Translate(&query.SubscriptableReference{
		Column: &query.Column{ColumnName: "tags"},
		Key:    &query.Literal{Value: "environment"},
	})
	assert.ErrorContains(t, err, "no subscriptable rule applied")
}

func TestFunctionChildrenAreTranslated(t *testing.T) {
	assert := assert.New(t)

	mappers := Mappers{Columns: []ColumnMapper{
		ColumnToColumn{FromColumn: "duration", ToColumn: "duration_ms"},
	}}

	out, err := NewTranslator(mappers).Translate(&query.FunctionCall{
		Name: "avg",
		Parameters: []query.Expression{
			&query.Column{ColumnName: "duration"},
		},
	})
	require.NoError(t, err)
	fn := out.(*query.FunctionCall)
	assert.Equal("avg", fn.Name)
	assert.Equal("duration_ms", fn.Parameters[0].(*query.Column).ColumnName)
}

func TestFunctionNameMapper(t *testing.T) {
	assert := assert.New(t)

	mappers := Mappers{Functions: []FunctionMapper{
		FunctionNameMapper{From: "uniq", To: "uniqCombined"},
	}}

	out, err := NewTranslator(mappers).Translate(&query.FunctionCall{
		Name:       "uniq",
		Parameters: []query.Expression{&query.Column{ColumnName: "user"}},
	})
	require.NoError(t, err)
	assert.Equal("uniqCombined", out.(*query.FunctionCall).Name)
}

func TestConcat_Precedence(t *testing.T) {
	assert := assert.New(t)

	entity := Mappers{Columns: []ColumnMapper{
		ColumnToColumn{FromColumn: "user", ToColumn: "entity_user"},
	}}
	storage := Mappers{Columns: []ColumnMapper{
		ColumnToColumn{FromColumn: "user", ToColumn: "storage_user"},
		ColumnToColumn{FromColumn: "release", ToColumn: "tags_release"},
	}}

	merged := Concat(entity, storage)
	tr := NewTranslator(merged)

	out, err := tr.Translate(&query.Column{ColumnName: "user"})
	require.NoError(t, err)
	assert.Equal("entity_user", out.(*query.Column).ColumnName)

	out, err = tr.Translate(&query.Column{ColumnName: "release"})
	require.NoError(t, err)
	assert.Equal("tags_release", out.(*query.Column).ColumnName)
}

func TestTranslateQuery(t *testing.T) {
	assert := assert.New(t)

	mappers := Mappers{
		Columns: []ColumnMapper{
			ColumnToColumn{FromColumn: "user", ToColumn: "sentry_user"},
		},
		Subscriptables: []SubscriptableMapper{
			SubscriptableToFunction{FromColumn: "tags", KeyColumn: "tags.key", ValueColumn: "tags.value"},
		},
	}

	q := &query.Query{
		Entity: "events",
		Selected: []query.SelectedExpression{
			{Name: "user", Expression: &query.Column{ColumnName: "user"}},
		},
		Condition: query.Equals(
			&query.SubscriptableReference{
				Column: &query.Column{ColumnName: "tags"},
				Key:    &query.Literal{Value: "environment"},
			},
			&query.Literal{Value: "production"},
		),
		GroupBy: []query.Expression{&query.Column{ColumnName: "user"}},
	}

	out, err := TranslateQuery(q, mappers)
	require.NoError(t, err)

	assert.Equal("sentry_user", out.Selected[0].Expression.(*query.Column).ColumnName)
	assert.Equal("sentry_user", out.GroupBy[0].(*query.Column).ColumnName)
	cond := out.Condition.(*query.FunctionCall)
	assert.Equal("arrayElement", cond.Parameters[0].(*query.FunctionCall).Name)

	// the input query is untouched
	assert.Equal("user", q.Selected[0].Expression.(*query.Column).ColumnName)
}
