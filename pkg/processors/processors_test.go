package processors

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getsentry/snuba/pkg/clickhouse"
	"github.com/getsentry/snuba/pkg/metrics"
	"github.com/getsentry/snuba/pkg/query"
	"github.com/getsentry/snuba/pkg/state"
)

var noSettings = query.RequestSettings{}

func TestBasicFunctions_ErrorRate(t *testing.T) {
	assert := assert.New(t)

	q := &query.Query{
		Selected: []query.SelectedExpression{
			{Name: "error_rate", Expression: &query.FunctionCall{Alias: "error_rate", Name: "error_rate"}},
		},
	}
	require.NoError(t, BasicFunctions{}.Process(context.Background(), q, noSettings))

	expanded := q.Selected[0].Expression.(*query.FunctionCall)
	assert.Equal("divide", expanded.Name)
	assert.Equal("error_rate", expanded.Alias)
	assert.Equal("countIf", expanded.Parameters[0].(*query.FunctionCall).Name)
	assert.Equal("count", expanded.Parameters[1].(*query.FunctionCall).Name)
}

func TestTimeSeries(t *testing.T) {
	tests := []struct {
		name        string
		granularity int
		wantSQL     string
	}{
		{name: "hour", granularity: 3600, wantSQL: "(toStartOfHour(finish_ts) AS time)"},
		{name: "day", granularity: 86400, wantSQL: "(toStartOfDay(finish_ts) AS time)"},
		{name: "minute", granularity: 60, wantSQL: "(toStartOfMinute(finish_ts) AS time)"},
		{
			name:        "odd bucket",
			granularity: 300,
			wantSQL:     "(toDateTime(multiply(intDiv(toUInt32(finish_ts), 300), 300)) AS time)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &query.Query{
				Selected: []query.SelectedExpression{
					{Name: "time", Expression: &query.Column{ColumnName: "time"}},
				},
				Granularity: &tt.granularity,
			}
			require.NoError(t, TimeSeries{TimeColumn: "finish_ts"}.Process(context.Background(), q, noSettings))
			assert.Equal(t, tt.wantSQL, clickhouse.FormatExpression(q.Selected[0].Expression))
		})
	}
}

func TestTimeSeries_BadGranularity(t *testing.T) {
	granularity := -60
	q := &query.Query{Granularity: &granularity}
	err := TimeSeries{TimeColumn: "timestamp"}.Process(context.Background(), q, noSettings)
	assert.True(t, IsUserError(err))
}

func subscriptExpansion(key string) query.Expression {
	return &query.FunctionCall{
		Name: "arrayElement",
		Parameters: []query.Expression{
			&query.Column{ColumnName: "tags.value"},
			&query.FunctionCall{
				Name: "indexOf",
				Parameters: []query.Expression{
					&query.Column{ColumnName: "tags.key"},
					&query.Literal{Value: key},
				},
			},
		},
	}
}

func TestNestedColumnPromoter(t *testing.T) {
	assert := assert.New(t)

	promoter := NestedColumnPromoter{
		NestedColumn: "tags",
		Promoted: map[string]string{
			"environment":    "environment",
			"transaction.id": "transaction_id",
		},
		StringColumns: map[string]struct{}{"environment": {}},
	}

	q := &clickhouse.Query{
		Query: query.Query{
			Selected: []query.SelectedExpression{
				{Name: "env", Expression: subscriptExpansion("environment")},
				{Name: "txn", Expression: subscriptExpansion("transaction.id")},
				{Name: "custom", Expression: subscriptExpansion("user_segment")},
			},
		},
		Table: "errors_local",
	}
	require.NoError(t, promoter.Process(context.Background(), q, noSettings))

	// string columns promote bare
	assert.Equal("environment", q.Selected[0].Expression.(*query.Column).ColumnName)
	// non-string columns get toString
	txn := q.Selected[1].Expression.(*query.FunctionCall)
	assert.Equal("toString", txn.Name)
	assert.Equal("transaction_id", txn.Parameters[0].(*query.Column).ColumnName)
	// unmapped keys stay as the generic lookup
	assert.Equal("arrayElement", q.Selected[2].Expression.(*query.FunctionCall).Name)
}

func strippedUUIDCondition(column string, rhs query.Expression, op string) query.Expression {
	return query.BinaryCondition(op,
		&query.FunctionCall{
			Name: "replaceAll",
			Parameters: []query.Expression{
				&query.FunctionCall{Name: "toString", Parameters: []query.Expression{
					&query.Column{ColumnName: column},
				}},
				&query.Literal{Value: "-"},
				&query.Literal{Value: ""},
			},
		},
		rhs,
	)
}

func TestUUIDColumn(t *testing.T) {
	assert := assert.New(t)

	processor := NewUUIDColumn("event_id")
	q := &clickhouse.Query{
		Query: query.Query{
			Condition: strippedUUIDCondition(
				"event_id",
				&query.Literal{Value: "550e8400e29b41d4a716446655440000"},
				query.FnEquals,
			),
		},
		Table: "errors_local",
	}
	require.NoError(t, processor.Process(context.Background(), q, noSettings))

	cond := q.Condition.(*query.FunctionCall)
	assert.Equal(query.FnEquals, cond.Name)
	assert.Equal("event_id", cond.Parameters[0].(*query.Column).ColumnName)
	assert.Equal("550e8400-e29b-41d4-a716-446655440000", cond.Parameters[1].(*query.Literal).Value)
}

func TestUUIDColumn_InTuple(t *testing.T) {
	assert := assert.New(t)

	q := &clickhouse.Query{
		Query: query.Query{
			Condition: strippedUUIDCondition(
				"event_id",
				&query.FunctionCall{Name: "tuple", Parameters: []query.Expression{
					&query.Literal{Value: "550e8400e29b41d4a716446655440000"},
					&query.Literal{Value: "650e8400e29b41d4a716446655440000"},
				}},
				query.FnIn,
			),
		},
		Table: "errors_local",
	}
	require.NoError(t, NewUUIDColumn("event_id").Process(context.Background(), q, noSettings))

	cond := q.Condition.(*query.FunctionCall)
	tuple := cond.Parameters[1].(*query.FunctionCall)
	assert.Equal("550e8400-e29b-41d4-a716-446655440000", tuple.Parameters[0].(*query.Literal).Value)
}

func TestUUIDColumn_LiteralOnLeft(t *testing.T) {
	assert := assert.New(t)

	// legacy clients put the literal first in equality conditions
	q := &clickhouse.Query{
		Query: query.Query{
			Condition: query.BinaryCondition(query.FnEquals,
				&query.Literal{Value: "550e8400e29b41d4a716446655440000"},
				&query.FunctionCall{
					Name: "replaceAll",
					Parameters: []query.Expression{
						&query.FunctionCall{Name: "toString", Parameters: []query.Expression{
							&query.Column{ColumnName: "event_id"},
						}},
						&query.Literal{Value: "-"},
						&query.Literal{Value: ""},
					},
				},
			),
		},
		Table: "errors_local",
	}
	require.NoError(t, NewUUIDColumn("event_id").Process(context.Background(), q, noSettings))

	cond := q.Condition.(*query.FunctionCall)
	assert.Equal("550e8400-e29b-41d4-a716-446655440000", cond.Parameters[0].(*query.Literal).Value)
	assert.Equal("event_id", cond.Parameters[1].(*query.Column).ColumnName)
}

func TestUUIDColumn_NonLiteralUntouched(t *testing.T) {
	original := strippedUUIDCondition("event_id", &query.Column{ColumnName: "other_id"}, query.FnEquals)
	q := &clickhouse.Query{
		Query: query.Query{Condition: original},
		Table: "errors_local",
	}
	require.NoError(t, NewUUIDColumn("event_id").Process(context.Background(), q, noSettings))
	assert.True(t, q.Condition.Equals(original))
}

func TestUUIDColumn_BadLiteral(t *testing.T) {
	q := &clickhouse.Query{
		Query: query.Query{
			Condition: strippedUUIDCondition("event_id", &query.Literal{Value: "not-a-uuid"}, query.FnEquals),
		},
		Table: "errors_local",
	}
	err := NewUUIDColumn("event_id").Process(context.Background(), q, noSettings)
	assert.True(t, IsUserError(err))
}

func TestHexIntColumn(t *testing.T) {
	assert := assert.New(t)

	q := &clickhouse.Query{
		Query: query.Query{
			Selected: []query.SelectedExpression{
				{Name: "span_id", Expression: &query.Column{ColumnName: "span_id"}},
			},
			Condition: query.Equals(
				&query.Column{ColumnName: "span_id"},
				&query.Literal{Value: "deadbeefcafe"},
			),
		},
		Table: "transactions_local",
	}
	require.NoError(t, NewHexIntColumn("span_id").Process(context.Background(), q, noSettings))

	cond := q.Condition.(*query.FunctionCall)
	assert.Equal(uint64(0xdeadbeefcafe), cond.Parameters[1].(*query.Literal).Value)

	selected := q.Selected[0].Expression.(*query.FunctionCall)
	assert.Equal("(lower(hex(span_id)) AS span_id)", clickhouse.FormatExpression(selected))
}

func TestHexIntColumn_FullRange(t *testing.T) {
	assert := assert.New(t)

	// ids above 2^63 must survive as unsigned values all the way to SQL
	q := &clickhouse.Query{
		Query: query.Query{
			Condition: query.Equals(
				&query.Column{ColumnName: "span_id"},
				&query.Literal{Value: "ffffffffffffffff"},
			),
		},
		Table: "transactions_local",
	}
	require.NoError(t, NewHexIntColumn("span_id").Process(context.Background(), q, noSettings))

	cond := q.Condition.(*query.FunctionCall)
	assert.Equal(uint64(0xffffffffffffffff), cond.Parameters[1].(*query.Literal).Value)
	assert.Equal("(span_id = 18446744073709551615)", clickhouse.FormatExpression(q.Condition))
}

func TestHexIntColumn_BadLiteral(t *testing.T) {
	q := &clickhouse.Query{
		Query: query.Query{
			Condition: query.Equals(
				&query.Column{ColumnName: "span_id"},
				&query.Literal{Value: "zzzz"},
			),
		},
		Table: "transactions_local",
	}
	err := NewHexIntColumn("span_id").Process(context.Background(), q, noSettings)
	assert.True(t, IsUserError(err))
}

func TestPrewhere(t *testing.T) {
	assert := assert.New(t)

	eventCond := query.Equals(&query.Column{ColumnName: "event_id"}, &query.Literal{Value: "abc"})
	projectCond := query.Equals(&query.Column{ColumnName: "project_id"}, &query.Literal{Value: int64(1)})
	timeCond := query.BinaryCondition(query.FnGreater,
		&query.Column{ColumnName: "timestamp"}, &query.Literal{Value: int64(0)})

	q := &clickhouse.Query{
		Query: query.Query{Condition: query.And(timeCond, projectCond, eventCond)},
		Table: "errors_local",
	}
	processor := Prewhere{Candidates: []string{"event_id", "project_id"}, MaxConditions: 2}
	require.NoError(t, processor.Process(context.Background(), q, noSettings))

	// both candidates moved, priority order first
	require.NotNil(t, q.Prewhere)
	moved := query.FirstLevelConditions(q.Prewhere)
	require.Len(t, moved, 2)
	assert.True(moved[0].Equals(eventCond))
	assert.True(moved[1].Equals(projectCond))

	remaining := query.FirstLevelConditions(q.Condition)
	require.Len(t, remaining, 1)
	assert.True(remaining[0].Equals(timeCond))
}

func TestPrewhere_CapAndOrNesting(t *testing.T) {
	assert := assert.New(t)

	projectCond := query.Equals(&query.Column{ColumnName: "project_id"}, &query.Literal{Value: int64(1)})
	orCond := query.Or(
		query.Equals(&query.Column{ColumnName: "event_id"}, &query.Literal{Value: "a"}),
		query.Equals(&query.Column{ColumnName: "group_id"}, &query.Literal{Value: int64(2)}),
	)

	q := &clickhouse.Query{
		Query: query.Query{Condition: query.And(projectCond, orCond)},
		Table: "errors_local",
	}
	// the or() references event_id, but only as a leaf of the AND chain is
	// a condition eligible per candidate priority; with cap 1 only the top
	// candidate moves
	processor := Prewhere{Candidates: []string{"project_id", "event_id"}, MaxConditions: 1}
	require.NoError(t, processor.Process(context.Background(), q, noSettings))

	moved := query.FirstLevelConditions(q.Prewhere)
	require.Len(t, moved, 1)
	assert.True(moved[0].Equals(projectCond))
	assert.True(q.Condition.Equals(orCond))
}

func TestPrewhere_OrChainNeverMoves(t *testing.T) {
	orCond := query.Or(
		query.Equals(&query.Column{ColumnName: "event_id"}, &query.Literal{Value: "a"}),
		query.Equals(&query.Column{ColumnName: "group_id"}, &query.Literal{Value: int64(2)}),
	)

	q := &clickhouse.Query{
		Query: query.Query{Condition: orCond},
		Table: "errors_local",
	}
	// the only top-level condition is an or() referencing the candidate;
	// boolean combinators are not comparisons, so nothing is eligible
	processor := Prewhere{Candidates: []string{"event_id"}, MaxConditions: 2}
	require.NoError(t, processor.Process(context.Background(), q, noSettings))

	assert.Nil(t, q.Prewhere)
	assert.True(t, q.Condition.Equals(orCond))
}

func TestPostReplacementConsistency(t *testing.T) {
	ctx := context.Background()

	newStore := func(t *testing.T) *state.Store {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })
		return state.NewStore(client)
	}

	projectQuery := func() *clickhouse.Query {
		return &clickhouse.Query{
			Query: query.Query{
				Condition: query.Equals(
					&query.Column{ColumnName: "project_id"}, &query.Literal{Value: int64(1)}),
			},
			Table: "errors_local",
		}
	}

	t.Run("no flags", func(t *testing.T) {
		store := newStore(t)
		q := projectQuery()
		p := PostReplacementConsistency{Store: store, Metrics: metrics.NewScope("test", nil)}
		require.NoError(t, p.Process(ctx, q, noSettings))
		assert.False(t, q.Final)
		assert.Len(t, query.FirstLevelConditions(q.Condition), 1)
	})

	t.Run("needs final", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.SetProjectNeedsFinal(ctx, 1))
		q := projectQuery()
		p := PostReplacementConsistency{Store: store}
		require.NoError(t, p.Process(ctx, q, noSettings))
		assert.True(t, q.Final)
	})

	t.Run("excluded groups", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.AddExcludedGroups(ctx, 1, []int64{7}))
		q := projectQuery()
		p := PostReplacementConsistency{Store: store}
		require.NoError(t, p.Process(ctx, q, noSettings))

		assert.False(t, q.Final)
		conditions := query.FirstLevelConditions(q.Condition)
		require.Len(t, conditions, 2)
		exclusion := conditions[1].(*query.FunctionCall)
		assert.Equal(t, query.FnNotIn, exclusion.Name)
		assert.Equal(t, "assumeNotNull", exclusion.Parameters[0].(*query.FunctionCall).Name)
	})

	t.Run("json float project id", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.SetProjectNeedsFinal(ctx, 1))
		q := &clickhouse.Query{
			Query: query.Query{
				Condition: query.Equals(
					&query.Column{ColumnName: "project_id"}, &query.Literal{Value: float64(1)}),
			},
			Table: "errors_local",
		}
		p := PostReplacementConsistency{Store: store}
		require.NoError(t, p.Process(ctx, q, noSettings))
		assert.True(t, q.Final)
	})

	t.Run("over the cap goes final", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.AddExcludedGroups(ctx, 1, []int64{1, 2, 3}))
		q := projectQuery()
		p := PostReplacementConsistency{Store: store, MaxExcludedGroups: 2}
		require.NoError(t, p.Process(ctx, q, noSettings))
		assert.True(t, q.Final)
	})

	t.Run("turbo skips", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.SetProjectNeedsFinal(ctx, 1))
		q := projectQuery()
		p := PostReplacementConsistency{Store: store}
		require.NoError(t, p.Process(ctx, q, query.RequestSettings{Turbo: true}))
		assert.False(t, q.Final)
	})
}
