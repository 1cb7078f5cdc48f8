package request

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/getsentry/snuba/pkg/query"
)

func TestNewRequestSchema_RejectsCollisions(t *testing.T) {
	assert := assert.New(t)

	querySchema := &Schema{Properties: map[string]Property{"limit": {Type: TypeInteger}}}
	_, err := NewRequestSchema(querySchema, map[string]*Schema{
		"paging": {Properties: map[string]Property{"limit": {Type: TypeInteger}}},
	})
	assert.Error(err)
	assert.Contains(err.Error(), `redefines property "limit"`)
}

func TestValidate(t *testing.T) {
	schema, err := NewRequestSchema(
		&Schema{
			Properties: map[string]Property{
				"conditions": {Type: TypeArray, Default: []any{}, HasDefault: true},
				"limit":      {Type: TypeInteger},
			},
		},
		map[string]*Schema{
			"timeseries": {
				Properties: map[string]Property{
					"granularity": {Type: TypeInteger, Default: 60, HasDefault: true},
				},
			},
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		body    map[string]any
		wantErr string
		check   func(assert *assert.Assertions, req *Request)
	}{
		{
			name: "defaults applied",
			body: map[string]any{},
			check: func(assert *assert.Assertions, req *Request) {
				assert.Equal([]any{}, req.Query["conditions"])
				assert.Equal(60, req.Extensions["timeseries"]["granularity"])
			},
		},
		{
			name: "values split into parts",
			body: map[string]any{"limit": 10, "granularity": 3600},
			check: func(assert *assert.Assertions, req *Request) {
				assert.Equal(10, req.Query["limit"])
				assert.Equal(3600, req.Extensions["timeseries"]["granularity"])
			},
		},
		{
			name:    "unknown key rejected",
			body:    map[string]any{"limti": 10},
			wantErr: `unknown property "limti"`,
		},
		{
			name:    "type mismatch rejected",
			body:    map[string]any{"limit": "ten"},
			wantErr: "expected integer",
		},
		{
			name: "json numbers accepted as integers",
			body: map[string]any{"limit": float64(10)},
			check: func(assert *assert.Assertions, req *Request) {
				assert.Equal(float64(10), req.Query["limit"])
			},
		},
		{
			name:    "fractional number is not an integer",
			body:    map[string]any{"limit": 10.5},
			wantErr: "expected integer",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			req, err := schema.Validate(tt.body)
			if tt.wantErr != "" {
				assert.Error(err)
				assert.Contains(err.Error(), tt.wantErr)
				return
			}
			if !assert.NoError(err) {
				return
			}
			tt.check(assert, req)
		})
	}
}

func TestValidate_Required(t *testing.T) {
	assert := assert.New(t)

	schema, err := NewRequestSchema(
		&Schema{Properties: map[string]Property{"from_date": {Type: TypeString}}, Required: []string{"from_date"}},
		nil,
	)
	if !assert.NoError(err) {
		return
	}
	_, err = schema.Validate(map[string]any{})
	assert.Error(err)
	assert.Contains(err.Error(), "from_date is required")
}

func TestTemplate(t *testing.T) {
	assert := assert.New(t)

	template := Snuba().Template()
	assert.Equal([]any{}, template["conditions"])
	assert.Equal(false, template["turbo"])
	assert.Equal(3600, template["granularity"])
	assert.NotContains(template, "limit")
}

func TestBuild(t *testing.T) {
	assert := assert.New(t)

	q, settings, err := Build(map[string]any{
		"selected_columns": []any{"event_id", "tags[environment]"},
		"aggregations":     []any{[]any{"count()", "", "count"}, []any{"uniq", "user", "unique_users"}},
		"conditions": []any{
			[]any{"platform", "=", "python"},
			[]any{"group_id", "IN", []any{float64(1), float64(2)}},
		},
		"groupby":    []any{"platform"},
		"orderby":    "-count",
		"limit":      float64(100),
		"project":    []any{float64(1), float64(2)},
		"from_date":  "2026-08-01T00:00:00",
		"to_date":    "2026-08-02T00:00:00",
		"consistent": true,
	}, "events", "timestamp")
	if !assert.NoError(err) {
		return
	}

	assert.Equal("events", q.Entity)
	assert.True(settings.Consistent)
	assert.False(settings.Turbo)

	// selected columns, aggregations, then groupby columns
	assert.Len(q.Selected, 5)
	assert.Equal("event_id", q.Selected[0].Name)
	sub, ok := q.Selected[1].Expression.(*query.SubscriptableReference)
	if assert.True(ok) {
		assert.Equal("tags", sub.Column.ColumnName)
		assert.Equal("environment", sub.Key.Value)
	}
	count, ok := q.Selected[2].Expression.(*query.FunctionCall)
	if assert.True(ok) {
		assert.Equal("count", count.Name)
		assert.Empty(count.Parameters)
	}
	uniq, ok := q.Selected[3].Expression.(*query.FunctionCall)
	if assert.True(ok) {
		assert.Equal("uniq", uniq.Name)
		assert.Len(uniq.Parameters, 1)
	}

	assert.Len(q.GroupBy, 1)
	assert.Len(q.OrderBy, 1)
	assert.Equal(query.OrderDesc, q.OrderBy[0].Direction)

	if assert.NotNil(q.Limit) {
		assert.Equal(100, *q.Limit)
	}
	if assert.NotNil(q.Granularity) {
		assert.Equal(3600, *q.Granularity)
	}

	// conditions: platform, group_id, the time window and the projects,
	// all joined by and()
	conditions := query.FirstLevelConditions(q.Condition)
	assert.Len(conditions, 5)
	assert.True(query.IsBinaryCondition(conditions[0], query.FnEquals))
	assert.True(query.IsBinaryCondition(conditions[1], query.FnIn))
	window, ok := conditions[2].(*query.FunctionCall)
	if assert.True(ok) {
		assert.Equal(query.FnGreaterOrEquals, window.Name)
		lit, ok := window.Parameters[1].(*query.Literal)
		if assert.True(ok) {
			assert.Equal(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), lit.Value)
		}
	}
	assert.True(query.IsBinaryCondition(conditions[4], query.FnIn))
}

func TestBuild_CurriedAggregation(t *testing.T) {
	assert := assert.New(t)

	q, _, err := Build(map[string]any{
		"aggregations": []any{[]any{"quantile(0.9)", "duration", "p90"}},
		"from_date":    "2026-08-01T00:00:00",
		"to_date":      "2026-08-02T00:00:00",
		"project":      float64(1),
	}, "transactions", "finish_ts")
	if !assert.NoError(err) {
		return
	}
	curried, ok := q.Selected[0].Expression.(*query.CurriedFunctionCall)
	if assert.True(ok) {
		assert.Equal("quantile", curried.InnerFunction.Name)
		assert.Equal("p90", curried.Alias)
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    map[string]any
		wantErr string
	}{
		{
			name: "inverted time window",
			body: map[string]any{
				"from_date": "2026-08-02T00:00:00",
				"to_date":   "2026-08-01T00:00:00",
				"project":   float64(1),
			},
			wantErr: "must precede",
		},
		{
			name: "unknown operator",
			body: map[string]any{
				"conditions": []any{[]any{"platform", "~", "python"}},
				"from_date":  "2026-08-01T00:00:00",
				"to_date":    "2026-08-02T00:00:00",
				"project":    float64(1),
			},
			wantErr: "unsupported condition operator",
		},
		{
			name: "missing time window",
			body: map[string]any{
				"project": float64(1),
			},
			wantErr: "from_date is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			_, _, err := Build(tt.body, "events", "timestamp")
			assert.Error(err)
			assert.Contains(err.Error(), tt.wantErr)
		})
	}
}
