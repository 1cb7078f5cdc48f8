package processors

import (
	"context"

	"github.com/getsentry/snuba/pkg/clickhouse"
	"github.com/getsentry/snuba/pkg/metrics"
	"github.com/getsentry/snuba/pkg/query"
	"github.com/getsentry/snuba/pkg/state"
)

// PostReplacementConsistency keeps queries consistent with in-flight event
// replacements. The replacer flags affected projects in redis; queries
// against those projects either exclude the replaced groups or, past the
// exclusion cap, read the table FINAL to collapse unmerged rows. Turbo
// queries opt out.
type PostReplacementConsistency struct {
	Store   *state.Store
	Metrics *metrics.Scope

	// MaxExcludedGroups is the exclusion cap above which the query goes
	// FINAL instead. Zero means 1000.
	MaxExcludedGroups int
}

func (p PostReplacementConsistency) Process(ctx context.Context, q *clickhouse.Query, settings query.RequestSettings) error {
	if settings.Turbo || p.Store == nil {
		return nil
	}

	projects := projectIDs(q)
	if len(projects) == 0 {
		return nil
	}

	needsFinal, excluded, err := p.Store.QueryFlags(ctx, projects)
	if err != nil {
		// replacement state being unreachable must not fail reads; the
		// query just loses consistency with concurrent replacements
		p.count("state_error")
		return nil
	}

	maxExcluded := p.MaxExcludedGroups
	if maxExcluded <= 0 {
		maxExcluded = 1000
	}

	switch {
	case needsFinal || len(excluded) > maxExcluded:
		q.Final = true
		p.count("final")

	case len(excluded) > 0:
		members := make([]query.Expression, len(excluded))
		for i, g := range excluded {
			members[i] = &query.Literal{Value: g}
		}
		exclusion := query.BinaryCondition(
			query.FnNotIn,
			&query.FunctionCall{
				Name:       "assumeNotNull",
				Parameters: []query.Expression{&query.Column{ColumnName: "group_id"}},
			},
			&query.FunctionCall{Name: "tuple", Parameters: members},
		)
		q.Condition = query.And(q.Condition, exclusion)
		p.count("excluded_groups")

	default:
		p.count("none")
	}
	return nil
}

func (p PostReplacementConsistency) count(outcome string) {
	if p.Metrics != nil {
		p.Metrics.Increment("consistency_outcome", metrics.Tags{"outcome": outcome})
	}
}

// projectIDs collects the project ids the query is pinned to through
// equals/in conditions on project_id.
func projectIDs(q *clickhouse.Query) []int64 {
	var ids []int64
	seen := make(map[int64]struct{})
	add := func(v any) {
		var id int64
		switch v := v.(type) {
		case int64:
			id = v
		case float64:
			// ids straight out of a decoded JSON body
			if v != float64(int64(v)) {
				return
			}
			id = int64(v)
		default:
			return
		}
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	for _, cond := range query.FirstLevelConditions(q.Condition) {
		fn, ok := cond.(*query.FunctionCall)
		if !ok || len(fn.Parameters) != 2 {
			continue
		}
		col, ok := fn.Parameters[0].(*query.Column)
		if !ok || col.ColumnName != "project_id" {
			continue
		}
		switch fn.Name {
		case query.FnEquals:
			if lit, ok := fn.Parameters[1].(*query.Literal); ok {
				add(lit.Value)
			}
		case query.FnIn:
			if tuple, ok := fn.Parameters[1].(*query.FunctionCall); ok {
				for _, member := range tuple.Parameters {
					if lit, ok := member.(*query.Literal); ok {
						add(lit.Value)
					}
				}
			}
		}
	}
	return ids
}
