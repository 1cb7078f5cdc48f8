package processors

import (
	"context"

	"github.com/getsentry/snuba/pkg/clickhouse"
	"github.com/getsentry/snuba/pkg/query"
)

// Prewhere moves selective top-level conditions into the PREWHERE clause.
// Candidates are listed by the storage in priority order; a condition is
// eligible when it is a leaf of the top-level AND chain and references a
// candidate column. Conditions buried under an OR stay where they are.
type Prewhere struct {
	// Candidates are column names in descending selectivity order.
	Candidates []string

	// MaxConditions caps how many conditions move. Zero means one.
	MaxConditions int
}

func (p Prewhere) Process(_ context.Context, q *clickhouse.Query, _ query.RequestSettings) error {
	if q.Condition == nil || len(p.Candidates) == 0 || q.Prewhere != nil {
		return nil
	}
	maxConditions := p.MaxConditions
	if maxConditions <= 0 {
		maxConditions = 1
	}

	conditions := query.FirstLevelConditions(q.Condition)
	moved := make(map[int]bool, len(conditions))
	var prewhere []query.Expression

	for _, candidate := range p.Candidates {
		if len(prewhere) >= maxConditions {
			break
		}
		for i, cond := range conditions {
			if moved[i] || len(prewhere) >= maxConditions {
				continue
			}
			if isComparison(cond) && referencesColumn(cond, candidate) {
				moved[i] = true
				prewhere = append(prewhere, cond)
			}
		}
	}
	if len(prewhere) == 0 {
		return nil
	}

	var remaining []query.Expression
	for i, cond := range conditions {
		if !moved[i] {
			remaining = append(remaining, cond)
		}
	}
	q.Condition = query.And(remaining...)
	q.Prewhere = query.And(prewhere...)
	return nil
}

// prewhereOperators are the condition functions that may move. Boolean
// combinators are absent, so an or(...) chain never moves wholesale.
var prewhereOperators = map[string]struct{}{
	query.FnEquals:          {},
	query.FnNotEquals:       {},
	query.FnGreater:         {},
	query.FnGreaterOrEquals: {},
	query.FnLess:            {},
	query.FnLessOrEquals:    {},
	query.FnIn:              {},
	query.FnLike:            {},
	query.FnIsNull:          {},
	query.FnIsNotNull:       {},
}

func isComparison(e query.Expression) bool {
	fn, ok := e.(*query.FunctionCall)
	if !ok {
		return false
	}
	_, ok = prewhereOperators[fn.Name]
	return ok
}

func referencesColumn(e query.Expression, name string) bool {
	found := false
	e.Iterate(func(node query.Expression) {
		if c, ok := node.(*query.Column); ok && c.ColumnName == name {
			found = true
		}
	})
	return found
}
