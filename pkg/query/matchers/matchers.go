// Package matchers is a pattern DSL over the query AST. Patterns describe
// the shape of a subtree and capture named pieces of it; processors use them
// to find the expressions they rewrite. Matching never errors, a non-match
// is a nil result.
package matchers

import (
	"github.com/getsentry/snuba/pkg/query"
)

type (
	// Pattern matches values of type T, either AST expressions or the
	// scalar fields of a node (names, aliases, literal values).
	Pattern[T any] interface {
		Match(t T) *MatchResult
	}

	// MatchResult maps capture names to what a Param matched. When two
	// branches capture the same name, the earlier capture wins.
	MatchResult struct {
		results map[string]any
	}
)

func NewMatchResult() *MatchResult {
	return &MatchResult{results: make(map[string]any)}
}

func (m *MatchResult) set(name string, value any) {
	if _, ok := m.results[name]; !ok {
		m.results[name] = value
	}
}

// Merge folds other's captures into m, keeping m's value on conflicts, and
// returns m.
func (m *MatchResult) Merge(other *MatchResult) *MatchResult {
	if other == nil {
		return m
	}
	for k, v := range other.results {
		m.set(k, v)
	}
	return m
}

func (m *MatchResult) Expression(name string) (query.Expression, bool) {
	e, ok := m.results[name].(query.Expression)
	return e, ok
}

func (m *MatchResult) Column(name string) (*query.Column, bool) {
	c, ok := m.results[name].(*query.Column)
	return c, ok
}

func (m *MatchResult) Scalar(name string) (any, bool) {
	v, ok := m.results[name]
	return v, ok
}

func (m *MatchResult) String(name string) (string, bool) {
	s, ok := m.results[name].(string)
	return s, ok
}

type paramPattern[T any] struct {
	name    string
	pattern Pattern[T]
}

// Param captures whatever pattern matches under name.
func Param[T any](name string, pattern Pattern[T]) Pattern[T] {
	return paramPattern[T]{name: name, pattern: pattern}
}

func (p paramPattern[T]) Match(t T) *MatchResult {
	result := p.pattern.Match(t)
	if result == nil {
		return nil
	}
	out := NewMatchResult()
	out.set(p.name, t)
	return out.Merge(result)
}

type anyPattern[T any] struct{}

// Any matches every value of type T.
func Any[T any]() Pattern[T] { return anyPattern[T]{} }

// AnyExpression matches every AST node.
func AnyExpression() Pattern[query.Expression] { return Any[query.Expression]() }

func (anyPattern[T]) Match(T) *MatchResult { return NewMatchResult() }

type orPattern[T any] []Pattern[T]

// Or matches the first of its alternatives that matches.
func Or[T any](patterns ...Pattern[T]) Pattern[T] { return orPattern[T](patterns) }

func (p orPattern[T]) Match(t T) *MatchResult {
	for _, alt := range p {
		if result := alt.Match(t); result != nil {
			return result
		}
	}
	return nil
}
