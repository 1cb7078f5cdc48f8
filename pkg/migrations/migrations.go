// Package migrations manages ClickHouse schema evolution: per-group
// migration lists, dependency ordering across groups, and a runner that
// records progress in a status table.
package migrations

import (
	"fmt"
	"sort"

	"github.com/dominikbraun/graph"
)

type (
	Group string

	Migration struct {
		ID    string
		Group Group

		// Blocking migrations rewrite data or otherwise require the
		// consumers for the group to be stopped first.
		Blocking bool

		// DependsOn lists migration IDs from other groups that must have
		// run before this one.
		DependsOn []string

		Forward  []Operation
		Backward []Operation
	}

	Status string
)

const (
	GroupSystem       Group = "system"
	GroupEvents       Group = "events"
	GroupTransactions Group = "transactions"
	GroupOutcomes     Group = "outcomes"
	GroupSessions     Group = "sessions"
)

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

var (
	registered []Migration
	byID       = make(map[string]int)
)

// Register adds a migration to the global list. Duplicate IDs are a
// programming error.
func Register(m Migration) {
	if _, dup := byID[m.ID]; dup {
		panic(fmt.Sprintf("migration %q registered twice", m.ID))
	}
	byID[m.ID] = len(registered)
	registered = append(registered, m)
}

// Get looks a migration up by ID.
func Get(id string) (Migration, bool) {
	i, ok := byID[id]
	if !ok {
		return Migration{}, false
	}
	return registered[i], true
}

// Groups returns every group with registered migrations, sorted.
func Groups() []Group {
	seen := make(map[Group]bool)
	var out []Group
	for _, m := range registered {
		if !seen[m.Group] {
			seen[m.Group] = true
			out = append(out, m.Group)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// All returns every registered migration in run order. Within a group
// migrations run in ID order; DependsOn adds cross-group edges. A
// dependency cycle is an error.
func All() ([]Migration, error) {
	return order(registered)
}

// ForGroup returns the group's migrations in run order.
func ForGroup(group Group) ([]Migration, error) {
	all, err := order(registered)
	if err != nil {
		return nil, err
	}
	var out []Migration
	for _, m := range all {
		if m.Group == group {
			out = append(out, m)
		}
	}
	return out, nil
}

func order(ms []Migration) ([]Migration, error) {
	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())

	index := make(map[string]Migration, len(ms))
	perGroup := make(map[Group][]string)
	for _, m := range ms {
		if err := g.AddVertex(m.ID); err != nil {
			return nil, fmt.Errorf("adding migration %q: %w", m.ID, err)
		}
		index[m.ID] = m
		perGroup[m.Group] = append(perGroup[m.Group], m.ID)
	}

	addEdge := func(from, to string) error {
		if err := g.AddEdge(from, to); err != nil {
			return fmt.Errorf("migration dependency %s -> %s: %w", from, to, err)
		}
		return nil
	}

	for _, ids := range perGroup {
		sort.Strings(ids)
		for i := 1; i < len(ids); i++ {
			if err := addEdge(ids[i-1], ids[i]); err != nil {
				return nil, err
			}
		}
	}
	for _, m := range ms {
		for _, dep := range m.DependsOn {
			if _, known := index[dep]; !known {
				return nil, fmt.Errorf("migration %q depends on unknown migration %q", m.ID, dep)
			}
			if err := addEdge(dep, m.ID); err != nil {
				return nil, err
			}
		}
	}

	ids, err := graph.StableTopologicalSort(g, func(a, b string) bool { return a < b })
	if err != nil {
		return nil, fmt.Errorf("ordering migrations: %w", err)
	}
	out := make([]Migration, len(ids))
	for i, id := range ids {
		out[i] = index[id]
	}
	return out, nil
}
