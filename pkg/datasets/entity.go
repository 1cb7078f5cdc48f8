// Package datasets is the logical data model: entities bind abstract
// column sets to storages through translation mappers, datasets group
// entities, and the pipeline runs a request through validation,
// processing, translation and SQL generation.
package datasets

import (
	"fmt"
	"sort"

	"github.com/getsentry/snuba/pkg/clickhouse/columns"
	"github.com/getsentry/snuba/pkg/processors"
	"github.com/getsentry/snuba/pkg/query"
	"github.com/getsentry/snuba/pkg/query/translate"
	"github.com/getsentry/snuba/pkg/storages"
)

type Entity struct {
	Name string

	// Storage is where queries go; ReadOnlyStorage, when set, serves
	// queries that did not ask for consistency.
	Storage         storages.StorageKey
	ReadOnlyStorage storages.StorageKey

	// Columns is the abstract column set callers address.
	Columns *columns.ColumnSet

	Processors []processors.Logical

	// Mappers translate entity expressions to the storage schema.
	Mappers translate.Mappers

	// RequiredColumns must be constrained in every query's top-level
	// conditions; TimeColumn additionally bounds the scan.
	RequiredColumns []string
	TimeColumn      string
}

// StorageFor picks the storage serving a request: the read-only replica
// when one exists and the caller did not ask for consistency.
func (e *Entity) StorageFor(settings query.RequestSettings) storages.StorageKey {
	if e.ReadOnlyStorage != "" && !settings.Consistent {
		return e.ReadOnlyStorage
	}
	return e.Storage
}

// Validate checks the query constrains every required column at the top
// level of its condition.
func (e *Entity) Validate(q *query.Query) error {
	required := make(map[string]bool, len(e.RequiredColumns))
	for _, c := range e.RequiredColumns {
		required[c] = false
	}

	for _, cond := range query.FirstLevelConditions(q.Condition) {
		cond.Iterate(func(node query.Expression) {
			if c, ok := node.(*query.Column); ok {
				if _, tracked := required[c.ColumnName]; tracked {
					required[c.ColumnName] = true
				}
			}
		})
	}

	var missing []string
	for col, seen := range required {
		if !seen {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return processors.NewUserError(
			"query on entity %s must filter on: %v", e.Name, missing)
	}
	return nil
}

var entityRegistry = make(map[string]*Entity)

func registerEntity(e *Entity) *Entity {
	if _, ok := entityRegistry[e.Name]; ok {
		panic(fmt.Errorf("entity %q registered twice", e.Name))
	}
	entityRegistry[e.Name] = e
	return e
}

// GetEntity looks an entity up by name.
func GetEntity(name string) (*Entity, error) {
	e, ok := entityRegistry[name]
	if !ok {
		return nil, fmt.Errorf("unknown entity %q (known: %v)", name, entityNames())
	}
	return e, nil
}

func entityNames() []string {
	names := make([]string, 0, len(entityRegistry))
	for name := range entityRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
