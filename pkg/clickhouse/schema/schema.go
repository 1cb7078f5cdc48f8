// Package schema describes physical ClickHouse tables: their column sets,
// local and distributed names, and the engine DDL migrations create them
// with.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/getsentry/snuba/pkg/clickhouse/columns"
)

type (
	// Table is one logical table, present as a local table on every shard
	// and optionally as a Distributed table in clustered deployments.
	Table struct {
		Columns     *columns.ColumnSet
		LocalName   string
		DistName    string
		Engine      Engine
		ShardingKey string

		// Writable marks tables rows are inserted into, as opposed to
		// read-only views over another storage.
		Writable bool
	}

	// Engine renders the local table's ENGINE clause.
	Engine interface {
		DDL() string
	}

	MergeTree struct {
		OrderBy     string
		PartitionBy string
		SampleBy    string
		TTL         string
		Settings    map[string]string
	}

	ReplacingMergeTree struct {
		MergeTree
		VersionColumn string
	}

	SummingMergeTree struct {
		MergeTree
	}
)

// Name returns the table queries run against: the local table on a single
// node, the distributed table otherwise.
func (t *Table) Name(singleNode bool) string {
	if singleNode || t.DistName == "" {
		return t.LocalName
	}
	return t.DistName
}

// CreateLocalDDL renders the CREATE TABLE statement for the local table.
func (t *Table) CreateLocalDDL() string {
	return createTable(t.LocalName, t.Columns, t.Engine.DDL())
}

// CreateDistDDL renders the CREATE TABLE statement for the distributed
// table routing to the local one over cluster.
func (t *Table) CreateDistDDL(cluster, database string) string {
	key := t.ShardingKey
	if key == "" {
		key = "rand()"
	}
	engine := fmt.Sprintf("Distributed(%s, %s, %s, %s)", cluster, database, t.LocalName, key)
	return createTable(t.DistName, t.Columns, engine)
}

func createTable(name string, cols *columns.ColumnSet, engine string) string {
	defs := make([]string, 0, len(cols.Columns()))
	for _, c := range cols.Columns() {
		defs = append(defs, c.DDL())
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s) ENGINE = %s",
		name, strings.Join(defs, ", "), engine)
}

func (e MergeTree) DDL() string {
	return "MergeTree()" + e.clauses()
}

func (e ReplacingMergeTree) DDL() string {
	return fmt.Sprintf("ReplacingMergeTree(%s)%s", e.VersionColumn, e.clauses())
}

func (e SummingMergeTree) DDL() string {
	return "SummingMergeTree()" + e.clauses()
}

func (e MergeTree) clauses() string {
	sb := new(strings.Builder)
	if e.PartitionBy != "" {
		sb.WriteString(" PARTITION BY ")
		sb.WriteString(e.PartitionBy)
	}
	if e.OrderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(e.OrderBy)
	}
	if e.SampleBy != "" {
		sb.WriteString(" SAMPLE BY ")
		sb.WriteString(e.SampleBy)
	}
	if e.TTL != "" {
		sb.WriteString(" TTL ")
		sb.WriteString(e.TTL)
	}
	if len(e.Settings) > 0 {
		keys := make([]string, 0, len(e.Settings))
		for k := range e.Settings {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + e.Settings[k]
		}
		sb.WriteString(" SETTINGS ")
		sb.WriteString(strings.Join(parts, ", "))
	}
	return sb.String()
}
