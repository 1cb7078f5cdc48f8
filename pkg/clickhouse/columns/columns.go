// Package columns models ClickHouse column types and ordered column sets,
// with the Nested flattening the storage schemas rely on.
package columns

import (
	"fmt"
	"strings"
)

type (
	// Type renders to the ClickHouse type expression used in DDL.
	Type interface {
		String() string
	}

	Column struct {
		Name string
		Type Type

		// Materialized, when set, is the expression the column is
		// materialized from.
		Materialized string
	}

	StringType     struct{}
	FixedString    struct{ Length int }
	UInt           struct{ Bits int }
	Int            struct{ Bits int }
	Float          struct{ Bits int }
	DateTime       struct{}
	Date           struct{}
	UUID           struct{}
	IPv4           struct{}
	IPv6           struct{}
	Nullable       struct{ Inner Type }
	Array          struct{ Inner Type }
	LowCardinality struct{ Inner Type }

	// Nested is a ClickHouse Nested() column. In the flattened column set
	// it expands to parent.child Array columns.
	Nested struct {
		Columns []Column
	}
)

func (StringType) String() string       { return "String" }
func (t FixedString) String() string    { return fmt.Sprintf("FixedString(%d)", t.Length) }
func (t UInt) String() string           { return fmt.Sprintf("UInt%d", t.Bits) }
func (t Int) String() string            { return fmt.Sprintf("Int%d", t.Bits) }
func (t Float) String() string          { return fmt.Sprintf("Float%d", t.Bits) }
func (DateTime) String() string         { return "DateTime" }
func (Date) String() string             { return "Date" }
func (UUID) String() string             { return "UUID" }
func (IPv4) String() string             { return "IPv4" }
func (IPv6) String() string             { return "IPv6" }
func (t Nullable) String() string       { return fmt.Sprintf("Nullable(%s)", t.Inner) }
func (t Array) String() string          { return fmt.Sprintf("Array(%s)", t.Inner) }
func (t LowCardinality) String() string { return fmt.Sprintf("LowCardinality(%s)", t.Inner) }

func (t Nested) String() string {
	parts := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		parts[i] = c.Name + " " + c.Type.String()
	}
	return fmt.Sprintf("Nested(%s)", strings.Join(parts, ", "))
}

// DDL renders the column's definition clause.
func (c Column) DDL() string {
	out := c.Name + " " + c.Type.String()
	if c.Materialized != "" {
		out += " MATERIALIZED " + c.Materialized
	}
	return out
}

// ColumnSet is an ordered set of columns addressable by name. Lookup covers
// the flattened names, so a Nested tags column answers to tags.key too.
type ColumnSet struct {
	columns []Column
	flat    []Column
	byName  map[string]Column
}

func NewColumnSet(cols ...Column) *ColumnSet {
	cs := &ColumnSet{
		columns: cols,
		byName:  make(map[string]Column),
	}
	for _, c := range cols {
		if nested, ok := c.Type.(Nested); ok {
			for _, sub := range nested.Columns {
				flatCol := Column{
					Name: c.Name + "." + sub.Name,
					Type: Array{Inner: sub.Type},
				}
				cs.flat = append(cs.flat, flatCol)
				cs.byName[flatCol.Name] = flatCol
			}
			continue
		}
		cs.flat = append(cs.flat, c)
		cs.byName[c.Name] = c
	}
	return cs
}

// Columns returns the declared columns, Nested ones unexpanded.
func (cs *ColumnSet) Columns() []Column { return cs.columns }

// FlatColumns returns the columns with Nested ones expanded.
func (cs *ColumnSet) FlatColumns() []Column { return cs.flat }

// Get looks a column up by flattened name.
func (cs *ColumnSet) Get(name string) (Column, bool) {
	c, ok := cs.byName[name]
	return c, ok
}

// Concat returns a new set with other's columns appended.
func (cs *ColumnSet) Concat(other *ColumnSet) *ColumnSet {
	cols := make([]Column, 0, len(cs.columns)+len(other.columns))
	cols = append(cols, cs.columns...)
	cols = append(cols, other.columns...)
	return NewColumnSet(cols...)
}
