package migrations

import (
	"fmt"

	"github.com/getsentry/snuba/pkg/clickhouse/columns"
	"github.com/getsentry/snuba/pkg/clickhouse/schema"
)

type (
	// Operation is one DDL statement a migration applies.
	Operation interface {
		Format() string
	}

	CreateTable struct {
		Name    string
		Columns *columns.ColumnSet
		Engine  schema.Engine
	}

	DropTable struct {
		Name string
	}

	AddColumn struct {
		Table  string
		Column columns.Column

		// After places the column; empty appends at the end.
		After string
	}

	DropColumn struct {
		Table  string
		Column string
	}

	ModifyColumn struct {
		Table  string
		Column columns.Column
	}

	// RunSQL runs a raw statement for the operations the typed forms do
	// not cover.
	RunSQL struct {
		Statement string
	}
)

func (op CreateTable) Format() string {
	table := schema.Table{
		Columns:   op.Columns,
		LocalName: op.Name,
		Engine:    op.Engine,
	}
	return table.CreateLocalDDL()
}

func (op DropTable) Format() string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", op.Name)
}

func (op AddColumn) Format() string {
	out := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s", op.Table, op.Column.DDL())
	if op.After != "" {
		out += " AFTER " + op.After
	}
	return out
}

func (op DropColumn) Format() string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN IF EXISTS %s", op.Table, op.Column)
}

func (op ModifyColumn) Format() string {
	return fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", op.Table, op.Column.DDL())
}

func (op RunSQL) Format() string {
	return op.Statement
}
