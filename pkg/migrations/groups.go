package migrations

import (
	"github.com/getsentry/snuba/pkg/clickhouse/columns"
	"github.com/getsentry/snuba/pkg/storages"
)

// statusTableName is where the runner records migration progress. The
// system group creates it; the runner also bootstraps it directly so a
// fresh cluster can record that very migration.
const statusTableName = "migrations_local"

func statusTableOp() CreateTable {
	return CreateTable{
		Name:    statusTableName,
		Columns: statusColumns(),
		Engine:  statusEngine(),
	}
}

func createOps(key storages.StorageKey) []Operation {
	s, err := storages.Get(key)
	if err != nil {
		panic(err)
	}
	return []Operation{CreateTable{
		Name:    s.Table.LocalName,
		Columns: s.Table.Columns,
		Engine:  s.Table.Engine,
	}}
}

func dropOps(key storages.StorageKey) []Operation {
	s, err := storages.Get(key)
	if err != nil {
		panic(err)
	}
	return []Operation{DropTable{Name: s.Table.LocalName}}
}

func init() {
	Register(Migration{
		ID:       "0001_migrations",
		Group:    GroupSystem,
		Forward:  []Operation{statusTableOp()},
		Backward: []Operation{DropTable{Name: statusTableName}},
	})

	Register(Migration{
		ID:       "0001_events_initial",
		Group:    GroupEvents,
		Forward:  createOps(storages.EventsStorage),
		Backward: dropOps(storages.EventsStorage),
	})
	Register(Migration{
		ID:    "0002_events_http_method",
		Group: GroupEvents,
		Forward: []Operation{AddColumn{
			Table:  "errors_local",
			Column: columns.Column{Name: "http_method", Type: columns.Nullable{Inner: columns.StringType{}}},
			After:  "sdk_name",
		}},
		Backward: []Operation{DropColumn{Table: "errors_local", Column: "http_method"}},
	})

	Register(Migration{
		ID:       "0001_transactions_initial",
		Group:    GroupTransactions,
		Forward:  createOps(storages.TransactionsStorage),
		Backward: dropOps(storages.TransactionsStorage),
	})

	Register(Migration{
		ID:    "0001_outcomes_initial",
		Group: GroupOutcomes,
		Forward: append(
			append(createOps(storages.OutcomesRawStorage), createOps(storages.OutcomesHourlyStorage)...),
			RunSQL{Statement: outcomesViewSQL},
		),
		Backward: append(
			[]Operation{DropTable{Name: "outcomes_mv_hourly_local"}},
			append(dropOps(storages.OutcomesHourlyStorage), dropOps(storages.OutcomesRawStorage)...)...,
		),
	})

	Register(Migration{
		ID:       "0001_sessions_initial",
		Group:    GroupSessions,
		Forward:  createOps(storages.SessionsRawStorage),
		Backward: dropOps(storages.SessionsRawStorage),
	})
}

const outcomesViewSQL = "CREATE MATERIALIZED VIEW IF NOT EXISTS outcomes_mv_hourly_local " +
	"TO outcomes_hourly_local " +
	"AS SELECT org_id, project_id, ifNull(key_id, 0) AS key_id, " +
	"toStartOfHour(timestamp) AS timestamp, outcome, ifNull(reason, 'none') AS reason, " +
	"count() AS times_seen " +
	"FROM outcomes_raw_local " +
	"GROUP BY org_id, project_id, key_id, timestamp, outcome, reason"
