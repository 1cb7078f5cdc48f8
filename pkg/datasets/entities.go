package datasets

import (
	"github.com/getsentry/snuba/pkg/clickhouse/columns"
	"github.com/getsentry/snuba/pkg/processors"
	"github.com/getsentry/snuba/pkg/query/translate"
	"github.com/getsentry/snuba/pkg/storages"
)

func tagMappers() translate.Mappers {
	return translate.Mappers{
		Subscriptables: []translate.SubscriptableMapper{
			translate.SubscriptableToFunction{FromColumn: "tags", KeyColumn: "tags.key", ValueColumn: "tags.value"},
			translate.SubscriptableToFunction{FromColumn: "contexts", KeyColumn: "contexts.key", ValueColumn: "contexts.value"},
		},
	}
}

var EventsEntity = registerEntity(&Entity{
	Name:            "events",
	Storage:         storages.EventsStorage,
	ReadOnlyStorage: storages.EventsROStorage,
	Columns: columns.NewColumnSet(
		columns.Column{Name: "event_id", Type: columns.UUID{}},
		columns.Column{Name: "project_id", Type: columns.UInt{Bits: 64}},
		columns.Column{Name: "group_id", Type: columns.Nullable{Inner: columns.UInt{Bits: 64}}},
		columns.Column{Name: "timestamp", Type: columns.DateTime{}},
		columns.Column{Name: "platform", Type: columns.StringType{}},
		columns.Column{Name: "environment", Type: columns.Nullable{Inner: columns.StringType{}}},
		columns.Column{Name: "release", Type: columns.Nullable{Inner: columns.StringType{}}},
		columns.Column{Name: "user", Type: columns.StringType{}},
		columns.Column{Name: "message", Type: columns.StringType{}},
		columns.Column{Name: "tags", Type: columns.Nested{Columns: []columns.Column{
			{Name: "key", Type: columns.StringType{}},
			{Name: "value", Type: columns.StringType{}},
		}}},
	),
	Processors: []processors.Logical{
		processors.BasicFunctions{},
		processors.TimeSeries{TimeColumn: "timestamp"},
	},
	Mappers:         tagMappers(),
	RequiredColumns: []string{"project_id"},
	TimeColumn:      "timestamp",
})

var TransactionsEntity = registerEntity(&Entity{
	Name:    "transactions",
	Storage: storages.TransactionsStorage,
	Columns: columns.NewColumnSet(
		columns.Column{Name: "event_id", Type: columns.UUID{}},
		columns.Column{Name: "project_id", Type: columns.UInt{Bits: 64}},
		columns.Column{Name: "transaction", Type: columns.StringType{}},
		columns.Column{Name: "trace_id", Type: columns.UUID{}},
		columns.Column{Name: "span_id", Type: columns.UInt{Bits: 64}},
		columns.Column{Name: "duration", Type: columns.UInt{Bits: 32}},
		columns.Column{Name: "finish_ts", Type: columns.DateTime{}},
		columns.Column{Name: "release", Type: columns.Nullable{Inner: columns.StringType{}}},
		columns.Column{Name: "tags", Type: columns.Nested{Columns: []columns.Column{
			{Name: "key", Type: columns.StringType{}},
			{Name: "value", Type: columns.StringType{}},
		}}},
	),
	Processors: []processors.Logical{
		processors.BasicFunctions{},
		processors.TimeSeries{TimeColumn: "finish_ts"},
	},
	Mappers: translate.Concat(translate.Mappers{
		Columns: []translate.ColumnMapper{
			translate.ColumnToColumn{FromColumn: "transaction", ToColumn: "transaction_name"},
		},
	}, tagMappers()),
	RequiredColumns: []string{"project_id"},
	TimeColumn:      "finish_ts",
})

var OutcomesEntity = registerEntity(&Entity{
	Name:    "outcomes",
	Storage: storages.OutcomesHourlyStorage,
	Columns: columns.NewColumnSet(
		columns.Column{Name: "org_id", Type: columns.UInt{Bits: 64}},
		columns.Column{Name: "project_id", Type: columns.UInt{Bits: 64}},
		columns.Column{Name: "key_id", Type: columns.UInt{Bits: 64}},
		columns.Column{Name: "timestamp", Type: columns.DateTime{}},
		columns.Column{Name: "outcome", Type: columns.UInt{Bits: 8}},
		columns.Column{Name: "reason", Type: columns.StringType{}},
		columns.Column{Name: "times_seen", Type: columns.UInt{Bits: 64}},
	),
	Processors: []processors.Logical{
		processors.TimeSeries{TimeColumn: "timestamp"},
	},
	RequiredColumns: []string{"org_id"},
	TimeColumn:      "timestamp",
})

// OutcomesRawEntity reads the unrolled rows; times_seen maps to a constant
// since every raw row is one outcome.
var OutcomesRawEntity = registerEntity(&Entity{
	Name:    "outcomes_raw",
	Storage: storages.OutcomesRawStorage,
	Columns: columns.NewColumnSet(
		columns.Column{Name: "org_id", Type: columns.UInt{Bits: 64}},
		columns.Column{Name: "project_id", Type: columns.UInt{Bits: 64}},
		columns.Column{Name: "key_id", Type: columns.UInt{Bits: 64}},
		columns.Column{Name: "timestamp", Type: columns.DateTime{}},
		columns.Column{Name: "outcome", Type: columns.UInt{Bits: 8}},
		columns.Column{Name: "reason", Type: columns.StringType{}},
		columns.Column{Name: "times_seen", Type: columns.UInt{Bits: 64}},
	),
	Processors: []processors.Logical{
		processors.TimeSeries{TimeColumn: "timestamp"},
	},
	Mappers: translate.Mappers{
		Columns: []translate.ColumnMapper{
			translate.ColumnToLiteral{FromColumn: "times_seen", Value: int64(1)},
		},
	},
	RequiredColumns: []string{"org_id"},
	TimeColumn:      "timestamp",
})

var SessionsEntity = registerEntity(&Entity{
	Name:    "sessions",
	Storage: storages.SessionsRawStorage,
	Columns: columns.NewColumnSet(
		columns.Column{Name: "session_id", Type: columns.UUID{}},
		columns.Column{Name: "org_id", Type: columns.UInt{Bits: 64}},
		columns.Column{Name: "project_id", Type: columns.UInt{Bits: 64}},
		columns.Column{Name: "started", Type: columns.DateTime{}},
		columns.Column{Name: "duration", Type: columns.UInt{Bits: 32}},
		columns.Column{Name: "status", Type: columns.UInt{Bits: 8}},
		columns.Column{Name: "errors", Type: columns.UInt{Bits: 16}},
		columns.Column{Name: "release", Type: columns.StringType{}},
		columns.Column{Name: "environment", Type: columns.StringType{}},
	),
	Processors: []processors.Logical{
		processors.BasicFunctions{},
		processors.TimeSeries{TimeColumn: "started"},
	},
	RequiredColumns: []string{"project_id"},
	TimeColumn:      "started",
})
