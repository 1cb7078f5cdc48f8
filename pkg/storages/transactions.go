package storages

import (
	"github.com/getsentry/snuba/pkg/clickhouse/columns"
	"github.com/getsentry/snuba/pkg/clickhouse/schema"
	"github.com/getsentry/snuba/pkg/processors"
)

const TransactionsStorage StorageKey = "transactions"

var Transactions = Register(&Storage{
	Key:        TransactionsStorage,
	StorageSet: SetTransactions,
	Table: &schema.Table{
		Columns: columns.NewColumnSet(
			columns.Column{Name: "event_id", Type: columns.UUID{}},
			columns.Column{Name: "project_id", Type: columns.UInt{Bits: 64}},
			columns.Column{Name: "trace_id", Type: columns.UUID{}},
			columns.Column{Name: "span_id", Type: columns.UInt{Bits: 64}},
			columns.Column{Name: "transaction_name", Type: columns.LowCardinality{Inner: columns.StringType{}}},
			columns.Column{Name: "transaction_op", Type: columns.LowCardinality{Inner: columns.StringType{}}},
			columns.Column{Name: "transaction_status", Type: columns.UInt{Bits: 8}},
			columns.Column{Name: "start_ts", Type: columns.DateTime{}},
			columns.Column{Name: "finish_ts", Type: columns.DateTime{}},
			columns.Column{Name: "duration", Type: columns.UInt{Bits: 32}},
			columns.Column{Name: "platform", Type: columns.LowCardinality{Inner: columns.StringType{}}},
			columns.Column{Name: "environment", Type: columns.Nullable{Inner: columns.StringType{}}},
			columns.Column{Name: "release", Type: columns.Nullable{Inner: columns.StringType{}}},
			columns.Column{Name: "user", Type: columns.StringType{}},
			columns.Column{Name: "tags", Type: columns.Nested{Columns: []columns.Column{
				{Name: "key", Type: columns.StringType{}},
				{Name: "value", Type: columns.StringType{}},
			}}},
			columns.Column{Name: "contexts", Type: columns.Nested{Columns: []columns.Column{
				{Name: "key", Type: columns.StringType{}},
				{Name: "value", Type: columns.StringType{}},
			}}},
			columns.Column{Name: "retention_days", Type: columns.UInt{Bits: 16}},
			columns.Column{Name: "deleted", Type: columns.UInt{Bits: 8}},
		),
		LocalName:   "transactions_local",
		DistName:    "transactions_dist",
		ShardingKey: "cityHash64(event_id)",
		Engine: schema.ReplacingMergeTree{
			VersionColumn: "deleted",
			MergeTree: schema.MergeTree{
				OrderBy:     "(project_id, toStartOfDay(finish_ts), transaction_name, cityHash64(event_id))",
				PartitionBy: "(retention_days, toMonday(finish_ts))",
				SampleBy:    "cityHash64(event_id)",
				TTL:         "finish_ts + toIntervalDay(retention_days)",
				Settings:    map[string]string{"index_granularity": "8192"},
			},
		},
		Writable: true,
	},
	Processors: []processors.Storage{
		processors.NestedColumnPromoter{
			NestedColumn: "tags",
			Promoted: map[string]string{
				"environment": "environment",
				"release":     "release",
			},
			StringColumns: map[string]struct{}{},
		},
		processors.NewUUIDColumn("event_id", "trace_id"),
		processors.NewHexIntColumn("span_id"),
		processors.Prewhere{
			Candidates:    []string{"event_id", "transaction_name", "project_id"},
			MaxConditions: 1,
		},
	},
	PrewhereCandidates: []string{"event_id", "transaction_name", "project_id"},
	Writer: &WriterSpec{
		Table:           "transactions_local",
		RequiredColumns: []string{"event_id", "project_id", "start_ts", "finish_ts", "duration"},
	},
})
