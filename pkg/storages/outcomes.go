package storages

import (
	"github.com/getsentry/snuba/pkg/clickhouse/columns"
	"github.com/getsentry/snuba/pkg/clickhouse/schema"
)

const (
	OutcomesRawStorage    StorageKey = "outcomes_raw"
	OutcomesHourlyStorage StorageKey = "outcomes_hourly"
)

// OutcomesRaw holds one row per ingestion outcome and is what the consumer
// writes to.
var OutcomesRaw = Register(&Storage{
	Key:        OutcomesRawStorage,
	StorageSet: SetOutcomes,
	Table: &schema.Table{
		Columns: columns.NewColumnSet(
			columns.Column{Name: "org_id", Type: columns.UInt{Bits: 64}},
			columns.Column{Name: "project_id", Type: columns.UInt{Bits: 64}},
			columns.Column{Name: "key_id", Type: columns.Nullable{Inner: columns.UInt{Bits: 64}}},
			columns.Column{Name: "timestamp", Type: columns.DateTime{}},
			columns.Column{Name: "outcome", Type: columns.UInt{Bits: 8}},
			columns.Column{Name: "reason", Type: columns.LowCardinality{Inner: columns.Nullable{Inner: columns.StringType{}}}},
			columns.Column{Name: "event_id", Type: columns.Nullable{Inner: columns.UUID{}}},
		),
		LocalName:   "outcomes_raw_local",
		DistName:    "outcomes_raw_dist",
		ShardingKey: "org_id",
		Engine: schema.MergeTree{
			OrderBy:     "(org_id, project_id, timestamp)",
			PartitionBy: "toMonday(timestamp)",
			Settings:    map[string]string{"index_granularity": "16384"},
		},
		Writable: true,
	},
	PrewhereCandidates: []string{"project_id", "org_id"},
	Writer: &WriterSpec{
		Table:           "outcomes_raw_local",
		RequiredColumns: []string{"org_id", "project_id", "timestamp", "outcome"},
	},
})

// OutcomesHourly is the rollup the product reads; a materialized view
// maintained by migrations sums raw rows into it.
var OutcomesHourly = Register(&Storage{
	Key:        OutcomesHourlyStorage,
	StorageSet: SetOutcomes,
	Table: &schema.Table{
		Columns: columns.NewColumnSet(
			columns.Column{Name: "org_id", Type: columns.UInt{Bits: 64}},
			columns.Column{Name: "project_id", Type: columns.UInt{Bits: 64}},
			columns.Column{Name: "key_id", Type: columns.UInt{Bits: 64}},
			columns.Column{Name: "timestamp", Type: columns.DateTime{}},
			columns.Column{Name: "outcome", Type: columns.UInt{Bits: 8}},
			columns.Column{Name: "reason", Type: columns.LowCardinality{Inner: columns.StringType{}}},
			columns.Column{Name: "times_seen", Type: columns.UInt{Bits: 64}},
		),
		LocalName:   "outcomes_hourly_local",
		DistName:    "outcomes_hourly_dist",
		ShardingKey: "org_id",
		Engine: schema.SummingMergeTree{MergeTree: schema.MergeTree{
			OrderBy:     "(org_id, project_id, key_id, outcome, reason, timestamp)",
			PartitionBy: "toMonday(timestamp)",
			Settings:    map[string]string{"index_granularity": "256"},
		}},
	},
	PrewhereCandidates: []string{"project_id", "org_id"},
})
