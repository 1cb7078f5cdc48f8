package storages

import (
	"github.com/getsentry/snuba/pkg/clickhouse/columns"
	"github.com/getsentry/snuba/pkg/clickhouse/schema"
	"github.com/getsentry/snuba/pkg/processors"
)

const SessionsRawStorage StorageKey = "sessions_raw"

var SessionsRaw = Register(&Storage{
	Key:        SessionsRawStorage,
	StorageSet: SetSessions,
	Table: &schema.Table{
		Columns: columns.NewColumnSet(
			columns.Column{Name: "session_id", Type: columns.UUID{}},
			columns.Column{Name: "distinct_id", Type: columns.UUID{}},
			columns.Column{Name: "org_id", Type: columns.UInt{Bits: 64}},
			columns.Column{Name: "project_id", Type: columns.UInt{Bits: 64}},
			columns.Column{Name: "started", Type: columns.DateTime{}},
			columns.Column{Name: "received", Type: columns.DateTime{}},
			columns.Column{Name: "duration", Type: columns.UInt{Bits: 32}},
			columns.Column{Name: "status", Type: columns.UInt{Bits: 8}},
			columns.Column{Name: "errors", Type: columns.UInt{Bits: 16}},
			columns.Column{Name: "release", Type: columns.LowCardinality{Inner: columns.StringType{}}},
			columns.Column{Name: "environment", Type: columns.LowCardinality{Inner: columns.StringType{}}},
			columns.Column{Name: "retention_days", Type: columns.UInt{Bits: 16}},
		),
		LocalName:   "sessions_raw_local",
		DistName:    "sessions_raw_dist",
		ShardingKey: "org_id",
		Engine: schema.MergeTree{
			OrderBy:     "(org_id, project_id, release, started)",
			PartitionBy: "(toMonday(started))",
			Settings:    map[string]string{"index_granularity": "16384"},
		},
		Writable: true,
	},
	Processors: []processors.Storage{
		processors.NewUUIDColumn("session_id", "distinct_id"),
	},
	PrewhereCandidates: []string{"project_id", "org_id"},
	Writer: &WriterSpec{
		Table:           "sessions_raw_local",
		RequiredColumns: []string{"session_id", "org_id", "project_id", "started", "status"},
	},
})
