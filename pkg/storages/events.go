package storages

import (
	"github.com/getsentry/snuba/pkg/clickhouse/columns"
	"github.com/getsentry/snuba/pkg/clickhouse/schema"
	"github.com/getsentry/snuba/pkg/processors"
)

const (
	EventsStorage   StorageKey = "events"
	EventsROStorage StorageKey = "events_ro"
)

func eventsColumns() *columns.ColumnSet {
	return columns.NewColumnSet(
		columns.Column{Name: "event_id", Type: columns.UUID{}},
		columns.Column{Name: "project_id", Type: columns.UInt{Bits: 64}},
		columns.Column{Name: "group_id", Type: columns.Nullable{Inner: columns.UInt{Bits: 64}}},
		columns.Column{Name: "primary_hash", Type: columns.FixedString{Length: 32}},
		columns.Column{Name: "timestamp", Type: columns.DateTime{}},
		columns.Column{Name: "received", Type: columns.DateTime{}},
		columns.Column{Name: "platform", Type: columns.LowCardinality{Inner: columns.StringType{}}},
		columns.Column{Name: "environment", Type: columns.Nullable{Inner: columns.StringType{}}},
		columns.Column{Name: "release", Type: columns.Nullable{Inner: columns.StringType{}}},
		columns.Column{Name: "dist", Type: columns.Nullable{Inner: columns.StringType{}}},
		columns.Column{Name: "user", Type: columns.StringType{}},
		columns.Column{Name: "user_id", Type: columns.Nullable{Inner: columns.StringType{}}},
		columns.Column{Name: "user_email", Type: columns.Nullable{Inner: columns.StringType{}}},
		columns.Column{Name: "sdk_name", Type: columns.LowCardinality{Inner: columns.StringType{}}},
		columns.Column{Name: "http_method", Type: columns.Nullable{Inner: columns.StringType{}}},
		columns.Column{Name: "tags", Type: columns.Nested{Columns: []columns.Column{
			{Name: "key", Type: columns.StringType{}},
			{Name: "value", Type: columns.StringType{}},
		}}},
		columns.Column{Name: "contexts", Type: columns.Nested{Columns: []columns.Column{
			{Name: "key", Type: columns.StringType{}},
			{Name: "value", Type: columns.StringType{}},
		}}},
		columns.Column{Name: "deleted", Type: columns.UInt{Bits: 8}},
		columns.Column{Name: "retention_days", Type: columns.UInt{Bits: 16}},
	)
}

func eventsTable() *schema.Table {
	return &schema.Table{
		Columns:     eventsColumns(),
		LocalName:   "errors_local",
		DistName:    "errors_dist",
		ShardingKey: "cityHash64(event_id)",
		Engine: schema.ReplacingMergeTree{
			VersionColumn: "deleted",
			MergeTree: schema.MergeTree{
				OrderBy:     "(project_id, toStartOfDay(timestamp), primary_hash, cityHash64(event_id))",
				PartitionBy: "(retention_days, toMonday(timestamp))",
				SampleBy:    "cityHash64(event_id)",
				TTL:         "timestamp + toIntervalDay(retention_days)",
				Settings:    map[string]string{"index_granularity": "8192"},
			},
		},
		Writable: true,
	}
}

// eventsProcessors is shared by the read-write and read-only storages; the
// consistency enforcer is appended per deployment since it needs the
// runtime state store.
func eventsProcessors() []processors.Storage {
	return []processors.Storage{
		processors.NestedColumnPromoter{
			NestedColumn: "tags",
			Promoted: map[string]string{
				"environment": "environment",
				"release":     "release",
				"dist":        "dist",
				"user":        "user",
			},
			StringColumns: map[string]struct{}{"user": {}},
		},
		processors.NewUUIDColumn("event_id", "primary_hash"),
		processors.Prewhere{
			Candidates:    eventsPrewhereCandidates,
			MaxConditions: 1,
		},
	}
}

var eventsPrewhereCandidates = []string{"event_id", "group_id", "tags[sentry:release]", "project_id"}

var Events = Register(&Storage{
	Key:                EventsStorage,
	StorageSet:         SetEvents,
	Table:              eventsTable(),
	Processors:         eventsProcessors(),
	PrewhereCandidates: eventsPrewhereCandidates,
	Writer: &WriterSpec{
		Table:           "errors_local",
		RequiredColumns: []string{"event_id", "project_id", "timestamp", "received", "deleted"},
	},
})

// EventsRO serves the same table through the read-only storage set so load
// can be split onto dedicated replicas.
var EventsRO = Register(&Storage{
	Key:                EventsROStorage,
	StorageSet:         SetEventsRO,
	Table:              eventsTable(),
	Processors:         eventsProcessors(),
	PrewhereCandidates: eventsPrewhereCandidates,
})
