// Package storages defines the physical storages: which storage set each
// belongs to, its table schema, and the processors every query against it
// runs. Definitions register at init and are read through the registry.
package storages

import (
	"fmt"
	"sort"

	"github.com/getsentry/snuba/pkg/clickhouse/schema"
	"github.com/getsentry/snuba/pkg/processors"
)

type (
	// StorageSetKey groups storages that must share a cluster, the unit
	// cluster assignment works in.
	StorageSetKey string

	StorageKey string

	// WriterSpec is present on storages rows are written to.
	WriterSpec struct {
		Table           string
		RequiredColumns []string
	}

	Storage struct {
		Key                StorageKey
		StorageSet         StorageSetKey
		Table              *schema.Table
		Processors         []processors.Storage
		PrewhereCandidates []string
		Writer             *WriterSpec
	}
)

const (
	SetDiscover     StorageSetKey = "discover"
	SetEvents       StorageSetKey = "events"
	SetEventsRO     StorageSetKey = "events_ro"
	SetMetrics      StorageSetKey = "metrics"
	SetMigrations   StorageSetKey = "migrations"
	SetOutcomes     StorageSetKey = "outcomes"
	SetQuerylog     StorageSetKey = "querylog"
	SetSessions     StorageSetKey = "sessions"
	SetTransactions StorageSetKey = "transactions"
)

// AllStorageSets is every storage set a cluster can be assigned; cluster
// configuration must cover all of them.
var AllStorageSets = []StorageSetKey{
	SetDiscover,
	SetEvents,
	SetEventsRO,
	SetMetrics,
	SetMigrations,
	SetOutcomes,
	SetQuerylog,
	SetSessions,
	SetTransactions,
}

var registry = make(map[StorageKey]*Storage)

// Register adds a storage definition. Duplicate keys are a programming
// error.
func Register(s *Storage) *Storage {
	if _, ok := registry[s.Key]; ok {
		panic(fmt.Errorf("storage %q registered twice", s.Key))
	}
	registry[s.Key] = s
	return s
}

func Get(key StorageKey) (*Storage, error) {
	s, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("unknown storage %q (known: %v)", key, Keys())
	}
	return s, nil
}

func Keys() []StorageKey {
	keys := make([]StorageKey, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
