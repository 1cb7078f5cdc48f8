package clusters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getsentry/snuba/pkg/settings"
	"github.com/getsentry/snuba/pkg/storages"
)

func allSets() []string {
	names := make([]string, len(storages.AllStorageSets))
	for i, s := range storages.AllStorageSets {
		names[i] = string(s)
	}
	return names
}

func TestNewRegistry_SingleCluster(t *testing.T) {
	assert := assert.New(t)

	r, err := NewRegistry([]settings.Cluster{{
		Host:        "localhost",
		Port:        9000,
		Database:    "default",
		StorageSets: allSets(),
		SingleNode:  true,
	}})
	require.NoError(t, err)

	c, err := r.ClusterFor(storages.SetEvents)
	require.NoError(t, err)
	assert.True(c.SingleNode())
	assert.True(c.Serves(storages.SetEvents))
	assert.False(c.Serves(storages.StorageSetKey("bogus")))
}

func TestNewRegistry_SplitAssignment(t *testing.T) {
	assert := assert.New(t)

	var eventsSets, otherSets []string
	for _, s := range allSets() {
		if s == "events" || s == "events_ro" {
			eventsSets = append(eventsSets, s)
		} else {
			otherSets = append(otherSets, s)
		}
	}

	r, err := NewRegistry([]settings.Cluster{
		{Host: "ch-events", Port: 9000, Database: "default", StorageSets: eventsSets, ClusterName: "snuba-events"},
		{Host: "ch-main", Port: 9000, Database: "default", StorageSets: otherSets, SingleNode: true},
	})
	require.NoError(t, err)

	events, err := r.ClusterFor(storages.SetEvents)
	require.NoError(t, err)
	transactions, err := r.ClusterFor(storages.SetTransactions)
	require.NoError(t, err)
	assert.NotSame(events, transactions)
	assert.Equal("snuba-events", events.Name())
}

func TestNewRegistry_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfgs    []settings.Cluster
		wantErr string
	}{
		{
			name: "missing storage set",
			cfgs: []settings.Cluster{{
				Host: "localhost", Port: 9000, StorageSets: []string{"events"}, SingleNode: true,
			}},
			wantErr: `storage set "transactions" is not assigned`,
		},
		{
			name: "double assignment",
			cfgs: []settings.Cluster{
				{Host: "a", Port: 9000, StorageSets: allSets(), SingleNode: true},
				{Host: "b", Port: 9000, StorageSets: []string{"events"}, SingleNode: true},
			},
			wantErr: `storage set "events" assigned to more than one cluster`,
		},
		{
			name: "unknown storage set",
			cfgs: []settings.Cluster{{
				Host: "localhost", Port: 9000, StorageSets: append(allSets(), "spans"), SingleNode: true,
			}},
			wantErr: `unknown storage set "spans"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.cfgs)
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestTableName(t *testing.T) {
	assert := assert.New(t)

	events, err := storages.Get(storages.EventsStorage)
	require.NoError(t, err)

	single := newCluster(settings.Cluster{SingleNode: true})
	clustered := newCluster(settings.Cluster{ClusterName: "snuba-events"})
	assert.Equal("errors_local", single.TableName(events))
	assert.Equal("errors_dist", clustered.TableName(events))
}
