package clusters

import (
	"fmt"

	"github.com/getsentry/snuba/pkg/multierr"
	"github.com/getsentry/snuba/pkg/settings"
	"github.com/getsentry/snuba/pkg/storages"
)

// Registry maps storage sets to clusters. Built from settings at startup;
// an assignment that is missing a storage set or places one on two
// clusters is a configuration error.
type Registry struct {
	clusters []*Cluster
	bySet    map[storages.StorageSetKey]*Cluster
}

func NewRegistry(cfgs []settings.Cluster) (*Registry, error) {
	r := &Registry{bySet: make(map[storages.StorageSetKey]*Cluster)}

	var errs multierr.Error
	for i, cfg := range cfgs {
		cluster := newCluster(cfg)
		r.clusters = append(r.clusters, cluster)
		for _, name := range cfg.StorageSets {
			set := storages.StorageSetKey(name)
			if known := knownStorageSet(set); !known {
				errs.Append(fmt.Errorf("cluster %d: unknown storage set %q", i, name))
				continue
			}
			if _, taken := r.bySet[set]; taken {
				errs.Append(fmt.Errorf("storage set %q assigned to more than one cluster", name))
				continue
			}
			r.bySet[set] = cluster
		}
	}
	for _, set := range storages.AllStorageSets {
		if _, ok := r.bySet[set]; !ok {
			errs.Append(fmt.Errorf("storage set %q is not assigned to any cluster", set))
		}
	}
	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}
	return r, nil
}

func knownStorageSet(set storages.StorageSetKey) bool {
	for _, known := range storages.AllStorageSets {
		if known == set {
			return true
		}
	}
	return false
}

// ClusterFor returns the cluster serving the storage set.
func (r *Registry) ClusterFor(set storages.StorageSetKey) (*Cluster, error) {
	cluster, ok := r.bySet[set]
	if !ok {
		return nil, fmt.Errorf("no cluster serves storage set %q", set)
	}
	return cluster, nil
}

func (r *Registry) Clusters() []*Cluster { return r.clusters }

func (r *Registry) Close() error {
	var errs multierr.Error
	for _, c := range r.clusters {
		errs.Append(c.Close())
	}
	return errs.ErrOrNil()
}
