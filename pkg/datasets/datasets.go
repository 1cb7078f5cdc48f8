package datasets

import (
	"fmt"
	"sort"
)

// Dataset is a named group of entities with a default the API falls back
// to when a request does not name one.
type Dataset struct {
	Name     string
	Entities []*Entity
	Default  *Entity
}

var datasetRegistry = make(map[string]*Dataset)

func registerDataset(d *Dataset) *Dataset {
	if _, ok := datasetRegistry[d.Name]; ok {
		panic(fmt.Errorf("dataset %q registered twice", d.Name))
	}
	datasetRegistry[d.Name] = d
	return d
}

func Get(name string) (*Dataset, error) {
	d, ok := datasetRegistry[name]
	if !ok {
		return nil, fmt.Errorf("unknown dataset %q (known: %v)", name, Names())
	}
	return d, nil
}

func Names() []string {
	names := make([]string, 0, len(datasetRegistry))
	for name := range datasetRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var (
	EventsDataset = registerDataset(&Dataset{
		Name:     "events",
		Entities: []*Entity{EventsEntity},
		Default:  EventsEntity,
	})

	TransactionsDataset = registerDataset(&Dataset{
		Name:     "transactions",
		Entities: []*Entity{TransactionsEntity},
		Default:  TransactionsEntity,
	})

	// discover spans errors and transactions; events is the default the
	// way the error-centric API grew up.
	DiscoverDataset = registerDataset(&Dataset{
		Name:     "discover",
		Entities: []*Entity{EventsEntity, TransactionsEntity},
		Default:  EventsEntity,
	})

	OutcomesDataset = registerDataset(&Dataset{
		Name:     "outcomes",
		Entities: []*Entity{OutcomesEntity, OutcomesRawEntity},
		Default:  OutcomesEntity,
	})

	SessionsDataset = registerDataset(&Dataset{
		Name:     "sessions",
		Entities: []*Entity{SessionsEntity},
		Default:  SessionsEntity,
	})
)
