package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/getsentry/snuba/pkg/multierr"
)

type (
	// Settings is the full runtime configuration. Everything has a usable
	// default so a bare `snuba` invocation works against a single local
	// ClickHouse node.
	Settings struct {
		Clusters []Cluster `json:"clusters" yaml:"clusters" toml:"clusters"`
		Redis    Redis     `json:"redis" yaml:"redis" toml:"redis"`
		Kafka    Kafka     `json:"kafka" yaml:"kafka" toml:"kafka"`
		Query    Query     `json:"query" yaml:"query" toml:"query"`
		Deploy   Deploy    `json:"deploy" yaml:"deploy" toml:"deploy"`

		// Format records what format the file was read from so dumps can
		// round-trip it unchanged.
		Format string `json:"-" yaml:"-" toml:"-"`
	}

	Cluster struct {
		Host        string   `json:"host" yaml:"host" toml:"host"`
		Port        int      `json:"port" yaml:"port" toml:"port"`
		HTTPPort    int      `json:"http_port" yaml:"http_port" toml:"http_port"`
		User        string   `json:"user,omitempty" yaml:"user,omitempty" toml:"user,omitempty"`
		Password    string   `json:"password,omitempty" yaml:"password,omitempty" toml:"password,omitempty"`
		Database    string   `json:"database" yaml:"database" toml:"database"`
		StorageSets []string `json:"storage_sets" yaml:"storage_sets" toml:"storage_sets"`
		SingleNode  bool     `json:"single_node" yaml:"single_node" toml:"single_node"`
		ClusterName string   `json:"cluster_name,omitempty" yaml:"cluster_name,omitempty" toml:"cluster_name,omitempty"`
		MaxConns    int      `json:"max_connections" yaml:"max_connections" toml:"max_connections"`
	}

	Redis struct {
		Addr     string `json:"addr" yaml:"addr" toml:"addr"`
		DB       int    `json:"db" yaml:"db" toml:"db"`
		Password string `json:"password,omitempty" yaml:"password,omitempty" toml:"password,omitempty"`
	}

	Kafka struct {
		Brokers       []string          `json:"brokers" yaml:"brokers" toml:"brokers"`
		ConsumerGroup string            `json:"consumer_group" yaml:"consumer_group" toml:"consumer_group"`
		OffsetReset   string            `json:"offset_reset" yaml:"offset_reset" toml:"offset_reset"`
		TopicNames    map[string]string `json:"topic_names,omitempty" yaml:"topic_names,omitempty" toml:"topic_names,omitempty"`
	}

	Query struct {
		MaxPrewhereConditions int `json:"max_prewhere_conditions" yaml:"max_prewhere_conditions" toml:"max_prewhere_conditions"`
		MaxQueryBytes         int `json:"max_query_bytes" yaml:"max_query_bytes" toml:"max_query_bytes"`
	}

	Deploy struct {
		Namespace string `json:"namespace" yaml:"namespace" toml:"namespace"`
		LabelBase string `json:"label_base" yaml:"label_base" toml:"label_base"`
	}
)

// EnvPrefix is the prefix of environment variables that override file
// settings, e.g. SNUBA_REDIS_ADDR overrides redis.addr.
const EnvPrefix = "SNUBA_"

func Default() Settings {
	return Settings{
		Clusters: []Cluster{{
			Host:     "localhost",
			Port:     9000,
			HTTPPort: 8123,
			Database: "default",
			StorageSets: []string{
				"discover", "events", "events_ro", "metrics", "migrations",
				"outcomes", "querylog", "sessions", "transactions",
			},
			SingleNode: true,
			MaxConns:   10,
		}},
		Redis: Redis{Addr: "localhost:6379"},
		Kafka: Kafka{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "snuba-consumers",
			OffsetReset:   "earliest",
		},
		Query: Query{
			MaxPrewhereConditions: 1,
			MaxQueryBytes:         256 * 1024,
		},
		Deploy: Deploy{
			Namespace: "default",
			LabelBase: "service=snuba",
		},
		Format: "yaml",
	}
}

// Load reads settings from fpath, layered on top of Default, then applies
// SNUBA_* environment overrides. An empty fpath loads defaults plus env.
func Load(fpath string) (Settings, error) {
	s := Default()

	if fpath != "" {
		f, err := os.Open(fpath)
		if err != nil {
			return s, err
		}
		defer f.Close() // nolint:errcheck

		switch ext := filepath.Ext(fpath); ext {
		case ".json":
			err = json.NewDecoder(f).Decode(&s)
			s.Format = "json"

		case ".yaml", ".yml":
			err = yaml.NewDecoder(f).Decode(&s)
			s.Format = "yaml"

		case ".toml":
			err = toml.NewDecoder(f).Decode(&s)
			s.Format = "toml"

		default:
			return s, fmt.Errorf("unsupported settings format %q", ext)
		}
		if err != nil {
			return s, fmt.Errorf("reading settings from %s: %w", fpath, err)
		}
	}

	if err := applyEnv(&s, os.Environ()); err != nil {
		return s, err
	}
	return s, s.Validate()
}

// applyEnv decodes SNUBA_SECTION_FIELD variables onto s. The variable name
// maps to the struct's json tags with underscores separating the path, so
// SNUBA_QUERY_MAX_QUERY_BYTES lands on query.max_query_bytes.
func applyEnv(s *Settings, environ []string) error {
	overrides := make(map[string]any)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		path := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		section, field, ok := strings.Cut(path, "_")
		if !ok {
			continue
		}
		sub, ok := overrides[section].(map[string]any)
		if !ok {
			sub = make(map[string]any)
			overrides[section] = sub
		}
		sub[field] = value
	}
	if len(overrides) == 0 {
		return nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           s,
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(overrides); err != nil {
		return fmt.Errorf("applying %s* environment overrides: %w", EnvPrefix, err)
	}
	return nil
}

func (s Settings) Validate() error {
	var errs multierr.Error
	if len(s.Clusters) == 0 {
		errs.Append(fmt.Errorf("at least one cluster must be configured"))
	}
	for i, c := range s.Clusters {
		if c.Host == "" {
			errs.Append(fmt.Errorf("cluster %d: host is required", i))
		}
		if c.Port <= 0 {
			errs.Append(fmt.Errorf("cluster %d: port is required", i))
		}
		if len(c.StorageSets) == 0 {
			errs.Append(fmt.Errorf("cluster %d: storage_sets is empty", i))
		}
		if !c.SingleNode && c.ClusterName == "" {
			errs.Append(fmt.Errorf("cluster %d: cluster_name is required when single_node is false", i))
		}
	}
	switch s.Kafka.OffsetReset {
	case "earliest", "latest":
	default:
		errs.Append(fmt.Errorf("kafka.offset_reset must be \"earliest\" or \"latest\", got %q", s.Kafka.OffsetReset))
	}
	if s.Query.MaxPrewhereConditions < 1 {
		errs.Append(fmt.Errorf("query.max_prewhere_conditions must be >= 1"))
	}
	return errs.ErrOrNil()
}

// Dump renders s in its source format.
func (s Settings) Dump() ([]byte, error) {
	switch s.Format {
	case "json":
		return json.MarshalIndent(s, "", "  ")
	case "toml":
		return toml.Marshal(s)
	default:
		return yaml.Marshal(s)
	}
}
