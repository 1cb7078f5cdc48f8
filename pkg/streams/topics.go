// Package streams defines the Kafka topics snuba consumes and produces,
// and builds the readers and writers bound to them.
package streams

import (
	"fmt"
	"sort"

	"github.com/segmentio/kafka-go"

	"github.com/getsentry/snuba/pkg/settings"
)

type (
	TopicKey string

	// Topic is one logical stream. The physical Kafka topic name defaults
	// to the logical name and can be remapped per deployment through
	// kafka.topic_names.
	Topic struct {
		Key        TopicKey
		Partitions int

		// Config holds broker-side topic configuration applied when the
		// topic is created.
		Config map[string]string
	}
)

const (
	TopicEvents              TopicKey = "events"
	TopicEventReplacements   TopicKey = "event-replacements"
	TopicCommitLog           TopicKey = "snuba-commit-log"
	TopicCDC                 TopicKey = "cdc"
	TopicMetrics             TopicKey = "ingest-metrics"
	TopicOutcomes            TopicKey = "outcomes"
	TopicSessions            TopicKey = "ingest-sessions"
	TopicSubscriptionResults TopicKey = "events-subscription-results"
	TopicQuerylog            TopicKey = "snuba-queries"
)

var topicRegistry = make(map[TopicKey]Topic)

func registerTopic(t Topic) Topic {
	if _, dup := topicRegistry[t.Key]; dup {
		panic(fmt.Sprintf("topic %q registered twice", t.Key))
	}
	topicRegistry[t.Key] = t
	return t
}

func init() {
	// The commit log positions subscriptions by broker timestamps, so the
	// events topic must stamp messages at append time.
	registerTopic(Topic{
		Key:        TopicEvents,
		Partitions: 1,
		Config:     map[string]string{"message.timestamp.type": "LogAppendTime"},
	})
	registerTopic(Topic{Key: TopicEventReplacements, Partitions: 1})
	registerTopic(Topic{
		Key:        TopicCommitLog,
		Partitions: 1,
		Config:     map[string]string{"cleanup.policy": "compact,delete", "min.compaction.lag.ms": "3600000"},
	})
	registerTopic(Topic{Key: TopicCDC, Partitions: 1})
	registerTopic(Topic{Key: TopicMetrics, Partitions: 1})
	registerTopic(Topic{Key: TopicOutcomes, Partitions: 1})
	registerTopic(Topic{Key: TopicSessions, Partitions: 1})
	registerTopic(Topic{Key: TopicSubscriptionResults, Partitions: 1})
	registerTopic(Topic{Key: TopicQuerylog, Partitions: 1})
}

// GetTopic looks a topic up by key.
func GetTopic(key TopicKey) (Topic, error) {
	t, ok := topicRegistry[key]
	if !ok {
		return Topic{}, fmt.Errorf("unknown topic %q", key)
	}
	return t, nil
}

// Topics returns every registered topic sorted by key.
func Topics() []Topic {
	out := make([]Topic, 0, len(topicRegistry))
	for _, t := range topicRegistry {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// PhysicalName resolves the broker-side topic name, honoring the
// deployment's remapping.
func (t Topic) PhysicalName(cfg settings.Kafka) string {
	if name, ok := cfg.TopicNames[string(t.Key)]; ok {
		return name
	}
	return string(t.Key)
}

// TopicConfig renders the creation spec for the topic.
func (t Topic) TopicConfig(cfg settings.Kafka) kafka.TopicConfig {
	entries := make([]kafka.ConfigEntry, 0, len(t.Config))
	keys := make([]string, 0, len(t.Config))
	for k := range t.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		entries = append(entries, kafka.ConfigEntry{ConfigName: k, ConfigValue: t.Config[k]})
	}
	return kafka.TopicConfig{
		Topic:             t.PhysicalName(cfg),
		NumPartitions:     t.Partitions,
		ReplicationFactor: 1,
		ConfigEntries:     entries,
	}
}
