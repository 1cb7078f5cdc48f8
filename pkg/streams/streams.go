package streams

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/getsentry/snuba/pkg/settings"
)

// NewReader builds a consumer for the topic in the configured consumer
// group. suffix distinguishes independent consumers of the same topic,
// e.g. the subscriptions scheduler tailing the commit log.
func NewReader(cfg settings.Kafka, topic Topic, suffix string) *kafka.Reader {
	group := cfg.ConsumerGroup
	if suffix != "" {
		group = group + "-" + suffix
	}
	startOffset := kafka.FirstOffset
	if cfg.OffsetReset == "latest" {
		startOffset = kafka.LastOffset
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     group,
		Topic:       topic.PhysicalName(cfg),
		StartOffset: startOffset,
		MinBytes:    1,
		MaxBytes:    10 << 20,
		MaxWait:     500 * time.Millisecond,
	})
}

// NewWriter builds a producer for the topic. Keys hash to partitions so
// per-key ordering holds.
func NewWriter(cfg settings.Kafka, topic Topic) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic.PhysicalName(cfg),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 100 * time.Millisecond,
	}
}

// EnsureTopics creates every registered topic on the brokers. Existing
// topics are left alone.
func EnsureTopics(ctx context.Context, cfg settings.Kafka) error {
	if len(cfg.Brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", cfg.Brokers[0])
	if err != nil {
		return errors.Wrapf(err, "dialing kafka broker %s", cfg.Brokers[0])
	}
	defer conn.Close() // nolint:errcheck

	controller, err := conn.Controller()
	if err != nil {
		return errors.Wrap(err, "finding kafka controller")
	}
	ctl, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return errors.Wrap(err, "dialing kafka controller")
	}
	defer ctl.Close() // nolint:errcheck

	configs := make([]kafka.TopicConfig, 0, len(topicRegistry))
	for _, t := range Topics() {
		configs = append(configs, t.TopicConfig(cfg))
	}
	return errors.Wrap(ctl.CreateTopics(configs...), "creating kafka topics")
}
