package subscriptions

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/getsentry/snuba/pkg/metrics"
	"github.com/getsentry/snuba/pkg/streams"
)

type (
	// Task is one due evaluation of a subscription.
	Task struct {
		Timestamp    time.Time
		Subscription Subscription
	}

	// MessageSource abstracts the commit log reader.
	MessageSource interface {
		FetchMessage(ctx context.Context) (kafka.Message, error)
	}

	// Scheduler tails the commit log and emits a task per subscription per
	// resolution interval. The broker timestamp of each commit is the
	// clock, so scheduling only advances as far as consumers have
	// actually processed.
	Scheduler struct {
		source    MessageSource
		store     *Store
		entity    string
		partition int
		metrics   *metrics.Scope
		log       *zap.Logger

		lastTick map[uuid.UUID]time.Time
	}
)

func NewScheduler(source MessageSource, store *Store, entity string, partition int, scope *metrics.Scope) *Scheduler {
	return &Scheduler{
		source:    source,
		store:     store,
		entity:    entity,
		partition: partition,
		metrics:   scope,
		log:       zap.L().Named("scheduler"),
		lastTick:  make(map[uuid.UUID]time.Time),
	}
}

// Run fetches commits until ctx is canceled, sending due tasks on tasks.
func (s *Scheduler) Run(ctx context.Context, tasks chan<- Task) error {
	for {
		msg, err := s.source.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		commit, err := streams.DecodeCommit(msg.Key, msg.Value)
		if err != nil {
			s.metrics.Increment("commit_log.invalid", nil)
			s.log.Warn("skipping malformed commit log entry", zap.Error(err))
			continue
		}
		s.metrics.Gauge("commit_log.offset", float64(commit.Offset), metrics.Tags{"partition": commit.Topic})
		if err := s.tick(ctx, msg.Time, tasks); err != nil {
			return err
		}
	}
}

// tick emits every task due at or before watermark.
func (s *Scheduler) tick(ctx context.Context, watermark time.Time, tasks chan<- Task) error {
	subs, err := s.store.All(ctx, s.entity, s.partition)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		for _, ts := range s.dueTicks(sub, watermark) {
			select {
			case tasks <- Task{Timestamp: ts, Subscription: sub}:
				s.metrics.Increment("scheduler.scheduled", nil)
			case <-ctx.Done():
				return ctx.Err()
			}
			s.lastTick[sub.ID] = ts
		}
	}
	return nil
}

// dueTicks returns the subscription's tick times in (lastTick, watermark].
// Ticks sit on the resolution grid shifted by a per-subscription jitter,
// spreading load instead of aligning every subscription on the minute.
func (s *Scheduler) dueTicks(sub Subscription, watermark time.Time) []time.Time {
	resolution := sub.Data.Resolution()
	if resolution <= 0 {
		return nil
	}
	jitter := time.Duration(binary.BigEndian.Uint32(sub.ID[:4])%uint32(sub.Data.ResolutionSec)) * time.Second

	// latest grid point not after the watermark
	latest := watermark.Truncate(resolution).Add(jitter)
	if latest.After(watermark) {
		latest = latest.Add(-resolution)
	}

	last, seen := s.lastTick[sub.ID]
	if !seen {
		// first sighting: start from the latest tick only, not history
		return []time.Time{latest}
	}
	var out []time.Time
	for ts := last.Add(resolution); !ts.After(latest); ts = ts.Add(resolution) {
		out = append(out, ts)
	}
	return out
}
