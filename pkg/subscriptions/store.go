package subscriptions

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Store keeps subscriptions in redis, sharded into one hash per scheduler
// partition so each scheduler loads only its own slice.
type Store struct {
	client     redis.Cmdable
	partitions int
}

func NewStore(client redis.Cmdable, partitions int) *Store {
	if partitions < 1 {
		partitions = 1
	}
	return &Store{client: client, partitions: partitions}
}

func (s *Store) Partitions() int { return s.partitions }

// PartitionFor assigns a subscription to a partition by its id, so the
// assignment is stable across restarts.
func (s *Store) PartitionFor(id uuid.UUID) int {
	return int(binary.BigEndian.Uint32(id[:4]) % uint32(s.partitions))
}

func (s *Store) key(entity string, partition int) string {
	return fmt.Sprintf("subscriptions:%s:%d", entity, partition)
}

// Create validates and stores a new subscription, returning it with its
// assigned id.
func (s *Store) Create(ctx context.Context, data SubscriptionData) (Subscription, error) {
	if err := data.Validate(); err != nil {
		return Subscription{}, err
	}
	sub := Subscription{ID: uuid.New(), Data: data}
	payload, err := json.Marshal(sub)
	if err != nil {
		return Subscription{}, err
	}
	key := s.key(data.Entity, s.PartitionFor(sub.ID))
	if err := s.client.HSet(ctx, key, sub.ID.String(), payload).Err(); err != nil {
		return Subscription{}, errors.Wrapf(err, "storing subscription %s", sub.ID)
	}
	return sub, nil
}

// Delete removes a subscription. Unknown ids are not an error.
func (s *Store) Delete(ctx context.Context, entity string, id uuid.UUID) error {
	key := s.key(entity, s.PartitionFor(id))
	return errors.Wrapf(s.client.HDel(ctx, key, id.String()).Err(), "deleting subscription %s", id)
}

// All returns the partition's subscriptions sorted by id. Entries that no
// longer decode are skipped rather than wedging the scheduler.
func (s *Store) All(ctx context.Context, entity string, partition int) ([]Subscription, error) {
	entries, err := s.client.HGetAll(ctx, s.key(entity, partition)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "loading subscriptions for %s partition %d", entity, partition)
	}
	out := make([]Subscription, 0, len(entries))
	for _, raw := range entries {
		var sub Subscription
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			continue
		}
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}
