package subscriptions

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getsentry/snuba/pkg/metrics"
	"github.com/getsentry/snuba/pkg/streams"
)

func validData() SubscriptionData {
	return SubscriptionData{
		Entity:        "events",
		ProjectID:     1,
		Conditions:    []any{[]any{"platform", "=", "python"}},
		Aggregations:  []any{[]any{"count()", "", "count"}},
		TimeWindowSec: 300,
		ResolutionSec: 60,
	}
}

func TestSubscriptionData_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SubscriptionData)
		wantErr string
	}{
		{name: "valid", mutate: func(*SubscriptionData) {}},
		{
			name:    "unknown entity",
			mutate:  func(d *SubscriptionData) { d.Entity = "nope" },
			wantErr: "unknown entity",
		},
		{
			name:    "missing project",
			mutate:  func(d *SubscriptionData) { d.ProjectID = 0 },
			wantErr: "project_id is required",
		},
		{
			name:    "missing aggregations",
			mutate:  func(d *SubscriptionData) { d.Aggregations = nil },
			wantErr: "at least one aggregation",
		},
		{
			name:    "window too small",
			mutate:  func(d *SubscriptionData) { d.TimeWindowSec = 30 },
			wantErr: "time_window must be between",
		},
		{
			name:    "window too large",
			mutate:  func(d *SubscriptionData) { d.TimeWindowSec = 25 * 3600 },
			wantErr: "time_window must be between",
		},
		{
			name:    "window not whole minutes",
			mutate:  func(d *SubscriptionData) { d.TimeWindowSec = 90 },
			wantErr: "whole number of minutes",
		},
		{
			name:    "resolution too fine",
			mutate:  func(d *SubscriptionData) { d.ResolutionSec = 15 },
			wantErr: "resolution must be at least",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			data := validData()
			tt.mutate(&data)
			err := data.Validate()
			if tt.wantErr == "" {
				assert.NoError(err)
				return
			}
			assert.Error(err)
			assert.Contains(err.Error(), tt.wantErr)
		})
	}
}

func TestSubscriptionData_Body(t *testing.T) {
	assert := assert.New(t)

	ts := time.Date(2026, 8, 30, 12, 5, 0, 0, time.UTC)
	body := validData().Body(ts)
	assert.Equal("2026-08-30T12:00:00", body["from_date"])
	assert.Equal("2026-08-30T12:05:00", body["to_date"])
	assert.Equal(int64(1), body["project"])
}

func testStore(t *testing.T, partitions int) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client, partitions)
}

func TestStore(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	store := testStore(t, 4)

	sub, err := store.Create(ctx, validData())
	require.NoError(t, err)
	assert.NotEqual(uuid.Nil, sub.ID)

	partition := store.PartitionFor(sub.ID)
	subs, err := store.All(ctx, "events", partition)
	require.NoError(t, err)
	if assert.Len(subs, 1) {
		assert.Equal(sub, subs[0])
	}

	// other partitions stay empty
	total := 0
	for p := 0; p < store.Partitions(); p++ {
		got, err := store.All(ctx, "events", p)
		require.NoError(t, err)
		total += len(got)
	}
	assert.Equal(1, total)

	require.NoError(t, store.Delete(ctx, "events", sub.ID))
	subs, err = store.All(ctx, "events", partition)
	require.NoError(t, err)
	assert.Empty(subs)
}

func TestStore_CreateInvalid(t *testing.T) {
	assert := assert.New(t)
	store := testStore(t, 1)

	data := validData()
	data.TimeWindowSec = 0
	_, err := store.Create(context.Background(), data)
	assert.Error(err)
}

func TestScheduler_DueTicks(t *testing.T) {
	assert := assert.New(t)

	s := NewScheduler(nil, nil, "events", 0, metrics.NewScope("test", nil))
	sub := Subscription{ID: uuid.Nil, Data: validData()} // zero id, so no jitter

	watermark := time.Date(2026, 8, 30, 12, 0, 30, 0, time.UTC)
	ticks := s.dueTicks(sub, watermark)
	if assert.Len(ticks, 1) {
		assert.Equal(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), ticks[0])
	}
	s.lastTick[sub.ID] = ticks[0]

	// nothing new until the next grid point passes
	assert.Empty(s.dueTicks(sub, watermark.Add(20*time.Second)))

	// two resolution intervals later, two ticks are due
	ticks = s.dueTicks(sub, watermark.Add(2*time.Minute))
	if assert.Len(ticks, 2) {
		assert.Equal(time.Date(2026, 8, 30, 12, 1, 0, 0, time.UTC), ticks[0])
		assert.Equal(time.Date(2026, 8, 30, 12, 2, 0, 0, time.UTC), ticks[1])
	}
}

func TestScheduler_DueTicks_Jitter(t *testing.T) {
	assert := assert.New(t)

	s := NewScheduler(nil, nil, "events", 0, metrics.NewScope("test", nil))
	// first four bytes decode to 65, so ticks land 5s past the minute
	sub := Subscription{
		ID:   uuid.MustParse("00000041-0000-0000-0000-000000000000"),
		Data: validData(),
	}

	watermark := time.Date(2026, 8, 30, 12, 0, 30, 0, time.UTC)
	ticks := s.dueTicks(sub, watermark)
	if assert.Len(ticks, 1) {
		assert.Equal(time.Date(2026, 8, 30, 12, 0, 5, 0, time.UTC), ticks[0])
	}
}

type fakeSource struct {
	messages []kafka.Message
}

func (f *fakeSource) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.messages) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := f.messages[0]
	f.messages = f.messages[1:]
	return msg, nil
}

func TestScheduler_Run(t *testing.T) {
	assert := assert.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := testStore(t, 1)
	sub, err := store.Create(ctx, validData())
	require.NoError(t, err)

	commit := streams.Commit{Topic: "events", Partition: 0, Group: "snuba-consumers", Offset: 10}
	source := &fakeSource{messages: []kafka.Message{
		{Key: []byte("garbage"), Value: []byte("nope"), Time: time.Now()},
		{Key: commit.Key(), Value: commit.Value(), Time: time.Date(2026, 8, 30, 12, 0, 30, 0, time.UTC)},
	}}

	s := NewScheduler(source, store, "events", 0, metrics.NewScope("test", nil))
	tasks := make(chan Task, 16)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, tasks) }()

	select {
	case task := <-tasks:
		assert.Equal(sub.ID, task.Subscription.ID)
		assert.False(task.Timestamp.After(time.Date(2026, 8, 30, 12, 0, 30, 0, time.UTC)))
	case <-ctx.Done():
		t.Fatal("no task scheduled before timeout")
	}

	cancel()
	assert.ErrorIs(<-done, context.Canceled)
}
