package subscriptions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/alitto/pond"
	"github.com/segmentio/kafka-go"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/getsentry/snuba/pkg/datasets"
	"github.com/getsentry/snuba/pkg/metrics"
	"github.com/getsentry/snuba/pkg/query"
	"github.com/getsentry/snuba/pkg/request"
)

type (
	// Producer abstracts the results writer.
	Producer interface {
		WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	}

	// Executor runs scheduled subscription queries on a bounded worker
	// pool and produces one result message per task.
	Executor struct {
		pipeline *datasets.Pipeline
		producer Producer
		pool     *pond.WorkerPool
		timeout  time.Duration
		metrics  *metrics.Scope
		log      *zap.Logger

		successes atomic.Int64
		failures  atomic.Int64
	}

	// Result is the versioned payload produced for each evaluation.
	Result struct {
		Version int           `json:"version"`
		Payload ResultPayload `json:"payload"`
	}

	ResultPayload struct {
		SubscriptionID string           `json:"subscription_id"`
		Timestamp      time.Time        `json:"timestamp"`
		Values         []map[string]any `json:"values"`
	}
)

func NewExecutor(pipeline *datasets.Pipeline, producer Producer, scope *metrics.Scope, workers int, timeout time.Duration) *Executor {
	if workers < 1 {
		workers = 1
	}
	return &Executor{
		pipeline: pipeline,
		producer: producer,
		pool:     pond.New(workers, workers*4),
		timeout:  timeout,
		metrics:  scope,
		log:      zap.L().Named("executor"),
	}
}

// Run consumes tasks until the channel closes or ctx is canceled, then
// drains the pool.
func (e *Executor) Run(ctx context.Context, tasks <-chan Task) error {
	defer e.pool.StopAndWait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case task, ok := <-tasks:
			if !ok {
				return nil
			}
			e.pool.Submit(func() {
				e.execute(ctx, task)
			})
		}
	}
}

// Counts reports evaluations since start.
func (e *Executor) Counts() (successes, failures int64) {
	return e.successes.Load(), e.failures.Load()
}

func (e *Executor) execute(ctx context.Context, task Task) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	err := e.metrics.Time("executor.execute", metrics.Tags{"entity": task.Subscription.Data.Entity}, func() error {
		return e.evaluate(ctx, task)
	})
	if err != nil {
		e.failures.Inc()
		e.metrics.Increment("executor.failed", nil)
		e.log.Error("subscription evaluation failed",
			zap.String("subscription", task.Subscription.ID.String()),
			zap.Time("timestamp", task.Timestamp),
			zap.Error(err))
		return
	}
	e.successes.Inc()
}

func (e *Executor) evaluate(ctx context.Context, task Task) error {
	entity, err := datasets.GetEntity(task.Subscription.Data.Entity)
	if err != nil {
		return err
	}
	q, _, err := request.Build(task.Subscription.Data.Body(task.Timestamp), entity.Name, entity.TimeColumn)
	if err != nil {
		return err
	}

	// subscriptions alert on their results, so reads must not race
	// replacements
	plan, err := e.pipeline.Build(ctx, q, query.RequestSettings{Consistent: true})
	if err != nil {
		return err
	}
	rows, err := e.pipeline.Execute(ctx, plan)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(Result{
		Version: 2,
		Payload: ResultPayload{
			SubscriptionID: task.Subscription.ID.String(),
			Timestamp:      task.Timestamp.UTC(),
			Values:         rows,
		},
	})
	if err != nil {
		return err
	}
	return e.producer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.Subscription.ID.String()),
		Value: payload,
	})
}
