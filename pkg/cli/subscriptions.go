package cli

import (
	"context"
	"encoding/json"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/getsentry/snuba/pkg/datasets"
	"github.com/getsentry/snuba/pkg/metrics"
	"github.com/getsentry/snuba/pkg/streams"
	"github.com/getsentry/snuba/pkg/subscriptions"
)

func newSubscriptionsCommand(load settingsLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscriptions",
		Short: "Manage and run subscribed queries",
	}
	cmd.PersistentFlags().String("entity", "events", "Entity the subscriptions query")
	cmd.AddCommand(
		newSubscriptionsCreateCommand(load),
		newSubscriptionsDeleteCommand(load),
		newSubscriptionsRunCommand(load),
	)
	return cmd
}

func newSubscriptionsCreateCommand(load settingsLoader) *cobra.Command {
	var (
		data       string
		partitions int
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Store a new subscription",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := load()
			if err != nil {
				return err
			}
			var subData subscriptions.SubscriptionData
			if err := json.Unmarshal([]byte(data), &subData); err != nil {
				return err
			}
			store := subscriptions.NewStore(newStateStore(s).Client(), partitions)
			sub, err := store.Create(cmd.Context(), subData)
			if err != nil {
				return err
			}
			cmd.Println(sub.ID.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "Subscription JSON")
	cmd.Flags().IntVar(&partitions, "partitions", 1, "Scheduler partition count")
	cmd.MarkFlagRequired("data") //nolint:errcheck
	return cmd
}

func newSubscriptionsDeleteCommand(load settingsLoader) *cobra.Command {
	var (
		id         string
		partitions int
	)
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove a subscription",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := load()
			if err != nil {
				return err
			}
			entity, _ := cmd.Flags().GetString("entity")
			parsed, err := uuid.Parse(id)
			if err != nil {
				return err
			}
			store := subscriptions.NewStore(newStateStore(s).Client(), partitions)
			return store.Delete(cmd.Context(), entity, parsed)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Subscription ID")
	cmd.Flags().IntVar(&partitions, "partitions", 1, "Scheduler partition count")
	cmd.MarkFlagRequired("id") //nolint:errcheck
	return cmd
}

func newSubscriptionsRunCommand(load settingsLoader) *cobra.Command {
	var (
		partition  int
		partitions int
		workers    int
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler and executor for one partition",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := load()
			if err != nil {
				return err
			}
			entity, _ := cmd.Flags().GetString("entity")
			if _, err := datasets.GetEntity(entity); err != nil {
				return err
			}

			reg, err := newRegistry(s)
			if err != nil {
				return err
			}
			defer reg.Close() //nolint:errcheck

			scope := metrics.NewScope("subscriptions", prometheus.NewRegistry())
			stateStore := newStateStore(s)
			store := subscriptions.NewStore(stateStore.Client(), partitions)
			pipeline := datasets.NewPipeline(reg, stateStore, scope, s.Query)

			commitLog, err := streams.GetTopic(streams.TopicCommitLog)
			if err != nil {
				return err
			}
			results, err := streams.GetTopic(streams.TopicSubscriptionResults)
			if err != nil {
				return err
			}
			reader := streams.NewReader(s.Kafka, commitLog, "subscriptions")
			defer reader.Close() //nolint:errcheck
			writer := streams.NewWriter(s.Kafka, results)
			defer writer.Close() //nolint:errcheck

			scheduler := subscriptions.NewScheduler(reader, store, entity, partition, scope)
			executor := subscriptions.NewExecutor(pipeline, writer, scope, workers, timeout)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := zap.L().Named("subscriptions")
			log.Info("starting",
				zap.String("entity", entity),
				zap.Int("partition", partition),
				zap.Int("workers", workers))

			tasks := make(chan subscriptions.Task, 256)
			schedulerErr := make(chan error, 1)
			go func() {
				schedulerErr <- scheduler.Run(ctx, tasks)
				close(tasks)
			}()

			runErr := executor.Run(ctx, tasks)
			schedErr := <-schedulerErr
			successes, failures := executor.Counts()
			log.Info("stopped",
				zap.Int64("successes", successes),
				zap.Int64("failures", failures))

			for _, err := range []error{runErr, schedErr} {
				if err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&partition, "partition", 0, "Partition this process schedules")
	cmd.Flags().IntVar(&partitions, "partitions", 1, "Total scheduler partitions")
	cmd.Flags().IntVar(&workers, "workers", 4, "Concurrent query executions")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Per-query timeout")
	return cmd
}
