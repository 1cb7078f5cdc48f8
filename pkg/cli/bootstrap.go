package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/getsentry/snuba/pkg/migrations"
	"github.com/getsentry/snuba/pkg/streams"
)

func newBootstrapCommand(load settingsLoader) *cobra.Command {
	var (
		skipKafka      bool
		skipMigrations bool
	)
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create Kafka topics and apply all migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := load()
			if err != nil {
				return err
			}
			if !skipKafka {
				if err := streams.EnsureTopics(cmd.Context(), s.Kafka); err != nil {
					return err
				}
				zap.L().Info("topics created", zap.Strings("brokers", s.Kafka.Brokers))
			}
			if skipMigrations {
				return nil
			}
			runner, done, err := migrationsRunner(load)
			if err != nil {
				return err
			}
			defer done()
			runner.ShowProgress(true)
			return runner.Run(cmd.Context(), migrations.RunOptions{})
		},
	}
	cmd.Flags().BoolVar(&skipKafka, "skip-kafka", false, "Skip topic creation")
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "Skip schema migrations")
	return cmd
}
