package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/getsentry/snuba/pkg/migrations"
	"github.com/getsentry/snuba/pkg/storages"
)

func newMigrationsCommand(load settingsLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrations",
		Short: "Manage the ClickHouse schema",
	}
	cmd.AddCommand(
		newMigrationsListCommand(load),
		newMigrationsRunCommand(load),
		newMigrationsReverseCommand(load),
	)
	return cmd
}

// migrationsRunner connects to the cluster serving the migrations storage
// set.
func migrationsRunner(load settingsLoader) (*migrations.Runner, func(), error) {
	s, err := load()
	if err != nil {
		return nil, nil, err
	}
	reg, err := newRegistry(s)
	if err != nil {
		return nil, nil, err
	}
	cluster, err := reg.ClusterFor(storages.SetMigrations)
	if err != nil {
		reg.Close() //nolint:errcheck
		return nil, nil, err
	}
	conn, err := cluster.Writer()
	if err != nil {
		reg.Close() //nolint:errcheck
		return nil, nil, err
	}
	runner := migrations.NewRunner(conn, zap.L().Named("migrations"))
	return runner, func() { reg.Close() }, nil
}

func newMigrationsListCommand(load settingsLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show every migration and its status",
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, done, err := migrationsRunner(load)
			if err != nil {
				return err
			}
			defer done()

			if err := runner.Bootstrap(cmd.Context()); err != nil {
				return err
			}
			list, err := runner.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, entry := range list {
				line := color.YellowString("[ ]")
				switch entry.Status {
				case migrations.StatusCompleted:
					line = color.GreenString("[x]")
				case migrations.StatusInProgress:
					line = color.RedString("[-]")
				}
				blocking := ""
				if entry.Blocking {
					blocking = color.RedString(" (blocking)")
				}
				cmd.Printf("%s %s: %s%s\n", line, entry.Group, entry.ID, blocking)
			}
			return nil
		},
	}
}

func newMigrationsRunCommand(load settingsLoader) *cobra.Command {
	var (
		group string
		fake  bool
		force bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, done, err := migrationsRunner(load)
			if err != nil {
				return err
			}
			defer done()
			runner.ShowProgress(true)

			opts := migrations.RunOptions{Fake: fake, Force: force}
			if group != "" {
				g := migrations.Group(group)
				opts.Group = &g
			}
			return runner.Run(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&group, "group", "", "Only run this migration group")
	cmd.Flags().BoolVar(&fake, "fake", false, "Record migrations as run without executing DDL")
	cmd.Flags().BoolVar(&force, "force", false, "Allow blocking migrations")
	return cmd
}

func newMigrationsReverseCommand(load settingsLoader) *cobra.Command {
	var (
		migration string
		fake      bool
		force     bool
	)
	cmd := &cobra.Command{
		Use:   "reverse",
		Short: "Roll back one migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, done, err := migrationsRunner(load)
			if err != nil {
				return err
			}
			defer done()
			return runner.Reverse(cmd.Context(), migration, migrations.RunOptions{Fake: fake, Force: force})
		},
	}
	cmd.Flags().StringVar(&migration, "migration", "", "Migration ID to reverse")
	cmd.Flags().BoolVar(&fake, "fake", false, "Record the rollback without executing DDL")
	cmd.Flags().BoolVar(&force, "force", false, "Reverse an in-progress migration")
	cmd.MarkFlagRequired("migration") //nolint:errcheck
	return cmd
}
