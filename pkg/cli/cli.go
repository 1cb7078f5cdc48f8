// Package cli assembles the snuba command tree.
package cli

import (
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	clicommon "github.com/getsentry/snuba/pkg/cli_common"
	"github.com/getsentry/snuba/pkg/clusters"
	"github.com/getsentry/snuba/pkg/settings"
	"github.com/getsentry/snuba/pkg/state"
)

// Main runs the root command and exits nonzero on error; cobra has
// already printed the failure.
func Main() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	var (
		commonCfg    clicommon.CommonConfig
		settingsPath string
	)
	root := &cobra.Command{
		Use:          "snuba",
		Short:        "snuba event storage and query service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&settingsPath, "settings", "", "Settings file (json, yaml or toml)")
	clicommon.SetupRoot(root, &commonCfg)

	loader := func() (settings.Settings, error) {
		return settings.Load(settingsPath)
	}
	root.AddCommand(
		newDeployCommand(loader),
		newMigrationsCommand(loader),
		newSubscriptionsCommand(loader),
		newQueryCommand(loader),
		newSettingsCommand(loader),
		newBootstrapCommand(loader),
	)
	return root
}

type settingsLoader func() (settings.Settings, error)

func newRegistry(s settings.Settings) (*clusters.Registry, error) {
	return clusters.NewRegistry(s.Clusters)
}

func newStateStore(s settings.Settings) *state.Store {
	return state.NewStore(redis.NewClient(&redis.Options{
		Addr:     s.Redis.Addr,
		DB:       s.Redis.DB,
		Password: s.Redis.Password,
	}))
}
