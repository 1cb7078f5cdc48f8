// Package clicommon wires the flags and lifecycle every snuba command
// shares: logging setup and optional CPU profiling.
package clicommon

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/pprof"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/getsentry/snuba/pkg/logging"
)

type CommonConfig struct {
	verbose   bool
	jsonLog   bool
	profileTo string
}

func setupProfiling(commonCfg *CommonConfig) func() {
	if commonCfg.profileTo != "" {
		err := os.MkdirAll(filepath.Dir(commonCfg.profileTo), 0755)
		if err != nil {
			panic(fmt.Errorf("failed to create profile directory: %w", err))
		}
		profileF, err := os.OpenFile(commonCfg.profileTo, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
		if err != nil {
			panic(fmt.Errorf("failed to open profile file: %w", err))
		}
		err = pprof.StartCPUProfile(profileF)
		if err != nil {
			panic(fmt.Errorf("failed to start profile: %w", err))
		}
		return func() {
			pprof.StopCPUProfile()
			profileF.Close() //nolint:errcheck
		}
	}
	return func() {}
}

func (cfg *CommonConfig) SetUpCliFlags(flags *pflag.FlagSet) {
	flags.BoolVarP(&cfg.verbose, "verbose", "v", false, "Enable verbose logging")
	flags.BoolVar(&cfg.jsonLog, "json-log", false, "Enable JSON logging")
	flags.StringVar(&cfg.profileTo, "profiling", "", "Profile to file")
}

func SetupRoot(root *cobra.Command, commonCfg *CommonConfig) {
	commonCfg.SetUpCliFlags(root.PersistentFlags())

	profileClose := func() {}

	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		logOpts := logging.LogOpts{
			Verbose: commonCfg.verbose,
		}
		if commonCfg.jsonLog {
			logOpts.Encoding = "json"
		}
		zap.ReplaceGlobals(logOpts.NewLogger())

		profileClose = setupProfiling(commonCfg)
	}

	root.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		zap.L().Sync() //nolint:errcheck

		profileClose()
	}
}
