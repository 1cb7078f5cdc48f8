package cli

import (
	"github.com/spf13/cobra"
)

func newSettingsCommand(load settingsLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Print the effective settings after defaults and environment overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := load()
			if err != nil {
				return err
			}
			out, err := s.Dump()
			if err != nil {
				return err
			}
			cmd.Print(string(out))
			return nil
		},
	})
	return cmd
}
