package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/getsentry/snuba/pkg/deploy"
)

func newDeployCommand(load settingsLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Work with the deployment manifest",
	}
	cmd.PersistentFlags().String("manifest", "deploy.yaml", "Manifest path (validate accepts a glob)")
	cmd.AddCommand(
		newDeployValidateCommand(),
		newDeployRenderCommand(),
		newDeployDiffCommand(),
		newDeployPatchesCommand(load),
		newDeployChartCommand(load),
	)
	return cmd
}

func manifestFlag(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("manifest")
	return path
}

func newDeployValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate manifests against the schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			manifests, err := deploy.LoadGlob(manifestFlag(cmd))
			if err != nil {
				return err
			}
			for path, m := range manifests {
				color.Green("%s: %d steps ok", path, len(m.Steps))
			}
			return nil
		},
	}
}

func newDeployRenderCommand() *cobra.Command {
	var sha string
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Substitute the sha and print the release",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := deploy.Load(manifestFlag(cmd))
			if err != nil {
				return err
			}
			release, err := m.Render(sha)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(release)
			if err != nil {
				return err
			}
			cmd.Print(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&sha, "sha", "", "Release commit sha")
	cmd.MarkFlagRequired("sha") //nolint:errcheck
	return cmd
}

func newDeployDiffCommand() *cobra.Command {
	var fromSHA, toSHA string
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Show image changes between two shas",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := deploy.Load(manifestFlag(cmd))
			if err != nil {
				return err
			}
			from, err := m.Render(fromSHA)
			if err != nil {
				return err
			}
			to, err := m.Render(toSHA)
			if err != nil {
				return err
			}
			changes, err := deploy.Diff(from, to)
			if err != nil {
				return err
			}
			if len(changes) == 0 {
				cmd.Println("no changes")
				return nil
			}
			for _, c := range changes {
				cmd.Printf("%s %s:\n", c.Type, c.Path)
				color.Red("  - %v", c.From)
				color.Green("  + %v", c.To)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fromSHA, "from", "", "Currently deployed sha")
	cmd.Flags().StringVar(&toSHA, "to", "", "Candidate sha")
	cmd.MarkFlagRequired("from") //nolint:errcheck
	cmd.MarkFlagRequired("to")   //nolint:errcheck
	return cmd
}

func newDeployPatchesCommand(load settingsLoader) *cobra.Command {
	var sha string
	cmd := &cobra.Command{
		Use:   "patches",
		Short: "Print the Kubernetes objects for a release",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := load()
			if err != nil {
				return err
			}
			m, err := deploy.Load(manifestFlag(cmd))
			if err != nil {
				return err
			}
			release, err := m.Render(sha)
			if err != nil {
				return err
			}
			out, err := release.PatchYAML(s.Deploy.Namespace)
			if err != nil {
				return err
			}
			cmd.Print(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&sha, "sha", "", "Release commit sha")
	cmd.MarkFlagRequired("sha") //nolint:errcheck
	return cmd
}

func newDeployChartCommand(load settingsLoader) *cobra.Command {
	var (
		sha     string
		name    string
		version string
		outDir  string
	)
	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Package a release as a Helm chart",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := load()
			if err != nil {
				return err
			}
			m, err := deploy.Load(manifestFlag(cmd))
			if err != nil {
				return err
			}
			release, err := m.Render(sha)
			if err != nil {
				return err
			}
			chart, err := release.Chart(name, version, s.Deploy.Namespace)
			if err != nil {
				return err
			}
			path, err := deploy.WriteChart(chart, outDir)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&sha, "sha", "", "Release commit sha")
	cmd.Flags().StringVar(&name, "name", "snuba", "Chart name")
	cmd.Flags().StringVar(&version, "version", "0.1.0", "Chart version")
	cmd.Flags().StringVar(&outDir, "out", ".", "Output directory")
	cmd.MarkFlagRequired("sha") //nolint:errcheck
	return cmd
}
