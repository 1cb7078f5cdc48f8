package cli

import (
	"encoding/json"
	"io"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/getsentry/snuba/pkg/datasets"
	"github.com/getsentry/snuba/pkg/metrics"
	"github.com/getsentry/snuba/pkg/request"
)

func newQueryCommand(load settingsLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Translate and run entity queries",
	}
	cmd.PersistentFlags().String("entity", "events", "Entity to query")
	cmd.PersistentFlags().String("body", "-", "Request body file, - for stdin")
	cmd.AddCommand(
		newQueryTranslateCommand(load),
		newQueryRunCommand(load),
	)
	return cmd
}

func readBody(cmd *cobra.Command) (map[string]any, error) {
	path, _ := cmd.Flags().GetString("body")
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	return body, nil
}

func buildPlan(cmd *cobra.Command, load settingsLoader) (*datasets.Plan, *datasets.Pipeline, func(), error) {
	s, err := load()
	if err != nil {
		return nil, nil, nil, err
	}
	entityName, _ := cmd.Flags().GetString("entity")
	entity, err := datasets.GetEntity(entityName)
	if err != nil {
		return nil, nil, nil, err
	}
	body, err := readBody(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	q, reqSettings, err := request.Build(body, entity.Name, entity.TimeColumn)
	if err != nil {
		return nil, nil, nil, err
	}

	reg, err := newRegistry(s)
	if err != nil {
		return nil, nil, nil, err
	}
	done := func() { reg.Close() } //nolint:errcheck

	scope := metrics.NewScope("query", prometheus.NewRegistry())
	pipeline := datasets.NewPipeline(reg, newStateStore(s), scope, s.Query)
	plan, err := pipeline.Build(cmd.Context(), q, reqSettings)
	if err != nil {
		done()
		return nil, nil, nil, err
	}
	return plan, pipeline, done, nil
}

func newQueryTranslateCommand(load settingsLoader) *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Print the SQL a request body translates to",
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, _, done, err := buildPlan(cmd, load)
			if err != nil {
				return err
			}
			defer done()

			if debug {
				spew.Fdump(cmd.ErrOrStderr(), plan.Physical)
			}
			cmd.Println(plan.SQL)
			return nil
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "Dump the physical query tree")
	return cmd
}

func newQueryRunCommand(load settingsLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a request body and print the rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, pipeline, done, err := buildPlan(cmd, load)
			if err != nil {
				return err
			}
			defer done()

			rows, err := pipeline.Execute(cmd.Context(), plan)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"data": rows})
		},
	}
}
