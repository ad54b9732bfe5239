package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MyCarrier-DevOps/metric-harvest/internal/usecases"
)

// newMergeCmd creates the merge command.
func newMergeCmd(deps *Dependencies) *cobra.Command {
	var opts ExportOptions

	mergeCmd := &cobra.Command{
		Use:   "merge",
		Short: "Combine every result table into one tagged with the repository name",
		Long: `merge reads every <data>/results/*.csv, adds a repo_name column, drops
commits already seen in another table, renumbers the rows and writes
<data>/results/_all_results.csv. The merged path is written to stdout.

With --sqlite the merged rows are also written to a fresh SQLite database;
with --clickhouse they replace the contents of the ClickHouse table configured
through CLICKHOUSE_ADDR, CLICKHOUSE_DATABASE, CLICKHOUSE_USERNAME and
CLICKHOUSE_PASSWORD.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMerge(cmd, opts, deps)
		},
	}

	mergeCmd.Flags().StringVar(&opts.SQLitePath, "sqlite", "",
		"Also write the merged rows to this SQLite database")
	mergeCmd.Flags().BoolVar(&opts.ClickHouse, "clickhouse", false,
		"Also load the merged rows into ClickHouse")

	return mergeCmd
}

// runMerge merges the result tables and runs the requested exports.
func runMerge(cmd *cobra.Command, opts ExportOptions, deps *Dependencies) error {
	s, err := startSession(cmd, deps)
	if err != nil {
		return err
	}

	exporters, err := deps.ExporterFactory(s.cfg, opts)
	if err != nil {
		s.log.Error(s.ctx, "failed to configure exporters", err, nil)
		return fmt.Errorf("export configuration error: %w", err)
	}

	merger := usecases.NewResultsMerger(deps.CatalogFactory(s.cfg), exporters, s.log)
	report, err := merger.Merge(s.ctx)
	if report == nil {
		return fmt.Errorf("merge error: %w", err)
	}

	writer := deps.OutputWriterFactory()
	if writeErr := writer.WritePath(report.Path); writeErr != nil {
		s.log.Error(s.ctx, "failed to write output", writeErr, nil)
		return fmt.Errorf("output error: %w", writeErr)
	}

	if err != nil {
		return fmt.Errorf("export error: %w", err)
	}
	return nil
}
