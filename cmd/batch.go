package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MyCarrier-DevOps/metric-harvest/internal/domain"
	"github.com/MyCarrier-DevOps/metric-harvest/internal/usecases"
)

// newBatchCmd creates the batch command.
func newBatchCmd(deps *Dependencies) *cobra.Command {
	var parallel int

	batchCmd := &cobra.Command{
		Use:   "batch <urls.csv>",
		Short: "Harvest every repository listed in a CSV file",
		Long: `batch reads a CSV with "name" and "repo_url" columns and scans every row
whose "computed" column is not True. Each finished row is flagged computed and
the file is rewritten immediately, so an interrupted batch resumes where it
stopped. Rows whose scan fails stay uncomputed and are retried next run.

Use --parallel only when the listed repositories have distinct names; scans of
the same name share one working copy.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, args[0], parallel, deps)
		},
	}

	batchCmd.Flags().IntVarP(&parallel, "parallel", "p", 1,
		"Number of repositories scanned concurrently")

	return batchCmd
}

// runBatch drives the batch table at path.
func runBatch(cmd *cobra.Command, path string, parallel int, deps *Dependencies) error {
	s, err := startSession(cmd, deps)
	if err != nil {
		return err
	}

	s.log.Info(s.ctx, "starting metric-harvest batch", map[string]interface{}{
		"urls":     path,
		"parallel": parallel,
	})

	scan := func(ctx context.Context, url string) (*domain.ScanSummary, error) {
		return s.scanRepository(ctx, deps, url, "")
	}
	scheduler := usecases.NewBatchScheduler(scan, parallel, s.log)

	report, err := scheduler.Run(s.ctx, deps.RepositoryListFactory(path))
	if err != nil {
		s.log.Error(s.ctx, "batch stopped", err, map[string]interface{}{"urls": path})
		return fmt.Errorf("batch error: %w", err)
	}

	writer := deps.OutputWriterFactory()
	for _, summary := range report.Summaries {
		if err := writer.WriteSummary(summary); err != nil {
			s.log.Error(s.ctx, "failed to write output", err, nil)
			return fmt.Errorf("output error: %w", err)
		}
	}

	if report.Failed > 0 {
		writeWarningf(s.stderr, "warning: %d of %d repositories failed and remain uncomputed\n",
			report.Failed, report.Listed-report.Skipped)
	}
	return nil
}
