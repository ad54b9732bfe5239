package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newScanCmd creates the scan command.
func newScanCmd(deps *Dependencies) *cobra.Command {
	var outputPath string

	scanCmd := &cobra.Command{
		Use:   "scan <repository-url>",
		Short: "Harvest metrics for every relevant commit of one repository",
		Long: `scan clones the repository into <data>/repos/<name> (or reuses an existing
working copy), walks its main branch and merges one metric row per analyzable
commit into the result table.

The summary line written to stdout is tab-separated:
  repository  termination  visited  buffered  skipped  output`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, args[0], outputPath, deps)
		},
	}

	scanCmd.Flags().StringVarP(&outputPath, "output", "o", "",
		"Result table path (default <data>/results/<name>.csv)")

	return scanCmd
}

// runScan harvests a single repository.
func runScan(cmd *cobra.Command, url, outputPath string, deps *Dependencies) error {
	s, err := startSession(cmd, deps)
	if err != nil {
		return err
	}

	s.log.Info(s.ctx, "starting metric-harvest scan", map[string]interface{}{
		"url":     url,
		"output":  outputPath,
		"verbose": verbose,
	})

	summary, err := s.scanRepository(s.ctx, deps, url, outputPath)
	if err != nil {
		s.log.Error(s.ctx, "repository scan failed", err, map[string]interface{}{"url": url})
		return err
	}

	writer := deps.OutputWriterFactory()
	if err := writer.WriteSummary(summary); err != nil {
		s.log.Error(s.ctx, "failed to write output", err, nil)
		return fmt.Errorf("output error: %w", err)
	}
	return nil
}
