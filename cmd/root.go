// Package cmd provides the CLI commands for metric-harvest.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/MyCarrier-DevOps/metric-harvest/internal/domain"
	"github.com/MyCarrier-DevOps/metric-harvest/internal/usecases"
)

// Logger defines the logging interface used by the commands.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields map[string]interface{})
}

// MetricHarvester scans one repository and persists its metric rows.
type MetricHarvester interface {
	SaveMetricsForEachCommit(ctx context.Context, repo domain.Repository, outputPath string) (*domain.ScanSummary, error)
}

// ExportOptions selects the sinks of a merge.
type ExportOptions struct {
	// SQLitePath, when set, writes the merged table into a SQLite database.
	SQLitePath string

	// ClickHouse ships the merged table to the configured ClickHouse server.
	ClickHouse bool
}

// Dependencies holds all injectable dependencies for the commands.
// This enables testing by allowing mock implementations to be injected.
type Dependencies struct {
	// LoggerFactory creates a logger instance. It is called after flags are parsed.
	LoggerFactory func() Logger

	// ConfigLoader loads application configuration.
	ConfigLoader func() (*AppConfig, error)

	// RepositoryFactory opens or clones the repository at url.
	RepositoryFactory func(ctx context.Context, url string, cfg *AppConfig, log Logger) (domain.Repository, error)

	// HarvesterFactory creates the per-repository harvester.
	HarvesterFactory func(cfg *AppConfig, log Logger) MetricHarvester

	// RepositoryListFactory opens the batch table at path.
	RepositoryListFactory func(path string) domain.RepositoryList

	// CatalogFactory opens the results directory for merging.
	CatalogFactory func(cfg *AppConfig) domain.ResultCatalog

	// ExporterFactory creates the sinks requested on the merge command line.
	ExporterFactory func(cfg *AppConfig, opts ExportOptions) ([]domain.ResultExporter, error)

	// OutputWriterFactory creates a SummaryWriter.
	OutputWriterFactory func() domain.SummaryWriter

	// Stdout is the writer for standard output (for results).
	Stdout io.Writer

	// Stderr is the writer for standard error (for warnings/errors).
	Stderr io.Writer
}

// AppConfig holds application configuration loaded by ConfigLoader.
type AppConfig struct {
	// DataDir is the root of repos/ and results/.
	DataDir string

	// Harvest configures the harvester.
	Harvest usecases.HarvestOptions

	// AnalyzerCommand is the static analyzer executable.
	AnalyzerCommand string

	// GitToken is the optional clone token.
	GitToken string

	// ClickHouseConfig is passed to the ExporterFactory.
	ClickHouseConfig any

	// LogLevel is the log level setting.
	LogLevel string

	// LogAppName is the application name for logging.
	LogAppName string
}

// Command-line flags.
var (
	verbose bool
)

// defaultDeps holds the production dependencies.
// This is set by the production wiring in main or via SetDefaultDependencies.
var defaultDeps *Dependencies

// SetDefaultDependencies sets the default dependencies for production use.
// This should be called from main() before Execute().
func SetDefaultDependencies(deps *Dependencies) {
	defaultDeps = deps
}

// NewRootCmd creates the root command for metric-harvest.
func NewRootCmd() *cobra.Command {
	return NewRootCmdWithDeps(defaultDeps)
}

// NewRootCmdWithDeps creates the root command with explicit dependencies.
// This is the primary constructor that enables testing via dependency injection.
func NewRootCmdWithDeps(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "metric-harvest",
		Short: "Compute code-quality metrics for every commit of Git repositories",
		Long: `metric-harvest walks the main branch history of Git repositories, runs a
static analyzer on the snapshot at every commit that touches source files,
and stores one row of metrics per commit in <data>/results/<repo>.csv.

Scans resume from the newest persisted commit, skip commits whose code cannot
be analyzed, stop at the first commit with incompatible source, and abandon a
repository whose commits fail or run too slowly too often.

Examples:
  # Harvest one repository
  metric-harvest scan https://github.com/pallets/flask

  # Harvest every repository listed in a CSV with name,repo_url columns
  metric-harvest batch urls.csv --parallel 4

  # Merge all result tables and load them into SQLite
  metric-harvest merge --sqlite metrics.db`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable verbose/debug logging")

	rootCmd.AddCommand(
		newScanCmd(deps),
		newBatchCmd(deps),
		newMergeCmd(deps),
	)

	return rootCmd
}

// session is the state shared by every command run.
type session struct {
	ctx    context.Context
	log    Logger
	cfg    *AppConfig
	stderr io.Writer
}

// startSession applies the verbose flag, builds the logger and loads configuration.
func startSession(cmd *cobra.Command, deps *Dependencies) (*session, error) {
	if deps == nil {
		return nil, errors.New("dependencies not configured")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	stderr := deps.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	// Set log level based on verbose flag (best-effort)
	if verbose {
		if err := os.Setenv("LOG_LEVEL", "debug"); err != nil {
			writeWarningf(stderr, "warning: could not set log level: %v\n", err)
		}
	}

	log := deps.LoggerFactory()

	cfg, err := deps.ConfigLoader()
	if err != nil {
		log.Error(ctx, "failed to load configuration", err, nil)
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	return &session{ctx: ctx, log: log, cfg: cfg, stderr: stderr}, nil
}

// scanRepository opens url and harvests it into outputPath.
func (s *session) scanRepository(
	ctx context.Context,
	deps *Dependencies,
	url, outputPath string,
) (*domain.ScanSummary, error) {
	repo, err := deps.RepositoryFactory(ctx, url, s.cfg, s.log)
	if err != nil {
		return nil, describeRepositoryError(url, err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			s.log.Warn(ctx, "failed to close git repository", map[string]interface{}{
				"url":   url,
				"error": closeErr.Error(),
			})
		}
	}()

	harvester := deps.HarvesterFactory(s.cfg, s.log)
	summary, err := harvester.SaveMetricsForEachCommit(ctx, repo, outputPath)
	if err != nil {
		return nil, describeRepositoryError(url, err)
	}
	return summary, nil
}

// describeRepositoryError maps domain sentinels to user-facing messages.
func describeRepositoryError(url string, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidRepositoryURL):
		return fmt.Errorf("invalid repository URL %q: %w", url, err)
	case errors.Is(err, domain.ErrCloneFailure):
		return fmt.Errorf("could not clone %s: %w", url, err)
	case errors.Is(err, domain.ErrRepositoryNotFound):
		return fmt.Errorf("working copy of %s is not a git repository: %w", url, err)
	case errors.Is(err, domain.ErrNoMainBranch):
		return fmt.Errorf("no main or master branch in %s: %w", url, err)
	case errors.Is(err, domain.ErrResultTableCorrupt):
		return fmt.Errorf("result table of %s cannot be read: %w", url, err)
	default:
		return err
	}
}

// Execute runs the root command with ctx. Cancelling ctx stops running scans
// without persisting their partial results.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// writeWarningf writes a warning message to the given writer.
// This is a best-effort operation; errors are intentionally ignored
// because there is no recovery action if stderr writes fail.
func writeWarningf(w io.Writer, format string, args ...any) {
	_, err := fmt.Fprintf(w, format, args...)
	if err != nil {
		return
	}
}
