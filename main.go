// Package main is the entry point for the metric-harvest CLI application.
// metric-harvest computes static code-quality metrics for every commit on the
// main branch of Git repositories and stores them as one table per repository.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/MyCarrier-DevOps/goLibMyCarrier/logger"

	"github.com/MyCarrier-DevOps/metric-harvest/cmd"
	"github.com/MyCarrier-DevOps/metric-harvest/internal/adapters/analyzer"
	"github.com/MyCarrier-DevOps/metric-harvest/internal/adapters/git"
	logadapter "github.com/MyCarrier-DevOps/metric-harvest/internal/adapters/logger"
	"github.com/MyCarrier-DevOps/metric-harvest/internal/adapters/output"
	"github.com/MyCarrier-DevOps/metric-harvest/internal/adapters/store"
	"github.com/MyCarrier-DevOps/metric-harvest/internal/adapters/units"
	"github.com/MyCarrier-DevOps/metric-harvest/internal/domain"
	"github.com/MyCarrier-DevOps/metric-harvest/internal/infrastructure/config"
	"github.com/MyCarrier-DevOps/metric-harvest/internal/usecases"
)

func main() {
	// The logger is built on first use so that -v can raise LOG_LEVEL first.
	var (
		once    sync.Once
		adapter *logadapter.ZapAdapter
	)
	getLogger := func() *logadapter.ZapAdapter {
		once.Do(func() {
			adapter = logadapter.NewZapAdapter(logger.NewZapLoggerFromConfig())
		})
		return adapter
	}

	// Wire up production dependencies
	deps := &cmd.Dependencies{
		LoggerFactory: func() cmd.Logger {
			return getLogger()
		},

		ConfigLoader: func() (*cmd.AppConfig, error) {
			cfg, err := config.Load()
			if err != nil {
				return nil, err
			}
			return newAppConfig(cfg), nil
		},

		RepositoryFactory: func(ctx context.Context, url string, cfg *cmd.AppConfig, _ cmd.Logger) (domain.Repository, error) {
			return git.OpenOrClone(ctx, url, git.Options{
				DataDir:   cfg.DataDir,
				Token:     cfg.GitToken,
				Extractor: units.NewTreeSitterExtractor(cfg.Harvest.Extensions),
			}, getLogger())
		},

		HarvesterFactory: func(cfg *cmd.AppConfig, _ cmd.Logger) cmd.MetricHarvester {
			log := getLogger()
			return usecases.NewHarvester(
				analyzer.NewRadon(cfg.AnalyzerCommand, log),
				func(path string) domain.ResultStore { return store.NewCSVStore(path) },
				cfg.Harvest,
				log,
			)
		},

		RepositoryListFactory: func(path string) domain.RepositoryList {
			return store.NewURLTable(path)
		},

		CatalogFactory: func(cfg *cmd.AppConfig) domain.ResultCatalog {
			return store.NewResultsDir(cfg.DataDir)
		},

		ExporterFactory: newExporters,

		OutputWriterFactory: func() domain.SummaryWriter {
			return output.NewWriter()
		},

		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cmd.SetDefaultDependencies(deps)
	err := cmd.Execute(ctx)

	stop()
	if adapter != nil {
		// Flushing stderr can fail on some terminals; nothing useful to do about it.
		_ = adapter.Sync()
	}
	if err != nil {
		os.Exit(1)
	}
}

// newAppConfig maps the loaded configuration onto the command configuration.
func newAppConfig(cfg *config.Config) *cmd.AppConfig {
	return &cmd.AppConfig{
		DataDir: cfg.DataDir,
		Harvest: usecases.HarvestOptions{
			DataDir:     cfg.DataDir,
			Extensions:  cfg.Extensions,
			NewestFirst: cfg.NewestFirst,
			Resume:      cfg.Resume,
			Policy:      cfg.Policy,
		},
		AnalyzerCommand:  cfg.AnalyzerCommand,
		GitToken:         cfg.GitToken,
		ClickHouseConfig: cfg.ClickHouse,
		LogLevel:         cfg.LogLevel,
		LogAppName:       cfg.LogAppName,
	}
}

// newExporters builds the merge sinks requested on the command line.
func newExporters(cfg *cmd.AppConfig, opts cmd.ExportOptions) ([]domain.ResultExporter, error) {
	var exporters []domain.ResultExporter

	if opts.SQLitePath != "" {
		exporters = append(exporters, store.NewSQLiteExporter(opts.SQLitePath))
	}

	if opts.ClickHouse {
		chConfig, ok := cfg.ClickHouseConfig.(config.ClickHouse)
		if !ok {
			return nil, newConfigTypeError("config.ClickHouse")
		}
		if !chConfig.Enabled() {
			return nil, config.ErrClickHouseNotConfigured
		}
		exporters = append(exporters, store.NewClickHouseExporter(store.ClickHouseConfig{
			Addr:     chConfig.Addr,
			Database: chConfig.Database,
			Username: chConfig.Username,
			Password: chConfig.Password,
		}))
	}

	return exporters, nil
}

func newConfigTypeError(expected string) error {
	return &configTypeError{expected: expected}
}

// configTypeError is returned when configuration type assertion fails.
type configTypeError struct {
	expected string
}

func (e *configTypeError) Error() string {
	return "invalid configuration type: expected " + e.expected
}
