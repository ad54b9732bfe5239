package usecases

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/MyCarrier-DevOps/metric-harvest/internal/domain"
)

// MergeReport describes a results merge.
type MergeReport struct {
	Repositories int
	Rows         int
	Duplicates   int
	Path         string
	Exported     []string
}

// ResultsMerger combines every per-repository result table into one table
// tagged with the repository name and optionally ships it to exporters.
type ResultsMerger struct {
	catalog   domain.ResultCatalog
	exporters []domain.ResultExporter
	logger    Logger
}

// NewResultsMerger creates a merger over catalog.
func NewResultsMerger(catalog domain.ResultCatalog, exporters []domain.ResultExporter, log Logger) *ResultsMerger {
	return &ResultsMerger{catalog: catalog, exporters: exporters, logger: log}
}

// Merge concatenates the tables in repository-name order, drops rows whose hash
// was already seen, assigns dense IDs and writes the merged table. Exporters
// run after the table is written; their failures are joined into the result.
func (m *ResultsMerger) Merge(ctx context.Context) (*MergeReport, error) {
	tables, err := m.catalog.RepositoryTables()
	if err != nil {
		return nil, fmt.Errorf("failed to load result tables: %w", err)
	}

	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	report := &MergeReport{Repositories: len(names)}
	seen := make(map[string]struct{})
	var merged []domain.RepoMetricRow

	for _, name := range names {
		for _, row := range tables[name] {
			if _, dup := seen[row.Hash]; dup {
				report.Duplicates++
				continue
			}
			seen[row.Hash] = struct{}{}
			row.ID = len(merged)
			merged = append(merged, domain.RepoMetricRow{RepoName: name, MetricRow: row})
		}
	}
	report.Rows = len(merged)

	path, err := m.catalog.WriteMerged(merged)
	if err != nil {
		return nil, err
	}
	report.Path = path

	m.logger.Info(ctx, "merged results", map[string]interface{}{
		"repositories": report.Repositories,
		"rows":         report.Rows,
		"duplicates":   report.Duplicates,
		"output":       path,
	})

	var errs []error
	for _, exp := range m.exporters {
		if err := exp.Export(ctx, merged); err != nil {
			m.logger.Error(ctx, "export failed", err, map[string]interface{}{"sink": exp.Name()})
			errs = append(errs, fmt.Errorf("%s: %w", exp.Name(), err))
			continue
		}
		report.Exported = append(report.Exported, exp.Name())
		m.logger.Info(ctx, "exported results", map[string]interface{}{
			"sink": exp.Name(),
			"rows": len(merged),
		})
	}

	return report, errors.Join(errs...)
}
