package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MyCarrier-DevOps/metric-harvest/internal/domain"
)

// ResultsDir implements domain.ResultCatalog over <dataDir>/results.
type ResultsDir struct {
	dir string
}

// NewResultsDir creates a catalog for the results directory of dataDir.
func NewResultsDir(dataDir string) *ResultsDir {
	if dataDir == "" {
		dataDir = domain.DefaultDataDir
	}
	return &ResultsDir{dir: filepath.Join(dataDir, "results")}
}

// Dir returns the results directory.
func (r *ResultsDir) Dir() string {
	return r.dir
}

// RepositoryTables loads every <name>.csv except the merged table.
func (r *ResultsDir) RepositoryTables() (map[string][]domain.MetricRow, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string][]domain.MetricRow{}, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", r.dir, err)
	}

	tables := make(map[string][]domain.MetricRow)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".csv") || name == MergedFileName || strings.HasPrefix(name, ".") {
			continue
		}

		rows, err := NewCSVStore(filepath.Join(r.dir, name)).Load()
		if err != nil {
			return nil, err
		}
		tables[strings.TrimSuffix(name, ".csv")] = rows
	}
	return tables, nil
}

// WriteMerged replaces <results>/_all_results.csv.
func (r *ResultsDir) WriteMerged(rows []domain.RepoMetricRow) (string, error) {
	w := NewMergedTableWriter(filepath.Join(r.dir, MergedFileName))
	if err := w.Write(rows); err != nil {
		return "", err
	}
	return w.Path(), nil
}
