package store

import (
	"github.com/MyCarrier-DevOps/metric-harvest/internal/domain"
)

// exportColumns is the column order shared by the SQL exporters. The first
// column is the row ID; the rest follow the CSV table with repo_name last.
var exportColumns = func() []string {
	cols := []string{"id"}
	cols = append(cols, Columns[1:]...)
	return append(cols, RepoNameColumn)
}()

// exportValues returns the values of row in exportColumns order. Absent
// measures are nil so that drivers store NULL.
func exportValues(row domain.RepoMetricRow) []any {
	return []any{
		row.ID,
		row.Hash,
		row.Author,
		row.Date.UTC(),
		row.Message,
		row.IsMerge,
		row.LinesChanged,
		row.Insertions,
		row.Deletions,
		nullable(row.DMMUnitSize),
		nullable(row.DMMUnitComplexity),
		nullable(row.DMMUnitInterfacing),
		row.LOC,
		row.LLOC,
		row.SLOC,
		row.Comments,
		nullable(row.AvgCC),
		nullable(row.AvgMI),
		nullable(row.AvgVocabulary),
		nullable(row.AvgLength),
		nullable(row.AvgVolume),
		nullable(row.AvgDifficulty),
		nullable(row.AvgEffort),
		nullable(row.AvgTime),
		nullable(row.AvgBugs),
		row.RepoName,
	}
}

func nullable(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
