package store

import (
	"fmt"

	"github.com/MyCarrier-DevOps/metric-harvest/internal/domain"
)

// MergedFileName is the name of the cross-repository table inside the results directory.
const MergedFileName = "_all_results.csv"

// MergedTableWriter writes the cross-repository table: Columns followed by repo_name.
type MergedTableWriter struct {
	path string
}

// NewMergedTableWriter creates a writer for path.
func NewMergedTableWriter(path string) *MergedTableWriter {
	return &MergedTableWriter{path: path}
}

// Path returns the destination file.
func (w *MergedTableWriter) Path() string {
	return w.path
}

// Write replaces the merged table with rows.
func (w *MergedTableWriter) Write(rows []domain.RepoMetricRow) error {
	header := append(append([]string{}, Columns...), RepoNameColumn)

	records := make([][]string, len(rows))
	for i, row := range rows {
		records[i] = append(encodeRow(row.MetricRow), row.RepoName)
	}

	if err := writeAtomic(w.path, header, records); err != nil {
		return fmt.Errorf("failed to write merged table: %w", err)
	}
	return nil
}

// ReadMergedTable reads a table written by MergedTableWriter.
func ReadMergedTable(path string) ([]domain.RepoMetricRow, error) {
	header, records, err := readRecords(path)
	if err != nil {
		return nil, err
	}
	if header == nil {
		return nil, nil
	}

	dec, err := newRowDecoder(header)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	repoIdx, ok := dec.index[RepoNameColumn]
	if !ok {
		return nil, fmt.Errorf("%w: %s: missing column %q", domain.ErrResultTableCorrupt, path, RepoNameColumn)
	}

	rows := make([]domain.RepoMetricRow, 0, len(records))
	for i, record := range records {
		row, err := dec.decode(record)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		var name string
		if repoIdx < len(record) {
			name = record[repoIdx]
		}
		rows = append(rows, domain.RepoMetricRow{RepoName: name, MetricRow: row})
	}
	return rows, nil
}
