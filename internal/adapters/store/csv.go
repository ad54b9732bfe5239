// Package store provides adapters for result table persistence and export.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/MyCarrier-DevOps/metric-harvest/internal/domain"
)

// CSVStore implements domain.ResultStore over one CSV file.
// It is the sole writer of that file; writes replace it atomically.
type CSVStore struct {
	path string
}

// NewCSVStore creates a store backed by path. The file need not exist.
func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// Path returns the backing file path.
func (s *CSVStore) Path() string {
	return s.path
}

// Load reads the persisted rows. A missing file yields nil rows and no error.
func (s *CSVStore) Load() ([]domain.MetricRow, error) {
	header, records, err := readRecords(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if header == nil {
		return nil, nil
	}

	dec, err := newRowDecoder(header)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}

	rows := make([]domain.MetricRow, 0, len(records))
	for i, record := range records {
		row, err := dec.decode(record)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", s.path, i+2, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// NewestHash returns the hash of the last row, which is the newest commit by date.
func (s *CSVStore) NewestHash() (string, error) {
	rows, err := s.Load()
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rows[len(rows)-1].Hash, nil
}

// MergeAndPersist merges rows after the persisted ones and rewrites the file.
// It returns the number of rows in the rewritten table.
func (s *CSVStore) MergeAndPersist(rows []domain.MetricRow) (int, error) {
	existing, err := s.Load()
	if err != nil {
		return 0, err
	}

	merged := MergeRows(existing, rows)
	records := make([][]string, len(merged))
	for i, row := range merged {
		records[i] = encodeRow(row)
	}

	if err := writeAtomic(s.path, Columns, records); err != nil {
		return 0, err
	}
	return len(merged), nil
}

// Discard deletes the persisted table. A missing file is not an error.
func (s *CSVStore) Discard() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", s.path, err)
	}
	return nil
}

// MergeRows concatenates existing and incoming, keeps the first row seen for
// each hash, converts dates to UTC, stable-sorts ascending by date and assigns
// dense IDs starting at zero.
func MergeRows(existing, incoming []domain.MetricRow) []domain.MetricRow {
	merged := make([]domain.MetricRow, 0, len(existing)+len(incoming))
	seen := make(map[string]struct{}, len(existing)+len(incoming))

	for _, batch := range [][]domain.MetricRow{existing, incoming} {
		for _, row := range batch {
			if _, dup := seen[row.Hash]; dup {
				continue
			}
			seen[row.Hash] = struct{}{}
			row.Date = row.Date.UTC()
			merged = append(merged, row)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Date.Before(merged[j].Date)
	})
	for i := range merged {
		merged[i].ID = i
	}
	return merged
}

// readRecords returns the header and data records of a CSV file.
// An empty file yields a nil header.
func readRecords(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("%w: %s: %w", domain.ErrResultTableCorrupt, path, err)
	}

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", domain.ErrResultTableCorrupt, path, err)
	}
	return header, records, nil
}

// writeAtomic writes a CSV file through a temporary file in the same directory
// followed by a rename, so readers never observe a partial table.
func writeAtomic(path string, header []string, records [][]string) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	w := csv.NewWriter(tmp)
	if err = w.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err = w.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
