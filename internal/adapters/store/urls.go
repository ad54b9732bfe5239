package store

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/MyCarrier-DevOps/metric-harvest/internal/domain"
)

// Batch table columns.
const (
	URLNameColumn     = "name"
	URLColumn         = "repo_url"
	URLComputedColumn = "computed"
)

// URLTable implements domain.RepositoryList over a CSV file with name, repo_url
// and an optional computed column. Other columns are preserved on rewrite.
type URLTable struct {
	path string

	mu      sync.Mutex
	header  []string
	records [][]string
	nameIdx int
	urlIdx  int
	doneIdx int
}

// NewURLTable creates a table backed by path.
func NewURLTable(path string) *URLTable {
	return &URLTable{path: path}
}

// Entries reads the table. A missing computed column is added, all false.
func (t *URLTable) Entries() ([]domain.BatchEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	header, records, err := readRecords(t.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch table: %w", err)
	}
	if header == nil {
		return nil, fmt.Errorf("batch table %s is empty", t.path)
	}

	t.header = header
	t.records = records
	t.nameIdx, t.urlIdx, t.doneIdx = -1, -1, -1
	for i, col := range header {
		switch columnName(col) {
		case URLNameColumn:
			t.nameIdx = i
		case URLColumn:
			t.urlIdx = i
		case URLComputedColumn:
			t.doneIdx = i
		}
	}
	if t.urlIdx < 0 {
		return nil, fmt.Errorf("batch table %s has no %q column", t.path, URLColumn)
	}
	if t.doneIdx < 0 {
		t.header = append(t.header, URLComputedColumn)
		t.doneIdx = len(t.header) - 1
	}

	entries := make([]domain.BatchEntry, len(records))
	for i := range t.records {
		for len(t.records[i]) < len(t.header) {
			t.records[i] = append(t.records[i], "")
		}
		rec := t.records[i]
		if rec[t.doneIdx] == "" {
			rec[t.doneIdx] = formatBool(false)
		}

		computed, err := strconv.ParseBool(rec[t.doneIdx])
		if err != nil {
			return nil, fmt.Errorf("batch table %s line %d: invalid %s value %q", t.path, i+2, URLComputedColumn, rec[t.doneIdx])
		}
		entries[i] = domain.BatchEntry{
			URL:      strings.TrimSpace(rec[t.urlIdx]),
			Computed: computed,
		}
		if t.nameIdx >= 0 {
			entries[i].Name = rec[t.nameIdx]
		}
	}
	return entries, nil
}

// MarkComputed sets computed=True on the entry at index and rewrites the table.
func (t *URLTable) MarkComputed(index int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.header == nil {
		return fmt.Errorf("batch table %s has not been read", t.path)
	}
	if index < 0 || index >= len(t.records) {
		return fmt.Errorf("batch table %s has no entry %d", t.path, index)
	}

	t.records[index][t.doneIdx] = formatBool(true)
	return writeAtomic(t.path, t.header, t.records)
}
