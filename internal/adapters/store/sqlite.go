package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/MyCarrier-DevOps/metric-harvest/internal/domain"
)

// MetricsTable is the table name used by the SQL exporters.
const MetricsTable = "commit_metrics"

// SQLiteExporter writes the merged table into a standalone SQLite database file.
type SQLiteExporter struct {
	path string
}

// NewSQLiteExporter creates an exporter writing to path. An existing database is replaced.
func NewSQLiteExporter(path string) *SQLiteExporter {
	return &SQLiteExporter{path: path}
}

// Name identifies the sink in logs.
func (e *SQLiteExporter) Name() string {
	return "sqlite:" + e.path
}

// Export recreates the database and inserts rows in one transaction.
func (e *SQLiteExporter) Export(ctx context.Context, rows []domain.RepoMetricRow) error {
	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing database: %w", err)
	}

	db, err := sql.Open("sqlite", e.path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, sqliteSchema()); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(exportColumns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)", MetricsTable, strings.Join(exportColumns, ", "), placeholders))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		values := exportValues(row)
		// SQLite has no time type; dates are stored as their table representation.
		values[3] = formatDate(row.Date)
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			return fmt.Errorf("insert %s: %w", row.Hash, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func sqliteSchema() string {
	return fmt.Sprintf(`CREATE TABLE %s (
	id INTEGER PRIMARY KEY,
	hash TEXT NOT NULL UNIQUE,
	author TEXT,
	date TEXT NOT NULL,
	commit_message TEXT,
	is_merge INTEGER NOT NULL,
	lines_changed INTEGER,
	insertions INTEGER,
	deletions INTEGER,
	dmm_unit_size REAL,
	dmm_unit_complexity REAL,
	dmm_unit_interfacing REAL,
	radon_LOC INTEGER,
	radon_LLOC INTEGER,
	radon_SLOC INTEGER,
	radon_comments INTEGER,
	radon_avg_cc REAL,
	radon_avg_MI REAL,
	radon_avg_vocabulary REAL,
	radon_avg_length REAL,
	radon_avg_volume REAL,
	radon_avg_difficulty REAL,
	radon_avg_effort REAL,
	radon_avg_time REAL,
	radon_avg_bugs REAL,
	repo_name TEXT NOT NULL
);
CREATE INDEX idx_%[1]s_repo_date ON %[1]s (repo_name, date);`, MetricsTable)
}
