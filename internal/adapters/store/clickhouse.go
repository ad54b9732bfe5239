package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/MyCarrier-DevOps/metric-harvest/internal/domain"
)

// DefaultClickHouseDatabase is used when no database is configured.
const DefaultClickHouseDatabase = "metrics"

// ClickHouseConfig holds the connection settings of the ClickHouse exporter.
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

// ClickHouseSession is the subset of a ClickHouse connection used by the exporter.
type ClickHouseSession interface {
	Exec(ctx context.Context, query string) error
	InsertRows(ctx context.Context, table string, rows [][]any) error
	Close() error
}

// ClickHouseSessionFactory opens a session. Tests replace the default.
type ClickHouseSessionFactory func(ctx context.Context, cfg ClickHouseConfig) (ClickHouseSession, error)

// ClickHouseExporter writes the merged table into a ClickHouse table.
type ClickHouseExporter struct {
	cfg  ClickHouseConfig
	open ClickHouseSessionFactory
}

// NewClickHouseExporter creates an exporter using clickhouse-go.
func NewClickHouseExporter(cfg ClickHouseConfig) *ClickHouseExporter {
	if cfg.Database == "" {
		cfg.Database = DefaultClickHouseDatabase
	}
	return &ClickHouseExporter{cfg: cfg, open: OpenClickHouseSession}
}

// WithSessionFactory replaces how sessions are opened.
func (e *ClickHouseExporter) WithSessionFactory(open ClickHouseSessionFactory) *ClickHouseExporter {
	e.open = open
	return e
}

// Name identifies the sink in logs.
func (e *ClickHouseExporter) Name() string {
	return "clickhouse:" + e.cfg.Addr + "/" + e.cfg.Database
}

// Export creates the table when missing, truncates it and inserts rows in one batch.
func (e *ClickHouseExporter) Export(ctx context.Context, rows []domain.RepoMetricRow) error {
	session, err := e.open(ctx, e.cfg)
	if err != nil {
		return fmt.Errorf("connect to clickhouse: %w", err)
	}
	defer session.Close()

	table := e.cfg.Database + "." + MetricsTable
	if err := session.Exec(ctx, clickHouseSchema(table)); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	if err := session.Exec(ctx, "TRUNCATE TABLE IF EXISTS "+table); err != nil {
		return fmt.Errorf("truncate table %s: %w", table, err)
	}

	if len(rows) == 0 {
		return nil
	}

	values := make([][]any, len(rows))
	for i, row := range rows {
		values[i] = clickHouseValues(row)
	}
	if err := session.InsertRows(ctx, table, values); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

// clickHouseValues converts integers to the widths of the table schema.
func clickHouseValues(row domain.RepoMetricRow) []any {
	values := exportValues(row)
	for i, v := range values {
		if n, ok := v.(int); ok {
			values[i] = int64(n)
		}
	}
	return values
}

func clickHouseSchema(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id Int64,
	hash String,
	author String,
	date DateTime('UTC'),
	commit_message String,
	is_merge Bool,
	lines_changed Int64,
	insertions Int64,
	deletions Int64,
	dmm_unit_size Nullable(Float64),
	dmm_unit_complexity Nullable(Float64),
	dmm_unit_interfacing Nullable(Float64),
	radon_LOC Int64,
	radon_LLOC Int64,
	radon_SLOC Int64,
	radon_comments Int64,
	radon_avg_cc Nullable(Float64),
	radon_avg_MI Nullable(Float64),
	radon_avg_vocabulary Nullable(Float64),
	radon_avg_length Nullable(Float64),
	radon_avg_volume Nullable(Float64),
	radon_avg_difficulty Nullable(Float64),
	radon_avg_effort Nullable(Float64),
	radon_avg_time Nullable(Float64),
	radon_avg_bugs Nullable(Float64),
	repo_name LowCardinality(String)
) ENGINE = ReplacingMergeTree
ORDER BY (repo_name, date, hash)`, table)
}

// clickHouseConn adapts a clickhouse-go native connection to ClickHouseSession.
type clickHouseConn struct {
	conn driver.Conn
}

// OpenClickHouseSession connects with the native protocol and verifies the connection.
func OpenClickHouseSession(ctx context.Context, cfg ClickHouseConfig) (ClickHouseSession, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("clickhouse address is empty")
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: strings.Split(cfg.Addr, ","),
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &clickHouseConn{conn: conn}, nil
}

func (c *clickHouseConn) Exec(ctx context.Context, query string) error {
	return c.conn.Exec(ctx, query)
}

func (c *clickHouseConn) InsertRows(ctx context.Context, table string, rows [][]any) error {
	batch, err := c.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s (%s)", table, strings.Join(exportColumns, ", ")))
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := batch.Append(row...); err != nil {
			_ = batch.Abort()
			return err
		}
	}
	return batch.Send()
}

func (c *clickHouseConn) Close() error {
	return c.conn.Close()
}
