package catalog

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// Source yields the SQL statements a catalog is built from.
type Source interface {
	// Name describes the source in build records.
	Name() string
	// Each calls fn for every statement, stopping at the first error.
	Each(ctx context.Context, fn func(sql string) error) error
}

// DefaultCSVColumn is the CSV header holding SQL text.
const DefaultCSVColumn = "sql"

// CSVSource reads statements from one column of a CSV file with a header row.
type CSVSource struct {
	Reader io.Reader
	// Column is the header of the SQL column (defaults to "sql")
	Column string
	// Label names the source in build records (defaults to "csv")
	Label string
}

// Name implements Source.
func (s CSVSource) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return "csv"
}

// Each implements Source.
func (s CSVSource) Each(ctx context.Context, fn func(string) error) error {
	column := s.Column
	if column == "" {
		column = DefaultCSVColumn
	}

	r := csv.NewReader(s.Reader)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read csv header: %w", err)
	}

	col := -1
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), column) {
			col = i
			break
		}
	}
	if col < 0 {
		return fmt.Errorf("csv column %q not found in header %v", column, header)
	}

	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read csv line %d: %w", line, err)
		}
		if col >= len(row) {
			continue
		}
		if err := fn(row[col]); err != nil {
			return err
		}
	}
}

// Query log presets.
const (
	// PostgresStatementsQuery reads normalized statements from pg_stat_statements.
	PostgresStatementsQuery = `SELECT query FROM pg_stat_statements WHERE query IS NOT NULL`
	// MySQLDigestQuery reads statement digests from performance_schema.
	MySQLDigestQuery = `SELECT DIGEST_TEXT FROM performance_schema.events_statements_summary_by_digest WHERE DIGEST_TEXT IS NOT NULL`
)

// QueryLogSource reads statements from a live database, one per row of the
// first column of Query.
type QueryLogSource struct {
	DB    *sql.DB
	Query string
	// Label names the source in build records (defaults to "query_log")
	Label string
}

// Name implements Source.
func (s QueryLogSource) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return "query_log"
}

// Each implements Source.
func (s QueryLogSource) Each(ctx context.Context, fn func(string) error) error {
	if s.DB == nil {
		return fmt.Errorf("query log source has no database")
	}
	rows, err := s.DB.QueryContext(ctx, s.Query)
	if err != nil {
		return fmt.Errorf("failed to query statement log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var text sql.NullString
		if err := rows.Scan(&text); err != nil {
			return fmt.Errorf("failed to scan statement: %w", err)
		}
		if !text.Valid {
			continue
		}
		if err := fn(text.String); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ConnectPostgres opens a Postgres connection for a query log source.
func ConnectPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	logger.Debug("connecting to postgres", slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	db := stdlib.OpenDB(*cfg)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return db, nil
}

// ConnectMySQL opens a MySQL connection for a query log source.
func ConnectMySQL(ctx context.Context, dsn string, logger *slog.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mysql dsn: %w", err)
	}
	logger.Debug("connecting to mysql", slog.String("addr", cfg.Addr), slog.String("database", cfg.DBName))

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping mysql: %w", err)
	}
	return db, nil
}

// SliceSource yields a fixed list of statements.
type SliceSource struct {
	Label      string
	Statements []string
}

// Name implements Source.
func (s SliceSource) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return "list"
}

// Each implements Source.
func (s SliceSource) Each(ctx context.Context, fn func(string) error) error {
	for _, stmt := range s.Statements {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(stmt); err != nil {
			return err
		}
	}
	return nil
}
