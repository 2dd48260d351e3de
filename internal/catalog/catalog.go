// Package catalog stores known fingerprints in SQLite so that new SQL can be
// matched against them.
package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)

	"github.com/leapstack-labs/sqlshape/pkg/fingerprint"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNotOpen is returned by operations on a catalog without a database.
var ErrNotOpen = errors.New("catalog not open")

// MemoryPath opens a private in-memory catalog.
const MemoryPath = ":memory:"

// Config configures a Catalog.
type Config struct {
	// Fingerprinter computes fingerprints (optional, cached per catalog if nil)
	Fingerprinter *fingerprint.Fingerprinter
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Catalog is a fingerprint store.
type Catalog struct {
	db     *sql.DB
	path   string
	fp     *fingerprint.Fingerprinter
	logger *slog.Logger
}

// New creates a catalog. Call Open or OpenDB before using it.
func New(cfg Config) *Catalog {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	fp := cfg.Fingerprinter
	if fp == nil {
		fp = fingerprint.NewFingerprinter(fingerprint.NewCache(), logger)
	}
	return &Catalog{fp: fp, logger: logger}
}

// Open opens the SQLite database at path, creating its directory if needed,
// and applies pending migrations. Use MemoryPath for an in-memory catalog.
func (c *Catalog) Open(ctx context.Context, path string) error {
	dsn := MemoryPath
	if path != MemoryPath {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create catalog directory: %w", err)
			}
		}
		dsn = path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open catalog database: %w", err)
	}
	if path == MemoryPath {
		// Every connection to :memory: is a distinct database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping catalog database: %w", err)
	}

	c.logger.Debug("opened catalog", "path", path)
	c.path = path
	if err := c.OpenDB(db); err != nil {
		_ = db.Close()
		return err
	}
	return c.Migrate()
}

// OpenDB uses an existing connection. Migrations are not applied.
func (c *Catalog) OpenDB(db *sql.DB) error {
	if db == nil {
		return ErrNotOpen
	}
	c.db = db
	return nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// Path returns the path the catalog was opened from.
func (c *Catalog) Path() string { return c.path }

// DB returns the underlying connection, or nil.
func (c *Catalog) DB() *sql.DB { return c.db }

// Migrate runs all pending migrations.
func (c *Catalog) Migrate() error {
	if c.db == nil {
		return ErrNotOpen
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{c.logger})

	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.Up(c.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Version returns the current migration version.
func (c *Catalog) Version() (int64, error) {
	if c.db == nil {
		return 0, ErrNotOpen
	}
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite"); err != nil {
		return 0, fmt.Errorf("failed to set dialect: %w", err)
	}
	return goose.GetDBVersion(c.db)
}

// gooseLogger routes goose output to slog.
type gooseLogger struct {
	logger *slog.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

// generateID creates a new build ID.
func generateID() string {
	return uuid.New().String()
}

func now() time.Time {
	return time.Now().UTC()
}
