package commands

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/leapstack-labs/sqlshape/internal/catalog"
	"github.com/leapstack-labs/sqlshape/internal/cli/output"
	"github.com/leapstack-labs/sqlshape/internal/pipeline"
	"github.com/spf13/cobra"
)

// NewCatalogCommand creates the catalog command and its subcommands.
func NewCatalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Build and query the fingerprint catalog",
		Long: `Manage the catalog of known query shapes.

The catalog is a SQLite database (catalog_path, default .sqlshape/catalog.db)
holding one example statement and a statement count per fingerprint.`,
	}

	cmd.AddCommand(newCatalogBuildCommand())
	cmd.AddCommand(newCatalogMatchCommand())
	cmd.AddCommand(newCatalogCoverageCommand())
	cmd.AddCommand(newCatalogListCommand())

	return cmd
}

// CatalogBuildOptions holds options for catalog build.
type CatalogBuildOptions struct {
	CSV         string
	Column      string
	PostgresDSN string
	MySQLDSN    string
	Query       string
}

func newCatalogBuildCommand() *cobra.Command {
	opts := &CatalogBuildOptions{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Add statements from a CSV export or a live database",
		Long: `Fingerprint statements and merge them into the catalog.

Exactly one source is required:
  --csv          a CSV file, reading the column named by --column
  --postgres-dsn pg_stat_statements of a PostgreSQL server
  --mysql-dsn    the statement digest summary of a MySQL server

--query replaces the preset statement query of a database source.`,
		Example: `  sqlshape catalog build --csv queries.csv --column query_text
  sqlshape catalog build --postgres-dsn "postgres://app@db/app?sslmode=disable"
  sqlshape catalog build --mysql-dsn "app:secret@tcp(db:3306)/app"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCatalogBuild(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.CSV, "csv", "", "CSV file of statements")
	cmd.Flags().StringVar(&opts.Column, "column", catalog.DefaultCSVColumn, "CSV column holding the SQL")
	cmd.Flags().StringVar(&opts.PostgresDSN, "postgres-dsn", "", "PostgreSQL connection string")
	cmd.Flags().StringVar(&opts.MySQLDSN, "mysql-dsn", "", "MySQL DSN")
	cmd.Flags().StringVar(&opts.Query, "query", "", "Statement query for database sources")
	cmd.MarkFlagsMutuallyExclusive("csv", "postgres-dsn", "mysql-dsn")
	cmd.MarkFlagsOneRequired("csv", "postgres-dsn", "mysql-dsn")

	return cmd
}

func runCatalogBuild(cmd *cobra.Command, opts *CatalogBuildOptions) error {
	cc := NewCommandContext(cmd)
	ctx := cmd.Context()

	var (
		src catalog.Source
		db  *sql.DB
		err error
	)
	switch {
	case opts.CSV != "":
		f, err := os.Open(opts.CSV) //nolint:gosec // path is user-provided input
		if err != nil {
			return fmt.Errorf("failed to open csv: %w", err)
		}
		defer func() { _ = f.Close() }()
		src = catalog.CSVSource{Reader: f, Column: opts.Column, Label: filepath.Base(opts.CSV)}

	case opts.PostgresDSN != "":
		db, err = catalog.ConnectPostgres(ctx, opts.PostgresDSN, cc.Logger)
		if err != nil {
			return err
		}
		src = catalog.QueryLogSource{DB: db, Query: queryOr(opts.Query, catalog.PostgresStatementsQuery), Label: "pg_stat_statements"}

	case opts.MySQLDSN != "":
		db, err = catalog.ConnectMySQL(ctx, opts.MySQLDSN, cc.Logger)
		if err != nil {
			return err
		}
		src = catalog.QueryLogSource{DB: db, Query: queryOr(opts.Query, catalog.MySQLDigestQuery), Label: "performance_schema"}

	default:
		return errors.New("one of --csv, --postgres-dsn or --mysql-dsn is required")
	}
	if db != nil {
		defer func() { _ = db.Close() }()
	}

	cat, cleanup, err := cc.OpenCatalog(ctx, false)
	if err != nil {
		return err
	}
	defer cleanup()

	stats, err := cat.Build(ctx, src)
	if err != nil {
		return err
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(stats)
	}
	r.Success(fmt.Sprintf("Built catalog from %s", stats.Source))
	keyValue(r, "Catalog", cat.Path())
	keyValue(r, "Statements", strconv.Itoa(stats.Statements))
	keyValue(r, "Fingerprints", strconv.Itoa(stats.Fingerprints))
	keyValue(r, "New fingerprints", strconv.Itoa(stats.New))
	return nil
}

func queryOr(query, preset string) string {
	if query != "" {
		return query
	}
	return preset
}

func newCatalogMatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "match <SQL>",
		Short:   "Look up the fingerprint of a statement in the catalog",
		Example: `  sqlshape catalog match "SELECT id FROM users WHERE email = 'a@b.c'"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalogMatch(cmd, strings.Join(args, " "))
		},
	}
}

func runCatalogMatch(cmd *cobra.Command, sqlText string) error {
	cc := NewCommandContext(cmd)
	ctx := cmd.Context()

	cat, cleanup, err := cc.OpenCatalog(ctx, true)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := cat.Match(ctx, sqlText)
	if err != nil {
		return err
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(res)
	}
	switch {
	case res.Excluded:
		r.Warning(fmt.Sprintf("Not matched: %s", res.ExcludeReason))
	case res.Matched:
		r.Success("Matched")
	default:
		r.Warning("No match in catalog")
	}
	keyValue(r, "Fingerprint", r.Styles().Fingerprint.Render(string(res.Fingerprint)))
	if res.Matched {
		keyValue(r, "Statements", strconv.Itoa(res.ExampleCount))
		keyValue(r, "Example", r.SQL(res.ExampleSQL))
	}
	return nil
}

func newCatalogCoverageCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "coverage <corpus.json>",
		Short: "Report how many corpus fingerprints the catalog knows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalogCoverage(cmd, args[0])
		},
	}
}

func runCatalogCoverage(cmd *cobra.Command, input string) error {
	cc := NewCommandContext(cmd)
	ctx := cmd.Context()

	cat, cleanup, err := cc.OpenCatalog(ctx, true)
	if err != nil {
		return err
	}
	defer cleanup()

	out, err := pipeline.Run(ctx, input, cc.PipelineOptions())
	if err != nil {
		return err
	}
	cov, err := cat.Coverage(ctx, out.Index.Fingerprints())
	if err != nil {
		return err
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(cov)
	}
	r.Header(1, "Catalog coverage")
	keyValue(r, "Fingerprints", strconv.Itoa(cov.Total))
	keyValue(r, "Covered", strconv.Itoa(cov.Covered))
	keyValue(r, "Ratio", strconv.FormatFloat(cov.Ratio*100, 'f', 1, 64)+"%")
	if len(cov.Uncovered) > 0 {
		r.Println()
		r.Header(2, "Uncovered")
		rows := make([][]string, 0, len(cov.Uncovered))
		for _, fp := range cov.Uncovered {
			rows = append(rows, []string{string(fp)})
		}
		r.Table([]string{"fingerprint"}, rows)
	}
	return nil
}

// CatalogListOptions holds options for catalog list.
type CatalogListOptions struct {
	Builds bool
	Limit  int
}

func newCatalogListCommand() *cobra.Command {
	opts := &CatalogListOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog fingerprints, most frequent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCatalogList(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Builds, "builds", false, "List build history instead")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Show at most this many rows (0 for all)")

	return cmd
}

func runCatalogList(cmd *cobra.Command, opts *CatalogListOptions) error {
	cc := NewCommandContext(cmd)
	ctx := cmd.Context()

	cat, cleanup, err := cc.OpenCatalog(ctx, true)
	if err != nil {
		return err
	}
	defer cleanup()

	r := cc.Renderer
	if opts.Builds {
		builds, err := cat.Builds(ctx)
		if err != nil {
			return err
		}
		builds = limitRows(builds, opts.Limit)
		if r.EffectiveMode() == output.ModeJSON {
			return r.JSON(builds)
		}
		rows := make([][]string, 0, len(builds))
		for _, b := range builds {
			completed := ""
			if !b.CompletedAt.IsZero() {
				completed = b.CompletedAt.Format(time.RFC3339)
			}
			rows = append(rows, []string{
				b.ID, b.Source, b.StartedAt.Format(time.RFC3339), completed,
				strconv.Itoa(b.Statements), strconv.Itoa(b.Fingerprints), strconv.Itoa(b.New),
			})
		}
		r.Table([]string{"id", "source", "started", "completed", "statements", "fingerprints", "new"}, rows)
		return nil
	}

	records, err := cat.Fingerprints(ctx)
	if err != nil {
		return err
	}
	records = limitRows(records, opts.Limit)
	if r.EffectiveMode() == output.ModeJSON {
		if records == nil {
			records = []catalog.Record{}
		}
		return r.JSON(records)
	}
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{string(rec.Fingerprint), strconv.Itoa(rec.SQLCount), oneLine(rec.ExampleSQL)})
	}
	r.Table([]string{"fingerprint", "count", "example"}, rows)
	return nil
}

func limitRows[T any](rows []T, limit int) []T {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}
