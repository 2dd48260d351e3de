package commands

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/sqlshape/internal/catalog"
	"github.com/leapstack-labs/sqlshape/internal/cli/config"
	"github.com/leapstack-labs/sqlshape/internal/cli/output"
	"github.com/leapstack-labs/sqlshape/internal/cli/testutil"
	logutil "github.com/leapstack-labs/sqlshape/internal/testutil"
	"github.com/leapstack-labs/sqlshape/pkg/fingerprint"
)

const statementsCSV = `id,query_text
1,SELECT id FROM users WHERE id = 1
2,SELECT id FROM users WHERE id = 2
3,BEGIN
`

// buildTestCatalog runs catalog build from a CSV file under dir.
func buildTestCatalog(t *testing.T, dir string) *config.Config {
	t.Helper()
	csvPath := filepath.Join(dir, "statements.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(statementsCSV), 0600))

	cfg := testutil.TestConfig(dir, output.ModeJSON)
	res := testutil.RunCommand(t, NewCatalogCommand(), cfg, "build", "--csv", csvPath, "--column", "query_text")
	require.NoError(t, res.Err)

	var stats catalog.BuildStats
	require.NoError(t, json.Unmarshal([]byte(res.Out), &stats))
	assert.Equal(t, "statements.csv", stats.Source)
	assert.Equal(t, 3, stats.Statements)
	assert.Equal(t, 2, stats.Fingerprints)
	assert.Equal(t, 2, stats.New)
	assert.FileExists(t, cfg.CatalogPath)
	return cfg
}

func TestCatalogBuildAndMatch(t *testing.T) {
	cfg := buildTestCatalog(t, t.TempDir())

	tests := []struct {
		name     string
		sql      []string
		matched  bool
		excluded bool
		count    int
	}{
		{name: "same shape", sql: []string{"SELECT id FROM users WHERE id = 99"}, matched: true, count: 2},
		{name: "split across args", sql: []string{"SELECT id FROM users", "WHERE id = 3"}, matched: true, count: 2},
		{name: "unknown shape", sql: []string{"SELECT name FROM users"}},
		{name: "sentinel", sql: []string{"COMMIT"}, excluded: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := testutil.RunCommand(t, NewCatalogCommand(), cfg, append([]string{"match"}, tt.sql...)...)
			require.NoError(t, res.Err)

			var m catalog.MatchResult
			require.NoError(t, json.Unmarshal([]byte(res.Out), &m))
			assert.Equal(t, tt.matched, m.Matched)
			assert.Equal(t, tt.excluded, m.Excluded)
			assert.Equal(t, tt.count, m.ExampleCount)
			if tt.matched {
				assert.Equal(t, "SELECT id FROM users WHERE id = 1", m.ExampleSQL)
			}
		})
	}
}

func TestCatalogMatch_Text(t *testing.T) {
	cfg := buildTestCatalog(t, t.TempDir())
	cfg.OutputFormat = string(output.ModeText)

	res := testutil.RunCommand(t, NewCatalogCommand(), cfg, "match", "SELECT id FROM users WHERE id = 5")
	require.NoError(t, res.Err)
	assert.Contains(t, res.Out, "Matched")
	assert.Contains(t, res.Out, "Example: SELECT id FROM users WHERE id = 1")

	res = testutil.RunCommand(t, NewCatalogCommand(), cfg, "match", "SET NAMES utf8")
	require.NoError(t, res.Err)
	assert.Contains(t, res.ErrOut, catalog.ExcludedPrefix)
}

func TestCatalogList(t *testing.T) {
	cfg := buildTestCatalog(t, t.TempDir())

	res := testutil.RunCommand(t, NewCatalogCommand(), cfg, "list")
	require.NoError(t, res.Err)
	var records []catalog.Record
	require.NoError(t, json.Unmarshal([]byte(res.Out), &records))
	require.Len(t, records, 2)
	assert.Equal(t, 2, records[0].SQLCount)
	assert.Equal(t, fingerprint.TransactionBegin, records[1].Fingerprint)
	assert.True(t, records[1].Sentinel)

	res = testutil.RunCommand(t, NewCatalogCommand(), cfg, "list", "--limit", "1")
	require.NoError(t, res.Err)
	records = nil
	require.NoError(t, json.Unmarshal([]byte(res.Out), &records))
	assert.Len(t, records, 1)

	res = testutil.RunCommand(t, NewCatalogCommand(), cfg, "list", "--builds")
	require.NoError(t, res.Err)
	var builds []catalog.BuildStats
	require.NoError(t, json.Unmarshal([]byte(res.Out), &builds))
	require.Len(t, builds, 1)
	assert.False(t, builds[0].CompletedAt.IsZero())

	cfg.OutputFormat = string(output.ModeMarkdown)
	res = testutil.RunCommand(t, NewCatalogCommand(), cfg, "list")
	require.NoError(t, res.Err)
	assert.Contains(t, res.Out, "| fingerprint | count | example |")
}

func TestCatalogCoverage(t *testing.T) {
	dir := t.TempDir()
	cfg := buildTestCatalog(t, dir)
	input := logutil.WriteCorpus(t, dir, "corpus.json", logutil.SampleCorpus)

	res := testutil.RunCommand(t, NewCatalogCommand(), cfg, "coverage", input)
	require.NoError(t, res.Err)

	var cov catalog.CoverageReport
	require.NoError(t, json.Unmarshal([]byte(res.Out), &cov))
	assert.Equal(t, 2, cov.Total)
	assert.Equal(t, 1, cov.Covered)
	assert.InDelta(t, 0.5, cov.Ratio, 1e-9)
	assert.Equal(t, []fingerprint.Fingerprint{fingerprint.Of("SELECT name FROM users WHERE email = 'x'")}, cov.Uncovered)
}

func TestCatalog_MissingDatabase(t *testing.T) {
	cfg := testutil.TestConfig(t.TempDir(), output.ModeJSON)

	for _, args := range [][]string{
		{"match", "SELECT 1"},
		{"list"},
		{"coverage", "corpus.json"},
	} {
		res := testutil.RunCommand(t, NewCatalogCommand(), cfg, args...)
		require.Error(t, res.Err, args)
		assert.ErrorIs(t, res.Err, ErrNoCatalog, args)
	}
	assert.NoFileExists(t, cfg.CatalogPath, "lookups must not create the catalog")
}

func TestCatalogBuild_Errors(t *testing.T) {
	dir := t.TempDir()
	cfg := testutil.TestConfig(dir, output.ModeJSON)

	res := testutil.RunCommand(t, NewCatalogCommand(), cfg, "build")
	require.Error(t, res.Err, "a source is required")

	res = testutil.RunCommand(t, NewCatalogCommand(), cfg, "build", "--csv", "a.csv", "--mysql-dsn", "u@tcp(h)/d")
	require.Error(t, res.Err, "sources are exclusive")

	res = testutil.RunCommand(t, NewCatalogCommand(), cfg, "build", "--csv", filepath.Join(dir, "nope.csv"))
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "failed to open csv")

	csvPath := filepath.Join(dir, "s.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("query\nSELECT 1\n"), 0600))
	res = testutil.RunCommand(t, NewCatalogCommand(), cfg, "build", "--csv", csvPath)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), `csv column "sql" not found`)
}

func TestOpenCatalog(t *testing.T) {
	dir := t.TempDir()
	cc := &CommandContext{
		Cfg:    testutil.TestConfig(dir, output.ModeText),
		Logger: logutil.NewTestLogger(t),
	}
	cc.Fingerprinter = fingerprint.NewFingerprinter(fingerprint.NewCache(), cc.Logger)

	_, _, err := cc.OpenCatalog(context.Background(), true)
	require.ErrorIs(t, err, ErrNoCatalog)

	cat, cleanup, err := cc.OpenCatalog(context.Background(), false)
	require.NoError(t, err)
	defer cleanup()
	assert.Equal(t, cc.Cfg.CatalogPath, cat.Path())
	assert.FileExists(t, cc.Cfg.CatalogPath)
}
