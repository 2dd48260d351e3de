package catalog

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/sqlshape/pkg/fingerprint"
)

func collect(t *testing.T, src Source) ([]string, error) {
	t.Helper()
	var out []string
	err := src.Each(context.Background(), func(s string) error {
		out = append(out, s)
		return nil
	})
	return out, err
}

func TestCSVSource(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		column  string
		want    []string
		wantErr string
	}{
		{
			name:  "default column",
			input: "id,sql\n1,SELECT 1\n2,\"SELECT a, b FROM t\"\n",
			want:  []string{"SELECT 1", "SELECT a, b FROM t"},
		},
		{
			name:   "custom column case insensitive",
			input:  "Query,n\nSELECT * FROM t,3\n",
			column: "query",
			want:   []string{"SELECT * FROM t"},
		},
		{
			name:  "byte order mark and short rows",
			input: "\ufeffsql,extra\nSELECT 1,x\n\nSELECT 2\n",
			want:  []string{"SELECT 1", "SELECT 2"},
		},
		{
			name:  "empty input",
			input: "",
		},
		{
			name:    "missing column",
			input:   "a,b\n1,2\n",
			wantErr: `csv column "sql" not found`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := collect(t, CSVSource{Reader: strings.NewReader(tt.input), Column: tt.column})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCSVSource_StopsOnCallbackError(t *testing.T) {
	boom := errors.New("boom")
	src := CSVSource{Reader: strings.NewReader("sql\nSELECT 1\nSELECT 2\n")}
	calls := 0
	err := src.Each(context.Background(), func(string) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestSourceNames(t *testing.T) {
	assert.Equal(t, "csv", CSVSource{}.Name())
	assert.Equal(t, "queries.csv", CSVSource{Label: "queries.csv"}.Name())
	assert.Equal(t, "query_log", QueryLogSource{}.Name())
	assert.Equal(t, "postgres", QueryLogSource{Label: "postgres"}.Name())
	assert.Equal(t, "list", SliceSource{}.Name())
}

func TestQueryLogSource(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta(PostgresStatementsQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"query"}).
			AddRow("SELECT * FROM users WHERE id = $1").
			AddRow(nil).
			AddRow("UPDATE users SET name = $1 WHERE id = $2"))

	got, err := collect(t, QueryLogSource{DB: db, Query: PostgresStatementsQuery})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"SELECT * FROM users WHERE id = $1",
		"UPDATE users SET name = $1 WHERE id = $2",
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryLogSource_Errors(t *testing.T) {
	t.Run("no database", func(t *testing.T) {
		_, err := collect(t, QueryLogSource{Query: MySQLDigestQuery})
		assert.Error(t, err)
	})

	t.Run("query fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectQuery(regexp.QuoteMeta(MySQLDigestQuery)).
			WillReturnError(errors.New("access denied"))

		_, err = collect(t, QueryLogSource{DB: db, Query: MySQLDigestQuery})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to query statement log")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("row error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectQuery(regexp.QuoteMeta(MySQLDigestQuery)).
			WillReturnRows(sqlmock.NewRows([]string{"DIGEST_TEXT"}).
				AddRow("SELECT 1").
				RowError(0, errors.New("connection reset")))

		_, err = collect(t, QueryLogSource{DB: db, Query: MySQLDigestQuery})
		assert.Error(t, err)
	})
}

func TestCatalog_BuildFromQueryLog(t *testing.T) {
	logDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = logDB.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta(MySQLDigestQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"DIGEST_TEXT"}).
			AddRow("SELECT `name` FROM `users` WHERE `id` = ?").
			AddRow("SELECT `name` FROM `users` WHERE `id` = ?"))

	c := newTestCatalog(t)
	stats, err := c.Build(context.Background(), QueryLogSource{DB: logDB, Query: MySQLDigestQuery, Label: "mysql"})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Statements)
	assert.Equal(t, 1, stats.Fingerprints)

	res, err := c.Match(context.Background(), "SELECT name FROM users WHERE id = 42")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, fingerprint.Of("SELECT name FROM users WHERE id = 7"), res.Fingerprint)
}

func TestCatalog_MatchQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT example_sql, sql_count FROM fingerprints")).
		WillReturnError(errors.New("disk I/O error"))

	c := New(Config{})
	require.NoError(t, c.OpenDB(db))
	_, err = c.Match(context.Background(), "SELECT * FROM t WHERE id = 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to match fingerprint")
	assert.NoError(t, mock.ExpectationsWereMet())
}
