package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/sqlshape/pkg/analysis"
	"github.com/leapstack-labs/sqlshape/pkg/corpus"
)

func sampleResult(t *testing.T) *analysis.Result {
	t.Helper()
	in := `[
	  {"orm_code": "U", "caller": "A", "sql_statement_list": ["SELECT * FROM t WHERE id=1"]},
	  {"orm_code": "U", "caller": "B", "sql_statement_list": ["SELECT * FROM t WHERE id=1", "SELECT * FROM t WHERE x=2"]}
	]`
	records, err := corpus.Load(strings.NewReader(in), corpus.FieldNames{})
	require.NoError(t, err)
	idx := corpus.NewIndex(corpus.IndexConfig{})
	require.NoError(t, idx.Ingest(context.Background(), records))
	res, err := analysis.New(analysis.Config{}).Run(context.Background(), idx)
	require.NoError(t, err)
	return res
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"json", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWrite_JSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	files, summary, err := Write(dir, FormatJSON, sampleResult(t), now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "analysis_summary.json"), files.Summary)
	assert.Equal(t, 2, summary.Candidates.Total)

	data, err := os.ReadFile(files.Candidates)
	require.NoError(t, err)
	var queue []map[string]any
	require.NoError(t, json.Unmarshal(data, &queue))
	require.Len(t, queue, 2)
	assert.Equal(t, "redundant_U_A", queue[0]["validation_id"])
	assert.Equal(t, "missing_U_A", queue[1]["validation_id"])

	data, err = os.ReadFile(files.References)
	require.NoError(t, err)
	var refs map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &refs))
	assert.Equal(t, "B", refs["U"]["caller"])
	assert.Equal(t, analysis.ReasonMostComprehensive, refs["U"]["reason"])

	data, err = os.ReadFile(files.Analysis)
	require.NoError(t, err)
	var units map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &units))
	assert.Contains(t, units, "U")
	assert.Contains(t, units["U"], "caller_analysis")

	data, err = os.ReadFile(files.Summary)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"analysis_timestamp": "2026-03-01T12:00:00Z"`)
}

func TestWrite_YAML(t *testing.T) {
	dir := t.TempDir()
	files, _, err := Write(dir, FormatYAML, sampleResult(t), time.Now())
	require.NoError(t, err)
	assert.Equal(t, ".yaml", filepath.Ext(files.Analysis))

	data, err := os.ReadFile(files.Summary)
	require.NoError(t, err)
	var summary map[string]any
	require.NoError(t, yaml.Unmarshal(data, &summary))
	assert.Equal(t, 1, summary["total_orm_codes_analyzed"])
}

func TestWrite_EmptyResult(t *testing.T) {
	dir := t.TempDir()
	files, summary, err := Write(dir, FormatJSON, analysis.NewResult(nil, 0), time.Now())
	require.NoError(t, err)
	assert.Zero(t, summary.UnitsAnalyzed)

	data, err := os.ReadFile(files.Candidates)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestWriteDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "annotated.json")
	require.NoError(t, WriteDataset(path, []map[string]any{{"orm_code": "U", "sql_statement_list": []any{"SELECT <x>"}}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "SELECT <x>")
}
