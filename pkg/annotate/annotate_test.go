package annotate

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/sqlshape/pkg/analysis"
	"github.com/leapstack-labs/sqlshape/pkg/corpus"
	"github.com/leapstack-labs/sqlshape/pkg/fingerprint"
)

const dataset = `[
  {"orm_code": "U", "caller": "A", "extra": {"k": 1}, "sql_statement_list": [
    {"type": "param_dependent", "variants": [{"scenario": "s1", "sql": "SELECT * FROM t WHERE id=1"}]}
  ]},
  {"orm_code": "U", "caller": "B", "sql_statement_list": ["SELECT * FROM t WHERE id=1", "SELECT * FROM t WHERE x=2"]},
  {"orm_code": "U", "caller": "C", "sql_statement_list": "<NO SQL GENERATE>"},
  {"orm_code": "", "caller": "D", "sql_statement_list": ["SELECT * FROM t WHERE id=1"]}
]`

func analyze(t *testing.T) ([]corpus.Record, *analysis.Result) {
	t.Helper()
	records, err := corpus.Load(strings.NewReader(dataset), corpus.FieldNames{})
	require.NoError(t, err)

	idx := corpus.NewIndex(corpus.IndexConfig{})
	require.NoError(t, idx.Ingest(context.Background(), records))
	res, err := analysis.New(analysis.Config{}).Run(context.Background(), idx)
	require.NoError(t, err)
	return records, res
}

func TestRedundantIndexFrom(t *testing.T) {
	_, res := analyze(t)
	idx := RedundantIndexFrom(res)

	fp := fingerprint.Of("SELECT * FROM t WHERE id=1")
	assert.True(t, idx.Has("U", "A", fp))
	assert.False(t, idx.Has("U", "B", fp))
	assert.Len(t, idx, 1)
}

func TestAnnotate(t *testing.T) {
	records, res := analyze(t)
	out := Annotate(records, RedundantIndexFrom(res), fingerprint.Of)
	require.Len(t, out, len(records))

	assert.Equal(t, []string{"SELECT * FROM t WHERE id=1"}, out[0].SQL())
	restored := Restore(out, corpus.FieldNames{})

	a := restored[0]["sql_statement_list"].([]any)[0].(map[string]any)
	assert.Equal(t, "param_dependent", a["type"])
	variant := a["variants"].([]any)[0].(map[string]any)
	assert.Equal(t, "s1", variant["scenario"])
	assert.Equal(t, "SELECT * FROM t WHERE id=1"+corpus.RedundantMarker, variant["sql"])
	assert.Equal(t, map[string]any{"k": json.Number("1")}, restored[0]["extra"])

	assert.Equal(t, []any{"SELECT * FROM t WHERE id=1", "SELECT * FROM t WHERE x=2"}, restored[1]["sql_statement_list"])
	assert.Equal(t, corpus.NoSQLMarker, restored[2]["sql_statement_list"])
	assert.Equal(t, []any{"SELECT * FROM t WHERE id=1"}, restored[3]["sql_statement_list"])

	// The input records are not modified.
	assert.Equal(t, records[0].Payload, Restore(records, corpus.FieldNames{})[0])
}

func TestAnnotate_Idempotent(t *testing.T) {
	records, res := analyze(t)
	redundant := RedundantIndexFrom(res)

	once := Annotate(records, redundant, fingerprint.Of)
	twice := Annotate(once, redundant, fingerprint.Of)
	assert.Equal(t, Restore(once, corpus.FieldNames{}), Restore(twice, corpus.FieldNames{}))
}

func TestAnnotate_RoundTripThroughJSON(t *testing.T) {
	records, res := analyze(t)
	out := Restore(Annotate(records, RedundantIndexFrom(res), fingerprint.Of), corpus.FieldNames{})

	data, err := json.Marshal(out)
	require.NoError(t, err)
	reloaded, err := corpus.Load(strings.NewReader(string(data)), corpus.FieldNames{})
	require.NoError(t, err)
	require.Len(t, reloaded, len(records))

	// The marker is stripped on load, so the annotated dataset indexes the same.
	for i := range records {
		assert.Equal(t, records[i].SQL(), reloaded[i].SQL())
	}
}

func TestAnnotateParallel(t *testing.T) {
	records, res := analyze(t)
	redundant := RedundantIndexFrom(res)

	par, err := AnnotateParallel(context.Background(), records, redundant, fingerprint.Of, 3)
	require.NoError(t, err)
	assert.Equal(t,
		Restore(Annotate(records, redundant, fingerprint.Of), corpus.FieldNames{}),
		Restore(par, corpus.FieldNames{}))
}

func TestAnnotate_EmptyIndex(t *testing.T) {
	records, _ := analyze(t)
	out := Annotate(records, RedundantIndex{}, fingerprint.Of)
	assert.Equal(t, Restore(records, corpus.FieldNames{}), Restore(out, corpus.FieldNames{}))
}
