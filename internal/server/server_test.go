package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/sqlshape/internal/catalog"
	"github.com/leapstack-labs/sqlshape/internal/testutil"
	"github.com/leapstack-labs/sqlshape/pkg/fingerprint"
)

const corpusJSON = `[
  {"orm_code": "U", "caller": "A", "sql_statement_list": ["SELECT * FROM t WHERE id=1"]},
  {"orm_code": "U", "caller": "B", "sql_statement_list": ["SELECT * FROM t WHERE id=1", "SELECT * FROM t WHERE x=2"]}
]`

func writeCorpus(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "corpus.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func newTestServer(t *testing.T, cat *catalog.Catalog) *Server {
	t.Helper()
	path := writeCorpus(t, t.TempDir(), corpusJSON)
	s := New(Config{Input: path, Catalog: cat, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, s.Reload(context.Background()))
	return s
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.InDelta(t, 1, body["generation"], 0)
	assert.Contains(t, body, "loaded_at")
}

func TestFingerprintEndpoint(t *testing.T) {
	h := New(Config{}).Handler()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantFP     fingerprint.Fingerprint
		parseError bool
	}{
		{"select", `{"sql": "SELECT name FROM users WHERE id = 5"}`, http.StatusOK, fingerprint.Of("SELECT name FROM users WHERE id = 1"), false},
		{"sentinel", `{"sql": "BEGIN"}`, http.StatusOK, fingerprint.TransactionBegin, false},
		{"invalid sql", `{"sql": "SELECT FROM WHERE"}`, http.StatusOK, fingerprint.InvalidSQL, true},
		{"empty sql", `{"sql": "  "}`, http.StatusBadRequest, "", false},
		{"bad json", `{"sql":`, http.StatusBadRequest, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/fingerprint", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp FingerprintResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantFP, resp.Fingerprint)
			assert.Equal(t, tt.wantFP, resp.Description.Fingerprint)
			assert.Equal(t, fingerprint.IsSentinel(tt.wantFP), resp.Sentinel)
			assert.Equal(t, tt.parseError, resp.ParseError != "")
		})
	}
}

func TestFingerprintEndpoint_Description(t *testing.T) {
	h := New(Config{}).Handler()
	rec := do(t, h, http.MethodPost, "/api/fingerprint",
		`{"sql": "SELECT u.name, COUNT(*) FROM users u JOIN orders o ON u.id = o.user_id GROUP BY u.name"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp FingerprintResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "SELECT", resp.Description.Kind)
	assert.Equal(t, []string{"orders", "users"}, resp.Description.Tables)
	assert.Equal(t, []string{"join"}, resp.Description.Joins)
	assert.Equal(t, map[string]int{"count": 1}, resp.Description.Aggregations)
}

func TestMatchEndpoint(t *testing.T) {
	t.Run("no catalog", func(t *testing.T) {
		rec := do(t, New(Config{}).Handler(), http.MethodPost, "/api/match", `{"sql": "SELECT 1"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("with catalog", func(t *testing.T) {
		cat := catalog.New(catalog.Config{Logger: testutil.NewTestLogger(t)})
		require.NoError(t, cat.Open(context.Background(), catalog.MemoryPath))
		t.Cleanup(func() { _ = cat.Close() })
		_, err := cat.Build(context.Background(), catalog.SliceSource{Statements: []string{"SELECT * FROM t WHERE id = 1"}})
		require.NoError(t, err)

		h := New(Config{Catalog: cat}).Handler()

		rec := do(t, h, http.MethodPost, "/api/match", `{"sql": "select * from t where id = 42"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		var res catalog.MatchResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.True(t, res.Matched)
		assert.Equal(t, 1, res.ExampleCount)

		rec = do(t, h, http.MethodPost, "/api/match", `{"sql": "COMMIT"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		res = catalog.MatchResult{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.True(t, res.Excluded)
		assert.Equal(t, "excluded_type:transaction_end", res.ExcludeReason)
	})
}

func TestUnitsEndpoints(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := do(t, h, http.MethodGet, "/api/units", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var units UnitsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &units))
	require.Len(t, units.Units, 1)
	assert.Equal(t, "U", units.Units[0].Unit)
	assert.Equal(t, "B", units.Units[0].Reference)
	assert.Equal(t, 2, units.Units[0].FingerprintCount)
	assert.Equal(t, 1, units.Units[0].Summary.RedundantCallers)

	rec = do(t, h, http.MethodGet, "/api/units/U", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var unit map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &unit))
	assert.Equal(t, "U", unit["orm_code"])
	assert.Len(t, unit["redundant_candidates"], 1)

	rec = do(t, h, http.MethodGet, "/api/units/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_orm_codes_analyzed": 1`)
}

func TestUnitsEndpoints_NotLoaded(t *testing.T) {
	h := New(Config{}).Handler()
	for _, path := range []string{"/api/units", "/api/units/U", "/api/summary"} {
		rec := do(t, h, http.MethodGet, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestReload_KeepsPreviousResultOnError(t *testing.T) {
	dir := t.TempDir()
	path := writeCorpus(t, dir, corpusJSON)
	s := New(Config{Input: path})
	require.NoError(t, s.Reload(context.Background()))

	require.NoError(t, os.WriteFile(path, []byte(`{"not": "an array"}`), 0600))
	require.Error(t, s.Reload(context.Background()))

	res, _, gen, err := s.current()
	require.NotNil(t, res)
	assert.Equal(t, uint64(1), gen)
	assert.Error(t, err)

	rec := do(t, s.Handler(), http.MethodGet, "/healthz", "")
	assert.Contains(t, rec.Body.String(), "last_error")
}

func TestReload_Serialized(t *testing.T) {
	path := writeCorpus(t, t.TempDir(), corpusJSON)
	s := New(Config{Input: path, Logger: testutil.NewTestLogger(t)})

	s.reloadMu.Lock()
	done := make(chan error, 1)
	go func() { done <- s.Reload(context.Background()) }()

	select {
	case <-done:
		t.Fatal("reload ran while another reload held the lock")
	case <-time.After(100 * time.Millisecond):
	}
	_, _, gen, _ := s.current()
	assert.Zero(t, gen)

	s.reloadMu.Unlock()
	require.NoError(t, <-done)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Reload(context.Background()))
		}()
	}
	wg.Wait()

	res, _, gen, err := s.current()
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, uint64(9), gen)
}

func TestEvents(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		for lines.Scan() {
			if line := lines.Text(); strings.HasPrefix(line, "data: ") {
				return strings.TrimPrefix(line, "data: ")
			}
		}
		return ""
	}
	assert.Equal(t, "1", next())

	require.Eventually(t, func() bool { return s.notifier.count() == 1 }, time.Second, 10*time.Millisecond)
	res, _, _, _ := s.current()
	s.SetResult(res)
	assert.Equal(t, "2", next())
}

func TestWatchInput(t *testing.T) {
	dir := t.TempDir()
	path := writeCorpus(t, dir, corpusJSON)
	s := New(Config{Input: path, Watch: true, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, s.Reload(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.watchInput(ctx) }()

	updated := strings.Replace(corpusJSON, `"caller": "A"`, `"caller": "C"`, 1)
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(updated), 0600)
		res, _, _, _ := s.current()
		return res.Unit("U").Callers["C"] != nil
	}, 5*time.Second, 250*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestServe_Shutdown(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServe_BadInput(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0", Input: filepath.Join(t.TempDir(), "missing.json")})
	err := s.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load analysis")
}

func TestNotifier(t *testing.T) {
	n := newNotifier()
	ch := n.subscribe()
	defer n.unsubscribe(ch)

	n.broadcast(1)
	n.broadcast(2)
	select {
	case gen := <-ch:
		assert.Equal(t, uint64(2), gen)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("no broadcast received")
	}

	assert.Equal(t, 1, n.count())
}
