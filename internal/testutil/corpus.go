package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// SampleCorpus has one unit whose caller svc.B produces a strict subset of
// the shapes of its reference caller svc.A, plus a record without SQL.
const SampleCorpus = `[
  {"function_name": "Find", "orm_code": "db.Find(&u)", "caller": "svc.A", "sql_statement_list": [
    "SELECT id FROM users WHERE id = 1",
    "SELECT name FROM users WHERE email = 'a@example.com'"
  ]},
  {"function_name": "Find", "orm_code": "db.Find(&u)", "caller": "svc.B", "sql_statement_list": ["SELECT id FROM users WHERE id = 7"]},
  {"function_name": "Save", "orm_code": "db.Save(&u)", "caller": "svc.C", "sql_statement_list": "<NO SQL GENERATE>"}
]`

// WriteCorpus writes content to dir/name and returns the path.
func WriteCorpus(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write corpus %s: %v", path, err)
	}
	return path
}
