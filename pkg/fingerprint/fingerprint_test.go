package fingerprint

import (
	"fmt"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/sqlshape/internal/testutil"
	"github.com/leapstack-labs/sqlshape/pkg/features"
)

var hexRe = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestOf_LiteralInvariance(t *testing.T) {
	tests := []struct {
		name string
		a, b string
	}{
		{"numbers", "SELECT id FROM users WHERE id = 1", "SELECT id FROM users WHERE id = 42"},
		{"placeholder", "SELECT id FROM users WHERE id = 7", "SELECT id FROM users WHERE id = ?"},
		{"dollar placeholder", "SELECT id FROM users WHERE id = $1", "SELECT id FROM users WHERE id = 3"},
		{"strings", "SELECT id FROM users WHERE name = 'ann'", "SELECT id FROM users WHERE name = 'bob'"},
		{"in list", "SELECT id FROM users WHERE id IN (1, 2, 3)", "SELECT id FROM users WHERE id IN (?)"},
		{"limit", "SELECT id FROM users LIMIT 10", "SELECT id FROM users LIMIT 50 OFFSET 100"},
		{"whitespace and comments", "SELECT id\n  FROM users /* hot path */ WHERE id = 1", "select id from users where id = 2 -- trailing"},
		{"temp alias", "SELECT t1.id FROM users t1", "SELECT t2.id FROM users t2"},
		{"projection alias", "SELECT COUNT(*) AS n FROM users", "SELECT COUNT(*) AS total FROM users"},
		{"comment marker in string", "SELECT id FROM users WHERE name = 'a--b' AND age = 1", "SELECT id FROM users WHERE name = 'ab' AND age = 1"},
		{"comment block in string", "SELECT id FROM users WHERE name = '/* x */'", "SELECT id FROM users WHERE name = 'x'"},
		{"exponent", "SELECT id FROM users WHERE id = 1.5e3", "SELECT id FROM users WHERE id = 2"},
		{"hex", "SELECT id FROM users WHERE id = 0x1F", "SELECT id FROM users WHERE id = 31"},
		{"mixed in list", "SELECT id FROM users WHERE id IN (0x01, 2E-2, 3)", "SELECT id FROM users WHERE id IN (?)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := Of(tt.a), Of(tt.b)
			assert.Regexp(t, hexRe, string(a))
			assert.Equal(t, a, b)
		})
	}
}

func TestOf_StructuralSensitivity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
	}{
		{"projection", "SELECT id FROM users WHERE id = ?", "SELECT name FROM users WHERE id = ?"},
		{"filter column", "SELECT id FROM users WHERE id = ?", "SELECT id FROM users WHERE email = ?"},
		{"join kind", "SELECT * FROM a JOIN b ON a.id=b.id", "SELECT * FROM a LEFT JOIN b ON a.id=b.id"},
		{"inner vs plain join", "SELECT * FROM a JOIN b ON a.id=b.id", "SELECT * FROM a INNER JOIN b ON a.id=b.id"},
		{"table set", "SELECT id FROM users", "SELECT id FROM admins"},
		{"aggregation", "SELECT MAX(age) FROM users", "SELECT MIN(age) FROM users"},
		{"statement kind", "DELETE FROM users WHERE id = 1", "SELECT id FROM users WHERE id = 1"},
		{"set operation", "SELECT id FROM a UNION SELECT id FROM b", "SELECT id FROM a UNION ALL SELECT id FROM b"},
		{"group by", "SELECT dept FROM staff", "SELECT dept FROM staff GROUP BY dept"},
		{"subquery", "SELECT id FROM a WHERE id IN (SELECT id FROM b)", "SELECT id FROM a WHERE id IN (1)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, Of(tt.a), Of(tt.b))
		})
	}
}

func TestOf_Determinism(t *testing.T) {
	sql := "SELECT o.id, SUM(i.qty) FROM orders o JOIN items i ON i.order_id = o.id WHERE o.status IN (?) GROUP BY o.id HAVING SUM(i.qty) > 3"
	first := Of(sql)
	for range 20 {
		require.Equal(t, first, Of(sql))
	}
}

func TestOf_Sentinels(t *testing.T) {
	tests := []struct {
		sql  string
		want Fingerprint
	}{
		{"BEGIN;", TransactionBegin},
		{"COMMIT;", TransactionEnd},
		{"", EmptySQL},
		{"  ;  ", EmptySQL},
		{"not a query", NotSQL},
		{"SELECT FROM WHERE (", InvalidSQL},
		{"SET NAMES utf8mb4", SessionSetting},
		{"SHOW TABLES", ShowCommand},
		{"CREATE TABLE x (id int)", DDLCommand},
		{"SELECT LAST_INSERT_ID()", Fingerprint("system_function_last_insert_id")},
	}

	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			fp := Of(tt.sql)
			assert.Equal(t, tt.want, fp)
			assert.True(t, IsSentinel(fp))
		})
	}
}

func TestOf_SentinelDisjointness(t *testing.T) {
	inputs := []string{"BEGIN;", "COMMIT;", "", "not a query", "SELECT id FROM users"}
	seen := map[Fingerprint]string{}
	for _, in := range inputs {
		fp := Of(in)
		if prev, dup := seen[fp]; dup {
			t.Fatalf("%q and %q share fingerprint %s", prev, in, fp)
		}
		seen[fp] = in
	}
	assert.False(t, IsSentinel(Of("SELECT id FROM users")))
}

func TestOf_MultipleStatementsMerge(t *testing.T) {
	// Several statements in one text fold into a single feature set.
	merged := Of("SELECT id FROM a; SELECT name FROM b")
	assert.NotEqual(t, Of("SELECT id FROM a"), merged)
	assert.Equal(t, merged, Of("SELECT name FROM b; SELECT id FROM a"))
}

func TestOf_TransactionWrapperKeepsBody(t *testing.T) {
	insert := Of("BEGIN; INSERT INTO orders (id, total) VALUES (1, 2); COMMIT;")
	del := Of("BEGIN; DELETE FROM users WHERE id = 3; COMMIT;")

	assert.Regexp(t, hexRe, string(insert))
	assert.Regexp(t, hexRe, string(del))
	assert.NotEqual(t, insert, del)
	assert.Equal(t, Of("DELETE FROM users WHERE id = 9"), del)
	assert.Equal(t, del, Of("START TRANSACTION; DELETE FROM users WHERE id = 4; ROLLBACK"))
}

func TestSerialize_NumericLiteralsAddNoColumns(t *testing.T) {
	for _, sql := range []string{
		"SELECT id FROM users WHERE id = 1.5e3",
		"SELECT id FROM users WHERE id = 0x1F",
	} {
		_, fs, err := analyze(sql)
		require.NoError(t, err, sql)
		require.NotNil(t, fs, sql)
		assert.Equal(t, "type_1.tables_users.predicates_id.projections_id", Serialize(fs), sql)
	}
}

func TestIsSystemFunction(t *testing.T) {
	assert.True(t, IsSystemFunction("system_function_now"))
	assert.False(t, IsSystemFunction(InvalidSQL))
	assert.False(t, IsSystemFunction(Of("SELECT id FROM t")))
}

func TestSerialize(t *testing.T) {
	fs := features.New()
	fs.Kind = features.KindUpdate
	fs.Tables.Add("users")
	fs.PredicateColumns.Add("id")
	fs.ProjectionColumns.Add("name")
	fs.ProjectionColumns.Add("age")
	fs.Aggregations["count"] = 0

	assert.Equal(t, "type_3.tables_users.where_columns_id.projections_age,name", Serialize(fs))
}

func TestFingerprinter_Cache(t *testing.T) {
	cache := NewCache()
	f := NewFingerprinter(cache, testutil.NewTestLogger(t))

	fp := f.Fingerprint("SELECT id FROM users WHERE id = 1")
	assert.Equal(t, Of("SELECT id FROM users WHERE id = 1"), fp)
	assert.Equal(t, fp, f.Fingerprint("SELECT id FROM users WHERE id = 1"))

	stats := cache.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestFingerprinter_Concurrent(t *testing.T) {
	f := NewFingerprinter(NewCache(), nil)

	var wg sync.WaitGroup
	results := make([]Fingerprint, 64)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.Fingerprint(fmt.Sprintf("SELECT id FROM users WHERE id = %d", i%4))
		}(i)
	}
	wg.Wait()

	for _, fp := range results {
		assert.Equal(t, results[0], fp)
	}
	assert.LessOrEqual(t, f.Cache().Len(), 4)
}

func TestFingerprinter_NilCache(t *testing.T) {
	f := NewFingerprinter(nil, nil)
	assert.Equal(t, InvalidSQL, f.Fingerprint("SELECT FROM WHERE ("))
	assert.Nil(t, f.Cache())
}

func TestDescribe(t *testing.T) {
	d, err := Describe("SELECT u.name, COUNT(*) FROM users u LEFT JOIN orders o ON o.user_id = u.id GROUP BY u.name")
	require.NoError(t, err)
	assert.False(t, d.Sentinel)
	assert.Equal(t, "SELECT", d.Kind)
	assert.Equal(t, []string{"orders", "users"}, d.Tables)
	assert.Equal(t, []string{"id", "name", "user_id"}, d.Columns)
	assert.Equal(t, []string{"left_join"}, d.Joins)
	assert.Equal(t, map[string]int{"count": 1}, d.Aggregations)
	assert.Contains(t, d.Canonical, "has_group_by")

	d, err = Describe("COMMIT")
	require.NoError(t, err)
	assert.True(t, d.Sentinel)
	assert.Equal(t, TransactionEnd, d.Fingerprint)

	d, err = Describe("SELECT FROM WHERE (")
	assert.Error(t, err)
	assert.Equal(t, InvalidSQL, d.Fingerprint)
}
