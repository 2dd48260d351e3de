package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "strips comments and collapses whitespace",
			input: "SELECT id /* pk */\n  FROM users -- all users\n",
			want:  "SELECT id FROM users",
		},
		{
			name:  "masks numbers after equals",
			input: "SELECT * FROM users WHERE id=42 AND age >= 18",
			want:  "SELECT * FROM users WHERE id= N AND age >= N",
		},
		{
			name:  "masks numeric IN lists",
			input: "SELECT * FROM users WHERE id IN (1, 2, 3)",
			want:  "SELECT * FROM users WHERE id IN (N)",
		},
		{
			name:  "masks quoted strings",
			input: `SELECT * FROM users WHERE name = 'bob' OR nick = "b"`,
			want:  `SELECT * FROM users WHERE name = 'S' OR nick = "S"`,
		},
		{
			name:  "masks limit and offset",
			input: "SELECT * FROM users LIMIT 10 OFFSET 20",
			want:  "SELECT * FROM users LIMIT N OFFSET N",
		},
		{
			name:  "masks mysql limit pair",
			input: "SELECT * FROM users LIMIT 5, 10",
			want:  "SELECT * FROM users LIMIT N, N",
		},
		{
			name:  "rewrites generated aliases",
			input: "SELECT t1.id FROM users t1 JOIN orders t2 ON t1.id = t2.user_id",
			want:  "SELECT t1.id FROM users t_alias JOIN orders t_alias ON t1.id = t2.user_id",
		},
		{
			name:  "keeps comment markers inside literals",
			input: "SELECT id FROM users WHERE name = 'a--b' AND note = '/* x */' -- tail",
			want:  "SELECT id FROM users WHERE name = 'S' AND note = 'S'",
		},
		{
			name:  "masks exponent and hex numbers",
			input: "SELECT id FROM users WHERE score = 1.5e3 AND flags = 0x1F AND id IN (0x01, 2E-2)",
			want:  "SELECT id FROM users WHERE score = N AND flags = N AND id IN (N)",
		},
		{
			name:  "leaves identifiers that start with digits",
			input: "SELECT id FROM users WHERE a = 1abc",
			want:  "SELECT id FROM users WHERE a = 1abc",
		},
		{
			name:  "maps positional placeholders",
			input: "SELECT * FROM users WHERE id = $1 AND name = %s",
			want:  "SELECT * FROM users WHERE id = ? AND name = ?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestStripComments(t *testing.T) {
	assert.Equal(t, "SELECT 'a--b' FROM t", StripComments("SELECT 'a--b' FROM t -- why"))
	assert.Equal(t, "SELECT `x/*y*/` FROM t", StripComments("SELECT `x/*y*/` /* hint */ FROM t"))
	assert.Equal(t, `SELECT "it\"s -- not" FROM t`, StripComments(`SELECT "it\"s -- not" FROM t`))
	assert.Equal(t, "SELECT 1", StripComments("/* a\nb */ SELECT 1"))
}

func TestIdentifier(t *testing.T) {
	assert.Equal(t, "users", Identifier("`Users`"))
	assert.Equal(t, "temp_alias", Identifier("t12"))
	assert.Equal(t, "t_alias", Identifier("t_alias"))
	assert.Equal(t, "null", Identifier(""))
	assert.Equal(t, "order_id", Identifier(`"ORDER_ID"`))
}

func TestValidColumnName(t *testing.T) {
	valid := []string{"id", "user_id", "n1", "Status"}
	for _, name := range valid {
		assert.True(t, ValidColumnName(name), "%q should be valid", name)
	}

	invalid := []string{"", "N", "S", "'S'", "NULL", "null", "123", "'abc'", `"x"`, "?"}
	for _, name := range invalid {
		assert.False(t, ValidColumnName(name), "%q should be invalid", name)
	}
}
