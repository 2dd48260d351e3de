package normalize

import (
	"regexp"
	"strings"
)

// Sentinel is a categorical fingerprint for text that is not structurally
// fingerprinted.
type Sentinel string

// Sentinel categories.
const (
	TransactionBegin Sentinel = "transaction_begin"
	TransactionEnd   Sentinel = "transaction_end"
	SessionSetting   Sentinel = "session_setting"
	ShowCommand      Sentinel = "show_command"
	DDLCommand       Sentinel = "ddl_command"
	EmptySQL         Sentinel = "empty_sql"
	NotSQL           Sentinel = "not_sql"
	InvalidSQL       Sentinel = "invalid_sql"

	// SystemFunctionPrefix prefixes system_function_<name> sentinels.
	SystemFunctionPrefix = "system_function_"
)

// SystemFunctions lists the no-argument functions whose bare SELECT is
// classified as system_function_<name>.
var SystemFunctions = []string{
	"last_insert_id",
	"version",
	"database",
	"schema",
	"user",
	"current_user",
	"connection_id",
	"row_count",
	"found_rows",
	"current_date",
	"current_time",
	"current_timestamp",
	"now",
	"sysdate",
	"curdate",
	"curtime",
}

var systemFunctionSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(SystemFunctions))
	for _, name := range SystemFunctions {
		m[name] = struct{}{}
	}
	return m
}()

var (
	systemFunctionRe = regexp.MustCompile(`(?i)^select\s+(\w+)\s*\(\s*\)(?:\s+(?:as\s+)?[\w` + "`" + `]+)?\s*;?$`)
	beginRe          = regexp.MustCompile(`(?i)^(?:begin(?:\s+work)?|start\s+transaction)$`)
	endRe            = regexp.MustCompile(`(?i)^(?:commit|rollback)(?:\s+work)?$`)
	setRe            = regexp.MustCompile(`(?i)^set\s`)
	showRe           = regexp.MustCompile(`(?i)^show\s`)
	ddlRe            = regexp.MustCompile(`(?i)^(?:create|alter|drop|truncate|rename)\s`)

	sqlStartRe = regexp.MustCompile(`(?i)^(?:\(|(?:select|insert|update|delete|create|alter|drop|truncate|begin|commit|rollback|set|show|use|explain|describe|desc|grant|revoke|analyze|with|replace|start)\b)`)
	sqlShapeRe = []*regexp.Regexp{
		regexp.MustCompile(`(?is)\bselect\b.*\bfrom\b`),
		regexp.MustCompile(`(?i)\binsert\s+into\b`),
		regexp.MustCompile(`(?is)\bupdate\b.*\bset\b`),
		regexp.MustCompile(`(?i)\bdelete\s+from\b`),
		regexp.MustCompile(`(?i)\bcreate\s+table\b`),
		regexp.MustCompile(`(?i)\balter\s+table\b`),
		regexp.MustCompile(`(?i)\bdrop\s+table\b`),
		regexp.MustCompile(`(?is)\bjoin\b.*\bon\b`),
	}
)

// Classify recognizes statements that are fingerprinted categorically. The
// first matching category wins. Transaction sentinels only apply to a bare
// BEGIN/COMMIT; a wrapped batch is fingerprinted by its body.
func Classify(text string) (Sentinel, bool) {
	s := StripComments(text)
	s = strings.TrimSpace(strings.TrimRight(s, "; "))
	if s == "" {
		return EmptySQL, true
	}

	if name, ok := SystemFunction(s); ok {
		return Sentinel(SystemFunctionPrefix + name), true
	}

	switch {
	case beginRe.MatchString(s):
		return TransactionBegin, true
	case endRe.MatchString(s):
		return TransactionEnd, true
	case setRe.MatchString(s):
		return SessionSetting, true
	case showRe.MatchString(s):
		return ShowCommand, true
	case ddlRe.MatchString(s):
		return DDLCommand, true
	}
	return "", false
}

// SystemFunction reports whether text is a bare SELECT of a single
// no-argument system function and returns its lower-cased name.
func SystemFunction(text string) (string, bool) {
	m := systemFunctionRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", false
	}
	name := strings.ToLower(m[1])
	if _, ok := systemFunctionSet[name]; !ok {
		return "", false
	}
	return name, true
}

// LooksLikeSQL is a cheap gate that rejects text which is obviously not SQL
// before a parse is attempted.
func LooksLikeSQL(text string) bool {
	s := StripComments(text)
	if s == "" {
		return false
	}
	if sqlStartRe.MatchString(s) {
		return true
	}
	for _, re := range sqlShapeRe {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
