// Package fingerprint reduces SQL text to a structural fingerprint.
//
// Two statements that differ only in literal values, whitespace, comments or
// harmless aliasing share a fingerprint. Statements that are not fingerprinted
// structurally (transaction control, session settings, DDL, text that is not
// SQL, SQL that does not parse) get a categorical sentinel instead. Hex
// fingerprints and sentinels never collide.
package fingerprint

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/leapstack-labs/sqlshape/pkg/features"
	"github.com/leapstack-labs/sqlshape/pkg/normalize"
	"github.com/leapstack-labs/sqlshape/pkg/sqlast"
)

// Fingerprint is either a 32 character hex digest or a sentinel category.
type Fingerprint string

// Size is the number of digest bytes kept.
const Size = 16

// String implements fmt.Stringer.
func (fp Fingerprint) String() string { return string(fp) }

// Sentinel fingerprints.
const (
	TransactionBegin = Fingerprint(normalize.TransactionBegin)
	TransactionEnd   = Fingerprint(normalize.TransactionEnd)
	SessionSetting   = Fingerprint(normalize.SessionSetting)
	ShowCommand      = Fingerprint(normalize.ShowCommand)
	DDLCommand       = Fingerprint(normalize.DDLCommand)
	EmptySQL         = Fingerprint(normalize.EmptySQL)
	NotSQL           = Fingerprint(normalize.NotSQL)
	InvalidSQL       = Fingerprint(normalize.InvalidSQL)
)

var sentinels = map[Fingerprint]struct{}{
	TransactionBegin: {},
	TransactionEnd:   {},
	SessionSetting:   {},
	ShowCommand:      {},
	DDLCommand:       {},
	EmptySQL:         {},
	NotSQL:           {},
	InvalidSQL:       {},
}

// IsSentinel reports whether fp is a categorical fingerprint, including
// system_function_<name>.
func IsSentinel(fp Fingerprint) bool {
	if _, ok := sentinels[fp]; ok {
		return true
	}
	return IsSystemFunction(fp)
}

// IsSystemFunction reports whether fp is a system_function_<name> sentinel.
func IsSystemFunction(fp Fingerprint) bool {
	return strings.HasPrefix(string(fp), normalize.SystemFunctionPrefix)
}

// Compute hashes the canonical serialization of fs.
func Compute(fs *features.FeatureSet) Fingerprint {
	h := blake3.New()
	_, _ = h.Write([]byte(Serialize(fs)))
	sum := h.Sum(nil)
	return Fingerprint(hex.EncodeToString(sum[:Size]))
}

// Serialize returns the dot separated canonical form of fs. Every set is
// written sorted, so insertion order never matters.
func Serialize(fs *features.FeatureSet) string {
	parts := []string{
		fmt.Sprintf("type_%d", int(fs.Kind)),
		"tables_" + join(fs.Tables.Sorted()),
	}

	if fs.Kind == features.KindUpdate {
		parts = append(parts, "where_columns_"+join(fs.PredicateColumns.Sorted()))
	} else {
		parts = append(parts, "predicates_"+join(fs.PredicateColumns.Sorted()))
	}
	parts = append(parts, "projections_"+join(fs.ProjectionColumns.Sorted()))

	if kinds := fs.JoinKinds.Keys(); len(kinds) > 0 {
		parts = append(parts, "joins_"+join(kinds))
	}
	if kinds := fs.SetOpKinds.Keys(); len(kinds) > 0 {
		parts = append(parts, "set_ops_"+join(kinds))
	}

	if fs.SubqueryCount > 0 {
		parts = append(parts,
			fmt.Sprintf("subquery_count_%d", fs.SubqueryCount),
			"subquery_tables_"+join(fs.SubqueryTables.Sorted()),
		)
		if fs.HasNestedSubquery {
			parts = append(parts, "has_nested_subquery")
		}
	}

	if names := fs.Aggregations.Keys(); len(names) > 0 {
		counts := make([]string, len(names))
		for i, name := range names {
			counts[i] = fmt.Sprintf("%s_%d", name, fs.Aggregations[name])
		}
		parts = append(parts, "aggregations_"+join(counts))
	}

	if fs.HasGroupBy {
		parts = append(parts, "has_group_by", "group_keys_"+join(fs.GroupKeys.Sorted()))
	}
	if fs.HasHaving {
		parts = append(parts, "has_having")
	}

	return strings.Join(parts, ".")
}

func join(names []string) string {
	return strings.Join(names, ",")
}

// Of fingerprints sql without a cache. It never fails: text that cannot be
// fingerprinted structurally yields a sentinel.
func Of(sql string) Fingerprint {
	fp, _, _ := analyze(sql)
	return fp
}

// analyze runs the whole pipeline and also returns the feature set when one
// was extracted. The error is only set for parse failures.
func analyze(sql string) (Fingerprint, *features.FeatureSet, error) {
	if s, ok := normalize.Classify(sql); ok {
		return Fingerprint(s), nil, nil
	}
	if !normalize.LooksLikeSQL(sql) {
		return NotSQL, nil, nil
	}

	stmts, err := sqlast.Parse(normalize.Normalize(sql))
	if errors.Is(err, sqlast.ErrNoStatements) {
		return EmptySQL, nil, nil
	}
	if err != nil {
		return InvalidSQL, nil, err
	}

	fs := features.Extract(stmts)
	return Compute(fs), fs, nil
}
