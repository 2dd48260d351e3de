package fingerprint

import (
	"fmt"
	"sort"
)

// Description is a readable breakdown of what a fingerprint was computed from.
type Description struct {
	Fingerprint    Fingerprint    `json:"fingerprint" yaml:"fingerprint"`
	Sentinel       bool           `json:"sentinel" yaml:"sentinel"`
	Kind           string         `json:"kind,omitempty" yaml:"kind,omitempty"`
	Tables         []string       `json:"tables,omitempty" yaml:"tables,omitempty"`
	SubqueryTables []string       `json:"subquery_tables,omitempty" yaml:"subquery_tables,omitempty"`
	Columns        []string       `json:"columns,omitempty" yaml:"columns,omitempty"`
	Joins          []string       `json:"joins,omitempty" yaml:"joins,omitempty"`
	SetOps         []string       `json:"set_ops,omitempty" yaml:"set_ops,omitempty"`
	Aggregations   map[string]int `json:"aggregations,omitempty" yaml:"aggregations,omitempty"`
	Subqueries     int            `json:"subqueries,omitempty" yaml:"subqueries,omitempty"`
	Canonical      string         `json:"canonical,omitempty" yaml:"canonical,omitempty"`
}

// Describe fingerprints sql and reports the features behind the result.
// When sql does not parse the description still carries the invalid_sql
// sentinel and the parse error is returned alongside it.
func Describe(sql string) (Description, error) {
	fp, fs, err := analyze(sql)
	d := Description{Fingerprint: fp, Sentinel: IsSentinel(fp)}
	if err != nil {
		return d, fmt.Errorf("failed to parse sql: %w", err)
	}
	if fs == nil {
		return d, nil
	}

	d.Kind = fs.Kind.String()
	d.Tables = fs.Tables.Sorted()
	d.SubqueryTables = fs.SubqueryTables.Sorted()
	d.Columns = fs.Columns()
	d.Joins = fs.JoinKinds.Keys()
	d.SetOps = fs.SetOpKinds.Keys()
	d.Subqueries = fs.SubqueryCount
	d.Canonical = Serialize(fs)
	if len(fs.Aggregations) > 0 {
		d.Aggregations = make(map[string]int, len(fs.Aggregations))
		for name, n := range fs.Aggregations {
			if n > 0 {
				d.Aggregations[name] = n
			}
		}
	}
	return d, nil
}

// Sort orders fingerprints in place and returns them.
func Sort(fps []Fingerprint) []Fingerprint {
	sort.Slice(fps, func(i, j int) bool { return fps[i] < fps[j] })
	return fps
}
