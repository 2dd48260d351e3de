// Package features extracts the structural feature set of parsed SQL.
package features

import (
	"sort"
)

// StatementKind is the kind of the statement a feature set was taken from.
// The numeric values are part of the fingerprint serialization.
type StatementKind int

// Statement kinds.
const (
	KindUnknown StatementKind = 0
	KindSelect  StatementKind = 1
	KindInsert  StatementKind = 2
	KindUpdate  StatementKind = 3
	KindDelete  StatementKind = 4
)

// String returns the SQL keyword for the kind.
func (k StatementKind) String() string {
	switch k {
	case KindSelect:
		return "SELECT"
	case KindInsert:
		return "INSERT"
	case KindUpdate:
		return "UPDATE"
	case KindDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Aggregate function names that are counted.
const (
	AggCount = "count"
	AggSum   = "sum"
	AggAvg   = "avg"
	AggMin   = "min"
	AggMax   = "max"
)

var aggregates = map[string]struct{}{
	AggCount: {}, AggSum: {}, AggAvg: {}, AggMin: {}, AggMax: {},
}

// Set is a string set.
type Set map[string]struct{}

// Add inserts v.
func (s Set) Add(v string) { s[v] = struct{}{} }

// Has reports whether v is in the set.
func (s Set) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Sorted returns the members in ascending order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Counter is a multiset.
type Counter map[string]int

// Keys returns the names with a positive count in ascending order.
func (c Counter) Keys() []string {
	out := make([]string, 0, len(c))
	for k, n := range c {
		if n > 0 {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Total returns the sum of all counts.
func (c Counter) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// FeatureSet is the structural summary of one SQL text. It is filled by a
// single Extract call and is not shared.
type FeatureSet struct {
	Kind StatementKind

	Tables            Set
	ProjectionColumns Set
	PredicateColumns  Set
	GroupKeys         Set
	OrderKeys         Set

	JoinKinds  Counter
	SetOpKinds Counter

	SubqueryCount     int
	SubqueryTables    Set
	HasNestedSubquery bool

	Aggregations Counter

	HasGroupBy    bool
	HasHaving     bool
	LimitPresent  bool
	OffsetPresent bool
}

// New returns an empty feature set.
func New() *FeatureSet {
	return &FeatureSet{
		Tables:            Set{},
		ProjectionColumns: Set{},
		PredicateColumns:  Set{},
		GroupKeys:         Set{},
		OrderKeys:         Set{},
		JoinKinds:         Counter{},
		SetOpKinds:        Counter{},
		SubqueryTables:    Set{},
		Aggregations:      Counter{},
	}
}

// Columns returns every column the statement references.
func (fs *FeatureSet) Columns() []string {
	all := Set{}
	for _, s := range []Set{fs.ProjectionColumns, fs.PredicateColumns, fs.GroupKeys, fs.OrderKeys} {
		for v := range s {
			all.Add(v)
		}
	}
	return all.Sorted()
}
