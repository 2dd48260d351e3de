// Package analysis compares the fingerprint sets of callers that share a
// generating unit and derives validation candidates from the differences.
package analysis

import (
	"sort"

	"github.com/leapstack-labs/sqlshape/pkg/corpus"
	"github.com/leapstack-labs/sqlshape/pkg/fingerprint"
)

// Reference selection reasons.
const (
	ReasonOnlyCaller        = "only_caller"
	ReasonMostComprehensive = "most_comprehensive"
)

// ReferenceSet is the caller whose fingerprints every other caller of a unit
// is compared against.
type ReferenceSet struct {
	Caller       string                    `json:"caller" yaml:"caller"`
	Fingerprints []fingerprint.Fingerprint `json:"fingerprints" yaml:"fingerprints"`
	Reason       string                    `json:"reason" yaml:"reason"`
	// CallerStats is only set when the unit has several callers.
	CallerStats map[string]CallerStats `json:"all_caller_stats,omitempty" yaml:"all_caller_stats,omitempty"`
}

// CallerStats counts what one caller produced.
type CallerStats struct {
	Fingerprints         []fingerprint.Fingerprint `json:"fingerprints" yaml:"fingerprints"`
	FingerprintCount     int                       `json:"fingerprint_count" yaml:"fingerprint_count"`
	SQLCount             int                       `json:"sql_count" yaml:"sql_count"`
	AvgSQLPerFingerprint float64                   `json:"avg_sql_per_fingerprint" yaml:"avg_sql_per_fingerprint"`
}

// SelectReference picks the caller with the most distinct fingerprints,
// breaking ties by SQL count and then by caller name. It reports false when
// callers is empty.
func SelectReference(callers map[string][]corpus.Entry) (ReferenceSet, bool) {
	names := sortedCallers(callers)
	switch len(names) {
	case 0:
		return ReferenceSet{}, false
	case 1:
		return ReferenceSet{
			Caller:       names[0],
			Fingerprints: fingerprintsOf(callers[names[0]]).Sorted(),
			Reason:       ReasonOnlyCaller,
		}, true
	}

	stats := make(map[string]CallerStats, len(names))
	best := ""
	for _, name := range names {
		entries := callers[name]
		fps := fingerprintsOf(entries)
		s := CallerStats{
			Fingerprints:     fps.Sorted(),
			FingerprintCount: len(fps),
			SQLCount:         len(entries),
		}
		if len(fps) > 0 {
			s.AvgSQLPerFingerprint = float64(len(entries)) / float64(len(fps))
		}
		stats[name] = s

		if best == "" || better(s, stats[best]) {
			best = name
		}
	}

	return ReferenceSet{
		Caller:       best,
		Fingerprints: stats[best].Fingerprints,
		Reason:       ReasonMostComprehensive,
		CallerStats:  stats,
	}, true
}

func better(a, b CallerStats) bool {
	if a.FingerprintCount != b.FingerprintCount {
		return a.FingerprintCount > b.FingerprintCount
	}
	return a.SQLCount > b.SQLCount
}

func sortedCallers(callers map[string][]corpus.Entry) []string {
	names := make([]string, 0, len(callers))
	for name := range callers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FingerprintSet is a set of fingerprints.
type FingerprintSet map[fingerprint.Fingerprint]struct{}

// SetOf builds a set from fps.
func SetOf(fps ...fingerprint.Fingerprint) FingerprintSet {
	s := make(FingerprintSet, len(fps))
	for _, fp := range fps {
		s[fp] = struct{}{}
	}
	return s
}

// Has reports whether fp is in the set.
func (s FingerprintSet) Has(fp fingerprint.Fingerprint) bool {
	_, ok := s[fp]
	return ok
}

// Sorted returns the members in ascending order.
func (s FingerprintSet) Sorted() []fingerprint.Fingerprint {
	out := make([]fingerprint.Fingerprint, 0, len(s))
	for fp := range s {
		out = append(out, fp)
	}
	return fingerprint.Sort(out)
}

func fingerprintsOf(entries []corpus.Entry) FingerprintSet {
	s := make(FingerprintSet, len(entries))
	for _, e := range entries {
		s[e.Fingerprint] = struct{}{}
	}
	return s
}
