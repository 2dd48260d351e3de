package analysis

import (
	"fmt"

	"github.com/leapstack-labs/sqlshape/pkg/corpus"
	"github.com/leapstack-labs/sqlshape/pkg/fingerprint"
)

// DiffResult compares a caller's fingerprint set with the reference set.
type DiffResult struct {
	Common     []fingerprint.Fingerprint `json:"common_with_reference" yaml:"common_with_reference"`
	Missing    []fingerprint.Fingerprint `json:"missing_from_reference" yaml:"missing_from_reference"`
	Extra      []fingerprint.Fingerprint `json:"extra_beyond_reference" yaml:"extra_beyond_reference"`
	IsSubset   bool                      `json:"is_subset_of_reference" yaml:"is_subset_of_reference"`
	IsSuperset bool                      `json:"is_superset_of_reference" yaml:"is_superset_of_reference"`
	Jaccard    float64                   `json:"jaccard_similarity" yaml:"jaccard_similarity"`
}

// Diff computes the set relations between reference and caller. The Jaccard
// similarity of two empty sets is 0.
func Diff(reference, caller FingerprintSet) DiffResult {
	var d DiffResult
	for fp := range caller {
		if reference.Has(fp) {
			d.Common = append(d.Common, fp)
		} else {
			d.Extra = append(d.Extra, fp)
		}
	}
	for fp := range reference {
		if !caller.Has(fp) {
			d.Missing = append(d.Missing, fp)
		}
	}
	fingerprint.Sort(d.Common)
	fingerprint.Sort(d.Missing)
	fingerprint.Sort(d.Extra)

	d.IsSubset = len(d.Extra) == 0
	d.IsSuperset = len(d.Missing) == 0
	if union := len(d.Common) + len(d.Missing) + len(d.Extra); union > 0 {
		d.Jaccard = float64(len(d.Common)) / float64(union)
	}
	return d
}

// IsStrictSubset reports whether the caller set is contained in, and smaller
// than, the reference set.
func (d DiffResult) IsStrictSubset() bool {
	return d.IsSubset && len(d.Missing) > 0
}

// CandidateKind classifies a validation candidate.
type CandidateKind string

// Candidate kinds.
const (
	KindRedundant      CandidateKind = "redundant"
	KindMissing        CandidateKind = "missing"
	KindNewFingerprint CandidateKind = "new_fingerprint"
)

// Prefix returns the validation ID prefix of the kind.
func (k CandidateKind) Prefix() string {
	if k == KindNewFingerprint {
		return "new_fp"
	}
	return string(k)
}

// Priority is the validation urgency of a candidate.
type Priority string

// Priorities.
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
)

// Priority returns the priority assigned to candidates of the kind.
func (k CandidateKind) Priority() Priority {
	if k == KindMissing {
		return PriorityMedium
	}
	return PriorityHigh
}

// Candidate is a caller flagged for validation.
type Candidate struct {
	Kind            CandidateKind             `json:"type" yaml:"type"`
	Unit            string                    `json:"orm_code" yaml:"orm_code"`
	Caller          string                    `json:"caller" yaml:"caller"`
	ReferenceCaller string                    `json:"reference_caller" yaml:"reference_caller"`
	Reason          string                    `json:"reason" yaml:"reason"`
	Fingerprints    []fingerprint.Fingerprint `json:"fingerprints" yaml:"fingerprints"`
	Examples        []corpus.Entry            `json:"examples" yaml:"examples"`
	Priority        Priority                  `json:"priority" yaml:"priority"`
	ValidationID    string                    `json:"validation_id" yaml:"validation_id"`
}

// ValidationID returns <prefix>_<unit>_<caller>.
func ValidationID(kind CandidateKind, unit, caller string) string {
	return kind.Prefix() + "_" + unit + "_" + caller
}

func newCandidate(kind CandidateKind, unit, caller, reference string) Candidate {
	return Candidate{
		Kind:            kind,
		Unit:            unit,
		Caller:          caller,
		ReferenceCaller: reference,
		Priority:        kind.Priority(),
		ValidationID:    ValidationID(kind, unit, caller),
	}
}

// candidates derives the candidates of one caller. Each rule applies
// independently, so one caller can yield several candidates.
func candidates(unit string, ref ReferenceSet, refEntries []corpus.Entry, caller string, entries []corpus.Entry, d DiffResult) []Candidate {
	var out []Candidate

	if d.IsStrictSubset() {
		c := newCandidate(KindRedundant, unit, caller, ref.Caller)
		c.Reason = "caller fingerprints are contained in the reference set"
		c.Fingerprints = fingerprintsOf(entries).Sorted()
		c.Examples = entries
		out = append(out, c)
	}

	if len(d.Missing) > 0 {
		c := newCandidate(KindMissing, unit, caller, ref.Caller)
		c.Reason = fmt.Sprintf("caller lacks %d reference fingerprints", len(d.Missing))
		c.Fingerprints = d.Missing
		for _, fp := range d.Missing {
			for _, e := range refEntries {
				if e.Fingerprint == fp {
					c.Examples = append(c.Examples, e)
					break
				}
			}
		}
		out = append(out, c)
	}

	if len(d.Extra) > 0 {
		c := newCandidate(KindNewFingerprint, unit, caller, ref.Caller)
		c.Reason = fmt.Sprintf("caller has %d fingerprints beyond the reference set", len(d.Extra))
		c.Fingerprints = d.Extra
		extra := SetOf(d.Extra...)
		for _, e := range entries {
			if extra.Has(e.Fingerprint) {
				c.Examples = append(c.Examples, e)
			}
		}
		out = append(out, c)
	}

	return out
}
