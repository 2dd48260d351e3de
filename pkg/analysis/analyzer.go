package analysis

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/sqlshape/pkg/corpus"
	"github.com/leapstack-labs/sqlshape/pkg/fingerprint"
)

// CallerDiff is the comparison of one non-reference caller.
type CallerDiff struct {
	Caller           string                    `json:"caller" yaml:"caller"`
	Fingerprints     []fingerprint.Fingerprint `json:"fingerprints" yaml:"fingerprints"`
	FingerprintCount int                       `json:"fingerprint_count" yaml:"fingerprint_count"`
	DiffResult       `yaml:",inline"`
}

// UnitSummary counts the outcome of one unit.
type UnitSummary struct {
	TotalCallers          int `json:"total_callers" yaml:"total_callers"`
	AnalyzedCallers       int `json:"analyzed_callers" yaml:"analyzed_callers"`
	RedundantCallers      int `json:"redundant_callers" yaml:"redundant_callers"`
	CallersWithMissing    int `json:"callers_with_missing" yaml:"callers_with_missing"`
	CallersWithNewFPs     int `json:"callers_with_new_fps" yaml:"callers_with_new_fps"`
	TotalCandidatesForLLM int `json:"total_candidates_for_llm" yaml:"total_candidates_for_llm"`
}

// UnitAnalysis is the full comparison of the callers of one unit.
type UnitAnalysis struct {
	Unit                     string                 `json:"orm_code" yaml:"orm_code"`
	Reference                ReferenceSet           `json:"reference" yaml:"reference"`
	Callers                  map[string]*CallerDiff `json:"caller_analysis" yaml:"caller_analysis"`
	RedundantCandidates      []Candidate            `json:"redundant_candidates" yaml:"redundant_candidates"`
	MissingCandidates        []Candidate            `json:"missing_candidates" yaml:"missing_candidates"`
	NewFingerprintCandidates []Candidate            `json:"new_fingerprint_candidates" yaml:"new_fingerprint_candidates"`
	Summary                  UnitSummary            `json:"summary" yaml:"summary"`
}

// AnalyzeUnit compares every caller of a unit with its reference set. It
// reports false when the unit has no callers.
func AnalyzeUnit(unit string, callers map[string][]corpus.Entry) (*UnitAnalysis, bool) {
	ref, ok := SelectReference(callers)
	if !ok {
		return nil, false
	}

	ua := &UnitAnalysis{
		Unit:      unit,
		Reference: ref,
		Callers:   make(map[string]*CallerDiff, len(callers)),
	}
	refSet := SetOf(ref.Fingerprints...)
	refEntries := callers[ref.Caller]

	for _, name := range sortedCallers(callers) {
		if name == ref.Caller {
			continue
		}
		entries := callers[name]
		set := fingerprintsOf(entries)
		d := Diff(refSet, set)
		ua.Callers[name] = &CallerDiff{
			Caller:           name,
			Fingerprints:     set.Sorted(),
			FingerprintCount: len(set),
			DiffResult:       d,
		}

		for _, c := range candidates(unit, ref, refEntries, name, entries, d) {
			switch c.Kind {
			case KindRedundant:
				ua.RedundantCandidates = append(ua.RedundantCandidates, c)
			case KindMissing:
				ua.MissingCandidates = append(ua.MissingCandidates, c)
			case KindNewFingerprint:
				ua.NewFingerprintCandidates = append(ua.NewFingerprintCandidates, c)
			}
		}
	}

	ua.Summary = UnitSummary{
		TotalCallers:       len(callers),
		AnalyzedCallers:    len(ua.Callers),
		RedundantCallers:   len(ua.RedundantCandidates),
		CallersWithMissing: len(ua.MissingCandidates),
		CallersWithNewFPs:  len(ua.NewFingerprintCandidates),
	}
	ua.Summary.TotalCandidatesForLLM = ua.Summary.RedundantCallers +
		ua.Summary.CallersWithMissing +
		ua.Summary.CallersWithNewFPs
	return ua, true
}

// Config configures an Analyzer.
type Config struct {
	// Workers bounds concurrent unit analysis (defaults to GOMAXPROCS)
	Workers int
	// LimitPerType caps each candidate kind in the validation queue (0 = no limit)
	LimitPerType int
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Analyzer runs the per-unit analysis over an index.
type Analyzer struct {
	workers      int
	limitPerType int
	logger       *slog.Logger
}

// New creates an analyzer.
func New(cfg Config) *Analyzer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Analyzer{workers: workers, limitPerType: cfg.LimitPerType, logger: logger}
}

// Run analyzes every unit of idx. Units are analyzed concurrently; the result
// lists them in sorted order.
func (a *Analyzer) Run(ctx context.Context, idx *corpus.Index) (*Result, error) {
	units := idx.Units()
	a.logger.Info("analyzing units", "units", len(units), "workers", a.workers)

	analyses := make([]*UnitAnalysis, len(units))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, unit := range units {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if ua, ok := AnalyzeUnit(unit, idx.Callers(unit)); ok {
				analyses[i] = ua
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{limitPerType: a.limitPerType, byUnit: make(map[string]*UnitAnalysis, len(units))}
	for _, ua := range analyses {
		if ua == nil {
			continue
		}
		res.Units = append(res.Units, ua)
		res.byUnit[ua.Unit] = ua
	}

	a.logger.Debug("analysis complete", "units", len(res.Units), "candidates", len(res.Candidates()))
	return res, nil
}

// Result holds the analysis of every unit, sorted by unit.
type Result struct {
	Units []*UnitAnalysis

	limitPerType int
	byUnit       map[string]*UnitAnalysis
}

// NewResult wraps already computed unit analyses.
func NewResult(units []*UnitAnalysis, limitPerType int) *Result {
	res := &Result{limitPerType: limitPerType, byUnit: make(map[string]*UnitAnalysis, len(units))}
	for _, ua := range units {
		res.Units = append(res.Units, ua)
		res.byUnit[ua.Unit] = ua
	}
	sort.Slice(res.Units, func(i, j int) bool { return res.Units[i].Unit < res.Units[j].Unit })
	return res
}

// Unit returns the analysis of unit, or nil.
func (r *Result) Unit(unit string) *UnitAnalysis {
	return r.byUnit[unit]
}

// References returns the reference set of every unit keyed by unit.
func (r *Result) References() map[string]ReferenceSet {
	out := make(map[string]ReferenceSet, len(r.Units))
	for _, ua := range r.Units {
		out[ua.Unit] = ua.Reference
	}
	return out
}

// Candidates returns every candidate of every unit.
func (r *Result) Candidates() []Candidate {
	var out []Candidate
	for _, ua := range r.Units {
		out = append(out, ua.RedundantCandidates...)
		out = append(out, ua.NewFingerprintCandidates...)
		out = append(out, ua.MissingCandidates...)
	}
	return out
}

// QueueItem is one entry of the validation queue.
type QueueItem struct {
	ValidationType  CandidateKind `json:"validation_type" yaml:"validation_type"`
	Unit            string        `json:"orm_code" yaml:"orm_code"`
	TargetCaller    string        `json:"target_caller" yaml:"target_caller"`
	ReferenceCaller string        `json:"reference_caller" yaml:"reference_caller"`
	Priority        Priority      `json:"priority" yaml:"priority"`
	ValidationID    string        `json:"validation_id" yaml:"validation_id"`
	Candidate       Candidate     `json:"candidate_info" yaml:"candidate_info"`
}

// Queue flattens the candidates into the validation queue: units in sorted
// order, and within a unit redundant, then new fingerprint, then missing
// candidates. limitPerType caps each kind across the whole queue; 0 means no
// limit.
func (r *Result) Queue(limitPerType int) []QueueItem {
	counts := map[CandidateKind]int{}
	var queue []QueueItem
	add := func(cands []Candidate) {
		for _, c := range cands {
			if limitPerType > 0 && counts[c.Kind] >= limitPerType {
				return
			}
			queue = append(queue, QueueItem{
				ValidationType:  c.Kind,
				Unit:            c.Unit,
				TargetCaller:    c.Caller,
				ReferenceCaller: c.ReferenceCaller,
				Priority:        c.Priority,
				ValidationID:    c.ValidationID,
				Candidate:       c,
			})
			counts[c.Kind]++
		}
	}
	for _, ua := range r.Units {
		add(ua.RedundantCandidates)
		add(ua.NewFingerprintCandidates)
		add(ua.MissingCandidates)
	}
	return queue
}

// KindCounts counts candidates by kind.
type KindCounts struct {
	Redundant      int `json:"redundant" yaml:"redundant"`
	Missing        int `json:"missing" yaml:"missing"`
	NewFingerprint int `json:"new_fingerprint" yaml:"new_fingerprint"`
	Total          int `json:"total" yaml:"total"`
}

func (k *KindCounts) add(kind CandidateKind) {
	switch kind {
	case KindRedundant:
		k.Redundant++
	case KindMissing:
		k.Missing++
	case KindNewFingerprint:
		k.NewFingerprint++
	}
	k.Total++
}

// QueueCounts counts queue items by kind and by priority.
type QueueCounts struct {
	KindCounts `yaml:",inline"`
	ByPriority map[Priority]int `json:"by_priority" yaml:"by_priority"`
}

// Distribution counts units having at least one candidate of each kind.
type Distribution struct {
	WithRedundant      int `json:"with_redundant_candidates" yaml:"with_redundant_candidates"`
	WithMissing        int `json:"with_missing_candidates" yaml:"with_missing_candidates"`
	WithNewFingerprint int `json:"with_new_fp_candidates" yaml:"with_new_fp_candidates"`
}

// Summary holds global totals of an analysis.
type Summary struct {
	Timestamp                time.Time    `json:"analysis_timestamp" yaml:"analysis_timestamp"`
	UnitsAnalyzed            int          `json:"total_orm_codes_analyzed" yaml:"total_orm_codes_analyzed"`
	Candidates               KindCounts   `json:"total_candidates" yaml:"total_candidates"`
	Queue                    QueueCounts  `json:"llm_validation_queue" yaml:"llm_validation_queue"`
	Distribution             Distribution `json:"orm_distribution" yaml:"orm_distribution"`
	AvgCallersPerUnit        float64      `json:"avg_callers_per_unit" yaml:"avg_callers_per_unit"`
	AvgReferenceFingerprints float64      `json:"avg_fingerprints_per_reference" yaml:"avg_fingerprints_per_reference"`
}

// Summary computes the global totals. The queue counts honor the limit the
// analyzer was configured with.
func (r *Result) Summary(now time.Time) Summary {
	s := Summary{
		Timestamp:     now,
		UnitsAnalyzed: len(r.Units),
		Queue:         QueueCounts{ByPriority: map[Priority]int{}},
	}

	callers, refFPs := 0, 0
	for _, ua := range r.Units {
		for _, c := range ua.RedundantCandidates {
			s.Candidates.add(c.Kind)
		}
		for _, c := range ua.MissingCandidates {
			s.Candidates.add(c.Kind)
		}
		for _, c := range ua.NewFingerprintCandidates {
			s.Candidates.add(c.Kind)
		}
		if len(ua.RedundantCandidates) > 0 {
			s.Distribution.WithRedundant++
		}
		if len(ua.MissingCandidates) > 0 {
			s.Distribution.WithMissing++
		}
		if len(ua.NewFingerprintCandidates) > 0 {
			s.Distribution.WithNewFingerprint++
		}
		callers += ua.Summary.TotalCallers
		refFPs += len(ua.Reference.Fingerprints)
	}

	for _, item := range r.Queue(r.limitPerType) {
		s.Queue.add(item.ValidationType)
		s.Queue.ByPriority[item.Priority]++
	}

	if n := len(r.Units); n > 0 {
		s.AvgCallersPerUnit = float64(callers) / float64(n)
		s.AvgReferenceFingerprints = float64(refFPs) / float64(n)
	}
	return s
}

// LimitPerType returns the queue limit the result was produced with.
func (r *Result) LimitPerType() int { return r.limitPerType }
