package corpus

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/sqlshape/pkg/fingerprint"
)

// Entry is one SQL text of a caller together with its fingerprint.
type Entry struct {
	SQL         string                  `json:"sql" yaml:"sql"`
	Fingerprint fingerprint.Fingerprint `json:"fingerprint" yaml:"fingerprint"`
	RecordID    int                     `json:"record_id" yaml:"record_id"`
	Function    string                  `json:"function_name,omitempty" yaml:"function_name,omitempty"`
}

// IndexConfig configures an Index.
type IndexConfig struct {
	// Fingerprinter computes fingerprints (optional, uncached if nil)
	Fingerprinter *fingerprint.Fingerprinter
	// Workers bounds concurrent fingerprinting (defaults to GOMAXPROCS)
	Workers int
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Index groups fingerprinted SQL by unit and caller.
type Index struct {
	fp      *fingerprint.Fingerprinter
	workers int
	logger  *slog.Logger

	mu      sync.RWMutex
	units   map[string]map[string][]Entry
	records int
	skipped int
	dropped int
}

// NewIndex creates an empty index.
func NewIndex(cfg IndexConfig) *Index {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	fp := cfg.Fingerprinter
	if fp == nil {
		fp = fingerprint.NewFingerprinter(nil, logger)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Index{
		fp:      fp,
		workers: workers,
		logger:  logger,
		units:   make(map[string]map[string][]Entry),
	}
}

// Ingest fingerprints every SQL text of records. Records are processed
// concurrently but entries are stored in input order. Records without a unit
// are skipped and a record without any SQL text is dropped.
func (idx *Index) Ingest(ctx context.Context, records []Record) error {
	results := make([][]Entry, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)
	for i, rec := range records {
		if !rec.Indexable() {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			texts := rec.SQL()
			entries := make([]Entry, len(texts))
			for j, sql := range texts {
				entries[j] = Entry{
					SQL:         sql,
					Fingerprint: idx.fp.Fingerprint(sql),
					RecordID:    rec.ID,
					Function:    rec.Function,
				}
			}
			results[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	for i, rec := range records {
		idx.records++
		if !rec.Indexable() {
			idx.skipped++
			continue
		}
		if len(results[i]) == 0 {
			idx.dropped++
			continue
		}
		callers, ok := idx.units[rec.Unit]
		if !ok {
			callers = make(map[string][]Entry)
			idx.units[rec.Unit] = callers
		}
		callers[rec.Caller] = append(callers[rec.Caller], results[i]...)
	}

	idx.logger.Debug("ingested records",
		"records", len(records),
		"units", len(idx.units),
		"skipped", idx.skipped,
		"dropped", idx.dropped)
	return nil
}

// Units returns the unit names in sorted order.
func (idx *Index) Units() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	units := make([]string, 0, len(idx.units))
	for u := range idx.units {
		units = append(units, u)
	}
	sort.Strings(units)
	return units
}

// Callers returns the entries of unit keyed by caller. The returned map must
// not be modified.
func (idx *Index) Callers(unit string) map[string][]Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.units[unit]
}

// Fingerprints returns every distinct fingerprint in the index, sorted.
func (idx *Index) Fingerprints() []fingerprint.Fingerprint {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	seen := make(map[fingerprint.Fingerprint]struct{})
	for _, callers := range idx.units {
		for _, entries := range callers {
			for _, e := range entries {
				seen[e.Fingerprint] = struct{}{}
			}
		}
	}
	out := make([]fingerprint.Fingerprint, 0, len(seen))
	for fp := range seen {
		out = append(out, fp)
	}
	return fingerprint.Sort(out)
}

// IndexStats summarizes what has been ingested.
type IndexStats struct {
	Records int `json:"records" yaml:"records"`
	Skipped int `json:"skipped" yaml:"skipped"`
	Dropped int `json:"dropped" yaml:"dropped"`
	Units   int `json:"units" yaml:"units"`
	Callers int `json:"callers" yaml:"callers"`
	Entries int `json:"entries" yaml:"entries"`
}

// Stats returns counters over the ingested records.
func (idx *Index) Stats() IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	s := IndexStats{Records: idx.records, Skipped: idx.skipped, Dropped: idx.dropped, Units: len(idx.units)}
	for _, callers := range idx.units {
		s.Callers += len(callers)
		for _, entries := range callers {
			s.Entries += len(entries)
		}
	}
	return s
}

// Fingerprinter returns the fingerprinter used by the index.
func (idx *Index) Fingerprinter() *fingerprint.Fingerprinter { return idx.fp }
