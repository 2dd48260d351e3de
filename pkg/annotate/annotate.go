// Package annotate marks redundant SQL in a corpus without changing its shape.
package annotate

import (
	"context"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/sqlshape/pkg/analysis"
	"github.com/leapstack-labs/sqlshape/pkg/corpus"
	"github.com/leapstack-labs/sqlshape/pkg/fingerprint"
)

type key struct {
	unit, caller string
	fp           fingerprint.Fingerprint
}

// RedundantIndex is the set of (unit, caller, fingerprint) triples flagged as
// redundant.
type RedundantIndex map[key]struct{}

// Add flags a triple.
func (r RedundantIndex) Add(unit, caller string, fp fingerprint.Fingerprint) {
	r[key{unit, caller, fp}] = struct{}{}
}

// Has reports whether the triple is flagged.
func (r RedundantIndex) Has(unit, caller string, fp fingerprint.Fingerprint) bool {
	_, ok := r[key{unit, caller, fp}]
	return ok
}

// RedundantIndexFrom flags every fingerprint of every redundant caller.
func RedundantIndexFrom(res *analysis.Result) RedundantIndex {
	idx := RedundantIndex{}
	for _, ua := range res.Units {
		for _, c := range ua.RedundantCandidates {
			for _, fp := range c.Fingerprints {
				idx.Add(c.Unit, c.Caller, fp)
			}
		}
	}
	return idx
}

// Annotate returns a copy of records in which every leaf whose triple is
// flagged carries the redundancy marker. Leaves already marked are left
// alone, so annotating twice changes nothing. The no-SQL marker and every
// non-SQL field pass through.
func Annotate(records []corpus.Record, redundant RedundantIndex, fp func(string) fingerprint.Fingerprint) []corpus.Record {
	out := make([]corpus.Record, len(records))
	for i, rec := range records {
		out[i] = annotateRecord(rec, redundant, fp)
	}
	return out
}

// AnnotateParallel is Annotate over an errgroup pool. The output order matches
// the input order.
func AnnotateParallel(ctx context.Context, records []corpus.Record, redundant RedundantIndex, fp func(string) fingerprint.Fingerprint, workers int) ([]corpus.Record, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	out := make([]corpus.Record, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, rec := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = annotateRecord(rec, redundant, fp)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func annotateRecord(rec corpus.Record, redundant RedundantIndex, fp func(string) fingerprint.Fingerprint) corpus.Record {
	if len(redundant) == 0 {
		return rec
	}
	tree := corpus.MapLeaves(rec.Tree, func(leaf string) string {
		sql := strings.TrimSpace(leaf)
		if sql == "" || sql == corpus.NoSQLMarker || strings.HasSuffix(sql, corpus.RedundantMarker) {
			return leaf
		}
		if redundant.Has(rec.Unit, rec.Caller, fp(sql)) {
			return leaf + corpus.RedundantMarker
		}
		return leaf
	})
	return rec.WithTree(tree)
}

// Restore writes annotated records back into their original object shape.
func Restore(records []corpus.Record, fields corpus.FieldNames) []map[string]any {
	out := make([]map[string]any, len(records))
	for i, rec := range records {
		out[i] = rec.Encode(fields)
	}
	return out
}
