// Package pipeline runs the corpus workflow: load, ingest, analyze.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/leapstack-labs/sqlshape/pkg/analysis"
	"github.com/leapstack-labs/sqlshape/pkg/annotate"
	"github.com/leapstack-labs/sqlshape/pkg/corpus"
	"github.com/leapstack-labs/sqlshape/pkg/fingerprint"
)

// Options configures a pipeline run.
type Options struct {
	Fields       corpus.FieldNames
	Workers      int
	LimitPerType int
	// Fingerprinter is shared across stages (optional, a fresh cache per run if nil)
	Fingerprinter *fingerprint.Fingerprinter
	Logger        *slog.Logger
}

// Output is everything a run produced.
type Output struct {
	Path     string
	Records  []corpus.Record
	Index    *corpus.Index
	Result   *analysis.Result
	Duration time.Duration
}

// Run analyzes the corpus file at path.
func Run(ctx context.Context, path string, opts Options) (*Output, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	fp := opts.Fingerprinter
	if fp == nil {
		fp = fingerprint.NewFingerprinter(fingerprint.NewCache(), logger)
	}
	start := time.Now()

	f, err := os.Open(path) //nolint:gosec // path is user-provided input
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus: %w", err)
	}
	defer func() { _ = f.Close() }()

	records, err := corpus.Load(f, opts.Fields)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus %s: %w", path, err)
	}
	logger.Debug("loaded corpus", slog.String("path", path), slog.Int("records", len(records)))

	idx := corpus.NewIndex(corpus.IndexConfig{
		Fingerprinter: fp,
		Workers:       opts.Workers,
		Logger:        logger,
	})
	if err := idx.Ingest(ctx, records); err != nil {
		return nil, fmt.Errorf("failed to ingest corpus: %w", err)
	}

	res, err := analysis.New(analysis.Config{
		Workers:      opts.Workers,
		LimitPerType: opts.LimitPerType,
		Logger:       logger,
	}).Run(ctx, idx)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze corpus: %w", err)
	}

	out := &Output{
		Path:     path,
		Records:  records,
		Index:    idx,
		Result:   res,
		Duration: time.Since(start),
	}
	stats := idx.Stats()
	logger.Info("analysis complete",
		slog.Int("units", len(res.Units)),
		slog.Int("entries", stats.Entries),
		slog.Int("dropped", stats.Dropped),
		slog.Duration("duration", out.Duration))
	return out, nil
}

// Annotate marks redundant leaves of the run's records and returns them in
// their original JSON shape.
func (o *Output) Annotate(ctx context.Context, fields corpus.FieldNames, workers int) ([]map[string]any, error) {
	redundant := annotate.RedundantIndexFrom(o.Result)
	annotated, err := annotate.AnnotateParallel(ctx, o.Records, redundant, o.Index.Fingerprinter().Fingerprint, workers)
	if err != nil {
		return nil, fmt.Errorf("failed to annotate corpus: %w", err)
	}
	return annotate.Restore(annotated, fields), nil
}
