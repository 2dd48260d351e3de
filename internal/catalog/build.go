package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/sqlshape/pkg/fingerprint"
)

// BuildStats describes one catalog build.
type BuildStats struct {
	ID           string    `json:"id"`
	Source       string    `json:"source"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at,omitzero"`
	Statements   int       `json:"statements"`
	Fingerprints int       `json:"fingerprints"`
	// New counts fingerprints the catalog had not seen before this build.
	New int `json:"new"`
}

type aggregate struct {
	example string
	count   int
}

// Build fingerprints every statement of src and merges the result into the
// catalog. Existing fingerprints keep their first example and accumulate
// their SQL count.
func (c *Catalog) Build(ctx context.Context, src Source) (*BuildStats, error) {
	if c.db == nil {
		return nil, ErrNotOpen
	}

	stats := &BuildStats{
		ID:        generateID(),
		Source:    src.Name(),
		StartedAt: now(),
	}

	seen := make(map[fingerprint.Fingerprint]*aggregate)
	var order []fingerprint.Fingerprint
	err := src.Each(ctx, func(text string) error {
		stats.Statements++
		fp := c.fp.Fingerprint(text)
		if agg, ok := seen[fp]; ok {
			agg.count++
			return nil
		}
		seen[fp] = &aggregate{example: text, count: 1}
		order = append(order, fp)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read source %s: %w", src.Name(), err)
	}
	stats.Fingerprints = len(order)

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// The build row is written with its fingerprints so a failed build
	// leaves nothing behind.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO builds (id, source, started_at) VALUES (?, ?, ?)`,
		stats.ID, stats.Source, stats.StartedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to create build: %w", err)
	}

	for _, fp := range order {
		agg := seen[fp]
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM fingerprints WHERE fingerprint = ?`, string(fp),
		).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to look up fingerprint: %w", err)
		}
		if exists == 0 {
			stats.New++
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO fingerprints (fingerprint, example_sql, sql_count, sentinel, first_seen_build)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(fingerprint) DO UPDATE SET sql_count = fingerprints.sql_count + excluded.sql_count
		`, string(fp), agg.example, agg.count, fingerprint.IsSentinel(fp), stats.ID); err != nil {
			return nil, fmt.Errorf("failed to upsert fingerprint: %w", err)
		}
	}

	stats.CompletedAt = now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE builds SET completed_at = ?, statements = ?, fingerprints = ? WHERE id = ?`,
		stats.CompletedAt, stats.Statements, stats.Fingerprints, stats.ID,
	); err != nil {
		return nil, fmt.Errorf("failed to complete build: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit build: %w", err)
	}

	c.logger.Info("catalog build complete",
		slog.String("source", stats.Source),
		slog.Int("statements", stats.Statements),
		slog.Int("fingerprints", stats.Fingerprints),
		slog.Int("new", stats.New))
	return stats, nil
}
