package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/leapstack-labs/sqlshape/pkg/fingerprint"
)

// ExcludedPrefix starts the exclusion reason of sentinel fingerprints.
const ExcludedPrefix = "excluded_type:"

// MatchResult is the outcome of matching one statement against the catalog.
type MatchResult struct {
	Matched       bool                    `json:"matched"`
	Fingerprint   fingerprint.Fingerprint `json:"fingerprint"`
	ExampleSQL    string                  `json:"example_sql,omitempty"`
	ExampleCount  int                     `json:"example_count,omitempty"`
	Excluded      bool                    `json:"excluded,omitempty"`
	ExcludeReason string                  `json:"exclude_reason,omitempty"`
}

// Match fingerprints sql and looks it up. Sentinel fingerprints are never
// matched; they are reported as excluded.
func (c *Catalog) Match(ctx context.Context, text string) (MatchResult, error) {
	if c.db == nil {
		return MatchResult{}, ErrNotOpen
	}

	fp := c.fp.Fingerprint(text)
	res := MatchResult{Fingerprint: fp}
	if fingerprint.IsSentinel(fp) {
		res.Excluded = true
		res.ExcludeReason = ExcludedPrefix + string(fp)
		return res, nil
	}

	err := c.db.QueryRowContext(ctx,
		`SELECT example_sql, sql_count FROM fingerprints WHERE fingerprint = ?`, string(fp),
	).Scan(&res.ExampleSQL, &res.ExampleCount)
	if errors.Is(err, sql.ErrNoRows) {
		return res, nil
	}
	if err != nil {
		return MatchResult{}, fmt.Errorf("failed to match fingerprint: %w", err)
	}
	res.Matched = true
	return res, nil
}

// CoverageReport tells how much of a fingerprint set the catalog knows.
type CoverageReport struct {
	Total     int                       `json:"total"`
	Covered   int                       `json:"covered"`
	Ratio     float64                   `json:"ratio"`
	Uncovered []fingerprint.Fingerprint `json:"uncovered"`
}

// Coverage checks the distinct structural fingerprints of fps against the
// catalog. Sentinels are left out of the total.
func (c *Catalog) Coverage(ctx context.Context, fps []fingerprint.Fingerprint) (*CoverageReport, error) {
	if c.db == nil {
		return nil, ErrNotOpen
	}

	seen := make(map[fingerprint.Fingerprint]struct{}, len(fps))
	var distinct []fingerprint.Fingerprint
	for _, fp := range fps {
		if fingerprint.IsSentinel(fp) {
			continue
		}
		if _, ok := seen[fp]; ok {
			continue
		}
		seen[fp] = struct{}{}
		distinct = append(distinct, fp)
	}
	fingerprint.Sort(distinct)

	report := &CoverageReport{Total: len(distinct), Uncovered: []fingerprint.Fingerprint{}}
	for _, fp := range distinct {
		var n int
		if err := c.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM fingerprints WHERE fingerprint = ?`, string(fp),
		).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to check coverage: %w", err)
		}
		if n > 0 {
			report.Covered++
		} else {
			report.Uncovered = append(report.Uncovered, fp)
		}
	}
	if report.Total > 0 {
		report.Ratio = float64(report.Covered) / float64(report.Total)
	}
	return report, nil
}

// Record is a stored fingerprint.
type Record struct {
	Fingerprint    fingerprint.Fingerprint `json:"fingerprint"`
	ExampleSQL     string                  `json:"example_sql"`
	SQLCount       int                     `json:"sql_count"`
	Sentinel       bool                    `json:"sentinel"`
	FirstSeenBuild string                  `json:"first_seen_build,omitempty"`
}

// Fingerprints lists the catalog ordered by SQL count, most frequent first.
func (c *Catalog) Fingerprints(ctx context.Context) ([]Record, error) {
	if c.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT fingerprint, example_sql, sql_count, sentinel, first_seen_build
		FROM fingerprints
		ORDER BY sql_count DESC, fingerprint
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list fingerprints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var r Record
		var fp string
		var build sql.NullString
		if err := rows.Scan(&fp, &r.ExampleSQL, &r.SQLCount, &r.Sentinel, &build); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		r.Fingerprint = fingerprint.Fingerprint(fp)
		r.FirstSeenBuild = build.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// Builds lists past builds, newest first.
func (c *Catalog) Builds(ctx context.Context) ([]BuildStats, error) {
	if c.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, source, started_at, completed_at, statements, fingerprints
		FROM builds
		ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var builds []BuildStats
	for rows.Next() {
		var b BuildStats
		var completed sql.NullTime
		if err := rows.Scan(&b.ID, &b.Source, &b.StartedAt, &completed, &b.Statements, &b.Fingerprints); err != nil {
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		if completed.Valid {
			b.CompletedAt = completed.Time
		}
		builds = append(builds, b)
	}
	return builds, rows.Err()
}
