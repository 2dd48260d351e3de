// Package report writes analysis results to disk.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/sqlshape/pkg/analysis"
)

// Format is the encoding of report files.
type Format string

// Report formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name. An empty name is JSON.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown report format %q (expected json or yaml)", s)
	}
}

// Ext returns the file extension of the format, including the dot.
func (f Format) Ext() string {
	if f == FormatYAML {
		return ".yaml"
	}
	return ".json"
}

// Report file base names.
const (
	AnalysisFile   = "orm_fingerprint_analysis"
	ReferencesFile = "reference_sets"
	CandidatesFile = "llm_validation_candidates"
	SummaryFile    = "analysis_summary"
)

// Files lists the paths written by Write.
type Files struct {
	Analysis   string `json:"analysis_file" yaml:"analysis_file"`
	References string `json:"reference_file" yaml:"reference_file"`
	Candidates string `json:"candidates_file" yaml:"candidates_file"`
	Summary    string `json:"summary_file" yaml:"summary_file"`
}

// Write stores the four analysis reports in dir, creating it if needed, and
// returns their paths together with the summary it wrote.
func Write(dir string, format Format, res *analysis.Result, now time.Time) (Files, analysis.Summary, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return Files{}, analysis.Summary{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	units := make(map[string]*analysis.UnitAnalysis, len(res.Units))
	for _, ua := range res.Units {
		units[ua.Unit] = ua
	}
	queue := res.Queue(res.LimitPerType())
	if queue == nil {
		queue = []analysis.QueueItem{}
	}
	summary := res.Summary(now)

	files := Files{
		Analysis:   filepath.Join(dir, AnalysisFile+format.Ext()),
		References: filepath.Join(dir, ReferencesFile+format.Ext()),
		Candidates: filepath.Join(dir, CandidatesFile+format.Ext()),
		Summary:    filepath.Join(dir, SummaryFile+format.Ext()),
	}

	for _, out := range []struct {
		path string
		v    any
	}{
		{files.Analysis, units},
		{files.References, res.References()},
		{files.Candidates, queue},
		{files.Summary, summary},
	} {
		if err := WriteFile(out.path, format, out.v); err != nil {
			return Files{}, analysis.Summary{}, err
		}
	}
	return files, summary, nil
}

// WriteFile encodes v into path.
func WriteFile(path string, format Format, v any) error {
	var buf bytes.Buffer
	if err := Encode(&buf, format, v); err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Encode writes v to w in format. JSON output is indented and keeps non-ASCII
// text unescaped.
func Encode(w io.Writer, format Format, v any) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(v)
	}
}

// WriteDataset writes annotated records as a JSON array.
func WriteDataset(path string, records []map[string]any) error {
	if records == nil {
		records = []map[string]any{}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return WriteFile(path, FormatJSON, records)
}
