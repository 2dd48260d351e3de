package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/leapstack-labs/sqlshape/internal/cli/output"
	"github.com/leapstack-labs/sqlshape/internal/pipeline"
	"github.com/leapstack-labs/sqlshape/pkg/analysis"
	"github.com/leapstack-labs/sqlshape/pkg/corpus"
	"github.com/leapstack-labs/sqlshape/pkg/report"
	"github.com/spf13/cobra"
)

// AnalyzeOutput is the JSON output of the analyze command.
type AnalyzeOutput struct {
	Input    string            `json:"input"`
	Files    report.Files      `json:"files"`
	Summary  analysis.Summary  `json:"summary"`
	Stats    corpus.IndexStats `json:"stats"`
	Duration string            `json:"duration"`
}

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <corpus.json>",
		Short: "Analyze a corpus for redundant and divergent callers",
		Long: `Analyze a corpus of ORM-generated SQL.

Every unit's callers are compared against the unit's reference caller. The
per-unit analysis, the reference sets, the validation queue and a summary
are written to the output directory.`,
		Example: `  # Analyze with defaults (reports in ./output)
  sqlshape analyze corpus.json

  # YAML reports, at most 50 queue items per candidate kind
  sqlshape analyze corpus.json --format yaml --limit-per-type 50`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args[0])
		},
	}

	cmd.Flags().String("output-dir", "", "Directory for report files")
	cmd.Flags().String("format", "", "Report format (json|yaml)")
	cmd.Flags().Int("limit-per-type", 0, "Limit queue items per candidate kind (0 for no limit)")

	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runAnalyze(cmd *cobra.Command, input string) error {
	cc := NewCommandContext(cmd)
	cfg := cc.Cfg

	format, err := report.ParseFormat(cfg.ReportFormat)
	if err != nil {
		return err
	}

	out, err := pipeline.Run(cmd.Context(), input, cc.PipelineOptions())
	if err != nil {
		return err
	}

	files, summary, err := report.Write(cfg.OutputDir, format, out.Result, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write reports: %w", err)
	}

	result := AnalyzeOutput{
		Input:    input,
		Files:    files,
		Summary:  summary,
		Stats:    out.Index.Stats(),
		Duration: out.Duration.Round(time.Millisecond).String(),
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(result)
	}
	renderAnalyze(r, result)
	return nil
}

func renderAnalyze(r *output.Renderer, res AnalyzeOutput) {
	s := res.Summary
	r.Header(1, "Analysis")
	r.Println()

	r.Table([]string{"metric", "value"}, [][]string{
		{"records", strconv.Itoa(res.Stats.Records)},
		{"skipped records", strconv.Itoa(res.Stats.Skipped)},
		{"dropped leaves", strconv.Itoa(res.Stats.Dropped)},
		{"units analyzed", strconv.Itoa(s.UnitsAnalyzed)},
		{"avg callers per unit", strconv.FormatFloat(s.AvgCallersPerUnit, 'f', 2, 64)},
		{"avg reference fingerprints", strconv.FormatFloat(s.AvgReferenceFingerprints, 'f', 2, 64)},
	})
	r.Println()

	r.Header(2, "Candidates")
	r.Table([]string{"kind", "total", "queued", "units"}, [][]string{
		{string(analysis.KindRedundant), strconv.Itoa(s.Candidates.Redundant), strconv.Itoa(s.Queue.Redundant), strconv.Itoa(s.Distribution.WithRedundant)},
		{string(analysis.KindMissing), strconv.Itoa(s.Candidates.Missing), strconv.Itoa(s.Queue.Missing), strconv.Itoa(s.Distribution.WithMissing)},
		{string(analysis.KindNewFingerprint), strconv.Itoa(s.Candidates.NewFingerprint), strconv.Itoa(s.Queue.NewFingerprint), strconv.Itoa(s.Distribution.WithNewFingerprint)},
	})
	r.Println()

	r.Header(2, "Reports")
	for _, path := range []string{res.Files.Analysis, res.Files.References, res.Files.Candidates, res.Files.Summary} {
		r.StatusLine(path, "success", "")
	}
	r.Println()
	r.Muted(fmt.Sprintf("completed in %s", res.Duration))
}
