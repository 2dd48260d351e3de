package commands

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/sqlshape/internal/cli/output"
	"github.com/leapstack-labs/sqlshape/internal/pipeline"
	"github.com/leapstack-labs/sqlshape/pkg/report"
	"github.com/spf13/cobra"
)

// AnnotateOptions holds options for the annotate command.
type AnnotateOptions struct {
	Out string
}

// AnnotateOutput is the JSON output of the annotate command.
type AnnotateOutput struct {
	Input   string `json:"input"`
	Output  string `json:"output"`
	Records int    `json:"records"`
}

// NewAnnotateCommand creates the annotate command.
func NewAnnotateCommand() *cobra.Command {
	opts := &AnnotateOptions{}

	cmd := &cobra.Command{
		Use:   "annotate <corpus.json>",
		Short: "Write a copy of the corpus with redundant statements marked",
		Long: `Analyze a corpus and write a structural copy of it in which every SQL
leaf that belongs to a redundant caller is marked.

The copy keeps the original record order and field names. Without --out it
is written to the output directory as annotated_<input>.`,
		Example: `  sqlshape annotate corpus.json -o corpus.annotated.json`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnnotate(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "Path of the annotated dataset")

	return cmd
}

func runAnnotate(cmd *cobra.Command, input string, opts *AnnotateOptions) error {
	cc := NewCommandContext(cmd)
	ctx := cmd.Context()

	out, err := pipeline.Run(ctx, input, cc.PipelineOptions())
	if err != nil {
		return err
	}

	records, err := out.Annotate(ctx, cc.Cfg.Input.FieldNames(), cc.Cfg.Workers)
	if err != nil {
		return err
	}

	path := opts.Out
	if path == "" {
		path = defaultAnnotatedPath(cc.Cfg.OutputDir, input)
	}
	if err := report.WriteDataset(path, records); err != nil {
		return fmt.Errorf("failed to write annotated dataset: %w", err)
	}
	cc.Logger.Info("wrote annotated dataset", "path", path, "records", len(records))

	result := AnnotateOutput{Input: input, Output: path, Records: len(records)}
	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(result)
	}
	r.Success(fmt.Sprintf("Annotated %d records", result.Records))
	keyValue(r, "Output", result.Output)
	return nil
}

func defaultAnnotatedPath(outputDir, input string) string {
	base := filepath.Base(input)
	if !strings.HasSuffix(strings.ToLower(base), ".json") {
		base += ".json"
	}
	return filepath.Join(outputDir, "annotated_"+base)
}
