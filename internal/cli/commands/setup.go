package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/leapstack-labs/sqlshape/internal/catalog"
	"github.com/leapstack-labs/sqlshape/internal/cli/config"
	"github.com/leapstack-labs/sqlshape/internal/cli/output"
	"github.com/leapstack-labs/sqlshape/internal/pipeline"
	"github.com/leapstack-labs/sqlshape/pkg/fingerprint"
	"github.com/spf13/cobra"
)

// ErrNoCatalog is returned when a command needs a catalog that was never built.
var ErrNoCatalog = errors.New("catalog does not exist")

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg           *config.Config
	Logger        *slog.Logger
	Renderer      *output.Renderer
	Fingerprinter *fingerprint.Fingerprinter
}

// NewCommandContext collects the config, logger and renderer stored on the
// command context by the root command.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := config.FromContext(ctx)
	logger := config.GetLogger(ctx)
	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:           cfg,
		Logger:        logger,
		Renderer:      r,
		Fingerprinter: fingerprint.NewFingerprinter(fingerprint.NewCache(), logger),
	}
}

// PipelineOptions returns the corpus pipeline settings from the config.
func (c *CommandContext) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		Fields:        c.Cfg.Input.FieldNames(),
		Workers:       c.Cfg.Workers,
		LimitPerType:  c.Cfg.LimitPerType,
		Fingerprinter: c.Fingerprinter,
		Logger:        c.Logger,
	}
}

// OpenCatalog opens the configured catalog. With mustExist a missing
// database file is reported as ErrNoCatalog instead of being created.
// Returns the catalog and a cleanup function that must be called.
func (c *CommandContext) OpenCatalog(ctx context.Context, mustExist bool) (*catalog.Catalog, func(), error) {
	path := c.Cfg.CatalogPath
	if mustExist && path != catalog.MemoryPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s (run 'sqlshape catalog build' first)", ErrNoCatalog, path)
		}
	}

	cat := catalog.New(catalog.Config{
		Fingerprinter: c.Fingerprinter,
		Logger:        c.Logger,
	})
	if err := cat.Open(ctx, path); err != nil {
		return nil, nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	return cat, func() { _ = cat.Close() }, nil
}

// keyValue writes one labelled value in the current output mode.
func keyValue(r *output.Renderer, key, value string) {
	if r.EffectiveMode() == output.ModeMarkdown {
		r.Println(output.FormatKeyValue(key, value))
		return
	}
	r.Printf("  %s %s\n", r.Styles().Key.Render(key+":"), value)
}
