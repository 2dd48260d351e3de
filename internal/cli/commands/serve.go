package commands

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/leapstack-labs/sqlshape/internal/catalog"
	"github.com/leapstack-labs/sqlshape/internal/server"
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [corpus.json]",
		Short: "Serve fingerprinting, catalog matching and analysis over HTTP",
		Long: `Start the HTTP API.

Without a corpus only fingerprinting and catalog matching are available. With
a corpus its analysis is served under /api/units and /api/summary, and --watch
re-runs the analysis whenever the file changes. The catalog is used when its
database exists.`,
		Example: `  # Fingerprint and match only
  sqlshape serve

  # Serve a corpus analysis, reloading on change
  sqlshape serve corpus.json --watch --addr 127.0.0.1:8787`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := ""
			if len(args) == 1 {
				input = args[0]
			}
			return runServe(cmd, input)
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default "+server.DefaultAddr+")")
	cmd.Flags().Bool("watch", false, "Reload the analysis when the corpus changes")

	return cmd
}

func runServe(cmd *cobra.Command, input string) error {
	cc := NewCommandContext(cmd)
	cfg := cc.Cfg

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.Watch && input == "" {
		return errors.New("--watch needs a corpus file")
	}

	var cat *catalog.Catalog
	c, cleanup, err := cc.OpenCatalog(ctx, true)
	switch {
	case errors.Is(err, ErrNoCatalog):
		cc.Logger.Info("no catalog found, matching disabled", "path", cfg.CatalogPath)
	case err != nil:
		return err
	default:
		defer cleanup()
		cat = c
	}

	srv := server.New(server.Config{
		Addr:          cfg.Server.Addr,
		Input:         input,
		Watch:         cfg.Server.Watch,
		Pipeline:      cc.PipelineOptions(),
		Catalog:       cat,
		Fingerprinter: cc.Fingerprinter,
		Logger:        cc.Logger,
	})

	r := cc.Renderer
	r.Printf("Starting API server on %s\n", cfg.Server.Addr)
	if input != "" {
		r.Muted(fmt.Sprintf("serving analysis of %s", input))
	}
	r.Muted("Press Ctrl+C to stop")

	return srv.Serve(ctx)
}
