// Package server exposes fingerprinting, catalog matching and the corpus
// analysis over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/sqlshape/internal/catalog"
	"github.com/leapstack-labs/sqlshape/internal/pipeline"
	"github.com/leapstack-labs/sqlshape/pkg/analysis"
	"github.com/leapstack-labs/sqlshape/pkg/fingerprint"
)

// DefaultAddr is the listen address when none is configured.
const DefaultAddr = ":8787"

// Config holds configuration for the server.
type Config struct {
	Addr string
	// Input is the corpus file to analyze (optional)
	Input string
	// Watch reloads the analysis when Input changes
	Watch    bool
	Pipeline pipeline.Options
	// Catalog backs /api/match (optional)
	Catalog *catalog.Catalog
	// Fingerprinter is shared by all handlers (optional)
	Fingerprinter *fingerprint.Fingerprinter
	Logger        *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	addr     string
	input    string
	watch    bool
	opts     pipeline.Options
	catalog  *catalog.Catalog
	fp       *fingerprint.Fingerprinter
	logger   *slog.Logger
	notifier *notifier

	// reloadMu serializes reloads so a slower, older run never replaces a
	// newer result.
	reloadMu sync.Mutex

	mu         sync.RWMutex
	result     *analysis.Result
	loadedAt   time.Time
	generation uint64
	loadErr    error
}

// New creates a server. The analysis is not loaded until Reload or Serve.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	fp := cfg.Fingerprinter
	if fp == nil {
		fp = fingerprint.NewFingerprinter(fingerprint.NewCache(), logger)
	}
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	opts := cfg.Pipeline
	opts.Fingerprinter = fp
	if opts.Logger == nil {
		opts.Logger = logger
	}
	return &Server{
		addr:     addr,
		input:    cfg.Input,
		watch:    cfg.Watch,
		opts:     opts,
		catalog:  cfg.Catalog,
		fp:       fp,
		logger:   logger,
		notifier: newNotifier(),
	}
}

// Reload re-runs the corpus analysis. The previous result is kept when the
// run fails.
func (s *Server) Reload(ctx context.Context) error {
	if s.input == "" {
		return nil
	}
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	out, err := pipeline.Run(ctx, s.input, s.opts)

	s.mu.Lock()
	s.loadErr = err
	if err == nil {
		s.result = out.Result
		s.loadedAt = time.Now().UTC()
		s.generation++
	}
	gen := s.generation
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.notifier.broadcast(gen)
	return nil
}

// SetResult installs an analysis result directly.
func (s *Server) SetResult(res *analysis.Result) {
	s.mu.Lock()
	s.result = res
	s.loadedAt = time.Now().UTC()
	s.loadErr = nil
	s.generation++
	gen := s.generation
	s.mu.Unlock()
	s.notifier.broadcast(gen)
}

func (s *Server) current() (*analysis.Result, time.Time, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result, s.loadedAt, s.generation, s.loadErr
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/fingerprint", s.handleFingerprint)
		r.Post("/match", s.handleMatch)
		r.Get("/summary", s.handleSummary)
		r.Get("/units", s.handleUnits)
		r.Get("/units/{unit}", s.handleUnit)
		r.Get("/events", s.handleEvents)
	})
	return r
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Reload(ctx); err != nil {
		return fmt.Errorf("failed to load analysis: %w", err)
	}

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.watch && s.input != "" {
		eg.Go(func() error {
			return s.watchInput(egctx)
		})
	}

	eg.Go(func() error {
		s.logger.Info("starting server", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// watchInput reloads the analysis when the corpus file is written. The parent
// directory is watched so editors that replace the file are noticed too.
func (s *Server) watchInput(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	target, err := filepath.Abs(s.input)
	if err != nil {
		return fmt.Errorf("failed to resolve input path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		s.logger.Error("failed to watch input", "path", target, "error", err)
		return nil
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if name, err := filepath.Abs(event.Name); err != nil || name != target {
				continue
			}

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, func() {
				s.logger.Debug("input changed, reloading", "file", target)
				if err := s.Reload(ctx); err != nil {
					s.logger.Error("reload failed", "error", err)
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher error", "error", err)
		}
	}
}
