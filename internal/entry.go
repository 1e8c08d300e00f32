// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/dtokit/internal/api"
	"github.com/starford/dtokit/internal/mcpserver"
	"github.com/starford/dtokit/internal/recordservice"
	"github.com/starford/dtokit/internal/schemas"
	"github.com/starford/dtokit/internal/sse"
	"github.com/starford/dtokit/internal/storage"
	"github.com/starford/dtokit/internal/store"
	"github.com/starford/dtokit/pkg/dto"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// newLogger builds the structured JSON logger. fallback is used when no
// output was configured.
func (a *application) newLogger(fallback io.Writer) *slog.Logger {
	out := a.logOutput
	if out == nil {
		out = fallback
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
}

// openSchemas ensures the schema directory exists and loads it.
func openSchemas(cfg *Config, logger *slog.Logger) (*schemas.Registry, *storage.FS, error) {
	if err := os.MkdirAll(cfg.Schemas.Dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create schema dir: %w", err)
	}
	fs, err := storage.NewFS(cfg.Schemas.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}
	reg := schemas.NewRegistry()
	if err := schemas.Load(reg, fs, logger); err != nil {
		return nil, nil, fmt.Errorf("load schemas: %w", err)
	}
	return reg, fs, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := app.newLogger(os.Stdout)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("schemas_dir", cfg.Schemas.Dir),
		slog.Bool("schemas_watch", cfg.Schemas.Watch),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	reg, fs, err := openSchemas(cfg, logger)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	broker := sse.NewBroker(cfg.Events.Throttle)
	defer broker.Close()

	svc := recordservice.NewService(reg, db, broker.Emit)
	docs := api.NewDocumentHandler(fs, reg, logger)
	apiRouter := api.NewRouter(svc, docs, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  "ok",
			"schemas": len(reg.Names()),
		})
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Schemas.Watch {
		g.Go(func() error {
			err := schemas.Watch(gCtx, reg, fs, fs.Root(), logger, broker.PublishSchemaEvent)
			if err != nil {
				logger.Error("schema watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group context so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools over stdin/stdout. Logs go to stderr unless
// configured otherwise.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := app.newLogger(os.Stderr)
	slog.SetDefault(logger)

	reg, fs, err := openSchemas(cfg, logger)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	svc := recordservice.NewService(reg, db, nil)
	logger.Info("MCP server starting", slog.Int("schemas", len(reg.Names())))
	return mcpserver.New(svc, reg, fs, logger).ServeStdio()
}

// Populate reads one JSON object from in, populates the named schema from it
// and writes the record to out as indented JSON.
func Populate(_ context.Context, schemaName string, in io.Reader, out io.Writer, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.newLogger(os.Stderr)

	reg, _, err := openSchemas(app.config, logger)
	if err != nil {
		return err
	}
	entry, ok := reg.Get(schemaName)
	if !ok {
		return fmt.Errorf("unknown schema %q (known: %v)", schemaName, reg.Names())
	}

	dec := json.NewDecoder(in)
	dec.UseNumber()
	var source map[string]any
	if err := dec.Decode(&source); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode input: %w", err)
	}

	rec, err := dto.FromArray(entry.Schema, source)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}
