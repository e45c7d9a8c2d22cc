// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/versebook/internal/api"
	"github.com/starford/versebook/internal/apperr"
	"github.com/starford/versebook/internal/assets"
	"github.com/starford/versebook/internal/index"
	"github.com/starford/versebook/internal/mcpserver"
	"github.com/starford/versebook/internal/models"
	"github.com/starford/versebook/internal/parser"
	"github.com/starford/versebook/internal/sse"
	"github.com/starford/versebook/internal/storage"
	"github.com/starford/versebook/internal/syncengine"
	"github.com/starford/versebook/internal/verseservice"
)

// core is the part of the application shared by the HTTP and MCP modes.
type core struct {
	store  storage.Provider
	assets storage.AssetStore
	db     *index.DB
	svc    *verseservice.Service
}

func (c *core) close() {
	if err := c.db.Close(); err != nil {
		slog.Warn("index: close failed", slog.String("error", err.Error()))
	}
}

func newLogger(app *application) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

func newCore(cfg *Config, logger *slog.Logger, broker *sse.Broker) (*core, error) {
	store, assetStore, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	engine := syncengine.New(store, syncengine.WithLogger(logger))
	svc := verseservice.New(engine, db, broker,
		assets.New(assetStore),
		parser.NewLinker(cfg.Links.Base, cfg.Links.Version),
		logger,
	)
	return &core{store: store, assets: assetStore, db: db, svc: svc}, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config
	logger := newLogger(app)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("remote_backend", cfg.Remote.Backend),
		slog.String("assets_backend", cfg.Assets.Backend),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(cfg.App.EventThrottle)
	defer broker.Close()

	c, err := newCore(cfg, logger, broker)
	if err != nil {
		return err
	}
	defer c.close()
	logger.Info("Remote store ready", slog.String("store", c.store.Describe()))

	var assetDir string
	if local, ok := c.assets.(storage.LocalAssets); ok {
		assetDir = local.AssetDir()
	}
	apiRouter := api.NewRouter(c.svc, api.RouterConfig{
		AuthEnabled: cfg.Auth.AuthEnabled(),
		Token:       cfg.Auth.Token,
		Events:      broker,
		AssetDir:    assetDir,
	})

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
	r.Get("/health/ready", api.NewHandler(c.svc).Ready)

	r.Mount("/api", apiRouter)

	var handler http.Handler = r
	if len(cfg.CORS.AllowedOrigins) > 0 {
		handler = api.CORSMiddleware(cfg.CORS.AllowedOrigins)(r)
	}

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Initial load; the API answers with status "loading" until it finishes.
	g.Go(func() error {
		res, err := c.svc.Load(gCtx)
		if err != nil {
			logger.Warn("initial load failed", slog.String("error", err.Error()))
			return nil
		}
		logger.Info("Document loaded",
			slog.String("outcome", string(res.Outcome)),
			slog.String("revision", res.Revision))
		return nil
	})

	// Report out-of-band edits to the fs store.
	if fs, ok := c.store.(*storage.FS); ok && cfg.Remote.FS.Watch {
		g.Go(func() error {
			if err := fs.Watch(gCtx, logger, c.svc.RemoteChanged); err != nil {
				logger.Warn("watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
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
		if info := c.svc.Status(); info.Dirty {
			logger.Warn("Unsaved changes discarded on shutdown",
				slog.Int("mutations", info.Mutations))
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

// errShutdown cancels the group so the watcher and initial load stop with
// the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools over stdio.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	logger := newLogger(app)

	c, err := newCore(app.config, logger, nil)
	if err != nil {
		return err
	}
	defer c.close()

	if _, err := c.svc.Load(ctx); err != nil {
		logger.Warn("initial load failed", slog.String("error", err.Error()))
	}

	logger.Info("MCP server starting", slog.String("store", c.store.Describe()))
	return mcpserver.New(c.svc, app.version).ServeStdio()
}

// Check pings the configured stores and reads the current document without
// changing anything.
func Check(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	logger := newLogger(app)

	store, assetStore, err := openStore(app.config)
	if err != nil {
		return err
	}
	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", store.Describe(), err)
	}
	if pinger, ok := assetStore.(interface{ Ping(context.Context) error }); ok && assetStore != storage.AssetStore(store) {
		if err := pinger.Ping(ctx); err != nil {
			return fmt.Errorf("ping asset store: %w", err)
		}
	}

	snap, err := store.Fetch(ctx)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		logger.Info("Remote store reachable; no document yet", slog.String("store", store.Describe()))
		return nil
	case err != nil:
		return fmt.Errorf("fetch document: %w", err)
	}
	doc, err := models.Decode(snap.Content)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	sum := models.Summarize(doc)
	logger.Info("Remote store reachable",
		slog.String("store", store.Describe()),
		slog.String("revision", snap.Revision),
		slog.Int("categories", sum.TotalCategories),
		slog.Int("verses", sum.Verses),
		slog.Time("last_modified", sum.LastModified))
	return nil
}
