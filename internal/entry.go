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

	"github.com/starford/gitnotes/internal/api"
	"github.com/starford/gitnotes/internal/bootstrap"
	"github.com/starford/gitnotes/internal/git"
	"github.com/starford/gitnotes/internal/mcpserver"
	"github.com/starford/gitnotes/internal/metrics"
	"github.com/starford/gitnotes/internal/notes"
	"github.com/starford/gitnotes/internal/noteservice"
	"github.com/starford/gitnotes/internal/sse"
	"github.com/starford/gitnotes/internal/storage"
	"github.com/starford/gitnotes/internal/syncqueue"
)

const defaultShutdownTimeout = 10 * time.Second

// components is everything a running process shares, wired once.
type components struct {
	logger  *slog.Logger
	store   *storage.FS
	queue   *syncqueue.Queue
	repo    *notes.Repository
	broker  *sse.Broker
	metrics *metrics.Collector
	service *noteservice.Service
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func newLogger(level slog.Level, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// build bootstraps the working tree and wires the core. The caller owns the
// result and must call shutdown.
func (a *application) build(ctx context.Context, logger *slog.Logger) (*components, error) {
	cfg := a.config

	client := a.git
	if client == nil {
		var execOpts []git.ExecOption
		if cfg.Git.AuthorName != "" {
			execOpts = append(execOpts, git.WithAuthor(cfg.Git.AuthorName, cfg.Git.AuthorEmail))
		}
		client = git.NewExec(cfg.Notes.Path, logger, execOpts...)
	}

	if err := bootstrap.Ensure(ctx, client, bootstrap.Options{
		Root:        cfg.Notes.Path,
		Remote:      cfg.Git.Remote,
		RemoteName:  cfg.Git.RemoteName,
		CheckRemote: cfg.Git.CheckRemote,
		Logger:      logger,
	}); err != nil {
		return nil, err
	}

	store, err := storage.NewFS(cfg.Notes.Path,
		storage.WithIgnore(cfg.Notes.Ignore...),
		storage.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	collector := metrics.NewCollector("gitnotes")
	broker := sse.NewBroker(15 * time.Second)

	queue := syncqueue.New(client,
		syncqueue.WithLogger(logger),
		syncqueue.WithObserver(collector),
		syncqueue.WithObserver(broker),
	)

	repo := notes.New(store, client, queue,
		notes.WithLogger(logger),
		notes.WithTTL(cfg.Notes.CacheTTL),
		notes.WithNewDir(cfg.Notes.NewDir),
		notes.WithLogTimeout(cfg.Git.LogTimeout),
		notes.WithWorkers(cfg.Git.LogWorkers),
		notes.WithCacheObserver(collector),
	)

	svc := noteservice.NewService(repo, queue, broker, noteservice.Options{
		RecentCount: cfg.Notes.RecentCount,
		HorizonDays: cfg.Todos.HorizonDays,
		SearchLimit: cfg.Search.Limit,
	})

	return &components{
		logger:  logger,
		store:   store,
		queue:   queue,
		repo:    repo,
		broker:  broker,
		metrics: collector,
		service: svc,
	}, nil
}

// shutdown drains the sync queue so accepted edits are committed, then
// stops the event broker.
func (c *components) shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := c.queue.Close(ctx); err != nil {
		st := c.queue.Status()
		c.logger.Error("Sync queue not drained",
			slog.String("error", err.Error()),
			slog.Int("pending", st.Pending))
	}
	c.broker.Close()
}

func (c *components) watch(ctx context.Context) error {
	if err := c.repo.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		// Without the watcher only the TTL refreshes out-of-process edits.
		c.logger.Warn("File watcher stopped", slog.String("error", err.Error()))
	}
	return nil
}

func (a *application) handler(c *components) http.Handler {
	cfg := a.config

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(c.metrics.Middleware)

	// Health and metrics endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		status, body := http.StatusOK, map[string]any{"status": "ok", "sync": c.queue.Status()}
		if _, err := os.Stat(c.store.Root()); err != nil {
			status, body["status"] = http.StatusServiceUnavailable, "notes root unavailable"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	})
	r.Handle("/metrics", c.metrics.Handler())

	r.Mount("/api", api.NewRouter(c.service, cfg.Auth.AuthEnabled(), cfg.Auth.Token, c.broker))
	return r
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := newLogger(cfg.App.LogLevel, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("notes_path", cfg.Notes.Path),
		slog.Bool("remote", cfg.Git.Remote != ""),
		slog.Duration("cache_ttl", cfg.Notes.CacheTTL),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := app.build(ctx, logger)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	timeout := cfg.App.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	defer c.shutdown(timeout)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           app.handler(c),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Notes.Watch {
		g.Go(func() error { return c.watch(gCtx) })
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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		// Stops the watcher.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown")

// RunMCP serves the note tools over stdio. Logs go to stderr because stdout
// carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(cfg.App.LogLevel, os.Stderr)
	slog.SetDefault(logger)

	c, err := app.build(ctx, logger)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer c.shutdown(defaultShutdownTimeout)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)
	if cfg.Notes.Watch {
		g.Go(func() error { return c.watch(gCtx) })
	}
	g.Go(func() error {
		defer stop()
		logger.Info("Serving MCP over stdio", slog.String("notes_path", cfg.Notes.Path))
		err := mcpserver.New(c.service, app.version).Serve(gCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// SyncOnce bootstraps the working tree, pulls once and exits.
func SyncOnce(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(cfg.App.LogLevel, os.Stdout)
	slog.SetDefault(logger)

	c, err := app.build(ctx, logger)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer c.shutdown(defaultShutdownTimeout)

	if err := c.queue.Pull(ctx); err != nil {
		return fmt.Errorf("pull: %w", err)
	}
	all, err := c.repo.ListAll(ctx)
	if err != nil {
		return err
	}
	logger.Info("Sync complete", slog.Int("notes", len(all)))
	return nil
}
