// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
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

	"github.com/starford/casefile/internal/api"
	"github.com/starford/casefile/internal/correlation"
	"github.com/starford/casefile/internal/evidence"
	"github.com/starford/casefile/internal/index"
	"github.com/starford/casefile/internal/logging"
	"github.com/starford/casefile/internal/mcpserver"
	"github.com/starford/casefile/internal/parser"
	"github.com/starford/casefile/internal/session"
	"github.com/starford/casefile/internal/sse"
	"github.com/starford/casefile/internal/storage"
)

var errConfigRequired = errors.New("config is required")

// watcherActor attributes custody entries written by the payload watcher.
var watcherActor = session.Actor{User: "payload-watcher", Location: "casefile"}

// runtime is the investigation session with its storage and audit mirror.
type runtime struct {
	sess     *session.Session
	db       *index.DB
	payloads *storage.FS
	actor    session.Actor
	cleanup  func()
}

func (rt *runtime) Close() {
	rt.cleanup()
}

// openRuntime loads the case, opens payload storage and the audit mirror,
// and wires them into a session.
func openRuntime(ctx context.Context, cfg *Config, logger *slog.Logger) (*runtime, error) {
	c, err := parser.LoadCase(cfg.Case.Path)
	if err != nil {
		return nil, fmt.Errorf("load case: %w", err)
	}

	// Ensure payload directory exists.
	if err := os.MkdirAll(cfg.Payloads.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create payloads dir: %w", err)
	}
	payloads, err := storage.NewFS(cfg.Payloads.Path)
	if err != nil {
		return nil, fmt.Errorf("init payload storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init audit index: %w", err)
	}

	sess, err := session.Open(ctx, session.Config{
		Case:              c,
		Payloads:          payloads,
		Sink:              db,
		VerifyTimeout:     cfg.Verify.Timeout,
		VerifyConcurrency: cfg.Verify.Concurrency,
		Correlation: correlation.Engine{
			Threshold:       cfg.Correlation.Threshold,
			SameSourceBonus: cfg.Correlation.SameSourceBonus,
			CriticalBonus:   cfg.Correlation.CriticalBonus,
			ProcessStrength: cfg.Correlation.ProcessStrength,
		},
		Logger: logging.New("session"),
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open session: %w", err)
	}

	// Run initial sync.
	if err := index.Sync(db, sess.ListEvidence(evidence.Filter{}), payloads, logging.New("index")); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}
	stopMirror := index.Mirror(db, sess.Bus(), sess.GetEvidence, logging.New("index"))

	meta := sess.Case()
	logger.Info("Case loaded",
		slog.String("case_number", meta.CaseNumber),
		slog.String("title", meta.Title),
		slog.Int("evidence", len(sess.EvidenceIDs())),
		slog.Int("objectives", len(sess.Objectives())))

	return &runtime{
		sess:     sess,
		db:       db,
		payloads: payloads,
		actor:    session.Actor{User: cfg.Analyst.User, Location: cfg.Analyst.Location},
		cleanup: func() {
			stopMirror()
			sess.Close()
			db.Close()
		},
	}, nil
}

// verifyOnStartup checks every evidence payload and logs a summary.
func (rt *runtime) verifyOnStartup(ctx context.Context, logger *slog.Logger) {
	var failed int
	for _, res := range rt.sess.VerifyAll(ctx, rt.actor, nil) {
		if !res.Valid {
			failed++
			logger.Warn("integrity check failed",
				slog.String("evidence_id", res.EvidenceID),
				slog.String("reason", res.Reason))
		}
	}
	logger.Info("Startup verification finished",
		slog.Int("evidence", len(rt.sess.EvidenceIDs())),
		slog.Int("failed", failed))
}

// reverifyPayload re-verifies every evidence item stored at path.
func (rt *runtime) reverifyPayload(ctx context.Context, kind, path string, logger *slog.Logger) {
	for _, rec := range rt.sess.ListEvidence(evidence.Filter{}) {
		if rec.Payload() != path {
			continue
		}
		res := rt.sess.Verify(ctx, watcherActor, rec.ID)
		logger.Info("payload changed, evidence re-verified",
			slog.String("kind", kind),
			slog.String("path", path),
			slog.String("evidence_id", rec.ID),
			slog.Bool("valid", res.Valid))
	}
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured logger.
	logger := logging.Init(cfg.App.LogLevel, cfg.App.LogFormat, os.Stdout)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("case_path", cfg.Case.Path),
		slog.String("payloads_path", cfg.Payloads.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	rt, err := openRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()
	stopBridge := broker.Bridge(rt.sess.Bus())
	defer stopBridge()

	if cfg.Verify.OnStartup {
		rt.verifyOnStartup(ctx, logger)
	}

	// Build API router.
	h := api.NewHandler(rt.sess, rt.db, rt.payloads, rt.actor)
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
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
		if err := rt.sess.VerifyCustodyChain(); err != nil {
			logger.Error("custody chain broken", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"custody chain broken"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start payload watcher: changed payloads are re-verified.
	if cfg.Payloads.Watch {
		watchLogger := logging.New("watcher")
		g.Go(func() error {
			err := index.Watch(gCtx, rt.db, rt.payloads, cfg.Payloads.Path, cfg.Payloads.Debounce, watchLogger,
				func(kind, path string) {
					rt.reverifyPayload(gCtx, kind, path, watchLogger)
				})
			if err != nil {
				watchLogger.Error("payload watcher stopped", slog.String("error", err.Error()))
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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.HTTP.ShutdownTimeout)
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

// errShutdown cancels the errgroup context so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the investigation tools over MCP stdio. Logs go to stderr so
// stdout stays reserved for the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := logging.Init(cfg.App.LogLevel, cfg.App.LogFormat, os.Stderr)

	rt, err := openRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if cfg.Verify.OnStartup {
		rt.verifyOnStartup(ctx, logger)
	}

	srv := mcpserver.New(rt.sess, rt.db, rt.actor, app.version)
	logger.Info("MCP server starting on stdio", slog.String("version", app.version))
	if err := srv.ServeStdio(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
