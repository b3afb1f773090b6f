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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/aldwick/wardview/internal/api"
	"github.com/aldwick/wardview/internal/engine"
	"github.com/aldwick/wardview/internal/fallback"
	"github.com/aldwick/wardview/internal/gateway"
	"github.com/aldwick/wardview/internal/sse"
	"github.com/aldwick/wardview/internal/view"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("upstream_base_url", cfg.Upstream.BaseURL),
		slog.Duration("poll_interval", cfg.Upstream.PollInterval()),
		slog.Bool("simulated", cfg.Fallback.Simulated),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Fallback data set: embedded by default, file override when configured.
	fb, err := fallback.New()
	if err != nil {
		return fmt.Errorf("init fallback data: %w", err)
	}
	if cfg.Fallback.Path != "" {
		if err := fb.LoadFile(cfg.Fallback.Path); err != nil {
			logger.Warn("fallback override load failed, using embedded data",
				slog.String("path", cfg.Fallback.Path),
				slog.String("error", err.Error()))
		}
	}

	// Upstream gateway. Tests inject a fake through WithGateway.
	gw := app.gateway
	if gw == nil {
		gw = gateway.NewHTTPClient(cfg.Upstream.BaseURL, cfg.Upstream.Timeout())
	}

	// SSE broker.
	broker := sse.NewBroker(time.Second)
	defer broker.Close()

	// Reconciliation engine. The change callback closes over eng, which is
	// assigned before the first fetch can fire.
	var eng *engine.Engine
	eng = engine.New(gw, fb,
		engine.WithInterval(cfg.Upstream.PollInterval()),
		engine.WithLogger(logger),
		engine.WithSimulated(cfg.Fallback.Simulated),
		engine.WithOnChange(func() {
			state, _ := eng.State()
			sim := eng.Simulated()
			source := view.SourceLive
			if view.UseFallback(state, sim) {
				source = view.SourceFallback
			}
			broker.PublishViewEvent(source, string(state), sim)
		}),
	)

	// Build API router.
	apiRouter := api.NewRouter(eng, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Prometheus metrics.
	r.Handle("/metrics", promhttp.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start the poll loop.
	g.Go(func() error {
		return eng.Run(gCtx)
	})

	// Watch the fallback override file for live reloads.
	if cfg.Fallback.Path != "" {
		g.Go(func() error {
			if err := fb.Watch(gCtx, cfg.Fallback.Path, logger); err != nil {
				logger.Warn("fallback watcher stopped", slog.String("error", err.Error()))
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

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
