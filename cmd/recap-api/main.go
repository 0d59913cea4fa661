package main

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

	"recap/internal/bootstrap"
	"recap/internal/config"
	"recap/internal/httpapi"
	"recap/internal/observability"
	"recap/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	metrics := observability.NewMetrics()

	if removed, err := pipeline.SweepStaleRuns(cfg.WorkDir, cfg.StaleRunAge); err != nil {
		logger.Warn("stale run sweep failed", "dir", cfg.WorkDir, "error", err)
	} else if removed > 0 {
		logger.Info("stale runs removed", "dir", cfg.WorkDir, "count", removed)
	}

	app, err := bootstrap.New(cfg, logger, metrics)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	deps := httpapi.Dependencies{
		Pipeline:       app.Pipeline,
		DecoderCheck:   app.DecoderCheck,
		Metrics:        metrics,
		MetricsHandler: metrics.Handler(),
	}
	if app.CheckUpstream {
		deps.Upstream = app.Upstream
	}
	handler := httpapi.NewServer(cfg, logger, deps)

	// Runs on long recordings take minutes; only the header read is bounded tightly.
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.ListenAddr, "work_dir", cfg.WorkDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server exited", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func newLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn", "warning":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel}))
}
