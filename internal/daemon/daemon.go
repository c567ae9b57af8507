// Package daemon wires up and runs the coordinator server process.
package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/natefinch/lumberjack.v2"

	"zgrid/internal/config"
	"zgrid/internal/coordinator"
	"zgrid/internal/events"
	"zgrid/internal/server"
)

// Run starts the coordinator daemon: single-instance lock, event hub, HTTP
// server. Blocks until SIGINT/SIGTERM is received.
func Run(cfg *config.Config) error {
	// Single-instance lock.
	if err := os.MkdirAll(filepath.Dir(cfg.Coordinator.LockFile), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	lock := flock.New(cfg.Coordinator.LockFile)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire coordinator lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another coordinator is already running (lock %s held)", cfg.Coordinator.LockFile)
	}
	defer lock.Unlock()

	// Rotating log file alongside stderr when configured.
	if cfg.LogFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		defer rotating.Close()
		handler := slog.NewTextHandler(
			io.MultiWriter(os.Stderr, rotating),
			&slog.HandlerOptions{Level: cfg.SlogLevel()},
		)
		slog.SetDefault(slog.New(handler))
	}

	// Signal context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := events.NewHub()
	coord := coordinator.New(coordinator.WithEventSink(hub))
	srv := server.New(coord, hub)

	httpSrv := &http.Server{
		Addr:        cfg.Coordinator.Address(),
		Handler:     srv,
		ReadTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("coordinator listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("coordinator server: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutdown signal received, stopping...")

	// Force-exit on second signal.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		slog.Error("second signal received, forcing exit")
		os.Exit(1)
	}()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown timed out, closing", "err", err)
		httpSrv.Close()
	}
	slog.Info("coordinator stopped")
	return nil
}
