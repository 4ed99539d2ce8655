// Command server runs the portal automation service: the credential vault,
// the task dispatch loop and the admin API.
//
// Configuration comes from config.yaml and environment variables such as
// SERVER_PORT and VAULT_PASSPHRASE. SIGINT or SIGTERM drains the HTTP
// server, stops dispatch and waits for in-flight portal attempts.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"regportal.io/automation/internal/app"
	"regportal.io/automation/internal/config"
	"regportal.io/automation/internal/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "portal-automation: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	application, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer application.Shutdown()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start background services: %w", err)
	}

	logger.Info("Portal automation started",
		zap.Int("port", cfg.Server.Port),
		zap.Strings("portals", cfg.EnabledPortals()),
		zap.Bool("vault_snapshot", cfg.Vault.SnapshotPath != ""),
	)

	return serve(ctx, cfg.Server, application.Router)
}

// serve blocks until ctx ends or the listener fails, then drains open
// requests within cfg.ShutdownTimeout.
func serve(ctx context.Context, cfg config.ServerConfig, handler http.Handler) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	listenErr := make(chan error, 1)
	go func() { //nolint:naked-goroutine // HTTP listener
		listenErr <- srv.ListenAndServe()
	}()
	logger.Info("HTTP server listening", zap.String("addr", srv.Addr))

	select {
	case err := <-listenErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("drain http server: %w", err)
	}
	logger.Info("HTTP server stopped")
	return nil
}
