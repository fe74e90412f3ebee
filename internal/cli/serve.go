package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/contraship/internal/config"
	"github.com/pendergraft/contraship/internal/observability/metrics"
	httpserver "github.com/pendergraft/contraship/internal/server"
)

func createServeCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve deployment records over HTTP",
		Long: `Start the read-only HTTP API over the artifact store.

Configuration comes from the environment (HOST, PORT, STORAGE_TYPE,
METRICS_ENABLED, ...). /metrics is served when metrics are enabled.

EXAMPLES:
  contraship serve
  PORT=9090 METRICS_ENABLED=true contraship serve
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(version)
		},
	}
}

func runServe(version string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg)
	logger.Info("starting contraship read API", "version", version)
	metrics.Init(cfg.Metrics.Enabled, cfg.Metrics.ServiceName)

	registry, err := loadRegistry(cfg)
	if err != nil {
		return fmt.Errorf("loading networks: %w", err)
	}

	store, err := openStore(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := httpserver.New(cfg, store, registry, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
