package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/couchcryptid/hilltop-site-loader/internal/adapter/http"
	"github.com/couchcryptid/hilltop-site-loader/internal/observability"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveFlags struct {
	interval time.Duration
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load the dataset and serve health, metrics, and the dataset API",
	Long: "serve runs a load at startup and then every --interval (0 loads once),\n" +
		"while exposing /healthz, /readyz, /metrics, and /api/v1/sites.",
	RunE: runServe,
}

func init() {
	serveCmd.Flags().DurationVar(&serveFlags.interval, "interval", 0, "Reload period; 0 loads once")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("close resources", "error", err)
		}
	}()

	srv := httpadapter.NewServer(cfg.HTTPAddr, a.loader, a.loader, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		loadLoop(gctx, a, serveFlags.interval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

// loadLoop runs a load immediately and then on every tick until ctx ends.
// Failed runs are logged; the previous dataset keeps being served.
func loadLoop(ctx context.Context, a *app, interval time.Duration) {
	runLoad(ctx, a)
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runLoad(ctx, a)
		}
	}
}

func runLoad(ctx context.Context, a *app) {
	if _, err := a.loader.Run(ctx); err != nil && ctx.Err() == nil {
		a.logger.Error("load failed", "error", err)
	}
}
