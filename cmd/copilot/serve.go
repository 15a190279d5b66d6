package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/docuease/copilot/internal/config"
	"github.com/docuease/copilot/internal/gateway/httpapi"
	"github.com/docuease/copilot/internal/ratelimit"
	"github.com/docuease/copilot/internal/retention"
	goutils "github.com/jkaninda/go-utils"
)

var (
	serveConfigPath string
	servePort       string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway",
	RunE:  runServe,
}

func init() {
	// Register flags on both root and serve so that
	// `copilot --config path` and `copilot serve --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&serveConfigPath, "config", config.DefaultConfigPath(), "path to config file")
		cmd.Flags().StringVar(&servePort, "port", "", "override HTTP listen address (e.g. :8080)")
	}
}

// runServe starts the co-pilot in HTTP gateway mode.
func runServe(_ *cobra.Command, _ []string) error {
	logger := newLogger()

	cfg, err := config.Load(goutils.Env("COPILOT_CONFIG", serveConfigPath))
	if err != nil {
		return err
	}

	// Apply CLI overrides.
	if servePort != "" {
		cfg.Server.ListenAddr = servePort
	}

	logger.Info("starting in serve mode", slog.String("config", serveConfigPath))

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Background retention sweeper for pending operations.
	if cfg.Retention != nil && cfg.Retention.Enabled {
		sweeper := retention.NewSweeper(
			sc.Store.Pending(),
			cfg.Retention.CronSchedule(),
			cfg.Retention.ResolvedRetention(),
			logger,
		)
		stopSweeper, err := sweeper.Start(ctx)
		if err != nil {
			return err
		}
		defer stopSweeper()
		logger.Debug("retention sweeper started",
			slog.String("schedule", cfg.Retention.CronSchedule()),
			slog.String("keep_resolved", cfg.Retention.ResolvedRetention().String()),
		)
	}

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.Server.RateLimit.RequestsPerMinute,
		BurstSize:         cfg.Server.RateLimit.BurstSize,
	})

	gwCfg := httpapi.Config{
		ListenAddr:     cfg.Server.Addr(),
		EnableDocs:     cfg.Server.EnableDocs,
		APIKeys:        cfg.Security.APIKeyUserMapping,
		MaxRequestSize: cfg.Server.MaxRequestSizeBytes,
	}
	if sc.Obs != nil {
		if sc.Obs.Metrics != nil {
			gwCfg.MetricsRegistry = sc.Obs.Metrics.Registry
			gwCfg.Metrics = sc.Obs.Metrics
			gwCfg.MetricsPath = cfg.Observability.Metrics.Path
		}
		gwCfg.HealthChecker = sc.Obs.Health
		if sc.Obs.Tracer != nil {
			gwCfg.Tracer = sc.Obs.Tracer.Tracer()
		}
	}

	gw := httpapi.NewGateway(gwCfg, sc.Orchestrator, limiter, logger).
		WithAudit(sc.Store.Audit()).
		WithChat(sc.Chat).
		WithWorkflows(sc.Workflows).
		WithPendingStore(sc.Store.Pending())

	errs := make(chan error, 1)
	go func() {
		errs <- gw.Start(ctx)
	}()

	// Wait for signal or gateway error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("gateway exited with error", slog.String("error", err.Error()))
		}
	}

	// Graceful shutdown with deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return gw.Stop(shutdownCtx)
}
