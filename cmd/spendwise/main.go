package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"spendwise/internal/cli"
	"spendwise/internal/config"
	apphttp "spendwise/internal/http"
	applog "spendwise/internal/log"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig((*config.Config).Validate)
	logger := cli.SetupLogger(cfg, applog.ComponentApp)

	app, err := cli.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	srv, err := apphttp.NewServer(":"+cfg.Port, app.ServerDeps(), app.ServerOptions())
	if err != nil {
		logger.Error("Failed to configure HTTP server", "error", err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		m := srv.Metrics()
		logger.Info("Request totals",
			"requests", m.Requests.TotalRequests,
			"rate_limited", m.RateLimit.TotalHits,
			"suspicious", m.Security.SuspiciousRequests)
	})

	logger.Info("Starting spendwise server",
		"port", cfg.Port,
		"cache", cfg.CacheBackend,
		"jobs", cfg.JobsMode,
		"receipts", cfg.ReceiptsBackend,
		"sheets", cfg.SheetsEnabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
