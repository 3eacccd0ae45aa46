package main

import (
	"context"
	"errors"
	"os"
	"time"

	"spendwise/internal/amqp"
	"spendwise/internal/cli"
	"spendwise/internal/config"
	"spendwise/internal/jobs"
	applog "spendwise/internal/log"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig((*config.Config).ValidateWorker)
	logger := cli.SetupLogger(cfg, applog.ComponentWorker)

	if cfg.JobsMode != "amqp" {
		logger.Error("Worker requires JOBS_MODE=amqp", "jobs_mode", cfg.JobsMode)
		os.Exit(1)
	}

	app, err := cli.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize worker", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, nil)

	logger.Info("Starting spendwise-worker",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue,
		"smtp", cfg.SMTPEnabled())

	err = app.AMQP.ConsumeJobs(ctx, func(ctx context.Context, m *amqp.JobMessage) error {
		return app.Dispatcher.Dispatch(ctx, jobs.FromMessage(m))
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
