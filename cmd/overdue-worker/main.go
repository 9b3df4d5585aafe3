package main

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"faturas/internal/amqp"
	"faturas/internal/backend"
	"faturas/internal/cli"
	applog "faturas/internal/log"
	"faturas/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, logger := cli.Bootstrap(applog.ComponentOverdue)
	logger.Info("Starting overdue-worker")

	if cfg.AMQPURL == "" {
		cli.Fatal(logger, "AMQP is required to publish reminders", fmt.Errorf("AMQP_URL is empty"))
	}
	loc := cli.Location(cfg, logger)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}
	store, err := backend.Open(ctx, backendCfg, logger.Slog())
	if err != nil {
		cli.Fatal(logger, "Failed to open backend", err, "backend", cfg.DataBackend)
	}
	defer store.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize AMQP client", err)
	}
	defer amqpClient.Close()

	processor := services.NewOverdueProcessor(store.Repository, amqpClient, loc, cfg.OverdueConcurrency)

	run := func() {
		runCtx, runCancel := context.WithTimeout(ctx, 10*time.Minute)
		defer runCancel()
		start := time.Now()
		sent, err := processor.ProcessOverdue(runCtx, time.Now())
		if err != nil {
			logger.Error("Overdue processing failed",
				applog.NewFields().WithError(err, applog.ErrorTypeInternal).ToSlice()...)
			return
		}
		logger.Info("Overdue processing complete",
			"reminders_sent", sent,
			"duration_ms", time.Since(start).Milliseconds())
	}

	scheduler := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := scheduler.AddFunc(cfg.OverdueSchedule, run); err != nil {
		cli.Fatal(logger, "Invalid overdue schedule", err, "schedule", cfg.OverdueSchedule)
	}

	scheduler.Start()
	logger.Info("Overdue reminders scheduled",
		"schedule", cfg.OverdueSchedule,
		"timezone", loc.String(),
		"concurrency", cfg.OverdueConcurrency)

	<-ctx.Done()

	logger.Info("Shutting down overdue-worker...")
	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
		logger.Info("overdue-worker shutdown complete")
	case <-time.After(shutdownTimeout):
		logger.Warn("Shutdown timeout reached")
	}
}
