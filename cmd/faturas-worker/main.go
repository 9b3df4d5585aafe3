package main

import (
	"context"
	"errors"
	"fmt"

	"faturas/internal/amqp"
	"faturas/internal/backend"
	"faturas/internal/cli"
	applog "faturas/internal/log"
	"faturas/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(applog.ComponentWorker)
	logger.Info("Starting faturas-worker")

	if cfg.AMQPURL == "" {
		cli.Fatal(logger, "AMQP is required by the worker", fmt.Errorf("AMQP_URL is empty"))
	}
	// The activity log must be shared with the API process.
	if cfg.DataBackend != string(backend.SQLiteBackend) {
		logger.Warn("Worker is not using the sqlite backend, recorded activity will not reach the API",
			"backend", cfg.DataBackend)
	}

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

	activity := worker.NewActivityWorker(store.Repository)

	logger.Info("Consuming payment events", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	if err := amqpClient.ConsumePaymentEvents(ctx, activity.HandlePaymentEvent); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed",
			applog.NewFields().WithError(err, applog.ErrorTypeInternal).ToSlice()...)
		return
	}

	logger.Info("faturas-worker shutdown complete")
}
