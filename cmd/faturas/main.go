package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"faturas/internal/amqp"
	"faturas/internal/backend"
	"faturas/internal/cache"
	"faturas/internal/cli"
	apphttp "faturas/internal/http"
	applog "faturas/internal/log"
	"faturas/internal/metrics"
	"faturas/internal/middleware/identity"
	"faturas/internal/services"
	"faturas/internal/session"
	"faturas/internal/snapshot"
)

const (
	sessionSweepInterval = time.Minute
	cacheSweepInterval   = 5 * time.Minute
	shutdownTimeout      = 30 * time.Second
)

func main() {
	cfg, logger := cli.Bootstrap(applog.ComponentApp)
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

	// Payment events are optional: without a broker the activity log stays empty.
	var events services.EventPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without payment events",
				applog.NewFields().WithError(err, applog.ErrorTypeInternal).ToSlice()...)
		} else {
			defer amqpClient.Close()
			events = amqpClient
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled, payment events will not be published")
	}

	m := metrics.New()

	invoiceCache := cache.NewLRUCache[services.InvoiceResult](cfg.CacheSize, cfg.CacheTTL)
	caches := cache.NewManager(logger.WithComponent(applog.ComponentCache).Slog())
	caches.Register(invoiceCache)
	caches.StartCleanup(cacheSweepInterval)
	defer caches.Stop()

	invoices := services.NewInvoiceService(invoiceCache, m, loc)
	hub := snapshot.NewHub(store.Repository, logger.WithComponent(applog.ComponentSession).Slog())

	sessions := session.NewManager(store.Repository, hub, cfg.SessionIdleTimeout, m,
		logger.WithComponent(applog.ComponentSession).Slog())
	sessions.OnTeardown = invoices.Invalidate
	defer sessions.Close()
	go sessions.Run(ctx, sessionSweepInterval)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Sessions: sessions,
		Invoices: invoices,
		Tracker:  services.NewStatusTracker(store.Repository, events, hub, m, loc),
		Ledger:   services.NewLedgerService(store.Repository, hub),
		Activity: store.Repository,
		Auth: identity.NewAuthenticator(identity.Config{
			Secret:    []byte(cfg.AuthJWTSecret),
			DevHeader: cfg.AuthDevHeader,
		}),
		Metrics:            m,
		Logger:             logger,
		Ready:              store.Ready,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})
	if cfg.AuthDevHeader {
		logger.Warn("Development identity header enabled", "header", identity.DevHeader)
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error",
				applog.NewFields().WithOperation(applog.OpShutdown).WithError(err, applog.ErrorTypeInternal).ToSlice()...)
		}
	}()

	logger.Info("Starting faturas server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"timezone", loc.String())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cli.Fatal(logger, "Server error", err, "port", cfg.Port)
	}
	<-stopped

	logger.Info("Server stopped gracefully")
}
