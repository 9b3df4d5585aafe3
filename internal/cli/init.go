// Package cli provides common CLI initialization utilities shared by
// cmd/faturas, cmd/faturas-worker and cmd/overdue-worker.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"faturas/internal/config"
	applog "faturas/internal/log"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from cfg and installs it as the
// slog default.
func SetupLogger(cfg *config.Config, component string) *applog.Logger {
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: component,
		Output:    os.Stdout,
	})
	applog.SetDefault(logger)
	return logger
}

// Bootstrap loads .env and the configuration, then sets up logging.
// It exits the process when the configuration is invalid.
func Bootstrap(component string) (*config.Config, *applog.Logger) {
	LoadEnvFile()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		// The configured format may itself be invalid, so report with defaults.
		applog.New(applog.DefaultConfig()).Error("Configuration validation failed",
			applog.NewFields().WithError(err, applog.ErrorTypeConfiguration).ToSlice()...)
		os.Exit(1)
	}
	return cfg, SetupLogger(cfg, component)
}

// Fatal logs err and exits.
func Fatal(logger *applog.Logger, msg string, err error, args ...any) {
	fields := applog.NewFields().WithError(err, applog.ErrorTypeInternal).ToSlice()
	logger.Error(msg, append(fields, args...)...)
	os.Exit(1)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM. The
// signal is logged once.
func SignalContext(logger *applog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Location resolves the configured time zone, falling back to UTC.
func Location(cfg *config.Config, logger *applog.Logger) *time.Location {
	loc, err := cfg.Location()
	if err != nil {
		logger.Warn("Unknown time zone, using UTC", "timezone", cfg.Timezone, "error", err)
		return time.UTC
	}
	return loc
}
