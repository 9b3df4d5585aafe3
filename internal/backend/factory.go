// Package backend opens the record store selected by configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"faturas/internal/storage"
	"faturas/internal/storage/memory"
)

// Result contains the opened repository and its readiness probe.
type Result struct {
	Repository storage.Repository

	// Ready reports whether the repository can serve requests.
	Ready func(context.Context) error
}

// Close releases the repository.
func (r *Result) Close() error {
	if r == nil || r.Repository == nil {
		return nil
	}
	return r.Repository.Close()
}

// Open creates the repository described by cfg. The sqlite backend runs
// pending migrations before returning.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", cfg.SQLiteDBPath)
		return &Result{Repository: repo, Ready: repo.Ping}, nil

	case MemoryBackend:
		logger.WarnContext(ctx, "Initialized memory backend, records are lost on restart")
		return &Result{
			Repository: memory.New(),
			Ready:      func(context.Context) error { return nil },
		}, nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Type)
	}
}
