package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/felixgeelhaar/codementor/internal/config"
	"github.com/felixgeelhaar/codementor/internal/daemon"
	"github.com/felixgeelhaar/codementor/internal/progress"
	"github.com/felixgeelhaar/codementor/internal/repository"
	"github.com/felixgeelhaar/codementor/internal/storage/postgres"
	"github.com/felixgeelhaar/codementor/internal/storage/sqlite"
)

// storage bundles the profile store with the optional analytics reader
type storage struct {
	profiles  progress.ProfileStore
	analytics daemon.Analytics
	closers   []func() error
}

func (s *storage) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			slog.Warn("close storage", "error", err)
		}
	}
}

// openStorage opens and migrates the configured backend
func openStorage(ctx context.Context, cfg *config.LocalConfig, dir string) (*storage, error) {
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		pool, err := postgres.Open(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}

		var db *sql.DB
		if db, err = repository.Open(cfg.Storage.DatabaseURL); err != nil {
			pool.Close()
			return nil, err
		}

		return &storage{
			profiles:  postgres.NewProfileStore(pool),
			analytics: repository.NewCompletionRepository(db),
			closers:   []func() error{func() error { pool.Close(); return nil }, db.Close},
		}, nil

	case config.StorageFile:
		store, err := progress.NewFileStore(filepath.Join(dir, "profiles"))
		if err != nil {
			return nil, fmt.Errorf("open file store: %w", err)
		}
		return &storage{profiles: store}, nil

	default:
		path := cfg.Storage.SQLitePath
		if path == "" {
			path = filepath.Join(dir, "data", "codementor.db")
		}
		db, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return &storage{
			profiles:  sqlite.NewProfileStore(db),
			analytics: sqlite.NewAnalyticsStore(db),
			closers:   []func() error{db.Close},
		}, nil
	}
}
