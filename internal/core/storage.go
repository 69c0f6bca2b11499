package core

import (
	"context"
	"fmt"

	"fishercore/internal/blob"
	"fishercore/internal/config"
	"fishercore/internal/infra/persistence/memory"
	"fishercore/internal/infra/persistence/postgres"
	"fishercore/internal/infra/persistence/sqlite"
)

// OpenPersistentStore selects a backend from cfg.Driver (default sqlite).
//
//	memory:   process-local, lost on exit
//	sqlite:   cfg.SQLitePath (default ./fishercore.db)
//	postgres: cfg.PostgresDSN
func OpenPersistentStore(cfg config.StorageConfig, engine *RulesEngine, opts ...memory.Option) (PersistentStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = config.StorageSQLite
	}
	switch driver {
	case config.StorageMemory:
		return memory.NewStore(engine, opts...), nil
	case config.StorageSQLite:
		store, err := sqlite.NewStore(cfg.SQLitePath, engine, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoragePostgres:
		store, err := postgres.NewStore(cfg.PostgresDSN, engine, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// OpenCatchArchive opens the configured blob backend, or returns nil when
// the archive is disabled.
func OpenCatchArchive(ctx context.Context, cfg config.Config) (*CatchArchive, error) {
	if !cfg.Archive.Enabled {
		return nil, nil
	}
	store, err := blob.Open(ctx, cfg.Blob.Options())
	if err != nil {
		return nil, fmt.Errorf("open catch archive: %w", err)
	}
	return NewCatchArchive(store), nil
}
