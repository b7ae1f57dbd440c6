package demo

import (
	"context"
	"fmt"
	"time"

	"dashcore/internal/config"
	"dashcore/internal/infra/persistence/memory"
	"dashcore/internal/infra/persistence/postgres"
	"dashcore/internal/infra/persistence/sqlite"
	"dashcore/pkg/reportapi"
)

// StorageDriver identifies a concrete row store implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// Store holds the demo row set.
type Store interface {
	Rows(ctx context.Context) ([]reportapi.Row, error)
	UpdatedAt(ctx context.Context) (time.Time, error)
	Replace(ctx context.Context, rows []reportapi.Row, updatedAt time.Time) error
}

// OpenStore selects a backend from cfg.Store (default memory). The returned
// close function releases any database handle.
func OpenStore(ctx context.Context, cfg config.DemoConfig) (Store, func() error, error) {
	driver := StorageDriver(cfg.Store)
	if driver == "" {
		driver = StorageMemory
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), func() error { return nil }, nil
	case StorageSQLite:
		s, err := sqlite.NewStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case StoragePostgres:
		s, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// Seed fills store with a generated dataset when it is empty, or always when
// force is set. It reports whether rows were written.
func Seed(ctx context.Context, store Store, cfg config.DemoConfig, categories []reportapi.Category, now time.Time, force bool) (bool, error) {
	if !force {
		existing, err := store.Rows(ctx)
		if err != nil {
			return false, fmt.Errorf("read demo rows: %w", err)
		}
		if len(existing) > 0 {
			return false, nil
		}
	}
	rows := Generate(cfg.Seed, cfg.Entities, categories)
	if err := store.Replace(ctx, rows, now); err != nil {
		return false, fmt.Errorf("write demo rows: %w", err)
	}
	return true, nil
}
