package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Gazel/SecureKasir/internal/catalog"
	"github.com/Gazel/SecureKasir/internal/platform/db"
	"github.com/Gazel/SecureKasir/internal/storage/memory"
	"github.com/Gazel/SecureKasir/internal/storage/postgres"
	"github.com/Gazel/SecureKasir/internal/storage/sqlstore"
	"github.com/Gazel/SecureKasir/internal/transactions"
	"github.com/Gazel/SecureKasir/internal/users"
)

// Store is the persistence surface shared by the services.
type Store interface {
	transactions.Repository
	catalog.Repository
	users.RepositoryPort
}

// Backend is an opened store plus its lifecycle hooks.
type Backend struct {
	Store  Store
	Driver string
	close  func()
}

// Close releases connections held by the backend.
func (b *Backend) Close() {
	if b != nil && b.close != nil {
		b.close()
	}
}

// OpenStore connects the backend selected by STORE_DRIVER and applies its
// schema.
func OpenStore(ctx context.Context, cfg *Config, logger *slog.Logger) (*Backend, error) {
	switch cfg.StoreDriver {
	case DriverMemory:
		logger.Warn("using in-memory store; data is lost on restart")
		return &Backend{Store: memory.New(), Driver: DriverMemory}, nil
	case DriverPostgres:
		pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
		if err != nil {
			return nil, err
		}
		store := postgres.New(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return &Backend{Store: store, Driver: DriverPostgres, close: pool.Close}, nil
	case DriverSQLite, DriverMySQL:
		gdb, err := db.OpenGorm(cfg.StoreDriver, cfg.SQLDSN, logger)
		if err != nil {
			return nil, err
		}
		store := sqlstore.New(gdb)
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("migrate %s: %w", cfg.StoreDriver, err)
		}
		return &Backend{Store: store, Driver: cfg.StoreDriver, close: func() {
			if err := store.Close(); err != nil {
				logger.Warn("close sql store", slog.Any("error", err))
			}
		}}, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}
