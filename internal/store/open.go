// Package store selects and opens the core.Store backend named by DB_DRIVER.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/JonMunkholm/valuedcustomer/internal/config"
	"github.com/JonMunkholm/valuedcustomer/internal/core"
	"github.com/JonMunkholm/valuedcustomer/internal/store/gormstore"
	"github.com/JonMunkholm/valuedcustomer/internal/store/postgres"
)

// Backend is a store with a schema it can create.
type Backend interface {
	core.Store
	Migrate(ctx context.Context) error
}

// Open connects to the configured backend. With migrate set the tables are
// created before it returns.
func Open(ctx context.Context, db config.DatabaseConfig, insertBatchSize int, migrate bool) (Backend, error) {
	var (
		backend Backend
		err     error
	)

	switch strings.ToLower(db.Driver) {
	case "", "postgres":
		backend, err = postgres.Open(ctx, db)
	case "mysql", "sqlite":
		backend, err = gormstore.Open(db, insertBatchSize)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", db.Driver)
	}
	if err != nil {
		return nil, err
	}

	if migrate {
		if err := backend.Migrate(ctx); err != nil {
			_ = backend.Close()
			return nil, err
		}
	}
	return backend, nil
}
