package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/vesto-app/tenk/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.SQLitePath
		if dsn == "" {
			dsn = "tenk.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// storeConfigured reports whether the configured driver has what it needs
// to connect. A missing sink is not fatal for extraction runs.
func storeConfigured() bool {
	switch cfg.Store.Driver {
	case "postgres":
		return cfg.Store.DatabaseURL != ""
	case "sqlite":
		return true
	default:
		return false
	}
}
