package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/santiagopena171/app-agenda/libs/config"
	"github.com/santiagopena171/app-agenda/libs/db"
	"github.com/santiagopena171/app-agenda/libs/kafkax"
	"github.com/santiagopena171/app-agenda/libs/runtime"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/memstore"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/storage"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/store"
)

type backend struct {
	store  store.Store
	pool   *db.Pool
	checks []runtime.ReadyCheck
	close  func()
}

// inbox is nil for the memory driver.
func (b backend) inbox() kafkax.Deduper {
	if b.pool == nil {
		return nil
	}
	return db.NewInbox(b.pool)
}

// openBackend selects the store from STORE_DRIVER (postgres or memory).
func openBackend(ctx context.Context, logger *slog.Logger) (backend, error) {
	switch driver := config.String("STORE_DRIVER", "postgres"); driver {
	case "memory":
		mem := memstore.New()
		if path := config.String("MEMORY_SEED_FILE", ""); path != "" {
			f, err := os.Open(path)
			if err != nil {
				return backend{}, fmt.Errorf("open seed: %w", err)
			}
			defer f.Close()
			if err := mem.LoadSeed(f); err != nil {
				return backend{}, fmt.Errorf("load seed %s: %w", path, err)
			}
			logger.Info("memory store seeded", "file", path)
		}
		logger.Warn("using in-memory store; data is lost on restart")
		return backend{store: mem, close: func() {}}, nil

	case "postgres":
		dbURL, err := config.RequiredString("DATABASE_URL")
		if err != nil {
			return backend{}, err
		}
		poolCfg, err := db.PoolConfigFromEnv()
		if err != nil {
			return backend{}, err
		}
		pool, err := db.Open(ctx, dbURL, poolCfg)
		if err != nil {
			return backend{}, fmt.Errorf("db connection: %w", err)
		}
		st := storage.New(pool, db.DefaultRetryPolicy)
		if config.Bool("DB_AUTO_MIGRATE", false) {
			if err := st.Migrate(ctx); err != nil {
				pool.Close()
				return backend{}, fmt.Errorf("migrate: %w", err)
			}
			logger.Info("schema applied")
		}
		return backend{
			store:  st,
			pool:   pool,
			checks: []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}},
			close:  pool.Close,
		}, nil

	default:
		return backend{}, fmt.Errorf("unknown STORE_DRIVER %q", driver)
	}
}
