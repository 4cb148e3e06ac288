// Package provider opens the configured store backend for the process.
package provider

import (
	"context"

	"github.com/smallbiznis/fuelledger/internal/config"
	"github.com/smallbiznis/fuelledger/internal/store"
	"github.com/smallbiznis/fuelledger/internal/store/gormstore"
	"github.com/smallbiznis/fuelledger/internal/store/mongostore"
	"github.com/smallbiznis/fuelledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("store",
	fx.Provide(NewBackend),
)

// NewBackend connects the backend selected by STORE_BACKEND once per process
// and closes it on shutdown.
func NewBackend(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (store.Backend, error) {
	backend, err := open(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}
	log.Info("store backend ready", zap.String("backend", backend.Name()))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return backend.Close(ctx)
		},
	})
	return backend, nil
}

func open(ctx context.Context, cfg config.Config, log *zap.Logger) (store.Backend, error) {
	if cfg.StoreBackend == config.StoreBackendMongo {
		connectCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
		defer cancel()
		return mongostore.Connect(connectCtx, mongostore.Config{
			URI:      cfg.MongoURI,
			Database: cfg.MongoDatabase,
		})
	}

	conn, err := db.Open(db.ConfigFrom(cfg), log)
	if err != nil {
		return nil, err
	}
	return gormstore.New(conn), nil
}
