package migration

import (
	"context"

	"github.com/smallbiznis/fuelledger/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Backend store.Backend
	Schemas []store.Schema `group:"schemas"`
	Log     *zap.Logger
}

var Module = fx.Module("migrations",
	fx.Invoke(func(p Params) error {
		return Run(context.Background(), p.Backend, p.Schemas, p.Log.Named("migration"))
	}),
)
