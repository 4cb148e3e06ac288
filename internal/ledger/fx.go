package ledger

import (
	"github.com/smallbiznis/fuelledger/internal/ledger/domain"
	"github.com/smallbiznis/fuelledger/internal/ledger/repository"
	"github.com/smallbiznis/fuelledger/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(fx.Annotate(domain.Schema, fx.ResultTags(`group:"schemas"`))),
)
