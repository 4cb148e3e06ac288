package invoice

import (
	"github.com/smallbiznis/fuelledger/internal/invoice/domain"
	"github.com/smallbiznis/fuelledger/internal/invoice/repository"
	"github.com/smallbiznis/fuelledger/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(fx.Annotate(domain.Schema, fx.ResultTags(`group:"schemas"`))),
)
