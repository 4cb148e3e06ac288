package sale

import (
	"github.com/smallbiznis/fuelledger/internal/sale/domain"
	"github.com/smallbiznis/fuelledger/internal/sale/repository"
	"github.com/smallbiznis/fuelledger/internal/sale/service"
	"go.uber.org/fx"
)

var Module = fx.Module("sale.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(service.NewCashSalesSource),
	fx.Provide(fx.Annotate(domain.Schema, fx.ResultTags(`group:"schemas"`))),
)
