package customer

import (
	"github.com/smallbiznis/fuelledger/internal/customer/domain"
	"github.com/smallbiznis/fuelledger/internal/customer/repository"
	"github.com/smallbiznis/fuelledger/internal/customer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("customer.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(fx.Annotate(domain.Schema, fx.ResultTags(`group:"schemas"`))),
)
