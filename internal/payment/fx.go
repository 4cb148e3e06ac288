package payment

import (
	"github.com/smallbiznis/fuelledger/internal/payment/domain"
	"github.com/smallbiznis/fuelledger/internal/payment/repository"
	"github.com/smallbiznis/fuelledger/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(fx.Annotate(domain.Schema, fx.ResultTags(`group:"schemas"`))),
)
