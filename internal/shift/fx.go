package shift

import (
	"github.com/smallbiznis/fuelledger/internal/shift/domain"
	"github.com/smallbiznis/fuelledger/internal/shift/repository"
	"github.com/smallbiznis/fuelledger/internal/shift/service"
	"go.uber.org/fx"
)

var Module = fx.Module("shift.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(fx.Annotate(domain.Schema, fx.ResultTags(`group:"schemas"`))),
)
