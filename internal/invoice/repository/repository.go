package repository

import (
	"time"

	"github.com/smallbiznis/fuelledger/internal/config"
	"github.com/smallbiznis/fuelledger/internal/invoice/domain"
	"github.com/smallbiznis/fuelledger/internal/store"
)

func New(backend store.Backend, timeout time.Duration) domain.Repository {
	return store.NewCollection[domain.Invoice](backend, domain.TableName, timeout)
}

func Provide(backend store.Backend, cfg config.Config) domain.Repository {
	return New(backend, cfg.StoreTimeout)
}
