package domain

import "github.com/smallbiznis/fuelledger/internal/store"

type Repository interface {
	store.Repository[Shift]
}
