package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fuelledger/internal/errs"
	"github.com/smallbiznis/fuelledger/pkg/db/pagination"
)

type CreateCustomerRequest struct {
	Name         string
	CreditLimit  decimal.Decimal
	PaymentTerms string
	Status       Status
}

type ListCustomerRequest struct {
	pagination.Pagination
	Status Status
}

type ListCustomerResponse struct {
	pagination.PageInfo
	Customers []Customer `json:"customers"`
}

// UpdateCustomerRequest changes only the fields that are set.
type UpdateCustomerRequest struct {
	Name         *string
	CreditLimit  *decimal.Decimal
	PaymentTerms *string
	Status       *Status
}

// BalanceAdjustment is the customer after an atomic balance change.
type BalanceAdjustment struct {
	Customer            Customer
	CreditLimitExceeded bool
}

type Service interface {
	Create(context.Context, CreateCustomerRequest) (Customer, error)
	GetByID(context.Context, snowflake.ID) (Customer, error)
	List(context.Context, ListCustomerRequest) (ListCustomerResponse, error)
	Update(context.Context, snowflake.ID, UpdateCustomerRequest) (Customer, error)
	AdjustBalance(ctx context.Context, id snowflake.ID, delta decimal.Decimal) (BalanceAdjustment, error)
}

var (
	ErrInvalidID          = errs.New(errs.KindValidation, "invalid_customer_id", "customer id is required")
	ErrInvalidName        = errs.New(errs.KindValidation, "invalid_name", "customer name is required")
	ErrInvalidCreditLimit = errs.New(errs.KindValidation, "invalid_credit_limit", "credit limit must not be negative")
	ErrInvalidStatus      = errs.New(errs.KindValidation, "invalid_customer_status", "unknown customer status")
	ErrEmptyUpdate        = errs.New(errs.KindValidation, "empty_update", "no fields to update")
	ErrNotFound           = errs.New(errs.KindNotFound, "customer_not_found", "customer not found")
	ErrInactive           = errs.New(errs.KindInvalidState, "customer_inactive", "customer is not active")
)
