package domain

import (
	"context"
	"iter"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fuelledger/internal/errs"
	"github.com/smallbiznis/fuelledger/pkg/db/pagination"
)

type RecordSaleRequest struct {
	StationID       snowflake.ID
	DispenserID     snowflake.ID
	EmployeeID      snowflake.ID
	CustomerID      *snowflake.ID
	VehicleID       *snowflake.ID
	FuelTypeID      snowflake.ID
	QuantityLiters  decimal.Decimal
	PricePerLiter   decimal.Decimal
	PaymentMethod   PaymentMethod
	TransactionDate *time.Time
}

// ListSalesRequest selects sales by exactly one of station, customer or vehicle.
type ListSalesRequest struct {
	pagination.Pagination
	StationID  snowflake.ID
	CustomerID snowflake.ID
	VehicleID  snowflake.ID
	From       *time.Time
	To         *time.Time
}

type ListSalesResponse struct {
	pagination.PageInfo
	Sales []Sale `json:"sales"`
}

// CashSalesFilter selects cash sales in [Start, End]. Zero DispenserID or
// EmployeeID matches any.
type CashSalesFilter struct {
	StationID   snowflake.ID
	DispenserID snowflake.ID
	EmployeeID  snowflake.ID
	Start       time.Time
	End         time.Time
}

type Service interface {
	RecordSale(context.Context, RecordSaleRequest) (Sale, error)
	GetSale(context.Context, snowflake.ID) (Sale, error)
	ListSales(context.Context, ListSalesRequest) (ListSalesResponse, error)

	// SumCashSales yields the total of each matching cash sale. The query runs
	// each time the sequence is ranged over.
	SumCashSales(context.Context, CashSalesFilter) iter.Seq2[decimal.Decimal, error]
	TotalCashSales(context.Context, CashSalesFilter) (decimal.Decimal, error)

	// StampInvoice sets the sale's invoice id unless it is already billed.
	StampInvoice(ctx context.Context, saleID, invoiceID snowflake.ID) (Sale, error)
	// ReleaseInvoice clears an invoice id previously stamped by invoiceID.
	ReleaseInvoice(ctx context.Context, saleID, invoiceID snowflake.ID) error
}

var (
	ErrInvalidID            = errs.New(errs.KindValidation, "invalid_sale_id", "sale id is required")
	ErrInvalidStation       = errs.New(errs.KindValidation, "invalid_station_id", "station id is required")
	ErrInvalidDispenser     = errs.New(errs.KindValidation, "invalid_dispenser_id", "dispenser id is required")
	ErrInvalidEmployee      = errs.New(errs.KindValidation, "invalid_employee_id", "employee id is required")
	ErrInvalidFuelType      = errs.New(errs.KindValidation, "invalid_fuel_type", "fuel type id is required")
	ErrInvalidQuantity      = errs.New(errs.KindValidation, "invalid_quantity", "quantity must be greater than zero")
	ErrInvalidPrice         = errs.New(errs.KindValidation, "invalid_price", "price per liter must not be negative")
	ErrInvalidPaymentMethod = errs.New(errs.KindValidation, "invalid_payment_method", "unknown payment method")
	ErrInvalidFilter        = errs.New(errs.KindValidation, "invalid_sale_filter", "exactly one of station, customer or vehicle is required")
	ErrInvalidWindow        = errs.New(errs.KindValidation, "invalid_window", "window start must not be after its end")
	ErrNoActiveShift        = errs.New(errs.KindInvalidState, "no_active_shift", "employee has no active shift on this dispenser")
	ErrNotFound             = errs.New(errs.KindNotFound, "sale_not_found", "sale not found")
	ErrSaleAlreadyInvoiced  = errs.New(errs.KindConflict, "sale_already_invoiced", "sale is already billed on an invoice")
)
