package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fuelledger/internal/errs"
	"github.com/smallbiznis/fuelledger/pkg/db/pagination"
)

type FuelReadingInput struct {
	FuelTypeID     snowflake.ID
	InitialReading decimal.Decimal
}

type StartShiftRequest struct {
	EmployeeID   snowflake.ID
	StationID    snowflake.ID
	DispenserID  snowflake.ID
	InitialCash  decimal.Decimal
	FuelReadings []FuelReadingInput
	Notes        string
}

type EndShiftRequest struct {
	ShiftID       snowflake.ID
	FinalReadings map[snowflake.ID]decimal.Decimal
	CashCollected decimal.Decimal
	Notes         *string
}

type ListShiftsRequest struct {
	pagination.Pagination
	StationID snowflake.ID
	From      *time.Time
	To        *time.Time
}

type ListShiftsResponse struct {
	pagination.PageInfo
	Shifts []Shift `json:"shifts"`
}

// FuelReconciliation is the meter delta for one fuel type. Dispensed is nil
// when no final reading was reported. Anomaly marks a final reading below the
// initial one, usually a meter reset.
type FuelReconciliation struct {
	FuelTypeID     snowflake.ID     `json:"fuel_type_id"`
	InitialReading decimal.Decimal  `json:"initial_reading"`
	FinalReading   *decimal.Decimal `json:"final_reading"`
	Dispensed      *decimal.Decimal `json:"dispensed"`
	Anomaly        bool             `json:"anomaly"`
}

type VarianceStatus string

const (
	VarianceBalanced VarianceStatus = "balanced"
	VarianceOver     VarianceStatus = "over"
	VarianceShort    VarianceStatus = "short"
	VarianceUnknown  VarianceStatus = "unknown"
)

// Reconciliation is the informational report returned when a shift ends.
type Reconciliation struct {
	Fuel                    []FuelReconciliation `json:"fuel"`
	IgnoredFuelTypes        []snowflake.ID       `json:"ignored_fuel_types,omitempty"`
	HasAnomalies            bool                 `json:"has_anomalies"`
	InitialCash             decimal.Decimal      `json:"initial_cash"`
	CashCollected           decimal.Decimal      `json:"cash_collected"`
	ExpectedCashSales       *decimal.Decimal     `json:"expected_cash_sales"`
	CashVariance            *decimal.Decimal     `json:"cash_variance"`
	VarianceTolerance       decimal.Decimal      `json:"variance_tolerance"`
	VarianceStatus          VarianceStatus       `json:"variance_status"`
	ExpectedCashUnavailable bool                 `json:"expected_cash_unavailable"`
}

type EndShiftResult struct {
	Shift  Shift          `json:"shift"`
	Report Reconciliation `json:"reconciliation"`
}

type Service interface {
	StartShift(context.Context, StartShiftRequest) (Shift, error)
	EndShift(context.Context, EndShiftRequest) (EndShiftResult, error)
	GetShift(context.Context, snowflake.ID) (Shift, error)
	GetCurrentShift(ctx context.Context, employeeID snowflake.ID) (Shift, error)
	ListShifts(context.Context, ListShiftsRequest) (ListShiftsResponse, error)
}

// CashSalesWindow scopes the cash sales counted against a shift.
type CashSalesWindow struct {
	StationID   snowflake.ID
	DispenserID snowflake.ID
	EmployeeID  snowflake.ID
	Start       time.Time
	End         time.Time
}

// CashSalesSource totals the cash taken in a window.
type CashSalesSource interface {
	TotalShiftCashSales(ctx context.Context, window CashSalesWindow) (decimal.Decimal, error)
}

var (
	ErrInvalidID         = errs.New(errs.KindValidation, "invalid_shift_id", "shift id is required")
	ErrInvalidEmployee   = errs.New(errs.KindValidation, "invalid_employee_id", "employee id is required")
	ErrInvalidStation    = errs.New(errs.KindValidation, "invalid_station_id", "station id is required")
	ErrInvalidDispenser  = errs.New(errs.KindValidation, "invalid_dispenser_id", "dispenser id is required")
	ErrInvalidCash       = errs.New(errs.KindValidation, "invalid_cash", "cash amount must not be negative")
	ErrInvalidReading    = errs.New(errs.KindValidation, "invalid_reading", "meter readings must not be negative")
	ErrInvalidFuelType   = errs.New(errs.KindValidation, "invalid_fuel_type", "fuel type id is required")
	ErrDuplicateFuelType = errs.New(errs.KindValidation, "duplicate_fuel_type", "fuel type listed more than once")
	ErrInvalidWindow     = errs.New(errs.KindValidation, "invalid_window", "window start must not be after its end")
	ErrActiveShiftExists = errs.New(errs.KindConflict, "active_shift_exists", "employee already has an active shift")
	ErrShiftNotActive    = errs.New(errs.KindInvalidState, "shift_not_active", "shift is not active")
	ErrNotFound          = errs.New(errs.KindNotFound, "shift_not_found", "shift not found")
	ErrNoActiveShift     = errs.New(errs.KindNotFound, "no_active_shift", "employee has no active shift")
)
