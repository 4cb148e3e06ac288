package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fuelledger/internal/errs"
	"github.com/smallbiznis/fuelledger/internal/store"
	"github.com/smallbiznis/fuelledger/pkg/db/pagination"
)

type Repository interface {
	store.Repository[Invoice]
}

type InvoiceItemInput struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	// TotalPrice is ignored; line totals are always recomputed.
	TotalPrice *decimal.Decimal
	SaleID     *snowflake.ID
}

type CreateInvoiceRequest struct {
	CustomerID snowflake.ID
	// IssueDate defaults to now. DueDate defaults to IssueDate plus the
	// customer's payment terms.
	IssueDate     time.Time
	DueDate       time.Time
	Items         []InvoiceItemInput
	InvoiceNumber string
	Notes         string
	// TotalAmount is ignored; the invoice total is computed from the items.
	TotalAmount *decimal.Decimal
}

// CreateInvoiceResult reports the created invoice and the outcome of the
// customer balance increment that follows it.
type CreateInvoiceResult struct {
	Invoice             Invoice `json:"invoice"`
	CreditLimitExceeded bool    `json:"credit_limit_exceeded"`
	BalanceUpdateFailed bool    `json:"balance_update_failed"`
	BalanceError        error   `json:"-"`
}

// SaleSnapshot is the originating sale of an invoice item.
type SaleSnapshot struct {
	SaleID          snowflake.ID    `json:"sale_id"`
	StationID       snowflake.ID    `json:"station_id"`
	FuelTypeID      snowflake.ID    `json:"fuel_type_id"`
	VehicleID       *snowflake.ID   `json:"vehicle_id"`
	QuantityLiters  decimal.Decimal `json:"quantity_liters"`
	PricePerLiter   decimal.Decimal `json:"price_per_liter"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PaymentMethod   string          `json:"payment_method"`
	TransactionDate time.Time       `json:"transaction_date"`
}

type InvoiceItemWithContext struct {
	Item InvoiceItem   `json:"item"`
	Sale *SaleSnapshot `json:"sale"`
}

type ApplyPaymentRequest struct {
	InvoiceID  snowflake.ID
	CustomerID snowflake.ID
	PaymentID  snowflake.ID
	Amount     decimal.Decimal
}

// ApplyPaymentResult is the invoice after a payment application. When
// Excess is set the payment would overpay and the invoice was not changed.
type ListInvoicesRequest struct {
	pagination.Pagination
	CustomerID snowflake.ID
}

type ListInvoicesResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type ApplyPaymentResult struct {
	Invoice        Invoice
	AlreadyApplied bool
	Excess         *decimal.Decimal
}

type Service interface {
	CreateInvoice(context.Context, CreateInvoiceRequest) (CreateInvoiceResult, error)
	GetInvoice(context.Context, snowflake.ID) (Invoice, error)
	ListInvoices(context.Context, ListInvoicesRequest) (ListInvoicesResponse, error)
	GetInvoiceItemsWithContext(ctx context.Context, invoiceID snowflake.ID) ([]InvoiceItemWithContext, error)

	// ApplyPayment adds a payment to the paid amount with a version-checked
	// update. Applying the same payment id twice is a no-op.
	ApplyPayment(context.Context, ApplyPaymentRequest) (ApplyPaymentResult, error)

	// MarkOverdue moves unpaid pending invoices past their due date to overdue.
	MarkOverdue(ctx context.Context, now time.Time, limit int) (int, error)
}

var (
	ErrInvalidID              = errs.New(errs.KindValidation, "invalid_invoice_id", "invoice id is required")
	ErrInvalidCustomer        = errs.New(errs.KindValidation, "invalid_customer_id", "customer id is required")
	ErrEmptyItems             = errs.New(errs.KindValidation, "empty_items", "an invoice needs at least one item")
	ErrInvalidQuantity        = errs.New(errs.KindValidation, "invalid_quantity", "item quantity must be greater than zero")
	ErrInvalidUnitPrice       = errs.New(errs.KindValidation, "invalid_unit_price", "item unit price must not be negative")
	ErrInvalidDueDate         = errs.New(errs.KindValidation, "invalid_due_date", "due date must be after issue date")
	ErrInvalidPaymentAmount   = errs.New(errs.KindValidation, "invalid_amount", "payment amount must be greater than zero")
	ErrInvalidPaymentID       = errs.New(errs.KindValidation, "invalid_payment_id", "payment id is required")
	ErrCustomerMismatch       = errs.New(errs.KindValidation, "invoice_customer_mismatch", "invoice belongs to another customer")
	ErrSaleCustomerMismatch   = errs.New(errs.KindValidation, "sale_customer_mismatch", "sale belongs to another customer")
	ErrNotFound               = errs.New(errs.KindNotFound, "invoice_not_found", "invoice not found")
	ErrDuplicateInvoiceNumber = errs.New(errs.KindConflict, "duplicate_invoice_number", "invoice number already exists")
	ErrDuplicateSaleReference = errs.New(errs.KindConflict, "duplicate_sale_reference", "sale referenced more than once")
	ErrConcurrentModification = errs.New(errs.KindConflict, "concurrent_modification", "invoice changed concurrently, retries exhausted")
	ErrWouldOverpay           = errs.New(errs.KindOverpayment, "overpayment", "payment exceeds the invoice outstanding amount")
)
