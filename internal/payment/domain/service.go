package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fuelledger/internal/errs"
	invoicedomain "github.com/smallbiznis/fuelledger/internal/invoice/domain"
	"github.com/smallbiznis/fuelledger/internal/store"
	"github.com/smallbiznis/fuelledger/pkg/db/pagination"
)

type Repository interface {
	store.Repository[Payment]
}

type RecordPaymentRequest struct {
	CustomerID      snowflake.ID
	InvoiceID       *snowflake.ID
	Amount          decimal.Decimal
	PaymentDate     time.Time
	Method          Method
	ReferenceNumber string
	Notes           string
}

// RecordPaymentResult describes what a payment changed. Once PaymentRecorded
// is true the payment exists; a failed follow-up write is reported through
// the Failed flags and Cause instead of an error.
type RecordPaymentResult struct {
	Payment             Payment                `json:"payment"`
	Invoice             *invoicedomain.Invoice `json:"invoice,omitempty"`
	PaymentRecorded     bool                   `json:"payment_recorded"`
	CreditLimitExceeded bool                   `json:"credit_limit_exceeded"`
	BalanceUpdateFailed bool                   `json:"balance_update_failed"`
	InvoiceUpdateFailed bool                   `json:"invoice_update_failed"`
	AlreadyApplied      bool                   `json:"already_applied"`
	Cause               error                  `json:"-"`
}

type ListPaymentsRequest struct {
	pagination.Pagination
	CustomerID snowflake.ID
}

type ListPaymentsResponse struct {
	pagination.PageInfo
	Payments []Payment `json:"payments"`
}

type Service interface {
	RecordPayment(context.Context, RecordPaymentRequest) (RecordPaymentResult, error)
	// ApplyPaymentToInvoice retries the invoice step of a recorded payment.
	ApplyPaymentToInvoice(ctx context.Context, paymentID snowflake.ID) (RecordPaymentResult, error)
	GetPayment(context.Context, snowflake.ID) (Payment, error)
	ListPayments(context.Context, ListPaymentsRequest) (ListPaymentsResponse, error)
}

var (
	ErrInvalidID         = errs.New(errs.KindValidation, "invalid_payment_id", "payment id is required")
	ErrInvalidCustomer   = errs.New(errs.KindValidation, "invalid_customer_id", "customer id is required")
	ErrInvalidAmount     = errs.New(errs.KindValidation, "invalid_amount", "payment amount must be greater than zero")
	ErrInvalidMethod     = errs.New(errs.KindValidation, "invalid_payment_method", "unknown payment method")
	ErrInvoiceMismatch   = errs.New(errs.KindValidation, "invoice_customer_mismatch", "invoice belongs to another customer")
	ErrNotFound          = errs.New(errs.KindNotFound, "payment_not_found", "payment not found")
	ErrNoInvoiceTargeted = errs.New(errs.KindInvalidState, "payment_without_invoice", "payment does not target an invoice")
)

// OverpaymentError reports a payment that would push an invoice past its
// total. The invoice is left unchanged.
type OverpaymentError struct {
	InvoiceID snowflake.ID
	Total     decimal.Decimal
	Paid      decimal.Decimal
	Amount    decimal.Decimal
	Excess    decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment of %s overpays invoice %s (total %s, paid %s) by %s",
		e.Amount.StringFixed(2), e.InvoiceID, e.Total.StringFixed(2), e.Paid.StringFixed(2), e.Excess.StringFixed(2))
}

func (e *OverpaymentError) Unwrap() error {
	return invoicedomain.ErrWouldOverpay
}
