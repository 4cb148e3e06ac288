package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fuelledger/internal/clock"
	customerdomain "github.com/smallbiznis/fuelledger/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/fuelledger/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/fuelledger/internal/ledger/domain"
	"github.com/smallbiznis/fuelledger/internal/lock"
	obsmetrics "github.com/smallbiznis/fuelledger/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/fuelledger/internal/payment/domain"
	"github.com/smallbiznis/fuelledger/internal/store"
	"github.com/smallbiznis/fuelledger/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const invoiceLockTTL = 10 * time.Second

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       paymentdomain.Repository
	Customers  customerdomain.Service
	Invoices   invoicedomain.Service
	LedgerSvc  ledgerdomain.Service `optional:"true"`
	Clock      clock.Clock          `optional:"true"`
	Locker     *lock.Locker         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics  `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	genID     *snowflake.Node
	repo      paymentdomain.Repository
	customers customerdomain.Service
	invoices  invoicedomain.Service
	ledgerSvc ledgerdomain.Service
	clock     clock.Clock
	locker    *lock.Locker
	metrics   *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		log:       p.Log.Named("payment.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		customers: p.Customers,
		invoices:  p.Invoices,
		ledgerSvc: p.LedgerSvc,
		clock:     clk,
		locker:    p.Locker,
		metrics:   p.ObsMetrics,
	}
}

func (s *Service) RecordPayment(ctx context.Context, req paymentdomain.RecordPaymentRequest) (paymentdomain.RecordPaymentResult, error) {
	if err := validateRecordRequest(req); err != nil {
		return paymentdomain.RecordPaymentResult{}, err
	}

	customer, err := s.customers.GetByID(ctx, req.CustomerID)
	if err != nil {
		return paymentdomain.RecordPaymentResult{}, err
	}
	if req.InvoiceID != nil {
		invoice, err := s.invoices.GetInvoice(ctx, *req.InvoiceID)
		if err != nil {
			return paymentdomain.RecordPaymentResult{}, err
		}
		if invoice.CustomerID != customer.ID {
			return paymentdomain.RecordPaymentResult{}, paymentdomain.ErrInvoiceMismatch
		}
	}

	now := s.clock.Now()
	paymentDate := req.PaymentDate.UTC()
	if req.PaymentDate.IsZero() {
		paymentDate = now
	}
	payment := paymentdomain.Payment{
		ID:              s.genID.Generate(),
		CustomerID:      customer.ID,
		InvoiceID:       req.InvoiceID,
		Amount:          req.Amount.Round(2),
		PaymentDate:     paymentDate,
		Method:          req.Method,
		ReferenceNumber: strings.TrimSpace(req.ReferenceNumber),
		Notes:           strings.TrimSpace(req.Notes),
		CreatedAt:       now,
	}

	if err := ctx.Err(); err != nil {
		return paymentdomain.RecordPaymentResult{}, err
	}
	writeCtx := context.WithoutCancel(ctx)

	if err := s.repo.Create(writeCtx, &payment); err != nil {
		return paymentdomain.RecordPaymentResult{}, err
	}
	result := paymentdomain.RecordPaymentResult{Payment: payment, PaymentRecorded: true}
	s.metrics.RecordPaymentEvent(ctx, string(payment.Method), "recorded")

	adjusted, err := s.customers.AdjustBalance(writeCtx, customer.ID, payment.Amount.Neg())
	if err != nil {
		result.BalanceUpdateFailed = true
		result.Cause = err
		s.metrics.RecordPartialFailure(ctx, "record_payment", "balance_update_failed")
		s.log.Error("customer balance decrement failed after payment was recorded",
			zap.String("payment_id", payment.ID.String()),
			zap.String("customer_id", customer.ID.String()),
			zap.Error(err),
		)
	} else {
		result.CreditLimitExceeded = adjusted.CreditLimitExceeded
		s.postToLedger(writeCtx, payment)
	}

	if payment.InvoiceID != nil {
		if err := s.applyToInvoice(writeCtx, payment, &result); err != nil {
			return result, err
		}
	}

	s.log.Info("payment recorded",
		zap.String("payment_id", payment.ID.String()),
		zap.String("customer_id", customer.ID.String()),
		zap.String("amount", payment.Amount.StringFixed(2)),
		zap.String("method", string(payment.Method)),
	)
	return result, nil
}

func validateRecordRequest(req paymentdomain.RecordPaymentRequest) error {
	if req.CustomerID == 0 {
		return paymentdomain.ErrInvalidCustomer
	}
	if !req.Amount.Round(2).IsPositive() {
		return paymentdomain.ErrInvalidAmount
	}
	if !req.Method.Valid() {
		return paymentdomain.ErrInvalidMethod
	}
	if req.InvoiceID != nil && *req.InvoiceID == 0 {
		return invoicedomain.ErrInvalidID
	}
	return nil
}

func (s *Service) ApplyPaymentToInvoice(ctx context.Context, paymentID snowflake.ID) (paymentdomain.RecordPaymentResult, error) {
	payment, err := s.GetPayment(ctx, paymentID)
	if err != nil {
		return paymentdomain.RecordPaymentResult{}, err
	}
	if payment.InvoiceID == nil {
		return paymentdomain.RecordPaymentResult{}, paymentdomain.ErrNoInvoiceTargeted
	}

	result := paymentdomain.RecordPaymentResult{Payment: payment, PaymentRecorded: true}
	if err := s.applyToInvoice(ctx, payment, &result); err != nil {
		return result, err
	}
	if result.InvoiceUpdateFailed {
		return result, result.Cause
	}
	return result, nil
}

// applyToInvoice runs the invoice step. Overpayment is returned as an error;
// any other failure marks the result as a partial success.
func (s *Service) applyToInvoice(ctx context.Context, payment paymentdomain.Payment, result *paymentdomain.RecordPaymentResult) error {
	release, held, err := s.locker.Acquire(ctx, lock.InvoicePaymentKey(*payment.InvoiceID), invoiceLockTTL)
	if err != nil {
		s.log.Warn("invoice payment lock unavailable", zap.Error(err))
	}
	defer release()
	if !held {
		s.log.Debug("invoice payment lock busy, relying on version check",
			zap.String("invoice_id", payment.InvoiceID.String()),
		)
	}

	applied, err := s.invoices.ApplyPayment(ctx, invoicedomain.ApplyPaymentRequest{
		InvoiceID:  *payment.InvoiceID,
		CustomerID: payment.CustomerID,
		PaymentID:  payment.ID,
		Amount:     payment.Amount,
	})
	switch {
	case err == nil:
		result.Invoice = &applied.Invoice
		result.AlreadyApplied = applied.AlreadyApplied
		if !applied.AlreadyApplied {
			s.metrics.RecordPaymentEvent(ctx, string(payment.Method), "applied")
		}
		return nil
	case errors.Is(err, invoicedomain.ErrWouldOverpay) && applied.Excess != nil:
		invoice := applied.Invoice
		result.Invoice = &invoice
		s.metrics.RecordPaymentEvent(ctx, string(payment.Method), "overpayment")
		s.log.Warn("payment exceeds invoice outstanding amount",
			zap.String("payment_id", payment.ID.String()),
			zap.String("invoice_id", invoice.ID.String()),
			zap.String("excess", applied.Excess.StringFixed(2)),
		)
		return &paymentdomain.OverpaymentError{
			InvoiceID: invoice.ID,
			Total:     invoice.TotalAmount,
			Paid:      invoice.PaidAmount,
			Amount:    payment.Amount,
			Excess:    *applied.Excess,
		}
	default:
		result.InvoiceUpdateFailed = true
		if result.Cause == nil {
			result.Cause = err
		}
		s.metrics.RecordPartialFailure(ctx, "record_payment", "invoice_update_failed")
		s.log.Error("invoice update failed after payment was recorded",
			zap.String("payment_id", payment.ID.String()),
			zap.String("invoice_id", payment.InvoiceID.String()),
			zap.Error(err),
		)
		return nil
	}
}

func (s *Service) postToLedger(ctx context.Context, payment paymentdomain.Payment) {
	if s.ledgerSvc == nil {
		return
	}
	if _, err := s.ledgerSvc.CreateEntry(ctx, ledgerdomain.CreateEntryRequest{
		SourceType: ledgerdomain.SourceTypePayment,
		SourceID:   payment.ID,
		CustomerID: payment.CustomerID,
		OccurredAt: payment.PaymentDate,
		Lines:      ledgerdomain.PaymentLines(payment.Amount),
	}); err != nil {
		s.metrics.RecordPartialFailure(ctx, "ledger_post", string(ledgerdomain.SourceTypePayment))
		s.log.Warn("ledger posting failed", zap.String("payment_id", payment.ID.String()), zap.Error(err))
	}
}

func (s *Service) GetPayment(ctx context.Context, id snowflake.ID) (paymentdomain.Payment, error) {
	if id == 0 {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidID
	}
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return paymentdomain.Payment{}, paymentdomain.ErrNotFound
		}
		return paymentdomain.Payment{}, err
	}
	return *item, nil
}

func (s *Service) ListPayments(ctx context.Context, req paymentdomain.ListPaymentsRequest) (paymentdomain.ListPaymentsResponse, error) {
	if req.CustomerID == 0 {
		return paymentdomain.ListPaymentsResponse{}, paymentdomain.ErrInvalidCustomer
	}
	q := store.Query{
		Where: []store.Condition{store.Eq("customer_id", req.CustomerID)},
		Sort:  []store.Sort{store.Desc("payment_date"), store.Desc("id")},
	}
	limit, err := req.Pagination.Apply(&q, "payment_date", true)
	if err != nil {
		return paymentdomain.ListPaymentsResponse{}, err
	}

	items, err := s.repo.Find(ctx, q)
	if err != nil {
		return paymentdomain.ListPaymentsResponse{}, err
	}
	items, pageInfo, err := pagination.BuildCursorPageInfo(items, limit, func(p paymentdomain.Payment) pagination.Cursor {
		return pagination.Cursor{ID: p.ID, At: p.PaymentDate}
	})
	if err != nil {
		return paymentdomain.ListPaymentsResponse{}, err
	}
	return paymentdomain.ListPaymentsResponse{PageInfo: pageInfo, Payments: items}, nil
}
