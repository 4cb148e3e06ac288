package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/fuelledger/internal/invoice/domain"
	"github.com/smallbiznis/fuelledger/internal/store"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

func (s *Service) ApplyPayment(ctx context.Context, req invoicedomain.ApplyPaymentRequest) (invoicedomain.ApplyPaymentResult, error) {
	if req.InvoiceID == 0 {
		return invoicedomain.ApplyPaymentResult{}, invoicedomain.ErrInvalidID
	}
	if req.PaymentID == 0 {
		return invoicedomain.ApplyPaymentResult{}, invoicedomain.ErrInvalidPaymentID
	}
	if !req.Amount.IsPositive() {
		return invoicedomain.ApplyPaymentResult{}, invoicedomain.ErrInvalidPaymentAmount
	}

	attempts := s.recon.Get().PaymentApplyAttempts
	if attempts <= 0 {
		attempts = 1
	}
	amount := req.Amount.Round(2)

	for attempt := 1; attempt <= attempts; attempt++ {
		current, err := s.GetInvoice(ctx, req.InvoiceID)
		if err != nil {
			return invoicedomain.ApplyPaymentResult{}, err
		}
		if req.CustomerID != 0 && current.CustomerID != req.CustomerID {
			return invoicedomain.ApplyPaymentResult{}, invoicedomain.ErrCustomerMismatch
		}
		if current.HasPayment(req.PaymentID) {
			return invoicedomain.ApplyPaymentResult{Invoice: current, AlreadyApplied: true}, nil
		}

		newPaid := current.PaidAmount.Add(amount)
		if newPaid.GreaterThan(current.TotalAmount) {
			excess := newPaid.Sub(current.TotalAmount)
			return invoicedomain.ApplyPaymentResult{Invoice: current, Excess: &excess}, invoicedomain.ErrWouldOverpay
		}

		now := s.clock.Now()
		applied := append(slices.Clone([]snowflake.ID(current.AppliedPaymentIDs)), req.PaymentID)
		updated, err := s.repo.UpdateByID(ctx, current.ID,
			store.Update{
				Set: map[string]any{
					"paid_amount":         newPaid,
					"status":              invoicedomain.StatusFor(current.TotalAmount, newPaid, current.DueDate, now),
					"applied_payment_ids": datatypes.JSONSlice[snowflake.ID](applied),
					"updated_at":          now,
				},
				Inc: map[string]any{"version": 1},
			},
			store.Eq("version", current.Version),
		)
		if errors.Is(err, store.ErrPreconditionFailed) {
			s.log.Debug("invoice version conflict, retrying",
				zap.String("invoice_id", current.ID.String()),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return invoicedomain.ApplyPaymentResult{}, invoicedomain.ErrNotFound
			}
			return invoicedomain.ApplyPaymentResult{}, err
		}
		return invoicedomain.ApplyPaymentResult{Invoice: *updated}, nil
	}

	return invoicedomain.ApplyPaymentResult{}, invoicedomain.ErrConcurrentModification
}

func (s *Service) MarkOverdue(ctx context.Context, now time.Time, limit int) (int, error) {
	candidates, err := s.repo.Find(ctx, store.Query{
		Where: []store.Condition{
			store.Eq("status", invoicedomain.InvoiceStatusPending),
			store.Lt("due_date", now.UTC()),
		},
		Sort:  []store.Sort{store.Asc("due_date")},
		Limit: limit,
	})
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, inv := range candidates {
		_, err := s.repo.UpdateByID(ctx, inv.ID,
			store.Update{
				Set: map[string]any{
					"status":     invoicedomain.InvoiceStatusOverdue,
					"updated_at": now.UTC(),
				},
				Inc: map[string]any{"version": 1},
			},
			store.Eq("status", invoicedomain.InvoiceStatusPending),
			store.Eq("version", inv.Version),
		)
		switch {
		case err == nil:
			marked++
		case errors.Is(err, store.ErrPreconditionFailed), errors.Is(err, store.ErrNotFound):
			// Paid or changed since the scan.
		default:
			return marked, err
		}
	}
	if marked > 0 {
		s.log.Info("invoices marked overdue", zap.Int("count", marked))
	}
	return marked, nil
}
