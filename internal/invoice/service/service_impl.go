package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fuelledger/internal/clock"
	"github.com/smallbiznis/fuelledger/internal/config"
	customerdomain "github.com/smallbiznis/fuelledger/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/fuelledger/internal/invoice/domain"
	"github.com/smallbiznis/fuelledger/internal/invoice/format"
	ledgerdomain "github.com/smallbiznis/fuelledger/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/fuelledger/internal/observability/metrics"
	saledomain "github.com/smallbiznis/fuelledger/internal/sale/domain"
	"github.com/smallbiznis/fuelledger/internal/store"
	"github.com/smallbiznis/fuelledger/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const defaultTermsDays = 30

type ServiceParam struct {
	fx.In

	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        invoicedomain.Repository
	Customers   customerdomain.Service
	Sales       saledomain.Service
	LedgerSvc   ledgerdomain.Service               `optional:"true"`
	Clock       clock.Clock                        `optional:"true"`
	ReconConfig *config.ReconciliationConfigHolder `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics                `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	genID     *snowflake.Node
	repo      invoicedomain.Repository
	customers customerdomain.Service
	sales     saledomain.Service
	ledgerSvc ledgerdomain.Service
	clock     clock.Clock
	recon     *config.ReconciliationConfigHolder
	metrics   *obsmetrics.Metrics
}

func NewService(p ServiceParam) invoicedomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		log:       p.Log.Named("invoice.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		customers: p.Customers,
		sales:     p.Sales,
		ledgerSvc: p.LedgerSvc,
		clock:     clk,
		recon:     p.ReconConfig,
		metrics:   p.ObsMetrics,
	}
}

func (s *Service) CreateInvoice(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.CreateInvoiceResult, error) {
	items, total, saleIDs, err := buildItems(req.Items)
	if err != nil {
		return invoicedomain.CreateInvoiceResult{}, err
	}
	if req.CustomerID == 0 {
		return invoicedomain.CreateInvoiceResult{}, invoicedomain.ErrInvalidCustomer
	}
	if !req.IssueDate.IsZero() && !req.DueDate.IsZero() && !req.DueDate.After(req.IssueDate) {
		return invoicedomain.CreateInvoiceResult{}, invoicedomain.ErrInvalidDueDate
	}

	customer, err := s.customers.GetByID(ctx, req.CustomerID)
	if err != nil {
		return invoicedomain.CreateInvoiceResult{}, err
	}
	if customer.Status != customerdomain.StatusActive {
		return invoicedomain.CreateInvoiceResult{}, customerdomain.ErrInactive
	}

	now := s.clock.Now()
	issueDate := req.IssueDate.UTC()
	if req.IssueDate.IsZero() {
		issueDate = now
	}
	dueDate := req.DueDate.UTC()
	if req.DueDate.IsZero() {
		dueDate = issueDate.AddDate(0, 0, termsDays(customer.PaymentTerms))
	}
	if !dueDate.After(issueDate) {
		return invoicedomain.CreateInvoiceResult{}, invoicedomain.ErrInvalidDueDate
	}

	invoiceID := s.genID.Generate()
	number := strings.TrimSpace(req.InvoiceNumber)
	if number == "" {
		number, err = format.FormatInvoiceNumber(format.DefaultInvoiceNumberTemplate, issueDate, invoiceID.Int64())
		if err != nil {
			return invoicedomain.CreateInvoiceResult{}, err
		}
	}

	if err := ctx.Err(); err != nil {
		return invoicedomain.CreateInvoiceResult{}, err
	}

	// From the first stamp on, writes run to completion regardless of the caller.
	writeCtx := context.WithoutCancel(ctx)

	stamped := make([]snowflake.ID, 0, len(saleIDs))
	for _, saleID := range saleIDs {
		sale, err := s.sales.StampInvoice(writeCtx, saleID, invoiceID)
		if err != nil {
			s.releaseSales(writeCtx, stamped, invoiceID)
			return invoicedomain.CreateInvoiceResult{}, err
		}
		stamped = append(stamped, saleID)
		// Sales without a customer may be billed to any account.
		if sale.CustomerID != nil && *sale.CustomerID != customer.ID {
			s.releaseSales(writeCtx, stamped, invoiceID)
			return invoicedomain.CreateInvoiceResult{}, invoicedomain.ErrSaleCustomerMismatch
		}
	}

	invoice := invoicedomain.Invoice{
		ID:                invoiceID,
		CustomerID:        customer.ID,
		InvoiceNumber:     number,
		IssueDate:         issueDate,
		DueDate:           dueDate,
		TotalAmount:       total,
		PaidAmount:        decimal.Zero,
		Status:            invoicedomain.StatusFor(total, decimal.Zero, dueDate, now),
		Notes:             strings.TrimSpace(req.Notes),
		Items:             items,
		AppliedPaymentIDs: datatypes.JSONSlice[snowflake.ID]{},
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Create(writeCtx, &invoice); err != nil {
		s.releaseSales(writeCtx, stamped, invoiceID)
		if errors.Is(err, store.ErrDuplicate) {
			return invoicedomain.CreateInvoiceResult{}, invoicedomain.ErrDuplicateInvoiceNumber
		}
		return invoicedomain.CreateInvoiceResult{}, err
	}

	result := invoicedomain.CreateInvoiceResult{Invoice: invoice}
	adjusted, err := s.customers.AdjustBalance(writeCtx, customer.ID, total)
	if err != nil {
		result.BalanceUpdateFailed = true
		result.BalanceError = err
		s.metrics.RecordPartialFailure(ctx, "create_invoice", "balance_update_failed")
		s.log.Error("customer balance increment failed after invoice creation",
			zap.String("invoice_id", invoice.ID.String()),
			zap.String("customer_id", customer.ID.String()),
			zap.Error(err),
		)
	} else {
		result.CreditLimitExceeded = adjusted.CreditLimitExceeded
	}

	s.postToLedger(writeCtx, ledgerdomain.SourceTypeInvoice, invoice.ID, invoice.CustomerID, issueDate, ledgerdomain.InvoiceLines(total))

	s.metrics.RecordInvoiceCreated(ctx, string(invoice.Status))
	s.log.Info("invoice created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("total_amount", total.StringFixed(2)),
		zap.Int("items", len(items)),
	)
	return result, nil
}

// buildItems validates the items and recomputes every line total.
func buildItems(inputs []invoicedomain.InvoiceItemInput) (datatypes.JSONSlice[invoicedomain.InvoiceItem], decimal.Decimal, []snowflake.ID, error) {
	if len(inputs) == 0 {
		return nil, decimal.Zero, nil, invoicedomain.ErrEmptyItems
	}

	items := make(datatypes.JSONSlice[invoicedomain.InvoiceItem], 0, len(inputs))
	total := decimal.Zero
	var saleIDs []snowflake.ID
	seen := map[snowflake.ID]struct{}{}

	for _, in := range inputs {
		if !in.Quantity.IsPositive() {
			return nil, decimal.Zero, nil, invoicedomain.ErrInvalidQuantity
		}
		if in.UnitPrice.IsNegative() {
			return nil, decimal.Zero, nil, invoicedomain.ErrInvalidUnitPrice
		}
		lineTotal := in.Quantity.Mul(in.UnitPrice).Round(2)
		item := invoicedomain.InvoiceItem{
			Description: strings.TrimSpace(in.Description),
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			TotalPrice:  lineTotal,
		}
		if in.SaleID != nil && *in.SaleID != 0 {
			saleID := *in.SaleID
			if _, dup := seen[saleID]; dup {
				return nil, decimal.Zero, nil, invoicedomain.ErrDuplicateSaleReference
			}
			seen[saleID] = struct{}{}
			item.SaleID = &saleID
			saleIDs = append(saleIDs, saleID)
		}
		items = append(items, item)
		total = total.Add(lineTotal)
	}
	return items, total, saleIDs, nil
}

func (s *Service) releaseSales(ctx context.Context, saleIDs []snowflake.ID, invoiceID snowflake.ID) {
	for _, saleID := range saleIDs {
		if err := s.sales.ReleaseInvoice(ctx, saleID, invoiceID); err != nil {
			s.log.Error("failed to release sale from abandoned invoice",
				zap.String("sale_id", saleID.String()),
				zap.String("invoice_id", invoiceID.String()),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) postToLedger(ctx context.Context, sourceType ledgerdomain.LedgerSourceType, sourceID, customerID snowflake.ID, occurredAt time.Time, lines []ledgerdomain.LedgerEntryLine) {
	if s.ledgerSvc == nil {
		return
	}
	if _, err := s.ledgerSvc.CreateEntry(ctx, ledgerdomain.CreateEntryRequest{
		SourceType: sourceType,
		SourceID:   sourceID,
		CustomerID: customerID,
		OccurredAt: occurredAt,
		Lines:      lines,
	}); err != nil {
		s.metrics.RecordPartialFailure(ctx, "ledger_post", string(sourceType))
		s.log.Warn("ledger posting failed", zap.String("source_id", sourceID.String()), zap.Error(err))
	}
}

// termsDays reads "Net N" style payment terms.
func termsDays(terms string) int {
	fields := strings.Fields(terms)
	if len(fields) == 0 {
		return defaultTermsDays
	}
	days, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil || days <= 0 {
		return defaultTermsDays
	}
	return days
}

func (s *Service) GetInvoice(ctx context.Context, id snowflake.ID) (invoicedomain.Invoice, error) {
	if id == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidID
	}
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return invoicedomain.Invoice{}, invoicedomain.ErrNotFound
		}
		return invoicedomain.Invoice{}, err
	}
	return *item, nil
}

func (s *Service) ListInvoices(ctx context.Context, req invoicedomain.ListInvoicesRequest) (invoicedomain.ListInvoicesResponse, error) {
	if req.CustomerID == 0 {
		return invoicedomain.ListInvoicesResponse{}, invoicedomain.ErrInvalidCustomer
	}
	q := store.Query{
		Where: []store.Condition{store.Eq("customer_id", req.CustomerID)},
		Sort:  []store.Sort{store.Desc("issue_date"), store.Desc("id")},
	}
	limit, err := req.Pagination.Apply(&q, "issue_date", true)
	if err != nil {
		return invoicedomain.ListInvoicesResponse{}, err
	}

	items, err := s.repo.Find(ctx, q)
	if err != nil {
		return invoicedomain.ListInvoicesResponse{}, err
	}
	items, pageInfo, err := pagination.BuildCursorPageInfo(items, limit, func(inv invoicedomain.Invoice) pagination.Cursor {
		return pagination.Cursor{ID: inv.ID, At: inv.IssueDate}
	})
	if err != nil {
		return invoicedomain.ListInvoicesResponse{}, err
	}
	return invoicedomain.ListInvoicesResponse{PageInfo: pageInfo, Invoices: items}, nil
}

func (s *Service) GetInvoiceItemsWithContext(ctx context.Context, invoiceID snowflake.ID) ([]invoicedomain.InvoiceItemWithContext, error) {
	invoice, err := s.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	out := make([]invoicedomain.InvoiceItemWithContext, 0, len(invoice.Items))
	for _, item := range invoice.Items {
		entry := invoicedomain.InvoiceItemWithContext{Item: item}
		if item.SaleID != nil {
			sale, err := s.sales.GetSale(ctx, *item.SaleID)
			switch {
			case err == nil:
				entry.Sale = snapshotOf(sale)
			case errors.Is(err, saledomain.ErrNotFound):
				s.log.Warn("invoice item references a missing sale",
					zap.String("invoice_id", invoice.ID.String()),
					zap.String("sale_id", item.SaleID.String()),
				)
			default:
				return nil, err
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

func snapshotOf(sale saledomain.Sale) *invoicedomain.SaleSnapshot {
	return &invoicedomain.SaleSnapshot{
		SaleID:          sale.ID,
		StationID:       sale.StationID,
		FuelTypeID:      sale.FuelTypeID,
		VehicleID:       sale.VehicleID,
		QuantityLiters:  sale.QuantityLiters,
		PricePerLiter:   sale.PricePerLiter,
		TotalAmount:     sale.TotalAmount,
		PaymentMethod:   string(sale.PaymentMethod),
		TransactionDate: sale.TransactionDate,
	}
}
