package service

import (
	"context"
	"errors"
	"iter"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fuelledger/internal/clock"
	"github.com/smallbiznis/fuelledger/internal/config"
	obsmetrics "github.com/smallbiznis/fuelledger/internal/observability/metrics"
	"github.com/smallbiznis/fuelledger/internal/sale/domain"
	shiftdomain "github.com/smallbiznis/fuelledger/internal/shift/domain"
	"github.com/smallbiznis/fuelledger/internal/store"
	"github.com/smallbiznis/fuelledger/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Shifts     shiftdomain.Repository `optional:"true"`
	Clock      clock.Clock            `optional:"true"`
	ObsMetrics *obsmetrics.Metrics    `optional:"true"`
}

type Service struct {
	log                *zap.Logger
	genID              *snowflake.Node
	repo               domain.Repository
	shifts             shiftdomain.Repository
	clock              clock.Clock
	requireActiveShift bool
	metrics            *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		log:                p.Log.Named("sale.service"),
		genID:              p.GenID,
		repo:               p.Repo,
		shifts:             p.Shifts,
		clock:              clk,
		requireActiveShift: p.Cfg.Sales.RequireActiveShift && p.Shifts != nil,
		metrics:            p.ObsMetrics,
	}
}

func (s *Service) RecordSale(ctx context.Context, req domain.RecordSaleRequest) (domain.Sale, error) {
	if err := validateRecordSale(req); err != nil {
		return domain.Sale{}, err
	}

	if s.requireActiveShift {
		if err := s.checkActiveShift(ctx, req); err != nil {
			return domain.Sale{}, err
		}
	}

	now := s.clock.Now()
	transactionDate := now
	if req.TransactionDate != nil && !req.TransactionDate.IsZero() {
		transactionDate = req.TransactionDate.UTC()
	}

	quantity := req.QuantityLiters.Round(3)
	price := req.PricePerLiter.Round(3)
	sale := domain.Sale{
		ID:              s.genID.Generate(),
		StationID:       req.StationID,
		DispenserID:     req.DispenserID,
		EmployeeID:      req.EmployeeID,
		CustomerID:      nonZero(req.CustomerID),
		VehicleID:       nonZero(req.VehicleID),
		FuelTypeID:      req.FuelTypeID,
		QuantityLiters:  quantity,
		PricePerLiter:   price,
		TotalAmount:     quantity.Mul(price).Round(2),
		PaymentMethod:   req.PaymentMethod,
		TransactionDate: transactionDate,
		CreatedAt:       now,
	}

	if err := s.repo.Create(ctx, &sale); err != nil {
		return domain.Sale{}, err
	}

	s.metrics.RecordSale(ctx, string(sale.PaymentMethod))
	s.log.Info("sale recorded",
		zap.String("sale_id", sale.ID.String()),
		zap.String("station_id", sale.StationID.String()),
		zap.String("payment_method", string(sale.PaymentMethod)),
		zap.String("total_amount", sale.TotalAmount.StringFixed(2)),
	)
	return sale, nil
}

func validateRecordSale(req domain.RecordSaleRequest) error {
	switch {
	case req.StationID == 0:
		return domain.ErrInvalidStation
	case req.DispenserID == 0:
		return domain.ErrInvalidDispenser
	case req.EmployeeID == 0:
		return domain.ErrInvalidEmployee
	case req.FuelTypeID == 0:
		return domain.ErrInvalidFuelType
	case !req.QuantityLiters.Round(3).IsPositive():
		return domain.ErrInvalidQuantity
	case req.PricePerLiter.Round(3).IsNegative():
		return domain.ErrInvalidPrice
	case !req.PaymentMethod.Valid():
		return domain.ErrInvalidPaymentMethod
	}
	return nil
}

func (s *Service) checkActiveShift(ctx context.Context, req domain.RecordSaleRequest) error {
	shifts, err := s.shifts.Find(ctx, store.Query{
		Where: []store.Condition{store.Eq("active_employee_id", req.EmployeeID)},
		Limit: 1,
	})
	if err != nil {
		return err
	}
	if len(shifts) == 0 {
		return domain.ErrNoActiveShift
	}
	active := shifts[0]
	if active.StationID != req.StationID || active.DispenserID != req.DispenserID {
		return domain.ErrNoActiveShift.WithMessage("employee's active shift is on another station or dispenser")
	}
	return nil
}

func (s *Service) GetSale(ctx context.Context, id snowflake.ID) (domain.Sale, error) {
	if id == 0 {
		return domain.Sale{}, domain.ErrInvalidID
	}
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Sale{}, domain.ErrNotFound
		}
		return domain.Sale{}, err
	}
	return *item, nil
}

func (s *Service) ListSales(ctx context.Context, req domain.ListSalesRequest) (domain.ListSalesResponse, error) {
	var where []store.Condition
	selectors := 0
	if req.StationID != 0 {
		where = append(where, store.Eq("station_id", req.StationID))
		selectors++
	}
	if req.CustomerID != 0 {
		where = append(where, store.Eq("customer_id", req.CustomerID))
		selectors++
	}
	if req.VehicleID != 0 {
		where = append(where, store.Eq("vehicle_id", req.VehicleID))
		selectors++
	}
	if selectors != 1 {
		return domain.ListSalesResponse{}, domain.ErrInvalidFilter
	}
	if req.From != nil && req.To != nil && req.From.After(*req.To) {
		return domain.ListSalesResponse{}, domain.ErrInvalidWindow
	}
	if req.From != nil {
		where = append(where, store.Gte("transaction_date", req.From.UTC()))
	}
	if req.To != nil {
		where = append(where, store.Lte("transaction_date", req.To.UTC()))
	}

	q := store.Query{
		Where: where,
		Sort:  []store.Sort{store.Desc("transaction_date"), store.Desc("id")},
	}
	limit, err := req.Pagination.Apply(&q, "transaction_date", true)
	if err != nil {
		return domain.ListSalesResponse{}, err
	}

	items, err := s.repo.Find(ctx, q)
	if err != nil {
		return domain.ListSalesResponse{}, err
	}
	items, pageInfo, err := pagination.BuildCursorPageInfo(items, limit, func(sale domain.Sale) pagination.Cursor {
		return pagination.Cursor{ID: sale.ID, At: sale.TransactionDate}
	})
	if err != nil {
		return domain.ListSalesResponse{}, err
	}
	return domain.ListSalesResponse{PageInfo: pageInfo, Sales: items}, nil
}

func (s *Service) SumCashSales(ctx context.Context, filter domain.CashSalesFilter) iter.Seq2[decimal.Decimal, error] {
	return func(yield func(decimal.Decimal, error) bool) {
		if filter.StationID == 0 {
			yield(decimal.Zero, domain.ErrInvalidStation)
			return
		}
		if filter.Start.After(filter.End) {
			yield(decimal.Zero, domain.ErrInvalidWindow)
			return
		}

		sales, err := s.repo.Find(ctx, store.Query{
			Where: cashSalesConditions(filter),
			Sort:  []store.Sort{store.Asc("transaction_date")},
		})
		if err != nil {
			yield(decimal.Zero, err)
			return
		}
		for _, sale := range sales {
			if !yield(sale.TotalAmount, nil) {
				return
			}
		}
	}
}

func (s *Service) TotalCashSales(ctx context.Context, filter domain.CashSalesFilter) (decimal.Decimal, error) {
	total := decimal.Zero
	for amount, err := range s.SumCashSales(ctx, filter) {
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(amount)
	}
	return total, nil
}

func cashSalesConditions(filter domain.CashSalesFilter) []store.Condition {
	where := []store.Condition{
		store.Eq("station_id", filter.StationID),
		store.Eq("payment_method", domain.PaymentMethodCash),
		store.Gte("transaction_date", filter.Start.UTC()),
		store.Lte("transaction_date", filter.End.UTC()),
	}
	if filter.DispenserID != 0 {
		where = append(where, store.Eq("dispenser_id", filter.DispenserID))
	}
	if filter.EmployeeID != 0 {
		where = append(where, store.Eq("employee_id", filter.EmployeeID))
	}
	return where
}

func (s *Service) StampInvoice(ctx context.Context, saleID, invoiceID snowflake.ID) (domain.Sale, error) {
	if saleID == 0 || invoiceID == 0 {
		return domain.Sale{}, domain.ErrInvalidID
	}
	item, err := s.repo.UpdateByID(ctx, saleID,
		store.Update{Set: map[string]any{"invoice_id": invoiceID}},
		store.IsNull("invoice_id"),
	)
	switch {
	case err == nil:
		return *item, nil
	case errors.Is(err, store.ErrNotFound):
		return domain.Sale{}, domain.ErrNotFound
	case errors.Is(err, store.ErrPreconditionFailed):
		return domain.Sale{}, domain.ErrSaleAlreadyInvoiced
	default:
		return domain.Sale{}, err
	}
}

func (s *Service) ReleaseInvoice(ctx context.Context, saleID, invoiceID snowflake.ID) error {
	_, err := s.repo.UpdateByID(ctx, saleID,
		store.Update{Set: map[string]any{"invoice_id": nil}},
		store.Eq("invoice_id", invoiceID),
	)
	if errors.Is(err, store.ErrPreconditionFailed) || errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// cashSalesSource feeds shift reconciliation from the sale records.
type cashSalesSource struct {
	sales domain.Service
}

func NewCashSalesSource(sales domain.Service) shiftdomain.CashSalesSource {
	return cashSalesSource{sales: sales}
}

func (c cashSalesSource) TotalShiftCashSales(ctx context.Context, window shiftdomain.CashSalesWindow) (decimal.Decimal, error) {
	return c.sales.TotalCashSales(ctx, domain.CashSalesFilter{
		StationID:   window.StationID,
		DispenserID: window.DispenserID,
		EmployeeID:  window.EmployeeID,
		Start:       window.Start,
		End:         window.End,
	})
}

func nonZero(id *snowflake.ID) *snowflake.ID {
	if id == nil || *id == 0 {
		return nil
	}
	v := *id
	return &v
}
