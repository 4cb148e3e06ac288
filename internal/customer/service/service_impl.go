package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fuelledger/internal/clock"
	"github.com/smallbiznis/fuelledger/internal/config"
	"github.com/smallbiznis/fuelledger/internal/customer/domain"
	"github.com/smallbiznis/fuelledger/internal/store"
	"github.com/smallbiznis/fuelledger/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        domain.Repository
	Clock       clock.Clock
	ReconConfig *config.ReconciliationConfigHolder `optional:"true"`
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
	recon *config.ReconciliationConfigHolder
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		log:   p.Log.Named("customer.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: clk,
		recon: p.ReconConfig,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateCustomerRequest) (domain.Customer, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Customer{}, domain.ErrInvalidName
	}
	if req.CreditLimit.IsNegative() {
		return domain.Customer{}, domain.ErrInvalidCreditLimit
	}

	status := req.Status
	if status == "" {
		status = domain.StatusActive
	}
	if !status.Valid() {
		return domain.Customer{}, domain.ErrInvalidStatus
	}

	terms := strings.TrimSpace(req.PaymentTerms)
	if terms == "" {
		terms = s.recon.Get().DefaultPaymentTerms
	}

	now := s.clock.Now()
	customer := domain.Customer{
		ID:             s.genID.Generate(),
		Name:           name,
		CreditLimit:    req.CreditLimit.Round(2),
		CurrentBalance: decimal.Zero,
		PaymentTerms:   terms,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Create(ctx, &customer); err != nil {
		return domain.Customer{}, err
	}

	s.log.Info("customer created", zap.String("customer_id", customer.ID.String()))
	return customer, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Customer, error) {
	if id == 0 {
		return domain.Customer{}, domain.ErrInvalidID
	}
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Customer{}, mapNotFound(err)
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListCustomerRequest) (domain.ListCustomerResponse, error) {
	q := store.Query{Sort: []store.Sort{store.Desc("created_at"), store.Desc("id")}}
	if req.Status != "" {
		if !req.Status.Valid() {
			return domain.ListCustomerResponse{}, domain.ErrInvalidStatus
		}
		q.Where = append(q.Where, store.Eq("status", req.Status))
	}
	limit, err := req.Pagination.Apply(&q, "created_at", true)
	if err != nil {
		return domain.ListCustomerResponse{}, err
	}

	items, err := s.repo.Find(ctx, q)
	if err != nil {
		return domain.ListCustomerResponse{}, err
	}
	items, pageInfo, err := pagination.BuildCursorPageInfo(items, limit, func(c domain.Customer) pagination.Cursor {
		return pagination.Cursor{ID: c.ID, At: c.CreatedAt}
	})
	if err != nil {
		return domain.ListCustomerResponse{}, err
	}
	return domain.ListCustomerResponse{PageInfo: pageInfo, Customers: items}, nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req domain.UpdateCustomerRequest) (domain.Customer, error) {
	if id == 0 {
		return domain.Customer{}, domain.ErrInvalidID
	}

	set := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Customer{}, domain.ErrInvalidName
		}
		set["name"] = name
	}
	if req.CreditLimit != nil {
		if req.CreditLimit.IsNegative() {
			return domain.Customer{}, domain.ErrInvalidCreditLimit
		}
		set["credit_limit"] = req.CreditLimit.Round(2)
	}
	if req.PaymentTerms != nil {
		terms := strings.TrimSpace(*req.PaymentTerms)
		if terms == "" {
			terms = s.recon.Get().DefaultPaymentTerms
		}
		set["payment_terms"] = terms
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			return domain.Customer{}, domain.ErrInvalidStatus
		}
		set["status"] = *req.Status
	}
	if len(set) == 0 {
		return domain.Customer{}, domain.ErrEmptyUpdate
	}
	set["updated_at"] = s.clock.Now()

	item, err := s.repo.UpdateByID(ctx, id, store.Update{Set: set})
	if err != nil {
		return domain.Customer{}, mapNotFound(err)
	}
	return *item, nil
}

// AdjustBalance adds delta to the balance with a single store-level increment.
func (s *Service) AdjustBalance(ctx context.Context, id snowflake.ID, delta decimal.Decimal) (domain.BalanceAdjustment, error) {
	if id == 0 {
		return domain.BalanceAdjustment{}, domain.ErrInvalidID
	}

	item, err := s.repo.UpdateByID(ctx, id, store.Update{
		Set: map[string]any{"updated_at": s.clock.Now()},
		Inc: map[string]any{"current_balance": delta.Round(2)},
	})
	if err != nil {
		return domain.BalanceAdjustment{}, mapNotFound(err)
	}

	result := domain.BalanceAdjustment{
		Customer:            *item,
		CreditLimitExceeded: item.OverCreditLimit(),
	}
	if result.CreditLimitExceeded {
		s.log.Warn("customer over credit limit",
			zap.String("customer_id", id.String()),
			zap.String("balance", item.CurrentBalance.StringFixed(2)),
			zap.String("credit_limit", item.CreditLimit.StringFixed(2)),
		)
	}
	return result, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain.ErrNotFound
	}
	return err
}
