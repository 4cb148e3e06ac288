package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fuelledger/internal/clock"
	ledgerdomain "github.com/smallbiznis/fuelledger/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/fuelledger/internal/observability/metrics"
	"github.com/smallbiznis/fuelledger/internal/store"
	"github.com/smallbiznis/fuelledger/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       ledgerdomain.Repository
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	genID      *snowflake.Node
	repo       ledgerdomain.Repository
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CreateEntry(ctx context.Context, req ledgerdomain.CreateEntryRequest) (ledgerdomain.LedgerEntry, error) {
	switch req.SourceType {
	case ledgerdomain.SourceTypeInvoice, ledgerdomain.SourceTypePayment:
	default:
		return ledgerdomain.LedgerEntry{}, ledgerdomain.ErrInvalidSourceType
	}
	if req.SourceID == 0 {
		return ledgerdomain.LedgerEntry{}, ledgerdomain.ErrInvalidSourceID
	}
	if req.CustomerID == 0 {
		return ledgerdomain.LedgerEntry{}, ledgerdomain.ErrInvalidCustomer
	}
	if req.OccurredAt.IsZero() {
		return ledgerdomain.LedgerEntry{}, ledgerdomain.ErrInvalidOccurredAt
	}
	if len(req.Lines) < 2 {
		return ledgerdomain.LedgerEntry{}, ledgerdomain.ErrInvalidEntryLines
	}

	normalized := make([]ledgerdomain.LedgerEntryLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		if strings.TrimSpace(string(line.Account)) == "" {
			return ledgerdomain.LedgerEntry{}, ledgerdomain.ErrInvalidAccount
		}
		direction, err := normalizeDirection(line.Direction)
		if err != nil {
			return ledgerdomain.LedgerEntry{}, err
		}
		if line.Amount.IsNegative() {
			return ledgerdomain.LedgerEntry{}, ledgerdomain.ErrInvalidLineAmount
		}
		normalized = append(normalized, ledgerdomain.LedgerEntryLine{
			Account:   line.Account,
			Direction: direction,
			Amount:    line.Amount.Round(2),
		})
	}

	if err := ledgerdomain.ValidateBalanced(normalized); err != nil {
		return ledgerdomain.LedgerEntry{}, err
	}

	entry := ledgerdomain.LedgerEntry{
		ID:         s.genID.Generate(),
		SourceType: req.SourceType,
		SourceID:   req.SourceID,
		CustomerID: req.CustomerID,
		OccurredAt: req.OccurredAt.UTC(),
		Lines:      datatypes.JSONSlice[ledgerdomain.LedgerEntryLine](normalized),
		CreatedAt:  s.clock.Now(),
	}

	// The unique (source_type, source_id) index keeps posting idempotent.
	if err := s.repo.Create(ctx, &entry); err != nil {
		if !errors.Is(err, store.ErrDuplicate) {
			return ledgerdomain.LedgerEntry{}, err
		}
		existing, findErr := s.findBySource(ctx, req.SourceType, req.SourceID)
		if findErr != nil {
			return ledgerdomain.LedgerEntry{}, findErr
		}
		return existing, nil
	}

	s.obsMetrics.RecordLedgerEntry(ctx, string(entry.SourceType))
	s.log.Debug("ledger entry created",
		zap.String("ledger_entry_id", entry.ID.String()),
		zap.String("source_type", string(entry.SourceType)),
		zap.String("source_id", entry.SourceID.String()),
	)
	return entry, nil
}

func (s *Service) findBySource(ctx context.Context, sourceType ledgerdomain.LedgerSourceType, sourceID snowflake.ID) (ledgerdomain.LedgerEntry, error) {
	items, err := s.repo.Find(ctx, store.Query{
		Where: []store.Condition{store.Eq("source_type", sourceType), store.Eq("source_id", sourceID)},
		Limit: 1,
	})
	if err != nil {
		return ledgerdomain.LedgerEntry{}, err
	}
	if len(items) == 0 {
		return ledgerdomain.LedgerEntry{}, store.ErrNotFound
	}
	return items[0], nil
}

func (s *Service) ListEntries(ctx context.Context, req ledgerdomain.ListEntriesRequest) (ledgerdomain.ListEntriesResponse, error) {
	if req.CustomerID == 0 {
		return ledgerdomain.ListEntriesResponse{}, ledgerdomain.ErrInvalidCustomer
	}
	q := store.Query{
		Where: []store.Condition{store.Eq("customer_id", req.CustomerID)},
		Sort:  []store.Sort{store.Desc("occurred_at"), store.Desc("id")},
	}
	limit, err := req.Pagination.Apply(&q, "occurred_at", true)
	if err != nil {
		return ledgerdomain.ListEntriesResponse{}, err
	}

	items, err := s.repo.Find(ctx, q)
	if err != nil {
		return ledgerdomain.ListEntriesResponse{}, err
	}
	items, pageInfo, err := pagination.BuildCursorPageInfo(items, limit, func(e ledgerdomain.LedgerEntry) pagination.Cursor {
		return pagination.Cursor{ID: e.ID, At: e.OccurredAt}
	})
	if err != nil {
		return ledgerdomain.ListEntriesResponse{}, err
	}
	return ledgerdomain.ListEntriesResponse{PageInfo: pageInfo, Entries: items}, nil
}

func normalizeDirection(direction ledgerdomain.LedgerEntryDirection) (ledgerdomain.LedgerEntryDirection, error) {
	normalized := strings.ToLower(strings.TrimSpace(string(direction)))
	switch normalized {
	case string(ledgerdomain.LedgerEntryDirectionDebit):
		return ledgerdomain.LedgerEntryDirectionDebit, nil
	case string(ledgerdomain.LedgerEntryDirectionCredit):
		return ledgerdomain.LedgerEntryDirectionCredit, nil
	default:
		return "", ledgerdomain.ErrInvalidLineDirection
	}
}
