package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fuelledger/internal/clock"
	"github.com/smallbiznis/fuelledger/internal/config"
	"github.com/smallbiznis/fuelledger/internal/lock"
	obsmetrics "github.com/smallbiznis/fuelledger/internal/observability/metrics"
	"github.com/smallbiznis/fuelledger/internal/shift/domain"
	"github.com/smallbiznis/fuelledger/internal/store"
	"github.com/smallbiznis/fuelledger/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const startLockTTL = 10 * time.Second

// startLocker is satisfied by *lock.Locker, including a nil one.
type startLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), held bool, err error)
}

type Params struct {
	fx.In

	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        domain.Repository
	Clock       clock.Clock                        `optional:"true"`
	CashSales   domain.CashSalesSource             `optional:"true"`
	ReconConfig *config.ReconciliationConfigHolder `optional:"true"`
	Locker      *lock.Locker                       `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics                `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	clock     clock.Clock
	cashSales domain.CashSalesSource
	recon     *config.ReconciliationConfigHolder
	locker    startLocker
	metrics   *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		log:       p.Log.Named("shift.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		clock:     clk,
		cashSales: p.CashSales,
		recon:     p.ReconConfig,
		locker:    p.Locker,
		metrics:   p.ObsMetrics,
	}
}

func (s *Service) StartShift(ctx context.Context, req domain.StartShiftRequest) (domain.Shift, error) {
	readings, err := validateStart(req)
	if err != nil {
		return domain.Shift{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Shift{}, err
	}

	release, held, lockErr := s.locker.Acquire(ctx, lock.ShiftStartKey(req.EmployeeID), startLockTTL)
	if lockErr != nil {
		s.log.Warn("shift start lock unavailable", zap.Error(lockErr))
	}
	if !held {
		// The active shift index still settles the race.
		s.log.Debug("shift start lock busy",
			zap.String("employee_id", req.EmployeeID.String()),
		)
	}
	defer release()

	now := s.clock.Now()
	employeeID := req.EmployeeID
	shift := domain.Shift{
		ID:               s.genID.Generate(),
		StationID:        req.StationID,
		EmployeeID:       req.EmployeeID,
		DispenserID:      req.DispenserID,
		ActiveEmployeeID: &employeeID,
		StartTime:        now,
		InitialCash:      req.InitialCash.Round(2),
		FuelReadings:     readings,
		Notes:            strings.TrimSpace(req.Notes),
		Status:           domain.StatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// The unique index on active_employee_id makes the check and the insert atomic.
	if err := s.repo.Create(ctx, &shift); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			s.metrics.RecordShiftEvent(ctx, "conflict")
			return domain.Shift{}, domain.ErrActiveShiftExists
		}
		return domain.Shift{}, err
	}

	s.metrics.RecordShiftEvent(ctx, "started")
	s.log.Info("shift started",
		zap.String("shift_id", shift.ID.String()),
		zap.String("employee_id", shift.EmployeeID.String()),
		zap.String("station_id", shift.StationID.String()),
	)
	return shift, nil
}

func validateStart(req domain.StartShiftRequest) ([]domain.FuelReading, error) {
	switch {
	case req.EmployeeID == 0:
		return nil, domain.ErrInvalidEmployee
	case req.StationID == 0:
		return nil, domain.ErrInvalidStation
	case req.DispenserID == 0:
		return nil, domain.ErrInvalidDispenser
	case req.InitialCash.IsNegative():
		return nil, domain.ErrInvalidCash
	}

	seen := make(map[snowflake.ID]struct{}, len(req.FuelReadings))
	readings := make([]domain.FuelReading, 0, len(req.FuelReadings))
	for _, r := range req.FuelReadings {
		if r.FuelTypeID == 0 {
			return nil, domain.ErrInvalidFuelType
		}
		if r.InitialReading.IsNegative() {
			return nil, domain.ErrInvalidReading
		}
		if _, dup := seen[r.FuelTypeID]; dup {
			return nil, domain.ErrDuplicateFuelType
		}
		seen[r.FuelTypeID] = struct{}{}
		readings = append(readings, domain.FuelReading{
			FuelTypeID:     r.FuelTypeID,
			InitialReading: r.InitialReading,
		})
	}
	return readings, nil
}

func (s *Service) EndShift(ctx context.Context, req domain.EndShiftRequest) (domain.EndShiftResult, error) {
	if req.ShiftID == 0 {
		return domain.EndShiftResult{}, domain.ErrInvalidID
	}
	if req.CashCollected.IsNegative() {
		return domain.EndShiftResult{}, domain.ErrInvalidCash
	}
	for fuelTypeID, reading := range req.FinalReadings {
		if fuelTypeID == 0 {
			return domain.EndShiftResult{}, domain.ErrInvalidFuelType
		}
		if reading.IsNegative() {
			return domain.EndShiftResult{}, domain.ErrInvalidReading
		}
	}

	current, err := s.GetShift(ctx, req.ShiftID)
	if err != nil {
		return domain.EndShiftResult{}, err
	}
	if !current.IsActive() {
		return domain.EndShiftResult{}, domain.ErrShiftNotActive
	}
	if err := ctx.Err(); err != nil {
		return domain.EndShiftResult{}, err
	}

	readings, fuel, ignored := applyFinalReadings(current.FuelReadings, req.FinalReadings)

	now := s.clock.Now()
	if now.Before(current.StartTime) {
		now = current.StartTime
	}
	cash := req.CashCollected.Round(2)
	set := map[string]any{
		"status":             domain.StatusCompleted,
		"end_time":           now,
		"final_cash":         cash,
		"fuel_readings":      datatypes.JSONSlice[domain.FuelReading](readings),
		"active_employee_id": nil,
		"updated_at":         now,
	}
	if req.Notes != nil {
		set["notes"] = strings.TrimSpace(*req.Notes)
	}

	updated, err := s.repo.UpdateByID(ctx, current.ID, store.Update{Set: set}, store.Eq("status", domain.StatusActive))
	switch {
	case errors.Is(err, store.ErrPreconditionFailed):
		return domain.EndShiftResult{}, domain.ErrShiftNotActive
	case errors.Is(err, store.ErrNotFound):
		return domain.EndShiftResult{}, domain.ErrNotFound
	case err != nil:
		return domain.EndShiftResult{}, err
	}

	report := domain.Reconciliation{
		Fuel:             fuel,
		IgnoredFuelTypes: ignored,
		InitialCash:      updated.InitialCash,
		CashCollected:    cash,
	}
	for _, f := range fuel {
		if f.Anomaly {
			report.HasAnomalies = true
			s.log.Warn("final meter reading below initial reading",
				zap.String("shift_id", updated.ID.String()),
				zap.String("fuel_type_id", f.FuelTypeID.String()),
			)
		}
	}

	// The shift is completed; the cash query must not be cut short by the caller.
	s.reconcileCash(context.WithoutCancel(ctx), *updated, now, &report)

	s.metrics.RecordShiftEvent(ctx, "ended")
	s.log.Info("shift ended",
		zap.String("shift_id", updated.ID.String()),
		zap.String("variance_status", string(report.VarianceStatus)),
		zap.Bool("anomalies", report.HasAnomalies),
	)
	return domain.EndShiftResult{Shift: *updated, Report: report}, nil
}

// applyFinalReadings returns the stored readings with finals applied, the per
// fuel report and the reported fuel types the shift does not track.
func applyFinalReadings(current []domain.FuelReading, finals map[snowflake.ID]decimal.Decimal) ([]domain.FuelReading, []domain.FuelReconciliation, []snowflake.ID) {
	readings := make([]domain.FuelReading, 0, len(current))
	fuel := make([]domain.FuelReconciliation, 0, len(current))
	tracked := make(map[snowflake.ID]struct{}, len(current))

	for _, r := range current {
		tracked[r.FuelTypeID] = struct{}{}
		entry := domain.FuelReconciliation{
			FuelTypeID:     r.FuelTypeID,
			InitialReading: r.InitialReading,
		}
		if final, ok := finals[r.FuelTypeID]; ok {
			v := final
			r.FinalReading = &v
		}
		if r.FinalReading != nil {
			final := *r.FinalReading
			dispensed := final.Sub(r.InitialReading)
			entry.FinalReading = &final
			entry.Dispensed = &dispensed
			entry.Anomaly = final.LessThan(r.InitialReading)
		}
		readings = append(readings, r)
		fuel = append(fuel, entry)
	}

	var ignored []snowflake.ID
	for fuelTypeID := range finals {
		if _, ok := tracked[fuelTypeID]; !ok {
			ignored = append(ignored, fuelTypeID)
		}
	}
	slices.Sort(ignored)
	return readings, fuel, ignored
}

func (s *Service) reconcileCash(ctx context.Context, shift domain.Shift, end time.Time, report *domain.Reconciliation) {
	report.VarianceTolerance = s.recon.Get().Tolerance()
	report.VarianceStatus = domain.VarianceUnknown

	if s.cashSales == nil {
		report.ExpectedCashUnavailable = true
		return
	}

	expected, err := s.cashSales.TotalShiftCashSales(ctx, domain.CashSalesWindow{
		StationID:   shift.StationID,
		DispenserID: shift.DispenserID,
		EmployeeID:  shift.EmployeeID,
		Start:       shift.StartTime,
		End:         end,
	})
	if err != nil {
		report.ExpectedCashUnavailable = true
		s.metrics.RecordPartialFailure(ctx, "end_shift", "expected_cash_unavailable")
		s.log.Warn("expected cash sales unavailable", zap.String("shift_id", shift.ID.String()), zap.Error(err))
		return
	}

	variance := report.CashCollected.Sub(report.InitialCash).Sub(expected)
	report.ExpectedCashSales = &expected
	report.CashVariance = &variance
	report.VarianceStatus = ClassifyVariance(variance, report.VarianceTolerance)
}

// ClassifyVariance buckets a cash variance against an absolute tolerance.
func ClassifyVariance(variance, tolerance decimal.Decimal) domain.VarianceStatus {
	switch {
	case variance.Abs().LessThanOrEqual(tolerance):
		return domain.VarianceBalanced
	case variance.IsPositive():
		return domain.VarianceOver
	default:
		return domain.VarianceShort
	}
}

func (s *Service) GetShift(ctx context.Context, id snowflake.ID) (domain.Shift, error) {
	if id == 0 {
		return domain.Shift{}, domain.ErrInvalidID
	}
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Shift{}, domain.ErrNotFound
		}
		return domain.Shift{}, err
	}
	return *item, nil
}

func (s *Service) GetCurrentShift(ctx context.Context, employeeID snowflake.ID) (domain.Shift, error) {
	if employeeID == 0 {
		return domain.Shift{}, domain.ErrInvalidEmployee
	}
	items, err := s.repo.Find(ctx, store.Query{
		Where: []store.Condition{store.Eq("active_employee_id", employeeID)},
		Limit: 1,
	})
	if err != nil {
		return domain.Shift{}, err
	}
	if len(items) == 0 {
		return domain.Shift{}, domain.ErrNoActiveShift
	}
	return items[0], nil
}

func (s *Service) ListShifts(ctx context.Context, req domain.ListShiftsRequest) (domain.ListShiftsResponse, error) {
	if req.StationID == 0 {
		return domain.ListShiftsResponse{}, domain.ErrInvalidStation
	}
	if req.From != nil && req.To != nil && req.From.After(*req.To) {
		return domain.ListShiftsResponse{}, domain.ErrInvalidWindow
	}

	where := []store.Condition{store.Eq("station_id", req.StationID)}
	if req.From != nil {
		where = append(where, store.Gte("start_time", req.From.UTC()))
	}
	if req.To != nil {
		where = append(where, store.Lte("start_time", req.To.UTC()))
	}
	q := store.Query{
		Where: where,
		Sort:  []store.Sort{store.Desc("start_time"), store.Desc("id")},
	}
	limit, err := req.Pagination.Apply(&q, "start_time", true)
	if err != nil {
		return domain.ListShiftsResponse{}, err
	}
	items, err := s.repo.Find(ctx, q)
	if err != nil {
		return domain.ListShiftsResponse{}, err
	}

	items, pageInfo, err := pagination.BuildCursorPageInfo(items, limit, func(sh domain.Shift) pagination.Cursor {
		return pagination.Cursor{ID: sh.ID, At: sh.StartTime}
	})
	if err != nil {
		return domain.ListShiftsResponse{}, err
	}
	return domain.ListShiftsResponse{PageInfo: pageInfo, Shifts: items}, nil
}
