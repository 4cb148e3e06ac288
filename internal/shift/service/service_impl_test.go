package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fuelledger/internal/clock"
	"github.com/smallbiznis/fuelledger/internal/config"
	"github.com/smallbiznis/fuelledger/internal/errs"
	"github.com/smallbiznis/fuelledger/internal/shift/domain"
	"github.com/smallbiznis/fuelledger/internal/shift/repository"
	"github.com/smallbiznis/fuelledger/internal/store"
	"github.com/smallbiznis/fuelledger/internal/store/storetest"
	"github.com/smallbiznis/fuelledger/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	diesel  = snowflake.ID(11)
	unleads = snowflake.ID(12)
)

type mockCashSales struct {
	mock.Mock
}

func (m *mockCashSales) TotalShiftCashSales(ctx context.Context, window domain.CashSalesWindow) (decimal.Decimal, error) {
	args := m.Called(ctx, window)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type fixture struct {
	svc     *Service
	backend *storetest.FaultBackend
	clock   *clock.FakeClock
	cash    *mockCashSales
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	backend := storetest.Wrap(storetest.NewSQLite(t, domain.Schema()))
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC))
	cash := &mockCashSales{}

	svc := New(Params{
		Log:         zap.NewNop(),
		GenID:       node,
		Repo:        repository.New(backend, time.Second),
		Clock:       clk,
		CashSales:   cash,
		ReconConfig: config.NewStaticReconciliationConfigHolder(config.DefaultReconciliationConfig()),
	}).(*Service)
	return fixture{svc: svc, backend: backend, clock: clk, cash: cash}
}

func startRequest(employee snowflake.ID) domain.StartShiftRequest {
	return domain.StartShiftRequest{
		EmployeeID:  employee,
		StationID:   1,
		DispenserID: 2,
		InitialCash: decimal.NewFromInt(100),
		FuelReadings: []domain.FuelReadingInput{
			{FuelTypeID: diesel, InitialReading: decimal.NewFromInt(1000)},
			{FuelTypeID: unleads, InitialReading: decimal.NewFromInt(500)},
		},
		Notes: " morning ",
	}
}

func TestStartShift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	shift, err := f.svc.StartShift(ctx, startRequest(5))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, shift.Status)
	assert.Equal(t, f.clock.Now(), shift.StartTime)
	assert.Nil(t, shift.EndTime)
	assert.Nil(t, shift.FinalCash)
	assert.Equal(t, "morning", shift.Notes)

	current, err := f.svc.GetCurrentShift(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, shift.ID, current.ID)
	require.Len(t, current.FuelReadings, 2)
	assert.True(t, current.FuelReadings[0].InitialReading.Equal(decimal.NewFromInt(1000)))
	assert.Nil(t, current.FuelReadings[0].FinalReading)
}

func TestStartShiftValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := startRequest(5)
	req.InitialCash = decimal.NewFromInt(-1)
	_, err := f.svc.StartShift(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidCash)

	req = startRequest(5)
	req.FuelReadings[1].FuelTypeID = diesel
	_, err = f.svc.StartShift(ctx, req)
	assert.ErrorIs(t, err, domain.ErrDuplicateFuelType)

	req = startRequest(5)
	req.FuelReadings[0].InitialReading = decimal.NewFromInt(-3)
	_, err = f.svc.StartShift(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidReading)

	req = startRequest(0)
	_, err = f.svc.StartShift(ctx, req)
	assert.ErrorIs(t, err, errs.ErrValidation)

	assert.Equal(t, 0, f.backend.Calls(domain.TableName, storetest.OpInsert))
}

func TestStartShiftTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.StartShift(ctx, startRequest(5))
	require.NoError(t, err)

	_, err = f.svc.StartShift(ctx, startRequest(5))
	assert.ErrorIs(t, err, domain.ErrActiveShiftExists)
	assert.ErrorIs(t, err, errs.ErrConflict)

	// Other employees are unaffected.
	_, err = f.svc.StartShift(ctx, startRequest(6))
	assert.NoError(t, err)
}

func TestStartShiftConcurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.StartShift(ctx, startRequest(9))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrActiveShiftExists):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)

	resp, err := f.svc.ListShifts(ctx, domain.ListShiftsRequest{StationID: 1})
	require.NoError(t, err)
	assert.Len(t, resp.Shifts, 1)
}

type busyLocker struct{ calls int }

func (b *busyLocker) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	b.calls++
	return func() {}, false, nil
}

func TestStartShiftLockBusyFallsThroughToInsert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	busy := &busyLocker{}
	f.svc.locker = busy

	shift, err := f.svc.StartShift(ctx, startRequest(5))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, shift.Status)

	_, err = f.svc.StartShift(ctx, startRequest(5))
	assert.ErrorIs(t, err, domain.ErrActiveShiftExists)
	assert.Equal(t, 2, busy.calls)
	assert.Equal(t, 2, f.backend.Calls(domain.TableName, storetest.OpInsert))
}

func TestStartShiftCancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.StartShift(ctx, startRequest(5))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, f.backend.Calls(domain.TableName, storetest.OpInsert))
}

func TestEndShiftReconciles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	shift, err := f.svc.StartShift(ctx, startRequest(5))
	require.NoError(t, err)
	start := f.clock.Now()
	f.clock.Advance(8 * time.Hour)

	end := f.clock.Now()
	f.cash.On("TotalShiftCashSales", mock.Anything, mock.MatchedBy(func(w domain.CashSalesWindow) bool {
		return w.StationID == 1 && w.DispenserID == 2 && w.EmployeeID == 5 &&
			w.Start.Equal(start) && w.End.Equal(end)
	})).Return(decimal.NewFromInt(400), nil).Once()

	notes := "handover ok"
	res, err := f.svc.EndShift(ctx, domain.EndShiftRequest{
		ShiftID:       shift.ID,
		FinalReadings: map[snowflake.ID]decimal.Decimal{diesel: decimal.RequireFromString("1250.5")},
		CashCollected: decimal.NewFromInt(490),
		Notes:         &notes,
	})
	require.NoError(t, err)
	f.cash.AssertExpectations(t)

	assert.Equal(t, domain.StatusCompleted, res.Shift.Status)
	require.NotNil(t, res.Shift.EndTime)
	assert.True(t, res.Shift.EndTime.Equal(f.clock.Now()))
	require.NotNil(t, res.Shift.FinalCash)
	assert.True(t, res.Shift.FinalCash.Equal(decimal.NewFromInt(490)))
	assert.Equal(t, "handover ok", res.Shift.Notes)

	report := res.Report
	require.Len(t, report.Fuel, 2)
	assert.Equal(t, diesel, report.Fuel[0].FuelTypeID)
	require.NotNil(t, report.Fuel[0].Dispensed)
	assert.True(t, report.Fuel[0].Dispensed.Equal(decimal.RequireFromString("250.5")))
	assert.False(t, report.Fuel[0].Anomaly)
	assert.Nil(t, report.Fuel[1].Dispensed)
	assert.False(t, report.HasAnomalies)

	require.NotNil(t, report.CashVariance)
	assert.True(t, report.CashVariance.Equal(decimal.NewFromInt(-10)))
	assert.Equal(t, domain.VarianceShort, report.VarianceStatus)
	assert.False(t, report.ExpectedCashUnavailable)

	_, err = f.svc.GetCurrentShift(ctx, 5)
	assert.ErrorIs(t, err, domain.ErrNoActiveShift)

	// The employee can start again once the shift is completed.
	_, err = f.svc.StartShift(ctx, startRequest(5))
	assert.NoError(t, err)
}

func TestEndShiftLowerReadingIsAnomaly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	shift, err := f.svc.StartShift(ctx, startRequest(5))
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	f.cash.On("TotalShiftCashSales", mock.Anything, mock.Anything).Return(decimal.Zero, nil)

	res, err := f.svc.EndShift(ctx, domain.EndShiftRequest{
		ShiftID: shift.ID,
		FinalReadings: map[snowflake.ID]decimal.Decimal{
			diesel:  decimal.NewFromInt(20),
			unleads: decimal.NewFromInt(500),
			99:      decimal.NewFromInt(1),
		},
		CashCollected: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, res.Shift.Status)
	assert.True(t, res.Report.HasAnomalies)
	assert.True(t, res.Report.Fuel[0].Anomaly)
	assert.True(t, res.Report.Fuel[0].Dispensed.Equal(decimal.NewFromInt(-980)))
	assert.False(t, res.Report.Fuel[1].Anomaly, "zero delta is not anomalous")
	assert.True(t, res.Report.Fuel[1].Dispensed.IsZero())
	assert.Equal(t, []snowflake.ID{99}, res.Report.IgnoredFuelTypes)
	assert.Equal(t, domain.VarianceBalanced, res.Report.VarianceStatus)

	stored, err := f.svc.GetShift(ctx, shift.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.FuelReadings[0].FinalReading)
	assert.True(t, stored.FuelReadings[0].FinalReading.Equal(decimal.NewFromInt(20)))
}

func TestEndShiftStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cash.On("TotalShiftCashSales", mock.Anything, mock.Anything).Return(decimal.Zero, nil)

	_, err := f.svc.EndShift(ctx, domain.EndShiftRequest{ShiftID: 404})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	shift, err := f.svc.StartShift(ctx, startRequest(5))
	require.NoError(t, err)

	_, err = f.svc.EndShift(ctx, domain.EndShiftRequest{ShiftID: shift.ID, CashCollected: decimal.NewFromInt(100)})
	require.NoError(t, err)

	_, err = f.svc.EndShift(ctx, domain.EndShiftRequest{ShiftID: shift.ID, CashCollected: decimal.NewFromInt(100)})
	assert.ErrorIs(t, err, domain.ErrShiftNotActive)
	assert.ErrorIs(t, err, errs.ErrInvalidState)
}

func TestEndShiftExpectedCashUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	shift, err := f.svc.StartShift(ctx, startRequest(5))
	require.NoError(t, err)
	f.cash.On("TotalShiftCashSales", mock.Anything, mock.Anything).Return(decimal.Zero, store.ErrTimeout)

	res, err := f.svc.EndShift(ctx, domain.EndShiftRequest{ShiftID: shift.ID, CashCollected: decimal.NewFromInt(120)})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Shift.Status)
	assert.True(t, res.Report.ExpectedCashUnavailable)
	assert.Nil(t, res.Report.CashVariance)
	assert.Equal(t, domain.VarianceUnknown, res.Report.VarianceStatus)
}

func TestEndShiftStoreFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	shift, err := f.svc.StartShift(ctx, startRequest(5))
	require.NoError(t, err)

	f.backend.Fail(domain.TableName, storetest.OpUpdate, store.ErrUnavailable)
	_, err = f.svc.EndShift(ctx, domain.EndShiftRequest{ShiftID: shift.ID, CashCollected: decimal.NewFromInt(100)})
	assert.ErrorIs(t, err, errs.ErrStoreUnavailable)

	f.backend.Clear()
	current, err := f.svc.GetCurrentShift(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, shift.ID, current.ID)
}

func TestListShiftsSortedByStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.StartShift(ctx, startRequest(5))
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	second, err := f.svc.StartShift(ctx, startRequest(6))
	require.NoError(t, err)

	resp, err := f.svc.ListShifts(ctx, domain.ListShiftsRequest{StationID: 1})
	require.NoError(t, err)
	require.Len(t, resp.Shifts, 2)
	assert.Equal(t, second.ID, resp.Shifts[0].ID)
	assert.Equal(t, first.ID, resp.Shifts[1].ID)
	assert.False(t, resp.HasMore)

	from := f.clock.Now()
	resp, err = f.svc.ListShifts(ctx, domain.ListShiftsRequest{StationID: 1, From: &from})
	require.NoError(t, err)
	require.Len(t, resp.Shifts, 1)

	_, err = f.svc.ListShifts(ctx, domain.ListShiftsRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidStation)
}

func TestListShiftsWalksPages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.StartShift(ctx, startRequest(5))
	require.NoError(t, err)
	second, err := f.svc.StartShift(ctx, startRequest(6))
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	third, err := f.svc.StartShift(ctx, startRequest(7))
	require.NoError(t, err)

	req := domain.ListShiftsRequest{StationID: 1}
	req.PageSize = 2
	page, err := f.svc.ListShifts(ctx, req)
	require.NoError(t, err)
	require.Len(t, page.Shifts, 2)
	assert.Equal(t, third.ID, page.Shifts[0].ID)
	assert.Equal(t, second.ID, page.Shifts[1].ID)
	require.True(t, page.HasMore)
	require.NotEmpty(t, page.NextPageToken)

	req.PageToken = page.NextPageToken
	page, err = f.svc.ListShifts(ctx, req)
	require.NoError(t, err)
	require.Len(t, page.Shifts, 1)
	assert.Equal(t, first.ID, page.Shifts[0].ID)
	assert.False(t, page.HasMore)
	assert.Empty(t, page.NextPageToken)

	req.PageToken = "not-a-token"
	_, err = f.svc.ListShifts(ctx, req)
	assert.ErrorIs(t, err, pagination.ErrInvalidPageToken)
}

func TestClassifyVariance(t *testing.T) {
	tol := decimal.RequireFromString("0.5")
	assert.Equal(t, domain.VarianceBalanced, ClassifyVariance(decimal.RequireFromString("0.5"), tol))
	assert.Equal(t, domain.VarianceBalanced, ClassifyVariance(decimal.RequireFromString("-0.25"), tol))
	assert.Equal(t, domain.VarianceOver, ClassifyVariance(decimal.NewFromInt(3), tol))
	assert.Equal(t, domain.VarianceShort, ClassifyVariance(decimal.NewFromInt(-3), tol))
}
