package shift_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/storeops-engine/generic"
	"github.com/warp/storeops-engine/generic/store"
	"github.com/warp/storeops-engine/shift"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	shiftStart = time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	shiftEnd   = time.Date(2025, time.March, 10, 17, 30, 0, 0, time.UTC)
)

func money(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func openShift() *shift.Record {
	return &shift.Record{
		ID:           "shift-1",
		SiteID:       "site-1",
		CashierID:    "cashier-1",
		CashierName:  "Dana",
		StartTime:    shiftStart,
		Status:       shift.StatusOpen,
		OpeningFloat: money(1000),
	}
}

func sale(offset time.Duration, method shift.PaymentMethod, total int64, status shift.SaleStatus) shift.Sale {
	return shift.Sale{
		Date:        shiftStart.Add(offset),
		Method:      method,
		Total:       money(total),
		CashierName: "Dana",
		Status:      status,
	}
}

// scenarioSales is 4000 in completed cash plus noise that must be ignored.
func scenarioSales() []shift.Sale {
	return []shift.Sale{
		sale(time.Hour, shift.MethodCash, 2500, shift.SaleCompleted),
		sale(2*time.Hour, shift.MethodCash, 1500, shift.SaleCompleted),
		sale(3*time.Hour, shift.MethodCard, 700, shift.SaleCompleted),
		sale(4*time.Hour, shift.MethodMobile, 300, shift.SaleCompleted),
		sale(5*time.Hour, shift.MethodCash, 999, shift.SaleRefunded),
		sale(-time.Hour, shift.MethodCash, 888, shift.SaleCompleted), // before shift start
	}
}

type recordingCloser struct {
	mu      sync.Mutex
	calls   []shift.Record
	err     error
	release chan struct{}
	entered chan struct{}
}

func (c *recordingCloser) CloseShift(_ context.Context, r shift.Record) error {
	if c.entered != nil {
		close(c.entered)
	}
	if c.release != nil {
		<-c.release
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, r)
	return c.err
}

type noticeSink struct {
	mu      sync.Mutex
	notices []generic.Notice
}

func (s *noticeSink) Notify(_ context.Context, n generic.Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, n)
}

func (s *noticeSink) last() generic.Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.notices) == 0 {
		return generic.Notice{}
	}
	return s.notices[len(s.notices)-1]
}

func openWizard(t *testing.T, closer shift.Closer, sink generic.Notifier) *shift.Reconciler {
	t.Helper()
	rc, err := shift.Open(openShift(), scenarioSales(), shift.Deps{
		Closer:   closer,
		Notifier: sink,
		Clock:    generic.FixedClock{T: shiftEnd},
	})
	require.NoError(t, err)
	return rc
}

// countTo5200 stages 26 x 200 and moves to Verify.
func countTo5200(t *testing.T, rc *shift.Reconciler) {
	t.Helper()
	require.NoError(t, rc.Next())
	require.NoError(t, rc.SetCount(money(200), 26))
	require.NoError(t, rc.Next())
}

// =============================================================================
// SUMMARY TESTS
// =============================================================================

func TestSummarize_BucketsCompletedSalesSinceStart(t *testing.T) {
	s := shift.Summarize(*openShift(), scenarioSales())

	assert.True(t, s.Cash.Equal(money(4000)), "cash %s", s.Cash)
	assert.True(t, s.Card.Equal(money(700)))
	assert.True(t, s.Mobile.Equal(money(300)))
	assert.True(t, s.Total.Equal(money(5000)))
	assert.True(t, s.Expected.Equal(money(5000)), "float 1000 + cash 4000")
	assert.Equal(t, 4, s.SaleCount)
}

func TestSummarize_SaleAtExactStartCounts(t *testing.T) {
	s := shift.Summarize(*openShift(), []shift.Sale{sale(0, shift.MethodCash, 10, shift.SaleCompleted)})
	assert.True(t, s.Cash.Equal(money(10)))
}

// =============================================================================
// OPEN TESTS
// =============================================================================

func TestOpen_NoActiveShift(t *testing.T) {
	// GIVEN: No shift, or a closed one
	// THEN: Validation error, no wizard

	closed := openShift()
	closed.Status = shift.StatusClosed

	for _, r := range []*shift.Record{nil, closed} {
		rc, err := shift.Open(r, nil, shift.Deps{Closer: &recordingCloser{}})
		assert.Nil(t, rc)
		assert.True(t, errors.Is(err, generic.ErrValidation))
		assert.Equal(t, generic.CodeNoActiveShift, generic.ValidationCode(err))
	}
}

// =============================================================================
// CASH COUNT TESTS
// =============================================================================

func TestCashCount_TotalAndClamp(t *testing.T) {
	c := shift.NewCashCount(nil)

	require.NoError(t, c.Set(money(200), 3))
	require.NoError(t, c.Set(money(5), 2))
	require.NoError(t, c.Set(money(1), -4))

	assert.True(t, c.Total().Equal(money(610)))
	assert.Equal(t, 0, c.Snapshot()["1"])
	assert.Equal(t, 3, c.Snapshot()["200"])
}

func TestCashCount_UnknownDenomination(t *testing.T) {
	c := shift.NewCashCount(nil)
	err := c.Set(money(20), 1)
	assert.Equal(t, generic.CodeUnknownDenomination, generic.ValidationCode(err))
}

func TestCashCount_CustomDenominations(t *testing.T) {
	c := shift.NewCashCount([]decimal.Decimal{money(20), decimal.RequireFromString("0.5")})
	require.NoError(t, c.Set(decimal.RequireFromString("0.50"), 3))
	assert.True(t, c.Total().Equal(decimal.RequireFromString("1.5")))
}

// =============================================================================
// WIZARD TESTS
// =============================================================================

func TestWizard_Navigation(t *testing.T) {
	rc := openWizard(t, &recordingCloser{}, nil)

	assert.Equal(t, shift.StepSummary, rc.Step())
	assert.Error(t, rc.Back(), "no step before summary")

	require.NoError(t, rc.Next())
	assert.Equal(t, shift.StepCashCount, rc.Step())
	require.NoError(t, rc.Next())
	assert.Equal(t, shift.StepVerify, rc.Step())

	err := rc.Next()
	assert.Equal(t, generic.CodeInvalidStep, generic.ValidationCode(err))

	require.NoError(t, rc.Back())
	assert.Equal(t, shift.StepCashCount, rc.Step())
}

func TestWizard_CountsOnlyOnCashCountStep(t *testing.T) {
	rc := openWizard(t, &recordingCloser{}, nil)

	err := rc.SetCount(money(100), 1)
	assert.Equal(t, generic.CodeInvalidStep, generic.ValidationCode(err))
}

func TestWizard_VarianceRequiresReason(t *testing.T) {
	// GIVEN: Float 1000, cash sales 4000, counted 5200
	// WHEN: On the verify step
	// THEN: Expected 5000, variance +200, finalize blocked until a reason

	closer := &recordingCloser{}
	rc := openWizard(t, closer, nil)
	countTo5200(t, rc)

	v := rc.Variance()
	assert.True(t, v.Expected.Value.Equal(money(5000)))
	assert.True(t, v.Delta.Value.Equal(money(200)))
	assert.False(t, rc.CanFinalize())

	_, err := rc.Finalize(context.Background())
	assert.Equal(t, generic.CodeReasonRequired, generic.ValidationCode(err))
	assert.Empty(t, closer.calls)
	assert.Equal(t, shift.StepVerify, rc.Step())

	require.NoError(t, rc.SetReason("   "))
	assert.False(t, rc.CanFinalize(), "blank reason does not count")

	require.NoError(t, rc.SetReason("Customer overpaid, change not returned"))
	assert.True(t, rc.CanFinalize())
}

func TestWizard_ZeroVariance_FinalizeImmediately(t *testing.T) {
	closer := &recordingCloser{}
	rc := openWizard(t, closer, nil)

	require.NoError(t, rc.Next())
	require.NoError(t, rc.SetCount(money(200), 25))
	require.NoError(t, rc.Next())

	assert.True(t, rc.CanFinalize())
	rec, err := rc.Finalize(context.Background())
	require.NoError(t, err)
	assert.True(t, rec.Variance.IsZero())
}

func TestWizard_Finalize_BuildsClosedRecord(t *testing.T) {
	closer := &recordingCloser{}
	sink := &noticeSink{}
	rc := openWizard(t, closer, sink)
	countTo5200(t, rc)
	require.NoError(t, rc.SetReason("Till float topped up"))

	rec, err := rc.Finalize(context.Background())
	require.NoError(t, err)

	require.Len(t, closer.calls, 1)
	assert.Equal(t, shift.StatusClosed, rec.Status)
	assert.True(t, rec.CashSales.Equal(money(4000)))
	assert.True(t, rec.CardSales.Equal(money(700)))
	assert.True(t, rec.MobileSales.Equal(money(300)))
	assert.True(t, rec.ExpectedCash.Equal(money(5000)))
	assert.True(t, rec.ActualCash.Equal(money(5200)))
	assert.True(t, rec.Variance.Equal(money(200)))
	assert.Equal(t, 26, rec.Denominations["200"])
	assert.Equal(t, "Till float topped up", rec.DiscrepancyReason)
	require.NotNil(t, rec.EndTime)
	assert.Equal(t, shiftEnd, *rec.EndTime)

	assert.Equal(t, shift.StepClosed, rc.Step())
	assert.Equal(t, generic.NoticeSuccess, sink.last().Kind)
	assert.Equal(t, "shift-1", sink.last().Topic)
}

func TestWizard_ClosedIsTerminal(t *testing.T) {
	rc := openWizard(t, &recordingCloser{}, nil)
	countTo5200(t, rc)
	require.NoError(t, rc.SetReason("x"))
	_, err := rc.Finalize(context.Background())
	require.NoError(t, err)

	assert.ErrorIs(t, rc.Back(), generic.ErrTerminal)
	assert.ErrorIs(t, rc.SetReason("y"), generic.ErrTerminal)
	_, err = rc.Finalize(context.Background())
	assert.ErrorIs(t, err, generic.ErrTerminal)
	assert.ErrorIs(t, rc.Cancel(), generic.ErrTerminal)
}

func TestWizard_PersistenceFailure_StaysOnVerify(t *testing.T) {
	// GIVEN: The backend rejects the close
	// THEN: Persistence error, still on Verify, counts and reason intact, retry works

	closer := &recordingCloser{err: errors.New("503 service unavailable")}
	sink := &noticeSink{}
	rc := openWizard(t, closer, sink)
	countTo5200(t, rc)
	require.NoError(t, rc.SetReason("Overpayment"))

	_, err := rc.Finalize(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, generic.ErrPersistence))
	assert.True(t, generic.IsRetryable(err))
	assert.Equal(t, shift.StepVerify, rc.Step())
	assert.True(t, rc.ActualCash().Equal(money(5200)))
	assert.Equal(t, "Overpayment", rc.Reason())
	assert.Equal(t, generic.NoticeAlert, sink.last().Kind)

	closer.err = nil
	_, err = rc.Finalize(context.Background())
	require.NoError(t, err)
	assert.Len(t, closer.calls, 2)
}

func TestWizard_FinalizeInFlight_SecondCallRejected(t *testing.T) {
	// GIVEN: A close that blocks in the backend
	// WHEN: A second finalize arrives
	// THEN: ErrInFlight, and the backend sees exactly one call

	closer := &recordingCloser{release: make(chan struct{}), entered: make(chan struct{})}
	rc := openWizard(t, closer, nil)
	countTo5200(t, rc)
	require.NoError(t, rc.SetReason("x"))

	done := make(chan error, 1)
	go func() {
		_, err := rc.Finalize(context.Background())
		done <- err
	}()
	<-closer.entered

	assert.True(t, rc.InFlight())
	assert.False(t, rc.CanFinalize())
	_, err := rc.Finalize(context.Background())
	assert.ErrorIs(t, err, generic.ErrInFlight)
	assert.ErrorIs(t, rc.Cancel(), generic.ErrInFlight)
	assert.ErrorIs(t, rc.Back(), generic.ErrInFlight)

	close(closer.release)
	require.NoError(t, <-done)
	assert.Len(t, closer.calls, 1)
}

func TestWizard_Cancel_DiscardsWithoutPersisting(t *testing.T) {
	closer := &recordingCloser{}
	rc := openWizard(t, closer, nil)
	countTo5200(t, rc)

	require.NoError(t, rc.Cancel())

	assert.True(t, rc.Cancelled())
	assert.True(t, rc.ActualCash().IsZero())
	assert.Empty(t, closer.calls)
	_, err := rc.Finalize(context.Background())
	assert.ErrorIs(t, err, generic.ErrTerminal)
}

// =============================================================================
// CLOSED SHIFT LEDGER TESTS
// =============================================================================

func TestClosedShiftLedger_IdempotentClose(t *testing.T) {
	// GIVEN: A close that already reached the ledger
	// WHEN: The same shift is closed again
	// THEN: Success, one entry

	ctx := context.Background()
	mem := store.NewMemory()
	ledger := shift.NewClosedShiftLedger(mem, nil)

	end := shiftEnd
	rec := *openShift()
	rec.Status = shift.StatusClosed
	rec.ExpectedCash = money(5000)
	rec.ActualCash = money(5200)
	rec.EndTime = &end

	require.NoError(t, ledger.CloseShift(ctx, rec))
	require.NoError(t, ledger.CloseShift(ctx, rec))

	history, err := ledger.History(ctx, "cashier-1")
	require.NoError(t, err)
	assert.Len(t, history, 1)

	closed, err := ledger.IsClosed(ctx, "shift-1")
	require.NoError(t, err)
	assert.True(t, closed)

	net, err := ledger.NetVariance(ctx, "cashier-1")
	require.NoError(t, err)
	assert.True(t, net.Value.Equal(money(200)))
}

func TestClosedShiftLedger_BackendFailure_NoEntry(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	ledger := shift.NewClosedShiftLedger(mem, shift.CloserFunc(func(context.Context, shift.Record) error {
		return errors.New("down")
	}))

	err := ledger.CloseShift(ctx, *openShift())

	require.Error(t, err)
	closed, _ := ledger.IsClosed(ctx, "shift-1")
	assert.False(t, closed)
}

func TestWizard_WithLedger_EndToEnd(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	ledger := shift.NewClosedShiftLedger(mem, nil)

	rc := openWizard(t, ledger, nil)
	countTo5200(t, rc)
	require.NoError(t, rc.SetReason("Overpayment"))
	_, err := rc.Finalize(ctx)
	require.NoError(t, err)

	history, err := ledger.History(ctx, "cashier-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Overpayment", history[0].Reason)
	assert.Equal(t, shift.IdempotencyKey("shift-1"), history[0].IdempotencyKey)
}

func TestClosedShiftLedger_RecountAfterAudit_Conflicts(t *testing.T) {
	// GIVEN: A close recorded at 5200
	// WHEN: The shift is closed again with 5100 counted
	// THEN: Conflict; the recorded close stands

	ctx := context.Background()
	mem := store.NewMemory()
	ledger := shift.NewClosedShiftLedger(mem, nil)

	end := shiftEnd
	rec := *openShift()
	rec.Status = shift.StatusClosed
	rec.ExpectedCash = money(5000)
	rec.ActualCash = money(5200)
	rec.EndTime = &end
	require.NoError(t, ledger.CloseShift(ctx, rec))

	recount := rec
	recount.ActualCash = money(5100)
	err := ledger.CloseShift(ctx, recount)

	assert.ErrorIs(t, err, generic.ErrConflict)
	history, err := ledger.History(ctx, "cashier-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Actual.Value.Equal(money(5200)))
}

func TestWizard_FinalizeConflict_IsNotRetryable(t *testing.T) {
	// GIVEN: The ledger already holds this shift's close at a different count
	ctx := context.Background()
	mem := store.NewMemory()
	ledger := shift.NewClosedShiftLedger(mem, nil)

	end := shiftEnd
	earlier := *openShift()
	earlier.Status = shift.StatusClosed
	earlier.ExpectedCash = money(5000)
	earlier.ActualCash = money(4000)
	earlier.DiscrepancyReason = "first count"
	earlier.EndTime = &end
	require.NoError(t, ledger.CloseShift(ctx, earlier))

	sink := &noticeSink{}
	rc := openWizard(t, ledger, sink)
	countTo5200(t, rc)
	require.NoError(t, rc.SetReason("Overpayment"))

	// WHEN: Finalizing the new count
	_, err := rc.Finalize(ctx)

	// THEN: A conflict, not a persistence failure to retry
	assert.ErrorIs(t, err, generic.ErrConflict)
	assert.False(t, generic.IsRetryable(err))
	assert.Equal(t, shift.StepVerify, rc.Step())
	assert.False(t, rc.InFlight())
	assert.Equal(t, generic.NoticeAlert, sink.last().Kind)
}
