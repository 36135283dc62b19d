package shift

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/storeops-engine/generic"
)

// =============================================================================
// RECONCILER - The closing wizard for one shift
// =============================================================================

// Deps are the collaborators of a closing wizard. Closer is required.
type Deps struct {
	Closer        Closer
	Notifier      generic.Notifier
	Clock         generic.Clock
	Logger        *zap.Logger
	Denominations []decimal.Decimal
	// Topic scopes notifications; defaults to the shift id.
	Topic string
}

// Reconciler walks one open shift through Summary, CashCount and Verify
// to Closed. Counts are staged and only committed after the Closer accepts
// the record.
type Reconciler struct {
	mu        sync.Mutex
	step      Step
	shift     Record
	summary   Summary
	counts    *generic.Staged[CashCount]
	reason    string
	closed    *Record
	cancelled bool

	latch    generic.Latch
	closer   Closer
	notifier generic.Notifier
	clock    generic.Clock
	log      *zap.Logger
	topic    string
}

// Open starts a wizard for an open shift. A missing or closed shift is a
// validation error and nothing is created.
func Open(r *Record, sales []Sale, deps Deps) (*Reconciler, error) {
	if r == nil || !r.IsOpen() {
		return nil, generic.NewValidationError(generic.CodeNoActiveShift, "no active shift to close")
	}
	if deps.Closer == nil {
		return nil, generic.NewValidationError(generic.CodeInvalidInput, "shift closer is required")
	}

	rc := &Reconciler{
		step:     StepSummary,
		shift:    *r,
		summary:  Summarize(*r, sales),
		counts:   generic.NewStaged(NewCashCount(deps.Denominations), cloneCount),
		closer:   deps.Closer,
		notifier: deps.Notifier,
		clock:    deps.Clock,
		log:      deps.Logger,
		topic:    deps.Topic,
	}
	if rc.notifier == nil {
		rc.notifier = generic.NopNotifier{}
	}
	if rc.clock == nil {
		rc.clock = generic.SystemClock{}
	}
	if rc.log == nil {
		rc.log = zap.NewNop()
	}
	if rc.topic == "" {
		rc.topic = r.ID
	}
	rc.log = rc.log.With(zap.String("shift_id", r.ID), zap.String("cashier_id", r.CashierID))
	rc.log.Debug("close wizard opened", zap.String("expected", rc.summary.Expected.String()))
	return rc, nil
}

// =============================================================================
// READ ACCESSORS
// =============================================================================

func (rc *Reconciler) Shift() Record {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.shift
}

func (rc *Reconciler) Step() Step {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.step
}

func (rc *Reconciler) Summary() Summary {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.summary
}

// Counts returns the staged cash count.
func (rc *Reconciler) Counts() CashCount {
	return rc.counts.Working()
}

func (rc *Reconciler) ActualCash() decimal.Decimal {
	return rc.counts.Working().Total()
}

// Variance is actual - expected over the staged count.
func (rc *Reconciler) Variance() generic.Variance {
	rc.mu.Lock()
	expected := rc.summary.Expected
	rc.mu.Unlock()
	return generic.Reconcile(
		generic.NewAmount(expected, generic.UnitCash),
		generic.NewAmount(rc.ActualCash(), generic.UnitCash),
	)
}

func (rc *Reconciler) Reason() string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.reason
}

func (rc *Reconciler) InFlight() bool { return rc.latch.InFlight() }

// Closed returns the persisted record once finalized.
func (rc *Reconciler) Closed() (Record, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed == nil {
		return Record{}, false
	}
	return *rc.closed, true
}

func (rc *Reconciler) Cancelled() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.cancelled
}

// CanFinalize is true on the Verify step with nothing in flight and either
// a zero variance or a non-blank reason.
func (rc *Reconciler) CanFinalize() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.finalizeBlockerLocked() == nil && !rc.latch.InFlight()
}

// =============================================================================
// NAVIGATION
// =============================================================================

// Next advances one step. Verify has no next step; use Finalize.
func (rc *Reconciler) Next() error {
	return rc.move(+1)
}

// Back returns one step. Summary has no previous step.
func (rc *Reconciler) Back() error {
	return rc.move(-1)
}

func (rc *Reconciler) move(delta int) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if err := rc.mutableLocked(); err != nil {
		return err
	}

	i := stepIndex(rc.step) + delta
	if i < 0 || i >= len(stepOrder) {
		return generic.NewValidationError(generic.CodeInvalidStep, "cannot move from %s", rc.step)
	}
	from := rc.step
	rc.step = stepOrder[i]
	rc.log.Debug("close wizard step", zap.String("from", string(from)), zap.String("to", string(rc.step)))
	return nil
}

func stepIndex(s Step) int {
	for i, st := range stepOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// =============================================================================
// EDITS
// =============================================================================

// SetCount stages n notes of value. Only allowed on the CashCount step.
func (rc *Reconciler) SetCount(value decimal.Decimal, n int) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if err := rc.mutableLocked(); err != nil {
		return err
	}
	if rc.step != StepCashCount {
		return generic.NewValidationError(generic.CodeInvalidStep, "counts are entered on the cash count step")
	}

	var setErr error
	rc.counts.Stage(func(c *CashCount) {
		setErr = c.Set(value, n)
	})
	return setErr
}

// SetReason stages the discrepancy explanation. Allowed on CashCount and
// Verify.
func (rc *Reconciler) SetReason(reason string) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if err := rc.mutableLocked(); err != nil {
		return err
	}
	if rc.step == StepSummary {
		return generic.NewValidationError(generic.CodeInvalidStep, "reason is entered after counting")
	}
	rc.reason = reason
	return nil
}

// Cancel abandons the wizard. Nothing is persisted.
func (rc *Reconciler) Cancel() error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.latch.InFlight() {
		return generic.ErrInFlight
	}
	if rc.step == StepClosed {
		return generic.ErrTerminal
	}
	rc.counts.Rollback()
	rc.reason = ""
	rc.cancelled = true
	rc.log.Debug("close wizard cancelled")
	return nil
}

func (rc *Reconciler) mutableLocked() error {
	if rc.step == StepClosed || rc.cancelled {
		return generic.ErrTerminal
	}
	if rc.latch.InFlight() {
		return generic.ErrInFlight
	}
	return nil
}

func (rc *Reconciler) finalizeBlockerLocked() error {
	if err := rc.mutableLocked(); err != nil {
		return err
	}
	if rc.step != StepVerify {
		return generic.NewValidationError(generic.CodeInvalidStep, "finalize is only available on the verify step")
	}
	actual := rc.counts.Working().Total()
	if !actual.Equal(rc.summary.Expected) && strings.TrimSpace(rc.reason) == "" {
		return generic.NewValidationError(generic.CodeReasonRequired,
			"variance of %s requires a discrepancy reason", actual.Sub(rc.summary.Expected).String())
	}
	return nil
}

// =============================================================================
// FINALIZE
// =============================================================================

// Finalize builds the closed record and hands it to the Closer exactly once
// per attempt. The wizard lock is not held during the call. On failure the
// wizard stays on Verify with counts and reason intact.
func (rc *Reconciler) Finalize(ctx context.Context) (Record, error) {
	rc.mu.Lock()
	if err := rc.finalizeBlockerLocked(); err != nil {
		rc.mu.Unlock()
		return Record{}, err
	}
	if err := rc.latch.Acquire(); err != nil {
		rc.mu.Unlock()
		return Record{}, err
	}
	record := rc.buildRecordLocked()
	rc.mu.Unlock()

	err := rc.closer.CloseShift(ctx, record)
	if err != nil {
		rc.latch.Release()
		rc.log.Warn("close shift failed", zap.Error(err))
		if errors.Is(err, generic.ErrConflict) {
			rc.notifier.Notify(ctx, generic.Notice{
				Kind: generic.NoticeAlert, Topic: rc.topic,
				Message: "This shift was already closed with a different count.",
			})
			return Record{}, err
		}
		rc.notifier.Notify(ctx, generic.Notice{
			Kind: generic.NoticeAlert, Topic: rc.topic,
			Message: "Failed to close shift. Please try again.",
		})
		return Record{}, &generic.PersistenceError{Op: "close shift", Err: err}
	}

	rc.mu.Lock()
	rc.counts.Commit()
	rc.closed = &record
	rc.shift = record
	rc.step = StepClosed
	rc.mu.Unlock()
	rc.latch.Release()

	rc.log.Info("shift closed",
		zap.String("expected", record.ExpectedCash.String()),
		zap.String("actual", record.ActualCash.String()),
		zap.String("variance", record.Variance.String()))
	rc.notifier.Notify(ctx, generic.Notice{
		Kind: generic.NoticeSuccess, Topic: rc.topic,
		Message: "Shift closed successfully. Z-Report saved.",
	})
	return record, nil
}

func (rc *Reconciler) buildRecordLocked() Record {
	count := rc.counts.Working()
	actual := count.Total()
	end := rc.clock.Now()

	r := rc.shift
	r.CashSales = rc.summary.Cash
	r.CardSales = rc.summary.Card
	r.MobileSales = rc.summary.Mobile
	r.ExpectedCash = rc.summary.Expected
	r.ActualCash = actual
	r.Variance = actual.Sub(rc.summary.Expected)
	r.Denominations = count.Snapshot()
	r.DiscrepancyReason = strings.TrimSpace(rc.reason)
	r.Status = StatusClosed
	r.EndTime = &end
	return r
}
