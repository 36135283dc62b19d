/*
ledger.go - Closed-shift audit trail with idempotent close

PURPOSE:
  Wraps a Closer so every successful close also lands one entry in the
  reconciliation ledger: expected cash, counted cash, the cashier's reason.
  Managers read the ledger to answer "how often is this cashier's drawer
  off, and by how much?"

INVARIANT:
  At most one ledger entry per shift id.

  The entry is keyed "shift-close:<shift id>". If a finalize is retried
  after the backend already accepted it (timeout on the response, double
  submit from two terminals), the second append reports a duplicate key
  and the close is treated as already done, not as a failure.

  A retry with a different count is not a duplicate. Until the entry lands
  the Closer accepts the recount; after that both the Closer and the
  ledger answer with a generic.ConflictError and the first close stands.

SEE ALSO:
  - generic/ledger.go: Base ledger interface
  - reconciler.go: Calls CloseShift once per finalize attempt
*/
package shift

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/warp/storeops-engine/generic"
)

// IdempotencyKey is the ledger key for closing shift id.
func IdempotencyKey(shiftID string) string {
	return "shift-close:" + shiftID
}

// =============================================================================
// CLOSED SHIFT LEDGER - Closer wrapper with audit entries
// =============================================================================

type ClosedShiftLedger struct {
	inner generic.Ledger
	store generic.Store
	next  Closer
}

// NewClosedShiftLedger records closes in store after next accepts them.
// A nil next only records.
func NewClosedShiftLedger(store generic.Store, next Closer) *ClosedShiftLedger {
	return &ClosedShiftLedger{
		inner: generic.NewLedger(store),
		store: store,
		next:  next,
	}
}

// CloseShift persists r through next, then appends the audit entry. An
// identical replay is success; a differing one is a conflict.
func (l *ClosedShiftLedger) CloseShift(ctx context.Context, r Record) error {
	if l.next != nil {
		if err := l.next.CloseShift(ctx, r); err != nil {
			return err
		}
	}
	err := l.inner.Append(ctx, EntryFor(r))
	if errors.Is(err, generic.ErrDuplicateIdempotencyKey) {
		return nil
	}
	return err
}

// EntryFor converts a closed record to its ledger entry.
func EntryFor(r Record) generic.Entry {
	created := time.Time{}
	if r.EndTime != nil {
		created = *r.EndTime
	}
	return generic.Entry{
		ID:             generic.EntryID(uuid.NewString()),
		EntityID:       generic.EntityID(r.CashierID),
		SubjectID:      generic.SubjectID(r.ID),
		Kind:           generic.EntryShiftClose,
		Expected:       generic.NewAmount(r.ExpectedCash, generic.UnitCash),
		Actual:         generic.NewAmount(r.ActualCash, generic.UnitCash),
		Reason:         r.DiscrepancyReason,
		ReferenceID:    r.SiteID,
		IdempotencyKey: IdempotencyKey(r.ID),
		Metadata: map[string]string{
			"cashier_name": r.CashierName,
			"cash_sales":   r.CashSales.String(),
			"card_sales":   r.CardSales.String(),
			"mobile_sales": r.MobileSales.String(),
		},
		CreatedBy: r.CashierID,
		CreatedAt: created,
	}
}

// =============================================================================
// QUERIES
// =============================================================================

// History returns a cashier's closed-shift entries, oldest first.
func (l *ClosedShiftLedger) History(ctx context.Context, cashierID string) ([]generic.Entry, error) {
	es, err := l.inner.Entries(ctx, generic.EntityID(cashierID))
	if err != nil {
		return nil, err
	}
	out := es[:0]
	for _, e := range es {
		if e.Kind == generic.EntryShiftClose {
			out = append(out, e)
		}
	}
	return out, nil
}

// NetVariance sums a cashier's drawer variances across all closed shifts.
func (l *ClosedShiftLedger) NetVariance(ctx context.Context, cashierID string) (generic.Amount, error) {
	return l.inner.NetVariance(ctx, generic.EntityID(cashierID), generic.UnitCash)
}

// IsClosed reports whether a close for shiftID was already recorded.
func (l *ClosedShiftLedger) IsClosed(ctx context.Context, shiftID string) (bool, error) {
	return l.store.Exists(ctx, IdempotencyKey(shiftID))
}
