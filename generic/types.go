/*
Package generic provides the domain-agnostic reconciliation engine.

PURPOSE:
  Cash drawers and inbound shipments are reconciled the same way: the system
  knows what SHOULD be there (expected), a person reports what IS there
  (actual), and any difference must be justified before the result is
  committed. This package holds the pieces both reconcilers share.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (e.g., 5000 cash, 10 items, 650 points)
  - Variance: actual - expected, with the justification rule attached
  - Entry: An immutable ledger record of a committed reconciliation
  - Entity/Subject IDs: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Immutability: Entries are never modified once committed
  2. Precision: Uses decimal.Decimal, currency never goes through float64
  3. Type Safety: Strong typing for IDs prevents mixing cashier/shipment IDs
  4. Auditability: Every entry has reason, reference, and idempotency key

USAGE:
  expected := generic.NewCash(5000)
  actual := generic.NewCash(5200)
  v := generic.Reconcile(expected, actual)
  v.RequiresJustification() // true, delta is +200

SEE ALSO:
  - errors.go: Error taxonomy shared by every reconciler
  - staging.go: Two-phase staged state (stage / commit / rollback)
  - latch.go: At-most-one in-flight submission
  - ledger.go: Append-only record of committed reconciliations
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitCash   Unit = "cash"
	UnitItems  Unit = "items"
	UnitPoints Unit = "points"
)

func NewAmount(value decimal.Decimal, unit Unit) Amount {
	return Amount{Value: value, Unit: unit}
}

func NewAmountFromInt(value int64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromInt(value), Unit: unit}
}

// NewCash is shorthand for whole currency units.
func NewCash(value int64) Amount { return NewAmountFromInt(value, UnitCash) }

// NewItems is shorthand for a unit count.
func NewItems(value int) Amount { return NewAmountFromInt(int64(value), UnitItems) }

// MustParseDecimal parses s, returning zero on malformed input.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Unit: a.Unit} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }
func (a Amount) String() string               { return a.Value.String() + " " + string(a.Unit) }

// =============================================================================
// VARIANCE - Expected vs actual
// =============================================================================

// Variance is the outcome of comparing an expected quantity with an observed
// one. Delta is actual - expected, compared exactly (no epsilon).
type Variance struct {
	Expected Amount
	Actual   Amount
	Delta    Amount
}

// Reconcile compares expected with actual.
func Reconcile(expected, actual Amount) Variance {
	return Variance{
		Expected: expected,
		Actual:   actual,
		Delta:    actual.Sub(expected),
	}
}

func (v Variance) IsBalanced() bool { return v.Delta.IsZero() }
func (v Variance) IsOver() bool     { return v.Delta.IsPositive() }
func (v Variance) IsShort() bool    { return v.Delta.IsNegative() }

// RequiresJustification is true whenever expected and actual disagree.
func (v Variance) RequiresJustification() bool { return !v.IsBalanced() }

// =============================================================================
// IDENTIFIERS
// =============================================================================

// EntityID identifies who a reconciliation belongs to (cashier, site).
type EntityID string

// SubjectID identifies what was reconciled (shift, shipment).
type SubjectID string

type EntryID string

// =============================================================================
// ENTRY - Committed reconciliation record
// =============================================================================

type EntryKind string

const (
	EntryShiftClose  EntryKind = "shift_close"  // Cash drawer closed with counted cash
	EntryReceiptLine EntryKind = "receipt_line" // One line of a confirmed shipment receipt
)

// Entry is the append-only record written when a reconciliation commits.
type Entry struct {
	ID             EntryID
	EntityID       EntityID
	SubjectID      SubjectID
	Kind           EntryKind
	Expected       Amount
	Actual         Amount
	Reason         string
	ReferenceID    string
	IdempotencyKey string
	Metadata       map[string]string

	CreatedBy string
	CreatedAt time.Time
}

// Variance recomputes the entry's variance.
func (e Entry) Variance() Variance { return Reconcile(e.Expected, e.Actual) }
