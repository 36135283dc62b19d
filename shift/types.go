/*
Package shift reconciles a cashier's drawer at the end of a shift.

PURPOSE:
  A shift opens with a cash float. During the shift the till takes cash,
  card and mobile money payments. At close the cashier counts the drawer
  by denomination; the system compares the count with what should be there
  (float + completed cash sales) and insists on an explanation for any
  difference before the shift is committed.

STATE MACHINE:
  Summary -> CashCount -> Verify -> Closed

  Next / Back move between the first three steps. Closed is reached only
  through a successful Finalize and is terminal.

KEY CONCEPTS:
  Record:      The shift row (Open while trading, Closed after finalize)
  Sale:        A read-only sale attributed to the shift
  Summary:     Sales bucketed by payment method plus expected drawer cash
  CashCount:   Denomination counts (staged until finalize succeeds)
  Reconciler:  The closing wizard for one shift

SEE ALSO:
  - summary.go: Sales aggregation
  - count.go: Denomination counting
  - reconciler.go: The wizard
  - ledger.go: Idempotent closed-shift audit trail
*/
package shift

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SHIFT RECORD
// =============================================================================

type Status string

const (
	StatusOpen   Status = "Open"
	StatusClosed Status = "Closed"
)

// Record is a cashier shift. Sales buckets, expected/actual cash, variance,
// denominations and end time are only meaningful once Closed.
type Record struct {
	ID           string
	SiteID       string
	CashierID    string
	CashierName  string
	StartTime    time.Time
	Status       Status
	OpeningFloat decimal.Decimal

	CashSales         decimal.Decimal
	CardSales         decimal.Decimal
	MobileSales       decimal.Decimal
	ExpectedCash      decimal.Decimal
	ActualCash        decimal.Decimal
	Variance          decimal.Decimal
	Denominations     map[string]int
	DiscrepancyReason string
	EndTime           *time.Time
}

func (r Record) IsOpen() bool { return r.Status == StatusOpen }

// =============================================================================
// SALES
// =============================================================================

type PaymentMethod string

const (
	MethodCash   PaymentMethod = "Cash"
	MethodCard   PaymentMethod = "Card"
	MethodMobile PaymentMethod = "Mobile Money"
)

type SaleStatus string

const (
	SaleCompleted         SaleStatus = "Completed"
	SalePending           SaleStatus = "Pending"
	SaleRefunded          SaleStatus = "Refunded"
	SalePartiallyRefunded SaleStatus = "Partially Refunded"
)

type Sale struct {
	ID          string
	Date        time.Time
	Method      PaymentMethod
	Total       decimal.Decimal
	CashierName string
	Status      SaleStatus
}

// =============================================================================
// WIZARD STEPS
// =============================================================================

type Step string

const (
	StepSummary   Step = "summary"
	StepCashCount Step = "cash_count"
	StepVerify    Step = "verify"
	StepClosed    Step = "closed"
)

var stepOrder = []Step{StepSummary, StepCashCount, StepVerify}

// =============================================================================
// COLLABORATORS
// =============================================================================

// Closer persists a finalized shift. Implementations must be idempotent:
// closing an already-closed shift with the same id succeeds.
type Closer interface {
	CloseShift(ctx context.Context, r Record) error
}

// CloserFunc adapts a function to Closer.
type CloserFunc func(ctx context.Context, r Record) error

func (f CloserFunc) CloseShift(ctx context.Context, r Record) error { return f(ctx, r) }

// Source reads the inputs a close needs.
type Source interface {
	Shift(ctx context.Context, id string) (Record, error)
	ActiveShift(ctx context.Context, cashierID string) (Record, error)
	SalesSince(ctx context.Context, cashierName string, since time.Time) ([]Sale, error)
}
