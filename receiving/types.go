/*
Package receiving reconciles an inbound shipment against what arrived.

PURPOSE:
  A transfer between two sites lists what SHOULD arrive (expected qty per
  SKU). The receiving clerk scans or types what DID arrive and flags the
  condition of each line. The difference is classified (short, damaged,
  over) and committed to the product records in one confirm action.

STATE MACHINE (per shipment):
  Unselected -> Loaded -> Scanning -> Confirmed
                                   -> Cancelled

  Load is gated by an eligibility policy that depends on who is driving:
  an internal driver's load must be confirmed delivered; an external
  carrier's load may be received from the moment it is in transit.

KEY CONCEPTS:
  ShipmentSource: DirectTransfer or JobDerivedTransfer, normalized into
                  one canonical Shipment before any logic runs
  LineItem:       Expected vs received qty plus condition
  Phase:          Ordered lifecycle stage behind many status aliases

SEE ALSO:
  - source.go: Tagged union and Normalize
  - eligibility.go: CanReceive
  - reconciler.go: Load / scan / adjust / confirm / cancel
  - discrepancy.go: Aggregate counts
*/
package receiving

import (
	"context"
	"strings"
	"time"
)

// =============================================================================
// STATUS PHASES
// =============================================================================

// Phase is the ordered lifecycle stage of a shipment.
type Phase int

const (
	PhaseUnknown Phase = iota
	PhaseRequested
	PhasePacked
	PhaseInTransit
	PhaseDelivered
	PhaseReceived
)

func (p Phase) String() string {
	switch p {
	case PhaseRequested:
		return "requested"
	case PhasePacked:
		return "packed"
	case PhaseInTransit:
		return "in_transit"
	case PhaseDelivered:
		return "delivered"
	case PhaseReceived:
		return "received"
	default:
		return "unknown"
	}
}

var phaseAliases = map[string]Phase{
	"requested":  PhaseRequested,
	"pending":    PhaseRequested,
	"approved":   PhaseRequested,
	"packed":     PhasePacked,
	"ready":      PhasePacked,
	"staging":    PhasePacked,
	"picking":    PhasePacked,
	"picked":     PhasePacked,
	"shipped":    PhaseInTransit,
	"dispatched": PhaseInTransit,
	"intransit":  PhaseInTransit,
	"delivered":  PhaseDelivered,
	"arrived":    PhaseDelivered,
	"completed":  PhaseReceived,
	"received":   PhaseReceived,
}

// ParsePhase maps a status alias to its phase. Matching ignores case,
// spaces, hyphens and underscores ("In-Transit" == "in_transit").
// Rejected and unrecognized statuses are PhaseUnknown.
func ParsePhase(status string) Phase {
	return phaseAliases[normalizeStatus(status)]
}

func normalizeStatus(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(s)))
}

// =============================================================================
// DRIVERS
// =============================================================================

type DeliveryMethod string

const (
	DeliveryInternal DeliveryMethod = "Internal"
	DeliveryExternal DeliveryMethod = "External"
	DeliveryUnset    DeliveryMethod = ""
)

type DriverType string

const (
	DriverInternal      DriverType = "internal"
	DriverSubcontracted DriverType = "subcontracted"
	DriverOwnerOperator DriverType = "owner_operator"
)

type Driver struct {
	ID   string
	Name string
	Type DriverType
}

// =============================================================================
// SHIPMENT
// =============================================================================

type Kind string

const (
	KindTransfer Kind = "transfer"
	KindJob      Kind = "job"
)

// SourceLine is a line as the origin record lists it.
type SourceLine struct {
	SKU       string
	ProductID string
	Name      string
	Quantity  int
}

// Shipment is the canonical form every reconciliation works on.
type Shipment struct {
	ID                string
	Kind              Kind
	SourceSiteID      string
	DestSiteID        string
	Status            string
	Items             []SourceLine
	OrderRef          string
	CreatedAt         time.Time
	AssignedDriverID  string
	DeliveryMethod    DeliveryMethod
	DispatchJobStatus string
}

func (s Shipment) Phase() Phase { return ParsePhase(s.Status) }

// =============================================================================
// LINE ITEMS
// =============================================================================

type Condition string

const (
	ConditionGood    Condition = "Good"
	ConditionDamaged Condition = "Damaged"
	ConditionShort   Condition = "Short"
)

func ParseCondition(s string) (Condition, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "good":
		return ConditionGood, true
	case "damaged":
		return ConditionDamaged, true
	case "short":
		return ConditionShort, true
	}
	return "", false
}

// LineItem tracks one line of a shipment being received. Line is the
// line's position on the shipment and identifies it; a SKU may appear on
// more than one line.
type LineItem struct {
	Line        int
	SKU         string
	ProductID   string
	Name        string
	ExpectedQty int
	ReceivedQty int
	Condition   Condition
	Notes       string
}

// IsDiscrepant is true when quantity or condition disagree with the
// shipment.
func (li LineItem) IsDiscrepant() bool {
	return li.ReceivedQty != li.ExpectedQty || li.Condition != ConditionGood
}

func (li LineItem) IsShort() bool   { return li.ReceivedQty < li.ExpectedQty }
func (li LineItem) IsOver() bool    { return li.ReceivedQty > li.ExpectedQty }
func (li LineItem) IsDamaged() bool { return li.Condition == ConditionDamaged }

// =============================================================================
// COLLABORATORS
// =============================================================================

type Product struct {
	ID   string
	SKU  string
	Name string
}

// Catalog resolves product names. A miss is not an error.
type Catalog interface {
	Lookup(ctx context.Context, productID, sku string) (Product, bool)
}

// ReceiptPatch is the per-line product update written on confirm. Line and
// ShipmentID key the receipt.
type ReceiptPatch struct {
	ProductID   string
	SKU         string
	ShipmentID  string
	Line        int
	ReceivedQty int
	ReceivedAt  time.Time
	ReceivedBy  string
	NeedsReview bool
	Notes       string
}

// StatusPatch advances the origin record.
type StatusPatch struct {
	ShipmentID string
	Kind       Kind
	Status     string
}

type ProductUpdater interface {
	UpdateProduct(ctx context.Context, p ReceiptPatch) error
}

type TransferUpdater interface {
	AdvanceStatus(ctx context.Context, p StatusPatch) error
}

// Refresher reloads external transfer/job snapshots after a confirm.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// StatusReceived is written to the origin record on confirm.
const StatusReceived = "Received"
