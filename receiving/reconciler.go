package receiving

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/storeops-engine/generic"
)

// =============================================================================
// SESSION STATE
// =============================================================================

type State string

const (
	StateUnselected State = "unselected"
	StateLoaded     State = "loaded"
	StateScanning   State = "scanning"
	StateConfirmed  State = "confirmed"
	StateCancelled  State = "cancelled"
)

// UnknownProduct is shown for lines whose product is not in the catalog.
const UnknownProduct = "Unknown Product"

// Deps are the collaborators of a receiving session. Products and
// Transfers are required for Confirm.
type Deps struct {
	Catalog   Catalog
	Products  ProductUpdater
	Transfers TransferUpdater
	Refresher Refresher
	// Ledger, when set, records one entry per confirmed line.
	Ledger   generic.Ledger
	Notifier generic.Notifier
	Clock    generic.Clock
	Logger   *zap.Logger
	// Receiver is the identity stamped on product updates.
	Receiver string
	// Topic scopes notifications; defaults to the shipment id.
	Topic string
}

// =============================================================================
// RECONCILER - One receiving session
// =============================================================================

// Reconciler receives one shipment. Line edits are staged; Confirm commits
// them after every external write succeeds, Cancel rolls them back.
type Reconciler struct {
	mu       sync.Mutex
	state    State
	shipment Shipment
	items    *generic.Staged[[]LineItem]
	summary  *Summary

	latch generic.Latch
	deps  Deps
	log   *zap.Logger
	topic string
}

func NewReconciler(deps Deps) *Reconciler {
	if deps.Notifier == nil {
		deps.Notifier = generic.NopNotifier{}
	}
	if deps.Clock == nil {
		deps.Clock = generic.SystemClock{}
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		state: StateUnselected,
		items: generic.NewStaged[[]LineItem](nil, cloneItems),
		deps:  deps,
		log:   log,
		topic: deps.Topic,
	}
}

func cloneItems(items []LineItem) []LineItem {
	return append([]LineItem(nil), items...)
}

// =============================================================================
// LOAD
// =============================================================================

// Load selects a shipment. The eligibility gate runs first; every line
// starts at received 0 and condition Good. Unknown products load with a
// fallback name instead of failing.
func (rc *Reconciler) Load(ctx context.Context, s Shipment, driver *Driver) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	switch rc.state {
	case StateConfirmed, StateCancelled:
		return generic.ErrTerminal
	case StateLoaded, StateScanning:
		return generic.NewValidationError(generic.CodeInvalidStep, "shipment %s already loaded", rc.shipment.ID)
	}

	if e := Evaluate(s, driver); !e.Eligible {
		return generic.NewValidationError(generic.CodeNotEligible, "shipment %s: %s", s.ID, e.Reason)
	}

	items := make([]LineItem, 0, len(s.Items))
	for i, src := range s.Items {
		items = append(items, LineItem{
			Line:        i,
			SKU:         src.SKU,
			ProductID:   src.ProductID,
			Name:        rc.resolveName(ctx, src),
			ExpectedQty: src.Quantity,
			ReceivedQty: 0,
			Condition:   ConditionGood,
		})
	}

	rc.shipment = s
	rc.items = generic.NewStaged(items, cloneItems)
	rc.state = StateLoaded
	if rc.topic == "" {
		rc.topic = s.ID
	}
	rc.log = rc.log.With(zap.String("shipment_id", s.ID))
	rc.log.Debug("shipment loaded", zap.Int("lines", len(items)))
	return nil
}

func (rc *Reconciler) resolveName(ctx context.Context, src SourceLine) string {
	if rc.deps.Catalog != nil {
		if p, ok := rc.deps.Catalog.Lookup(ctx, src.ProductID, src.SKU); ok && p.Name != "" {
			return p.Name
		}
	}
	if src.Name != "" {
		return src.Name
	}
	return UnknownProduct
}

// =============================================================================
// READ ACCESSORS
// =============================================================================

func (rc *Reconciler) State() State {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.state
}

func (rc *Reconciler) Shipment() Shipment {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.shipment
}

// Items returns the staged lines.
func (rc *Reconciler) Items() []LineItem {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.items.Working()
}

func (rc *Reconciler) Discrepancies() Discrepancies {
	return Aggregate(rc.Items())
}

// Summary is available after a successful Confirm.
func (rc *Reconciler) Summary() (Summary, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.summary == nil {
		return Summary{}, false
	}
	return *rc.summary, true
}

func (rc *Reconciler) InFlight() bool { return rc.latch.InFlight() }

// CanConfirm is true while scanning with at least one unit received and no
// confirm outstanding.
func (rc *Reconciler) CanConfirm() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.confirmBlockerLocked() == nil
}

// =============================================================================
// SCANNING AND ADJUSTMENT
// =============================================================================

// Scan matches code against line SKUs (trimmed, case-insensitive, exact)
// and adds one unit. When a SKU is on several lines the first line still
// short of its expected quantity takes the unit; once all are full the
// first matching line does. A miss raises an alert and changes nothing.
func (rc *Reconciler) Scan(ctx context.Context, code string) (LineItem, error) {
	code = strings.TrimSpace(code)

	rc.mu.Lock()
	if err := rc.editableLocked(); err != nil {
		rc.mu.Unlock()
		return LineItem{}, err
	}
	if code == "" {
		rc.mu.Unlock()
		return LineItem{}, generic.NewValidationError(generic.CodeInvalidInput, "empty scan")
	}

	var hit LineItem
	found := false
	rc.items.Stage(func(items *[]LineItem) {
		target := -1
		for i := range *items {
			li := (*items)[i]
			if !matchesSKU(li, code) {
				continue
			}
			if target < 0 {
				target = i
			}
			if li.ReceivedQty < li.ExpectedQty {
				target = i
				break
			}
		}
		if target < 0 {
			return
		}
		(*items)[target].ReceivedQty++
		hit = (*items)[target]
		found = true
	})
	if found {
		rc.state = StateScanning
	}
	rc.mu.Unlock()

	if !found {
		rc.log.Debug("scan miss", zap.String("code", code))
		rc.deps.Notifier.Notify(ctx, generic.Notice{
			Kind: generic.NoticeAlert, Topic: rc.topic,
			Message: fmt.Sprintf("Item %s is not in this shipment.", code),
		})
		return LineItem{}, &generic.NotFoundError{Kind: "sku", Key: code}
	}
	return hit, nil
}

func matchesSKU(li LineItem, sku string) bool {
	return strings.EqualFold(strings.TrimSpace(li.SKU), sku)
}

// LineOf resolves sku to its line. A SKU listed on more than one line
// cannot be edited by SKU and must be addressed by line.
func (rc *Reconciler) LineOf(sku string) (int, error) {
	sku = strings.TrimSpace(sku)

	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.state == StateUnselected {
		return 0, generic.NewValidationError(generic.CodeNoShipmentSelected, "no shipment selected")
	}

	line, n := -1, 0
	for _, li := range rc.items.Working() {
		if matchesSKU(li, sku) {
			if n == 0 {
				line = li.Line
			}
			n++
		}
	}
	switch n {
	case 0:
		return 0, &generic.NotFoundError{Kind: "sku", Key: sku}
	case 1:
		return line, nil
	default:
		return 0, generic.NewValidationError(generic.CodeInvalidInput,
			"sku %s is on %d lines; address the line instead", sku, n)
	}
}

// Increment adds one unit to line.
func (rc *Reconciler) Increment(line int) (LineItem, error) {
	return rc.edit(line, func(li *LineItem) { li.ReceivedQty++ })
}

// Decrement removes one unit from line, never going below zero.
func (rc *Reconciler) Decrement(line int) (LineItem, error) {
	return rc.edit(line, func(li *LineItem) {
		if li.ReceivedQty > 0 {
			li.ReceivedQty--
		}
	})
}

// SetQuantity sets the received quantity, clamped at zero.
func (rc *Reconciler) SetQuantity(line, qty int) (LineItem, error) {
	if qty < 0 {
		qty = 0
	}
	return rc.edit(line, func(li *LineItem) { li.ReceivedQty = qty })
}

func (rc *Reconciler) SetCondition(line int, c Condition) (LineItem, error) {
	switch c {
	case ConditionGood, ConditionDamaged, ConditionShort:
	default:
		return LineItem{}, generic.NewValidationError(generic.CodeInvalidInput, "unknown condition %q", c)
	}
	return rc.edit(line, func(li *LineItem) { li.Condition = c })
}

func (rc *Reconciler) SetNotes(line int, notes string) (LineItem, error) {
	return rc.edit(line, func(li *LineItem) { li.Notes = notes })
}

// ReceiveAll sets every line's received quantity to its expected quantity.
func (rc *Reconciler) ReceiveAll() error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if err := rc.editableLocked(); err != nil {
		return err
	}
	rc.items.Stage(func(items *[]LineItem) {
		for i := range *items {
			(*items)[i].ReceivedQty = (*items)[i].ExpectedQty
		}
	})
	rc.state = StateScanning
	return nil
}

func (rc *Reconciler) edit(line int, fn func(*LineItem)) (LineItem, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if err := rc.editableLocked(); err != nil {
		return LineItem{}, err
	}

	var out LineItem
	found := false
	rc.items.Stage(func(items *[]LineItem) {
		if line < 0 || line >= len(*items) {
			return
		}
		fn(&(*items)[line])
		out = (*items)[line]
		found = true
	})
	if !found {
		return LineItem{}, &generic.NotFoundError{Kind: "line", Key: strconv.Itoa(line)}
	}
	rc.state = StateScanning
	return out, nil
}

func (rc *Reconciler) editableLocked() error {
	switch rc.state {
	case StateUnselected:
		return generic.NewValidationError(generic.CodeNoShipmentSelected, "no shipment selected")
	case StateConfirmed, StateCancelled:
		return generic.ErrTerminal
	}
	if rc.latch.InFlight() {
		return generic.ErrInFlight
	}
	return nil
}

func (rc *Reconciler) confirmBlockerLocked() error {
	if err := rc.editableLocked(); err != nil {
		return err
	}
	if Aggregate(rc.items.Working()).TotalReceived == 0 {
		return generic.NewValidationError(generic.CodeNothingReceived, "at least one unit must be received")
	}
	return nil
}

// =============================================================================
// CANCEL
// =============================================================================

// Cancel discards every staged edit. Nothing is persisted.
func (rc *Reconciler) Cancel() error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.latch.InFlight() {
		return generic.ErrInFlight
	}
	if rc.state == StateConfirmed || rc.state == StateCancelled {
		return generic.ErrTerminal
	}
	rc.items.Rollback()
	rc.state = StateCancelled
	rc.log.Debug("receiving cancelled")
	return nil
}

// =============================================================================
// CONFIRM
// =============================================================================

// Confirm writes every line to the product collaborator, advances the
// origin record to Received, records the receipt in the ledger and asks for
// a refresh. Any failed write leaves staged lines intact for a retry.
// Writes are keyed by shipment and line so a retry repeats them safely,
// even after the lines were edited. The ledger goes last because it cannot
// be rewritten; a receipt it already holds with other quantities fails the
// confirm with a conflict before anything is written.
func (rc *Reconciler) Confirm(ctx context.Context) (Summary, error) {
	rc.mu.Lock()
	if err := rc.confirmBlockerLocked(); err != nil {
		rc.mu.Unlock()
		return Summary{}, err
	}
	if rc.deps.Products == nil || rc.deps.Transfers == nil {
		rc.mu.Unlock()
		return Summary{}, generic.NewValidationError(generic.CodeInvalidInput, "receiving collaborators are not configured")
	}
	if err := rc.latch.Acquire(); err != nil {
		rc.mu.Unlock()
		return Summary{}, err
	}
	shipment := rc.shipment
	items := rc.items.Working()
	rc.mu.Unlock()

	now := rc.deps.Clock.Now()
	if err := rc.persist(ctx, shipment, items, now); err != nil {
		rc.latch.Release()
		rc.log.Warn("confirm receiving failed", zap.Error(err))
		msg := "Failed to confirm receiving. Please try again."
		if errors.Is(err, generic.ErrConflict) {
			msg = fmt.Sprintf("Shipment %s was already received with different quantities.", shipment.OrderRef)
		}
		rc.deps.Notifier.Notify(ctx, generic.Notice{Kind: generic.NoticeAlert, Topic: rc.topic, Message: msg})
		return Summary{}, err
	}

	if rc.deps.Refresher != nil {
		if err := rc.deps.Refresher.Refresh(ctx); err != nil {
			rc.log.Warn("refresh after receiving failed", zap.Error(err))
		}
	}

	counts := Aggregate(items)
	summary := Summary{
		ShipmentID:       shipment.ID,
		OrderRef:         shipment.OrderRef,
		Items:            items,
		Timestamp:        now,
		ReceivedBy:       rc.deps.Receiver,
		HasDiscrepancies: counts.Any(),
		Counts:           counts,
	}

	rc.mu.Lock()
	rc.items.Commit()
	rc.summary = &summary
	rc.state = StateConfirmed
	rc.mu.Unlock()
	rc.latch.Release()

	rc.log.Info("shipment received",
		zap.Int("received", counts.TotalReceived),
		zap.Int("expected", counts.TotalExpected),
		zap.Int("discrepant", counts.DiscrepantCount))
	rc.deps.Notifier.Notify(ctx, confirmNotice(rc.topic, summary))
	return summary, nil
}

func (rc *Reconciler) persist(ctx context.Context, s Shipment, items []LineItem, now time.Time) error {
	var entries []generic.Entry
	if rc.deps.Ledger != nil {
		entries = make([]generic.Entry, 0, len(items))
		for _, li := range items {
			entries = append(entries, LedgerEntry(s, li, rc.deps.Receiver, now))
		}
		if _, err := generic.VerifyReplay(ctx, rc.deps.Ledger, entries); err != nil {
			if errors.Is(err, generic.ErrConflict) {
				return err
			}
			return &generic.PersistenceError{Op: "read receipt", Err: err}
		}
	}

	for _, li := range items {
		patch := ReceiptPatch{
			ProductID:   li.ProductID,
			SKU:         li.SKU,
			ShipmentID:  s.ID,
			Line:        li.Line,
			ReceivedQty: li.ReceivedQty,
			ReceivedAt:  now,
			ReceivedBy:  rc.deps.Receiver,
			NeedsReview: li.IsDamaged(),
			Notes:       li.Notes,
		}
		if err := rc.deps.Products.UpdateProduct(ctx, patch); err != nil {
			return &generic.PersistenceError{Op: fmt.Sprintf("update product line %d (%s)", li.Line, li.SKU), Err: err}
		}
	}

	patch := StatusPatch{ShipmentID: s.ID, Kind: s.Kind, Status: StatusReceived}
	if err := rc.deps.Transfers.AdvanceStatus(ctx, patch); err != nil {
		return &generic.PersistenceError{Op: "advance shipment status", Err: err}
	}

	if rc.deps.Ledger != nil {
		err := rc.deps.Ledger.AppendBatch(ctx, entries)
		switch {
		case err == nil, errors.Is(err, generic.ErrDuplicateIdempotencyKey):
		case errors.Is(err, generic.ErrConflict):
			return err
		default:
			return &generic.PersistenceError{Op: "record receipt", Err: err}
		}
	}
	return nil
}

func confirmNotice(topic string, s Summary) generic.Notice {
	if !s.HasDiscrepancies {
		return generic.Notice{
			Kind: generic.NoticeSuccess, Topic: topic,
			Message: fmt.Sprintf("Shipment %s received: %d units, no discrepancies.", s.OrderRef, s.Counts.TotalReceived),
		}
	}
	var problems []string
	if s.Counts.DamagedCount > 0 {
		problems = append(problems, fmt.Sprintf("%d damaged", s.Counts.DamagedCount))
	}
	if s.Counts.ShortCount > 0 {
		problems = append(problems, fmt.Sprintf("%d short", s.Counts.ShortCount))
	}
	msg := fmt.Sprintf("Shipment %s received with discrepancies", s.OrderRef)
	if len(problems) > 0 {
		msg += ": " + strings.Join(problems, ", ")
	}
	return generic.Notice{Kind: generic.NoticeAlert, Topic: topic, Message: msg + "."}
}
