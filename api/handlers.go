/*
handlers.go - HTTP API handlers for the store operations engine

PURPOSE:
  Exposes the shift close wizard, the receiving wizard and the incentive
  calculations via REST. Handles HTTP request/response, JSON serialization,
  and delegates to the domain packages.

ENDPOINTS:
  Shifts:
    POST   /api/shifts                     Open a shift
    GET    /api/shifts/{id}                Shift record
    POST   /api/shifts/{id}/sales          Post a till sale
    GET    /api/cashiers/{id}/shift        Cashier's open shift
    GET    /api/cashiers/{id}/shifts       Cashier's shift history
    POST   /api/shifts/{id}/close          Start the close wizard
    GET    /api/shifts/{id}/zreport.xlsx   Z-report of a closed shift

  Close wizard (/api/close-sessions/{sid}):
    GET / POST next / POST back / PUT counts / PUT reason /
    POST finalize / DELETE

  Receiving:
    GET    /api/shipments?site=            Shipments receivable now
    POST   /api/shipments/{id}/receive     Start the receiving wizard

  Receiving wizard (/api/receiving/{sid}):
    GET / POST scan / PUT items/{sku} / PUT lines/{line} /
    POST receive-all / POST confirm / DELETE / GET report.xlsx

  Incentives:
    GET    /api/incentives/workers/{id}
    POST   /api/incentives/workers/{id}/jobs   Award points for a job
    GET    /api/incentives/leaderboard?metric=&site=
    GET    /api/incentives/bonus?points=&table=
    GET    /api/incentives/stores/{site}/share?role=&metric=

  Audit:
    GET    /api/ledger/{entity}?from=&to=
    GET    /api/notifications?session=

ARCHITECTURE:
  Handler holds the store, the active incentive program, the notification
  hub and two session registries. A wizard session is a reconciler kept in
  memory between requests; its id is also its notification topic.

ERROR HANDLING:
  writeDomainError maps the generic error taxonomy to HTTP status:
  - 400: Malformed input (invalid_input)
  - 404: Unknown record, SKU or session
  - 409: Submission in flight, session already finished, or a retry
         that conflicts with what the ledger recorded
  - 422: Any other failed precondition
  - 502: Backend write failed; the wizard keeps its staged state

SECURITY NOTE:
  No authentication. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - sessions.go: Session registry
  - scenarios.go: Demo data loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/storeops-engine/generic"
	"github.com/warp/storeops-engine/incentive"
	"github.com/warp/storeops-engine/notify"
	"github.com/warp/storeops-engine/receiving"
	"github.com/warp/storeops-engine/report"
	"github.com/warp/storeops-engine/shift"
	"github.com/warp/storeops-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Options configure a Handler. Zero values select defaults.
type Options struct {
	Program       *incentive.Program
	Hub           *notify.Hub
	Metrics       *Metrics
	Logger        *zap.Logger
	Clock         generic.Clock
	Denominations []decimal.Decimal
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	store   *sqlite.Store
	closer  *shift.ClosedShiftLedger
	ledger  *generic.DefaultLedger
	hub     *notify.Hub
	metrics *Metrics
	log     *zap.Logger
	clock   generic.Clock
	denoms  []decimal.Decimal

	validate *validator.Validate
	closes   *Registry[*closeSession]
	receipts *Registry[*receivingSession]

	mu              sync.RWMutex
	program         incentive.Program
	currentScenario string

	// awards serializes worker read-modify-write on job completion.
	awards sync.Mutex
}

func NewHandler(store *sqlite.Store, opts Options) *Handler {
	h := &Handler{
		store:    store,
		closer:   shift.NewClosedShiftLedger(store, store),
		ledger:   generic.NewLedger(store),
		hub:      opts.Hub,
		metrics:  opts.Metrics,
		log:      opts.Logger,
		clock:    opts.Clock,
		denoms:   opts.Denominations,
		validate: validator.New(),
		program:  incentive.DefaultProgram(),
	}
	if opts.Program != nil {
		h.program = *opts.Program
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	if h.clock == nil {
		h.clock = generic.SystemClock{}
	}
	if h.hub == nil {
		h.hub = notify.NewHub(h.log, notify.Options{Clock: h.clock})
	}
	if h.metrics == nil {
		h.metrics = NewMetrics()
	}
	h.closes = NewRegistry[*closeSession](h.clock)
	h.receipts = NewRegistry[*receivingSession](h.clock)
	return h
}

// Program returns the incentive program in use.
func (h *Handler) Program() incentive.Program {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.program
}

// SetProgram swaps the incentive program.
func (h *Handler) SetProgram(p incentive.Program) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.program = p
}

func (h *Handler) refreshSessionGauges() {
	h.metrics.setActive("close", h.closes.Len())
	h.metrics.setActive("receiving", h.receipts.Len())
}

// =============================================================================
// SHIFT HANDLERS
// =============================================================================

// OpenShift starts a shift for a cashier with no shift open.
func (h *Handler) OpenShift(w http.ResponseWriter, r *http.Request) {
	var req OpenShiftRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if req.OpeningFloat.IsNegative() {
		writeDomainError(w, generic.NewValidationError(generic.CodeInvalidInput, "opening_float must not be negative"))
		return
	}
	if req.ID == "" {
		req.ID = NewID()
	}

	rec := shift.Record{
		ID:           req.ID,
		SiteID:       req.SiteID,
		CashierID:    req.CashierID,
		CashierName:  req.CashierName,
		StartTime:    h.clock.Now(),
		Status:       shift.StatusOpen,
		OpeningFloat: req.OpeningFloat,
	}
	if err := h.store.OpenShift(r.Context(), rec); err != nil {
		writeDomainError(w, err)
		return
	}
	h.log.Info("shift opened", zap.String("shift_id", rec.ID), zap.String("cashier_id", rec.CashierID))
	writeJSON(w, http.StatusCreated, toShiftDTO(rec))
}

// GetShift returns one shift.
func (h *Handler) GetShift(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.Shift(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShiftDTO(rec))
}

// GetCashierShift returns the cashier's open shift.
func (h *Handler) GetCashierShift(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.ActiveShift(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShiftDTO(rec))
}

// ListCashierShifts returns a cashier's shifts, newest first.
func (h *Handler) ListCashierShifts(w http.ResponseWriter, r *http.Request) {
	recs, err := h.store.CashierShifts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list shifts", err)
		return
	}
	dtos := make([]ShiftDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = toShiftDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecordSale posts a till sale to an open shift.
func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req RecordSaleRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	ctx := r.Context()
	rec, err := h.store.Shift(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !rec.IsOpen() {
		writeDomainError(w, generic.NewValidationError(generic.CodeNoActiveShift, "shift %s is closed", rec.ID))
		return
	}

	sale := shift.Sale{
		ID:          req.ID,
		Date:        h.clock.Now(),
		Method:      shift.PaymentMethod(req.Method),
		Total:       req.Total,
		CashierName: rec.CashierName,
		Status:      shift.SaleCompleted,
	}
	if sale.ID == "" {
		sale.ID = NewID()
	}
	if req.Date != nil {
		sale.Date = *req.Date
	}
	if req.Status != "" {
		sale.Status = shift.SaleStatus(req.Status)
	}
	if err := validateSale(sale); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.store.RecordSale(ctx, rec.SiteID, sale); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": sale.ID})
}

func validateSale(s shift.Sale) error {
	switch s.Method {
	case shift.MethodCash, shift.MethodCard, shift.MethodMobile:
	default:
		return generic.NewValidationError(generic.CodeInvalidInput, "unknown payment method %q", s.Method)
	}
	switch s.Status {
	case shift.SaleCompleted, shift.SalePending, shift.SaleRefunded, shift.SalePartiallyRefunded:
	default:
		return generic.NewValidationError(generic.CodeInvalidInput, "unknown sale status %q", s.Status)
	}
	if s.Total.IsNegative() {
		return generic.NewValidationError(generic.CodeInvalidInput, "total must not be negative")
	}
	return nil
}

// ZReport streams the Z-report of a closed shift.
func (h *Handler) ZReport(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.Shift(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if rec.IsOpen() {
		writeDomainError(w, generic.NewValidationError(generic.CodeInvalidStep, "shift %s is still open", rec.ID))
		return
	}
	var buf bytes.Buffer
	if err := report.ZReport(&buf, rec); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build Z-report", err)
		return
	}
	writeFile(w, report.ZReportFilename(rec), buf.Bytes())
}

// =============================================================================
// CLOSE WIZARD HANDLERS
// =============================================================================

// StartClose opens the close wizard for a shift. A live wizard for the same
// shift is returned instead of starting a second one.
func (h *Handler) StartClose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shiftID := chi.URLParam(r, "id")

	_, s, created, err := h.closes.FindOrPut(func(s *closeSession) bool {
		return s.ShiftID == shiftID && !s.Cancelled() && s.Step() != shift.StepClosed
	}, func() (string, *closeSession, error) {
		rec, err := h.store.Shift(ctx, shiftID)
		if err != nil {
			return "", nil, err
		}
		var sales []shift.Sale
		if rec.IsOpen() {
			if sales, err = h.store.SalesSince(ctx, rec.CashierName, rec.StartTime); err != nil {
				return "", nil, err
			}
		}

		sid := NewID()
		rc, err := shift.Open(&rec, sales, shift.Deps{
			Closer:        h.closer,
			Notifier:      h.hub,
			Clock:         h.clock,
			Logger:        h.log,
			Denominations: h.denoms,
			Topic:         sid,
		})
		if err != nil {
			return "", nil, err
		}
		return sid, &closeSession{ID: sid, ShiftID: rec.ID, Reconciler: rc}, nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !created {
		writeJSON(w, http.StatusOK, toCloseSessionDTO(s))
		return
	}
	h.refreshSessionGauges()
	writeJSON(w, http.StatusCreated, toCloseSessionDTO(s))
}

func (h *Handler) closeSessionFor(w http.ResponseWriter, r *http.Request) (*closeSession, bool) {
	sid := chi.URLParam(r, "sid")
	s, ok := h.closes.Get(sid)
	if !ok {
		writeDomainError(w, &generic.NotFoundError{Kind: "close session", Key: sid})
	}
	return s, ok
}

// GetCloseSession returns the wizard state.
func (h *Handler) GetCloseSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.closeSessionFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toCloseSessionDTO(s))
}

// CloseNext advances the wizard one step.
func (h *Handler) CloseNext(w http.ResponseWriter, r *http.Request) {
	h.closeAction(w, r, func(s *closeSession) error { return s.Next() })
}

// CloseBack goes back one step.
func (h *Handler) CloseBack(w http.ResponseWriter, r *http.Request) {
	h.closeAction(w, r, func(s *closeSession) error { return s.Back() })
}

// SetCounts stages the count for one denomination.
func (h *Handler) SetCounts(w http.ResponseWriter, r *http.Request) {
	var req SetCountRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	h.closeAction(w, r, func(s *closeSession) error { return s.SetCount(req.Denomination, req.Count) })
}

// SetReason stages the discrepancy reason.
func (h *Handler) SetReason(w http.ResponseWriter, r *http.Request) {
	var req SetReasonRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	h.closeAction(w, r, func(s *closeSession) error { return s.SetReason(req.Reason) })
}

// Finalize closes the shift.
func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	h.closeAction(w, r, func(s *closeSession) error {
		rec, err := s.Finalize(r.Context())
		if err != nil {
			return err
		}
		h.metrics.shiftClosed(rec.Variance)
		return nil
	})
}

// CancelClose abandons the wizard.
func (h *Handler) CancelClose(w http.ResponseWriter, r *http.Request) {
	s, ok := h.closeSessionFor(w, r)
	if !ok {
		return
	}
	if err := s.Cancel(); err != nil {
		writeDomainError(w, err)
		return
	}
	h.closes.Remove(s.ID)
	h.refreshSessionGauges()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) closeAction(w http.ResponseWriter, r *http.Request, fn func(*closeSession) error) {
	s, ok := h.closeSessionFor(w, r)
	if !ok {
		return
	}
	if err := fn(s); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCloseSessionDTO(s))
}

// =============================================================================
// RECEIVING HANDLERS
// =============================================================================

// ListShipments returns the shipments that may be received now, optionally
// for one destination site.
func (h *Handler) ListShipments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	all, err := h.store.Shipments(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list shipments", err)
		return
	}
	drivers, err := h.store.Drivers(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list drivers", err)
		return
	}

	eligible := receiving.Eligible(all, drivers, r.URL.Query().Get("site"))
	dtos := make([]ShipmentDTO, len(eligible))
	for i, s := range eligible {
		dtos[i] = toShipmentDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// StartReceiving loads a shipment into a new receiving wizard. A live
// wizard for the same shipment is returned instead of starting a second.
func (h *Handler) StartReceiving(w http.ResponseWriter, r *http.Request) {
	var req StartReceivingRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	ctx := r.Context()
	shipmentID := chi.URLParam(r, "id")

	_, s, created, err := h.receipts.FindOrPut(func(s *receivingSession) bool {
		st := s.State()
		return s.ShipmentID == shipmentID && st != receiving.StateConfirmed && st != receiving.StateCancelled
	}, func() (string, *receivingSession, error) {
		sh, err := h.store.Shipment(ctx, shipmentID)
		if err != nil {
			return "", nil, err
		}
		var driver *receiving.Driver
		if sh.AssignedDriverID != "" {
			if driver, err = h.store.Driver(ctx, sh.AssignedDriverID); err != nil {
				return "", nil, err
			}
		}

		sid := NewID()
		rc := receiving.NewReconciler(receiving.Deps{
			Catalog:   h.store,
			Products:  h.store,
			Transfers: h.store,
			Refresher: h.store,
			Ledger:    h.ledger,
			Notifier:  h.hub,
			Clock:     h.clock,
			Logger:    h.log,
			Receiver:  req.ReceivedBy,
			Topic:     sid,
		})
		if err := rc.Load(ctx, sh, driver); err != nil {
			return "", nil, err
		}
		return sid, &receivingSession{ID: sid, ShipmentID: sh.ID, Reconciler: rc}, nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !created {
		writeJSON(w, http.StatusOK, toReceivingSessionDTO(s))
		return
	}
	h.refreshSessionGauges()
	writeJSON(w, http.StatusCreated, toReceivingSessionDTO(s))
}

func (h *Handler) receivingSessionFor(w http.ResponseWriter, r *http.Request) (*receivingSession, bool) {
	sid := chi.URLParam(r, "sid")
	s, ok := h.receipts.Get(sid)
	if !ok {
		writeDomainError(w, &generic.NotFoundError{Kind: "receiving session", Key: sid})
	}
	return s, ok
}

// GetReceiving returns the wizard state.
func (h *Handler) GetReceiving(w http.ResponseWriter, r *http.Request) {
	s, ok := h.receivingSessionFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toReceivingSessionDTO(s))
}

// Scan counts one unit of the scanned SKU.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	h.receivingAction(w, r, func(s *receivingSession) error {
		_, err := s.Scan(r.Context(), req.Code)
		return err
	})
}

// UpdateItem edits the line carrying a SKU. A SKU listed on several lines
// is rejected; those lines are edited through UpdateLine.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req UpdateItemRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	sku := chi.URLParam(r, "sku")
	h.receivingAction(w, r, func(s *receivingSession) error {
		line, err := s.LineOf(sku)
		if err != nil {
			return err
		}
		return applyItemUpdate(s, line, req)
	})
}

// UpdateLine edits one line by its position on the shipment.
func (h *Handler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	var req UpdateItemRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	line, err := strconv.Atoi(chi.URLParam(r, "line"))
	if err != nil {
		writeDomainError(w, generic.NewValidationError(generic.CodeInvalidInput, "line must be a number"))
		return
	}
	h.receivingAction(w, r, func(s *receivingSession) error {
		return applyItemUpdate(s, line, req)
	})
}

func applyItemUpdate(s *receivingSession, line int, req UpdateItemRequest) error {
	if req.Quantity != nil {
		if _, err := s.SetQuantity(line, *req.Quantity); err != nil {
			return err
		}
	}
	if req.Delta != nil {
		var err error
		if *req.Delta > 0 {
			_, err = s.Increment(line)
		} else {
			_, err = s.Decrement(line)
		}
		if err != nil {
			return err
		}
	}
	if req.Condition != nil {
		c, ok := receiving.ParseCondition(*req.Condition)
		if !ok {
			return generic.NewValidationError(generic.CodeInvalidInput, "unknown condition %q", *req.Condition)
		}
		if _, err := s.SetCondition(line, c); err != nil {
			return err
		}
	}
	if req.Notes != nil {
		if _, err := s.SetNotes(line, *req.Notes); err != nil {
			return err
		}
	}
	return nil
}

// ReceiveAll sets every line to its expected quantity.
func (h *Handler) ReceiveAll(w http.ResponseWriter, r *http.Request) {
	h.receivingAction(w, r, func(s *receivingSession) error { return s.ReceiveAll() })
}

// Confirm commits the receipt.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.receivingAction(w, r, func(s *receivingSession) error {
		sum, err := s.Confirm(r.Context())
		if err != nil {
			return err
		}
		h.metrics.receiptConfirmed(sum.HasDiscrepancies, sum.Counts.TotalReceived)
		return nil
	})
}

// CancelReceiving abandons the wizard.
func (h *Handler) CancelReceiving(w http.ResponseWriter, r *http.Request) {
	s, ok := h.receivingSessionFor(w, r)
	if !ok {
		return
	}
	if err := s.Cancel(); err != nil {
		writeDomainError(w, err)
		return
	}
	h.receipts.Remove(s.ID)
	h.refreshSessionGauges()
	w.WriteHeader(http.StatusNoContent)
}

// ReceivingReport streams the receiving report once confirmed.
func (h *Handler) ReceivingReport(w http.ResponseWriter, r *http.Request) {
	s, ok := h.receivingSessionFor(w, r)
	if !ok {
		return
	}
	sum, done := s.Summary()
	if !done {
		writeDomainError(w, generic.NewValidationError(generic.CodeInvalidStep, "shipment %s is not confirmed", s.ShipmentID))
		return
	}
	var buf bytes.Buffer
	if err := report.ReceivingReport(&buf, sum); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build receiving report", err)
		return
	}
	writeFile(w, report.ReceivingFilename(sum), buf.Bytes())
}

func (h *Handler) receivingAction(w http.ResponseWriter, r *http.Request, fn func(*receivingSession) error) {
	s, ok := h.receivingSessionFor(w, r)
	if !ok {
		return
	}
	if err := fn(s); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReceivingSessionDTO(s))
}

// =============================================================================
// INCENTIVE HANDLERS
// =============================================================================

// GetWorkerCard returns a worker's level, bonus estimate and rank within
// their site, with the payout period the estimate applies to.
func (h *Handler) GetWorkerCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	worker, err := h.store.Worker(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dto, err := h.workerCard(r, worker)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load site workers", err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// RecordJob scores a completed warehouse job with the active program's
// point rules and adds it to the worker's counters.
func (h *Handler) RecordJob(w http.ResponseWriter, r *http.Request) {
	var req RecordJobRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	ctx := r.Context()

	h.awards.Lock()
	worker, err := h.store.Worker(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.awards.Unlock()
		writeDomainError(w, err)
		return
	}
	updated, b := h.Program().PointRules.Award(worker, incentive.JobCompletion{
		JobType:       incentive.RuleAction(req.JobType),
		Items:         req.Items,
		Accuracy:      req.Accuracy,
		SpeedGain:     req.SpeedGain,
		StreakDays:    req.StreakDays,
		FirstJobToday: req.FirstJobToday,
	})
	err = h.store.SaveWorker(ctx, updated)
	h.awards.Unlock()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save worker points", err)
		return
	}

	h.log.Info("job points awarded",
		zap.String("employee_id", updated.EmployeeID),
		zap.String("job_type", req.JobType),
		zap.String("points", b.Total.String()))

	card, err := h.workerCard(r, updated)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load site workers", err)
		return
	}
	writeJSON(w, http.StatusOK, JobAwardDTO{Points: toPointsBreakdownDTO(b), Worker: card})
}

func (h *Handler) workerCard(r *http.Request, worker incentive.WorkerPoints) (WorkerCardDTO, error) {
	site, err := h.store.Workers(r.Context(), worker.SiteID)
	if err != nil {
		return WorkerCardDTO{}, err
	}

	program := h.Program()
	card := program.Summarize(worker)
	for _, c := range program.SummarizeAll(site, incentive.RankOptions{}) {
		if c.Worker.EmployeeID == worker.EmployeeID {
			card.Rank = c.Rank
			break
		}
	}
	dto := toWorkerCardDTO(card)
	period := program.PayoutFrequency.PeriodFor(h.clock.Now())
	dto.PayoutPeriodStart, dto.PayoutPeriodEnd = period.Start, period.End
	return dto, nil
}

// Leaderboard ranks workers by a points metric.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	metric, ok := incentive.ParseMetric(q.Get("metric"))
	if !ok {
		writeDomainError(w, generic.NewValidationError(generic.CodeInvalidInput, "unknown metric %q", q.Get("metric")))
		return
	}
	workers, err := h.store.Workers(r.Context(), q.Get("site"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load workers", err)
		return
	}

	ranked := incentive.Rank(workers, metric, incentive.RankOptions{Levels: h.Program().Levels})
	dtos := make([]LeaderboardEntryDTO, len(ranked))
	for i, rw := range ranked {
		dtos[i] = LeaderboardEntryDTO{
			Rank:         rw.Rank,
			EmployeeID:   rw.EmployeeID,
			EmployeeName: rw.EmployeeName,
			SiteID:       rw.SiteID,
			Points:       rw.Value(metric),
			Level:        rw.Level.Current.Level,
			Title:        rw.Level.Current.Title,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Bonus evaluates a points total against the worker tiers, or the store
// tiers with table=store.
func (h *Handler) Bonus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	points, err := decimal.NewFromString(q.Get("points"))
	if err != nil || points.IsNegative() {
		writeDomainError(w, generic.NewValidationError(generic.CodeInvalidInput, "points must be a non-negative number"))
		return
	}

	program := h.Program()
	tiers := program.WorkerTiers
	switch q.Get("table") {
	case "", "worker":
	case "store":
		tiers = program.StoreTiers
	default:
		writeDomainError(w, generic.NewValidationError(generic.CodeInvalidInput, "unknown tier table %q", q.Get("table")))
		return
	}
	writeJSON(w, http.StatusOK, toBonusDTO(points,
		incentive.CalculateBonus(points, tiers),
		incentive.TierProgressFor(points, tiers)))
}

// StoreShare computes one role's share of a store's bonus. The store's
// points are the sum of its workers' payout metric unless metric is given.
func (h *Handler) StoreShare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	role := strings.TrimSpace(q.Get("role"))
	if role == "" {
		writeDomainError(w, generic.NewValidationError(generic.CodeInvalidInput, "role is required"))
		return
	}

	program := h.Program()
	metric := incentive.MetricFor(program.PayoutFrequency)
	if raw := q.Get("metric"); raw != "" {
		m, ok := incentive.ParseMetric(raw)
		if !ok {
			writeDomainError(w, generic.NewValidationError(generic.CodeInvalidInput, "unknown metric %q", raw))
			return
		}
		metric = m
	}

	siteID := chi.URLParam(r, "site")
	pool, err := h.store.SitePoints(r.Context(), siteID, metric)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to total store points", err)
		return
	}
	share, err := program.StoreShare(pool.TotalPoints, role)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StoreShareDTO{
		SiteID:         siteID,
		StorePoints:    pool.TotalPoints,
		Metric:         string(metric),
		Role:           share.Role,
		RolePercentage: share.RolePercentage,
		StoreBonus:     share.StoreBonus,
		PersonalShare:  share.PersonalShare,
	})
}

// =============================================================================
// AUDIT HANDLERS
// =============================================================================

// GetLedger lists an entity's reconciliation entries (a cashier id for
// shift closes, a site id for receipts), optionally within [from, to].
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	q := r.URL.Query()

	var (
		es  []generic.Entry
		err error
	)
	if q.Get("from") != "" || q.Get("to") != "" {
		from, to, perr := parseRange(q.Get("from"), q.Get("to"))
		if perr != nil {
			writeDomainError(w, perr)
			return
		}
		es, err = h.ledger.EntriesInRange(r.Context(), generic.EntityID(entity), from, to)
	} else {
		es, err = h.ledger.Entries(r.Context(), generic.EntityID(entity))
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, toLedgerDTO(entity, es))
}

func parseRange(fromStr, toStr string) (time.Time, time.Time, error) {
	from := time.Time{}
	to := time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	var err error
	if fromStr != "" {
		if from, err = time.Parse(time.RFC3339, fromStr); err != nil {
			return from, to, generic.NewValidationError(generic.CodeInvalidInput, "from: %v", err)
		}
	}
	if toStr != "" {
		if to, err = time.Parse(time.RFC3339, toStr); err != nil {
			return from, to, generic.NewValidationError(generic.CodeInvalidInput, "to: %v", err)
		}
	}
	return from, to, nil
}

// GetNotifications returns the notices of one wizard session.
func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	if session == "" {
		writeDomainError(w, generic.NewValidationError(generic.CodeInvalidInput, "session is required"))
		return
	}
	writeJSON(w, http.StatusOK, toNotificationDTOs(h.hub.Recent(session)))
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads a JSON body into dst and runs its validate tags.
func (h *Handler) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return generic.NewValidationError(generic.CodeInvalidInput, "invalid request body: %v", err)
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return generic.NewValidationError(generic.CodeInvalidInput, "%v", err)
		}
		parts := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
		return generic.NewValidationError(generic.CodeInvalidInput, "%s", strings.Join(parts, ", "))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the generic error taxonomy to an HTTP response.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		ve *generic.ValidationError
		nf *generic.NotFoundError
	)
	switch {
	case errors.Is(err, generic.ErrPersistence):
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "backend write failed, please retry", Code: "persistence", Details: err.Error()})
	case errors.As(err, &ve):
		status := http.StatusUnprocessableEntity
		if ve.Code == generic.CodeInvalidInput {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, ErrorResponse{Error: ve.Message, Code: ve.Code})
	case errors.As(err, &nf):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: nf.Error(), Code: "not_found"})
	case errors.Is(err, generic.ErrInFlight):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "in_flight"})
	case errors.Is(err, generic.ErrTerminal):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "terminal"})
	case errors.Is(err, generic.ErrConflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "conflict"})
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeFile(w http.ResponseWriter, filename string, body []byte) {
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// resetSessions cancels every live wizard.
func (h *Handler) resetSessions() {
	for _, id := range h.closes.Expire(-time.Hour) {
		h.hub.Forget(id)
	}
	for _, id := range h.receipts.Expire(-time.Hour) {
		h.hub.Forget(id)
	}
	h.refreshSessionGauges()
}
