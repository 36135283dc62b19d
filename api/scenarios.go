/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
	Provides pre-built data sets that populate the database with realistic
	store operations data. Each scenario sets up one workflow end to end so
	the wizards can be driven from the dashboard or a test.

AVAILABLE SCENARIOS:

	drawer-over:       Open shift with 1000 float and 4000 cash sales
	receiving:         Inbound shipments across every eligibility case
	incentives:        Warehouse and store workers with points
	full-store:        All of the above

HOW SCENARIOS WORK:
 1. Cancel live wizard sessions
 2. Reset database (clear all data)
 3. Write the scenario's rows through the store
 4. Save the active incentive program so its config is inspectable

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "receiving"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Wizard handlers the scenarios feed
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/storeops-engine/factory"
	"github.com/warp/storeops-engine/incentive"
	"github.com/warp/storeops-engine/receiving"
	"github.com/warp/storeops-engine/shift"
	"github.com/warp/storeops-engine/store/sqlite"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

const (
	demoSite      = "store-7"
	demoWarehouse = "wh-1"
)

var scenarios = []ScenarioDTO{
	{
		ID:          "drawer-over",
		Name:        "Drawer Over",
		Description: "Open shift: 1000 float, 4000 cash sales. Count 5200 to see a +200 variance.",
		Category:    "shift",
	},
	{
		ID:          "receiving",
		Name:        "Inbound Shipments",
		Description: "Three-line transfer plus internal and external driver loads in every phase",
		Category:    "receiving",
	},
	{
		ID:          "incentives",
		Name:        "Incentive Leaderboard",
		Description: "Pickers and cashiers with points across levels and tiers",
		Category:    "incentive",
	},
	{
		ID:          "full-store",
		Name:        "Full Store",
		Description: "Every scenario above in one database",
		Category:    "all",
	},
}

var scenarioLoaders = map[string]func(h *Handler, ctx context.Context) error{
	"drawer-over": (*Handler).loadDrawerScenario,
	"receiving":   (*Handler).loadReceivingScenario,
	"incentives":  (*Handler).loadIncentiveScenario,
	"full-store": func(h *Handler, ctx context.Context) error {
		for _, load := range []func(*Handler, context.Context) error{
			(*Handler).loadDrawerScenario,
			(*Handler).loadReceivingScenario,
			(*Handler).loadIncentiveScenario,
		} {
			if err := load(h, ctx); err != nil {
				return err
			}
		}
		return nil
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if err := load(h, ctx); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()
	h.log.Info("scenario loaded", zap.String("scenario", req.ScenarioID))

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears every table and live session.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) reset(ctx context.Context) error {
	h.resetSessions()
	if err := h.store.Reset(ctx); err != nil {
		return err
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadDrawerScenario(ctx context.Context) error {
	now := h.clock.Now()
	start := now.Add(-8 * time.Hour)

	rec := shift.Record{
		ID:           "shift-ama-1",
		SiteID:       demoSite,
		CashierID:    "cashier-ama",
		CashierName:  "Ama Mensah",
		StartTime:    start,
		Status:       shift.StatusOpen,
		OpeningFloat: decimal.NewFromInt(1000),
	}
	if err := h.store.OpenShift(ctx, rec); err != nil {
		return fmt.Errorf("open shift: %w", err)
	}

	// Cash totals 4000. Card, mobile, the refund and yesterday's sale do
	// not reach the drawer.
	sales := []shift.Sale{
		{ID: "sale-1", Date: start.Add(time.Hour), Method: shift.MethodCash, Total: decimal.NewFromInt(2500), Status: shift.SaleCompleted},
		{ID: "sale-2", Date: start.Add(2 * time.Hour), Method: shift.MethodCard, Total: decimal.NewFromInt(700), Status: shift.SaleCompleted},
		{ID: "sale-3", Date: start.Add(3 * time.Hour), Method: shift.MethodCash, Total: decimal.NewFromInt(1500), Status: shift.SaleCompleted},
		{ID: "sale-4", Date: start.Add(4 * time.Hour), Method: shift.MethodMobile, Total: decimal.NewFromInt(450), Status: shift.SaleCompleted},
		{ID: "sale-5", Date: start.Add(5 * time.Hour), Method: shift.MethodCash, Total: decimal.NewFromInt(300), Status: shift.SaleRefunded},
		{ID: "sale-0", Date: start.Add(-20 * time.Hour), Method: shift.MethodCash, Total: decimal.NewFromInt(999), Status: shift.SaleCompleted},
	}
	for _, s := range sales {
		s.CashierName = rec.CashierName
		if err := h.store.RecordSale(ctx, rec.SiteID, s); err != nil {
			return fmt.Errorf("record sale %s: %w", s.ID, err)
		}
	}
	return nil
}

func (h *Handler) loadReceivingScenario(ctx context.Context) error {
	now := h.clock.Now()

	products := []sqlite.ProductRecord{
		{Product: receiving.Product{ID: "p-rice", SKU: "SKU-A", Name: "Rice 5kg"}, SiteID: demoSite, Stock: 4},
		{Product: receiving.Product{ID: "p-oil", SKU: "SKU-B", Name: "Sunflower Oil 1L"}, SiteID: demoSite, Stock: 0},
		{Product: receiving.Product{ID: "p-sugar", SKU: "SKU-C", Name: "Sugar 2kg"}, SiteID: demoSite, Stock: 12},
	}
	for _, p := range products {
		if err := h.store.SaveProduct(ctx, p); err != nil {
			return fmt.Errorf("save product %s: %w", p.SKU, err)
		}
	}

	drivers := []receiving.Driver{
		{ID: "drv-kwame", Name: "Kwame", Type: receiving.DriverInternal},
		{ID: "drv-swift", Name: "Swift Haulage", Type: receiving.DriverSubcontracted},
	}
	for _, d := range drivers {
		if err := h.store.SaveDriver(ctx, d); err != nil {
			return fmt.Errorf("save driver %s: %w", d.ID, err)
		}
	}

	threeLines := []receiving.SourceLine{
		{SKU: "SKU-A", ProductID: "p-rice", Quantity: 10},
		{SKU: "SKU-B", ProductID: "p-oil", Quantity: 5},
		{SKU: "SKU-C", ProductID: "p-sugar", Quantity: 8},
	}
	transfers := []receiving.DirectTransfer{
		// External carrier, in transit: receivable.
		{ID: "TR-1001", SourceSiteID: demoWarehouse, DestSiteID: demoSite, Status: "Shipped",
			Items: threeLines, OrderRef: "PO-5521", CreatedAt: now.Add(-6 * time.Hour), DriverID: "drv-swift"},
		// Internal driver, still in transit: not yet receivable.
		{ID: "TR-1002", SourceSiteID: demoWarehouse, DestSiteID: demoSite, Status: "In Transit",
			Items: []receiving.SourceLine{{SKU: "SKU-A", ProductID: "p-rice", Quantity: 6}},
			CreatedAt: now.Add(-2 * time.Hour), DriverID: "drv-kwame"},
		// Other store.
		{ID: "TR-1003", SourceSiteID: demoWarehouse, DestSiteID: "store-9", Status: "Shipped",
			Items: []receiving.SourceLine{{SKU: "SKU-B", Quantity: 2}}, CreatedAt: now.Add(-time.Hour)},
	}
	for _, t := range transfers {
		if err := h.store.SaveTransfer(ctx, t); err != nil {
			return fmt.Errorf("save transfer %s: %w", t.ID, err)
		}
	}

	jobs := []receiving.JobDerivedTransfer{
		// Internal driver, delivered: receivable.
		{JobID: "JOB-2001", JobType: receiving.JobTypeTransfer, SiteID: demoWarehouse, DestSiteID: demoSite,
			TransferStatus: "Delivered", JobStatus: "Completed", CreatedAt: now.Add(-4 * time.Hour), AssignedTo: "drv-kwame",
			LineItems: []receiving.SourceLine{{SKU: "SKU-C", ProductID: "p-sugar", Quantity: 4}, {SKU: "SKU-Z", Name: "Gift Box", Quantity: 1}}},
		// Still pending at the warehouse.
		{JobID: "JOB-2002", JobType: receiving.JobTypeTransfer, SiteID: demoWarehouse, DestSiteID: demoSite,
			TransferStatus: "Pending", JobStatus: "Pending", CreatedAt: now.Add(-time.Hour), AssignedTo: "drv-kwame",
			LineItems: []receiving.SourceLine{{SKU: "SKU-A", ProductID: "p-rice", Quantity: 3}}},
		// Pick jobs never become shipments.
		{JobID: "JOB-2003", JobType: "PICK", SiteID: demoWarehouse, JobStatus: "Completed", CreatedAt: now},
	}
	for _, j := range jobs {
		if err := h.store.SaveJob(ctx, j); err != nil {
			return fmt.Errorf("save job %s: %w", j.JobID, err)
		}
	}
	return nil
}

func (h *Handler) loadIncentiveScenario(ctx context.Context) error {
	d := decimal.NewFromInt
	workers := []incentive.WorkerPoints{
		{EmployeeID: "w-kofi", EmployeeName: "Kofi Boateng", SiteID: demoWarehouse, Role: "picker",
			TotalPoints: d(2450), TodayPoints: d(80), WeeklyPoints: d(420), MonthlyPoints: d(1500),
			CurrentStreak: 7, LongestStreak: 12, AverageAccuracy: decimal.RequireFromString("98.5"),
			AverageTimePerJob: d(14), TotalJobsCompleted: 230, Achievements: []string{"first_pick", "week_streak"}},
		{EmployeeID: "w-esi", EmployeeName: "Esi Owusu", SiteID: demoWarehouse, Role: "picker",
			TotalPoints: d(5300), TodayPoints: d(60), WeeklyPoints: d(420), MonthlyPoints: d(2100),
			CurrentStreak: 2, LongestStreak: 30, AverageAccuracy: d(99),
			AverageTimePerJob: d(11), TotalJobsCompleted: 510},
		{EmployeeID: "w-yaw", EmployeeName: "Yaw Darko", SiteID: demoWarehouse, Role: "packer",
			TotalPoints: d(300), TodayPoints: d(10), WeeklyPoints: d(90), MonthlyPoints: d(300),
			CurrentStreak: 1, LongestStreak: 3, AverageAccuracy: d(91), TotalJobsCompleted: 25},
		{EmployeeID: "c-ama", EmployeeName: "Ama Mensah", SiteID: demoSite, Role: "Cashier",
			TotalPoints: d(1800), WeeklyPoints: d(350), MonthlyPoints: d(1200)},
		{EmployeeID: "c-kojo", EmployeeName: "Kojo Asante", SiteID: demoSite, Role: "Store Manager",
			TotalPoints: d(900), WeeklyPoints: d(150), MonthlyPoints: d(800)},
	}
	for _, w := range workers {
		if err := h.store.SaveWorker(ctx, w); err != nil {
			return fmt.Errorf("save worker %s: %w", w.EmployeeID, err)
		}
	}

	program := h.Program()
	raw, err := json.Marshal(factory.ToJSON(program))
	if err != nil {
		return fmt.Errorf("encode program: %w", err)
	}
	return h.store.SaveProgram(ctx, program.Name, string(raw))
}
