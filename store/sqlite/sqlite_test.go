package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/storeops-engine/generic"
	"github.com/warp/storeops-engine/incentive"
	"github.com/warp/storeops-engine/receiving"
	"github.com/warp/storeops-engine/shift"
	"github.com/warp/storeops-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var t0 = time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func entry(key, entity string, expected, actual int64, at time.Time) generic.Entry {
	return generic.Entry{
		ID:             generic.EntryID("e-" + key),
		EntityID:       generic.EntityID(entity),
		SubjectID:      "subject",
		Kind:           generic.EntryShiftClose,
		Expected:       generic.NewCash(expected),
		Actual:         generic.NewCash(actual),
		IdempotencyKey: key,
		Metadata:       map[string]string{"k": "v"},
		CreatedAt:      at,
	}
}

// =============================================================================
// LEDGER
// =============================================================================

func TestLedger_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Append(ctx, entry("k2", "cashier-1", 5000, 5200, t0.Add(time.Hour))))
	require.NoError(t, s.Append(ctx, entry("k1", "cashier-1", 3000, 2950, t0)))

	es, err := s.Load(ctx, "cashier-1")
	require.NoError(t, err)
	require.Len(t, es, 2)
	assert.Equal(t, "k1", es[0].IdempotencyKey, "ordered by created_at")
	assert.True(t, es[1].Actual.Value.Equal(decimal.NewFromInt(5200)))
	assert.Equal(t, generic.UnitCash, es[1].Actual.Unit)
	assert.Equal(t, "v", es[0].Metadata["k"])
	assert.Equal(t, t0, es[0].CreatedAt)

	ranged, err := s.LoadRange(ctx, "cashier-1", t0.Add(30*time.Minute), t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, "k2", ranged[0].IdempotencyKey)

	net, err := generic.NewLedger(s).NetVariance(ctx, "cashier-1", generic.UnitCash)
	require.NoError(t, err)
	assert.Equal(t, "150", net.Value.String())
}

func TestLedger_DuplicateKey(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Append(ctx, entry("k1", "a", 1, 1, t0)))
	err := s.Append(ctx, generic.Entry{ID: "other", EntityID: "a", IdempotencyKey: "k1", CreatedAt: t0})
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)

	exists, err := s.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, exists)

	// A batch with one duplicate writes nothing.
	err = s.AppendBatch(ctx, []generic.Entry{entry("k3", "a", 1, 1, t0), entry("k1", "a", 1, 1, t0)})
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)
	exists, err = s.Exists(ctx, "k3")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLedger_WithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx generic.Store) error {
		require.NoError(t, tx.Append(ctx, entry("k1", "a", 1, 2, t0)))
		seen, err := tx.Load(ctx, "a")
		require.NoError(t, err)
		assert.Len(t, seen, 1, "tx sees its own write")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	es, err := s.Load(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, es)
}

// =============================================================================
// SHIFTS
// =============================================================================

func openRecord() shift.Record {
	return shift.Record{
		ID:           "shift-1",
		SiteID:       "site-1",
		CashierID:    "cashier-1",
		CashierName:  "Dana",
		StartTime:    t0,
		OpeningFloat: decimal.NewFromInt(1000),
	}
}

func TestShifts_OneOpenPerCashier(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.OpenShift(ctx, openRecord()))

	second := openRecord()
	second.ID = "shift-2"
	err := s.OpenShift(ctx, second)
	assert.ErrorIs(t, err, generic.ErrValidation)

	active, err := s.ActiveShift(ctx, "cashier-1")
	require.NoError(t, err)
	assert.Equal(t, "shift-1", active.ID)
	assert.Equal(t, shift.StatusOpen, active.Status)
	assert.True(t, active.OpeningFloat.Equal(decimal.NewFromInt(1000)))

	_, err = s.ActiveShift(ctx, "cashier-9")
	assert.True(t, generic.IsNotFound(err))
}

func TestShifts_CloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.OpenShift(ctx, openRecord()))

	end := t0.Add(9 * time.Hour)
	closed := openRecord()
	closed.Status = shift.StatusClosed
	closed.CashSales = decimal.NewFromInt(4000)
	closed.ExpectedCash = decimal.NewFromInt(5000)
	closed.ActualCash = decimal.NewFromInt(5200)
	closed.Variance = decimal.NewFromInt(200)
	closed.Denominations = map[string]int{"200": 26}
	closed.DiscrepancyReason = "overpaid"
	closed.EndTime = &end

	require.NoError(t, s.CloseShift(ctx, closed))
	require.NoError(t, s.CloseShift(ctx, closed), "second close is a no-op")

	got, err := s.Shift(ctx, "shift-1")
	require.NoError(t, err)
	assert.Equal(t, shift.StatusClosed, got.Status)
	assert.Equal(t, "200", got.Variance.String())
	assert.Equal(t, 26, got.Denominations["200"])
	assert.Equal(t, "overpaid", got.DiscrepancyReason)
	require.NotNil(t, got.EndTime)
	assert.Equal(t, end, *got.EndTime)

	// The cashier may open a new shift once the old one is closed.
	next := openRecord()
	next.ID = "shift-2"
	require.NoError(t, s.OpenShift(ctx, next))

	err = s.CloseShift(ctx, shift.Record{ID: "missing"})
	assert.True(t, generic.IsNotFound(err))
}

func TestShifts_SalesSince(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	sales := []shift.Sale{
		{ID: "s1", Date: t0.Add(-time.Hour), Method: shift.MethodCash, Total: decimal.NewFromInt(888), CashierName: "Dana", Status: shift.SaleCompleted},
		{ID: "s2", Date: t0, Method: shift.MethodCash, Total: decimal.NewFromInt(2500), CashierName: "Dana", Status: shift.SaleCompleted},
		{ID: "s3", Date: t0.Add(time.Hour), Method: shift.MethodCard, Total: decimal.NewFromInt(700), CashierName: "Dana", Status: shift.SaleCompleted},
		{ID: "s4", Date: t0.Add(time.Hour), Method: shift.MethodCash, Total: decimal.NewFromInt(50), CashierName: "Lee", Status: shift.SaleCompleted},
	}
	for _, sale := range sales {
		require.NoError(t, s.RecordSale(ctx, "site-1", sale))
	}

	got, err := s.SalesSince(ctx, "Dana", t0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "s2", got[0].ID)
	assert.Equal(t, shift.MethodCard, got[1].Method)

	summary := shift.Summarize(openRecord(), got)
	assert.Equal(t, "3500", summary.Expected.String())
}

func TestShifts_CloseThroughLedger(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.OpenShift(ctx, openRecord()))

	closer := shift.NewClosedShiftLedger(s, s)
	rec, err := s.Shift(ctx, "shift-1")
	require.NoError(t, err)

	rc, err := shift.Open(&rec, nil, shift.Deps{Closer: closer, Clock: generic.FixedClock{T: t0.Add(8 * time.Hour)}})
	require.NoError(t, err)
	require.NoError(t, rc.Next())
	require.NoError(t, rc.SetCount(decimal.NewFromInt(200), 5))
	require.NoError(t, rc.Next())
	_, err = rc.Finalize(ctx)
	require.NoError(t, err)

	closed, err := closer.IsClosed(ctx, "shift-1")
	require.NoError(t, err)
	assert.True(t, closed)

	history, err := closer.History(ctx, "cashier-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "0", history[0].Variance().Delta.Value.String())
}

// failOnce fails the next Append after passing it through to the store
// or instead of it.
type failOnce struct {
	*sqlite.Store
	before bool
	err    error
}

func (f *failOnce) Append(ctx context.Context, e generic.Entry) error {
	if f.err == nil {
		return f.Store.Append(ctx, e)
	}
	err := f.err
	f.err = nil
	if f.before {
		return err
	}
	if appendErr := f.Store.Append(ctx, e); appendErr != nil {
		return appendErr
	}
	return err
}

func TestShifts_RecountAfterLedgerFailure(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.OpenShift(ctx, openRecord()))

	// GIVEN: The shift row closes at 1000 but the audit append fails
	audit := &failOnce{Store: s, before: true, err: errors.New("disk full")}
	closer := shift.NewClosedShiftLedger(audit, s)
	rec, err := s.Shift(ctx, "shift-1")
	require.NoError(t, err)
	rc, err := shift.Open(&rec, nil, shift.Deps{Closer: closer, Clock: generic.FixedClock{T: t0.Add(8 * time.Hour)}})
	require.NoError(t, err)
	require.NoError(t, rc.Next())
	require.NoError(t, rc.SetCount(decimal.NewFromInt(200), 5))
	require.NoError(t, rc.Next())
	_, err = rc.Finalize(ctx)
	require.ErrorIs(t, err, generic.ErrPersistence)

	// WHEN: The cashier recounts 800 and finalizes again
	require.NoError(t, rc.Back())
	require.NoError(t, rc.SetCount(decimal.NewFromInt(200), 4))
	require.NoError(t, rc.Next())
	require.NoError(t, rc.SetReason("short 200"))
	_, err = rc.Finalize(ctx)
	require.NoError(t, err)

	// THEN: The stored shift and the ledger both carry the recount
	got, err := s.Shift(ctx, "shift-1")
	require.NoError(t, err)
	assert.Equal(t, "800", got.ActualCash.String())
	assert.Equal(t, "short 200", got.DiscrepancyReason)
	assert.Equal(t, 4, got.Denominations["200"])

	history, err := closer.History(ctx, "cashier-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "800", history[0].Actual.Value.String())
	assert.Equal(t, "-200", history[0].Variance().Delta.Value.String())
}

func TestShifts_RecountAfterAudit_Conflicts(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.OpenShift(ctx, openRecord()))

	// GIVEN: A close that reached both the row and the ledger, but the
	// caller saw an error
	audit := &failOnce{Store: s, err: errors.New("response lost")}
	closer := shift.NewClosedShiftLedger(audit, s)
	rec, err := s.Shift(ctx, "shift-1")
	require.NoError(t, err)
	rc, err := shift.Open(&rec, nil, shift.Deps{Closer: closer, Clock: generic.FixedClock{T: t0.Add(8 * time.Hour)}})
	require.NoError(t, err)
	require.NoError(t, rc.Next())
	require.NoError(t, rc.SetCount(decimal.NewFromInt(200), 5))
	require.NoError(t, rc.Next())
	_, err = rc.Finalize(ctx)
	require.ErrorIs(t, err, generic.ErrPersistence)

	// WHEN: A recount is finalized
	require.NoError(t, rc.Back())
	require.NoError(t, rc.SetCount(decimal.NewFromInt(200), 4))
	require.NoError(t, rc.Next())
	require.NoError(t, rc.SetReason("short 200"))
	_, err = rc.Finalize(ctx)

	// THEN: Conflict, and the audited close is left as it was
	assert.ErrorIs(t, err, generic.ErrConflict)
	got, err := s.Shift(ctx, "shift-1")
	require.NoError(t, err)
	assert.Equal(t, "1000", got.ActualCash.String())

	// The original count still replays cleanly.
	require.NoError(t, rc.Back())
	require.NoError(t, rc.SetCount(decimal.NewFromInt(200), 5))
	require.NoError(t, rc.Next())
	require.NoError(t, rc.SetReason(""))
	_, err = rc.Finalize(ctx)
	require.NoError(t, err)
}

// =============================================================================
// SHIPMENTS
// =============================================================================

func seedShipments(t *testing.T, s *sqlite.Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.SaveProduct(ctx, sqlite.ProductRecord{Product: receiving.Product{ID: "p-a", SKU: "SKU-A", Name: "Rice 5kg"}, Stock: 2}))
	require.NoError(t, s.SaveDriver(ctx, receiving.Driver{ID: "drv-1", Name: "Ama", Type: receiving.DriverInternal}))
	require.NoError(t, s.SaveTransfer(ctx, receiving.DirectTransfer{
		ID: "tr-1", SourceSiteID: "wh-1", DestSiteID: "store-7", Status: "Shipped", CreatedAt: t0,
		Items: []receiving.SourceLine{{SKU: "SKU-A", ProductID: "p-a", Quantity: 10}, {SKU: "SKU-B", Quantity: 4}},
	}))
	require.NoError(t, s.SaveJob(ctx, receiving.JobDerivedTransfer{
		JobID: "job-1", JobType: "TRANSFER", SiteID: "wh-1", DestSiteID: "store-7",
		TransferStatus: "In Transit", JobStatus: "Completed", CreatedAt: t0.Add(time.Minute), AssignedTo: "drv-1",
		LineItems: []receiving.SourceLine{{SKU: "SKU-A", ProductID: "p-a", Quantity: 3}},
	}))
	require.NoError(t, s.SaveJob(ctx, receiving.JobDerivedTransfer{
		JobID: "job-2", JobType: "PICK", SiteID: "wh-1", JobStatus: "Pending", CreatedAt: t0,
	}))
}

func TestShipments_Normalized(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seedShipments(t, s)

	all, err := s.Shipments(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2, "PICK jobs are not shipments")

	tr, err := s.Shipment(ctx, "tr-1")
	require.NoError(t, err)
	assert.Equal(t, receiving.KindTransfer, tr.Kind)
	require.Len(t, tr.Items, 2)
	assert.Equal(t, "SKU-B", tr.Items[1].SKU)

	job, err := s.Shipment(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, receiving.KindJob, job.Kind)
	assert.Equal(t, "Completed", job.DispatchJobStatus)

	drivers, err := s.Drivers(ctx)
	require.NoError(t, err)
	eligible := receiving.Eligible(all, drivers, "store-7")
	assert.Len(t, eligible, 2, "internal driver with completed dispatch job is eligible")

	_, err = s.Shipment(ctx, "nope")
	assert.True(t, generic.IsNotFound(err))
}

func TestShipments_ReceiptReplayDoesNotDoubleCount(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seedShipments(t, s)

	patch := receiving.ReceiptPatch{
		ProductID: "p-a", SKU: "SKU-A", ShipmentID: "tr-1", Line: 0,
		ReceivedQty: 8, ReceivedAt: t0, ReceivedBy: "clerk-3", NeedsReview: true, Notes: "torn bag",
	}
	require.NoError(t, s.UpdateProduct(ctx, patch))
	require.NoError(t, s.UpdateProduct(ctx, patch))

	p, err := s.Product(ctx, "p-a")
	require.NoError(t, err)
	assert.Equal(t, 10, p.Stock, "2 on hand + 8 received once")
	assert.True(t, p.NeedsReview)
	assert.Equal(t, "clerk-3", p.LastReceivedBy)

	// A corrected replay moves stock by the difference.
	patch.ReceivedQty = 9
	require.NoError(t, s.UpdateProduct(ctx, patch))
	p, err = s.Product(ctx, "p-a")
	require.NoError(t, err)
	assert.Equal(t, 11, p.Stock)

	receipts, err := s.Receipts(ctx, "tr-1")
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, 9, receipts[0].ReceivedQty)
}

func TestShipments_AdvanceStatusAndLookup(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seedShipments(t, s)

	require.NoError(t, s.AdvanceStatus(ctx, receiving.StatusPatch{ShipmentID: "job-1", Kind: receiving.KindJob, Status: receiving.StatusReceived}))
	job, err := s.Shipment(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, receiving.PhaseReceived, job.Phase())

	err = s.AdvanceStatus(ctx, receiving.StatusPatch{ShipmentID: "nope", Kind: receiving.KindTransfer, Status: "Received"})
	assert.True(t, generic.IsNotFound(err))

	p, ok := s.Lookup(ctx, "", "sku-a")
	assert.True(t, ok)
	assert.Equal(t, "Rice 5kg", p.Name)
	_, ok = s.Lookup(ctx, "p-zz", "SKU-ZZ")
	assert.False(t, ok)

	d, err := s.Driver(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, d)
	require.NoError(t, s.Refresh(ctx))
}

func TestShipments_ConfirmEndToEnd(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seedShipments(t, s)

	sh, err := s.Shipment(ctx, "tr-1")
	require.NoError(t, err)

	rc := receiving.NewReconciler(receiving.Deps{
		Catalog: s, Products: s, Transfers: s, Refresher: s,
		Ledger: generic.NewLedger(s), Clock: generic.FixedClock{T: t0}, Receiver: "clerk-3",
	})
	require.NoError(t, rc.Load(ctx, sh, nil))
	require.NoError(t, rc.ReceiveAll())
	summary, err := rc.Confirm(ctx)
	require.NoError(t, err)
	assert.False(t, summary.HasDiscrepancies)
	assert.Equal(t, receiving.UnknownProduct, summary.Items[1].Name)

	after, err := s.Shipment(ctx, "tr-1")
	require.NoError(t, err)
	assert.Equal(t, receiving.StatusReceived, after.Status)

	es, err := s.Load(ctx, "store-7")
	require.NoError(t, err)
	assert.Len(t, es, 2)
}

func TestShipments_RepeatedSKUReceivedPerLine(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	// GIVEN: a transfer listing the same SKU on two lines
	require.NoError(t, s.SaveProduct(ctx, sqlite.ProductRecord{Product: receiving.Product{ID: "p-oil", SKU: "SKU-OIL", Name: "Cooking Oil 2L"}}))
	require.NoError(t, s.SaveTransfer(ctx, receiving.DirectTransfer{
		ID: "tr-9", SourceSiteID: "wh-1", DestSiteID: "store-7", Status: "Shipped", CreatedAt: t0,
		Items: []receiving.SourceLine{
			{SKU: "SKU-OIL", ProductID: "p-oil", Quantity: 5},
			{SKU: "SKU-OIL", ProductID: "p-oil", Quantity: 3},
		},
	}))
	sh, err := s.Shipment(ctx, "tr-9")
	require.NoError(t, err)

	rc := receiving.NewReconciler(receiving.Deps{
		Catalog: s, Products: s, Transfers: s, Refresher: s,
		Ledger: generic.NewLedger(s), Clock: generic.FixedClock{T: t0}, Receiver: "clerk-3",
	})
	require.NoError(t, rc.Load(ctx, sh, nil))

	// WHEN: everything is received and confirmed
	require.NoError(t, rc.ReceiveAll())
	_, err = rc.Confirm(ctx)
	require.NoError(t, err)

	// THEN: both lines reach stock and the ledger
	p, err := s.Product(ctx, "p-oil")
	require.NoError(t, err)
	assert.Equal(t, 8, p.Stock)

	receipts, err := s.Receipts(ctx, "tr-9")
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	assert.Equal(t, 5, receipts[0].ReceivedQty)
	assert.Equal(t, 1, receipts[1].Line)
	assert.Equal(t, 3, receipts[1].ReceivedQty)

	es, err := s.Load(ctx, "store-7")
	require.NoError(t, err)
	assert.Len(t, es, 2)
}

// =============================================================================
// INCENTIVES
// =============================================================================

func TestWorkers_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	w := incentive.WorkerPoints{
		EmployeeID: "w1", EmployeeName: "Kofi", SiteID: "wh-1", Role: "picker",
		TotalPoints: decimal.NewFromInt(2450), MonthlyPoints: decimal.NewFromInt(1500),
		WeeklyPoints: decimal.NewFromInt(400), CurrentStreak: 7, LongestStreak: 12,
		AverageAccuracy: decimal.RequireFromString("98.5"), Achievements: []string{"first_pick"},
	}
	require.NoError(t, s.SaveWorker(ctx, w))
	require.NoError(t, s.SaveWorker(ctx, incentive.WorkerPoints{EmployeeID: "w2", EmployeeName: "Esi", SiteID: "wh-1", MonthlyPoints: decimal.NewFromInt(500)}))
	require.NoError(t, s.SaveWorker(ctx, incentive.WorkerPoints{EmployeeID: "w3", EmployeeName: "Yaw", SiteID: "wh-2"}))

	got, err := s.Worker(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "98.5", got.AverageAccuracy.String())
	assert.Equal(t, []string{"first_pick"}, got.Achievements)
	assert.Equal(t, 7, got.CurrentStreak)

	site, err := s.Workers(ctx, "wh-1")
	require.NoError(t, err)
	assert.Len(t, site, 2)

	all, err := s.Workers(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	pool, err := s.SitePoints(ctx, "wh-1", incentive.MetricMonthly)
	require.NoError(t, err)
	assert.Equal(t, "2000", pool.TotalPoints.String())

	_, err = s.Worker(ctx, "nope")
	assert.True(t, generic.IsNotFound(err))
}

func TestPrograms_Versioned(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.SaveProgram(ctx, "default", `{"name":"default"}`))
	require.NoError(t, s.SaveProgram(ctx, "default", `{"name":"default","payoutFrequency":"weekly"}`))

	p, err := s.Program(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Version)
	assert.Contains(t, p.ConfigJSON, "weekly")

	_, err = s.Program(ctx, "missing")
	assert.True(t, generic.IsNotFound(err))
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seedShipments(t, s)

	require.NoError(t, s.Reset(ctx))

	all, err := s.Shipments(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
