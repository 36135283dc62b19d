/*
Package report renders reconciliation results as spreadsheets.

  ZReport:         one closed shift (sales by method, drawer count by
                   denomination, variance and reason)
  ReceivingReport: one confirmed shipment (expected vs received per line,
                   condition, notes, discrepancy totals)

Both write a single-sheet xlsx workbook to an io.Writer.
*/
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/warp/storeops-engine/receiving"
	"github.com/warp/storeops-engine/shift"
)

const (
	ContentType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	zReportSheet  = "Z-Report"
	receiptSheet  = "Receiving"
	timestampForm = "2006-01-02 15:04"
)

// ZReportFilename is the download name for a shift's Z-report.
func ZReportFilename(r shift.Record) string {
	return fmt.Sprintf("zreport_%s_%s.xlsx", r.ID, r.StartTime.Format("20060102"))
}

// ReceivingFilename is the download name for a shipment's receiving report.
func ReceivingFilename(s receiving.Summary) string {
	return fmt.Sprintf("receiving_%s_%s.xlsx", s.ShipmentID, s.Timestamp.Format("20060102_150405"))
}

// =============================================================================
// Z-REPORT
// =============================================================================

// ZReport writes the end-of-day report for a closed shift.
func ZReport(w io.Writer, r shift.Record) error {
	sw, err := newSheet(zReportSheet)
	if err != nil {
		return err
	}
	defer func() { _ = sw.f.Close() }()

	end := ""
	if r.EndTime != nil {
		end = r.EndTime.Format(timestampForm)
	}

	rows := [][]any{
		{"Z-Report", r.ID},
		{"Site", r.SiteID},
		{"Cashier", r.CashierName},
		{"Opened", r.StartTime.Format(timestampForm)},
		{"Closed", end},
		{},
		{"Sales"},
		{"Cash", money(r.CashSales)},
		{"Card", money(r.CardSales)},
		{"Mobile Money", money(r.MobileSales)},
		{"Total", money(r.CashSales.Add(r.CardSales).Add(r.MobileSales))},
		{},
		{"Drawer"},
		{"Opening float", money(r.OpeningFloat)},
		{"Expected cash", money(r.ExpectedCash)},
		{"Counted cash", money(r.ActualCash)},
		{"Variance", money(r.Variance)},
		{"Reason", r.DiscrepancyReason},
		{},
		{"Denomination", "Count", "Subtotal"},
	}
	for _, d := range sortedDenominations(r.Denominations) {
		rows = append(rows, []any{money(d.value), d.count, money(d.value.Mul(decimal.NewFromInt(int64(d.count))))})
	}

	if err := sw.writeRows(rows); err != nil {
		return err
	}
	_ = sw.f.SetColWidth(sw.name, "A", "A", 18)
	_ = sw.f.SetColWidth(sw.name, "B", "C", 14)
	return sw.f.Write(w)
}

type denomination struct {
	value decimal.Decimal
	count int
}

// sortedDenominations orders a count snapshot by face value, largest first.
// Keys that do not parse as numbers are skipped.
func sortedDenominations(m map[string]int) []denomination {
	out := make([]denomination, 0, len(m))
	for k, n := range m {
		v, err := decimal.NewFromString(k)
		if err != nil {
			continue
		}
		out = append(out, denomination{value: v, count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].value.GreaterThan(out[j].value) })
	return out
}

// =============================================================================
// RECEIVING REPORT
// =============================================================================

// ReceivingReport writes the receipt for a confirmed shipment.
func ReceivingReport(w io.Writer, s receiving.Summary) error {
	sw, err := newSheet(receiptSheet)
	if err != nil {
		return err
	}
	defer func() { _ = sw.f.Close() }()

	rows := [][]any{
		{"Receiving Report", s.OrderRef},
		{"Shipment", s.ShipmentID},
		{"Received by", s.ReceivedBy},
		{"Received at", s.Timestamp.Format(timestampForm)},
		{},
		{"SKU", "Product", "Expected", "Received", "Difference", "Condition", "Notes"},
	}
	for _, li := range s.Items {
		rows = append(rows, []any{
			li.SKU, li.Name, li.ExpectedQty, li.ReceivedQty,
			li.ReceivedQty - li.ExpectedQty, string(li.Condition), li.Notes,
		})
	}
	c := s.Counts
	rows = append(rows,
		[]any{},
		[]any{"Total", "", c.TotalExpected, c.TotalReceived, c.TotalReceived - c.TotalExpected},
		[]any{"Short lines", c.ShortCount},
		[]any{"Damaged lines", c.DamagedCount},
		[]any{"Over lines", c.OverCount},
		[]any{"Discrepant lines", c.DiscrepantCount},
	)

	if err := sw.writeRows(rows); err != nil {
		return err
	}
	_ = sw.f.SetColWidth(sw.name, "A", "B", 20)
	_ = sw.f.SetColWidth(sw.name, "G", "G", 30)
	return sw.f.Write(w)
}

// =============================================================================
// SHEET HELPERS
// =============================================================================

type sheetWriter struct {
	f    *excelize.File
	name string
}

func newSheet(name string) (*sheetWriter, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), name); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("name sheet: %w", err)
	}
	return &sheetWriter{f: f, name: name}, nil
}

func (sw *sheetWriter) writeRows(rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := sw.f.SetSheetRow(sw.name, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	return nil
}

// money renders a decimal as a float cell. Drawer amounts are well within
// float64's exact integer range.
func money(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}
