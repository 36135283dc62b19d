package report_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/storeops-engine/receiving"
	"github.com/warp/storeops-engine/report"
	"github.com/warp/storeops-engine/shift"
)

func open(t *testing.T, buf *bytes.Buffer) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

// findRow returns the first row whose column A equals label.
func findRow(t *testing.T, f *excelize.File, sheet, label string) []string {
	t.Helper()
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	for _, r := range rows {
		if len(r) > 0 && r[0] == label {
			return r
		}
	}
	t.Fatalf("row %q not found", label)
	return nil
}

func TestZReport(t *testing.T) {
	start := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	end := start.Add(9 * time.Hour)
	rec := shift.Record{
		ID:                "shift-1",
		SiteID:            "site-1",
		CashierName:       "Dana",
		StartTime:         start,
		EndTime:           &end,
		OpeningFloat:      decimal.NewFromInt(1000),
		CashSales:         decimal.NewFromInt(4000),
		CardSales:         decimal.NewFromInt(700),
		MobileSales:       decimal.NewFromInt(300),
		ExpectedCash:      decimal.NewFromInt(5000),
		ActualCash:        decimal.NewFromInt(5200),
		Variance:          decimal.NewFromInt(200),
		DiscrepancyReason: "customer overpaid",
		Denominations:     map[string]int{"200": 25, "100": 2, "oops": 9},
	}

	var buf bytes.Buffer
	require.NoError(t, report.ZReport(&buf, rec))

	f := open(t, &buf)
	assert.Equal(t, []string{"Z-Report"}, f.GetSheetList())
	assert.Equal(t, "5000", findRow(t, f, "Z-Report", "Expected cash")[1])
	assert.Equal(t, "200", findRow(t, f, "Z-Report", "Variance")[1])
	assert.Equal(t, "customer overpaid", findRow(t, f, "Z-Report", "Reason")[1])
	assert.Equal(t, "6000", findRow(t, f, "Z-Report", "Total")[1])

	// Largest denomination first, unparseable keys skipped.
	header := findRow(t, f, "Z-Report", "Denomination")
	require.NotNil(t, header)
	rows, err := f.GetRows("Z-Report")
	require.NoError(t, err)
	last := rows[len(rows)-1]
	prev := rows[len(rows)-2]
	assert.Equal(t, []string{"200", "25", "5000"}, prev)
	assert.Equal(t, []string{"100", "2", "200"}, last)

	assert.Equal(t, "zreport_shift-1_20250310.xlsx", report.ZReportFilename(rec))
}

func TestReceivingReport(t *testing.T) {
	items := []receiving.LineItem{
		{SKU: "SKU-A", Name: "Rice 5kg", ExpectedQty: 10, ReceivedQty: 10, Condition: receiving.ConditionGood},
		{SKU: "SKU-B", Name: "Cooking Oil 2L", ExpectedQty: 5, ReceivedQty: 3, Condition: receiving.ConditionGood},
		{SKU: "SKU-C", Name: receiving.UnknownProduct, ExpectedQty: 8, ReceivedQty: 8, Condition: receiving.ConditionDamaged, Notes: "crushed box"},
	}
	summary := receiving.Summary{
		ShipmentID:       "tr-100",
		OrderRef:         "TR-2025-100",
		Items:            items,
		Timestamp:        time.Date(2025, time.April, 2, 14, 0, 0, 0, time.UTC),
		ReceivedBy:       "clerk-3",
		HasDiscrepancies: true,
		Counts:           receiving.Aggregate(items),
	}

	var buf bytes.Buffer
	require.NoError(t, report.ReceivingReport(&buf, summary))

	f := open(t, &buf)
	assert.Equal(t, []string{"SKU-B", "Cooking Oil 2L", "5", "3", "-2", "Good"}, findRow(t, f, "Receiving", "SKU-B")[:6])
	assert.Equal(t, "crushed box", findRow(t, f, "Receiving", "SKU-C")[6])
	assert.Equal(t, "2", findRow(t, f, "Receiving", "Discrepant lines")[1])
	assert.Equal(t, "receiving_tr-100_20250402_140000.xlsx", report.ReceivingFilename(summary))
}
