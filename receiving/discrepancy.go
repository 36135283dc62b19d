package receiving

import "time"

// Discrepancies aggregates a shipment's line items. Over-received lines are
// tracked but are not reported as problems.
type Discrepancies struct {
	ShortCount      int
	DamagedCount    int
	OverCount       int
	DiscrepantCount int
	TotalExpected   int
	TotalReceived   int
}

func (d Discrepancies) Any() bool { return d.DiscrepantCount > 0 }

func Aggregate(items []LineItem) Discrepancies {
	var d Discrepancies
	for _, li := range items {
		d.TotalExpected += li.ExpectedQty
		d.TotalReceived += li.ReceivedQty
		if li.IsShort() {
			d.ShortCount++
		}
		if li.IsOver() {
			d.OverCount++
		}
		if li.IsDamaged() {
			d.DamagedCount++
		}
		if li.IsDiscrepant() {
			d.DiscrepantCount++
		}
	}
	return d
}

// Summary is the receipt shown after a confirm.
type Summary struct {
	ShipmentID       string
	OrderRef         string
	Items            []LineItem
	Timestamp        time.Time
	ReceivedBy       string
	HasDiscrepancies bool
	Counts           Discrepancies
}
