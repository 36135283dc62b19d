package receiving

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/warp/storeops-engine/generic"
)

// ReceiptKey is the ledger key for one line of a confirmed shipment.
func ReceiptKey(shipmentID string, line int) string {
	return "receipt:" + shipmentID + ":" + strconv.Itoa(line)
}

// LedgerEntry records one confirmed line against the destination site.
// Expected and actual are item counts, so a site's net variance in
// UnitItems is its cumulative shrink (negative) or overage (positive).
func LedgerEntry(s Shipment, li LineItem, receivedBy string, at time.Time) generic.Entry {
	return generic.Entry{
		ID:             generic.EntryID(uuid.NewString()),
		EntityID:       generic.EntityID(s.DestSiteID),
		SubjectID:      generic.SubjectID(s.ID),
		Kind:           generic.EntryReceiptLine,
		Expected:       generic.NewItems(li.ExpectedQty),
		Actual:         generic.NewItems(li.ReceivedQty),
		Reason:         li.Notes,
		ReferenceID:    li.SKU,
		IdempotencyKey: ReceiptKey(s.ID, li.Line),
		Metadata: map[string]string{
			"line":       strconv.Itoa(li.Line),
			"order_ref":  s.OrderRef,
			"product_id": li.ProductID,
			"condition":  string(li.Condition),
			"kind":       string(s.Kind),
		},
		CreatedBy: receivedBy,
		CreatedAt: at,
	}
}

// SiteShrink sums item variance across every receipt at siteID.
func SiteShrink(ctx context.Context, l generic.Ledger, siteID string) (generic.Amount, error) {
	return l.NetVariance(ctx, generic.EntityID(siteID), generic.UnitItems)
}
