package receiving

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// SHIPMENT SOURCES - Tagged union of origin records
// =============================================================================

// ShipmentSource is either a DirectTransfer or a JobDerivedTransfer.
type ShipmentSource interface {
	shipmentSource()
}

// DirectTransfer is a site-to-site transfer record.
type DirectTransfer struct {
	ID                string
	SourceSiteID      string
	DestSiteID        string
	Status            string
	Items             []SourceLine
	OrderRef          string
	CreatedAt         time.Time
	DriverID          string
	DeliveryMethod    DeliveryMethod
	DispatchJobStatus string
}

// JobDerivedTransfer is a warehouse job of type TRANSFER.
type JobDerivedTransfer struct {
	JobID          string
	JobType        string
	SiteID         string // origin warehouse
	DestSiteID     string
	TransferStatus string
	JobStatus      string
	LineItems      []SourceLine
	OrderRef       string
	CreatedAt      time.Time
	AssignedTo     string
	DeliveryMethod DeliveryMethod
}

func (DirectTransfer) shipmentSource()     {}
func (JobDerivedTransfer) shipmentSource() {}

// JobTypeTransfer is the only job type that carries a shipment.
const JobTypeTransfer = "TRANSFER"

// Normalize converts any source into the canonical Shipment. It is the only
// place origin-specific field names are read.
func Normalize(src ShipmentSource) (Shipment, error) {
	switch s := src.(type) {
	case DirectTransfer:
		return Shipment{
			ID:                s.ID,
			Kind:              KindTransfer,
			SourceSiteID:      s.SourceSiteID,
			DestSiteID:        s.DestSiteID,
			Status:            s.Status,
			Items:             append([]SourceLine(nil), s.Items...),
			OrderRef:          orDefault(s.OrderRef, s.ID),
			CreatedAt:         s.CreatedAt,
			AssignedDriverID:  s.DriverID,
			DeliveryMethod:    s.DeliveryMethod,
			DispatchJobStatus: s.DispatchJobStatus,
		}, nil

	case JobDerivedTransfer:
		if !strings.EqualFold(s.JobType, JobTypeTransfer) {
			return Shipment{}, fmt.Errorf("job %s has type %q, not a transfer", s.JobID, s.JobType)
		}
		// The job's transfer status is the shipment lifecycle; the job's own
		// status is what a dispatch job "Completed" check reads.
		return Shipment{
			ID:                s.JobID,
			Kind:              KindJob,
			SourceSiteID:      s.SiteID,
			DestSiteID:        s.DestSiteID,
			Status:            orDefault(s.TransferStatus, s.JobStatus),
			Items:             append([]SourceLine(nil), s.LineItems...),
			OrderRef:          orDefault(s.OrderRef, s.JobID),
			CreatedAt:         s.CreatedAt,
			AssignedDriverID:  s.AssignedTo,
			DeliveryMethod:    s.DeliveryMethod,
			DispatchJobStatus: s.JobStatus,
		}, nil

	case *DirectTransfer:
		return Normalize(*s)
	case *JobDerivedTransfer:
		return Normalize(*s)
	}
	return Shipment{}, fmt.Errorf("unsupported shipment source %T", src)
}

// NormalizeAll converts sources, dropping the ones that are not shipments
// (non-transfer jobs). Errors for those are returned alongside.
func NormalizeAll(srcs []ShipmentSource) ([]Shipment, []error) {
	out := make([]Shipment, 0, len(srcs))
	var errs []error
	for _, src := range srcs {
		s, err := Normalize(src)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, s)
	}
	return out, errs
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
