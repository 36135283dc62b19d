package receiving

import "strings"

// =============================================================================
// ELIGIBILITY - Who may receive what, when
// =============================================================================

// Eligibility explains a CanReceive decision.
type Eligibility struct {
	Eligible       bool
	InternalDriver bool
	Phase          Phase
	Reason         string
}

// CanReceive reports whether a shipment may be loaded for receiving.
func CanReceive(s Shipment, driver *Driver) bool {
	return Evaluate(s, driver).Eligible
}

// Evaluate applies the receiving policy.
//
// Internal drivers are tracked stop by stop, so their loads are only
// receivable once Delivered/Arrived or when the dispatch job is Completed.
// External carriers and unassigned shipments are receivable from any
// in-transit phase onward. Already received shipments are never eligible.
//
// An assigned driver missing from the roster is treated as internal when
// the shipment's delivery method says Internal, and external otherwise.
func Evaluate(s Shipment, driver *Driver) Eligibility {
	e := Eligibility{
		Phase:          s.Phase(),
		InternalDriver: isInternal(s, driver),
	}

	if e.Phase == PhaseReceived {
		e.Reason = "shipment already received"
		return e
	}

	if e.InternalDriver {
		if e.Phase == PhaseDelivered || strings.EqualFold(strings.TrimSpace(s.DispatchJobStatus), "Completed") {
			e.Eligible = true
			return e
		}
		e.Reason = "internal delivery not yet confirmed delivered"
		return e
	}

	if e.Phase == PhaseDelivered || e.Phase == PhaseInTransit {
		e.Eligible = true
		return e
	}
	e.Reason = "shipment has not left the origin site"
	return e
}

func isInternal(s Shipment, driver *Driver) bool {
	if s.AssignedDriverID == "" {
		return false
	}
	if driver != nil {
		return driver.Type == DriverInternal
	}
	return s.DeliveryMethod == DeliveryInternal
}

// Eligible filters shipments bound for destSiteID that may be received now.
// drivers is keyed by driver id. An empty destSiteID keeps every site.
func Eligible(shipments []Shipment, drivers map[string]Driver, destSiteID string) []Shipment {
	var out []Shipment
	for _, s := range shipments {
		if destSiteID != "" && s.DestSiteID != destSiteID {
			continue
		}
		var d *Driver
		if drv, ok := drivers[s.AssignedDriverID]; ok {
			d = &drv
		}
		if CanReceive(s, d) {
			out = append(out, s)
		}
	}
	return out
}
