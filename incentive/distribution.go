package incentive

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/storeops-engine/generic"
)

// =============================================================================
// ROLE DISTRIBUTION - Store bonus pool split
// =============================================================================

// RoleShare is one role's percentage of a store's bonus pool.
type RoleShare struct {
	ID         string
	Role       string
	Percentage decimal.Decimal
	Color      string
}

type Distribution []RoleShare

// DistributionMode decides what happens when shares do not sum to 100.
type DistributionMode string

const (
	// DistributionAllowAny pays each role its configured percentage even if
	// the pool is over- or under-allocated.
	DistributionAllowAny DistributionMode = "allow"
	// DistributionReject refuses a table whose shares do not sum to 100.
	DistributionReject DistributionMode = "reject"
	// DistributionNormalize rescales shares so they sum to exactly 100.
	DistributionNormalize DistributionMode = "normalize"
)

func ParseDistributionMode(s string) (DistributionMode, bool) {
	switch DistributionMode(s) {
	case DistributionAllowAny, DistributionReject, DistributionNormalize:
		return DistributionMode(s), true
	case "":
		return DistributionAllowAny, true
	}
	return "", false
}

// Total sums every percentage.
func (d Distribution) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, s := range d {
		sum = sum.Add(s.Percentage)
	}
	return sum
}

// Find matches role case-insensitively, ignoring surrounding whitespace.
func (d Distribution) Find(role string) (RoleShare, bool) {
	role = strings.TrimSpace(role)
	for _, s := range d {
		if strings.EqualFold(strings.TrimSpace(s.Role), role) {
			return s, true
		}
	}
	return RoleShare{}, false
}

// ShareFor returns bonus * percentage / 100 for role. An unknown role gets
// zero and false.
func (d Distribution) ShareFor(role string, bonus decimal.Decimal) (decimal.Decimal, bool) {
	s, ok := d.Find(role)
	if !ok {
		return decimal.Zero, false
	}
	return bonus.Mul(s.Percentage).Div(hundred), true
}

// Validate applies mode and returns the table to pay from.
func (d Distribution) Validate(mode DistributionMode) (Distribution, error) {
	total := d.Total()
	switch mode {
	case DistributionReject:
		if !total.Equal(hundred) {
			return nil, generic.NewValidationError(generic.CodeDistributionSum,
				"role percentages sum to %s, want 100", total.String())
		}
		return d, nil

	case DistributionNormalize:
		if total.Equal(hundred) {
			return d, nil
		}
		if !total.IsPositive() {
			return nil, generic.NewValidationError(generic.CodeDistributionSum,
				"cannot normalize role percentages summing to %s", total.String())
		}
		out := make(Distribution, len(d))
		for i, s := range d {
			s.Percentage = s.Percentage.Mul(hundred).Div(total)
			out[i] = s
		}
		return out, nil

	default:
		return d, nil
	}
}

// =============================================================================
// WORKER SHARE
// =============================================================================

// WorkerShare is one employee's cut of their store's bonus.
type WorkerShare struct {
	EmployeeID     string
	EmployeeName   string
	SiteID         string
	Role           string
	RolePercentage decimal.Decimal
	StoreBonus     decimal.Decimal
	PersonalShare  decimal.Decimal
}

// StoreShare computes a store's bonus from its team points and splits it
// for one role.
func (p Program) StoreShare(storePoints decimal.Decimal, role string) (WorkerShare, error) {
	dist, err := p.Distribution.Validate(p.DistributionMode)
	if err != nil {
		return WorkerShare{}, err
	}

	bonus := CalculateBonus(storePoints, p.StoreTiers).Bonus
	share, ok := dist.ShareFor(role, bonus)
	if !ok {
		return WorkerShare{}, &generic.NotFoundError{Kind: "role", Key: role}
	}
	rs, _ := dist.Find(role)
	return WorkerShare{
		Role:           rs.Role,
		RolePercentage: rs.Percentage,
		StoreBonus:     bonus,
		PersonalShare:  share,
	}, nil
}
