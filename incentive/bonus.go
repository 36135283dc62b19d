package incentive

import (
	"sort"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// =============================================================================
// BONUS CALCULATION
// =============================================================================

type BonusResult struct {
	Tier  BonusTier
	Bonus decimal.Decimal
}

// CalculateBonus selects the first tier whose bracket contains points and
// applies its formula. With no match it uses tiers[0], and with no tiers at
// all it uses DefaultTier. It never fails.
func CalculateBonus(points decimal.Decimal, tiers []BonusTier) BonusResult {
	tier := selectTier(points, tiers)
	return BonusResult{Tier: tier, Bonus: tier.Bonus(points)}
}

func selectTier(points decimal.Decimal, tiers []BonusTier) BonusTier {
	for _, t := range tiers {
		if t.Contains(points) {
			return t
		}
	}
	if len(tiers) > 0 {
		return tiers[0]
	}
	return DefaultTier
}

// =============================================================================
// TIER PROGRESS
// =============================================================================

type TierProgress struct {
	Current         BonusTier
	Next            *BonusTier // nil in the top tier
	PointsToNext    decimal.Decimal
	ProgressPercent decimal.Decimal
}

// TierProgressFor reports how far points are through the current tier
// towards the next one. The table is sorted by MinPoints before use.
func TierProgressFor(points decimal.Decimal, tiers []BonusTier) TierProgress {
	sorted := sortedTiers(tiers)
	current := selectTier(points, sorted)

	var next *BonusTier
	for i := range sorted {
		if sorted[i].MinPoints.GreaterThan(points) {
			t := sorted[i]
			next = &t
			break
		}
	}

	if next == nil {
		return TierProgress{Current: current, PointsToNext: decimal.Zero, ProgressPercent: hundred}
	}
	return TierProgress{
		Current:         current,
		Next:            next,
		PointsToNext:    next.MinPoints.Sub(points),
		ProgressPercent: progress(points, current.MinPoints, next.MinPoints),
	}
}

func sortedTiers(tiers []BonusTier) []BonusTier {
	sorted := append([]BonusTier(nil), tiers...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MinPoints.LessThan(sorted[j].MinPoints)
	})
	return sorted
}

// progress interpolates value between from and to as a percentage clamped
// to [0, 100]. An empty span counts as complete.
func progress(value, from, to decimal.Decimal) decimal.Decimal {
	span := to.Sub(from)
	if !span.IsPositive() {
		return hundred
	}
	pct := value.Sub(from).Div(span).Mul(hundred)
	return clampPercent(pct)
}

func clampPercent(p decimal.Decimal) decimal.Decimal {
	if p.IsNegative() {
		return decimal.Zero
	}
	if p.GreaterThan(hundred) {
		return hundred
	}
	return p
}
