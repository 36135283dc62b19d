/*
Package incentive converts point totals into levels, bonus tiers, payouts
and leaderboard ranks.

PURPOSE:
  Warehouse workers earn points for completed jobs; stores earn team points
  from sales. Points feed a gamification ladder (levels) and a payout
  ladder (bonus tiers). Every function here is pure and total: malformed
  tables degrade to their first element or to a hard-coded default, never
  to an error.

KEY CONCEPTS:
  BonusTier:    A point bracket [MinPoints, MaxPoints] with a payout formula
                bonus = BonusAmount + points * BonusPerPoint
  Level:        A point threshold with a title (Rookie .. Legend)
  WorkerPoints: Read-only point counters for one employee
  Program:      A complete configuration (tiers, levels, role split, rules)

EXAMPLE:
  res := incentive.CalculateBonus(decimal.NewFromInt(1500), tiers)
  res.Tier.TierName // "Silver"
  res.Bonus         // 1200 + 1500 * 0.75

SEE ALSO:
  - bonus.go: CalculateBonus, TierProgressFor
  - level.go: LevelInfoFor
  - rank.go: Leaderboards
  - distribution.go: Store bonus split by role
  - points.go: Points for a completed warehouse job
  - factory/program.go: JSON-based program creation
*/
package incentive

import (
	"github.com/shopspring/decimal"

	"github.com/warp/storeops-engine/generic"
)

// =============================================================================
// BONUS TIERS
// =============================================================================

// BonusTier maps a point bracket to a payout. MaxPoints nil means unbounded.
type BonusTier struct {
	ID            string
	MinPoints     decimal.Decimal
	MaxPoints     *decimal.Decimal
	TierName      string
	TierColor     string
	BonusAmount   decimal.Decimal
	BonusPerPoint decimal.Decimal
}

// Contains reports whether points falls inside the tier's bracket.
func (t BonusTier) Contains(points decimal.Decimal) bool {
	if points.LessThan(t.MinPoints) {
		return false
	}
	return t.MaxPoints == nil || points.LessThanOrEqual(*t.MaxPoints)
}

// Bonus applies the tier's payout formula.
func (t BonusTier) Bonus(points decimal.Decimal) decimal.Decimal {
	return t.BonusAmount.Add(points.Mul(t.BonusPerPoint))
}

// DefaultTier is substituted when no tier table is available.
var DefaultTier = BonusTier{
	ID:            "default",
	MinPoints:     decimal.Zero,
	TierName:      "Default",
	TierColor:     "gray",
	BonusAmount:   decimal.Zero,
	BonusPerPoint: decimal.Zero,
}

// =============================================================================
// LEVELS
// =============================================================================

type Level struct {
	Level  int
	Points decimal.Decimal
	Title  string
}

// DefaultLevel is substituted when no level table is available.
var DefaultLevel = Level{Level: 1, Points: decimal.Zero, Title: "Rookie"}

// =============================================================================
// WORKER POINTS
// =============================================================================

// WorkerPoints is owned by an external collaborator; rank is never stored.
type WorkerPoints struct {
	EmployeeID         string
	EmployeeName       string
	SiteID             string
	Role               string
	TotalPoints        decimal.Decimal
	TodayPoints        decimal.Decimal
	WeeklyPoints       decimal.Decimal
	MonthlyPoints      decimal.Decimal
	CurrentStreak      int
	LongestStreak      int
	AverageAccuracy    decimal.Decimal
	AverageTimePerJob  decimal.Decimal
	TotalJobsCompleted int
	Achievements       []string
}

// Metric selects which counter a leaderboard or bonus estimate reads.
type Metric string

const (
	MetricToday   Metric = "today"
	MetricWeekly  Metric = "weekly"
	MetricMonthly Metric = "monthly"
	MetricTotal   Metric = "total"
)

// ParseMetric defaults to weekly for an empty string.
func ParseMetric(s string) (Metric, bool) {
	switch Metric(s) {
	case MetricToday, MetricWeekly, MetricMonthly, MetricTotal:
		return Metric(s), true
	case "":
		return MetricWeekly, true
	}
	return "", false
}

// Value reads the selected counter.
func (w WorkerPoints) Value(m Metric) decimal.Decimal {
	switch m {
	case MetricToday:
		return w.TodayPoints
	case MetricMonthly:
		return w.MonthlyPoints
	case MetricTotal:
		return w.TotalPoints
	default:
		return w.WeeklyPoints
	}
}

// MetricFor maps a payout frequency to the counter the bonus is paid on.
// Biweekly has no dedicated counter and reads the monthly one.
func MetricFor(f generic.PayoutFrequency) Metric {
	switch f {
	case generic.PayoutWeekly:
		return MetricWeekly
	default:
		return MetricMonthly
	}
}

// =============================================================================
// PROGRAM
// =============================================================================

// Program is a complete incentive configuration.
type Program struct {
	Name             string
	WorkerTiers      []BonusTier
	StoreTiers       []BonusTier
	Levels           []Level
	Distribution     Distribution
	DistributionMode DistributionMode
	PointRules       PointRules
	PayoutFrequency  generic.PayoutFrequency
}

// DefaultProgram is the stock configuration shipped with the application.
func DefaultProgram() Program {
	return Program{
		Name:             "default",
		WorkerTiers:      DefaultBonusTiers(),
		StoreTiers:       DefaultStoreBonusTiers(),
		Levels:           DefaultLevels(),
		Distribution:     DefaultRoleDistribution(),
		DistributionMode: DistributionAllowAny,
		PointRules:       DefaultPointRules(),
		PayoutFrequency:  generic.PayoutMonthly,
	}
}
