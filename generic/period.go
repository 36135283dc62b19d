package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - Payout window for incentive bonuses
// =============================================================================

// Period is a half-open window [Start, End).
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains returns true if t is within [Start, End).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

func (p Period) String() string {
	return "[" + p.Start.Format("2006-01-02") + ", " + p.End.Format("2006-01-02") + ")"
}

// PayoutFrequency defines how often bonuses are paid out.
type PayoutFrequency string

const (
	PayoutWeekly   PayoutFrequency = "weekly"   // Monday to Monday
	PayoutBiweekly PayoutFrequency = "biweekly" // Two-week blocks anchored on an epoch Monday
	PayoutMonthly  PayoutFrequency = "monthly"  // Calendar month
)

// biweeklyEpoch anchors biweekly periods. It is a Monday.
var biweeklyEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func ParsePayoutFrequency(s string) (PayoutFrequency, error) {
	switch PayoutFrequency(s) {
	case PayoutWeekly, PayoutBiweekly, PayoutMonthly:
		return PayoutFrequency(s), nil
	case "":
		return PayoutMonthly, nil
	default:
		return "", fmt.Errorf("unknown payout frequency %q", s)
	}
}

// =============================================================================
// PERIOD CALCULATOR - Determines which payout period a date falls into
// =============================================================================

// PeriodFor returns the payout period that contains t. Unknown frequencies
// fall back to monthly.
func (f PayoutFrequency) PeriodFor(t time.Time) Period {
	day := StartOfDay(t)
	switch f {
	case PayoutWeekly:
		start := day.AddDate(0, 0, -mondayOffset(day))
		return Period{Start: start, End: start.AddDate(0, 0, 7)}

	case PayoutBiweekly:
		monday := day.AddDate(0, 0, -mondayOffset(day))
		epoch := time.Date(biweeklyEpoch.Year(), biweeklyEpoch.Month(), biweeklyEpoch.Day(), 0, 0, 0, 0, t.Location())
		weeks := DaysBetween(epoch, monday) / 7
		if ((weeks%2)+2)%2 == 1 {
			monday = monday.AddDate(0, 0, -7)
		}
		return Period{Start: monday, End: monday.AddDate(0, 0, 14)}

	default:
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
		return Period{Start: start, End: start.AddDate(0, 1, 0)}
	}
}

// NextPeriod returns the period following p for the same frequency.
func (f PayoutFrequency) NextPeriod(p Period) Period {
	return f.PeriodFor(p.End)
}

func mondayOffset(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
