package incentive

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// POINT RULES - Points for a completed warehouse job
// =============================================================================

// RuleAction names what a point rule rewards.
type RuleAction string

const (
	ActionPick        RuleAction = "PICK"
	ActionPack        RuleAction = "PACK"
	ActionPutaway     RuleAction = "PUTAWAY"
	ActionTransfer    RuleAction = "TRANSFER"
	ActionDispatch    RuleAction = "DISPATCH"
	ActionItemBonus   RuleAction = "ITEM_BONUS"
	ActionAccuracy100 RuleAction = "ACCURACY_100"
	ActionAccuracy95  RuleAction = "ACCURACY_95"
	ActionSpeedFast   RuleAction = "SPEED_FAST"
	ActionSpeedQuick  RuleAction = "SPEED_QUICK"
	ActionStreak3     RuleAction = "STREAK_3"
	ActionStreak7     RuleAction = "STREAK_7"
	ActionStreak30    RuleAction = "STREAK_30"
)

type PointRule struct {
	ID          string
	Action      RuleAction
	Points      decimal.Decimal
	Description string
	Enabled     bool
}

// PointRules is keyed by action. A missing or disabled rule awards zero.
type PointRules map[RuleAction]PointRule

func (r PointRules) award(a RuleAction) decimal.Decimal {
	rule, ok := r[a]
	if !ok || !rule.Enabled {
		return decimal.Zero
	}
	return rule.Points
}

// JobCompletion describes one finished warehouse job.
type JobCompletion struct {
	JobType RuleAction // PICK, PACK, PUTAWAY, TRANSFER or DISPATCH
	Items   int
	// Accuracy is a percentage in [0, 100].
	Accuracy decimal.Decimal
	// SpeedGain is how much faster than average the job finished, as a
	// percentage. Zero or negative earns nothing.
	SpeedGain decimal.Decimal
	// StreakDays is the worker's active streak after this job.
	StreakDays int
	// FirstJobToday is set when this job opened a new streak day.
	FirstJobToday bool
}

// PointsBreakdown itemizes an award.
type PointsBreakdown struct {
	Base     decimal.Decimal
	Items    decimal.Decimal
	Accuracy decimal.Decimal
	Speed    decimal.Decimal
	Streak   decimal.Decimal
	Total    decimal.Decimal
}

var (
	ninetyFive  = decimal.NewFromInt(95)
	fifty       = decimal.NewFromInt(50)
	twentyFive  = decimal.NewFromInt(25)
	streakSteps = []struct {
		days   int
		action RuleAction
	}{
		{30, ActionStreak30},
		{7, ActionStreak7},
		{3, ActionStreak3},
	}
)

// PointsFor scores a completed job.
//
// Accuracy pays the 100% bonus or the 95% bonus, not both. Speed pays the
// fast bonus (50% faster) or the quick bonus (25% faster). A streak bonus is
// paid once, on the first job of the day the streak reaches 3, 7 or 30 days.
func (r PointRules) PointsFor(job JobCompletion) PointsBreakdown {
	var b PointsBreakdown

	switch job.JobType {
	case ActionPick, ActionPack, ActionPutaway, ActionTransfer, ActionDispatch:
		b.Base = r.award(job.JobType)
	default:
		b.Base = decimal.Zero
	}

	items := job.Items
	if items < 0 {
		items = 0
	}
	b.Items = r.award(ActionItemBonus).Mul(decimal.NewFromInt(int64(items)))

	switch {
	case job.Accuracy.GreaterThanOrEqual(hundred):
		b.Accuracy = r.award(ActionAccuracy100)
	case job.Accuracy.GreaterThanOrEqual(ninetyFive):
		b.Accuracy = r.award(ActionAccuracy95)
	default:
		b.Accuracy = decimal.Zero
	}

	switch {
	case job.SpeedGain.GreaterThanOrEqual(fifty):
		b.Speed = r.award(ActionSpeedFast)
	case job.SpeedGain.GreaterThanOrEqual(twentyFive):
		b.Speed = r.award(ActionSpeedQuick)
	default:
		b.Speed = decimal.Zero
	}

	b.Streak = decimal.Zero
	if job.FirstJobToday {
		for _, s := range streakSteps {
			if job.StreakDays == s.days {
				b.Streak = r.award(s.action)
				break
			}
		}
	}

	b.Total = b.Base.Add(b.Items).Add(b.Accuracy).Add(b.Speed).Add(b.Streak)
	return b
}

// Award scores job with r and adds it to w's counters. The first job of a
// day restarts the today counter. Streak days come from the job; the
// longest streak only grows.
func (r PointRules) Award(w WorkerPoints, job JobCompletion) (WorkerPoints, PointsBreakdown) {
	b := r.PointsFor(job)

	if job.FirstJobToday {
		w.TodayPoints = decimal.Zero
	}
	w.TotalPoints = w.TotalPoints.Add(b.Total)
	w.TodayPoints = w.TodayPoints.Add(b.Total)
	w.WeeklyPoints = w.WeeklyPoints.Add(b.Total)
	w.MonthlyPoints = w.MonthlyPoints.Add(b.Total)

	// Running mean over completed jobs.
	n := decimal.NewFromInt(int64(w.TotalJobsCompleted))
	w.AverageAccuracy = w.AverageAccuracy.Mul(n).Add(job.Accuracy).
		Div(n.Add(decimal.NewFromInt(1))).Round(2)
	w.TotalJobsCompleted++

	if job.StreakDays > 0 {
		w.CurrentStreak = job.StreakDays
	}
	if w.CurrentStreak > w.LongestStreak {
		w.LongestStreak = w.CurrentStreak
	}
	return w, b
}
