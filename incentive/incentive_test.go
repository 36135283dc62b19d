package incentive_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/storeops-engine/generic"
	"github.com/warp/storeops-engine/incentive"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func pts(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func ptr(n int64) *decimal.Decimal {
	v := decimal.NewFromInt(n)
	return &v
}

func twoTiers() []incentive.BonusTier {
	return []incentive.BonusTier{
		{ID: "low", MinPoints: pts(0), MaxPoints: ptr(999), BonusAmount: pts(0), BonusPerPoint: pts(0)},
		{ID: "high", MinPoints: pts(1000), MaxPoints: nil, BonusAmount: pts(500), BonusPerPoint: decimal.RequireFromString("0.1")},
	}
}

func fourLevels() []incentive.Level {
	return []incentive.Level{
		{Level: 1, Points: pts(0)},
		{Level: 2, Points: pts(500)},
		{Level: 3, Points: pts(2000)},
		{Level: 4, Points: pts(5000)},
	}
}

// =============================================================================
// BONUS TESTS
// =============================================================================

func TestCalculateBonus_SecondTier(t *testing.T) {
	// GIVEN: Two tiers, the second unbounded with base 500 and rate 0.1
	// WHEN: 1500 points
	// THEN: Second tier, bonus = 500 + 150 = 650

	res := incentive.CalculateBonus(pts(1500), twoTiers())

	assert.Equal(t, "high", res.Tier.ID)
	assert.True(t, res.Bonus.Equal(pts(650)), "got %s", res.Bonus)
}

func TestCalculateBonus_TierContainsPoints(t *testing.T) {
	// For every point total the selected tier's bracket contains it and the
	// bonus is exactly base + points * rate.
	tiers := incentive.DefaultBonusTiers()
	for p := int64(0); p <= 2500; p += 7 {
		res := incentive.CalculateBonus(pts(p), tiers)
		require.True(t, res.Tier.Contains(pts(p)), "points %d not in tier %s", p, res.Tier.TierName)
		want := res.Tier.BonusAmount.Add(pts(p).Mul(res.Tier.BonusPerPoint))
		require.True(t, res.Bonus.Equal(want), "points %d: bonus %s, want %s", p, res.Bonus, want)
	}
}

func TestCalculateBonus_NoMatch_FallsBackToFirstTier(t *testing.T) {
	// GIVEN: Tiers that start at 100
	// WHEN: 50 points
	// THEN: tiers[0] is used anyway

	tiers := []incentive.BonusTier{
		{ID: "first", MinPoints: pts(100), MaxPoints: ptr(199), BonusAmount: pts(10), BonusPerPoint: pts(1)},
		{ID: "second", MinPoints: pts(200), BonusAmount: pts(20)},
	}

	res := incentive.CalculateBonus(pts(50), tiers)

	assert.Equal(t, "first", res.Tier.ID)
	assert.True(t, res.Bonus.Equal(pts(60)))
}

func TestCalculateBonus_EmptyTiers_DefaultTier(t *testing.T) {
	res := incentive.CalculateBonus(pts(12345), nil)

	assert.Equal(t, incentive.DefaultTier.ID, res.Tier.ID)
	assert.True(t, res.Bonus.IsZero())
}

func TestCalculateBonus_DefaultTable_Silver(t *testing.T) {
	res := incentive.CalculateBonus(pts(400), incentive.DefaultBonusTiers())

	assert.Equal(t, "Silver", res.Tier.TierName)
	assert.True(t, res.Bonus.Equal(pts(1500)), "1200 + 400*0.75, got %s", res.Bonus)
}

// =============================================================================
// TIER PROGRESS TESTS
// =============================================================================

func TestTierProgress_Midway(t *testing.T) {
	// GIVEN: Default tiers, 450 points (Silver 300..599, Gold at 600)
	// THEN: 50% of the way to Gold, 150 to go

	tp := incentive.TierProgressFor(pts(450), incentive.DefaultBonusTiers())

	require.NotNil(t, tp.Next)
	assert.Equal(t, "Silver", tp.Current.TierName)
	assert.Equal(t, "Gold", tp.Next.TierName)
	assert.True(t, tp.PointsToNext.Equal(pts(150)))
	assert.True(t, tp.ProgressPercent.Equal(pts(50)), "got %s", tp.ProgressPercent)
}

func TestTierProgress_TopTier(t *testing.T) {
	tp := incentive.TierProgressFor(pts(50000), incentive.DefaultBonusTiers())

	assert.Nil(t, tp.Next)
	assert.Equal(t, "Diamond", tp.Current.TierName)
	assert.True(t, tp.ProgressPercent.Equal(pts(100)))
}

func TestTierProgress_UnsortedInput(t *testing.T) {
	tiers := incentive.DefaultBonusTiers()
	reversed := make([]incentive.BonusTier, len(tiers))
	for i, tier := range tiers {
		reversed[len(tiers)-1-i] = tier
	}

	tp := incentive.TierProgressFor(pts(450), reversed)

	require.NotNil(t, tp.Next)
	assert.Equal(t, "Gold", tp.Next.TierName)
}

// =============================================================================
// LEVEL TESTS
// =============================================================================

func TestLevelInfo_Scenario(t *testing.T) {
	// GIVEN: Levels 0 / 500 / 2000 / 5000
	// WHEN: 2450 total points
	// THEN: Level 3, next 4, 2550 to go, 15% progress

	info := incentive.LevelInfoFor(pts(2450), fourLevels())

	assert.Equal(t, 3, info.Current.Level)
	assert.Equal(t, 4, info.Next.Level)
	assert.True(t, info.PointsToNext.Equal(pts(2550)))
	assert.True(t, info.ProgressPercent.Equal(pts(15)), "got %s", info.ProgressPercent)
}

func TestLevelInfo_MaxLevel(t *testing.T) {
	info := incentive.LevelInfoFor(pts(9000), fourLevels())

	assert.Equal(t, 4, info.Current.Level)
	assert.True(t, info.AtMax())
	assert.True(t, info.ProgressPercent.Equal(pts(100)))
}

func TestLevelInfo_ExactThreshold(t *testing.T) {
	info := incentive.LevelInfoFor(pts(500), fourLevels())

	assert.Equal(t, 2, info.Current.Level)
	assert.True(t, info.ProgressPercent.IsZero())
}

func TestLevelInfo_MonotonicAndBounded(t *testing.T) {
	levels := incentive.DefaultLevels()
	prev := 0
	for p := int64(0); p <= 25000; p += 37 {
		info := incentive.LevelInfoFor(pts(p), levels)
		require.GreaterOrEqual(t, info.Current.Level, prev, "level dropped at %d", p)
		require.False(t, info.ProgressPercent.IsNegative(), "negative progress at %d", p)
		require.True(t, info.ProgressPercent.LessThanOrEqual(pts(100)), "progress > 100 at %d", p)
		prev = info.Current.Level
	}
}

func TestLevelInfo_EmptyTable(t *testing.T) {
	info := incentive.LevelInfoFor(pts(10), nil)

	assert.Equal(t, incentive.DefaultLevel.Level, info.Current.Level)
	assert.True(t, info.ProgressPercent.Equal(pts(100)))
}

func TestLevelInfo_UnsortedTable(t *testing.T) {
	levels := fourLevels()
	levels[0], levels[3] = levels[3], levels[0]

	info := incentive.LevelInfoFor(pts(2450), levels)

	assert.Equal(t, 3, info.Current.Level)
}

// =============================================================================
// RANK TESTS
// =============================================================================

func workers() []incentive.WorkerPoints {
	return []incentive.WorkerPoints{
		{EmployeeID: "c", WeeklyPoints: pts(100), TotalPoints: pts(900)},
		{EmployeeID: "a", WeeklyPoints: pts(300), TotalPoints: pts(300)},
		{EmployeeID: "b", WeeklyPoints: pts(100), TotalPoints: pts(2500)},
	}
}

func TestRank_WeeklyDescending_StableTies(t *testing.T) {
	// GIVEN: c and b tied on weekly points, c first in input
	// THEN: a=1, c=2, b=3

	ranked := incentive.Rank(workers(), incentive.MetricWeekly, incentive.RankOptions{})

	require.Len(t, ranked, 3)
	assert.Equal(t, []string{"a", "c", "b"}, ids(ranked))
	assert.Equal(t, []int{1, 2, 3}, []int{ranked[0].Rank, ranked[1].Rank, ranked[2].Rank})
}

func TestRank_TieBreakByEmployeeID(t *testing.T) {
	ranked := incentive.Rank(workers(), incentive.MetricWeekly, incentive.RankOptions{TieBreakByEmployeeID: true})

	assert.Equal(t, []string{"a", "b", "c"}, ids(ranked))
}

func TestRank_TotalMetric_WithLevels(t *testing.T) {
	ranked := incentive.Rank(workers(), incentive.MetricTotal, incentive.RankOptions{Levels: incentive.DefaultLevels()})

	assert.Equal(t, []string{"b", "c", "a"}, ids(ranked))
	assert.Equal(t, "Pro", ranked[0].Level.Current.Title)
}

func TestRank_DoesNotMutateInput(t *testing.T) {
	in := workers()
	incentive.Rank(in, incentive.MetricTotal, incentive.RankOptions{})

	assert.Equal(t, "c", in[0].EmployeeID)
}

func ids(rs []incentive.RankedWorker) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.EmployeeID
	}
	return out
}

// =============================================================================
// DISTRIBUTION TESTS
// =============================================================================

func TestDistribution_ShareFor_CaseInsensitive(t *testing.T) {
	dist := incentive.DefaultRoleDistribution()

	share, ok := dist.ShareFor("store manager", pts(10000))

	require.True(t, ok)
	assert.True(t, share.Equal(pts(3000)))
}

func TestDistribution_UnknownRole(t *testing.T) {
	_, ok := incentive.DefaultRoleDistribution().ShareFor("Janitor", pts(10000))
	assert.False(t, ok)
}

func TestDistribution_Modes(t *testing.T) {
	dist := incentive.DefaultRoleDistribution() // sums to 97

	t.Run("allow keeps table", func(t *testing.T) {
		out, err := dist.Validate(incentive.DistributionAllowAny)
		require.NoError(t, err)
		assert.True(t, out.Total().Equal(pts(97)))
	})

	t.Run("reject fails", func(t *testing.T) {
		_, err := dist.Validate(incentive.DistributionReject)
		require.Error(t, err)
		assert.True(t, errors.Is(err, generic.ErrValidation))
		assert.Equal(t, generic.CodeDistributionSum, generic.ValidationCode(err))
	})

	t.Run("normalize sums to 100", func(t *testing.T) {
		out, err := dist.Validate(incentive.DistributionNormalize)
		require.NoError(t, err)
		assert.True(t, out.Total().Round(8).Equal(pts(100)), "got %s", out.Total())
		assert.True(t, dist.Total().Equal(pts(97)), "input must not change")
	})

	t.Run("normalize empty fails", func(t *testing.T) {
		_, err := incentive.Distribution{}.Validate(incentive.DistributionNormalize)
		assert.Error(t, err)
	})
}

func TestProgram_StoreShare(t *testing.T) {
	// GIVEN: Store with 2000 team points (Silver: 5000 + 2000*0.75 = 6500)
	// WHEN: Cashier share (12%)
	// THEN: 780

	p := incentive.DefaultProgram()

	share, err := p.StoreShare(pts(2000), "Cashier")

	require.NoError(t, err)
	assert.True(t, share.StoreBonus.Equal(pts(6500)), "got %s", share.StoreBonus)
	assert.True(t, share.PersonalShare.Equal(pts(780)), "got %s", share.PersonalShare)
}

func TestProgram_StoreShare_UnknownRole(t *testing.T) {
	_, err := incentive.DefaultProgram().StoreShare(pts(2000), "Astronaut")
	assert.True(t, generic.IsNotFound(err))
}

// =============================================================================
// POINT RULE TESTS
// =============================================================================

func TestPointsFor_PickWithBonuses(t *testing.T) {
	// GIVEN: A 10-item pick at 100% accuracy, 30% faster, streak hits 7 today
	// THEN: 15 + 20 + 50 + 8 + 75 = 168

	b := incentive.DefaultPointRules().PointsFor(incentive.JobCompletion{
		JobType:       incentive.ActionPick,
		Items:         10,
		Accuracy:      pts(100),
		SpeedGain:     pts(30),
		StreakDays:    7,
		FirstJobToday: true,
	})

	assert.True(t, b.Total.Equal(pts(168)), "got %s", b.Total)
	assert.True(t, b.Streak.Equal(pts(75)))
}

func TestPointsFor_Accuracy95_NoStreakMidDay(t *testing.T) {
	b := incentive.DefaultPointRules().PointsFor(incentive.JobCompletion{
		JobType:    incentive.ActionPack,
		Items:      3,
		Accuracy:   decimal.RequireFromString("96.5"),
		StreakDays: 3,
	})

	assert.True(t, b.Total.Equal(pts(10+6+25)), "got %s", b.Total)
	assert.True(t, b.Streak.IsZero())
}

func TestPointsFor_DisabledRule(t *testing.T) {
	rules := incentive.DefaultPointRules()
	r := rules[incentive.ActionItemBonus]
	r.Enabled = false
	rules[incentive.ActionItemBonus] = r

	b := rules.PointsFor(incentive.JobCompletion{JobType: incentive.ActionTransfer, Items: 50})

	assert.True(t, b.Total.Equal(pts(10)), "got %s", b.Total)
}

func TestAward_AddsToCounters(t *testing.T) {
	// GIVEN: A worker with 4 jobs at 90% average and a 6 day streak
	w := incentive.WorkerPoints{
		EmployeeID: "w1", TotalPoints: pts(1000), TodayPoints: pts(40),
		WeeklyPoints: pts(300), MonthlyPoints: pts(700),
		CurrentStreak: 6, LongestStreak: 6,
		AverageAccuracy: pts(90), TotalJobsCompleted: 4,
	}

	// WHEN: The first pick of a new day lands, streak now 7
	got, b := incentive.DefaultPointRules().Award(w, incentive.JobCompletion{
		JobType:       incentive.ActionPick,
		Items:         10,
		Accuracy:      pts(100),
		SpeedGain:     pts(30),
		StreakDays:    7,
		FirstJobToday: true,
	})

	// THEN: 168 points go to every counter and today restarts
	assert.True(t, b.Total.Equal(pts(168)), "got %s", b.Total)
	assert.Equal(t, "1168", got.TotalPoints.String())
	assert.Equal(t, "168", got.TodayPoints.String())
	assert.Equal(t, "468", got.WeeklyPoints.String())
	assert.Equal(t, "868", got.MonthlyPoints.String())
	assert.Equal(t, 5, got.TotalJobsCompleted)
	assert.Equal(t, "92", got.AverageAccuracy.String())
	assert.Equal(t, 7, got.CurrentStreak)
	assert.Equal(t, 7, got.LongestStreak)
	assert.Equal(t, "1000", w.TotalPoints.String(), "input is not modified")
}

func TestAward_MidDayKeepsTodayAndStreak(t *testing.T) {
	w := incentive.WorkerPoints{TodayPoints: pts(40), CurrentStreak: 2, LongestStreak: 9}

	got, _ := incentive.DefaultPointRules().Award(w, incentive.JobCompletion{
		JobType: incentive.ActionTransfer, Accuracy: pts(80),
	})

	assert.Equal(t, "50", got.TodayPoints.String())
	assert.Equal(t, 2, got.CurrentStreak)
	assert.Equal(t, 9, got.LongestStreak)
	assert.Equal(t, "80", got.AverageAccuracy.String())
}

// =============================================================================
// SUMMARY TESTS
// =============================================================================

func TestProgram_Summarize_UsesPayoutMetric(t *testing.T) {
	p := incentive.DefaultProgram()
	p.PayoutFrequency = generic.PayoutWeekly

	card := p.Summarize(incentive.WorkerPoints{
		EmployeeID:    "w1",
		TotalPoints:   pts(2450),
		WeeklyPoints:  pts(150),
		MonthlyPoints: pts(700),
	})

	assert.Equal(t, incentive.MetricWeekly, card.PayoutMetric)
	assert.Equal(t, "Bronze", card.Bonus.Tier.TierName)
	assert.Equal(t, "Pro", card.Level.Current.Title)
}

func TestProgram_SummarizeAll_Ranked(t *testing.T) {
	p := incentive.DefaultProgram() // monthly
	cards := p.SummarizeAll([]incentive.WorkerPoints{
		{EmployeeID: "x", MonthlyPoints: pts(10)},
		{EmployeeID: "y", MonthlyPoints: pts(900)},
	}, incentive.RankOptions{})

	require.Len(t, cards, 2)
	assert.Equal(t, "y", cards[0].Worker.EmployeeID)
	assert.Equal(t, 1, cards[0].Rank)
}
