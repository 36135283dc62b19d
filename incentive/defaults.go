package incentive

import "github.com/shopspring/decimal"

// =============================================================================
// DEFAULT TABLES
// =============================================================================

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func dp(v int64) *decimal.Decimal {
	x := decimal.NewFromInt(v)
	return &x
}

func rate(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// DefaultBonusTiers are the individual warehouse payout brackets.
func DefaultBonusTiers() []BonusTier {
	return []BonusTier{
		{ID: "tier-1", MinPoints: d(0), MaxPoints: dp(99), TierName: "Training", TierColor: "gray", BonusAmount: d(0), BonusPerPoint: d(0)},
		{ID: "tier-2", MinPoints: d(100), MaxPoints: dp(299), TierName: "Bronze", TierColor: "amber", BonusAmount: d(500), BonusPerPoint: rate("0.5")},
		{ID: "tier-3", MinPoints: d(300), MaxPoints: dp(599), TierName: "Silver", TierColor: "gray", BonusAmount: d(1200), BonusPerPoint: rate("0.75")},
		{ID: "tier-4", MinPoints: d(600), MaxPoints: dp(999), TierName: "Gold", TierColor: "yellow", BonusAmount: d(2500), BonusPerPoint: rate("1.0")},
		{ID: "tier-5", MinPoints: d(1000), MaxPoints: dp(1999), TierName: "Platinum", TierColor: "cyan", BonusAmount: d(5000), BonusPerPoint: rate("1.25")},
		{ID: "tier-6", MinPoints: d(2000), MaxPoints: nil, TierName: "Diamond", TierColor: "purple", BonusAmount: d(10000), BonusPerPoint: rate("1.5")},
	}
}

// DefaultStoreBonusTiers are the point-of-sale team payout brackets.
func DefaultStoreBonusTiers() []BonusTier {
	return []BonusTier{
		{ID: "pos-tier-1", MinPoints: d(0), MaxPoints: dp(499), TierName: "Starting", TierColor: "gray", BonusAmount: d(0), BonusPerPoint: d(0)},
		{ID: "pos-tier-2", MinPoints: d(500), MaxPoints: dp(1499), TierName: "Bronze", TierColor: "amber", BonusAmount: d(2000), BonusPerPoint: rate("0.5")},
		{ID: "pos-tier-3", MinPoints: d(1500), MaxPoints: dp(2999), TierName: "Silver", TierColor: "gray", BonusAmount: d(5000), BonusPerPoint: rate("0.75")},
		{ID: "pos-tier-4", MinPoints: d(3000), MaxPoints: dp(5999), TierName: "Gold", TierColor: "yellow", BonusAmount: d(10000), BonusPerPoint: rate("1.0")},
		{ID: "pos-tier-5", MinPoints: d(6000), MaxPoints: dp(9999), TierName: "Platinum", TierColor: "cyan", BonusAmount: d(20000), BonusPerPoint: rate("1.25")},
		{ID: "pos-tier-6", MinPoints: d(10000), MaxPoints: nil, TierName: "Diamond", TierColor: "purple", BonusAmount: d(40000), BonusPerPoint: rate("1.5")},
	}
}

// DefaultLevels is the ten-step gamification ladder.
func DefaultLevels() []Level {
	return []Level{
		{Level: 1, Points: d(0), Title: "Rookie"},
		{Level: 2, Points: d(100), Title: "Apprentice"},
		{Level: 3, Points: d(300), Title: "Worker"},
		{Level: 4, Points: d(600), Title: "Skilled"},
		{Level: 5, Points: d(1000), Title: "Expert"},
		{Level: 6, Points: d(2000), Title: "Pro"},
		{Level: 7, Points: d(4000), Title: "Master"},
		{Level: 8, Points: d(7000), Title: "Elite"},
		{Level: 9, Points: d(12000), Title: "Champion"},
		{Level: 10, Points: d(20000), Title: "Legend"},
	}
}

// DefaultRoleDistribution sums to 97, not 100.
func DefaultRoleDistribution() Distribution {
	return Distribution{
		{ID: "role-1", Role: "Store Manager", Percentage: d(30), Color: "yellow"},
		{ID: "role-2", Role: "Assistant Manager", Percentage: d(20), Color: "purple"},
		{ID: "role-3", Role: "Senior Cashier", Percentage: d(15), Color: "cyan"},
		{ID: "role-4", Role: "Cashier", Percentage: d(12), Color: "blue"},
		{ID: "role-5", Role: "Sales Associate", Percentage: d(10), Color: "green"},
		{ID: "role-6", Role: "Stock Clerk", Percentage: d(8), Color: "amber"},
		{ID: "role-8", Role: "Support Staff", Percentage: d(2), Color: "gray"},
	}
}

// DefaultPointRules are the warehouse job scoring rules.
func DefaultPointRules() PointRules {
	rules := []PointRule{
		{ID: "wpr-1", Action: ActionPick, Points: d(15), Description: "Base points for picking a job"},
		{ID: "wpr-2", Action: ActionPack, Points: d(10), Description: "Base points for packing a job"},
		{ID: "wpr-3", Action: ActionPutaway, Points: d(8), Description: "Base points for putaway a job"},
		{ID: "wpr-4", Action: ActionTransfer, Points: d(10), Description: "Base points for transfer a job"},
		{ID: "wpr-5", Action: ActionDispatch, Points: d(8), Description: "Base points for dispatch a job"},
		{ID: "wpr-6", Action: ActionItemBonus, Points: d(2), Description: "Points per item processed"},
		{ID: "wpr-7", Action: ActionAccuracy100, Points: d(50), Description: "Bonus for 100% accuracy"},
		{ID: "wpr-8", Action: ActionAccuracy95, Points: d(25), Description: "Bonus for 95%+ accuracy"},
		{ID: "wpr-9", Action: ActionStreak3, Points: d(25), Description: "Bonus for 3-day active streak"},
		{ID: "wpr-10", Action: ActionStreak7, Points: d(75), Description: "Bonus for 7-day active streak"},
		{ID: "wpr-11", Action: ActionStreak30, Points: d(300), Description: "Bonus for 30-day active streak"},
		{ID: "wpr-12", Action: ActionSpeedFast, Points: d(15), Description: "Completed 50%+ faster than average"},
		{ID: "wpr-13", Action: ActionSpeedQuick, Points: d(8), Description: "Completed 25%+ faster than average"},
	}
	out := make(PointRules, len(rules))
	for _, r := range rules {
		r.Enabled = true
		out[r.Action] = r
	}
	return out
}
