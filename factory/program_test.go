package factory_test

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/storeops-engine/factory"
	"github.com/warp/storeops-engine/generic"
	"github.com/warp/storeops-engine/incentive"
)

const twoTierProgram = `{
  "name": "two-tier",
  "payout_frequency": "weekly",
  "worker_tiers": [
    {"id": "low", "min_points": 0, "max_points": 999, "tier_name": "Low", "bonus_amount": 0, "bonus_per_point": 0},
    {"id": "high", "min_points": 1000, "max_points": null, "tier_name": "High", "bonus_amount": 500, "bonus_per_point": "0.1"}
  ],
  "levels": [
    {"level": 1, "points": 0, "title": "One"},
    {"level": 2, "points": 500, "title": "Two"},
    {"level": 3, "points": 2000, "title": "Three"},
    {"level": 4, "points": 5000, "title": "Four"}
  ]
}`

func TestParseProgram_TwoTiers(t *testing.T) {
	// GIVEN: A program with two worker tiers and four levels
	// WHEN: Parsed and used for 1500 points
	// THEN: The unbounded tier pays 650

	program, err := factory.NewProgramFactory().ParseProgram(twoTierProgram)
	require.NoError(t, err)

	assert.Equal(t, generic.PayoutWeekly, program.PayoutFrequency)
	require.Len(t, program.WorkerTiers, 2)
	assert.Nil(t, program.WorkerTiers[1].MaxPoints)

	res := incentive.CalculateBonus(decimal.NewFromInt(1500), program.WorkerTiers)
	assert.Equal(t, "high", res.Tier.ID)
	assert.True(t, res.Bonus.Equal(decimal.NewFromInt(650)))

	info := incentive.LevelInfoFor(decimal.NewFromInt(2450), program.Levels)
	assert.Equal(t, "Three", info.Current.Title)
}

func TestParseProgram_MissingTablesUseDefaults(t *testing.T) {
	program, err := factory.NewProgramFactory().ParseProgram(`{"name": "minimal"}`)
	require.NoError(t, err)

	assert.Equal(t, generic.PayoutMonthly, program.PayoutFrequency)
	assert.Equal(t, incentive.DistributionAllowAny, program.DistributionMode)
	assert.Len(t, program.StoreTiers, len(incentive.DefaultStoreBonusTiers()))
	assert.Len(t, program.Levels, 10)
}

func TestParseProgram_RejectModeWithBadSum(t *testing.T) {
	// GIVEN: Reject mode and the stock role table (sums to 97)
	// THEN: Program is refused at load time

	_, err := factory.NewProgramFactory().ParseProgram(`{"name": "strict", "distribution_mode": "reject"}`)

	require.Error(t, err)
	assert.Equal(t, generic.CodeDistributionSum, generic.ValidationCode(err))
}

func TestParseProgram_NormalizeMode(t *testing.T) {
	program, err := factory.NewProgramFactory().ParseProgram(`{
		"name": "split",
		"distribution_mode": "normalize",
		"role_distribution": [{"role": "Manager", "percentage": 30}, {"role": "Cashier", "percentage": 30}]
	}`)
	require.NoError(t, err)

	dist, err := program.Distribution.Validate(program.DistributionMode)
	require.NoError(t, err)
	share, ok := dist.ShareFor("cashier", decimal.NewFromInt(1000))
	require.True(t, ok)
	assert.True(t, share.Equal(decimal.NewFromInt(500)), "got %s", share)
}

func TestParseProgram_PointRulesOverlay(t *testing.T) {
	program, err := factory.NewProgramFactory().ParseProgram(`{
		"name": "rules",
		"point_rules": [{"action": "pick", "points": 20, "enabled": true}]
	}`)
	require.NoError(t, err)

	assert.True(t, program.PointRules[incentive.ActionPick].Points.Equal(decimal.NewFromInt(20)))
	assert.True(t, program.PointRules[incentive.ActionPack].Enabled, "other rules keep defaults")
}

func TestParseProgram_Invalid(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"malformed", `{"name": `},
		{"missing name", `{}`},
		{"bad frequency", `{"name": "x", "payout_frequency": "daily"}`},
		{"bad mode", `{"name": "x", "distribution_mode": "maybe"}`},
		{"inverted tier", `{"name": "x", "worker_tiers": [{"tier_name": "t", "min_points": 10, "max_points": 5, "bonus_amount": 0}]}`},
		{"level without title", `{"name": "x", "levels": [{"level": 1, "points": 0}]}`},
		{"unknown action", `{"name": "x", "point_rules": [{"action": "JUGGLE", "points": 1, "enabled": true}]}`},
	}

	f := factory.NewProgramFactory()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ParseProgram(tt.json)
			assert.Error(t, err)
		})
	}
}

func TestToJSON_ReparsesToSameTables(t *testing.T) {
	f := factory.NewProgramFactory()
	original := incentive.DefaultProgram()

	raw, err := json.Marshal(factory.ToJSON(original))
	require.NoError(t, err)

	back, err := f.ParseProgram(string(raw))
	require.NoError(t, err)

	assert.Len(t, back.WorkerTiers, len(original.WorkerTiers))
	assert.True(t, back.Distribution.Total().Equal(original.Distribution.Total()))
	assert.Len(t, back.PointRules, len(original.PointRules))
}
