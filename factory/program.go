/*
Package factory provides JSON to Go incentive program conversion.

PURPOSE:
  Converts JSON program definitions into incentive.Program values. Payout
  tables, level ladders, role splits and point rules are edited by
  operations staff in an admin screen and stored as JSON; the factory turns
  them into the structs the engine computes with.

JSON SCHEMA:
  {
    "name": "warehouse-2025",
    "payout_frequency": "monthly",
    "distribution_mode": "normalize",
    "worker_tiers": [
      {"id": "t1", "min_points": 0, "max_points": 999, "tier_name": "Base",
       "bonus_amount": 0, "bonus_per_point": 0},
      {"id": "t2", "min_points": 1000, "max_points": null, "tier_name": "Top",
       "bonus_amount": 500, "bonus_per_point": "0.1"}
    ],
    "store_tiers": [...],
    "levels": [{"level": 1, "points": 0, "title": "Rookie"}, ...],
    "role_distribution": [{"role": "Cashier", "percentage": 12}, ...],
    "point_rules": [{"action": "PICK", "points": 15, "enabled": true}, ...]
  }

  Numbers may be JSON numbers or strings; both decode into exact decimals.

DEFAULTS:
  Any table left out of the JSON is filled from the stock tables in the
  incentive package. An empty payout frequency means monthly and an empty
  distribution mode means allow.

USAGE:
  f := factory.NewProgramFactory()
  program, err := f.ParseProgram(jsonString)

SEE ALSO:
  - incentive/types.go: Program type definition
  - incentive/defaults.go: Stock tables
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/storeops-engine/generic"
	"github.com/warp/storeops-engine/incentive"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ProgramJSON is the JSON representation of a program.
type ProgramJSON struct {
	Name             string          `json:"name" validate:"required"`
	PayoutFrequency  string          `json:"payout_frequency,omitempty" validate:"omitempty,oneof=weekly biweekly monthly"`
	DistributionMode string          `json:"distribution_mode,omitempty" validate:"omitempty,oneof=allow reject normalize"`
	WorkerTiers      []TierJSON      `json:"worker_tiers,omitempty" validate:"dive"`
	StoreTiers       []TierJSON      `json:"store_tiers,omitempty" validate:"dive"`
	Levels           []LevelJSON     `json:"levels,omitempty" validate:"dive"`
	RoleDistribution []RoleJSON      `json:"role_distribution,omitempty" validate:"dive"`
	PointRules       []PointRuleJSON `json:"point_rules,omitempty" validate:"dive"`
}

// TierJSON represents one bonus tier. A null max_points is unbounded.
type TierJSON struct {
	ID            string           `json:"id"`
	MinPoints     decimal.Decimal  `json:"min_points"`
	MaxPoints     *decimal.Decimal `json:"max_points"`
	TierName      string           `json:"tier_name" validate:"required"`
	TierColor     string           `json:"tier_color,omitempty"`
	BonusAmount   decimal.Decimal  `json:"bonus_amount"`
	BonusPerPoint decimal.Decimal  `json:"bonus_per_point,omitempty"`
}

type LevelJSON struct {
	Level  int             `json:"level" validate:"gte=1"`
	Points decimal.Decimal `json:"points"`
	Title  string          `json:"title" validate:"required"`
}

type RoleJSON struct {
	ID         string          `json:"id,omitempty"`
	Role       string          `json:"role" validate:"required"`
	Percentage decimal.Decimal `json:"percentage"`
	Color      string          `json:"color,omitempty"`
}

type PointRuleJSON struct {
	ID          string          `json:"id,omitempty"`
	Action      string          `json:"action" validate:"required"`
	Points      decimal.Decimal `json:"points"`
	Description string          `json:"description,omitempty"`
	Enabled     bool            `json:"enabled"`
}

// =============================================================================
// PROGRAM FACTORY
// =============================================================================

// ProgramFactory converts JSON programs to Go structs.
type ProgramFactory struct {
	validate *validator.Validate
}

// NewProgramFactory creates a new program factory.
func NewProgramFactory() *ProgramFactory {
	return &ProgramFactory{validate: validator.New()}
}

// ParseProgram parses a JSON string into a Program.
func (f *ProgramFactory) ParseProgram(jsonStr string) (incentive.Program, error) {
	var pj ProgramJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return incentive.Program{}, fmt.Errorf("failed to parse program JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// LoadFile reads and parses a program file.
func (f *ProgramFactory) LoadFile(path string) (incentive.Program, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return incentive.Program{}, fmt.Errorf("read program file: %w", err)
	}
	return f.ParseProgram(string(raw))
}

// FromJSON converts ProgramJSON to incentive.Program.
func (f *ProgramFactory) FromJSON(pj ProgramJSON) (incentive.Program, error) {
	if err := f.validate.Struct(pj); err != nil {
		return incentive.Program{}, validationError(err)
	}

	freq, err := generic.ParsePayoutFrequency(pj.PayoutFrequency)
	if err != nil {
		return incentive.Program{}, generic.NewValidationError(generic.CodeInvalidInput, "%v", err)
	}
	mode, _ := incentive.ParseDistributionMode(pj.DistributionMode)

	program := incentive.DefaultProgram()
	program.Name = pj.Name
	program.PayoutFrequency = freq
	program.DistributionMode = mode

	if len(pj.WorkerTiers) > 0 {
		if program.WorkerTiers, err = parseTiers(pj.WorkerTiers); err != nil {
			return incentive.Program{}, err
		}
	}
	if len(pj.StoreTiers) > 0 {
		if program.StoreTiers, err = parseTiers(pj.StoreTiers); err != nil {
			return incentive.Program{}, err
		}
	}
	if len(pj.Levels) > 0 {
		program.Levels = parseLevels(pj.Levels)
	}
	if len(pj.RoleDistribution) > 0 {
		program.Distribution = parseRoles(pj.RoleDistribution)
	}
	if len(pj.PointRules) > 0 {
		if program.PointRules, err = parsePointRules(pj.PointRules); err != nil {
			return incentive.Program{}, err
		}
	}

	// Reject-mode programs are checked up front so a bad table never loads.
	if _, err := program.Distribution.Validate(program.DistributionMode); err != nil {
		return incentive.Program{}, err
	}
	return program, nil
}

// ToJSON is the inverse of FromJSON.
func ToJSON(p incentive.Program) ProgramJSON {
	pj := ProgramJSON{
		Name:             p.Name,
		PayoutFrequency:  string(p.PayoutFrequency),
		DistributionMode: string(p.DistributionMode),
	}
	pj.WorkerTiers = tiersToJSON(p.WorkerTiers)
	pj.StoreTiers = tiersToJSON(p.StoreTiers)
	for _, l := range p.Levels {
		pj.Levels = append(pj.Levels, LevelJSON{Level: l.Level, Points: l.Points, Title: l.Title})
	}
	for _, r := range p.Distribution {
		pj.RoleDistribution = append(pj.RoleDistribution, RoleJSON{ID: r.ID, Role: r.Role, Percentage: r.Percentage, Color: r.Color})
	}
	for _, r := range p.PointRules {
		pj.PointRules = append(pj.PointRules, PointRuleJSON{
			ID: r.ID, Action: string(r.Action), Points: r.Points, Description: r.Description, Enabled: r.Enabled,
		})
	}
	return pj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseTiers(tjs []TierJSON) ([]incentive.BonusTier, error) {
	tiers := make([]incentive.BonusTier, 0, len(tjs))
	for i, tj := range tjs {
		if tj.MinPoints.IsNegative() {
			return nil, generic.NewValidationError(generic.CodeInvalidInput, "tier %q: negative min_points", tj.TierName)
		}
		if tj.MaxPoints != nil && tj.MaxPoints.LessThan(tj.MinPoints) {
			return nil, generic.NewValidationError(generic.CodeInvalidInput, "tier %q: max_points below min_points", tj.TierName)
		}
		id := tj.ID
		if id == "" {
			id = fmt.Sprintf("tier-%d", i+1)
		}
		tiers = append(tiers, incentive.BonusTier{
			ID:            id,
			MinPoints:     tj.MinPoints,
			MaxPoints:     tj.MaxPoints,
			TierName:      tj.TierName,
			TierColor:     tj.TierColor,
			BonusAmount:   tj.BonusAmount,
			BonusPerPoint: tj.BonusPerPoint,
		})
	}
	return tiers, nil
}

func tiersToJSON(tiers []incentive.BonusTier) []TierJSON {
	out := make([]TierJSON, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, TierJSON{
			ID: t.ID, MinPoints: t.MinPoints, MaxPoints: t.MaxPoints,
			TierName: t.TierName, TierColor: t.TierColor,
			BonusAmount: t.BonusAmount, BonusPerPoint: t.BonusPerPoint,
		})
	}
	return out
}

func parseLevels(ljs []LevelJSON) []incentive.Level {
	levels := make([]incentive.Level, 0, len(ljs))
	for _, lj := range ljs {
		levels = append(levels, incentive.Level{Level: lj.Level, Points: lj.Points, Title: lj.Title})
	}
	return levels
}

func parseRoles(rjs []RoleJSON) incentive.Distribution {
	dist := make(incentive.Distribution, 0, len(rjs))
	for i, rj := range rjs {
		id := rj.ID
		if id == "" {
			id = fmt.Sprintf("role-%d", i+1)
		}
		dist = append(dist, incentive.RoleShare{ID: id, Role: rj.Role, Percentage: rj.Percentage, Color: rj.Color})
	}
	return dist
}

var knownActions = map[incentive.RuleAction]bool{
	incentive.ActionPick: true, incentive.ActionPack: true, incentive.ActionPutaway: true,
	incentive.ActionTransfer: true, incentive.ActionDispatch: true, incentive.ActionItemBonus: true,
	incentive.ActionAccuracy100: true, incentive.ActionAccuracy95: true,
	incentive.ActionSpeedFast: true, incentive.ActionSpeedQuick: true,
	incentive.ActionStreak3: true, incentive.ActionStreak7: true, incentive.ActionStreak30: true,
}

// parsePointRules overlays the given rules on the defaults, so a program
// that only retunes PICK keeps every other rule.
func parsePointRules(rjs []PointRuleJSON) (incentive.PointRules, error) {
	rules := incentive.DefaultPointRules()
	for _, rj := range rjs {
		action := incentive.RuleAction(strings.ToUpper(strings.TrimSpace(rj.Action)))
		if !knownActions[action] {
			return nil, generic.NewValidationError(generic.CodeInvalidInput, "unknown point rule action %q", rj.Action)
		}
		r := rules[action]
		r.Action = action
		r.Points = rj.Points
		r.Enabled = rj.Enabled
		if rj.ID != "" {
			r.ID = rj.ID
		}
		if rj.Description != "" {
			r.Description = rj.Description
		}
		rules[action] = r
	}
	return rules, nil
}

// validationError flattens validator output into one ValidationError,
// field -> failed tag.
func validationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return generic.NewValidationError(generic.CodeInvalidInput, "%v", err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Namespace()+"="+fe.Tag())
	}
	return generic.NewValidationError(generic.CodeInvalidInput, "%s", strings.Join(parts, ", "))
}
