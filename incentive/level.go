package incentive

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEVEL INFO
// =============================================================================

type LevelInfo struct {
	Current         Level
	Next            Level // equals Current at the top level
	PointsToNext    decimal.Decimal
	ProgressPercent decimal.Decimal
}

// AtMax reports whether the top level has been reached.
func (li LevelInfo) AtMax() bool { return li.Current.Level == li.Next.Level }

// LevelInfoFor places totalPoints on the level ladder.
//
// The table is sorted ascending by threshold and scanned from the top; the
// first level at or below totalPoints is current. A total below every
// threshold lands on the first level, and an empty table yields DefaultLevel.
func LevelInfoFor(totalPoints decimal.Decimal, levels []Level) LevelInfo {
	sorted := append([]Level(nil), levels...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Points.LessThan(sorted[j].Points)
	})
	if len(sorted) == 0 {
		sorted = []Level{DefaultLevel}
	}

	idx := 0
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i].Points.LessThanOrEqual(totalPoints) {
			idx = i
			break
		}
	}

	current := sorted[idx]
	next := current
	if idx+1 < len(sorted) {
		next = sorted[idx+1]
	}

	info := LevelInfo{
		Current:      current,
		Next:         next,
		PointsToNext: next.Points.Sub(totalPoints),
	}
	if idx+1 >= len(sorted) {
		info.ProgressPercent = hundred
	} else {
		info.ProgressPercent = progress(totalPoints, current.Points, next.Points)
	}
	return info
}
