package incentive

import "sort"

// =============================================================================
// LEADERBOARD
// =============================================================================

type RankedWorker struct {
	WorkerPoints
	Rank  int
	Level LevelInfo
}

type RankOptions struct {
	// TieBreakByEmployeeID orders equal scores by ascending employee id
	// instead of input order.
	TieBreakByEmployeeID bool

	// Levels, when set, fills RankedWorker.Level from TotalPoints.
	Levels []Level
}

// Rank sorts workers descending by metric and assigns rank = index + 1.
// Equal scores keep their input order unless opts asks for a tie-break.
// The input slice is not modified.
func Rank(workers []WorkerPoints, metric Metric, opts RankOptions) []RankedWorker {
	sorted := append([]WorkerPoints(nil), workers...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Value(metric), sorted[j].Value(metric)
		if !a.Equal(b) {
			return a.GreaterThan(b)
		}
		if opts.TieBreakByEmployeeID {
			return sorted[i].EmployeeID < sorted[j].EmployeeID
		}
		return false
	})

	ranked := make([]RankedWorker, len(sorted))
	for i, w := range sorted {
		ranked[i] = RankedWorker{WorkerPoints: w, Rank: i + 1}
		if opts.Levels != nil {
			ranked[i].Level = LevelInfoFor(w.TotalPoints, opts.Levels)
		}
	}
	return ranked
}
