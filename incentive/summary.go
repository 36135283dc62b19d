package incentive

import (
	"github.com/shopspring/decimal"
)

// Card is everything an incentive dashboard shows for one worker.
type Card struct {
	Worker       WorkerPoints
	Level        LevelInfo
	PayoutMetric Metric
	PayoutPoints decimal.Decimal
	Bonus        BonusResult
	TierProgress TierProgress
	Rank         int // 0 when not ranked
}

// Summarize builds a worker's card. Levels read TotalPoints; the bonus
// estimate reads the counter matching the program's payout frequency.
func (p Program) Summarize(w WorkerPoints) Card {
	metric := MetricFor(p.PayoutFrequency)
	pts := w.Value(metric)
	return Card{
		Worker:       w,
		Level:        LevelInfoFor(w.TotalPoints, p.Levels),
		PayoutMetric: metric,
		PayoutPoints: pts,
		Bonus:        CalculateBonus(pts, p.WorkerTiers),
		TierProgress: TierProgressFor(pts, p.WorkerTiers),
	}
}

// SummarizeAll ranks workers on the payout metric and returns their cards
// in rank order.
func (p Program) SummarizeAll(workers []WorkerPoints, opts RankOptions) []Card {
	ranked := Rank(workers, MetricFor(p.PayoutFrequency), opts)
	cards := make([]Card, len(ranked))
	for i, r := range ranked {
		cards[i] = p.Summarize(r.WorkerPoints)
		cards[i].Rank = r.Rank
	}
	return cards
}
