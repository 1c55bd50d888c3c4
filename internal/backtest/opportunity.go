package backtest

import (
	"sort"
	"time"
)

// OpportunityCandidate is one position scored for liquidation.
type OpportunityCandidate struct {
	CoinID string
	Score  float64
	Value  float64
}

// ScoreOpportunities ranks every eligible position (not the BUY's
// target coin, not protected, past the minimum hold period) from
// weakest to strongest so the weakest sells first (spec.md 4.C9).
// Score combines unrealized P&L percent, position age in days, and the
// position's relative underperformance versus the BUY's expected edge
// (buyConfidence); lower score sells first.
func ScoreOpportunities(portfolio *Portfolio, marks map[string]float64, targetCoin string, cfg OpportunitySellingConfig, minHoldMs int64, nowMillis int64, buyConfidence float64) []OpportunityCandidate {
	var candidates []OpportunityCandidate

	for coinID, pos := range portfolio.Positions {
		if coinID == targetCoin {
			continue
		}
		if cfg.ProtectedCoins != nil && cfg.ProtectedCoins[coinID] {
			continue
		}
		if pos.Quantity <= 0 {
			continue
		}

		entryMillis := pos.EntryDate.UnixNano() / int64(time.Millisecond)
		if nowMillis-entryMillis < minHoldMs {
			continue
		}

		mark, ok := marks[coinID]
		if !ok {
			mark = pos.AveragePrice
		}
		unrealizedPct := 0.0
		if pos.AveragePrice != 0 {
			unrealizedPct = (mark - pos.AveragePrice) / pos.AveragePrice
		}

		ageDays := float64(nowMillis-entryMillis) / float64(dayMillis)
		relativeUnderperformance := buyConfidence - unrealizedPct

		score := unrealizedPct - 0.001*ageDays - 0.5*relativeUnderperformance

		candidates = append(candidates, OpportunityCandidate{
			CoinID: coinID,
			Score:  score,
			Value:  pos.Quantity * mark,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Score < candidates[j].Score
	})

	return candidates
}

// SelectLiquidations walks ranked candidates, accumulating sells until
// shortfall is covered or the maxLiquidationPercent*totalValue cap is
// hit, whichever comes first.
func SelectLiquidations(candidates []OpportunityCandidate, shortfall float64, totalValue float64, cfg OpportunitySellingConfig) []OpportunityCandidate {
	capAmount := cfg.MaxLiquidationPercent * totalValue
	var selected []OpportunityCandidate
	liquidated := 0.0
	covered := 0.0

	for _, c := range candidates {
		if covered >= shortfall {
			break
		}
		if liquidated+c.Value > capAmount {
			continue
		}
		selected = append(selected, c)
		liquidated += c.Value
		covered += c.Value
	}

	return selected
}
