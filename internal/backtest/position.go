package backtest

import "time"

// ApplyBuy folds an added lot into an existing (possibly empty/nil)
// position using weighted-average cost accounting (spec.md 4.C4 BUY).
// It returns the resulting position; EntryDate is preserved if already
// set, otherwise set to barTime.
func ApplyBuy(existing *Position, coinID string, addedQty, addedPrice float64, barTime time.Time) *Position {
	if existing == nil {
		return &Position{
			CoinID:       coinID,
			Quantity:     addedQty,
			AveragePrice: addedPrice,
			EntryDate:    barTime,
		}
	}

	newQty := existing.Quantity + addedQty
	var newAvg float64
	if existing.Quantity == 0 {
		newAvg = addedPrice
	} else {
		newAvg = (existing.AveragePrice*existing.Quantity + addedPrice*addedQty) / newQty
	}

	entryDate := existing.EntryDate
	if entryDate.IsZero() {
		entryDate = barTime
	}

	return &Position{
		CoinID:       coinID,
		Quantity:     newQty,
		AveragePrice: newAvg,
		EntryDate:    entryDate,
	}
}

// RealizedPnL is the result of selling soldQty out of a position at
// executionPrice (spec.md 4.C4 SELL). Fee is never included here; it is
// deducted from cash separately by the executor.
type RealizedPnL struct {
	Amount    float64
	Percent   float64
	CostBasis float64
}

// ApplySell computes realized P&L against the position's average price
// at the moment of sale and returns the reduced position (nil if fully
// closed).
func ApplySell(existing *Position, soldQty, executionPrice float64) (*Position, RealizedPnL) {
	costBasis := existing.AveragePrice
	pnl := (executionPrice - costBasis) * soldQty

	var pnlPercent float64
	if costBasis != 0 {
		pnlPercent = (executionPrice - costBasis) / costBasis
	}

	remainingQty := existing.Quantity - soldQty
	result := RealizedPnL{Amount: pnl, Percent: pnlPercent, CostBasis: costBasis}

	if remainingQty <= 0 {
		return nil, result
	}

	return &Position{
		CoinID:       existing.CoinID,
		Quantity:     remainingQty,
		AveragePrice: existing.AveragePrice,
		EntryDate:    existing.EntryDate,
	}, result
}
