package backtest

import (
	"sort"
	"time"
)

// MarkToMarket recomputes TotalValue from cash plus each position's
// quantity times the supplied mark price (spec.md 4.C5). A coin with no
// entry in marks is valued at its AveragePrice.
func MarkToMarket(p *Portfolio, marks map[string]float64) {
	positionsValue := 0.0
	for coinID, pos := range p.Positions {
		mark, ok := marks[coinID]
		if !ok {
			mark = pos.AveragePrice
		}
		pos.TotalValue = pos.Quantity * mark
		positionsValue += pos.TotalValue
	}
	p.TotalValue = p.CashBalance + positionsValue
}

// PositionsValue sums every held position's current TotalValue without
// touching cash.
func PositionsValue(p *Portfolio) float64 {
	sum := 0.0
	for _, pos := range p.Positions {
		sum += pos.TotalValue
	}
	return sum
}

// Serialize converts a live Portfolio into its checkpoint-safe shape.
func Serialize(p *Portfolio) SerializedPortfolio {
	positions := make([]SerializedPosition, 0, len(p.Positions))
	for _, pos := range p.Positions {
		var entryDate *time.Time
		if !pos.EntryDate.IsZero() {
			d := pos.EntryDate
			entryDate = &d
		}
		positions = append(positions, SerializedPosition{
			CoinID:       pos.CoinID,
			Quantity:     pos.Quantity,
			AveragePrice: pos.AveragePrice,
			EntryDate:    entryDate,
		})
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].CoinID < positions[j].CoinID })

	return SerializedPortfolio{
		CashBalance: p.CashBalance,
		Positions:   positions,
		TotalValue:  p.TotalValue,
	}
}

// Deserialize reconstructs a live Portfolio from its checkpoint shape.
func Deserialize(s SerializedPortfolio) *Portfolio {
	positions := make(map[string]*Position, len(s.Positions))
	for _, sp := range s.Positions {
		pos := &Position{
			CoinID:       sp.CoinID,
			Quantity:     sp.Quantity,
			AveragePrice: sp.AveragePrice,
		}
		if sp.EntryDate != nil {
			pos.EntryDate = *sp.EntryDate
		}
		positions[sp.CoinID] = pos
	}
	return &Portfolio{
		CashBalance: s.CashBalance,
		Positions:   positions,
		TotalValue:  s.TotalValue,
	}
}
