package backtest

import (
	"testing"
	"time"
)

func TestScoreOpportunities_ExcludesTargetProtectedAndRecentEntries(t *testing.T) {
	portfolio := NewPortfolio(0)
	portfolio.Positions["BTC"] = &Position{CoinID: "BTC", Quantity: 1, AveragePrice: 100, EntryDate: time.UnixMilli(0)}
	portfolio.Positions["ETH"] = &Position{CoinID: "ETH", Quantity: 1, AveragePrice: 100, EntryDate: time.UnixMilli(0)}
	portfolio.Positions["SOL"] = &Position{CoinID: "SOL", Quantity: 1, AveragePrice: 100, EntryDate: time.UnixMilli(0)}

	cfg := OpportunitySellingConfig{ProtectedCoins: map[string]bool{"ETH": true}}
	marks := map[string]float64{"BTC": 90, "ETH": 90, "SOL": 90}

	now := dayMillis * 2
	candidates := ScoreOpportunities(portfolio, marks, "SOL", cfg, dayMillis, now, 0.5)

	if len(candidates) != 1 || candidates[0].CoinID != "BTC" {
		t.Fatalf("expected only BTC eligible, got %+v", candidates)
	}
}

func TestScoreOpportunities_WeakestFirst(t *testing.T) {
	portfolio := NewPortfolio(0)
	portfolio.Positions["WINNER"] = &Position{CoinID: "WINNER", Quantity: 1, AveragePrice: 100, EntryDate: time.UnixMilli(0)}
	portfolio.Positions["LOSER"] = &Position{CoinID: "LOSER", Quantity: 1, AveragePrice: 100, EntryDate: time.UnixMilli(0)}

	cfg := OpportunitySellingConfig{}
	marks := map[string]float64{"WINNER": 120, "LOSER": 80}

	now := dayMillis * 2
	candidates := ScoreOpportunities(portfolio, marks, "TARGET", cfg, dayMillis, now, 0.0)

	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if candidates[0].CoinID != "LOSER" {
		t.Fatalf("expected LOSER to sort first (weakest), got %+v", candidates)
	}
}

func TestSelectLiquidations_StopsOnceShortfallCovered(t *testing.T) {
	candidates := []OpportunityCandidate{
		{CoinID: "A", Score: -1, Value: 50},
		{CoinID: "B", Score: 0, Value: 50},
		{CoinID: "C", Score: 1, Value: 50},
	}

	selected := SelectLiquidations(candidates, 60, 1000, OpportunitySellingConfig{MaxLiquidationPercent: 1.0})
	if len(selected) != 2 {
		t.Fatalf("expected 2 liquidations to cover a 60 shortfall, got %d", len(selected))
	}
}

func TestSelectLiquidations_RespectsMaxLiquidationCap(t *testing.T) {
	candidates := []OpportunityCandidate{
		{CoinID: "A", Score: -1, Value: 80},
		{CoinID: "B", Score: 0, Value: 80},
	}

	selected := SelectLiquidations(candidates, 1000, 100, OpportunitySellingConfig{MaxLiquidationPercent: 0.5})
	total := 0.0
	for _, s := range selected {
		total += s.Value
	}
	if total > 50 {
		t.Fatalf("expected liquidation to respect the 50%% cap, liquidated %v", total)
	}
}
