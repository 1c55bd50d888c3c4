package backtest

import (
	"math"
	"testing"
)

func pnl(v float64) *float64 { return &v }

func TestMetricsAccumulator_HarvestSplitsWinsAndLosses(t *testing.T) {
	m := NewMetricsAccumulator(nil, 0)

	trades := []Trade{
		{Type: Sell, RealizedPnL: pnl(10)},
		{Type: Sell, RealizedPnL: pnl(-5)},
		{Type: Buy},
	}
	m.Harvest(trades, nil)

	counts := m.PersistedCounts()
	if counts.Sells != 2 {
		t.Fatalf("expected 2 sells, got %d", counts.Sells)
	}
	if counts.WinningSells != 1 {
		t.Fatalf("expected 1 winning sell, got %d", counts.WinningSells)
	}
	if counts.GrossProfit != 10 {
		t.Fatalf("expected gross profit 10, got %v", counts.GrossProfit)
	}
	if counts.GrossLoss != 5 {
		t.Fatalf("expected gross loss 5, got %v", counts.GrossLoss)
	}
	if counts.Trades != 3 {
		t.Fatalf("expected 3 total trades, got %d", counts.Trades)
	}
}

func TestMetricsAccumulator_DrawdownTracksPeak(t *testing.T) {
	m := NewMetricsAccumulator(nil, 1000)
	m.UpdateDrawdown(1200)
	m.UpdateDrawdown(900)
	m.UpdateDrawdown(1100)

	if m.PeakValue() != 1200 {
		t.Fatalf("expected peak 1200, got %v", m.PeakValue())
	}
	expectedDD := (1200.0 - 900.0) / 1200.0
	if math.Abs(m.MaxDrawdown()-expectedDD) > 1e-9 {
		t.Fatalf("expected max drawdown %v, got %v", expectedDD, m.MaxDrawdown())
	}
}

func TestMetricsAccumulator_Finalize_ProfitFactorCapAndWinRate(t *testing.T) {
	m := NewMetricsAccumulator(nil, 0)
	m.Harvest([]Trade{
		{Type: Sell, RealizedPnL: pnl(100)},
		{Type: Sell, RealizedPnL: pnl(-1)},
	}, nil)

	metrics := m.Finalize(11000, 10000, 365)

	if metrics.WinRate != 0.5 {
		t.Fatalf("expected win rate 0.5, got %v", metrics.WinRate)
	}
	if metrics.ProfitFactor != 10 {
		t.Fatalf("expected profit factor capped at 10, got %v", metrics.ProfitFactor)
	}
	if math.Abs(metrics.TotalReturn-0.1) > 1e-9 {
		t.Fatalf("expected total return 0.1, got %v", metrics.TotalReturn)
	}
	if math.Abs(metrics.AnnualizedReturn-0.1) > 1e-6 {
		t.Fatalf("expected annualized return ~= total return over 365 days, got %v", metrics.AnnualizedReturn)
	}
}

func TestMetricsAccumulator_Finalize_NoLossesGivesProfitFactorOfTen(t *testing.T) {
	m := NewMetricsAccumulator(nil, 0)
	m.Harvest([]Trade{{Type: Sell, RealizedPnL: pnl(50)}}, nil)

	metrics := m.Finalize(10050, 10000, 30)
	if metrics.ProfitFactor != 10 {
		t.Fatalf("expected profit factor 10 with zero gross loss, got %v", metrics.ProfitFactor)
	}
}

func TestMetricsAccumulator_Finalize_NoTradesGivesProfitFactorOfOne(t *testing.T) {
	m := NewMetricsAccumulator(nil, 0)
	metrics := m.Finalize(10000, 10000, 30)
	if metrics.ProfitFactor != 1 {
		t.Fatalf("expected profit factor 1 with no trades at all, got %v", metrics.ProfitFactor)
	}
}
