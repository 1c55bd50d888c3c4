package algorithms

import (
	"context"
	"testing"
	"time"

	"backtestd/internal/backtest"
)

func risingWindow(n int, start float64) []backtest.PriceSummary {
	out := make([]backtest.PriceSummary, n)
	price := start
	for i := 0; i < n; i++ {
		price *= 1.01
		out[i] = backtest.PriceSummary{
			Coin:  "ETH",
			Date:  time.Now(),
			Avg:   price,
			High:  price * 1.05,
			Low:   price * 0.98,
			Close: price,
		}
	}
	return out
}

func TestMomentumAlgorithm_EmitsBuyOnStrongUptrend(t *testing.T) {
	cfg := DefaultMomentumConfig()
	cfg.MinMomentumScore = 0.0
	cfg.VolumeMultiplier = 0.0
	algo := NewMomentumAlgorithm(cfg)

	algoCtx := backtest.AlgorithmContext{
		Coins:     []backtest.Coin{{ID: "ETH", Symbol: "ETH"}},
		PriceData: map[string][]backtest.PriceSummary{"ETH": risingWindow(30, 100)},
	}

	result, err := algo.Execute(context.Background(), algoCtx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success")
	}

	foundBuy := false
	for _, sig := range result.Signals {
		if sig.CoinID == "ETH" && sig.Type == backtest.SignalBuy {
			foundBuy = true
		}
	}
	if !foundBuy {
		t.Fatalf("expected a BUY signal for a strong uptrend, got %+v", result.Signals)
	}
}

func TestMomentumAlgorithm_NoSignalOnInsufficientHistory(t *testing.T) {
	algo := NewMomentumAlgorithm(DefaultMomentumConfig())

	algoCtx := backtest.AlgorithmContext{
		Coins:     []backtest.Coin{{ID: "ETH", Symbol: "ETH"}},
		PriceData: map[string][]backtest.PriceSummary{"ETH": risingWindow(5, 100)},
	}

	result, err := algo.Execute(context.Background(), algoCtx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Signals) != 0 {
		t.Fatalf("expected no signals with insufficient history, got %+v", result.Signals)
	}
}
