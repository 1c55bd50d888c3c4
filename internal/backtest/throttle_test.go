package backtest

import "testing"

func TestEvaluateThrottle_Cooldown(t *testing.T) {
	state := NewThrottleState()
	cfg := DefaultBacktestConfig()
	cfg.CooldownMs = 1000
	cfg.MaxTradesPerDay = 0
	cfg.MinSellPercent = 0

	signal := TradingSignal{Action: Buy, CoinID: "BTC"}
	RecordAccepted(state, signal, 0)

	d := EvaluateThrottle(state, signal, 500, cfg, 0)
	if d.Allowed {
		t.Fatalf("expected cooldown to block the signal")
	}

	d2 := EvaluateThrottle(state, signal, 1500, cfg, 0)
	if !d2.Allowed {
		t.Fatalf("expected signal to be allowed after cooldown elapses, got reason %q", d2.Reason)
	}
}

func TestEvaluateThrottle_DailyCap(t *testing.T) {
	state := NewThrottleState()
	cfg := DefaultBacktestConfig()
	cfg.CooldownMs = 0
	cfg.MaxTradesPerDay = 2
	cfg.MinSellPercent = 0

	signal := TradingSignal{Action: Buy, CoinID: "BTC"}
	RecordAccepted(state, signal, 0)
	RecordAccepted(state, signal, 100)

	d := EvaluateThrottle(state, signal, 200, cfg, 0)
	if d.Allowed || d.Reason != "daily_cap" {
		t.Fatalf("expected daily cap to block, got %+v", d)
	}
}

func TestEvaluateThrottle_WindowRollsOff(t *testing.T) {
	state := NewThrottleState()
	cfg := DefaultBacktestConfig()
	cfg.CooldownMs = 0
	cfg.MaxTradesPerDay = 1
	cfg.MinSellPercent = 0

	signal := TradingSignal{Action: Buy, CoinID: "BTC"}
	RecordAccepted(state, signal, 0)

	d := EvaluateThrottle(state, signal, dayMillis+1, cfg, 0)
	if !d.Allowed {
		t.Fatalf("expected the 24h-old entry to roll off the window, got reason %q", d.Reason)
	}
}

func TestEvaluateThrottle_MinSellFraction(t *testing.T) {
	state := NewThrottleState()
	cfg := DefaultBacktestConfig()
	cfg.CooldownMs = 0
	cfg.MaxTradesPerDay = 0
	cfg.MinSellPercent = 0.5

	frac := 0.2
	signal := TradingSignal{Action: Sell, CoinID: "BTC", Percentage: &frac}

	d := EvaluateThrottle(state, signal, 0, cfg, 10)
	if d.Allowed || d.Reason != "min_sell_fraction" {
		t.Fatalf("expected min sell fraction to block a 20%% sell, got %+v", d)
	}

	bigFrac := 0.75
	signal2 := TradingSignal{Action: Sell, CoinID: "BTC", Percentage: &bigFrac}
	d2 := EvaluateThrottle(state, signal2, 0, cfg, 10)
	if !d2.Allowed {
		t.Fatalf("expected a 75%% sell to pass the min sell fraction gate, got %+v", d2)
	}
}
