package backtest

import (
	"testing"
	"time"
)

func TestGenerateSyntheticCandles_DeterministicForSameSeed(t *testing.T) {
	cfg := SyntheticDataConfig{
		CoinID:       "ETH",
		NumCandles:   50,
		StartPrice:   1000,
		StartTime:    time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		IntervalMins: 60,
		Seed:         "fixture-seed",
	}

	a := GenerateSyntheticCandles(cfg)
	b := GenerateSyntheticCandles(cfg)

	if len(a) != len(b) || len(a) != cfg.NumCandles {
		t.Fatalf("expected %d candles twice, got %d and %d", cfg.NumCandles, len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("candle %d differs between runs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestGenerateSyntheticCandles_OHLCConsistency(t *testing.T) {
	candles := GenerateSyntheticCandles(SyntheticDataConfig{
		CoinID:     "BTC",
		NumCandles: 20,
		StartPrice: 30000,
		StartTime:  time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		Seed:       "btc-seed",
	})

	for _, c := range candles {
		if c.Low > c.High {
			t.Fatalf("low %v exceeds high %v", c.Low, c.High)
		}
		if c.Close < c.Low || c.Close > c.High {
			t.Fatalf("close %v outside [low,high] [%v,%v]", c.Close, c.Low, c.High)
		}
		if c.Volume <= 0 {
			t.Fatalf("expected positive volume, got %v", c.Volume)
		}
	}
}
