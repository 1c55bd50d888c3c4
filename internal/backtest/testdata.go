package backtest

import (
	"math"
	"time"
)

// SyntheticDataConfig parameterizes GenerateSyntheticCandles.
type SyntheticDataConfig struct {
	CoinID       string
	NumCandles   int
	StartPrice   float64
	StartTime    time.Time
	IntervalMins int
	Seed         string
}

// GenerateSyntheticCandles produces a deterministic, realistic-looking
// OHLCV series for exercising the engine without a real dataset. It is
// grounded on the teacher's GenerateSyntheticData (internal/trading/
// backtester.go): a sinusoidal random walk with a slight drift plus
// RNG-perturbed high/low wicks, rebuilt here to use the engine's own
// seeded RNG instead of wall-clock time so the output is reproducible
// (spec.md 4.C1 RNG determinism carries over to generated fixtures).
func GenerateSyntheticCandles(cfg SyntheticDataConfig) []Candle {
	if cfg.NumCandles <= 0 {
		return nil
	}
	interval := time.Duration(cfg.IntervalMins) * time.Minute
	if interval <= 0 {
		interval = time.Minute
	}

	rng := NewRNG(cfg.Seed)
	candles := make([]Candle, cfg.NumCandles)
	currentPrice := cfg.StartPrice

	for i := 0; i < cfg.NumCandles; i++ {
		drift := (math.Sin(float64(i)/10)*0.02 + math.Cos(float64(i)/20)*0.015) * currentPrice
		currentPrice += drift

		open := currentPrice
		wickNoise := rng.Next()
		high := open * (1 + math.Abs(math.Sin(float64(i)))*0.01*(0.5+wickNoise))
		low := open * (1 - math.Abs(math.Cos(float64(i)))*0.01*(0.5+rng.Next()))
		if low > high {
			low, high = high, low
		}
		close := low + (high-low)*0.5
		volume := 100_000 + math.Abs(math.Sin(float64(i)))*50_000

		candles[i] = Candle{
			CoinID:    cfg.CoinID,
			Timestamp: cfg.StartTime.Add(time.Duration(i) * interval),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    volume,
		}

		currentPrice = close
	}

	return candles
}
