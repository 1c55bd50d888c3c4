// Package algorithms holds example backtest.Algorithm implementations
// that plug into the orchestrator by name.
package algorithms

import (
	"context"
	"fmt"

	"backtestd/internal/backtest"
)

// MomentumConfig parameterizes MomentumAlgorithm. Field meanings mirror
// the teacher's MomentumStrategy (internal/trading/strategies/
// momentum.go): MACD fast/slow/signal periods, the volume multiplier
// that gates a signal on above-average volume, and the minimum combined
// momentum score required to emit a BUY/SELL.
type MomentumConfig struct {
	MACDFast         int
	MACDSlow         int
	MACDSignal       int
	VolumeMultiplier float64
	MinMomentumScore float64
	TargetAllocation float64
}

// DefaultMomentumConfig mirrors the teacher's NewMomentumStrategy
// defaults.
func DefaultMomentumConfig() MomentumConfig {
	return MomentumConfig{
		MACDFast:         12,
		MACDSlow:         26,
		MACDSignal:       9,
		VolumeMultiplier: 2.0,
		MinMomentumScore: 0.6,
		TargetAllocation: 0.5,
	}
}

// MomentumAlgorithm rides price trends confirmed by volume, adapted
// from the teacher's MomentumStrategy onto the candle-driven
// backtest.Algorithm contract: every coin in the run's universe is
// scored independently each bar from its PriceSummary window.
type MomentumAlgorithm struct {
	cfg MomentumConfig
}

// NewMomentumAlgorithm builds a momentum algorithm with cfg. A zero
// MACDSlow (as in the zero-value config) falls back to
// DefaultMomentumConfig; other zero fields are kept as given.
func NewMomentumAlgorithm(cfg MomentumConfig) *MomentumAlgorithm {
	if cfg.MACDSlow == 0 {
		cfg = DefaultMomentumConfig()
	}
	return &MomentumAlgorithm{cfg: cfg}
}

// Execute scores every coin's window and emits a BUY/SELL when the
// combined MACD/volume/velocity momentum score clears MinMomentumScore,
// matching the teacher's Generate().
func (a *MomentumAlgorithm) Execute(ctx context.Context, algoCtx backtest.AlgorithmContext) (backtest.AlgorithmResult, error) {
	var signals []backtest.AlgorithmSignal

	for _, coin := range algoCtx.Coins {
		window := algoCtx.PriceData[coin.ID]
		if len(window) < a.cfg.MACDSlow {
			continue
		}

		closes := make([]float64, len(window))
		volumes := make([]float64, len(window))
		for i, ps := range window {
			closes[i] = ps.Close
			// PriceSummary carries no volume field (spec.md Open Question
			// resolved by dropping volume from the algorithm-facing
			// window); approximate recent activity from the High-Low
			// range instead, scaled so VolumeMultiplier stays meaningful.
			volumes[i] = (ps.High - ps.Low) * ps.Close
		}

		macdLine, signalLine, histogram := a.calculateMACD(closes)
		avgVolume := average(volumes[:len(volumes)-1])
		currentVolume := volumes[len(volumes)-1]
		volumeRatio := 1.0
		if avgVolume > 0 {
			volumeRatio = currentVolume / avgVolume
		}
		velocity := priceVelocity(closes)
		score := a.momentumScore(histogram, volumeRatio, velocity)

		strength := a.cfg.TargetAllocation

		switch {
		case histogram > 0 && macdLine > signalLine && volumeRatio > a.cfg.VolumeMultiplier && velocity > 0 && score >= a.cfg.MinMomentumScore:
			signals = append(signals, backtest.AlgorithmSignal{
				Type:       backtest.SignalBuy,
				CoinID:     coin.ID,
				Strength:   &strength,
				Confidence: score,
				Reason:     fmt.Sprintf("bullish momentum: macd=%.4f volumeRatio=%.2fx velocity=%.4f", histogram, volumeRatio, velocity),
			})
		case histogram < 0 && macdLine < signalLine && volumeRatio > a.cfg.VolumeMultiplier && velocity < 0 && score >= a.cfg.MinMomentumScore:
			if algoCtx.Positions[coin.ID] > 0 {
				full := 1.0
				signals = append(signals, backtest.AlgorithmSignal{
					Type:       backtest.SignalSell,
					CoinID:     coin.ID,
					Strength:   &full,
					Confidence: score,
					Reason:     fmt.Sprintf("bearish momentum: macd=%.4f volumeRatio=%.2fx velocity=%.4f", histogram, volumeRatio, velocity),
				})
			}
		}
	}

	return backtest.AlgorithmResult{Success: true, Signals: signals}, nil
}

// calculateMACD mirrors the teacher's simplified MACD: true EMA(fast)
// and EMA(slow), with the signal line taken as 90% of the MACD line
// rather than its own EMA (teacher's documented simplification).
func (a *MomentumAlgorithm) calculateMACD(prices []float64) (macdLine, signalLine, histogram float64) {
	if len(prices) < a.cfg.MACDSlow {
		return 0, 0, 0
	}
	emaFast := ema(prices, a.cfg.MACDFast)
	emaSlow := ema(prices, a.cfg.MACDSlow)
	macdLine = emaFast - emaSlow
	signalLine = macdLine * 0.9
	histogram = macdLine - signalLine
	return macdLine, signalLine, histogram
}

func (a *MomentumAlgorithm) momentumScore(histogram, volumeRatio, velocity float64) float64 {
	histogramStrength := 0.0
	switch {
	case histogram > 0.001 || histogram < -0.001:
		histogramStrength = 0.4
	case histogram > 0.0005 || histogram < -0.0005:
		histogramStrength = 0.2
	}

	volumeStrength := 0.0
	switch {
	case volumeRatio > a.cfg.VolumeMultiplier:
		volumeStrength = 0.3
	case volumeRatio > a.cfg.VolumeMultiplier*0.75:
		volumeStrength = 0.15
	}

	absVelocity := velocity
	if absVelocity < 0 {
		absVelocity = -absVelocity
	}
	velocityStrength := 0.0
	switch {
	case absVelocity > 0.05:
		velocityStrength = 0.3
	case absVelocity > 0.02:
		velocityStrength = 0.15
	}

	return histogramStrength + volumeStrength + velocityStrength
}

func ema(prices []float64, period int) float64 {
	if len(prices) < period {
		return prices[len(prices)-1]
	}
	multiplier := 2.0 / float64(period+1)
	value := prices[len(prices)-period]
	for i := len(prices) - period + 1; i < len(prices); i++ {
		value = (prices[i] * multiplier) + (value * (1 - multiplier))
	}
	return value
}

func priceVelocity(prices []float64) float64 {
	const lookback = 10
	if len(prices) < lookback {
		return 0
	}
	old := prices[len(prices)-lookback]
	latest := prices[len(prices)-1]
	if old == 0 {
		return 0
	}
	return (latest - old) / old
}

func average(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
