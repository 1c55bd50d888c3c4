package backtest

import "sort"

// MetaHardStopLoss and MetaStopExecutionPrice identify metadata fields
// attached to synthetic stop-loss trades.
const (
	MetaHardStopLoss       = "hardStopLoss"
	MetaStopExecutionPrice = "stopExecutionPrice"
)

// GenerateHardStopLosses scans every held position and emits a
// synthetic full-exit SELL for any position whose detection price has
// breached the loss threshold (spec.md 4.C8). detectionPrice prefers
// the candle low (wick-aware) and falls back to close. Generated
// signals bypass throttle, regime gate, and hold-period by construction
// — the orchestrator must route them around those gates. Positions are
// visited in sorted coinID order so the emitted signal sequence is
// deterministic across runs, independent of Go's randomized map
// iteration order (spec.md §8 Determinism invariant).
func GenerateHardStopLosses(portfolio *Portfolio, candles map[string]Candle, cfg BacktestConfig) []TradingSignal {
	if !cfg.EnableHardStopLoss {
		return nil
	}

	coinIDs := make([]string, 0, len(portfolio.Positions))
	for coinID := range portfolio.Positions {
		coinIDs = append(coinIDs, coinID)
	}
	sort.Strings(coinIDs)

	var signals []TradingSignal
	for _, coinID := range coinIDs {
		pos := portfolio.Positions[coinID]
		if pos.Quantity <= 0 {
			continue
		}
		candle, ok := candles[coinID]
		if !ok {
			continue
		}

		detectionPrice := candle.Low
		if detectionPrice == 0 {
			detectionPrice = candle.Close
		}

		unrealizedPct := (detectionPrice - pos.AveragePrice) / pos.AveragePrice
		if unrealizedPct > -cfg.HardStopLossPercent {
			continue
		}

		qty := pos.Quantity
		stopExecutionPrice := pos.AveragePrice * (1 - cfg.HardStopLossPercent)

		signals = append(signals, TradingSignal{
			Action:       Sell,
			CoinID:       coinID,
			Quantity:     &qty,
			Confidence:   1.0,
			Reason:       "hard_stop_loss",
			OriginalType: SignalStopLoss,
			Metadata: map[string]interface{}{
				MetaHardStopLoss:       true,
				MetaStopExecutionPrice: stopExecutionPrice,
			},
		})
	}
	return signals
}
