package backtest

// ThrottleDecision is the outcome of evaluating a candidate signal
// against the throttle state (spec.md 4.C6).
type ThrottleDecision struct {
	Allowed bool
	Reason  string
}

const dayMillis = 24 * 60 * 60 * 1000

// EvaluateThrottle applies cooldown, daily cap, and min-sell-fraction
// gates in that order. Risk-control signals never reach this function;
// the orchestrator routes them around it.
func EvaluateThrottle(state *ThrottleState, signal TradingSignal, nowMillis int64, cfg BacktestConfig, positionQty float64) ThrottleDecision {
	key := signal.CoinID + "|" + string(signal.Action)

	if last, ok := state.LastSignalAt[key]; ok {
		if nowMillis-last < cfg.CooldownMs {
			return ThrottleDecision{Allowed: false, Reason: "cooldown"}
		}
	}

	pruneWindow(state, signal.CoinID, nowMillis)
	if cfg.MaxTradesPerDay > 0 && len(state.TradesInWindow[signal.CoinID]) >= cfg.MaxTradesPerDay {
		return ThrottleDecision{Allowed: false, Reason: "daily_cap"}
	}

	if signal.Action == Sell && cfg.MinSellPercent > 0 && positionQty > 0 {
		frac := resolveSellFraction(signal, positionQty)
		if frac < cfg.MinSellPercent {
			return ThrottleDecision{Allowed: false, Reason: "min_sell_fraction"}
		}
	}

	return ThrottleDecision{Allowed: true}
}

// RecordAccepted updates the throttle state after a signal clears
// EvaluateThrottle and is executed.
func RecordAccepted(state *ThrottleState, signal TradingSignal, nowMillis int64) {
	key := signal.CoinID + "|" + string(signal.Action)
	state.LastSignalAt[key] = nowMillis
	state.TradesInWindow[signal.CoinID] = append(state.TradesInWindow[signal.CoinID], nowMillis)
}

func pruneWindow(state *ThrottleState, coinID string, nowMillis int64) {
	cutoff := nowMillis - dayMillis
	kept := state.TradesInWindow[coinID][:0]
	for _, ts := range state.TradesInWindow[coinID] {
		if ts > cutoff {
			kept = append(kept, ts)
		}
	}
	state.TradesInWindow[coinID] = kept
}

// resolveSellFraction computes the fraction of the held position a SELL
// signal targets, resolved quantity > percentage > confidence (spec.md
// 4.C6 step 1), matching the executor's own sizing priority.
func resolveSellFraction(signal TradingSignal, positionQty float64) float64 {
	if signal.Quantity != nil && positionQty > 0 {
		return *signal.Quantity / positionQty
	}
	if signal.Percentage != nil {
		return *signal.Percentage
	}
	if signal.Confidence > 0 {
		return 0.25 + 0.75*signal.Confidence
	}
	return 1.0
}
