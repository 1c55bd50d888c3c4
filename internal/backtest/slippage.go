package backtest

import "math"

// SlippageInput is the quote request for one candidate order.
type SlippageInput struct {
	Price       float64
	Quantity    float64
	IsBuy       bool
	DailyVolume *float64
	CoinID      string
	Timestamp   int64 // unix millis, used only by the historical variant
}

// SlippageQuote is the result of applying a slippage model.
type SlippageQuote struct {
	ExecutionPrice float64
	SlippageBps    float64
}

// QuoteSlippage turns (price, quantity, side, volume) into an
// execution price and the bps of slippage applied (spec.md 4.C2).
func QuoteSlippage(in SlippageInput, cfg SlippageConfig) SlippageQuote {
	var bps float64

	switch cfg.Type {
	case SlippageFixed:
		bps = capSlippage(cfg.FixedBps, cfg.MaxSlippageBps)
	case SlippageVolumeBased:
		notional := in.Price * in.Quantity
		volume := epsilon
		if in.DailyVolume != nil && *in.DailyVolume > epsilon {
			volume = *in.DailyVolume
		}
		bps = cfg.BaseSlippageBps + cfg.VolumeImpactFactor*(notional/volume)
		bps = capSlippage(bps, cfg.MaxSlippageBps)
	case SlippageHistorical:
		bps = capSlippage(historicalBps(in, cfg), cfg.MaxSlippageBps)
	case SlippageNone:
		fallthrough
	default:
		return SlippageQuote{ExecutionPrice: in.Price, SlippageBps: 0}
	}

	sign := 1.0
	if !in.IsBuy {
		sign = -1.0
	}
	executionPrice := in.Price * (1 + sign*bps/10_000.0)

	return SlippageQuote{ExecutionPrice: executionPrice, SlippageBps: bps}
}

// epsilon guards the volume-based formula's division against a zero
// or missing daily volume.
const epsilon = 1e-9

func capSlippage(bps, maxBps float64) float64 {
	if maxBps > 0 && bps > maxBps {
		return maxBps
	}
	if bps < 0 {
		return 0
	}
	return bps
}

// historicalBps looks up an empirical slippage distribution keyed by
// coin and the timestamp truncated to a day boundary.
func historicalBps(in SlippageInput, cfg SlippageConfig) float64 {
	if cfg.Historical == nil {
		return 0
	}
	byCoin, ok := cfg.Historical[in.CoinID]
	if !ok {
		return 0
	}
	dayMillis := int64(24 * 60 * 60 * 1000)
	dayBucket := (in.Timestamp / dayMillis) * dayMillis
	if bps, ok := byCoin[dayBucket]; ok {
		return math.Abs(bps)
	}
	return 0
}
