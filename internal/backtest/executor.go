package backtest

import "time"

// ExecutionInput bundles everything the executor needs to resolve one
// signal into a mutation of the portfolio (spec.md 4.C10).
type ExecutionInput struct {
	Signal       TradingSignal
	Portfolio    *Portfolio
	MarketPrices map[string]float64
	DailyVolume  map[string]float64
	FeeConfig    FeeConfig
	Slippage     SlippageConfig
	RNG          *RNG
	MinHoldMs    int64
	MaxAllocation float64
	MinAllocation float64
	Now          time.Time
}

// ExecutionOutput is what a successful executor call produces.
type ExecutionOutput struct {
	Trade       Trade
	SlippageBps float64
}

// Execute is the trade executor: the single choke-point through which
// every portfolio mutation flows. It returns (nil, false) for any
// rejection — the caller (orchestrator or opportunity-seller retry)
// treats that as "no trade happened", not an error.
func Execute(in ExecutionInput) (*ExecutionOutput, bool) {
	isRiskControl := in.Signal.OriginalType.IsRiskControl()

	basePrice, ok := resolveBasePrice(in)
	if !ok {
		return nil, false
	}

	existingPosition := in.Portfolio.Positions[in.Signal.CoinID]

	estimateQty := estimateOrderSize(in, existingPosition, basePrice)

	nowMillis := in.Now.UnixNano() / int64(time.Millisecond)
	quote := QuoteSlippage(SlippageInput{
		Price:       basePrice,
		Quantity:    estimateQty,
		IsBuy:       in.Signal.Action == Buy,
		DailyVolume: dailyVolumeFor(in),
		CoinID:      in.Signal.CoinID,
		Timestamp:   nowMillis,
	}, in.Slippage)
	executionPrice := quote.ExecutionPrice

	var quantity float64
	var totalValue float64

	if in.Signal.Action == Buy {
		if in.Signal.Quantity != nil {
			quantity = *in.Signal.Quantity
			totalValue = quantity * executionPrice
		} else {
			alloc := resolveBuyAllocation(in)
			invest := in.Portfolio.TotalValue * alloc
			quantity = invest / executionPrice
			totalValue = invest
		}
	} else {
		if existingPosition == nil || existingPosition.Quantity <= 0 {
			return nil, false
		}
		if in.Signal.Quantity != nil {
			quantity = *in.Signal.Quantity
		} else {
			fraction := resolveSellFractionForExecutor(in.Signal, in.RNG)
			quantity = fraction * existingPosition.Quantity
		}
		if quantity > existingPosition.Quantity {
			quantity = existingPosition.Quantity
		}
		totalValue = quantity * executionPrice
	}

	var holdTimeMs *int64
	if in.Signal.Action == Sell {
		if !isRiskControl && in.MinHoldMs > 0 {
			heldMs := nowMillis - existingPosition.EntryDate.UnixNano()/int64(time.Millisecond)
			if heldMs < in.MinHoldMs {
				return nil, false
			}
			holdTimeMs = &heldMs
		} else if existingPosition != nil {
			heldMs := nowMillis - existingPosition.EntryDate.UnixNano()/int64(time.Millisecond)
			holdTimeMs = &heldMs
		}
	}

	fee := CalculateFee(totalValue, in.FeeConfig, false)

	if in.Signal.Action == Buy {
		if in.Portfolio.CashBalance < totalValue+fee {
			return nil, false
		}
	}

	var realizedPnL *float64
	var realizedPnLPercent *float64
	var costBasis *float64

	if in.Signal.Action == Buy {
		in.Portfolio.CashBalance -= totalValue
		updated := ApplyBuy(existingPosition, in.Signal.CoinID, quantity, executionPrice, in.Now)
		in.Portfolio.Positions[in.Signal.CoinID] = updated
	} else {
		remaining, pnl := ApplySell(existingPosition, quantity, executionPrice)
		in.Portfolio.CashBalance += totalValue
		if remaining == nil {
			delete(in.Portfolio.Positions, in.Signal.CoinID)
		} else {
			in.Portfolio.Positions[in.Signal.CoinID] = remaining
		}
		realizedPnL = &pnl.Amount
		realizedPnLPercent = &pnl.Percent
		costBasis = &pnl.CostBasis
	}

	in.Portfolio.CashBalance -= fee

	MarkToMarket(in.Portfolio, in.MarketPrices)

	metadata := map[string]interface{}{
		"basePrice":   basePrice,
		"slippageBps": quote.SlippageBps,
		"reason":      in.Signal.Reason,
		"confidence":  in.Signal.Confidence,
	}
	if holdTimeMs != nil {
		metadata["holdTimeMs"] = *holdTimeMs
	}
	if isRiskControl {
		if hsl, ok := in.Signal.Metadata[MetaHardStopLoss]; ok {
			metadata[MetaHardStopLoss] = hsl
		}
	}

	trade := Trade{
		Type:               in.Signal.Action,
		CoinID:             in.Signal.CoinID,
		Quantity:           quantity,
		Price:              executionPrice,
		TotalValue:         totalValue,
		Fee:                fee,
		RealizedPnL:        realizedPnL,
		RealizedPnLPercent: realizedPnLPercent,
		CostBasis:          costBasis,
		ExecutedAt:         in.Now,
		Metadata:           metadata,
	}

	return &ExecutionOutput{Trade: trade, SlippageBps: quote.SlippageBps}, true
}

func resolveBasePrice(in ExecutionInput) (float64, bool) {
	if in.Signal.OriginalType.IsRiskControl() {
		if v, ok := in.Signal.Metadata[MetaStopExecutionPrice]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	price, ok := in.MarketPrices[in.Signal.CoinID]
	return price, ok
}

func estimateOrderSize(in ExecutionInput, existing *Position, basePrice float64) float64 {
	if in.Signal.Action == Buy {
		const defaultRatio = 0.10
		return defaultRatio * in.Portfolio.TotalValue / basePrice
	}
	if existing == nil {
		return 0
	}
	return 0.5 * existing.Quantity
}

func dailyVolumeFor(in ExecutionInput) *float64 {
	if in.DailyVolume == nil {
		return nil
	}
	if v, ok := in.DailyVolume[in.Signal.CoinID]; ok {
		return &v
	}
	return nil
}

// EstimateBuyRequirement approximates the cash a BUY signal will need
// (notional + fee) using the executor's own sizing rules, without
// consuming RNG state — used by the opportunity-seller to compute the
// shortfall it must cover (spec.md 4.C9) before the executor's real,
// RNG-consuming retry runs.
func EstimateBuyRequirement(sig TradingSignal, portfolioValue float64, basePrice float64, cfg BacktestConfig) float64 {
	var notional float64
	switch {
	case sig.Quantity != nil:
		notional = *sig.Quantity * basePrice
	case sig.Percentage != nil:
		notional = portfolioValue * clamp(*sig.Percentage, cfg.MinAllocation, cfg.MaxAllocation)
	case sig.Confidence > 0:
		alloc := cfg.MinAllocation + sig.Confidence*(cfg.MaxAllocation-cfg.MinAllocation)
		notional = portfolioValue * alloc
	default:
		// RNG fallback: assume the conservative (largest) allocation so
		// the opportunity-seller never under-liquidates.
		notional = portfolioValue * cfg.MaxAllocation
	}
	return notional + CalculateFee(notional, cfg.Fee, false)
}

func resolveBuyAllocation(in ExecutionInput) float64 {
	if in.Signal.Percentage != nil {
		return clamp(*in.Signal.Percentage, in.MinAllocation, in.MaxAllocation)
	}
	if in.Signal.Confidence > 0 {
		return in.MinAllocation + in.Signal.Confidence*(in.MaxAllocation-in.MinAllocation)
	}
	r := in.RNG.Next()
	return clamp(r, in.MinAllocation, in.MaxAllocation)
}

func resolveSellFractionForExecutor(signal TradingSignal, rng *RNG) float64 {
	if signal.Percentage != nil {
		return *signal.Percentage
	}
	if signal.Confidence > 0 {
		return 0.25 + 0.75*signal.Confidence
	}
	return clamp(rng.Next(), 0.25, 1.0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
