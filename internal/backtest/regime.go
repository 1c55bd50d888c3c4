package backtest

import "math"

// RegimeClassification is the composite market-regime verdict (spec.md
// 4.C7).
type RegimeClassification string

const (
	RegimeRiskOn  RegimeClassification = "RISK_ON"
	RegimeRiskOff RegimeClassification = "RISK_OFF"
	RegimeNeutral RegimeClassification = "NEUTRAL"
)

// VolatilityRegime buckets realized volatility over the recent return
// series.
type VolatilityRegime string

const (
	VolatilityLow    VolatilityRegime = "LOW"
	VolatilityNormal VolatilityRegime = "NORMAL"
	VolatilityHigh   VolatilityRegime = "HIGH"
)

// RegimeGate holds enough BTC history to classify the market regime.
type RegimeGate struct {
	smaPeriod int
}

// NewRegimeGate builds a gate that requires smaPeriod BTC closes before
// it activates.
func NewRegimeGate(smaPeriod int) *RegimeGate {
	return &RegimeGate{smaPeriod: smaPeriod}
}

// Classify computes the regime from a BTC close window (oldest first).
// It returns NEUTRAL, with active=false, until the window holds at
// least smaPeriod samples (spec.md 4.C7).
func (g *RegimeGate) Classify(btcCloses []float64) (classification RegimeClassification, active bool) {
	if len(btcCloses) < g.smaPeriod {
		return RegimeNeutral, false
	}

	window := btcCloses[len(btcCloses)-g.smaPeriod:]
	sma := sum(window) / float64(len(window))
	latest := btcCloses[len(btcCloses)-1]
	trendUp := latest > sma

	vol := volatilityRegime(btcCloses)

	switch {
	case trendUp && vol != VolatilityHigh:
		return RegimeRiskOn, true
	case !trendUp:
		return RegimeRiskOff, true
	default:
		return RegimeNeutral, true
	}
}

// FilterBuy reports whether a BUY signal may pass in the current
// regime; it returns false only for RISK_OFF. SELL signals always pass
// and never reach here.
func FilterBuy(classification RegimeClassification) bool {
	return classification != RegimeRiskOff
}

func volatilityRegime(closes []float64) VolatilityRegime {
	const lookback = 20
	if len(closes) < lookback+1 {
		return VolatilityNormal
	}
	window := closes[len(closes)-lookback-1:]

	returns := make([]float64, 0, lookback)
	for i := 1; i < len(window); i++ {
		if window[i-1] == 0 {
			continue
		}
		returns = append(returns, (window[i]-window[i-1])/window[i-1])
	}
	if len(returns) == 0 {
		return VolatilityNormal
	}

	mean := sum(returns) / float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	stdev := math.Sqrt(variance)

	switch {
	case stdev < 0.01:
		return VolatilityLow
	case stdev > 0.03:
		return VolatilityHigh
	default:
		return VolatilityNormal
	}
}

func sum(xs []float64) float64 {
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total
}
