package backtest

import "math"

const (
	periodsPerYear = 365.0
	riskFreeRate   = 0.0
)

// MetricsAccumulator incrementally tracks the counters needed for the
// final performance report, surviving checkpoint/resume by carrying
// PersistedCounts across harvests (spec.md 4.C12).
type MetricsAccumulator struct {
	counts         PersistedCounts
	snapshotValues []float64
	peakValue      float64
	maxDrawdown    float64
}

// NewMetricsAccumulator seeds the accumulator, optionally resuming from
// a checkpoint's persisted counts.
func NewMetricsAccumulator(resumed *PersistedCounts, initialPeak float64) *MetricsAccumulator {
	m := &MetricsAccumulator{peakValue: initialPeak}
	if resumed != nil {
		m.counts = *resumed
	}
	return m
}

// Harvest folds a batch of trades and snapshots into the cumulative
// counters. Callers clear their in-memory arrays after this returns.
func (m *MetricsAccumulator) Harvest(trades []Trade, snapshots []Snapshot) {
	m.counts.Trades += len(trades)
	for _, tr := range trades {
		if tr.Type != Sell {
			continue
		}
		m.counts.Sells++
		if tr.RealizedPnL != nil {
			if *tr.RealizedPnL > 0 {
				m.counts.WinningSells++
				m.counts.GrossProfit += *tr.RealizedPnL
			} else {
				m.counts.GrossLoss += -*tr.RealizedPnL
			}
		}
	}
	for _, s := range snapshots {
		m.snapshotValues = append(m.snapshotValues, s.PortfolioValue)
	}
}

// RecordSignal increments the raw signal counter, independent of
// whether the signal was ultimately accepted and executed.
func (m *MetricsAccumulator) RecordSignal() {
	m.counts.Signals++
}

// UpdateDrawdown recomputes the running peak and max drawdown given the
// current total portfolio value.
func (m *MetricsAccumulator) UpdateDrawdown(totalValue float64) {
	if totalValue > m.peakValue {
		m.peakValue = totalValue
	}
	if m.peakValue > 0 {
		dd := (m.peakValue - totalValue) / m.peakValue
		if dd > m.maxDrawdown {
			m.maxDrawdown = dd
		}
	}
}

// ResumeDrawdown seeds maxDrawdown from a resumed checkpoint; it must
// be called before any UpdateDrawdown on the resumed run.
func (m *MetricsAccumulator) ResumeDrawdown(maxDrawdown float64) {
	m.maxDrawdown = maxDrawdown
}

// PersistedCounts returns a copy of the cumulative counters for
// checkpointing.
func (m *MetricsAccumulator) PersistedCounts() PersistedCounts {
	return m.counts
}

// PeakValue returns the running peak portfolio value.
func (m *MetricsAccumulator) PeakValue() float64 {
	return m.peakValue
}

// MaxDrawdown returns the running max drawdown fraction.
func (m *MetricsAccumulator) MaxDrawdown() float64 {
	return m.maxDrawdown
}

// Finalize computes the final BacktestMetrics report (spec.md 4.C12).
func (m *MetricsAccumulator) Finalize(finalValue, initialCapital, durationDays float64) BacktestMetrics {
	totalReturn := 0.0
	if initialCapital != 0 {
		totalReturn = (finalValue - initialCapital) / initialCapital
	}

	annualizedReturn := totalReturn
	if durationDays > 0 {
		annualizedReturn = math.Pow(1+totalReturn, 365.0/durationDays) - 1
	}

	returns := periodReturns(m.snapshotValues)
	mean, stdev := meanAndStdev(returns)

	sharpe := 0.0
	if stdev != 0 {
		sharpe = (mean - riskFreeRate) / stdev * math.Sqrt(periodsPerYear)
	}
	volatility := stdev * math.Sqrt(252)

	profitFactor := 1.0
	if m.counts.GrossLoss == 0 {
		if m.counts.GrossProfit > 0 {
			profitFactor = 10
		}
	} else {
		profitFactor = math.Min(m.counts.GrossProfit/m.counts.GrossLoss, 10)
	}

	winRate := 0.0
	if m.counts.Sells > 0 {
		winRate = float64(m.counts.WinningSells) / float64(m.counts.Sells)
	}

	return BacktestMetrics{
		TotalReturn:      totalReturn,
		AnnualizedReturn: annualizedReturn,
		Sharpe:           sharpe,
		Volatility:       volatility,
		ProfitFactor:     profitFactor,
		WinRate:          winRate,
		MaxDrawdown:      m.maxDrawdown,
		TotalTrades:      m.counts.Trades,
		TotalSells:       m.counts.Sells,
		WinningSells:     m.counts.WinningSells,
		GrossProfit:      m.counts.GrossProfit,
		GrossLoss:        m.counts.GrossLoss,
		FinalValue:       finalValue,
		InitialCapital:   initialCapital,
		DurationDays:     durationDays,
	}
}

func periodReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	returns := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		prev := values[i-1]
		if prev == 0 {
			returns[i-1] = 0
			continue
		}
		returns[i-1] = (values[i] - prev) / prev
	}
	return returns
}

func meanAndStdev(xs []float64) (mean, stdev float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	mean = sum(xs) / float64(len(xs))
	variance := 0.0
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs))
	stdev = math.Sqrt(variance)
	return mean, stdev
}
