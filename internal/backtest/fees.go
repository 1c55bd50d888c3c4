package backtest

// CalculateFee computes the absolute fee for a trade notional (spec.md
// 4.C3). When MakerRate and TakerRate are both zero, FlatRate applies
// to every fill regardless of isMaker.
func CalculateFee(tradeValue float64, cfg FeeConfig, isMaker bool) float64 {
	rate := cfg.FlatRate
	if cfg.MakerRate != 0 || cfg.TakerRate != 0 {
		if isMaker {
			rate = cfg.MakerRate
		} else {
			rate = cfg.TakerRate
		}
	}
	fee := tradeValue * rate
	if fee < 0 {
		return 0
	}
	return fee
}
