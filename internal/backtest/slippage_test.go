package backtest

import "testing"

func TestQuoteSlippage_None(t *testing.T) {
	q := QuoteSlippage(SlippageInput{Price: 100, Quantity: 1, IsBuy: true}, SlippageConfig{Type: SlippageNone})
	if q.ExecutionPrice != 100 || q.SlippageBps != 0 {
		t.Fatalf("expected no-op quote, got %+v", q)
	}
}

func TestQuoteSlippage_FixedAppliesSignAndCap(t *testing.T) {
	cfg := SlippageConfig{Type: SlippageFixed, FixedBps: 100, MaxSlippageBps: 50}

	buy := QuoteSlippage(SlippageInput{Price: 100, Quantity: 1, IsBuy: true}, cfg)
	if buy.SlippageBps != 50 {
		t.Fatalf("expected cap at 50bps, got %v", buy.SlippageBps)
	}
	if buy.ExecutionPrice != 100*(1+50.0/10_000.0) {
		t.Fatalf("unexpected buy execution price: %v", buy.ExecutionPrice)
	}

	sell := QuoteSlippage(SlippageInput{Price: 100, Quantity: 1, IsBuy: false}, cfg)
	if sell.ExecutionPrice != 100*(1-50.0/10_000.0) {
		t.Fatalf("unexpected sell execution price: %v", sell.ExecutionPrice)
	}
}

func TestQuoteSlippage_VolumeBasedMonotonic(t *testing.T) {
	cfg := SlippageConfig{Type: SlippageVolumeBased, BaseSlippageBps: 5, VolumeImpactFactor: 1000, MaxSlippageBps: 1_000_000}

	lowVol := 1000.0
	highVol := 1_000_000.0

	qLow := QuoteSlippage(SlippageInput{Price: 10, Quantity: 10, IsBuy: true, DailyVolume: &lowVol}, cfg)
	qHigh := QuoteSlippage(SlippageInput{Price: 10, Quantity: 10, IsBuy: true, DailyVolume: &highVol}, cfg)

	if qLow.SlippageBps < qHigh.SlippageBps {
		t.Fatalf("expected lower daily volume to produce >= slippage: low=%v high=%v", qLow.SlippageBps, qHigh.SlippageBps)
	}

	qSmallQty := QuoteSlippage(SlippageInput{Price: 10, Quantity: 1, IsBuy: true, DailyVolume: &lowVol}, cfg)
	qBigQty := QuoteSlippage(SlippageInput{Price: 10, Quantity: 100, IsBuy: true, DailyVolume: &lowVol}, cfg)
	if qBigQty.SlippageBps < qSmallQty.SlippageBps {
		t.Fatalf("expected higher quantity to produce >= slippage: small=%v big=%v", qSmallQty.SlippageBps, qBigQty.SlippageBps)
	}
}

func TestQuoteSlippage_VolumeBasedMissingVolumeUsesEpsilon(t *testing.T) {
	cfg := SlippageConfig{Type: SlippageVolumeBased, BaseSlippageBps: 1, VolumeImpactFactor: 1, MaxSlippageBps: 1000}
	q := QuoteSlippage(SlippageInput{Price: 10, Quantity: 1, IsBuy: true}, cfg)
	if q.SlippageBps != 1000 {
		t.Fatalf("expected missing volume to saturate the cap, got %v", q.SlippageBps)
	}
}
