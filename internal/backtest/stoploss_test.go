package backtest

import "testing"

func TestGenerateHardStopLosses_TriggersOnWickLow(t *testing.T) {
	portfolio := NewPortfolio(1000)
	portfolio.Positions["BTC"] = &Position{CoinID: "BTC", Quantity: 2, AveragePrice: 100}

	cfg := DefaultBacktestConfig()
	cfg.EnableHardStopLoss = true
	cfg.HardStopLossPercent = 0.05

	candles := map[string]Candle{
		"BTC": {CoinID: "BTC", Close: 98, Low: 94},
	}

	signals := GenerateHardStopLosses(portfolio, candles, cfg)
	if len(signals) != 1 {
		t.Fatalf("expected one stop-loss signal, got %d", len(signals))
	}
	s := signals[0]
	if s.Action != Sell || s.OriginalType != SignalStopLoss {
		t.Fatalf("expected a stop-loss SELL, got %+v", s)
	}
	if *s.Quantity != 2 {
		t.Fatalf("expected full exit quantity 2, got %v", *s.Quantity)
	}
	if s.Metadata[MetaHardStopLoss] != true {
		t.Fatalf("expected hardStopLoss metadata flag")
	}
	expectedStopPrice := 100 * (1 - 0.05)
	if s.Metadata[MetaStopExecutionPrice] != expectedStopPrice {
		t.Fatalf("expected stop execution price %v, got %v", expectedStopPrice, s.Metadata[MetaStopExecutionPrice])
	}
}

func TestGenerateHardStopLosses_CloseFallbackWhenNoLow(t *testing.T) {
	portfolio := NewPortfolio(1000)
	portfolio.Positions["BTC"] = &Position{CoinID: "BTC", Quantity: 1, AveragePrice: 100}
	cfg := DefaultBacktestConfig()
	cfg.HardStopLossPercent = 0.05

	candles := map[string]Candle{"BTC": {CoinID: "BTC", Close: 93}}
	signals := GenerateHardStopLosses(portfolio, candles, cfg)
	if len(signals) != 1 {
		t.Fatalf("expected stop loss to trigger off close when low is zero, got %d signals", len(signals))
	}
}

func TestGenerateHardStopLosses_NoTriggerWithinThreshold(t *testing.T) {
	portfolio := NewPortfolio(1000)
	portfolio.Positions["BTC"] = &Position{CoinID: "BTC", Quantity: 1, AveragePrice: 100}
	cfg := DefaultBacktestConfig()
	cfg.HardStopLossPercent = 0.05

	candles := map[string]Candle{"BTC": {CoinID: "BTC", Close: 97, Low: 96}}
	signals := GenerateHardStopLosses(portfolio, candles, cfg)
	if len(signals) != 0 {
		t.Fatalf("expected no stop-loss signal within threshold, got %d", len(signals))
	}
}

func TestGenerateHardStopLosses_MultiplePositionsOrderedByCoinID(t *testing.T) {
	portfolio := NewPortfolio(1000)
	portfolio.Positions["SOL"] = &Position{CoinID: "SOL", Quantity: 5, AveragePrice: 100}
	portfolio.Positions["ETH"] = &Position{CoinID: "ETH", Quantity: 3, AveragePrice: 100}
	portfolio.Positions["BTC"] = &Position{CoinID: "BTC", Quantity: 2, AveragePrice: 100}

	cfg := DefaultBacktestConfig()
	cfg.EnableHardStopLoss = true
	cfg.HardStopLossPercent = 0.05

	candles := map[string]Candle{
		"BTC": {CoinID: "BTC", Close: 90, Low: 90},
		"ETH": {CoinID: "ETH", Close: 90, Low: 90},
		"SOL": {CoinID: "SOL", Close: 90, Low: 90},
	}

	for i := 0; i < 10; i++ {
		signals := GenerateHardStopLosses(portfolio, candles, cfg)
		if len(signals) != 3 {
			t.Fatalf("expected three stop-loss signals, got %d", len(signals))
		}
		if signals[0].CoinID != "BTC" || signals[1].CoinID != "ETH" || signals[2].CoinID != "SOL" {
			t.Fatalf("expected signals in sorted coinID order BTC,ETH,SOL, got %s,%s,%s", signals[0].CoinID, signals[1].CoinID, signals[2].CoinID)
		}
	}
}

func TestGenerateHardStopLosses_DisabledProducesNothing(t *testing.T) {
	portfolio := NewPortfolio(1000)
	portfolio.Positions["BTC"] = &Position{CoinID: "BTC", Quantity: 1, AveragePrice: 100}
	cfg := DefaultBacktestConfig()
	cfg.EnableHardStopLoss = false

	candles := map[string]Candle{"BTC": {CoinID: "BTC", Close: 10, Low: 1}}
	signals := GenerateHardStopLosses(portfolio, candles, cfg)
	if len(signals) != 0 {
		t.Fatalf("expected no signals when disabled, got %d", len(signals))
	}
}
