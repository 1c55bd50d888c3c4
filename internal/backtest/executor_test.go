package backtest

import (
	"math"
	"testing"
	"time"
)

func TestExecute_PartialSellPnL(t *testing.T) {
	portfolio := NewPortfolio(0)
	portfolio.Positions["BTC"] = &Position{CoinID: "BTC", Quantity: 10, AveragePrice: 10, EntryDate: time.Unix(0, 0)}

	qty := 4.0
	signal := TradingSignal{Action: Sell, CoinID: "BTC", Quantity: &qty, OriginalType: SignalSell}

	out, ok := Execute(ExecutionInput{
		Signal:       signal,
		Portfolio:    portfolio,
		MarketPrices: map[string]float64{"BTC": 15},
		FeeConfig:    FeeConfig{},
		Slippage:     SlippageConfig{Type: SlippageNone},
		RNG:          NewRNG("seed"),
		Now:          time.Unix(100_000, 0),
	})
	if !ok {
		t.Fatalf("expected the sell to execute")
	}

	if *out.Trade.RealizedPnL != 20 {
		t.Fatalf("expected realizedPnL=20, got %v", *out.Trade.RealizedPnL)
	}
	if *out.Trade.RealizedPnLPercent != 0.5 {
		t.Fatalf("expected realizedPnLPercent=0.5, got %v", *out.Trade.RealizedPnLPercent)
	}
	if *out.Trade.CostBasis != 10 {
		t.Fatalf("expected costBasis=10, got %v", *out.Trade.CostBasis)
	}
	if portfolio.Positions["BTC"].Quantity != 6 {
		t.Fatalf("expected remaining quantity 6, got %v", portfolio.Positions["BTC"].Quantity)
	}
	if portfolio.CashBalance != 60 {
		t.Fatalf("expected cash 60, got %v", portfolio.CashBalance)
	}
}

func TestExecute_BuyFeeInclusionRejectsWhenCashInsufficient(t *testing.T) {
	portfolio := NewPortfolio(100)

	qty := 1.0
	signal := TradingSignal{Action: Buy, CoinID: "BTC", Quantity: &qty}

	_, ok := Execute(ExecutionInput{
		Signal:       signal,
		Portfolio:    portfolio,
		MarketPrices: map[string]float64{"BTC": 100},
		FeeConfig:    FeeConfig{FlatRate: 0.01},
		Slippage:     SlippageConfig{Type: SlippageNone},
		RNG:          NewRNG("seed"),
		Now:          time.Unix(0, 0),
	})
	if ok {
		t.Fatalf("expected the buy to be rejected: needs 101 but only 100 cash available")
	}
}

func TestExecute_BuyWithSlippageAndFee(t *testing.T) {
	portfolio := NewPortfolio(200)

	qty := 1.0
	signal := TradingSignal{Action: Buy, CoinID: "BTC", Quantity: &qty}

	out, ok := Execute(ExecutionInput{
		Signal:       signal,
		Portfolio:    portfolio,
		MarketPrices: map[string]float64{"BTC": 100},
		FeeConfig:    FeeConfig{FlatRate: 0.01},
		Slippage:     SlippageConfig{Type: SlippageFixed, FixedBps: 100, MaxSlippageBps: 500},
		RNG:          NewRNG("seed"),
		Now:          time.Unix(0, 0),
	})
	if !ok {
		t.Fatalf("expected the buy to execute")
	}

	if math.Abs(out.Trade.Price-101) > 1e-9 {
		t.Fatalf("expected execution price 101, got %v", out.Trade.Price)
	}
	if math.Abs(out.Trade.Fee-1.01) > 1e-6 {
		t.Fatalf("expected fee ~1.01, got %v", out.Trade.Fee)
	}
	if out.Trade.Metadata["basePrice"] != 100.0 {
		t.Fatalf("expected basePrice 100, got %v", out.Trade.Metadata["basePrice"])
	}
	if out.SlippageBps != 100 {
		t.Fatalf("expected slippageBps 100, got %v", out.SlippageBps)
	}
	if math.Abs(portfolio.CashBalance-97.99) > 1e-6 {
		t.Fatalf("expected cash ~97.99, got %v", portfolio.CashBalance)
	}
}

func TestExecute_HardStopLossUsesStopExecutionPriceNotCandle(t *testing.T) {
	portfolio := NewPortfolio(0)
	portfolio.Positions["BTC"] = &Position{CoinID: "BTC", Quantity: 1, AveragePrice: 100, EntryDate: time.Unix(0, 0)}

	cfg := DefaultBacktestConfig()
	cfg.HardStopLossPercent = 0.05
	candles := map[string]Candle{"BTC": {CoinID: "BTC", Close: 98, Low: 94}}

	signals := GenerateHardStopLosses(portfolio, candles, cfg)
	if len(signals) != 1 {
		t.Fatalf("expected one stop-loss signal, got %d", len(signals))
	}

	out, ok := Execute(ExecutionInput{
		Signal:       signals[0],
		Portfolio:    portfolio,
		MarketPrices: map[string]float64{"BTC": 98},
		FeeConfig:    FeeConfig{},
		Slippage:     SlippageConfig{Type: SlippageNone},
		RNG:          NewRNG("seed"),
		Now:          time.Unix(1000, 0),
	})
	if !ok {
		t.Fatalf("expected the stop-loss sell to execute")
	}
	if out.Trade.Price != 95 {
		t.Fatalf("expected execution at stopExecutionPrice=95, got %v", out.Trade.Price)
	}
}

func TestExecute_SellRejectedWithoutExistingPosition(t *testing.T) {
	portfolio := NewPortfolio(1000)
	qty := 1.0
	signal := TradingSignal{Action: Sell, CoinID: "BTC", Quantity: &qty}

	_, ok := Execute(ExecutionInput{
		Signal:       signal,
		Portfolio:    portfolio,
		MarketPrices: map[string]float64{"BTC": 100},
		FeeConfig:    FeeConfig{},
		Slippage:     SlippageConfig{Type: SlippageNone},
		RNG:          NewRNG("seed"),
		Now:          time.Unix(0, 0),
	})
	if ok {
		t.Fatalf("expected sell with no position to be rejected")
	}
}

func TestExecute_SellHoldPeriodGate(t *testing.T) {
	portfolio := NewPortfolio(0)
	entry := time.Unix(0, 0)
	portfolio.Positions["BTC"] = &Position{CoinID: "BTC", Quantity: 1, AveragePrice: 100, EntryDate: entry}

	qty := 1.0
	signal := TradingSignal{Action: Sell, CoinID: "BTC", Quantity: &qty, OriginalType: SignalSell}

	_, ok := Execute(ExecutionInput{
		Signal:       signal,
		Portfolio:    portfolio,
		MarketPrices: map[string]float64{"BTC": 110},
		FeeConfig:    FeeConfig{},
		Slippage:     SlippageConfig{Type: SlippageNone},
		RNG:          NewRNG("seed"),
		MinHoldMs:    24 * 60 * 60 * 1000,
		Now:          entry.Add(time.Hour),
	})
	if ok {
		t.Fatalf("expected sell to be rejected by the hold-period gate")
	}
}
