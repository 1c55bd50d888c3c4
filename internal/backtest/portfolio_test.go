package backtest

import (
	"math"
	"testing"
)

func TestMarkToMarket_TotalValueInvariant(t *testing.T) {
	p := NewPortfolio(1000)
	p.CashBalance = 400
	p.Positions["BTC"] = &Position{CoinID: "BTC", Quantity: 2, AveragePrice: 100}
	p.Positions["ETH"] = &Position{CoinID: "ETH", Quantity: 10, AveragePrice: 20}

	MarkToMarket(p, map[string]float64{"BTC": 150, "ETH": 25})

	expected := 400.0 + 2*150 + 10*25
	if math.Abs(p.TotalValue-expected) > 1e-6 {
		t.Fatalf("expected total value %v, got %v", expected, p.TotalValue)
	}
	if math.Abs(PositionsValue(p)-(2*150+10*25)) > 1e-6 {
		t.Fatalf("expected positions value %v, got %v", 2*150.0+10*25.0, PositionsValue(p))
	}
}

func TestMarkToMarket_MissingMarkFallsBackToAveragePrice(t *testing.T) {
	p := NewPortfolio(0)
	p.Positions["BTC"] = &Position{CoinID: "BTC", Quantity: 1, AveragePrice: 50}

	MarkToMarket(p, map[string]float64{})

	if p.Positions["BTC"].TotalValue != 50 {
		t.Fatalf("expected fallback to average price, got %v", p.Positions["BTC"].TotalValue)
	}
}

func TestSerializeDeserialize_RoundTrip(t *testing.T) {
	p := NewPortfolio(500)
	p.Positions["BTC"] = &Position{CoinID: "BTC", Quantity: 3, AveragePrice: 99}
	MarkToMarket(p, map[string]float64{"BTC": 100})

	restored := Deserialize(Serialize(p))

	if restored.CashBalance != p.CashBalance {
		t.Fatalf("cash balance mismatch: got %v want %v", restored.CashBalance, p.CashBalance)
	}
	if restored.TotalValue != p.TotalValue {
		t.Fatalf("total value mismatch: got %v want %v", restored.TotalValue, p.TotalValue)
	}
	if restored.Positions["BTC"].Quantity != 3 || restored.Positions["BTC"].AveragePrice != 99 {
		t.Fatalf("position mismatch after round trip: %+v", restored.Positions["BTC"])
	}
}
