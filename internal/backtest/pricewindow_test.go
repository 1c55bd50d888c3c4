package backtest

import (
	"testing"
	"time"
)

func candleAt(coin string, seconds int64, price float64) Candle {
	return Candle{
		CoinID:    coin,
		Timestamp: time.Unix(seconds, 0),
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
		Volume:    1,
	}
}

func TestPriceWindowTracker_AdvancesCursorAndBuildsSummaries(t *testing.T) {
	candles := []Candle{
		candleAt("BTC", 1, 100),
		candleAt("BTC", 2, 110),
		candleAt("BTC", 3, 120),
	}
	tracker := NewPriceWindowTracker(candles)

	windows := tracker.Advance(time.Unix(2, 0))
	if len(windows["BTC"]) != 2 {
		t.Fatalf("expected 2 summaries after advancing to t=2, got %d", len(windows["BTC"]))
	}
	if windows["BTC"][1].Close != 110 {
		t.Fatalf("expected latest close 110, got %v", windows["BTC"][1].Close)
	}
	if windows["BTC"][1].Avg != windows["BTC"][1].Close {
		t.Fatalf("expected Avg == Close, got avg=%v close=%v", windows["BTC"][1].Avg, windows["BTC"][1].Close)
	}

	windows = tracker.Advance(time.Unix(3, 0))
	if len(windows["BTC"]) != 3 {
		t.Fatalf("expected 3 summaries after advancing to t=3, got %d", len(windows["BTC"]))
	}
}

func TestPriceWindowTracker_CapsWindowAt500(t *testing.T) {
	candles := make([]Candle, 600)
	for i := 0; i < 600; i++ {
		candles[i] = candleAt("BTC", int64(i), float64(i))
	}
	tracker := NewPriceWindowTracker(candles)

	windows := tracker.Advance(time.Unix(599, 0))
	if len(windows["BTC"]) != 500 {
		t.Fatalf("expected window capped at 500, got %d", len(windows["BTC"]))
	}
	if windows["BTC"][499].Close != 599 {
		t.Fatalf("expected the newest entry to survive capping, got %v", windows["BTC"][499].Close)
	}
}

func TestPriceWindowTracker_TimestampsSortedAcrossCoins(t *testing.T) {
	candles := []Candle{
		candleAt("BTC", 5, 1),
		candleAt("ETH", 2, 1),
		candleAt("BTC", 2, 1),
	}
	tracker := NewPriceWindowTracker(candles)
	ts := tracker.Timestamps()
	if len(ts) != 2 {
		t.Fatalf("expected 2 distinct timestamps, got %d", len(ts))
	}
	if !ts[0].Before(ts[1]) {
		t.Fatalf("expected timestamps sorted ascending, got %v", ts)
	}
}

func TestPriceWindowTracker_CurrentCandleBeforeAdvanceIsAbsent(t *testing.T) {
	tracker := NewPriceWindowTracker([]Candle{candleAt("BTC", 1, 100)})
	if _, ok := tracker.CurrentCandle("BTC"); ok {
		t.Fatalf("expected no current candle before any Advance call")
	}
	tracker.Advance(time.Unix(1, 0))
	c, ok := tracker.CurrentCandle("BTC")
	if !ok || c.Close != 100 {
		t.Fatalf("expected current candle close 100, got %+v ok=%v", c, ok)
	}
}
