package backtest

import (
	"context"
	"testing"
	"time"
)

// buyOnceAlgorithm issues a single BUY for a fixed coin on the first
// non-warmup bar it sees, then holds forever.
type buyOnceAlgorithm struct {
	coinID string
	bought bool
}

func (a *buyOnceAlgorithm) Execute(ctx context.Context, algoCtx AlgorithmContext) (AlgorithmResult, error) {
	if a.bought {
		return AlgorithmResult{Success: true}, nil
	}
	a.bought = true
	return AlgorithmResult{
		Success: true,
		Signals: []AlgorithmSignal{{
			Type:       SignalBuy,
			CoinID:     a.coinID,
			Confidence: 1.0,
			Reason:     "test_buy",
		}},
	}, nil
}

func dailyCandles(coinID string, start time.Time, closes []float64) []Candle {
	out := make([]Candle, len(closes))
	for i, c := range closes {
		out[i] = Candle{
			CoinID:    coinID,
			Timestamp: start.AddDate(0, 0, i),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1_000_000,
		}
	}
	return out
}

func TestRunBacktest_HistoricalCompletesAndBuys(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	closes := []float64{100, 101, 102, 103, 104, 105, 106, 107, 108, 109}
	candles := dailyCandles("ETH", start, closes)

	cfg := DefaultBacktestConfig()
	cfg.EnableRegimeGate = false
	cfg.EnableHardStopLoss = false
	cfg.MinHoldMs = 0
	cfg.CheckpointIntervalHistorical = 1000

	algo := &buyOnceAlgorithm{coinID: "ETH"}

	result, err := RunBacktest(context.Background(), RunInput{
		BacktestID: "bt-1",
		Seed:       "seed-1",
		Candles:    candles,
		Coins:      []Coin{{ID: "ETH", Symbol: "ETH"}},
		Algorithm:  algo,
		Config:     cfg,
		Mode:       ModeHistorical,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Failed {
		t.Fatalf("unexpected failure: %s", result.ErrorMessage)
	}
	if result.Paused {
		t.Fatalf("historical mode must never pause")
	}
	if len(result.Trades) != 1 {
		t.Fatalf("expected exactly 1 trade, got %d", len(result.Trades))
	}
	if result.Trades[0].Type != Buy || result.Trades[0].CoinID != "ETH" {
		t.Fatalf("expected a BUY of ETH, got %+v", result.Trades[0])
	}
	if result.Metrics.FinalValue <= 0 {
		t.Fatalf("expected a positive final value, got %v", result.Metrics.FinalValue)
	}
}

func TestRunBacktest_DeterministicAcrossRepeatedRuns(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	closes := []float64{100, 99, 101, 98, 103, 97, 105, 96, 107, 95}
	candles := dailyCandles("ETH", start, closes)

	cfg := DefaultBacktestConfig()
	cfg.EnableRegimeGate = false
	cfg.MinHoldMs = 0

	run := func() RunResult {
		algo := &buyOnceAlgorithm{coinID: "ETH"}
		result, err := RunBacktest(context.Background(), RunInput{
			Seed:      "fixed-seed",
			Candles:   candles,
			Coins:     []Coin{{ID: "ETH", Symbol: "ETH"}},
			Algorithm: algo,
			Config:    cfg,
			Mode:      ModeHistorical,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return result
	}

	a := run()
	b := run()

	if a.Metrics != b.Metrics {
		t.Fatalf("expected identical metrics across repeated runs, got %+v vs %+v", a.Metrics, b.Metrics)
	}
	if len(a.Trades) != len(b.Trades) {
		t.Fatalf("expected identical trade counts, got %d vs %d", len(a.Trades), len(b.Trades))
	}
}

func TestRunBacktest_LiveReplayPausesAndResumes(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	candles := dailyCandles("ETH", start, closes)

	cfg := DefaultBacktestConfig()
	cfg.EnableRegimeGate = false
	cfg.EnableHardStopLoss = false
	cfg.MinHoldMs = 0
	cfg.ReplaySpeed = SpeedMax
	cfg.CheckpointIntervalLiveReplay = 1000

	pauseAfter := 3
	seen := 0
	shouldPause := func(ctx context.Context) (bool, error) {
		seen++
		return seen > pauseAfter, nil
	}

	algo := &buyOnceAlgorithm{coinID: "ETH"}
	firstRun, err := RunBacktest(context.Background(), RunInput{
		Seed:        "seed-live",
		Candles:     candles,
		Coins:       []Coin{{ID: "ETH", Symbol: "ETH"}},
		Algorithm:   algo,
		Config:      cfg,
		Mode:        ModeLiveReplay,
		ShouldPause: shouldPause,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !firstRun.Paused {
		t.Fatalf("expected the live-replay run to pause")
	}
	if firstRun.PausedCheckpoint == nil {
		t.Fatalf("expected a checkpoint on pause")
	}

	resumeValidation := ValidateCheckpoint(*firstRun.PausedCheckpoint, NewPriceWindowTracker(candles).Timestamps())
	if !resumeValidation.Valid {
		t.Fatalf("expected the pause checkpoint to validate, got reason %q", resumeValidation.Reason)
	}

	secondRun, err := RunBacktest(context.Background(), RunInput{
		Seed:      "seed-live",
		Candles:   candles,
		Coins:     []Coin{{ID: "ETH", Symbol: "ETH"}},
		Algorithm: algo,
		Config:    cfg,
		Mode:      ModeLiveReplay,
		Resume:    firstRun.PausedCheckpoint,
	})
	if err != nil {
		t.Fatalf("unexpected error resuming: %v", err)
	}
	if secondRun.Failed {
		t.Fatalf("unexpected failure resuming: %s", secondRun.ErrorMessage)
	}
}

// erroringAlgorithm always fails, exercising the consecutive-error
// abort path.
type erroringAlgorithm struct{}

func (erroringAlgorithm) Execute(ctx context.Context, algoCtx AlgorithmContext) (AlgorithmResult, error) {
	return AlgorithmResult{}, errAlgoBroken
}

var errAlgoBroken = &algoError{"synthetic failure"}

type algoError struct{ msg string }

func (e *algoError) Error() string { return e.msg }

func TestRunBacktest_AbortsAfterConsecutiveAlgorithmErrors(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	closes := make([]float64, 15)
	for i := range closes {
		closes[i] = 100
	}
	candles := dailyCandles("ETH", start, closes)

	cfg := DefaultBacktestConfig()
	cfg.EnableRegimeGate = false

	result, err := RunBacktest(context.Background(), RunInput{
		Seed:      "seed-fail",
		Candles:   candles,
		Coins:     []Coin{{ID: "ETH", Symbol: "ETH"}},
		Algorithm: erroringAlgorithm{},
		Config:    cfg,
		Mode:      ModeHistorical,
	})
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	if !result.Failed {
		t.Fatalf("expected the run to report Failed after repeated algorithm errors")
	}
}
