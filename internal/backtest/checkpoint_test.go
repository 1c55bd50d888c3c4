package backtest

import (
	"testing"
	"time"
)

func buildSampleCheckpoint(t *testing.T) (CheckpointState, []time.Time) {
	t.Helper()
	portfolio := NewPortfolio(1000)
	portfolio.Positions["BTC"] = &Position{CoinID: "BTC", Quantity: 2, AveragePrice: 100, EntryDate: time.Unix(0, 0)}

	timestamps := []time.Time{time.Unix(0, 0), time.Unix(60, 0), time.Unix(120, 0)}

	ckpt, err := BuildCheckpoint(1, timestamps[1], portfolio, 1200, 0.1, 42, PersistedCounts{Trades: 3}, NewThrottleState())
	if err != nil {
		t.Fatalf("unexpected error building checkpoint: %v", err)
	}
	return ckpt, timestamps
}

func TestCheckpoint_RoundTripValidates(t *testing.T) {
	ckpt, timestamps := buildSampleCheckpoint(t)
	result := ValidateCheckpoint(ckpt, timestamps)
	if !result.Valid {
		t.Fatalf("expected a freshly built checkpoint to validate, got reason %q", result.Reason)
	}
}

func TestCheckpoint_ChecksumSensitivity(t *testing.T) {
	ckpt, timestamps := buildSampleCheckpoint(t)
	ckpt.Portfolio.CashBalance += 10

	result := ValidateCheckpoint(ckpt, timestamps)
	if result.Valid {
		t.Fatalf("expected mutated cash balance to invalidate the checkpoint")
	}
	if result.Reason != "checksum" {
		t.Fatalf("expected reason checksum, got %q", result.Reason)
	}
}

func TestCheckpoint_IndexOutOfBounds(t *testing.T) {
	ckpt, timestamps := buildSampleCheckpoint(t)
	ckpt.LastProcessedIndex = len(timestamps)

	result := ValidateCheckpoint(ckpt, timestamps)
	if result.Valid || result.Reason != "index_out_of_bounds" {
		t.Fatalf("expected index_out_of_bounds, got %+v", result)
	}
}

func TestCheckpoint_TimestampMismatch(t *testing.T) {
	ckpt, timestamps := buildSampleCheckpoint(t)
	ckpt.LastProcessedIndex = 0

	result := ValidateCheckpoint(ckpt, timestamps)
	if result.Valid || result.Reason != "timestamp_mismatch" {
		t.Fatalf("expected timestamp_mismatch, got %+v", result)
	}
}
