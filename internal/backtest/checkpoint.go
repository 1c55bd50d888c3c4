package backtest

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"
)

// checksumFields is the canonical payload hashed into a checkpoint's
// checksum, in the fixed field order spec.md §6 names: lastProcessedIndex,
// lastProcessedTimestamp, cashBalance, positionCount, peakValue,
// maxDrawdown, rngState, throttleState (JSON-stringified, if present).
// Build and validate share this one definition (spec.md 4.C13).
type checksumFields struct {
	LastProcessedIndex     int
	LastProcessedTimestamp string
	CashBalance            float64
	PositionCount          int
	PeakValue              float64
	MaxDrawdown            float64
	RNGState               uint32
	ThrottleState          *SerializedThrottleState
}

// canonicalChecksum hashes a deterministic string rendering of fields,
// mirroring the teacher's span-hasher: build one unambiguous string,
// sha256 it, keep the first 16 hex characters.
func canonicalChecksum(f checksumFields) (string, error) {
	throttleJSON := ""
	if f.ThrottleState != nil {
		b, err := json.Marshal(f.ThrottleState)
		if err != nil {
			return "", err
		}
		throttleJSON = string(b)
	}

	canonical := fmt.Sprintf(
		"%d|%s|%.10f|%d|%.10f|%.10f|%d|%s",
		f.LastProcessedIndex,
		f.LastProcessedTimestamp,
		f.CashBalance,
		f.PositionCount,
		f.PeakValue,
		f.MaxDrawdown,
		f.RNGState,
		throttleJSON,
	)

	sum := sha256.Sum256([]byte(canonical))
	return fmt.Sprintf("%x", sum)[:16], nil
}

// BuildCheckpoint serializes a run's full resumable state and stamps it
// with a checksum computed over the checksumFields subset; individual
// positions and PersistedCounts are not covered by the checksum.
func BuildCheckpoint(lastIndex int, lastTimestamp time.Time, portfolio *Portfolio, peakValue, maxDrawdown float64, rngState uint32, counts PersistedCounts, throttle *ThrottleState) (CheckpointState, error) {
	serializedPortfolio := Serialize(portfolio)

	var throttleOut *SerializedThrottleState
	if throttle != nil {
		throttleOut = &SerializedThrottleState{
			LastSignalAt:   throttle.LastSignalAt,
			TradesInWindow: throttle.TradesInWindow,
		}
	}

	fields := checksumFields{
		LastProcessedIndex:     lastIndex,
		LastProcessedTimestamp: lastTimestamp.Format(time.RFC3339Nano),
		CashBalance:            serializedPortfolio.CashBalance,
		PositionCount:          len(serializedPortfolio.Positions),
		PeakValue:              peakValue,
		MaxDrawdown:            maxDrawdown,
		RNGState:               rngState,
		ThrottleState:          throttleOut,
	}

	checksum, err := canonicalChecksum(fields)
	if err != nil {
		return CheckpointState{}, err
	}

	return CheckpointState{
		LastProcessedIndex:     lastIndex,
		LastProcessedTimestamp: fields.LastProcessedTimestamp,
		Portfolio:              serializedPortfolio,
		PeakValue:              peakValue,
		MaxDrawdown:            maxDrawdown,
		RNGState:               rngState,
		PersistedCounts:        counts,
		ThrottleState:          throttleOut,
		Checksum:               checksum,
	}, nil
}

// ValidationResult is the outcome of ValidateCheckpoint.
type ValidationResult struct {
	Valid  bool
	Reason string
}

// ValidateCheckpoint rejects a checkpoint whose index is out of bounds,
// whose recorded timestamp disagrees with allTimestamps at that index,
// or whose recomputed checksum differs (spec.md 4.C13).
func ValidateCheckpoint(ckpt CheckpointState, allTimestamps []time.Time) ValidationResult {
	if ckpt.LastProcessedIndex < 0 || ckpt.LastProcessedIndex >= len(allTimestamps) {
		return ValidationResult{Valid: false, Reason: "index_out_of_bounds"}
	}

	expectedTimestamp := allTimestamps[ckpt.LastProcessedIndex].Format(time.RFC3339Nano)
	if ckpt.LastProcessedTimestamp != expectedTimestamp {
		return ValidationResult{Valid: false, Reason: "timestamp_mismatch"}
	}

	fields := checksumFields{
		LastProcessedIndex:     ckpt.LastProcessedIndex,
		LastProcessedTimestamp: ckpt.LastProcessedTimestamp,
		CashBalance:            ckpt.Portfolio.CashBalance,
		PositionCount:          len(ckpt.Portfolio.Positions),
		PeakValue:              ckpt.PeakValue,
		MaxDrawdown:            ckpt.MaxDrawdown,
		RNGState:               ckpt.RNGState,
		ThrottleState:          ckpt.ThrottleState,
	}
	recomputed, err := canonicalChecksum(fields)
	if err != nil {
		return ValidationResult{Valid: false, Reason: "checksum_computation_failed"}
	}
	if recomputed != ckpt.Checksum {
		return ValidationResult{Valid: false, Reason: "checksum"}
	}

	return ValidationResult{Valid: true}
}
