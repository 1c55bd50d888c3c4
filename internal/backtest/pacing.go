package backtest

import (
	"context"

	"golang.org/x/time/rate"
)

// PacingController paces live-replay bars to a wall-clock delay derived
// from the configured replay speed (spec.md 4.C15). It owns a single
// token-bucket limiter for the run's lifetime: the bucket starts full
// (so the first Wait call never blocks, matching the orchestrator's
// "skipped on first trading bar" rule) and refills at the configured
// rate, so every call after that genuinely paces against wall-clock
// time rather than resetting a fresh bucket per bar.
type PacingController struct {
	baseIntervalMs int64
	limiter        *rate.Limiter
}

// NewPacingController builds a controller for the given base interval.
func NewPacingController(baseIntervalMs int64) *PacingController {
	return &PacingController{
		baseIntervalMs: baseIntervalMs,
		limiter:        rate.NewLimiter(rate.Inf, 1),
	}
}

// Sleep blocks until the limiter admits the next bar at the rate
// implied by speed, or returns immediately for MAX_SPEED.
func (p *PacingController) Sleep(ctx context.Context, speed ReplaySpeed) error {
	if speed == SpeedMax {
		return nil
	}
	p.limiter.SetLimit(ratePerSecond(p.baseIntervalMs, speed))
	return p.limiter.Wait(ctx)
}

func ratePerSecond(baseIntervalMs int64, speed ReplaySpeed) rate.Limit {
	multiplier := speedMultiplier(speed)
	return rate.Limit(multiplier * 1000.0 / float64(baseIntervalMs))
}

func speedMultiplier(speed ReplaySpeed) float64 {
	switch speed {
	case Speed5x:
		return 5
	case Speed10x:
		return 10
	case Speed50x:
		return 50
	default:
		return 1
	}
}
