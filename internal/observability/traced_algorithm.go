package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"backtestd/internal/backtest"
)

// TracedAlgorithm wraps a backtest.Algorithm so every Execute call opens
// its own OTel span, nested under the bar's span if the orchestrator's
// context already carries one. This is how a slow strategy call becomes
// visible in a trace without teaching the orchestrator about tracing.
type TracedAlgorithm struct {
	Name      string
	Algorithm backtest.Algorithm
}

// NewTracedAlgorithm wraps algo for tracing under the given name.
func NewTracedAlgorithm(name string, algo backtest.Algorithm) *TracedAlgorithm {
	return &TracedAlgorithm{Name: name, Algorithm: algo}
}

// Execute implements backtest.Algorithm.
func (t *TracedAlgorithm) Execute(ctx context.Context, algoCtx backtest.AlgorithmContext) (backtest.AlgorithmResult, error) {
	tracer := otel.Tracer("backtestd/algorithm")
	ctx, span := tracer.Start(ctx, "algorithm.Execute", trace.WithAttributes(
		attribute.String("algorithm.name", t.Name),
		attribute.String("backtest.id", algoCtx.Metadata.BacktestID),
		attribute.Int("algorithm.coin_count", len(algoCtx.Coins)),
	))
	defer span.End()

	result, err := t.Algorithm.Execute(ctx, algoCtx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	span.SetAttributes(attribute.Int("algorithm.signal_count", len(result.Signals)))
	return result, nil
}

// TraceBar opens one "orchestrator.bar" span for barIndex. Its only
// caller is RunService's heartbeat callback, so a span is recorded once
// per heartbeat (at most every 30s), not for every processed bar. The
// caller is expected to call end() once the bar's work is complete.
func TraceBar(ctx context.Context, backtestID string, barIndex int) (context.Context, func()) {
	tracer := otel.Tracer("backtestd/orchestrator")
	ctx, span := tracer.Start(ctx, "orchestrator.bar", trace.WithAttributes(
		attribute.String("backtest.id", backtestID),
		attribute.Int("bar.index", barIndex),
	))
	return ctx, func() { span.End() }
}
