package backtest

import (
	"context"
	"testing"
)

type stubAlgorithm struct{}

func (stubAlgorithm) Execute(ctx context.Context, algoCtx AlgorithmContext) (AlgorithmResult, error) {
	return AlgorithmResult{Success: true}, nil
}

func TestAlgorithmRegistry_GetUnregisteredReturnsTypedError(t *testing.T) {
	reg := NewAlgorithmRegistry()
	_, err := reg.Get("missing")
	if _, ok := err.(ErrAlgorithmNotRegistered); !ok {
		t.Fatalf("expected ErrAlgorithmNotRegistered, got %T", err)
	}
}

func TestAlgorithmRegistry_RegisterAndGet(t *testing.T) {
	reg := NewAlgorithmRegistry()
	reg.Register("momentum", stubAlgorithm{})

	algo, err := reg.Get("momentum")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if algo == nil {
		t.Fatalf("expected a non-nil algorithm")
	}
}
