// Package api wires backtestd's HTTP control plane: starting, pausing,
// resuming, and reading back the result of a backtest run. Grounded on
// the teacher's service-behind-controller layering (internal/services +
// internal/api/controllers), adapted to wrap backtest.RunBacktest
// instead of the teacher's live trading services.
package api

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"backtestd/internal/backtest"
	"backtestd/internal/cache"
	"backtestd/internal/eventbus"
	"backtestd/internal/monitoring"
	"backtestd/internal/observability"
	"backtestd/internal/repositories"
	"backtestd/internal/storage"
	"backtestd/internal/websocket"
)

// StartRunRequest is the payload accepted by POST /api/v1/runs.
type StartRunRequest struct {
	DatasetID     string            `json:"dataset_id" binding:"required"`
	AlgorithmName string            `json:"algorithm_name" binding:"required"`
	Mode          string            `json:"mode" binding:"required"` // historical|live_replay|optimization
	Seed          string            `json:"seed"`
	CoinFiles     map[string]string `json:"coin_files" binding:"required"`
	Coins         []backtest.Coin   `json:"coins" binding:"required"`
	Config        *backtest.BacktestConfig `json:"config"`
}

// RunStatusResponse is the payload returned by the run lifecycle endpoints.
type RunStatusResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// RunResultResponse is the payload returned by GET /api/v1/runs/:id.
type RunResultResponse struct {
	RunID   string                    `json:"run_id"`
	Status  string                    `json:"status"`
	Error   string                    `json:"error,omitempty"`
	Metrics *backtest.BacktestMetrics `json:"metrics,omitempty"`
}

// runHandle tracks one in-flight run so Pause/Resume/Cancel can reach it.
type runHandle struct {
	cancel         context.CancelFunc
	pauseRequested atomic.Bool
}

// RunService owns every in-flight backtest run plus the collaborators
// each run needs: persistence, the event bus, the websocket hub, and
// process metrics.
type RunService struct {
	dataset    *storage.CSVDataset
	registry   *backtest.AlgorithmRegistry
	runRepo    *repositories.RunRepository
	ckptRepo   *repositories.CheckpointRepository
	tradeRepo  *repositories.TradeRepository
	eventBus   *eventbus.EventBus
	metrics    *monitoring.Metrics
	prices     *cache.PriceCache

	mu     sync.Mutex
	active map[string]*runHandle
}

// NewRunService builds a RunService from its collaborators. It owns a
// PriceCache so handlers outside the bar loop (e.g. a latest-price
// lookup) can serve the last candle seen for a coin without reaching
// into a running backtest's internal price-window state.
func NewRunService(
	dataset *storage.CSVDataset,
	registry *backtest.AlgorithmRegistry,
	runRepo *repositories.RunRepository,
	ckptRepo *repositories.CheckpointRepository,
	tradeRepo *repositories.TradeRepository,
	eb *eventbus.EventBus,
	metrics *monitoring.Metrics,
) *RunService {
	return &RunService{
		dataset:   dataset,
		registry:  registry,
		runRepo:   runRepo,
		ckptRepo:  ckptRepo,
		tradeRepo: tradeRepo,
		eventBus:  eb,
		metrics:   metrics,
		prices:    cache.NewPriceCache(5 * time.Minute),
		active:    make(map[string]*runHandle),
	}
}

// LatestPrice returns the most recently cached candle for a coin, if
// any run loaded data touching it.
func (s *RunService) LatestPrice(coinID string) (*backtest.Candle, bool) {
	return s.prices.Get(coinID)
}

func (s *RunService) cacheLatestCandles(candles []backtest.Candle) {
	latest := make(map[string]backtest.Candle)
	for _, c := range candles {
		if cur, ok := latest[c.CoinID]; !ok || c.Timestamp.After(cur.Timestamp) {
			latest[c.CoinID] = c
		}
	}
	for coinID, c := range latest {
		candle := c
		s.prices.Set(coinID, &candle)
	}
}

// StartRun validates the request, loads its dataset, and launches the
// backtest in a background goroutine, returning immediately with the
// new run's ID.
func (s *RunService) StartRun(ctx context.Context, req StartRunRequest) (string, error) {
	algo, err := s.registry.Get(req.AlgorithmName)
	if err != nil {
		return "", err
	}
	traced := observability.NewTracedAlgorithm(req.AlgorithmName, algo)

	candles, err := s.dataset.LoadManifest(req.CoinFiles)
	if err != nil {
		return "", fmt.Errorf("api: loading dataset %s: %w", req.DatasetID, err)
	}
	s.cacheLatestCandles(candles)

	mode, err := parseRunMode(req.Mode)
	if err != nil {
		return "", err
	}

	cfg := backtest.DefaultBacktestConfig()
	if req.Config != nil {
		cfg = *req.Config
	}

	seed := req.Seed
	if seed == "" {
		seed = uuid.NewString()
	}

	runID := uuid.NewString()
	if err := s.runRepo.Create(runID, req.DatasetID, req.AlgorithmName, mode, seed, cfg); err != nil {
		return "", fmt.Errorf("api: recording run: %w", err)
	}
	s.metrics.RecordRunStarted()

	runCtx, cancel := context.WithCancel(context.Background())
	handle := &runHandle{cancel: cancel}

	s.mu.Lock()
	s.active[runID] = handle
	s.mu.Unlock()

	in := backtest.RunInput{
		BacktestID:   runID,
		DatasetID:    req.DatasetID,
		Seed:         seed,
		Candles:      candles,
		Coins:        req.Coins,
		Algorithm:    traced,
		Config:       cfg,
		Mode:         mode,
		OnCheckpoint: s.onCheckpoint(runID),
		OnPaused:     s.onPaused(runID),
		ShouldPause:  s.shouldPause(handle),
		OnHeartbeat:  s.onHeartbeat(runID),
	}

	go s.run(runCtx, runID, in)

	return runID, nil
}

// ResumeRun reloads a run's latest checkpoint and relaunches the bar
// loop from where it left off.
func (s *RunService) ResumeRun(ctx context.Context, runID string, algorithmName string, coins []backtest.Coin, coinFiles map[string]string) error {
	rec, err := s.runRepo.FindByID(runID)
	if err != nil {
		return fmt.Errorf("api: run %s not found: %w", runID, err)
	}

	ckpt, err := s.ckptRepo.Load(runID)
	if err != nil {
		return fmt.Errorf("api: no checkpoint for run %s: %w", runID, err)
	}

	algo, err := s.registry.Get(algorithmName)
	if err != nil {
		return err
	}
	traced := observability.NewTracedAlgorithm(algorithmName, algo)

	candles, err := s.dataset.LoadManifest(coinFiles)
	if err != nil {
		return fmt.Errorf("api: loading dataset %s: %w", rec.DatasetID, err)
	}
	s.cacheLatestCandles(candles)

	var cfg backtest.BacktestConfig
	if err := repositories.UnmarshalConfig(rec.ConfigJSON, &cfg); err != nil {
		return fmt.Errorf("api: decoding stored config: %w", err)
	}

	mode, err := parseRunMode(rec.Mode)
	if err != nil {
		return err
	}

	if err := s.runRepo.MarkResumed(runID); err != nil {
		return err
	}
	s.metrics.RecordRunStarted()

	runCtx, cancel := context.WithCancel(context.Background())
	handle := &runHandle{cancel: cancel}
	s.mu.Lock()
	s.active[runID] = handle
	s.mu.Unlock()

	in := backtest.RunInput{
		BacktestID:   runID,
		DatasetID:    rec.DatasetID,
		Seed:         rec.Seed,
		Candles:      candles,
		Coins:        coins,
		Algorithm:    traced,
		Config:       cfg,
		Mode:         mode,
		Resume:       ckpt,
		OnCheckpoint: s.onCheckpoint(runID),
		OnPaused:     s.onPaused(runID),
		ShouldPause:  s.shouldPause(handle),
		OnHeartbeat:  s.onHeartbeat(runID),
	}

	go s.run(runCtx, runID, in)
	return nil
}

// PauseRun flags a live-replay run to stop at its next bar boundary.
// RunBacktest only polls ShouldPause in live-replay mode (spec.md 4.C14);
// requesting pause on a historical/optimization run is a no-op.
func (s *RunService) PauseRun(runID string) error {
	s.mu.Lock()
	handle, ok := s.active[runID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("api: run %s is not active", runID)
	}
	handle.pauseRequested.Store(true)
	return nil
}

// CancelRun aborts a run immediately without persisting a resumable
// checkpoint.
func (s *RunService) CancelRun(runID string) error {
	s.mu.Lock()
	handle, ok := s.active[runID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("api: run %s is not active", runID)
	}
	handle.cancel()
	return nil
}

// GetResult reports a run's current persisted status and, once
// completed, its final metrics.
func (s *RunService) GetResult(runID string) (RunResultResponse, error) {
	rec, err := s.runRepo.FindByID(runID)
	if err != nil {
		return RunResultResponse{}, err
	}

	resp := RunResultResponse{RunID: rec.ID, Status: rec.Status, Error: rec.ErrorMessage}
	if rec.Status == "completed" && rec.MetricsJSON != "" {
		var m backtest.BacktestMetrics
		if err := repositories.UnmarshalConfig(rec.MetricsJSON, &m); err == nil {
			resp.Metrics = &m
		}
	}
	return resp, nil
}

func (s *RunService) run(ctx context.Context, runID string, in backtest.RunInput) {
	result, err := backtest.RunBacktest(ctx, in)

	s.mu.Lock()
	delete(s.active, runID)
	s.mu.Unlock()

	if err != nil {
		s.metrics.RecordError("run_service", err.Error(), runID, "")
		_ = s.runRepo.MarkFailed(runID, err.Error())
		s.metrics.RecordRunFinished(true)
		s.publishStatus(runID, "failed", err.Error())
		return
	}

	if result.Paused {
		s.metrics.RecordRunFinished(false)
		s.publishStatus(runID, "paused", "")
		return
	}

	if result.Failed {
		_ = s.runRepo.MarkFailed(runID, result.ErrorMessage)
		s.metrics.RecordRunFinished(true)
		s.publishStatus(runID, "failed", result.ErrorMessage)
		return
	}

	_ = s.tradeRepo.SaveBatch(runID, result.Trades)
	if err := s.runRepo.MarkCompleted(runID, result.Metrics); err != nil {
		s.metrics.RecordError("run_service", err.Error(), runID, "")
	}
	s.metrics.RecordRunFinished(false)
	s.publishStatus(runID, "completed", "")
}

func (s *RunService) onCheckpoint(runID string) backtest.CheckpointCallback {
	return func(ctx context.Context, state backtest.CheckpointState, incremental backtest.IncrementalResults, totalTimestamps int) error {
		if err := s.ckptRepo.Save(runID, state); err != nil {
			return fmt.Errorf("api: persisting checkpoint: %w", err)
		}
		if err := s.tradeRepo.SaveBatch(runID, incremental.Trades); err != nil {
			return fmt.Errorf("api: persisting trades: %w", err)
		}
		s.metrics.RecordBar(len(incremental.Trades))

		for _, trade := range incremental.Trades {
			realizedPnL := 0.0
			if trade.RealizedPnL != nil {
				realizedPnL = *trade.RealizedPnL
			}
			websocket.BroadcastTradeExecution(runID, trade.CoinID, string(trade.Type), trade.Quantity, trade.Price)
			if s.eventBus != nil {
				evt := eventbus.NewTradeExecutedEvent(runID, trade.CoinID, string(trade.Type), trade.Quantity, trade.Price, trade.Fee, realizedPnL, trade.ExecutedAt.Format(time.RFC3339Nano))
				_ = s.eventBus.Publish(eventbus.EventTypeTradeExecuted, evt)
			}
		}

		lastPrice := make(map[string]float64, len(incremental.Snapshots))
		for _, snapshot := range incremental.Snapshots {
			for coinID, holding := range snapshot.Holdings {
				change := 0.0
				if prev, ok := lastPrice[coinID]; ok {
					change = holding.Price - prev
				}
				websocket.BroadcastPriceUpdate(coinID, holding.Price, change)
				lastPrice[coinID] = holding.Price
			}
		}

		if s.eventBus != nil {
			evt := eventbus.NewCheckpointPersistedEvent(runID, state.LastProcessedIndex, state.Portfolio.TotalValue)
			_ = s.eventBus.Publish(eventbus.EventTypeCheckpointPersisted, evt)
		}
		websocket.BroadcastRunStatus(runID, "checkpoint", state.LastProcessedIndex)
		return nil
	}
}

func (s *RunService) onPaused(runID string) backtest.PauseCallback {
	return func(ctx context.Context, state backtest.CheckpointState) error {
		if err := s.ckptRepo.Save(runID, state); err != nil {
			return err
		}
		return s.runRepo.MarkPaused(runID)
	}
}

func (s *RunService) shouldPause(handle *runHandle) backtest.ShouldPauseFunc {
	return func(ctx context.Context) (bool, error) {
		return handle.pauseRequested.Load(), nil
	}
}

func (s *RunService) onHeartbeat(runID string) backtest.HeartbeatCallback {
	return func(ctx context.Context, snapshot backtest.HeartbeatSnapshot) {
		_, end := observability.TraceBar(ctx, runID, snapshot.BarIndex)
		defer end()

		websocket.BroadcastRunStatus(runID, "running", snapshot.BarIndex)
		if s.eventBus != nil {
			evt := eventbus.NewRunStatusChangedEvent(runID, "running", fmt.Sprintf("bar %d/%d", snapshot.BarIndex, snapshot.TotalBars))
			_ = s.eventBus.Publish(eventbus.EventTypeRunStatusChanged, evt)
		}
	}
}

func (s *RunService) publishStatus(runID, status, reason string) {
	websocket.BroadcastRunStatus(runID, status, 0)
	if s.eventBus != nil {
		evt := eventbus.NewRunStatusChangedEvent(runID, status, reason)
		_ = s.eventBus.Publish(eventbus.EventTypeRunStatusChanged, evt)
	}
}

func parseRunMode(s string) (backtest.RunMode, error) {
	switch backtest.RunMode(s) {
	case backtest.ModeHistorical, backtest.ModeLiveReplay, backtest.ModeOptimization:
		return backtest.RunMode(s), nil
	default:
		return "", fmt.Errorf("api: unknown run mode %q", s)
	}
}
