package backtest

import (
	"context"
	"fmt"
	"time"
)

// Orchestration tuning constants fixed by spec.md 4.C14.
const (
	maxConsecutiveAlgoErrors  = 10
	maxConsecutivePauseErrors = 3
	snapshotBarInterval       = 24
	heartbeatMinInterval      = 30 * time.Second
	regimeCoinID              = "BTC"
)

// RunInput bundles everything RunBacktest needs to drive one run.
// Algorithm is already resolved (the caller looks it up in an
// AlgorithmRegistry by name before calling in); the orchestrator treats
// it as opaque.
type RunInput struct {
	BacktestID string
	DatasetID  string
	Seed       string

	Candles   []Candle
	Coins     []Coin
	Algorithm Algorithm
	Config    BacktestConfig
	Mode      RunMode

	// Resume, when non-nil, restarts the run from a previously validated
	// checkpoint instead of a fresh portfolio/RNG/throttle state.
	Resume *CheckpointState

	OnCheckpoint CheckpointCallback
	OnPaused     PauseCallback
	ShouldPause  ShouldPauseFunc
	OnHeartbeat  HeartbeatCallback
}

// orchestratorState is the mutable run state threaded through the bar
// loop. Kept separate from RunInput so resume can rebuild it wholesale.
type orchestratorState struct {
	portfolio *Portfolio
	rng       *RNG
	throttle  *ThrottleState
	metrics   *MetricsAccumulator
	regime    *RegimeGate

	pacer *PacingController

	trades    []Trade
	snapshots []Snapshot

	consecutiveErrors        int
	consecutivePauseFailures int
	lastCheckpointIndex      int
	lastHeartbeatAt          time.Time
	startedAt                time.Time
}

// RunBacktest drives the deterministic bar-by-bar simulation described
// by spec.md 4.C14. It returns either a completed run (Paused=false,
// Failed=false, Metrics/Trades/Snapshots populated), a paused run
// (Paused=true, PausedCheckpoint set — live-replay only), or a failed
// run (Failed=true, ErrorMessage set after MAX_CONSECUTIVE_ERRORS
// algorithm errors).
func RunBacktest(ctx context.Context, in RunInput) (RunResult, error) {
	windows := NewPriceWindowTracker(in.Candles)
	timestamps := windows.Timestamps()
	if len(timestamps) == 0 {
		return RunResult{}, fmt.Errorf("backtest: no candles supplied")
	}

	if in.Resume != nil {
		validation := ValidateCheckpoint(*in.Resume, timestamps)
		if !validation.Valid {
			return RunResult{}, fmt.Errorf("backtest: invalid resume checkpoint: %s", validation.Reason)
		}
	}

	st := newOrchestratorState(in)

	candlesByTimestamp := indexCandlesByTimestamp(in.Candles)
	latestClose := make(map[string]float64)
	if in.Resume != nil {
		for _, sp := range in.Resume.Portfolio.Positions {
			latestClose[sp.CoinID] = sp.AveragePrice
		}
	}

	startIndex := 0
	if in.Resume != nil {
		startIndex = in.Resume.LastProcessedIndex + 1
	}

	liveReplay := in.Mode == ModeLiveReplay
	lastIndex := len(timestamps) - 1

	for i := startIndex; i <= lastIndex; i++ {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}
		t := timestamps[i]
		bar := candlesByTimestamp[t.UnixNano()]

		for coinID, c := range bar {
			latestClose[coinID] = c.Close
		}

		MarkToMarket(st.portfolio, latestClose)

		priceData := windows.Advance(t)

		classification := RegimeNeutral
		if in.Config.EnableRegimeGate {
			if btc, ok := priceData[regimeCoinID]; ok {
				closes := make([]float64, len(btc))
				for idx, ps := range btc {
					closes[idx] = ps.Close
				}
				classification, _ = st.regime.Classify(closes)
			}
		}

		if i < in.Config.TradingStartIndex {
			if in.Algorithm != nil {
				_, _ = callAlgorithm(ctx, in, st, priceData, t)
			}
			continue
		}

		for _, sig := range GenerateHardStopLosses(st.portfolio, bar, in.Config) {
			out, ok := Execute(executionInputFor(in, st, sig, latestClose, t))
			if ok {
				st.trades = append(st.trades, out.Trade)
			}
		}

		if liveReplay && i > in.Config.TradingStartIndex && in.Config.ReplaySpeed != SpeedMax {
			if err := st.pacer.Sleep(ctx, in.Config.ReplaySpeed); err != nil {
				return RunResult{}, err
			}
		}

		result, algoErr := callAlgorithm(ctx, in, st, priceData, t)
		if algoErr != nil {
			if _, notRegistered := algoErr.(ErrAlgorithmNotRegistered); notRegistered {
				return RunResult{}, algoErr
			}
			st.consecutiveErrors++
			if st.consecutiveErrors >= maxConsecutiveAlgoErrors {
				return RunResult{
					Failed:       true,
					ErrorMessage: fmt.Sprintf("aborted after %d consecutive algorithm errors: %v", st.consecutiveErrors, algoErr),
					Trades:       st.trades,
					Snapshots:    st.snapshots,
				}, nil
			}
		} else {
			st.consecutiveErrors = 0
		}

		filtered := filterSignals(st, toTradingSignals(result), in.Config, classification, t)

		for _, sig := range filtered {
			if in.Mode != ModeOptimization {
				st.metrics.RecordSignal()
			}

			execOut, ok := Execute(executionInputFor(in, st, sig, latestClose, t))

			if !ok && sig.Action == Buy && in.Config.Opportunity.Enabled && sig.Confidence >= in.Config.Opportunity.MinOpportunityConfidence {
				nowMillis := t.UnixNano() / int64(time.Millisecond)
				basePrice := latestClose[sig.CoinID]
				required := EstimateBuyRequirement(sig, st.portfolio.TotalValue, basePrice, in.Config)
				shortfall := required - st.portfolio.CashBalance
				candidates := ScoreOpportunities(st.portfolio, latestClose, sig.CoinID, in.Config.Opportunity, in.Config.MinHoldMs, nowMillis, sig.Confidence)
				liquidations := SelectLiquidations(candidates, shortfall, st.portfolio.TotalValue, in.Config.Opportunity)

				for _, liq := range liquidations {
					liqSignal := TradingSignal{
						Action:       Sell,
						CoinID:       liq.CoinID,
						Confidence:   1.0,
						Reason:       "opportunity_liquidation",
						OriginalType: SignalSell,
					}
					if liqOut, liqOK := Execute(executionInputFor(in, st, liqSignal, latestClose, t)); liqOK {
						st.trades = append(st.trades, liqOut.Trade)
						RecordAccepted(st.throttle, liqSignal, nowMillis)
					}
				}

				execOut, ok = Execute(executionInputFor(in, st, sig, latestClose, t))
			}

			if ok {
				st.trades = append(st.trades, execOut.Trade)
				RecordAccepted(st.throttle, sig, t.UnixNano()/int64(time.Millisecond))
			}
		}

		st.metrics.UpdateDrawdown(st.portfolio.TotalValue)

		wantSnapshot := i == lastIndex
		if in.Mode != ModeOptimization {
			wantSnapshot = wantSnapshot || (i-in.Config.TradingStartIndex)%snapshotBarInterval == 0
		}
		if wantSnapshot {
			st.snapshots = append(st.snapshots, buildSnapshot(st, t, in.Config.InitialCapital))
		}

		if in.OnHeartbeat != nil && time.Since(st.lastHeartbeatAt) >= heartbeatMinInterval {
			in.OnHeartbeat(ctx, HeartbeatSnapshot{
				BarIndex:       i,
				TotalBars:      len(timestamps),
				PortfolioValue: st.portfolio.TotalValue,
				ElapsedMs:      time.Since(st.startedAt).Milliseconds(),
			})
			st.lastHeartbeatAt = time.Now()
		}

		if liveReplay && in.ShouldPause != nil {
			shouldPause, err := in.ShouldPause(ctx)
			if err != nil {
				st.consecutivePauseFailures++
				if st.consecutivePauseFailures >= maxConsecutivePauseErrors {
					shouldPause = true
				}
			} else {
				st.consecutivePauseFailures = 0
			}

			if shouldPause {
				ckpt, buildErr := BuildCheckpoint(i, t, st.portfolio, st.metrics.PeakValue(), st.metrics.MaxDrawdown(), st.rng.GetState(), st.metrics.PersistedCounts(), st.throttle)
				if buildErr != nil {
					return RunResult{}, buildErr
				}
				if in.OnPaused != nil {
					if err := in.OnPaused(ctx, ckpt); err != nil {
						return RunResult{}, err
					}
				}
				return RunResult{Paused: true, PausedCheckpoint: &ckpt, Trades: st.trades, Snapshots: st.snapshots}, nil
			}
		}

		if i-st.lastCheckpointIndex >= checkpointInterval(in.Config, in.Mode) {
			if err := flushCheckpoint(ctx, in, st, i, t, len(timestamps)); err != nil {
				return RunResult{}, err
			}
		}
	}

	finalTimestamp := timestamps[lastIndex]
	firstTradingTimestamp := timestamps[in.Config.TradingStartIndex]
	durationDays := finalTimestamp.Sub(firstTradingTimestamp).Hours() / 24

	st.metrics.Harvest(st.trades, st.snapshots)
	metrics := st.metrics.Finalize(st.portfolio.TotalValue, in.Config.InitialCapital, durationDays)

	return RunResult{
		Metrics:   metrics,
		Trades:    st.trades,
		Snapshots: st.snapshots,
	}, nil
}

func newOrchestratorState(in RunInput) *orchestratorState {
	st := &orchestratorState{
		regime:          NewRegimeGate(in.Config.RegimeSMAPeriod),
		pacer:           NewPacingController(in.Config.BaseIntervalMs),
		startedAt:       time.Now(),
		lastHeartbeatAt: time.Now(),
	}

	if in.Resume != nil {
		st.portfolio = Deserialize(in.Resume.Portfolio)
		st.rng = RNGFromState(in.Resume.RNGState)
		st.lastCheckpointIndex = in.Resume.LastProcessedIndex
		st.metrics = NewMetricsAccumulator(&in.Resume.PersistedCounts, in.Resume.PeakValue)
		st.metrics.ResumeDrawdown(in.Resume.MaxDrawdown)
		if in.Resume.ThrottleState != nil {
			st.throttle = &ThrottleState{
				LastSignalAt:   in.Resume.ThrottleState.LastSignalAt,
				TradesInWindow: in.Resume.ThrottleState.TradesInWindow,
			}
		} else {
			st.throttle = NewThrottleState()
		}
		return st
	}

	st.portfolio = NewPortfolio(in.Config.InitialCapital)
	st.rng = NewRNG(in.Seed)
	st.throttle = NewThrottleState()
	st.metrics = NewMetricsAccumulator(nil, in.Config.InitialCapital)
	st.lastCheckpointIndex = -1
	return st
}

func indexCandlesByTimestamp(candles []Candle) map[int64]map[string]Candle {
	out := make(map[int64]map[string]Candle)
	for _, c := range candles {
		key := c.Timestamp.UnixNano()
		if out[key] == nil {
			out[key] = make(map[string]Candle)
		}
		out[key][c.CoinID] = c
	}
	return out
}

func executionInputFor(in RunInput, st *orchestratorState, sig TradingSignal, marketPrices map[string]float64, t time.Time) ExecutionInput {
	return ExecutionInput{
		Signal:        sig,
		Portfolio:     st.portfolio,
		MarketPrices:  marketPrices,
		FeeConfig:     in.Config.Fee,
		Slippage:      in.Config.Slippage,
		RNG:           st.rng,
		MinHoldMs:     in.Config.MinHoldMs,
		MaxAllocation: in.Config.MaxAllocation,
		MinAllocation: in.Config.MinAllocation,
		Now:           t,
	}
}

func callAlgorithm(ctx context.Context, in RunInput, st *orchestratorState, priceData map[string][]PriceSummary, t time.Time) (AlgorithmResult, error) {
	timeout := in.Config.AlgorithmTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	positions := make(map[string]float64, len(st.portfolio.Positions))
	for coinID, pos := range st.portfolio.Positions {
		positions[coinID] = pos.Quantity
	}

	algoCtx := AlgorithmContext{
		Coins:            in.Coins,
		PriceData:        priceData,
		Timestamp:        t,
		Positions:        positions,
		AvailableBalance: st.portfolio.CashBalance,
		Metadata: AlgorithmMetadata{
			BacktestID:        in.BacktestID,
			DatasetID:         in.DatasetID,
			DeterministicSeed: in.Seed,
			IsOptimization:    in.Mode == ModeOptimization,
			IsLiveReplay:      in.Mode == ModeLiveReplay,
			ReplaySpeed:       in.Config.ReplaySpeed,
		},
	}

	return in.Algorithm.Execute(callCtx, algoCtx)
}

func toTradingSignals(result AlgorithmResult) []TradingSignal {
	if !result.Success {
		return nil
	}
	out := make([]TradingSignal, 0, len(result.Signals))
	for _, s := range result.Signals {
		if s.Type == SignalHold {
			continue
		}
		action := Sell
		if s.Type == SignalBuy {
			action = Buy
		}

		sig := TradingSignal{
			Action:       action,
			CoinID:       s.CoinID,
			Quantity:     s.Quantity,
			Confidence:   s.Confidence,
			Reason:       s.Reason,
			Metadata:     s.Metadata,
			OriginalType: s.Type,
		}
		if s.Strength != nil {
			sig.Percentage = s.Strength
		}
		out = append(out, sig)
	}
	return out
}

// filterSignals applies throttle then the regime gate, in that order
// (spec.md 4.C14 step 8). Risk-control signals bypass both gates per
// IsRiskControl semantics, whether algorithm-originated or synthetic.
func filterSignals(st *orchestratorState, signals []TradingSignal, cfg BacktestConfig, classification RegimeClassification, t time.Time) []TradingSignal {
	nowMillis := t.UnixNano() / int64(time.Millisecond)

	var out []TradingSignal
	for _, sig := range signals {
		if sig.OriginalType.IsRiskControl() {
			out = append(out, sig)
			continue
		}

		positionQty := 0.0
		if pos, ok := st.portfolio.Positions[sig.CoinID]; ok {
			positionQty = pos.Quantity
		}

		if decision := EvaluateThrottle(st.throttle, sig, nowMillis, cfg, positionQty); !decision.Allowed {
			continue
		}

		if sig.Action == Buy && cfg.EnableRegimeGate && !FilterBuy(classification) {
			continue
		}

		out = append(out, sig)
	}
	return out
}

func buildSnapshot(st *orchestratorState, t time.Time, initialCapital float64) Snapshot {
	holdings := make(map[string]HoldingSnapshot, len(st.portfolio.Positions))
	for coinID, pos := range st.portfolio.Positions {
		price := pos.AveragePrice
		if pos.Quantity != 0 {
			price = pos.TotalValue / pos.Quantity
		}
		holdings[coinID] = HoldingSnapshot{
			Quantity: pos.Quantity,
			Value:    pos.TotalValue,
			Price:    price,
		}
	}

	cumulativeReturn := 0.0
	if initialCapital > 0 {
		cumulativeReturn = (st.portfolio.TotalValue - initialCapital) / initialCapital
	}

	return Snapshot{
		Timestamp:        t,
		PortfolioValue:   st.portfolio.TotalValue,
		CashBalance:      st.portfolio.CashBalance,
		Holdings:         holdings,
		CumulativeReturn: cumulativeReturn,
		Drawdown:         st.metrics.MaxDrawdown(),
	}
}

func checkpointInterval(cfg BacktestConfig, mode RunMode) int {
	if mode == ModeLiveReplay {
		return cfg.CheckpointIntervalLiveReplay
	}
	return cfg.CheckpointIntervalHistorical
}

// flushCheckpoint builds and persists a checkpoint, then harvests and
// clears the in-memory trade/snapshot arrays (spec.md 4.C14 step 14;
// "Shared-resource policy" requires the callback to complete before the
// clear).
func flushCheckpoint(ctx context.Context, in RunInput, st *orchestratorState, i int, t time.Time, totalTimestamps int) error {
	ckpt, err := BuildCheckpoint(i, t, st.portfolio, st.metrics.PeakValue(), st.metrics.MaxDrawdown(), st.rng.GetState(), st.metrics.PersistedCounts(), st.throttle)
	if err != nil {
		return err
	}

	incremental := IncrementalResults{Trades: st.trades, Snapshots: st.snapshots}

	if in.OnCheckpoint != nil {
		if err := in.OnCheckpoint(ctx, ckpt, incremental, totalTimestamps); err != nil {
			return err
		}
	}

	st.metrics.Harvest(st.trades, st.snapshots)
	st.trades = nil
	st.snapshots = nil
	st.lastCheckpointIndex = i

	return nil
}
