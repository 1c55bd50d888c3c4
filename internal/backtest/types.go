// Package backtest implements the deterministic bar-by-bar trading
// simulation engine: portfolio/position state, the trade executor,
// signal filters, checkpointing, and the incremental metrics
// accumulator. Algorithms (trade-signal producers), storage, and
// telemetry are external collaborators consumed through the
// interfaces in algorithm.go.
package backtest

import "time"

// Action is the normalized trade direction used throughout the engine.
type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
	Hold Action = "HOLD"
)

// SignalType preserves the algorithm's original intent (risk-control
// signals collapse to Sell action but keep their original type for
// routing around throttle/regime/hold-period gates).
type SignalType string

const (
	SignalBuy       SignalType = "BUY"
	SignalSell      SignalType = "SELL"
	SignalStopLoss  SignalType = "STOP_LOSS"
	SignalTakeProfit SignalType = "TAKE_PROFIT"
	SignalHold      SignalType = "HOLD"
)

// IsRiskControl reports whether the signal bypasses throttle, regime
// gate, and the SELL hold-period (see GLOSSARY: Risk-control signal).
func (t SignalType) IsRiskControl() bool {
	return t == SignalStopLoss || t == SignalTakeProfit
}

// Candle is one OHLCV observation for a coin at a timestamp. Immutable,
// sorted ascending per coin by the caller.
type Candle struct {
	CoinID    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// PriceSummary is the window element handed to algorithms. Avg is
// always equal to Close (Open Question (a) in spec.md resolved this
// way — see DESIGN.md).
type PriceSummary struct {
	Coin  string
	Date  time.Time
	Avg   float64
	High  float64
	Low   float64
	Close float64
}

// Position is a held quantity of one coin under weighted-average cost
// accounting. It is removed from the portfolio the instant Quantity
// reaches exactly zero.
type Position struct {
	CoinID       string
	Quantity     float64
	AveragePrice float64
	TotalValue   float64
	EntryDate    time.Time
}

// Portfolio is the cash + positions state mutated only inside the
// trade executor.
type Portfolio struct {
	CashBalance float64
	Positions   map[string]*Position
	TotalValue  float64
}

// NewPortfolio creates a portfolio holding only cash.
func NewPortfolio(initialCapital float64) *Portfolio {
	return &Portfolio{
		CashBalance: initialCapital,
		Positions:   make(map[string]*Position),
		TotalValue:  initialCapital,
	}
}

// TradingSignal is the internal representation of an algorithm's
// (or a risk-control generator's) intent. Quantity/Percentage are
// pointers because sizing falls back through a priority chain
// (explicit quantity > percentage > confidence > RNG) when absent.
type TradingSignal struct {
	Action       Action
	CoinID       string
	Quantity     *float64
	Percentage   *float64
	Confidence   float64
	Reason       string
	Metadata     map[string]interface{}
	OriginalType SignalType
}

// Trade is the immutable record of a committed fill.
type Trade struct {
	Type               Action
	CoinID             string
	Quantity           float64
	Price              float64
	TotalValue         float64
	Fee                float64
	RealizedPnL        *float64
	RealizedPnLPercent *float64
	CostBasis          *float64
	ExecutedAt         time.Time
	Metadata           map[string]interface{}
}

// HoldingSnapshot is one coin's contribution to a portfolio Snapshot.
type HoldingSnapshot struct {
	Quantity float64
	Value    float64
	Price    float64
}

// Snapshot is an append-only periodic sample of portfolio state.
type Snapshot struct {
	Timestamp        time.Time
	PortfolioValue   float64
	CashBalance      float64
	Holdings         map[string]HoldingSnapshot
	CumulativeReturn float64
	Drawdown         float64
}

// ThrottleState tracks per-(coin,action) cooldowns and the rolling
// 24h accepted-signal count per coin.
type ThrottleState struct {
	LastSignalAt   map[string]int64   // key: coinID+"|"+action
	TradesInWindow map[string][]int64 // key: coinID, value: unix-millis of accepted signals
}

// NewThrottleState returns an empty throttle state.
func NewThrottleState() *ThrottleState {
	return &ThrottleState{
		LastSignalAt:   make(map[string]int64),
		TradesInWindow: make(map[string][]int64),
	}
}

// PersistedCounts are the cumulative counters a checkpoint carries
// across resumes so the metrics accumulator need not replay history.
type PersistedCounts struct {
	Trades        int
	Signals       int
	Fills         int
	Snapshots     int
	Sells         int
	WinningSells  int
	GrossProfit   float64
	GrossLoss     float64
}

// SerializedPosition is the on-disk shape of a Position.
type SerializedPosition struct {
	CoinID       string     `json:"coinId"`
	Quantity     float64    `json:"quantity"`
	AveragePrice float64    `json:"averagePrice"`
	EntryDate    *time.Time `json:"entryDate,omitempty"`
}

// SerializedPortfolio is the on-disk shape of a Portfolio.
type SerializedPortfolio struct {
	CashBalance float64              `json:"cashBalance"`
	Positions   []SerializedPosition `json:"positions"`
	TotalValue  float64              `json:"totalValue"`
}

// SerializedThrottleState is the on-disk shape of a ThrottleState.
type SerializedThrottleState struct {
	LastSignalAt   map[string]int64   `json:"lastSignalAt"`
	TradesInWindow map[string][]int64 `json:"tradesInWindow"`
}

// CheckpointState is a self-contained, checksummed snapshot of all
// state needed to resume a run exactly (see checkpoint.go, C13).
type CheckpointState struct {
	LastProcessedIndex     int                      `json:"lastProcessedIndex"`
	LastProcessedTimestamp string                   `json:"lastProcessedTimestamp"`
	Portfolio              SerializedPortfolio      `json:"portfolio"`
	PeakValue              float64                  `json:"peakValue"`
	MaxDrawdown            float64                  `json:"maxDrawdown"`
	RNGState               uint32                   `json:"rngState"`
	PersistedCounts        PersistedCounts          `json:"persistedCounts"`
	ThrottleState          *SerializedThrottleState `json:"throttleState,omitempty"`
	Checksum               string                   `json:"checksum"`
}

// ReplaySpeed is the live-replay pacing multiplier (C15).
type ReplaySpeed string

const (
	Speed1x   ReplaySpeed = "1x"
	Speed5x   ReplaySpeed = "5x"
	Speed10x  ReplaySpeed = "10x"
	Speed50x  ReplaySpeed = "50x"
	SpeedMax  ReplaySpeed = "MAX_SPEED"
)

// SlippageModelType selects a SlippageModel variant (C2).
type SlippageModelType string

const (
	SlippageNone          SlippageModelType = "none"
	SlippageFixed         SlippageModelType = "fixed"
	SlippageVolumeBased   SlippageModelType = "volume_based"
	SlippageHistorical    SlippageModelType = "historical"
)

// SlippageConfig parameterizes the slippage model (C2).
type SlippageConfig struct {
	Type               SlippageModelType
	FixedBps           float64
	BaseSlippageBps    float64
	VolumeImpactFactor float64
	MaxSlippageBps     float64
	// Historical is an optional lookup used only when Type ==
	// SlippageHistorical; keyed by coinID then truncated-to-day unix
	// millis, mirroring an empirical distribution supplied by the
	// caller.
	Historical map[string]map[int64]float64
}

// FeeConfig parameterizes the fee calculator (C3).
type FeeConfig struct {
	FlatRate  float64 // used when MakerRate/TakerRate are both zero
	MakerRate float64
	TakerRate float64
}

// OpportunitySellingConfig parameterizes C9.
type OpportunitySellingConfig struct {
	Enabled                bool
	MinOpportunityConfidence float64
	ProtectedCoins         map[string]bool
	MaxLiquidationPercent  float64
}

// BacktestConfig is the recognized, defaulted configuration surface
// described in spec.md §6.
type BacktestConfig struct {
	InitialCapital float64

	MinHoldMs      int64
	MaxAllocation  float64
	MinAllocation  float64

	EnableHardStopLoss  bool
	HardStopLossPercent float64

	EnableRegimeGate bool
	RegimeSMAPeriod  int

	CheckpointIntervalHistorical  int
	CheckpointIntervalLiveReplay int

	ReplaySpeed    ReplaySpeed
	BaseIntervalMs int64

	CooldownMs      int64
	MaxTradesPerDay int
	MinSellPercent  float64

	Opportunity OpportunitySellingConfig

	Slippage SlippageConfig
	Fee      FeeConfig

	TradingStartIndex int
	AlgorithmTimeout  time.Duration
}

// DefaultBacktestConfig returns the spec-mandated defaults (§6).
func DefaultBacktestConfig() BacktestConfig {
	return BacktestConfig{
		InitialCapital:               10_000.0,
		MinHoldMs:                    24 * time.Hour.Milliseconds(),
		MaxAllocation:                0.12,
		MinAllocation:                0.03,
		EnableHardStopLoss:           true,
		HardStopLossPercent:          0.05,
		EnableRegimeGate:             true,
		RegimeSMAPeriod:              200,
		CheckpointIntervalHistorical: 500,
		CheckpointIntervalLiveReplay: 100,
		ReplaySpeed:                  Speed1x,
		BaseIntervalMs:               1000,
		CooldownMs:                   86_400_000,
		MaxTradesPerDay:              6,
		MinSellPercent:               0.5,
		Opportunity: OpportunitySellingConfig{
			MaxLiquidationPercent: 0.5,
		},
		Slippage: SlippageConfig{
			Type:           SlippageNone,
			MaxSlippageBps: 500,
		},
		Fee:              FeeConfig{FlatRate: 0.001},
		AlgorithmTimeout: 60 * time.Second,
	}
}

// BacktestMetrics is the final performance report (C12).
type BacktestMetrics struct {
	TotalReturn      float64
	AnnualizedReturn float64
	Sharpe           float64
	Volatility       float64
	ProfitFactor     float64
	WinRate          float64
	MaxDrawdown      float64
	TotalTrades      int
	TotalSells       int
	WinningSells     int
	GrossProfit      float64
	GrossLoss        float64
	FinalValue       float64
	InitialCapital   float64
	DurationDays     float64
}

// RunMode selects which of the three execution modes the orchestrator
// runs (historical, live-replay, optimization).
type RunMode string

const (
	ModeHistorical   RunMode = "historical"
	ModeLiveReplay   RunMode = "live_replay"
	ModeOptimization RunMode = "optimization"
)

// RunResult is what RunBacktest returns: either a completed run's
// metrics and trade/snapshot history, or a paused run's resumable
// checkpoint.
type RunResult struct {
	Paused          bool
	PausedCheckpoint *CheckpointState
	Failed          bool
	ErrorMessage    string
	Metrics         BacktestMetrics
	Trades          []Trade
	Snapshots       []Snapshot
}
