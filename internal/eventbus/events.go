package eventbus

import "time"

// TradeExecutedEvent is published whenever the trade executor commits a
// fill, so a connected dashboard or audit subscriber can react without
// polling the run's trade log.
type TradeExecutedEvent struct {
	Type      string    `json:"type"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Data      struct {
		RunID       string  `json:"run_id"`
		CoinID      string  `json:"coin_id"`
		Side        string  `json:"side"`
		Quantity    float64 `json:"quantity"`
		Price       float64 `json:"price"`
		Fee         float64 `json:"fee"`
		RealizedPnL float64 `json:"realized_pnl,omitempty"`
		ExecutedAt  string  `json:"executed_at"`
	} `json:"data"`
}

// CheckpointPersistedEvent is published after OnCheckpoint durably
// stores a run's resumable state (spec.md 4.C13/4.C14 step 14).
type CheckpointPersistedEvent struct {
	Type      string    `json:"type"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Data      struct {
		RunID          string  `json:"run_id"`
		LastIndex      int     `json:"last_index"`
		PortfolioValue float64 `json:"portfolio_value"`
	} `json:"data"`
}

// RunStatusChangedEvent is published on every transition of a run's
// lifecycle (running, paused, completed, failed).
type RunStatusChangedEvent struct {
	Type      string    `json:"type"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Data      struct {
		RunID  string `json:"run_id"`
		Status string `json:"status"`
		Reason string `json:"reason,omitempty"`
	} `json:"data"`
}

// EventTypes constants
const (
	EventTypeTradeExecuted      = "trade_executed"
	EventTypeCheckpointPersisted = "checkpoint_persisted"
	EventTypeRunStatusChanged   = "run_status_changed"
	EventVersion1               = "v1"
)

// NewTradeExecutedEvent creates a new TradeExecutedEvent.
func NewTradeExecutedEvent(runID, coinID, side string, quantity, price, fee, realizedPnL float64, executedAt string) *TradeExecutedEvent {
	event := &TradeExecutedEvent{
		Type:      EventTypeTradeExecuted,
		Version:   EventVersion1,
		Timestamp: time.Now(),
	}
	event.Data.RunID = runID
	event.Data.CoinID = coinID
	event.Data.Side = side
	event.Data.Quantity = quantity
	event.Data.Price = price
	event.Data.Fee = fee
	event.Data.RealizedPnL = realizedPnL
	event.Data.ExecutedAt = executedAt
	return event
}

// NewCheckpointPersistedEvent creates a new CheckpointPersistedEvent.
func NewCheckpointPersistedEvent(runID string, lastIndex int, portfolioValue float64) *CheckpointPersistedEvent {
	event := &CheckpointPersistedEvent{
		Type:      EventTypeCheckpointPersisted,
		Version:   EventVersion1,
		Timestamp: time.Now(),
	}
	event.Data.RunID = runID
	event.Data.LastIndex = lastIndex
	event.Data.PortfolioValue = portfolioValue
	return event
}

// NewRunStatusChangedEvent creates a new RunStatusChangedEvent.
func NewRunStatusChangedEvent(runID, status, reason string) *RunStatusChangedEvent {
	event := &RunStatusChangedEvent{
		Type:      EventTypeRunStatusChanged,
		Version:   EventVersion1,
		Timestamp: time.Now(),
	}
	event.Data.RunID = runID
	event.Data.Status = status
	event.Data.Reason = reason
	return event
}
