// Package repositories persists backtest runs, checkpoints, and trades
// via gorm/postgres, grounded on the teacher's internal/repositories
// (trade_repository.go's struct-wraps-*gorm.DB, transaction-per-mutation
// shape).
package repositories

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BacktestRunRecord is the persisted identity and final outcome of one
// backtest run.
type BacktestRunRecord struct {
	ID             string `gorm:"primaryKey"`
	DatasetID      string `gorm:"index"`
	AlgorithmName  string
	Mode           string
	Seed           string
	ConfigJSON     string
	Status         string `gorm:"index"` // running|paused|completed|failed
	ErrorMessage   string
	MetricsJSON    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

// TableName overrides gorm's pluralization to keep the schema explicit.
func (BacktestRunRecord) TableName() string { return "backtest_runs" }

// CheckpointRecord is one persisted checkpoint for a run. A run keeps
// only its latest checkpoint row (upserted by RunID), matching the
// orchestrator's "clear in place after persist" memory-bound contract.
type CheckpointRecord struct {
	RunID         string `gorm:"primaryKey"`
	LastIndex     int
	StateJSON     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (CheckpointRecord) TableName() string { return "backtest_checkpoints" }

// TradeRecord is one committed fill, persisted incrementally at every
// checkpoint flush. Monetary columns are stored as decimal.Decimal
// (via decimal's gorm Scan/Value) rather than float64 so the persisted
// ledger can't accumulate float round-trip drift across reads/writes;
// the simulation itself still runs on float64 per the engine's
// tolerance-based invariants (spec.md §8).
type TradeRecord struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	RunID        string `gorm:"index"`
	Type         string
	CoinID       string
	Quantity     decimal.Decimal `gorm:"type:numeric(36,18)"`
	Price        decimal.Decimal `gorm:"type:numeric(36,18)"`
	TotalValue   decimal.Decimal `gorm:"type:numeric(36,18)"`
	Fee          decimal.Decimal `gorm:"type:numeric(36,18)"`
	RealizedPnL  *decimal.Decimal `gorm:"type:numeric(36,18)"`
	CostBasis    *decimal.Decimal `gorm:"type:numeric(36,18)"`
	ExecutedAt   time.Time
	MetadataJSON string
}

func (TradeRecord) TableName() string { return "backtest_trades" }

// AutoMigrate creates or updates the three tables. Called once at
// service startup, mirroring the teacher's migration entrypoint.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&BacktestRunRecord{}, &CheckpointRecord{}, &TradeRecord{})
}

func marshalJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalJSON(s string, v interface{}) error {
	return json.Unmarshal([]byte(s), v)
}
