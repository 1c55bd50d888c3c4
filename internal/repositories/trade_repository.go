package repositories

import (
	"encoding/json"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"backtestd/internal/backtest"
)

// TradeRepository persists TradeRecord rows in bulk at each checkpoint
// flush (spec.md 4.C13 incremental persistence contract).
type TradeRepository struct {
	db *gorm.DB
}

// NewTradeRepository builds a TradeRepository over db.
func NewTradeRepository(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// SaveBatch inserts every trade produced since the last checkpoint. A
// nil/empty slice is a no-op.
func (r *TradeRepository) SaveBatch(runID string, trades []backtest.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	records := make([]TradeRecord, len(trades))
	for i, t := range trades {
		metaJSON, err := json.Marshal(t.Metadata)
		if err != nil {
			return err
		}
		records[i] = TradeRecord{
			RunID:        runID,
			Type:         string(t.Type),
			CoinID:       t.CoinID,
			Quantity:     decimal.NewFromFloat(t.Quantity),
			Price:        decimal.NewFromFloat(t.Price),
			TotalValue:   decimal.NewFromFloat(t.TotalValue),
			Fee:          decimal.NewFromFloat(t.Fee),
			RealizedPnL:  decimalPtr(t.RealizedPnL),
			CostBasis:    decimalPtr(t.CostBasis),
			ExecutedAt:   t.ExecutedAt,
			MetadataJSON: string(metaJSON),
		}
	}

	return r.db.CreateInBatches(records, 200).Error
}

func decimalPtr(f *float64) *decimal.Decimal {
	if f == nil {
		return nil
	}
	d := decimal.NewFromFloat(*f)
	return &d
}

// GetByRunID returns every trade recorded for a run, oldest first.
func (r *TradeRepository) GetByRunID(runID string) ([]TradeRecord, error) {
	var recs []TradeRecord
	err := r.db.Where("run_id = ?", runID).Order("executed_at asc").Find(&recs).Error
	return recs, err
}

// CountByRunID counts trades recorded for a run.
func (r *TradeRepository) CountByRunID(runID string) (int64, error) {
	var count int64
	err := r.db.Model(&TradeRecord{}).Where("run_id = ?", runID).Count(&count).Error
	return count, err
}
