package repositories

import (
	"time"

	"gorm.io/gorm"

	"backtestd/internal/backtest"
)

// RunRepository persists BacktestRunRecord rows.
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository builds a RunRepository over db.
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run row in the "running" state.
func (r *RunRepository) Create(runID, datasetID, algorithmName string, mode backtest.RunMode, seed string, cfg backtest.BacktestConfig) error {
	configJSON, err := marshalJSON(cfg)
	if err != nil {
		return err
	}

	return r.db.Create(&BacktestRunRecord{
		ID:            runID,
		DatasetID:     datasetID,
		AlgorithmName: algorithmName,
		Mode:          string(mode),
		Seed:          seed,
		ConfigJSON:    configJSON,
		Status:        "running",
	}).Error
}

// MarkPaused records a run as paused, awaiting resume.
func (r *RunRepository) MarkPaused(runID string) error {
	return r.db.Model(&BacktestRunRecord{}).Where("id = ?", runID).Updates(map[string]interface{}{
		"status":     "paused",
		"updated_at": time.Now(),
	}).Error
}

// MarkResumed flips a paused run back to running.
func (r *RunRepository) MarkResumed(runID string) error {
	return r.db.Model(&BacktestRunRecord{}).Where("id = ?", runID).Updates(map[string]interface{}{
		"status":     "running",
		"updated_at": time.Now(),
	}).Error
}

// MarkCompleted stores the final metrics and flips status to completed.
func (r *RunRepository) MarkCompleted(runID string, metrics backtest.BacktestMetrics) error {
	metricsJSON, err := marshalJSON(metrics)
	if err != nil {
		return err
	}
	now := time.Now()
	return r.db.Model(&BacktestRunRecord{}).Where("id = ?", runID).Updates(map[string]interface{}{
		"status":       "completed",
		"metrics_json": metricsJSON,
		"updated_at":   now,
		"completed_at": &now,
	}).Error
}

// MarkFailed flips status to failed with the abort reason.
func (r *RunRepository) MarkFailed(runID, reason string) error {
	now := time.Now()
	return r.db.Model(&BacktestRunRecord{}).Where("id = ?", runID).Updates(map[string]interface{}{
		"status":        "failed",
		"error_message": reason,
		"updated_at":    now,
		"completed_at":  &now,
	}).Error
}

// FindByID fetches one run row.
func (r *RunRepository) FindByID(runID string) (*BacktestRunRecord, error) {
	var rec BacktestRunRecord
	if err := r.db.Where("id = ?", runID).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListByDataset returns every run over a given dataset, newest first.
func (r *RunRepository) ListByDataset(datasetID string, limit int) ([]BacktestRunRecord, error) {
	var recs []BacktestRunRecord
	err := r.db.Where("dataset_id = ?", datasetID).Order("created_at desc").Limit(limit).Find(&recs).Error
	return recs, err
}
