package repositories

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"backtestd/internal/backtest"
)

// CheckpointRepository persists the single latest checkpoint per run.
type CheckpointRepository struct {
	db *gorm.DB
}

// NewCheckpointRepository builds a CheckpointRepository over db.
func NewCheckpointRepository(db *gorm.DB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

// Save upserts the checkpoint for runID, overwriting any prior one —
// a run only ever needs its latest checkpoint to resume (spec.md 4.C13).
func (r *CheckpointRepository) Save(runID string, state backtest.CheckpointState) error {
	stateJSON, err := marshalJSON(state)
	if err != nil {
		return err
	}

	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_index", "state_json", "updated_at"}),
	}).Create(&CheckpointRecord{
		RunID:     runID,
		LastIndex: state.LastProcessedIndex,
		StateJSON: stateJSON,
	}).Error
}

// Load fetches the latest checkpoint for runID, or gorm.ErrRecordNotFound
// if the run has never checkpointed.
func (r *CheckpointRepository) Load(runID string) (*backtest.CheckpointState, error) {
	var rec CheckpointRecord
	if err := r.db.Where("run_id = ?", runID).First(&rec).Error; err != nil {
		return nil, err
	}

	var state backtest.CheckpointState
	if err := unmarshalJSON(rec.StateJSON, &state); err != nil {
		return nil, err
	}
	return &state, nil
}
