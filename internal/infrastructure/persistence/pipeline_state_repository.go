package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/verifactu/backend/internal/domain/remision"
	"github.com/verifactu/backend/internal/domain/shared"
	"github.com/verifactu/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormPipelineStateRepository implements PipelineStateRepository using GORM.
// The table holds a single row shared by every worker, so Save runs an
// optimistic compare-and-swap on the version column.
type GormPipelineStateRepository struct {
	db *gorm.DB
}

// NewGormPipelineStateRepository creates a new GormPipelineStateRepository
func NewGormPipelineStateRepository(db *gorm.DB) *GormPipelineStateRepository {
	return &GormPipelineStateRepository{db: db}
}

// Load returns the shared pipeline row, creating it on first use
func (r *GormPipelineStateRepository) Load(ctx context.Context) (*remision.PipelineState, error) {
	var model models.PipelineStateModel
	err := r.db.WithContext(ctx).First(&model).Error
	if err == nil {
		return model.ToDomain(), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	state := remision.NewPipelineState()
	model.FromDomain(state)
	// Concurrent first loads may both insert; losing the race is fine, the
	// winner's row is re-read.
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if findErr := r.db.WithContext(ctx).First(&model).Error; findErr != nil {
			return nil, fmt.Errorf("failed to initialize pipeline state: %w", err)
		}
	}
	return model.ToDomain(), nil
}

// Save persists the pipeline row when the stored version still matches the
// loaded one, and bumps the version. Returns shared.ErrConcurrencyConflict
// when another writer got there first.
func (r *GormPipelineStateRepository) Save(ctx context.Context, state *remision.PipelineState) error {
	result := r.db.WithContext(ctx).
		Model(&models.PipelineStateModel{}).
		Where("id = ? AND version = ?", state.ID, state.Version).
		Updates(map[string]interface{}{
			"last_submit_at":       state.LastSubmitAt,
			"consecutive_failures": state.ConsecutiveFailures,
			"paused_until":         state.PausedUntil,
			"version":              state.Version + 1,
			"updated_at":           time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to save pipeline state: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}
