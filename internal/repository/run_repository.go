package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"propertyops/internal/model"
)

// RunRepository persists generation run history.
type RunRepository struct {
	db *gorm.DB
}

func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) Create(ctx context.Context, run *model.GenerationRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// ListRecent returns the latest runs, newest first.
func (r *RunRepository) ListRecent(ctx context.Context, limit int) ([]model.GenerationRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []model.GenerationRun
	if err := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit).
		Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
