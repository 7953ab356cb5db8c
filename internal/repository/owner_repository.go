package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"propertyops/internal/model"
)

// OwnerRepository handles CRUD and report scheduling state for owners.
type OwnerRepository struct {
	db *gorm.DB
}

func NewOwnerRepository(db *gorm.DB) *OwnerRepository {
	return &OwnerRepository{db: db}
}

func (r *OwnerRepository) Create(ctx context.Context, owner *model.Owner) error {
	if err := r.db.WithContext(ctx).Create(owner).Error; err != nil {
		return fmt.Errorf("create owner: %w", err)
	}
	return nil
}

func (r *OwnerRepository) Save(ctx context.Context, owner *model.Owner) error {
	if err := r.db.WithContext(ctx).Save(owner).Error; err != nil {
		return fmt.Errorf("save owner: %w", err)
	}
	return nil
}

func (r *OwnerRepository) FindByID(ctx context.Context, id uint) (*model.Owner, error) {
	var owner model.Owner
	if err := r.db.WithContext(ctx).First(&owner, id).Error; err != nil {
		return nil, err
	}
	return &owner, nil
}

// ListReportsDue returns owners whose next report time has passed.
func (r *OwnerRepository) ListReportsDue(ctx context.Context, now time.Time) ([]model.Owner, error) {
	var owners []model.Owner
	if err := r.db.WithContext(ctx).
		Where("report_cadence <> '' AND next_report_at IS NOT NULL AND next_report_at <= ?", now).
		Order("next_report_at, id").
		Find(&owners).Error; err != nil {
		return nil, err
	}
	return owners, nil
}

func (r *OwnerRepository) SetNextReport(ctx context.Context, id uint, next time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.Owner{}).
		Where("id = ?", id).
		Update("next_report_at", next)
	if res.Error != nil {
		return fmt.Errorf("set next report for owner %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
