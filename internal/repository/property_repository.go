package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"propertyops/internal/model"
)

// PropertyRepository handles CRUD for properties.
type PropertyRepository struct {
	db *gorm.DB
}

func NewPropertyRepository(db *gorm.DB) *PropertyRepository {
	return &PropertyRepository{db: db}
}

func (r *PropertyRepository) Create(ctx context.Context, property *model.Property) error {
	if err := r.db.WithContext(ctx).Create(property).Error; err != nil {
		return fmt.Errorf("create property: %w", err)
	}
	return nil
}

func (r *PropertyRepository) FindByID(ctx context.Context, id uint) (*model.Property, error) {
	var property model.Property
	if err := r.db.WithContext(ctx).First(&property, id).Error; err != nil {
		return nil, err
	}
	return &property, nil
}

func (r *PropertyRepository) ListByOwner(ctx context.Context, ownerID uint) ([]model.Property, error) {
	var properties []model.Property
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).
		Order("id").
		Find(&properties).Error; err != nil {
		return nil, err
	}
	return properties, nil
}
