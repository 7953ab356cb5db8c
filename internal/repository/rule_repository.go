package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"propertyops/internal/model"
)

// RuleFilter narrows a rule listing.
type RuleFilter struct {
	PropertyID *uint
	OwnerID    *uint
	ActiveOnly bool
}

// RuleRepository handles CRUD and schedule state for recurrence rules.
type RuleRepository struct {
	db *gorm.DB
}

func NewRuleRepository(db *gorm.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

func (r *RuleRepository) Create(ctx context.Context, rule *model.RecurrenceRule) error {
	if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	return nil
}

func (r *RuleRepository) Save(ctx context.Context, rule *model.RecurrenceRule) error {
	if err := r.db.WithContext(ctx).Save(rule).Error; err != nil {
		return fmt.Errorf("save rule: %w", err)
	}
	return nil
}

func (r *RuleRepository) FindByID(ctx context.Context, id uint) (*model.RecurrenceRule, error) {
	var rule model.RecurrenceRule
	if err := r.db.WithContext(ctx).First(&rule, id).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *RuleRepository) List(ctx context.Context, filter RuleFilter) ([]model.RecurrenceRule, error) {
	q := r.db.WithContext(ctx).Model(&model.RecurrenceRule{})
	if filter.PropertyID != nil {
		q = q.Where("property_id = ?", *filter.PropertyID)
	}
	if filter.OwnerID != nil {
		q = q.Where("owner_id = ?", *filter.OwnerID)
	}
	if filter.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	var rules []model.RecurrenceRule
	if err := q.Order("next_run_date, id").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

// ListDue returns every active rule whose next run date is at or before asOf.
func (r *RuleRepository) ListDue(ctx context.Context, asOf time.Time) ([]model.RecurrenceRule, error) {
	var rules []model.RecurrenceRule
	if err := r.db.WithContext(ctx).
		Where("is_active = ? AND next_run_date <= ?", true, asOf).
		Order("next_run_date, id").
		Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

// AdvanceSchedule moves a rule past the occurrence it just generated for.
// The update is conditional on next_run_date still holding the value the
// caller read, so overlapping engine runs cannot both advance the same
// occurrence; the second one sees zero rows affected. A nil next deactivates
// the rule instead of advancing it (its window is exhausted).
func (r *RuleRepository) AdvanceSchedule(ctx context.Context, tx *gorm.DB, ruleID uint, due time.Time, next *time.Time, generated int, now time.Time) (bool, error) {
	updates := map[string]any{
		"total_generated":   gorm.Expr("total_generated + ?", generated),
		"last_generated_at": now,
	}
	if next != nil {
		updates["next_run_date"] = *next
	} else {
		updates["is_active"] = false
	}
	res := tx.WithContext(ctx).Model(&model.RecurrenceRule{}).
		Where("id = ? AND is_active = ? AND next_run_date = ?", ruleID, true, due).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("advance rule %d: %w", ruleID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *RuleRepository) SetActive(ctx context.Context, id uint, active bool) error {
	res := r.db.WithContext(ctx).Model(&model.RecurrenceRule{}).
		Where("id = ?", id).
		Update("is_active", active)
	if res.Error != nil {
		return fmt.Errorf("set rule %d active=%v: %w", id, active, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *RuleRepository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&model.RecurrenceRule{}, id).Error; err != nil {
		return fmt.Errorf("delete rule %d: %w", id, err)
	}
	return nil
}
