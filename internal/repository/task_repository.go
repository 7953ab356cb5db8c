package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"propertyops/internal/model"
)

// TaskRepository handles CRUD for task instances.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.TaskInstance) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// CreateBatch inserts instances on the caller's transaction so they commit
// or roll back together with the producing rule's schedule advancement.
func (r *TaskRepository) CreateBatch(ctx context.Context, tx *gorm.DB, tasks []model.TaskInstance) error {
	if len(tasks) == 0 {
		return nil
	}
	if err := tx.WithContext(ctx).Create(&tasks).Error; err != nil {
		return fmt.Errorf("create tasks: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, id uint) (*model.TaskInstance, error) {
	var task model.TaskInstance
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// ListByRule returns a rule's generation history, newest first.
func (r *TaskRepository) ListByRule(ctx context.Context, ruleID uint) ([]model.TaskInstance, error) {
	var tasks []model.TaskInstance
	if err := r.db.WithContext(ctx).Where("rule_id = ?", ruleID).
		Order("due_date DESC, id DESC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListOpenByProperties returns pending and in-progress tasks across the given
// properties, soonest due first.
func (r *TaskRepository) ListOpenByProperties(ctx context.Context, propertyIDs []uint) ([]model.TaskInstance, error) {
	if len(propertyIDs) == 0 {
		return nil, nil
	}
	var tasks []model.TaskInstance
	if err := r.db.WithContext(ctx).
		Where("property_id IN ? AND status IN ?", propertyIDs,
			[]model.TaskStatus{model.TaskStatusPending, model.TaskStatusInProgress}).
		Order("due_date, id").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *TaskRepository) SetStatus(ctx context.Context, task *model.TaskInstance, status model.TaskStatus, at time.Time) error {
	task.Status = status
	if status == model.TaskStatusDone {
		task.CompletedAt = &at
	}
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return nil
}
