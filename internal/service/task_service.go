package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"propertyops/internal/model"
	"propertyops/internal/repository"
)

// ErrTaskNotFound is returned when operating on an unknown task id.
var ErrTaskNotFound = errors.New("service: task not found")

// TaskInput represents data required to create a task manually.
type TaskInput struct {
	PropertyID   uint
	TaskType     model.TaskType
	Title        string
	Description  string
	AssigneeID   *uint
	CostEstimate *float64
	DueDate      time.Time
}

// TaskService wraps task instance business logic. It doubles as the
// generation engine's TaskSink.
type TaskService struct {
	tasks    *repository.TaskRepository
	contacts *repository.ContactRepository
}

func NewTaskService(tasks *repository.TaskRepository, contacts *repository.ContactRepository) *TaskService {
	return &TaskService{tasks: tasks, contacts: contacts}
}

// CreateInstances implements TaskSink: one pending instance per property,
// dated at the occurrence being generated for and linked back to the rule.
func (s *TaskService) CreateInstances(ctx context.Context, tx *gorm.DB, rule model.RecurrenceRule, dueDate time.Time, properties []model.Property) (int, error) {
	if err := s.checkAssignee(ctx, rule.AssigneeID); err != nil {
		return 0, err
	}
	ruleID := rule.ID
	instances := make([]model.TaskInstance, 0, len(properties))
	for _, property := range properties {
		instances = append(instances, model.TaskInstance{
			RuleID:       &ruleID,
			PropertyID:   property.ID,
			TaskType:     rule.TaskType,
			Title:        rule.Title,
			Description:  rule.Description,
			AssigneeID:   rule.AssigneeID,
			CostEstimate: rule.CostEstimate,
			DueDate:      model.DayStart(dueDate),
			Status:       model.TaskStatusPending,
		})
	}
	if err := s.tasks.CreateBatch(ctx, tx, instances); err != nil {
		return 0, err
	}
	return len(instances), nil
}

// Create adds a one-off task with no producing rule.
func (s *TaskService) Create(ctx context.Context, input TaskInput) (*model.TaskInstance, error) {
	if input.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if err := s.checkAssignee(ctx, input.AssigneeID); err != nil {
		return nil, err
	}
	task := model.TaskInstance{
		PropertyID:   input.PropertyID,
		TaskType:     input.TaskType,
		Title:        input.Title,
		Description:  input.Description,
		AssigneeID:   input.AssigneeID,
		CostEstimate: input.CostEstimate,
		DueDate:      model.DayStart(input.DueDate),
		Status:       model.TaskStatusPending,
	}
	if err := s.tasks.Create(ctx, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// History returns the instances a rule has generated, newest first.
func (s *TaskService) History(ctx context.Context, ruleID uint) ([]model.TaskInstance, error) {
	return s.tasks.ListByRule(ctx, ruleID)
}

// SetStatus moves a task through the workflow, stamping completion time.
func (s *TaskService) SetStatus(ctx context.Context, taskID uint, status model.TaskStatus, at time.Time) (*model.TaskInstance, error) {
	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	if err := s.tasks.SetStatus(ctx, task, status, at); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *TaskService) checkAssignee(ctx context.Context, assigneeID *uint) error {
	if assigneeID == nil {
		return nil
	}
	ok, err := s.contacts.Exists(ctx, *assigneeID)
	if err != nil {
		return fmt.Errorf("check assignee %d: %w", *assigneeID, err)
	}
	if !ok {
		return fmt.Errorf("assignee contact %d not found", *assigneeID)
	}
	return nil
}
