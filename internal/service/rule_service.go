package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"propertyops/internal/model"
	"propertyops/internal/repository"
)

// ErrRuleNotFound is returned when operating on an unknown rule id.
var ErrRuleNotFound = errors.New("service: recurrence rule not found")

// RuleInput represents data required to create or update a recurrence rule.
type RuleInput struct {
	PropertyID   *uint
	OwnerID      *uint
	TaskType     model.TaskType
	Title        string
	Description  string
	AssigneeID   *uint
	CostEstimate *float64
	Frequency    model.Frequency
	Interval     int
	DayOfWeek    *int
	DayOfMonth   *int
	StartDate    time.Time
	EndDate      *time.Time
}

// RuleService wraps recurrence rule business logic: validation and keeping
// NextRunDate consistent with the rule's schedule fields.
type RuleService struct {
	rules *repository.RuleRepository
	log   zerolog.Logger
}

func NewRuleService(rules *repository.RuleRepository, log zerolog.Logger) *RuleService {
	return &RuleService{rules: rules, log: log}
}

// Create validates the input and seeds NextRunDate from the start date. A
// rule created on its own target weekday still schedules next week's
// occurrence, never same-day.
func (s *RuleService) Create(ctx context.Context, input RuleInput) (*model.RecurrenceRule, error) {
	rule := model.RecurrenceRule{
		PropertyID:   input.PropertyID,
		OwnerID:      input.OwnerID,
		TaskType:     input.TaskType,
		Title:        input.Title,
		Description:  input.Description,
		AssigneeID:   input.AssigneeID,
		CostEstimate: input.CostEstimate,
		Frequency:    input.Frequency,
		Interval:     input.Interval,
		DayOfWeek:    input.DayOfWeek,
		DayOfMonth:   input.DayOfMonth,
		StartDate:    model.DayStart(input.StartDate),
		IsActive:     true,
	}
	if input.EndDate != nil {
		end := model.DayStart(*input.EndDate)
		rule.EndDate = &end
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	rule.NextRunDate = rule.Schedule().NextOccurrence(rule.StartDate)
	if rule.EndDate != nil && rule.NextRunDate.After(*rule.EndDate) {
		// The window closes before the first occurrence; keep the rule on
		// record but never hand it to the engine.
		rule.IsActive = false
		s.log.Warn().Str("title", rule.Title).Msg("rule window ends before first occurrence, created inactive")
	}

	if err := s.rules.Create(ctx, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// Update re-validates changed fields. Any change to the schedule fields
// recomputes NextRunDate from today instead of leaving it stale.
func (s *RuleService) Update(ctx context.Context, id uint, input RuleInput) (*model.RecurrenceRule, error) {
	rule, err := s.rules.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}

	startDate := model.DayStart(input.StartDate)
	scheduleChanged := rule.Frequency != input.Frequency ||
		rule.Interval != input.Interval ||
		!equalIntPtr(rule.DayOfWeek, input.DayOfWeek) ||
		!equalIntPtr(rule.DayOfMonth, input.DayOfMonth) ||
		!rule.StartDate.Equal(startDate)

	rule.PropertyID = input.PropertyID
	rule.OwnerID = input.OwnerID
	rule.TaskType = input.TaskType
	rule.Title = input.Title
	rule.Description = input.Description
	rule.AssigneeID = input.AssigneeID
	rule.CostEstimate = input.CostEstimate
	rule.Frequency = input.Frequency
	rule.Interval = input.Interval
	rule.DayOfWeek = input.DayOfWeek
	rule.DayOfMonth = input.DayOfMonth
	rule.StartDate = startDate
	rule.EndDate = nil
	if input.EndDate != nil {
		end := model.DayStart(*input.EndDate)
		rule.EndDate = &end
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	if scheduleChanged {
		from := model.DayStart(time.Now())
		if from.Before(rule.StartDate) {
			from = rule.StartDate
		}
		rule.NextRunDate = rule.Schedule().NextOccurrence(from)
	}
	if rule.EndDate != nil && rule.NextRunDate.After(*rule.EndDate) {
		rule.IsActive = false
	}

	if err := s.rules.Save(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *RuleService) Get(ctx context.Context, id uint) (*model.RecurrenceRule, error) {
	rule, err := s.rules.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}
	return rule, nil
}

func (s *RuleService) List(ctx context.Context, filter repository.RuleFilter) ([]model.RecurrenceRule, error) {
	return s.rules.List(ctx, filter)
}

// Deactivate stops a rule without touching its generated history.
func (s *RuleService) Deactivate(ctx context.Context, id uint) error {
	return s.setActive(ctx, id, false)
}

// Reactivate re-enters a previously deactivated rule. NextRunDate is kept as
// is: a stale date fires once on the next engine run and advances normally.
func (s *RuleService) Reactivate(ctx context.Context, id uint) error {
	return s.setActive(ctx, id, true)
}

func (s *RuleService) setActive(ctx context.Context, id uint, active bool) error {
	if err := s.rules.SetActive(ctx, id, active); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRuleNotFound
		}
		return err
	}
	return nil
}

// Delete removes a rule completely. Generated instances keep their rule_id
// reference and are not cascaded.
func (s *RuleService) Delete(ctx context.Context, id uint) error {
	return s.rules.Delete(ctx, id)
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
