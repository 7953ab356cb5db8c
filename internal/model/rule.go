package model

import (
	"errors"
	"fmt"
	"time"
)

// TaskType classifies the work a rule generates.
type TaskType string

const (
	TaskTypeCleaning   TaskType = "cleaning"
	TaskTypeRepair     TaskType = "repair"
	TaskTypeInspection TaskType = "inspection"
	TaskTypeOther      TaskType = "other"
)

var (
	ErrInvalidTaskType = errors.New("model: invalid task type")
	ErrRuleTarget      = errors.New("model: exactly one of property or owner must be set")
	ErrRuleTitle       = errors.New("model: rule title is required")
	ErrRuleStartDate   = errors.New("model: rule start date is required")
	ErrRuleWindow      = errors.New("model: rule end date precedes start date")
)

// RecurrenceRule is a standing instruction to produce tasks on a schedule.
// It targets either a single property or every property under an owner, and
// carries its own schedule state: NextRunDate is the next day it is due, and
// the generation engine advances it exactly once per elapsed occurrence.
type RecurrenceRule struct {
	ID           uint  `gorm:"primaryKey"`
	PropertyID   *uint `gorm:"index"`
	OwnerID      *uint `gorm:"index"`
	TaskType     TaskType
	Title        string
	Description  string
	AssigneeID   *uint `gorm:"index"`
	CostEstimate *float64

	Frequency  Frequency
	Interval   int  `gorm:"default:1"`
	DayOfWeek  *int // 0 = Sunday, weekly rules only
	DayOfMonth *int // monthly, quarterly and yearly rules only
	StartDate  time.Time
	EndDate    *time.Time

	NextRunDate     time.Time `gorm:"index"`
	IsActive        bool      `gorm:"default:true;index"`
	TotalGenerated  int       `gorm:"default:0"`
	LastGeneratedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Schedule extracts the pure recurrence pattern for date math.
func (r *RecurrenceRule) Schedule() Schedule {
	s := Schedule{Frequency: r.Frequency, Interval: r.Interval, DayOfMonth: r.DayOfMonth}
	if r.DayOfWeek != nil {
		wd := time.Weekday(*r.DayOfWeek)
		s.DayOfWeek = &wd
	}
	return s
}

func (r *RecurrenceRule) Validate() error {
	if (r.PropertyID == nil) == (r.OwnerID == nil) {
		return ErrRuleTarget
	}
	switch r.TaskType {
	case TaskTypeCleaning, TaskTypeRepair, TaskTypeInspection, TaskTypeOther:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidTaskType, r.TaskType)
	}
	if r.Title == "" {
		return ErrRuleTitle
	}
	if r.StartDate.IsZero() {
		return ErrRuleStartDate
	}
	if r.EndDate != nil && r.EndDate.Before(r.StartDate) {
		return ErrRuleWindow
	}
	return r.Schedule().Validate()
}
