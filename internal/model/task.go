package model

import "time"

// TaskStatus tracks a task instance through the back office workflow.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// TaskInstance is a concrete, dated unit of work at one property. RuleID
// points at the recurrence rule that produced it; manually created tasks
// leave it nil.
type TaskInstance struct {
	ID           uint  `gorm:"primaryKey"`
	RuleID       *uint `gorm:"index"`
	PropertyID   uint  `gorm:"index"`
	TaskType     TaskType
	Title        string
	Description  string
	AssigneeID   *uint
	CostEstimate *float64
	DueDate      time.Time  `gorm:"index"`
	Status       TaskStatus `gorm:"default:pending;index"`
	CompletedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
