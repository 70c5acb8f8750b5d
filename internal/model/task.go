package model

import "time"

// Task statuses shown as kanban columns. Restaurants may add their own, the
// scheduler only cares about the ones below.
const (
	StatusPlanned    = "planned"
	StatusAssigned   = "assigned"
	StatusInProgress = "in_progress"
	StatusWaiting    = "waiting"
	StatusCompleted  = "completed"
	StatusVerified   = "verified"
)

// Recurrence cadences.
const (
	RecurrenceOnce    = "once"
	RecurrenceDaily   = "daily"
	RecurrenceWeekly  = "weekly"
	RecurrenceMonthly = "monthly"
)

// FinishedStatuses lists the statuses that close a task.
var FinishedStatuses = []string{StatusCompleted, StatusVerified}

// Task represents a single item on a restaurant board.
type Task struct {
	ID            uint `gorm:"primaryKey"`
	RestaurantID  uint `gorm:"index"`
	CreatedBy     uint
	Title         string
	Description   string
	Priority      string     `gorm:"default:medium"`
	Status        string     `gorm:"index;default:planned"`
	DueDate       *time.Time `gorm:"index"`
	Recurrence    string     `gorm:"index;default:once"`
	EstimatedTime *int       // minutes
	CompletedAt   *time.Time
	VerifiedAt    *time.Time
	VerifiedBy    *uint
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsFinished reports whether status closes a task.
func IsFinished(status string) bool {
	return status == StatusCompleted || status == StatusVerified
}

// IsOpen reports whether the task still needs work.
func (t Task) IsOpen() bool {
	return !IsFinished(t.Status)
}
