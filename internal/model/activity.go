package model

import "time"

// TaskChecklist is a single checklist line of a task.
type TaskChecklist struct {
	ID        uint `gorm:"primaryKey"`
	TaskID    uint `gorm:"index"`
	Item      string
	Done      bool `gorm:"default:false"`
	CreatedAt time.Time
}

// Comment is a note left on a task.
type Comment struct {
	ID        uint `gorm:"primaryKey"`
	TaskID    uint `gorm:"index"`
	UserID    uint
	Content   string
	CreatedAt time.Time
}

// Photo is an uploaded picture attached to a task.
type Photo struct {
	ID         uint `gorm:"primaryKey"`
	TaskID     uint `gorm:"index"`
	UserID     uint
	URL        string
	UploadedAt time.Time `gorm:"autoCreateTime"`
}

// TaskStatusHistory records every status change of a task.
type TaskStatusHistory struct {
	ID        uint `gorm:"primaryKey"`
	TaskID    uint `gorm:"index"`
	OldStatus string
	NewStatus string
	ChangedBy uint
	ChangedAt time.Time `gorm:"autoCreateTime"`
}

func (TaskStatusHistory) TableName() string { return "task_status_history" }
