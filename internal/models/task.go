package models

import "time"

// TaskStatus is the lifecycle state of a guest service task.
type TaskStatus string

// Task lifecycle states.
const (
	TaskPending    TaskStatus = "pending"
	TaskAssigned   TaskStatus = "assigned"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
	TaskReported   TaskStatus = "reported"
	TaskFailed     TaskStatus = "failed"
)

// Task is one guest service request tracked through its lifecycle.
type Task struct {
	ID                uint       `gorm:"primaryKey;autoIncrement"`
	HotelID           string     `gorm:"size:64;not null;index"`
	RoomNumber        string     `gorm:"size:16;not null"`
	RequestText       string     `gorm:"type:text;not null"`
	GuestName         *string    `gorm:"size:128"`
	Language          string     `gorm:"size:8;default:en"`
	Category          *string    `gorm:"size:32"`
	Urgency           string     `gorm:"size:8;default:normal"`
	Priority          int        `gorm:"default:5;index"`
	Status            TaskStatus `gorm:"size:16;default:pending;index"`
	AssignedTo        *uint      `gorm:"index"`
	DeclinedBy        *uint
	AssignmentVersion int        `gorm:"not null;default:0"`
	RetryCount        int        `gorm:"not null;default:0"`
	MaxRetries        int        `gorm:"not null;default:3"`
	NextRetryAt       *time.Time `gorm:"index"`
	LastError         string     `gorm:"type:text"`
	ClaimToken        *string    `gorm:"size:36;index"`
	ClaimedAt         *time.Time
	ShortCode         string `gorm:"size:6;not null;uniqueIndex"`
	AssignedAt        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CategoryOrEmpty returns the task category, or "" while unclassified.
func (t *Task) CategoryOrEmpty() string {
	if t.Category == nil {
		return ""
	}
	return *t.Category
}

// Terminal reports whether the task has left the dispatch loop for good.
func (s TaskStatus) Terminal() bool {
	return s == TaskDone || s == TaskReported || s == TaskFailed
}
