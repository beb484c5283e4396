package models

import "time"

// Lifecycle event types.
const (
	EventCreated        = "CREATED"
	EventProcessing     = "PROCESSING"
	EventClassified     = "CLASSIFIED"
	EventAssigned       = "ASSIGNED"
	EventAccepted       = "ACCEPTED"
	EventDeclined       = "DECLINED"
	EventTimedOut       = "TIMED_OUT"
	EventReassigned     = "REASSIGNED"
	EventRetryScheduled = "RETRY_SCHEDULED"
	EventCompleted      = "COMPLETED"
	EventReported       = "REPORTED"
	EventFailed         = "FAILED"
	EventStatusChanged  = "STATUS_CHANGED"
)

// LifecycleEvent is one append-only audit row for a task.
type LifecycleEvent struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	TaskID    uint   `gorm:"not null;index"`
	EventType string `gorm:"size:32;not null"`
	Actor     string `gorm:"size:64"`
	Notes     string `gorm:"type:text"`
	CreatedAt time.Time
}

// TableName implements the GORM tabler interface.
func (LifecycleEvent) TableName() string { return "task_lifecycle_events" }

// FailedJob is the dead-letter row for a task that exhausted its retries.
type FailedJob struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	TaskID      uint   `gorm:"not null;uniqueIndex"`
	HotelID     string `gorm:"size:64;index"`
	Reason      string `gorm:"type:text"`
	RetryCount  int
	RequestText string `gorm:"type:text"`
	FailedAt    time.Time
}
