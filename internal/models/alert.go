package models

import "time"

// Alert severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert statuses.
const (
	AlertActive       = "active"
	AlertAcknowledged = "acknowledged"
	AlertResolved     = "resolved"
)

// OperationalAlert is raised by failure paths and closed by a human.
type OperationalAlert struct {
	ID             uint    `gorm:"primaryKey;autoIncrement"`
	AlertType      string  `gorm:"size:32;not null;index"`
	Severity       string  `gorm:"size:16;not null"`
	Status         string  `gorm:"size:16;default:active;index"`
	HotelID        *string `gorm:"size:64;index"`
	TaskID         *uint   `gorm:"index"`
	Message        string  `gorm:"type:text"`
	Metadata       string  `gorm:"type:text"`
	EscalatedAt    *time.Time
	AcknowledgedAt *time.Time
	ResolvedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// APICallLog records the outcome of an outbound delivery attempt.
type APICallLog struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	APIName         string `gorm:"column:api_name;size:32;index"`
	Endpoint        string `gorm:"size:64"`
	Method          string `gorm:"size:8"`
	RequestPayload  string `gorm:"type:text"`
	ResponsePayload string `gorm:"type:text"`
	Succeeded       bool
	CreatedAt       time.Time
}

// TableName implements the GORM tabler interface.
func (APICallLog) TableName() string { return "api_call_logs" }
