package models

import "time"

// IdempotencyRecord remembers the outcome of one side-effecting call.
type IdempotencyRecord struct {
	Key             string  `gorm:"column:idempotency_key;primaryKey;size:64"`
	RequestID       uint    `gorm:"index"`
	APIName         string  `gorm:"column:api_name;size:32"`
	OperationType   string  `gorm:"size:64"`
	RequestParams   string  `gorm:"type:text"`
	Succeeded       bool    `gorm:"default:false"`
	ResponsePayload string  `gorm:"type:text"`
	ExternalID      *string `gorm:"size:128"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName keeps the table name used by the original deployment.
func (IdempotencyRecord) TableName() string { return "api_idempotency_keys" }
