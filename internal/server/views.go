package server

import (
	"time"

	"github.com/efyoos/bellhop/internal/models"
)

type taskView struct {
	ID                uint       `json:"request_id"`
	HotelID           string     `json:"hotel_id"`
	RoomNumber        string     `json:"room_number"`
	RequestText       string     `json:"request_text"`
	Category          string     `json:"category,omitempty"`
	Urgency           string     `json:"urgency"`
	Priority          int        `json:"priority"`
	Status            string     `json:"status"`
	AssignedTo        *uint      `json:"assigned_to,omitempty"`
	AssignmentVersion int        `json:"assignment_version"`
	RetryCount        int        `json:"retry_count"`
	ShortCode         string     `json:"short_code"`
	AssignedAt        *time.Time `json:"assigned_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func newTaskView(t *models.Task) taskView {
	return taskView{
		ID:                t.ID,
		HotelID:           t.HotelID,
		RoomNumber:        t.RoomNumber,
		RequestText:       t.RequestText,
		Category:          t.CategoryOrEmpty(),
		Urgency:           t.Urgency,
		Priority:          t.Priority,
		Status:            string(t.Status),
		AssignedTo:        t.AssignedTo,
		AssignmentVersion: t.AssignmentVersion,
		RetryCount:        t.RetryCount,
		ShortCode:         t.ShortCode,
		AssignedAt:        t.AssignedAt,
		CreatedAt:         t.CreatedAt,
	}
}

type alertView struct {
	ID             uint       `json:"id"`
	AlertType      string     `json:"alert_type"`
	Severity       string     `json:"severity"`
	Status         string     `json:"status"`
	HotelID        *string    `json:"hotel_id,omitempty"`
	TaskID         *uint      `json:"request_id,omitempty"`
	Message        string     `json:"message"`
	Metadata       string     `json:"metadata"`
	EscalatedAt    *time.Time `json:"escalated_at,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func newAlertView(a *models.OperationalAlert) alertView {
	return alertView{
		ID:             a.ID,
		AlertType:      a.AlertType,
		Severity:       a.Severity,
		Status:         a.Status,
		HotelID:        a.HotelID,
		TaskID:         a.TaskID,
		Message:        a.Message,
		Metadata:       a.Metadata,
		EscalatedAt:    a.EscalatedAt,
		AcknowledgedAt: a.AcknowledgedAt,
		ResolvedAt:     a.ResolvedAt,
		CreatedAt:      a.CreatedAt,
	}
}
