// Package alert raises operational alerts and fans them out to hotel admins
// over every configured channel.
package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/efyoos/bellhop/internal/models"
	"github.com/efyoos/bellhop/internal/store"
)

// Alert types.
const (
	TypeFailedJob          = "failed_job"
	TypeTimeoutSurge       = "timeout_surge"
	TypeStaffReportedIssue = "staff_reported_issue"
)

// Sidebar colors by severity.
const (
	ColorInfo     = "#2196f3"
	ColorWarning  = "#ff9800"
	ColorCritical = "#e53935"
)

func severityColor(severity string) string {
	switch severity {
	case models.SeverityCritical:
		return ColorCritical
	case models.SeverityWarning:
		return ColorWarning
	default:
		return ColorInfo
	}
}

// Field is a key-value pair shown alongside an alert.
type Field struct {
	Name  string
	Value string
	Short bool
}

// Notice is an alert formatted for delivery.
type Notice struct {
	AlertID    uint
	Type       string
	Severity   string
	Message    string
	Escalation bool
	// Admin is the hotel's primary admin, nil when none is on file.
	Admin  *models.HotelAdmin
	Title  string
	Color  string
	Fields []Field
}

// Prefix is the headline marker for the notice.
func (n Notice) Prefix() string {
	if n.Escalation {
		return "🚨 ESCALATED"
	}
	return "⚠️ ALERT"
}

// Channel delivers notices to one destination. Deliver returns the
// provider's message id, or a *Skipped error when the channel cannot be
// used for this notice.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, n Notice) (string, error)
}

// Skipped reports a channel that was not attempted.
type Skipped struct {
	Reason string
}

func (s *Skipped) Error() string { return "skipped: " + s.Reason }

// Store is the persistence the Raiser needs.
type Store interface {
	CreateAlert(ctx context.Context, a *models.OperationalAlert) error
	PrimaryAdmin(ctx context.Context, hotelID string) (*models.HotelAdmin, error)
	LogAPICall(ctx context.Context, entry *models.APICallLog) error
	AlertsToEscalate(ctx context.Context, olderThan time.Time) ([]models.OperationalAlert, error)
	MarkEscalated(ctx context.Context, id uint) (bool, error)
}

// Spec describes an alert to raise.
type Spec struct {
	Type     string
	Severity string
	HotelID  string
	TaskID   *uint
	Message  string
	Metadata map[string]interface{}
}

// Result is the outcome of one channel delivery.
type Result struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Raiser persists alerts and delivers them.
type Raiser struct {
	store    Store
	channels []Channel
	logger   *slog.Logger
	now      func() time.Time
}

// NewRaiser creates a Raiser. A nil logger uses slog.Default().
func NewRaiser(s Store, channels []Channel, logger *slog.Logger) *Raiser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Raiser{store: s, channels: channels, logger: logger, now: time.Now}
}

// Raise stores a new active alert and delivers it. Delivery problems are
// logged and recorded in api_call_logs; only the insert can fail Raise.
func (r *Raiser) Raise(ctx context.Context, spec Spec) (*models.OperationalAlert, error) {
	a := &models.OperationalAlert{
		AlertType: spec.Type,
		Severity:  spec.Severity,
		Status:    models.AlertActive,
		TaskID:    spec.TaskID,
		Message:   spec.Message,
		Metadata:  "{}",
	}
	if spec.HotelID != "" {
		a.HotelID = &spec.HotelID
	}
	if len(spec.Metadata) > 0 {
		meta, err := json.Marshal(spec.Metadata)
		if err != nil {
			return nil, fmt.Errorf("alert: marshal metadata: %w", err)
		}
		a.Metadata = string(meta)
	}
	if err := r.store.CreateAlert(ctx, a); err != nil {
		return nil, err
	}
	r.logger.Warn("alert raised", "alert_id", a.ID, "type", a.AlertType, "severity", a.Severity, "hotel_id", spec.HotelID)

	r.Deliver(ctx, a, false)
	return a, nil
}

// Deliver sends an alert over every channel and records the outcome.
func (r *Raiser) Deliver(ctx context.Context, a *models.OperationalAlert, escalation bool) map[string]Result {
	n := Notice{
		AlertID:    a.ID,
		Type:       a.AlertType,
		Severity:   a.Severity,
		Message:    a.Message,
		Escalation: escalation,
		Color:      severityColor(a.Severity),
	}
	n.Title = fmt.Sprintf("%s Alert #%d [%s]", n.Prefix(), a.ID, strings.ToUpper(a.Severity))
	n.Fields = append(n.Fields, Field{Name: "Type", Value: a.AlertType, Short: true})
	if a.HotelID != nil {
		n.Fields = append(n.Fields, Field{Name: "Hotel", Value: *a.HotelID, Short: true})
		admin, err := r.store.PrimaryAdmin(ctx, *a.HotelID)
		switch {
		case err == nil:
			n.Admin = admin
		case errors.Is(err, store.ErrNoAdmin):
			r.logger.Warn("no admin on file for alert", "alert_id", a.ID, "hotel_id", *a.HotelID)
		default:
			r.logger.Error("load hotel admin", "alert_id", a.ID, "error", err)
		}
	}
	if a.TaskID != nil {
		n.Fields = append(n.Fields, Field{Name: "Task", Value: fmt.Sprintf("%d", *a.TaskID), Short: true})
	}

	results := make(map[string]Result, len(r.channels))
	anyOK := false
	for _, ch := range r.channels {
		id, err := ch.Deliver(ctx, n)
		var skipped *Skipped
		switch {
		case err == nil:
			results[ch.Name()] = Result{Success: true, MessageID: id}
			anyOK = true
		case errors.As(err, &skipped):
			results[ch.Name()] = Result{Reason: skipped.Reason}
			r.logger.Info("alert channel skipped", "alert_id", a.ID, "channel", ch.Name(), "reason", skipped.Reason)
		default:
			results[ch.Name()] = Result{Error: err.Error()}
			r.logger.Error("alert delivery failed", "alert_id", a.ID, "channel", ch.Name(), "error", err)
		}
	}

	reqPayload, _ := json.Marshal(map[string]interface{}{
		"alert_id":      a.ID,
		"severity":      a.Severity,
		"is_escalation": escalation,
	})
	respPayload, _ := json.Marshal(results)
	if err := r.store.LogAPICall(ctx, &models.APICallLog{
		APIName:         "admin_notification",
		Endpoint:        "send_alert",
		Method:          "POST",
		RequestPayload:  string(reqPayload),
		ResponsePayload: string(respPayload),
		Succeeded:       anyOK,
	}); err != nil {
		r.logger.Error("log alert delivery", "alert_id", a.ID, "error", err)
	}
	return results
}

// Escalate re-delivers every active alert older than after that has not
// been escalated yet, marking each one first so overlapping sweeps never
// escalate twice. It returns the number escalated.
func (r *Raiser) Escalate(ctx context.Context, after time.Duration) (int, error) {
	due, err := r.store.AlertsToEscalate(ctx, r.now().Add(-after))
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range due {
		a := &due[i]
		won, err := r.store.MarkEscalated(ctx, a.ID)
		if err != nil {
			r.logger.Error("mark alert escalated", "alert_id", a.ID, "error", err)
			continue
		}
		if !won {
			continue
		}
		r.Deliver(ctx, a, true)
		n++
	}
	if n > 0 {
		r.logger.Warn("alerts escalated", "count", n)
	}
	return n, nil
}

// Truncate shortens s to at most max runes.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
