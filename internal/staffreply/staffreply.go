// Package staffreply applies staff button presses to tasks and answers the
// staff member over WhatsApp.
package staffreply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/efyoos/bellhop/internal/alert"
	"github.com/efyoos/bellhop/internal/idempotency"
	"github.com/efyoos/bellhop/internal/models"
	"github.com/efyoos/bellhop/internal/notify"
	"github.com/efyoos/bellhop/internal/store"
)

// Staff-facing replies.
const (
	TextStale        = "⚠️ This task was reassigned after timeout.\nYou can ignore this message."
	TextInvalidFmt   = "⚠️ Cannot perform this action.\nTask is already: %s"
	TextConcurrent   = "⚠️ Task is being updated. Please try again."
	TextNotAssigned  = "⚠️ You are not assigned to this task."
	TextDoneFmt      = "✅ Task completed!\n\nThank you %s.\nRoom %s - done."
	TextReportFmt    = "⚠️ Issue reported for Room %s.\nYour manager has been notified."
	TextDeclined     = "Understood. We will find another staff member. Thank you for responding."
	TextFollowUpFmt  = "📋 Room %s\nTask: %s\n\nPlease update status:"
	followupTemplate = "task_followup"
)

// AlertRaiser raises operational alerts.
type AlertRaiser interface {
	Raise(ctx context.Context, spec alert.Spec) (*models.OperationalAlert, error)
}

// Opts holds the collaborators of a Handler.
type Opts struct {
	Store    *store.Store
	Enforcer *idempotency.Enforcer
	Gateway  notify.Gateway
	Alerts   AlertRaiser
	Language string
	Logger   *slog.Logger
}

// Handler processes staff replies.
type Handler struct {
	store    *store.Store
	enforcer *idempotency.Enforcer
	gateway  notify.Gateway
	alerts   AlertRaiser
	language string
	logger   *slog.Logger
}

// New creates a Handler.
func New(opts Opts) (*Handler, error) {
	switch {
	case opts.Store == nil:
		return nil, fmt.Errorf("staffreply: store is required")
	case opts.Enforcer == nil:
		return nil, fmt.Errorf("staffreply: enforcer is required")
	case opts.Gateway == nil:
		return nil, fmt.Errorf("staffreply: gateway is required")
	case opts.Alerts == nil:
		return nil, fmt.Errorf("staffreply: alert raiser is required")
	}
	h := &Handler{
		store:    opts.Store,
		enforcer: opts.Enforcer,
		gateway:  opts.Gateway,
		alerts:   opts.Alerts,
		language: opts.Language,
		logger:   opts.Logger,
	}
	if h.language == "" {
		h.language = "ar"
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h, nil
}

// Outcome reports what happened to one reply.
type Outcome struct {
	// Ignored is set for payloads that are not action tokens.
	Ignored bool
	Token   Token
	Success bool
	// Reason is the rejection reason when Success is false.
	Reason string
}

// Handle applies one reply. Only a store failure is returned as an error;
// malformed tokens are ignored and rejections are answered to the sender.
func (h *Handler) Handle(ctx context.Context, r notify.Reply) (*Outcome, error) {
	tok, err := ParseToken(r.Token)
	if err != nil {
		h.logger.Warn("ignoring malformed action token", "token", r.Token, "from", r.From, "error", err)
		return &Outcome{Ignored: true}, nil
	}
	log := h.logger.With("task_id", tok.TaskID, "action", string(tok.Action), "from", r.From)

	res, err := h.store.HandleStaffResponse(ctx, tok.TaskID, r.From, tok.Action, tok.Version)
	if err != nil {
		return nil, fmt.Errorf("staffreply: %s: %w", tok, err)
	}
	out := &Outcome{Token: tok, Success: res.Success, Reason: res.Reason}

	if !res.Success {
		log.Info("staff reply rejected", "reason", res.Reason, "version", tok.Version)
		h.sendText(ctx, r.From, rejectionText(res))
		return out, nil
	}

	t := res.Task
	switch tok.Action {
	case store.ActionAccept:
		h.sendFollowUp(ctx, r.From, t)
		log.Info("task accepted", "version", t.AssignmentVersion)
	case store.ActionDone:
		h.sendText(ctx, r.From, fmt.Sprintf(TextDoneFmt, res.Staff.Name, t.RoomNumber))
		log.Info("task completed")
	case store.ActionReport:
		h.sendText(ctx, r.From, fmt.Sprintf(TextReportFmt, t.RoomNumber))
		taskID := t.ID
		if _, err := h.alerts.Raise(ctx, alert.Spec{
			Type:     alert.TypeStaffReportedIssue,
			Severity: models.SeverityWarning,
			HotelID:  t.HotelID,
			TaskID:   &taskID,
			Message:  fmt.Sprintf("Staff %s reported issue: %s", res.Staff.Name, t.RequestText),
		}); err != nil {
			log.Error("raise reported issue alert", "error", err)
		}
		log.Warn("issue reported")
	case store.ActionDecline:
		h.sendText(ctx, r.From, TextDeclined)
		log.Info("task declined")
	}
	return out, nil
}

func rejectionText(res *store.ResponseResult) string {
	switch res.Reason {
	case store.ReasonStaleAssignment:
		return TextStale
	case store.ReasonInvalidStatus:
		status := "completed"
		if res.Task != nil {
			status = string(res.Task.Status)
		}
		return fmt.Sprintf(TextInvalidFmt, status)
	case store.ReasonConcurrentModification:
		return TextConcurrent
	default:
		return TextNotAssigned
	}
}

type followUpParams struct {
	To      string `json:"to"`
	Version int    `json:"version"`
}

// sendFollowUp offers done/report buttons for the accepted version. The
// template send is idempotent; the interactive fallback is not.
func (h *Handler) sendFollowUp(ctx context.Context, to string, t *models.Task) {
	done := Token{Action: store.ActionDone, TaskID: t.ID, Version: t.AssignmentVersion}.String()
	report := Token{Action: store.ActionReport, TaskID: t.ID, Version: t.AssignmentVersion}.String()

	_, err := idempotency.Execute(ctx, h.enforcer, t.ID, "whatsapp", "send_followup",
		followUpParams{To: to, Version: t.AssignmentVersion},
		func(ctx context.Context) (*notify.SendResult, error) {
			return h.gateway.SendTemplate(ctx, to, notify.Template{
				Name:           followupTemplate,
				Language:       h.language,
				HeaderParams:   []string{t.RoomNumber},
				BodyParams:     []string{t.RequestText},
				ButtonPayloads: []string{done, report},
			})
		})
	if err == nil {
		return
	}
	if errors.Is(err, idempotency.ErrInFlightOrFailed) {
		h.logger.Info("follow-up already attempted", "task_id", t.ID, "version", t.AssignmentVersion)
	} else {
		h.logger.Warn("follow-up template failed, sending buttons", "task_id", t.ID, "error", err)
	}

	body := fmt.Sprintf(TextFollowUpFmt, t.RoomNumber, t.RequestText)
	if _, err := h.gateway.SendButtons(ctx, to, body, []notify.Button{
		{ID: done, Title: "✓ Done"},
		{ID: report, Title: "⚠️ Issue"},
	}); err != nil {
		h.logger.Error("send follow-up buttons", "task_id", t.ID, "error", err)
	}
}

func (h *Handler) sendText(ctx context.Context, to, body string) {
	if _, err := h.gateway.SendText(ctx, to, body); err != nil {
		h.logger.Error("send staff reply", "to", to, "error", err)
	}
}
