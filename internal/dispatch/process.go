package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/efyoos/bellhop/internal/classify"
	"github.com/efyoos/bellhop/internal/idempotency"
	"github.com/efyoos/bellhop/internal/models"
	"github.com/efyoos/bellhop/internal/notify"
	"github.com/efyoos/bellhop/internal/store"
)

// assignParams keys the assignment and reassignment notifications. The
// version is part of the key so every new assignment notifies again.
type assignParams struct {
	Phone   string `json:"phone"`
	Room    string `json:"room"`
	Task    string `json:"task"`
	Urgency string `json:"urgency"`
	Version int    `json:"version"`
}

// process runs one claimed task through classification and assignment.
// It never returns an error; failures are turned into a retry, a dead
// letter or a released claim.
func (e *Engine) process(ctx context.Context, t *models.Task, token string) outcome {
	log := e.logger.With("task_id", t.ID, "hotel_id", t.HotelID)
	if err := e.store.LogLifecycle(ctx, t.ID, models.EventProcessing, "system", "Claimed by heartbeat"); err != nil {
		log.Warn("log processing event", "error", err)
	}

	version, err := e.classifyAndAssign(ctx, t)
	if err == nil {
		return outcomeAssigned
	}
	if errors.Is(err, store.ErrConflict) {
		log.Warn("assignment lost a concurrent update", "error", err)
		if rerr := e.store.ReleaseClaim(ctx, t.ID, token); rerr != nil {
			log.Error("release claim", "error", rerr)
		}
		return outcomeConflict
	}
	return e.handleFailure(ctx, t, version, err)
}

// classifyAndAssign returns the task's assignment version as last written
// by this pipeline, so a failure can be retried against it.
func (e *Engine) classifyAndAssign(ctx context.Context, t *models.Task) (int, error) {
	version := t.AssignmentVersion

	category := t.CategoryOrEmpty()
	if category != "" && !classify.Valid(category) {
		e.logger.Warn("ignoring unknown category", "task_id", t.ID, "category", category)
		category = ""
	}
	if category == "" {
		raw, err := idempotency.Execute(ctx, e.enforcer, t.ID, "gemini", "classify",
			map[string]string{"request_text": t.RequestText},
			func(ctx context.Context) (string, error) {
				return e.classifier.Classify(ctx, t.RequestText)
			})
		if err != nil {
			return version, fmt.Errorf("classify: %w", err)
		}
		category = classify.Normalize(raw)
		if err := e.store.UpdateCategory(ctx, t.ID, category); err != nil {
			return version, err
		}
		t.Category = &category
		e.logger.Info("task classified", "task_id", t.ID, "category", category)
	}

	candidate, err := e.pickStaff(ctx, t, category)
	if err != nil {
		if errors.Is(err, store.ErrNoStaff) {
			return version, fmt.Errorf("no available staff for category: %s", category)
		}
		return version, err
	}
	staff, err := e.store.GetStaff(ctx, candidate.ID)
	if err != nil || !staff.IsActive {
		return version, fmt.Errorf("staff %d not found or inactive", candidate.ID)
	}

	version, err = e.store.BumpAssignment(ctx, t.ID, version, staff.ID)
	if err != nil {
		return t.AssignmentVersion, err
	}

	urgency := t.Urgency
	if urgency == "" {
		urgency = "normal"
	}
	if _, err := e.sendTaskTemplate(ctx, t.ID, "send_assignment", assignParams{
		Phone:   staff.ContactAddress,
		Room:    t.RoomNumber,
		Task:    t.RequestText,
		Urgency: urgency,
		Version: version,
	}); err != nil {
		return version, fmt.Errorf("notify staff %d: %w", staff.ID, err)
	}

	notes := fmt.Sprintf("Assigned to %s (v%d)", staff.Name, version)
	if err := e.store.SafeUpdateStatus(ctx, t.ID, models.TaskAssigned, version, "system", notes); err != nil {
		return version, err
	}
	e.logger.Info("task assigned", "task_id", t.ID, "staff_id", staff.ID, "version", version)
	return version, nil
}

// pickStaff passes over whoever last declined the task unless nobody else
// in the category is free.
func (e *Engine) pickStaff(ctx context.Context, t *models.Task, category string) (*models.Staff, error) {
	if t.DeclinedBy != nil {
		staff, err := e.store.NextAvailableStaff(ctx, t.HotelID, category, *t.DeclinedBy)
		if !errors.Is(err, store.ErrNoStaff) {
			return staff, err
		}
	}
	return e.store.NextAvailableStaff(ctx, t.HotelID, category)
}

// sendTaskTemplate sends new_task_alert with accept/decline buttons bound
// to the version, at most once per (task, operation, params).
func (e *Engine) sendTaskTemplate(ctx context.Context, taskID uint, operation string, p assignParams) (*notify.SendResult, error) {
	return idempotency.Execute(ctx, e.enforcer, taskID, "whatsapp", operation, p,
		func(ctx context.Context) (*notify.SendResult, error) {
			return e.gateway.SendTemplate(ctx, p.Phone, notify.Template{
				Name:       "new_task_alert",
				Language:   e.language,
				BodyParams: []string{p.Room, p.Task, p.Urgency},
				ButtonPayloads: []string{
					ActionToken("accept", taskID, p.Version),
					ActionToken("decline", taskID, p.Version),
				},
			})
		})
}

// ActionToken builds the quick-reply payload action_<id>_v<version>.
func ActionToken(action string, taskID uint, version int) string {
	return action + "_" + strconv.FormatUint(uint64(taskID), 10) + "_v" + strconv.Itoa(version)
}
