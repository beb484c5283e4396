package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/efyoos/bellhop/internal/models"
	"gorm.io/gorm"
)

// Action is a staff reply to a task notification.
type Action string

// Staff actions.
const (
	ActionAccept  Action = "accept"
	ActionDecline Action = "decline"
	ActionDone    Action = "done"
	ActionReport  Action = "report"
)

// ValidAction reports whether a names a known staff action.
func ValidAction(a string) bool {
	switch Action(a) {
	case ActionAccept, ActionDecline, ActionDone, ActionReport:
		return true
	}
	return false
}

// Rejection reasons for a staff reply.
const (
	ReasonStaleAssignment        = "stale_assignment"
	ReasonNotAssigned            = "not_assigned"
	ReasonInvalidStatus          = "invalid_status"
	ReasonConcurrentModification = "concurrent_modification"
)

// ResponseResult is the outcome of HandleStaffResponse. When Success is
// false, Reason names the rejection and nothing was written.
type ResponseResult struct {
	Success bool
	Reason  string
	Task    *models.Task
	Staff   *models.Staff
}

// responseRule is the required current status and resulting status of an
// action.
type responseRule struct {
	from, to models.TaskStatus
	event    string
}

var responseRules = map[Action]responseRule{
	ActionAccept:  {models.TaskAssigned, models.TaskInProgress, models.EventAccepted},
	ActionDecline: {models.TaskAssigned, models.TaskPending, models.EventDeclined},
	ActionDone:    {models.TaskInProgress, models.TaskDone, models.EventCompleted},
	ActionReport:  {models.TaskInProgress, models.TaskReported, models.EventReported},
}

// HandleStaffResponse applies a staff member's reply to the version of the
// task it refers to. In one transaction it checks, in order, that the task
// exists at version, that contact is its assigned staff member, that the
// task's status permits action, and that the compare-and-set lands.
func (s *Store) HandleStaffResponse(ctx context.Context, taskID uint, contact string, action Action, version int) (*ResponseResult, error) {
	rule, ok := responseRules[action]
	if !ok {
		return nil, fmt.Errorf("store: unknown staff action %q", action)
	}

	res := &ResponseResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := getTask(tx, taskID)
		if errors.Is(err, ErrTaskNotFound) {
			res.Reason = ReasonNotAssigned
			return nil
		}
		if err != nil {
			return err
		}
		res.Task = t

		if t.AssignmentVersion != version {
			res.Reason = ReasonStaleAssignment
			return nil
		}
		if t.AssignedTo == nil {
			res.Reason = ReasonNotAssigned
			return nil
		}
		staff, err := getStaff(tx, *t.AssignedTo)
		if errors.Is(err, ErrStaffNotFound) {
			res.Reason = ReasonNotAssigned
			return nil
		}
		if err != nil {
			return err
		}
		res.Staff = staff
		if normalizeContact(staff.ContactAddress) != normalizeContact(contact) {
			res.Reason = ReasonNotAssigned
			return nil
		}
		if t.Status != rule.from {
			res.Reason = ReasonInvalidStatus
			return nil
		}

		now := s.now()
		updates := map[string]interface{}{
			"status":     rule.to,
			"updated_at": now,
		}
		if action == ActionDecline {
			updates["assigned_to"] = nil
			updates["declined_by"] = staff.ID
			updates["assigned_at"] = nil
			updates["next_retry_at"] = nil
			updates["assignment_version"] = gorm.Expr("assignment_version + 1")
		}
		result := tx.Model(&models.Task{}).
			Where("id = ? AND status = ? AND assignment_version = ?", t.ID, t.Status, version).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("store: apply %s to task %d: %w", action, t.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			res.Reason = ReasonConcurrentModification
			return nil
		}

		actor := fmt.Sprintf("staff:%d", staff.ID)
		if err := logEvent(tx, t.ID, rule.event, actor, fmt.Sprintf("%s at version %d", action, version)); err != nil {
			return err
		}
		fresh, err := getTask(tx, t.ID)
		if err != nil {
			return err
		}
		res.Task = fresh
		res.Success = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
