package store

import (
	"context"
	"fmt"
	"time"

	"github.com/efyoos/bellhop/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Timeout outcomes.
const (
	ActionReassigned = "reassigned"
	ActionRequeued   = "requeued"
	ActionSkipped    = "skipped"
)

// TimeoutResult is the outcome of HandleTimeoutAndReassign.
type TimeoutResult struct {
	Action   string
	Task     *models.Task
	NewStaff *models.Staff
}

// StaleAssignments lists assigned or in-progress tasks whose assignment is
// older than cutoff, oldest first.
func (s *Store) StaleAssignments(ctx context.Context, cutoff time.Time) ([]models.Task, error) {
	var tasks []models.Task
	err := s.db.WithContext(ctx).
		Where("status IN ? AND assigned_at IS NOT NULL AND assigned_at < ?", activeStatuses, cutoff).
		Order("assigned_at ASC, id ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("store: stale assignments: %w", err)
	}
	return tasks, nil
}

// HandleTimeoutAndReassign takes a stale task away from timedOutStaff. In
// one transaction it re-checks that the task is still held by that staff
// member and older than cutoff, then either hands it to the least-loaded
// other staff member with the same role or, when nobody else is free,
// returns it to pending. Both paths bump the assignment version so any late
// reply from the previous holder is stale.
func (s *Store) HandleTimeoutAndReassign(ctx context.Context, taskID, timedOutStaff uint, cutoff time.Time) (*TimeoutResult, error) {
	res := &TimeoutResult{Action: ActionSkipped}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t models.Task
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", taskID).First(&t).Error; err != nil {
			return fmt.Errorf("store: load task %d for timeout: %w", taskID, err)
		}
		res.Task = &t
		if t.AssignedTo == nil || *t.AssignedTo != timedOutStaff ||
			(t.Status != models.TaskAssigned && t.Status != models.TaskInProgress) ||
			t.AssignedAt == nil || !t.AssignedAt.Before(cutoff) {
			return nil
		}

		now := s.now()
		updates := map[string]interface{}{
			"assignment_version": gorm.Expr("assignment_version + 1"),
			"updated_at":         now,
		}
		next, err := nextAvailableStaff(tx, t.HotelID, t.CategoryOrEmpty(), timedOutStaff)
		switch {
		case err == nil:
			updates["status"] = models.TaskAssigned
			updates["assigned_to"] = next.ID
			updates["assigned_at"] = now
		case isNoStaff(err):
			updates["status"] = models.TaskPending
			updates["assigned_to"] = nil
			updates["assigned_at"] = nil
			updates["next_retry_at"] = nil
		default:
			return err
		}

		result := tx.Model(&models.Task{}).
			Where("id = ? AND status = ? AND assignment_version = ?", t.ID, t.Status, t.AssignmentVersion).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("store: reassign task %d: %w", t.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}

		if err := logEvent(tx, t.ID, models.EventTimedOut, "watchdog",
			fmt.Sprintf("staff %d did not respond to version %d", timedOutStaff, t.AssignmentVersion)); err != nil {
			return err
		}
		if next != nil {
			res.Action = ActionReassigned
			res.NewStaff = next
			if err := logEvent(tx, t.ID, models.EventReassigned, "watchdog",
				fmt.Sprintf("staff %d -> %d", timedOutStaff, next.ID)); err != nil {
				return err
			}
		} else {
			res.Action = ActionRequeued
			if err := logEvent(tx, t.ID, models.EventStatusChanged, "watchdog", "requeued: no other staff available"); err != nil {
				return err
			}
		}

		fresh, err := getTask(tx, t.ID)
		if err != nil {
			return err
		}
		res.Task = fresh
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
