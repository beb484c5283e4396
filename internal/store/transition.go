package store

import (
	"context"
	"fmt"
	"time"

	"github.com/efyoos/bellhop/internal/models"
	"github.com/efyoos/bellhop/internal/task"
	"gorm.io/gorm"
)

// eventFor maps a target status to the lifecycle event recorded for it.
func eventFor(to models.TaskStatus) string {
	switch to {
	case models.TaskAssigned:
		return models.EventAssigned
	case models.TaskInProgress:
		return models.EventAccepted
	case models.TaskDone:
		return models.EventCompleted
	case models.TaskReported:
		return models.EventReported
	case models.TaskFailed:
		return models.EventFailed
	default:
		return models.EventStatusChanged
	}
}

// SafeUpdateStatus moves a task to status to, provided its current status is
// a valid predecessor and its assignment_version still equals
// expectedVersion. A rejected update returns a *TransitionError wrapping
// ErrConflict and changes nothing.
func (s *Store) SafeUpdateStatus(ctx context.Context, taskID uint, to models.TaskStatus, expectedVersion int, actor, notes string) error {
	preds := task.Predecessors(to)
	if len(preds) == 0 {
		return fmt.Errorf("store: no transition leads to status %q", to)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Task{}).
			Where("id = ? AND assignment_version = ? AND status IN ?", taskID, expectedVersion, statusStrings(preds)).
			Updates(map[string]interface{}{
				"status":      to,
				"claim_token": nil,
				"claimed_at":  nil,
				"updated_at":  s.now(),
			})
		if result.Error != nil {
			return fmt.Errorf("store: update status of task %d: %w", taskID, result.Error)
		}
		if result.RowsAffected == 0 {
			return conflict(tx, taskID, to, expectedVersion)
		}
		if notes == "" {
			notes = fmt.Sprintf("status -> %s at version %d", to, expectedVersion)
		}
		return logEvent(tx, taskID, eventFor(to), actor, notes)
	})
}

// UpdateCategory stores the classification result. It touches neither the
// status nor the assignment version.
func (s *Store) UpdateCategory(ctx context.Context, taskID uint, category string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Task{}).Where("id = ?", taskID).Updates(map[string]interface{}{
			"category":   category,
			"updated_at": s.now(),
		})
		if result.Error != nil {
			return fmt.Errorf("store: update category of task %d: %w", taskID, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %d", ErrTaskNotFound, taskID)
		}
		return logEvent(tx, taskID, models.EventClassified, "system", "category: "+category)
	})
}

// BumpAssignment points a pending task at staffID and increments its
// assignment version, returning the new version. The status stays pending
// until the caller confirms delivery with SafeUpdateStatus.
func (s *Store) BumpAssignment(ctx context.Context, taskID uint, observedVersion int, staffID uint) (int, error) {
	now := s.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Task{}).
			Where("id = ? AND status = ? AND assignment_version = ?", taskID, models.TaskPending, observedVersion).
			Updates(map[string]interface{}{
				"assignment_version": gorm.Expr("assignment_version + 1"),
				"assigned_to":        staffID,
				"assigned_at":        now,
				"updated_at":         now,
			})
		if result.Error != nil {
			return fmt.Errorf("store: bump assignment of task %d: %w", taskID, result.Error)
		}
		if result.RowsAffected == 0 {
			return conflict(tx, taskID, models.TaskAssigned, observedVersion)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return observedVersion + 1, nil
}

// ScheduleRetry returns a failed attempt to the queue: retry_count is set,
// next_retry_at pushed out, the tentative assignee and the claim cleared.
// It only applies while the task is pending at expectedVersion.
func (s *Store) ScheduleRetry(ctx context.Context, taskID uint, expectedVersion, retryCount int, nextRetryAt time.Time, lastErr string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Task{}).
			Where("id = ? AND status = ? AND assignment_version = ?", taskID, models.TaskPending, expectedVersion).
			Updates(map[string]interface{}{
				"retry_count":   retryCount,
				"next_retry_at": nextRetryAt,
				"last_error":    lastErr,
				"assigned_to":   nil,
				"assigned_at":   nil,
				"claim_token":   nil,
				"claimed_at":    nil,
				"updated_at":    s.now(),
			})
		if result.Error != nil {
			return fmt.Errorf("store: schedule retry of task %d: %w", taskID, result.Error)
		}
		if result.RowsAffected == 0 {
			return conflict(tx, taskID, models.TaskPending, expectedVersion)
		}
		notes := fmt.Sprintf("attempt %d failed, next at %s: %s", retryCount, nextRetryAt.Format(time.RFC3339), lastErr)
		return logEvent(tx, taskID, models.EventRetryScheduled, "system", notes)
	})
}

// MoveToFailedJobs dead-letters a pending task: it records a FailedJob row,
// marks the task failed with its final retry count and releases its claim
// in one transaction.
func (s *Store) MoveToFailedJobs(ctx context.Context, taskID uint, retryCount int, reason string) (*models.FailedJob, error) {
	var job models.FailedJob
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := getTask(tx, taskID)
		if err != nil {
			return err
		}
		if !task.CanTransition(t.Status, models.TaskFailed) {
			return &TransitionError{TaskID: taskID, From: t.Status, To: models.TaskFailed,
				ExpectedVersion: t.AssignmentVersion, CurrentVersion: t.AssignmentVersion}
		}

		now := s.now()
		result := tx.Model(&models.Task{}).
			Where("id = ? AND status = ? AND assignment_version = ?", taskID, t.Status, t.AssignmentVersion).
			Updates(map[string]interface{}{
				"status":      models.TaskFailed,
				"retry_count": retryCount,
				"last_error":  reason,
				"claim_token": nil,
				"claimed_at":  nil,
				"updated_at":  now,
			})
		if result.Error != nil {
			return fmt.Errorf("store: fail task %d: %w", taskID, result.Error)
		}
		if result.RowsAffected == 0 {
			return conflict(tx, taskID, models.TaskFailed, t.AssignmentVersion)
		}

		job = models.FailedJob{
			TaskID:      taskID,
			HotelID:     t.HotelID,
			Reason:      reason,
			RetryCount:  retryCount,
			RequestText: t.RequestText,
			FailedAt:    now,
		}
		if err := tx.Create(&job).Error; err != nil {
			return fmt.Errorf("store: insert failed job for task %d: %w", taskID, err)
		}
		return logEvent(tx, taskID, models.EventFailed, "system", reason)
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// FailedJobs lists dead-lettered tasks, newest first.
func (s *Store) FailedJobs(ctx context.Context, limit int) ([]models.FailedJob, error) {
	q := s.db.WithContext(ctx).Order("failed_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var jobs []models.FailedJob
	if err := q.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("store: list failed jobs: %w", err)
	}
	return jobs, nil
}
