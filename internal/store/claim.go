package store

import (
	"context"
	"fmt"
	"time"

	"github.com/efyoos/bellhop/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ClaimPendingJobs stamps up to batchSize dispatchable tasks with token and
// returns them, highest priority first. A task is dispatchable when it is
// pending, its retry time has passed and no other claim younger than lease
// holds it. Rows are selected with FOR UPDATE SKIP LOCKED so overlapping
// heartbeats never receive the same task.
func (s *Store) ClaimPendingJobs(ctx context.Context, batchSize int, token string, lease time.Duration) ([]models.Task, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("store: batch size must be positive")
	}
	if token == "" {
		return nil, fmt.Errorf("store: claim token is required")
	}

	now := s.now()
	var claimed []models.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint
		result := tx.Model(&models.Task{}).
			Where("status = ?", models.TaskPending).
			Where("next_retry_at IS NULL OR next_retry_at <= ?", now).
			Where("claimed_at IS NULL OR claimed_at < ?", now.Add(-lease)).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Order("priority DESC, created_at ASC, id ASC").
			Limit(batchSize).
			Pluck("id", &ids)
		if result.Error != nil {
			return fmt.Errorf("store: select pending tasks: %w", result.Error)
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Model(&models.Task{}).Where("id IN ?", ids).Updates(map[string]interface{}{
			"claim_token": token,
			"claimed_at":  now,
		}).Error; err != nil {
			return fmt.Errorf("store: stamp claim %s: %w", token, err)
		}

		if err := tx.Where("claim_token = ?", token).
			Order("priority DESC, created_at ASC, id ASC").
			Find(&claimed).Error; err != nil {
			return fmt.Errorf("store: read claimed tasks: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// ReleaseClaim drops the claim on a task if token still holds it.
func (s *Store) ReleaseClaim(ctx context.Context, taskID uint, token string) error {
	err := s.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ? AND claim_token = ?", taskID, token).
		Updates(map[string]interface{}{"claim_token": nil, "claimed_at": nil}).Error
	if err != nil {
		return fmt.Errorf("store: release claim on task %d: %w", taskID, err)
	}
	return nil
}
