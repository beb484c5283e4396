package dispatch

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/efyoos/bellhop/internal/alert"
	"github.com/efyoos/bellhop/internal/models"
)

// RetryDelay is the backoff before attempt retryCount: 2^retryCount seconds.
func RetryDelay(retryCount int) time.Duration {
	return time.Duration(math.Pow(2, float64(retryCount))) * time.Second
}

// handleFailure schedules a retry, or dead-letters the task once it has
// used up its retries.
func (e *Engine) handleFailure(ctx context.Context, t *models.Task, version int, cause error) outcome {
	log := e.logger.With("task_id", t.ID, "hotel_id", t.HotelID)
	retryCount := t.RetryCount + 1
	maxRetries := t.MaxRetries
	if maxRetries <= 0 {
		maxRetries = e.cfg.MaxRetries
	}

	if retryCount < maxRetries {
		next := e.now().Add(RetryDelay(retryCount))
		if err := e.store.ScheduleRetry(ctx, t.ID, version, retryCount, next, cause.Error()); err != nil {
			log.Error("schedule retry", "retry_count", retryCount, "cause", cause, "error", err)
			return outcomeError
		}
		log.Warn("task attempt failed, retry scheduled", "retry_count", retryCount, "next_retry_at", next, "error", cause)
		return outcomeRetried
	}

	reason := fmt.Sprintf("Failed after %d retries: %s", maxRetries, cause)
	if _, err := e.store.MoveToFailedJobs(ctx, t.ID, retryCount, reason); err != nil {
		log.Error("move to failed jobs", "cause", cause, "error", err)
		return outcomeError
	}
	log.Error("task dead-lettered", "retry_count", retryCount, "error", cause)

	taskID := t.ID
	if _, err := e.alerts.Raise(ctx, alert.Spec{
		Type:     alert.TypeFailedJob,
		Severity: models.SeverityCritical,
		HotelID:  t.HotelID,
		TaskID:   &taskID,
		Message:  fmt.Sprintf("Job %d failed after %d retries: %s", t.ID, maxRetries, cause),
		Metadata: map[string]interface{}{"retry_count": retryCount},
	}); err != nil {
		log.Error("raise failed job alert", "error", err)
	}
	return outcomeDeadLettered
}
