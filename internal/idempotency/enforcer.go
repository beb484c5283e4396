// Package idempotency deduplicates side-effecting calls by a content
// addressed key. The first caller for a key runs the call and records its
// outcome; later callers replay a recorded success or are refused.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/efyoos/bellhop/internal/models"
)

// ErrInFlightOrFailed is returned when another caller holds the key and has
// not recorded a success: it is either still running or it failed.
var ErrInFlightOrFailed = errors.New("idempotency: concurrent operation in progress or previously failed")

// ExternalIDer is implemented by results that carry a provider message id.
type ExternalIDer interface {
	ExternalID() string
}

// Enforcer wraps calls with an idempotency record.
type Enforcer struct {
	store  KeyStore
	logger *slog.Logger
}

// New creates an Enforcer. A nil logger uses slog.Default().
func New(store KeyStore, logger *slog.Logger) *Enforcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enforcer{store: store, logger: logger}
}

// Execute runs fn at most once for (taskID, operation, params). A replay of
// a recorded success decodes the cached payload into T without calling fn.
func Execute[T any](ctx context.Context, e *Enforcer, taskID uint, apiName, operation string, params interface{}, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	key, normalized, err := Key(taskID, operation, params)
	if err != nil {
		return zero, err
	}

	inserted, err := e.store.Insert(ctx, &models.IdempotencyRecord{
		Key:           key,
		RequestID:     taskID,
		APIName:       apiName,
		OperationType: operation,
		RequestParams: normalized,
	})
	if err != nil {
		return zero, err
	}

	if !inserted {
		rec, err := e.store.Get(ctx, key)
		if err != nil {
			return zero, err
		}
		if !rec.Succeeded {
			return zero, fmt.Errorf("%w: task %d %s", ErrInFlightOrFailed, taskID, operation)
		}
		var cached T
		if err := json.Unmarshal([]byte(rec.ResponsePayload), &cached); err != nil {
			return zero, fmt.Errorf("idempotency: decode cached %s for task %d: %w", operation, taskID, err)
		}
		e.logger.Debug("idempotent replay", "task_id", taskID, "operation", operation, "key", key)
		return cached, nil
	}

	result, callErr := fn(ctx)
	if callErr != nil {
		payload, _ := json.Marshal(map[string]string{"error": callErr.Error()})
		if err := e.store.Finalize(ctx, key, false, string(payload), nil); err != nil {
			e.logger.Error("record failed call", "task_id", taskID, "operation", operation, "error", err)
		}
		return zero, callErr
	}

	payload, err := json.Marshal(result)
	if err != nil {
		e.logger.Error("encode call result", "task_id", taskID, "operation", operation, "error", err)
		return result, nil
	}
	var externalID *string
	if x, ok := any(result).(ExternalIDer); ok {
		if id := x.ExternalID(); id != "" {
			externalID = &id
		}
	}
	if err := e.store.Finalize(ctx, key, true, string(payload), externalID); err != nil {
		// The side effect already happened; report it and move on.
		e.logger.Error("record successful call", "task_id", taskID, "operation", operation, "error", err)
	}
	return result, nil
}
