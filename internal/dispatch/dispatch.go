// Package dispatch implements the heartbeat: it recovers timed-out
// assignments, claims a batch of pending tasks and runs each one through
// classification and assignment, scheduling a retry or dead-lettering the
// task when a step fails.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/efyoos/bellhop/internal/alert"
	"github.com/efyoos/bellhop/internal/classify"
	"github.com/efyoos/bellhop/internal/config"
	"github.com/efyoos/bellhop/internal/idempotency"
	"github.com/efyoos/bellhop/internal/models"
	"github.com/efyoos/bellhop/internal/notify"
	"github.com/efyoos/bellhop/internal/store"
)

// AlertRaiser raises operational alerts.
type AlertRaiser interface {
	Raise(ctx context.Context, spec alert.Spec) (*models.OperationalAlert, error)
}

// Opts holds the collaborators of an Engine.
type Opts struct {
	Store      *store.Store
	Enforcer   *idempotency.Enforcer
	Gateway    notify.Gateway
	Classifier classify.Classifier
	Alerts     AlertRaiser
	Config     config.DispatchConfig
	// Language is the staff template language code.
	Language string
	Logger   *slog.Logger
}

// Engine runs heartbeats. It holds no locks; overlapping heartbeats are
// kept apart by the store's claims and compare-and-set updates.
type Engine struct {
	store      *store.Store
	enforcer   *idempotency.Enforcer
	gateway    notify.Gateway
	classifier classify.Classifier
	alerts     AlertRaiser
	cfg        config.DispatchConfig
	language   string
	logger     *slog.Logger
	now        func() time.Time
	newToken   func() string
}

// New creates an Engine.
func New(opts Opts) (*Engine, error) {
	switch {
	case opts.Store == nil:
		return nil, fmt.Errorf("dispatch: store is required")
	case opts.Enforcer == nil:
		return nil, fmt.Errorf("dispatch: enforcer is required")
	case opts.Gateway == nil:
		return nil, fmt.Errorf("dispatch: gateway is required")
	case opts.Classifier == nil:
		return nil, fmt.Errorf("dispatch: classifier is required")
	case opts.Alerts == nil:
		return nil, fmt.Errorf("dispatch: alert raiser is required")
	}
	cfg := opts.Config
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.AssignmentTimeoutSec <= 0 {
		cfg.AssignmentTimeoutSec = 120
	}
	if cfg.SurgeThreshold <= 0 {
		cfg.SurgeThreshold = 3
	}
	if cfg.ClaimLeaseSec <= 0 {
		cfg.ClaimLeaseSec = 300
	}
	e := &Engine{
		store:      opts.Store,
		enforcer:   opts.Enforcer,
		gateway:    opts.Gateway,
		classifier: opts.Classifier,
		alerts:     opts.Alerts,
		cfg:        cfg,
		language:   opts.Language,
		logger:     opts.Logger,
		now:        time.Now,
		newToken:   uuid.NewString,
	}
	if e.language == "" {
		e.language = "ar"
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e, nil
}

// Report summarizes one heartbeat.
type Report struct {
	Processed    int `json:"processed"`
	Successful   int `json:"successful"`
	Failed       int `json:"failed"`
	Retried      int `json:"retried"`
	DeadLettered int `json:"dead_lettered"`
	Conflicts    int `json:"conflicts"`
	Timeouts     int `json:"timeouts"`
	Reassigned   int `json:"reassigned"`
	Requeued     int `json:"requeued"`
	// DurationMS is the wall time of the sweep in milliseconds.
	DurationMS int64 `json:"duration_ms"`
}

// outcome is the result of one task pipeline.
type outcome int

const (
	outcomeAssigned outcome = iota
	outcomeRetried
	outcomeDeadLettered
	outcomeConflict
	outcomeError
)

// Heartbeat runs one sweep. Only a failed claim aborts it; per-task
// failures are absorbed into the report.
func (e *Engine) Heartbeat(ctx context.Context) (*Report, error) {
	start := e.now()
	report := &Report{}
	e.logger.Info("heartbeat started")

	e.checkTimeouts(ctx, report)

	token := e.newToken()
	tasks, err := e.store.ClaimPendingJobs(ctx, e.cfg.BatchSize, token, e.cfg.ClaimLease())
	if err != nil {
		return nil, fmt.Errorf("dispatch: claim failed: %w", err)
	}
	report.Processed = len(tasks)

	if len(tasks) > 0 {
		e.logger.Info("claimed tasks", "count", len(tasks), "claim_token", token)
		outcomes := make([]outcome, len(tasks))
		var g errgroup.Group
		g.SetLimit(e.cfg.BatchSize)
		for i := range tasks {
			g.Go(func() error {
				outcomes[i] = e.process(ctx, &tasks[i], token)
				return nil
			})
		}
		// process absorbs its own failures.
		g.Wait()

		for _, o := range outcomes {
			switch o {
			case outcomeAssigned:
				report.Successful++
				continue
			case outcomeRetried:
				report.Retried++
			case outcomeDeadLettered:
				report.DeadLettered++
			case outcomeConflict:
				report.Conflicts++
			}
			report.Failed++
		}
	}

	report.DurationMS = e.now().Sub(start).Milliseconds()
	e.logger.Info("heartbeat finished",
		"processed", report.Processed,
		"successful", report.Successful,
		"failed", report.Failed,
		"timeouts", report.Timeouts,
		"duration_ms", report.DurationMS,
	)
	return report, nil
}
