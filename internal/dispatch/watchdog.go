package dispatch

import (
	"context"
	"fmt"
	"sort"

	"github.com/efyoos/bellhop/internal/alert"
	"github.com/efyoos/bellhop/internal/models"
	"github.com/efyoos/bellhop/internal/store"
)

// checkTimeouts takes stale assignments away from staff who did not
// respond. An error on one task is logged and the sweep continues.
func (e *Engine) checkTimeouts(ctx context.Context, report *Report) {
	cutoff := e.now().Add(-e.cfg.AssignmentTimeout())
	stale, err := e.store.StaleAssignments(ctx, cutoff)
	if err != nil {
		e.logger.Error("list stale assignments", "error", err)
		return
	}
	if len(stale) == 0 {
		return
	}
	report.Timeouts = len(stale)
	e.logger.Warn("timed-out assignments", "count", len(stale))

	hotels := make(map[string]bool)
	for i := range stale {
		t := &stale[i]
		hotels[t.HotelID] = true
		if t.AssignedTo == nil {
			continue
		}
		res, err := e.store.HandleTimeoutAndReassign(ctx, t.ID, *t.AssignedTo, cutoff)
		if err != nil {
			e.logger.Error("handle timeout", "task_id", t.ID, "error", err)
			continue
		}
		switch res.Action {
		case store.ActionReassigned:
			report.Reassigned++
			e.notifyReassignment(ctx, res)
		case store.ActionRequeued:
			report.Requeued++
			e.logger.Warn("task requeued after timeout", "task_id", t.ID, "hotel_id", t.HotelID)
		}
	}

	if len(stale) > e.cfg.SurgeThreshold {
		e.raiseSurge(ctx, len(stale), hotels)
	}
}

func (e *Engine) notifyReassignment(ctx context.Context, res *store.TimeoutResult) {
	t := res.Task
	_, err := e.sendTaskTemplate(ctx, t.ID, "send_reassignment", assignParams{
		Phone:   res.NewStaff.ContactAddress,
		Room:    t.RoomNumber,
		Task:    "[REASSIGNED] " + t.RequestText,
		Urgency: "urgent",
		Version: t.AssignmentVersion,
	})
	if err != nil {
		e.logger.Error("notify reassigned staff", "task_id", t.ID, "staff_id", res.NewStaff.ID, "error", err)
		return
	}
	e.logger.Info("task reassigned", "task_id", t.ID, "staff_id", res.NewStaff.ID, "version", t.AssignmentVersion)
}

// raiseSurge raises one timeout_surge alert for the sweep.
func (e *Engine) raiseSurge(ctx context.Context, count int, hotels map[string]bool) {
	ids := make([]string, 0, len(hotels))
	for h := range hotels {
		ids = append(ids, h)
	}
	sort.Strings(ids)

	spec := alert.Spec{
		Type:     alert.TypeTimeoutSurge,
		Severity: models.SeverityWarning,
		Message:  fmt.Sprintf("%d timeouts in last %d minutes", count, int(e.cfg.AssignmentTimeout().Minutes())),
		Metadata: map[string]interface{}{"count": count, "hotels": ids},
	}
	if len(ids) == 1 {
		spec.HotelID = ids[0]
	}
	if _, err := e.alerts.Raise(ctx, spec); err != nil {
		e.logger.Error("raise timeout surge alert", "error", err)
	}
}
