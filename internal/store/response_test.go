package store

import (
	"context"
	"testing"
	"time"

	"github.com/efyoos/bellhop/internal/models"
)

func TestHandleStaffResponse_Transitions(t *testing.T) {
	tests := []struct {
		name       string
		status     models.TaskStatus
		action     Action
		wantStatus models.TaskStatus
		wantVer    int
		wantEvent  string
	}{
		{"accept", models.TaskAssigned, ActionAccept, models.TaskInProgress, 1, models.EventAccepted},
		{"decline", models.TaskAssigned, ActionDecline, models.TaskPending, 2, models.EventDeclined},
		{"done", models.TaskInProgress, ActionDone, models.TaskDone, 1, models.EventCompleted},
		{"report", models.TaskInProgress, ActionReport, models.TaskReported, 1, models.EventReported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, db := testStore(t)
			ctx := context.Background()
			a := seedStaff(t, db, "grand", "A", "+966500000001", "housekeeping")
			tk := seedTask(t, db, assignedTo(a.ID, 1, tt.status, time.Now()))

			res, err := s.HandleStaffResponse(ctx, tk.ID, "966500000001", tt.action, 1)
			if err != nil {
				t.Fatalf("HandleStaffResponse: %v", err)
			}
			if !res.Success {
				t.Fatalf("rejected: %s", res.Reason)
			}
			if res.Task.Status != tt.wantStatus || res.Task.AssignmentVersion != tt.wantVer {
				t.Errorf("task = %s v%d, want %s v%d", res.Task.Status, res.Task.AssignmentVersion, tt.wantStatus, tt.wantVer)
			}
			if res.Staff == nil || res.Staff.ID != a.ID {
				t.Errorf("Staff = %+v", res.Staff)
			}
			if tt.action == ActionDecline {
				if res.Task.AssignedTo != nil {
					t.Error("decline should clear the assignee")
				}
				if res.Task.DeclinedBy == nil || *res.Task.DeclinedBy != a.ID {
					t.Errorf("DeclinedBy = %v, want %d", res.Task.DeclinedBy, a.ID)
				}
			}
			events, _ := s.Events(ctx, tk.ID)
			if len(events) != 1 || events[0].EventType != tt.wantEvent {
				t.Errorf("events = %+v", events)
			}
		})
	}
}

func TestHandleStaffResponse_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		status  models.TaskStatus
		contact string
		action  Action
		version int
		missing bool
		want    string
	}{
		{"stale version", models.TaskAssigned, "+1001", ActionAccept, 0, false, ReasonStaleAssignment},
		{"other staff", models.TaskAssigned, "+1002", ActionAccept, 1, false, ReasonNotAssigned},
		{"unknown task", models.TaskAssigned, "+1001", ActionAccept, 1, true, ReasonNotAssigned},
		{"done before accept", models.TaskAssigned, "+1001", ActionDone, 1, false, ReasonInvalidStatus},
		{"accept twice", models.TaskInProgress, "+1001", ActionAccept, 1, false, ReasonInvalidStatus},
		{"done after done", models.TaskDone, "+1001", ActionDone, 1, false, ReasonInvalidStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, db := testStore(t)
			a := seedStaff(t, db, "grand", "A", "+1001", "housekeeping")
			seedStaff(t, db, "grand", "B", "+1002", "housekeeping")
			tk := seedTask(t, db, assignedTo(a.ID, 1, tt.status, time.Now()))
			id := tk.ID
			if tt.missing {
				id = 9999
			}

			res, err := s.HandleStaffResponse(context.Background(), id, tt.contact, tt.action, tt.version)
			if err != nil {
				t.Fatalf("HandleStaffResponse: %v", err)
			}
			if res.Success {
				t.Fatal("expected rejection")
			}
			if res.Reason != tt.want {
				t.Errorf("Reason = %q, want %q", res.Reason, tt.want)
			}
			got := reload(t, db, tk.ID)
			if got.Status != tt.status || got.AssignmentVersion != 1 {
				t.Errorf("task mutated: %s v%d", got.Status, got.AssignmentVersion)
			}
		})
	}
}

func TestHandleStaffResponse_UnknownAction(t *testing.T) {
	s, _ := testStore(t)
	if _, err := s.HandleStaffResponse(context.Background(), 1, "+1", Action("snooze"), 1); err == nil {
		t.Error("expected error for unknown action")
	}
}

func TestReassignmentMakesOldReplyStale(t *testing.T) {
	s, db := testStore(t)
	ctx := context.Background()
	a := seedStaff(t, db, "grand", "A", "+1001", "housekeeping")
	b := seedStaff(t, db, "grand", "B", "+1002", "housekeeping")
	tk := seedTask(t, db, assignedTo(a.ID, 1, models.TaskAssigned, time.Now().Add(-3*time.Minute)))

	res, err := s.HandleTimeoutAndReassign(ctx, tk.ID, a.ID, time.Now().Add(-2*time.Minute))
	if err != nil || res.Action != ActionReassigned || res.NewStaff.ID != b.ID {
		t.Fatalf("timeout = %+v, %v", res, err)
	}

	late, err := s.HandleStaffResponse(ctx, tk.ID, "+1001", ActionDone, 1)
	if err != nil {
		t.Fatal(err)
	}
	if late.Success || late.Reason != ReasonStaleAssignment {
		t.Errorf("late reply from A = %+v, want stale_assignment", late)
	}

	accept, err := s.HandleStaffResponse(ctx, tk.ID, "+1002", ActionAccept, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !accept.Success || accept.Task.Status != models.TaskInProgress {
		t.Errorf("B accept = %+v", accept)
	}
}

func TestValidAction(t *testing.T) {
	for _, a := range []string{"accept", "decline", "done", "report"} {
		if !ValidAction(a) {
			t.Errorf("ValidAction(%q) = false", a)
		}
	}
	for _, a := range []string{"", "Accept", "cancel"} {
		if ValidAction(a) {
			t.Errorf("ValidAction(%q) = true", a)
		}
	}
}

func TestStaffByContact(t *testing.T) {
	s, db := testStore(t)
	a := seedStaff(t, db, "grand", "A", "+966500000001", "housekeeping")
	got, err := s.StaffByContact(context.Background(), "966500000001")
	if err != nil {
		t.Fatalf("StaffByContact: %v", err)
	}
	if got.ID != a.ID {
		t.Errorf("got %d, want %d", got.ID, a.ID)
	}
	if _, err := s.StaffByContact(context.Background(), "+1"); err == nil {
		t.Error("expected not found")
	}
}
