package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/efyoos/bellhop/internal/models"
)

func TestAlertLifecycle(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()
	hotel := "grand"
	a := &models.OperationalAlert{AlertType: "failed_job", Severity: models.SeverityCritical, HotelID: &hotel, Message: "boom"}
	if err := s.CreateAlert(ctx, a); err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}
	if a.Status != models.AlertActive || a.Metadata != "{}" {
		t.Errorf("defaults = %q %q", a.Status, a.Metadata)
	}

	active, _ := s.ListAlerts(ctx, models.AlertActive, 0)
	if len(active) != 1 {
		t.Fatalf("active = %d, want 1", len(active))
	}

	acked, err := s.AcknowledgeAlert(ctx, a.ID)
	if err != nil {
		t.Fatalf("AcknowledgeAlert: %v", err)
	}
	if acked.Status != models.AlertAcknowledged || acked.AcknowledgedAt == nil {
		t.Errorf("acked = %+v", acked)
	}
	if _, err := s.AcknowledgeAlert(ctx, a.ID); !errors.Is(err, ErrConflict) {
		t.Errorf("second ack error = %v, want ErrConflict", err)
	}

	resolved, err := s.ResolveAlert(ctx, a.ID)
	if err != nil {
		t.Fatalf("ResolveAlert: %v", err)
	}
	if resolved.Status != models.AlertResolved || resolved.ResolvedAt == nil {
		t.Errorf("resolved = %+v", resolved)
	}
	if _, err := s.ResolveAlert(ctx, a.ID); !errors.Is(err, ErrConflict) {
		t.Errorf("second resolve error = %v, want ErrConflict", err)
	}
	if _, err := s.ResolveAlert(ctx, 404); !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("missing alert error = %v, want ErrAlertNotFound", err)
	}
}

func TestAlertsToEscalate(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()
	old := time.Now().Add(-5 * time.Hour)

	stale := &models.OperationalAlert{AlertType: "failed_job", Severity: models.SeverityCritical, CreatedAt: old}
	recent := &models.OperationalAlert{AlertType: "failed_job", Severity: models.SeverityCritical}
	closed := &models.OperationalAlert{AlertType: "failed_job", Severity: models.SeverityCritical, Status: models.AlertResolved, CreatedAt: old}
	for _, a := range []*models.OperationalAlert{stale, recent, closed} {
		if err := s.CreateAlert(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	due, err := s.AlertsToEscalate(ctx, time.Now().Add(-4*time.Hour))
	if err != nil {
		t.Fatalf("AlertsToEscalate: %v", err)
	}
	if len(due) != 1 || due[0].ID != stale.ID {
		t.Fatalf("due = %+v, want only the stale alert", due)
	}

	ok, err := s.MarkEscalated(ctx, stale.ID)
	if err != nil || !ok {
		t.Fatalf("MarkEscalated = %v, %v", ok, err)
	}
	ok, _ = s.MarkEscalated(ctx, stale.ID)
	if ok {
		t.Error("second MarkEscalated should report false")
	}
	due, _ = s.AlertsToEscalate(ctx, time.Now().Add(-4*time.Hour))
	if len(due) != 0 {
		t.Errorf("due after escalation = %d", len(due))
	}
}

func TestPrimaryAdmin(t *testing.T) {
	s, db := testStore(t)
	ctx := context.Background()
	db.Create(&models.HotelAdmin{HotelID: "grand", Name: "Deputy", WhatsappNumber: "+1"})
	db.Create(&models.HotelAdmin{HotelID: "grand", Name: "Boss", WhatsappNumber: "+2", IsPrimary: true})

	got, err := s.PrimaryAdmin(ctx, "grand")
	if err != nil {
		t.Fatalf("PrimaryAdmin: %v", err)
	}
	if got.Name != "Boss" {
		t.Errorf("admin = %q, want Boss", got.Name)
	}
	if _, err := s.PrimaryAdmin(ctx, "nowhere"); !errors.Is(err, ErrNoAdmin) {
		t.Errorf("error = %v, want ErrNoAdmin", err)
	}
}

func TestLogAPICall(t *testing.T) {
	s, db := testStore(t)
	if err := s.LogAPICall(context.Background(), &models.APICallLog{APIName: "whatsapp", Endpoint: "admin_alert", Succeeded: true}); err != nil {
		t.Fatalf("LogAPICall: %v", err)
	}
	var n int64
	db.Model(&models.APICallLog{}).Count(&n)
	if n != 1 {
		t.Errorf("rows = %d, want 1", n)
	}
}
