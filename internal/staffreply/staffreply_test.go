package staffreply

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/efyoos/bellhop/internal/alert"
	"github.com/efyoos/bellhop/internal/db"
	"github.com/efyoos/bellhop/internal/idempotency"
	"github.com/efyoos/bellhop/internal/models"
	"github.com/efyoos/bellhop/internal/notify"
	"github.com/efyoos/bellhop/internal/store"
)

type recordingAlerts struct {
	specs []alert.Spec
}

func (r *recordingAlerts) Raise(_ context.Context, spec alert.Spec) (*models.OperationalAlert, error) {
	r.specs = append(r.specs, spec)
	return &models.OperationalAlert{ID: uint(len(r.specs))}, nil
}

type harness struct {
	handler *Handler
	db      *gorm.DB
	gateway *notify.Mock
	alerts  *recordingAlerts
	amal    *models.Staff
	badr    *models.Staff
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, _ := gdb.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	h := &harness{db: gdb, gateway: notify.NewMock(), alerts: &recordingAlerts{}}
	h.handler, err = New(Opts{
		Store:    store.New(gdb),
		Enforcer: idempotency.New(idempotency.NewGormStore(gdb), nil),
		Gateway:  h.gateway,
		Alerts:   h.alerts,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.amal = &models.Staff{HotelID: "grand", Name: "Amal", ContactAddress: "+966500000001", Role: "housekeeping", IsActive: true}
	h.badr = &models.Staff{HotelID: "grand", Name: "Badr", ContactAddress: "+966500000002", Role: "housekeeping", IsActive: true}
	for _, st := range []*models.Staff{h.amal, h.badr} {
		if err := gdb.Create(st).Error; err != nil {
			t.Fatal(err)
		}
	}
	return h
}

var codeSeq int

func (h *harness) task(t *testing.T, holder *models.Staff, status models.TaskStatus, version int) *models.Task {
	t.Helper()
	codeSeq++
	now := time.Now()
	c := "housekeeping"
	tk := &models.Task{
		HotelID:           "grand",
		RoomNumber:        "204",
		RequestText:       "Need fresh towels",
		Language:          "en",
		Category:          &c,
		Urgency:           "normal",
		Priority:          5,
		Status:            status,
		AssignedTo:        &holder.ID,
		AssignedAt:        &now,
		AssignmentVersion: version,
		MaxRetries:        3,
		ShortCode:         fmt.Sprintf("R%05d", codeSeq),
	}
	if err := h.db.Create(tk).Error; err != nil {
		t.Fatal(err)
	}
	return tk
}

func (h *harness) reload(t *testing.T, id uint) *models.Task {
	t.Helper()
	var tk models.Task
	if err := h.db.First(&tk, id).Error; err != nil {
		t.Fatal(err)
	}
	return &tk
}

func reply(from string, tok Token) notify.Reply {
	return notify.Reply{From: from, Token: tok.String(), MessageID: "wamid.in"}
}

func TestParseToken(t *testing.T) {
	good, err := ParseToken("accept_42_v3")
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if good.Action != store.ActionAccept || good.TaskID != 42 || good.Version != 3 {
		t.Errorf("token = %+v", good)
	}
	if good.String() != "accept_42_v3" {
		t.Errorf("String = %q", good.String())
	}

	if zero, err := ParseToken("decline_7_v0"); err != nil || zero.Version != 0 {
		t.Errorf("ParseToken(decline_7_v0) = %+v, %v", zero, err)
	}

	for _, bad := range []string{
		"", "accept", "accept_42", "accept_42_v3_x", "launch_42_v3",
		"accept_0_v3", "accept_-1_v3", "accept_x_v3", "accept_42_3", "accept_42_v", "accept_42_vx",
		"accept_5_v+1", "done_5_v01", "done_5_v-1", "accept_+5_v1", "accept_05_v1",
	} {
		if _, err := ParseToken(bad); !errors.Is(err, ErrMalformedToken) {
			t.Errorf("ParseToken(%q) err = %v, want ErrMalformedToken", bad, err)
		}
	}
}

func TestHandle_AcceptSendsFollowUp(t *testing.T) {
	h := newHarness(t)
	tk := h.task(t, h.amal, models.TaskAssigned, 1)

	out, err := h.handler.Handle(context.Background(), reply("+966500000001", Token{store.ActionAccept, tk.ID, 1}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !out.Success {
		t.Fatalf("outcome = %+v", out)
	}
	if got := h.reload(t, tk.ID); got.Status != models.TaskInProgress || got.AssignmentVersion != 1 {
		t.Errorf("task = %s v%d", got.Status, got.AssignmentVersion)
	}

	sent := h.gateway.LastSent()
	if sent.Kind != "template" || sent.Template.Name != "task_followup" {
		t.Fatalf("sent = %+v", sent)
	}
	tpl := sent.Template
	if tpl.HeaderParams[0] != "204" || tpl.BodyParams[0] != "Need fresh towels" {
		t.Errorf("template = %+v", tpl)
	}
	want := []string{Token{store.ActionDone, tk.ID, 1}.String(), Token{store.ActionReport, tk.ID, 1}.String()}
	if tpl.ButtonPayloads[0] != want[0] || tpl.ButtonPayloads[1] != want[1] {
		t.Errorf("payloads = %q, want %q", tpl.ButtonPayloads, want)
	}
}

func TestHandle_AcceptFallsBackToButtons(t *testing.T) {
	h := newHarness(t)
	tk := h.task(t, h.amal, models.TaskAssigned, 1)
	h.gateway.FailKind("template", &notify.APIError{Status: 400, Body: "template not approved"})

	if _, err := h.handler.Handle(context.Background(), reply("+966500000001", Token{store.ActionAccept, tk.ID, 1})); err != nil {
		t.Fatal(err)
	}
	sent := h.gateway.LastSent()
	if sent == nil || sent.Kind != "buttons" {
		t.Fatalf("sent = %+v, want buttons fallback", sent)
	}
	if sent.Body != "📋 Room 204\nTask: Need fresh towels\n\nPlease update status:" {
		t.Errorf("body = %q", sent.Body)
	}
	if len(sent.Buttons) != 2 || sent.Buttons[0].Title != "✓ Done" || sent.Buttons[1].ID != (Token{store.ActionReport, tk.ID, 1}).String() {
		t.Errorf("buttons = %+v", sent.Buttons)
	}
}

func TestHandle_Done(t *testing.T) {
	h := newHarness(t)
	tk := h.task(t, h.amal, models.TaskInProgress, 1)

	out, err := h.handler.Handle(context.Background(), reply("+966500000001", Token{store.ActionDone, tk.ID, 1}))
	if err != nil || !out.Success {
		t.Fatalf("Handle = %+v, %v", out, err)
	}
	if got := h.reload(t, tk.ID); got.Status != models.TaskDone {
		t.Errorf("status = %s", got.Status)
	}
	if body := h.gateway.LastSent().Body; body != "✅ Task completed!\n\nThank you Amal.\nRoom 204 - done." {
		t.Errorf("text = %q", body)
	}
}

func TestHandle_ReportRaisesAlert(t *testing.T) {
	h := newHarness(t)
	tk := h.task(t, h.amal, models.TaskInProgress, 1)

	out, err := h.handler.Handle(context.Background(), reply("+966500000001", Token{store.ActionReport, tk.ID, 1}))
	if err != nil || !out.Success {
		t.Fatalf("Handle = %+v, %v", out, err)
	}
	if got := h.reload(t, tk.ID); got.Status != models.TaskReported {
		t.Errorf("status = %s", got.Status)
	}
	if body := h.gateway.LastSent().Body; !strings.HasPrefix(body, "⚠️ Issue reported for Room 204.") {
		t.Errorf("text = %q", body)
	}
	if len(h.alerts.specs) != 1 {
		t.Fatalf("alerts = %d, want 1", len(h.alerts.specs))
	}
	a := h.alerts.specs[0]
	if a.Type != alert.TypeStaffReportedIssue || a.Severity != models.SeverityWarning || a.HotelID != "grand" {
		t.Errorf("alert = %+v", a)
	}
	if a.Message != "Staff Amal reported issue: Need fresh towels" {
		t.Errorf("message = %q", a.Message)
	}
}

func TestHandle_Decline(t *testing.T) {
	h := newHarness(t)
	tk := h.task(t, h.amal, models.TaskAssigned, 1)

	out, err := h.handler.Handle(context.Background(), reply("+966500000001", Token{store.ActionDecline, tk.ID, 1}))
	if err != nil || !out.Success {
		t.Fatalf("Handle = %+v, %v", out, err)
	}
	got := h.reload(t, tk.ID)
	if got.Status != models.TaskPending || got.AssignedTo != nil || got.AssignmentVersion != 2 {
		t.Errorf("task = %s assigned_to %v v%d", got.Status, got.AssignedTo, got.AssignmentVersion)
	}
	if body := h.gateway.LastSent().Body; body != TextDeclined {
		t.Errorf("text = %q", body)
	}
}

func TestHandle_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		status  models.TaskStatus
		from    string
		action  store.Action
		version int
		reason  string
		text    string
	}{
		{"stale version", models.TaskAssigned, "+966500000001", store.ActionAccept, 0, store.ReasonStaleAssignment, TextStale},
		{"other staff", models.TaskAssigned, "+966500000002", store.ActionAccept, 1, store.ReasonNotAssigned, TextNotAssigned},
		{"wrong status", models.TaskAssigned, "+966500000001", store.ActionDone, 1, store.ReasonInvalidStatus, "⚠️ Cannot perform this action.\nTask is already: assigned"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tk := h.task(t, h.amal, tt.status, 1)

			out, err := h.handler.Handle(context.Background(), reply(tt.from, Token{tt.action, tk.ID, tt.version}))
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if out.Success || out.Reason != tt.reason {
				t.Errorf("outcome = %+v, want reason %s", out, tt.reason)
			}
			sent := h.gateway.LastSent()
			if sent == nil || sent.To != tt.from || sent.Body != tt.text {
				t.Errorf("sent = %+v, want %q to %s", sent, tt.text, tt.from)
			}
			got := h.reload(t, tk.ID)
			if got.Status != tt.status || got.AssignmentVersion != 1 {
				t.Errorf("task mutated: %s v%d", got.Status, got.AssignmentVersion)
			}
		})
	}
}

func TestHandle_UnknownTask(t *testing.T) {
	h := newHarness(t)
	out, err := h.handler.Handle(context.Background(), reply("+966500000001", Token{store.ActionAccept, 999, 1}))
	if err != nil {
		t.Fatal(err)
	}
	if out.Reason != store.ReasonNotAssigned {
		t.Errorf("reason = %q", out.Reason)
	}
}

func TestHandle_ReassignedTaskIgnoresOldHolder(t *testing.T) {
	h := newHarness(t)
	tk := h.task(t, h.amal, models.TaskAssigned, 1)
	// The watchdog hands the task to Badr at version 2.
	h.db.Model(&models.Task{}).Where("id = ?", tk.ID).Updates(map[string]interface{}{
		"assigned_to":        h.badr.ID,
		"assignment_version": 2,
	})

	out, err := h.handler.Handle(context.Background(), reply("+966500000001", Token{store.ActionAccept, tk.ID, 1}))
	if err != nil {
		t.Fatal(err)
	}
	if out.Reason != store.ReasonStaleAssignment {
		t.Errorf("old holder reason = %q, want stale", out.Reason)
	}

	out, err = h.handler.Handle(context.Background(), reply("+966500000002", Token{store.ActionAccept, tk.ID, 2}))
	if err != nil || !out.Success {
		t.Fatalf("new holder = %+v, %v", out, err)
	}
	got := h.reload(t, tk.ID)
	if got.Status != models.TaskInProgress || *got.AssignedTo != h.badr.ID {
		t.Errorf("task = %s assigned_to %d", got.Status, *got.AssignedTo)
	}
}

func TestHandle_MalformedIgnored(t *testing.T) {
	h := newHarness(t)
	out, err := h.handler.Handle(context.Background(), notify.Reply{From: "+966500000001", Token: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Ignored {
		t.Errorf("outcome = %+v, want ignored", out)
	}
	if h.gateway.SentCount() != 0 {
		t.Error("malformed token must not be answered")
	}
}

func TestHandle_StoreFailure(t *testing.T) {
	h := newHarness(t)
	sqlDB, _ := h.db.DB()
	sqlDB.Close()

	_, err := h.handler.Handle(context.Background(), reply("+966500000001", Token{store.ActionAccept, 1, 1}))
	if err == nil || !strings.Contains(err.Error(), "staffreply: accept_1_v1") {
		t.Errorf("err = %v", err)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Opts{}); err == nil || !strings.Contains(err.Error(), "store is required") {
		t.Errorf("err = %v", err)
	}
}
