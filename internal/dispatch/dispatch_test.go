package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/efyoos/bellhop/internal/alert"
	"github.com/efyoos/bellhop/internal/config"
	"github.com/efyoos/bellhop/internal/db"
	"github.com/efyoos/bellhop/internal/idempotency"
	"github.com/efyoos/bellhop/internal/models"
	"github.com/efyoos/bellhop/internal/notify"
	"github.com/efyoos/bellhop/internal/store"
)

type stubClassifier struct {
	category string
	err      error
	calls    int
	hook     func()
}

func (s *stubClassifier) Classify(context.Context, string) (string, error) {
	s.calls++
	if s.hook != nil {
		s.hook()
	}
	return s.category, s.err
}

type recordingAlerts struct {
	mu    sync.Mutex
	specs []alert.Spec
}

func (r *recordingAlerts) Raise(_ context.Context, spec alert.Spec) (*models.OperationalAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs = append(r.specs, spec)
	return &models.OperationalAlert{ID: uint(len(r.specs)), AlertType: spec.Type}, nil
}

func (r *recordingAlerts) ofType(typ string) []alert.Spec {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []alert.Spec
	for _, s := range r.specs {
		if s.Type == typ {
			out = append(out, s)
		}
	}
	return out
}

type harness struct {
	engine     *Engine
	db         *gorm.DB
	gateway    *notify.Mock
	alerts     *recordingAlerts
	classifier *stubClassifier
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

	h := &harness{
		db:         gdb,
		gateway:    notify.NewMock(),
		alerts:     &recordingAlerts{},
		classifier: &stubClassifier{category: "housekeeping"},
	}
	e, err := New(Opts{
		Store:      store.New(gdb),
		Enforcer:   idempotency.New(idempotency.NewGormStore(gdb), nil),
		Gateway:    h.gateway,
		Classifier: h.classifier,
		Alerts:     h.alerts,
		Config:     config.DispatchConfig{BatchSize: 10, MaxRetries: 3, AssignmentTimeoutSec: 120, SurgeThreshold: 3, ClaimLeaseSec: 300},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.engine = e
	return h
}

func (h *harness) staff(t *testing.T, name, contact, role string) *models.Staff {
	t.Helper()
	st := &models.Staff{HotelID: "grand", Name: name, ContactAddress: contact, Role: role, IsActive: true}
	if err := h.db.Create(st).Error; err != nil {
		t.Fatal(err)
	}
	return st
}

var codeSeq int

func (h *harness) task(t *testing.T, mutate func(*models.Task)) *models.Task {
	t.Helper()
	codeSeq++
	tk := &models.Task{
		HotelID:     "grand",
		RoomNumber:  "204",
		RequestText: "Need fresh towels",
		Language:    "en",
		Urgency:     "normal",
		Priority:    5,
		Status:      models.TaskPending,
		MaxRetries:  3,
		ShortCode:   fmt.Sprintf("D%05d", codeSeq),
	}
	if mutate != nil {
		mutate(tk)
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

func TestNew_Validation(t *testing.T) {
	_, err := New(Opts{})
	if err == nil || !strings.Contains(err.Error(), "store is required") {
		t.Errorf("err = %v", err)
	}
}

func TestHeartbeat_ClassifiesAndAssigns(t *testing.T) {
	h := newHarness(t)
	h.classifier.category = " Housekeeping\n"
	st := h.staff(t, "Amal", "+966500000001", "housekeeping")
	tk := h.task(t, nil)

	report, err := h.engine.Heartbeat(context.Background())
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if report.Processed != 1 || report.Successful != 1 || report.Failed != 0 {
		t.Errorf("report = %+v", report)
	}

	got := h.reload(t, tk.ID)
	if got.Status != models.TaskAssigned || got.AssignmentVersion != 1 {
		t.Errorf("status = %s v%d, want assigned v1", got.Status, got.AssignmentVersion)
	}
	if got.AssignedTo == nil || *got.AssignedTo != st.ID {
		t.Errorf("assigned_to = %v, want %d", got.AssignedTo, st.ID)
	}
	if got.CategoryOrEmpty() != "housekeeping" {
		t.Errorf("category = %q", got.CategoryOrEmpty())
	}
	if got.ClaimToken != nil {
		t.Error("claim should be cleared once assigned")
	}

	sent := h.gateway.SentTo("+966500000001")
	if len(sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(sent))
	}
	tpl := sent[0].Template
	if tpl.Name != "new_task_alert" || tpl.Language != "ar" {
		t.Errorf("template = %+v", tpl)
	}
	if tpl.BodyParams[0] != "204" || tpl.BodyParams[1] != "Need fresh towels" || tpl.BodyParams[2] != "normal" {
		t.Errorf("body params = %q", tpl.BodyParams)
	}
	want := []string{ActionToken("accept", tk.ID, 1), ActionToken("decline", tk.ID, 1)}
	if tpl.ButtonPayloads[0] != want[0] || tpl.ButtonPayloads[1] != want[1] {
		t.Errorf("payloads = %q, want %q", tpl.ButtonPayloads, want)
	}

	var events []models.LifecycleEvent
	h.db.Where("task_id = ?", tk.ID).Order("id").Find(&events)
	var types []string
	for _, ev := range events {
		types = append(types, ev.EventType)
	}
	joined := strings.Join(types, ",")
	for _, want := range []string{models.EventProcessing, models.EventClassified, models.EventAssigned} {
		if !strings.Contains(joined, want) {
			t.Errorf("events %s missing %s", joined, want)
		}
	}

	report, err = h.engine.Heartbeat(context.Background())
	if err != nil || report.Processed != 0 {
		t.Errorf("second heartbeat = %+v, %v", report, err)
	}
	if h.gateway.SentCount() != 1 {
		t.Errorf("sent = %d after second heartbeat", h.gateway.SentCount())
	}
}

func TestHeartbeat_KnownCategorySkipsClassifier(t *testing.T) {
	h := newHarness(t)
	h.staff(t, "Omar", "+966500000002", "maintenance")
	h.task(t, func(tk *models.Task) {
		c := "maintenance"
		tk.Category = &c
	})
	if _, err := h.engine.Heartbeat(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.classifier.calls != 0 {
		t.Errorf("classifier calls = %d, want 0", h.classifier.calls)
	}
}

func TestHeartbeat_DeclinedTaskGoesToAnotherStaff(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.staff(t, "Amal", "+966500000001", "housekeeping")
	b := h.staff(t, "Badr", "+966500000002", "housekeeping")
	tk := h.task(t, nil)

	if _, err := h.engine.Heartbeat(ctx); err != nil {
		t.Fatalf("first Heartbeat: %v", err)
	}
	if got := h.reload(t, tk.ID); got.AssignedTo == nil || *got.AssignedTo != a.ID {
		t.Fatalf("first assignee = %v, want %d", got.AssignedTo, a.ID)
	}

	res, err := store.New(h.db).HandleStaffResponse(ctx, tk.ID, a.ContactAddress, store.ActionDecline, 1)
	if err != nil || !res.Success {
		t.Fatalf("decline: res=%+v err=%v", res, err)
	}

	if _, err := h.engine.Heartbeat(ctx); err != nil {
		t.Fatalf("second Heartbeat: %v", err)
	}
	got := h.reload(t, tk.ID)
	if got.Status != models.TaskAssigned || got.AssignmentVersion != 3 {
		t.Errorf("status = %s v%d, want assigned v3", got.Status, got.AssignmentVersion)
	}
	if got.AssignedTo == nil || *got.AssignedTo != b.ID {
		t.Errorf("assigned_to = %v, want %d", got.AssignedTo, b.ID)
	}
	if n := len(h.gateway.SentTo(a.ContactAddress)); n != 1 {
		t.Errorf("decliner notified %d times, want 1", n)
	}
	if n := len(h.gateway.SentTo(b.ContactAddress)); n != 1 {
		t.Errorf("second staff notified %d times, want 1", n)
	}
}

func TestHeartbeat_DeclinedTaskFallsBackToOnlyStaff(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.staff(t, "Amal", "+966500000001", "housekeeping")
	tk := h.task(t, func(tk *models.Task) {
		cat := "housekeeping"
		tk.Category = &cat
		tk.DeclinedBy = &a.ID
		tk.AssignmentVersion = 2
	})

	report, err := h.engine.Heartbeat(ctx)
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if report.Successful != 1 {
		t.Errorf("report = %+v", report)
	}
	got := h.reload(t, tk.ID)
	if got.AssignedTo == nil || *got.AssignedTo != a.ID {
		t.Errorf("assigned_to = %v, want %d", got.AssignedTo, a.ID)
	}
}

func TestHeartbeat_UnknownCategoryIsReclassified(t *testing.T) {
	h := newHarness(t)
	st := h.staff(t, "Amal", "+966500000001", "housekeeping")
	tk := h.task(t, func(tk *models.Task) {
		c := "Laundry"
		tk.Category = &c
	})

	report, err := h.engine.Heartbeat(context.Background())
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if report.Successful != 1 {
		t.Errorf("report = %+v", report)
	}
	if h.classifier.calls != 1 {
		t.Errorf("classifier calls = %d, want 1", h.classifier.calls)
	}
	got := h.reload(t, tk.ID)
	if got.CategoryOrEmpty() != "housekeeping" {
		t.Errorf("category = %q, want housekeeping", got.CategoryOrEmpty())
	}
	if got.AssignedTo == nil || *got.AssignedTo != st.ID {
		t.Errorf("assigned_to = %v, want %d", got.AssignedTo, st.ID)
	}
}

func TestHeartbeat_NoStaffSchedulesRetry(t *testing.T) {
	h := newHarness(t)
	tk := h.task(t, nil)
	before := time.Now()

	report, err := h.engine.Heartbeat(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Failed != 1 || report.Retried != 1 {
		t.Errorf("report = %+v", report)
	}

	got := h.reload(t, tk.ID)
	if got.Status != models.TaskPending || got.RetryCount != 1 {
		t.Errorf("status = %s retry_count = %d", got.Status, got.RetryCount)
	}
	if !strings.Contains(got.LastError, "no available staff for category: housekeeping") {
		t.Errorf("last_error = %q", got.LastError)
	}
	if got.NextRetryAt == nil || got.NextRetryAt.Before(before.Add(RetryDelay(1))) {
		t.Errorf("next_retry_at = %v, want >= now+2s", got.NextRetryAt)
	}
	if got.ClaimToken != nil {
		t.Error("claim should be released by the retry")
	}

	report, _ = h.engine.Heartbeat(context.Background())
	if report.Processed != 0 {
		t.Errorf("task re-claimed before its retry time: %+v", report)
	}
}

func TestHeartbeat_DeadLettersAfterMaxRetries(t *testing.T) {
	h := newHarness(t)
	tk := h.task(t, func(tk *models.Task) { tk.RetryCount = 2 })

	report, err := h.engine.Heartbeat(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.DeadLettered != 1 {
		t.Errorf("report = %+v", report)
	}

	got := h.reload(t, tk.ID)
	if got.Status != models.TaskFailed || got.RetryCount != 3 {
		t.Errorf("status = %s retry_count = %d, want failed/3", got.Status, got.RetryCount)
	}
	var job models.FailedJob
	if err := h.db.Where("task_id = ?", tk.ID).First(&job).Error; err != nil {
		t.Fatalf("failed job row: %v", err)
	}
	if !strings.Contains(job.Reason, "Failed after 3 retries") {
		t.Errorf("reason = %q", job.Reason)
	}

	alerts := h.alerts.ofType(alert.TypeFailedJob)
	if len(alerts) != 1 {
		t.Fatalf("failed_job alerts = %d, want 1", len(alerts))
	}
	a := alerts[0]
	if a.Severity != models.SeverityCritical || a.HotelID != "grand" || a.Metadata["retry_count"] != 3 {
		t.Errorf("alert = %+v", a)
	}
	if !strings.HasPrefix(a.Message, "Job ") || !strings.Contains(a.Message, "failed after 3 retries") {
		t.Errorf("message = %q", a.Message)
	}

	report, _ = h.engine.Heartbeat(context.Background())
	if report.Processed != 0 {
		t.Error("dead-lettered task was claimed again")
	}
}

func TestHeartbeat_SendFailureRetriesWithNewVersion(t *testing.T) {
	h := newHarness(t)
	h.staff(t, "Amal", "+966500000001", "housekeeping")
	tk := h.task(t, nil)
	h.gateway.FailKind("template", &notify.APIError{Status: 500, Body: "upstream"})

	report, err := h.engine.Heartbeat(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Retried != 1 {
		t.Fatalf("report = %+v", report)
	}
	got := h.reload(t, tk.ID)
	if got.Status != models.TaskPending || got.AssignmentVersion != 1 || got.AssignedTo != nil {
		t.Errorf("after failure: status=%s v%d assigned_to=%v", got.Status, got.AssignmentVersion, got.AssignedTo)
	}

	h.gateway.FailKind("template", nil)
	h.db.Model(&models.Task{}).Where("id = ?", tk.ID).Update("next_retry_at", time.Now().Add(-time.Minute))

	report, err = h.engine.Heartbeat(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Successful != 1 {
		t.Fatalf("retry report = %+v", report)
	}
	got = h.reload(t, tk.ID)
	if got.Status != models.TaskAssigned || got.AssignmentVersion != 2 {
		t.Errorf("after retry: status=%s v%d, want assigned v2", got.Status, got.AssignmentVersion)
	}
	last := h.gateway.LastSent()
	if last.Template.ButtonPayloads[0] != ActionToken("accept", tk.ID, 2) {
		t.Errorf("payload = %q", last.Template.ButtonPayloads[0])
	}
}

func TestHeartbeat_ConflictReleasesClaimWithoutRetry(t *testing.T) {
	h := newHarness(t)
	h.staff(t, "Amal", "+966500000001", "housekeeping")
	tk := h.task(t, nil)
	h.classifier.hook = func() {
		h.db.Model(&models.Task{}).Where("id = ?", tk.ID).
			Update("assignment_version", gorm.Expr("assignment_version + 1"))
	}

	report, err := h.engine.Heartbeat(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Conflicts != 1 || report.Retried != 0 {
		t.Errorf("report = %+v", report)
	}
	got := h.reload(t, tk.ID)
	if got.RetryCount != 0 || got.ClaimToken != nil || got.Status != models.TaskPending {
		t.Errorf("task = status %s retry %d claim %v", got.Status, got.RetryCount, got.ClaimToken)
	}
}

func TestHeartbeat_ReassignsTimedOutTask(t *testing.T) {
	h := newHarness(t)
	a := h.staff(t, "Amal", "+966500000001", "housekeeping")
	b := h.staff(t, "Badr", "+966500000002", "housekeeping")
	stale := time.Now().Add(-10 * time.Minute)
	tk := h.task(t, func(tk *models.Task) {
		c := "housekeeping"
		tk.Category = &c
		tk.Status = models.TaskAssigned
		tk.AssignedTo = &a.ID
		tk.AssignedAt = &stale
		tk.AssignmentVersion = 1
	})

	report, err := h.engine.Heartbeat(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Timeouts != 1 || report.Reassigned != 1 {
		t.Errorf("report = %+v", report)
	}

	got := h.reload(t, tk.ID)
	if got.AssignedTo == nil || *got.AssignedTo != b.ID || got.AssignmentVersion != 2 {
		t.Errorf("task = assigned_to %v v%d, want %d v2", got.AssignedTo, got.AssignmentVersion, b.ID)
	}
	sent := h.gateway.SentTo(b.ContactAddress)
	if len(sent) != 1 {
		t.Fatalf("sent to B = %d, want 1", len(sent))
	}
	p := sent[0].Template.BodyParams
	if p[1] != "[REASSIGNED] Need fresh towels" || p[2] != "urgent" {
		t.Errorf("params = %q", p)
	}
	if sent[0].Template.ButtonPayloads[0] != ActionToken("accept", tk.ID, 2) {
		t.Errorf("payload = %q", sent[0].Template.ButtonPayloads[0])
	}
	if len(h.alerts.ofType(alert.TypeTimeoutSurge)) != 0 {
		t.Error("single timeout must not raise a surge alert")
	}
}

func TestHeartbeat_SurgeRaisesOneAlert(t *testing.T) {
	h := newHarness(t)
	a := h.staff(t, "Amal", "+966500000001", "housekeeping")
	h.staff(t, "Badr", "+966500000002", "housekeeping")
	stale := time.Now().Add(-10 * time.Minute)
	for i := 0; i < 5; i++ {
		h.task(t, func(tk *models.Task) {
			c := "housekeeping"
			tk.Category = &c
			tk.Status = models.TaskAssigned
			tk.AssignedTo = &a.ID
			tk.AssignedAt = &stale
			tk.AssignmentVersion = 1
		})
	}

	report, err := h.engine.Heartbeat(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Timeouts != 5 {
		t.Errorf("timeouts = %d, want 5", report.Timeouts)
	}
	surges := h.alerts.ofType(alert.TypeTimeoutSurge)
	if len(surges) != 1 {
		t.Fatalf("surge alerts = %d, want 1", len(surges))
	}
	s := surges[0]
	if s.Severity != models.SeverityWarning || s.HotelID != "grand" || s.Metadata["count"] != 5 {
		t.Errorf("surge = %+v", s)
	}
	if s.Message != "5 timeouts in last 2 minutes" {
		t.Errorf("message = %q", s.Message)
	}
}

func TestHeartbeat_ClaimFailureAborts(t *testing.T) {
	h := newHarness(t)
	sqlDB, _ := h.db.DB()
	sqlDB.Close()

	_, err := h.engine.Heartbeat(context.Background())
	if err == nil || !strings.Contains(err.Error(), "claim failed") {
		t.Errorf("err = %v, want claim failure", err)
	}
}

func TestHeartbeat_ClassifierFailureRetries(t *testing.T) {
	h := newHarness(t)
	h.classifier.err = errors.New("gemini api error: 503")
	tk := h.task(t, nil)

	if _, err := h.engine.Heartbeat(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := h.reload(t, tk.ID)
	if got.RetryCount != 1 || !strings.Contains(got.LastError, "gemini api error: 503") {
		t.Errorf("task = retry %d last_error %q", got.RetryCount, got.LastError)
	}
}

func TestActionTokenAndRetryDelay(t *testing.T) {
	if got := ActionToken("accept", 42, 3); got != "accept_42_v3" {
		t.Errorf("ActionToken = %q", got)
	}
	for n, want := range map[int]time.Duration{0: time.Second, 1: 2 * time.Second, 3: 8 * time.Second} {
		if got := RetryDelay(n); got != want {
			t.Errorf("RetryDelay(%d) = %v, want %v", n, got, want)
		}
	}
}
