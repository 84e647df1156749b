package dispute

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Eaziking2002/talent-afro-sub001/internal/notify"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingMailer struct {
	mu     sync.Mutex
	sent   []notify.Email
	failTo string
}

func (m *recordingMailer) Send(ctx context.Context, email notify.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTo != "" && email.To == m.failTo {
		return errors.New("delivery failed")
	}
	m.sent = append(m.sent, email)
	return nil
}

type stubJobs struct{ known map[string]bool }

func (s *stubJobs) Employer(ctx context.Context, jobID string) (string, error) {
	if !s.known[jobID] {
		return "", errors.New("job not found")
	}
	return "usr_employer", nil
}

func newTestService(admins ...string) (*Service, *MemoryStore, *recordingMailer) {
	store := NewMemoryStore()
	mailer := &recordingMailer{}
	jobs := &stubJobs{known: map[string]bool{"job_1": true, "job_2": true, "job_3": true}}
	svc := NewService(store, StaticAdmins(admins), jobs, mailer)
	return svc, store, mailer
}

// openAt backdates a dispute so sweep tests can control its age.
func openAt(t *testing.T, svc *Service, store *MemoryStore, jobID string, createdAt time.Time) *Dispute {
	t.Helper()
	d, err := svc.Open(context.Background(), jobID, "usr_worker", "payment not released")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	d.CreatedAt = createdAt
	if err := store.Update(context.Background(), d); err != nil {
		t.Fatalf("backdate failed: %v", err)
	}
	return d
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService("admin@example.com")

	d, err := svc.Open(ctx, "job_1", "usr_worker", "work delivered, no payment")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if d.Status != StatusOpen {
		t.Errorf("expected open, got %s", d.Status)
	}
	if d.ID == "" || d.CreatedAt.IsZero() {
		t.Error("expected ID and timestamp")
	}

	_, err = svc.Open(ctx, "job_nope", "usr_worker", "reason")
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}

	_, err = svc.Open(ctx, "job_1", "usr_worker", "")
	if !errors.Is(err, ErrEmptyReason) {
		t.Errorf("expected ErrEmptyReason, got %v", err)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService("admin@example.com")

	d, _ := svc.Open(ctx, "job_1", "usr_worker", "no payment")

	resolved, err := svc.Resolve(ctx, d.ID, "usr_admin", "released manually")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.Status != StatusResolved || resolved.ResolvedBy != "usr_admin" {
		t.Errorf("unexpected resolution state: %+v", resolved)
	}
	firstResolvedAt := resolved.ResolvedAt

	// Retried resolve keeps the original outcome
	again, err := svc.Resolve(ctx, d.ID, "usr_other_admin", "different resolution")
	if err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}
	if again.ResolvedBy != "usr_admin" || again.Resolution != "released manually" {
		t.Errorf("retry overwrote resolution: %+v", again)
	}
	if !again.ResolvedAt.Equal(*firstResolvedAt) {
		t.Error("retry changed resolution timestamp")
	}

	_, err = svc.Resolve(ctx, "dsp_missing", "usr_admin", "x")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSweep_RespectsSLA(t *testing.T) {
	ctx := context.Background()
	svc, store, mailer := newTestService("admin@example.com")

	t0 := time.Now().Add(-49 * time.Hour)
	openAt(t, svc, store, "job_1", t0)

	// 47 hours after the dispute opened: inside the SLA, nothing happens
	result, err := svc.RunEscalationSweep(ctx, t0.Add(47*time.Hour))
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if result.Escalated != 0 {
		t.Errorf("expected no escalations at 47h, got %d", result.Escalated)
	}
	if len(mailer.sent) != 0 {
		t.Errorf("expected no email at 47h, got %d", len(mailer.sent))
	}

	// 49 hours after: one escalation, one notification
	result, err = svc.RunEscalationSweep(ctx, t0.Add(49*time.Hour))
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if result.Escalated != 1 {
		t.Errorf("expected 1 escalation at 49h, got %d", result.Escalated)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(mailer.sent))
	}
	if mailer.sent[0].To != "admin@example.com" {
		t.Errorf("email went to %s", mailer.sent[0].To)
	}
}

func TestSweep_RunTwiceEscalatesOnce(t *testing.T) {
	ctx := context.Background()
	svc, store, mailer := newTestService("admin@example.com")

	now := time.Now()
	d := openAt(t, svc, store, "job_1", now.Add(-72*time.Hour))

	first, err := svc.RunEscalationSweep(ctx, now)
	if err != nil {
		t.Fatalf("first sweep failed: %v", err)
	}
	if first.Escalated != 1 {
		t.Fatalf("expected 1 escalation, got %d", first.Escalated)
	}

	second, err := svc.RunEscalationSweep(ctx, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if second.Escalated != 0 {
		t.Errorf("second sweep re-escalated dispute %s", d.ID)
	}
	if len(mailer.sent) != 1 {
		t.Errorf("expected 1 email total, got %d", len(mailer.sent))
	}
}

func TestSweep_LeastLoadedAdmin(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService("a@example.com", "b@example.com")

	now := time.Now()
	openAt(t, svc, store, "job_1", now.Add(-72*time.Hour))
	openAt(t, svc, store, "job_2", now.Add(-71*time.Hour))
	openAt(t, svc, store, "job_3", now.Add(-70*time.Hour))

	result, err := svc.RunEscalationSweep(ctx, now)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if result.Escalated != 3 {
		t.Fatalf("expected 3 escalations, got %d", result.Escalated)
	}

	counts, _ := store.UnresolvedCountByAdmin(ctx)
	if counts["a@example.com"] != 2 || counts["b@example.com"] != 1 {
		t.Errorf("expected 2/1 split across admins, got %v", counts)
	}
}

func TestSweep_NotificationFailureContinues(t *testing.T) {
	ctx := context.Background()
	svc, store, mailer := newTestService("a@example.com", "b@example.com")
	mailer.failTo = "a@example.com"

	now := time.Now()
	openAt(t, svc, store, "job_1", now.Add(-72*time.Hour))
	openAt(t, svc, store, "job_2", now.Add(-71*time.Hour))

	result, err := svc.RunEscalationSweep(ctx, now)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	// Both escalations are recorded even though one email bounced
	if result.Escalated != 2 {
		t.Errorf("expected 2 escalations, got %d", result.Escalated)
	}
	if len(mailer.sent) != 1 {
		t.Errorf("expected 1 delivered email, got %d", len(mailer.sent))
	}
}

func TestSweep_ResolvedDisputeNotEscalated(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService("admin@example.com")

	now := time.Now()
	d := openAt(t, svc, store, "job_1", now.Add(-72*time.Hour))
	svc.Resolve(ctx, d.ID, "usr_admin", "handled")

	result, err := svc.RunEscalationSweep(ctx, now)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if result.Escalated != 0 {
		t.Errorf("resolved dispute was escalated")
	}
}

func TestSweep_NoAdmins(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.RunEscalationSweep(context.Background(), time.Now())
	if !errors.Is(err, ErrNoAdmins) {
		t.Errorf("expected ErrNoAdmins, got %v", err)
	}
}

func TestResolve_ClosesEscalation(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService("admin@example.com")

	now := time.Now()
	d := openAt(t, svc, store, "job_1", now.Add(-72*time.Hour))
	svc.RunEscalationSweep(ctx, now)

	if _, err := store.UnresolvedEscalation(ctx, d.ID); err != nil {
		t.Fatalf("expected an unresolved escalation: %v", err)
	}

	svc.Resolve(ctx, d.ID, "usr_admin", "released")

	if _, err := store.UnresolvedEscalation(ctx, d.ID); err == nil {
		t.Error("escalation should be resolved with the dispute")
	}
}

func TestMonitor_StartStop(t *testing.T) {
	svc, _, _ := newTestService("admin@example.com")
	m := NewMonitor(svc, 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go m.Start(ctx)

	deadline := time.After(time.Second)
	for !m.Running() {
		select {
		case <-deadline:
			t.Fatal("monitor never started")
		case <-time.After(time.Millisecond):
		}
	}

	m.Stop()
	deadline = time.After(time.Second)
	for m.Running() {
		select {
		case <-deadline:
			t.Fatal("monitor never stopped")
		case <-time.After(time.Millisecond):
		}
	}
}
