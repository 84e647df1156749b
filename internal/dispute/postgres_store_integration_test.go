//go:build integration

package dispute

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Eaziking2002/talent-afro-sub001/internal/testutil"
)

func testDispute(id string, age time.Duration) *Dispute {
	return &Dispute{
		ID:        id,
		JobID:     "job_" + id,
		RaisedBy:  "usr_worker",
		Reason:    "work delivered, employer silent",
		Status:    StatusOpen,
		CreatedAt: time.Now().Add(-age).UTC().Truncate(time.Millisecond),
	}
}

func TestPostgresStore_DisputeRoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	d := testDispute("dsp_pg_1", 0)
	if err := store.Create(ctx, d); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Get(ctx, "dsp_pg_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusOpen || got.Reason != d.Reason {
		t.Errorf("round trip: %+v", got)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	got.Status = StatusResolved
	got.Resolution = "refunded"
	got.ResolvedBy = "usr_admin"
	got.ResolvedAt = &now
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}

	again, _ := store.Get(ctx, "dsp_pg_1")
	if again.Status != StatusResolved || again.ResolvedAt == nil || again.ResolvedBy != "usr_admin" {
		t.Errorf("resolution not persisted: %+v", again)
	}

	if _, err := store.Get(ctx, "dsp_missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing dispute: got %v, want ErrNotFound", err)
	}
}

func TestPostgresStore_OpenOlderThan(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	fresh := testDispute("dsp_fresh", time.Hour)
	stale := testDispute("dsp_stale", 72*time.Hour)
	resolvedStale := testDispute("dsp_resolved", 72*time.Hour)
	resolvedStale.Status = StatusResolved

	for _, d := range []*Dispute{fresh, stale, resolvedStale} {
		if err := store.Create(ctx, d); err != nil {
			t.Fatalf("create %s: %v", d.ID, err)
		}
	}

	overdue, err := store.OpenOlderThan(ctx, time.Now().Add(-EscalationSLA), 100)
	if err != nil {
		t.Fatalf("OpenOlderThan: %v", err)
	}
	if len(overdue) != 1 || overdue[0].ID != "dsp_stale" {
		t.Fatalf("overdue: got %+v, want only dsp_stale", overdue)
	}
}

func TestPostgresStore_OneUnresolvedEscalation(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	d := testDispute("dsp_esc", 72*time.Hour)
	if err := store.Create(ctx, d); err != nil {
		t.Fatalf("create dispute: %v", err)
	}

	first := &Escalation{
		ID:          "esc_pg_1",
		DisputeID:   d.ID,
		EscalatedTo: "admin@talentafro.example",
		EscalatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := store.CreateEscalation(ctx, first); err != nil {
		t.Fatalf("first escalation: %v", err)
	}

	dup := &Escalation{
		ID:          "esc_pg_2",
		DisputeID:   d.ID,
		EscalatedTo: "other@talentafro.example",
		EscalatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := store.CreateEscalation(ctx, dup); err == nil {
		t.Fatal("second unresolved escalation should be rejected")
	}

	counts, err := store.UnresolvedCountByAdmin(ctx)
	if err != nil {
		t.Fatalf("UnresolvedCountByAdmin: %v", err)
	}
	if counts["admin@talentafro.example"] != 1 {
		t.Errorf("counts: got %+v", counts)
	}

	// Resolving frees the slot.
	if err := store.ResolveEscalations(ctx, d.ID, time.Now()); err != nil {
		t.Fatalf("ResolveEscalations: %v", err)
	}
	if _, err := store.UnresolvedEscalation(ctx, d.ID); err == nil {
		t.Error("escalation should be resolved")
	}
	if err := store.CreateEscalation(ctx, dup); err != nil {
		t.Errorf("escalation after resolve: %v", err)
	}

	counts, _ = store.UnresolvedCountByAdmin(ctx)
	if counts["other@talentafro.example"] != 1 || counts["admin@talentafro.example"] != 0 {
		t.Errorf("counts after resolve: got %+v", counts)
	}
}
