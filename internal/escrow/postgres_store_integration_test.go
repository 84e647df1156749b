//go:build integration

package escrow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Eaziking2002/talent-afro-sub001/internal/testutil"
)

func testTx(id, jobID, txType, status, currency string, amount int64) *Transaction {
	now := time.Now().UTC().Truncate(time.Millisecond)
	fee := amount / 10
	return &Transaction{
		ID:         id,
		JobID:      jobID,
		EmployerID: "usr_employer",
		WorkerID:   "usr_worker",
		Type:       txType,
		Amount:     amount,
		Fee:        fee,
		Net:        amount - fee,
		Currency:   currency,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestPostgresStore_TransactionRoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	tx := testTx("tx_pg_1", "job_pg_1", TypeEscrow, StatusPending, "USD", 10000)
	tx.ExternalRef = "ch_pg_1"
	tx.CheckoutURL = "https://checkout.example/ch_pg_1"
	tx.Description = "escrow for logo design"

	if err := store.CreateTransaction(ctx, tx); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	got, err := store.GetTransaction(ctx, "tx_pg_1")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if got.Amount != 10000 || got.Fee != 1000 || got.Net != 9000 {
		t.Errorf("amounts: got %d/%d/%d", got.Amount, got.Fee, got.Net)
	}
	if got.ExternalRef != "ch_pg_1" || got.CheckoutURL == "" {
		t.Errorf("gateway fields lost: %+v", got)
	}
	if got.CompletedAt != nil {
		t.Error("pending transaction should have no completion time")
	}

	byRef, err := store.GetByExternalRef(ctx, "ch_pg_1")
	if err != nil || byRef.ID != "tx_pg_1" {
		t.Fatalf("GetByExternalRef: %v %+v", err, byRef)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	got.Status = StatusCompleted
	got.CompletedAt = &now
	got.UpdatedAt = now
	if err := store.UpdateTransaction(ctx, got); err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}

	again, _ := store.GetTransaction(ctx, "tx_pg_1")
	if again.Status != StatusCompleted || again.CompletedAt == nil {
		t.Errorf("update not persisted: %+v", again)
	}

	if _, err := store.GetTransaction(ctx, "tx_missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing transaction: got %v, want ErrNotFound", err)
	}
}

func TestPostgresStore_OneReleasePerJob(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	first := testTx("tx_rel_1", "job_rel", TypeRelease, StatusCompleted, "USD", 10000)
	if err := store.CreateTransaction(ctx, first); err != nil {
		t.Fatalf("first release: %v", err)
	}

	second := testTx("tx_rel_2", "job_rel", TypeRelease, StatusPending, "USD", 10000)
	if err := store.CreateTransaction(ctx, second); !errors.Is(err, ErrAlreadyReleased) {
		t.Fatalf("second release: got %v, want ErrAlreadyReleased", err)
	}

	// A failed release does not occupy the slot.
	failed := testTx("tx_rel_3", "job_rel_2", TypeRelease, StatusFailed, "USD", 10000)
	if err := store.CreateTransaction(ctx, failed); err != nil {
		t.Fatalf("failed release: %v", err)
	}
	retry := testTx("tx_rel_4", "job_rel_2", TypeRelease, StatusCompleted, "USD", 10000)
	if err := store.CreateTransaction(ctx, retry); err != nil {
		t.Fatalf("release after failed attempt: %v", err)
	}
}

func TestPostgresStore_QueriesByJob(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	escrowTx := testTx("tx_q_1", "job_q", TypeEscrow, StatusCompleted, "USD", 10000)
	releaseTx := testTx("tx_q_2", "job_q", TypeRelease, StatusCompleted, "USD", 10000)
	for _, tx := range []*Transaction{escrowTx, releaseTx} {
		if err := store.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("create %s: %v", tx.ID, err)
		}
	}

	got, err := store.CompletedEscrowForJob(ctx, "job_q")
	if err != nil || got.ID != "tx_q_1" {
		t.Errorf("CompletedEscrowForJob: %v %+v", err, got)
	}

	rel, err := store.ReleaseForJob(ctx, "job_q")
	if err != nil || rel.ID != "tx_q_2" {
		t.Errorf("ReleaseForJob: %v %+v", err, rel)
	}

	if _, err := store.CompletedEscrowForJob(ctx, "job_other"); !errors.Is(err, ErrNotFound) {
		t.Errorf("no escrow: got %v, want ErrNotFound", err)
	}
}

func TestPostgresStore_SumByTypeStatus(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	fixtures := []*Transaction{
		testTx("tx_s_1", "job_s1", TypeRelease, StatusCompleted, "USD", 10000),
		testTx("tx_s_2", "job_s2", TypeRelease, StatusCompleted, "USD", 20000),
		testTx("tx_s_3", "job_s3", TypeRelease, StatusCompleted, "NGN", 50000),
		testTx("tx_s_4", "job_s4", TypeRelease, StatusFailed, "USD", 70000),
	}
	for _, tx := range fixtures {
		if err := store.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("create %s: %v", tx.ID, err)
		}
	}

	sums, err := store.SumByTypeStatus(ctx, TypeRelease, StatusCompleted)
	if err != nil {
		t.Fatalf("SumByTypeStatus: %v", err)
	}
	if got := sums["USD"]; got.Amount != 30000 || got.Net != 27000 {
		t.Errorf("USD: got %+v, want 30000/27000", got)
	}
	if got := sums["NGN"]; got.Amount != 50000 || got.Net != 45000 {
		t.Errorf("NGN: got %+v, want 50000/45000", got)
	}
	if _, ok := sums["EUR"]; ok {
		t.Error("EUR should be absent")
	}
}

func TestPostgresStore_ProofRoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	tx := testTx("tx_pr_1", "job_pr", TypeEscrow, StatusPending, "USD", 10000)
	if err := store.CreateTransaction(ctx, tx); err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	p := &Proof{
		ID:            "prf_pg_1",
		TransactionID: "tx_pr_1",
		SubmittedBy:   "usr_employer",
		URL:           "https://files.example/receipt.png",
		Note:          "bank transfer completed",
		Status:        ProofPending,
		SubmittedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := store.CreateProof(ctx, p); err != nil {
		t.Fatalf("CreateProof: %v", err)
	}

	got, err := store.ProofForTransaction(ctx, "tx_pr_1")
	if err != nil || got.ID != "prf_pg_1" {
		t.Fatalf("ProofForTransaction: %v %+v", err, got)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	got.Status = ProofVerified
	got.ReviewedBy = "usr_admin"
	got.ReviewedAt = &now
	if err := store.UpdateProof(ctx, got); err != nil {
		t.Fatalf("UpdateProof: %v", err)
	}

	again, _ := store.GetProof(ctx, "prf_pg_1")
	if again.Status != ProofVerified || again.ReviewedBy != "usr_admin" {
		t.Errorf("review not persisted: %+v", again)
	}

	if _, err := store.GetProof(ctx, "prf_missing"); !errors.Is(err, ErrProofNotFound) {
		t.Errorf("missing proof: got %v, want ErrProofNotFound", err)
	}
}
