package escrow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Eaziking2002/talent-afro-sub001/internal/gateway"
)

type mockWallets struct {
	mu       sync.Mutex
	balances map[string]int64
	failNext bool
}

func newMockWallets() *mockWallets {
	return &mockWallets{balances: make(map[string]int64)}
}

func (m *mockWallets) Credit(ctx context.Context, userID string, amount int64, currency, ref, desc string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return errors.New("wallet unavailable")
	}
	m.balances[userID] += amount
	return nil
}

func (m *mockWallets) Debit(ctx context.Context, userID string, amount int64, currency, ref, desc string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[userID] < amount {
		return ErrInsufficientFunds
	}
	m.balances[userID] -= amount
	return nil
}

func (m *mockWallets) balance(userID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID]
}

type mockJobs struct {
	mu        sync.Mutex
	employers map[string]string
	statuses  map[string]string
}

func newMockJobs() *mockJobs {
	return &mockJobs{employers: make(map[string]string), statuses: make(map[string]string)}
}

func (m *mockJobs) add(jobID, employerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employers[jobID] = employerID
	m.statuses[jobID] = "open"
}

func (m *mockJobs) Employer(ctx context.Context, jobID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	emp, ok := m.employers[jobID]
	if !ok {
		return "", ErrJobNotFound
	}
	return emp, nil
}

func (m *mockJobs) MarkInProgress(ctx context.Context, jobID, workerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[jobID] = "in_progress"
	return nil
}

func (m *mockJobs) MarkCompleted(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[jobID] = "completed"
	return nil
}

func (m *mockJobs) status(jobID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statuses[jobID]
}

type failingGateway struct{}

func (f *failingGateway) CreateCharge(ctx context.Context, req gateway.ChargeRequest) (*gateway.Charge, error) {
	return nil, &gateway.Error{Provider: "test", Code: "down", Message: "unavailable"}
}

func (f *failingGateway) CreateTransfer(ctx context.Context, req gateway.TransferRequest) (*gateway.Transfer, error) {
	return nil, &gateway.Error{Provider: "test", Code: "down", Message: "unavailable"}
}

func newTestService() (*Service, *mockWallets, *mockJobs, *gateway.DevGateway) {
	wallets := newMockWallets()
	jobs := newMockJobs()
	gw := gateway.NewDevGateway()
	svc := NewService(NewMemoryStore(), gw, wallets, jobs)
	return svc, wallets, jobs, gw
}

func TestInitializeEscrow(t *testing.T) {
	ctx := context.Background()
	svc, _, jobs, _ := newTestService()
	jobs.add("job_1", "usr_employer")

	tx, err := svc.InitializeEscrow(ctx, InitializeRequest{
		JobID:      "job_1",
		WorkerID:   "usr_worker",
		Amount:     10000,
		Currency:   "USD",
		EmployerID: "usr_employer",
	})
	if err != nil {
		t.Fatalf("InitializeEscrow failed: %v", err)
	}

	if tx.Status != StatusPending {
		t.Errorf("expected pending, got %s", tx.Status)
	}
	if tx.Fee != 1000 || tx.Net != 9000 {
		t.Errorf("expected fee 1000 net 9000, got fee %d net %d", tx.Fee, tx.Net)
	}
	if tx.ExternalRef == "" || tx.CheckoutURL == "" {
		t.Error("expected gateway reference and checkout URL")
	}
}

func TestInitializeEscrow_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _, jobs, _ := newTestService()
	jobs.add("job_1", "usr_employer")

	cases := []struct {
		name    string
		req     InitializeRequest
		wantErr error
	}{
		{"zero amount", InitializeRequest{JobID: "job_1", Amount: 0, Currency: "USD", EmployerID: "usr_employer"}, ErrInvalidAmount},
		{"negative amount", InitializeRequest{JobID: "job_1", Amount: -100, Currency: "USD", EmployerID: "usr_employer"}, ErrInvalidAmount},
		{"bad currency", InitializeRequest{JobID: "job_1", Amount: 100, Currency: "XXX", EmployerID: "usr_employer"}, ErrUnsupportedCurrency},
		{"unknown job", InitializeRequest{JobID: "job_nope", Amount: 100, Currency: "USD", EmployerID: "usr_employer"}, ErrJobNotFound},
		{"not employer", InitializeRequest{JobID: "job_1", Amount: 100, Currency: "USD", EmployerID: "usr_other"}, ErrNotEmployer},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.InitializeEscrow(ctx, tc.req)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestInitializeEscrow_GatewayFailure(t *testing.T) {
	ctx := context.Background()
	wallets := newMockWallets()
	jobs := newMockJobs()
	jobs.add("job_1", "usr_employer")
	store := NewMemoryStore()
	svc := NewService(store, &failingGateway{}, wallets, jobs)

	_, err := svc.InitializeEscrow(ctx, InitializeRequest{
		JobID: "job_1", WorkerID: "usr_worker", Amount: 5000, Currency: "USD", EmployerID: "usr_employer",
	})
	var gwErr *gateway.Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected gateway error, got %v", err)
	}

	// Nothing persisted on gateway failure
	txs, _ := store.ListByUser(ctx, "usr_employer", 10)
	if len(txs) != 0 {
		t.Errorf("expected no transactions, got %d", len(txs))
	}
}

func TestConfirmEscrow_FullLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, wallets, jobs, _ := newTestService()
	jobs.add("job_1", "usr_employer")

	tx, err := svc.InitializeEscrow(ctx, InitializeRequest{
		JobID: "job_1", WorkerID: "usr_worker", Amount: 10000, Currency: "USD", EmployerID: "usr_employer",
	})
	if err != nil {
		t.Fatalf("InitializeEscrow failed: %v", err)
	}

	confirmed, err := svc.ConfirmEscrow(ctx, tx.ExternalRef, true, "")
	if err != nil {
		t.Fatalf("ConfirmEscrow failed: %v", err)
	}
	if confirmed.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", confirmed.Status)
	}
	if confirmed.CompletedAt == nil {
		t.Error("expected completedAt set")
	}
	if jobs.status("job_1") != "in_progress" {
		t.Errorf("expected job in_progress, got %s", jobs.status("job_1"))
	}

	rel, err := svc.ReleaseEscrow(ctx, "job_1", "usr_employer")
	if err != nil {
		t.Fatalf("ReleaseEscrow failed: %v", err)
	}
	if rel.Status != StatusCompleted {
		t.Errorf("expected completed release, got %s", rel.Status)
	}
	if got := wallets.balance("usr_worker"); got != 9000 {
		t.Errorf("expected worker balance 9000, got %d", got)
	}
	if jobs.status("job_1") != "completed" {
		t.Errorf("expected job completed, got %s", jobs.status("job_1"))
	}
}

func TestConfirmEscrow_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc, _, jobs, _ := newTestService()
	jobs.add("job_1", "usr_employer")

	tx, _ := svc.InitializeEscrow(ctx, InitializeRequest{
		JobID: "job_1", WorkerID: "usr_worker", Amount: 10000, Currency: "USD", EmployerID: "usr_employer",
	})

	first, err := svc.ConfirmEscrow(ctx, tx.ExternalRef, true, "")
	if err != nil {
		t.Fatalf("first confirm failed: %v", err)
	}

	// Replayed webhook against a terminal transaction is a no-op
	replay, err := svc.ConfirmEscrow(ctx, tx.ExternalRef, false, "late failure event")
	if err != nil {
		t.Fatalf("replay confirm failed: %v", err)
	}
	if replay.Status != StatusCompleted {
		t.Errorf("replay changed status to %s", replay.Status)
	}
	if replay.FailureReason != "" {
		t.Errorf("replay set failure reason %q", replay.FailureReason)
	}
	if first.CompletedAt == nil || replay.CompletedAt == nil ||
		!first.CompletedAt.Equal(*replay.CompletedAt) {
		t.Error("replay altered completion timestamp")
	}
}

func TestConfirmEscrow_Failure(t *testing.T) {
	ctx := context.Background()
	svc, _, jobs, _ := newTestService()
	jobs.add("job_1", "usr_employer")

	tx, _ := svc.InitializeEscrow(ctx, InitializeRequest{
		JobID: "job_1", WorkerID: "usr_worker", Amount: 10000, Currency: "USD", EmployerID: "usr_employer",
	})

	failed, err := svc.ConfirmEscrow(ctx, tx.ExternalRef, false, "card_declined")
	if err != nil {
		t.Fatalf("ConfirmEscrow failed: %v", err)
	}
	if failed.Status != StatusFailed {
		t.Errorf("expected failed, got %s", failed.Status)
	}
	if failed.FailureReason != "card_declined" {
		t.Errorf("expected failure reason, got %q", failed.FailureReason)
	}
	if jobs.status("job_1") != "open" {
		t.Errorf("failed payment should not advance the job, got %s", jobs.status("job_1"))
	}
}

func TestReleaseEscrow_Guards(t *testing.T) {
	ctx := context.Background()
	svc, _, jobs, _ := newTestService()
	jobs.add("job_1", "usr_employer")

	// No funded escrow yet
	_, err := svc.ReleaseEscrow(ctx, "job_1", "usr_employer")
	if !errors.Is(err, ErrEscrowNotFunded) {
		t.Errorf("expected ErrEscrowNotFunded, got %v", err)
	}

	tx, _ := svc.InitializeEscrow(ctx, InitializeRequest{
		JobID: "job_1", WorkerID: "usr_worker", Amount: 10000, Currency: "USD", EmployerID: "usr_employer",
	})

	// Pending escrow is not releasable
	_, err = svc.ReleaseEscrow(ctx, "job_1", "usr_employer")
	if !errors.Is(err, ErrEscrowNotFunded) {
		t.Errorf("expected ErrEscrowNotFunded while pending, got %v", err)
	}

	svc.ConfirmEscrow(ctx, tx.ExternalRef, true, "")

	// Only the employer may release
	_, err = svc.ReleaseEscrow(ctx, "job_1", "usr_worker")
	if !errors.Is(err, ErrNotEmployer) {
		t.Errorf("expected ErrNotEmployer, got %v", err)
	}

	if _, err := svc.ReleaseEscrow(ctx, "job_1", "usr_employer"); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	// Second release is rejected
	_, err = svc.ReleaseEscrow(ctx, "job_1", "usr_employer")
	if !errors.Is(err, ErrAlreadyReleased) {
		t.Errorf("expected ErrAlreadyReleased, got %v", err)
	}
}

func TestReleaseEscrow_CreditRetries(t *testing.T) {
	ctx := context.Background()
	svc, wallets, jobs, _ := newTestService()
	jobs.add("job_1", "usr_employer")

	tx, _ := svc.InitializeEscrow(ctx, InitializeRequest{
		JobID: "job_1", WorkerID: "usr_worker", Amount: 10000, Currency: "USD", EmployerID: "usr_employer",
	})
	svc.ConfirmEscrow(ctx, tx.ExternalRef, true, "")

	// First credit attempt fails, the retry succeeds
	wallets.failNext = true
	rel, err := svc.ReleaseEscrow(ctx, "job_1", "usr_employer")
	if err != nil {
		t.Fatalf("release should survive one credit failure: %v", err)
	}
	if rel.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", rel.Status)
	}
	if got := wallets.balance("usr_worker"); got != 9000 {
		t.Errorf("expected balance 9000, got %d", got)
	}
}

type outageReleaseStore struct {
	Store
	err error
}

func (s *outageReleaseStore) ReleaseForJob(ctx context.Context, jobID string) (*Transaction, error) {
	return nil, s.err
}

func TestReleaseEscrow_StoreOutageSurfaces(t *testing.T) {
	ctx := context.Background()
	wallets := newMockWallets()
	jobs := newMockJobs()
	jobs.add("job_1", "usr_employer")
	mem := NewMemoryStore()
	svc := NewService(mem, gateway.NewDevGateway(), wallets, jobs)

	tx, _ := svc.InitializeEscrow(ctx, InitializeRequest{
		JobID: "job_1", WorkerID: "usr_worker", Amount: 10000, Currency: "USD", EmployerID: "usr_employer",
	})
	svc.ConfirmEscrow(ctx, tx.ExternalRef, true, "")

	// A failing release lookup is not the same as "no release yet": the
	// flow must stop instead of risking a duplicate payout attempt.
	outage := errors.New("connection refused")
	broken := NewService(&outageReleaseStore{Store: mem, err: outage}, gateway.NewDevGateway(), wallets, jobs)

	_, err := broken.ReleaseEscrow(ctx, "job_1", "usr_employer")
	if !errors.Is(err, outage) {
		t.Fatalf("expected the store error to surface, got %v", err)
	}
	if got := wallets.balance("usr_worker"); got != 0 {
		t.Errorf("expected no credit during the outage, got %d", got)
	}
}

func TestWithdrawPayout_FailClosed(t *testing.T) {
	ctx := context.Background()
	svc, wallets, _, _ := newTestService()

	// Insufficient funds blocks the withdrawal before any gateway call
	_, err := svc.WithdrawPayout(ctx, "usr_worker", 5000, "USD")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}

	wallets.balances["usr_worker"] = 9000
	tx, err := svc.WithdrawPayout(ctx, "usr_worker", 5000, "USD")
	if err != nil {
		t.Fatalf("WithdrawPayout failed: %v", err)
	}
	if tx.Status != StatusPending {
		t.Errorf("expected pending, got %s", tx.Status)
	}
	if got := wallets.balance("usr_worker"); got != 4000 {
		t.Errorf("expected balance debited to 4000, got %d", got)
	}
}

func TestWithdrawPayout_GatewayFailureRefunds(t *testing.T) {
	ctx := context.Background()
	wallets := newMockWallets()
	wallets.balances["usr_worker"] = 9000
	svc := NewService(NewMemoryStore(), &failingGateway{}, wallets, newMockJobs())

	_, err := svc.WithdrawPayout(ctx, "usr_worker", 5000, "USD")
	var gwErr *gateway.Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if got := wallets.balance("usr_worker"); got != 9000 {
		t.Errorf("expected refund to restore balance 9000, got %d", got)
	}
}

func TestPayoutSettlement(t *testing.T) {
	ctx := context.Background()
	svc, wallets, _, _ := newTestService()
	wallets.balances["usr_worker"] = 9000

	tx, err := svc.WithdrawPayout(ctx, "usr_worker", 5000, "USD")
	if err != nil {
		t.Fatalf("WithdrawPayout failed: %v", err)
	}

	done, err := svc.CompletePayout(ctx, tx.ExternalRef)
	if err != nil {
		t.Fatalf("CompletePayout failed: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", done.Status)
	}

	// Replay is a no-op
	again, err := svc.CompletePayout(ctx, tx.ExternalRef)
	if err != nil || again.Status != StatusCompleted {
		t.Errorf("replay should succeed unchanged, got %v / %s", err, again.Status)
	}
}

func TestFailPayout_RefundsWallet(t *testing.T) {
	ctx := context.Background()
	svc, wallets, _, _ := newTestService()
	wallets.balances["usr_worker"] = 9000

	tx, _ := svc.WithdrawPayout(ctx, "usr_worker", 5000, "USD")
	if got := wallets.balance("usr_worker"); got != 4000 {
		t.Fatalf("expected balance 4000 after debit, got %d", got)
	}

	failed, err := svc.FailPayout(ctx, tx.ExternalRef, "bank rejected")
	if err != nil {
		t.Fatalf("FailPayout failed: %v", err)
	}
	if failed.Status != StatusFailed {
		t.Errorf("expected failed, got %s", failed.Status)
	}
	if got := wallets.balance("usr_worker"); got != 9000 {
		t.Errorf("expected refund to 9000, got %d", got)
	}

	// Replayed failure must not refund twice
	svc.FailPayout(ctx, tx.ExternalRef, "bank rejected")
	if got := wallets.balance("usr_worker"); got != 9000 {
		t.Errorf("replay double-refunded, balance %d", got)
	}
}

func TestProofLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _, jobs, _ := newTestService()
	jobs.add("job_1", "usr_employer")

	tx, _ := svc.InitializeEscrow(ctx, InitializeRequest{
		JobID: "job_1", WorkerID: "usr_worker", Amount: 10000, Currency: "USD", EmployerID: "usr_employer",
	})

	// Only the paying employer may attach payment evidence
	_, err := svc.SubmitProof(ctx, tx.ID, "usr_worker", "https://example.com/receipt", "")
	if !errors.Is(err, ErrNotEmployer) {
		t.Errorf("expected ErrNotEmployer, got %v", err)
	}

	proof, err := svc.SubmitProof(ctx, tx.ID, "usr_employer", "https://example.com/receipt", "bank transfer ref 123")
	if err != nil {
		t.Fatalf("SubmitProof failed: %v", err)
	}
	if proof.Status != ProofPending {
		t.Errorf("expected pending, got %s", proof.Status)
	}

	// Pending proofs may be amended in place
	amended, err := svc.SubmitProof(ctx, tx.ID, "usr_employer", "https://example.com/receipt-v2", "corrected ref")
	if err != nil {
		t.Fatalf("amend failed: %v", err)
	}
	if amended.ID != proof.ID {
		t.Errorf("amend created a new proof %s", amended.ID)
	}
	if amended.URL != "https://example.com/receipt-v2" {
		t.Errorf("amend did not update URL: %s", amended.URL)
	}

	verified, err := svc.VerifyProof(ctx, proof.ID, "usr_admin", true, "looks good")
	if err != nil {
		t.Fatalf("VerifyProof failed: %v", err)
	}
	if verified.Status != ProofVerified {
		t.Errorf("expected verified, got %s", verified.Status)
	}
	if verified.ReviewedBy != "usr_admin" || verified.ReviewedAt == nil {
		t.Error("expected reviewer metadata")
	}

	// Decisions are one-shot
	_, err = svc.VerifyProof(ctx, proof.ID, "usr_admin", false, "changed my mind")
	if !errors.Is(err, ErrProofDecided) {
		t.Errorf("expected ErrProofDecided, got %v", err)
	}
	_, err = svc.SubmitProof(ctx, tx.ID, "usr_employer", "https://example.com/receipt-v3", "")
	if !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus on settled escrow, got %v", err)
	}
}

func TestVerifyProof_ApproveFundsEscrow(t *testing.T) {
	ctx := context.Background()
	svc, _, jobs, _ := newTestService()
	jobs.add("job_1", "usr_employer")

	tx, _ := svc.InitializeEscrow(ctx, InitializeRequest{
		JobID: "job_1", WorkerID: "usr_worker", Amount: 10000, Currency: "USD", EmployerID: "usr_employer",
	})
	proof, _ := svc.SubmitProof(ctx, tx.ID, "usr_employer", "https://example.com/receipt", "")

	if _, err := svc.VerifyProof(ctx, proof.ID, "usr_admin", true, ""); err != nil {
		t.Fatalf("VerifyProof failed: %v", err)
	}

	// Approval settles the escrow exactly like a successful webhook
	got, _ := svc.Get(ctx, tx.ID)
	if got.Status != StatusCompleted {
		t.Errorf("expected completed transaction, got %s", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}
	if status := jobs.status("job_1"); status != "in_progress" {
		t.Errorf("expected job in_progress, got %s", status)
	}

	// And the job is now releasable
	rel, err := svc.ReleaseEscrow(ctx, "job_1", "usr_employer")
	if err != nil {
		t.Fatalf("release after manual funding failed: %v", err)
	}
	if rel.Net != 9000 {
		t.Errorf("expected net 9000, got %d", rel.Net)
	}
}

func TestVerifyProof_RejectFailsEscrow(t *testing.T) {
	ctx := context.Background()
	svc, _, jobs, _ := newTestService()
	jobs.add("job_1", "usr_employer")

	tx, _ := svc.InitializeEscrow(ctx, InitializeRequest{
		JobID: "job_1", WorkerID: "usr_worker", Amount: 10000, Currency: "USD", EmployerID: "usr_employer",
	})
	proof, _ := svc.SubmitProof(ctx, tx.ID, "usr_employer", "https://example.com/receipt", "")

	rejected, err := svc.VerifyProof(ctx, proof.ID, "usr_admin", false, "incomplete")
	if err != nil {
		t.Fatalf("VerifyProof failed: %v", err)
	}
	if rejected.Status != ProofRejected {
		t.Errorf("expected rejected, got %s", rejected.Status)
	}

	got, _ := svc.Get(ctx, tx.ID)
	if got.Status != StatusFailed {
		t.Errorf("expected failed transaction, got %s", got.Status)
	}
	if got.FailureReason != "payment proof rejected: incomplete" {
		t.Errorf("unexpected failure reason %q", got.FailureReason)
	}
	if status := jobs.status("job_1"); status != "open" {
		t.Errorf("expected job to stay open, got %s", status)
	}
}

func TestVerifyProof_WebhookSettledFirst(t *testing.T) {
	ctx := context.Background()
	svc, _, jobs, _ := newTestService()
	jobs.add("job_1", "usr_employer")

	tx, _ := svc.InitializeEscrow(ctx, InitializeRequest{
		JobID: "job_1", WorkerID: "usr_worker", Amount: 10000, Currency: "USD", EmployerID: "usr_employer",
	})
	proof, _ := svc.SubmitProof(ctx, tx.ID, "usr_employer", "https://example.com/receipt", "")

	// The gateway webhook lands while the proof is still under review.
	svc.ConfirmEscrow(ctx, tx.ExternalRef, true, "")

	decided, err := svc.VerifyProof(ctx, proof.ID, "usr_admin", false, "not needed")
	if err != nil {
		t.Fatalf("VerifyProof failed: %v", err)
	}
	if decided.Status != ProofRejected {
		t.Errorf("expected rejected proof, got %s", decided.Status)
	}

	// The settled transaction is untouched by the late decision.
	got, _ := svc.Get(ctx, tx.ID)
	if got.Status != StatusCompleted {
		t.Errorf("expected completed transaction, got %s", got.Status)
	}
}

func TestListByUser(t *testing.T) {
	ctx := context.Background()
	svc, _, jobs, _ := newTestService()
	jobs.add("job_1", "usr_employer")
	jobs.add("job_2", "usr_employer")

	svc.InitializeEscrow(ctx, InitializeRequest{
		JobID: "job_1", WorkerID: "usr_worker", Amount: 1000, Currency: "USD", EmployerID: "usr_employer",
	})
	svc.InitializeEscrow(ctx, InitializeRequest{
		JobID: "job_2", WorkerID: "usr_other", Amount: 2000, Currency: "USD", EmployerID: "usr_employer",
	})

	employerTxs, err := svc.ListByUser(ctx, "usr_employer", 0)
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(employerTxs) != 2 {
		t.Errorf("expected 2 transactions for employer, got %d", len(employerTxs))
	}

	workerTxs, _ := svc.ListByUser(ctx, "usr_worker", 0)
	if len(workerTxs) != 1 {
		t.Errorf("expected 1 transaction for worker, got %d", len(workerTxs))
	}
}

func TestMemoryStore_SumByTypeStatus(t *testing.T) {
	ctx := context.Background()
	svc, _, jobs, _ := newTestService()
	jobs.add("job_1", "usr_employer")
	jobs.add("job_2", "usr_employer")

	tx1, _ := svc.InitializeEscrow(ctx, InitializeRequest{
		JobID: "job_1", WorkerID: "usr_worker", Amount: 10000, Currency: "USD", EmployerID: "usr_employer",
	})
	svc.InitializeEscrow(ctx, InitializeRequest{
		JobID: "job_2", WorkerID: "usr_worker", Amount: 7000, Currency: "USD", EmployerID: "usr_employer",
	})
	svc.ConfirmEscrow(ctx, tx1.ExternalRef, true, "")

	completed, err := svc.store.SumByTypeStatus(ctx, TypeEscrow, StatusCompleted)
	if err != nil {
		t.Fatalf("SumByTypeStatus failed: %v", err)
	}
	if completed["USD"].Amount != 10000 || completed["USD"].Net != 9000 {
		t.Errorf("expected 10000/9000 completed escrow, got %+v", completed["USD"])
	}

	pending, _ := svc.store.SumByTypeStatus(ctx, TypeEscrow, StatusPending)
	if pending["USD"].Amount != 7000 {
		t.Errorf("expected 7000 pending escrow, got %d", pending["USD"].Amount)
	}
}
