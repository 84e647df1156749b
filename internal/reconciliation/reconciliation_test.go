package reconciliation

import (
	"context"
	"testing"

	"github.com/Eaziking2002/talent-afro-sub001/internal/escrow"
	"github.com/Eaziking2002/talent-afro-sub001/internal/gateway"
	"github.com/Eaziking2002/talent-afro-sub001/internal/jobs"
	"github.com/Eaziking2002/talent-afro-sub001/internal/wallet"
)

// fixture wires real in-memory stores so reconciliation sees the same state
// transitions production would produce.
type fixture struct {
	escrowSvc  *escrow.Service
	escrowSt   *escrow.MemoryStore
	walletSt   *wallet.MemoryStore
	jobsSvc    *jobs.Service
	reconciler *Service
}

type walletAdapter struct{ svc *wallet.Service }

func (a walletAdapter) Credit(ctx context.Context, userID string, amount int64, currency, ref, desc string) error {
	return a.svc.Credit(ctx, userID, amount, currency, ref, desc)
}

func (a walletAdapter) Debit(ctx context.Context, userID string, amount int64, currency, ref, desc string) error {
	return a.svc.Debit(ctx, userID, amount, currency, ref, desc)
}

type jobsAdapter struct{ svc *jobs.Service }

func (a jobsAdapter) Employer(ctx context.Context, jobID string) (string, error) {
	emp, err := a.svc.Employer(ctx, jobID)
	if err != nil {
		return "", escrow.ErrJobNotFound
	}
	return emp, nil
}

func (a jobsAdapter) MarkInProgress(ctx context.Context, jobID, workerID string) error {
	return a.svc.MarkInProgress(ctx, jobID, workerID)
}

func (a jobsAdapter) MarkCompleted(ctx context.Context, jobID string) error {
	return a.svc.MarkCompleted(ctx, jobID)
}

func newFixture() *fixture {
	escrowSt := escrow.NewMemoryStore()
	walletSt := wallet.NewMemoryStore()
	walletSvc := wallet.NewService(walletSt)
	jobsSvc := jobs.NewService(jobs.NewMemoryStore())

	escrowSvc := escrow.NewService(escrowSt, gateway.NewDevGateway(),
		walletAdapter{walletSvc}, jobsAdapter{jobsSvc})

	return &fixture{
		escrowSvc:  escrowSvc,
		escrowSt:   escrowSt,
		walletSt:   walletSt,
		jobsSvc:    jobsSvc,
		reconciler: NewService(escrowSt, walletSt),
	}
}

func (f *fixture) fundAndRelease(t *testing.T, employerID, workerID string, amount int64) {
	t.Helper()
	ctx := context.Background()

	job, err := f.jobsSvc.Create(ctx, employerID, "test job", amount, "USD")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	tx, err := f.escrowSvc.InitializeEscrow(ctx, escrow.InitializeRequest{
		JobID: job.ID, WorkerID: workerID, Amount: amount, Currency: "USD", EmployerID: employerID,
	})
	if err != nil {
		t.Fatalf("initialize escrow: %v", err)
	}
	if _, err := f.escrowSvc.ConfirmEscrow(ctx, tx.ExternalRef, true, ""); err != nil {
		t.Fatalf("confirm escrow: %v", err)
	}
	if _, err := f.escrowSvc.ReleaseEscrow(ctx, job.ID, employerID); err != nil {
		t.Fatalf("release escrow: %v", err)
	}
}

func TestRun_EmptyLedgerBalances(t *testing.T) {
	f := newFixture()

	result, err := f.reconciler.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !result.Balanced {
		t.Errorf("empty ledger should balance: %+v", result.Discrepancies)
	}
}

func TestRun_BalancedAfterLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	f.fundAndRelease(t, "usr_employer", "usr_worker", 10000)
	f.fundAndRelease(t, "usr_employer", "usr_worker2", 7500)

	result, err := f.reconciler.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !result.Balanced {
		t.Errorf("releases alone should balance: %+v", result.Discrepancies)
	}

	// A pending payout moves funds out of wallets and into transit
	if _, err := f.escrowSvc.WithdrawPayout(ctx, "usr_worker", 5000, "USD"); err != nil {
		t.Fatalf("withdraw payout: %v", err)
	}

	result, err = f.reconciler.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !result.Balanced {
		t.Errorf("pending payout should balance: %+v", result.Discrepancies)
	}
}

func TestRun_BalancedAfterFailedPayoutRefund(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	f.fundAndRelease(t, "usr_employer", "usr_worker", 10000)

	tx, err := f.escrowSvc.WithdrawPayout(ctx, "usr_worker", 5000, "USD")
	if err != nil {
		t.Fatalf("withdraw payout: %v", err)
	}
	if _, err := f.escrowSvc.FailPayout(ctx, tx.ExternalRef, "bank rejected"); err != nil {
		t.Fatalf("fail payout: %v", err)
	}

	result, err := f.reconciler.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !result.Balanced {
		t.Errorf("refunded payout should balance: %+v", result.Discrepancies)
	}
}

func TestRun_DetectsDrift(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	f.fundAndRelease(t, "usr_employer", "usr_worker", 10000)

	// Inject money that no transaction accounts for
	f.walletSt.Credit(ctx, "usr_worker", 1234, "USD", "", "phantom credit")

	result, err := f.reconciler.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Balanced {
		t.Fatal("expected drift to be detected")
	}
	if len(result.Discrepancies) != 1 {
		t.Fatalf("expected 1 discrepancy, got %d", len(result.Discrepancies))
	}

	d := result.Discrepancies[0]
	if d.Currency != "USD" || d.Drift != 1234 {
		t.Errorf("expected USD drift 1234, got %+v", d)
	}
}
