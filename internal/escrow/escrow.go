// Package escrow implements the payment transaction lifecycle.
//
// Flow:
//  1. Employer initializes escrow → gateway charge created, transaction pending
//  2. Gateway webhook confirms payment → transaction completed, job in progress
//     (manual payments: employer submits proof, admin approval settles the same way)
//  3. Employer releases escrow → worker's wallet credited net of platform fee
//  4. Worker withdraws → wallet debited, gateway transfer created
//  5. Gateway webhook settles the payout → completed, or failed with a refund
package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Eaziking2002/talent-afro-sub001/internal/gateway"
	"github.com/Eaziking2002/talent-afro-sub001/internal/idgen"
	"github.com/Eaziking2002/talent-afro-sub001/internal/logging"
	"github.com/Eaziking2002/talent-afro-sub001/internal/metrics"
	"github.com/Eaziking2002/talent-afro-sub001/internal/money"
	"github.com/Eaziking2002/talent-afro-sub001/internal/syncutil"
	"github.com/Eaziking2002/talent-afro-sub001/internal/traces"
)

var (
	ErrNotFound            = errors.New("transaction not found")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrJobNotFound         = errors.New("job not found")
	ErrNotEmployer         = errors.New("caller is not the employer for this job")
	ErrEscrowNotFunded     = errors.New("no completed escrow for this job")
	ErrAlreadyReleased     = errors.New("escrow already released for this job")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrProofDecided        = errors.New("payment proof already decided")
	ErrInvalidStatus       = errors.New("invalid transaction status for this operation")
	ErrProofNotFound       = errors.New("payment proof not found")
)

// Transaction types
const (
	TypeEscrow  = "escrow"
	TypeRelease = "release"
	TypePayout  = "payout"
)

// Transaction statuses
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Proof statuses
const (
	ProofPending  = "pending"
	ProofVerified = "verified"
	ProofRejected = "rejected"
)

// Transaction is a single movement of money through the platform.
type Transaction struct {
	ID            string     `json:"id"`
	JobID         string     `json:"jobId,omitempty"`
	EmployerID    string     `json:"employerId,omitempty"`
	WorkerID      string     `json:"workerId,omitempty"`
	Type          string     `json:"type"`   // escrow, release, payout
	Amount        int64      `json:"amount"` // gross, minor units
	Fee           int64      `json:"fee"`
	Net           int64      `json:"net"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	ExternalRef   string     `json:"externalRef,omitempty"` // gateway reference
	CheckoutURL   string     `json:"checkoutUrl,omitempty"`
	Description   string     `json:"description,omitempty"`
	FailureReason string     `json:"failureReason,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// IsTerminal returns true if the transaction is in a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// Proof is the employer's evidence that a manual (out-of-band) payment
// funding an escrow was made.
type Proof struct {
	ID            string     `json:"id"`
	TransactionID string     `json:"transactionId"`
	SubmittedBy   string     `json:"submittedBy"`
	URL           string     `json:"url,omitempty"`
	Note          string     `json:"note,omitempty"`
	Status        string     `json:"status"` // pending, verified, rejected
	ReviewedBy    string     `json:"reviewedBy,omitempty"`
	ReviewNote    string     `json:"reviewNote,omitempty"`
	SubmittedAt   time.Time  `json:"submittedAt"`
	ReviewedAt    *time.Time `json:"reviewedAt,omitempty"`
}

// Sum aggregates transaction amounts in one currency.
type Sum struct {
	Amount int64 `json:"amount"`
	Net    int64 `json:"net"`
}

// Store persists transactions and proofs.
type Store interface {
	CreateTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, id string) (*Transaction, error)
	GetByExternalRef(ctx context.Context, ref string) (*Transaction, error)
	UpdateTransaction(ctx context.Context, tx *Transaction) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*Transaction, error)
	// CompletedEscrowForJob returns the confirmed escrow transaction for a job.
	CompletedEscrowForJob(ctx context.Context, jobID string) (*Transaction, error)
	// ReleaseForJob returns the non-failed release for a job, if any.
	ReleaseForJob(ctx context.Context, jobID string) (*Transaction, error)
	// SumByTypeStatus totals transaction amounts per currency for
	// reconciliation.
	SumByTypeStatus(ctx context.Context, txType, status string) (map[string]Sum, error)
	CreateProof(ctx context.Context, p *Proof) error
	GetProof(ctx context.Context, id string) (*Proof, error)
	ProofForTransaction(ctx context.Context, txID string) (*Proof, error)
	UpdateProof(ctx context.Context, p *Proof) error
}

// WalletService abstracts wallet operations so escrow doesn't import wallet.
type WalletService interface {
	Credit(ctx context.Context, userID string, amount int64, currency, reference, description string) error
	Debit(ctx context.Context, userID string, amount int64, currency, reference, description string) error
}

// JobService abstracts the job registry.
type JobService interface {
	Employer(ctx context.Context, jobID string) (string, error)
	MarkInProgress(ctx context.Context, jobID, workerID string) error
	MarkCompleted(ctx context.Context, jobID string) error
}

// EventEmitter publishes lifecycle events to connected clients.
type EventEmitter interface {
	Emit(event string, payload any)
}

// InitializeRequest contains the parameters for funding an escrow.
type InitializeRequest struct {
	JobID       string `json:"jobId" binding:"required"`
	WorkerID    string `json:"workerId" binding:"required"`
	Amount      int64  `json:"amount" binding:"required"`
	Currency    string `json:"currency" binding:"required"`
	Description string `json:"description"`

	// EmployerID is set from the authenticated caller, not the body.
	EmployerID string `json:"-"`
}

// Service implements the transaction lifecycle.
type Service struct {
	store   Store
	gateway gateway.Gateway
	wallets WalletService
	jobs    JobService
	events  EventEmitter
	locks   syncutil.ContextShardedMutex // per-transaction locks against racing webhooks
}

// NewService creates an escrow service.
func NewService(store Store, gw gateway.Gateway, wallets WalletService, jobs JobService) *Service {
	return &Service{
		store:   store,
		gateway: gw,
		wallets: wallets,
		jobs:    jobs,
	}
}

// WithEvents adds an event emitter for realtime updates.
func (s *Service) WithEvents(e EventEmitter) *Service {
	s.events = e
	return s
}

func (s *Service) emit(event string, payload any) {
	if s.events != nil {
		s.events.Emit(event, payload)
	}
}

// InitializeEscrow creates the gateway charge and records a pending escrow
// transaction. The gateway is called before anything is persisted so a
// processor failure leaves no partial state behind.
func (s *Service) InitializeEscrow(ctx context.Context, req InitializeRequest) (*Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.initialize",
		traces.JobID(req.JobID), traces.Amount(req.Amount), traces.Currency(req.Currency))
	defer span.End()

	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !money.Supported(req.Currency) {
		return nil, ErrUnsupportedCurrency
	}

	employer, err := s.jobs.Employer(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	if employer != req.EmployerID {
		return nil, ErrNotEmployer
	}

	fee, net := money.Split(req.Amount)
	id := idgen.WithPrefix("tx_")

	description := req.Description
	if description == "" {
		description = "Escrow for job " + req.JobID
	}

	charge, err := s.gateway.CreateCharge(ctx, gateway.ChargeRequest{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Reference:   id,
		Description: description,
		PayerID:     req.EmployerID,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	tx := &Transaction{
		ID:          id,
		JobID:       req.JobID,
		EmployerID:  req.EmployerID,
		WorkerID:    req.WorkerID,
		Type:        TypeEscrow,
		Amount:      req.Amount,
		Fee:         fee,
		Net:         net,
		Currency:    req.Currency,
		Status:      StatusPending,
		ExternalRef: charge.ProviderRef,
		CheckoutURL: charge.CheckoutURL,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateTransaction(ctx, tx); err != nil {
		// The checkout session exists at the processor but we lost the
		// record. It will expire unpaid; log for investigation.
		logging.L(ctx).Error("CRITICAL: charge created but transaction persist failed",
			"transactionId", id, "providerRef", charge.ProviderRef, "error", err)
		return nil, fmt.Errorf("failed to record escrow transaction: %w", err)
	}

	metrics.EscrowInitializedTotal.Inc()
	return tx, nil
}

// ConfirmEscrow settles an escrow transaction from a gateway webhook.
// Replayed events against a terminal transaction are acknowledged unchanged.
func (s *Service) ConfirmEscrow(ctx context.Context, externalRef string, succeeded bool, failureReason string) (*Transaction, error) {
	tx, err := s.store.GetByExternalRef(ctx, externalRef)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locks.LockContext(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Re-read under lock
	tx, err = s.store.GetTransaction(ctx, tx.ID)
	if err != nil {
		return nil, err
	}

	if tx.IsTerminal() {
		metrics.WebhookReplaysTotal.Inc()
		return tx, nil
	}

	if err := s.settleFunding(ctx, tx, succeeded, failureReason); err != nil {
		return nil, err
	}
	return tx, nil
}

// settleFunding finalizes a pending escrow transaction. On success the job
// advances to in_progress. The caller holds the transaction lock.
func (s *Service) settleFunding(ctx context.Context, tx *Transaction, succeeded bool, failureReason string) error {
	now := time.Now()
	if succeeded {
		tx.Status = StatusCompleted
		tx.CompletedAt = &now
	} else {
		tx.Status = StatusFailed
		tx.FailureReason = failureReason
	}
	tx.UpdatedAt = now

	if err := s.store.UpdateTransaction(ctx, tx); err != nil {
		return err
	}

	if succeeded {
		// The job moves to in_progress once funds are secured. A job that
		// already advanced is fine.
		if err := s.jobs.MarkInProgress(ctx, tx.JobID, tx.WorkerID); err != nil {
			logging.L(ctx).Debug("job not advanced on escrow confirm",
				"jobId", tx.JobID, "error", err)
		}
		s.emit("escrow.confirmed", tx)
		metrics.EscrowConfirmedTotal.WithLabelValues("success").Inc()
	} else {
		metrics.EscrowConfirmedTotal.WithLabelValues("failure").Inc()
	}
	return nil
}

// ReleaseEscrow pays the worker out of a confirmed escrow. Only the job's
// employer may release, and a job can be released exactly once.
func (s *Service) ReleaseEscrow(ctx context.Context, jobID, callerID string) (*Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.release",
		traces.JobID(jobID), traces.UserID(callerID))
	defer span.End()

	employer, err := s.jobs.Employer(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if callerID != employer {
		return nil, ErrNotEmployer
	}

	esc, err := s.store.CompletedEscrowForJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrEscrowNotFunded
		}
		return nil, err
	}

	if _, err := s.store.ReleaseForJob(ctx, jobID); err == nil {
		return nil, ErrAlreadyReleased
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	fee, net := money.Split(esc.Amount)
	now := time.Now()
	rel := &Transaction{
		ID:          idgen.WithPrefix("tx_"),
		JobID:       jobID,
		EmployerID:  esc.EmployerID,
		WorkerID:    esc.WorkerID,
		Type:        TypeRelease,
		Amount:      esc.Amount,
		Fee:         fee,
		Net:         net,
		Currency:    esc.Currency,
		Status:      StatusPending,
		Description: "Release of " + esc.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// The store enforces one non-failed release per job, so a concurrent
	// release loses here rather than double-paying.
	if err := s.store.CreateTransaction(ctx, rel); err != nil {
		return nil, err
	}

	if err := s.wallets.Credit(ctx, esc.WorkerID, net, esc.Currency, rel.ID, "escrow release"); err != nil {
		// Retry once before giving up.
		if err2 := s.wallets.Credit(ctx, esc.WorkerID, net, esc.Currency, rel.ID, "escrow release"); err2 != nil {
			rel.Status = StatusFailed
			rel.FailureReason = "wallet credit failed: " + err2.Error()
			rel.UpdatedAt = time.Now()
			_ = s.store.UpdateTransaction(ctx, rel)
			logging.L(ctx).Error("CRITICAL: release recorded but wallet credit failed",
				"transactionId", rel.ID, "workerId", esc.WorkerID, "error", err2)
			return nil, fmt.Errorf("failed to credit worker: %w", err2)
		}
	}

	done := time.Now()
	rel.Status = StatusCompleted
	rel.CompletedAt = &done
	rel.UpdatedAt = done
	if err := s.store.UpdateTransaction(ctx, rel); err != nil {
		// Retry once — funds already moved, we must persist the state change
		if retryErr := s.store.UpdateTransaction(ctx, rel); retryErr != nil {
			logging.L(ctx).Error("CRITICAL: worker credited but release status update failed",
				"transactionId", rel.ID, "workerId", esc.WorkerID, "error", retryErr)
			return nil, fmt.Errorf("failed to update release after credit (requires manual resolution): %w", err)
		}
	}

	if err := s.jobs.MarkCompleted(ctx, jobID); err != nil {
		logging.L(ctx).Debug("job not completed on release", "jobId", jobID, "error", err)
	}

	s.emit("release.completed", rel)
	metrics.ReleasesTotal.Inc()
	return rel, nil
}

// WithdrawPayout sends wallet funds to the worker through the gateway.
// The wallet is debited before the gateway call so the platform never pays
// out money it does not hold; a gateway failure refunds the debit.
func (s *Service) WithdrawPayout(ctx context.Context, workerID string, amount int64, currency string) (*Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.payout",
		traces.UserID(workerID), traces.Amount(amount), traces.Currency(currency))
	defer span.End()

	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !money.Supported(currency) {
		return nil, ErrUnsupportedCurrency
	}

	id := idgen.WithPrefix("tx_")
	if err := s.wallets.Debit(ctx, workerID, amount, currency, id, "payout withdrawal"); err != nil {
		return nil, err
	}

	transfer, err := s.gateway.CreateTransfer(ctx, gateway.TransferRequest{
		Amount:      amount,
		Currency:    currency,
		Reference:   id,
		Description: "Payout " + id,
		RecipientID: workerID,
	})
	if err != nil {
		if cerr := s.wallets.Credit(ctx, workerID, amount, currency, id, "payout refund"); cerr != nil {
			logging.L(ctx).Error("CRITICAL: gateway transfer failed and refund credit failed",
				"transactionId", id, "workerId", workerID, "error", cerr)
		}
		return nil, err
	}

	now := time.Now()
	tx := &Transaction{
		ID:          id,
		WorkerID:    workerID,
		Type:        TypePayout,
		Amount:      amount,
		Net:         amount,
		Currency:    currency,
		Status:      StatusPending,
		ExternalRef: transfer.ProviderRef,
		Description: "Payout to " + workerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateTransaction(ctx, tx); err != nil {
		if cerr := s.wallets.Credit(ctx, workerID, amount, currency, id, "payout refund"); cerr != nil {
			logging.L(ctx).Error("CRITICAL: payout persist failed and refund credit failed",
				"transactionId", id, "workerId", workerID, "error", cerr)
		}
		logging.L(ctx).Error("payout transfer created but persist failed",
			"transactionId", id, "providerRef", transfer.ProviderRef, "error", err)
		return nil, fmt.Errorf("failed to record payout: %w", err)
	}

	s.emit("payout.requested", tx)
	metrics.PayoutsTotal.WithLabelValues("requested").Inc()
	return tx, nil
}

// CompletePayout settles a payout from a gateway webhook.
func (s *Service) CompletePayout(ctx context.Context, externalRef string) (*Transaction, error) {
	tx, err := s.payoutByRef(ctx, externalRef)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locks.LockContext(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tx, err = s.store.GetTransaction(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	if tx.IsTerminal() {
		metrics.WebhookReplaysTotal.Inc()
		return tx, nil
	}

	now := time.Now()
	tx.Status = StatusCompleted
	tx.CompletedAt = &now
	tx.UpdatedAt = now
	if err := s.store.UpdateTransaction(ctx, tx); err != nil {
		return nil, err
	}

	metrics.PayoutsTotal.WithLabelValues("completed").Inc()
	return tx, nil
}

// FailPayout marks a payout failed and refunds the debited amount.
func (s *Service) FailPayout(ctx context.Context, externalRef, reason string) (*Transaction, error) {
	tx, err := s.payoutByRef(ctx, externalRef)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locks.LockContext(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tx, err = s.store.GetTransaction(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	if tx.IsTerminal() {
		metrics.WebhookReplaysTotal.Inc()
		return tx, nil
	}

	now := time.Now()
	tx.Status = StatusFailed
	tx.FailureReason = reason
	tx.UpdatedAt = now
	if err := s.store.UpdateTransaction(ctx, tx); err != nil {
		return nil, err
	}

	if cerr := s.wallets.Credit(ctx, tx.WorkerID, tx.Net, tx.Currency, tx.ID, "payout refund"); cerr != nil {
		logging.L(ctx).Error("CRITICAL: payout failed but refund credit failed",
			"transactionId", tx.ID, "workerId", tx.WorkerID, "error", cerr)
	}

	metrics.PayoutsTotal.WithLabelValues("failed").Inc()
	return tx, nil
}

func (s *Service) payoutByRef(ctx context.Context, externalRef string) (*Transaction, error) {
	tx, err := s.store.GetByExternalRef(ctx, externalRef)
	if err != nil {
		return nil, err
	}
	if tx.Type != TypePayout {
		return nil, ErrInvalidStatus
	}
	return tx, nil
}

// SubmitProof records the employer's evidence of an out-of-band payment
// against a pending escrow transaction. A proof may be amended while
// pending but not after review.
func (s *Service) SubmitProof(ctx context.Context, txID, uploaderID, url, note string) (*Proof, error) {
	tx, err := s.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx.EmployerID != uploaderID {
		return nil, ErrNotEmployer
	}
	if tx.Type != TypeEscrow || tx.IsTerminal() {
		return nil, ErrInvalidStatus
	}

	existing, err := s.store.ProofForTransaction(ctx, txID)
	if err == nil {
		if existing.Status != ProofPending {
			return nil, ErrProofDecided
		}
		existing.URL = url
		existing.Note = note
		existing.SubmittedAt = time.Now()
		if err := s.store.UpdateProof(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	proof := &Proof{
		ID:            idgen.WithPrefix("prf_"),
		TransactionID: txID,
		SubmittedBy:   uploaderID,
		URL:           url,
		Note:          note,
		Status:        ProofPending,
		SubmittedAt:   time.Now(),
	}
	if err := s.store.CreateProof(ctx, proof); err != nil {
		return nil, err
	}
	return proof, nil
}

// VerifyProof records an admin's one-shot decision on a proof. Approval
// settles the escrow the same way a successful gateway webhook does;
// rejection fails the transaction with the review note as the reason.
func (s *Service) VerifyProof(ctx context.Context, proofID, reviewerID string, approve bool, note string) (*Proof, error) {
	proof, err := s.store.GetProof(ctx, proofID)
	if err != nil {
		return nil, err
	}
	if proof.Status != ProofPending {
		return nil, ErrProofDecided
	}

	unlock, err := s.locks.LockContext(ctx, proof.TransactionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tx, err := s.store.GetTransaction(ctx, proof.TransactionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if approve {
		proof.Status = ProofVerified
	} else {
		proof.Status = ProofRejected
	}
	proof.ReviewedBy = reviewerID
	proof.ReviewNote = note
	proof.ReviewedAt = &now

	if err := s.store.UpdateProof(ctx, proof); err != nil {
		return nil, err
	}

	// A gateway webhook that landed first wins; the decision then only
	// marks the proof.
	if !tx.IsTerminal() {
		reason := ""
		if !approve {
			reason = "payment proof rejected"
			if note != "" {
				reason = "payment proof rejected: " + note
			}
		}
		if err := s.settleFunding(ctx, tx, approve, reason); err != nil {
			return nil, err
		}
	}

	metrics.ProofVerificationsTotal.WithLabelValues(proof.Status).Inc()
	return proof, nil
}

// StatusSummary aggregates transaction totals for every type and status,
// keyed "type.status" then currency.
func (s *Service) StatusSummary(ctx context.Context) (map[string]map[string]Sum, error) {
	types := []string{TypeEscrow, TypeRelease, TypePayout}
	statuses := []string{StatusPending, StatusCompleted, StatusFailed}

	out := make(map[string]map[string]Sum)
	for _, typ := range types {
		for _, status := range statuses {
			sums, err := s.store.SumByTypeStatus(ctx, typ, status)
			if err != nil {
				return nil, err
			}
			if len(sums) > 0 {
				out[typ+"."+status] = sums
			}
		}
	}
	return out, nil
}

// Get returns a transaction by ID.
func (s *Service) Get(ctx context.Context, id string) (*Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

// ListByUser returns transactions where the user is employer or worker.
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByUser(ctx, userID, limit)
}
