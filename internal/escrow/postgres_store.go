package escrow

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// PostgresStore persists transactions and proofs in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store backed by the given database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const txColumns = `id, job_id, employer_id, worker_id, type, amount, fee, net,
	currency, status, external_ref, checkout_url, description, failure_reason,
	created_at, updated_at, completed_at`

func (s *PostgresStore) CreateTransaction(ctx context.Context, tx *Transaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (`+txColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		tx.ID, nullStr(tx.JobID), nullStr(tx.EmployerID), nullStr(tx.WorkerID),
		tx.Type, tx.Amount, tx.Fee, tx.Net, tx.Currency, tx.Status,
		nullStr(tx.ExternalRef), nullStr(tx.CheckoutURL), nullStr(tx.Description),
		nullStr(tx.FailureReason), tx.CreatedAt, tx.UpdatedAt, tx.CompletedAt)
	if err != nil {
		// A unique partial index permits one non-failed release per job.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrAlreadyReleased
		}
		return err
	}
	return nil
}

func (s *PostgresStore) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE id = $1`, id)
	return scanTx(row)
}

func (s *PostgresStore) GetByExternalRef(ctx context.Context, ref string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE external_ref = $1`, ref)
	return scanTx(row)
}

func (s *PostgresStore) UpdateTransaction(ctx context.Context, tx *Transaction) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2, external_ref = $3, checkout_url = $4,
		    failure_reason = $5, updated_at = $6, completed_at = $7
		WHERE id = $1`,
		tx.ID, tx.Status, nullStr(tx.ExternalRef), nullStr(tx.CheckoutURL),
		nullStr(tx.FailureReason), tx.UpdatedAt, tx.CompletedAt)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE employer_id = $1 OR worker_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		tx, err := scanTx(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CompletedEscrowForJob(ctx context.Context, jobID string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE job_id = $1 AND type = 'escrow' AND status = 'completed'
		ORDER BY created_at DESC
		LIMIT 1`, jobID)
	return scanTx(row)
}

func (s *PostgresStore) ReleaseForJob(ctx context.Context, jobID string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE job_id = $1 AND type = 'release' AND status != 'failed'
		LIMIT 1`, jobID)
	return scanTx(row)
}

func (s *PostgresStore) SumByTypeStatus(ctx context.Context, txType, status string) (map[string]Sum, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT currency, COALESCE(SUM(amount), 0), COALESCE(SUM(net), 0)
		FROM transactions
		WHERE type = $1 AND status = $2
		GROUP BY currency`, txType, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sums := make(map[string]Sum)
	for rows.Next() {
		var currency string
		var s Sum
		if err := rows.Scan(&currency, &s.Amount, &s.Net); err != nil {
			return nil, err
		}
		sums[currency] = s
	}
	return sums, rows.Err()
}

func (s *PostgresStore) CreateProof(ctx context.Context, p *Proof) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_proofs (id, transaction_id, submitted_by, url, note,
			status, reviewed_by, review_note, submitted_at, reviewed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.TransactionID, p.SubmittedBy, nullStr(p.URL), nullStr(p.Note),
		p.Status, nullStr(p.ReviewedBy), nullStr(p.ReviewNote), p.SubmittedAt, p.ReviewedAt)
	return err
}

func (s *PostgresStore) GetProof(ctx context.Context, id string) (*Proof, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, transaction_id, submitted_by, url, note, status,
		       reviewed_by, review_note, submitted_at, reviewed_at
		FROM payment_proofs WHERE id = $1`, id)
	return scanProof(row)
}

func (s *PostgresStore) ProofForTransaction(ctx context.Context, txID string) (*Proof, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, transaction_id, submitted_by, url, note, status,
		       reviewed_by, review_note, submitted_at, reviewed_at
		FROM payment_proofs WHERE transaction_id = $1
		ORDER BY submitted_at DESC
		LIMIT 1`, txID)
	return scanProof(row)
}

func (s *PostgresStore) UpdateProof(ctx context.Context, p *Proof) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payment_proofs
		SET url = $2, note = $3, status = $4, reviewed_by = $5,
		    review_note = $6, submitted_at = $7, reviewed_at = $8
		WHERE id = $1`,
		p.ID, nullStr(p.URL), nullStr(p.Note), p.Status,
		nullStr(p.ReviewedBy), nullStr(p.ReviewNote), p.SubmittedAt, p.ReviewedAt)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrProofNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTx(row rowScanner) (*Transaction, error) {
	var tx Transaction
	var jobID, employerID, workerID, extRef, checkoutURL, desc, failReason sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&tx.ID, &jobID, &employerID, &workerID, &tx.Type,
		&tx.Amount, &tx.Fee, &tx.Net, &tx.Currency, &tx.Status,
		&extRef, &checkoutURL, &desc, &failReason,
		&tx.CreatedAt, &tx.UpdatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	tx.JobID = jobID.String
	tx.EmployerID = employerID.String
	tx.WorkerID = workerID.String
	tx.ExternalRef = extRef.String
	tx.CheckoutURL = checkoutURL.String
	tx.Description = desc.String
	tx.FailureReason = failReason.String
	if completedAt.Valid {
		t := completedAt.Time
		tx.CompletedAt = &t
	}
	return &tx, nil
}

func scanProof(row rowScanner) (*Proof, error) {
	var p Proof
	var url, note, reviewedBy, reviewNote sql.NullString
	var reviewedAt sql.NullTime

	err := row.Scan(&p.ID, &p.TransactionID, &p.SubmittedBy, &url, &note,
		&p.Status, &reviewedBy, &reviewNote, &p.SubmittedAt, &reviewedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProofNotFound
		}
		return nil, err
	}

	p.URL = url.String
	p.Note = note.String
	p.ReviewedBy = reviewedBy.String
	p.ReviewNote = reviewNote.String
	if reviewedAt.Valid {
		t := reviewedAt.Time
		p.ReviewedAt = &t
	}
	return &p, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
