package dispute

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists disputes and escalations in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store backed by the given database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const disputeColumns = `id, job_id, raised_by, reason, status, resolution,
	resolved_by, created_at, resolved_at`

func (s *PostgresStore) Create(ctx context.Context, d *Dispute) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO disputes (`+disputeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.JobID, d.RaisedBy, d.Reason, d.Status,
		nullable(d.Resolution), nullable(d.ResolvedBy), d.CreatedAt, d.ResolvedAt)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Dispute, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id)
	return scanDispute(row)
}

func (s *PostgresStore) Update(ctx context.Context, d *Dispute) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE disputes
		SET status = $2, resolution = $3, resolved_by = $4, resolved_at = $5
		WHERE id = $1`,
		d.ID, d.Status, nullable(d.Resolution), nullable(d.ResolvedBy), d.ResolvedAt)
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

func (s *PostgresStore) ListByStatus(ctx context.Context, status string, limit int) ([]*Dispute, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+disputeColumns+` FROM disputes
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2`, status, limit)
	if err != nil {
		return nil, err
	}
	return collectDisputes(rows)
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Dispute, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+disputeColumns+` FROM disputes
		WHERE raised_by = $1
		ORDER BY created_at ASC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	return collectDisputes(rows)
}

func (s *PostgresStore) OpenOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*Dispute, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+disputeColumns+` FROM disputes
		WHERE status = 'open' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return collectDisputes(rows)
}

func (s *PostgresStore) CreateEscalation(ctx context.Context, e *Escalation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dispute_escalations (id, dispute_id, escalated_to, notes, escalated_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.DisputeID, e.EscalatedTo, nullable(e.Notes), e.EscalatedAt, e.ResolvedAt)
	if err != nil {
		// A unique partial index permits one unresolved escalation per dispute.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return errors.New("dispute already has an unresolved escalation")
		}
		return err
	}
	return nil
}

func (s *PostgresStore) UnresolvedEscalation(ctx context.Context, disputeID string) (*Escalation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, dispute_id, escalated_to, notes, escalated_at, resolved_at
		FROM dispute_escalations
		WHERE dispute_id = $1 AND resolved_at IS NULL
		LIMIT 1`, disputeID)

	var e Escalation
	var notes sql.NullString
	var resolvedAt sql.NullTime
	err := row.Scan(&e.ID, &e.DisputeID, &e.EscalatedTo, &notes, &e.EscalatedAt, &resolvedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNoEscalation
		}
		return nil, err
	}
	e.Notes = notes.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		e.ResolvedAt = &t
	}
	return &e, nil
}

func (s *PostgresStore) ResolveEscalations(ctx context.Context, disputeID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE dispute_escalations
		SET resolved_at = $2
		WHERE dispute_id = $1 AND resolved_at IS NULL`, disputeID, at)
	return err
}

func (s *PostgresStore) UnresolvedCountByAdmin(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT escalated_to, COUNT(*)
		FROM dispute_escalations
		WHERE resolved_at IS NULL
		GROUP BY escalated_to`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var admin string
		var n int
		if err := rows.Scan(&admin, &n); err != nil {
			return nil, err
		}
		counts[admin] = n
	}
	return counts, rows.Err()
}

func scanDispute(row interface{ Scan(...any) error }) (*Dispute, error) {
	var d Dispute
	var resolution, resolvedBy sql.NullString
	var resolvedAt sql.NullTime

	err := row.Scan(&d.ID, &d.JobID, &d.RaisedBy, &d.Reason, &d.Status,
		&resolution, &resolvedBy, &d.CreatedAt, &resolvedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	d.Resolution = resolution.String
	d.ResolvedBy = resolvedBy.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		d.ResolvedAt = &t
	}
	return &d, nil
}

func collectDisputes(rows *sql.Rows) ([]*Dispute, error) {
	defer rows.Close()

	var out []*Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
