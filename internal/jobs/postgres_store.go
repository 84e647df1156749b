package jobs

import (
	"context"
	"database/sql"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL-backed jobs store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) CreateJob(ctx context.Context, job *Job) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO jobs (id, employer_id, title, budget, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, job.ID, job.EmployerID, job.Title, job.Budget, job.Currency, job.Status, job.CreatedAt, job.UpdatedAt)
	return err
}

func (p *PostgresStore) GetJob(ctx context.Context, id string) (*Job, error) {
	job := &Job{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, employer_id, title, budget, currency, status, created_at, updated_at
		FROM jobs WHERE id = $1
	`, id).Scan(
		&job.ID, &job.EmployerID, &job.Title, &job.Budget,
		&job.Currency, &job.Status, &job.CreatedAt, &job.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (p *PostgresStore) UpdateJobStatus(ctx context.Context, id, status string) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE jobs SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) ListJobsByEmployer(ctx context.Context, employerID string, limit int) ([]*Job, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, employer_id, title, budget, currency, status, created_at, updated_at
		FROM jobs WHERE employer_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, employerID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Job
	for rows.Next() {
		job := &Job{}
		if err := rows.Scan(
			&job.ID, &job.EmployerID, &job.Title, &job.Budget,
			&job.Currency, &job.Status, &job.CreatedAt, &job.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

func (p *PostgresStore) CreateApplication(ctx context.Context, app *Application) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO applications (id, job_id, worker_id, cover_note, accepted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, app.ID, app.JobID, app.WorkerID, app.CoverNote, app.Accepted, app.CreatedAt)
	return err
}

func (p *PostgresStore) GetApplication(ctx context.Context, jobID, workerID string) (*Application, error) {
	app := &Application{}
	var coverNote sql.NullString
	err := p.db.QueryRowContext(ctx, `
		SELECT id, job_id, worker_id, cover_note, accepted, created_at
		FROM applications WHERE job_id = $1 AND worker_id = $2
	`, jobID, workerID).Scan(
		&app.ID, &app.JobID, &app.WorkerID, &coverNote, &app.Accepted, &app.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrApplicationMissing
	}
	if err != nil {
		return nil, err
	}
	app.CoverNote = coverNote.String
	return app, nil
}

func (p *PostgresStore) AcceptApplication(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE applications SET accepted = TRUE WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrApplicationMissing
	}
	return nil
}

func (p *PostgresStore) ListApplications(ctx context.Context, jobID string) ([]*Application, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, job_id, worker_id, cover_note, accepted, created_at
		FROM applications WHERE job_id = $1
		ORDER BY created_at ASC
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Application
	for rows.Next() {
		app := &Application{}
		var coverNote sql.NullString
		if err := rows.Scan(
			&app.ID, &app.JobID, &app.WorkerID, &coverNote, &app.Accepted, &app.CreatedAt,
		); err != nil {
			return nil, err
		}
		app.CoverNote = coverNote.String
		result = append(result, app)
	}
	return result, rows.Err()
}
