// Package jobs maintains the marketplace job registry.
//
// The payment flow only needs a thin slice of job state: who the employer
// is, and whether the job has moved through open -> in_progress -> completed.
package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/Eaziking2002/talent-afro-sub001/internal/idgen"
)

var (
	ErrNotFound           = errors.New("job not found")
	ErrInvalidTransition  = errors.New("invalid job status transition")
	ErrAlreadyApplied     = errors.New("worker already applied to this job")
	ErrApplicationMissing = errors.New("application not found")
)

// Job statuses
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Job is a unit of work posted by an employer
type Job struct {
	ID         string    `json:"id"`
	EmployerID string    `json:"employerId"`
	Title      string    `json:"title"`
	Budget     int64     `json:"budget"` // minor units, 0 when negotiable
	Currency   string    `json:"currency"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Application is a worker's bid on a job
type Application struct {
	ID        string    `json:"id"`
	JobID     string    `json:"jobId"`
	WorkerID  string    `json:"workerId"`
	CoverNote string    `json:"coverNote,omitempty"`
	Accepted  bool      `json:"accepted"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists jobs and applications
type Store interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	UpdateJobStatus(ctx context.Context, id, status string) error
	ListJobsByEmployer(ctx context.Context, employerID string, limit int) ([]*Job, error)
	CreateApplication(ctx context.Context, app *Application) error
	GetApplication(ctx context.Context, jobID, workerID string) (*Application, error)
	AcceptApplication(ctx context.Context, id string) error
	ListApplications(ctx context.Context, jobID string) ([]*Application, error)
}

// Service manages jobs and applications
type Service struct {
	store Store
}

// NewService creates a jobs service
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create posts a new job
func (s *Service) Create(ctx context.Context, employerID, title string, budget int64, currency string) (*Job, error) {
	job := &Job{
		ID:         idgen.WithPrefix("job_"),
		EmployerID: employerID,
		Title:      strings.TrimSpace(title),
		Budget:     budget,
		Currency:   currency,
		Status:     StatusOpen,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Get returns a job by ID
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.store.GetJob(ctx, id)
}

// Employer returns the employer ID for a job
func (s *Service) Employer(ctx context.Context, jobID string) (string, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	return job.EmployerID, nil
}

// ListByEmployer returns an employer's jobs, newest first
func (s *Service) ListByEmployer(ctx context.Context, employerID string, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListJobsByEmployer(ctx, employerID, limit)
}

// Apply records a worker's application to an open job
func (s *Service) Apply(ctx context.Context, jobID, workerID, coverNote string) (*Application, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != StatusOpen {
		return nil, ErrInvalidTransition
	}

	if _, err := s.store.GetApplication(ctx, jobID, workerID); err == nil {
		return nil, ErrAlreadyApplied
	}

	app := &Application{
		ID:        idgen.WithPrefix("app_"),
		JobID:     jobID,
		WorkerID:  workerID,
		CoverNote: coverNote,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateApplication(ctx, app); err != nil {
		return nil, err
	}
	return app, nil
}

// Applications lists applications for a job
func (s *Service) Applications(ctx context.Context, jobID string) ([]*Application, error) {
	if _, err := s.store.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return s.store.ListApplications(ctx, jobID)
}

// MarkInProgress moves a job from open to in_progress. Called when the
// employer accepts a worker and funds escrow.
func (s *Service) MarkInProgress(ctx context.Context, jobID, workerID string) error {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != StatusOpen {
		return ErrInvalidTransition
	}

	if workerID != "" {
		app, err := s.store.GetApplication(ctx, jobID, workerID)
		if err == nil {
			if err := s.store.AcceptApplication(ctx, app.ID); err != nil {
				return err
			}
		}
	}

	return s.store.UpdateJobStatus(ctx, jobID, StatusInProgress)
}

// MarkCompleted moves a job from in_progress to completed. Called when
// escrow is released.
func (s *Service) MarkCompleted(ctx context.Context, jobID string) error {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != StatusInProgress {
		return ErrInvalidTransition
	}
	return s.store.UpdateJobStatus(ctx, jobID, StatusCompleted)
}

// MemoryStore is an in-memory implementation of Store
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	apps map[string]*Application
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory jobs store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*Job),
		apps: make(map[string]*Application),
	}
}

func (s *MemoryStore) CreateJob(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *MemoryStore) GetJob(ctx context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *MemoryStore) UpdateJobStatus(ctx context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	job.Status = status
	job.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ListJobsByEmployer(ctx context.Context, employerID string, limit int) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*Job
	for _, job := range s.jobs {
		if job.EmployerID == employerID {
			cp := *job
			result = append(result, &cp)
		}
	}
	// Newest first
	for i := 0; i < len(result); i++ {
		for j := i + 1; j < len(result); j++ {
			if result[j].CreatedAt.After(result[i].CreatedAt) {
				result[i], result[j] = result[j], result[i]
			}
		}
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryStore) CreateApplication(ctx context.Context, app *Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *app
	s.apps[app.ID] = &cp
	return nil
}

func (s *MemoryStore) GetApplication(ctx context.Context, jobID, workerID string) (*Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, app := range s.apps {
		if app.JobID == jobID && app.WorkerID == workerID {
			cp := *app
			return &cp, nil
		}
	}
	return nil, ErrApplicationMissing
}

func (s *MemoryStore) AcceptApplication(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return ErrApplicationMissing
	}
	app.Accepted = true
	return nil
}

func (s *MemoryStore) ListApplications(ctx context.Context, jobID string) ([]*Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*Application
	for _, app := range s.apps {
		if app.JobID == jobID {
			cp := *app
			result = append(result, &cp)
		}
	}
	return result, nil
}
