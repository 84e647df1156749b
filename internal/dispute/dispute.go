// Package dispute tracks payment disputes and escalates the ones support
// has left sitting too long.
//
// A dispute stays open until an admin resolves it. The escalation sweep
// finds disputes older than the SLA, assigns the least-loaded admin, and
// emails them. At most one unresolved escalation exists per dispute, so
// repeated sweeps never double-assign.
package dispute

import (
	"context"
	"errors"
	"time"

	"github.com/Eaziking2002/talent-afro-sub001/internal/idgen"
	"github.com/Eaziking2002/talent-afro-sub001/internal/logging"
	"github.com/Eaziking2002/talent-afro-sub001/internal/metrics"
	"github.com/Eaziking2002/talent-afro-sub001/internal/notify"
)

// EscalationSLA is how long a dispute may stay open before it is escalated.
const EscalationSLA = 48 * time.Hour

var (
	ErrNotFound     = errors.New("dispute not found")
	ErrJobNotFound  = errors.New("job not found")
	ErrEmptyReason  = errors.New("dispute reason is required")
	ErrNoAdmins     = errors.New("no admins configured for escalation")
)

// Dispute statuses
const (
	StatusOpen     = "open"
	StatusResolved = "resolved"
)

// Dispute is a disagreement over a job's payment.
type Dispute struct {
	ID         string     `json:"id"`
	JobID      string     `json:"jobId"`
	RaisedBy   string     `json:"raisedBy"`
	Reason     string     `json:"reason"`
	Status     string     `json:"status"` // open, resolved
	Resolution string     `json:"resolution,omitempty"`
	ResolvedBy string     `json:"resolvedBy,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// Escalation assigns an overdue dispute to an admin.
type Escalation struct {
	ID          string     `json:"id"`
	DisputeID   string     `json:"disputeId"`
	EscalatedTo string     `json:"escalatedTo"` // admin email
	Notes       string     `json:"notes,omitempty"`
	EscalatedAt time.Time  `json:"escalatedAt"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
}

// Store persists disputes and escalations.
type Store interface {
	Create(ctx context.Context, d *Dispute) error
	Get(ctx context.Context, id string) (*Dispute, error)
	Update(ctx context.Context, d *Dispute) error
	ListByStatus(ctx context.Context, status string, limit int) ([]*Dispute, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*Dispute, error)
	// OpenOlderThan returns open disputes created before the cutoff.
	OpenOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*Dispute, error)
	CreateEscalation(ctx context.Context, e *Escalation) error
	// UnresolvedEscalation returns the active escalation for a dispute.
	UnresolvedEscalation(ctx context.Context, disputeID string) (*Escalation, error)
	// ResolveEscalations closes all escalations for a dispute.
	ResolveEscalations(ctx context.Context, disputeID string, at time.Time) error
	// UnresolvedCountByAdmin returns active escalation counts keyed by admin.
	UnresolvedCountByAdmin(ctx context.Context) (map[string]int, error)
}

// AdminDirectory lists the admins eligible to receive escalations.
type AdminDirectory interface {
	Admins(ctx context.Context) ([]string, error)
}

// StaticAdmins is an AdminDirectory backed by a fixed list.
type StaticAdmins []string

func (s StaticAdmins) Admins(ctx context.Context) ([]string, error) {
	return s, nil
}

// JobChecker verifies a job exists before a dispute is opened against it.
type JobChecker interface {
	Employer(ctx context.Context, jobID string) (string, error)
}

// EventEmitter publishes dispute lifecycle events.
type EventEmitter interface {
	Emit(event string, payload any)
}

// SweepResult summarizes one escalation sweep.
type SweepResult struct {
	Escalated  int      `json:"escalated"`
	DisputeIDs []string `json:"disputeIds"`
}

// Service implements dispute handling and the escalation sweep.
type Service struct {
	store  Store
	admins AdminDirectory
	jobs   JobChecker
	mailer notify.Sender
	events EventEmitter
}

// NewService creates a dispute service.
func NewService(store Store, admins AdminDirectory, jobs JobChecker, mailer notify.Sender) *Service {
	if mailer == nil {
		mailer = notify.NopSender{}
	}
	return &Service{
		store:  store,
		admins: admins,
		jobs:   jobs,
		mailer: mailer,
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

// Open raises a new dispute against a job.
func (s *Service) Open(ctx context.Context, jobID, raisedBy, reason string) (*Dispute, error) {
	if reason == "" {
		return nil, ErrEmptyReason
	}
	if _, err := s.jobs.Employer(ctx, jobID); err != nil {
		return nil, ErrJobNotFound
	}

	d := &Dispute{
		ID:        idgen.WithPrefix("dsp_"),
		JobID:     jobID,
		RaisedBy:  raisedBy,
		Reason:    reason,
		Status:    StatusOpen,
		CreatedAt: time.Now(),
	}
	if err := s.store.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Get returns a dispute by ID.
func (s *Service) Get(ctx context.Context, id string) (*Dispute, error) {
	return s.store.Get(ctx, id)
}

// ListOpen returns open disputes, oldest first.
func (s *Service) ListOpen(ctx context.Context, limit int) ([]*Dispute, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.store.ListByStatus(ctx, StatusOpen, limit)
}

// ListByUser returns disputes raised by a user.
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]*Dispute, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByUser(ctx, userID, limit)
}

// Resolve closes a dispute and any active escalation. Resolving a dispute
// that is already resolved is a no-op, so retried admin requests are safe.
func (s *Service) Resolve(ctx context.Context, disputeID, adminID, resolution string) (*Dispute, error) {
	d, err := s.store.Get(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if d.Status == StatusResolved {
		return d, nil
	}

	now := time.Now()
	d.Status = StatusResolved
	d.Resolution = resolution
	d.ResolvedBy = adminID
	d.ResolvedAt = &now

	if err := s.store.Update(ctx, d); err != nil {
		return nil, err
	}
	if err := s.store.ResolveEscalations(ctx, disputeID, now); err != nil {
		logging.L(ctx).Warn("failed to close escalations for resolved dispute",
			"disputeId", disputeID, "error", err)
	}

	return d, nil
}

// RunEscalationSweep escalates disputes that have been open past the SLA.
// Each eligible dispute gets one escalation assigned to the admin with the
// fewest active escalations. Notification failures do not stop the sweep.
func (s *Service) RunEscalationSweep(ctx context.Context, now time.Time) (*SweepResult, error) {
	admins, err := s.admins.Admins(ctx)
	if err != nil {
		return nil, err
	}
	if len(admins) == 0 {
		return nil, ErrNoAdmins
	}

	cutoff := now.Add(-EscalationSLA)
	overdue, err := s.store.OpenOlderThan(ctx, cutoff, 100)
	if err != nil {
		return nil, err
	}

	loads, err := s.store.UnresolvedCountByAdmin(ctx)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{}
	log := logging.L(ctx)

	for _, d := range overdue {
		if _, err := s.store.UnresolvedEscalation(ctx, d.ID); err == nil {
			continue // already in an admin's queue
		}

		assignee := leastLoaded(admins, loads)
		esc := &Escalation{
			ID:          idgen.WithPrefix("esc_"),
			DisputeID:   d.ID,
			EscalatedTo: assignee,
			Notes:       "open past " + EscalationSLA.String() + " SLA",
			EscalatedAt: now,
		}
		if err := s.store.CreateEscalation(ctx, esc); err != nil {
			log.Warn("failed to create escalation", "disputeId", d.ID, "error", err)
			continue
		}
		loads[assignee]++

		if err := s.mailer.Send(ctx, notify.Email{
			To:      assignee,
			Subject: "Dispute " + d.ID + " needs attention",
			Body: "Dispute " + d.ID + " on job " + d.JobID + " has been open since " +
				d.CreatedAt.Format(time.RFC3339) + ".\n\nReason: " + d.Reason,
		}); err != nil {
			log.Warn("escalation notification failed",
				"disputeId", d.ID, "admin", assignee, "error", err)
			metrics.NotificationFailuresTotal.Inc()
		}

		s.emit("dispute.escalated", esc)
		metrics.DisputesEscalatedTotal.Inc()
		result.Escalated++
		result.DisputeIDs = append(result.DisputeIDs, d.ID)
	}

	if result.Escalated > 0 {
		log.Info("escalation sweep complete", "escalated", result.Escalated)
	}
	return result, nil
}

// leastLoaded picks the admin with the fewest active escalations. Ties go
// to whichever admin appears first in the directory.
func leastLoaded(admins []string, loads map[string]int) string {
	best := admins[0]
	for _, a := range admins[1:] {
		if loads[a] < loads[best] {
			best = a
		}
	}
	return best
}
