package dispute

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var errNoEscalation = errors.New("no unresolved escalation")

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	disputes    map[string]*Dispute
	escalations map[string]*Escalation
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		disputes:    make(map[string]*Dispute),
		escalations: make(map[string]*Escalation),
	}
}

func copyDispute(d *Dispute) *Dispute {
	c := *d
	if d.ResolvedAt != nil {
		t := *d.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}

func copyEscalation(e *Escalation) *Escalation {
	c := *e
	if e.ResolvedAt != nil {
		t := *e.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}

func (m *MemoryStore) Create(ctx context.Context, d *Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disputes[d.ID] = copyDispute(d)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.disputes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDispute(d), nil
}

func (m *MemoryStore) Update(ctx context.Context, d *Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.disputes[d.ID]; !ok {
		return ErrNotFound
	}
	m.disputes[d.ID] = copyDispute(d)
	return nil
}

func (m *MemoryStore) ListByStatus(ctx context.Context, status string, limit int) ([]*Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Dispute
	for _, d := range m.disputes {
		if d.Status == status {
			out = append(out, copyDispute(d))
		}
	}
	sortByCreated(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Dispute
	for _, d := range m.disputes {
		if d.RaisedBy == userID {
			out = append(out, copyDispute(d))
		}
	}
	sortByCreated(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) OpenOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Dispute
	for _, d := range m.disputes {
		if d.Status == StatusOpen && d.CreatedAt.Before(cutoff) {
			out = append(out, copyDispute(d))
		}
	}
	sortByCreated(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) CreateEscalation(ctx context.Context, e *Escalation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.escalations {
		if existing.DisputeID == e.DisputeID && existing.ResolvedAt == nil {
			return errors.New("dispute already has an unresolved escalation")
		}
	}
	m.escalations[e.ID] = copyEscalation(e)
	return nil
}

func (m *MemoryStore) UnresolvedEscalation(ctx context.Context, disputeID string) (*Escalation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.escalations {
		if e.DisputeID == disputeID && e.ResolvedAt == nil {
			return copyEscalation(e), nil
		}
	}
	return nil, errNoEscalation
}

func (m *MemoryStore) ResolveEscalations(ctx context.Context, disputeID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.escalations {
		if e.DisputeID == disputeID && e.ResolvedAt == nil {
			t := at
			e.ResolvedAt = &t
		}
	}
	return nil
}

func (m *MemoryStore) UnresolvedCountByAdmin(ctx context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int)
	for _, e := range m.escalations {
		if e.ResolvedAt == nil {
			counts[e.EscalatedTo]++
		}
	}
	return counts, nil
}

func sortByCreated(ds []*Dispute) {
	sort.Slice(ds, func(i, j int) bool {
		return ds[i].CreatedAt.Before(ds[j].CreatedAt)
	})
}
