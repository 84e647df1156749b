package escrow

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	txs    map[string]*Transaction
	byRef  map[string]string // externalRef -> tx ID
	order  []string          // insertion order, newest appended
	proofs map[string]*Proof
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		txs:    make(map[string]*Transaction),
		byRef:  make(map[string]string),
		proofs: make(map[string]*Proof),
	}
}

func copyTx(tx *Transaction) *Transaction {
	c := *tx
	if tx.CompletedAt != nil {
		t := *tx.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func copyProof(p *Proof) *Proof {
	c := *p
	if p.ReviewedAt != nil {
		t := *p.ReviewedAt
		c.ReviewedAt = &t
	}
	return &c
}

func (m *MemoryStore) CreateTransaction(ctx context.Context, tx *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tx.Type == TypeRelease {
		for _, existing := range m.txs {
			if existing.Type == TypeRelease && existing.JobID == tx.JobID && existing.Status != StatusFailed {
				return ErrAlreadyReleased
			}
		}
	}

	m.txs[tx.ID] = copyTx(tx)
	m.order = append(m.order, tx.ID)
	if tx.ExternalRef != "" {
		m.byRef[tx.ExternalRef] = tx.ID
	}
	return nil
}

func (m *MemoryStore) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.txs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyTx(tx), nil
}

func (m *MemoryStore) GetByExternalRef(ctx context.Context, ref string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byRef[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return copyTx(m.txs[id]), nil
}

func (m *MemoryStore) UpdateTransaction(ctx context.Context, tx *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.txs[tx.ID]; !ok {
		return ErrNotFound
	}
	m.txs[tx.ID] = copyTx(tx)
	if tx.ExternalRef != "" {
		m.byRef[tx.ExternalRef] = tx.ID
	}
	return nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Transaction
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		tx := m.txs[m.order[i]]
		if tx.EmployerID == userID || tx.WorkerID == userID {
			out = append(out, copyTx(tx))
		}
	}
	return out, nil
}

func (m *MemoryStore) CompletedEscrowForJob(ctx context.Context, jobID string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, tx := range m.txs {
		if tx.Type == TypeEscrow && tx.JobID == jobID && tx.Status == StatusCompleted {
			return copyTx(tx), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ReleaseForJob(ctx context.Context, jobID string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, tx := range m.txs {
		if tx.Type == TypeRelease && tx.JobID == jobID && tx.Status != StatusFailed {
			return copyTx(tx), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) SumByTypeStatus(ctx context.Context, txType, status string) (map[string]Sum, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sums := make(map[string]Sum)
	for _, tx := range m.txs {
		if tx.Type == txType && tx.Status == status {
			s := sums[tx.Currency]
			s.Amount += tx.Amount
			s.Net += tx.Net
			sums[tx.Currency] = s
		}
	}
	return sums, nil
}

func (m *MemoryStore) CreateProof(ctx context.Context, p *Proof) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.proofs[p.ID] = copyProof(p)
	return nil
}

func (m *MemoryStore) GetProof(ctx context.Context, id string) (*Proof, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.proofs[id]
	if !ok {
		return nil, ErrProofNotFound
	}
	return copyProof(p), nil
}

func (m *MemoryStore) ProofForTransaction(ctx context.Context, txID string) (*Proof, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.proofs {
		if p.TransactionID == txID {
			return copyProof(p), nil
		}
	}
	return nil, ErrProofNotFound
}

func (m *MemoryStore) UpdateProof(ctx context.Context, p *Proof) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.proofs[p.ID]; !ok {
		return ErrProofNotFound
	}
	m.proofs[p.ID] = copyProof(p)
	return nil
}
