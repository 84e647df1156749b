// Package wallet tracks user balances on the platform.
//
// Flow:
//  1. Employer funds escrow through the payment gateway
//  2. Release credits the worker's wallet (net of platform fee)
//  3. Worker withdraws via payout (debits wallet)
//
// Balances are in minor units of the wallet's currency.
package wallet

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Eaziking2002/talent-afro-sub001/internal/idgen"
	"github.com/Eaziking2002/talent-afro-sub001/internal/money"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrCurrencyMismatch  = errors.New("wallet currency mismatch")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// Entry types
const (
	EntryCredit = "credit"
	EntryDebit  = "debit"
)

// Wallet is a user's balance
type Wallet struct {
	UserID    string    `json:"userId"`
	Balance   int64     `json:"balance"`
	Currency  string    `json:"currency"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Entry is an immutable record of a balance change
type Entry struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Type        string    `json:"type"` // credit, debit
	Amount      int64     `json:"amount"`
	Reference   string    `json:"reference,omitempty"` // transaction ID
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store persists wallets and their entries
type Store interface {
	// Get returns the wallet for a user, or a zero-balance wallet if none exists.
	Get(ctx context.Context, userID string) (*Wallet, error)
	// Credit atomically adds to a balance, creating the wallet if needed.
	Credit(ctx context.Context, userID string, amount int64, currency, reference, description string) error
	// Debit atomically subtracts from a balance. Returns ErrInsufficientFunds
	// when the balance would go negative.
	Debit(ctx context.Context, userID string, amount int64, currency, reference, description string) error
	// History returns the most recent entries for a user.
	History(ctx context.Context, userID string, limit int) ([]*Entry, error)
	// SumBalances returns total wallet balances keyed by currency.
	SumBalances(ctx context.Context) (map[string]int64, error)
}

// Service manages user balances
type Service struct {
	store Store
}

// NewService creates a wallet service
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Balance returns a user's wallet
func (s *Service) Balance(ctx context.Context, userID string) (*Wallet, error) {
	return s.store.Get(ctx, userID)
}

// Credit adds funds to a user's wallet
func (s *Service) Credit(ctx context.Context, userID string, amount int64, currency, reference, description string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if !money.Supported(currency) {
		return ErrCurrencyMismatch
	}
	return s.store.Credit(ctx, userID, amount, currency, reference, description)
}

// Debit removes funds from a user's wallet
func (s *Service) Debit(ctx context.Context, userID string, amount int64, currency, reference, description string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return s.store.Debit(ctx, userID, amount, currency, reference, description)
}

// History returns recent wallet entries for a user
func (s *Service) History(ctx context.Context, userID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.History(ctx, userID, limit)
}

// CanSpend checks if a user has at least amount available
func (s *Service) CanSpend(ctx context.Context, userID string, amount int64) (bool, error) {
	w, err := s.store.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return w.Balance >= amount, nil
}

// MemoryStore is an in-memory implementation of Store
type MemoryStore struct {
	mu      sync.RWMutex
	wallets map[string]*Wallet
	entries []*Entry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory wallet store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets: make(map[string]*Wallet),
	}
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (*Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if w, ok := s.wallets[userID]; ok {
		cp := *w
		return &cp, nil
	}
	// No wallet until the first credit fixes the currency.
	return &Wallet{UserID: userID, UpdatedAt: time.Now()}, nil
}

func (s *MemoryStore) Credit(ctx context.Context, userID string, amount int64, currency, reference, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[userID]
	if !ok {
		w = &Wallet{UserID: userID, Currency: currency}
		s.wallets[userID] = w
	}
	if w.Currency != currency {
		return ErrCurrencyMismatch
	}

	w.Balance += amount
	w.UpdatedAt = time.Now()
	s.record(userID, EntryCredit, amount, reference, description)
	return nil
}

func (s *MemoryStore) Debit(ctx context.Context, userID string, amount int64, currency, reference, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[userID]
	if !ok {
		return ErrInsufficientFunds
	}
	if w.Currency != currency {
		return ErrCurrencyMismatch
	}
	if w.Balance < amount {
		return ErrInsufficientFunds
	}

	w.Balance -= amount
	w.UpdatedAt = time.Now()
	s.record(userID, EntryDebit, amount, reference, description)
	return nil
}

func (s *MemoryStore) History(ctx context.Context, userID string, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Entry
	for i := len(s.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if s.entries[i].UserID == userID {
			result = append(result, s.entries[i])
		}
	}
	return result, nil
}

func (s *MemoryStore) SumBalances(ctx context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[string]int64)
	for _, w := range s.wallets {
		totals[w.Currency] += w.Balance
	}
	return totals, nil
}

// record appends an entry. Caller must hold the lock.
func (s *MemoryStore) record(userID, entryType string, amount int64, reference, description string) {
	s.entries = append(s.entries, &Entry{
		ID:          idgen.New(),
		UserID:      userID,
		Type:        entryType,
		Amount:      amount,
		Reference:   reference,
		Description: description,
		CreatedAt:   time.Now(),
	})
}
