package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Eaziking2002/talent-afro-sub001/internal/idgen"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL-backed wallet store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get retrieves a user's wallet
func (p *PostgresStore) Get(ctx context.Context, userID string) (*Wallet, error) {
	w := &Wallet{UserID: userID}

	err := p.db.QueryRowContext(ctx, `
		SELECT balance, currency, updated_at
		FROM wallets WHERE user_id = $1
	`, userID).Scan(&w.Balance, &w.Currency, &w.UpdatedAt)

	if err == sql.ErrNoRows {
		// No wallet until the first credit fixes the currency.
		return &Wallet{UserID: userID, UpdatedAt: time.Now()}, nil
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Credit adds funds to a user's wallet, creating it if needed.
// The upsert only applies when the stored currency matches.
func (p *PostgresStore) Credit(ctx context.Context, userID string, amount int64, currency, reference, description string) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO wallets (user_id, balance, currency, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			balance    = wallets.balance + $2,
			updated_at = NOW()
		WHERE wallets.currency = $3
	`, userID, amount, currency)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrCurrencyMismatch
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO wallet_entries (id, user_id, type, amount, reference, description, created_at)
		VALUES ($1, $2, 'credit', $3, $4, $5, NOW())
	`, idgen.New(), userID, amount, reference, description)
	if err != nil {
		return fmt.Errorf("failed to record entry: %w", err)
	}

	return tx.Commit()
}

// Debit removes funds from a user's wallet.
// The CHECK constraint on balance >= 0 rejects overdrafts at the DB level.
func (p *PostgresStore) Debit(ctx context.Context, userID string, amount int64, currency, reference, description string) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE wallets SET
			balance    = balance - $2,
			updated_at = NOW()
		WHERE user_id = $1 AND currency = $3
	`, userID, amount, currency)
	if err != nil {
		// CHECK constraint violation means insufficient balance
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23514" {
			return ErrInsufficientFunds
		}
		return fmt.Errorf("failed to update balance: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		// No wallet means a zero balance, unless the currency differs.
		w, gerr := p.Get(ctx, userID)
		if gerr == nil && w.Balance > 0 && w.Currency != currency {
			return ErrCurrencyMismatch
		}
		return ErrInsufficientFunds
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO wallet_entries (id, user_id, type, amount, reference, description, created_at)
		VALUES ($1, $2, 'debit', $3, $4, $5, NOW())
	`, idgen.New(), userID, amount, reference, description)
	if err != nil {
		return fmt.Errorf("failed to record entry: %w", err)
	}

	return tx.Commit()
}

// History retrieves wallet entries for a user
func (p *PostgresStore) History(ctx context.Context, userID string, limit int) ([]*Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, type, amount, reference, description, created_at
		FROM wallet_entries
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		var reference, description sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Amount, &reference, &description, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Reference = reference.String
		e.Description = description.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SumBalances totals wallet balances per currency
func (p *PostgresStore) SumBalances(ctx context.Context) (map[string]int64, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT currency, COALESCE(SUM(balance), 0)
		FROM wallets
		GROUP BY currency
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[string]int64)
	for rows.Next() {
		var currency string
		var total int64
		if err := rows.Scan(&currency, &total); err != nil {
			return nil, err
		}
		totals[currency] = total
	}
	return totals, rows.Err()
}
