// Package reconciliation verifies the ledger identity between transaction
// history and wallet balances.
//
// For every currency the platform must satisfy
//
//	sum(wallet balances) == sum(completed release net) - sum(non-failed payout amount)
//
// Wallets are only ever credited by releases and payout refunds, and only
// debited by payouts, so any drift means money was created or destroyed.
package reconciliation

import (
	"context"
	"time"

	"github.com/Eaziking2002/talent-afro-sub001/internal/escrow"
	"github.com/Eaziking2002/talent-afro-sub001/internal/logging"
	"github.com/Eaziking2002/talent-afro-sub001/internal/metrics"
)

// TransactionSums reads aggregate transaction totals.
type TransactionSums interface {
	SumByTypeStatus(ctx context.Context, txType, status string) (map[string]escrow.Sum, error)
}

// BalanceSums reads aggregate wallet totals.
type BalanceSums interface {
	SumBalances(ctx context.Context) (map[string]int64, error)
}

// Discrepancy is a currency whose books do not balance.
type Discrepancy struct {
	Currency string `json:"currency"`
	Expected int64  `json:"expected"` // what wallets should hold
	Actual   int64  `json:"actual"`   // what wallets hold
	Drift    int64  `json:"drift"`    // actual - expected
}

// Result is the outcome of one reconciliation run.
type Result struct {
	CheckedAt     time.Time     `json:"checkedAt"`
	Currencies    int           `json:"currencies"`
	Discrepancies []Discrepancy `json:"discrepancies"`
	Balanced      bool          `json:"balanced"`
}

// Service runs the reconciliation check.
type Service struct {
	transactions TransactionSums
	balances     BalanceSums
}

// NewService creates a reconciliation service.
func NewService(transactions TransactionSums, balances BalanceSums) *Service {
	return &Service{transactions: transactions, balances: balances}
}

// Run computes both sides of the ledger identity for every currency and
// reports any drift. The worst observed drift is exported as a gauge.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	releases, err := s.transactions.SumByTypeStatus(ctx, escrow.TypeRelease, escrow.StatusCompleted)
	if err != nil {
		return nil, err
	}
	payoutsPending, err := s.transactions.SumByTypeStatus(ctx, escrow.TypePayout, escrow.StatusPending)
	if err != nil {
		return nil, err
	}
	payoutsCompleted, err := s.transactions.SumByTypeStatus(ctx, escrow.TypePayout, escrow.StatusCompleted)
	if err != nil {
		return nil, err
	}
	actuals, err := s.balances.SumBalances(ctx)
	if err != nil {
		return nil, err
	}

	currencies := make(map[string]bool)
	for cur := range releases {
		currencies[cur] = true
	}
	for cur := range payoutsPending {
		currencies[cur] = true
	}
	for cur := range payoutsCompleted {
		currencies[cur] = true
	}
	for cur := range actuals {
		currencies[cur] = true
	}

	result := &Result{
		CheckedAt:  time.Now(),
		Currencies: len(currencies),
		Balanced:   true,
	}

	var worstDrift int64
	for cur := range currencies {
		expected := releases[cur].Net - payoutsPending[cur].Amount - payoutsCompleted[cur].Amount
		actual := actuals[cur]
		drift := actual - expected
		if drift != 0 {
			result.Balanced = false
			result.Discrepancies = append(result.Discrepancies, Discrepancy{
				Currency: cur,
				Expected: expected,
				Actual:   actual,
				Drift:    drift,
			})
			logging.L(ctx).Warn("reconciliation drift detected",
				"currency", cur, "expected", expected, "actual", actual, "drift", drift)
		}
		if abs(drift) > abs(worstDrift) {
			worstDrift = drift
		}
	}

	metrics.ReconciliationDrift.Set(float64(worstDrift))
	return result, nil
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
