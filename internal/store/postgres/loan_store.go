package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pascal/internal/domain"
)

// LoanStore implements domain.LoanStore on the Supabase loans table. The
// table is written by the lending process; this store only reads it.
type LoanStore struct {
	pool *pgxpool.Pool
}

// NewLoanStore creates a new LoanStore backed by the Supabase pool.
func NewLoanStore(pool *pgxpool.Pool) *LoanStore {
	return &LoanStore{pool: pool}
}

// ListByWallet returns every loan taken by wallet, newest first.
func (s *LoanStore) ListByWallet(ctx context.Context, wallet string) ([]domain.Loan, error) {
	const query = `
		SELECT id::text, wallet_address,
		       COALESCE(token_amount, 0)::text, COALESCE(sol_received, 0)::text,
		       status, COALESCE(transaction_hash, ''), created_at
		FROM loans
		WHERE wallet_address = $1
		ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, wallet)
	if err != nil {
		return nil, fmt.Errorf("postgres: list loans for %s: %w", wallet, err)
	}

	loans, err := pgx.CollectRows(rows, scanLoan)
	if err != nil {
		return nil, fmt.Errorf("postgres: list loans for %s: %w", wallet, err)
	}
	if loans == nil {
		loans = []domain.Loan{}
	}
	return loans, nil
}

// Totals aggregates every loan: summed token collateral, summed payout and
// the number of loans.
func (s *LoanStore) Totals(ctx context.Context) (domain.TreasuryTotals, error) {
	const query = `
		SELECT COALESCE(SUM(token_amount), 0)::text,
		       COALESCE(SUM(sol_received), 0)::text,
		       COUNT(*)
		FROM loans`

	var (
		tokens, paid string
		totals       domain.TreasuryTotals
	)
	if err := s.pool.QueryRow(ctx, query).Scan(&tokens, &paid, &totals.Count); err != nil {
		return domain.TreasuryTotals{}, fmt.Errorf("postgres: loan totals: %w", err)
	}

	var err error
	if totals.TotalTokens, err = decimal.NewFromString(tokens); err != nil {
		return domain.TreasuryTotals{}, fmt.Errorf("postgres: loan totals: token sum %q: %w", tokens, err)
	}
	if totals.TotalSolPaid, err = decimal.NewFromString(paid); err != nil {
		return domain.TreasuryTotals{}, fmt.Errorf("postgres: loan totals: payout sum %q: %w", paid, err)
	}
	return totals, nil
}

// scanLoan reads one loans row. Numeric columns arrive as text so no
// precision is lost on the way into decimal.Decimal.
func scanLoan(row pgx.CollectableRow) (domain.Loan, error) {
	var (
		l            domain.Loan
		tokens, paid string
		status       string
	)
	if err := row.Scan(&l.ID, &l.WalletAddress, &tokens, &paid, &status, &l.TransactionHash, &l.CreatedAt); err != nil {
		return domain.Loan{}, err
	}

	var err error
	if l.TokenAmount, err = decimal.NewFromString(tokens); err != nil {
		return domain.Loan{}, fmt.Errorf("loan %s: token_amount %q: %w", l.ID, tokens, err)
	}
	if l.SolReceived, err = decimal.NewFromString(paid); err != nil {
		return domain.Loan{}, fmt.Errorf("loan %s: sol_received %q: %w", l.ID, paid, err)
	}
	l.Status = domain.LoanStatus(status)
	return l, nil
}
