package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pascal/internal/domain"
)

// LoanQuote is the payout offered for a token collateral amount.
type LoanQuote struct {
	TokenAmount decimal.Decimal
	TokenPrice  decimal.Decimal
	LTV         decimal.Decimal
	SolReceived decimal.Decimal
}

// LoanService reads the lending dashboard data from the row store. loans
// may be nil when the row store is not configured.
type LoanService struct {
	loans  domain.LoanStore
	prices *TokenPriceService
	ltv    decimal.Decimal
	logger *slog.Logger
}

// NewLoanService creates a LoanService quoting at the given loan-to-value
// ratio.
func NewLoanService(loans domain.LoanStore, prices *TokenPriceService, ltv float64, logger *slog.Logger) *LoanService {
	return &LoanService{
		loans:  loans,
		prices: prices,
		ltv:    decimal.NewFromFloat(ltv),
		logger: logger.With(slog.String("component", "loan_service")),
	}
}

// Loans returns the loans of a wallet, newest first. The slice is never nil.
func (s *LoanService) Loans(ctx context.Context, wallet string) ([]domain.Loan, error) {
	if s.loans == nil {
		return []domain.Loan{}, domain.ErrNotConfigured
	}
	loans, err := s.loans.ListByWallet(ctx, wallet)
	if err != nil {
		return []domain.Loan{}, fmt.Errorf("loan_service: list %s: %w", wallet, err)
	}
	if loans == nil {
		loans = []domain.Loan{}
	}
	return loans, nil
}

// Treasury returns the aggregate loan totals. Failures are logged and
// reported as zero totals.
func (s *LoanService) Treasury(ctx context.Context) domain.TreasuryTotals {
	if s.loans == nil {
		return domain.TreasuryTotals{}
	}
	totals, err := s.loans.Totals(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "treasury totals failed", slog.String("error", err.Error()))
		return domain.TreasuryTotals{}
	}
	return totals
}

// Quote prices a loan against tokens at the current token price:
// solReceived = tokens x price x LTV.
func (s *LoanService) Quote(ctx context.Context, tokens decimal.Decimal) (LoanQuote, error) {
	if tokens.Sign() <= 0 {
		return LoanQuote{}, fmt.Errorf("loan_service: token amount must be positive, got %s", tokens)
	}
	price := decimal.NewFromFloat(s.prices.Price(ctx))
	return LoanQuote{
		TokenAmount: tokens,
		TokenPrice:  price,
		LTV:         s.ltv,
		SolReceived: tokens.Mul(price).Mul(s.ltv),
	}, nil
}
