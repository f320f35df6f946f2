package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoanStatus is the lifecycle state of a loan row.
type LoanStatus string

const (
	LoanStatusActive    LoanStatus = "active"
	LoanStatusCompleted LoanStatus = "completed"
)

// Loan is a token-collateralised loan written by the lending process. This
// service only reads loans.
type Loan struct {
	ID              string
	WalletAddress   string
	TokenAmount     decimal.Decimal
	SolReceived     decimal.Decimal
	Status          LoanStatus
	TransactionHash string
	CreatedAt       time.Time
}

// TreasuryTotals aggregates every loan in the row store.
type TreasuryTotals struct {
	TotalTokens  decimal.Decimal
	TotalSolPaid decimal.Decimal
	Count        int64
}
