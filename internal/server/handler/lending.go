package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pascal/internal/domain"
	"github.com/alanyoungcy/pascal/internal/service"
)

// LoanService is what the lending endpoints need from the service layer.
type LoanService interface {
	Loans(ctx context.Context, wallet string) ([]domain.Loan, error)
	Treasury(ctx context.Context) domain.TreasuryTotals
	Quote(ctx context.Context, tokens decimal.Decimal) (service.LoanQuote, error)
}

// PriceService quotes the lending token.
type PriceService interface {
	Price(ctx context.Context) float64
}

// LendingHandler serves the lending dashboard endpoints.
type LendingHandler struct {
	loans  LoanService
	prices PriceService
	logger *slog.Logger
}

// NewLendingHandler creates a LendingHandler.
func NewLendingHandler(loans LoanService, prices PriceService, logger *slog.Logger) *LendingHandler {
	return &LendingHandler{
		loans:  loans,
		prices: prices,
		logger: logger.With(slog.String("handler", "lending")),
	}
}

// loanView is the wire form of a loan row.
type loanView struct {
	ID              string    `json:"id"`
	WalletAddress   string    `json:"wallet_address"`
	TokenAmount     float64   `json:"token_amount"`
	SolReceived     float64   `json:"sol_received"`
	Status          string    `json:"status"`
	TransactionHash string    `json:"transaction_hash,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func toLoanView(l domain.Loan) loanView {
	return loanView{
		ID:              l.ID,
		WalletAddress:   l.WalletAddress,
		TokenAmount:     l.TokenAmount.InexactFloat64(),
		SolReceived:     l.SolReceived.InexactFloat64(),
		Status:          string(l.Status),
		TransactionHash: l.TransactionHash,
		CreatedAt:       l.CreatedAt,
	}
}

// Loans returns a wallet's loans, newest first. Every response carries a
// loans array, empty on failure.
// GET /api/loans?wallet=
func (h *LendingHandler) Loans(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "Wallet address required")
		return
	}

	loans, err := h.loans.Loans(r.Context(), wallet)
	empty := []loanView{}
	switch {
	case errors.Is(err, domain.ErrNotConfigured):
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "Database not configured", "loans": empty})
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "list loans failed",
			slog.String("wallet", wallet),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Database error", "loans": empty})
		return
	}

	views := make([]loanView, 0, len(loans))
	for _, l := range loans {
		views = append(views, toLoanView(l))
	}
	writeJSON(w, http.StatusOK, map[string]any{"loans": views})
}

// TreasuryStats returns the aggregate loan totals; zeros when the row store
// is unavailable.
// GET /api/treasury-stats
func (h *LendingHandler) TreasuryStats(w http.ResponseWriter, r *http.Request) {
	t := h.loans.Treasury(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"totalTokens":   t.TotalTokens.InexactFloat64(),
		"totalSolPaid":  t.TotalSolPaid.InexactFloat64(),
		"numberOfLoans": t.Count,
	})
}

// TokenPrice returns the lending token price, falling back to a fixed price.
// GET /api/token-price
func (h *LendingHandler) TokenPrice(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]float64{"price": h.prices.Price(r.Context())})
}

// LoanQuote prices a loan for a token amount.
// GET /api/loan-quote?tokens=
func (h *LendingHandler) LoanQuote(w http.ResponseWriter, r *http.Request) {
	tokens, err := decimal.NewFromString(r.URL.Query().Get("tokens"))
	if err != nil || tokens.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, "tokens must be a positive number")
		return
	}

	q, err := h.loans.Quote(r.Context(), tokens)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{
		"tokenAmount": q.TokenAmount.InexactFloat64(),
		"tokenPrice":  q.TokenPrice.InexactFloat64(),
		"ltv":         q.LTV.InexactFloat64(),
		"solReceived": q.SolReceived.InexactFloat64(),
	})
}
