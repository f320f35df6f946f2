package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/pascal/internal/domain"
)

// CatalogService defines the methods that the market handlers require from
// the service layer. It is declared locally so the handler package does not
// depend on the concrete service implementation.
type CatalogService interface {
	Configured() bool
	SaveMarket(ctx context.Context, rec domain.MarketRecord) (int64, error)
	ListMarkets(ctx context.Context, filter domain.MarketFilter) ([]domain.MarketRecord, error)
	GetMarket(ctx context.Context, publicKey string) (domain.MarketRecord, error)
	PlaceOrder(ctx context.Context, userPK, marketPK string, orderAccounts json.RawMessage, price domain.PriceData) error
	GetUser(ctx context.Context, publicKey string) (domain.User, error)
}

// PositionService reads on-chain positions.
type PositionService interface {
	Position(ctx context.Context, marketPK, walletPK string) (domain.MarketPosition, error)
}

// MarketHandler serves the market catalog endpoints.
type MarketHandler struct {
	catalog   CatalogService
	positions PositionService
	logger    *slog.Logger
}

// NewMarketHandler creates a MarketHandler. positions may be nil.
func NewMarketHandler(catalog CatalogService, positions PositionService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		catalog:   catalog,
		positions: positions,
		logger:    logger.With(slog.String("handler", "market")),
	}
}

// createMarketRequest is the record a client submits after creating a market
// on-chain itself.
type createMarketRequest struct {
	Category              string                `json:"category"`
	Description           string                `json:"description"`
	MarketCreateTimestamp json.RawMessage       `json:"marketCreateTimestamp"`
	Tag                   string                `json:"tag"`
	Ticker                string                `json:"ticker"`
	ResolutionSource      string                `json:"resolutionSource"`
	ResolutionValue       string                `json:"resolutionValue"`
	OracleSymbol          string                `json:"oracleSymbol"`
	MarketAccount         *domain.MarketAccount `json:"marketAccount"`
	PriceData             *domain.PriceData     `json:"priceData"`
}

// CreateMarket stores a market record.
// POST /api/createMarket
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	acct := req.MarketAccount
	if acct == nil || acct.PublicKey == "" || acct.Account == nil {
		writeError(w, http.StatusBadRequest, "Missing required marketAccount fields")
		return
	}
	if !validPublicKey(acct.PublicKey) {
		writeError(w, http.StatusBadRequest, "Invalid publicKey format")
		return
	}
	if req.PriceData == nil {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	if !h.catalog.Configured() {
		writeError(w, http.StatusServiceUnavailable, "Database not configured")
		return
	}

	rec := domain.NewMarketRecord(*acct, domain.MarketMeta{
		Category:              sanitize(req.Category),
		Description:           sanitize(req.Description),
		Tag:                   sanitize(req.Tag),
		Ticker:                sanitize(req.Ticker),
		ResolutionSource:      sanitize(req.ResolutionSource),
		ResolutionValue:       sanitize(req.ResolutionValue),
		OracleSymbol:          sanitize(req.OracleSymbol),
		MarketCreateTimestamp: rawText(req.MarketCreateTimestamp),
	}, *req.PriceData)

	if _, err := h.catalog.SaveMarket(r.Context(), rec); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotConfigured):
			writeError(w, http.StatusServiceUnavailable, "Database not configured")
		case errors.Is(err, domain.ErrAlreadyExists):
			writeError(w, http.StatusConflict, "market already exists")
		default:
			h.logger.ErrorContext(r.Context(), "save market failed",
				slog.String("market_pk", acct.PublicKey),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// GetMarkets returns every market record, open markets first, then locked,
// then settled. Optional status and category query parameters narrow the
// list.
// GET /api/getMarkets
func (h *MarketHandler) GetMarkets(w http.ResponseWriter, r *http.Request) {
	filter := domain.MarketFilter{
		Status:   domain.MarketStatus(r.URL.Query().Get("status")),
		Category: r.URL.Query().Get("category"),
	}

	markets, err := h.catalog.ListMarkets(r.Context(), filter)
	switch {
	case errors.Is(err, domain.ErrNotConfigured):
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"statusCode": http.StatusServiceUnavailable,
			"message":    "Database not configured",
		})
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "list markets failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"statusCode": http.StatusInternalServerError,
			"message":    "failed to list markets",
		})
		return
	}

	writeJSON(w, http.StatusOK, markets)
}

// GetMarket returns a single market record, or null when the document
// store is not configured.
// GET /api/markets/{publicKey}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	pk := r.PathValue("publicKey")
	if !validPublicKey(pk) {
		writeError(w, http.StatusBadRequest, "Invalid publicKey format")
		return
	}

	rec, err := h.catalog.GetMarket(r.Context(), pk)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotConfigured):
			writeJSON(w, http.StatusOK, nil)
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "market not found")
		default:
			h.logger.ErrorContext(r.Context(), "get market failed",
				slog.String("market_pk", pk),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to get market")
		}
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// GetPosition returns a wallet's on-chain position in a market.
// GET /api/markets/{publicKey}/position?wallet=
func (h *MarketHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	pk := r.PathValue("publicKey")
	wallet := r.URL.Query().Get("wallet")
	if !validPublicKey(pk) || !validPublicKey(wallet) {
		writeError(w, http.StatusBadRequest, "Invalid publicKey format")
		return
	}
	if h.positions == nil {
		writeError(w, http.StatusServiceUnavailable, "Program not initialized")
		return
	}

	pos, err := h.positions.Position(r.Context(), pk, wallet)
	if err != nil {
		if errors.Is(err, domain.ErrNotReady) {
			writeError(w, http.StatusServiceUnavailable, "Program not initialized")
			return
		}
		h.logger.WarnContext(r.Context(), "get position failed",
			slog.String("market_pk", pk),
			slog.String("wallet", wallet),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to fetch position")
		return
	}

	writeJSON(w, http.StatusOK, pos)
}

// rawText returns a JSON string's contents, or any other JSON value as
// written. Clients send the creation timestamp either way.
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
