package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/pascal/internal/domain"
)

// OrderHandler serves order placement and the per-wallet user document.
type OrderHandler struct {
	catalog CatalogService
	logger  *slog.Logger
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(catalog CatalogService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		catalog: catalog,
		logger:  logger.With(slog.String("handler", "order")),
	}
}

type placeOrderRequest struct {
	PublicKey string `json:"publicKey"`
	MarketPK  string `json:"marketPk"`
	OrderData *struct {
		Data struct {
			OrderAccounts json.RawMessage `json:"orderAccounts"`
		} `json:"data"`
	} `json:"orderData"`
	PriceData *domain.PriceData `json:"priceData"`
}

// PlaceOrder records an order placed on-chain: the wallet's order accounts
// and the market's latest pricing.
// POST /api/placeOrder
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.PublicKey == "" || req.MarketPK == "" || req.OrderData == nil || req.PriceData == nil {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	if !validPublicKey(req.PublicKey) {
		writeError(w, http.StatusBadRequest, "Invalid publicKey format")
		return
	}
	if !validPublicKey(req.MarketPK) {
		writeError(w, http.StatusBadRequest, "Invalid marketPk format")
		return
	}

	err := h.catalog.PlaceOrder(r.Context(), req.PublicKey, req.MarketPK, req.OrderData.Data.OrderAccounts, *req.PriceData)
	switch {
	case errors.Is(err, domain.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "Database not configured")
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "place order failed",
			slog.String("user_pk", req.PublicKey),
			slog.String("market_pk", req.MarketPK),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// GetUser returns the order document of a wallet, or null when the wallet
// has none or the document store is not configured.
// GET /api/user?publicKey=
func (h *OrderHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	pk := r.URL.Query().Get("publicKey")
	if !validPublicKey(pk) {
		writeError(w, http.StatusBadRequest, "Invalid publicKey format")
		return
	}
	if !alphanumeric(pk) {
		writeError(w, http.StatusBadRequest, "Invalid publicKey characters")
		return
	}

	user, err := h.catalog.GetUser(r.Context(), pk)
	switch {
	case errors.Is(err, domain.ErrNotConfigured), errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusOK, nil)
	case err != nil:
		h.logger.ErrorContext(r.Context(), "get user failed",
			slog.String("user_pk", pk),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	default:
		writeJSON(w, http.StatusOK, user)
	}
}
