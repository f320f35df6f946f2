package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/pascal/internal/domain"
)

// CatalogService is the read/write side of the market catalog: persisted
// market records, their pricing and the per-wallet order documents.
// markets and users may be nil when the document store is not configured;
// every operation then reports domain.ErrNotConfigured.
type CatalogService struct {
	markets domain.MarketStore
	users   domain.UserStore
	cache   domain.MarketCache
	logger  *slog.Logger
}

// NewCatalogService creates a CatalogService. cache may be nil.
func NewCatalogService(
	markets domain.MarketStore,
	users domain.UserStore,
	cache domain.MarketCache,
	logger *slog.Logger,
) *CatalogService {
	return &CatalogService{
		markets: markets,
		users:   users,
		cache:   cache,
		logger:  logger.With(slog.String("component", "catalog_service")),
	}
}

// Configured reports whether the document store is available.
func (s *CatalogService) Configured() bool {
	return s.markets != nil && s.users != nil
}

// SaveMarket persists a record submitted by a client that already created
// the market on-chain.
func (s *CatalogService) SaveMarket(ctx context.Context, rec domain.MarketRecord) (int64, error) {
	if s.markets == nil {
		return 0, domain.ErrNotConfigured
	}
	id, err := s.markets.Insert(ctx, rec)
	if err != nil {
		return 0, fmt.Errorf("catalog_service: insert %s: %w", rec.PublicKey, err)
	}
	s.invalidate(ctx, rec.PublicKey)
	s.logger.InfoContext(ctx, "market record saved",
		slog.String("market_pk", rec.PublicKey),
		slog.Int64("id", id),
	)
	return id, nil
}

// ListMarkets returns the catalog ordered open, locked, settled and newest
// first within each status. The unfiltered catalog is served from the cache
// when possible. The result is never nil.
func (s *CatalogService) ListMarkets(ctx context.Context, filter domain.MarketFilter) ([]domain.MarketRecord, error) {
	if s.markets == nil {
		return []domain.MarketRecord{}, domain.ErrNotConfigured
	}

	unfiltered := filter == domain.MarketFilter{}
	if unfiltered && s.cache != nil {
		if cached, err := s.cache.GetCatalog(ctx); err == nil {
			return cached, nil
		}
	}

	list, err := s.markets.List(ctx, filter, domain.SortByStatus)
	if err != nil {
		return []domain.MarketRecord{}, fmt.Errorf("catalog_service: list: %w", err)
	}
	if list == nil {
		list = []domain.MarketRecord{}
	}

	if unfiltered && s.cache != nil {
		if err := s.cache.SetCatalog(ctx, list); err != nil {
			s.logger.WarnContext(ctx, "catalog cache set failed", slog.String("error", err.Error()))
		}
	}
	return list, nil
}

// GetMarket returns a single record by its on-chain key.
func (s *CatalogService) GetMarket(ctx context.Context, publicKey string) (domain.MarketRecord, error) {
	if s.markets == nil {
		return domain.MarketRecord{}, domain.ErrNotConfigured
	}
	if s.cache != nil {
		if rec, err := s.cache.Get(ctx, publicKey); err == nil {
			return rec, nil
		}
	}

	rec, err := s.markets.GetByPublicKey(ctx, publicKey)
	if err != nil {
		return domain.MarketRecord{}, fmt.Errorf("catalog_service: get %s: %w", publicKey, err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, rec); err != nil {
			s.logger.WarnContext(ctx, "market cache set failed",
				slog.String("market_pk", publicKey),
				slog.String("error", err.Error()),
			)
		}
	}
	return rec, nil
}

// PlaceOrder records an order placed on-chain by a wallet: the wallet's
// order accounts are upserted and the market's pricing refreshed. A market
// without a record is logged and skipped; the user document is still
// written.
func (s *CatalogService) PlaceOrder(ctx context.Context, userPK, marketPK string, orderAccounts json.RawMessage, price domain.PriceData) error {
	if s.markets == nil || s.users == nil {
		return domain.ErrNotConfigured
	}

	if err := s.users.UpsertOrders(ctx, userPK, orderAccounts); err != nil {
		return fmt.Errorf("catalog_service: upsert orders %s: %w", userPK, err)
	}

	err := s.markets.UpdatePricing(ctx, marketPK, domain.PricingFrom(price))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.logger.WarnContext(ctx, "order placed on market without record", slog.String("market_pk", marketPK))
	case err != nil:
		return fmt.Errorf("catalog_service: update pricing %s: %w", marketPK, err)
	default:
		s.invalidate(ctx, marketPK)
	}
	return nil
}

// GetUser returns the order document of a wallet.
func (s *CatalogService) GetUser(ctx context.Context, publicKey string) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, domain.ErrNotConfigured
	}
	u, err := s.users.Get(ctx, publicKey)
	if err != nil {
		return domain.User{}, fmt.Errorf("catalog_service: get user %s: %w", publicKey, err)
	}
	return u, nil
}

func (s *CatalogService) invalidate(ctx context.Context, publicKey string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, publicKey); err != nil {
		s.logger.WarnContext(ctx, "catalog cache invalidate failed",
			slog.String("market_pk", publicKey),
			slog.String("error", err.Error()),
		)
	}
}
