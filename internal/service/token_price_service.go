package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/pascal/internal/domain"
)

// PriceSource fetches the live price of a token mint.
type PriceSource interface {
	TokenPrice(ctx context.Context, mint string) (float64, error)
}

// TokenPriceService serves the price of the lending token. It never fails:
// any problem with the source yields the fallback price.
type TokenPriceService struct {
	source   PriceSource
	cache    domain.PriceCache
	mint     string
	fallback float64
	maxAge   time.Duration
	logger   *slog.Logger

	group singleflight.Group
	now   func() time.Time
}

// NewTokenPriceService creates a TokenPriceService. cache may be nil;
// concurrent lookups are still coalesced into one source request.
func NewTokenPriceService(source PriceSource, cache domain.PriceCache, mint string, fallback float64, maxAge time.Duration, logger *slog.Logger) *TokenPriceService {
	return &TokenPriceService{
		source:   source,
		cache:    cache,
		mint:     mint,
		fallback: fallback,
		maxAge:   maxAge,
		logger:   logger.With(slog.String("component", "token_price")),
		now:      time.Now,
	}
}

// Mint returns the token mint being priced.
func (s *TokenPriceService) Mint() string { return s.mint }

// Price returns the current token price, or the fallback price when the
// source is unavailable or quotes zero.
func (s *TokenPriceService) Price(ctx context.Context) float64 {
	if s.cache != nil {
		if p, ts, err := s.cache.GetPrice(ctx, s.mint); err == nil && p > 0 && s.fresh(ts) {
			return p
		}
	}

	v, err, _ := s.group.Do(s.mint, func() (any, error) {
		p, err := s.source.TokenPrice(ctx, s.mint)
		if err != nil {
			return 0.0, err
		}
		if s.cache != nil {
			if err := s.cache.SetPrice(ctx, s.mint, p, s.now()); err != nil {
				s.logger.WarnContext(ctx, "price cache set failed", slog.String("error", err.Error()))
			}
		}
		return p, nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "token price unavailable, using fallback",
			slog.String("mint", s.mint),
			slog.String("error", err.Error()),
		)
		return s.fallback
	}
	if p := v.(float64); p > 0 {
		return p
	}
	return s.fallback
}

func (s *TokenPriceService) fresh(ts time.Time) bool {
	return s.maxAge <= 0 || s.now().Sub(ts) <= s.maxAge
}
