package service

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/pascal/internal/domain"
)

// PositionService reads wallet positions from the program.
type PositionService struct {
	wallet WalletContext
}

// NewPositionService creates a PositionService reading through wc.
func NewPositionService(wc WalletContext) *PositionService {
	return &PositionService{wallet: wc}
}

// Position returns the exposure of walletPK in marketPK.
func (s *PositionService) Position(ctx context.Context, marketPK, walletPK string) (domain.MarketPosition, error) {
	if s.wallet == nil {
		return domain.MarketPosition{}, fmt.Errorf("position_service: wallet not connected: %w", domain.ErrNotReady)
	}
	if err := s.wallet.Ready(); err != nil {
		return domain.MarketPosition{}, fmt.Errorf("position_service: %w", err)
	}

	res, err := s.wallet.Program().GetMarketPosition(ctx, marketPK, walletPK)
	if err := resultErr(res, err); err != nil {
		return domain.MarketPosition{}, fmt.Errorf("position_service: market %s wallet %s: %w", marketPK, walletPK, err)
	}
	return res.Data, nil
}
