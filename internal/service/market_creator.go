// Package service holds the application logic between the HTTP handlers and
// the stores: market creation, the market catalog, lending and token prices.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/pascal/internal/domain"
	"github.com/alanyoungcy/pascal/internal/platform/monaco"
	"github.com/alanyoungcy/pascal/internal/wallet"
)

// StatusFunc receives each creation status as the orchestrator reaches it.
type StatusFunc func(domain.CreationStatus)

// WalletContext is the connected operator the orchestrator acts as.
type WalletContext interface {
	Ready() error
	PublicKey() string
	Program() domain.ProgramClient
}

// defaultOutcomes are the outcomes of an EventResultWinner market.
var defaultOutcomes = []string{"Yes", "No"}

// CreatorConfig tunes the orchestrator.
type CreatorConfig struct {
	QuoteMint string
	BatchSize int
	Ladder    []float64
}

// MarketCreator runs the on-chain market creation sequence and writes the
// resulting record. It holds no per-run state; concurrent calls are
// independent.
type MarketCreator struct {
	markets   domain.MarketStore
	cache     domain.MarketCache
	quoteMint string
	batchSize int
	ladder    []float64
	logger    *slog.Logger

	newEventKey func() (string, error)
	now         func() time.Time
}

// NewMarketCreator creates a MarketCreator. markets may be nil, in which case
// every run fails at the persist step; cache may be nil.
func NewMarketCreator(markets domain.MarketStore, cache domain.MarketCache, cfg CreatorConfig, logger *slog.Logger) *MarketCreator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = monaco.DefaultBatchSize
	}
	if len(cfg.Ladder) == 0 {
		cfg.Ladder = monaco.DefaultPriceLadder()
	}
	return &MarketCreator{
		markets:   markets,
		cache:     cache,
		quoteMint: cfg.QuoteMint,
		batchSize: cfg.BatchSize,
		ladder:    cfg.Ladder,
		logger:    logger.With(slog.String("component", "market_creator")),
		newEventKey: func() (string, error) {
			id, err := wallet.GenerateIdentity()
			if err != nil {
				return "", err
			}
			return id.PublicKey(), nil
		},
		now: time.Now,
	}
}

// Create runs the full sequence for req as the operator in wc:
//
//  1. probe operator roles (best effort)
//  2. create the market
//  3. initialise the Yes/No outcomes
//  4. seed the price ladder into every outcome pool
//  5. open the market
//  6. fetch price data and the market account
//  7. persist the market record
//
// report is called with each status before the matching step starts, and
// with StatusSuccess after the record is written. Any failure in steps 2-5
// stops the run with a *domain.StepError and nothing is persisted. A failure
// in 6 or 7 returns the market key together with an error wrapping
// domain.ErrPersistFailed: the market exists on-chain without a record.
func (m *MarketCreator) Create(ctx context.Context, wc WalletContext, req domain.MarketCreationRequest, report StatusFunc) (string, error) {
	if wc == nil {
		return "", fmt.Errorf("market_creator: wallet not connected: %w", domain.ErrNotReady)
	}
	if err := wc.Ready(); err != nil {
		return "", fmt.Errorf("market_creator: %w", err)
	}
	if report == nil {
		report = func(domain.CreationStatus) {}
	}

	program := wc.Program()
	operator := wc.PublicKey()
	log := m.logger.With(slog.String("operator", operator))

	m.probeRoles(ctx, program, operator, log)

	report(domain.StatusCreatingMarket)
	eventPK, err := m.newEventKey()
	if err != nil {
		return "", &domain.StepError{Status: domain.StatusCreatingMarket, Op: "generate event account", Err: err}
	}
	created, err := program.CreateMarket(ctx, domain.CreateMarketParams{
		Title:     req.Title,
		Type:      domain.MarketTypeEventResultWinner,
		QuoteMint: m.quoteMint,
		LockTime:  req.LockTimestamp.Unix(),
		EventPK:   eventPK,
		Authority: operator,
	})
	if err := stepErr(domain.StatusCreatingMarket, "create market", created, err); err != nil {
		log.ErrorContext(ctx, "error creating market", slog.String("error", err.Error()))
		return "", err
	}
	marketPK := created.Data.MarketPK
	if marketPK == "" {
		return "", &domain.StepError{Status: domain.StatusCreatingMarket, Op: "create market", Err: errors.New("gateway returned no market key")}
	}
	log = log.With(slog.String("market_pk", marketPK))
	log.InfoContext(ctx, "market account created", slog.String("tx", created.Data.TxID))

	report(domain.StatusInitialisingOutcomes)
	outcomes, err := program.InitialiseOutcomes(ctx, marketPK, defaultOutcomes)
	if err := stepErr(domain.StatusInitialisingOutcomes, "initialise outcomes", outcomes, err); err != nil {
		log.ErrorContext(ctx, "error initialising outcomes", slog.String("error", err.Error()))
		return "", err
	}
	log.InfoContext(ctx, "outcomes added to market", slog.Int("outcomes", len(outcomes.Data.Outcomes)))

	report(domain.StatusAddingPrices)
	prices, err := program.BatchAddPricesToAllOutcomePools(ctx, marketPK, m.ladder, m.batchSize)
	if err := stepErr(domain.StatusAddingPrices, "add prices", prices, err); err != nil {
		log.ErrorContext(ctx, "error adding prices to outcomes", slog.String("error", err.Error()))
		return "", err
	}
	log.InfoContext(ctx, "prices added to outcomes", slog.Int("transactions", len(prices.Data.TxIDs)))

	report(domain.StatusOpeningMarket)
	opened, err := program.OpenMarket(ctx, marketPK)
	if err := stepErr(domain.StatusOpeningMarket, "open market", opened, err); err != nil {
		log.ErrorContext(ctx, "error opening market", slog.String("error", err.Error()))
		return "", err
	}
	createdAt := domain.CreateTimestampHex(m.now())

	if err := m.persist(ctx, program, marketPK, createdAt, req); err != nil {
		log.ErrorContext(ctx, "market created on-chain but not persisted", slog.String("error", err.Error()))
		return marketPK, fmt.Errorf("market_creator: market %s: %w: %w", marketPK, domain.ErrPersistFailed, err)
	}

	report(domain.StatusSuccess)
	log.InfoContext(ctx, "market creation complete")
	return marketPK, nil
}

// probeRoles warns when the operator lacks the market role. It never stops
// the run: the program itself rejects unauthorised instructions.
func (m *MarketCreator) probeRoles(ctx context.Context, program domain.ProgramClient, operator string, log *slog.Logger) {
	roles, err := program.CheckOperatorRoles(ctx, operator)
	switch {
	case err != nil:
		log.WarnContext(ctx, "could not check operator roles", slog.String("error", err.Error()))
	case !roles.Success || !roles.Data.Market:
		log.WarnContext(ctx, "wallet may not have operator role, attempting market creation anyway")
	}
}

// persist fetches the derived data and writes the market record.
func (m *MarketCreator) persist(ctx context.Context, program domain.ProgramClient, marketPK, createdAt string, req domain.MarketCreationRequest) error {
	if m.markets == nil {
		return domain.ErrNotConfigured
	}

	priceData, err := program.GetPriceData(ctx, marketPK)
	if err := resultErr(priceData, err); err != nil {
		return fmt.Errorf("get price data: %w", err)
	}
	account, err := program.GetMarket(ctx, marketPK)
	if err := resultErr(account, err); err != nil {
		return fmt.Errorf("get market: %w", err)
	}
	if account.Data.PublicKey == "" {
		account.Data.PublicKey = marketPK
	}

	rec := domain.NewMarketRecord(account.Data, domain.MarketMeta{
		Category:              req.Category,
		Description:           req.Description,
		Tag:                   req.Tag,
		Ticker:                req.Ticker,
		ResolutionSource:      req.ResolutionSource,
		ResolutionValue:       req.ResolutionValue,
		OracleSymbol:          req.OracleSymbol,
		MarketCreateTimestamp: createdAt,
	}, priceData.Data)

	if _, err := m.markets.Insert(ctx, rec); err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	if m.cache != nil {
		if err := m.cache.Invalidate(ctx, marketPK); err != nil {
			m.logger.WarnContext(ctx, "catalog cache invalidate failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// resultErr folds a transport error and an unsuccessful envelope into one
// error.
func resultErr[T any](res domain.ProgramResult[T], err error) error {
	if err != nil {
		return err
	}
	if !res.Success {
		if len(res.Errors) > 0 {
			return errors.New(strings.Join(res.Errors, "; "))
		}
		return errors.New("program reported failure")
	}
	return nil
}

func stepErr[T any](status domain.CreationStatus, op string, res domain.ProgramResult[T], err error) error {
	if err := resultErr(res, err); err != nil {
		return &domain.StepError{Status: status, Op: op, Err: err}
	}
	return nil
}
