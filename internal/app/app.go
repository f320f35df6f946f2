// Package app provides the top-level application lifecycle for the pascal
// backend. It wires stores, caches, object storage, the operator wallet and
// notifications into the services, then serves the HTTP API and websocket
// hub until the context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/pascal/internal/config"
	"github.com/alanyoungcy/pascal/internal/server"
	"github.com/alanyoungcy/pascal/internal/server/handler"
	"github.com/alanyoungcy/pascal/internal/server/ws"
	"github.com/alanyoungcy/pascal/internal/service"
)

const (
	shutdownTimeout = 10 * time.Second
	// drainTimeout bounds how long shutdown waits for accepted creation runs.
	drainTimeout  = 2 * time.Minute
	sweepInterval = time.Minute
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

// Run wires all dependencies, starts the API server and websocket hub, and
// blocks until the context is cancelled. Mode "api" serves the persistence
// gateway only; mode "full" also connects the operator wallet so server-side
// creation and position reads work.
func (a *App) Run(ctx context.Context) error {
	mode := strings.ToLower(a.cfg.Mode)
	if mode != "api" && mode != "full" {
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	return a.serve(ctx, mode, deps)
}

// serve builds the services and handlers over deps and runs the server, the
// hub and the fallback sweepers in one errgroup.
func (a *App) serve(ctx context.Context, mode string, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	catalog := service.NewCatalogService(deps.MarketStore, deps.UserStore, deps.MarketCache, a.logger)
	positions := service.NewPositionService(deps.Wallet)
	prices := service.NewTokenPriceService(
		deps.PriceFeed, deps.PriceCache,
		a.cfg.TokenPrice.Mint, a.cfg.TokenPrice.FallbackPrice, a.cfg.TokenPrice.CacheTTL.Duration,
		a.logger,
	)
	loans := service.NewLoanService(deps.LoanStore, prices, a.cfg.Lending.LTV, a.logger)
	creator := service.NewMarketCreator(deps.MarketStore, deps.MarketCache, service.CreatorConfig{
		QuoteMint: a.cfg.Program.QuoteMint,
		BatchSize: a.cfg.Program.PriceBatchSize,
	}, a.logger)
	creation := service.NewCreationService(
		creator, deps.Wallet, deps.LockManager, deps.SignalBus,
		deps.AuditStore, deps.Notifier, a.logger,
	)

	// A nil *Exporter must not reach the handler as a non-nil interface.
	var exporter handler.CatalogExporter
	if deps.Exporter != nil {
		exporter = deps.Exporter
	}

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(a.logger),
		Status:   handler.NewStatusHandler(mode, deps.Wallet.PublicKey(), creation.Ready, deps.Checks),
		Markets:  handler.NewMarketHandler(catalog, positions, a.logger),
		Orders:   handler.NewOrderHandler(catalog, a.logger),
		Lending:  handler.NewLendingHandler(loans, prices, a.logger),
		Creation: handler.NewCreationHandler(creation, a.logger),
		Admin:    handler.NewAdminHandler(exporter, deps.Exports, deps.AuditStore, a.logger),
	}

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:           mode,
		Operator:       deps.Wallet.PublicKey(),
		StartedAt:      time.Now().UTC(),
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	})

	srv := server.NewServer(server.Config{
		Port:             a.cfg.Server.Port,
		CORSOrigins:      a.cfg.Server.CORSOrigins,
		APIKeys:          a.cfg.Server.APIKeys,
		GateCreateMarket: a.cfg.Server.GateCreateMarket,
		RateLimit:        a.cfg.Server.RateLimit,
		RateWindow:       time.Duration(a.cfg.Server.RateWindowSec) * time.Second,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return hub.Run(ctx)
	})

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			return err
		}

		// Accepted runs outlive their request; let them reach a terminal
		// status before the stores are closed.
		drainCtx, cancelDrain := context.WithTimeout(context.Background(), drainTimeout)
		defer cancelDrain()
		if err := creation.Wait(drainCtx); err != nil {
			a.logger.Warn("creation runs still in flight at shutdown", slog.String("error", err.Error()))
		}
		return nil
	})

	if len(deps.sweepers) > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(sweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					for _, sweep := range deps.sweepers {
						sweep()
					}
				}
			}
		})
	}

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
