package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/alanyoungcy/pascal/internal/blob/s3"
	"github.com/alanyoungcy/pascal/internal/cache/local"
	"github.com/alanyoungcy/pascal/internal/cache/redis"
	"github.com/alanyoungcy/pascal/internal/config"
	"github.com/alanyoungcy/pascal/internal/domain"
	"github.com/alanyoungcy/pascal/internal/notify"
	"github.com/alanyoungcy/pascal/internal/platform/monaco"
	"github.com/alanyoungcy/pascal/internal/platform/pricefeed"
	"github.com/alanyoungcy/pascal/internal/server/handler"
	"github.com/alanyoungcy/pascal/internal/store/postgres"
	"github.com/alanyoungcy/pascal/internal/wallet"
)

// Dependencies bundles every infrastructure dependency the services need.
// Optional backends that are not configured are left nil; the services and
// handlers treat a nil store as "not configured".
type Dependencies struct {
	// Stores
	MarketStore domain.MarketStore
	UserStore   domain.UserStore
	AuditStore  domain.AuditStore
	LoanStore   domain.LoanStore

	// Caches and coordination. Redis-backed when configured, in-process
	// otherwise; the two caches stay nil without Redis.
	MarketCache domain.MarketCache
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Object storage
	Exporter *s3blob.Exporter
	Exports  domain.BlobLister

	// Upstreams
	Wallet    *wallet.Context
	PriceFeed *pricefeed.Client

	Notifier *notify.Notifier

	// Checks probes each backend for GET /api/status.
	Checks map[string]handler.Check

	// sweepers run periodically to bound the in-process fallbacks.
	sweepers []func()
}

// notConfigured is the status check of a backend that was never set up.
func notConfigured(context.Context) error { return domain.ErrNotConfigured }

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{
		Checks: map[string]handler.Check{
			"documents": notConfigured,
			"supabase":  notConfigured,
			"redis":     notConfigured,
			"s3":        notConfigured,
		},
	}

	// --- Document store (markets, users, audit) ---
	if cfg.Documents.Configured() {
		docs, err := postgres.New(ctx, clientConfig("documents", cfg.Documents))
		if err != nil {
			return fail(fmt.Errorf("wire: %w", err))
		}
		closers = append(closers, docs.Close)

		if cfg.Documents.RunMigrations {
			if err := docs.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: %w", err))
			}
		}

		pool := docs.Pool()
		deps.MarketStore = postgres.NewMarketStore(pool)
		deps.UserStore = postgres.NewUserStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Checks["documents"] = docs.Ping
	} else {
		logger.WarnContext(ctx, "document store not configured; catalog endpoints will answer 503")
	}

	// --- Supabase row store (loans) ---
	if cfg.Supabase.Configured() {
		rows, err := postgres.New(ctx, clientConfig("supabase", cfg.Supabase))
		if err != nil {
			return fail(fmt.Errorf("wire: %w", err))
		}
		closers = append(closers, rows.Close)
		deps.LoanStore = postgres.NewLoanStore(rows.Pool())
		deps.Checks["supabase"] = rows.Ping
	} else {
		logger.WarnContext(ctx, "supabase not configured; lending endpoints will answer empty")
	}

	// --- Redis, with in-process fallbacks ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	switch {
	case err == nil:
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.MarketCache = redis.NewMarketCache(redisClient, time.Duration(cfg.Redis.CatalogTTLSec)*time.Second)
		deps.PriceCache = redis.NewPriceCache(redisClient, cfg.TokenPrice.CacheTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.Checks["redis"] = redisClient.Ping
	case errors.Is(err, domain.ErrNotConfigured):
		logger.WarnContext(ctx, "redis not configured; using in-process locks, rate limits and bus")
		locks := local.NewLockManager()
		limiter := local.NewRateLimiter()
		window := time.Duration(cfg.Server.RateWindowSec) * time.Second
		deps.LockManager = locks
		deps.RateLimiter = limiter
		bus := local.NewBus(cfg.Redis.StreamMaxLen)
		deps.SignalBus = bus
		deps.sweepers = append(deps.sweepers, locks.Cleanup, bus.Cleanup, func() { limiter.Cleanup(2 * window) })
	default:
		return fail(fmt.Errorf("wire: %w", err))
	}

	// --- S3 catalog export ---
	s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       cfg.S3.Endpoint,
		Region:         cfg.S3.Region,
		Bucket:         cfg.S3.Bucket,
		AccessKey:      cfg.S3.AccessKey,
		SecretKey:      cfg.S3.SecretKey,
		UseSSL:         cfg.S3.UseSSL,
		ForcePathStyle: cfg.S3.ForcePathStyle,
	})
	switch {
	case err == nil:
		if deps.MarketStore != nil {
			deps.Exporter = s3blob.NewExporter(s3blob.NewWriter(s3Client), deps.MarketStore, deps.AuditStore)
		}
		deps.Exports = s3blob.NewReader(s3Client)
		deps.Checks["s3"] = s3Client.Health
	case errors.Is(err, domain.ErrNotConfigured):
		logger.InfoContext(ctx, "s3 not configured; catalog export disabled")
	default:
		return fail(fmt.Errorf("wire: %w", err))
	}

	// --- Operator wallet and program gateway ---
	if strings.EqualFold(cfg.Mode, "full") {
		wc, err := wallet.Connect(wallet.KeyConfig{
			RawKey:           cfg.Operator.PrivateKey,
			EncryptedKeyPath: cfg.Operator.EncryptedKeyPath,
			KeyPassword:      cfg.Operator.KeyPassword,
		}, func(id *wallet.Identity) (domain.ProgramClient, error) {
			return monaco.Dial(ctx, monaco.Config{
				URL:         cfg.Program.RPCURL,
				ProgramID:   cfg.Program.ProgramID,
				CallTimeout: cfg.Program.CallTimeout.Duration,
			}, id)
		})
		if err != nil {
			return fail(fmt.Errorf("wire: operator wallet: %w", err))
		}
		closers = append(closers, func() { _ = wc.Close() })
		deps.Wallet = wc
		logger.InfoContext(ctx, "operator wallet connected", slog.String("operator", wc.PublicKey()))
	} else {
		logger.InfoContext(ctx, "api mode: operator wallet not connected; server-side creation and positions disabled")
	}

	deps.PriceFeed = pricefeed.New(cfg.TokenPrice.NodeURL, cfg.TokenPrice.Timeout.Duration)

	deps.Notifier = notify.New(notify.Settings{
		TelegramToken:     cfg.Notify.TelegramToken,
		TelegramChatID:    cfg.Notify.TelegramChatID,
		DiscordWebhookURL: cfg.Notify.DiscordWebhookURL,
		Events:            cfg.Notify.Events,
	}, logger)

	return deps, cleanup, nil
}

func clientConfig(name string, db config.DatabaseConfig) postgres.ClientConfig {
	return postgres.ClientConfig{
		Name:     name,
		DSN:      db.DSN,
		Host:     db.Host,
		Port:     db.Port,
		Database: db.Database,
		User:     db.User,
		Password: db.Password,
		SSLMode:  db.SSLMode,
		MaxConns: db.PoolMaxConns,
		MinConns: db.PoolMinConns,
	}
}
