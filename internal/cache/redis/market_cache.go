package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/pascal/internal/domain"
)

const defaultCatalogTTL = 30 * time.Second

// MarketCache implements domain.MarketCache. The sorted catalog is one JSON
// string; single records are hashes so the market page can be served without
// a catalog read.
//
// Key schema:
//
//	pascal:catalog         - JSON array of the sorted catalog
//	pascal:market:{pubkey} - hash with field "data" containing JSON
type MarketCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMarketCache creates a MarketCache backed by the given Client. A
// non-positive ttl selects the default of 30 seconds.
func NewMarketCache(c *Client, ttl time.Duration) *MarketCache {
	if ttl <= 0 {
		ttl = defaultCatalogTTL
	}
	return &MarketCache{rdb: c.Underlying(), ttl: ttl}
}

const catalogKey = "pascal:catalog"

func marketKey(publicKey string) string { return "pascal:market:" + publicKey }

// SetCatalog stores the full sorted catalog.
func (mc *MarketCache) SetCatalog(ctx context.Context, markets []domain.MarketRecord) error {
	data, err := json.Marshal(markets)
	if err != nil {
		return fmt.Errorf("redis: marshal catalog: %w", err)
	}
	if err := mc.rdb.Set(ctx, catalogKey, data, mc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set catalog: %w", err)
	}
	return nil
}

// GetCatalog returns the cached catalog or domain.ErrNotFound.
func (mc *MarketCache) GetCatalog(ctx context.Context) ([]domain.MarketRecord, error) {
	data, err := mc.rdb.Get(ctx, catalogKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get catalog: %w", err)
	}

	var markets []domain.MarketRecord
	if err := json.Unmarshal(data, &markets); err != nil {
		return nil, fmt.Errorf("redis: unmarshal catalog: %w", err)
	}
	return markets, nil
}

// Set stores a single market record.
func (mc *MarketCache) Set(ctx context.Context, market domain.MarketRecord) error {
	data, err := json.Marshal(market)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", market.PublicKey, err)
	}

	key := marketKey(market.PublicKey)
	pipe := mc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, mc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set market %s: %w", market.PublicKey, err)
	}
	return nil
}

// Get retrieves a market record by its public key.
// It returns domain.ErrNotFound when the key does not exist.
func (mc *MarketCache) Get(ctx context.Context, publicKey string) (domain.MarketRecord, error) {
	data, err := mc.rdb.HGet(ctx, marketKey(publicKey), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.MarketRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.MarketRecord{}, fmt.Errorf("redis: get market %s: %w", publicKey, err)
	}

	var market domain.MarketRecord
	if err := json.Unmarshal(data, &market); err != nil {
		return domain.MarketRecord{}, fmt.Errorf("redis: unmarshal market %s: %w", publicKey, err)
	}
	return market, nil
}

// Invalidate drops the cached catalog and, when publicKey is non-empty, the
// single record. Any write to the markets table calls it.
func (mc *MarketCache) Invalidate(ctx context.Context, publicKey string) error {
	keys := []string{catalogKey}
	if publicKey != "" {
		keys = append(keys, marketKey(publicKey))
	}
	if err := mc.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %s: %w", publicKey, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
