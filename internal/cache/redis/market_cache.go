package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/editionshop/internal/domain"
)

// DefaultMarketTTL bounds how long a cached market may outlive a missed
// invalidation.
const DefaultMarketTTL = 5 * time.Minute

// setIfNewerLua writes the market only when its version is not older than
// the cached one, so a slow read back-filling the cache cannot overwrite a
// fresher entry.
const setIfNewerLua = `
local cur = redis.call('HGET', KEYS[1], 'version')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
    return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`

// MarketCache implements domain.MarketCache.
//
// Key schema:
//
//	{prefix}:market:{address} - hash with fields "version" and "data" (JSON)
type MarketCache struct {
	c          *Client
	ttl        time.Duration
	setIfNewer *redis.Script
}

// NewMarketCache creates a MarketCache. A zero ttl selects DefaultMarketTTL.
func NewMarketCache(c *Client, ttl time.Duration) *MarketCache {
	if ttl <= 0 {
		ttl = DefaultMarketTTL
	}
	return &MarketCache{c: c, ttl: ttl, setIfNewer: redis.NewScript(setIfNewerLua)}
}

func (mc *MarketCache) marketKey(addr common.Address) string {
	return mc.c.key("market", strings.ToLower(addr.Hex()))
}

// Set caches m unless a newer version is already cached.
func (mc *MarketCache) Set(ctx context.Context, m domain.Market) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", m.Address.Hex(), err)
	}
	err = mc.setIfNewer.Run(ctx, mc.c.rdb,
		[]string{mc.marketKey(m.Address)},
		m.Version, data, mc.ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("redis: set market %s: %w", m.Address.Hex(), err)
	}
	return nil
}

// Get returns the cached market or domain.ErrNotFound.
func (mc *MarketCache) Get(ctx context.Context, addr common.Address) (domain.Market, error) {
	data, err := mc.c.rdb.HGet(ctx, mc.marketKey(addr), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market %s: %w", addr.Hex(), err)
	}
	var m domain.Market
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market %s: %w", addr.Hex(), err)
	}
	return m, nil
}

// Invalidate drops the cached market.
func (mc *MarketCache) Invalidate(ctx context.Context, addr common.Address) error {
	if err := mc.c.rdb.Del(ctx, mc.marketKey(addr)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %s: %w", addr.Hex(), err)
	}
	return nil
}

var _ domain.MarketCache = (*MarketCache)(nil)
