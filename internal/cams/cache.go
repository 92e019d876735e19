package cams

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/cams-router/internal/domain"
)

// Кэш резолва. Позитивная запись — JSON маппинга с TTL, негативная — короткий
// sentinel для адресов, которых в каталоге нет (защита от шторма лукапов по
// несуществующим адресам). Любой сбой Redis деградирует в cache miss: кэш
// никогда не роняет резолв.

const cacheNamespace = "camsrouter:mapping:"
const negativeSentinel = "__not_found__"

func cacheKey(address string) string {
	return cacheNamespace + address
}

// cacheGet: hit=false — идем в хранилище; negative=true — кэшированное "нет записи".
func (c *Client) cacheGet(ctx context.Context, address string) (hit bool, m *domain.AgentMapping, negative bool) {
	if c.cache == nil {
		return false, nil, false
	}

	val, err := c.cache.Get(ctx, cacheKey(address)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache read failed", zap.String("address", address), zap.Error(err))
		}
		c.metrics.CacheEvents.WithLabelValues("miss").Inc()
		return false, nil, false
	}

	if val == negativeSentinel {
		c.metrics.CacheEvents.WithLabelValues("negative_hit").Inc()
		return true, nil, true
	}

	var cached domain.AgentMapping
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		c.logger.Warn("cache entry corrupted, dropping", zap.String("address", address), zap.Error(err))
		c.cache.Del(ctx, cacheKey(address))
		c.metrics.CacheEvents.WithLabelValues("miss").Inc()
		return false, nil, false
	}

	c.metrics.CacheEvents.WithLabelValues("hit").Inc()
	return true, &cached, false
}

// cacheSet: m == nil пишет негативную запись с коротким TTL.
func (c *Client) cacheSet(ctx context.Context, address string, m *domain.AgentMapping) {
	if c.cache == nil {
		return
	}

	if m == nil {
		if err := c.cache.Set(ctx, cacheKey(address), negativeSentinel, c.cfg.NegativeCacheTTL).Err(); err != nil {
			c.logger.Warn("negative cache write failed", zap.String("address", address), zap.Error(err))
		}
		return
	}

	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, cacheKey(address), data, c.cfg.CacheTTL).Err(); err != nil {
		c.logger.Warn("cache write failed", zap.String("address", address), zap.Error(err))
	}
}

func (c *Client) cacheInvalidate(ctx context.Context, address string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Del(ctx, cacheKey(address)).Err(); err != nil {
		c.logger.Warn("cache invalidation failed", zap.String("address", address), zap.Error(err))
	}
}
