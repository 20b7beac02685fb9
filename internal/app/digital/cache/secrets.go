package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"digitals.local/internal/platform/metrics"
	"github.com/redis/go-redis/v9"
)

const notFoundSentinel = "__nil__"

// SecretCache 缓存“secret 不存在”的查询结果，挡住猜测 secret 的请求打到数据库。
//
// key 使用 secret 的 sha256，Redis 里不出现明文 secret。
type SecretCache struct {
	client   *redis.Client
	local    *LocalCache
	emptyTTL time.Duration
}

func NewSecretCache(client *redis.Client, local *LocalCache) *SecretCache {
	return &SecretCache{
		client:   client,
		local:    local,
		emptyTTL: 30 * time.Second,
	}
}

func key(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return "dl:miss:" + hex.EncodeToString(sum[:])
}

// IsMissing 返回 true 表示最近查过且不存在。Redis 故障返回 error，调用方应继续查库。
func (c *SecretCache) IsMissing(ctx context.Context, secret string) (bool, error) {
	k := key(secret)
	if c.local != nil && c.local.Missing(k) {
		metrics.CacheOperations.WithLabelValues("l1", "hit_negative").Inc()
		return true, nil
	}
	if c.client == nil {
		return false, nil
	}

	res, err := c.client.Get(ctx, k).Result()
	if err == redis.Nil {
		metrics.CacheOperations.WithLabelValues("l2", "miss").Inc()
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if res != notFoundSentinel {
		return false, nil
	}
	metrics.CacheOperations.WithLabelValues("l2", "hit_negative").Inc()
	if c.local != nil {
		c.local.SetMissing(k)
	}
	return true, nil
}

func (c *SecretCache) SetMissing(ctx context.Context, secret string) error {
	k := key(secret)
	if c.local != nil {
		c.local.SetMissing(k)
	}
	if c.client == nil {
		return nil
	}
	return c.client.Set(ctx, k, notFoundSentinel, c.emptyTTL).Err()
}

// Forget 在 secret 被签发后清掉负缓存，避免新链接在 TTL 内不可用。
func (c *SecretCache) Forget(ctx context.Context, secret string) error {
	k := key(secret)
	if c.local != nil {
		c.local.Del(k)
	}
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, k).Err()
}

func (c *SecretCache) Close() {
	if c.local != nil {
		c.local.Close()
		slog.Info("local secret cache closed")
	}
}
