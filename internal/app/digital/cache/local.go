package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// LocalCache 是进程内的负缓存（L1），只记录“这个 secret 查不到”。
//
// access link 的计数是强一致数据，不在这里缓存命中的记录。
type LocalCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewLocalCache maxItems 建议 10000-100000；maxCost 按条目计数（cost=1）。
func NewLocalCache(maxItems int64, ttl time.Duration) (*LocalCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &LocalCache{cache: c, ttl: ttl}, nil
}

func (l *LocalCache) Missing(key string) bool {
	_, ok := l.cache.Get(key)
	return ok
}

func (l *LocalCache) SetMissing(key string) {
	l.cache.SetWithTTL(key, struct{}{}, 1, l.ttl)
}

func (l *LocalCache) Del(key string) {
	l.cache.Del(key)
}

// Wait 阻塞到缓冲区中的写入生效，测试里用来消除 ristretto 的异步写。
func (l *LocalCache) Wait() {
	l.cache.Wait()
}

func (l *LocalCache) Close() {
	l.cache.Close()
}
