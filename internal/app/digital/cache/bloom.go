package cache

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// BloomFilter 记录所有已签发的 secret，用于在查库前快速判定“一定不存在”。
//
// 只适合单实例部署：其他实例新建的 secret 不会出现在本地过滤器里。
type BloomFilter struct {
	filter *bloom.BloomFilter
	mu     sync.RWMutex
}

// NewBloomFilter expectedItems 为预期 secret 数量，falsePositiveRate 建议 0.01。
func NewBloomFilter(expectedItems uint, falsePositiveRate float64) *BloomFilter {
	return &BloomFilter{
		filter: bloom.NewWithEstimates(expectedItems, falsePositiveRate),
	}
}

func (b *BloomFilter) Add(secret string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filter.AddString(secret)
}

// MightExist 返回 false 表示 secret 一定没有签发过。
func (b *BloomFilter) MightExist(secret string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filter.TestString(secret)
}

func (b *BloomFilter) Count() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filter.ApproximatedSize()
}
