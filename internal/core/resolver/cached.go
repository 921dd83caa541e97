package resolver

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/dep2p/go-msgrpc/pkg/interfaces"
)

// Cached 带过期缓存的解析器
//
// 只缓存成功结果；同一名称的并发查询合并为一次。
type Cached struct {
	next  interfaces.Resolver
	cache *expirable.LRU[string, []string]
	group singleflight.Group
}

var _ interfaces.Resolver = (*Cached)(nil)

// NewCached 创建缓存解析器
func NewCached(next interfaces.Resolver, size int, ttl time.Duration) *Cached {
	return &Cached{
		next:  next,
		cache: expirable.NewLRU[string, []string](size, nil, ttl),
	}
}

// Resolve 实现 interfaces.Resolver
func (c *Cached) Resolve(ctx context.Context, name string) ([]string, error) {
	if addrs, ok := c.cache.Get(name); ok {
		return clone(addrs), nil
	}

	v, err, _ := c.group.Do(name, func() (interface{}, error) {
		addrs, err := c.next.Resolve(ctx, name)
		if err != nil {
			return nil, err
		}
		c.cache.Add(name, addrs)
		return addrs, nil
	})
	if err != nil {
		return nil, err
	}
	return clone(v.([]string)), nil
}

// Purge 清空缓存
func (c *Cached) Purge() {
	c.cache.Purge()
}

// Len 返回缓存条目数
func (c *Cached) Len() int {
	return c.cache.Len()
}

func clone(s []string) []string {
	return append([]string(nil), s...)
}
