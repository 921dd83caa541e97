package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Stats 带宽统计快照
type Stats struct {
	TotalIn  int64   `json:"total_in"`
	TotalOut int64   `json:"total_out"`
	RateIn   float64 `json:"rate_in"`
	RateOut  float64 `json:"rate_out"`
}

type meterPair struct {
	in, out *RateMeter
}

func (p meterPair) stats() Stats {
	return Stats{
		TotalIn:  p.in.Total(),
		TotalOut: p.out.Total(),
		RateIn:   p.in.Rate(),
		RateOut:  p.out.Rate(),
	}
}

// BandwidthCounter 按连接池统计收发字节
//
// 被动接受的连接没有池名，统计在空字符串下。
type BandwidthCounter struct {
	clk   clock.Clock
	total meterPair

	mu    sync.RWMutex
	pools map[string]meterPair
}

// NewBandwidthCounter 创建带宽计数器
func NewBandwidthCounter(clk clock.Clock) *BandwidthCounter {
	if clk == nil {
		clk = clock.New()
	}
	return &BandwidthCounter{
		clk:   clk,
		total: meterPair{NewRateMeter(clk), NewRateMeter(clk)},
		pools: make(map[string]meterPair),
	}
}

func (b *BandwidthCounter) pool(name string) meterPair {
	b.mu.RLock()
	p, ok := b.pools[name]
	b.mu.RUnlock()
	if ok {
		return p
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok = b.pools[name]; !ok {
		p = meterPair{NewRateMeter(b.clk), NewRateMeter(b.clk)}
		b.pools[name] = p
	}
	return p
}

// LogSent 记录发送字节
func (b *BandwidthCounter) LogSent(pool string, n int64) {
	b.total.out.Add(n)
	b.pool(pool).out.Add(n)
}

// LogRecv 记录接收字节
func (b *BandwidthCounter) LogRecv(pool string, n int64) {
	b.total.in.Add(n)
	b.pool(pool).in.Add(n)
}

// Totals 全局统计
func (b *BandwidthCounter) Totals() Stats {
	return b.total.stats()
}

// ForPool 单个连接池的统计
func (b *BandwidthCounter) ForPool(pool string) Stats {
	b.mu.RLock()
	p, ok := b.pools[pool]
	b.mu.RUnlock()
	if !ok {
		return Stats{}
	}
	return p.stats()
}

// ByPool 所有连接池的统计
func (b *BandwidthCounter) ByPool() map[string]Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]Stats, len(b.pools))
	for name, p := range b.pools {
		out[name] = p.stats()
	}
	return out
}

// Pools 已统计的连接池名（排序）
func (b *BandwidthCounter) Pools() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.pools))
	for name := range b.pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TrimIdle 删除 since 之后没有流量的连接池统计
func (b *BandwidthCounter) TrimIdle(since time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for name, p := range b.pools {
		if p.in.LastUpdate().Before(since) && p.out.LastUpdate().Before(since) {
			delete(b.pools, name)
			n++
		}
	}
	return n
}
