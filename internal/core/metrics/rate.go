package metrics

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const rateWindow = 60

// RateMeter 滑动窗口速率计
//
// 60 个 1 秒桶，Rate 返回最近一分钟的平均字节速率。
type RateMeter struct {
	mu      sync.Mutex
	clk     clock.Clock
	buckets [rateWindow]int64
	idx     int
	last    time.Time
	lastAdd time.Time
	total   int64
}

// NewRateMeter 创建速率计，clk 为空时使用系统时钟
func NewRateMeter(clk clock.Clock) *RateMeter {
	if clk == nil {
		clk = clock.New()
	}
	now := clk.Now()
	return &RateMeter{clk: clk, last: now, lastAdd: now}
}

// advance 将窗口推进到当前时间，调用方持有锁
func (r *RateMeter) advance() {
	now := r.clk.Now()
	steps := int(now.Sub(r.last) / time.Second)
	if steps <= 0 {
		return
	}
	if steps >= rateWindow {
		r.buckets = [rateWindow]int64{}
		r.idx = 0
	} else {
		for i := 0; i < steps; i++ {
			r.idx = (r.idx + 1) % rateWindow
			r.buckets[r.idx] = 0
		}
	}
	r.last = r.last.Add(time.Duration(steps) * time.Second)
}

// Add 记录字节数
func (r *RateMeter) Add(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advance()
	r.buckets[r.idx] += n
	r.total += n
	r.lastAdd = r.clk.Now()
}

// Rate 最近 60 秒的平均速率（字节/秒）
func (r *RateMeter) Rate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advance()
	var sum int64
	for _, v := range r.buckets {
		sum += v
	}
	return float64(sum) / rateWindow
}

// Total 累计字节数
func (r *RateMeter) Total() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// LastUpdate 最近一次 Add 的时间
func (r *RateMeter) LastUpdate() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastAdd
}
