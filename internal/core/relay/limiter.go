package relay

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dep2p/go-msgrpc/config"
	"github.com/dep2p/go-msgrpc/pkg/types"
)

// Limiter 中继转发限流器
//
// 带宽按令牌桶限制全部转发字节；在途请求数分别按全局与来源连接限制。
type Limiter struct {
	bandwidth  *rate.Limiter
	burst      int
	maxPending int
	maxPerConn int

	mu      sync.Mutex
	pending map[types.ConnectionID]int
	total   int
}

// LimiterStats 限流器统计
type LimiterStats struct {
	Pending        int   `json:"pending"`
	Origins        int   `json:"origins"`
	MaxPending     int   `json:"max_pending"`
	MaxPerConn     int   `json:"max_pending_per_conn"`
	BandwidthLimit int64 `json:"bandwidth_limit"`
}

// NewLimiter 按配置创建限流器
func NewLimiter(cfg config.RelayConfig) *Limiter {
	l := &Limiter{
		maxPending: cfg.MaxPending,
		maxPerConn: cfg.MaxPendingPerConn,
		pending:    make(map[types.ConnectionID]int),
	}
	if cfg.MaxBandwidth > 0 {
		l.burst = int(cfg.MaxBandwidth)
		l.bandwidth = rate.NewLimiter(rate.Limit(cfg.MaxBandwidth), l.burst)
	}
	return l
}

// allowBytes 检查带宽，超过桶容量的消息按桶容量计
func (l *Limiter) allowBytes(n int) error {
	if l.bandwidth == nil {
		return nil
	}
	if n > l.burst {
		n = l.burst
	}
	if !l.bandwidth.AllowN(time.Now(), n) {
		return ErrBandwidthExceeded
	}
	return nil
}

// acquire 为来源连接占用一个在途名额
func (l *Limiter) acquire(origin types.ConnectionID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxPending > 0 && l.total >= l.maxPending {
		return ErrTooManyPending
	}
	if l.maxPerConn > 0 && l.pending[origin] >= l.maxPerConn {
		return ErrTooManyPending
	}
	l.pending[origin]++
	l.total++
	return nil
}

// release 释放来源连接的一个在途名额
func (l *Limiter) release(origin types.ConnectionID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pending[origin] > 0 {
		l.pending[origin]--
		l.total--
		if l.pending[origin] == 0 {
			delete(l.pending, origin)
		}
	}
}

// Stats 返回限流器统计
func (l *Limiter) Stats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := LimiterStats{
		Pending:    l.total,
		Origins:    len(l.pending),
		MaxPending: l.maxPending,
		MaxPerConn: l.maxPerConn,
	}
	if l.bandwidth != nil {
		s.BandwidthLimit = int64(l.bandwidth.Limit())
	}
	return s
}
