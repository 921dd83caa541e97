package tcp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/net/netutil"

	"github.com/dep2p/go-msgrpc/internal/util/logger"
	"github.com/dep2p/go-msgrpc/pkg/interfaces"
)

var log = logger.Logger("transport.tcp")

// Scheme URL scheme
const Scheme = "tcp"

// Config TCP 传输配置
type Config struct {
	// NoDelay 关闭 Nagle 算法
	NoDelay bool

	// KeepAlive TCP 层保活周期（0 使用系统默认，负数关闭）
	KeepAlive time.Duration

	// MaxInbound 每个监听器同时持有的入站连接上限（0 表示不限）
	MaxInbound int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		NoDelay:   true,
		KeepAlive: 30 * time.Second,
	}
}

// ============================================================================
//                              Transport 实现
// ============================================================================

// Transport TCP 传输
type Transport struct {
	cfg Config

	mu        sync.Mutex
	listeners map[*Listener]struct{}

	closed atomic.Bool
}

var _ interfaces.Transport = (*Transport)(nil)

// New 创建 TCP 传输
func New(cfg Config) *Transport {
	return &Transport{
		cfg:       cfg,
		listeners: make(map[*Listener]struct{}),
	}
}

// Scheme 返回 "tcp"
func (t *Transport) Scheme() string { return Scheme }

// Secure TCP 不提供加密
func (t *Transport) Secure() bool { return false }

// Dial 建立出站连接
func (t *Transport) Dial(ctx context.Context, addr string) (net.Conn, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}

	d := net.Dialer{KeepAlive: t.cfg.KeepAlive}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if err := t.tune(nc); err != nil {
		nc.Close()
		return nil, err
	}
	return nc, nil
}

// Listen 监听入站连接
func (t *Transport) Listen(ctx context.Context, addr string) (interfaces.Listener, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}

	lc := net.ListenConfig{KeepAlive: t.cfg.KeepAlive}
	nl, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcp: listen %s: %w", addr, err)
	}
	if t.cfg.MaxInbound > 0 {
		nl = netutil.LimitListener(nl, t.cfg.MaxInbound)
	}

	l := &Listener{t: t, nl: nl}
	t.mu.Lock()
	t.listeners[l] = struct{}{}
	t.mu.Unlock()

	log.Debug("开始监听", "addr", nl.Addr().String(), "max_inbound", t.cfg.MaxInbound)
	return l, nil
}

// Close 关闭传输及其全部监听器
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	t.mu.Lock()
	ls := make([]*Listener, 0, len(t.listeners))
	for l := range t.listeners {
		ls = append(ls, l)
	}
	t.mu.Unlock()

	var err error
	for _, l := range ls {
		err = multierr.Append(err, l.Close())
	}
	return err
}

// ListenerCount 返回打开的监听器数量
func (t *Transport) ListenerCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.listeners)
}

func (t *Transport) tune(nc net.Conn) error {
	tc, ok := nc.(*net.TCPConn)
	if !ok {
		// 经 LimitListener 包装的连接保留系统默认选项
		return nil
	}
	return tc.SetNoDelay(t.cfg.NoDelay)
}

func (t *Transport) removeListener(l *Listener) {
	t.mu.Lock()
	delete(t.listeners, l)
	t.mu.Unlock()
}
