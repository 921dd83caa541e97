package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/multierr"

	"github.com/dep2p/go-msgrpc/internal/util/logger"
	"github.com/dep2p/go-msgrpc/pkg/interfaces"
)

var log = logger.Logger("transport.ws")

const (
	// Scheme URL scheme
	Scheme = "ws"

	// Path 升级请求路径
	Path = "/msgrpc"
)

var (
	// ErrTransportClosed 传输已关闭
	ErrTransportClosed = errors.New("ws: transport closed")

	// ErrListenerClosed 监听器已关闭
	ErrListenerClosed = errors.New("ws: listener closed")
)

// Config WebSocket 传输配置
type Config struct {
	// HandshakeTimeout HTTP 升级超时
	HandshakeTimeout time.Duration

	// BufferSize 读写缓冲大小
	BufferSize int

	// Backlog 已升级但尚未 Accept 的连接数上限
	Backlog int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		BufferSize:       64 << 10,
		Backlog:          64,
	}
}

// Transport WebSocket 传输
type Transport struct {
	cfg    Config
	dialer *websocket.Dialer

	mu        sync.Mutex
	listeners map[*Listener]struct{}

	closed atomic.Bool
}

var _ interfaces.Transport = (*Transport)(nil)

// New 创建 WebSocket 传输
func New(cfg Config) *Transport {
	return &Transport{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   cfg.BufferSize,
			WriteBufferSize:  cfg.BufferSize,
		},
		listeners: make(map[*Listener]struct{}),
	}
}

// Scheme 返回 "ws"
func (t *Transport) Scheme() string { return Scheme }

// Secure 明文 WebSocket 不提供加密
func (t *Transport) Secure() bool { return false }

// Dial 连接到 host:port 上的 WebSocket 端点
func (t *Transport) Dial(ctx context.Context, addr string) (net.Conn, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}

	wc, resp, err := t.dialer.DialContext(ctx, "ws://"+addr+Path, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("ws: dial %s: %w", addr, err)
	}
	return newConn(wc), nil
}

// Listen 在 addr 上启动 HTTP 服务并接受升级请求
func (t *Transport) Listen(ctx context.Context, addr string) (interfaces.Listener, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}

	var lc net.ListenConfig
	nl, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ws: listen %s: %w", addr, err)
	}

	l := &Listener{
		t:       t,
		nl:      nl,
		accept:  make(chan net.Conn, t.cfg.Backlog),
		closeCh: make(chan struct{}),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: t.cfg.HandshakeTimeout,
			ReadBufferSize:   t.cfg.BufferSize,
			WriteBufferSize:  t.cfg.BufferSize,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc(Path, l.upgrade)
	l.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: t.cfg.HandshakeTimeout,
	}

	t.mu.Lock()
	t.listeners[l] = struct{}{}
	t.mu.Unlock()

	go func() {
		if err := l.srv.Serve(nl); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("HTTP 服务退出", "addr", nl.Addr().String(), "err", err)
		}
	}()
	log.Debug("开始监听", "addr", nl.Addr().String())
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

func (t *Transport) removeListener(l *Listener) {
	t.mu.Lock()
	delete(t.listeners, l)
	t.mu.Unlock()
}

// ============================================================================
//                              Listener
// ============================================================================

// Listener WebSocket 监听器
type Listener struct {
	t        *Transport
	nl       net.Listener
	srv      *http.Server
	upgrader websocket.Upgrader
	accept   chan net.Conn
	closeCh  chan struct{}
	once     sync.Once
}

var _ interfaces.Listener = (*Listener)(nil)

func (l *Listener) upgrade(w http.ResponseWriter, r *http.Request) {
	wc, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug("升级失败", "remote", r.RemoteAddr, "err", err)
		return
	}
	nc := newConn(wc)
	select {
	case l.accept <- nc:
	case <-l.closeCh:
		nc.Close()
	default:
		log.Warn("接受队列已满，丢弃连接", "remote", r.RemoteAddr)
		nc.Close()
	}
}

// Accept 返回下一条已升级的连接
func (l *Listener) Accept() (net.Conn, error) {
	select {
	case nc := <-l.accept:
		return nc, nil
	case <-l.closeCh:
		return nil, ErrListenerClosed
	}
}

// Addr 返回 TCP 监听地址
func (l *Listener) Addr() net.Addr { return l.nl.Addr() }

// Close 停止 HTTP 服务
func (l *Listener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.closeCh)
		l.t.removeListener(l)
		err = l.srv.Close()
	})
	return err
}
