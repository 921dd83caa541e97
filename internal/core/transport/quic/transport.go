package quic

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"
	"go.uber.org/multierr"

	"github.com/dep2p/go-msgrpc/internal/util/logger"
	"github.com/dep2p/go-msgrpc/pkg/interfaces"
)

var log = logger.Logger("transport.quic")

// Scheme URL scheme
const Scheme = "quic"

// Config QUIC 传输配置
type Config struct {
	// Server 监听端 TLS 配置，为空时使用临时自签名证书
	Server *tls.Config

	// Client 拨号端 TLS 配置，为空时不校验服务端证书
	Client *tls.Config

	// HandshakeTimeout 握手（含打开流）超时
	HandshakeTimeout time.Duration

	// MaxIdleTimeout QUIC 层空闲超时
	MaxIdleTimeout time.Duration

	// KeepAlivePeriod QUIC 层保活周期
	KeepAlivePeriod time.Duration

	// Backlog 已建立但尚未 Accept 的连接数上限
	Backlog int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		MaxIdleTimeout:   2 * time.Minute,
		KeepAlivePeriod:  15 * time.Second,
		Backlog:          64,
	}
}

// ============================================================================
//                              Transport 实现
// ============================================================================

// Transport QUIC 传输
type Transport struct {
	cfg  Config
	qcfg *quic.Config

	mu        sync.Mutex
	listeners map[*Listener]struct{}

	closed atomic.Bool
}

var _ interfaces.Transport = (*Transport)(nil)

// New 创建 QUIC 传输
func New(cfg Config) *Transport {
	return &Transport{
		cfg: cfg,
		qcfg: &quic.Config{
			HandshakeIdleTimeout: cfg.HandshakeTimeout,
			MaxIdleTimeout:       cfg.MaxIdleTimeout,
			KeepAlivePeriod:      cfg.KeepAlivePeriod,
		},
		listeners: make(map[*Listener]struct{}),
	}
}

// Scheme 返回 "quic"
func (t *Transport) Scheme() string { return Scheme }

// Secure QUIC 自带 TLS 1.3
func (t *Transport) Secure() bool { return true }

// Dial 建立 QUIC 连接并打开唯一的双向流
func (t *Transport) Dial(ctx context.Context, addr string) (net.Conn, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}

	var tlsConf *tls.Config
	if t.cfg.Client != nil {
		tlsConf = withALPN(t.cfg.Client)
	} else {
		tlsConf = &tls.Config{
			InsecureSkipVerify: true,
			NextProtos:         []string{ALPN},
			MinVersion:         tls.VersionTLS13,
		}
	}

	qc, err := quic.DialAddr(ctx, addr, tlsConf, t.qcfg)
	if err != nil {
		return nil, fmt.Errorf("quic: dial %s: %w", addr, err)
	}

	st, err := qc.OpenStreamSync(ctx)
	if err != nil {
		qc.CloseWithError(0, "")
		return nil, fmt.Errorf("quic: open stream: %w", err)
	}
	if _, err := st.Write([]byte{preamble}); err != nil {
		qc.CloseWithError(0, "")
		return nil, fmt.Errorf("quic: write preamble: %w", err)
	}
	return &streamConn{Stream: st, qc: qc}, nil
}

// Listen 在 UDP 地址上监听
func (t *Transport) Listen(ctx context.Context, addr string) (interfaces.Listener, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}

	tlsConf := t.cfg.Server
	if tlsConf == nil {
		var err error
		if tlsConf, err = ephemeralServerTLS(); err != nil {
			return nil, err
		}
	} else {
		tlsConf = withALPN(tlsConf)
	}

	ql, err := quic.ListenAddr(addr, tlsConf, t.qcfg)
	if err != nil {
		return nil, fmt.Errorf("quic: listen %s: %w", addr, err)
	}

	lctx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		t:      t,
		ql:     ql,
		ctx:    lctx,
		cancel: cancel,
		accept: make(chan net.Conn, t.cfg.Backlog),
	}
	t.mu.Lock()
	t.listeners[l] = struct{}{}
	t.mu.Unlock()

	go l.loop()
	log.Debug("开始监听", "addr", ql.Addr().String())
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

// Listener QUIC 监听器
type Listener struct {
	t      *Transport
	ql     *quic.Listener
	ctx    context.Context
	cancel context.CancelFunc
	accept chan net.Conn
	once   sync.Once
}

var _ interfaces.Listener = (*Listener)(nil)

func (l *Listener) loop() {
	for {
		qc, err := l.ql.Accept(l.ctx)
		if err != nil {
			if l.ctx.Err() == nil {
				log.Debug("接受连接失败", "err", err)
			}
			return
		}
		go l.acceptStream(qc)
	}
}

// acceptStream 等待拨号端打开流并校验前导字节
func (l *Listener) acceptStream(qc quic.Connection) {
	ctx, cancel := context.WithTimeout(l.ctx, l.t.cfg.HandshakeTimeout)
	defer cancel()

	st, err := qc.AcceptStream(ctx)
	if err != nil {
		qc.CloseWithError(0, "")
		return
	}
	var b [1]byte
	st.SetReadDeadline(time.Now().Add(l.t.cfg.HandshakeTimeout))
	if _, err := st.Read(b[:]); err != nil || b[0] != preamble {
		log.Debug("丢弃连接", "remote", qc.RemoteAddr().String(), "err", ErrBadPreamble)
		qc.CloseWithError(1, ErrBadPreamble.Error())
		return
	}
	st.SetReadDeadline(time.Time{})

	nc := &streamConn{Stream: st, qc: qc}
	select {
	case l.accept <- nc:
	case <-l.ctx.Done():
		nc.Close()
	default:
		log.Warn("接受队列已满，丢弃连接", "remote", qc.RemoteAddr().String())
		nc.Close()
	}
}

// Accept 返回下一条已打开流的连接
func (l *Listener) Accept() (net.Conn, error) {
	select {
	case nc := <-l.accept:
		return nc, nil
	case <-l.ctx.Done():
		return nil, ErrListenerClosed
	}
}

// Addr 返回 UDP 监听地址
func (l *Listener) Addr() net.Addr { return l.ql.Addr() }

// Close 关闭监听器，共享同一 UDP 套接字的已接受连接随之关闭
func (l *Listener) Close() error {
	var err error
	l.once.Do(func() {
		l.cancel()
		l.t.removeListener(l)
		err = l.ql.Close()
	})
	return err
}
