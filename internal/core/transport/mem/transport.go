package mem

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/dep2p/go-msgrpc/pkg/interfaces"
)

// Scheme URL scheme
const Scheme = "mem"

var (
	// ErrListenerExists 同名监听器已存在
	ErrListenerExists = errors.New("mem: listener already exists")

	// ErrNoListener 目标名称没有监听器
	ErrNoListener = errors.New("mem: no such listener")

	// ErrListenerClosed 监听器已关闭
	ErrListenerClosed = errors.New("mem: listener closed")
)

// Transport 进程内传输
type Transport struct {
	mu        sync.Mutex
	listeners map[string]*Listener
}

var _ interfaces.Transport = (*Transport)(nil)

// New 创建进程内传输
func New() *Transport {
	return &Transport{listeners: make(map[string]*Listener)}
}

// Scheme 返回 "mem"
func (t *Transport) Scheme() string { return Scheme }

// Secure 进程内管道不需要加密握手
func (t *Transport) Secure() bool { return false }

// Passthrough 地址是监听名称，不经过名称解析
func (t *Transport) Passthrough() bool { return true }

// Listen 以 name 注册监听器
func (t *Transport) Listen(_ context.Context, name string) (interfaces.Listener, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.listeners[name]; ok {
		return nil, ErrListenerExists
	}
	l := &Listener{
		t:       t,
		name:    name,
		accept:  make(chan net.Conn),
		closeCh: make(chan struct{}),
	}
	t.listeners[name] = l
	return l, nil
}

// Dial 连接到名为 name 的监听器，直到对端 Accept 或 ctx 结束
func (t *Transport) Dial(ctx context.Context, name string) (net.Conn, error) {
	t.mu.Lock()
	l := t.listeners[name]
	t.mu.Unlock()
	if l == nil {
		return nil, ErrNoListener
	}

	client, server := net.Pipe()
	select {
	case l.accept <- &conn{Conn: server, local: Addr(name), remote: Addr("dialer")}:
		return &conn{Conn: client, local: Addr("dialer"), remote: Addr(name)}, nil
	case <-l.closeCh:
		client.Close()
		server.Close()
		return nil, ErrNoListener
	case <-ctx.Done():
		client.Close()
		server.Close()
		return nil, ctx.Err()
	}
}

// Close 关闭全部监听器
func (t *Transport) Close() error {
	t.mu.Lock()
	ls := make([]*Listener, 0, len(t.listeners))
	for _, l := range t.listeners {
		ls = append(ls, l)
	}
	t.mu.Unlock()

	for _, l := range ls {
		l.Close()
	}
	return nil
}

// ============================================================================
//                              Listener
// ============================================================================

// Listener 进程内监听器
type Listener struct {
	t       *Transport
	name    string
	accept  chan net.Conn
	closeCh chan struct{}
	once    sync.Once
}

var _ interfaces.Listener = (*Listener)(nil)

// Accept 等待下一条拨入的管道
func (l *Listener) Accept() (net.Conn, error) {
	select {
	case nc := <-l.accept:
		return nc, nil
	case <-l.closeCh:
		return nil, ErrListenerClosed
	}
}

// Addr 返回监听名称
func (l *Listener) Addr() net.Addr { return Addr(l.name) }

// Close 关闭监听器并释放名称
func (l *Listener) Close() error {
	l.once.Do(func() {
		close(l.closeCh)
		l.t.mu.Lock()
		if l.t.listeners[l.name] == l {
			delete(l.t.listeners, l.name)
		}
		l.t.mu.Unlock()
	})
	return nil
}

// Addr 进程内地址
type Addr string

// Network 返回 "mem"
func (a Addr) Network() string { return Scheme }

func (a Addr) String() string { return string(a) }

// conn 以监听名称作为地址的管道端点
type conn struct {
	net.Conn
	local, remote net.Addr
}

func (c *conn) LocalAddr() net.Addr  { return c.local }
func (c *conn) RemoteAddr() net.Addr { return c.remote }
