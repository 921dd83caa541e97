package pool

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dep2p/go-msgrpc/internal/core/conn"
	"github.com/dep2p/go-msgrpc/internal/core/transport"
	"github.com/dep2p/go-msgrpc/pkg/interfaces"
	"github.com/dep2p/go-msgrpc/pkg/types"
)

// acceptBackoff Accept 临时失败后的等待时间
const acceptBackoff = 50 * time.Millisecond

// listener 监听器及其入站连接池
type listener struct {
	l    interfaces.Listener
	t    transport.Target
	addr string
	pool *Pool
	once sync.Once
	err  error
}

func (l *listener) close() error {
	l.once.Do(func() { l.err = l.l.Close() })
	return l.err
}

// Listen 在地址上开始监听，返回实际监听的 URL
//
// 每个监听器对应一个入站连接池，关闭该连接池也会关闭监听器。
func (s *Service) Listen(ctx context.Context, raw string) (string, error) {
	if s.closed.Load() {
		return "", types.ErrServiceStopped
	}
	l, t, err := s.tr.Listen(ctx, raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", types.ErrServiceStartListener, raw, err)
	}
	addr := t.Scheme + "://" + l.Addr().String()

	ln := &listener{l: l, t: t, addr: addr}
	p, err := s.insertPool(&Pool{
		name:      addr,
		target:    t,
		inbound:   true,
		maxActive: s.cfg.Listen.MaxInbound,
		secure:    s.tr.Secure(t),
		ln:        ln,
	})
	if err != nil {
		l.Close()
		return "", fmt.Errorf("%w: %s: %v", types.ErrServiceStartListener, raw, err)
	}
	ln.pool = p

	s.lmu.Lock()
	s.listeners = append(s.listeners, ln)
	s.lmu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ln)

	log.Info("开始监听", "addr", addr, "pool", p.id)
	return addr, nil
}

// ListenAddrs 返回全部监听地址
func (s *Service) ListenAddrs() []string {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	out := make([]string, 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, l.addr)
	}
	return out
}

func (s *Service) dropListener(ln *listener) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	for i, l := range s.listeners {
		if l == ln {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

func (s *Service) acceptLoop(ln *listener) {
	defer s.wg.Done()
	defer ln.close()

	for {
		nc, err := ln.l.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) || ln.pool.isStopping() {
				log.Debug("监听器退出", "addr", ln.addr)
				return
			}
			log.Warn("接受连接失败", "addr", ln.addr, "err", err)
			select {
			case <-time.After(acceptBackoff):
				continue
			case <-s.ctx.Done():
				return
			}
		}
		s.accept(ln, nc)
	}
}

// accept 为接受的套接字创建连接
func (s *Service) accept(ln *listener, nc net.Conn) {
	c, err := s.newConn(ln.pool, conn.Params{
		Socket:          nc,
		SecureTransport: ln.pool.secure,
		Park:            !s.cfg.Listen.ActivateOnAccept,
	})
	if err != nil {
		log.Warn("拒绝入站连接", "addr", ln.addr, "remote", nc.RemoteAddr(), "err", err)
		nc.Close()
		return
	}
	if !ln.pool.add(c) {
		c.ForceClose(types.ErrConnectionStopping)
		return
	}
	log.Debug("接受入站连接", "addr", ln.addr, "remote", nc.RemoteAddr(), "conn", c.ID())
	c.Start()
}
