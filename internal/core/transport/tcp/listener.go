package tcp

import (
	"net"
	"sync/atomic"

	"github.com/dep2p/go-msgrpc/pkg/interfaces"
)

// Listener TCP 监听器
type Listener struct {
	t      *Transport
	nl     net.Listener
	closed atomic.Bool
}

var _ interfaces.Listener = (*Listener)(nil)

// Accept 接受连接
func (l *Listener) Accept() (net.Conn, error) {
	nc, err := l.nl.Accept()
	if err != nil {
		return nil, err
	}
	if err := l.t.tune(nc); err != nil {
		log.Debug("设置连接选项失败", "remote", nc.RemoteAddr().String(), "err", err)
	}
	return nc, nil
}

// Addr 返回实际监听地址（端口为 0 时为系统分配的端口）
func (l *Listener) Addr() net.Addr {
	return l.nl.Addr()
}

// Close 关闭监听器
func (l *Listener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	l.t.removeListener(l)
	return l.nl.Close()
}
