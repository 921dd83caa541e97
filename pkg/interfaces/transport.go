package interfaces

import (
	"context"
	"net"
)

// Transport 定义传输层接口
//
// Transport 抽象不同的字节流传输（TCP、WebSocket、QUIC、进程内管道），
// 通过接收者 URL 的 scheme 选择。返回的 net.Conn 由 Connection 独占。
type Transport interface {
	// Scheme 返回 URL scheme，例如 "tcp"、"ws"、"quic"、"mem"
	Scheme() string

	// Secure 传输本身是否已提供加密（例如 QUIC）
	//
	// 为 true 时 Connection 跳过 SecuringHandshake。
	Secure() bool

	// Dial 拨号连接到指定地址（host:port 或传输相关的地址）
	Dial(ctx context.Context, addr string) (net.Conn, error)

	// Listen 在指定地址监听
	Listen(ctx context.Context, addr string) (Listener, error)
}

// Listener 定义监听器接口
type Listener interface {
	// Accept 接受新连接
	Accept() (net.Conn, error)

	// Addr 返回实际监听地址
	Addr() net.Addr

	// Close 关闭监听器
	Close() error
}
