// Package tcp 实现 TCP 传输
//
// 地址格式为 host:port，URL scheme 为 "tcp"。TCP 本身不加密，
// 需要安全连接时由 Connection 在其上执行 TLS 握手。
//
// # 使用示例
//
//	t := tcp.New(tcp.DefaultConfig())
//
//	// 监听
//	l, err := t.Listen(ctx, "0.0.0.0:4510")
//
//	// 拨号
//	nc, err := t.Dial(ctx, "10.0.0.1:4510")
//
// MaxInbound 大于 0 时监听器通过 netutil.LimitListener 限制同时持有的连接数。
package tcp
