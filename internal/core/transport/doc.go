// Package transport 按 URL scheme 选择字节流传输
//
// 接收者地址形如：
//
//	[scheme://]host[:port][#relay/path]
//
// 省略 scheme 时使用默认 scheme，省略端口时使用默认端口（mem 除外，
// 其地址是监听名称）。'#' 之后的部分是中继目的路径：连接建立到 host:port
// 上的中继，消息信封携带该路径，由中继按首段注册名转发。
//
// # 支持的传输
//
//   - tcp: internal/core/transport/tcp
//   - ws: internal/core/transport/ws（gorilla/websocket）
//   - quic: internal/core/transport/quic（quic-go，自带加密）
//   - mem: internal/core/transport/mem（net.Pipe，测试）
//
// # 名称解析
//
// Registry.Dialer 返回的拨号函数每次调用都重新解析主机名，
// 解析在拨号协程中进行，不阻塞连接事件循环。
//
// # Fx 模块集成
//
//	app := fx.New(
//	    transport.Module(),
//	    fx.Invoke(func(r *transport.Registry) {
//	        target, err := r.Parse("tcp://relay.example:4510#svc")
//	    }),
//	)
package transport
