// Package conn 实现单条 msgrpc 连接
//
// 每条连接由一个事件循环协程独占其状态：多路复用表、发送队列、
// 报文组装缓冲与接收重组游标。阻塞的套接字读写由独立的读/写协程完成，
// 结果以事件形式投递回事件循环；公开方法把闭包投递到事件循环执行，
// 事件循环自身从不阻塞。
//
// 完成回调与 Handler 回调在每条连接各自的分发协程上串行执行，
// 回调中可以安全地重入任意连接的任意方法。
//
// 状态机：
//
//	Connecting ──► SecuringHandshake ──► Active ──► Draining ──► Closing ──► Closed
//	     │                 │                │           │            ▲
//	     └─────────────────┴────────────────┴───────────┴────────────┘
//	                       失败 / 强制关闭
//
// 状态迁移由纯函数 Transition 决定，可以脱离套接字单独测试。
package conn
