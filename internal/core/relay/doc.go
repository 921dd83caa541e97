// Package relay 实现中继引擎
//
// 两个节点只知道中继地址时，通过中继互相收发消息：
//
//   - 节点连接中继后以逻辑名称注册（Register 记录），路由表记录 name → 连接
//   - 信封携带目的路径（"b" 或 "r2/b"）的消息由中继截获，按第一段名称查路由，
//     剩余路径随消息继续转发，多个中继串联即为多跳
//   - 负载原样转发并加上 Relayed 标志，中继不解码应用负载
//   - 账本记录 (来源连接, 来源消息) ↔ (目标连接, 转发消息)，
//     响应与取消沿原路返回
//   - 目标连接关闭时，经它转发的每条在途消息在来源侧恰好一次以
//     ErrMessageCanceledByPeer 结束
//
// 同名重新注册原子地替换路由，并使旧连接上该名称的在途条目失败。
//
// 路由表按 murmur3(name) 分片，账本按连接下标分片，没有全局锁。
//
// 使用示例：
//
//	eng, _ := relay.NewEngine(cfg.Relay, nil)
//	eng.Attach(svc)
//	eng.WriteDump(os.Stdout)
package relay
