// Package pool 实现连接池与服务层
//
// Service 是进程内的连接池注册表，也是发送、取消与关闭操作的入口：
//
//   - 按接收者地址（[scheme://]host[:port][#relay/path]）惰性创建 Pool
//   - Pool 在活跃连接中按负载最小轮转选择，必要时创建新连接
//   - 连接未激活前的消息排队在正在建立的连接中
//   - 入站消息经 codec.Registry 解码后分发给类型回调
//   - 带目的路径的消息交给中继钩子（relay.Engine）转发
//
// 池表与连接表均为分片的代数槽位表，名称索引按 murmur3 分片，
// 没有全局锁。
//
// 使用示例：
//
//	svc, _ := pool.New(pool.Options{Config: cfg, Conn: cc, Transport: reg})
//	svc.Start(ctx)
//	rid, id, err := svc.SendRequest("tcp://10.0.0.1:4510", msg, 0, func(ctx interfaces.MessageContext, resp *types.Message, err error) {
//	    ...
//	})
package pool
