// Package msgrpc 提供异步、连接池化、消息多路复用的 RPC 传输
//
// 一条连接上可同时承载大量消息：大消息被切成报文与小消息交错发送，
// 请求可以收到单条响应或 Part...Last 多段响应，任一方可随时取消。
// 连接按目的端点分组为连接池，发送时自动选择或新建连接。
// 中继节点按注册名转发消息，支持多跳。
//
// # 快速开始
//
//	node, err := msgrpc.New(
//	    msgrpc.WithPreset(config.PresetServer),
//	    msgrpc.WithListenAddrs("tcp://0.0.0.0:7000"),
//	)
//	if err != nil {
//	    return err
//	}
//	node.SetHandler(func(ctx msgrpc.MessageContext, msg *msgrpc.Message) {
//	    ctx.Respond(msgrpc.NewMessage(msg.Payload), msgrpc.FlagResponse)
//	})
//	if err := node.Start(ctx); err != nil {
//	    return err
//	}
//	defer node.Close()
//
//	resp, err := client.Request(ctx, "tcp://server:7000", msgrpc.NewMessage([]byte("ping")), 0)
//
// # 中继
//
//	relayNode, _ := msgrpc.New(msgrpc.WithPreset(config.PresetRelay), msgrpc.WithListenAddrs("tcp://0.0.0.0:7100"))
//	backend.Register("tcp://relay:7100", "svc-a")
//	client.SendRequest("tcp://relay:7100#svc-a", msg, 0, onResponse)
//
// 多跳地址形如 "tcp://r1:7100#r2/svc-a"。
//
// # 错误
//
// 错误分为三类，见 IsConnectionError、IsMessageError、IsServiceError。
// 每个请求回调恰好以一个终态结束：最后一条响应或一个错误。
//
// # 包结构
//
//	msgrpc/                 节点门面与选项
//	config/                 统一配置与预设
//	pkg/types               句柄、标志位、消息与错误
//	pkg/interfaces          传输、解析、压缩与回调接口
//	pkg/codec               消息类型注册表与编解码器
//	internal/core/...       连接、连接池、中继、传输、报文格式
//	internal/debug/...      自省 HTTP 服务
//	cmd/msgrpc-relay        独立中继服务
package msgrpc
