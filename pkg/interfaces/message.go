package interfaces

import (
	"github.com/dep2p/go-msgrpc/pkg/types"
)

// MessageContext 应用回调中的消息上下文
//
// 由服务层实现；在连接的分发协程上调用，可以安全地重入任意服务操作。
type MessageContext interface {
	// Recipient 消息所在连接的接收者句柄
	Recipient() types.RecipientID

	// PoolName 连接所属连接池名称（被动接受的连接为空）
	PoolName() string

	// Respond 对当前请求发送响应
	//
	// flags 取 FlagResponse（单条）、FlagResponsePart 或 FlagResponseLast。
	Respond(msg *types.Message, flags types.MessageFlags) error

	// Send 在同一连接上发送新消息
	Send(msg *types.Message, flags types.MessageFlags) (types.MessageID, error)
}

// MessageHandler 入站消息回调
type MessageHandler func(ctx MessageContext, msg *types.Message)

// ResponseFunc 响应回调
//
// 每条到达的响应消息调用一次（Part 与 Last 会多次调用），
// 或以错误调用恰好一次。resp 与 err 不会同时非空。
type ResponseFunc func(ctx MessageContext, resp *types.Message, err error)

// CompletionFunc 发送完成回调（不等待响应的消息在全部写出后调用）
type CompletionFunc func(id types.MessageID, err error)
