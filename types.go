package msgrpc

import (
	"github.com/dep2p/go-msgrpc/internal/core/metrics"
	"github.com/dep2p/go-msgrpc/internal/core/relay"
	"github.com/dep2p/go-msgrpc/pkg/interfaces"
	"github.com/dep2p/go-msgrpc/pkg/types"
)

// 常用类型别名，使用方无需直接引入 pkg/types 与 pkg/interfaces

type (
	// Message 应用消息
	Message = types.Message

	// MessageFlags 消息标志位
	MessageFlags = types.MessageFlags

	// MessageID 消息句柄
	MessageID = types.MessageID

	// PoolID 连接池句柄
	PoolID = types.PoolID

	// ConnectionID 连接句柄
	ConnectionID = types.ConnectionID

	// RecipientID 接收者句柄（连接池 + 连接）
	RecipientID = types.RecipientID

	// MessageContext 回调中的消息上下文
	MessageContext = interfaces.MessageContext

	// MessageHandler 入站消息回调
	MessageHandler = interfaces.MessageHandler

	// ResponseFunc 响应回调
	ResponseFunc = interfaces.ResponseFunc

	// RelayInfo 中继快照
	RelayInfo = relay.Info

	// BandwidthStats 带宽统计
	BandwidthStats = metrics.Stats
)

// 消息标志位
const (
	FlagResponse      = types.FlagResponse
	FlagResponsePart  = types.FlagResponsePart
	FlagResponseLast  = types.FlagResponseLast
	FlagAwaitResponse = types.FlagAwaitResponse
	FlagSynchronous   = types.FlagSynchronous
	FlagRelayed       = types.FlagRelayed
	FlagCanceled      = types.FlagCanceled
	FlagOnPeer        = types.FlagOnPeer
)

// NewMessage 以 payload 创建消息
func NewMessage(payload any) *Message {
	return types.NewMessage(payload)
}
