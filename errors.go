package msgrpc

import (
	"errors"

	"github.com/dep2p/go-msgrpc/pkg/types"
)

// 节点生命周期错误
var (
	// ErrNotStarted 节点未启动
	ErrNotStarted = errors.New("node not started")

	// ErrAlreadyStarted 节点已启动
	ErrAlreadyStarted = errors.New("node already started")

	// ErrNodeClosed 节点已关闭
	ErrNodeClosed = errors.New("node closed")
)

// 常用传输错误，完整列表见 pkg/types
var (
	ErrMessageCanceled       = types.ErrMessageCanceled
	ErrMessageCanceledByPeer = types.ErrMessageCanceledByPeer
	ErrMessageUnknownType    = types.ErrMessageUnknownType
	ErrUnknownMessage        = types.ErrUnknownMessage
	ErrRelayUnknownName      = types.ErrRelayUnknownName
	ErrPoolUnknown           = types.ErrPoolUnknown
	ErrPoolFull              = types.ErrPoolFull
	ErrUnknownConnection     = types.ErrUnknownConnection
	ErrInvalidURL            = types.ErrInvalidURL
	ErrServiceStopped        = types.ErrServiceStopped
)

// IsConnectionError 连接级错误：连接已失效，在途消息全部失败
func IsConnectionError(err error) bool { return types.IsConnectionError(err) }

// IsMessageError 消息级错误：仅影响单条消息
func IsMessageError(err error) bool { return types.IsMessageError(err) }

// IsServiceError 服务级错误：调用参数或服务状态错误
func IsServiceError(err error) bool { return types.IsServiceError(err) }
