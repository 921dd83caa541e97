package conn

import (
	"fmt"

	"github.com/dep2p/go-msgrpc/pkg/types"
)

// Event 状态机输入事件
type Event uint8

const (
	// EvConnected 套接字已建立（拨号成功或接受的连接被激活）
	EvConnected Event = iota + 1
	// EvSecured 安全握手完成
	EvSecured
	// EvCloseRequested 请求延迟关闭
	EvCloseRequested
	// EvDrained 排空完成
	EvDrained
	// EvFailure I/O 错误、协议错误、超时或强制关闭
	EvFailure
	// EvSocketClosed 套接字已关闭
	EvSocketClosed
)

func (e Event) String() string {
	switch e {
	case EvConnected:
		return "connected"
	case EvSecured:
		return "secured"
	case EvCloseRequested:
		return "close-requested"
	case EvDrained:
		return "drained"
	case EvFailure:
		return "failure"
	case EvSocketClosed:
		return "socket-closed"
	}
	return fmt.Sprintf("event(%d)", uint8(e))
}

// Action 迁移附带的动作（位集合，按位序执行）
type Action uint8

const (
	// ActStartHandshake 启动安全握手
	ActStartHandshake Action = 1 << iota
	// ActEnterActive 启动读写协程并开始发送
	ActEnterActive
	// ActFailPending 以连接错误完成全部待决消息
	ActFailPending
	// ActCloseSocket 关闭套接字
	ActCloseSocket
	// ActNotifyClosed 通知连接已关闭
	ActNotifyClosed
)

// ActNone 无动作
const ActNone Action = 0

// Has 是否包含动作
func (a Action) Has(x Action) bool { return a&x != 0 }

// Input 迁移所需的外部条件
type Input struct {
	// Secure 建立后需要安全握手
	Secure bool
	// Pending 仍有在途消息或未写出的数据
	Pending bool
}

// Transition 计算状态迁移
//
// 不合法的事件返回原状态与 ActNone。
func Transition(s types.ConnectionState, ev Event, in Input) (types.ConnectionState, Action) {
	if s == types.StateClosed {
		return s, ActNone
	}

	switch ev {
	case EvFailure:
		if s == types.StateClosing {
			return s, ActNone
		}
		return types.StateClosing, ActFailPending | ActCloseSocket

	case EvSocketClosed:
		if s == types.StateClosing {
			return types.StateClosed, ActNotifyClosed
		}
		return types.StateClosed, ActFailPending | ActNotifyClosed
	}

	switch s {
	case types.StateConnecting:
		switch ev {
		case EvConnected:
			if in.Secure {
				return types.StateSecuringHandshake, ActStartHandshake
			}
			return types.StateActive, ActEnterActive
		case EvCloseRequested:
			return types.StateClosing, ActFailPending | ActCloseSocket
		}

	case types.StateSecuringHandshake:
		switch ev {
		case EvSecured:
			return types.StateActive, ActEnterActive
		case EvCloseRequested:
			return types.StateClosing, ActFailPending | ActCloseSocket
		}

	case types.StateActive:
		if ev == EvCloseRequested {
			if in.Pending {
				return types.StateDraining, ActNone
			}
			return types.StateClosing, ActCloseSocket
		}

	case types.StateDraining:
		if ev == EvDrained {
			return types.StateClosing, ActCloseSocket
		}
	}
	return s, ActNone
}
