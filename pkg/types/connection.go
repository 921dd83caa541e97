package types

// ConnectionState 连接状态
//
// Connecting → SecuringHandshake（启用安全时）→ Active → Draining → Closing → Closed。
// 任意非终止状态遇到 I/O 错误或强制关闭都直接进入 Closing。
type ConnectionState uint8

const (
	// StateConnecting 正在建立（解析/拨号/等待激活）
	StateConnecting ConnectionState = iota
	// StateSecuringHandshake 正在进行安全握手
	StateSecuringHandshake
	// StateActive 活跃，可收发
	StateActive
	// StateDraining 排空中：拒绝新消息，等待在途消息完成
	StateDraining
	// StateClosing 关闭中
	StateClosing
	// StateClosed 已关闭（终止状态）
	StateClosed
)

// String 返回状态名称
func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSecuringHandshake:
		return "securing"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// IsTerminal 是否为终止状态
func (s ConnectionState) IsTerminal() bool {
	return s == StateClosed
}

// AcceptsSend 该状态下是否接受新消息
func (s ConnectionState) AcceptsSend() bool {
	return s <= StateActive
}

// Direction 连接方向
type Direction uint8

const (
	// DirOutbound 主动拨出
	DirOutbound Direction = iota
	// DirInbound 被动接受
	DirInbound
)

// String 返回方向名称
func (d Direction) String() string {
	if d == DirInbound {
		return "inbound"
	}
	return "outbound"
}
