package types

import "strings"

// MessageFlags 消息标志位集合
type MessageFlags uint32

const (
	// FlagResponse 单条响应（等价于只有一个 Last 的交换）
	FlagResponse MessageFlags = 1 << iota
	// FlagResponsePart 响应分片，后续还有响应
	FlagResponsePart
	// FlagResponseLast 交换的最后一条响应
	FlagResponseLast
	// FlagAwaitResponse 发送方等待响应
	FlagAwaitResponse
	// FlagSynchronous 同步消息：同一连接上的同步消息按序逐条发送，并优先于普通流量
	FlagSynchronous
	// FlagRelayed 消息经过中继转发
	FlagRelayed
	// FlagCanceled 消息已被取消
	FlagCanceled
	// FlagOnPeer 消息来自对端（接收侧设置，不上线）
	FlagOnPeer
)

// 可由应用在发送时设置的标志位
const sendableFlags = FlagResponse | FlagResponsePart | FlagResponseLast |
	FlagAwaitResponse | FlagSynchronous

// 需要上线传输的标志位（FlagOnPeer 与 FlagCanceled 仅在本地有意义）
const wireFlags = sendableFlags | FlagRelayed

// Has 检查是否包含全部指定标志
func (f MessageFlags) Has(flags MessageFlags) bool {
	return f&flags == flags
}

// Any 检查是否包含任一指定标志
func (f MessageFlags) Any(flags MessageFlags) bool {
	return f&flags != 0
}

// IsResponse 是否为响应类消息
func (f MessageFlags) IsResponse() bool {
	return f.Any(FlagResponse | FlagResponsePart | FlagResponseLast)
}

// IsTerminalResponse 是否为交换的终结响应
func (f MessageFlags) IsTerminalResponse() bool {
	return f.IsResponse() && !f.Has(FlagResponsePart)
}

// Wire 返回需要上线传输的标志位
func (f MessageFlags) Wire() MessageFlags {
	return f & wireFlags
}

// ValidateSend 校验发送请求的标志组合
//
// 规则：
//   - 只允许可发送标志
//   - Part 与 Last 互斥
//   - 响应不能同时等待响应
func (f MessageFlags) ValidateSend() error {
	if f&^sendableFlags != 0 {
		return ErrMessageFlags
	}
	if f.Has(FlagResponsePart | FlagResponseLast) {
		return ErrMessageFlags
	}
	if f.IsResponse() && f.Has(FlagAwaitResponse) {
		return ErrMessageFlags
	}
	return nil
}

var flagNames = []struct {
	flag MessageFlags
	name string
}{
	{FlagResponse, "Response"},
	{FlagResponsePart, "ResponsePart"},
	{FlagResponseLast, "ResponseLast"},
	{FlagAwaitResponse, "AwaitResponse"},
	{FlagSynchronous, "Synchronous"},
	{FlagRelayed, "Relayed"},
	{FlagCanceled, "Canceled"},
	{FlagOnPeer, "OnPeer"},
}

// String 返回标志位名称列表
func (f MessageFlags) String() string {
	if f == 0 {
		return "None"
	}
	var parts []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}
