package types

// Message 应用消息
//
// 一个交换可以跨越多个 Message：请求、零到多个 ResponsePart、
// 以及恰好一个 ResponseLast（或单条 Response）。
type Message struct {
	// ID 发送方分配的消息句柄（入站消息为对端句柄）
	ID MessageID

	// RequestID 响应所对应的请求句柄（请求方视角）
	RequestID MessageID

	// TypeID 负载类型 ID（由 codec.Registry 解析，0 表示按负载类型推断）
	TypeID uint32

	// Flags 协议标志
	Flags MessageFlags

	// Header 端到端不透明头部，中继原样转发
	Header []byte

	// Payload 应用负载
	//
	// 发送时可以是任意已注册类型、[]byte 或 io.Reader（流式负载）；
	// 接收时为解码后的值。
	Payload any
}

// NewMessage 创建消息
func NewMessage(payload any) *Message {
	return &Message{Payload: payload}
}

// WithHeader 设置端到端头部并返回自身
func (m *Message) WithHeader(h []byte) *Message {
	m.Header = h
	return m
}

// WithType 显式指定负载类型 ID 并返回自身
func (m *Message) WithType(typeID uint32) *Message {
	m.TypeID = typeID
	return m
}

// Clone 浅拷贝消息（Header 深拷贝）
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.Header != nil {
		c.Header = append([]byte(nil), m.Header...)
	}
	return &c
}
