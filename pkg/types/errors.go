package types

import "errors"

// ErrorCategory 错误层级
type ErrorCategory uint8

const (
	// CategoryConnection 连接级错误：终止连接，连接上所有待决消息以此错误完成
	CategoryConnection ErrorCategory = iota + 1
	// CategoryMessage 消息级错误：只影响单条消息
	CategoryMessage
	// CategoryService 服务级错误：由服务调用同步返回，不经完成回调
	CategoryService
)

// String 返回层级名称
func (c ErrorCategory) String() string {
	switch c {
	case CategoryConnection:
		return "connection"
	case CategoryMessage:
		return "message"
	case CategoryService:
		return "service"
	default:
		return "unknown"
	}
}

// ErrorCode 稳定的错误码，用于 Abort / RegisterAck 记录上线传输
type ErrorCode uint16

// Error 分类错误
type Error struct {
	Code     ErrorCode
	Category ErrorCategory
	msg      string
	parent   *Error
}

func newError(code ErrorCode, cat ErrorCategory, msg string) *Error {
	e := &Error{Code: code, Category: cat, msg: msg}
	registerCode(e)
	return e
}

func newChildError(code ErrorCode, parent *Error, msg string) *Error {
	e := &Error{Code: code, Category: parent.Category, msg: msg, parent: parent}
	registerCode(e)
	return e
}

// Error 实现 error 接口
func (e *Error) Error() string {
	return e.msg
}

// Is 支持 errors.Is 沿父错误链匹配
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	for cur := e; cur != nil; cur = cur.parent {
		if cur == t {
			return true
		}
	}
	return false
}

var byCode = make(map[ErrorCode]*Error)

func registerCode(e *Error) {
	byCode[e.Code] = e
}

// ErrorByCode 根据错误码查找错误（未知错误码返回 ErrMessageLost）
func ErrorByCode(code ErrorCode) *Error {
	if e, ok := byCode[code]; ok {
		return e
	}
	return ErrMessageLost
}

// CodeOf 返回错误对应的错误码（非分类错误返回 0）
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// CategoryOf 返回错误层级（非分类错误返回 0）
func CategoryOf(err error) ErrorCategory {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return 0
}

// IsConnectionError 是否为连接级错误
func IsConnectionError(err error) bool {
	return CategoryOf(err) == CategoryConnection
}

// IsMessageError 是否为消息级错误
func IsMessageError(err error) bool {
	return CategoryOf(err) == CategoryMessage
}

// IsServiceError 是否为服务级错误
func IsServiceError(err error) bool {
	return CategoryOf(err) == CategoryService
}

// ============================================================================
//                              连接级错误
// ============================================================================

var (
	// ErrConnectionInactivityTimeout 连接不活跃超时
	ErrConnectionInactivityTimeout = newError(100, CategoryConnection, "connection: inactivity timeout")

	// ErrConnectionTooManyKeepalives 对端发送的心跳过多
	ErrConnectionTooManyKeepalives = newError(101, CategoryConnection, "connection: too many keepalive packets")

	// ErrConnectionTooManyMalformed 畸形/错位报文过多
	ErrConnectionTooManyMalformed = newError(102, CategoryConnection, "connection: too many malformed buffers")

	// ErrConnectionProtocol 协议违规（无效报文头等）
	ErrConnectionProtocol = newError(103, CategoryConnection, "connection: invalid packet header")

	// ErrConnectionResolve 名称解析失败
	ErrConnectionResolve = newError(104, CategoryConnection, "connection: resolve failed")

	// ErrConnectionNoSecureConfiguration 策略要求安全连接但缺少安全配置
	ErrConnectionNoSecureConfiguration = newError(105, CategoryConnection, "connection: no secure configuration")

	// ErrConnectionSecureVerify 安全握手校验失败
	ErrConnectionSecureVerify = newError(106, CategoryConnection, "connection: secure handshake verify failed")

	// ErrConnectionKilled 连接被强制关闭
	ErrConnectionKilled = newError(107, CategoryConnection, "connection: killed")

	// ErrConnectionClosedByPeer 对端关闭了连接
	ErrConnectionClosedByPeer = newError(108, CategoryConnection, "connection: closed by peer")

	// ErrConnectionSocket 底层套接字错误
	ErrConnectionSocket = newError(109, CategoryConnection, "connection: socket error")

	// ErrConnectionStopping 连接正在排空/关闭，拒绝新消息
	ErrConnectionStopping = newError(110, CategoryConnection, "connection: stopping")

	// ErrConnectionConnect 连接建立失败（重试耗尽）
	ErrConnectionConnect = newError(111, CategoryConnection, "connection: connect failed")

	// ErrConnectionDrainTimeout 排空超时
	ErrConnectionDrainTimeout = newError(112, CategoryConnection, "connection: drain timeout")

	// ErrConnectionRegisterRejected 中继拒绝注册
	ErrConnectionRegisterRejected = newError(113, CategoryConnection, "connection: relay registration rejected")
)

// ============================================================================
//                              消息级错误
// ============================================================================

var (
	// ErrMessageCanceled 消息被本地取消
	ErrMessageCanceled = newError(200, CategoryMessage, "message: canceled")

	// ErrMessageCanceledByPeer 消息被对端取消（对端已放弃该交换）
	ErrMessageCanceledByPeer = newChildError(201, ErrMessageCanceled, "message: canceled by peer")

	// ErrMessageUnknownType 未注册的消息类型
	ErrMessageUnknownType = newError(202, CategoryMessage, "message: unknown type")

	// ErrMessageFlags 无效的标志组合
	ErrMessageFlags = newError(203, CategoryMessage, "message: invalid flags")

	// ErrMessageState 消息状态不允许此操作
	ErrMessageState = newError(204, CategoryMessage, "message: invalid state")

	// ErrMessageNull 空消息
	ErrMessageNull = newError(205, CategoryMessage, "message: null message")

	// ErrMessageLost 消息丢失
	ErrMessageLost = newError(206, CategoryMessage, "message: lost")

	// ErrMessageTooLarge 消息超过大小限制
	ErrMessageTooLarge = newError(207, CategoryMessage, "message: too large")

	// ErrUnknownMessage 句柄陈旧或不存在
	ErrUnknownMessage = newError(208, CategoryMessage, "message: unknown message")

	// ErrRelayUnknownName 中继目标名称未注册
	ErrRelayUnknownName = newChildError(209, ErrMessageCanceledByPeer, "message: relay destination unknown")
)

// ============================================================================
//                              服务级错误
// ============================================================================

var (
	// ErrPoolUnknown 连接池不存在
	ErrPoolUnknown = newError(300, CategoryService, "service: unknown pool")

	// ErrPoolExists 连接池已存在
	ErrPoolExists = newError(301, CategoryService, "service: pool exists")

	// ErrPoolStopping 连接池正在关闭
	ErrPoolStopping = newError(302, CategoryService, "service: pool stopping")

	// ErrPoolFull 连接池已满（多路复用表饱和且无法新建连接）
	ErrPoolFull = newError(303, CategoryService, "service: pool full")

	// ErrUnknownRecipient 接收者不存在
	ErrUnknownRecipient = newError(304, CategoryService, "service: unknown recipient")

	// ErrUnknownConnection 连接不存在或句柄陈旧
	ErrUnknownConnection = newError(305, CategoryService, "service: unknown connection")

	// ErrTooManyActiveConnections 超过连接池活跃连接上限
	ErrTooManyActiveConnections = newError(306, CategoryService, "service: too many active connections")

	// ErrAlreadyActive 连接已处于活跃状态
	ErrAlreadyActive = newError(307, CategoryService, "service: connection already active")

	// ErrServiceStart 服务启动失败
	ErrServiceStart = newError(308, CategoryService, "service: start failed")

	// ErrServiceStartListener 监听启动失败
	ErrServiceStartListener = newError(309, CategoryService, "service: start listener failed")

	// ErrInvalidURL 无效的接收者地址
	ErrInvalidURL = newError(310, CategoryService, "service: invalid url")

	// ErrServiceStopped 服务已停止
	ErrServiceStopped = newError(311, CategoryService, "service: stopped")

	// ErrBadCast 负载类型与注册类型不匹配
	ErrBadCast = newError(312, CategoryService, "service: bad cast")

	// ErrRelayDisabled 本节点未启用中继
	ErrRelayDisabled = newError(313, CategoryService, "service: relay disabled")

	// ErrRelayInvalidName 无效的中继注册名
	ErrRelayInvalidName = newError(314, CategoryService, "service: invalid relay name")
)
