package wire

import "errors"

var (
	// ErrBadMagic 报文头魔数错误
	ErrBadMagic = errors.New("wire: bad magic")

	// ErrBadVersion 不支持的协议版本
	ErrBadVersion = errors.New("wire: unsupported version")

	// ErrPacketTooLarge 报文超过接收上限
	ErrPacketTooLarge = errors.New("wire: packet too large")

	// ErrTruncated 记录被截断
	ErrTruncated = errors.New("wire: truncated record")

	// ErrUnknownKind 未知记录类型
	ErrUnknownKind = errors.New("wire: unknown record kind")

	// ErrUnknownCompression 报文使用了本端不支持的压缩算法
	ErrUnknownCompression = errors.New("wire: unknown compression")

	// ErrDecompress 报文解压失败
	ErrDecompress = errors.New("wire: decompress failed")

	// ErrBadEnvelope 信封元数据无法解析
	ErrBadEnvelope = errors.New("wire: malformed envelope")

	// ErrPending 流式负载暂无可读数据
	ErrPending = errors.New("wire: body data pending")
)
