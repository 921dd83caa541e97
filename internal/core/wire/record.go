package wire

import (
	"fmt"

	"github.com/multiformats/go-varint"
)

// Kind 记录类型
type Kind uint8

const (
	// KindBegin 消息开始，数据为信封元数据
	KindBegin Kind = iota + 1
	// KindData 消息体分片
	KindData
	// KindEnd 消息结束
	KindEnd
	// KindCancel 取消已开始发送的请求
	KindCancel
	// KindCancelAck 确认取消，对端已丢弃镜像状态
	KindCancelAck
	// KindAbort 以错误码终止对端的请求
	KindAbort
	// KindKeepalive 心跳
	KindKeepalive
	// KindRegister 中继注册，数据为名称
	KindRegister
	// KindRegisterAck 中继注册结果，数据为 [code uvarint][name]
	KindRegisterAck

	kindMax
)

var kindNames = [...]string{
	KindBegin:       "begin",
	KindData:        "data",
	KindEnd:         "end",
	KindCancel:      "cancel",
	KindCancelAck:   "cancel-ack",
	KindAbort:       "abort",
	KindKeepalive:   "keepalive",
	KindRegister:    "register",
	KindRegisterAck: "register-ack",
}

// String 返回记录类型名称
func (k Kind) String() string {
	if k > 0 && k < kindMax {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsControl 是否为控制记录（不属于任何消息体）
func (k Kind) IsControl() bool {
	return k >= KindCancel
}

// MaxRecordHeader 记录头最大长度：kind + 3 个 uvarint(<=uint32)
//
// 长度字段不超过 MaxPacketSize，至多 4 字节；slot/generation 至多 5 字节。
const MaxRecordHeader = 1 + 5 + 5 + 5

// Record 单条记录
type Record struct {
	Kind Kind
	Slot uint32
	Gen  uint32
	Data []byte
}

// HeaderLen 返回记录头的编码长度
func HeaderLen(slot, gen uint32, n int) int {
	return 1 + varint.UvarintSize(uint64(slot)) + varint.UvarintSize(uint64(gen)) + varint.UvarintSize(uint64(n))
}

// EncodedLen 返回记录编码后的总长度
func (r Record) EncodedLen() int {
	return HeaderLen(r.Slot, r.Gen, len(r.Data)) + len(r.Data)
}

// AppendRecord 追加编码后的记录
func AppendRecord(dst []byte, r Record) []byte {
	var tmp [MaxRecordHeader]byte
	tmp[0] = byte(r.Kind)
	n := 1
	n += varint.PutUvarint(tmp[n:], uint64(r.Slot))
	n += varint.PutUvarint(tmp[n:], uint64(r.Gen))
	n += varint.PutUvarint(tmp[n:], uint64(len(r.Data)))
	dst = append(dst, tmp[:n]...)
	return append(dst, r.Data...)
}

// ParseRecord 从 b 解析一条记录，返回剩余字节
//
// 返回的 Data 引用 b，不做拷贝。
func ParseRecord(b []byte) (Record, []byte, error) {
	if len(b) == 0 {
		return Record{}, nil, ErrTruncated
	}
	r := Record{Kind: Kind(b[0])}
	if r.Kind == 0 || r.Kind >= kindMax {
		return Record{}, nil, fmt.Errorf("%w: %d", ErrUnknownKind, b[0])
	}
	b = b[1:]

	slot, n, err := varint.FromUvarint(b)
	if err != nil || slot > 0xffffffff {
		return Record{}, nil, ErrTruncated
	}
	b = b[n:]

	gen, n, err := varint.FromUvarint(b)
	if err != nil || gen > 0xffffffff {
		return Record{}, nil, ErrTruncated
	}
	b = b[n:]

	size, n, err := varint.FromUvarint(b)
	if err != nil {
		return Record{}, nil, ErrTruncated
	}
	b = b[n:]
	if size > uint64(len(b)) {
		return Record{}, nil, ErrTruncated
	}

	r.Slot = uint32(slot)
	r.Gen = uint32(gen)
	r.Data = b[:size:size]
	return r, b[size:], nil
}

// ParseRecords 依次解析负载中的全部记录
func ParseRecords(payload []byte, fn func(Record) error) error {
	for len(payload) > 0 {
		r, rest, err := ParseRecord(payload)
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
		payload = rest
	}
	return nil
}

// AppendCode 编码错误码（Abort / RegisterAck 数据）
func AppendCode(dst []byte, code uint16) []byte {
	var tmp [3]byte
	n := varint.PutUvarint(tmp[:], uint64(code))
	return append(dst, tmp[:n]...)
}

// ParseCode 解析错误码，返回剩余字节
func ParseCode(b []byte) (uint16, []byte, error) {
	v, n, err := varint.FromUvarint(b)
	if err != nil || v > 0xffff {
		return 0, nil, ErrTruncated
	}
	return uint16(v), b[n:], nil
}
