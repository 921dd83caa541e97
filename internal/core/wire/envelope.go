package wire

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-msgrpc/pkg/types"
)

// 信封字段号
const (
	fieldFlags    protowire.Number = 1
	fieldTypeID   protowire.Number = 2
	fieldReqIndex protowire.Number = 3
	fieldReqGen   protowire.Number = 4
	fieldHeader   protowire.Number = 5
	fieldDest     protowire.Number = 6
	fieldSize     protowire.Number = 7
)

// Envelope 消息信封：Begin 记录携带的元数据
//
// 中继只读取信封，不解码负载。
type Envelope struct {
	// Flags 上线标志位
	Flags types.MessageFlags

	// TypeID 负载类型 ID
	TypeID uint32

	// RequestID 响应对应的请求（请求方的 MessageID）
	RequestID types.MessageID

	// Header 端到端不透明头部
	Header []byte

	// Dest 中继目的路径，首段为注册名，例如 "svc" 或 "hop2/svc"
	Dest string

	// Size 负载总长度，-1 表示未知（流式）
	Size int64
}

// AppendEnvelope 以 protobuf 线格式编码信封
func AppendEnvelope(b []byte, e *Envelope) []byte {
	if f := e.Flags.Wire(); f != 0 {
		b = protowire.AppendTag(b, fieldFlags, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(f))
	}
	if e.TypeID != 0 {
		b = protowire.AppendTag(b, fieldTypeID, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.TypeID))
	}
	if e.RequestID.IsValid() {
		b = protowire.AppendTag(b, fieldReqIndex, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.RequestID.Index))
		b = protowire.AppendTag(b, fieldReqGen, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.RequestID.Generation))
	}
	if len(e.Header) > 0 {
		b = protowire.AppendTag(b, fieldHeader, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Header)
	}
	if e.Dest != "" {
		b = protowire.AppendTag(b, fieldDest, protowire.BytesType)
		b = protowire.AppendString(b, e.Dest)
	}
	if e.Size >= 0 {
		b = protowire.AppendTag(b, fieldSize, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.Size))
	}
	return b
}

// ParseEnvelope 解析信封，未知字段被跳过
//
// Header 会被拷贝，返回的信封不引用 b。
func ParseEnvelope(b []byte) (*Envelope, error) {
	e := &Envelope{Size: -1}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, ErrBadEnvelope
		}
		b = b[n:]

		switch {
		case typ == protowire.VarintType && num != fieldHeader && num != fieldDest:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return nil, ErrBadEnvelope
			}
			b = b[m:]
			switch num {
			case fieldFlags:
				e.Flags = types.MessageFlags(v).Wire()
			case fieldTypeID:
				e.TypeID = uint32(v)
			case fieldReqIndex:
				e.RequestID.Index = uint32(v)
			case fieldReqGen:
				e.RequestID.Generation = uint32(v)
			case fieldSize:
				e.Size = int64(v)
			}
		case typ == protowire.BytesType && (num == fieldHeader || num == fieldDest):
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, ErrBadEnvelope
			}
			b = b[m:]
			if num == fieldHeader {
				e.Header = append([]byte(nil), v...)
			} else {
				e.Dest = string(v)
			}
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return nil, ErrBadEnvelope
			}
			b = b[m:]
		}
	}
	return e, nil
}

// Clone 深拷贝信封
func (e *Envelope) Clone() *Envelope {
	c := *e
	if e.Header != nil {
		c.Header = append([]byte(nil), e.Header...)
	}
	return &c
}

// Inbound 接收方重组完成的消息
type Inbound struct {
	// ID 发送方为该消息分配的 MessageID
	ID types.MessageID

	// Envelope 信封（Flags 已加上 FlagOnPeer）
	Envelope *Envelope

	// Body 完整负载
	Body []byte
}
