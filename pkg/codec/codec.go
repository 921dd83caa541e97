package codec

import (
	"encoding/json"
	"fmt"

	cbor "github.com/fxamacker/cbor/v2"
	"google.golang.org/protobuf/proto"

	"github.com/dep2p/go-msgrpc/pkg/types"
)

// Codec 负载编解码器
type Codec interface {
	// Name 编解码器名称
	Name() string
	// Marshal 编码负载
	Marshal(v any) ([]byte, error)
	// Unmarshal 解码到 v（由 TypeSpec.New 构造）
	Unmarshal(data []byte, v any) error
}

// Decoder 可选接口：直接返回解码值的编解码器（不经 TypeSpec.New）
type Decoder interface {
	Decode(data []byte) (any, error)
}

// ============================================================================
//                              Protobuf
// ============================================================================

type protoCodec struct{}

// Proto 返回 Protobuf 编解码器，负载必须实现 proto.Message
func Proto() Codec { return protoCodec{} }

func (protoCodec) Name() string { return "proto" }

func (protoCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not proto.Message", types.ErrBadCast, v)
	}
	return proto.Marshal(m)
}

func (protoCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("%w: %T is not proto.Message", types.ErrBadCast, v)
	}
	return proto.Unmarshal(data, m)
}

// ============================================================================
//                              CBOR
// ============================================================================

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR 返回确定性 CBOR 编解码器
func CBOR() (Codec, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, err
	}
	return cborCodec{enc: em, dec: dm}, nil
}

// MustCBOR 同 CBOR，出错时 panic
func MustCBOR() Codec {
	c, err := CBOR()
	if err != nil {
		panic(err)
	}
	return c
}

func (cborCodec) Name() string                         { return "cbor" }
func (c cborCodec) Marshal(v any) ([]byte, error)      { return c.enc.Marshal(v) }
func (c cborCodec) Unmarshal(data []byte, v any) error { return c.dec.Unmarshal(data, v) }

// ============================================================================
//                              JSON
// ============================================================================

type jsonCodec struct{}

// JSON 返回 JSON 编解码器
func JSON() Codec { return jsonCodec{} }

func (jsonCodec) Name() string                       { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// ============================================================================
//                              Bytes
// ============================================================================

type bytesCodec struct{}

// Bytes 返回原始字节编解码器，解码结果为 []byte
func Bytes() Codec { return bytesCodec{} }

func (bytesCodec) Name() string { return "bytes" }

func (bytesCodec) Marshal(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return nil, fmt.Errorf("%w: %T is not []byte", types.ErrBadCast, v)
	}
}

func (bytesCodec) Unmarshal(data []byte, v any) error {
	p, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("%w: %T is not *[]byte", types.ErrBadCast, v)
	}
	*p = append((*p)[:0], data...)
	return nil
}

// Decode 实现 Decoder
func (bytesCodec) Decode(data []byte) (any, error) {
	return append([]byte(nil), data...), nil
}
