// Package compress 提供报文压缩实现（s2、zstd）
package compress

import (
	"errors"
	"fmt"
	"strings"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"

	"github.com/dep2p/go-msgrpc/pkg/interfaces"
)

// 算法编号，与报文头 flags 中的编号一致
const (
	IDS2   uint8 = 1
	IDZstd uint8 = 2
)

var (
	// ErrUnknownAlgorithm 未知压缩算法
	ErrUnknownAlgorithm = errors.New("compress: unknown algorithm")

	// ErrTooLarge 解压结果超过上限
	ErrTooLarge = errors.New("compress: decoded size exceeds limit")
)

// New 按名称创建压缩器，"" 或 "none" 返回 nil
func New(name string) (interfaces.Compressor, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return nil, nil
	case "s2":
		return S2(), nil
	case "zstd":
		return Zstd()
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, name)
	}
}

// Lookup 返回按算法编号查找解压器的函数
//
// 接收方总能解压两种算法，与本端发送时选择的算法无关。
func Lookup() func(id uint8) interfaces.Compressor {
	s := S2()
	z, _ := Zstd()
	return func(id uint8) interfaces.Compressor {
		switch id {
		case IDS2:
			return s
		case IDZstd:
			return z
		}
		return nil
	}
}

// ============================================================================
//                              s2
// ============================================================================

type s2Compressor struct{}

// S2 返回 s2 压缩器（速度优先）
func S2() interfaces.Compressor { return s2Compressor{} }

func (s2Compressor) Name() string { return "s2" }
func (s2Compressor) ID() uint8    { return IDS2 }

func (s2Compressor) Compress(dst, src []byte) []byte {
	z := s2.Encode(dst, src)
	if len(z) >= len(src) {
		return nil
	}
	return z
}

func (s2Compressor) Decompress(dst, src []byte, maxSize int) ([]byte, error) {
	n, err := s2.DecodedLen(src)
	if err != nil {
		return nil, err
	}
	if n > maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLarge, n, maxSize)
	}
	return s2.Decode(dst, src)
}

// ============================================================================
//                              zstd
// ============================================================================

type zstdCompressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Zstd 返回 zstd 压缩器（压缩率优先）
//
// Encoder/Decoder 的 EncodeAll/DecodeAll 可并发调用，一个实例可被多条连接共享。
func Zstd() (interfaces.Compressor, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(0),
		zstd.WithDecoderMaxMemory(64<<20),
	)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &zstdCompressor{enc: enc, dec: dec}, nil
}

func (*zstdCompressor) Name() string { return "zstd" }
func (*zstdCompressor) ID() uint8    { return IDZstd }

func (z *zstdCompressor) Compress(dst, src []byte) []byte {
	out := z.enc.EncodeAll(src, dst[:0])
	if len(out) >= len(src) {
		return nil
	}
	return out
}

func (z *zstdCompressor) Decompress(dst, src []byte, maxSize int) ([]byte, error) {
	var h zstd.Header
	if err := h.Decode(src); err != nil {
		return nil, err
	}
	if h.HasFCS && h.FrameContentSize > uint64(maxSize) {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLarge, h.FrameContentSize, maxSize)
	}
	out, err := z.dec.DecodeAll(src, dst[:0])
	if err != nil {
		return nil, err
	}
	if len(out) > maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLarge, len(out), maxSize)
	}
	return out, nil
}
