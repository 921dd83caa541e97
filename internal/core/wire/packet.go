package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dep2p/go-msgrpc/pkg/interfaces"
)

const (
	// Magic 报文魔数 "MR"
	Magic uint16 = 0x4d52

	// Version 当前协议版本
	Version uint8 = 1

	// HeaderSize 报文头长度
	HeaderSize = 8

	// MaxPacketSize 单个报文负载（解压后）的接收上限
	MaxPacketSize = 16 << 20

	// MinPacketCapacity 发送缓冲的最小容量
	MinPacketCapacity = 512

	// DefaultPacketCapacity 默认发送缓冲容量
	DefaultPacketCapacity = 64 << 10

	// MinCompressSize 小于此长度的负载不尝试压缩
	MinCompressSize = 256
)

const (
	flagCompressed = 1 << 0
	algoShift      = 1
	algoMask       = 0x7
)

// Header 报文头
type Header struct {
	Flags  uint8
	Length uint32
}

// Compressed 负载是否已压缩
func (h Header) Compressed() bool { return h.Flags&flagCompressed != 0 }

// Algorithm 压缩算法编号
func (h Header) Algorithm() uint8 { return (h.Flags >> algoShift) & algoMask }

// PutHeader 写入报文头，b 至少 HeaderSize 字节
func PutHeader(b []byte, h Header) {
	binary.BigEndian.PutUint16(b[0:2], Magic)
	b[2] = Version
	b[3] = h.Flags
	binary.BigEndian.PutUint32(b[4:8], h.Length)
}

// ParseHeader 解析并校验报文头
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrTruncated
	}
	if binary.BigEndian.Uint16(b[0:2]) != Magic {
		return Header{}, ErrBadMagic
	}
	if b[2] != Version {
		return Header{}, fmt.Errorf("%w: %d", ErrBadVersion, b[2])
	}
	h := Header{Flags: b[3], Length: binary.BigEndian.Uint32(b[4:8])}
	if h.Length > MaxPacketSize {
		return Header{}, fmt.Errorf("%w: %d", ErrPacketTooLarge, h.Length)
	}
	return h, nil
}

// CompressedFlags 构造压缩报文的 flags
func CompressedFlags(algo uint8) uint8 {
	return flagCompressed | (algo&algoMask)<<algoShift
}

// PacketReader 从字节流读取报文
//
// 由连接的读协程使用；返回的负载为新分配的切片，可以跨协程传递。
type PacketReader struct {
	r      *bufio.Reader
	hdr    [HeaderSize]byte
	lookup func(id uint8) interfaces.Compressor
	raw    []byte
}

// NewPacketReader 创建报文读取器，lookup 按算法编号返回解压器（可为空）
func NewPacketReader(r io.Reader, lookup func(id uint8) interfaces.Compressor) *PacketReader {
	return &PacketReader{
		r:      bufio.NewReaderSize(r, 32<<10),
		lookup: lookup,
	}
}

// Next 读取下一个报文，返回负载与线上字节数
func (pr *PacketReader) Next() ([]byte, int, error) {
	if _, err := io.ReadFull(pr.r, pr.hdr[:]); err != nil {
		return nil, 0, err
	}
	h, err := ParseHeader(pr.hdr[:])
	if err != nil {
		return nil, HeaderSize, err
	}
	wireLen := HeaderSize + int(h.Length)

	if !h.Compressed() {
		payload := make([]byte, h.Length)
		if _, err := io.ReadFull(pr.r, payload); err != nil {
			return nil, wireLen, unexpected(err)
		}
		return payload, wireLen, nil
	}

	var c interfaces.Compressor
	if pr.lookup != nil {
		c = pr.lookup(h.Algorithm())
	}
	if c == nil {
		return nil, wireLen, fmt.Errorf("%w: %d", ErrUnknownCompression, h.Algorithm())
	}
	if cap(pr.raw) < int(h.Length) {
		pr.raw = make([]byte, h.Length)
	}
	raw := pr.raw[:h.Length]
	if _, err := io.ReadFull(pr.r, raw); err != nil {
		return nil, wireLen, unexpected(err)
	}
	payload, err := c.Decompress(nil, raw, MaxPacketSize)
	if err != nil {
		return nil, wireLen, fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	return payload, wireLen, nil
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
