package wire

import (
	"github.com/dep2p/go-msgrpc/pkg/interfaces"
)

// Builder 固定容量的报文组装缓冲
//
// 连接持有两个 Builder 交替使用：一个交给写协程时，另一个继续组装。
type Builder struct {
	buf      []byte
	capacity int
	records  int

	comp    interfaces.Compressor
	scratch []byte
	out     []byte
}

// NewBuilder 创建报文缓冲，capacity 含报文头
func NewBuilder(capacity int, comp interfaces.Compressor) *Builder {
	if capacity < MinPacketCapacity {
		capacity = MinPacketCapacity
	}
	if capacity > HeaderSize+MaxPacketSize {
		capacity = HeaderSize + MaxPacketSize
	}
	return &Builder{
		buf:      make([]byte, HeaderSize, capacity),
		capacity: capacity,
		comp:     comp,
	}
}

// Reset 清空缓冲以便复用
func (b *Builder) Reset() {
	b.buf = b.buf[:HeaderSize]
	b.records = 0
}

// Capacity 报文容量（含报文头）
func (b *Builder) Capacity() int { return b.capacity }

// Empty 是否没有任何记录
func (b *Builder) Empty() bool { return b.records == 0 }

// Records 已追加的记录数
func (b *Builder) Records() int { return b.records }

// Free 剩余可用字节
func (b *Builder) Free() int { return b.capacity - len(b.buf) }

// DataRoom 在预留最大记录头后，当前报文还能容纳的数据字节数
func (b *Builder) DataRoom() int {
	n := b.Free() - MaxRecordHeader
	if n < 0 {
		return 0
	}
	return n
}

// Append 追加记录，空间不足时返回 false
func (b *Builder) Append(r Record) bool {
	if r.EncodedLen() > b.Free() {
		return false
	}
	b.buf = AppendRecord(b.buf, r)
	b.records++
	return true
}

// Finish 写入报文头并返回完整报文
//
// 负载足够大且压缩有收益时发送压缩后的负载。返回的切片在下次
// Reset 之前有效。
func (b *Builder) Finish() []byte {
	payload := b.buf[HeaderSize:]

	if b.comp != nil && len(payload) >= MinCompressSize {
		if cap(b.scratch) < len(payload) {
			b.scratch = make([]byte, 0, len(payload))
		}
		z := b.comp.Compress(b.scratch[:0], payload)
		if z != nil && len(z) < len(payload) {
			b.scratch = z[:0]
			var hdr [HeaderSize]byte
			PutHeader(hdr[:], Header{Flags: CompressedFlags(b.comp.ID()), Length: uint32(len(z))})
			b.out = append(append(b.out[:0], hdr[:]...), z...)
			return b.out
		}
	}

	PutHeader(b.buf, Header{Length: uint32(len(payload))})
	return b.buf
}
