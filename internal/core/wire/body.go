package wire

import (
	"io"
	"sync"
	"sync/atomic"
)

// Body 待发送的消息体
//
// Next 由连接事件循环调用，必须立即返回：数据未就绪时返回 ErrPending，
// 读完时返回 io.EOF。
type Body interface {
	// Next 返回至多 max 字节
	Next(max int) ([]byte, error)

	// Size 总长度，-1 表示未知
	Size() int64

	// Close 释放资源（取消或发送完成时调用）
	Close()
}

// Waker 可选接口：流式消息体在数据就绪时回调 wake
type Waker interface {
	SetWake(wake func())
}

// ============================================================================
//                              字节消息体
// ============================================================================

type bytesBody struct {
	b []byte
	n int64
}

// BytesBody 以内存切片作为消息体（不拷贝）
func BytesBody(b []byte) Body {
	return &bytesBody{b: b, n: int64(len(b))}
}

func (b *bytesBody) Next(max int) ([]byte, error) {
	if len(b.b) == 0 {
		return nil, io.EOF
	}
	if max > len(b.b) {
		max = len(b.b)
	}
	out := b.b[:max:max]
	b.b = b.b[max:]
	return out, nil
}

func (b *bytesBody) Size() int64 { return b.n }
func (b *bytesBody) Close()      { b.b = nil }

// ============================================================================
//                              流式消息体
// ============================================================================

// DefaultChunkSize 流式消息体的预读块大小
const DefaultChunkSize = 32 << 10

type chunk struct {
	b   []byte
	err error
}

// readerBody 在独立协程中预读 io.Reader，事件循环只做非阻塞取数
type readerBody struct {
	ch   chan chunk
	done chan struct{}
	once sync.Once
	wake atomic.Pointer[func()]

	cur []byte
	err error
}

// ReaderBody 以 io.Reader 作为流式消息体
//
// 预读协程在读到 EOF、出错或 Close 后退出；r 本身不会被关闭。
func ReaderBody(r io.Reader, chunkSize int) Body {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	b := &readerBody{
		ch:   make(chan chunk, 2),
		done: make(chan struct{}),
	}
	go b.prefetch(r, chunkSize)
	return b
}

func (b *readerBody) prefetch(r io.Reader, size int) {
	for {
		buf := make([]byte, size)
		n, err := r.Read(buf)
		if n > 0 {
			if !b.push(chunk{b: buf[:n]}) {
				return
			}
		}
		if err != nil {
			b.push(chunk{err: err})
			return
		}
	}
}

func (b *readerBody) push(c chunk) bool {
	select {
	case b.ch <- c:
	case <-b.done:
		return false
	}
	if fn := b.wake.Load(); fn != nil {
		(*fn)()
	}
	return true
}

// SetWake 实现 Waker
func (b *readerBody) SetWake(wake func()) {
	b.wake.Store(&wake)
}

func (b *readerBody) Next(max int) ([]byte, error) {
	if len(b.cur) == 0 {
		if b.err != nil {
			return nil, b.err
		}
		select {
		case c := <-b.ch:
			if c.err != nil {
				b.err = c.err
				return nil, c.err
			}
			b.cur = c.b
		default:
			return nil, ErrPending
		}
	}
	if max > len(b.cur) {
		max = len(b.cur)
	}
	out := b.cur[:max:max]
	b.cur = b.cur[max:]
	return out, nil
}

func (b *readerBody) Size() int64 { return -1 }

func (b *readerBody) Close() {
	b.once.Do(func() { close(b.done) })
}
