package conn

import (
	"runtime/debug"
	"sync"
)

// dispatcher 串行执行回调的分发协程
//
// 队列无界：事件循环投递回调永不阻塞。
type dispatcher struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	signal chan struct{}
	done   chan struct{}
}

func newDispatcher() *dispatcher {
	return &dispatcher{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// post 投递回调，关闭后返回 false
func (d *dispatcher) post(fn func()) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
	return true
}

// close 不再接受新回调，已投递的回调执行完后 run 退出
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		closed := d.closed
		d.mu.Unlock()

		for _, fn := range batch {
			d.invoke(fn)
		}
		if len(batch) == 0 {
			if closed {
				return
			}
			<-d.signal
		}
	}
}

func (d *dispatcher) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("回调发生 panic", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}
