package conn

import (
	"github.com/dep2p/go-msgrpc/internal/core/wire"
	"github.com/dep2p/go-msgrpc/pkg/types"
)

// outgoing 多路复用表中的一条发送消息
type outgoing struct {
	id   types.MessageID
	env  *wire.Envelope
	body wire.Body
	done Completion

	// begin 预编码的信封
	begin []byte

	// ex 非空表示这是对对端请求的响应
	ex *exchange

	queued    bool
	started   bool
	finished  bool
	canceling bool
	sent      int64
}

// awaiting 已发送完毕后是否仍需留在表中等待响应
func (o *outgoing) awaiting() bool {
	return o.ex == nil && o.env.Flags.Has(types.FlagAwaitResponse)
}

// exchange 对端等待响应的请求
//
// 同一交换的响应按提交顺序逐条发送，只有队首可被调度。
type exchange struct {
	peer    types.MessageID
	queue   []*outgoing
	lastSet bool
}

func (ex *exchange) remove(o *outgoing) (head bool) {
	for i, e := range ex.queue {
		if e == o {
			ex.queue = append(ex.queue[:i], ex.queue[i+1:]...)
			return i == 0
		}
	}
	return false
}

// sendQueue 发送调度队列
//
// 调度顺序：控制记录 → 同步消息 FIFO（仅队首）→ 普通消息轮转。
type sendQueue struct {
	control []wire.Record
	sync    []*outgoing
	normal  []*outgoing
	cursor  int
}

func (q *sendQueue) push(o *outgoing) {
	if o.queued {
		return
	}
	o.queued = true
	if o.env.Flags.Has(types.FlagSynchronous) {
		q.sync = append(q.sync, o)
		return
	}
	q.normal = append(q.normal, o)
}

func (q *sendQueue) pushControl(r wire.Record) {
	q.control = append(q.control, r)
}

func (q *sendQueue) remove(o *outgoing) {
	if !o.queued {
		return
	}
	o.queued = false
	if o.env.Flags.Has(types.FlagSynchronous) {
		q.sync = removeOutgoing(q.sync, o)
		return
	}
	for i, e := range q.normal {
		if e == o {
			q.normal = append(q.normal[:i], q.normal[i+1:]...)
			if i < q.cursor {
				q.cursor--
			}
			break
		}
	}
	if q.cursor >= len(q.normal) {
		q.cursor = 0
	}
}

func (q *sendQueue) empty() bool {
	return len(q.control) == 0 && len(q.sync) == 0 && len(q.normal) == 0
}

func (q *sendQueue) reset() {
	for _, o := range q.sync {
		o.queued = false
	}
	for _, o := range q.normal {
		o.queued = false
	}
	*q = sendQueue{}
}

func removeOutgoing(s []*outgoing, o *outgoing) []*outgoing {
	for i, e := range s {
		if e == o {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
