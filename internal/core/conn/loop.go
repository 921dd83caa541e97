package conn

import (
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/dep2p/go-msgrpc/internal/core/wire"
	"github.com/dep2p/go-msgrpc/pkg/types"
)

// run 事件循环，直到连接进入 Closed
func (c *Conn) run() {
	ticker := c.clk.Ticker(c.cfg.tickInterval())
	defer func() {
		ticker.Stop()
		close(c.loopDone)
	}()

	for c.State() != stateClosed {
		select {
		case fn := <-c.cmds:
			fn()
		case p := <-c.recvCh:
			c.onPacket(p)
		case err := <-c.writeDone:
			c.onWriteDone(err)
		case <-c.wake:
		case <-ticker.C:
			c.onTick()
		}
		c.pump()
	}
}

// ============================================================================
//                              状态迁移
// ============================================================================

func (c *Conn) needHandshake() bool {
	return c.cfg.TLS != nil && !c.secureTr
}

// apply 输入事件并执行迁移动作
func (c *Conn) apply(ev Event, cause error) {
	from := c.State()
	to, act := Transition(from, ev, Input{Secure: c.needHandshake(), Pending: !c.idle()})
	if to == from && act == ActNone {
		return
	}
	if cause != nil {
		c.setErr(cause)
	}
	if to != from {
		c.setState(from, to)
	}

	if act.Has(ActStartHandshake) {
		c.startHandshake()
	}
	if act.Has(ActEnterActive) {
		c.enterActive()
	}
	if act.Has(ActFailPending) {
		c.failPending()
	}
	if act.Has(ActCloseSocket) {
		c.closeSocket()
		c.apply(EvSocketClosed, nil)
	}
	if act.Has(ActNotifyClosed) {
		c.cancel()
		c.disp.close()
	}
}

func (c *Conn) fail(err error) {
	c.apply(EvFailure, err)
}

func (c *Conn) setState(from, to types.ConnectionState) {
	c.state.Store(uint32(to))
	c.cfg.Metrics.ConnTransition(from, to)

	var err error
	if to >= stateClosing {
		err = c.Err()
	}
	switch to {
	case stateDraining:
		c.drainBy = c.clk.Now().Add(c.cfg.DrainTimeout)
		c.log.Debug("连接进入排空", "pending", c.table.Len())
	case stateClosed:
		if err != nil {
			c.cfg.Metrics.ConnError(err)
			c.log.Info("连接已关闭", "err", err)
		} else {
			c.log.Debug("连接已关闭")
		}
	default:
		c.log.Debug("连接状态变化", "from", from, "to", to)
	}
	c.disp.post(func() { c.h.HandleStateChange(c, from, to, err) })
}

func (c *Conn) enterActive() {
	now := c.clk.Now()
	c.lastRecv, c.lastSend = now, now
	c.writeCh = make(chan []byte, 1)
	go c.readLoop(c.nc)
	go c.writeLoop(c.nc, c.writeCh)
	c.log.Debug("连接已激活", "remote", c.nc.RemoteAddr())
	c.flushActivate(nil)
}

func (c *Conn) flushActivate(err error) {
	for _, cb := range c.onActive {
		cb := cb
		c.disp.post(func() { cb(err) })
	}
	c.onActive = nil
}

func (c *Conn) closeSocket() {
	c.cancel()
	if c.nc != nil {
		c.nc.Close()
	}
}

// failPending 以连接错误完成全部待决消息
func (c *Conn) failPending() {
	err := c.Err()
	if err == nil {
		err = types.ErrConnectionStopping
	}
	c.table.Range(func(index, gen uint32, o *outgoing) bool {
		c.table.Remove(index, gen)
		if o.body != nil {
			o.body.Close()
		}
		c.complete(o, nil, err)
		return true
	})
	c.q.reset()
	c.peerReqs = make(map[types.MessageID]*exchange)
	c.partials = make(map[uint32]*partial)
	c.flushed = [2][]*outgoing{}
	c.load.Store(0)
	c.flushActivate(err)
}

// idle 没有在途消息，也没有待写出的数据
func (c *Conn) idle() bool {
	return c.table.Len() == 0 && c.q.empty() && !c.writing && c.builders[c.filling].Empty()
}

// onTick 不活跃检测、心跳与排空超时
func (c *Conn) onTick() {
	s := c.State()
	if s != stateActive && s != stateDraining {
		return
	}
	now := c.clk.Now()
	if now.Sub(c.lastRecv) >= c.cfg.InactivityTimeout {
		c.fail(types.ErrConnectionInactivityTimeout)
		return
	}
	if s == stateDraining && !now.Before(c.drainBy) {
		c.fail(types.ErrConnectionDrainTimeout)
		return
	}
	if !c.writing && now.Sub(c.lastSend) >= c.cfg.KeepaliveInterval {
		c.q.pushControl(wire.Record{Kind: wire.KindKeepalive})
	}
}

// ============================================================================
//                              多路复用表
// ============================================================================

func (c *Conn) enqueue(env *wire.Envelope, body wire.Body, done Completion, ex *exchange) (types.MessageID, error) {
	if body == nil {
		body = wire.BytesBody(nil)
	}
	env.Size = body.Size()
	if c.cfg.MaxMessageSize > 0 && env.Size > c.cfg.MaxMessageSize {
		return types.MessageID{}, types.ErrMessageTooLarge
	}
	begin := wire.AppendEnvelope(nil, env)
	if wire.HeaderSize+wire.MaxRecordHeader+len(begin) > c.builders[0].Capacity() {
		return types.MessageID{}, types.ErrMessageTooLarge
	}

	o := &outgoing{env: env, body: body, done: done, begin: begin, ex: ex}
	_, _, ok := c.table.InsertFunc(func(index, gen uint32) *outgoing {
		o.id = types.MessageID{Index: index, Generation: gen}
		return o
	})
	if !ok {
		return types.MessageID{}, types.ErrPoolFull
	}
	c.load.Store(int32(c.table.Len()))

	if w, ok := body.(wire.Waker); ok {
		w.SetWake(c.kick)
	}
	if ex == nil {
		c.q.push(o)
		return o.id, nil
	}
	ex.queue = append(ex.queue, o)
	if env.Flags.IsTerminalResponse() {
		ex.lastSet = true
	}
	if len(ex.queue) == 1 {
		c.q.push(o)
	}
	return o.id, nil
}

// removeEntry 从表与队列中移除消息，返回是否确实移除
func (c *Conn) removeEntry(o *outgoing) bool {
	cur, ok := c.table.Get(o.id.Index, o.id.Generation)
	if !ok || cur != o {
		return false
	}
	c.table.Remove(o.id.Index, o.id.Generation)
	c.q.remove(o)
	if o.body != nil {
		o.body.Close()
	}
	c.load.Store(int32(c.table.Len()))

	if ex := o.ex; ex != nil {
		if ex.remove(o) && len(ex.queue) > 0 {
			c.q.push(ex.queue[0])
		}
	}
	return true
}

func (c *Conn) complete(o *outgoing, in *wire.Inbound, err error) {
	if o.done == nil {
		return
	}
	done := o.done
	c.disp.post(func() { done(in, err) })
}

func (c *Conn) sendCode(kind wire.Kind, id types.MessageID, code uint16, name string) {
	data := wire.AppendCode(nil, code)
	data = append(data, name...)
	c.q.pushControl(wire.Record{Kind: kind, Slot: id.Index, Gen: id.Generation, Data: data})
}

func (c *Conn) sendCancel(id types.MessageID) {
	c.q.pushControl(wire.Record{Kind: wire.KindCancel, Slot: id.Index, Gen: id.Generation})
}

func (c *Conn) cancelLocal(id types.MessageID) error {
	o, ok := c.table.Get(id.Index, id.Generation)
	if !ok {
		return types.ErrUnknownMessage
	}
	if o.canceling {
		return nil
	}
	c.cfg.Metrics.MessageCanceled()

	if ex := o.ex; ex != nil {
		c.dropExchange(ex, types.ErrMessageCanceled)
		c.sendCode(wire.KindAbort, ex.peer, uint16(types.ErrMessageCanceledByPeer.Code), "")
		return nil
	}
	if !o.started {
		c.removeEntry(o)
		c.complete(o, nil, types.ErrMessageCanceled)
		return nil
	}

	o.canceling = true
	c.q.remove(o)
	o.body.Close()
	c.sendCancel(o.id)
	return nil
}

// dropExchange 放弃对端请求的交换，尚未发出的响应以 err 完成
func (c *Conn) dropExchange(ex *exchange, err error) {
	if c.peerReqs[ex.peer] == ex {
		delete(c.peerReqs, ex.peer)
	}
	queue := ex.queue
	ex.queue = nil
	ex.lastSet = true
	for _, o := range queue {
		if o.started && !o.finished {
			c.sendCancel(o.id)
		}
		o.ex = nil
		if c.removeEntry(o) {
			c.complete(o, nil, err)
		}
	}
}

// failMessage 消息体出错，单独终止该消息
func (c *Conn) failMessage(o *outgoing, err error) {
	c.log.Debug("消息发送失败", "msg", o.id, "err", err)
	if ex := o.ex; ex != nil {
		c.dropExchange(ex, err)
		c.sendCode(wire.KindAbort, ex.peer, uint16(types.ErrMessageLost.Code), "")
		return
	}
	if o.started && !o.finished {
		c.sendCancel(o.id)
	}
	c.removeEntry(o)
	c.complete(o, nil, err)
}

// ============================================================================
//                              发送调度
// ============================================================================

type stepResult uint8

const (
	stepMore stepResult = iota
	stepDone
	stepFull
	stepPending
	stepFailed
)

// pump 组装报文并交给写协程，双缓冲：一个写出时另一个继续组装
func (c *Conn) pump() {
	s := c.State()
	if s != stateActive && s != stateDraining {
		return
	}
	for {
		b := c.builders[c.filling]
		c.fill(b)
		if c.writing || b.Empty() {
			break
		}
		c.flush()
	}
	if c.State() == stateDraining && c.idle() {
		c.apply(EvDrained, nil)
	}
}

func (c *Conn) fill(b *wire.Builder) {
	for len(c.q.control) > 0 {
		if !b.Append(c.q.control[0]) {
			return
		}
		c.q.control = c.q.control[1:]
	}

	// 同步消息独占发送，直到队首发送完毕
lanes:
	for len(c.q.sync) > 0 {
		switch c.step(b, c.q.sync[0], 0) {
		case stepFull:
			return
		case stepPending:
			break lanes
		}
	}

	for {
		progress := false
		for n := len(c.q.normal); n > 0 && len(c.q.normal) > 0; n-- {
			if c.q.cursor >= len(c.q.normal) {
				c.q.cursor = 0
			}
			switch c.step(b, c.q.normal[c.q.cursor], normalQuantum) {
			case stepFull:
				return
			case stepMore:
				progress = true
				c.q.cursor++
			case stepPending:
				c.q.cursor++
			default:
				progress = true
			}
		}
		if !progress {
			return
		}
	}
}

// step 为一条消息写入记录
func (c *Conn) step(b *wire.Builder, o *outgoing, quantum int) stepResult {
	if !o.started {
		if !b.Append(wire.Record{Kind: wire.KindBegin, Slot: o.id.Index, Gen: o.id.Generation, Data: o.begin}) {
			return stepFull
		}
		o.started = true
	}

	room := b.DataRoom()
	if room <= 0 {
		return stepFull
	}
	if quantum > 0 && room > quantum {
		room = quantum
	}

	chunk, err := o.body.Next(room)
	switch {
	case err == nil && len(chunk) > 0:
		b.Append(wire.Record{Kind: wire.KindData, Slot: o.id.Index, Gen: o.id.Generation, Data: chunk})
		o.sent += int64(len(chunk))
		if c.cfg.MaxMessageSize > 0 && o.sent > c.cfg.MaxMessageSize {
			c.failMessage(o, types.ErrMessageTooLarge)
			return stepFailed
		}
		return stepMore
	case err == nil, errors.Is(err, wire.ErrPending):
		return stepPending
	case err == io.EOF:
		if !b.Append(wire.Record{Kind: wire.KindEnd, Slot: o.id.Index, Gen: o.id.Generation}) {
			return stepFull
		}
		o.finished = true
		c.q.remove(o)
		o.body.Close()
		c.flushed[c.filling] = append(c.flushed[c.filling], o)
		return stepDone
	default:
		c.failMessage(o, fmt.Errorf("%w: %v", types.ErrMessageLost, err))
		return stepFailed
	}
}

func (c *Conn) flush() {
	pkt := c.builders[c.filling].Finish()
	c.writingIdx = c.filling
	c.writingLen = len(pkt)
	c.writing = true
	c.filling ^= 1
	c.writeCh <- pkt
}

// onWriteDone 报文写出完成
func (c *Conn) onWriteDone(err error) {
	c.writing = false
	if s := c.State(); s != stateActive && s != stateDraining {
		return
	}
	if err != nil {
		c.fail(fmt.Errorf("%w: %v", types.ErrConnectionSocket, err))
		return
	}

	c.stats.packetsSent.Add(1)
	c.stats.bytesSent.Add(uint64(c.writingLen))
	c.cfg.Metrics.PacketSent(c.cfg.Label, c.writingLen)
	c.lastSend = c.clk.Now()

	idx := c.writingIdx
	for _, o := range c.flushed[idx] {
		if cur, ok := c.table.Get(o.id.Index, o.id.Generation); !ok || cur != o || o.canceling {
			continue
		}
		c.stats.messagesSent.Add(1)
		c.cfg.Metrics.MessageSent()
		if o.awaiting() {
			continue
		}
		ex := o.ex
		c.removeEntry(o)
		if ex != nil && o.env.Flags.IsTerminalResponse() && c.peerReqs[ex.peer] == ex {
			delete(c.peerReqs, ex.peer)
		}
		c.complete(o, nil, nil)
	}
	c.flushed[idx] = c.flushed[idx][:0]
	c.builders[idx].Reset()
}

// ============================================================================
//                              读写协程
// ============================================================================

func (c *Conn) readLoop(nc net.Conn) {
	pr := wire.NewPacketReader(nc, c.cfg.Decompressors)
	for {
		payload, n, err := pr.Next()
		select {
		case c.recvCh <- inPacket{payload: payload, n: n, err: err}:
		case <-c.loopDone:
			return
		}
		if err != nil {
			return
		}
	}
}

func (c *Conn) writeLoop(nc net.Conn, ch <-chan []byte) {
	for {
		select {
		case pkt := <-ch:
			_, err := nc.Write(pkt)
			select {
			case c.writeDone <- err:
			case <-c.loopDone:
				return
			}
			if err != nil {
				return
			}
		case <-c.loopDone:
			return
		}
	}
}
