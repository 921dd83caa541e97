package conn

import (
	"fmt"

	"github.com/dep2p/go-msgrpc/internal/core/wire"
	"github.com/dep2p/go-msgrpc/pkg/types"
)

// 重组缓冲预分配上限
const maxPrealloc = 1 << 20

// partial 正在接收的对端消息
type partial struct {
	gen     uint32
	env     *wire.Envelope
	body    []byte
	discard bool
}

func (c *Conn) onPacket(p inPacket) {
	if s := c.State(); s != stateActive && s != stateDraining {
		return
	}
	if p.err != nil {
		c.fail(readError(p.err))
		return
	}

	c.lastRecv = c.clk.Now()
	c.stats.packetsRecv.Add(1)
	c.stats.bytesRecv.Add(uint64(p.n))
	c.cfg.Metrics.PacketReceived(c.cfg.Label, p.n)

	if err := wire.ParseRecords(p.payload, c.onRecord); err != nil {
		if !types.IsConnectionError(err) {
			err = readError(err)
		}
		c.fail(err)
	}
}

// onRecord 处理一条记录，返回错误时连接关闭
func (c *Conn) onRecord(r wire.Record) error {
	id := types.MessageID{Index: r.Slot, Generation: r.Gen}

	switch r.Kind {
	case wire.KindKeepalive:
		c.stats.keepalives.Add(1)
		if !c.kaLimit.AllowN(c.clk.Now(), 1) {
			return types.ErrConnectionTooManyKeepalives
		}

	case wire.KindBegin:
		return c.onBegin(r, id)

	case wire.KindData:
		p := c.partials[r.Slot]
		if p == nil || p.gen != r.Gen {
			return c.malformed(r, "data without begin")
		}
		if p.discard {
			return nil
		}
		p.body = append(p.body, r.Data...)
		if c.cfg.MaxMessageSize > 0 && int64(len(p.body)) > c.cfg.MaxMessageSize {
			c.reject(id, p)
		}

	case wire.KindEnd:
		p := c.partials[r.Slot]
		if p == nil || p.gen != r.Gen {
			return c.malformed(r, "end without begin")
		}
		delete(c.partials, r.Slot)
		if !p.discard {
			c.deliver(id, p)
		}

	case wire.KindCancel:
		c.onPeerCancel(id)

	case wire.KindCancelAck:
		if o, ok := c.table.Get(r.Slot, r.Gen); ok && o.canceling {
			c.removeEntry(o)
			c.complete(o, nil, types.ErrMessageCanceledByPeer)
		}

	case wire.KindAbort:
		code, _, err := wire.ParseCode(r.Data)
		if err != nil {
			return c.malformed(r, "bad abort code")
		}
		if o, ok := c.table.Get(r.Slot, r.Gen); ok {
			if o.started && !o.finished {
				c.sendCancel(o.id)
			}
			c.removeEntry(o)
			c.complete(o, nil, types.ErrorByCode(types.ErrorCode(code)))
		}

	case wire.KindRegister:
		c.onRegister(string(r.Data))

	case wire.KindRegisterAck:
		code, name, err := wire.ParseCode(r.Data)
		if err != nil {
			return c.malformed(r, "bad register ack")
		}
		if code != 0 {
			return fmt.Errorf("%w: %q: %v", types.ErrConnectionRegisterRejected, name, types.ErrorByCode(types.ErrorCode(code)))
		}
		c.log.Debug("中继注册成功", "name", string(name))
	}
	return nil
}

func (c *Conn) onBegin(r wire.Record, id types.MessageID) error {
	env, err := wire.ParseEnvelope(r.Data)
	if err != nil {
		return c.malformed(r, "bad envelope")
	}
	if old := c.partials[r.Slot]; old != nil {
		if old.gen == r.Gen {
			return c.malformed(r, "duplicate begin")
		}
		if err := c.malformed(r, "abandoned message"); err != nil {
			return err
		}
	}

	p := &partial{gen: r.Gen, env: env}
	c.partials[r.Slot] = p
	if c.cfg.MaxMessageSize > 0 && env.Size > c.cfg.MaxMessageSize {
		c.reject(id, p)
		return nil
	}
	if env.Size > 0 {
		n := env.Size
		if n > maxPrealloc {
			n = maxPrealloc
		}
		p.body = make([]byte, 0, n)
	}
	return nil
}

// malformed 计数错位记录，超过速率上限时返回连接错误
func (c *Conn) malformed(r wire.Record, reason string) error {
	c.stats.malformed.Add(1)
	c.cfg.Metrics.Malformed()
	c.log.Debug("丢弃错位记录", "kind", r.Kind, "slot", r.Slot, "gen", r.Gen, "reason", reason)
	if !c.badLimit.AllowN(c.clk.Now(), 1) {
		return types.ErrConnectionTooManyMalformed
	}
	return nil
}

// reject 对端消息超过大小上限：丢弃剩余分片并通知对端
func (c *Conn) reject(id types.MessageID, p *partial) {
	p.discard = true
	p.body = nil
	c.log.Debug("消息超过大小上限", "msg", id, "size", p.env.Size)

	if !p.env.Flags.IsResponse() {
		c.sendCode(wire.KindAbort, id, uint16(types.ErrMessageTooLarge.Code), "")
		return
	}
	req := p.env.RequestID
	if o, ok := c.table.Get(req.Index, req.Generation); ok && o.awaiting() {
		c.sendCancel(o.id)
		c.removeEntry(o)
		c.complete(o, nil, types.ErrMessageTooLarge)
	}
}

// deliver 交付重组完成的消息
func (c *Conn) deliver(id types.MessageID, p *partial) {
	p.env.Flags |= types.FlagOnPeer
	in := &wire.Inbound{ID: id, Envelope: p.env, Body: p.body}
	c.stats.messagesRecv.Add(1)
	c.cfg.Metrics.MessageReceived()

	if p.env.Flags.IsResponse() {
		req := p.env.RequestID
		o, ok := c.table.Get(req.Index, req.Generation)
		if !ok || !o.awaiting() || o.canceling {
			c.log.Debug("丢弃迟到的响应", "request", req)
			return
		}
		if p.env.Flags.IsTerminalResponse() {
			c.removeEntry(o)
		}
		c.complete(o, in, nil)
		return
	}

	if p.env.Flags.Has(types.FlagAwaitResponse) {
		c.peerReqs[id] = &exchange{peer: id}
	}
	c.disp.post(func() { c.h.HandleMessage(c, in) })
}

// onPeerCancel 对端取消其消息：丢弃镜像状态并确认
func (c *Conn) onPeerCancel(id types.MessageID) {
	if p := c.partials[id.Index]; p != nil && p.gen == id.Generation {
		delete(c.partials, id.Index)
	}
	if ex := c.peerReqs[id]; ex != nil {
		c.dropExchange(ex, types.ErrMessageCanceledByPeer)
		c.disp.post(func() { c.h.HandlePeerCancel(c, id) })
	}
	c.q.pushControl(wire.Record{Kind: wire.KindCancelAck, Slot: id.Index, Gen: id.Generation})
}

func (c *Conn) onRegister(name string) {
	c.disp.post(func() {
		err := c.h.HandleRegister(c, name)
		code := uint16(types.CodeOf(err))
		if err != nil && code == 0 {
			code = uint16(types.ErrRelayInvalidName.Code)
		}
		c.post(func() {
			if s := c.State(); s != stateActive && s != stateDraining {
				return
			}
			c.sendCode(wire.KindRegisterAck, types.MessageID{}, code, name)
		})
	})
}
