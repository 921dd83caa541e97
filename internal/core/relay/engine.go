package relay

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-msgrpc/config"
	"github.com/dep2p/go-msgrpc/internal/core/conn"
	"github.com/dep2p/go-msgrpc/internal/core/metrics"
	"github.com/dep2p/go-msgrpc/internal/core/pool"
	"github.com/dep2p/go-msgrpc/internal/core/wire"
	"github.com/dep2p/go-msgrpc/internal/util/logger"
	"github.com/dep2p/go-msgrpc/pkg/types"
)

var log = logger.Logger("relay")

// responseFlags 转发回来源时保留的响应标志
const responseFlags = types.FlagResponse | types.FlagResponsePart | types.FlagResponseLast

// Engine 中继引擎，实现 pool.Relay
type Engine struct {
	cfg     config.RelayConfig
	clk     clock.Clock
	metrics *metrics.Metrics

	svc     atomic.Pointer[pool.Service]
	routes  *routeTable
	ledger  *ledger
	limiter *Limiter

	forwarded atomic.Uint64
	rejected  atomic.Uint64
}

var _ pool.Relay = (*Engine)(nil)

// NewEngine 创建中继引擎，m 可为空
func NewEngine(cfg config.RelayConfig, m *metrics.Metrics) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("relay: %w", err)
	}
	return &Engine{
		cfg:     cfg,
		clk:     clock.New(),
		metrics: m,
		routes:  newRouteTable(cfg.Shards),
		ledger:  newLedger(cfg.Shards),
		limiter: NewLimiter(cfg),
	}, nil
}

// Attach 挂接到服务：此后服务把注册与带目的路径的消息交给引擎
func (e *Engine) Attach(svc *pool.Service) {
	e.svc.Store(svc)
	svc.SetRelay(e)
	log.Info("中继引擎已挂接", "service", svc.ID(), "shards", e.cfg.Shards)
}

// Attached 是否已挂接
func (e *Engine) Attached() bool {
	return e.svc.Load() != nil
}

// Lookup 返回名称当前的路由
func (e *Engine) Lookup(name string) (types.ConnectionID, bool) {
	return e.routes.get(name)
}

// Pending 返回在途中继请求数
func (e *Engine) Pending() int {
	return e.ledger.len()
}

// ============================================================================
//                              注册
// ============================================================================

// Register 实现 pool.Relay
//
// 同名重新注册原子地替换路由，旧连接上该名称的在途条目以
// ErrMessageCanceledByPeer 失败，并取消已转发到旧连接的消息。
func (e *Engine) Register(c *conn.Conn, name string) error {
	prev, replaced := e.routes.set(name, c.ID(), e.clk.Now())
	e.metrics.RelayRoutes(e.routes.len())

	if replaced {
		n := 0
		for _, t := range e.ledger.forConn(prev) {
			if t.target.ID() != prev || t.name != name {
				continue
			}
			if e.fail(t, types.ErrMessageCanceledByPeer) {
				n++
			}
		}
		log.Info("中继名称重新注册", "name", name, "conn", c.ID(), "prev", prev, "failed", n)
		return nil
	}
	log.Info("中继名称注册", "name", name, "conn", c.ID())
	return nil
}

// ============================================================================
//                              转发
// ============================================================================

// Forward 实现 pool.Relay
//
// 目的路径第一段为注册名，剩余路径随消息继续转发。
// 返回错误时由服务终止来源请求。
func (e *Engine) Forward(c *conn.Conn, in *wire.Inbound) error {
	svc := e.svc.Load()
	if svc == nil {
		return ErrNotAttached
	}
	name, rest, _ := strings.Cut(in.Envelope.Dest, "/")
	target, err := e.resolve(svc, name)
	if err != nil {
		e.rejected.Add(1)
		return err
	}
	if err := e.limiter.allowBytes(len(in.Body)); err != nil {
		e.rejected.Add(1)
		return fmt.Errorf("%w: %v", types.ErrMessageCanceledByPeer, err)
	}

	env := &wire.Envelope{
		Flags:  in.Envelope.Flags.Wire() | types.FlagRelayed,
		TypeID: in.Envelope.TypeID,
		Header: in.Envelope.Header,
		Dest:   rest,
	}
	body := wire.BytesBody(in.Body)

	if !env.Flags.Has(types.FlagAwaitResponse) {
		if _, err := target.Send(env, body, nil); err != nil {
			body.Close()
			return fmt.Errorf("%w: %v", types.ErrMessageCanceledByPeer, err)
		}
		e.forwardedOne()
		return nil
	}

	if err := e.limiter.acquire(c.ID()); err != nil {
		e.rejected.Add(1)
		return fmt.Errorf("%w: %v", types.ErrMessageCanceledByPeer, err)
	}
	t := &ticket{
		origin:    c,
		originMsg: in.ID,
		target:    target,
		name:      name,
		created:   e.clk.Now(),
	}
	e.ledger.add(t)
	e.metrics.RelayLedger(1)

	id, err := target.Send(env, body, e.completion(t))
	if err != nil {
		body.Close()
		e.finish(t)
		return fmt.Errorf("%w: %v", types.ErrMessageCanceledByPeer, err)
	}
	if !t.setTarget(id) {
		// 转发期间条目已被结束（来源取消或连接关闭）
		target.Cancel(id)
	}
	e.forwardedOne()
	return nil
}

// resolve 查找名称对应的目标连接，陈旧路由顺便删除
func (e *Engine) resolve(svc *pool.Service, name string) (*conn.Conn, error) {
	id, ok := e.routes.get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrRelayUnknownName, name)
	}
	target, ok := svc.Conn(id)
	if !ok || !target.State().AcceptsSend() {
		if e.routes.removeIf(name, id) {
			e.metrics.RelayRoutes(e.routes.len())
		}
		return nil, fmt.Errorf("%w: %q", types.ErrRelayUnknownName, name)
	}
	return target, nil
}

// completion 把目标侧的响应转回来源
func (e *Engine) completion(t *ticket) conn.Completion {
	return func(in *wire.Inbound, err error) {
		if err != nil {
			if e.finish(t) {
				t.origin.Abort(t.originMsg, originError(err))
			}
			return
		}
		if in == nil {
			return
		}

		terminal := in.Envelope.Flags.IsTerminalResponse()
		if terminal {
			if !e.finish(t) {
				return
			}
		} else if t.done.Load() {
			return
		}

		env := &wire.Envelope{
			Flags:  in.Envelope.Flags&responseFlags | types.FlagRelayed,
			TypeID: in.Envelope.TypeID,
			Header: in.Envelope.Header,
		}
		body := wire.BytesBody(in.Body)
		if _, err := t.origin.SendResponse(t.originMsg, env, body, nil); err != nil {
			body.Close()
			log.Debug("响应无法转回来源", "origin", t.origin.ID(), "msg", t.originMsg, "err", err)
			if !terminal && e.finish(t) {
				t.target.Cancel(t.targetID())
			}
			return
		}
		e.forwardedOne()
	}
}

// originError 目标侧错误在来源侧的表示
//
// 消息级错误原样传回（未知类型、下一跳未知名称等），
// 其余一律视为对端放弃了交换。
func originError(err error) error {
	if types.IsMessageError(err) {
		return err
	}
	return types.ErrMessageCanceledByPeer
}

// ============================================================================
//                              取消与关闭传播
// ============================================================================

// PeerCanceled 实现 pool.Relay：来源取消请求，向目标传递取消
func (e *Engine) PeerCanceled(c *conn.Conn, peerID types.MessageID) {
	t := e.ledger.lookup(c.ID(), peerID)
	if t == nil || !e.finish(t) {
		return
	}
	if id := t.targetID(); id.IsValid() {
		t.target.Cancel(id)
	}
	log.Debug("来源取消中继请求", "origin", c.ID(), "msg", peerID, "name", t.name)
}

// ConnectionClosed 实现 pool.Relay
//
// 删除连接注册的路由；来源连接关闭时取消已转发的消息，
// 目标连接关闭时来源侧的每条在途消息恰好一次以 ErrMessageCanceledByPeer 结束。
func (e *Engine) ConnectionClosed(c *conn.Conn, err error) {
	id := c.ID()
	if names := e.routes.dropConn(id); len(names) > 0 {
		e.metrics.RelayRoutes(e.routes.len())
		log.Info("中继连接关闭，删除路由", "conn", id, "names", names, "err", err)
	}

	n := 0
	for _, t := range e.ledger.forConn(id) {
		if !e.finish(t) {
			continue
		}
		n++
		if t.origin.ID() == id {
			if mid := t.targetID(); mid.IsValid() {
				t.target.Cancel(mid)
			}
			continue
		}
		t.origin.Abort(t.originMsg, types.ErrMessageCanceledByPeer)
	}
	if n > 0 {
		log.Debug("连接关闭结束中继条目", "conn", id, "entries", n)
	}
}

// fail 结束条目：终止来源请求并取消目标消息
func (e *Engine) fail(t *ticket, cause error) bool {
	if !e.finish(t) {
		return false
	}
	t.origin.Abort(t.originMsg, cause)
	if id := t.targetID(); id.IsValid() {
		t.target.Cancel(id)
	}
	return true
}

// finish 从账本移除条目，只有第一次调用返回 true
func (e *Engine) finish(t *ticket) bool {
	if !e.ledger.take(t) {
		return false
	}
	e.limiter.release(t.origin.ID())
	e.metrics.RelayLedger(-1)
	return true
}

func (e *Engine) forwardedOne() {
	e.forwarded.Add(1)
	e.metrics.RelayForwarded()
}
