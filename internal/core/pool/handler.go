package pool

import (
	"errors"

	"github.com/dep2p/go-msgrpc/internal/core/conn"
	"github.com/dep2p/go-msgrpc/internal/core/wire"
	"github.com/dep2p/go-msgrpc/pkg/types"
)

// handler 服务管理的连接的事件回调
type handler struct {
	svc *Service
	e   *entry
}

var _ conn.Handler = (*handler)(nil)

// HandleMessage 带目的路径的消息交给中继，其余解码后分发
func (h *handler) HandleMessage(c *conn.Conn, in *wire.Inbound) {
	if in.Envelope.Dest != "" {
		h.svc.forward(c, in)
		return
	}
	h.svc.dispatch(h.e, c, in)
}

// HandlePeerCancel 对端取消请求；应用侧的未发响应已由连接丢弃
func (h *handler) HandlePeerCancel(c *conn.Conn, peerID types.MessageID) {
	if r := h.svc.relayHook(); r != nil {
		r.PeerCanceled(c, peerID)
	}
}

// HandleRegister 对端请求注册中继名称
func (h *handler) HandleRegister(c *conn.Conn, name string) error {
	r := h.svc.relayHook()
	if r == nil {
		return types.ErrRelayDisabled
	}
	if err := h.svc.validName(name); err != nil {
		return err
	}
	return r.Register(c, name)
}

// HandleStateChange 连接关闭时清理注册表
func (h *handler) HandleStateChange(c *conn.Conn, from, to types.ConnectionState, err error) {
	if to == types.StateClosed {
		h.svc.connClosed(h.e, c, err)
	}
}

// ============================================================================
//                              入站分发
// ============================================================================

// dispatch 解码入站消息并调用类型回调
func (s *Service) dispatch(e *entry, c *conn.Conn, in *wire.Inbound) {
	env := in.Envelope
	awaiting := env.Flags.Has(types.FlagAwaitResponse)

	v, spec, err := s.types.Decode(env.TypeID, in.Body)
	if err != nil {
		log.Debug("入站消息解码失败", "conn", c.ID(), "type", env.TypeID, "err", err)
		if awaiting {
			if !errors.Is(err, types.ErrMessageUnknownType) {
				err = types.ErrMessageLost
			}
			c.Abort(in.ID, err)
		}
		return
	}

	fn := spec.OnMessage
	if fn == nil {
		fn = s.fallbackHandler()
	}
	if fn == nil {
		log.Debug("消息类型没有回调", "conn", c.ID(), "type", env.TypeID)
		if awaiting {
			c.Abort(in.ID, types.ErrMessageUnknownType)
		}
		return
	}

	var req types.MessageID
	if awaiting {
		req = in.ID
	}
	fn(s.newContext(e, c, req), inboundMessage(in, v))
}

// forward 交给中继转发，无法路由时终止对端请求
func (s *Service) forward(c *conn.Conn, in *wire.Inbound) {
	var err error = types.ErrRelayUnknownName
	if r := s.relayHook(); r != nil {
		err = r.Forward(c, in)
	}
	if err == nil {
		return
	}
	log.Debug("无法转发消息", "conn", c.ID(), "dest", in.Envelope.Dest, "err", err)
	if in.Envelope.Flags.Has(types.FlagAwaitResponse) {
		c.Abort(in.ID, err)
	}
}

func inboundMessage(in *wire.Inbound, payload any) *types.Message {
	env := in.Envelope
	return &types.Message{
		ID:        in.ID,
		RequestID: env.RequestID,
		TypeID:    env.TypeID,
		Flags:     env.Flags,
		Header:    env.Header,
		Payload:   payload,
	}
}
