package conn

import (
	"github.com/dep2p/go-msgrpc/internal/core/wire"
	"github.com/dep2p/go-msgrpc/pkg/types"
)

// HandlerFuncs 以函数实现 Handler，未设置的回调为空操作
type HandlerFuncs struct {
	Message     func(c *Conn, in *wire.Inbound)
	PeerCancel  func(c *Conn, peerID types.MessageID)
	Register    func(c *Conn, name string) error
	StateChange func(c *Conn, from, to types.ConnectionState, err error)
}

var _ Handler = (*HandlerFuncs)(nil)

// HandleMessage 实现 Handler
func (h *HandlerFuncs) HandleMessage(c *Conn, in *wire.Inbound) {
	if h.Message != nil {
		h.Message(c, in)
	}
}

// HandlePeerCancel 实现 Handler
func (h *HandlerFuncs) HandlePeerCancel(c *Conn, peerID types.MessageID) {
	if h.PeerCancel != nil {
		h.PeerCancel(c, peerID)
	}
}

// HandleRegister 实现 Handler，未设置时拒绝注册
func (h *HandlerFuncs) HandleRegister(c *Conn, name string) error {
	if h.Register != nil {
		return h.Register(c, name)
	}
	return types.ErrRelayDisabled
}

// HandleStateChange 实现 Handler
func (h *HandlerFuncs) HandleStateChange(c *Conn, from, to types.ConnectionState, err error) {
	if h.StateChange != nil {
		h.StateChange(c, from, to, err)
	}
}
