package pool

import (
	"github.com/dep2p/go-msgrpc/internal/core/conn"
	"github.com/dep2p/go-msgrpc/pkg/interfaces"
	"github.com/dep2p/go-msgrpc/pkg/types"
)

// Context 消息上下文，实现 interfaces.MessageContext
type Context struct {
	svc *Service
	e   *entry
	c   *conn.Conn
	req types.MessageID
}

var _ interfaces.MessageContext = (*Context)(nil)

func (s *Service) newContext(e *entry, c *conn.Conn, req types.MessageID) *Context {
	return &Context{svc: s, e: e, c: c, req: req}
}

// Recipient 实现 interfaces.MessageContext
func (x *Context) Recipient() types.RecipientID {
	return types.RecipientID{Pool: x.e.pool.id, Conn: x.e.id}
}

// PoolName 实现 interfaces.MessageContext
func (x *Context) PoolName() string {
	if x.e.pool.inbound {
		return ""
	}
	return x.e.pool.name
}

// RequestID 当前请求的对端句柄，单向消息与响应为零值
func (x *Context) RequestID() types.MessageID { return x.req }

// Service 返回所属服务
func (x *Context) Service() *Service { return x.svc }

// Respond 实现 interfaces.MessageContext
//
// flags 未包含任何响应标志时按单条响应（FlagResponse）发送。
func (x *Context) Respond(msg *types.Message, flags types.MessageFlags) error {
	if !x.req.IsValid() {
		return types.ErrMessageState
	}
	return x.svc.respond(x.c, x.req, msg, flags)
}

// Send 实现 interfaces.MessageContext
func (x *Context) Send(msg *types.Message, flags types.MessageFlags) (types.MessageID, error) {
	if flags.Has(types.FlagAwaitResponse) {
		return types.MessageID{}, types.ErrMessageFlags
	}
	return x.svc.sendOn(x.e, x.c, msg, flags, "", nil)
}

// Request 在同一连接上发送请求
func (x *Context) Request(msg *types.Message, flags types.MessageFlags, fn interfaces.ResponseFunc) (types.MessageID, error) {
	if fn == nil {
		return types.MessageID{}, types.ErrMessageFlags
	}
	return x.svc.sendOn(x.e, x.c, msg, flags|types.FlagAwaitResponse, "", fn)
}
