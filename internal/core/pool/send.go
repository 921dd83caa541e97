package pool

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-msgrpc/internal/core/conn"
	"github.com/dep2p/go-msgrpc/internal/core/wire"
	"github.com/dep2p/go-msgrpc/pkg/interfaces"
	"github.com/dep2p/go-msgrpc/pkg/types"
)

// pickAttempts 所选连接恰好饱和或开始关闭时的重选次数
const pickAttempts = 3

// ============================================================================
//                              按名称发送
// ============================================================================

// SendMessage 向接收者发送单向消息
//
// recipient 形如 [scheme://]host[:port][#relay/path]。连接池不存在时创建。
func (s *Service) SendMessage(recipient string, msg *types.Message, flags types.MessageFlags) (types.RecipientID, types.MessageID, error) {
	if flags.Has(types.FlagAwaitResponse) {
		return types.RecipientID{}, types.MessageID{}, types.ErrMessageFlags
	}
	return s.send(recipient, msg, flags, nil)
}

// SendRequest 向接收者发送请求
//
// fn 每收到一条响应调用一次（Part 之后是 Last），或以错误调用恰好一次。
func (s *Service) SendRequest(recipient string, msg *types.Message, flags types.MessageFlags, fn interfaces.ResponseFunc) (types.RecipientID, types.MessageID, error) {
	if fn == nil {
		return types.RecipientID{}, types.MessageID{}, types.ErrMessageFlags
	}
	return s.send(recipient, msg, flags|types.FlagAwaitResponse, fn)
}

func (s *Service) send(recipient string, msg *types.Message, flags types.MessageFlags, fn interfaces.ResponseFunc) (types.RecipientID, types.MessageID, error) {
	if flags.IsResponse() {
		return types.RecipientID{}, types.MessageID{}, types.ErrMessageFlags
	}
	p, t, err := s.poolFor(recipient)
	if err != nil {
		return types.RecipientID{}, types.MessageID{}, err
	}
	env, body, err := s.encode(msg, flags, t.Dest)
	if err != nil {
		return types.RecipientID{}, types.MessageID{}, err
	}

	for attempt := 0; ; attempt++ {
		c, err := p.pick()
		if err != nil {
			body.Close()
			return types.RecipientID{}, types.MessageID{}, err
		}
		e, ok := s.conns.Get(c.ID().Index, c.ID().Generation)
		if !ok {
			err = types.ErrConnectionStopping
		} else {
			var id types.MessageID
			id, err = c.Send(env, body, s.completion(e, c, fn))
			if err == nil {
				return p.recipient(c), id, nil
			}
		}
		retry := errors.Is(err, types.ErrPoolFull) || errors.Is(err, types.ErrConnectionStopping)
		if !retry || attempt+1 >= pickAttempts {
			body.Close()
			return types.RecipientID{}, types.MessageID{}, err
		}
	}
}

// ============================================================================
//                              按句柄发送
// ============================================================================

// SendMessageTo 在指定连接上发送单向消息
func (s *Service) SendMessageTo(rid types.RecipientID, msg *types.Message, flags types.MessageFlags) (types.MessageID, error) {
	if flags.Has(types.FlagAwaitResponse) {
		return types.MessageID{}, types.ErrMessageFlags
	}
	e, c, err := s.lookup(rid)
	if err != nil {
		return types.MessageID{}, err
	}
	return s.sendOn(e, c, msg, flags, "", nil)
}

// SendRequestTo 在指定连接上发送请求
func (s *Service) SendRequestTo(rid types.RecipientID, msg *types.Message, flags types.MessageFlags, fn interfaces.ResponseFunc) (types.MessageID, error) {
	if fn == nil {
		return types.MessageID{}, types.ErrMessageFlags
	}
	e, c, err := s.lookup(rid)
	if err != nil {
		return types.MessageID{}, err
	}
	return s.sendOn(e, c, msg, flags|types.FlagAwaitResponse, "", fn)
}

// SendResponse 对 ctx 中的请求发送响应
func (s *Service) SendResponse(ctx interfaces.MessageContext, msg *types.Message, flags types.MessageFlags) error {
	if ctx == nil {
		return types.ErrUnknownRecipient
	}
	return ctx.Respond(msg, flags)
}

func (s *Service) sendOn(e *entry, c *conn.Conn, msg *types.Message, flags types.MessageFlags, dest string, fn interfaces.ResponseFunc) (types.MessageID, error) {
	if flags.IsResponse() {
		return types.MessageID{}, types.ErrMessageFlags
	}
	env, body, err := s.encode(msg, flags, dest)
	if err != nil {
		return types.MessageID{}, err
	}
	id, err := c.Send(env, body, s.completion(e, c, fn))
	if err != nil {
		body.Close()
		if errors.Is(err, types.ErrConnectionStopping) && c.State().IsTerminal() {
			return types.MessageID{}, types.ErrUnknownConnection
		}
		return types.MessageID{}, err
	}
	return id, nil
}

// respond 对对端请求 peerID 发送响应
func (s *Service) respond(c *conn.Conn, peerID types.MessageID, msg *types.Message, flags types.MessageFlags) error {
	if !flags.IsResponse() {
		flags |= types.FlagResponse
	}
	env, body, err := s.encode(msg, flags, "")
	if err != nil {
		return err
	}
	if _, err := c.SendResponse(peerID, env, body, nil); err != nil {
		body.Close()
		return err
	}
	return nil
}

// ============================================================================
//                              取消
// ============================================================================

// CancelMessage 取消消息
//
// 句柄代数陈旧时返回 ErrUnknownMessage，连接已不存在时返回 ErrUnknownConnection。
func (s *Service) CancelMessage(rid types.RecipientID, id types.MessageID) error {
	if !id.IsValid() {
		return types.ErrUnknownMessage
	}
	_, c, err := s.lookup(rid)
	if err != nil {
		return err
	}
	return c.Cancel(id)
}

// ============================================================================
//                              编解码
// ============================================================================

// encode 校验标志并编码负载
func (s *Service) encode(msg *types.Message, flags types.MessageFlags, dest string) (*wire.Envelope, wire.Body, error) {
	if msg == nil {
		return nil, nil, types.ErrMessageNull
	}
	if err := flags.ValidateSend(); err != nil {
		return nil, nil, err
	}
	enc, err := s.types.Encode(msg)
	if err != nil {
		return nil, nil, err
	}

	env := &wire.Envelope{
		Flags:  flags,
		TypeID: enc.TypeID,
		Header: msg.Header,
		Dest:   dest,
	}
	if enc.Stream != nil {
		return env, wire.ReaderBody(enc.Stream, s.connCfg.PacketCapacity), nil
	}
	return env, wire.BytesBody(enc.Data), nil
}

// completion 把连接完成回调转换为应用响应回调
//
// 解码失败时以错误结束交换并取消请求，之后到达的响应被忽略。
func (s *Service) completion(e *entry, c *conn.Conn, fn interfaces.ResponseFunc) conn.Completion {
	if fn == nil {
		return nil
	}
	ctx := s.newContext(e, c, types.MessageID{})
	finished := false

	return func(in *wire.Inbound, err error) {
		if finished {
			return
		}
		if err != nil {
			finished = true
			fn(ctx, nil, err)
			return
		}
		if in == nil {
			return
		}

		v, _, derr := s.types.Decode(in.Envelope.TypeID, in.Body)
		if derr != nil {
			finished = true
			if !in.Envelope.Flags.IsTerminalResponse() {
				c.Cancel(in.Envelope.RequestID)
			}
			if !errors.Is(derr, types.ErrMessageUnknownType) {
				derr = fmt.Errorf("%w: %v", types.ErrMessageLost, derr)
			}
			fn(ctx, nil, derr)
			return
		}
		if in.Envelope.Flags.IsTerminalResponse() {
			finished = true
		}
		fn(ctx, inboundMessage(in, v), nil)
	}
}
