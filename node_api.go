package msgrpc

import (
	"context"
	"fmt"
	"io"

	"github.com/dep2p/go-msgrpc/internal/core/pool"
)

// ============================================================================
//                              回调
// ============================================================================

// Handle 为已注册类型设置接收回调
func (n *Node) Handle(typeID uint32, fn MessageHandler) error {
	return n.types.Handle(typeID, fn)
}

// SetHandler 设置兜底回调：类型未设置回调时调用
func (n *Node) SetHandler(fn MessageHandler) {
	n.svc.SetHandler(fn)
}

// ============================================================================
//                              消息
// ============================================================================

// SendMessage 向 recipient 发送不等待响应的消息
//
// recipient 形如 "tcp://host:port" 或 "tcp://relay:port#name/path"。
func (n *Node) SendMessage(recipient string, msg *Message, flags MessageFlags) (RecipientID, MessageID, error) {
	if err := n.running(); err != nil {
		return RecipientID{}, MessageID{}, err
	}
	return n.svc.SendMessage(recipient, msg, flags)
}

// SendRequest 向 recipient 发送请求，响应或错误通过 fn 回调
func (n *Node) SendRequest(recipient string, msg *Message, flags MessageFlags, fn ResponseFunc) (RecipientID, MessageID, error) {
	if err := n.running(); err != nil {
		return RecipientID{}, MessageID{}, err
	}
	return n.svc.SendRequest(recipient, msg, flags, fn)
}

// SendMessageTo 在指定连接上发送消息
func (n *Node) SendMessageTo(rid RecipientID, msg *Message, flags MessageFlags) (MessageID, error) {
	if err := n.running(); err != nil {
		return MessageID{}, err
	}
	return n.svc.SendMessageTo(rid, msg, flags)
}

// SendRequestTo 在指定连接上发送请求
func (n *Node) SendRequestTo(rid RecipientID, msg *Message, flags MessageFlags, fn ResponseFunc) (MessageID, error) {
	if err := n.running(); err != nil {
		return MessageID{}, err
	}
	return n.svc.SendRequestTo(rid, msg, flags, fn)
}

// SendResponse 对 ctx 中的请求发送响应
func (n *Node) SendResponse(ctx MessageContext, msg *Message, flags MessageFlags) error {
	if err := n.running(); err != nil {
		return err
	}
	return n.svc.SendResponse(ctx, msg, flags)
}

// CancelMessage 取消消息
//
// 尚未开始发送的消息以 ErrMessageCanceled 完成；已开始的消息向对端发送取消。
func (n *Node) CancelMessage(rid RecipientID, id MessageID) error {
	if err := n.running(); err != nil {
		return err
	}
	return n.svc.CancelMessage(rid, id)
}

// Request 发送请求并阻塞等待单条响应
//
// 多段响应会拼接为最后一段之前的全部片段；ctx 结束时取消请求。
func (n *Node) Request(ctx context.Context, recipient string, msg *Message, flags MessageFlags) (*Message, error) {
	type result struct {
		resp *Message
		err  error
	}
	ch := make(chan result, 1)
	var parts []*Message

	rid, id, err := n.SendRequest(recipient, msg, flags, func(_ MessageContext, resp *Message, err error) {
		switch {
		case err != nil:
			ch <- result{err: err}
		case resp.Flags.Has(FlagResponsePart):
			parts = append(parts, resp)
		default:
			if len(parts) > 0 {
				resp = joinParts(append(parts, resp))
			}
			ch <- result{resp: resp}
		}
	})
	if err != nil {
		return nil, err
	}

	select {
	case r := <-ch:
		return r.resp, r.err
	case <-ctx.Done():
		if cerr := n.svc.CancelMessage(rid, id); cerr != nil {
			log.Debug("取消请求失败", "id", id, "error", cerr)
		}
		return nil, ctx.Err()
	}
}

// joinParts 拼接字节负载的多段响应，非字节负载返回最后一段
func joinParts(parts []*Message) *Message {
	var buf []byte
	for _, p := range parts {
		b, ok := p.Payload.([]byte)
		if !ok {
			return parts[len(parts)-1]
		}
		buf = append(buf, b...)
	}
	last := parts[len(parts)-1].Clone()
	last.Payload = buf
	return last
}

// ============================================================================
//                              中继
// ============================================================================

// Register 连接到 relayURL 并以 name 注册，之后发往 "relayURL#name" 的消息由中继转发到本节点
func (n *Node) Register(relayURL, name string) (RecipientID, error) {
	if err := n.running(); err != nil {
		return RecipientID{}, err
	}
	return n.svc.Register(relayURL, name)
}

// ============================================================================
//                              连接池
// ============================================================================

// CreatePool 显式创建到 recipient 的连接池，maxActive 为 0 时使用配置值
func (n *Node) CreatePool(recipient string, maxActive int) (PoolID, error) {
	if err := n.running(); err != nil {
		return PoolID{}, err
	}
	return n.svc.CreatePool(recipient, pool.PoolOptions{MaxActiveConnections: maxActive})
}

// CreateConnection 在连接池中新建一条连接
func (n *Node) CreateConnection(id PoolID) (RecipientID, error) {
	if err := n.running(); err != nil {
		return RecipientID{}, err
	}
	return n.svc.CreateConnection(id)
}

// CloseConnection 优雅关闭连接：在途消息完成后断开
func (n *Node) CloseConnection(rid RecipientID) error {
	if err := n.running(); err != nil {
		return err
	}
	return n.svc.CloseConnection(rid)
}

// ForceClosePool 立即关闭连接池的全部连接，在途消息以错误完成
func (n *Node) ForceClosePool(id PoolID, onClosed func()) error {
	if err := n.running(); err != nil {
		return err
	}
	return n.svc.ForceClosePool(id, onClosed)
}

// DelayClosePool 连接池停止接受新消息，在途消息完成后关闭
func (n *Node) DelayClosePool(id PoolID, onClosed func()) error {
	if err := n.running(); err != nil {
		return err
	}
	return n.svc.DelayClosePool(id, onClosed)
}

// NotifyEnterActiveState 激活等待中的被动连接（Listen.ActivateOnAccept 为 false），cb 在进入 Active 或失败时调用
func (n *Node) NotifyEnterActiveState(rid RecipientID, cb func(error)) error {
	if err := n.running(); err != nil {
		return err
	}
	return n.svc.NotifyEnterActiveState(rid, cb)
}

// ============================================================================
//                              诊断
// ============================================================================

// ListenAddrs 返回实际监听地址
func (n *Node) ListenAddrs() []string {
	if n.svc == nil {
		return nil
	}
	return n.svc.ListenAddrs()
}

// Info 节点快照
type Info struct {
	Version string     `json:"version"`
	State   string     `json:"state"`
	Service pool.Info  `json:"service"`
	Relay   *RelayInfo `json:"relay,omitempty"`
}

// Dump 返回节点快照
func (n *Node) Dump() Info {
	info := Info{
		Version: Version,
		State:   n.State().String(),
		Service: n.svc.Info(),
	}
	if n.relay.Attached() {
		ri := n.relay.Dump()
		info.Relay = &ri
	}
	return info
}

// WriteDump 以表格形式输出连接池与中继状态
func (n *Node) WriteDump(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "msgrpc %s  state=%s\n", Version, n.State()); err != nil {
		return err
	}
	if err := n.svc.WriteDump(w); err != nil {
		return err
	}
	if !n.relay.Attached() {
		return nil
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}
	return n.relay.WriteDump(w)
}

// Bandwidth 返回按连接池的带宽统计，未启用指标时为空
func (n *Node) Bandwidth() map[string]BandwidthStats {
	bw := n.metrics.Bandwidth()
	if bw == nil {
		return nil
	}
	return bw.ByPool()
}
