package conn

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-msgrpc/internal/core/compress"
	"github.com/dep2p/go-msgrpc/internal/core/slotmap"
	"github.com/dep2p/go-msgrpc/internal/core/wire"
	"github.com/dep2p/go-msgrpc/internal/util/logger"
	"github.com/dep2p/go-msgrpc/pkg/types"
)

var log = logger.Logger("conn")

const (
	stateConnecting = types.StateConnecting
	stateSecuring   = types.StateSecuringHandshake
	stateActive     = types.StateActive
	stateDraining   = types.StateDraining
	stateClosing    = types.StateClosing
	stateClosed     = types.StateClosed
)

// Completion 发送完成回调
//
// 等待响应的请求每收到一条响应调用一次，或以错误调用恰好一次；
// 不等待响应的消息在 End 记录所在报文写出后调用一次。
type Completion func(resp *wire.Inbound, err error)

// Handler 连接事件回调，全部在连接的分发协程上串行调用
type Handler interface {
	// HandleMessage 收到对端的请求或单向消息
	HandleMessage(c *Conn, in *wire.Inbound)

	// HandlePeerCancel 对端取消了其请求 peerID
	HandlePeerCancel(c *Conn, peerID types.MessageID)

	// HandleRegister 对端请求注册中继名称，返回错误表示拒绝
	HandleRegister(c *Conn, name string) error

	// HandleStateChange 连接状态变化，err 为导致关闭的错误
	HandleStateChange(c *Conn, from, to types.ConnectionState, err error)
}

// Params 连接构造参数
type Params struct {
	// ID 连接句柄
	ID types.ConnectionID

	// Dial 主动拨出的连接使用
	Dial DialFunc

	// Socket 被动接受的连接使用
	Socket net.Conn

	// SecureTransport 传输本身已加密，跳过 TLS 握手
	SecureTransport bool

	// ServerName TLS 客户端校验的服务端名称
	ServerName string

	// Park 被动接受的连接等待 Activate 后再进入握手
	Park bool

	Handler Handler
}

type inPacket struct {
	payload []byte
	n       int
	err     error
}

type counters struct {
	packetsSent  atomic.Uint64
	packetsRecv  atomic.Uint64
	bytesSent    atomic.Uint64
	bytesRecv    atomic.Uint64
	messagesSent atomic.Uint64
	messagesRecv atomic.Uint64
	malformed    atomic.Uint64
	keepalives   atomic.Uint64
}

// Conn 一条多路复用连接
type Conn struct {
	id         types.ConnectionID
	dir        types.Direction
	cfg        Config
	clk        clock.Clock
	h          Handler
	log        *slog.Logger
	dial       DialFunc
	secureTr   bool
	serverName string

	ctx    context.Context
	cancel context.CancelFunc

	cmds      chan func()
	recvCh    chan inPacket
	writeDone chan error
	wake      chan struct{}
	loopDone  chan struct{}
	disp      *dispatcher
	startOnce sync.Once

	state   atomic.Uint32
	load    atomic.Int32
	created time.Time
	stats   counters

	errMu sync.Mutex
	err   error

	// 以下字段只由事件循环访问
	nc         net.Conn
	parked     bool
	table      *slotmap.Map[*outgoing]
	q          sendQueue
	peerReqs   map[types.MessageID]*exchange
	partials   map[uint32]*partial
	builders   [2]*wire.Builder
	flushed    [2][]*outgoing
	filling    int
	writing    bool
	writingIdx int
	writingLen int
	writeCh    chan []byte
	lastRecv   time.Time
	lastSend   time.Time
	drainBy    time.Time
	kaLimit    *rate.Limiter
	badLimit   *rate.Limiter
	onActive   []func(error)
	names      []string
}

// New 创建连接并启动其事件循环与分发协程，调用 Start 后开始建立
func New(cfg Config, p Params) (*Conn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if p.Handler == nil {
		return nil, ErrNoHandler
	}
	if p.Dial == nil && p.Socket == nil {
		return nil, ErrNoTransport
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Decompressors == nil {
		cfg.Decompressors = compress.Lookup()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		id:         p.ID,
		cfg:        cfg,
		clk:        cfg.Clock,
		h:          p.Handler,
		dial:       p.Dial,
		secureTr:   p.SecureTransport,
		serverName: p.ServerName,
		ctx:        ctx,
		cancel:     cancel,
		cmds:       make(chan func()),
		recvCh:     make(chan inPacket, 8),
		writeDone:  make(chan error, 1),
		wake:       make(chan struct{}, 1),
		loopDone:   make(chan struct{}),
		disp:       newDispatcher(),
		nc:         p.Socket,
		parked:     p.Park && p.Socket != nil,
		table:      slotmap.New[*outgoing](cfg.MaxMessages),
		peerReqs:   make(map[types.MessageID]*exchange),
		partials:   make(map[uint32]*partial),
		kaLimit:    rate.NewLimiter(cfg.KeepaliveLimit, cfg.KeepaliveBurst),
		badLimit:   rate.NewLimiter(cfg.MalformedLimit, cfg.MalformedBurst),
	}
	if p.Socket != nil {
		c.dir = types.DirInbound
	}
	c.created = c.clk.Now()
	c.builders[0] = wire.NewBuilder(cfg.PacketCapacity, cfg.Compressor)
	c.builders[1] = wire.NewBuilder(cfg.PacketCapacity, cfg.Compressor)
	c.log = log.With("conn", p.ID.String(), "dir", c.dir.String())
	if cfg.Label != "" {
		c.log = c.log.With("pool", cfg.Label)
	}

	cfg.Metrics.ConnCreated()
	go c.disp.run()
	go c.run()
	return c, nil
}

// Start 开始建立连接（拨号或激活已接受的套接字）
func (c *Conn) Start() {
	c.startOnce.Do(func() {
		c.post(func() {
			if c.cfg.SecurityRequired && c.cfg.TLS == nil && !c.secureTr {
				c.fail(types.ErrConnectionNoSecureConfiguration)
				return
			}
			if c.nc != nil {
				if !c.parked {
					c.apply(EvConnected, nil)
				}
				return
			}
			go c.connect()
		})
	})
}

// ============================================================================
//                              查询
// ============================================================================

// ID 返回连接句柄
func (c *Conn) ID() types.ConnectionID { return c.id }

// Direction 返回连接方向
func (c *Conn) Direction() types.Direction { return c.dir }

// State 返回当前状态
func (c *Conn) State() types.ConnectionState {
	return types.ConnectionState(c.state.Load())
}

// Load 返回多路复用表中的消息数
func (c *Conn) Load() int { return int(c.load.Load()) }

// Capacity 返回多路复用表容量
func (c *Conn) Capacity() int { return c.cfg.MaxMessages }

// Err 返回导致连接关闭的错误
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Done 连接关闭且全部回调执行完毕后关闭
func (c *Conn) Done() <-chan struct{} { return c.disp.done }

// ============================================================================
//                              发送
// ============================================================================

// Send 提交请求或单向消息
//
// 表满返回 ErrPoolFull，连接排空或关闭中返回 ErrConnectionStopping。
func (c *Conn) Send(env *wire.Envelope, body wire.Body, done Completion) (types.MessageID, error) {
	if env.Flags.IsResponse() {
		return types.MessageID{}, types.ErrMessageFlags
	}
	var (
		id  types.MessageID
		err error
	)
	ok := c.do(func() {
		if !c.State().AcceptsSend() {
			err = types.ErrConnectionStopping
			return
		}
		id, err = c.enqueue(env, body, done, nil)
	})
	if !ok {
		return types.MessageID{}, types.ErrConnectionStopping
	}
	return id, err
}

// SendResponse 对对端请求 peerID 提交响应，排空期间仍然允许
//
// 请求未知返回 ErrUnknownMessage，终结响应之后再提交返回 ErrMessageState。
func (c *Conn) SendResponse(peerID types.MessageID, env *wire.Envelope, body wire.Body, done Completion) (types.MessageID, error) {
	if !env.Flags.IsResponse() || env.Flags.Has(types.FlagAwaitResponse) {
		return types.MessageID{}, types.ErrMessageFlags
	}
	var (
		id  types.MessageID
		err error
	)
	ok := c.do(func() {
		if s := c.State(); s != stateActive && s != stateDraining {
			err = types.ErrConnectionStopping
			return
		}
		ex := c.peerReqs[peerID]
		if ex == nil {
			err = types.ErrUnknownMessage
			return
		}
		if ex.lastSet {
			err = types.ErrMessageState
			return
		}
		env.RequestID = peerID
		id, err = c.enqueue(env, body, done, ex)
	})
	if !ok {
		return types.MessageID{}, types.ErrConnectionStopping
	}
	return id, err
}

// Cancel 取消本端消息
//
// 尚未开始发送的消息直接丢弃并以 ErrMessageCanceled 完成；
// 已开始发送的消息发出 Cancel 记录，收到确认后以 ErrMessageCanceledByPeer 完成。
func (c *Conn) Cancel(id types.MessageID) error {
	var err error = types.ErrUnknownMessage
	c.do(func() { err = c.cancelLocal(id) })
	return err
}

// Abort 以错误终止对端请求 peerID，并丢弃该交换尚未发出的响应
func (c *Conn) Abort(peerID types.MessageID, cause error) error {
	var err error = types.ErrUnknownMessage
	c.do(func() {
		ex := c.peerReqs[peerID]
		if ex == nil {
			return
		}
		err = nil
		code := types.CodeOf(cause)
		if code == 0 {
			code = types.ErrMessageCanceledByPeer.Code
		}
		c.dropExchange(ex, types.ErrMessageCanceled)
		c.sendCode(wire.KindAbort, peerID, uint16(code), "")
	})
	return err
}

// Register 向对端（中继）注册名称
func (c *Conn) Register(name string) error {
	var err error = types.ErrConnectionStopping
	c.do(func() {
		if !c.State().AcceptsSend() {
			return
		}
		err = nil
		c.names = append(c.names, name)
		c.q.pushControl(wire.Record{Kind: wire.KindRegister, Data: []byte(name)})
	})
	return err
}

// ============================================================================
//                              生命周期
// ============================================================================

// Activate 激活等待中的被动连接；cb 在连接进入 Active 或失败时调用
func (c *Conn) Activate(cb func(error)) error {
	var err error = types.ErrConnectionStopping
	c.do(func() {
		switch c.State() {
		case stateActive:
			err = types.ErrAlreadyActive
			return
		case stateDraining, stateClosing, stateClosed:
			return
		}
		err = nil
		if cb != nil {
			c.onActive = append(c.onActive, cb)
		}
		if c.parked {
			c.parked = false
			c.apply(EvConnected, nil)
		}
	})
	return err
}

// Close 延迟关闭：不再接受新消息，在途消息完成后关闭
func (c *Conn) Close() error {
	c.do(func() {
		switch c.State() {
		case stateConnecting, stateSecuring:
			c.setErr(types.ErrConnectionStopping)
		}
		c.apply(EvCloseRequested, nil)
	})
	return nil
}

// ForceClose 立即关闭，全部待决消息以 err 完成（为空时为 ErrConnectionKilled）
func (c *Conn) ForceClose(err error) {
	if err == nil {
		err = types.ErrConnectionKilled
	}
	c.do(func() { c.fail(err) })
}

// ============================================================================
//                              事件循环投递
// ============================================================================

// do 在事件循环上执行 fn 并等待完成，循环已退出返回 false
func (c *Conn) do(fn func()) bool {
	done := make(chan struct{})
	select {
	case c.cmds <- func() { defer close(done); fn() }:
	case <-c.loopDone:
		return false
	}
	<-done
	return true
}

// post 投递 fn 到事件循环，不等待执行
func (c *Conn) post(fn func()) bool {
	select {
	case c.cmds <- fn:
		return true
	case <-c.loopDone:
		return false
	}
}

// kick 唤醒事件循环重新调度发送
func (c *Conn) kick() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Conn) setErr(err error) {
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()
}
