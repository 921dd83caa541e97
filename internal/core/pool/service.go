package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-msgrpc/config"
	"github.com/dep2p/go-msgrpc/internal/core/conn"
	"github.com/dep2p/go-msgrpc/internal/core/metrics"
	"github.com/dep2p/go-msgrpc/internal/core/slotmap"
	"github.com/dep2p/go-msgrpc/internal/core/transport"
	"github.com/dep2p/go-msgrpc/internal/core/wire"
	"github.com/dep2p/go-msgrpc/internal/util/logger"
	"github.com/dep2p/go-msgrpc/pkg/codec"
	"github.com/dep2p/go-msgrpc/pkg/interfaces"
	"github.com/dep2p/go-msgrpc/pkg/types"
)

var log = logger.Logger("pool")

// Relay 中继钩子，由 relay.Engine 实现
//
// 全部方法在连接的分发协程上调用。
type Relay interface {
	// Register 连接 c 请求以 name 注册
	Register(c *conn.Conn, name string) error

	// Forward 转发带目的路径的入站消息，返回错误表示无法路由
	Forward(c *conn.Conn, in *wire.Inbound) error

	// PeerCanceled 对端取消了它在 c 上的请求 peerID
	PeerCanceled(c *conn.Conn, peerID types.MessageID)

	// ConnectionClosed 连接已关闭
	ConnectionClosed(c *conn.Conn, err error)
}

// Options 服务构造参数
type Options struct {
	// Config 统一配置（为空时使用默认配置）
	Config *config.Config

	// Conn 连接运行时配置
	Conn conn.Config

	// Transport 传输注册表
	Transport *transport.Registry

	// Resolver 名称解析器（可为空，为空时直接拨号）
	Resolver interfaces.Resolver

	// Types 消息类型注册表（为空时新建）
	Types *codec.Registry

	// Metrics 指标（可为空）
	Metrics *metrics.Metrics
}

// entry 连接表条目
type entry struct {
	id   types.ConnectionID
	pool *Pool
	c    atomic.Pointer[conn.Conn]
}

// nameShard 名称索引分片
type nameShard struct {
	mu sync.Mutex
	m  map[string]types.PoolID
}

// Service 连接池服务
type Service struct {
	id      uuid.UUID
	cfg     *config.Config
	connCfg conn.Config
	tr      *transport.Registry
	res     interfaces.Resolver
	types   *codec.Registry

	pools *slotmap.Sharded[*Pool]
	names []*nameShard
	conns *slotmap.Sharded[*entry]

	hookMu   sync.RWMutex
	relay    Relay
	fallback interfaces.MessageHandler

	lmu       sync.Mutex
	listeners []*listener
	wg        sync.WaitGroup

	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	closed  atomic.Bool
}

// New 创建服务
func New(o Options) (*Service, error) {
	if o.Transport == nil {
		return nil, errors.New("pool: transport registry required")
	}
	if o.Config == nil {
		o.Config = config.NewConfig()
	}
	if err := o.Config.Pool.Validate(); err != nil {
		return nil, fmt.Errorf("pool: %w", err)
	}
	if err := o.Conn.Validate(); err != nil {
		return nil, err
	}
	if o.Types == nil {
		o.Types = codec.NewRegistry()
	}
	if o.Conn.Metrics == nil {
		o.Conn.Metrics = o.Metrics
	}

	pc := o.Config.Pool
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		id:      uuid.New(),
		cfg:     o.Config,
		connCfg: o.Conn,
		tr:      o.Transport,
		res:     o.Resolver,
		types:   o.Types,
		pools:   slotmap.NewSharded[*Pool](pc.Shards, pc.MaxPools),
		conns:   slotmap.NewSharded[*entry](pc.Shards, pc.MaxConnections),
		names:   make([]*nameShard, pc.Shards),
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := range s.names {
		s.names[i] = &nameShard{m: make(map[string]types.PoolID)}
	}
	return s, nil
}

// ID 返回服务实例 ID
func (s *Service) ID() string { return s.id.String() }

// Types 返回消息类型注册表
func (s *Service) Types() *codec.Registry { return s.types }

// Config 返回统一配置
func (s *Service) Config() *config.Config { return s.cfg }

// SetRelay 挂接中继引擎，为空表示关闭中继
func (s *Service) SetRelay(r Relay) {
	s.hookMu.Lock()
	s.relay = r
	s.hookMu.Unlock()
}

// SetHandler 设置兜底回调：类型未设置 OnMessage 时调用
func (s *Service) SetHandler(h interfaces.MessageHandler) {
	s.hookMu.Lock()
	s.fallback = h
	s.hookMu.Unlock()
}

// Handle 为已注册类型设置接收回调
func (s *Service) Handle(typeID uint32, fn interfaces.MessageHandler) error {
	return s.types.Handle(typeID, fn)
}

func (s *Service) relayHook() Relay {
	s.hookMu.RLock()
	defer s.hookMu.RUnlock()
	return s.relay
}

func (s *Service) fallbackHandler() interfaces.MessageHandler {
	s.hookMu.RLock()
	defer s.hookMu.RUnlock()
	return s.fallback
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 启动服务并在配置的地址上监听
func (s *Service) Start(ctx context.Context) error {
	if s.closed.Load() {
		return types.ErrServiceStopped
	}
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	for _, addr := range s.cfg.Listen.Addrs {
		if _, err := s.Listen(ctx, addr); err != nil {
			s.closeListeners()
			return err
		}
	}
	log.Info("服务已启动", "id", s.id, "listeners", len(s.ListenAddrs()))
	return nil
}

// Stop 停止服务：关闭监听器，强制关闭全部连接并等待回调执行完毕
func (s *Service) Stop(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()
	err := s.closeListeners()
	s.wg.Wait()

	var all []*conn.Conn
	s.conns.Range(func(_, _ uint32, e *entry) bool {
		if c := e.c.Load(); c != nil {
			all = append(all, c)
		}
		return true
	})
	for _, c := range all {
		c.ForceClose(types.ErrConnectionKilled)
	}

	var g errgroup.Group
	for _, c := range all {
		c := c
		g.Go(func() error {
			select {
			case <-c.Done():
				return nil
			case <-ctx.Done():
				return fmt.Errorf("pool: %s: %w", c.ID(), ctx.Err())
			}
		})
	}
	err = multierr.Append(err, g.Wait())

	log.Info("服务已停止", "id", s.id, "connections", len(all))
	return err
}

func (s *Service) closeListeners() error {
	s.lmu.Lock()
	ls := s.listeners
	s.listeners = nil
	s.lmu.Unlock()

	var err error
	for _, l := range ls {
		err = multierr.Append(err, l.close())
	}
	return err
}

// ============================================================================
//                              注册表
// ============================================================================

func (s *Service) nameShard(name string) *nameShard {
	return s.names[murmur3.Sum32([]byte(name))%uint32(len(s.names))]
}

// poolFor 返回接收者地址对应的连接池，不存在时创建
func (s *Service) poolFor(recipient string) (*Pool, transport.Target, error) {
	if s.closed.Load() {
		return nil, transport.Target{}, types.ErrServiceStopped
	}
	t, err := s.tr.Parse(recipient)
	if err != nil {
		return nil, transport.Target{}, err
	}
	key := t.Endpoint()
	sh := s.nameShard(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if id, ok := sh.m[key]; ok {
		if p, ok := s.pools.Get(id.Index, id.Generation); ok {
			return p, t, nil
		}
		delete(sh.m, key)
	}
	p, err := s.newOutboundPool(key, t, s.cfg.Pool.MaxActiveConnections)
	if err != nil {
		return nil, transport.Target{}, err
	}
	sh.m[key] = p.id
	return p, t, nil
}

func (s *Service) newOutboundPool(key string, t transport.Target, maxActive int) (*Pool, error) {
	dial, err := s.tr.Dialer(t, s.res)
	if err != nil {
		return nil, err
	}
	p, err := s.insertPool(&Pool{
		name:      key,
		target:    t,
		maxActive: maxActive,
		dial:      dial,
		secure:    s.tr.Secure(t),
	})
	if err != nil {
		return nil, err
	}
	log.Debug("创建连接池", "pool", key, "id", p.id)
	return p, nil
}

func (s *Service) insertPool(p *Pool) (*Pool, error) {
	p.svc = s
	_, _, ok := s.pools.InsertFunc(func(index, gen uint32) *Pool {
		p.id = types.PoolID{Index: index, Generation: gen}
		return p
	})
	if !ok {
		return nil, types.ErrPoolFull
	}
	return p, nil
}

// destroyPool 从注册表移除连接池并执行关闭回调，只生效一次
func (s *Service) destroyPool(p *Pool) {
	callbacks, ok := p.finish()
	if !ok {
		return
	}
	s.pools.Remove(p.id.Index, p.id.Generation)
	if !p.inbound {
		sh := s.nameShard(p.name)
		sh.mu.Lock()
		if sh.m[p.name] == p.id {
			delete(sh.m, p.name)
		}
		sh.mu.Unlock()
	}
	log.Debug("连接池已销毁", "pool", p.name, "id", p.id)
	for _, cb := range callbacks {
		cb()
	}
}

// pool 按句柄查找连接池
func (s *Service) pool(id types.PoolID) (*Pool, error) {
	p, ok := s.pools.Get(id.Index, id.Generation)
	if !ok {
		return nil, types.ErrPoolUnknown
	}
	return p, nil
}

// newConn 分配连接句柄并创建连接，调用方负责加入连接池并 Start
func (s *Service) newConn(p *Pool, params conn.Params) (*conn.Conn, error) {
	if s.closed.Load() {
		return nil, types.ErrServiceStopped
	}
	e := &entry{pool: p}
	_, _, ok := s.conns.InsertFunc(func(index, gen uint32) *entry {
		e.id = types.ConnectionID{Index: index, Generation: gen}
		return e
	})
	if !ok {
		return nil, types.ErrTooManyActiveConnections
	}

	cfg := s.connCfg
	cfg.Label = p.name
	params.ID = e.id
	params.Handler = &handler{svc: s, e: e}

	c, err := conn.New(cfg, params)
	if err != nil {
		s.conns.Remove(e.id.Index, e.id.Generation)
		return nil, err
	}
	e.c.Store(c)
	return c, nil
}

// Conn 按句柄查找存活连接
func (s *Service) Conn(id types.ConnectionID) (*conn.Conn, bool) {
	e, ok := s.conns.Get(id.Index, id.Generation)
	if !ok {
		return nil, false
	}
	c := e.c.Load()
	return c, c != nil
}

// lookup 校验接收者句柄并返回连接
func (s *Service) lookup(rid types.RecipientID) (*entry, *conn.Conn, error) {
	if !rid.Conn.IsValid() {
		return nil, nil, types.ErrUnknownRecipient
	}
	e, ok := s.conns.Get(rid.Conn.Index, rid.Conn.Generation)
	if !ok {
		return nil, nil, types.ErrUnknownConnection
	}
	if rid.Pool.IsValid() && e.pool.id != rid.Pool {
		return nil, nil, types.ErrUnknownRecipient
	}
	c := e.c.Load()
	if c == nil {
		return nil, nil, types.ErrUnknownConnection
	}
	return e, c, nil
}

// connClosed 连接进入 Closed：移出连接表与连接池，通知中继
func (s *Service) connClosed(e *entry, c *conn.Conn, err error) {
	s.conns.Remove(e.id.Index, e.id.Generation)
	if r := s.relayHook(); r != nil {
		r.ConnectionClosed(c, err)
	}
	if e.pool.remove(c) {
		s.destroyPool(e.pool)
	}
}
