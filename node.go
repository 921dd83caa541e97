package msgrpc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-msgrpc/config"
	"github.com/dep2p/go-msgrpc/internal/core/metrics"
	"github.com/dep2p/go-msgrpc/internal/core/pool"
	"github.com/dep2p/go-msgrpc/internal/core/relay"
	"github.com/dep2p/go-msgrpc/internal/debug/introspect"
	"github.com/dep2p/go-msgrpc/internal/util/logger"
	"github.com/dep2p/go-msgrpc/pkg/codec"
)

var log = logger.Logger("msgrpc")

// ============================================================================
//                              节点状态
// ============================================================================

// NodeState 节点状态
type NodeState int32

const (
	// StateIdle 已创建，未启动
	StateIdle NodeState = iota

	// StateStarting 启动中
	StateStarting

	// StateRunning 运行中
	StateRunning

	// StateStopping 停止中
	StateStopping

	// StateStopped 已停止（不可重新启动）
	StateStopped
)

// String 返回状态的字符串表示
func (s NodeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	startTimeout = 30 * time.Second
	stopTimeout  = 15 * time.Second
)

// ============================================================================
//                              Node
// ============================================================================

// Node msgrpc 节点
//
// Node 是门面，聚合连接池服务、中继引擎、指标与自省服务，
// 组件由 Fx 组装并随 Start/Close 启停。
//
//	node, err := msgrpc.New(
//	    msgrpc.WithListenAddrs("tcp://0.0.0.0:7000"),
//	)
//	if err != nil {
//	    return err
//	}
//	node.Types().MustRegister(codec.TypeSpec{ID: 100, Name: "ping", New: func() any { return new(Ping) }, Codec: codec.JSON()})
//	node.Handle(100, func(ctx msgrpc.MessageContext, msg *msgrpc.Message) {
//	    ctx.Respond(msgrpc.NewMessage(msg.Payload), msgrpc.FlagResponse)
//	})
//	if err := node.Start(ctx); err != nil {
//	    return err
//	}
//	defer node.Close()
type Node struct {
	cfg   *config.Config
	types *codec.Registry
	app   *fx.App

	// Fx 注入
	svc        *pool.Service
	relay      *relay.Engine
	metrics    *metrics.Metrics
	introspect *introspect.Server

	state     atomic.Int32
	startedAt time.Time

	closeOnce sync.Once
	closeErr  error
}

// New 创建节点，不启动
func New(opts ...Option) (*Node, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	cfg, err := o.toConfig()
	if err != nil {
		return nil, err
	}

	types := o.types
	if types == nil {
		types = codec.NewRegistry()
	}

	n := &Node{cfg: cfg, types: types}
	n.app = buildFxApp(n, cfg, types, o)
	if err := n.app.Err(); err != nil {
		return nil, fmt.Errorf("build node: %w", err)
	}
	log.Debug("节点已创建",
		"listen", cfg.Listen.Addrs,
		"relay", cfg.Relay.Enable,
		"introspect", cfg.Diagnostics.EnableIntrospect)
	return n, nil
}

// Start 启动节点：开始监听并挂接中继
func (n *Node) Start(ctx context.Context) error {
	if !n.state.CompareAndSwap(int32(StateIdle), int32(StateStarting)) {
		if n.State() == StateStopped || n.State() == StateStopping {
			return ErrNodeClosed
		}
		return ErrAlreadyStarted
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, startTimeout)
		defer cancel()
	}
	if err := n.app.Start(ctx); err != nil {
		n.state.Store(int32(StateStopped))
		return fmt.Errorf("start node: %w", err)
	}

	n.startedAt = time.Now()
	n.state.Store(int32(StateRunning))
	log.Info("节点已启动",
		"id", n.svc.ID(),
		"listen", n.svc.ListenAddrs(),
		"relay", n.relay.Attached())
	return nil
}

// Close 关闭节点，重复调用返回首次结果
func (n *Node) Close() error {
	n.closeOnce.Do(func() {
		prev := NodeState(n.state.Swap(int32(StateStopping)))
		if prev == StateIdle || prev == StateStopped {
			n.state.Store(int32(StateStopped))
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		n.closeErr = n.app.Stop(ctx)
		n.state.Store(int32(StateStopped))

		if n.closeErr != nil {
			log.Warn("节点关闭出错", "error", n.closeErr)
		} else {
			log.Info("节点已关闭", "uptime", time.Since(n.startedAt).Round(time.Millisecond))
		}
	})
	return n.closeErr
}

// State 返回节点状态
func (n *Node) State() NodeState {
	return NodeState(n.state.Load())
}

// Config 返回生效的配置（只读）
func (n *Node) Config() *config.Config { return n.cfg }

// Types 返回消息类型注册表，应在 Start 之前注册类型
func (n *Node) Types() *codec.Registry { return n.types }

// Service 返回底层连接池服务（高级用法）
func (n *Node) Service() *pool.Service { return n.svc }

// Relay 返回中继引擎；未启用中继时引擎未挂接
func (n *Node) Relay() *relay.Engine { return n.relay }

// IntrospectAddr 返回自省服务地址，未启用时为空
func (n *Node) IntrospectAddr() string {
	if n.introspect == nil || n.State() != StateRunning {
		return ""
	}
	return n.introspect.Addr()
}

func (n *Node) running() error {
	switch n.State() {
	case StateRunning:
		return nil
	case StateIdle, StateStarting:
		return ErrNotStarted
	default:
		return ErrNodeClosed
	}
}
