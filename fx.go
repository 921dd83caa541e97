package msgrpc

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-msgrpc/config"
	"github.com/dep2p/go-msgrpc/internal/core/conn"
	"github.com/dep2p/go-msgrpc/internal/core/metrics"
	"github.com/dep2p/go-msgrpc/internal/core/pool"
	"github.com/dep2p/go-msgrpc/internal/core/relay"
	"github.com/dep2p/go-msgrpc/internal/core/resolver"
	"github.com/dep2p/go-msgrpc/internal/core/transport"
	"github.com/dep2p/go-msgrpc/internal/debug/introspect"
	"github.com/dep2p/go-msgrpc/internal/util/logger"
	"github.com/dep2p/go-msgrpc/pkg/codec"
	"github.com/dep2p/go-msgrpc/pkg/interfaces"
)

var fxLog = logger.Logger("msgrpc/fx")

// buildFxApp 按配置组装依赖图
//
// 加载顺序：配置 -> 指标 -> 连接运行时 -> 传输 -> 解析 -> 连接池服务 -> 中继 -> 自省 -> 节点注入。
func buildFxApp(n *Node, cfg *config.Config, types *codec.Registry, o *options) *fx.App {
	modules := []fx.Option{
		// 1. 配置与类型注册表
		fx.Supply(cfg),
		fx.Supply(types),

		// 2. 指标（未启用时提供 nil）
		metrics.Module(),

		// 3. 连接运行时（TLS、压缩、缓冲）
		conn.Module(),

		// 4. 传输注册表
		transport.Module(),

		// 5. 名称解析
		resolver.Module(),

		// 6. 连接池服务
		pool.Module(),

		// 7. 中继引擎（总是提供，按配置挂接）
		relay.Module(),
	}

	// 8. 自省服务（条件加载）
	if cfg.Diagnostics.EnableIntrospect {
		modules = append(modules, introspect.Module())
		fxLog.Debug("已加载自省模块", "addr", cfg.Diagnostics.IntrospectAddr)
	}

	// 8.1 额外传输
	for _, t := range o.transports {
		t := t
		modules = append(modules, fx.Provide(fx.Annotated{
			Group:  "transports",
			Target: func() interfaces.Transport { return t },
		}))
	}

	// 9. 用户扩展
	if len(o.fxOptions) > 0 {
		modules = append(modules, o.fxOptions...)
	}

	// 10. 节点组件注入
	modules = append(modules, fx.Populate(&n.svc, &n.relay, &n.metrics))
	if cfg.Diagnostics.EnableIntrospect {
		modules = append(modules, fx.Populate(&n.introspect))
	}

	// 11. Fx 日志
	modules = append(modules, fx.WithLogger(fxLogger(o.fxLogging)))

	return fx.New(modules...)
}

// fxLogger 默认丢弃 Fx 事件，启用时使用 zap 开发模式日志
func fxLogger(enable bool) func() fxevent.Logger {
	return func() fxevent.Logger {
		if !enable {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}
		l, err := zap.NewDevelopment()
		if err != nil {
			fxLog.Warn("创建 zap 日志失败，Fx 日志已关闭", "error", err)
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}
		return &fxevent.ZapLogger{Logger: l}
	}
}
