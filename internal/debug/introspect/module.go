package introspect

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-msgrpc/config"
	"github.com/dep2p/go-msgrpc/internal/core/metrics"
	"github.com/dep2p/go-msgrpc/internal/core/pool"
	"github.com/dep2p/go-msgrpc/internal/core/relay"
)

// Module 返回自省服务 Fx 模块
func Module() fx.Option {
	return fx.Module("introspect",
		fx.Provide(NewFromParams),
		fx.Invoke(registerLifecycle),
	)
}

// Params 自省服务依赖
type Params struct {
	fx.In

	Config  *config.Config   `optional:"true"`
	Service *pool.Service    `optional:"true"`
	Relay   *relay.Engine    `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

// Output 自省服务输出
type Output struct {
	fx.Out

	Server *Server `optional:"true"`
}

// ConfigFromUnified 从统一配置创建自省服务配置，未启用时返回 nil
func ConfigFromUnified(cfg *config.Config) *Config {
	if cfg == nil || !cfg.Diagnostics.EnableIntrospect {
		return nil
	}
	addr := cfg.Diagnostics.IntrospectAddr
	if addr == "" {
		addr = DefaultAddr
	}
	return &Config{Addr: addr}
}

// NewFromParams 从参数创建自省服务
func NewFromParams(p Params) Output {
	cfg := ConfigFromUnified(p.Config)
	if cfg == nil {
		return Output{}
	}
	cfg.Service = p.Service
	cfg.Relay = p.Relay
	cfg.Metrics = p.Metrics
	return Output{Server: New(*cfg)}
}

func registerLifecycle(lc fx.Lifecycle, server *Server) {
	if server == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return server.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			return server.Stop()
		},
	})
}
