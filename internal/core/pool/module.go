package pool

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-msgrpc/config"
	"github.com/dep2p/go-msgrpc/internal/core/conn"
	"github.com/dep2p/go-msgrpc/internal/core/metrics"
	"github.com/dep2p/go-msgrpc/internal/core/transport"
	"github.com/dep2p/go-msgrpc/pkg/codec"
	"github.com/dep2p/go-msgrpc/pkg/interfaces"
)

// Params 服务依赖
type Params struct {
	fx.In

	Config    *config.Config
	Conn      conn.Config
	Transport *transport.Registry
	Resolver  interfaces.Resolver `optional:"true"`
	Types     *codec.Registry     `optional:"true"`
	Metrics   *metrics.Metrics    `optional:"true"`
}

// Module 返回 Fx 模块，提供 *Service 并挂接启动/停止
func Module() fx.Option {
	return fx.Module("pool",
		fx.Provide(ProvideService),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideService 提供连接池服务
func ProvideService(p Params) (*Service, error) {
	return New(Options{
		Config:    p.Config,
		Conn:      p.Conn,
		Transport: p.Transport,
		Resolver:  p.Resolver,
		Types:     p.Types,
		Metrics:   p.Metrics,
	})
}

func registerLifecycle(lc fx.Lifecycle, s *Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return s.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return s.Stop(ctx)
		},
	})
}
