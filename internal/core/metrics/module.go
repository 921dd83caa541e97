package metrics

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-msgrpc/config"
)

// Params 指标模块依赖
type Params struct {
	fx.In

	Config *config.Config `optional:"true"`
}

// Provide 按配置创建 Metrics，未启用时返回 nil
func Provide(p Params) *Metrics {
	if p.Config != nil && !p.Config.Diagnostics.EnableMetrics {
		return nil
	}
	return New(nil)
}

// Module 指标 Fx 模块
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(Provide),
	)
}
