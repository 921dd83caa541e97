package relay

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-msgrpc/config"
	"github.com/dep2p/go-msgrpc/internal/core/metrics"
	"github.com/dep2p/go-msgrpc/internal/core/pool"
)

// Params 中继引擎依赖
type Params struct {
	fx.In

	Config  *config.Config
	Metrics *metrics.Metrics `optional:"true"`
}

// Module 返回 Fx 模块
//
// 总是提供 *Engine（诊断接口读取其快照），仅在 Relay.Enable 时挂接到服务。
func Module() fx.Option {
	return fx.Module("relay",
		fx.Provide(ProvideEngine),
		fx.Invoke(attach),
	)
}

// ProvideEngine 提供中继引擎
func ProvideEngine(p Params) (*Engine, error) {
	return NewEngine(p.Config.Relay, p.Metrics)
}

func attach(cfg *config.Config, e *Engine, svc *pool.Service) {
	if !cfg.Relay.Enable {
		log.Debug("中继未启用")
		return
	}
	e.Attach(svc)
}
