package conn

import (
	"fmt"

	"go.uber.org/fx"

	"github.com/dep2p/go-msgrpc/config"
	"github.com/dep2p/go-msgrpc/internal/core/compress"
	"github.com/dep2p/go-msgrpc/internal/core/metrics"
)

// Build 由统一配置构造连接运行时配置
func Build(cfg *config.Config, t *TLS, m *metrics.Metrics) (Config, error) {
	cc := FromConfig(cfg.Connection)
	comp, err := compress.New(cfg.Compression.Algorithm)
	if err != nil {
		return Config{}, fmt.Errorf("conn: %w", err)
	}
	cc.Compressor = comp
	cc.Decompressors = compress.Lookup()
	cc.SecurityRequired = cfg.Security.Required
	cc.TLS = t
	cc.Metrics = m
	return cc, cc.Validate()
}

// ============================================================================
//                              Fx 模块
// ============================================================================

// ModuleParams 连接配置依赖
type ModuleParams struct {
	fx.In

	Config  *config.Config
	TLS     *TLS             `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

// Module 返回 Fx 模块，提供 *TLS 与 Config
func Module() fx.Option {
	return fx.Module("conn",
		fx.Provide(
			ProvideTLS,
			ProvideConfig,
		),
	)
}

// ProvideTLS 加载 TLS 证书，未启用安全时为 nil
func ProvideTLS(cfg *config.Config) (*TLS, error) {
	return LoadTLS(cfg.Security)
}

// ProvideConfig 提供连接运行时配置
func ProvideConfig(p ModuleParams) (Config, error) {
	return Build(p.Config, p.TLS, p.Metrics)
}
