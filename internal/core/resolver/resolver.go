package resolver

import (
	"fmt"

	"go.uber.org/fx"

	"github.com/dep2p/go-msgrpc/config"
	"github.com/dep2p/go-msgrpc/pkg/interfaces"
)

// New 按配置组合解析器
func New(cfg config.ResolverConfig) (interfaces.Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}
	timeout := cfg.Timeout.Duration()

	var base interfaces.Resolver
	switch cfg.Mode {
	case "system":
		server := ""
		if len(cfg.Servers) > 0 {
			server = cfg.Servers[0]
		}
		base = NewSystem(server, timeout, cfg.SRV)
	case "dns":
		base = NewDNS(cfg.Servers, timeout, cfg.SRV)
	case "static":
		base = nil
	}

	var r interfaces.Resolver = NewStatic(cfg.Static, base)
	if cfg.CacheSize > 0 && base != nil {
		r = NewCached(r, cfg.CacheSize, cfg.CacheTTL.Duration())
	}
	log.Debug("解析器就绪", "mode", cfg.Mode, "srv", cfg.SRV, "cache", cfg.CacheSize)
	return r, nil
}

// Module 返回 Fx 模块，提供 interfaces.Resolver
func Module() fx.Option {
	return fx.Module("resolver",
		fx.Provide(func(cfg *config.Config) (interfaces.Resolver, error) {
			return New(cfg.Resolver)
		}),
	)
}
