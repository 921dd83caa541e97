package msgrpc

import (
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/fx"

	"github.com/dep2p/go-msgrpc/config"
	"github.com/dep2p/go-msgrpc/pkg/codec"
	"github.com/dep2p/go-msgrpc/pkg/interfaces"
)

// Option 节点配置选项
type Option func(*options) error

// options 内部选项结构
type options struct {
	// 基础配置（WithConfig），为空时使用默认配置
	base *config.Config

	// 预设
	preset string

	// 监听地址
	listenAddrs []string

	// 中继
	relay *bool

	// TLS
	tls *config.SecurityConfig

	// 压缩算法
	compression *string

	// 解析器
	resolver *config.ResolverConfig

	// 自省服务
	introspect struct {
		enable *bool
		addr   string
	}

	// 消息类型注册表
	types *codec.Registry

	// 额外传输，同名内置传输被替换
	transports []interfaces.Transport

	// 用户扩展
	fxOptions []fx.Option
	fxLogging bool
}

func newOptions() *options {
	return &options{}
}

// toConfig 合成最终配置：基础配置 -> 预设 -> 逐项覆盖
func (o *options) toConfig() (*config.Config, error) {
	var cfg *config.Config
	if o.base != nil {
		cfg = o.base.Clone()
	} else {
		cfg = config.NewConfig()
	}

	if o.preset != "" {
		if err := config.ApplyPreset(cfg, o.preset); err != nil {
			return nil, err
		}
	}
	if len(o.listenAddrs) > 0 {
		cfg.Listen.Addrs = append([]string(nil), o.listenAddrs...)
	}
	if o.relay != nil {
		cfg.Relay.Enable = *o.relay
	}
	if o.tls != nil {
		cfg.Security = *o.tls
	}
	if o.compression != nil {
		cfg.Compression.Algorithm = *o.compression
	}
	if o.resolver != nil {
		cfg.Resolver = *o.resolver
	}
	for _, t := range o.transports {
		switch t.Scheme() {
		case "tcp":
			cfg.Transport.EnableTCP = false
		case "ws":
			cfg.Transport.EnableWebSocket = false
		case "quic":
			cfg.Transport.EnableQUIC = false
		case "mem":
			cfg.Transport.EnableMem = false
		}
	}
	if o.introspect.enable != nil {
		cfg.Diagnostics.EnableIntrospect = *o.introspect.enable
		if o.introspect.addr != "" {
			cfg.Diagnostics.IntrospectAddr = o.introspect.addr
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ============================================================================
//                              选项
// ============================================================================

// WithConfig 以完整配置为基础，其余选项在其上覆盖
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		o.base = cfg
		return nil
	}
}

// WithPreset 应用预设（client/server/relay/test）
func WithPreset(name string) Option {
	return func(o *options) error {
		switch name {
		case config.PresetClient, config.PresetServer, config.PresetRelay, config.PresetTest:
		default:
			return fmt.Errorf("unknown preset: %s", name)
		}
		o.preset = name
		return nil
	}
}

// WithListenAddrs 设置监听地址，如 "tcp://0.0.0.0:7000"、"mem://relay"
func WithListenAddrs(addrs ...string) Option {
	return func(o *options) error {
		for _, a := range addrs {
			if a == "" {
				return errors.New("empty listen address")
			}
		}
		o.listenAddrs = append(o.listenAddrs, addrs...)
		return nil
	}
}

// WithRelay 启用或关闭中继引擎
func WithRelay(enable bool) Option {
	return func(o *options) error {
		o.relay = &enable
		return nil
	}
}

// WithTLS 设置安全套接字配置
func WithTLS(sc config.SecurityConfig) Option {
	return func(o *options) error {
		if err := sc.Validate(); err != nil {
			return fmt.Errorf("tls: %w", err)
		}
		o.tls = &sc
		return nil
	}
}

// WithCompression 设置报文压缩算法（none/s2/zstd）
func WithCompression(algorithm string) Option {
	return func(o *options) error {
		o.compression = &algorithm
		return nil
	}
}

// WithResolver 设置名称解析配置
func WithResolver(rc config.ResolverConfig) Option {
	return func(o *options) error {
		if err := rc.Validate(); err != nil {
			return fmt.Errorf("resolver: %w", err)
		}
		o.resolver = &rc
		return nil
	}
}

// WithIntrospect 启用本地自省 HTTP 服务，addr 为空时使用默认地址
func WithIntrospect(addr string) Option {
	return func(o *options) error {
		if addr != "" {
			if _, err := url.Parse("http://" + addr); err != nil {
				return fmt.Errorf("introspect addr: %w", err)
			}
		}
		enable := true
		o.introspect.enable = &enable
		o.introspect.addr = addr
		return nil
	}
}

// WithRegistry 使用外部消息类型注册表
//
// 未设置时节点自建注册表，可通过 Node.Types 注册类型。
func WithRegistry(r *codec.Registry) Option {
	return func(o *options) error {
		if r == nil {
			return errors.New("registry is nil")
		}
		o.types = r
		return nil
	}
}

// WithTransport 注册额外传输
//
// 与内置传输同 scheme 时替换内置实现，例如多个节点共享同一个 mem.Transport。
// 被替换的 scheme 不能是默认 scheme。
func WithTransport(t interfaces.Transport) Option {
	return func(o *options) error {
		if t == nil {
			return errors.New("transport is nil")
		}
		for _, prev := range o.transports {
			if prev.Scheme() == t.Scheme() {
				return fmt.Errorf("duplicate transport scheme %q", t.Scheme())
			}
		}
		o.transports = append(o.transports, t)
		return nil
	}
}

// WithFxOptions 追加 Fx 选项（高级用法）
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.fxOptions = append(o.fxOptions, opts...)
		return nil
	}
}

// WithFxLogging 输出 Fx 依赖注入事件日志
func WithFxLogging(enable bool) Option {
	return func(o *options) error {
		o.fxLogging = enable
		return nil
	}
}
