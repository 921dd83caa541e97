// Package config 提供 msgrpc 的统一配置
//
// 主 Config 嵌入各组件子配置，每个子配置在独立文件中定义，
// 支持 JSON 加载/保存与预设（client/server/relay/test）。
//
//	cfg := config.NewConfig()
//	cfg.Pool.MaxActiveConnections = 8
//
//	cfg, err := config.NewPresetConfig("relay")
//
//	cfg, err := config.LoadFile("msgrpc.json")
package config

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Config msgrpc 的完整配置
type Config struct {
	// Connection 单条连接的行为（报文缓冲、超时、心跳、重试）
	Connection ConnectionConfig `json:"connection"`

	// Pool 连接池与服务注册表
	Pool PoolConfig `json:"pool"`

	// Listen 监听地址与接入策略
	Listen ListenConfig `json:"listen"`

	// Transport 传输选择与参数
	Transport TransportConfig `json:"transport"`

	// Security 安全套接字（TLS）
	Security SecurityConfig `json:"security"`

	// Compression 报文压缩
	Compression CompressionConfig `json:"compression"`

	// Resolver 名称解析
	Resolver ResolverConfig `json:"resolver"`

	// Relay 中继引擎
	Relay RelayConfig `json:"relay"`

	// Diagnostics 诊断与指标
	Diagnostics DiagnosticsConfig `json:"diagnostics"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Connection:  DefaultConnectionConfig(),
		Pool:        DefaultPoolConfig(),
		Listen:      DefaultListenConfig(),
		Transport:   DefaultTransportConfig(),
		Security:    DefaultSecurityConfig(),
		Compression: DefaultCompressionConfig(),
		Resolver:    DefaultResolverConfig(),
		Relay:       DefaultRelayConfig(),
		Diagnostics: DefaultDiagnosticsConfig(),
	}
}

// Validate 校验全部子配置
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	checks := []struct {
		name string
		fn   func() error
	}{
		{"connection", c.Connection.Validate},
		{"pool", c.Pool.Validate},
		{"listen", c.Listen.Validate},
		{"transport", c.Transport.Validate},
		{"security", c.Security.Validate},
		{"compression", c.Compression.Validate},
		{"resolver", c.Resolver.Validate},
		{"relay", c.Relay.Validate},
		{"diagnostics", c.Diagnostics.Validate},
	}
	for _, chk := range checks {
		if err := chk.fn(); err != nil {
			return fmt.Errorf("%s: %w", chk.name, err)
		}
	}
	return nil
}

// Clone 深拷贝配置
func (c *Config) Clone() *Config {
	data, err := json.Marshal(c)
	if err != nil {
		cp := *c
		return &cp
	}
	out := &Config{}
	if err := json.Unmarshal(data, out); err != nil {
		cp := *c
		return &cp
	}
	return out
}
