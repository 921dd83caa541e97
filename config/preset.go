package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// 预设名称
const (
	PresetClient = "client"
	PresetServer = "server"
	PresetRelay  = "relay"
	PresetTest   = "test"
)

// ApplyPreset 将预设应用到配置
//
//   - client: 默认值，不监听
//   - server: 更大的多路复用表与连接上限
//   - relay: 启用中继引擎，监听并激活接入连接
//   - test: 短超时、小报文，便于测试覆盖分片路径
func ApplyPreset(cfg *Config, name string) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	switch name {
	case "", PresetClient:
		return nil
	case PresetServer:
		cfg.Connection.MaxMessages = 8192
		cfg.Pool.MaxActiveConnections = 16
		cfg.Pool.Shards = 64
		cfg.Listen.MaxInbound = 10000
	case PresetRelay:
		cfg.Connection.MaxMessages = 16384
		cfg.Pool.Shards = 64
		cfg.Relay.Enable = true
		cfg.Relay.Shards = 64
		cfg.Listen.ActivateOnAccept = true
		cfg.Listen.MaxInbound = 10000
	case PresetTest:
		cfg.Connection.PacketCapacity = 4 << 10
		cfg.Connection.InactivityTimeout = Duration(5 * time.Second)
		cfg.Connection.KeepaliveInterval = Duration(time.Second)
		cfg.Connection.DialTimeout = Duration(2 * time.Second)
		cfg.Connection.HandshakeTimeout = Duration(2 * time.Second)
		cfg.Connection.RetryBackoffMin = Duration(10 * time.Millisecond)
		cfg.Connection.RetryBackoffMax = Duration(50 * time.Millisecond)
		cfg.Connection.DrainTimeout = Duration(2 * time.Second)
		cfg.Resolver.CacheSize = 0
		cfg.Diagnostics.EnableMetrics = false
		cfg.Diagnostics.StatsInterval = 0
	default:
		return fmt.Errorf("unknown preset: %s", name)
	}
	return nil
}

// NewPresetConfig 创建应用了预设的默认配置
func NewPresetConfig(name string) (*Config, error) {
	cfg := NewConfig()
	if err := ApplyPreset(cfg, name); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromJSON 在默认配置上叠加 JSON
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// LoadFile 从 JSON 文件加载并校验配置
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := FromJSON(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ToJSON 输出带缩进的 JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}
