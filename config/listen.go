package config

import "errors"

// ListenConfig 监听配置
type ListenConfig struct {
	// Addrs 监听地址，形如 "tcp://0.0.0.0:7400"、"ws://:7401/msgrpc"、"quic://:7402"
	Addrs []string `json:"addrs,omitempty"`

	// ActivateOnAccept 接受后立即激活；为 false 时连接停在 Connecting，
	// 直到应用调用 NotifyEnterActiveState
	ActivateOnAccept bool `json:"activate_on_accept"`

	// MaxInbound TCP 监听器同时持有的连接上限（0 表示不限）
	MaxInbound int `json:"max_inbound"`
}

// DefaultListenConfig 返回默认监听配置（不监听）
func DefaultListenConfig() ListenConfig {
	return ListenConfig{
		ActivateOnAccept: true,
	}
}

// Validate 校验监听配置
func (c ListenConfig) Validate() error {
	if c.MaxInbound < 0 {
		return errors.New("max_inbound must be >= 0")
	}
	for _, a := range c.Addrs {
		if a == "" {
			return errors.New("empty listen address")
		}
	}
	return nil
}
