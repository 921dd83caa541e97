package config

import "errors"

// RelayConfig 中继引擎配置
type RelayConfig struct {
	// Enable 本节点作为中继：接受注册并转发带目的路径的消息
	Enable bool `json:"enable"`

	// Shards 路由表与账本分片数
	Shards int `json:"shards"`

	// MaxNameLength 注册名最大长度
	MaxNameLength int `json:"max_name_length"`

	// MaxBandwidth 转发带宽上限（字节/秒，0 表示不限）
	MaxBandwidth int64 `json:"max_bandwidth"`

	// MaxPending 同时在途的中继请求上限（0 表示不限）
	MaxPending int `json:"max_pending"`

	// MaxPendingPerConn 单个来源连接在途的中继请求上限（0 表示不限）
	MaxPendingPerConn int `json:"max_pending_per_conn"`
}

// DefaultRelayConfig 返回默认中继配置（不启用）
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		Enable:        false,
		Shards:        16,
		MaxNameLength: 128,
	}
}

// Validate 校验中继配置
func (c RelayConfig) Validate() error {
	if c.Shards < 1 || c.Shards > 1024 {
		return errors.New("shards must be in [1, 1024]")
	}
	if c.MaxNameLength < 1 {
		return errors.New("max_name_length must be >= 1")
	}
	if c.MaxBandwidth < 0 {
		return errors.New("max_bandwidth must be >= 0")
	}
	if c.MaxPending < 0 || c.MaxPendingPerConn < 0 {
		return errors.New("max_pending must be >= 0")
	}
	return nil
}
