package config

import "errors"

// PoolConfig 连接池与服务注册表配置
type PoolConfig struct {
	// MaxActiveConnections 单个连接池同时活跃连接上限
	MaxActiveConnections int `json:"max_active_connections"`

	// MaxPools 服务最多连接池数（0 表示不限）
	MaxPools int `json:"max_pools"`

	// MaxConnections 服务最多连接数（0 表示不限）
	MaxConnections int `json:"max_connections"`

	// Shards 注册表分片数
	Shards int `json:"shards"`
}

// DefaultPoolConfig 返回默认连接池配置
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxActiveConnections: 4,
		MaxPools:             0,
		MaxConnections:       0,
		Shards:               16,
	}
}

// Validate 校验连接池配置
func (c PoolConfig) Validate() error {
	if c.MaxActiveConnections < 1 {
		return errors.New("max_active_connections must be >= 1")
	}
	if c.MaxPools < 0 || c.MaxConnections < 0 {
		return errors.New("limits must be >= 0")
	}
	if c.Shards < 1 || c.Shards > 1024 {
		return errors.New("shards must be in [1, 1024]")
	}
	return nil
}
