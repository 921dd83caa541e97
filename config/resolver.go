package config

import (
	"errors"
	"fmt"
	"time"
)

// ResolverConfig 名称解析配置
type ResolverConfig struct {
	// Mode "system"（操作系统解析器）、"dns"（直接查询 DNS 服务器）或 "static"
	Mode string `json:"mode"`

	// Servers DNS 服务器（host:port），Mode=dns 时使用
	Servers []string `json:"servers,omitempty"`

	// SRV 先查询 _msgrpc._tcp.<name> SRV 记录
	SRV bool `json:"srv"`

	// Static 静态名称表，任意模式下优先匹配
	Static map[string][]string `json:"static,omitempty"`

	// Timeout 单次查询超时
	Timeout Duration `json:"timeout"`

	// CacheSize 解析缓存条目数（0 关闭缓存）
	CacheSize int `json:"cache_size"`

	// CacheTTL 缓存有效期
	CacheTTL Duration `json:"cache_ttl"`
}

// DefaultResolverConfig 返回默认解析配置
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		Mode:      "system",
		Timeout:   Duration(5 * time.Second),
		CacheSize: 256,
		CacheTTL:  Duration(30 * time.Second),
	}
}

// Validate 校验解析配置
func (c ResolverConfig) Validate() error {
	switch c.Mode {
	case "system", "static":
	case "dns":
		if len(c.Servers) == 0 {
			return errors.New("dns mode requires servers")
		}
	default:
		return fmt.Errorf("unknown resolver mode %q", c.Mode)
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.CacheSize < 0 {
		return errors.New("cache_size must be >= 0")
	}
	if c.CacheSize > 0 && c.CacheTTL <= 0 {
		return errors.New("cache_ttl must be positive when cache is enabled")
	}
	return nil
}
