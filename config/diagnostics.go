package config

import (
	"errors"
	"time"
)

// DiagnosticsConfig 诊断服务配置
type DiagnosticsConfig struct {
	// EnableIntrospect 启用本地自省 HTTP 服务
	EnableIntrospect bool `json:"enable_introspect"`

	// IntrospectAddr 自省服务监听地址，默认 "127.0.0.1:6060"
	IntrospectAddr string `json:"introspect_addr"`

	// EnableMetrics 启用 Prometheus 指标
	EnableMetrics bool `json:"enable_metrics"`

	// StatsInterval 周期性统计日志间隔（0 关闭）
	StatsInterval Duration `json:"stats_interval"`
}

// DefaultDiagnosticsConfig 返回默认诊断配置
func DefaultDiagnosticsConfig() DiagnosticsConfig {
	return DiagnosticsConfig{
		EnableIntrospect: false,
		IntrospectAddr:   "127.0.0.1:6060",
		EnableMetrics:    true,
		StatsInterval:    Duration(time.Minute),
	}
}

// Validate 校验诊断配置
func (c DiagnosticsConfig) Validate() error {
	if c.EnableIntrospect && c.IntrospectAddr == "" {
		return errors.New("introspect_addr required when introspect is enabled")
	}
	if c.StatsInterval < 0 {
		return errors.New("stats_interval must be >= 0")
	}
	return nil
}
