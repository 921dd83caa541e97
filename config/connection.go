package config

import (
	"errors"
	"time"
)

// ConnectionConfig 单条连接的配置
type ConnectionConfig struct {
	// PacketCapacity 发送报文缓冲容量（字节，含 8 字节报文头）
	PacketCapacity int `json:"packet_capacity"`

	// MaxMessages 多路复用表容量（同时在途的发送消息数）
	MaxMessages int `json:"max_messages"`

	// MaxMessageSize 单条消息负载上限（字节，0 表示不限）
	MaxMessageSize int64 `json:"max_message_size"`

	// InactivityTimeout 连续未收到任何报文的超时
	InactivityTimeout Duration `json:"inactivity_timeout"`

	// KeepaliveInterval 发送空闲时的心跳间隔
	KeepaliveInterval Duration `json:"keepalive_interval"`

	// MaxKeepalivesPerSecond 对端心跳速率上限，超过则关闭连接
	MaxKeepalivesPerSecond float64 `json:"max_keepalives_per_second"`

	// KeepaliveBurst 心跳突发容量
	KeepaliveBurst int `json:"keepalive_burst"`

	// MaxMalformedPerSecond 错位/畸形分片速率上限
	MaxMalformedPerSecond float64 `json:"max_malformed_per_second"`

	// MalformedBurst 畸形分片突发容量
	MalformedBurst int `json:"malformed_burst"`

	// DialTimeout 单次拨号（含名称解析）超时
	DialTimeout Duration `json:"dial_timeout"`

	// HandshakeTimeout 安全握手超时
	HandshakeTimeout Duration `json:"handshake_timeout"`

	// ConnectRetries 建连失败后的重试次数
	ConnectRetries int `json:"connect_retries"`

	// RetryBackoffMin 首次重试等待
	RetryBackoffMin Duration `json:"retry_backoff_min"`

	// RetryBackoffMax 重试等待上限（指数退避）
	RetryBackoffMax Duration `json:"retry_backoff_max"`

	// DrainTimeout 延迟关闭时等待在途消息完成的上限
	DrainTimeout Duration `json:"drain_timeout"`
}

// DefaultConnectionConfig 返回默认连接配置
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		PacketCapacity:         64 << 10,
		MaxMessages:            1024,
		MaxMessageSize:         256 << 20,
		InactivityTimeout:      Duration(60 * time.Second),
		KeepaliveInterval:      Duration(15 * time.Second),
		MaxKeepalivesPerSecond: 10,
		KeepaliveBurst:         20,
		MaxMalformedPerSecond:  5,
		MalformedBurst:         20,
		DialTimeout:            Duration(10 * time.Second),
		HandshakeTimeout:       Duration(10 * time.Second),
		ConnectRetries:         3,
		RetryBackoffMin:        Duration(200 * time.Millisecond),
		RetryBackoffMax:        Duration(5 * time.Second),
		DrainTimeout:           Duration(30 * time.Second),
	}
}

// Validate 校验连接配置
func (c ConnectionConfig) Validate() error {
	if c.PacketCapacity < 512 {
		return errors.New("packet_capacity must be >= 512")
	}
	if c.PacketCapacity > 16<<20 {
		return errors.New("packet_capacity must be <= 16MiB")
	}
	if c.MaxMessages < 1 {
		return errors.New("max_messages must be >= 1")
	}
	if c.MaxMessageSize < 0 {
		return errors.New("max_message_size must be >= 0")
	}
	if c.InactivityTimeout <= 0 || c.KeepaliveInterval <= 0 {
		return errors.New("inactivity_timeout and keepalive_interval must be positive")
	}
	if c.KeepaliveInterval >= c.InactivityTimeout {
		return errors.New("keepalive_interval must be shorter than inactivity_timeout")
	}
	if c.MaxKeepalivesPerSecond <= 0 || c.MaxMalformedPerSecond <= 0 {
		return errors.New("rate limits must be positive")
	}
	if c.KeepaliveBurst < 1 || c.MalformedBurst < 1 {
		return errors.New("bursts must be >= 1")
	}
	if c.ConnectRetries < 0 {
		return errors.New("connect_retries must be >= 0")
	}
	if c.RetryBackoffMin <= 0 || c.RetryBackoffMax < c.RetryBackoffMin {
		return errors.New("retry backoff range is invalid")
	}
	if c.DialTimeout <= 0 || c.HandshakeTimeout <= 0 || c.DrainTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	return nil
}
