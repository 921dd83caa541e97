package config

import (
	"errors"
	"fmt"
	"time"
)

// TransportConfig 传输层配置
//
// 接收者 URL 的 scheme 选择传输：
//   - tcp: 默认传输
//   - ws: WebSocket（穿越只放行 HTTP 的网络）
//   - quic: 基于 UDP，自带 TLS 1.3
//   - mem: 进程内管道（测试）
type TransportConfig struct {
	// DefaultScheme URL 省略 scheme 时使用
	DefaultScheme string `json:"default_scheme"`

	// DefaultPort URL 省略端口时使用
	DefaultPort int `json:"default_port"`

	EnableTCP       bool `json:"enable_tcp"`
	EnableWebSocket bool `json:"enable_websocket"`
	EnableQUIC      bool `json:"enable_quic"`
	EnableMem       bool `json:"enable_mem"`

	TCP       TCPConfig       `json:"tcp,omitempty"`
	WebSocket WebSocketConfig `json:"websocket,omitempty"`
	QUIC      QUICConfig      `json:"quic,omitempty"`
}

// TCPConfig TCP 传输配置
type TCPConfig struct {
	// NoDelay 是否禁用 Nagle 算法
	NoDelay bool `json:"no_delay"`

	// KeepAlivePeriod TCP 层保活周期
	KeepAlivePeriod Duration `json:"keep_alive_period"`
}

// WebSocketConfig WebSocket 传输配置
type WebSocketConfig struct {
	// BufferSize 读写缓冲区大小
	BufferSize int `json:"buffer_size,omitempty"`

	// HandshakeTimeout 升级握手超时
	HandshakeTimeout Duration `json:"handshake_timeout"`
}

// QUICConfig QUIC 传输配置
type QUICConfig struct {
	// MaxIdleTimeout 最大空闲超时
	MaxIdleTimeout Duration `json:"max_idle_timeout"`

	// KeepAlivePeriod KeepAlive 周期
	KeepAlivePeriod Duration `json:"keep_alive_period"`
}

// DefaultTransportConfig 返回默认传输配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		DefaultScheme:   "tcp",
		DefaultPort:     4510,
		EnableTCP:       true,
		EnableWebSocket: true,
		EnableQUIC:      true,
		EnableMem:       true,
		TCP: TCPConfig{
			NoDelay:         true,
			KeepAlivePeriod: Duration(30 * time.Second),
		},
		WebSocket: WebSocketConfig{
			BufferSize:       64 << 10,
			HandshakeTimeout: Duration(10 * time.Second),
		},
		QUIC: QUICConfig{
			MaxIdleTimeout:  Duration(2 * time.Minute),
			KeepAlivePeriod: Duration(15 * time.Second),
		},
	}
}

// Validate 校验传输配置
func (c TransportConfig) Validate() error {
	if c.DefaultPort < 1 || c.DefaultPort > 65535 {
		return errors.New("default_port must be in [1, 65535]")
	}
	enabled := map[string]bool{
		"tcp":  c.EnableTCP,
		"ws":   c.EnableWebSocket,
		"quic": c.EnableQUIC,
		"mem":  c.EnableMem,
	}
	on, known := enabled[c.DefaultScheme]
	if !known {
		return fmt.Errorf("unknown default_scheme %q", c.DefaultScheme)
	}
	if !on {
		return fmt.Errorf("default_scheme %q is not enabled", c.DefaultScheme)
	}
	if c.EnableWebSocket && c.WebSocket.HandshakeTimeout <= 0 {
		return errors.New("websocket.handshake_timeout must be positive")
	}
	if c.EnableQUIC && c.QUIC.MaxIdleTimeout <= 0 {
		return errors.New("quic.max_idle_timeout must be positive")
	}
	return nil
}
