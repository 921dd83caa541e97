package conn

import (
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-msgrpc/config"
	"github.com/dep2p/go-msgrpc/internal/core/metrics"
	"github.com/dep2p/go-msgrpc/internal/core/wire"
	"github.com/dep2p/go-msgrpc/pkg/interfaces"
)

// normalQuantum 普通消息每轮调度最多写入的负载字节
const normalQuantum = 16 << 10

// Config 连接运行时配置
type Config struct {
	// PacketCapacity 发送报文缓冲容量
	PacketCapacity int

	// MaxMessages 多路复用表容量
	MaxMessages int

	// MaxMessageSize 单条消息负载上限（0 表示不限）
	MaxMessageSize int64

	// InactivityTimeout 未收到任何报文的超时
	InactivityTimeout time.Duration

	// KeepaliveInterval 发送空闲时的心跳间隔
	KeepaliveInterval time.Duration

	// KeepaliveLimit/KeepaliveBurst 对端心跳速率上限
	KeepaliveLimit rate.Limit
	KeepaliveBurst int

	// MalformedLimit/MalformedBurst 畸形分片速率上限
	MalformedLimit rate.Limit
	MalformedBurst int

	DialTimeout      time.Duration
	HandshakeTimeout time.Duration

	// ConnectRetries 建连失败后的重试次数
	ConnectRetries  int
	RetryBackoffMin time.Duration
	RetryBackoffMax time.Duration

	// DrainTimeout 排空上限
	DrainTimeout time.Duration

	// SecurityRequired 要求安全连接
	SecurityRequired bool

	// TLS 安全握手配置，为空表示不握手
	TLS *TLS

	// Compressor 发送侧压缩器，为空表示不压缩
	Compressor interfaces.Compressor

	// Decompressors 接收侧按算法 ID 查找解压器
	Decompressors func(id uint8) interfaces.Compressor

	// Clock 时钟，测试中替换为 clock.NewMock()
	Clock clock.Clock

	// Metrics 指标采集（可为空）
	Metrics *metrics.Metrics

	// Label 日志与指标中的连接池名称
	Label string
}

// DefaultConfig 返回默认连接配置
func DefaultConfig() Config {
	return FromConfig(config.DefaultConnectionConfig())
}

// FromConfig 由统一配置的连接段构造运行时配置
func FromConfig(cc config.ConnectionConfig) Config {
	return Config{
		PacketCapacity:    cc.PacketCapacity,
		MaxMessages:       cc.MaxMessages,
		MaxMessageSize:    cc.MaxMessageSize,
		InactivityTimeout: cc.InactivityTimeout.Duration(),
		KeepaliveInterval: cc.KeepaliveInterval.Duration(),
		KeepaliveLimit:    rate.Limit(cc.MaxKeepalivesPerSecond),
		KeepaliveBurst:    cc.KeepaliveBurst,
		MalformedLimit:    rate.Limit(cc.MaxMalformedPerSecond),
		MalformedBurst:    cc.MalformedBurst,
		DialTimeout:       cc.DialTimeout.Duration(),
		HandshakeTimeout:  cc.HandshakeTimeout.Duration(),
		ConnectRetries:    cc.ConnectRetries,
		RetryBackoffMin:   cc.RetryBackoffMin.Duration(),
		RetryBackoffMax:   cc.RetryBackoffMax.Duration(),
		DrainTimeout:      cc.DrainTimeout.Duration(),
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.PacketCapacity < wire.MinPacketCapacity {
		return errors.New("conn: packet capacity too small")
	}
	if c.MaxMessages < 1 {
		return errors.New("conn: max messages must be >= 1")
	}
	if c.InactivityTimeout <= 0 || c.KeepaliveInterval <= 0 {
		return errors.New("conn: timeouts must be positive")
	}
	if c.KeepaliveInterval >= c.InactivityTimeout {
		return errors.New("conn: keepalive interval must be shorter than inactivity timeout")
	}
	if c.DialTimeout <= 0 || c.HandshakeTimeout <= 0 || c.DrainTimeout <= 0 {
		return errors.New("conn: timeouts must be positive")
	}
	if c.RetryBackoffMin <= 0 || c.RetryBackoffMax < c.RetryBackoffMin {
		return errors.New("conn: invalid retry backoff")
	}
	return nil
}

// tickInterval 定时维护周期
func (c *Config) tickInterval() time.Duration {
	d := c.KeepaliveInterval / 2
	if d < 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	return d
}
