package transport

import (
	"context"
	"crypto/tls"

	"go.uber.org/fx"

	"github.com/dep2p/go-msgrpc/config"
	"github.com/dep2p/go-msgrpc/internal/core/conn"
	"github.com/dep2p/go-msgrpc/internal/core/transport/mem"
	"github.com/dep2p/go-msgrpc/internal/core/transport/quic"
	"github.com/dep2p/go-msgrpc/internal/core/transport/tcp"
	"github.com/dep2p/go-msgrpc/internal/core/transport/ws"
	"github.com/dep2p/go-msgrpc/pkg/interfaces"
)

// New 按配置创建注册表并注册启用的传输
//
// server/client 为 QUIC 使用的 TLS 配置，可为空。
func New(tc config.TransportConfig, lc config.ListenConfig, server, client *tls.Config, extra ...interfaces.Transport) (*Registry, error) {
	var ts []interfaces.Transport

	if tc.EnableTCP {
		ts = append(ts, tcp.New(tcp.Config{
			NoDelay:    tc.TCP.NoDelay,
			KeepAlive:  tc.TCP.KeepAlivePeriod.Duration(),
			MaxInbound: lc.MaxInbound,
		}))
	}
	if tc.EnableWebSocket {
		wc := ws.DefaultConfig()
		wc.HandshakeTimeout = tc.WebSocket.HandshakeTimeout.Duration()
		if tc.WebSocket.BufferSize > 0 {
			wc.BufferSize = tc.WebSocket.BufferSize
		}
		ts = append(ts, ws.New(wc))
	}
	if tc.EnableQUIC {
		qc := quic.DefaultConfig()
		qc.Server = server
		qc.Client = client
		qc.MaxIdleTimeout = tc.QUIC.MaxIdleTimeout.Duration()
		if p := tc.QUIC.KeepAlivePeriod.Duration(); p > 0 {
			qc.KeepAlivePeriod = p
		}
		ts = append(ts, quic.New(qc))
	}
	if tc.EnableMem {
		ts = append(ts, mem.New())
	}
	ts = append(ts, extra...)

	r, err := NewRegistry(tc.DefaultScheme, tc.DefaultPort, ts...)
	if err != nil {
		return nil, err
	}
	log.Info("传输注册表就绪", "schemes", r.Schemes(), "default", tc.DefaultScheme)
	return r, nil
}

// ============================================================================
//                              Fx 模块
// ============================================================================

// Params 注册表依赖
type Params struct {
	fx.In

	Config *config.Config
	TLS    *conn.TLS `optional:"true"`

	// Extra 应用额外提供的传输
	Extra []interfaces.Transport `group:"transports"`
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("transport",
		fx.Provide(ProvideRegistry),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideRegistry 提供传输注册表
func ProvideRegistry(p Params) (*Registry, error) {
	var server, client *tls.Config
	if p.TLS != nil {
		server, client = p.TLS.Server, p.TLS.Client
	}
	return New(p.Config.Transport, p.Config.Listen, server, client, p.Extra...)
}

func registerLifecycle(lc fx.Lifecycle, r *Registry) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return r.Close()
		},
	})
}
