package conn

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"

	"github.com/dep2p/go-msgrpc/config"
	"github.com/dep2p/go-msgrpc/pkg/types"
)

// TLS 安全握手配置
type TLS struct {
	// Client 主动拨出的连接使用
	Client *tls.Config

	// Server 被动接受的连接使用
	Server *tls.Config
}

// LoadTLS 由安全配置加载证书，未启用时返回 nil
func LoadTLS(sc config.SecurityConfig) (*TLS, error) {
	if !sc.Enable {
		return nil, nil
	}

	client := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         sc.ServerName,
		InsecureSkipVerify: sc.InsecureSkipVerify, //nolint:gosec
	}
	out := &TLS{Client: client}

	if sc.CAFile != "" {
		pem, err := os.ReadFile(sc.CAFile)
		if err != nil {
			return nil, fmt.Errorf("conn: read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("conn: no certificates in %s", sc.CAFile)
		}
		client.RootCAs = pool
	}

	if sc.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(sc.CertFile, sc.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("conn: load key pair: %w", err)
		}
		client.Certificates = []tls.Certificate{cert}
		server := &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
		if sc.ClientAuth {
			server.ClientAuth = tls.RequireAndVerifyClientCert
			server.ClientCAs = client.RootCAs
		}
		out.Server = server
	}
	return out, nil
}

// handshake 在套接字上执行 TLS 握手
func handshake(ctx context.Context, nc net.Conn, t *TLS, dir types.Direction, serverName string) (net.Conn, error) {
	var tc *tls.Conn
	if dir == types.DirInbound {
		if t.Server == nil {
			return nil, types.ErrConnectionNoSecureConfiguration
		}
		tc = tls.Server(nc, t.Server)
	} else {
		if t.Client == nil {
			return nil, types.ErrConnectionNoSecureConfiguration
		}
		cfg := t.Client
		if cfg.ServerName == "" && serverName != "" {
			cfg = cfg.Clone()
			cfg.ServerName = serverName
		}
		tc = tls.Client(nc, cfg)
	}

	if err := tc.HandshakeContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConnectionSecureVerify, err)
	}
	return tc, nil
}
