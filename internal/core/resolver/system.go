package resolver

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/dep2p/go-msgrpc/pkg/interfaces"
)

// srvService SRV 查询的服务名
const srvService = "msgrpc"

// System 基于 net.Resolver 的解析器
type System struct {
	r   *net.Resolver
	srv bool
}

var _ interfaces.Resolver = (*System)(nil)

// NewSystem 创建系统解析器
//
// server 非空时所有查询发往该 DNS 服务器（ip:port）。
func NewSystem(server string, timeout time.Duration, srv bool) *System {
	r := net.DefaultResolver
	if server != "" {
		r = &net.Resolver{
			PreferGo: true,
			Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
				d := net.Dialer{Timeout: timeout}
				return d.DialContext(ctx, network, server)
			},
		}
	}
	return &System{r: r, srv: srv}
}

// Resolve 实现 interfaces.Resolver
func (s *System) Resolve(ctx context.Context, name string) ([]string, error) {
	host, port, err := split(name)
	if err != nil {
		return nil, err
	}
	if out, ok := literal(host, port); ok {
		return out, nil
	}

	if s.srv {
		if _, recs, err := s.r.LookupSRV(ctx, srvService, "tcp", host); err == nil && len(recs) > 0 {
			var out []string
			for _, rec := range recs {
				addrs, err := s.r.LookupHost(ctx, rec.Target)
				if err != nil {
					continue
				}
				for _, a := range addrs {
					out = append(out, net.JoinHostPort(a, strconv.Itoa(int(rec.Port))))
				}
			}
			if len(out) > 0 {
				return out, nil
			}
		}
	}

	addrs, err := s.r.LookupHost(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, host, err)
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, net.JoinHostPort(a, port))
	}
	return out, nil
}
