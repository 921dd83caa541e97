package resolver

import (
	"context"
	"net"
	"sync"

	"github.com/dep2p/go-msgrpc/pkg/interfaces"
)

// Static 静态名称表
//
// 键可以是 "host:port" 或 "host"；按 host 匹配的地址缺少端口时沿用请求的端口。
type Static struct {
	mu      sync.RWMutex
	entries map[string][]string
	next    interfaces.Resolver
}

var _ interfaces.Resolver = (*Static)(nil)

// NewStatic 创建静态表，未命中时交给 next（可为空）
func NewStatic(entries map[string][]string, next interfaces.Resolver) *Static {
	s := &Static{entries: make(map[string][]string, len(entries)), next: next}
	for k, v := range entries {
		s.entries[k] = append([]string(nil), v...)
	}
	return s
}

// Set 设置名称的地址
func (s *Static) Set(name string, addrs ...string) {
	s.mu.Lock()
	s.entries[name] = append([]string(nil), addrs...)
	s.mu.Unlock()
}

// Resolve 实现 interfaces.Resolver
func (s *Static) Resolve(ctx context.Context, name string) ([]string, error) {
	host, port, err := split(name)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	addrs, ok := s.entries[name]
	if !ok {
		addrs, ok = s.entries[host]
	}
	s.mu.RUnlock()

	if ok {
		out := make([]string, 0, len(addrs))
		for _, a := range addrs {
			if _, _, err := net.SplitHostPort(a); err != nil {
				a = net.JoinHostPort(a, port)
			}
			out = append(out, a)
		}
		return out, nil
	}
	if s.next != nil {
		return s.next.Resolve(ctx, name)
	}
	return nil, ErrNotFound
}

// split 拆分 host:port
func split(name string) (string, string, error) {
	host, port, err := net.SplitHostPort(name)
	if err != nil || host == "" {
		return "", "", ErrBadName
	}
	return host, port, nil
}

// literal IP 字面量直接返回
func literal(host, port string) ([]string, bool) {
	if net.ParseIP(host) == nil {
		return nil, false
	}
	return []string{net.JoinHostPort(host, port)}, true
}
