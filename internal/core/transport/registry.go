package transport

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"

	"go.uber.org/multierr"

	"github.com/dep2p/go-msgrpc/internal/util/logger"
	"github.com/dep2p/go-msgrpc/pkg/interfaces"
	"github.com/dep2p/go-msgrpc/pkg/types"
)

var log = logger.Logger("transport")

// passthrough 可选接口：地址是传输内部名称，不补端口也不解析
type passthrough interface {
	Passthrough() bool
}

func isPassthrough(t interfaces.Transport) bool {
	p, ok := t.(passthrough)
	return ok && p.Passthrough()
}

// ============================================================================
//                              Registry
// ============================================================================

// Registry scheme 到传输的注册表
type Registry struct {
	defScheme string
	defPort   string

	mu         sync.RWMutex
	transports map[string]interfaces.Transport
}

// NewRegistry 创建注册表
func NewRegistry(defaultScheme string, defaultPort int, ts ...interfaces.Transport) (*Registry, error) {
	r := &Registry{
		defScheme:  defaultScheme,
		defPort:    strconv.Itoa(defaultPort),
		transports: make(map[string]interfaces.Transport),
	}
	for _, t := range ts {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register 注册传输
func (r *Registry) Register(t interfaces.Transport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := t.Scheme()
	if _, ok := r.transports[s]; ok {
		return fmt.Errorf("%w: %s", ErrTransportExists, s)
	}
	r.transports[s] = t
	log.Debug("注册传输", "scheme", s, "secure", t.Secure())
	return nil
}

// Get 返回 scheme 对应的传输
func (r *Registry) Get(scheme string) (interfaces.Transport, error) {
	r.mu.RLock()
	t, ok := r.transports[scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoTransport, scheme)
	}
	return t, nil
}

// Schemes 返回已注册的 scheme（有序）
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.transports))
	for s := range r.transports {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// DefaultScheme 返回默认 scheme
func (r *Registry) DefaultScheme() string { return r.defScheme }

// Parse 解析接收者 URL，校验 scheme 并补全默认端口
func (r *Registry) Parse(raw string) (Target, error) {
	t, err := ParseURL(raw, r.defScheme)
	if err != nil {
		return Target{}, err
	}
	return r.complete(raw, t)
}

// ParseListen 解析监听 URL
func (r *Registry) ParseListen(raw string) (Target, error) {
	t, err := ParseListenURL(raw, r.defScheme)
	if err != nil {
		return Target{}, err
	}
	return r.complete(raw, t)
}

func (r *Registry) complete(raw string, t Target) (Target, error) {
	tr, err := r.Get(t.Scheme)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %q: unknown scheme %s", types.ErrInvalidURL, raw, t.Scheme)
	}
	if isPassthrough(tr) {
		if t.Port != "" || t.Host == "" {
			return Target{}, fmt.Errorf("%w: %q: %s address is a plain name", types.ErrInvalidURL, raw, t.Scheme)
		}
		return t, nil
	}
	if t.Port == "" {
		t.Port = r.defPort
	}
	return t, nil
}

// Secure 目标传输是否自带加密
func (r *Registry) Secure(t Target) bool {
	tr, err := r.Get(t.Scheme)
	return err == nil && tr.Secure()
}

// Dialer 返回到目标端点的拨号函数
//
// 每次调用先经 res 解析主机名（res 为空或传输为 passthrough 时跳过），
// 再依次尝试解析出的地址。解析失败返回 ErrConnectionResolve。
func (r *Registry) Dialer(t Target, res interfaces.Resolver) (func(ctx context.Context) (net.Conn, error), error) {
	tr, err := r.Get(t.Scheme)
	if err != nil {
		return nil, err
	}
	resolve := res != nil && !isPassthrough(tr)
	addr := t.Addr()

	return func(ctx context.Context) (net.Conn, error) {
		addrs := []string{addr}
		if resolve {
			resolved, err := res.Resolve(ctx, addr)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", types.ErrConnectionResolve, addr, err)
			}
			if len(resolved) == 0 {
				return nil, fmt.Errorf("%w: %s: no addresses", types.ErrConnectionResolve, addr)
			}
			addrs = resolved
		}

		var errs error
		for _, a := range addrs {
			nc, err := tr.Dial(ctx, a)
			if err == nil {
				return nc, nil
			}
			errs = multierr.Append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
		return nil, errs
	}, nil
}

// Listen 在监听 URL 上开始监听
func (r *Registry) Listen(ctx context.Context, raw string) (interfaces.Listener, Target, error) {
	t, err := r.ParseListen(raw)
	if err != nil {
		return nil, Target{}, err
	}
	tr, err := r.Get(t.Scheme)
	if err != nil {
		return nil, Target{}, err
	}
	l, err := tr.Listen(ctx, t.Addr())
	if err != nil {
		return nil, Target{}, err
	}
	return l, t, nil
}

// Close 关闭全部实现了 io.Closer 的传输
func (r *Registry) Close() error {
	r.mu.RLock()
	ts := make([]interfaces.Transport, 0, len(r.transports))
	for _, t := range r.transports {
		ts = append(ts, t)
	}
	r.mu.RUnlock()

	var err error
	for _, t := range ts {
		if c, ok := t.(interface{ Close() error }); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}
