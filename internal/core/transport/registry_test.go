package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-msgrpc/config"
	"github.com/dep2p/go-msgrpc/internal/core/transport/mem"
	"github.com/dep2p/go-msgrpc/internal/core/transport/tcp"
	"github.com/dep2p/go-msgrpc/pkg/interfaces"
	"github.com/dep2p/go-msgrpc/pkg/types"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r, err := NewRegistry("tcp", 4510, tcp.New(tcp.DefaultConfig()), mem.New())
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []string{"mem", "tcp"}, r.Schemes())
	assert.Equal(t, "tcp", r.DefaultScheme())

	_, err = r.Get("quic")
	assert.ErrorIs(t, err, ErrNoTransport)

	err = r.Register(mem.New())
	assert.ErrorIs(t, err, ErrTransportExists)

	t.Log("✅ 注册表增删查正确")
}

func TestRegistry_Parse(t *testing.T) {
	r, err := NewRegistry("tcp", 4510, tcp.New(tcp.DefaultConfig()), mem.New())
	require.NoError(t, err)
	defer r.Close()

	tg, err := r.Parse("relay.example#svc")
	require.NoError(t, err)
	assert.Equal(t, "tcp://relay.example:4510#svc", tg.String())

	tg, err = r.Parse("mem://node-a")
	require.NoError(t, err)
	assert.Equal(t, "node-a", tg.Addr())

	_, err = r.Parse("mem://node-a:1")
	assert.ErrorIs(t, err, types.ErrInvalidURL)

	_, err = r.Parse("quic://h:1")
	assert.ErrorIs(t, err, types.ErrInvalidURL)

	tg, err = r.ParseListen("tcp://127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:4510", tg.Addr())
}

func TestRegistry_DialerResolves(t *testing.T) {
	r, err := NewRegistry("tcp", 4510, tcp.New(tcp.DefaultConfig()))
	require.NoError(t, err)
	defer r.Close()

	l, tg, err := r.Listen(context.Background(), "tcp://127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	assert.Equal(t, "tcp", tg.Scheme)
	go func() {
		for {
			nc, err := l.Accept()
			if err != nil {
				return
			}
			nc.Close()
		}
	}()

	var lookups int
	res := interfaces.ResolverFunc(func(_ context.Context, name string) ([]string, error) {
		lookups++
		assert.Equal(t, "backend:4510", name)
		// 第一个地址不可达，第二个成功
		return []string{"127.0.0.1:1", l.Addr().String()}, nil
	})

	target, err := r.Parse("backend")
	require.NoError(t, err)
	dial, err := r.Dialer(target, res)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < 2; i++ {
		nc, err := dial(ctx)
		require.NoError(t, err)
		nc.Close()
	}
	assert.Equal(t, 2, lookups, "每次拨号都重新解析")

	t.Log("✅ 拨号前重新解析并依次尝试地址")
}

func TestRegistry_DialerResolveError(t *testing.T) {
	r, err := NewRegistry("tcp", 4510, tcp.New(tcp.DefaultConfig()))
	require.NoError(t, err)
	defer r.Close()

	target, err := r.Parse("nowhere")
	require.NoError(t, err)
	dial, err := r.Dialer(target, interfaces.ResolverFunc(func(context.Context, string) ([]string, error) {
		return nil, errors.New("nxdomain")
	}))
	require.NoError(t, err)

	_, err = dial(context.Background())
	assert.ErrorIs(t, err, types.ErrConnectionResolve)
	assert.True(t, types.IsConnectionError(err))
}

func TestRegistry_MemSkipsResolver(t *testing.T) {
	m := mem.New()
	r, err := NewRegistry("mem", 4510, m)
	require.NoError(t, err)
	defer r.Close()

	l, _, err := r.Listen(context.Background(), "svc")
	require.NoError(t, err)
	defer l.Close()
	go func() {
		nc, err := l.Accept()
		if err == nil {
			nc.Close()
		}
	}()

	target, err := r.Parse("svc")
	require.NoError(t, err)
	dial, err := r.Dialer(target, interfaces.ResolverFunc(func(context.Context, string) ([]string, error) {
		t.Error("mem 地址不应被解析")
		return nil, errors.New("unexpected")
	}))
	require.NoError(t, err)

	var nc net.Conn
	nc, err = dial(context.Background())
	require.NoError(t, err)
	nc.Close()
}

func TestModule(t *testing.T) {
	var reg *Registry
	app := fxtest.New(t,
		fx.Supply(config.NewConfig()),
		Module(),
		fx.Populate(&reg),
	)
	app.RequireStart()
	require.NotNil(t, reg)
	assert.Equal(t, []string{"mem", "quic", "tcp", "ws"}, reg.Schemes())
	app.RequireStop()

	t.Log("✅ Fx 模块提供注册表")
}
