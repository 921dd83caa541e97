package pool

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-msgrpc/config"
	"github.com/dep2p/go-msgrpc/internal/core/conn"
	"github.com/dep2p/go-msgrpc/internal/core/transport"
	"github.com/dep2p/go-msgrpc/internal/core/transport/mem"
	"github.com/dep2p/go-msgrpc/pkg/codec"
	"github.com/dep2p/go-msgrpc/pkg/interfaces"
	"github.com/dep2p/go-msgrpc/pkg/types"
)

// ============================================================================
//                              测试辅助
// ============================================================================

const echoTypeID uint32 = 100

type echo struct {
	Text string `json:"text"`
}

func testConfig(t *testing.T, mutate func(*config.Config)) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	require.NoError(t, config.ApplyPreset(cfg, config.PresetTest))
	if mutate != nil {
		mutate(cfg)
	}
	return cfg
}

func newService(t *testing.T, tr *mem.Transport, cfg *config.Config) *Service {
	t.Helper()

	reg, err := transport.NewRegistry(mem.Scheme, 0, tr)
	require.NoError(t, err)

	types := codec.NewRegistry()
	types.MustRegister(codec.TypeSpec{
		ID:    echoTypeID,
		Name:  "test.echo",
		New:   func() any { return new(echo) },
		Codec: codec.JSON(),
	})

	svc, err := New(Options{
		Config:    cfg,
		Conn:      conn.FromConfig(cfg.Connection),
		Transport: reg,
		Types:     types,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, svc.Stop(ctx))
	})
	return svc
}

// pair 创建监听 mem://name 的服务端与一个客户端
func pair(t *testing.T, name string, serverCfg func(*config.Config)) (server, client *Service) {
	t.Helper()
	tr := mem.New()
	server = newService(t, tr, testConfig(t, func(c *config.Config) {
		c.Listen.Addrs = []string{"mem://" + name}
		if serverCfg != nil {
			serverCfg(c)
		}
	}))
	client = newService(t, tr, testConfig(t, nil))
	return server, client
}

type result struct {
	msg *types.Message
	err error
}

func collect(ch chan<- result) interfaces.ResponseFunc {
	return func(_ interfaces.MessageContext, resp *types.Message, err error) {
		ch <- result{msg: resp, err: err}
	}
}

func wait(t *testing.T, ch <-chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("等待响应超时")
		return result{}
	}
}

// ============================================================================
//                              请求与响应
// ============================================================================

func TestService_RequestResponse(t *testing.T) {
	server, client := pair(t, "echo", nil)

	require.NoError(t, server.Handle(echoTypeID, func(ctx interfaces.MessageContext, msg *types.Message) {
		in := msg.Payload.(*echo)
		assert.True(t, msg.Flags.Has(types.FlagOnPeer|types.FlagAwaitResponse))
		if in.Text == "hello" {
			assert.Equal(t, []byte("hdr"), msg.Header)
		}
		assert.Empty(t, ctx.PoolName(), "入站连接没有连接池名称")
		assert.NoError(t, ctx.Respond(types.NewMessage(&echo{Text: strings.ToUpper(in.Text)}), 0))
	}))

	ch := make(chan result, 1)
	rid, id, err := client.SendRequest("mem://echo", types.NewMessage(&echo{Text: "hello"}).WithHeader([]byte("hdr")), 0, collect(ch))
	require.NoError(t, err)
	assert.True(t, rid.IsValid())
	assert.True(t, id.IsValid())

	r := wait(t, ch)
	require.NoError(t, r.err)
	assert.Equal(t, "HELLO", r.msg.Payload.(*echo).Text)
	assert.True(t, r.msg.Flags.Has(types.FlagResponse|types.FlagOnPeer))
	assert.Equal(t, id, r.msg.RequestID)

	// 同一端点复用同一连接池
	rid2, _, err := client.SendRequest("mem://echo", types.NewMessage(&echo{Text: "again"}), 0, collect(ch))
	require.NoError(t, err)
	assert.Equal(t, rid.Pool, rid2.Pool)
	wait(t, ch)

	t.Log("✅ 请求响应往返正确")
}

func TestService_SplitResponse(t *testing.T) {
	const total = 10 << 20
	payload := make([]byte, total)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	server, client := pair(t, "split", nil)
	server.SetHandler(func(ctx interfaces.MessageContext, msg *types.Message) {
		assert.Equal(t, []byte("f1"), msg.Payload)
		chunk := total / 4
		for i := 0; i < 4; i++ {
			flags := types.FlagResponsePart
			if i == 3 {
				flags = types.FlagResponseLast
			}
			part := payload[i*chunk : (i+1)*chunk]
			assert.NoError(t, ctx.Respond(types.NewMessage(part), flags))
		}
	})

	ch := make(chan result, 8)
	_, _, err = client.SendRequest("mem://split", types.NewMessage([]byte("f1")), 0, collect(ch))
	require.NoError(t, err)

	var got bytes.Buffer
	for i := 0; i < 4; i++ {
		r := wait(t, ch)
		require.NoError(t, r.err)
		if i < 3 {
			assert.True(t, r.msg.Flags.Has(types.FlagResponsePart), "第 %d 条应为 Part", i+1)
		} else {
			assert.True(t, r.msg.Flags.Has(types.FlagResponseLast), "第 4 条应为 Last")
		}
		got.Write(r.msg.Payload.([]byte))
	}
	assert.True(t, bytes.Equal(payload, got.Bytes()), "拼接后的负载应与原始数据一致")

	select {
	case r := <-ch:
		t.Fatalf("Last 之后不应再有回调: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}

	t.Log("✅ 10MB 响应分 3 Part + 1 Last 按序到达")
}

func TestService_StreamedRequest(t *testing.T) {
	payload := bytes.Repeat([]byte("stream-"), 20000)
	server, client := pair(t, "stream", nil)

	server.SetHandler(func(ctx interfaces.MessageContext, msg *types.Message) {
		assert.NoError(t, ctx.Respond(types.NewMessage(msg.Payload), types.FlagResponse))
	})

	ch := make(chan result, 1)
	_, _, err := client.SendRequest("mem://stream", types.NewMessage(bytes.NewReader(payload)), 0, collect(ch))
	require.NoError(t, err)

	r := wait(t, ch)
	require.NoError(t, r.err)
	assert.Equal(t, payload, r.msg.Payload)
}

// ============================================================================
//                              取消与陈旧句柄
// ============================================================================

func TestService_Cancel(t *testing.T) {
	server, client := pair(t, "cancel", nil)

	arrived := make(chan struct{}, 1)
	server.SetHandler(func(interfaces.MessageContext, *types.Message) {
		arrived <- struct{}{}
	})

	ch := make(chan result, 2)
	rid, id, err := client.SendRequest("mem://cancel", types.NewMessage([]byte("slow")), 0, collect(ch))
	require.NoError(t, err)

	select {
	case <-arrived:
	case <-time.After(5 * time.Second):
		t.Fatal("请求未到达")
	}
	require.NoError(t, client.CancelMessage(rid, id))

	r := wait(t, ch)
	assert.ErrorIs(t, r.err, types.ErrMessageCanceled)
	assert.Nil(t, r.msg)

	assert.ErrorIs(t, client.CancelMessage(rid, id), types.ErrUnknownMessage, "句柄已陈旧")

	t.Log("✅ 取消后恰好一次以取消错误完成")
}

func TestService_StaleHandles(t *testing.T) {
	_, client := pair(t, "stale", nil)

	ch := make(chan result, 1)
	_, _, err := client.SendRequest("mem://stale", types.NewMessage([]byte("x")), 0, collect(ch))
	require.NoError(t, err)
	wait(t, ch) // 服务端没有回调，请求以未知类型终止

	p, err := client.LookupPool("mem://stale")
	require.NoError(t, err)
	info := p.info()
	require.Len(t, info.Conns, 1)
	rid := types.RecipientID{Pool: p.ID(), Conn: info.Conns[0].ID}

	assert.ErrorIs(t, client.CancelMessage(rid, types.MessageID{Index: 0, Generation: 99}), types.ErrUnknownMessage)
	assert.ErrorIs(t, client.CancelMessage(rid, types.MessageID{}), types.ErrUnknownMessage)

	closed := make(chan struct{})
	require.NoError(t, client.ForceClosePool(p.ID(), func() { close(closed) }))
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("连接池未关闭")
	}

	_, err = client.SendMessageTo(rid, types.NewMessage([]byte("late")), 0)
	assert.ErrorIs(t, err, types.ErrUnknownConnection)
	assert.ErrorIs(t, client.CancelMessage(rid, types.MessageID{Index: 0, Generation: 1}), types.ErrUnknownConnection)
	assert.ErrorIs(t, client.ForceClosePool(p.ID(), nil), types.ErrPoolUnknown)

	_, err = client.SendMessageTo(types.RecipientID{}, types.NewMessage([]byte("x")), 0)
	assert.ErrorIs(t, err, types.ErrUnknownRecipient)

	t.Log("✅ 陈旧句柄返回 unknown 错误")
}

func TestService_UnknownType(t *testing.T) {
	_, client := pair(t, "unknown", nil)
	client.Types().MustRegister(codec.TypeSpec{
		ID:    999,
		Name:  "client.only",
		New:   func() any { return new(string) },
		Codec: codec.JSON(),
	})

	s := "hi"
	ch := make(chan result, 1)
	_, _, err := client.SendRequest("mem://unknown", types.NewMessage(&s), 0, collect(ch))
	require.NoError(t, err)

	r := wait(t, ch)
	assert.ErrorIs(t, r.err, types.ErrMessageUnknownType)
}

// ============================================================================
//                              参数校验
// ============================================================================

func TestService_SendValidation(t *testing.T) {
	_, client := pair(t, "valid", nil)
	noop := func(interfaces.MessageContext, *types.Message, error) {}

	tests := []struct {
		name string
		fn   func() error
		want error
	}{
		{"空消息", func() error {
			_, _, err := client.SendMessage("mem://valid", nil, 0)
			return err
		}, types.ErrMessageNull},
		{"单向消息不能等待响应", func() error {
			_, _, err := client.SendMessage("mem://valid", types.NewMessage([]byte("x")), types.FlagAwaitResponse)
			return err
		}, types.ErrMessageFlags},
		{"请求不能带响应标志", func() error {
			_, _, err := client.SendRequest("mem://valid", types.NewMessage([]byte("x")), types.FlagResponse, noop)
			return err
		}, types.ErrMessageFlags},
		{"未注册类型", func() error {
			_, _, err := client.SendMessage("mem://valid", types.NewMessage(struct{}{}), 0)
			return err
		}, types.ErrMessageUnknownType},
		{"类型不匹配", func() error {
			_, _, err := client.SendMessage("mem://valid", types.NewMessage(echo{}).WithType(echoTypeID), 0)
			return err
		}, types.ErrBadCast},
		{"无效地址", func() error {
			_, _, err := client.SendMessage("tcp://", types.NewMessage([]byte("x")), 0)
			return err
		}, types.ErrInvalidURL},
		{"mem 地址不能带端口", func() error {
			_, _, err := client.SendMessage("mem://valid:1", types.NewMessage([]byte("x")), 0)
			return err
		}, types.ErrInvalidURL},
		{"未知 scheme", func() error {
			_, _, err := client.SendMessage("udp://host:1", types.NewMessage([]byte("x")), 0)
			return err
		}, types.ErrInvalidURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, types.IsServiceError(err) || types.IsMessageError(err))
		})
	}
}

// ============================================================================
//                              连接池生命周期
// ============================================================================

func TestService_PoolLifecycle(t *testing.T) {
	server, client := pair(t, "life", nil)
	held := make(chan interfaces.MessageContext, 1)
	server.SetHandler(func(ctx interfaces.MessageContext, msg *types.Message) {
		if msg.Flags.Has(types.FlagAwaitResponse) {
			held <- ctx
		}
	})

	id, err := client.CreatePool("mem://life", PoolOptions{MaxActiveConnections: 2})
	require.NoError(t, err)
	_, err = client.CreatePool("mem://life", PoolOptions{})
	assert.ErrorIs(t, err, types.ErrPoolExists)

	r1, err := client.CreateConnection(id)
	require.NoError(t, err)
	r2, err := client.CreateConnection(id)
	require.NoError(t, err)
	assert.NotEqual(t, r1.Conn, r2.Conn)
	_, err = client.CreateConnection(id)
	assert.ErrorIs(t, err, types.ErrTooManyActiveConnections)

	// 按名称发送落在已有连接上
	rid, _, err := client.SendMessage("mem://life", types.NewMessage([]byte("x")), 0)
	require.NoError(t, err)
	assert.Equal(t, id, rid.Pool)
	assert.Contains(t, []types.ConnectionID{r1.Conn, r2.Conn}, rid.Conn)

	_, err = client.CreateConnection(types.PoolID{Index: 7, Generation: 7})
	assert.ErrorIs(t, err, types.ErrPoolUnknown)

	// 保留一个未完成的请求，延迟关闭期间连接池不会被销毁
	ch := make(chan result, 1)
	_, _, err = client.SendRequest("mem://life", types.NewMessage([]byte("wait")), 0, collect(ch))
	require.NoError(t, err)
	var pending interfaces.MessageContext
	select {
	case pending = <-held:
	case <-time.After(5 * time.Second):
		t.Fatal("服务端未收到请求")
	}

	closed := make(chan struct{})
	require.NoError(t, client.DelayClosePool(id, func() { close(closed) }))

	_, _, err = client.SendMessage("mem://life", types.NewMessage([]byte("x")), 0)
	assert.ErrorIs(t, err, types.ErrPoolStopping)
	_, err = client.CreateConnection(id)
	assert.ErrorIs(t, err, types.ErrPoolStopping)

	require.NoError(t, pending.Respond(types.NewMessage([]byte("done")), 0))
	r := wait(t, ch)
	require.NoError(t, r.err, "排空期间在途请求正常完成")
	assert.Equal(t, []byte("done"), r.msg.Payload)

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("延迟关闭未完成")
	}
	_, err = client.Pool(id)
	assert.ErrorIs(t, err, types.ErrPoolUnknown)

	// 销毁后重新引用会创建新的连接池
	rid, _, err = client.SendMessage("mem://life", types.NewMessage([]byte("x")), 0)
	require.NoError(t, err)
	assert.NotEqual(t, id, rid.Pool)

	t.Log("✅ 连接池创建、上限与关闭正确")
}

func TestService_ForceCloseFailsPending(t *testing.T) {
	server, client := pair(t, "force", nil)
	server.SetHandler(func(interfaces.MessageContext, *types.Message) {})

	ch := make(chan result, 4)
	rid, _, err := client.SendRequest("mem://force", types.NewMessage([]byte("a")), 0, collect(ch))
	require.NoError(t, err)
	_, _, err = client.SendRequest("mem://force", types.NewMessage([]byte("b")), 0, collect(ch))
	require.NoError(t, err)

	require.NoError(t, client.ForceClosePool(rid.Pool, nil))
	for i := 0; i < 2; i++ {
		r := wait(t, ch)
		assert.True(t, types.IsConnectionError(r.err), "得到 %v", r.err)
	}
}

func TestService_ParkedActivation(t *testing.T) {
	server, client := pair(t, "park", func(c *config.Config) {
		c.Listen.ActivateOnAccept = false
	})
	server.SetHandler(func(ctx interfaces.MessageContext, msg *types.Message) {
		assert.NoError(t, ctx.Respond(types.NewMessage([]byte("ok")), 0))
	})

	ch := make(chan result, 1)
	_, _, err := client.SendRequest("mem://park", types.NewMessage([]byte("x")), 0, collect(ch))
	require.NoError(t, err)

	var rid types.RecipientID
	require.Eventually(t, func() bool {
		for _, p := range server.Info().Pools {
			if p.Inbound && len(p.Conns) == 1 {
				rid = types.RecipientID{Pool: p.ID, Conn: p.Conns[0].ID}
				return p.Conns[0].State == types.StateConnecting.String()
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	select {
	case r := <-ch:
		t.Fatalf("激活前不应有响应: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}

	activated := make(chan error, 1)
	require.NoError(t, server.NotifyEnterActiveState(rid, func(err error) { activated <- err }))
	select {
	case err := <-activated:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("激活回调未调用")
	}

	r := wait(t, ch)
	require.NoError(t, r.err)
	assert.Equal(t, []byte("ok"), r.msg.Payload)
	assert.ErrorIs(t, server.NotifyEnterActiveState(rid, nil), types.ErrAlreadyActive)

	t.Log("✅ 被动连接激活后才开始收发")
}

func TestService_OneWayAndContext(t *testing.T) {
	server, client := pair(t, "oneway", nil)

	var (
		mu   sync.Mutex
		got  []string
		done = make(chan struct{})
	)
	server.SetHandler(func(ctx interfaces.MessageContext, msg *types.Message) {
		assert.ErrorIs(t, ctx.Respond(types.NewMessage([]byte("no")), 0), types.ErrMessageState, "单向消息不能响应")
		mu.Lock()
		got = append(got, string(msg.Payload.([]byte)))
		n := len(got)
		mu.Unlock()
		if n == 3 {
			close(done)
		}
	})

	for _, s := range []string{"a", "b", "c"} {
		_, _, err := client.SendMessage("mem://oneway", types.NewMessage([]byte(s)), types.FlagSynchronous)
		require.NoError(t, err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("单向消息未全部到达")
	}
	mu.Lock()
	assert.Equal(t, []string{"a", "b", "c"}, got)
	mu.Unlock()
}

func TestService_ContextRequestBack(t *testing.T) {
	server, client := pair(t, "back", nil)

	// 服务端收到消息后在同一连接上反向请求客户端
	back := make(chan result, 1)
	server.SetHandler(func(ctx interfaces.MessageContext, msg *types.Message) {
		x := ctx.(*Context)
		_, err := x.Request(types.NewMessage([]byte("ping")), 0, collect(back))
		assert.NoError(t, err)
	})
	client.SetHandler(func(ctx interfaces.MessageContext, msg *types.Message) {
		assert.Equal(t, "mem://back", ctx.PoolName())
		assert.NoError(t, ctx.Respond(types.NewMessage([]byte("pong")), types.FlagResponseLast))
	})

	_, _, err := client.SendMessage("mem://back", types.NewMessage([]byte("hello")), 0)
	require.NoError(t, err)

	r := wait(t, back)
	require.NoError(t, r.err)
	assert.Equal(t, []byte("pong"), r.msg.Payload)
}

func TestService_RegisterWithoutRelay(t *testing.T) {
	_, client := pair(t, "norelay", nil)

	_, err := client.Register("mem://norelay", "a/b")
	assert.ErrorIs(t, err, types.ErrRelayInvalidName)
	_, err = client.Register("mem://norelay", "")
	assert.ErrorIs(t, err, types.ErrRelayInvalidName)

	rid, err := client.Register("mem://norelay", "svc")
	require.NoError(t, err)

	// 对端未启用中继：注册被拒绝，连接以注册拒绝错误关闭
	require.Eventually(t, func() bool {
		_, _, err := client.lookup(rid)
		return errors.Is(err, types.ErrUnknownConnection)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestService_Stop(t *testing.T) {
	_, client := pair(t, "stop", nil)

	_, _, err := client.SendMessage("mem://stop", types.NewMessage([]byte("x")), 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Stop(ctx))
	require.NoError(t, client.Stop(ctx), "重复停止无副作用")

	_, _, err = client.SendMessage("mem://stop", types.NewMessage([]byte("x")), 0)
	assert.ErrorIs(t, err, types.ErrServiceStopped)
	assert.Eventually(t, func() bool { return client.Info().Connections == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestService_Dump(t *testing.T) {
	server, client := pair(t, "dump", nil)
	server.SetHandler(func(ctx interfaces.MessageContext, msg *types.Message) {
		ctx.Respond(types.NewMessage([]byte("ok")), 0)
	})

	ch := make(chan result, 1)
	_, _, err := client.SendRequest("mem://dump", types.NewMessage([]byte("x")), 0, collect(ch))
	require.NoError(t, err)
	wait(t, ch)

	assert.Equal(t, []string{"mem://dump"}, server.ListenAddrs())

	var buf bytes.Buffer
	require.NoError(t, client.WriteDump(&buf))
	assert.Contains(t, buf.String(), "mem://dump")
	assert.Contains(t, buf.String(), "active")

	info := client.Info()
	require.Len(t, info.Pools, 1)
	assert.False(t, info.Pools[0].Inbound)
	assert.NotEmpty(t, info.Pools[0].Token)
}

// ============================================================================
//                              Fx 模块
// ============================================================================

func TestModule(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) {
		c.Transport.DefaultScheme = "mem"
		c.Transport.EnableMem = true
		c.Listen.Addrs = []string{"mem://fx-module"}
	})

	var svc *Service
	app := fxtest.New(t,
		fx.Supply(cfg),
		transport.Module(),
		conn.Module(),
		Module(),
		fx.Populate(&svc),
	)
	app.RequireStart()
	assert.Equal(t, []string{"mem://fx-module"}, svc.ListenAddrs())
	app.RequireStop()

	_, _, err := svc.SendMessage("mem://fx-module", types.NewMessage([]byte("x")), 0)
	assert.ErrorIs(t, err, types.ErrServiceStopped)
}
