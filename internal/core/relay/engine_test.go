package relay

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-msgrpc/config"
	"github.com/dep2p/go-msgrpc/internal/core/conn"
	"github.com/dep2p/go-msgrpc/internal/core/pool"
	"github.com/dep2p/go-msgrpc/internal/core/transport"
	"github.com/dep2p/go-msgrpc/internal/core/transport/mem"
	"github.com/dep2p/go-msgrpc/pkg/interfaces"
	"github.com/dep2p/go-msgrpc/pkg/types"
)

// ============================================================================
//                              测试辅助
// ============================================================================

func newNode(t *testing.T, tr *mem.Transport, listen ...string) *pool.Service {
	t.Helper()

	cfg := config.NewConfig()
	require.NoError(t, config.ApplyPreset(cfg, config.PresetTest))
	cfg.Listen.Addrs = listen

	reg, err := transport.NewRegistry(mem.Scheme, 0, tr)
	require.NoError(t, err)

	svc, err := pool.New(pool.Options{
		Config:    cfg,
		Conn:      conn.FromConfig(cfg.Connection),
		Transport: reg,
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

// newRelay 创建监听 mem://name 并挂接中继引擎的节点
func newRelay(t *testing.T, tr *mem.Transport, name string, mutate func(*config.RelayConfig)) (*pool.Service, *Engine) {
	t.Helper()

	rc := config.DefaultRelayConfig()
	rc.Enable = true
	rc.Shards = 4
	if mutate != nil {
		mutate(&rc)
	}
	eng, err := NewEngine(rc, nil)
	require.NoError(t, err)

	svc := newNode(t, tr, "mem://"+name)
	eng.Attach(svc)
	return svc, eng
}

// register 以 name 注册并等待中继路由生效
func register(t *testing.T, svc *pool.Service, relayURL, name string, eng *Engine) types.RecipientID {
	t.Helper()
	rid, err := svc.Register(relayURL, name)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := eng.Lookup(name)
		return ok
	}, 5*time.Second, 10*time.Millisecond)
	return rid
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

func echoHandler(t *testing.T) interfaces.MessageHandler {
	return func(ctx interfaces.MessageContext, msg *types.Message) {
		assert.True(t, msg.Flags.Has(types.FlagOnPeer|types.FlagRelayed), "flags=%s", msg.Flags)
		reply := types.NewMessage(msg.Payload).WithHeader(msg.Header)
		assert.NoError(t, ctx.Respond(reply, types.FlagResponse))
	}
}

// ============================================================================
//                              路由
// ============================================================================

func TestEngine_RelayedRoundTrip(t *testing.T) {
	tr := mem.New()
	_, eng := newRelay(t, tr, "relay", nil)

	b := newNode(t, tr)
	b.SetHandler(echoHandler(t))
	register(t, b, "mem://relay", "b", eng)

	a := newNode(t, tr)
	ch := make(chan result, 1)
	_, _, err := a.SendRequest("mem://relay#b", types.NewMessage([]byte("hello")).WithHeader([]byte("h")), 0, collect(ch))
	require.NoError(t, err)

	r := wait(t, ch)
	require.NoError(t, r.err)
	assert.Equal(t, []byte("hello"), r.msg.Payload)
	assert.Equal(t, []byte("h"), r.msg.Header)
	assert.True(t, r.msg.Flags.Has(types.FlagResponse|types.FlagRelayed|types.FlagOnPeer))

	require.Eventually(t, func() bool { return eng.Pending() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, eng.Dump().Forwarded, uint64(2))

	t.Log("✅ 经中继的请求响应往返正确")
}

func TestEngine_OneWay(t *testing.T) {
	tr := mem.New()
	_, eng := newRelay(t, tr, "relay", nil)

	got := make(chan *types.Message, 1)
	b := newNode(t, tr)
	b.SetHandler(func(_ interfaces.MessageContext, msg *types.Message) { got <- msg })
	register(t, b, "mem://relay", "b", eng)

	a := newNode(t, tr)
	_, _, err := a.SendMessage("mem://relay#b", types.NewMessage([]byte("note")), 0)
	require.NoError(t, err)

	select {
	case msg := <-got:
		assert.Equal(t, []byte("note"), msg.Payload)
		assert.True(t, msg.Flags.Has(types.FlagOnPeer|types.FlagRelayed))
		assert.False(t, msg.Flags.Has(types.FlagAwaitResponse))
	case <-time.After(5 * time.Second):
		t.Fatal("单向消息未到达")
	}
	assert.Equal(t, 0, eng.Pending(), "单向消息不进账本")
}

func TestEngine_MultiHop(t *testing.T) {
	tr := mem.New()
	_, eng1 := newRelay(t, tr, "r1", nil)
	r2, eng2 := newRelay(t, tr, "r2", nil)

	// r2 以 "r2" 注册到 r1，b 以 "b" 注册到 r2
	register(t, r2, "mem://r1", "r2", eng1)
	b := newNode(t, tr)
	b.SetHandler(echoHandler(t))
	register(t, b, "mem://r2", "b", eng2)

	a := newNode(t, tr)
	large := bytes.Repeat([]byte("0123456789abcdef"), 16<<10) // 256KB，远大于单个报文

	tests := []struct {
		name    string
		payload []byte
	}{
		{"小于一个报文", []byte("tiny")},
		{"跨越多个报文", large},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := make(chan result, 1)
			_, _, err := a.SendRequest("mem://r1#r2/b", types.NewMessage(tt.payload), 0, collect(ch))
			require.NoError(t, err)

			r := wait(t, ch)
			require.NoError(t, r.err)
			assert.True(t, bytes.Equal(tt.payload, r.msg.Payload.([]byte)))
		})
	}

	require.Eventually(t, func() bool {
		return eng1.Pending() == 0 && eng2.Pending() == 0
	}, 5*time.Second, 10*time.Millisecond)

	t.Log("✅ 两跳中继往返，负载不变")
}

func TestEngine_SplitResponseThroughRelay(t *testing.T) {
	tr := mem.New()
	_, eng := newRelay(t, tr, "relay", nil)

	b := newNode(t, tr)
	b.SetHandler(func(ctx interfaces.MessageContext, msg *types.Message) {
		for i := 0; i < 3; i++ {
			assert.NoError(t, ctx.Respond(types.NewMessage([]byte{byte('a' + i)}), types.FlagResponsePart))
		}
		assert.NoError(t, ctx.Respond(types.NewMessage([]byte("z")), types.FlagResponseLast))
	})
	register(t, b, "mem://relay", "b", eng)

	a := newNode(t, tr)
	ch := make(chan result, 8)
	_, _, err := a.SendRequest("mem://relay#b", types.NewMessage([]byte("go")), 0, collect(ch))
	require.NoError(t, err)

	var got []byte
	for i := 0; i < 4; i++ {
		r := wait(t, ch)
		require.NoError(t, r.err)
		got = append(got, r.msg.Payload.([]byte)...)
		if i == 3 {
			assert.True(t, r.msg.Flags.Has(types.FlagResponseLast))
		} else {
			assert.True(t, r.msg.Flags.Has(types.FlagResponsePart))
		}
	}
	assert.Equal(t, "abcz", string(got))
	require.Eventually(t, func() bool { return eng.Pending() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestEngine_UnknownName(t *testing.T) {
	tr := mem.New()
	_, eng := newRelay(t, tr, "relay", nil)
	a := newNode(t, tr)

	ch := make(chan result, 1)
	_, _, err := a.SendRequest("mem://relay#nobody", types.NewMessage([]byte("x")), 0, collect(ch))
	require.NoError(t, err)

	r := wait(t, ch)
	assert.ErrorIs(t, r.err, types.ErrRelayUnknownName)
	assert.ErrorIs(t, r.err, types.ErrMessageCanceledByPeer)
	assert.Equal(t, uint64(1), eng.Dump().Rejected)
}

func TestEngine_NotRelayNode(t *testing.T) {
	tr := mem.New()
	newNode(t, tr, "mem://plain")
	a := newNode(t, tr)

	ch := make(chan result, 1)
	_, _, err := a.SendRequest("mem://plain#b", types.NewMessage([]byte("x")), 0, collect(ch))
	require.NoError(t, err)
	assert.ErrorIs(t, wait(t, ch).err, types.ErrRelayUnknownName)
}

// ============================================================================
//                              取消与关闭传播
// ============================================================================

func TestEngine_TargetForceClose(t *testing.T) {
	const n = 5
	tr := mem.New()
	_, eng := newRelay(t, tr, "relay", nil)

	var arrived atomic.Int32
	b := newNode(t, tr)
	b.SetHandler(func(interfaces.MessageContext, *types.Message) { arrived.Add(1) })
	rid := register(t, b, "mem://relay", "b", eng)

	a := newNode(t, tr)
	var calls [n]atomic.Int32
	errs := make(chan error, n*2)
	for i := 0; i < n; i++ {
		i := i
		_, _, err := a.SendRequest("mem://relay#b", types.NewMessage([]byte("wait")), 0,
			func(_ interfaces.MessageContext, _ *types.Message, err error) {
				calls[i].Add(1)
				errs <- err
			})
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool {
		return arrived.Load() == n && eng.Pending() == n
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, b.ForceClosePool(rid.Pool, nil))

	for i := 0; i < n; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, types.ErrMessageCanceledByPeer)
		case <-time.After(5 * time.Second):
			t.Fatalf("只收到 %d 个完成", i)
		}
	}
	time.Sleep(100 * time.Millisecond)
	for i := range calls {
		assert.Equal(t, int32(1), calls[i].Load(), "第 %d 条消息恰好完成一次", i)
	}
	assert.Empty(t, errs)
	assert.Equal(t, 0, eng.Pending())

	assert.Eventually(t, func() bool {
		_, ok := eng.Lookup("b")
		return !ok
	}, 5*time.Second, 10*time.Millisecond, "目标关闭后路由删除")

	t.Log("✅ 目标强制关闭，每条中继消息恰好一次以对端取消结束")
}

func TestEngine_Reregister(t *testing.T) {
	tr := mem.New()
	_, eng := newRelay(t, tr, "relay", nil)

	var arrived atomic.Int32
	b1 := newNode(t, tr)
	b1.SetHandler(func(interfaces.MessageContext, *types.Message) { arrived.Add(1) })
	register(t, b1, "mem://relay", "b", eng)
	old, _ := eng.Lookup("b")

	a := newNode(t, tr)
	ch := make(chan result, 2)
	_, _, err := a.SendRequest("mem://relay#b", types.NewMessage([]byte("first")), 0, collect(ch))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return arrived.Load() == 1 && eng.Pending() == 1 }, 5*time.Second, 10*time.Millisecond)

	b2 := newNode(t, tr)
	b2.SetHandler(echoHandler(t))
	_, err = b2.Register("mem://relay", "b")
	require.NoError(t, err)

	r := wait(t, ch)
	assert.ErrorIs(t, r.err, types.ErrMessageCanceledByPeer, "旧连接上的在途条目失败")
	cur, ok := eng.Lookup("b")
	require.True(t, ok)
	assert.NotEqual(t, old, cur)
	assert.Equal(t, 0, eng.Pending())

	_, _, err = a.SendRequest("mem://relay#b", types.NewMessage([]byte("second")), 0, collect(ch))
	require.NoError(t, err)
	r = wait(t, ch)
	require.NoError(t, r.err)
	assert.Equal(t, []byte("second"), r.msg.Payload)

	t.Log("✅ 重新注册替换路由并使旧条目失败")
}

func TestEngine_OriginCancel(t *testing.T) {
	tr := mem.New()
	_, eng := newRelay(t, tr, "relay", nil)

	var arrived atomic.Int32
	b := newNode(t, tr)
	b.SetHandler(func(interfaces.MessageContext, *types.Message) { arrived.Add(1) })
	register(t, b, "mem://relay", "b", eng)

	a := newNode(t, tr)
	ch := make(chan result, 2)
	rid, id, err := a.SendRequest("mem://relay#b", types.NewMessage([]byte("x")), 0, collect(ch))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return arrived.Load() == 1 && eng.Pending() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, a.CancelMessage(rid, id))
	assert.ErrorIs(t, wait(t, ch).err, types.ErrMessageCanceled)
	require.Eventually(t, func() bool { return eng.Pending() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestEngine_OriginClose(t *testing.T) {
	tr := mem.New()
	_, eng := newRelay(t, tr, "relay", nil)

	var arrived atomic.Int32
	b := newNode(t, tr)
	b.SetHandler(func(interfaces.MessageContext, *types.Message) { arrived.Add(1) })
	register(t, b, "mem://relay", "b", eng)

	a := newNode(t, tr)
	ch := make(chan result, 1)
	rid, _, err := a.SendRequest("mem://relay#b", types.NewMessage([]byte("x")), 0, collect(ch))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return eng.Pending() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, a.ForceClosePool(rid.Pool, nil))
	assert.True(t, types.IsConnectionError(wait(t, ch).err))
	require.Eventually(t, func() bool { return eng.Pending() == 0 }, 5*time.Second, 10*time.Millisecond)

	_, ok := eng.Lookup("b")
	assert.True(t, ok, "来源关闭不影响目标路由")
}

// ============================================================================
//                              限流与诊断
// ============================================================================

func TestEngine_PendingLimit(t *testing.T) {
	tr := mem.New()
	_, eng := newRelay(t, tr, "relay", func(rc *config.RelayConfig) {
		rc.MaxPendingPerConn = 1
	})

	b := newNode(t, tr)
	b.SetHandler(func(interfaces.MessageContext, *types.Message) {})
	register(t, b, "mem://relay", "b", eng)

	a := newNode(t, tr)
	ch := make(chan result, 2)
	_, _, err := a.SendRequest("mem://relay#b", types.NewMessage([]byte("1")), 0, collect(ch))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return eng.Pending() == 1 }, 5*time.Second, 10*time.Millisecond)

	_, _, err = a.SendRequest("mem://relay#b", types.NewMessage([]byte("2")), 0, collect(ch))
	require.NoError(t, err)
	r := wait(t, ch)
	assert.ErrorIs(t, r.err, types.ErrMessageCanceledByPeer)
	assert.Equal(t, 1, eng.Pending())
}

func TestEngine_WriteDump(t *testing.T) {
	tr := mem.New()
	_, eng := newRelay(t, tr, "relay", nil)

	b := newNode(t, tr)
	b.SetHandler(func(interfaces.MessageContext, *types.Message) {})
	register(t, b, "mem://relay", "svc-b", eng)

	a := newNode(t, tr)
	_, _, err := a.SendRequest("mem://relay#svc-b", types.NewMessage([]byte("x")), 0,
		func(interfaces.MessageContext, *types.Message, error) {})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		l := eng.Dump().Ledger
		return len(l) == 1 && l[0].TargetMsg.IsValid()
	}, 5*time.Second, 10*time.Millisecond)

	var buf bytes.Buffer
	require.NoError(t, eng.WriteDump(&buf))
	out := buf.String()
	assert.Contains(t, out, "routes=1")
	assert.Contains(t, out, "pending=1")
	assert.Contains(t, out, "svc-b")

	info := eng.Dump()
	require.Len(t, info.Ledger, 1)
	assert.Equal(t, "svc-b", info.Ledger[0].Name)
	require.Len(t, info.Routes, 1)
	assert.Equal(t, info.Ledger[0].Target, info.Routes[0].Conn)
}

func TestEngine_NotAttached(t *testing.T) {
	eng, err := NewEngine(config.DefaultRelayConfig(), nil)
	require.NoError(t, err)
	assert.False(t, eng.Attached())
	assert.True(t, errors.Is(eng.Forward(nil, nil), ErrNotAttached))

	bad := config.DefaultRelayConfig()
	bad.Shards = 0
	_, err = NewEngine(bad, nil)
	assert.Error(t, err)
}
