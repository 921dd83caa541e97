package resolver

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-msgrpc/config"
	"github.com/dep2p/go-msgrpc/pkg/interfaces"
)

// ============================================================================
//                              测试 DNS 服务器
// ============================================================================

func startDNS(t *testing.T, records map[uint16][]string) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		q := r.Question[0]
		found := false
		for _, s := range records[q.Qtype] {
			rr, err := dns.NewRR(s)
			if err != nil || rr.Header().Name != q.Name {
				continue
			}
			m.Answer = append(m.Answer, rr)
			found = true
		}
		if !found && q.Qtype == dns.TypeA {
			m.Rcode = dns.RcodeNameError
		}
		w.WriteMsg(m)
	})

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go srv.ActivateAndServe()
	<-started
	t.Cleanup(func() { srv.Shutdown() })
	return pc.LocalAddr().String()
}

// ============================================================================
//                              Static
// ============================================================================

func TestStatic(t *testing.T) {
	s := NewStatic(map[string][]string{
		"svc":           {"10.0.0.1", "10.0.0.2:9000"},
		"exact.io:7000": {"10.0.0.3:7001"},
	}, nil)

	got, err := s.Resolve(context.Background(), "svc:4510")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1:4510", "10.0.0.2:9000"}, got)

	got, err = s.Resolve(context.Background(), "exact.io:7000")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.3:7001"}, got)

	_, err = s.Resolve(context.Background(), "missing:1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Resolve(context.Background(), "no-port")
	assert.ErrorIs(t, err, ErrBadName)

	s.Set("late", "10.9.9.9")
	got, err = s.Resolve(context.Background(), "late:1")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.9.9.9:1"}, got)

	t.Log("✅ 静态表解析正确")
}

func TestStatic_FallsThrough(t *testing.T) {
	next := interfaces.ResolverFunc(func(_ context.Context, name string) ([]string, error) {
		return []string{"from-next"}, nil
	})
	s := NewStatic(nil, next)

	got, err := s.Resolve(context.Background(), "other:1")
	require.NoError(t, err)
	assert.Equal(t, []string{"from-next"}, got)
}

// ============================================================================
//                              System
// ============================================================================

func TestSystem_Literal(t *testing.T) {
	s := NewSystem("", time.Second, false)

	got, err := s.Resolve(context.Background(), "127.0.0.1:80")
	require.NoError(t, err)
	assert.Equal(t, []string{"127.0.0.1:80"}, got)

	got, err = s.Resolve(context.Background(), "[::1]:80")
	require.NoError(t, err)
	assert.Equal(t, []string{"[::1]:80"}, got)
}

func TestSystem_CustomServer(t *testing.T) {
	server := startDNS(t, map[uint16][]string{
		dns.TypeA: {"app.test. 60 IN A 10.1.2.3"},
	})
	s := NewSystem(server, 2*time.Second, false)

	got, err := s.Resolve(context.Background(), "app.test:4510")
	require.NoError(t, err)
	assert.Contains(t, got, "10.1.2.3:4510")
}

// ============================================================================
//                              DNS
// ============================================================================

func TestDNS_AAndAAAA(t *testing.T) {
	server := startDNS(t, map[uint16][]string{
		dns.TypeA:    {"node.test. 60 IN A 10.0.0.7"},
		dns.TypeAAAA: {"node.test. 60 IN AAAA fd00::7"},
	})
	d := NewDNS([]string{server}, 2*time.Second, false)

	got, err := d.Resolve(context.Background(), "node.test:4510")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.7:4510", "[fd00::7]:4510"}, got)

	t.Log("✅ A/AAAA 查询正确，IPv4 在前")
}

func TestDNS_SRV(t *testing.T) {
	server := startDNS(t, map[uint16][]string{
		dns.TypeSRV: {
			"_msgrpc._tcp.svc.test. 60 IN SRV 20 0 7002 b.svc.test.",
			"_msgrpc._tcp.svc.test. 60 IN SRV 10 0 7001 a.svc.test.",
		},
		dns.TypeA: {
			"a.svc.test. 60 IN A 10.0.1.1",
			"b.svc.test. 60 IN A 10.0.1.2",
		},
	})
	d := NewDNS([]string{server}, 2*time.Second, true)

	got, err := d.Resolve(context.Background(), "svc.test:4510")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.1.1:7001", "10.0.1.2:7002"}, got, "按优先级排序并使用 SRV 端口")

	// 没有 SRV 记录时回退到 A
	got, err = d.Resolve(context.Background(), "a.svc.test:4510")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.1.1:4510"}, got)

	t.Log("✅ SRV 查询与回退正确")
}

func TestDNS_NotFound(t *testing.T) {
	server := startDNS(t, nil)
	d := NewDNS([]string{server}, 2*time.Second, false)

	_, err := d.Resolve(context.Background(), "nope.test:1")
	assert.ErrorIs(t, err, ErrNotFound)
}

// ============================================================================
//                              Cached
// ============================================================================

func TestCached(t *testing.T) {
	var calls atomic.Int32
	next := interfaces.ResolverFunc(func(_ context.Context, name string) ([]string, error) {
		calls.Add(1)
		if name == "bad:1" {
			return nil, errors.New("boom")
		}
		return []string{"10.0.0.1:1"}, nil
	})
	c := NewCached(next, 8, time.Hour)

	for i := 0; i < 3; i++ {
		got, err := c.Resolve(context.Background(), "good:1")
		require.NoError(t, err)
		assert.Equal(t, []string{"10.0.0.1:1"}, got)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, c.Len())

	// 失败不缓存
	_, err := c.Resolve(context.Background(), "bad:1")
	assert.Error(t, err)
	_, err = c.Resolve(context.Background(), "bad:1")
	assert.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())

	c.Purge()
	_, err = c.Resolve(context.Background(), "good:1")
	require.NoError(t, err)
	assert.Equal(t, int32(4), calls.Load())

	t.Log("✅ 缓存只保存成功结果")
}

func TestCached_Expiry(t *testing.T) {
	var calls atomic.Int32
	next := interfaces.ResolverFunc(func(context.Context, string) ([]string, error) {
		calls.Add(1)
		return []string{"10.0.0.1:1"}, nil
	})
	c := NewCached(next, 8, 20*time.Millisecond)

	_, err := c.Resolve(context.Background(), "h:1")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		_, err := c.Resolve(context.Background(), "h:1")
		return err == nil && calls.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCached_Singleflight(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	next := interfaces.ResolverFunc(func(context.Context, string) ([]string, error) {
		calls.Add(1)
		<-release
		return []string{"10.0.0.1:1"}, nil
	})
	c := NewCached(next, 8, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Resolve(context.Background(), "h:1")
		}()
	}
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

// ============================================================================
//                              New
// ============================================================================

func TestNew(t *testing.T) {
	cfg := config.DefaultResolverConfig()
	cfg.Mode = "static"
	cfg.Static = map[string][]string{"svc": {"10.0.0.1"}}
	r, err := New(cfg)
	require.NoError(t, err)
	_, ok := r.(*Static)
	assert.True(t, ok, "静态模式不加缓存")

	got, err := r.Resolve(context.Background(), "svc:4510")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1:4510"}, got)

	cfg = config.DefaultResolverConfig()
	r, err = New(cfg)
	require.NoError(t, err)
	_, ok = r.(*Cached)
	assert.True(t, ok)

	cfg.Mode = "dns"
	_, err = New(cfg)
	assert.Error(t, err, "dns 模式需要服务器")
}
