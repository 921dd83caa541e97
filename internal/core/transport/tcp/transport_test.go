package tcp

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransport_Basics(t *testing.T) {
	tr := New(DefaultConfig())
	defer tr.Close()

	assert.Equal(t, "tcp", tr.Scheme())
	assert.False(t, tr.Secure())

	t.Log("✅ scheme 与安全属性正确")
}

func TestTransport_ListenAndDial(t *testing.T) {
	tr := New(DefaultConfig())
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	l, err := tr.Listen(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	assert.Equal(t, 1, tr.ListenerCount())

	accepted := make(chan net.Conn, 1)
	go func() {
		nc, err := l.Accept()
		if err == nil {
			accepted <- nc
		}
	}()

	nc, err := tr.Dial(ctx, l.Addr().String())
	require.NoError(t, err)
	defer nc.Close()

	var server net.Conn
	select {
	case server = <-accepted:
	case <-ctx.Done():
		t.Fatal("accept timeout")
	}
	defer server.Close()

	_, err = nc.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(server, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))

	t.Log("✅ 监听与拨号成功")
}

func TestTransport_MaxInbound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxInbound = 1
	tr := New(cfg)
	defer tr.Close()

	l, err := tr.Listen(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)

	nc, err := tr.Dial(context.Background(), l.Addr().String())
	require.NoError(t, err)
	defer nc.Close()

	first, err := l.Accept()
	require.NoError(t, err)

	nc2, err := tr.Dial(context.Background(), l.Addr().String())
	require.NoError(t, err)
	defer nc2.Close()

	second := make(chan net.Conn, 1)
	go func() {
		c, err := l.Accept()
		if err == nil {
			second <- c
		}
	}()

	select {
	case c := <-second:
		c.Close()
		t.Fatal("second accept should block while the first is held")
	case <-time.After(100 * time.Millisecond):
	}

	first.Close()
	select {
	case c := <-second:
		c.Close()
	case <-time.After(5 * time.Second):
		t.Fatal("second accept should proceed after the first closes")
	}

	l.Close()
	t.Log("✅ 入站连接上限生效")
}

func TestTransport_Close(t *testing.T) {
	tr := New(DefaultConfig())

	l, err := tr.Listen(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)

	require.NoError(t, tr.Close())
	assert.Equal(t, 0, tr.ListenerCount())

	_, err = l.Accept()
	assert.Error(t, err)

	_, err = tr.Dial(context.Background(), "127.0.0.1:1")
	assert.ErrorIs(t, err, ErrTransportClosed)

	_, err = tr.Listen(context.Background(), "127.0.0.1:0")
	assert.ErrorIs(t, err, ErrTransportClosed)

	assert.NoError(t, tr.Close())
	t.Log("✅ 关闭传输后拒绝操作")
}

func TestTransport_DialRefused(t *testing.T) {
	tr := New(DefaultConfig())
	defer tr.Close()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = tr.Dial(ctx, addr)
	assert.Error(t, err)
}
