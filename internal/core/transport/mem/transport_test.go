package mem

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransport_ListenDial(t *testing.T) {
	tr := New()
	defer tr.Close()

	l, err := tr.Listen(context.Background(), "svc")
	require.NoError(t, err)
	assert.Equal(t, "svc", l.Addr().String())
	assert.Equal(t, "mem", l.Addr().Network())

	accepted := make(chan net.Conn, 1)
	go func() {
		nc, err := l.Accept()
		if err == nil {
			accepted <- nc
		}
	}()

	client, err := tr.Dial(context.Background(), "svc")
	require.NoError(t, err)
	defer client.Close()
	server := <-accepted
	defer server.Close()

	assert.Equal(t, "svc", client.RemoteAddr().String())

	go client.Write([]byte("hello"))
	buf := make([]byte, 5)
	_, err = io.ReadFull(server, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))

	t.Log("✅ 进程内管道收发成功")
}

func TestTransport_Errors(t *testing.T) {
	tr := New()
	defer tr.Close()

	_, err := tr.Dial(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNoListener)

	l, err := tr.Listen(context.Background(), "dup")
	require.NoError(t, err)
	_, err = tr.Listen(context.Background(), "dup")
	assert.ErrorIs(t, err, ErrListenerExists)

	require.NoError(t, l.Close())
	_, err = l.Accept()
	assert.ErrorIs(t, err, ErrListenerClosed)

	// 名称释放后可以重新监听
	l2, err := tr.Listen(context.Background(), "dup")
	require.NoError(t, err)
	l2.Close()

	t.Log("✅ 错误场景正确")
}

func TestTransport_DialContext(t *testing.T) {
	tr := New()
	defer tr.Close()

	_, err := tr.Listen(context.Background(), "slow")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = tr.Dial(ctx, "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
