package quic

import (
	"errors"
	"io"
	"net"

	"github.com/quic-go/quic-go"
)

// preamble 拨号端写入的首字节
const preamble byte = 'm'

// streamConn 将 QUIC 连接上唯一的双向流适配为 net.Conn
type streamConn struct {
	quic.Stream
	qc quic.Connection
}

var _ net.Conn = (*streamConn)(nil)

// Read 对端正常关闭连接时返回 io.EOF
func (c *streamConn) Read(b []byte) (int, error) {
	n, err := c.Stream.Read(b)
	if err != nil && isPeerClose(err) {
		err = io.EOF
	}
	return n, err
}

func (c *streamConn) LocalAddr() net.Addr  { return c.qc.LocalAddr() }
func (c *streamConn) RemoteAddr() net.Addr { return c.qc.RemoteAddr() }

// Close 关闭流与所属的 QUIC 连接
func (c *streamConn) Close() error {
	err := c.Stream.Close()
	if cerr := c.qc.CloseWithError(0, ""); err == nil {
		err = cerr
	}
	return err
}

func isPeerClose(err error) bool {
	var appErr *quic.ApplicationError
	return errors.As(err, &appErr) && appErr.Remote && appErr.ErrorCode == 0
}
