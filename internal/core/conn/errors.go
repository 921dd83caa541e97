package conn

import (
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/dep2p/go-msgrpc/internal/core/wire"
	"github.com/dep2p/go-msgrpc/pkg/types"
)

var (
	// ErrNoHandler 未提供 Handler
	ErrNoHandler = errors.New("conn: handler is required")

	// ErrNoTransport 既没有拨号函数也没有套接字
	ErrNoTransport = errors.New("conn: dial func or socket is required")
)

// readError 将读协程的错误映射为连接级错误
func readError(err error) error {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		return fmt.Errorf("%w: %v", types.ErrConnectionClosedByPeer, err)
	case errors.Is(err, wire.ErrBadMagic),
		errors.Is(err, wire.ErrBadVersion),
		errors.Is(err, wire.ErrPacketTooLarge),
		errors.Is(err, wire.ErrUnknownCompression),
		errors.Is(err, wire.ErrDecompress),
		errors.Is(err, wire.ErrTruncated),
		errors.Is(err, wire.ErrUnknownKind):
		return fmt.Errorf("%w: %v", types.ErrConnectionProtocol, err)
	}
	return fmt.Errorf("%w: %v", types.ErrConnectionSocket, err)
}

// connectError 将拨号错误映射为连接级错误，已分类的错误原样返回
func connectError(err error) error {
	if types.IsConnectionError(err) {
		return err
	}
	return fmt.Errorf("%w: %v", types.ErrConnectionConnect, err)
}
