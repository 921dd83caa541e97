package quic

import "errors"

var (
	// ErrTransportClosed 传输已关闭
	ErrTransportClosed = errors.New("quic: transport closed")

	// ErrListenerClosed 监听器已关闭
	ErrListenerClosed = errors.New("quic: listener closed")

	// ErrBadPreamble 对端打开的流没有以前导字节开头
	ErrBadPreamble = errors.New("quic: bad stream preamble")
)
