package transport

import "errors"

var (
	// ErrTransportExists 同 scheme 的传输已注册
	ErrTransportExists = errors.New("transport: scheme already registered")

	// ErrNoTransport scheme 没有注册传输
	ErrNoTransport = errors.New("transport: no transport for scheme")
)
