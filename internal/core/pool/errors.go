package pool

import "errors"

var (
	// ErrNoDialer 入站连接池不能主动建立连接
	ErrNoDialer = errors.New("pool: inbound pool cannot dial")

	// ErrAlreadyStarted 服务已经启动
	ErrAlreadyStarted = errors.New("pool: service already started")
)
