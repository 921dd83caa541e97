package relay

import "errors"

var (
	// ErrNotAttached 引擎尚未挂接到服务
	ErrNotAttached = errors.New("relay: engine not attached")

	// ErrBandwidthExceeded 超过转发带宽上限
	ErrBandwidthExceeded = errors.New("relay: bandwidth exceeded")

	// ErrTooManyPending 在途中继请求过多
	ErrTooManyPending = errors.New("relay: too many pending requests")
)
