package resolver

import "errors"

var (
	// ErrNotFound 名称没有任何地址
	ErrNotFound = errors.New("resolver: name not found")

	// ErrBadName 名称不是合法的 host:port
	ErrBadName = errors.New("resolver: bad name")
)
