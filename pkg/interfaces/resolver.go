package interfaces

import "context"

// Resolver 名称解析接口
//
// Resolve 将逻辑名称（host 或 host:port）解析为可拨号地址列表（host:port）。
// 解析总是在连接事件循环之外执行。
type Resolver interface {
	Resolve(ctx context.Context, name string) ([]string, error)
}

// ResolverFunc 函数适配器
type ResolverFunc func(ctx context.Context, name string) ([]string, error)

// Resolve 实现 Resolver
func (f ResolverFunc) Resolve(ctx context.Context, name string) ([]string, error) {
	return f(ctx, name)
}
