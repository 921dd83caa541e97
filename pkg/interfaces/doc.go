// Package interfaces 定义 go-msgrpc 的公共接口
//
// 本包只定义被核心层消费的抽象能力，具体实现位于 internal/core 下：
//   - transport.go   - 异步套接字能力（拨号/监听，按 URL scheme 选择）
//   - resolver.go    - 名称解析
//   - compressor.go  - 可插拔负载压缩
//   - message.go     - 应用侧消息上下文与回调
//
// 接口遵循"一个接口文件 = 一个实现目录"的约定。
package interfaces
