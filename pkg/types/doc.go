// Package types 定义 go-msgrpc 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他 msgrpc 内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据。
//
// # 文件组织
//
// 标识类型:
//   - ids.go     - MessageID, ConnectionID, PoolID, RecipientID（代际槽位句柄）
//   - flags.go   - MessageFlags 消息标志位
//
// 数据类型:
//   - message.go    - Message 应用消息
//   - connection.go - ConnectionState 连接状态
//
// 错误:
//   - errors.go - 三层错误分类（连接级 / 消息级 / 服务级）
//
// # 代际句柄
//
// 所有可寻址资源（消息槽位、连接、连接池）都表示为
// (稠密数组下标, 单调递增代数)。句柄同时携带两者，
// 每次解引用时校验代数，从而在不持有全局锁的情况下拒绝陈旧句柄。
package types
