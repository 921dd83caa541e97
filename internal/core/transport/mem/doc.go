// Package mem 实现进程内传输
//
// 监听地址是任意名称，拨号通过 net.Pipe 与同一 Transport 上同名的监听器配对。
// 名称不经过解析，适合测试与同进程内的组件通信。
package mem
