// Package ws 实现 WebSocket 传输
//
// 每条 WebSocket 连接承载一条字节流：写入的数据作为二进制消息发送，
// 读取时依次拼接收到的二进制消息。URL scheme 为 "ws"，HTTP 路径固定为 Path。
// 需要加密时由 Connection 在其上执行 TLS 握手，与 tcp 一致。
package ws
