// Package quic 实现 QUIC 传输
//
// 每条 QUIC 连接只打开一条双向流，作为 Connection 的字节流使用。
// QUIC 自带 TLS 1.3 加密，因此 Secure 返回 true，Connection 跳过自身的 TLS 握手。
//
// 未配置证书时，监听端生成临时自签名证书，拨号端不校验证书；
// 生产环境应通过 Config.Server/Config.Client 提供证书与 CA。
//
// 拨号端打开流后立即写入一个前导字节，使接受端无需等待第一条消息即可完成 Accept。
package quic
