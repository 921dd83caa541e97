// Package resolver 将接收者 URL 中的主机名解析为可拨号地址
//
// 输入为 host:port，输出为 ip:port 列表。提供以下实现：
//
//   - Static: 静态名称表，常用于测试与固定拓扑
//   - System: 操作系统解析器（net.Resolver），可选 SRV 查询
//   - DNS: 直接向指定 DNS 服务器查询（miekg/dns），先查
//     _msgrpc._tcp.<host> SRV 记录，再查 A/AAAA
//   - Cached: 过期 LRU 缓存 + singleflight 合并并发查询
//
// New 按 config.ResolverConfig 组合：Static 优先，其次按模式查询，外层缓存。
// IP 字面量永远不查询，原样返回。
//
// 解析总在连接的拨号协程中执行，不会阻塞连接事件循环。
package resolver
