// Package metrics 提供 msgrpc 的运行指标
//
// 两类指标：
//   - Prometheus 采集器：连接状态、消息与报文计数、连接错误码、中继路由/账本规模
//   - BandwidthCounter：按连接池统计的收发字节与最近 60 秒速率，供诊断输出使用
//
// *Metrics 的全部方法都允许 nil 接收者，未启用指标时调用方无需判空。
//
//	m := metrics.New(nil)
//	m.PacketSent("orders", 1200)
//	http.Handle("/metrics", m.Handler())
package metrics
