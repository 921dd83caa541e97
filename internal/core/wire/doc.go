// Package wire 实现 msgrpc 的线上格式
//
// 字节流被切分为报文（packet）：
//
//	+-------------+---------+-------+-------------+
//	| magic (u16) | version | flags | length(u32) |   8 字节报文头，大端
//	+-------------+---------+-------+-------------+
//	| record | record | ...                       |   负载（可整体压缩）
//	+---------------------------------------------+
//
// flags 的 bit0 表示负载已压缩，bit1..3 为压缩算法编号。
//
// 每条记录为：
//
//	[kind u8][slot uvarint][generation uvarint][length uvarint][data]
//
// 一条消息由 Begin（信封元数据）、零到多个 Data、一个 End 组成，
// 不同消息的记录可以在同一报文或相邻报文中交错。
// (slot, generation) 为发送方的 MessageID。
package wire
