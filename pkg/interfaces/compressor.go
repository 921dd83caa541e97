package interfaces

// Compressor 可插拔报文压缩接口
//
// 压缩在整个报文负载上进行；报文头记录算法 ID，接收方据此选择解压器。
type Compressor interface {
	// Name 压缩算法名称
	Name() string

	// ID 报文头中的算法编号（1..7）
	ID() uint8

	// Compress 将 src 压缩到 dst（容量不足时重新分配）
	//
	// 返回 nil 表示不值得压缩，打包器会透明地发送原始数据。
	Compress(dst, src []byte) []byte

	// Decompress 解压 src，结果长度超过 maxSize 时返回错误
	Decompress(dst, src []byte, maxSize int) ([]byte, error)
}
