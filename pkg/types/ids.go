package types

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// ErrInvalidToken 无效的句柄令牌
var ErrInvalidToken = errors.New("invalid handle token")

// ============================================================================
//                              MessageID - 消息句柄
// ============================================================================

// MessageID 消息在某条连接多路复用表中的句柄
//
// Index 为槽位下标，Generation 为槽位代数。槽位释放时代数递增，
// 因此引用已完成/已销毁消息的陈旧句柄会被识别并拒绝。
// 代数从 1 开始，零值表示无效句柄。
type MessageID struct {
	Index      uint32
	Generation uint32
}

// IsValid 检查句柄是否有效（非零值）
func (id MessageID) IsValid() bool {
	return id.Generation != 0
}

// String 返回可读表示
func (id MessageID) String() string {
	if !id.IsValid() {
		return "msg(-)"
	}
	return fmt.Sprintf("msg(%d:%d)", id.Index, id.Generation)
}

// Token 返回 Base58 编码的句柄令牌
func (id MessageID) Token() string {
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[0:4], id.Index)
	binary.BigEndian.PutUint32(buf[4:8], id.Generation)
	return base58.Encode(buf[:])
}

// ParseMessageToken 解析 MessageID 令牌
func ParseMessageToken(s string) (MessageID, error) {
	b, err := base58.Decode(s)
	if err != nil || len(b) != 8 {
		return MessageID{}, ErrInvalidToken
	}
	return MessageID{
		Index:      binary.BigEndian.Uint32(b[0:4]),
		Generation: binary.BigEndian.Uint32(b[4:8]),
	}, nil
}

// ============================================================================
//                              ConnectionID - 连接句柄
// ============================================================================

// ConnectionID 连接在服务连接表中的句柄
type ConnectionID struct {
	Index      uint32
	Generation uint32
}

// IsValid 检查句柄是否有效
func (id ConnectionID) IsValid() bool {
	return id.Generation != 0
}

// String 返回可读表示
func (id ConnectionID) String() string {
	if !id.IsValid() {
		return "conn(-)"
	}
	return fmt.Sprintf("conn(%d:%d)", id.Index, id.Generation)
}

// ============================================================================
//                              PoolID - 连接池句柄
// ============================================================================

// PoolID 连接池在服务池表中的句柄
type PoolID struct {
	Index      uint32
	Generation uint32
}

// IsValid 检查句柄是否有效
func (id PoolID) IsValid() bool {
	return id.Generation != 0
}

// String 返回可读表示
func (id PoolID) String() string {
	if !id.IsValid() {
		return "pool(-)"
	}
	return fmt.Sprintf("pool(%d:%d)", id.Index, id.Generation)
}

// ============================================================================
//                              RecipientID - 接收者句柄
// ============================================================================

// RecipientID 表示某个交换"继续发往何处"
//
// 连接关闭后失效：连接代数不再与存活连接匹配。
type RecipientID struct {
	Pool PoolID
	Conn ConnectionID
}

// IsValid 检查句柄是否有效
func (r RecipientID) IsValid() bool {
	return r.Pool.IsValid() && r.Conn.IsValid()
}

// String 返回可读表示
func (r RecipientID) String() string {
	return r.Pool.String() + "/" + r.Conn.String()
}

// Token 返回 Base58 编码的句柄令牌（用于诊断输出与命令行）
func (r RecipientID) Token() string {
	var buf [16]byte
	binary.BigEndian.PutUint32(buf[0:4], r.Pool.Index)
	binary.BigEndian.PutUint32(buf[4:8], r.Pool.Generation)
	binary.BigEndian.PutUint32(buf[8:12], r.Conn.Index)
	binary.BigEndian.PutUint32(buf[12:16], r.Conn.Generation)
	return base58.Encode(buf[:])
}

// ParseRecipientToken 解析 RecipientID 令牌
func ParseRecipientToken(s string) (RecipientID, error) {
	b, err := base58.Decode(s)
	if err != nil || len(b) != 16 {
		return RecipientID{}, ErrInvalidToken
	}
	return RecipientID{
		Pool: PoolID{
			Index:      binary.BigEndian.Uint32(b[0:4]),
			Generation: binary.BigEndian.Uint32(b[4:8]),
		},
		Conn: ConnectionID{
			Index:      binary.BigEndian.Uint32(b[8:12]),
			Generation: binary.BigEndian.Uint32(b[12:16]),
		},
	}, nil
}
