package codec

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"sync"

	"github.com/dep2p/go-msgrpc/pkg/interfaces"
	"github.com/dep2p/go-msgrpc/pkg/types"
)

// BytesTypeID 内置原始字节类型 ID（[]byte 与 io.Reader 流式负载）
const BytesTypeID uint32 = 1

var (
	// ErrTypeExists 类型 ID 或 Go 类型已注册
	ErrTypeExists = errors.New("codec: type already registered")

	// ErrInvalidTypeSpec 无效的类型描述
	ErrInvalidTypeSpec = errors.New("codec: invalid type spec")
)

// TypeSpec 已注册的消息类型
type TypeSpec struct {
	// ID 线上类型 ID（非 0）
	ID uint32

	// Name 类型名称（诊断用）
	Name string

	// New 构造解码目标
	New func() any

	// Type 负载 Go 类型（为空时由 New() 推导）
	Type reflect.Type

	// Codec 编解码器
	Codec Codec

	// OnMessage 入站消息回调（可为空）
	OnMessage interfaces.MessageHandler
}

// Encoded 编码结果
type Encoded struct {
	// TypeID 线上类型 ID
	TypeID uint32
	// Data 已编码的负载
	Data []byte
	// Stream 流式负载（与 Data 互斥）
	Stream io.Reader
}

// Registry 类型注册表，并发安全
type Registry struct {
	mu     sync.RWMutex
	byID   map[uint32]*TypeSpec
	byType map[reflect.Type]*TypeSpec
}

// NewRegistry 创建注册表，预置 BytesTypeID
func NewRegistry() *Registry {
	r := &Registry{
		byID:   make(map[uint32]*TypeSpec),
		byType: make(map[reflect.Type]*TypeSpec),
	}
	r.MustRegister(TypeSpec{
		ID:    BytesTypeID,
		Name:  "msgrpc.bytes",
		New:   func() any { return new([]byte) },
		Type:  reflect.TypeOf([]byte(nil)),
		Codec: Bytes(),
	})
	return r
}

// Register 注册类型
func (r *Registry) Register(spec TypeSpec) error {
	if spec.ID == 0 || spec.Codec == nil || spec.New == nil {
		return ErrInvalidTypeSpec
	}
	if spec.Type == nil {
		v := spec.New()
		if v == nil {
			return ErrInvalidTypeSpec
		}
		spec.Type = reflect.TypeOf(v)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[spec.ID]; ok {
		return fmt.Errorf("%w: id %d", ErrTypeExists, spec.ID)
	}
	if _, ok := r.byType[spec.Type]; ok {
		return fmt.Errorf("%w: %s", ErrTypeExists, spec.Type)
	}
	s := spec
	r.byID[s.ID] = &s
	r.byType[s.Type] = &s
	return nil
}

// MustRegister 注册类型，出错时 panic
func (r *Registry) MustRegister(spec TypeSpec) {
	if err := r.Register(spec); err != nil {
		panic(err)
	}
}

// Handle 为已注册类型设置接收回调
func (r *Registry) Handle(id uint32, fn interfaces.MessageHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return types.ErrMessageUnknownType
	}
	s.OnMessage = fn
	return nil
}

// Lookup 按类型 ID 查找
func (r *Registry) Lookup(id uint32) (TypeSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byID[id]
	if !ok {
		return TypeSpec{}, false
	}
	return *s, true
}

// LookupValue 按负载值的 Go 类型查找
func (r *Registry) LookupValue(v any) (TypeSpec, bool) {
	if v == nil {
		return TypeSpec{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byType[reflect.TypeOf(v)]
	if !ok {
		return TypeSpec{}, false
	}
	return *s, true
}

// Encode 编码消息负载
//
// msg.TypeID 非 0 时按 ID 查找并校验负载类型，否则按负载 Go 类型推断。
// io.Reader 负载（非 []byte）按 BytesTypeID 流式发送。
func (r *Registry) Encode(msg *types.Message) (Encoded, error) {
	if msg == nil || msg.Payload == nil {
		return Encoded{}, types.ErrMessageNull
	}

	var (
		spec TypeSpec
		ok   bool
	)
	if msg.TypeID != 0 {
		spec, ok = r.Lookup(msg.TypeID)
		if !ok {
			return Encoded{}, types.ErrMessageUnknownType
		}
	} else {
		spec, ok = r.LookupValue(msg.Payload)
	}

	if rd, isReader := msg.Payload.(io.Reader); isReader {
		if (!ok || spec.ID == BytesTypeID) && msg.TypeID <= BytesTypeID {
			return Encoded{TypeID: BytesTypeID, Stream: rd}, nil
		}
	}
	if !ok {
		return Encoded{}, types.ErrMessageUnknownType
	}
	if reflect.TypeOf(msg.Payload) != spec.Type && !(spec.ID == BytesTypeID && isString(msg.Payload)) {
		return Encoded{}, fmt.Errorf("%w: %T registered as %s", types.ErrBadCast, msg.Payload, spec.Type)
	}

	data, err := spec.Codec.Marshal(msg.Payload)
	if err != nil {
		return Encoded{}, err
	}
	return Encoded{TypeID: spec.ID, Data: data}, nil
}

// Decode 解码负载，返回负载值与类型描述
func (r *Registry) Decode(typeID uint32, data []byte) (any, TypeSpec, error) {
	spec, ok := r.Lookup(typeID)
	if !ok {
		return nil, TypeSpec{}, types.ErrMessageUnknownType
	}
	if d, ok := spec.Codec.(Decoder); ok {
		v, err := d.Decode(data)
		return v, spec, err
	}
	v := spec.New()
	if err := spec.Codec.Unmarshal(data, v); err != nil {
		return nil, spec, err
	}
	return v, spec, nil
}

// Types 返回所有已注册类型（按 ID 排序）
func (r *Registry) Types() []TypeSpec {
	r.mu.RLock()
	out := make([]TypeSpec, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, *s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}
