// Package slotmap 提供带代数的槽位表
//
// 句柄由 (index, generation) 组成。槽位释放时代数递增，
// 指向已释放槽位的陈旧句柄在 Get/Remove 时被拒绝。
// 代数从 1 开始，0 保留为无效值。
package slotmap

type slot[T any] struct {
	gen  uint32
	used bool
	val  T
}

// Map 单线程槽位表
//
// 非并发安全：连接的多路复用表只由其事件循环访问。
type Map[T any] struct {
	slots []slot[T]
	free  []uint32
	limit int
	n     int
}

// New 创建槽位表，capacity 为 0 时不限容量
func New[T any](capacity int) *Map[T] {
	return &Map[T]{limit: capacity}
}

// Insert 插入值，表满时返回 ok=false
func (m *Map[T]) Insert(v T) (index, gen uint32, ok bool) {
	return m.InsertFunc(func(uint32, uint32) T { return v })
}

// InsertFunc 分配槽位后以句柄构造值
func (m *Map[T]) InsertFunc(fn func(index, gen uint32) T) (index, gen uint32, ok bool) {
	if m.Full() {
		return 0, 0, false
	}

	if k := len(m.free); k > 0 {
		index = m.free[k-1]
		m.free = m.free[:k-1]
	} else {
		index = uint32(len(m.slots))
		m.slots = append(m.slots, slot[T]{gen: 1})
	}

	s := &m.slots[index]
	s.used = true
	s.val = fn(index, s.gen)
	m.n++
	return index, s.gen, true
}

// Get 按句柄查找
func (m *Map[T]) Get(index, gen uint32) (T, bool) {
	var zero T
	if int(index) >= len(m.slots) {
		return zero, false
	}
	s := &m.slots[index]
	if !s.used || s.gen != gen {
		return zero, false
	}
	return s.val, true
}

// Remove 释放槽位并递增代数
func (m *Map[T]) Remove(index, gen uint32) (T, bool) {
	var zero T
	if int(index) >= len(m.slots) {
		return zero, false
	}
	s := &m.slots[index]
	if !s.used || s.gen != gen {
		return zero, false
	}

	v := s.val
	s.val = zero
	s.used = false
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	m.free = append(m.free, index)
	m.n--
	return v, true
}

// Len 已占用槽位数
func (m *Map[T]) Len() int { return m.n }

// Cap 容量上限（0 表示不限）
func (m *Map[T]) Cap() int { return m.limit }

// Full 是否已满
func (m *Map[T]) Full() bool { return m.limit > 0 && m.n >= m.limit }

// Range 按下标顺序遍历，fn 返回 false 时停止
//
// 遍历期间可以 Remove 当前元素。
func (m *Map[T]) Range(fn func(index, gen uint32, v T) bool) {
	for i := range m.slots {
		s := &m.slots[i]
		if !s.used {
			continue
		}
		if !fn(uint32(i), s.gen, s.val) {
			return
		}
	}
}
