package slotmap

import (
	"sync"
	"sync/atomic"
)

// Sharded 分片加锁的并发槽位表
//
// 全局下标 = 分片内下标 * 分片数 + 分片号，因此句柄本身即可定位分片，
// 不需要全局锁。
type Sharded[T any] struct {
	shards []*shard[T]
	next   atomic.Uint32
}

type shard[T any] struct {
	mu sync.RWMutex
	m  *Map[T]
}

// NewSharded 创建分片槽位表，capacity 为总容量（0 表示不限）
func NewSharded[T any](shards, capacity int) *Sharded[T] {
	if shards <= 0 {
		shards = 1
	}
	per := 0
	if capacity > 0 {
		per = (capacity + shards - 1) / shards
	}
	s := &Sharded[T]{shards: make([]*shard[T], shards)}
	for i := range s.shards {
		s.shards[i] = &shard[T]{m: New[T](per)}
	}
	return s
}

// Shards 分片数
func (s *Sharded[T]) Shards() int { return len(s.shards) }

// ShardOf 返回全局下标所在分片
func (s *Sharded[T]) ShardOf(index uint32) int {
	return int(index % uint32(len(s.shards)))
}

// Insert 插入值
func (s *Sharded[T]) Insert(v T) (index, gen uint32, ok bool) {
	return s.InsertFunc(func(uint32, uint32) T { return v })
}

// InsertFunc 分配槽位后以全局句柄构造值，fn 在分片锁内调用
//
// 从轮转起点开始尝试各分片，全部已满时返回 ok=false。
func (s *Sharded[T]) InsertFunc(fn func(index, gen uint32) T) (index, gen uint32, ok bool) {
	n := uint32(len(s.shards))
	start := s.next.Add(1)
	for i := uint32(0); i < n; i++ {
		sid := (start + i) % n
		sh := s.shards[sid]

		sh.mu.Lock()
		local, g, inserted := sh.m.InsertFunc(func(local, g uint32) T {
			return fn(local*n+sid, g)
		})
		sh.mu.Unlock()

		if inserted {
			return local*n + sid, g, true
		}
	}
	return 0, 0, false
}

func (s *Sharded[T]) locate(index uint32) (*shard[T], uint32) {
	n := uint32(len(s.shards))
	return s.shards[index%n], index / n
}

// Get 按全局句柄查找
func (s *Sharded[T]) Get(index, gen uint32) (T, bool) {
	sh, local := s.locate(index)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.m.Get(local, gen)
}

// Remove 按全局句柄删除
func (s *Sharded[T]) Remove(index, gen uint32) (T, bool) {
	sh, local := s.locate(index)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.m.Remove(local, gen)
}

// Len 所有分片的元素总数
func (s *Sharded[T]) Len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += sh.m.Len()
		sh.mu.RUnlock()
	}
	return total
}

// Range 逐分片遍历快照，fn 在锁外调用
func (s *Sharded[T]) Range(fn func(index, gen uint32, v T) bool) {
	type item struct {
		index, gen uint32
		v          T
	}
	n := uint32(len(s.shards))
	for sid, sh := range s.shards {
		var items []item
		sh.mu.RLock()
		sh.m.Range(func(local, gen uint32, v T) bool {
			items = append(items, item{local*n + uint32(sid), gen, v})
			return true
		})
		sh.mu.RUnlock()

		for _, it := range items {
			if !fn(it.index, it.gen, it.v) {
				return
			}
		}
	}
}
