package slotmap

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_InsertGetRemove(t *testing.T) {
	m := New[string](2)

	i1, g1, ok := m.Insert("a")
	require.True(t, ok)
	assert.Equal(t, uint32(0), i1)
	assert.Equal(t, uint32(1), g1)

	_, _, ok = m.Insert("b")
	require.True(t, ok)
	assert.True(t, m.Full())

	_, _, ok = m.Insert("c")
	assert.False(t, ok, "表满时插入应失败")

	v, ok := m.Get(i1, g1)
	require.True(t, ok)
	assert.Equal(t, "a", v)

	v, ok = m.Remove(i1, g1)
	require.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, 1, m.Len())

	t.Log("✅ 基本操作正确")
}

func TestMap_StaleHandle(t *testing.T) {
	m := New[int](0)

	i, g, _ := m.Insert(1)
	_, ok := m.Remove(i, g)
	require.True(t, ok)

	i2, g2, _ := m.Insert(2)
	assert.Equal(t, i, i2, "空闲槽位应被复用")
	assert.Equal(t, g+1, g2, "代数应递增")

	_, ok = m.Get(i, g)
	assert.False(t, ok, "陈旧句柄应被拒绝")
	_, ok = m.Remove(i, g)
	assert.False(t, ok)
	_, ok = m.Get(99, 1)
	assert.False(t, ok)

	t.Log("✅ 陈旧句柄被拒绝")
}

func TestMap_InsertFuncSeesHandle(t *testing.T) {
	type rec struct{ index, gen uint32 }
	m := New[rec](0)

	i, g, ok := m.InsertFunc(func(index, gen uint32) rec { return rec{index, gen} })
	require.True(t, ok)
	v, _ := m.Get(i, g)
	assert.Equal(t, rec{i, g}, v)
}

func TestMap_RangeRemove(t *testing.T) {
	m := New[int](0)
	for i := 0; i < 5; i++ {
		m.Insert(i)
	}
	m.Range(func(index, gen uint32, v int) bool {
		if v%2 == 0 {
			m.Remove(index, gen)
		}
		return true
	})
	assert.Equal(t, 2, m.Len())

	var seen []int
	m.Range(func(_, _ uint32, v int) bool {
		seen = append(seen, v)
		return true
	})
	assert.Equal(t, []int{1, 3}, seen)
}

func TestSharded_Concurrent(t *testing.T) {
	s := NewSharded[int](8, 0)

	const workers, per = 8, 200
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				idx, gen, ok := s.Insert(i)
				if !assert.True(t, ok) {
					return
				}
				v, ok := s.Get(idx, gen)
				assert.True(t, ok)
				assert.Equal(t, i, v)
				if i%2 == 0 {
					_, ok = s.Remove(idx, gen)
					assert.True(t, ok)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, workers*per/2, s.Len())

	count := 0
	s.Range(func(index, gen uint32, _ int) bool {
		_, ok := s.Get(index, gen)
		assert.True(t, ok)
		count++
		return true
	})
	assert.Equal(t, workers*per/2, count)

	t.Log("✅ 并发读写正确")
}

func TestSharded_Capacity(t *testing.T) {
	s := NewSharded[int](4, 4)
	for i := 0; i < 4; i++ {
		_, _, ok := s.Insert(i)
		require.True(t, ok)
	}
	_, _, ok := s.Insert(5)
	assert.False(t, ok)
}

func TestSharded_IndexEncodesShard(t *testing.T) {
	s := NewSharded[int](4, 0)
	for i := 0; i < 16; i++ {
		idx, gen, ok := s.InsertFunc(func(index, _ uint32) int { return int(index) })
		require.True(t, ok)
		v, _ := s.Get(idx, gen)
		assert.Equal(t, int(idx), v)
		assert.Equal(t, int(idx%4), s.ShardOf(idx))
	}
}
