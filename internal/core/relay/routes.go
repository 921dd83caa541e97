package relay

import (
	"sort"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"github.com/dep2p/go-msgrpc/pkg/types"
)

// route 路由表条目
type route struct {
	conn  types.ConnectionID
	since time.Time
}

type routeShard struct {
	mu sync.RWMutex
	m  map[string]route
}

type ownerShard struct {
	mu sync.Mutex
	m  map[types.ConnectionID]map[string]struct{}
}

// routeTable name → 连接
//
// 名称按 murmur3 分片；owners 按连接下标分片记录每条连接注册过的名称，
// 连接关闭时据此清理。
type routeTable struct {
	shards []*routeShard
	owners []*ownerShard
}

func newRouteTable(shards int) *routeTable {
	t := &routeTable{
		shards: make([]*routeShard, shards),
		owners: make([]*ownerShard, shards),
	}
	for i := range t.shards {
		t.shards[i] = &routeShard{m: make(map[string]route)}
		t.owners[i] = &ownerShard{m: make(map[types.ConnectionID]map[string]struct{})}
	}
	return t
}

func (t *routeTable) shard(name string) *routeShard {
	return t.shards[murmur3.Sum32([]byte(name))%uint32(len(t.shards))]
}

func (t *routeTable) owner(id types.ConnectionID) *ownerShard {
	return t.owners[id.Index%uint32(len(t.owners))]
}

// set 记录 name → id，返回被替换的旧连接
func (t *routeTable) set(name string, id types.ConnectionID, now time.Time) (types.ConnectionID, bool) {
	sh := t.shard(name)
	sh.mu.Lock()
	prev, replaced := sh.m[name]
	sh.m[name] = route{conn: id, since: now}
	sh.mu.Unlock()

	if replaced && prev.conn != id {
		t.disown(prev.conn, name)
	}
	o := t.owner(id)
	o.mu.Lock()
	names := o.m[id]
	if names == nil {
		names = make(map[string]struct{})
		o.m[id] = names
	}
	names[name] = struct{}{}
	o.mu.Unlock()

	return prev.conn, replaced && prev.conn != id
}

// get 查找名称对应的连接
func (t *routeTable) get(name string) (types.ConnectionID, bool) {
	sh := t.shard(name)
	sh.mu.RLock()
	r, ok := sh.m[name]
	sh.mu.RUnlock()
	return r.conn, ok
}

// removeIf 名称仍指向 id 时删除
func (t *routeTable) removeIf(name string, id types.ConnectionID) bool {
	sh := t.shard(name)
	sh.mu.Lock()
	r, ok := sh.m[name]
	if ok && r.conn == id {
		delete(sh.m, name)
	}
	sh.mu.Unlock()

	if ok && r.conn == id {
		t.disown(id, name)
		return true
	}
	return false
}

// dropConn 删除连接注册的全部名称，返回被删除的名称
func (t *routeTable) dropConn(id types.ConnectionID) []string {
	o := t.owner(id)
	o.mu.Lock()
	names := o.m[id]
	delete(o.m, id)
	o.mu.Unlock()

	var dropped []string
	for name := range names {
		sh := t.shard(name)
		sh.mu.Lock()
		if r, ok := sh.m[name]; ok && r.conn == id {
			delete(sh.m, name)
			dropped = append(dropped, name)
		}
		sh.mu.Unlock()
	}
	sort.Strings(dropped)
	return dropped
}

func (t *routeTable) disown(id types.ConnectionID, name string) {
	o := t.owner(id)
	o.mu.Lock()
	if names := o.m[id]; names != nil {
		delete(names, name)
		if len(names) == 0 {
			delete(o.m, id)
		}
	}
	o.mu.Unlock()
}

// len 返回路由数
func (t *routeTable) len() int {
	n := 0
	for _, sh := range t.shards {
		sh.mu.RLock()
		n += len(sh.m)
		sh.mu.RUnlock()
	}
	return n
}

// RouteInfo 路由快照
type RouteInfo struct {
	Name  string             `json:"name"`
	Conn  types.ConnectionID `json:"conn"`
	Since time.Time          `json:"since"`
}

func (t *routeTable) snapshot() []RouteInfo {
	var out []RouteInfo
	for _, sh := range t.shards {
		sh.mu.RLock()
		for name, r := range sh.m {
			out = append(out, RouteInfo{Name: name, Conn: r.conn, Since: r.since})
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
