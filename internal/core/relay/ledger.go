package relay

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dep2p/go-msgrpc/internal/core/conn"
	"github.com/dep2p/go-msgrpc/pkg/types"
)

// ticket 一条在途中继请求
type ticket struct {
	origin    *conn.Conn
	originMsg types.MessageID
	target    *conn.Conn
	name      string
	created   time.Time

	mu        sync.Mutex
	targetMsg types.MessageID

	done atomic.Bool
}

// setTarget 记录转发消息句柄，返回条目是否仍在途
func (t *ticket) setTarget(id types.MessageID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.targetMsg = id
	return !t.done.Load()
}

func (t *ticket) targetID() types.MessageID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.targetMsg
}

type originKey struct {
	conn types.ConnectionID
	msg  types.MessageID
}

type ledgerShard struct {
	mu       sync.Mutex
	byOrigin map[originKey]*ticket
	byConn   map[types.ConnectionID]map[*ticket]struct{}
}

// ledger 中继账本
//
// byOrigin 放在来源连接所在分片；byConn 同时按来源与目标连接索引，
// 连接关闭时遍历。take 以 done 标志保证每个条目只结束一次。
type ledger struct {
	shards []*ledgerShard
	size   atomic.Int64
}

func newLedger(shards int) *ledger {
	l := &ledger{shards: make([]*ledgerShard, shards)}
	for i := range l.shards {
		l.shards[i] = &ledgerShard{
			byOrigin: make(map[originKey]*ticket),
			byConn:   make(map[types.ConnectionID]map[*ticket]struct{}),
		}
	}
	return l
}

func (l *ledger) shard(id types.ConnectionID) *ledgerShard {
	return l.shards[id.Index%uint32(len(l.shards))]
}

// add 登记条目
func (l *ledger) add(t *ticket) {
	oid := t.origin.ID()
	sh := l.shard(oid)
	sh.mu.Lock()
	sh.byOrigin[originKey{conn: oid, msg: t.originMsg}] = t
	sh.index(oid, t)
	sh.mu.Unlock()

	tid := t.target.ID()
	sh = l.shard(tid)
	sh.mu.Lock()
	sh.index(tid, t)
	sh.mu.Unlock()

	l.size.Add(1)
}

func (sh *ledgerShard) index(id types.ConnectionID, t *ticket) {
	set := sh.byConn[id]
	if set == nil {
		set = make(map[*ticket]struct{})
		sh.byConn[id] = set
	}
	set[t] = struct{}{}
}

func (sh *ledgerShard) unindex(id types.ConnectionID, t *ticket) {
	if set := sh.byConn[id]; set != nil {
		delete(set, t)
		if len(set) == 0 {
			delete(sh.byConn, id)
		}
	}
}

// lookup 按来源连接与来源消息查找条目
func (l *ledger) lookup(origin types.ConnectionID, msg types.MessageID) *ticket {
	sh := l.shard(origin)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.byOrigin[originKey{conn: origin, msg: msg}]
}

// take 结束条目，只有第一次调用返回 true
func (l *ledger) take(t *ticket) bool {
	if !t.done.CompareAndSwap(false, true) {
		return false
	}

	oid := t.origin.ID()
	sh := l.shard(oid)
	sh.mu.Lock()
	key := originKey{conn: oid, msg: t.originMsg}
	if sh.byOrigin[key] == t {
		delete(sh.byOrigin, key)
	}
	sh.unindex(oid, t)
	sh.mu.Unlock()

	tid := t.target.ID()
	sh = l.shard(tid)
	sh.mu.Lock()
	sh.unindex(tid, t)
	sh.mu.Unlock()

	l.size.Add(-1)
	return true
}

// forConn 返回涉及连接的全部条目
func (l *ledger) forConn(id types.ConnectionID) []*ticket {
	sh := l.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	set := sh.byConn[id]
	out := make([]*ticket, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	return out
}

func (l *ledger) len() int {
	return int(l.size.Load())
}

// TicketInfo 账本条目快照
type TicketInfo struct {
	Name      string             `json:"name"`
	Origin    types.ConnectionID `json:"origin"`
	OriginMsg types.MessageID    `json:"origin_msg"`
	Target    types.ConnectionID `json:"target"`
	TargetMsg types.MessageID    `json:"target_msg"`
	Age       time.Duration      `json:"age"`
}

func (l *ledger) snapshot(now time.Time) []TicketInfo {
	var ts []*ticket
	for _, sh := range l.shards {
		sh.mu.Lock()
		for _, t := range sh.byOrigin {
			ts = append(ts, t)
		}
		sh.mu.Unlock()
	}

	out := make([]TicketInfo, 0, len(ts))
	for _, t := range ts {
		out = append(out, TicketInfo{
			Name:      t.name,
			Origin:    t.origin.ID(),
			OriginMsg: t.originMsg,
			Target:    t.target.ID(),
			TargetMsg: t.targetID(),
			Age:       now.Sub(t.created),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Age > out[j].Age })
	return out
}
