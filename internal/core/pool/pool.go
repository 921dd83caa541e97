package pool

import (
	"errors"
	"sync"

	"github.com/dep2p/go-msgrpc/internal/core/conn"
	"github.com/dep2p/go-msgrpc/internal/core/transport"
	"github.com/dep2p/go-msgrpc/pkg/types"
)

// PoolOptions 显式创建连接池的参数
type PoolOptions struct {
	// MaxActiveConnections 同时活跃连接上限（0 使用服务默认值）
	MaxActiveConnections int
}

// Pool 到同一端点的一组连接
type Pool struct {
	id        types.PoolID
	name      string
	target    transport.Target
	svc       *Service
	inbound   bool
	maxActive int
	dial      conn.DialFunc
	secure    bool
	ln        *listener

	mu        sync.Mutex
	conns     []*conn.Conn
	rr        int
	stopping  bool
	destroyed bool
	onClosed  []func()
}

// ID 返回连接池句柄
func (p *Pool) ID() types.PoolID { return p.id }

// Name 返回连接池名称（端点 URL）
func (p *Pool) Name() string { return p.name }

// Inbound 是否为监听器接受的连接池
func (p *Pool) Inbound() bool { return p.inbound }

// Len 返回连接数
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

func (p *Pool) isStopping() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopping
}

// recipient 返回连接的接收者句柄
func (p *Pool) recipient(c *conn.Conn) types.RecipientID {
	return types.RecipientID{Pool: p.id, Conn: c.ID()}
}

// ============================================================================
//                              连接选择
// ============================================================================

// pick 选择发送连接
//
// 优先在活跃连接中选负载最小者（起点轮转）；没有可用的活跃连接时
// 排队到正在建立的连接；仍没有则在上限内新建连接；否则 ErrPoolFull。
func (p *Pool) pick() (*conn.Conn, error) {
	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		return nil, types.ErrPoolStopping
	}

	var active, pending *conn.Conn
	live := 0
	n := len(p.conns)
	for i := 0; i < n; i++ {
		c := p.conns[(p.rr+i)%n]
		st := c.State()
		if !st.AcceptsSend() {
			continue
		}
		live++
		load := c.Load()
		if load >= c.Capacity() {
			continue
		}
		if st == types.StateActive {
			if active == nil || load < active.Load() {
				active = c
			}
		} else if pending == nil || load < pending.Load() {
			pending = c
		}
	}
	if n > 0 {
		p.rr = (p.rr + 1) % n
	}

	switch {
	case active != nil:
		p.mu.Unlock()
		return active, nil
	case pending != nil:
		p.mu.Unlock()
		return pending, nil
	case p.dial == nil, p.maxActive > 0 && live >= p.maxActive:
		p.mu.Unlock()
		return nil, types.ErrPoolFull
	}

	c, err := p.dialLocked()
	p.mu.Unlock()
	if err != nil {
		if errors.Is(err, types.ErrTooManyActiveConnections) {
			return nil, types.ErrPoolFull
		}
		return nil, err
	}
	c.Start()
	return c, nil
}

// connect 显式新建一条连接
func (p *Pool) connect() (*conn.Conn, error) {
	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		return nil, types.ErrPoolStopping
	}
	if p.dial == nil {
		p.mu.Unlock()
		return nil, ErrNoDialer
	}
	if p.maxActive > 0 && p.liveLocked() >= p.maxActive {
		p.mu.Unlock()
		return nil, types.ErrTooManyActiveConnections
	}
	c, err := p.dialLocked()
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}

func (p *Pool) dialLocked() (*conn.Conn, error) {
	c, err := p.svc.newConn(p, conn.Params{
		Dial:            p.dial,
		SecureTransport: p.secure,
		ServerName:      p.target.Host,
	})
	if err != nil {
		return nil, err
	}
	p.conns = append(p.conns, c)
	log.Debug("新建连接", "pool", p.name, "conn", c.ID(), "total", len(p.conns))
	return c, nil
}

func (p *Pool) liveLocked() int {
	n := 0
	for _, c := range p.conns {
		if c.State().AcceptsSend() {
			n++
		}
	}
	return n
}

// activeCount 返回活跃连接数
func (p *Pool) activeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.conns {
		if c.State() == types.StateActive {
			n++
		}
	}
	return n
}

// ============================================================================
//                              成员管理
// ============================================================================

// add 加入被动接受的连接，连接池关闭中返回 false
func (p *Pool) add(c *conn.Conn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopping {
		return false
	}
	p.conns = append(p.conns, c)
	return true
}

// remove 移除已关闭的连接，返回连接池是否应当销毁
func (p *Pool) remove(c *conn.Conn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, x := range p.conns {
		if x == c {
			p.conns = append(p.conns[:i], p.conns[i+1:]...)
			break
		}
	}
	if p.rr >= len(p.conns) {
		p.rr = 0
	}
	return p.stopping && len(p.conns) == 0
}

// finish 标记销毁并取出关闭回调，只有第一次调用返回 true
func (p *Pool) finish() ([]func(), bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return nil, false
	}
	p.destroyed = true
	cbs := p.onClosed
	p.onClosed = nil
	return cbs, true
}

// shutdown 停止接受新消息并关闭全部连接
//
// force 为 true 时立即终止在途消息，否则等待在途交换完成。
// 连接全部关闭后销毁连接池并调用 onClosed。
func (p *Pool) shutdown(force bool, onClosed func()) {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		if onClosed != nil {
			onClosed()
		}
		return
	}
	if onClosed != nil {
		p.onClosed = append(p.onClosed, onClosed)
	}
	p.stopping = true
	conns := append([]*conn.Conn(nil), p.conns...)
	p.mu.Unlock()

	if p.ln != nil {
		p.ln.close()
		p.svc.dropListener(p.ln)
	}
	log.Debug("关闭连接池", "pool", p.name, "force", force, "conns", len(conns))

	if len(conns) == 0 {
		p.svc.destroyPool(p)
		return
	}
	for _, c := range conns {
		if force {
			c.ForceClose(types.ErrConnectionKilled)
		} else {
			c.Close()
		}
	}
}
