package pool

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/dep2p/go-msgrpc/internal/core/conn"
	"github.com/dep2p/go-msgrpc/pkg/types"
)

// PoolInfo 连接池快照
type PoolInfo struct {
	ID        types.PoolID `json:"id"`
	Token     string       `json:"token"`
	Name      string       `json:"name"`
	Inbound   bool         `json:"inbound"`
	Stopping  bool         `json:"stopping"`
	MaxActive int          `json:"max_active"`
	Conns     []conn.Stats `json:"connections"`
}

// Info 服务快照
type Info struct {
	ID          string     `json:"id"`
	Started     bool       `json:"started"`
	Closed      bool       `json:"closed"`
	Listeners   []string   `json:"listeners"`
	Relay       bool       `json:"relay"`
	Connections int        `json:"connections"`
	Pools       []PoolInfo `json:"pools"`
}

// Info 返回服务快照
func (s *Service) Info() Info {
	info := Info{
		ID:          s.id.String(),
		Started:     s.started.Load(),
		Closed:      s.closed.Load(),
		Listeners:   s.ListenAddrs(),
		Relay:       s.relayHook() != nil,
		Connections: s.conns.Len(),
	}

	var pools []*Pool
	s.pools.Range(func(_, _ uint32, p *Pool) bool {
		pools = append(pools, p)
		return true
	})
	for _, p := range pools {
		info.Pools = append(info.Pools, p.info())
	}
	sort.Slice(info.Pools, func(i, j int) bool { return info.Pools[i].Name < info.Pools[j].Name })
	return info
}

func (p *Pool) info() PoolInfo {
	p.mu.Lock()
	conns := append([]*conn.Conn(nil), p.conns...)
	pi := PoolInfo{
		ID:        p.id,
		Token:     types.RecipientID{Pool: p.id}.Token(),
		Name:      p.name,
		Inbound:   p.inbound,
		Stopping:  p.stopping,
		MaxActive: p.maxActive,
	}
	p.mu.Unlock()

	pi.Conns = make([]conn.Stats, 0, len(conns))
	for _, c := range conns {
		pi.Conns = append(pi.Conns, c.Stats())
	}
	return pi
}

// WriteDump 以文本表格输出连接池与连接
func (s *Service) WriteDump(w io.Writer) error {
	info := s.Info()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "service %s  connections=%d  relay=%v\n", info.ID, info.Connections, info.Relay)
	for _, l := range info.Listeners {
		fmt.Fprintf(tw, "listen\t%s\n", l)
	}
	for _, p := range info.Pools {
		fmt.Fprintf(tw, "\npool %s\t%s\tinbound=%v\tstopping=%v\tmax=%d\n", p.ID, p.Name, p.Inbound, p.Stopping, p.MaxActive)
		for _, c := range p.Conns {
			fmt.Fprintf(tw, "  %s\t%s\t%s\tload=%d/%d\t%s\t%s\n", c.ID, c.Direction, c.State, c.Load, c.Capacity, c.Remote, c.Err)
		}
	}
	return tw.Flush()
}
