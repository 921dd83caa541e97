package conn

import (
	"time"

	"github.com/dep2p/go-msgrpc/pkg/types"
)

// Stats 连接快照
type Stats struct {
	ID        types.ConnectionID `json:"id"`
	Direction string             `json:"direction"`
	State     string             `json:"state"`
	Label     string             `json:"pool,omitempty"`
	Local     string             `json:"local,omitempty"`
	Remote    string             `json:"remote,omitempty"`
	Uptime    time.Duration      `json:"uptime"`
	Err       string             `json:"error,omitempty"`
	Load      int                `json:"load"`
	Capacity  int                `json:"capacity"`
	Exchanges int                `json:"exchanges"`
	Partials  int                `json:"partials"`
	Names     []string           `json:"names,omitempty"`
	Counters  Counters           `json:"counters"`
}

// Counters 累计计数
type Counters struct {
	PacketsSent  uint64 `json:"packets_sent"`
	PacketsRecv  uint64 `json:"packets_recv"`
	BytesSent    uint64 `json:"bytes_sent"`
	BytesRecv    uint64 `json:"bytes_recv"`
	MessagesSent uint64 `json:"messages_sent"`
	MessagesRecv uint64 `json:"messages_recv"`
	Malformed    uint64 `json:"malformed"`
	Keepalives   uint64 `json:"keepalives"`
}

// Stats 返回连接快照
func (c *Conn) Stats() Stats {
	s := Stats{
		ID:        c.id,
		Direction: c.dir.String(),
		Label:     c.cfg.Label,
		Uptime:    c.clk.Since(c.created),
		Load:      c.Load(),
		Capacity:  c.cfg.MaxMessages,
		Counters: Counters{
			PacketsSent:  c.stats.packetsSent.Load(),
			PacketsRecv:  c.stats.packetsRecv.Load(),
			BytesSent:    c.stats.bytesSent.Load(),
			BytesRecv:    c.stats.bytesRecv.Load(),
			MessagesSent: c.stats.messagesSent.Load(),
			MessagesRecv: c.stats.messagesRecv.Load(),
			Malformed:    c.stats.malformed.Load(),
			Keepalives:   c.stats.keepalives.Load(),
		},
	}
	if err := c.Err(); err != nil {
		s.Err = err.Error()
	}

	c.do(func() {
		s.Exchanges = len(c.peerReqs)
		s.Partials = len(c.partials)
		s.Names = append([]string(nil), c.names...)
		if c.nc != nil {
			s.Local = c.nc.LocalAddr().String()
			s.Remote = c.nc.RemoteAddr().String()
		}
	})
	s.State = c.State().String()
	return s
}
