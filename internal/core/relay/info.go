package relay

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// Info 中继引擎快照
type Info struct {
	Attached  bool         `json:"attached"`
	Forwarded uint64       `json:"forwarded"`
	Rejected  uint64       `json:"rejected"`
	Limiter   LimiterStats `json:"limiter"`
	Routes    []RouteInfo  `json:"routes"`
	Ledger    []TicketInfo `json:"ledger"`
}

// Dump 返回路由表与账本快照
func (e *Engine) Dump() Info {
	return Info{
		Attached:  e.Attached(),
		Forwarded: e.forwarded.Load(),
		Rejected:  e.rejected.Load(),
		Limiter:   e.limiter.Stats(),
		Routes:    e.routes.snapshot(),
		Ledger:    e.ledger.snapshot(e.clk.Now()),
	}
}

// WriteDump 以文本表格输出路由表与账本
func (e *Engine) WriteDump(w io.Writer) error {
	info := e.Dump()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "relay  routes=%d  pending=%d  forwarded=%d  rejected=%d\n",
		len(info.Routes), len(info.Ledger), info.Forwarded, info.Rejected)

	fmt.Fprintln(tw, "\nNAME\tCONN\tSINCE")
	for _, r := range info.Routes {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Name, r.Conn, r.Since.Format(time.RFC3339))
	}

	fmt.Fprintln(tw, "\nNAME\tORIGIN\tORIGIN MSG\tTARGET\tTARGET MSG\tAGE")
	for _, t := range info.Ledger {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.Name, t.Origin, t.OriginMsg, t.Target, t.TargetMsg, t.Age.Truncate(time.Millisecond))
	}
	return tw.Flush()
}
