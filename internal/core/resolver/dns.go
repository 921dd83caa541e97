package resolver

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/multierr"

	"github.com/dep2p/go-msgrpc/internal/util/logger"
	"github.com/dep2p/go-msgrpc/pkg/interfaces"
)

var log = logger.Logger("resolver")

// DNS 直接查询 DNS 服务器的解析器
type DNS struct {
	servers []string
	client  *dns.Client
	srv     bool
}

var _ interfaces.Resolver = (*DNS)(nil)

// NewDNS 创建 DNS 解析器，servers 依次尝试
func NewDNS(servers []string, timeout time.Duration, srv bool) *DNS {
	return &DNS{
		servers: append([]string(nil), servers...),
		client:  &dns.Client{Net: "udp", Timeout: timeout},
		srv:     srv,
	}
}

// Resolve 实现 interfaces.Resolver
//
// 开启 SRV 时先查询 _msgrpc._tcp.<host>，命中则使用记录中的目标与端口
// （按优先级升序、权重降序），否则查询 host 的 A/AAAA 并沿用请求端口。
func (d *DNS) Resolve(ctx context.Context, name string) ([]string, error) {
	host, port, err := split(name)
	if err != nil {
		return nil, err
	}
	if out, ok := literal(host, port); ok {
		return out, nil
	}

	if d.srv {
		recs, err := d.query(ctx, "_"+srvService+"._tcp."+host, dns.TypeSRV)
		if err == nil {
			if out := d.fromSRV(ctx, recs); len(out) > 0 {
				return out, nil
			}
		} else {
			log.Debug("SRV 查询失败", "host", host, "err", err)
		}
	}

	ips, err := d.lookupIP(ctx, host)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ips))
	for _, ip := range ips {
		out = append(out, net.JoinHostPort(ip, port))
	}
	return out, nil
}

func (d *DNS) fromSRV(ctx context.Context, rrs []dns.RR) []string {
	var srvs []*dns.SRV
	for _, rr := range rrs {
		if s, ok := rr.(*dns.SRV); ok {
			srvs = append(srvs, s)
		}
	}
	sort.SliceStable(srvs, func(i, j int) bool {
		if srvs[i].Priority != srvs[j].Priority {
			return srvs[i].Priority < srvs[j].Priority
		}
		return srvs[i].Weight > srvs[j].Weight
	})

	var out []string
	for _, s := range srvs {
		ips, err := d.lookupIP(ctx, s.Target)
		if err != nil {
			continue
		}
		for _, ip := range ips {
			out = append(out, net.JoinHostPort(ip, strconv.Itoa(int(s.Port))))
		}
	}
	return out
}

// lookupIP 查询 A 与 AAAA，IPv4 在前
func (d *DNS) lookupIP(ctx context.Context, host string) ([]string, error) {
	var (
		out  []string
		errs error
	)
	for _, qt := range []uint16{dns.TypeA, dns.TypeAAAA} {
		rrs, err := d.query(ctx, host, qt)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		for _, rr := range rrs {
			switch v := rr.(type) {
			case *dns.A:
				out = append(out, v.A.String())
			case *dns.AAAA:
				out = append(out, v.AAAA.String())
			}
		}
	}
	if len(out) == 0 {
		if errs != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, host, errs)
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, host)
	}
	return out, nil
}

// query 依次向各服务器查询，返回首个成功应答的 Answer
func (d *DNS) query(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true

	var errs error
	for _, server := range d.servers {
		in, _, err := d.client.ExchangeContext(ctx, m, server)
		if err != nil {
			errs = multierr.Append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		switch in.Rcode {
		case dns.RcodeSuccess:
			return in.Answer, nil
		case dns.RcodeNameError:
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		default:
			errs = multierr.Append(errs, fmt.Errorf("resolver: %s: rcode %s", server, dns.RcodeToString[in.Rcode]))
		}
	}
	if errs == nil {
		return nil, fmt.Errorf("%w: no servers", ErrNotFound)
	}
	return nil, errs
}
