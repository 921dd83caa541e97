package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dep2p/go-msgrpc/pkg/types"
)

const namespace = "msgrpc"

// Metrics Prometheus 采集器集合
type Metrics struct {
	reg *prometheus.Registry
	bw  *BandwidthCounter

	connections *prometheus.GaugeVec
	closed      prometheus.Counter
	connErrors  *prometheus.CounterVec
	messages    *prometheus.CounterVec
	packets     *prometheus.CounterVec
	bytes       *prometheus.CounterVec
	malformed   prometheus.Counter

	relayForwards prometheus.Counter
	relayRoutes   prometheus.Gauge
	relayLedger   prometheus.Gauge
}

// New 创建并注册采集器，reg 为空时新建独立的 Registry
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		reg: reg,
		bw:  NewBandwidthCounter(nil),
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "conn", Name: "connections",
			Help: "Connections by state.",
		}, []string{"state"}),
		closed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "conn", Name: "closed_total",
			Help: "Connections that reached the closed state.",
		}),
		connErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "conn", Name: "errors_total",
			Help: "Connection-level failures by error code.",
		}, []string{"code"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "conn", Name: "messages_total",
			Help: "Messages by outcome.",
		}, []string{"event"}),
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "conn", Name: "packets_total",
			Help: "Packets by direction.",
		}, []string{"dir"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "conn", Name: "bytes_total",
			Help: "Wire bytes by direction.",
		}, []string{"dir"}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "conn", Name: "malformed_total",
			Help: "Dropped fragments that did not match the in-progress message.",
		}),
		relayForwards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relay", Name: "forwards_total",
			Help: "Messages forwarded by the relay engine.",
		}),
		relayRoutes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "relay", Name: "routes",
			Help: "Registered relay names.",
		}),
		relayLedger: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "relay", Name: "ledger_entries",
			Help: "In-flight relayed exchanges.",
		}),
	}

	reg.MustRegister(
		m.connections, m.closed, m.connErrors, m.messages, m.packets, m.bytes,
		m.malformed, m.relayForwards, m.relayRoutes, m.relayLedger,
	)
	return m
}

// Registry 返回底层 Registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Bandwidth 返回带宽计数器
func (m *Metrics) Bandwidth() *BandwidthCounter {
	if m == nil {
		return nil
	}
	return m.bw
}

// Handler 返回 /metrics HTTP 处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ConnCreated 新连接进入 Connecting
func (m *Metrics) ConnCreated() {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(types.StateConnecting.String()).Inc()
}

// ConnTransition 连接状态变化
func (m *Metrics) ConnTransition(from, to types.ConnectionState) {
	if m == nil || from == to {
		return
	}
	m.connections.WithLabelValues(from.String()).Dec()
	if to == types.StateClosed {
		m.closed.Inc()
		return
	}
	m.connections.WithLabelValues(to.String()).Inc()
}

// ConnError 记录连接级错误
func (m *Metrics) ConnError(err error) {
	if m == nil || err == nil {
		return
	}
	m.connErrors.WithLabelValues(strconv.Itoa(int(types.CodeOf(err)))).Inc()
}

// MessageSent 消息全部写出
func (m *Metrics) MessageSent() {
	if m != nil {
		m.messages.WithLabelValues("sent").Inc()
	}
}

// MessageReceived 消息重组完成
func (m *Metrics) MessageReceived() {
	if m != nil {
		m.messages.WithLabelValues("received").Inc()
	}
}

// MessageCanceled 消息被取消
func (m *Metrics) MessageCanceled() {
	if m != nil {
		m.messages.WithLabelValues("canceled").Inc()
	}
}

// Malformed 丢弃的错位分片
func (m *Metrics) Malformed() {
	if m != nil {
		m.malformed.Inc()
	}
}

// PacketSent 报文写出
func (m *Metrics) PacketSent(pool string, n int) {
	if m == nil {
		return
	}
	m.packets.WithLabelValues("out").Inc()
	m.bytes.WithLabelValues("out").Add(float64(n))
	m.bw.LogSent(pool, int64(n))
}

// PacketReceived 报文读入
func (m *Metrics) PacketReceived(pool string, n int) {
	if m == nil {
		return
	}
	m.packets.WithLabelValues("in").Inc()
	m.bytes.WithLabelValues("in").Add(float64(n))
	m.bw.LogRecv(pool, int64(n))
}

// RelayForwarded 中继转发一条消息
func (m *Metrics) RelayForwarded() {
	if m != nil {
		m.relayForwards.Inc()
	}
}

// RelayRoutes 设置中继路由数
func (m *Metrics) RelayRoutes(n int) {
	if m != nil {
		m.relayRoutes.Set(float64(n))
	}
}

// RelayLedger 调整中继账本条目数
func (m *Metrics) RelayLedger(delta int) {
	if m != nil {
		m.relayLedger.Add(float64(delta))
	}
}
