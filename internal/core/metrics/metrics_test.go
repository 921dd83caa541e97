package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-msgrpc/pkg/types"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ConnCreated()
	m.ConnTransition(types.StateConnecting, types.StateActive)
	m.ConnError(types.ErrConnectionKilled)
	m.MessageSent()
	m.PacketSent("p", 10)
	m.RelayLedger(1)
	assert.Nil(t, m.Registry())
	assert.Nil(t, m.Bandwidth())
	assert.NotNil(t, m.Handler())
}

func TestMetrics_ConnectionGauge(t *testing.T) {
	m := New(nil)

	m.ConnCreated()
	m.ConnCreated()
	m.ConnTransition(types.StateConnecting, types.StateActive)
	m.ConnTransition(types.StateActive, types.StateClosing)
	m.ConnTransition(types.StateClosing, types.StateClosed)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections.WithLabelValues("connecting")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.connections.WithLabelValues("active")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.closed))

	m.ConnError(types.ErrConnectionInactivityTimeout)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connErrors.WithLabelValues("100")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New(nil)
	m.PacketSent("orders", 128)
	m.RelayForwarded()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	assert.True(t, strings.Contains(body, `msgrpc_conn_bytes_total{dir="out"} 128`), body)
	assert.Contains(t, body, "msgrpc_relay_forwards_total 1")
	assert.Equal(t, int64(128), m.Bandwidth().ForPool("orders").TotalOut)
}

func TestRateMeter(t *testing.T) {
	mock := clock.NewMock()
	r := NewRateMeter(mock)

	r.Add(600)
	mock.Add(time.Second)
	r.Add(600)
	assert.Equal(t, int64(1200), r.Total())
	assert.InDelta(t, 20.0, r.Rate(), 0.001)

	mock.Add(61 * time.Second)
	assert.Equal(t, 0.0, r.Rate(), "窗口过期后速率归零")
	assert.Equal(t, int64(1200), r.Total())
}

func TestBandwidthCounter(t *testing.T) {
	mock := clock.NewMock()
	b := NewBandwidthCounter(mock)

	b.LogSent("a", 100)
	b.LogRecv("a", 50)
	b.LogSent("b", 10)

	tot := b.Totals()
	assert.Equal(t, int64(110), tot.TotalOut)
	assert.Equal(t, int64(50), tot.TotalIn)
	assert.Equal(t, []string{"a", "b"}, b.Pools())
	require.Contains(t, b.ByPool(), "a")
	assert.Equal(t, int64(50), b.ByPool()["a"].TotalIn)

	mock.Add(time.Minute)
	b.LogSent("b", 1)
	assert.Equal(t, 1, b.TrimIdle(mock.Now().Add(-time.Second)))
	assert.Equal(t, []string{"b"}, b.Pools())
	assert.Equal(t, Stats{}, b.ForPool("a"))
}
