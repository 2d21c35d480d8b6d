package metrics_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/sweepbot/internal/adapters/metrics"
	"github.com/alejandrodnm/sweepbot/internal/domain"
	"github.com/alejandrodnm/sweepbot/internal/ports"
)

var (
	_ ports.Metrics = (*metrics.Prometheus)(nil)
	_ ports.Metrics = metrics.Nop{}
)

func TestPrometheus_Counters(t *testing.T) {
	p := metrics.NewPrometheus("BTCUSDT")
	p.IncBlocked("stale_data", 3)
	p.IncBlocked("stale_data", 2)
	p.IncBlocked("dedupe", 1)
	p.IncEntry(domain.Long)
	p.SetSafeMode(true)
	p.SetDrift(1500)

	const want = `
# HELP sweepbot_blocked_cycles_total Decision cycles skipped, by reason.
# TYPE sweepbot_blocked_cycles_total counter
sweepbot_blocked_cycles_total{reason="dedupe",symbol="BTCUSDT"} 1
sweepbot_blocked_cycles_total{reason="stale_data",symbol="BTCUSDT"} 5
`
	require.NoError(t, testutil.GatherAndCompare(p.Registry(), strings.NewReader(want), "sweepbot_blocked_cycles_total"))

	const safe = `
# HELP sweepbot_safe_mode 1 while new entries are blocked by safe mode.
# TYPE sweepbot_safe_mode gauge
sweepbot_safe_mode{symbol="BTCUSDT"} 1
`
	require.NoError(t, testutil.GatherAndCompare(p.Registry(), strings.NewReader(safe), "sweepbot_safe_mode"))

	n, err := testutil.GatherAndCount(p.Registry(), "sweepbot_entries_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPrometheus_Handler(t *testing.T) {
	p := metrics.NewPrometheus("ETHUSDT")
	p.SetRealizedToday(-4.5)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `sweepbot_realized_today{symbol="ETHUSDT"} -4.5`)
}
