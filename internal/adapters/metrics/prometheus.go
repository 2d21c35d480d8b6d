package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alejandrodnm/sweepbot/internal/domain"
)

// Prometheus implementa ports.Metrics sobre un registry propio, etiquetado
// por símbolo.
type Prometheus struct {
	reg *prometheus.Registry

	blocked      *prometheus.CounterVec
	entries      *prometheus.CounterVec
	orderErrors  *prometheus.CounterVec
	trailUpdates prometheus.Counter
	reconnects   *prometheus.CounterVec
	safeMode     prometheus.Gauge
	drift        prometheus.Gauge
	feedAge      prometheus.Gauge
	realized     prometheus.Gauge
}

// NewPrometheus registra los collectors del engine para symbol.
func NewPrometheus(symbol string) *Prometheus {
	labels := prometheus.Labels{"symbol": symbol}
	p := &Prometheus{
		reg: prometheus.NewRegistry(),
		blocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sweepbot", Name: "blocked_cycles_total",
			Help: "Decision cycles skipped, by reason.", ConstLabels: labels,
		}, []string{"reason"}),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sweepbot", Name: "entries_total",
			Help: "Entries placed, by side.", ConstLabels: labels,
		}, []string{"side"}),
		orderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sweepbot", Name: "order_errors_total",
			Help: "Failed order mutations, by operation.", ConstLabels: labels,
		}, []string{"op"}),
		trailUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sweepbot", Name: "trail_updates_total",
			Help: "Protective stop replacements.", ConstLabels: labels,
		}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sweepbot", Name: "stream_reconnects_total",
			Help: "Stream reconnections, by feed.", ConstLabels: labels,
		}, []string{"feed"}),
		safeMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sweepbot", Name: "safe_mode",
			Help: "1 while new entries are blocked by safe mode.", ConstLabels: labels,
		}),
		drift: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sweepbot", Name: "clock_drift_ms",
			Help: "Median local-to-server clock offset.", ConstLabels: labels,
		}),
		feedAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sweepbot", Name: "feed_age_seconds",
			Help: "Seconds since the last market stream update.", ConstLabels: labels,
		}),
		realized: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sweepbot", Name: "realized_today",
			Help: "Realized PnL since day start, quote asset.", ConstLabels: labels,
		}),
	}
	p.reg.MustRegister(p.blocked, p.entries, p.orderErrors, p.trailUpdates, p.reconnects,
		p.safeMode, p.drift, p.feedAge, p.realized)
	return p
}

// Handler sirve /metrics para este registry.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

// Registry expone el registry (tests).
func (p *Prometheus) Registry() *prometheus.Registry { return p.reg }

func (p *Prometheus) IncBlocked(reason string, n int) { p.blocked.WithLabelValues(reason).Add(float64(n)) }
func (p *Prometheus) IncEntry(side domain.Side) { p.entries.WithLabelValues(string(side)).Inc() }
func (p *Prometheus) IncOrderError(op string) { p.orderErrors.WithLabelValues(op).Inc() }
func (p *Prometheus) IncTrailUpdate() { p.trailUpdates.Inc() }
func (p *Prometheus) IncReconnect(feed string) { p.reconnects.WithLabelValues(feed).Inc() }
func (p *Prometheus) SetDrift(ms int64) { p.drift.Set(float64(ms)) }
func (p *Prometheus) SetFeedAge(seconds float64) { p.feedAge.Set(seconds) }
func (p *Prometheus) SetRealizedToday(v float64) { p.realized.Set(v) }

func (p *Prometheus) SetSafeMode(on bool) {
	if on {
		p.safeMode.Set(1)
		return
	}
	p.safeMode.Set(0)
}

// Nop descarta todas las métricas.
type Nop struct{}

func (Nop) IncBlocked(string, int) {}
func (Nop) IncEntry(domain.Side) {}
func (Nop) IncOrderError(string) {}
func (Nop) IncTrailUpdate() {}
func (Nop) IncReconnect(string) {}
func (Nop) SetSafeMode(bool) {}
func (Nop) SetDrift(int64) {}
func (Nop) SetFeedAge(float64) {}
func (Nop) SetRealizedToday(float64) {}
