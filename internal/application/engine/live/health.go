package live

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alejandrodnm/sweepbot/internal/domain"
)

const (
	reasonClockDrift = "clock_drift"
	reasonStaleHard  = "stale_data_hard"
	reasonStale      = "stale_data"
)

type driftTransition int

const (
	driftSteady driftTransition = iota
	driftEnterSafe
	driftRecovered
)

// RecordDrift agrega una muestra a la ventana y aplica la histéresis: N
// muestras seguidas sobre hard entran en safe mode; con auto-recover, las
// últimas M bajo hard/2 lo levantan si el motivo fue el drift.
func (st *RunState) RecordDrift(off int64, h HealthConfig) driftTransition {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.driftMs = off
	st.driftSamples = append(st.driftSamples, off)
	if n := len(st.driftSamples); n > h.DriftWindow {
		st.driftSamples = st.driftSamples[n-h.DriftWindow:]
	}
	if abs64(off) >= h.DriftHardMs {
		st.driftStreak++
	} else {
		st.driftStreak = 0
	}

	if h.SafeMode && st.driftStreak >= h.DriftBreachN {
		entering := !st.safe
		st.safe = true
		st.safeReason = fmt.Sprintf("%s_%dms>=hard_%dms", reasonClockDrift, off, h.DriftHardMs)
		if entering {
			return driftEnterSafe
		}
		return driftSteady
	}
	if h.SafeAutoRecover && st.safe && strings.HasPrefix(st.safeReason, reasonClockDrift) {
		if len(st.driftSamples) < h.DriftRecoverM {
			return driftSteady
		}
		for _, s := range st.driftSamples[len(st.driftSamples)-h.DriftRecoverM:] {
			if abs64(s) >= h.DriftHardMs/2 {
				return driftSteady
			}
		}
		st.safe, st.safeReason = false, ""
		return driftRecovered
	}
	return driftSteady
}

// sampleDrift mide servidor - local como la mediana de tres lecturas,
// tomando la hora local en el punto medio de cada request.
func (e *Engine) sampleDrift(ctx context.Context) (int64, bool) {
	samples := make([]int64, 0, 3)
	for i := 0; i < 3; i++ {
		t0 := e.now()
		srv, err := e.ex.ServerTime(ctx)
		t1 := e.now()
		if err != nil {
			slog.Debug("live: drift sample failed", "err", err)
		} else {
			mid := t0.Add(t1.Sub(t0) / 2).UnixMilli()
			samples = append(samples, srv-mid)
			e.st.SetServerMs(srv)
		}
		if i < 2 {
			e.sleep(ctx, e.cfg.Health.DriftSampleGap)
		}
	}
	if len(samples) == 0 {
		return 0, false
	}
	return domain.MedianInt64(samples), true
}

// updateDrift muestrea el drift cada DriftEvery ciclos (o siempre si force),
// ajusta la firma y la ventana de recepción y aplica la histéresis.
func (e *Engine) updateDrift(ctx context.Context, force bool) {
	if !force && e.cycle%int64(e.cfg.Health.DriftEvery) != 0 {
		return
	}
	off, ok := e.sampleDrift(ctx)
	if !ok {
		slog.Warn("live: drift sampling failed, keeping previous offset")
		return
	}
	e.ex.SetTimeOffset(off)
	e.ex.BumpRecvWindow(abs64(off) >= e.cfg.Health.DriftSoftMs)
	e.metrics.SetDrift(off)

	switch e.st.RecordDrift(off, e.cfg.Health) {
	case driftEnterSafe:
		slog.Warn("live: safe mode on, sustained clock drift", "drift_ms", off, "hard_ms", e.cfg.Health.DriftHardMs)
		e.metrics.SetSafeMode(true)
	case driftRecovered:
		slog.Info("live: safe mode off, clock drift recovered", "drift_ms", off)
		e.metrics.SetSafeMode(false)
	}
}

// serverNow estima la hora del exchange con el último drift medido.
func (e *Engine) serverNow() int64 {
	return e.now().UnixMilli() + e.st.Drift()
}

// freshWindow es la edad máxima del último mensaje de mercado para dar el
// stream por fresco: 0.6 barras del timeframe, mínimo 20s, con tope.
func (e *Engine) freshWindow() time.Duration {
	w := minFreshWindow
	if m := e.cfg.Timeframe.Minutes(); m > 0 {
		w = max(w, time.Duration(float64(m)*0.6*float64(time.Minute)))
	}
	return min(w, e.cfg.Health.FreshMax)
}

// streamFresh reporta si el ring del stream sirve para este ciclo.
func (e *Engine) streamFresh() bool {
	_, _, at := e.st.Book()
	if at.IsZero() || e.now().Sub(at) >= e.freshWindow() {
		return false
	}
	return e.st.BufferLen(e.cfg.Timeframe) > e.cfg.Health.MinBufferBars
}

// checkStale evalúa la edad de la última vela cerrada contra los umbrales.
// Pasado el umbral duro entra en safe mode; con datos frescos de nuevo lo
// levanta si el motivo fue la staleness.
func (e *Engine) checkStale(last domain.Candle) (stale bool, age time.Duration) {
	age = time.Duration(e.serverNow()-last.OpenTime) * time.Millisecond
	e.metrics.SetFeedAge(age.Seconds())
	h := e.cfg.Health
	if h.SafeMode && age > h.StaleHard {
		if on, _ := e.st.Safe(); !on {
			slog.Warn("live: safe mode on, market data stale", "age", age.Round(time.Second))
			e.metrics.SetSafeMode(true)
		}
		e.st.SetSafe(true, reasonStaleHard)
	}
	if age > h.StaleAfter {
		return true, age
	}
	if on, why := e.st.Safe(); on && why == reasonStaleHard && h.SafeAutoRecover {
		e.st.SetSafe(false, "")
		e.metrics.SetSafeMode(false)
		slog.Info("live: safe mode off, market data fresh again")
	}
	return false, age
}

// safeGate bloquea entradas por safe mode, stream no fresco (tras la gracia
// del backfill) o listen key caída cuando se exige.
func (e *Engine) safeGate(fresh bool) (bool, string) {
	h := e.cfg.Health
	if on, why := e.st.Safe(); h.SafeMode && on {
		if why == "" {
			why = "safe_mode"
		}
		return true, why
	}
	if e.market != nil && !fresh {
		if e.grace > 0 {
			e.grace--
		} else {
			return true, "ws_not_fresh"
		}
	}
	if h.RequireListenKey && e.userHealthy != nil && !e.userHealthy() {
		return true, "uds_listenkey_unhealthy"
	}
	return false, ""
}

// watchdog fuerza una reconexión del stream de mercado si lleva más de
// Watchdog sin mensajes. Dispara una vez por episodio.
func (e *Engine) watchdog() {
	if e.market == nil {
		return
	}
	_, _, at := e.st.Book()
	if at.IsZero() {
		return
	}
	silent := e.now().Sub(at) > e.cfg.Health.Watchdog
	switch {
	case silent && !e.watchdogFired:
		slog.Warn("live: market stream silent, forcing reconnect", "silent", e.now().Sub(at).Round(time.Second))
		e.market.Reconnect()
		e.metrics.IncReconnect("market_watchdog")
		e.watchdogFired = true
	case !silent && e.watchdogFired:
		e.watchdogFired = false
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
