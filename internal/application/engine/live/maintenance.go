package live

import (
	"context"
	"log/slog"

	"github.com/alejandrodnm/sweepbot/internal/domain"
)

// maintain corre las tareas periódicas del inicio de cada ciclo. Ninguna
// bloquea el ciclo: los fallos se registran y se reintentan más tarde.
func (e *Engine) maintain(ctx context.Context) {
	now := e.now()

	if now.Sub(e.lastTimePoll) >= e.cfg.TimePoll {
		if srv, err := e.ex.ServerTime(ctx); err == nil {
			e.st.SetServerMs(srv)
			e.lastTimePoll = now
		} else {
			slog.Debug("live: server time poll failed", "err", err)
		}
	}
	e.updateDrift(ctx, false)
	e.watchdog()

	if now.Sub(e.instAt) >= e.cfg.InstrumentRefresh {
		if err := e.refreshInstrument(ctx); err != nil {
			slog.Warn("live: instrument refresh failed, keeping filters", "err", err)
		}
	}

	e.rollover(ctx)
	e.pollRealized(ctx)
	e.flushBlocked(ctx)

	if e.cycle%int64(e.cfg.ReconcileEvery) == 0 {
		if _, err := e.Reconcile(ctx); err != nil {
			slog.Warn("live: periodic reconcile failed", "err", err)
		}
	}
}

// refreshInstrument relee tick, step y min notional.
func (e *Engine) refreshInstrument(ctx context.Context) error {
	inst, err := e.ex.Instrument(ctx, e.cfg.Symbol)
	if err != nil {
		return err
	}
	if !inst.Valid() {
		return &domain.ExchangeError{Kind: domain.KindFatal, Op: "instrument", Msg: "tick or step is zero"}
	}
	if inst != e.inst && e.inst.Valid() {
		slog.Info("live: instrument filters changed",
			"tick", inst.Tick, "step", inst.Step, "min_notional", inst.MinNotional)
	}
	e.inst, e.instAt = inst, e.now()
	return nil
}

// rollover reinicia el ledger cuando cambia la fecha de trading en la zona
// de sesiones, medida con la hora del exchange.
func (e *Engine) rollover(ctx context.Context) {
	srv := e.serverNow()
	key := domain.DayKey(srv, e.cfg.Location)
	if e.st.Ledger().Date == key {
		return
	}
	e.st.InvalidateBalance()
	eq, err := e.equity(ctx)
	if err != nil {
		slog.Warn("live: balance for day start failed", "err", err)
		eq = 0
	}
	prev := e.st.Ledger()
	if e.st.Rollover(key, eq, e.cfg.DedupeKeep) {
		l := e.st.Ledger()
		slog.Info("live: day rollover",
			"from", prev.Date, "to", key,
			"start_equity", l.StartEquity,
			"prev_realized", prev.RealizedToday, "prev_trades", prev.TradesToday)
		e.metrics.SetRealizedToday(l.RealizedToday)
	}
}

// pollRealized suma el realizado del día por REST cuando el stream de cuenta
// no es confiable. Una caída respecto del valor previo cuenta como pérdida.
func (e *Engine) pollRealized(ctx context.Context) {
	if e.userHealthy == nil || e.userHealthy() {
		return
	}
	if e.now().Sub(e.lastRealizedPoll) < e.cfg.RealizedPoll {
		return
	}
	e.lastRealizedPoll = e.now()
	srv := e.serverNow()
	total, err := e.ex.RealizedPnL(ctx, e.cfg.Symbol, domain.DayStartMs(srv, e.cfg.Location))
	if err != nil {
		slog.Warn("live: realized pnl fallback failed", "err", err)
		return
	}
	before := e.st.Ledger().RealizedToday
	e.st.SetRealizedTotal(total, srv)
	e.metrics.SetRealizedToday(total)
	if total != before {
		slog.Info("live: realized pnl from income", "realized_today", total, "prev", before)
	}
}

// flushBlocked vuelca los motivos de bloqueo del minuto anterior al journal
// y a las métricas.
func (e *Engine) flushBlocked(ctx context.Context) {
	counts := e.st.TakeBlocked(domain.EpochMinute(e.serverNow()))
	if len(counts) == 0 {
		return
	}
	for _, c := range counts {
		e.metrics.IncBlocked(c.Reason, c.Count)
	}
	if e.journal == nil {
		return
	}
	if err := e.journal.RecordBlocked(ctx, counts); err != nil {
		slog.Warn("live: journal blocked counts failed", "err", err)
	}
}
