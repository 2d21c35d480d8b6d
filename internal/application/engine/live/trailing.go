package live

import (
	"context"
	"log/slog"
	"math"

	"github.com/alejandrodnm/sweepbot/internal/domain"
)

const atrPeriod = 14

// manageTrailing corre una vez por ciclo con la posición ya leída. Sin
// posición limpia un registro huérfano; con posición y sin stop válido lo
// restablece; si no, propone un trailing y reemplaza el stop si mejora.
func (e *Engine) manageTrailing(ctx context.Context, pos domain.Position, cs []domain.Candle, last float64) {
	rec := e.st.Trail()
	if pos.Amount == 0 {
		if rec.Valid() {
			slog.Info("live: flat with tracked stop, clearing", "symbol", e.cfg.Symbol, "stop", rec.StopPrice)
			e.st.ClearTrail(rec.Side)
		}
		return
	}

	side := domain.Long
	if pos.Amount < 0 {
		side = domain.Short
	}
	atr := domain.ATR(cs, atrPeriod)

	if !rec.Valid() || rec.Side != side {
		e.restoreStop(ctx, side, pos, atr, last)
		return
	}

	entry := rec.Entry
	if entry <= 0 {
		entry = pos.EntryPrice
	}
	init := rec.InitStop
	if init <= 0 {
		init = rec.StopPrice
	}
	next, ok, why := domain.ProposeTrail(domain.TrailInput{
		Side:  side,
		Entry: entry,
		Stop:  init,
		Price: last,
		ATR:   atr,
	}, e.cfg.Trail)
	if !ok {
		slog.Debug("live: trail hold", "reason", why)
		return
	}
	next = e.clampToPrice(side, next, last)
	next = domain.ProtectivePrice(side, next, e.inst.Tick)
	if !rec.Improves(side, next, e.inst.Tick, e.cfg.Trail.MinTicks) {
		return
	}
	e.replaceStop(ctx, rec, next)
}

// clampToPrice mantiene el stop al menos MinStopTicks detrás del precio
// actual para que el exchange no lo rechace por disparo inmediato.
func (e *Engine) clampToPrice(side domain.Side, stop, last float64) float64 {
	if last <= 0 {
		return stop
	}
	guard := float64(max(1, e.cfg.Risk.MinStopTicks)) * e.inst.Tick
	if side == domain.Long {
		return math.Min(stop, last-guard)
	}
	return math.Max(stop, last+guard)
}

// restoreStop coloca un stop para una posición sin protección registrada, a
// RestoreATRMult ATRs de la entrada.
func (e *Engine) restoreStop(ctx context.Context, side domain.Side, pos domain.Position, atr, last float64) {
	entry := pos.EntryPrice
	if entry <= 0 {
		entry = last
	}
	dist := atr * e.cfg.RestoreATRMult
	if dist <= 0 {
		dist = float64(max(1, e.cfg.Risk.MinStopTicks)) * e.inst.Tick
	}
	stop := entry - side.Sign()*dist
	stop = e.clampToPrice(side, stop, last)

	cid := newClientID("stop")
	o, err := e.placeStop(ctx, side, stop, cid)
	if err != nil {
		e.orderError("restore_stop", err)
		slog.Error("live: restore stop failed", "symbol", e.cfg.Symbol, "side", side, "stop", stop, "err", err)
		return
	}
	e.st.SetTrail(domain.TrailingStopRecord{
		Side:      side,
		StopPrice: domain.ProtectivePrice(side, stop, e.inst.Tick),
		ClientID:  o.ClientID,
		OrderID:   o.OrderID,
		Entry:     entry,
		InitStop:  stop,
	})
	slog.Warn("live: protective stop restored", "symbol", e.cfg.Symbol, "side", side, "stop", stop, "entry", entry)
}

// replaceStop aplica el protocolo de reemplazo: primero el stop nuevo, luego
// se cancela el anterior y cualquier otro stop closePosition. Si el primer
// intento falla, se cancela el anterior y se reintenta una vez; si ambos
// fallan y el anterior ya no existe, se repone al precio previo.
func (e *Engine) replaceStop(ctx context.Context, old domain.TrailingStopRecord, next float64) bool {
	cid := newClientID("trail")
	o, err := e.placeStop(ctx, old.Side, next, cid)
	if err != nil {
		slog.Warn("live: trail place failed, retrying after cancel", "stop", next, "err", err)
		canceled := true
		if cerr := e.ex.CancelOrder(ctx, e.cfg.Symbol, old.Ref()); cerr != nil {
			canceled = false
			slog.Debug("live: cancel old stop failed", "err", cerr)
		}
		cid = newClientID("trail")
		o, err = e.placeStop(ctx, old.Side, next, cid)
		if err != nil {
			e.orderError("trail_replace", err)
			if canceled {
				e.reinstateStop(ctx, old)
			} else {
				slog.Error("live: trail replace failed, keeping previous stop",
					"symbol", e.cfg.Symbol, "prev", old.StopPrice, "next", next, "err", err)
			}
			return false
		}
	} else if cerr := e.ex.CancelOrder(ctx, e.cfg.Symbol, old.Ref()); cerr != nil {
		slog.Debug("live: cancel old stop failed", "err", cerr)
	}

	e.cancelWhere(ctx, "stale_stops", func(x domain.Order) bool {
		return x.IsProtectiveStop() && x.ClientID != o.ClientID
	})

	rec := old
	rec.StopPrice = next
	rec.ClientID = o.ClientID
	rec.OrderID = o.OrderID
	e.st.SetTrail(rec)
	e.metrics.IncTrailUpdate()
	slog.Info("live: trail moved", "symbol", e.cfg.Symbol, "side", old.Side, "from", old.StopPrice, "to", next)
	return true
}

// reinstateStop vuelve a colocar el stop previo tras cancelarlo. Si tampoco
// entra, el registro se limpia y el ciclo siguiente lo restablece.
func (e *Engine) reinstateStop(ctx context.Context, old domain.TrailingStopRecord) {
	o, err := e.placeStop(ctx, old.Side, old.StopPrice, newClientID("stop"))
	if err != nil {
		e.orderError("trail_reinstate", err)
		e.st.ClearTrail(old.Side)
		slog.Error("live: previous stop not reinstated, position unprotected until next cycle",
			"symbol", e.cfg.Symbol, "side", old.Side, "stop", old.StopPrice, "err", err)
		return
	}
	rec := old
	rec.ClientID = o.ClientID
	rec.OrderID = o.OrderID
	e.st.SetTrail(rec)
	slog.Warn("live: trail replace failed, previous stop reinstated",
		"symbol", e.cfg.Symbol, "side", old.Side, "stop", old.StopPrice)
}
