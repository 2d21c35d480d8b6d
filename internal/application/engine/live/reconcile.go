package live

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/alejandrodnm/sweepbot/internal/domain"
)

// maxTakeProfits es cuántos TPs distintos puede tener una posición (final y parcial).
const maxTakeProfits = 2

// ReconcileReport resume lo que hizo una pasada de reconciliación.
type ReconcileReport struct {
	Position      float64
	StopsKept     int
	StopsCanceled int
	TPsKept       int
	TPsCanceled   int
	Unclassified  int
	TrailRestored bool
}

// Reconcile alinea las órdenes abiertas con la posición real. Sin posición
// cancela stops y TPs; con posición conserva el stop más reciente del lado
// correcto y hasta dos TPs de precio distinto, y rehidrata el registro de
// trailing desde el stop conservado.
func (e *Engine) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var rep ReconcileReport
	pos, err := e.position(ctx)
	if err != nil {
		return rep, fmt.Errorf("live.Reconcile: positions: %w", err)
	}
	open, err := e.ex.OpenOrders(ctx, e.cfg.Symbol)
	if err != nil {
		return rep, fmt.Errorf("live.Reconcile: open orders: %w", err)
	}

	var stops, tps []domain.Order
	for _, o := range open {
		switch {
		case o.IsProtectiveStop():
			stops = append(stops, o)
		case o.IsTakeProfit():
			tps = append(tps, o)
		default:
			rep.Unclassified++
		}
	}
	rep.Position = pos.Amount

	if pos.Amount == 0 {
		rep.StopsCanceled = e.cancelAll(ctx, stops)
		rep.TPsCanceled = e.cancelAll(ctx, tps)
		e.st.ClearTrail(e.st.Trail().Side)
		e.logReconcile(rep)
		return rep, nil
	}

	side := domain.Long
	if pos.Amount < 0 {
		side = domain.Short
	}
	exit := side.ExitSide()

	// stops: el más reciente del lado de salida sobrevive
	var keep *domain.Order
	var cancel []domain.Order
	for i := range stops {
		o := stops[i]
		if o.Side != exit {
			cancel = append(cancel, o)
			continue
		}
		if keep == nil || o.UpdateTime > keep.UpdateTime {
			if keep != nil {
				cancel = append(cancel, *keep)
			}
			keep = &stops[i]
			continue
		}
		cancel = append(cancel, o)
	}
	rep.StopsCanceled = e.cancelAll(ctx, cancel)

	prev := e.st.Trail()
	if keep != nil {
		rec := domain.TrailingStopRecord{
			Side:      side,
			StopPrice: keep.StopPrice,
			ClientID:  keep.ClientID,
			OrderID:   keep.OrderID,
		}
		// la entrada y el 1R solo se conservan si el registro era de la misma posición
		if prev.Side == side {
			rec.Entry, rec.InitStop = prev.Entry, prev.InitStop
		}
		if rec.Entry == 0 {
			rec.Entry = pos.EntryPrice
		}
		e.st.SetTrail(rec)
		rep.StopsKept = 1
		rep.TrailRestored = true
	} else {
		e.st.ClearTrail(side)
	}

	// TPs: únicos por precio, los más lejanos primero, como mucho dos
	var good []domain.Order
	cancel = cancel[:0]
	for _, o := range tps {
		if o.Side != exit {
			cancel = append(cancel, o)
			continue
		}
		good = append(good, o)
	}
	slices.SortStableFunc(good, func(a, b domain.Order) int {
		if side == domain.Long {
			return cmp.Compare(b.StopPrice, a.StopPrice)
		}
		return cmp.Compare(a.StopPrice, b.StopPrice)
	})
	seen := make(map[float64]bool, len(good))
	for _, o := range good {
		if seen[o.StopPrice] || len(seen) >= maxTakeProfits {
			cancel = append(cancel, o)
			continue
		}
		seen[o.StopPrice] = true
	}
	rep.TPsKept = len(seen)
	rep.TPsCanceled = e.cancelAll(ctx, cancel)

	e.logReconcile(rep)
	return rep, nil
}

func (e *Engine) logReconcile(rep ReconcileReport) {
	attrs := []any{
		"symbol", e.cfg.Symbol,
		"position", rep.Position,
		"stops_kept", rep.StopsKept,
		"stops_canceled", rep.StopsCanceled,
		"tps_kept", rep.TPsKept,
		"tps_canceled", rep.TPsCanceled,
	}
	if rep.Unclassified > 0 {
		attrs = append(attrs, "unclassified", rep.Unclassified)
	}
	if rep.StopsCanceled+rep.TPsCanceled > 0 {
		slog.Info("live: reconcile", attrs...)
		return
	}
	slog.Debug("live: reconcile", attrs...)
}

// cancelAll cancela cada orden y devuelve cuántas se cancelaron.
func (e *Engine) cancelAll(ctx context.Context, orders []domain.Order) int {
	n := 0
	for _, o := range orders {
		err := e.ex.CancelOrder(ctx, e.cfg.Symbol, domain.OrderRef{OrderID: o.OrderID, ClientID: o.ClientID})
		if err != nil {
			slog.Warn("live: reconcile cancel failed", "order_id", o.OrderID, "type", o.Type, "err", err)
			continue
		}
		n++
	}
	return n
}

// position devuelve la posición del símbolo; Amount 0 si no hay.
func (e *Engine) position(ctx context.Context) (domain.Position, error) {
	ps, err := e.ex.Positions(ctx, e.cfg.Symbol)
	if err != nil {
		return domain.Position{}, err
	}
	for _, p := range ps {
		if p.Symbol == e.cfg.Symbol && p.Amount != 0 {
			return p, nil
		}
	}
	return domain.Position{Symbol: e.cfg.Symbol}, nil
}
