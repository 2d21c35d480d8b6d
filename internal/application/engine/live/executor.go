package live

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/sweepbot/internal/domain"
	"github.com/alejandrodnm/sweepbot/internal/strategy"
)

// newClientID genera un client order id único. Binance admite hasta 36
// caracteres, así que se usa el uuid sin guiones recortado.
func newClientID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "_" + id[:24]
}

// errEntryNotPlaced indica que la entrada falló y no se encontró por client id.
var errEntryNotPlaced = fmt.Errorf("entry not placed")

// submitEntry coloca la entrada a mercado con un client id nuevo. Ante un
// fallo de transporte consulta la orden por ese mismo id antes de darla por
// fallida: el ack pudo perderse aunque la orden exista.
func (e *Engine) submitEntry(ctx context.Context, side domain.Side, qty float64) (domain.Order, error) {
	cid := newClientID("entry")
	req := domain.OrderRequest{
		Side:     side.EntrySide(),
		Type:     domain.OrderMarket,
		Quantity: domain.FormatIncrement(qty, e.inst.Step),
		ClientID: cid,
	}
	o, err := e.ex.SubmitOrder(ctx, e.cfg.Symbol, req)
	if err == nil {
		if o.ClientID == "" {
			o.ClientID = cid
		}
		return o, nil
	}
	if !domain.IsTransient(err) {
		return domain.Order{ClientID: cid}, fmt.Errorf("live.submitEntry: %w", err)
	}

	if found, ok := e.findByClientID(ctx, cid); ok {
		slog.Warn("live: entry ack lost, order found by client id",
			"client_id", cid, "status", found.Status, "err", err)
		return found, nil
	}
	return domain.Order{ClientID: cid}, fmt.Errorf("live.submitEntry: %w: %w", errEntryNotPlaced, err)
}

// findByClientID consulta la orden con reintentos acotados y demora fija.
// Solo cuenta como colocada si el estado es NEW, PARTIALLY_FILLED o FILLED.
func (e *Engine) findByClientID(ctx context.Context, cid string) (domain.Order, bool) {
	for i := 0; i < e.cfg.QueryRetries; i++ {
		o, err := e.ex.QueryOrder(ctx, e.cfg.Symbol, cid)
		if err == nil && o.Status.Placed() {
			if o.ClientID == "" {
				o.ClientID = cid
			}
			return o, true
		}
		if err != nil {
			slog.Debug("live: query by client id failed", "client_id", cid, "attempt", i+1, "err", err)
		}
		e.sleep(ctx, e.cfg.QueryDelay)
	}
	return domain.Order{}, false
}

// placeStop coloca un STOP_MARKET closePosition del lado de salida.
func (e *Engine) placeStop(ctx context.Context, side domain.Side, stop float64, cid string) (domain.Order, error) {
	price := domain.ProtectivePrice(side, stop, e.inst.Tick)
	o, err := e.ex.SubmitOrder(ctx, e.cfg.Symbol, domain.OrderRequest{
		Side:          side.ExitSide(),
		Type:          domain.OrderStopMarket,
		StopPrice:     domain.FormatIncrement(price, e.inst.Tick),
		ClosePosition: true,
		ClientID:      cid,
		WorkingType:   e.cfg.WorkingType,
	})
	if err != nil {
		return domain.Order{}, err
	}
	if o.ClientID == "" {
		o.ClientID = cid
	}
	return o, nil
}

// placeTakeProfit coloca un TAKE_PROFIT_MARKET reduce-only.
func (e *Engine) placeTakeProfit(ctx context.Context, side domain.Side, price, qty float64, which string) error {
	_, err := e.ex.SubmitOrder(ctx, e.cfg.Symbol, domain.OrderRequest{
		Side:        side.ExitSide(),
		Type:        domain.OrderTakeProfitMarket,
		StopPrice:   domain.FormatIncrement(domain.RoundToTick(price, e.inst.Tick, domain.RoundNearest), e.inst.Tick),
		Quantity:    domain.FormatIncrement(qty, e.inst.Step),
		ReduceOnly:  true,
		ClientID:    newClientID("tp" + which[:1]),
		WorkingType: e.cfg.WorkingType,
	})
	if err != nil {
		return fmt.Errorf("live.placeTakeProfit: %s: %w", which, err)
	}
	return nil
}

// protectNewPosition coloca el stop inicial y los take-profits de una
// entrada recién colocada. Los fallos de TP se registran y no se reintentan;
// un stop fallido deja el registro vacío para que el próximo ciclo lo
// restablezca.
func (e *Engine) protectNewPosition(ctx context.Context, side domain.Side, entry, stop, qty float64, tg strategy.Targets) (stopPlaced bool) {
	cid := newClientID("stop")
	o, err := e.placeStop(ctx, side, stop, cid)
	if err != nil {
		e.orderError("protective_stop", err)
		slog.Error("live: protective stop failed", "symbol", e.cfg.Symbol, "client_id", cid, "err", err)
	} else {
		e.st.SetTrail(domain.TrailingStopRecord{
			Side:      side,
			StopPrice: domain.ProtectivePrice(side, stop, e.inst.Tick),
			ClientID:  o.ClientID,
			OrderID:   o.OrderID,
			Entry:     entry,
			InitStop:  stop,
		})
		stopPlaced = true
	}

	var qtyP float64
	if tg.HasPartial() {
		qtyP = domain.FloorToStep(qty*domain.Clamp(e.cfg.Risk.PartialFrac, 0, 1), e.inst.Step)
	}
	qtyF := domain.FloorToStep(max(qty-qtyP, 0), e.inst.Step)
	if qtyF > 0 && tg.Final > 0 {
		if err := e.placeTakeProfit(ctx, side, tg.Final, qtyF, "final"); err != nil {
			e.metrics.IncOrderError("take_profit")
			slog.Warn("live: take profit submit failed", "symbol", e.cfg.Symbol, "which", "final", "err", err)
		}
	}
	if qtyP > 0 {
		if err := e.placeTakeProfit(ctx, side, tg.Partial, qtyP, "partial"); err != nil {
			e.metrics.IncOrderError("take_profit")
			slog.Warn("live: take profit submit failed", "symbol", e.cfg.Symbol, "which", "partial", "err", err)
		}
	}
	if stopPlaced {
		e.orderCB.Reset()
	}
	return stopPlaced
}

// cancelWhere cancela las órdenes abiertas que cumplen match. Devuelve
// cuántas se cancelaron; los fallos individuales se registran y siguen.
func (e *Engine) cancelWhere(ctx context.Context, what string, match func(domain.Order) bool) int {
	open, err := e.ex.OpenOrders(ctx, e.cfg.Symbol)
	if err != nil {
		slog.Warn("live: list open orders failed", "what", what, "err", err)
		return 0
	}
	n := 0
	for _, o := range open {
		if !match(o) {
			continue
		}
		if err := e.ex.CancelOrder(ctx, e.cfg.Symbol, domain.OrderRef{OrderID: o.OrderID, ClientID: o.ClientID}); err != nil {
			slog.Warn("live: cancel failed", "what", what, "order_id", o.OrderID, "err", err)
			continue
		}
		n++
	}
	return n
}

func (e *Engine) cancelProtectiveStops(ctx context.Context) int {
	return e.cancelWhere(ctx, "protective_stops", domain.Order.IsProtectiveStop)
}

func (e *Engine) cancelTakeProfits(ctx context.Context) int {
	return e.cancelWhere(ctx, "take_profits", domain.Order.IsTakeProfit)
}

// checkFill compara el nocional ejecutado con los topes. Solo avisa: una
// entrada ya colocada nunca se deshace por esto.
func (e *Engine) checkFill(ctx context.Context, o domain.Order, gross float64) {
	if o.FillNotional() <= 0 {
		q, err := e.ex.QueryOrder(ctx, e.cfg.Symbol, o.ClientID)
		if err != nil {
			slog.Debug("live: post-fill query failed", "client_id", o.ClientID, "err", err)
			return
		}
		o = q
	}
	fill := o.FillNotional()
	r := e.cfg.Risk
	var which []string
	if r.NotionalCap > 0 && fill > r.NotionalCap*(1+1e-6) {
		which = append(which, "per_trade")
	}
	if r.GrossCap > 0 && gross+fill > r.GrossCap*(1+1e-6) {
		which = append(which, "gross")
	}
	if len(which) > 0 {
		slog.Warn("live: post-fill cap exceeded",
			"which", strings.Join(which, "/"), "fill_notional", fill, "client_id", o.ClientID)
	}
}

// orderError cuenta un fallo de orden y arma el circuito de órdenes.
func (e *Engine) orderError(op string, err error) time.Duration {
	e.metrics.IncOrderError(op)
	pause := e.orderCB.Record()
	if pause > 0 {
		slog.Warn("live: order error circuit tripped", "op", op, "pause", pause, "err", err)
	}
	return pause
}
