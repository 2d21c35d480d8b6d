package live

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/alejandrodnm/sweepbot/internal/domain"
	"github.com/alejandrodnm/sweepbot/internal/ports"
)

const defaultFeedCapacity = 256

// RunFeeds consume el stream de mercado y el de cuenta hasta que ctx
// termina. Cada feed entrega a un canal acotado con un único consumidor, así
// los eventos se aplican en orden y un consumidor lento frena al lector en
// vez de acumular memoria. user puede ser nil.
func (e *Engine) RunFeeds(ctx context.Context, user ports.UserFeed, capacity int) {
	if capacity <= 0 {
		capacity = defaultFeedCapacity
	}
	var wg sync.WaitGroup

	if e.market != nil {
		mch := make(chan domain.MarketEvent, capacity)
		wg.Add(2)
		go func() {
			defer wg.Done()
			defer close(mch)
			err := e.market.Run(ctx, func(ev domain.MarketEvent) {
				select {
				case mch <- ev:
				case <-ctx.Done():
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("live: market feed stopped", "err", err)
			}
		}()
		go func() {
			defer wg.Done()
			for ev := range mch {
				e.applyMarket(ev)
			}
		}()
	}

	if user != nil {
		uch := make(chan domain.UserEvent, capacity)
		wg.Add(2)
		go func() {
			defer wg.Done()
			defer close(uch)
			err := user.Run(ctx, func(ev domain.UserEvent) {
				select {
				case uch <- ev:
				case <-ctx.Done():
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("live: user feed stopped", "err", err)
			}
		}()
		go func() {
			defer wg.Done()
			for ev := range uch {
				e.applyUser(ctx, ev)
			}
		}()
	}

	wg.Wait()
}

// applyMarket guarda velas cerradas y el mejor bid/ask.
func (e *Engine) applyMarket(ev domain.MarketEvent) {
	at := e.now()
	switch ev.Kind {
	case domain.EventKline:
		e.st.AppendCandle(ev.Interval, ev.Candle, at)
	case domain.EventBookTicker:
		e.st.SetBook(ev.Bid, ev.Ask, at)
	}
}

// applyUser aplica la higiene de salidas y el realizado de la cuenta.
func (e *Engine) applyUser(ctx context.Context, ev domain.UserEvent) {
	switch ev.Kind {
	case domain.EventOrderUpdate:
		e.onOrderUpdate(ctx, ev)
	case domain.EventAccountUpdate:
		e.onAccountUpdate(ev)
	case domain.EventListenKeyExpired:
		slog.Warn("live: listen key expired")
		e.metrics.IncReconnect("user_listenkey")
		if e.onKeyExpired != nil {
			e.onKeyExpired()
		}
	}
}

// onOrderUpdate: un TP ejecutado con la posición ya cerrada deja stops
// huérfanos; un stop ejecutado deja TPs huérfanos.
func (e *Engine) onOrderUpdate(ctx context.Context, ev domain.UserEvent) {
	o := ev.Order
	if o.Symbol != "" && o.Symbol != e.cfg.Symbol {
		return
	}
	if o.Status != domain.StatusFilled {
		return
	}
	switch {
	case o.IsTakeProfit():
		pos, err := e.position(ctx)
		if err != nil {
			slog.Warn("live: position check after take profit failed", "err", err)
			return
		}
		if pos.Amount != 0 {
			slog.Info("live: take profit filled, position remains", "client_id", o.ClientID, "amount", pos.Amount)
			return
		}
		n := e.cancelProtectiveStops(ctx)
		e.st.ClearTrail(e.st.Trail().Side)
		slog.Info("live: take profit closed position", "client_id", o.ClientID, "stops_canceled", n)
	case o.IsProtectiveStop():
		n := e.cancelTakeProfits(ctx)
		e.st.ClearTrail(e.st.Trail().Side)
		slog.Info("live: protective stop filled", "client_id", o.ClientID, "tps_canceled", n)
	}
}

// onAccountUpdate convierte el realizado acumulado por símbolo en deltas del día.
func (e *Engine) onAccountUpdate(ev domain.UserEvent) {
	for _, p := range ev.Positions {
		if p.Symbol == "" {
			continue
		}
		delta, seeded := e.st.ApplyRealized(p.Symbol, p.CumRealized, ev.EventTime)
		if seeded {
			slog.Debug("live: realized baseline seeded", "symbol", p.Symbol, "cum", p.CumRealized)
			continue
		}
		if delta == 0 {
			continue
		}
		l := e.st.Ledger()
		e.metrics.SetRealizedToday(l.RealizedToday)
		slog.Info("live: realized pnl",
			"symbol", p.Symbol, "delta", delta, "realized_today", l.RealizedToday, "loss", delta < 0)
	}
}
