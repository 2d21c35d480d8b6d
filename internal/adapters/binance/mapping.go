package binance

import (
	"strconv"

	"github.com/adshao/go-binance/v2/futures"

	"github.com/alejandrodnm/sweepbot/internal/domain"
)

// parseFloat convierte los strings numéricos de la API; vacío o inválido = 0.
func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func toCandle(k *futures.Kline) domain.Candle {
	return domain.Candle{
		OpenTime: k.OpenTime,
		Open:     parseFloat(k.Open),
		High:     parseFloat(k.High),
		Low:      parseFloat(k.Low),
		Close:    parseFloat(k.Close),
		Volume:   parseFloat(k.Volume),
	}
}

func toOrder(o *futures.Order) domain.Order {
	return domain.Order{
		OrderID:       o.OrderID,
		ClientID:      o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          domain.OrderSide(o.Side),
		Type:          orderType(string(o.Type), string(o.OrigType)),
		Status:        domain.OrderStatus(o.Status),
		StopPrice:     parseFloat(o.StopPrice),
		OrigQty:       parseFloat(o.OrigQuantity),
		ExecutedQty:   parseFloat(o.ExecutedQuantity),
		AvgPrice:      parseFloat(o.AvgPrice),
		CumQuote:      parseFloat(o.CumQuote),
		ReduceOnly:    o.ReduceOnly,
		ClosePosition: o.ClosePosition,
		UpdateTime:    o.UpdateTime,
	}
}

func fromCreateResponse(r *futures.CreateOrderResponse) domain.Order {
	return domain.Order{
		OrderID:       r.OrderID,
		ClientID:      r.ClientOrderID,
		Symbol:        r.Symbol,
		Side:          domain.OrderSide(r.Side),
		Type:          domain.OrderType(r.Type),
		Status:        domain.OrderStatus(r.Status),
		StopPrice:     parseFloat(r.StopPrice),
		OrigQty:       parseFloat(r.OrigQuantity),
		ExecutedQty:   parseFloat(r.ExecutedQuantity),
		AvgPrice:      parseFloat(r.AvgPrice),
		CumQuote:      parseFloat(r.CumQuote),
		ReduceOnly:    r.ReduceOnly,
		ClosePosition: r.ClosePosition,
		UpdateTime:    r.UpdateTime,
	}
}

// orderType usa origType cuando la orden ya se disparó (un STOP_MARKET
// ejecutado se reporta como MARKET).
func orderType(typ, origType string) domain.OrderType {
	if origType != "" {
		return domain.OrderType(origType)
	}
	return domain.OrderType(typ)
}

func toPosition(p *futures.PositionRisk) domain.Position {
	return domain.Position{
		Symbol:     p.Symbol,
		Amount:     parseFloat(p.PositionAmt),
		EntryPrice: parseFloat(p.EntryPrice),
		MarkPrice:  parseFloat(p.MarkPrice),
		Isolated:   p.MarginType == "isolated",
	}
}

func toInstrument(s futures.Symbol) domain.Instrument {
	inst := domain.Instrument{Symbol: s.Symbol, QuoteAsset: s.QuoteAsset}
	if pf := s.PriceFilter(); pf != nil {
		inst.Tick = parseFloat(pf.TickSize)
	}
	// el lot size de órdenes MARKET manda; si falta se usa LOT_SIZE
	if ml := s.MarketLotSizeFilter(); ml != nil {
		inst.Step = parseFloat(ml.StepSize)
	}
	if inst.Step <= 0 {
		if ls := s.LotSizeFilter(); ls != nil {
			inst.Step = parseFloat(ls.StepSize)
		}
	}
	if mn := s.MinNotionalFilter(); mn != nil {
		inst.MinNotional = parseFloat(mn.Notional)
	}
	return inst
}
