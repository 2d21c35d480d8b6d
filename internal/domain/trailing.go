package domain

import "math"

// TrailingStopRecord is the engine's view of the live protective stop.
// A position without a valid record needs reconciliation.
type TrailingStopRecord struct {
	Side      Side
	StopPrice float64
	ClientID  string
	OrderID   int64
	Entry     float64 // 0 si se rehidrató sin conocer la entrada
	InitStop  float64 // stop inicial; define 1R
}

// Valid reports whether the record references a live stop.
func (r TrailingStopRecord) Valid() bool {
	return r.StopPrice > 0 && (r.ClientID != "" || r.OrderID != 0)
}

// Ref devuelve la referencia de orden del stop.
func (r TrailingStopRecord) Ref() OrderRef {
	return OrderRef{OrderID: r.OrderID, ClientID: r.ClientID}
}

// TrailParams configura la regla de trailing.
type TrailParams struct {
	ActivationR float64 // R a partir del cual se sigue al precio por ATR
	ATRMult     float64
	MinTicks    int // mejora mínima para aplicar un cambio
}

// TrailInput is the state the trailing rule evaluates.
type TrailInput struct {
	Side  Side
	Entry float64
	Stop  float64 // stop inicial (define 1R)
	Price float64
	ATR   float64
}

// ProposeTrail returns the stop the position should carry, or ok=false with
// a reason when no move applies. At 1R the stop goes to at least breakeven;
// past the activation threshold it trails ATR×mult behind price. The result
// never loosens relative to in.Stop.
func ProposeTrail(in TrailInput, p TrailParams) (stop float64, ok bool, reason string) {
	risk := math.Abs(in.Entry - in.Stop)
	if risk < Eps {
		risk = Eps
	}
	r := in.Side.Sign() * (in.Price - in.Entry) / risk
	if r < 1 {
		return 0, false, "below_1r"
	}
	next := in.Stop
	if in.Side == Long {
		next = math.Max(next, in.Entry)
	} else {
		next = math.Min(next, in.Entry)
	}
	if r >= p.ActivationR {
		if in.ATR <= 0 {
			return 0, false, "atr_zero"
		}
		if in.Side == Long {
			next = math.Max(next, in.Price-p.ATRMult*in.ATR)
		} else {
			next = math.Min(next, in.Price+p.ATRMult*in.ATR)
		}
	}
	return next, true, ""
}

// Improves reports whether newStop tightens the tracked stop by at least
// minTicks ticks on the protective side.
func (r TrailingStopRecord) Improves(side Side, newStop, tick float64, minTicks int) bool {
	if r.StopPrice <= 0 || r.Side != side {
		return true
	}
	need := float64(max(1, minTicks)) * tick
	if side == Long {
		return newStop-r.StopPrice >= need-Eps
	}
	return r.StopPrice-newStop >= need-Eps
}
