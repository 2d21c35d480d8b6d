package domain

import "math"

// SizeInput reúne lo necesario para dimensionar una entrada.
type SizeInput struct {
	Equity        float64
	RiskFrac      float64 // ya multiplicado por throttle y funding
	Entry         float64
	Stop          float64
	Tick          float64
	Step          float64
	MinStopTicks  int
	LastPrice     float64
	NotionalCap   float64 // 0 = deshabilitado
	GrossExposure float64 // exposición bruta actual en quote
	GrossCap      float64 // 0 = deshabilitado
}

// SizeResult es la cantidad resultante o el motivo del rechazo.
type SizeResult struct {
	Qty      float64
	Distance float64
	Notional float64
	Reason   string // vacío si Qty > 0
}

// SizePosition converts the risk budget into an exchange-legal quantity and
// applies the per-trade and gross exposure caps. A non-empty Reason means skip.
func SizePosition(in SizeInput) SizeResult {
	guard := float64(max(1, in.MinStopTicks)) * in.Tick
	dist := math.Max(math.Abs(in.Entry-in.Stop), guard)
	if dist <= 0 || in.Equity <= 0 || in.RiskFrac <= 0 {
		return SizeResult{Distance: dist, Reason: "qty_zero"}
	}
	qty := FloorToStep(in.RiskFrac*in.Equity/dist, in.Step)
	if qty <= 0 {
		return SizeResult{Distance: dist, Reason: "qty_zero"}
	}
	res := SizeResult{Qty: qty, Distance: dist, Notional: qty * in.LastPrice}
	if in.NotionalCap > 0 && res.Notional > in.NotionalCap*(1+1e-6) {
		res.Reason = "notional_cap"
		return res
	}
	if in.GrossCap > 0 && in.GrossExposure+res.Notional > in.GrossCap {
		res.Reason = "gross_cap"
		return res
	}
	return res
}

// ClampStop enforces the minimum stop distance on the protective side and
// snaps the stop to the tick grid away from price.
func ClampStop(side Side, entry, stop, tick float64, minTicks int) float64 {
	guard := float64(max(1, minTicks)) * tick
	if side == Long {
		stop = math.Min(stop, entry-guard)
	} else {
		stop = math.Max(stop, entry+guard)
	}
	stop = ProtectivePrice(side, stop, tick)
	if side == Long && entry-stop < guard-Eps {
		stop = ProtectivePrice(side, entry-guard, tick)
	}
	if side == Short && stop-entry < guard-Eps {
		stop = ProtectivePrice(side, entry+guard, tick)
	}
	return stop
}

// GrossExposure sums |amount| × price over positions, using prices keyed
// by symbol. Positions without a price are skipped.
func GrossExposure(positions []Position, prices map[string]float64) float64 {
	total := 0.0
	for _, p := range positions {
		px, ok := prices[p.Symbol]
		if !ok || px <= 0 {
			continue
		}
		total += math.Abs(p.Amount) * px
	}
	return total
}
