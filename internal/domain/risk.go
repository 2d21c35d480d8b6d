package domain

import (
	"math"
	"time"
)

// DayLedger es el estado diario de riesgo. Se resetea en cada rollover.
type DayLedger struct {
	Date             string  // YYYY-MM-DD en la zona de sesiones
	StartEquity      float64 // equity al inicio del día
	RealizedToday    float64
	TradesToday      int
	LastLossServerMs int64 // 0 = sin pérdidas registradas
}

// LossFraction es la pérdida realizada del día sobre la equity inicial.
// Las ganancias nunca compensan: un día positivo devuelve 0.
func (d DayLedger) LossFraction() float64 {
	if d.StartEquity <= 0 {
		return 0
	}
	return math.Max(0, -d.RealizedToday) / d.StartEquity
}

// GuardrailBlocked reports whether the daily trade count or loss limit is hit.
func (d DayLedger) GuardrailBlocked(maxTrades int, maxLossFrac float64) bool {
	if maxTrades > 0 && d.TradesToday >= maxTrades {
		return true
	}
	return maxLossFrac > 0 && d.LossFraction() >= maxLossFrac
}

// CooldownActive reports whether the last loss is more recent than cooldown,
// measured on the exchange clock. Unknown times never block.
func (d DayLedger) CooldownActive(serverMs int64, cooldown time.Duration) bool {
	if d.LastLossServerMs <= 0 || serverMs <= 0 || cooldown <= 0 {
		return false
	}
	return time.Duration(serverMs-d.LastLossServerMs)*time.Millisecond < cooldown
}

// RecordRealized suma un delta de PnL realizado y marca la pérdida.
func (d *DayLedger) RecordRealized(delta float64, serverMs int64) {
	d.RealizedToday += delta
	if delta < 0 && serverMs > 0 {
		d.LastLossServerMs = serverMs
	}
}

// ThrottleLadder reduce el riesgo en dos escalones de drawdown diario.
type ThrottleLadder struct {
	DD1   float64 // primer umbral de drawdown (fracción)
	DD2   float64
	Mult1 float64 // multiplicador pasado DD1
	Mult2 float64 // multiplicador pasado DD2
}

// Apply devuelve el riesgo base escalado por el drawdown del ledger.
func (t ThrottleLadder) Apply(base float64, d DayLedger) float64 {
	dd := d.LossFraction()
	switch {
	case t.DD2 > 0 && dd >= t.DD2:
		return base * t.Mult2
	case t.DD1 > 0 && dd >= t.DD1:
		return base * t.Mult1
	}
	return base
}

// FundingPolicy define cómo tratar la ventana de funding.
type FundingPolicy struct {
	Enabled     bool
	Window      time.Duration
	Symmetric   bool // true: bloquea antes y después; false: solo antes
	BlockNear   bool
	Penalty     float64 // penalización de score cerca del funding
	HighAbsBps  float64
	HighRiskMul float64
}

// FundingDecision is the funding gate's verdict for one candidate.
type FundingDecision struct {
	Block    bool
	Reason   string
	Penalty  float64
	RiskMult float64
	MinsTo   float64
	AbsBps   float64
}

// Evaluate applies the policy. Missing funding timing or missing server time
// blocks with reason "time_unknown".
func (p FundingPolicy) Evaluate(info *FundingInfo, serverMs int64) FundingDecision {
	d := FundingDecision{RiskMult: 1}
	if !p.Enabled {
		return d
	}
	if info == nil || info.NextFundingTime <= 0 || serverMs <= 0 {
		d.Block = true
		d.Reason = "time_unknown"
		return d
	}
	d.MinsTo = float64(info.NextFundingTime-serverMs) / 60000
	d.AbsBps = math.Abs(info.Rate) * 1e4

	window := math.Max(1, p.Window.Minutes())
	var near bool
	if p.Symmetric {
		near = math.Abs(d.MinsTo) <= window
	} else {
		near = d.MinsTo >= 0 && d.MinsTo <= window
	}
	if near && p.BlockNear {
		d.Block = true
		d.Reason = "near_funding_block"
		return d
	}
	if near {
		d.Penalty = p.Penalty
	}
	if p.HighAbsBps > 0 && d.AbsBps >= p.HighAbsBps {
		d.RiskMult = p.HighRiskMul
	}
	return d
}
