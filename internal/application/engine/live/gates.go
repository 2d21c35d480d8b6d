package live

import (
	"context"
	"log/slog"

	"github.com/alejandrodnm/sweepbot/internal/domain"
	"github.com/alejandrodnm/sweepbot/internal/strategy"
)

// gateResult es el veredicto de los gates de riesgo sobre un candidato.
// counted indica si el bloqueo cuenta para el circuito de bloqueos.
type gateResult struct {
	reason   string
	counted  bool
	score    float64 // score tras la penalización de funding
	riskFrac float64 // riesgo final tras funding y throttle
	funding  domain.FundingDecision
	mark     float64
}

func (g gateResult) blocked() bool { return g.reason != "" }

// evaluateGates aplica, en orden y con corto circuito: funding, umbral de
// score, guardrail diario, cooldown tras pérdida y throttle de drawdown.
func (e *Engine) evaluateGates(ctx context.Context, setup strategy.Setup, serverMs int64) gateResult {
	g := gateResult{score: setup.Score}

	var info *domain.FundingInfo
	if e.cfg.Funding.Enabled {
		fi, err := e.ex.Funding(ctx, e.cfg.Symbol)
		if err != nil {
			slog.Warn("live: funding fetch failed", "symbol", e.cfg.Symbol, "err", err)
		} else {
			info = &fi
			g.mark = fi.MarkPrice
		}
	}
	g.funding = e.cfg.Funding.Evaluate(info, serverMs)
	if g.funding.Block {
		g.reason = "funding." + g.funding.Reason
		return g
	}
	g.score -= g.funding.Penalty

	r := e.cfg.Risk
	if g.score < r.ScoreThreshold {
		g.reason = "score_below"
		return g
	}

	ledger := e.st.Ledger()
	if ledger.GuardrailBlocked(r.MaxTrades, r.MaxDailyLoss) {
		g.reason = "daily_guardrails"
		g.counted = true
		return g
	}
	if ledger.CooldownActive(serverMs, r.LossCooldown) {
		g.reason = "cooldown"
		g.counted = true
		return g
	}

	g.riskFrac = r.Throttle.Apply(r.RiskPct, ledger) * g.funding.RiskMult
	if g.riskFrac < r.RiskPct {
		slog.Debug("live: risk throttled",
			"base", r.RiskPct, "effective", g.riskFrac,
			"loss_frac", ledger.LossFraction(), "funding_mult", g.funding.RiskMult)
	}
	return g
}

// equity devuelve el balance para dimensionar, cacheado BalanceTTL. Con
// UseAvailable se usa el disponible en vez del total.
func (e *Engine) equity(ctx context.Context) (float64, error) {
	if v, ok := e.st.CachedBalance(e.now(), e.cfg.Risk.BalanceTTL); ok {
		return v, nil
	}
	total, avail, err := e.ex.Balance(ctx, e.inst.QuoteAsset)
	if err != nil {
		return 0, err
	}
	v := total
	if e.cfg.Risk.UseAvailable {
		v = avail
	}
	e.st.SetBalance(v, e.now())
	return v, nil
}

// grossExposure suma la exposición de todas las posiciones abiertas de la
// cuenta, valuadas con el último precio o el mark según PriceSource.
func (e *Engine) grossExposure(ctx context.Context) (float64, error) {
	ps, err := e.ex.Positions(ctx, "")
	if err != nil {
		return 0, err
	}
	if len(ps) == 0 {
		return 0, nil
	}
	prices := make(map[string]float64, len(ps))
	if e.cfg.Risk.PriceSource == "mark" {
		for _, p := range ps {
			prices[p.Symbol] = p.MarkPrice
		}
		return domain.GrossExposure(ps, prices), nil
	}
	last, err := e.lastPrices(ctx)
	if err != nil {
		return 0, err
	}
	for _, p := range ps {
		px, ok := last[p.Symbol]
		if !ok || px <= 0 {
			px = p.MarkPrice
		}
		prices[p.Symbol] = px
	}
	return domain.GrossExposure(ps, prices), nil
}

// lastPrices cachea los precios de todos los símbolos durante BalanceTTL.
func (e *Engine) lastPrices(ctx context.Context) (map[string]float64, error) {
	if e.prices != nil && e.now().Sub(e.pricesAt) < e.cfg.Risk.BalanceTTL {
		return e.prices, nil
	}
	m, err := e.ex.LastPrices(ctx)
	if err != nil {
		return nil, err
	}
	e.prices, e.pricesAt = m, e.now()
	return m, nil
}

// sizeEntry dimensiona el candidato con el riesgo ya ajustado. Devuelve el
// resultado con Reason no vacío si hay que saltear el ciclo.
func (e *Engine) sizeEntry(ctx context.Context, c domain.Candidate, riskFrac, last float64) (domain.SizeResult, float64) {
	eq, err := e.equity(ctx)
	if err != nil {
		slog.Warn("live: balance fetch failed", "err", err)
		return domain.SizeResult{Reason: "balance_unavailable"}, 0
	}
	var gross float64
	if e.cfg.Risk.GrossCap > 0 {
		gross, err = e.grossExposure(ctx)
		if err != nil {
			slog.Warn("live: exposure fetch failed", "err", err)
			return domain.SizeResult{Reason: "exposure_unavailable"}, 0
		}
	}
	if last <= 0 {
		last = c.Entry
	}
	res := domain.SizePosition(domain.SizeInput{
		Equity:        eq,
		RiskFrac:      riskFrac,
		Entry:         c.Entry,
		Stop:          c.Stop,
		Tick:          e.inst.Tick,
		Step:          e.inst.Step,
		MinStopTicks:  e.cfg.Risk.MinStopTicks,
		LastPrice:     last,
		NotionalCap:   e.cfg.Risk.NotionalCap,
		GrossExposure: gross,
		GrossCap:      e.cfg.Risk.GrossCap,
	})
	if res.Reason == "" && e.inst.MinNotional > 0 && res.Notional < e.inst.MinNotional {
		res.Reason = "min_notional"
	}
	return res, gross
}
