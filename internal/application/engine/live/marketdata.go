package live

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/sweepbot/internal/domain"
	"github.com/alejandrodnm/sweepbot/internal/strategy"
)

// priorPeriods mapea cada timeframe de extremos previos a sus tags.
var priorPeriods = []struct {
	tf     domain.Timeframe
	hi, lo domain.LevelTag
}{
	{domain.TF1d, domain.TagPDH, domain.TagPDL},
	{domain.TF1w, domain.TagPWH, domain.TagPWL},
	{domain.TF1M, domain.TagPMH, domain.TagPML},
}

// fetchClosed pide velas por REST y descarta la vela en curso.
func (e *Engine) fetchClosed(ctx context.Context, tf domain.Timeframe, limit int) ([]domain.Candle, error) {
	cs, err := e.ex.Klines(ctx, e.cfg.Symbol, tf, min(limit, 1500))
	if err != nil {
		return nil, err
	}
	d, err := tf.Duration()
	if err != nil {
		return nil, err
	}
	now := e.serverNow()
	n := len(cs)
	for n > 0 && cs[n-1].OpenTime+d.Milliseconds() > now {
		n--
	}
	return cs[:n], nil
}

// execCandles elige la fuente de velas del timeframe de ejecución: backfill
// en frío en el primer ciclo, el ring del stream si está fresco, o REST
// limitado a un pedido cada RestMinInterval. fresh indica si vino del stream.
func (e *Engine) execCandles(ctx context.Context) (cs []domain.Candle, fresh bool, err error) {
	tf := e.cfg.Timeframe
	if !e.backfilled {
		limit := e.cfg.BackfillBars
		if m := tf.Minutes(); m > 0 {
			limit = max(limit, 1440/m)
		}
		cs, err = e.fetchClosed(ctx, tf, limit)
		if err != nil {
			return nil, false, fmt.Errorf("live.execCandles: backfill: %w", err)
		}
		e.st.LoadCandles(tf, cs, true)
		e.restCache, e.restAt = cs, e.now()
		e.backfilled = true
		e.grace = max(e.grace, e.cfg.Health.FreshGrace)
		slog.Info("live: cold backfill done", "tf", tf, "bars", len(cs))
		return cs, false, nil
	}

	if e.market != nil && e.streamFresh() {
		return e.st.Candles(tf), true, nil
	}
	if len(e.restCache) > 0 && e.now().Sub(e.restAt) < e.cfg.Health.RestMinInterval {
		return e.restCache, false, nil
	}
	cs, err = e.fetchClosed(ctx, tf, restKlinesLimit)
	if err != nil {
		return nil, false, fmt.Errorf("live.execCandles: rest fallback: %w", err)
	}
	e.st.LoadCandles(tf, cs, false)
	e.restCache, e.restAt = cs, e.now()
	return cs, false, nil
}

// priorLevels devuelve los extremos del día, semana y mes previos como
// niveles, refrescados cada PriorTTL. Un fallo conserva el último cache.
func (e *Engine) priorLevels(ctx context.Context) []domain.LiquidityLevel {
	x := e.cfg.Context
	if !x.PriorEnabled {
		return nil
	}
	if !e.priorAt.IsZero() && e.now().Sub(e.priorAt) < x.PriorTTL {
		return e.prior
	}
	e.priorAt = e.now()

	jobs := make([]klineJob, 0, len(priorPeriods))
	for _, p := range priorPeriods {
		jobs = append(jobs, klineJob{tf: p.tf, limit: priorExtremesBars})
	}
	res := fetchKlinesConcurrent(ctx, e.ex, e.cfg.Symbol, jobs, x.PriorWorkers)

	var levels []domain.LiquidityLevel
	for _, p := range priorPeriods {
		r := res[p.tf]
		if r.err != nil {
			slog.Warn("live: prior extremes fetch failed", "tf", p.tf, "err", r.err)
			continue
		}
		// la última vela es la del periodo en curso
		if len(r.candles) < 2 {
			continue
		}
		prev := r.candles[len(r.candles)-2]
		levels = append(levels,
			domain.LiquidityLevel{Price: prev.High, Weight: x.PriorWeight, Tag: p.hi},
			domain.LiquidityLevel{Price: prev.Low, Weight: x.PriorWeight, Tag: p.lo},
		)
	}
	if len(levels) > 0 {
		e.prior = levels
	}
	return e.prior
}

// htfBias devuelve el sesgo de 1h/4h cacheado; se refresca cada BiasRefresh.
func (e *Engine) htfBias(ctx context.Context) float64 {
	x := e.cfg.Context
	if !x.BiasEnabled {
		return 0
	}
	if !e.biasAt.IsZero() && e.now().Sub(e.biasAt) < x.BiasRefresh {
		return e.bias
	}
	res := fetchKlinesConcurrent(ctx, e.ex, e.cfg.Symbol, []klineJob{
		{tf: domain.TF1h, limit: htfBiasBars},
		{tf: domain.TF4h, limit: htfBiasBars},
	}, 2)
	h1, h4 := res[domain.TF1h], res[domain.TF4h]
	if h1.err != nil || h4.err != nil {
		slog.Warn("live: htf bias refresh failed", "h1_err", h1.err, "h4_err", h4.err)
		return e.bias
	}
	e.bias = strategy.HTFBias(h1.candles, h4.candles, x.BiasHystBps)
	e.biasAt = e.now()
	return e.bias
}
