package strategy

import (
	"math"
	"sort"

	"github.com/alejandrodnm/sweepbot/internal/domain"
)

// Regime son los umbrales adaptados a la volatilidad reciente.
type Regime struct {
	PenetrationBps float64
	CloseBackBps   float64
	RR             float64
}

// AdaptRegime escala penetración y close-back con rango(20)/ATR y el RR
// objetivo en sentido inverso: rangos amplios piden barridas más profundas
// y objetivos más cortos.
func (s *SweepFVG) AdaptRegime(cs []domain.Candle) Regime {
	d := s.cfg.Detect
	r := Regime{PenetrationBps: d.PenetrationBps, CloseBackBps: d.CloseBackBps, RR: s.cfg.Targets.RR}
	if !d.RegimeAdapt || len(cs) == 0 {
		return r
	}
	a := domain.ATR(cs, 14)
	hi, lo := domain.RangeHighLow(cs[max(0, len(cs)-20):])
	rng := math.Max(domain.Eps, (hi-lo)/(a+domain.Eps))
	k := domain.Clamp(rng/6, 0.75, 1.25)
	r.PenetrationBps *= k
	r.CloseBackBps *= k
	r.RR *= domain.Clamp(6/rng, 0.8, 1.2)
	return r
}

type levelVisit struct {
	lvl  domain.LiquidityLevel
	side domain.Side // lado del trade si el nivel es barrido
}

// Detect looks for a level swept and reclaimed within MaxRejectBars, then
// for the most recent opposing imbalance up to the reclaim bar. Levels are
// visited nearest to last price first; the first match wins.
func (s *SweepFVG) Detect(cs []domain.Candle, above, below []domain.LiquidityLevel, last, tick float64, rg Regime) *domain.Candidate {
	d := s.cfg.Detect
	n := len(cs)
	if n < d.MinBars {
		return nil
	}
	visits := make([]levelVisit, 0, len(above)+len(below))
	for _, l := range above {
		visits = append(visits, levelVisit{lvl: l, side: domain.Short})
	}
	for _, l := range below {
		visits = append(visits, levelVisit{lvl: l, side: domain.Long})
	}
	sort.SliceStable(visits, func(i, j int) bool {
		return domain.BpsDistance(visits[i].lvl.Price, last) < domain.BpsDistance(visits[j].lvl.Price, last)
	})

	a := domain.ATR(cs, 14)
	if a == 0 {
		a = domain.Eps
	}
	pen, cb := rg.PenetrationBps/1e4, rg.CloseBackBps/1e4
	tmax := max(0, d.MaxRejectBars)

	for _, v := range visits {
		lvl := v.lvl.Price
		for i := n - 3; i > 3; i-- {
			var swept bool
			if v.side == domain.Short {
				swept = cs[i].High >= lvl*(1+pen)
			} else {
				swept = cs[i].Low <= lvl*(1-pen)
			}
			if !swept {
				continue
			}
			j := reclaimBar(cs, i, tmax, lvl, cb, v.side)
			if j < 0 {
				continue
			}
			window := cs[:j+1]
			gap, ok := lastFVG(domain.DetectFVGs(window, d.FVG, tick), v.side == domain.Long)
			if !ok {
				continue
			}
			return s.candidate(v.side, cs[i], i, lvl, gap, window, a, tick)
		}
	}
	return nil
}

// reclaimBar devuelve la primera vela en [i, i+tmax] que cierra de vuelta
// del otro lado del nivel, o -1.
func reclaimBar(cs []domain.Candle, i, tmax int, lvl, cb float64, side domain.Side) int {
	end := min(len(cs)-1, i+tmax)
	for j := i; j <= end; j++ {
		if side == domain.Short && cs[j].Close <= lvl*(1-cb) {
			return j
		}
		if side == domain.Long && cs[j].Close >= lvl*(1+cb) {
			return j
		}
	}
	return -1
}

func lastFVG(fvgs []domain.FVG, bullish bool) (domain.FVG, bool) {
	for k := len(fvgs) - 1; k >= 0; k-- {
		if fvgs[k].Bullish == bullish {
			return fvgs[k], true
		}
	}
	return domain.FVG{}, false
}

func (s *SweepFVG) candidate(side domain.Side, sweep domain.Candle, i int, lvl float64, gap domain.FVG, window []domain.Candle, atr, tick float64) *domain.Candidate {
	d := s.cfg.Detect
	q := domain.FVGQuality(window, gap.Low, gap.High, d.Quality)
	disp := domain.Clamp(sweep.Body()/atr/1.5, 0, 1)
	c := &domain.Candidate{
		Side:      side,
		BaseScore: d.BaseOffset + d.QualityWeight*q + d.DisplacementWeight*disp,
		Gap:       gap,
		SweepBar:  i,
		Level:     lvl,
	}
	t := math.Max(tick, domain.Eps)
	if side == domain.Short {
		c.Entry = domain.EntryPrice(side, gap.High, tick)
		c.Stop = domain.ProtectivePrice(side, math.Max(sweep.High, gap.High)+t, tick)
		c.Tags = []string{"sweep_above"}
	} else {
		c.Entry = domain.EntryPrice(side, gap.Low, tick)
		c.Stop = domain.ProtectivePrice(side, math.Min(sweep.Low, gap.Low)-t, tick)
		c.Tags = []string{"sweep_below"}
	}
	return c
}
