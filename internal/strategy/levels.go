package strategy

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/alejandrodnm/sweepbot/internal/domain"
)

const day = 24 * time.Hour

// BuildLevels collects every enabled level source, assigns each level to a
// side strictly by last price, then clusters and caps each side to TopK.
func (s *SweepFVG) BuildLevels(snap Snapshot, active []domain.SessionWindow) (above, below []domain.LiquidityLevel) {
	cs := snap.Candles
	if len(cs) == 0 || snap.LastPrice <= 0 {
		return nil, nil
	}
	lc := s.cfg.Levels
	var raw []domain.LiquidityLevel

	if lc.EQEnabled {
		eqh, eql := EqualLevels(cs, snap.Tick, lc.EQLookback, lc.EQSpreadTicks, lc.EQMinHits)
		for _, p := range eqh {
			raw = append(raw, domain.LiquidityLevel{Price: p, Weight: lc.WeightEQ, Tag: domain.TagEQH})
		}
		for _, p := range eql {
			raw = append(raw, domain.LiquidityLevel{Price: p, Weight: lc.WeightEQ, Tag: domain.TagEQL})
		}
	}
	if lc.SessionsEnabled {
		for _, w := range s.cfg.Sessions {
			if hi, lo, ok := SessionExtremes(cs, w, s.cfg.Location); ok {
				raw = append(raw,
					domain.LiquidityLevel{Price: hi, Weight: lc.WeightSession, Tag: domain.SessionHigh(w.Name)},
					domain.LiquidityLevel{Price: lo, Weight: lc.WeightSession, Tag: domain.SessionLow(w.Name)})
			}
		}
	}
	if lc.ORBEnabled {
		if hi, lo, ok := s.openingRange(cs); ok {
			raw = append(raw,
				domain.LiquidityLevel{Price: hi, Weight: lc.WeightORB, Tag: domain.TagORBH},
				domain.LiquidityLevel{Price: lo, Weight: lc.WeightORB, Tag: domain.TagORBL})
		}
	}
	if lc.RangeEnabled {
		if hi, lo, ok := RollingRange(cs, lc.RangeWindow, lc.RangeMinTouches, lc.RangeATRFracMax); ok {
			raw = append(raw,
				domain.LiquidityLevel{Price: hi, Weight: lc.WeightRange, Tag: domain.TagRNGH},
				domain.LiquidityLevel{Price: lo, Weight: lc.WeightRange, Tag: domain.TagRNGL})
		}
	}
	if lc.FVGEdgesEnabled {
		for _, e := range UnfilledFVGEdges(cs, s.cfg.Detect.FVG, s.cfg.Detect.Fill, snap.Tick, lc.FVGEdgeMaxAge) {
			raw = append(raw, domain.LiquidityLevel{Price: e, Weight: lc.WeightFVG, Tag: domain.TagFVG})
		}
	}
	if lc.FiguresEnabled {
		for _, f := range BigFigures(snap.LastPrice, lc.FigureIncrement, lc.FigureQuarters) {
			raw = append(raw, domain.LiquidityLevel{Price: f, Weight: lc.WeightFigure, Tag: domain.TagFig})
		}
	}
	if lc.VWAPEnabled {
		for _, w := range active {
			if up, lo, ok := SessionVWAPBands(cs, w, lc.VWAPStdK, s.cfg.Location); ok {
				raw = append(raw,
					domain.LiquidityLevel{Price: up, Weight: lc.WeightVWAP, Tag: domain.TagVWAPU},
					domain.LiquidityLevel{Price: lo, Weight: lc.WeightVWAP, Tag: domain.TagVWAPL})
			}
		}
	}
	raw = append(raw, snap.Prior...)

	above, below = domain.SplitBySide(raw, snap.LastPrice)
	above = domain.TopK(domain.ClusterLevels(above, lc.ClusterBps), lc.TopK, snap.LastPrice)
	below = domain.TopK(domain.ClusterLevels(below, lc.ClusterBps), lc.TopK, snap.LastPrice)
	return above, below
}

// EqualLevels finds strict pivot highs/lows (two bars each side, the pivot
// itself excluded from the comparison) over the lookback and keeps clusters
// of at least minHits pivots within spreadTicks of each other.
func EqualLevels(cs []domain.Candle, tick float64, lookback, spreadTicks, minHits int) (highs, lows []float64) {
	n := len(cs)
	start := max(0, n-lookback)
	var ph, pl []float64
	for i := start + 2; i < n-2; i++ {
		h := cs[i].High
		if h > cs[i-2].High && h > cs[i-1].High && h > cs[i+1].High && h > cs[i+2].High {
			ph = append(ph, h)
		}
		l := cs[i].Low
		if l < cs[i-2].Low && l < cs[i-1].Low && l < cs[i+1].Low && l < cs[i+2].Low {
			pl = append(pl, l)
		}
	}
	return clusterPivots(ph, tick, spreadTicks, minHits), clusterPivots(pl, tick, spreadTicks, minHits)
}

func clusterPivots(piv []float64, tick float64, spreadTicks, minHits int) []float64 {
	if len(piv) == 0 {
		return nil
	}
	sort.Float64s(piv)
	var out []float64
	cluster := []float64{piv[0]}
	flush := func() {
		if len(cluster) >= minHits {
			sum := 0.0
			for _, c := range cluster {
				sum += c
			}
			out = append(out, sum/float64(len(cluster)))
		}
	}
	for _, p := range piv[1:] {
		tolBps := float64(spreadTicks) * math.Max(domain.Eps, tick) / math.Max(domain.Eps, p) * 1e4
		if domain.WithinBps(p, cluster[len(cluster)-1], tolBps) {
			cluster = append(cluster, p)
			continue
		}
		flush()
		cluster = []float64{p}
	}
	flush()
	return out
}

// inWindow filters the last 24h of candles to those whose local time of
// day falls in w.
func inWindow(cs []domain.Candle, w domain.SessionWindow, loc *time.Location) []domain.Candle {
	if len(cs) == 0 {
		return nil
	}
	cutoff := cs[len(cs)-1].OpenTime - day.Milliseconds()
	var out []domain.Candle
	for _, c := range domain.CandlesSince(cs, cutoff) {
		if w.Contains(domain.MinuteOfDay(c.Time(), loc)) {
			out = append(out, c)
		}
	}
	return out
}

// SessionExtremes devuelve el high/low de la sesión dentro de las últimas 24h.
func SessionExtremes(cs []domain.Candle, w domain.SessionWindow, loc *time.Location) (hi, lo float64, ok bool) {
	s := inWindow(cs, w, loc)
	if len(s) == 0 {
		return 0, 0, false
	}
	hi, lo = domain.RangeHighLow(s)
	return hi, lo, true
}

func (s *SweepFVG) openingRange(cs []domain.Candle) (hi, lo float64, ok bool) {
	lc := s.cfg.Levels
	startHM := 0
	if strings.EqualFold(lc.ORBAnchor, "session") {
		for _, w := range s.cfg.Sessions {
			if strings.EqualFold(w.Name, lc.ORBSession) {
				startHM = w.Start
			}
		}
	}
	return OpeningRange(cs, startHM, lc.ORBMinutes, s.cfg.Location)
}

// OpeningRange returns the high/low of [anchor, anchor+minutes) where anchor
// is the most recent local startHM at or before the last candle.
func OpeningRange(cs []domain.Candle, startHM, minutes int, loc *time.Location) (hi, lo float64, ok bool) {
	if len(cs) == 0 || minutes <= 0 {
		return 0, 0, false
	}
	last := cs[len(cs)-1].Time().In(loc)
	y, mo, d := last.Date()
	anchor := time.Date(y, mo, d, startHM/60, startHM%60, 0, 0, loc)
	if last.Before(anchor) {
		anchor = anchor.AddDate(0, 0, -1)
	}
	from := anchor.UnixMilli()
	to := anchor.Add(time.Duration(minutes) * time.Minute).UnixMilli()
	var win []domain.Candle
	for _, c := range domain.CandlesSince(cs, from) {
		if c.OpenTime >= to {
			break
		}
		win = append(win, c)
	}
	if len(win) == 0 {
		return 0, 0, false
	}
	hi, lo = domain.RangeHighLow(win)
	return hi, lo, true
}

// RollingRange detecta un rango lateral: amplitud de la ventana acotada por
// ATR(20) y al menos minTouches cierres pegados a uno de los bordes.
func RollingRange(cs []domain.Candle, window, minTouches int, atrFracMax float64) (hi, lo float64, ok bool) {
	if window <= 0 || len(cs) < max(window, 25) {
		return 0, 0, false
	}
	seg := cs[len(cs)-window:]
	hi, lo = domain.RangeHighLow(seg)
	a := domain.ATR(cs, 20)
	if a == 0 {
		a = domain.Eps
	}
	if hi-lo > atrFracMax*2*a {
		return 0, 0, false
	}
	nearHi, nearLo := 0, 0
	for _, c := range seg {
		if math.Abs(c.Close-hi) <= 0.15*a {
			nearHi++
		}
		if math.Abs(c.Close-lo) <= 0.15*a {
			nearLo++
		}
	}
	if nearHi >= minTouches || nearLo >= minTouches {
		return hi, lo, true
	}
	return 0, 0, false
}

// UnfilledFVGEdges returns both edges of every imbalance younger than maxAge
// bars that the bars after it have not filled.
func UnfilledFVGEdges(cs []domain.Candle, fp domain.FVGParams, pol domain.FillPolicy, tick float64, maxAge int) []float64 {
	var out []float64
	last := len(cs) - 1
	for _, f := range domain.DetectFVGs(cs, fp, tick) {
		if last-f.BarIndex > maxAge {
			continue
		}
		if domain.FVGFilled(cs[f.BarIndex+1:], f.Low, f.High, pol) {
			continue
		}
		out = append(out, f.Low, f.High)
	}
	return out
}

// BigFigures devuelve los números redondos que encierran al precio.
func BigFigures(last, inc float64, quarters bool) []float64 {
	if last <= 0 || inc <= 0 {
		return nil
	}
	base := math.Floor(last/inc) * inc
	out := []float64{base, base + inc}
	if quarters {
		for _, q := range []float64{0.25, 0.5, 0.75} {
			out = append(out, base+inc*q, base+inc*(1+q))
		}
	}
	sort.Float64s(out)
	return out
}

// SessionVWAPBands computes a volume-weighted typical price over the
// session's bars in the last 24h and returns vwap ± k·σ.
func SessionVWAPBands(cs []domain.Candle, w domain.SessionWindow, k float64, loc *time.Location) (upper, lower float64, ok bool) {
	s := inWindow(cs, w, loc)
	if len(s) == 0 {
		return 0, 0, false
	}
	var wsum, vsum float64
	tps := make([]float64, len(s))
	for i, c := range s {
		tps[i] = (c.High + c.Low + c.Close) / 3
		v := math.Max(0, c.Volume)
		wsum += tps[i] * v
		vsum += v
	}
	vsum += domain.Eps
	vwap := wsum / vsum
	dev := 0.0
	for i, c := range s {
		d := tps[i] - vwap
		dev += d * d * math.Max(0, c.Volume)
	}
	std := math.Sqrt(math.Max(0, dev/vsum))
	return vwap + k*std, vwap - k*std, true
}
