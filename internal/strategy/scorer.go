package strategy

import (
	"math"
	"strings"
	"time"

	"github.com/alejandrodnm/sweepbot/internal/domain"
)

// ScoreTerms desglosa el score final para logs y journal.
type ScoreTerms struct {
	Base        float64
	Session     float64
	Proximity   float64
	PoolV2      float64
	Containment float64
	BOS         float64
	CHOCH       float64
	HTF         float64
}

// Total es la suma de todos los términos.
func (t ScoreTerms) Total() float64 {
	return t.Base + t.Session + t.Proximity + t.PoolV2 + t.Containment + t.BOS + t.CHOCH + t.HTF
}

// ScoreCandidate augments the detector's base score with session, level
// proximity, structure and higher-timeframe terms.
func (s *SweepFVG) ScoreCandidate(c domain.Candidate, snap Snapshot, above, below []domain.LiquidityLevel, activeSessions int) ScoreTerms {
	sc := s.cfg.Score
	t := ScoreTerms{
		Base:    c.BaseScore,
		Session: domain.SessionBonus(activeSessions, sc.SessionBonus, sc.OverlapBonus),
	}
	ahead := aheadLevels(c, above, below)

	near := 0.0
	for _, l := range ahead {
		near += proximity(l.Price, c.Entry, sc.ProximityBps) * sc.PoolNearUnit
	}
	t.Proximity = sc.PoolScoreGain * near
	t.PoolV2 = sc.PoolV2Weight * PoolScore(ahead, c.Entry, sc.HTFTagMult, sc.ProximityBps, sc.HTFTags)

	if Contained(snap.Candles, c.Gap, sc.ContainmentWin, snap.Timeframe) {
		t.Containment = sc.ContainmentW
	}
	bos, choch := StructureBreaks(snap.Candles, c.Side, snap.Tick)
	if bos {
		t.BOS = sc.BOSWeight
	}
	if choch {
		t.CHOCH = sc.CHOCHWeight
	}
	if snap.HTFBias*c.Side.Sign() > 0 {
		t.HTF = sc.HTFWeight
	}
	return t
}

// aheadLevels devuelve los niveles más allá de la entrada en la dirección
// del trade: arriba para long, abajo para short.
func aheadLevels(c domain.Candidate, above, below []domain.LiquidityLevel) []domain.LiquidityLevel {
	var out []domain.LiquidityLevel
	src := below
	if c.Side == domain.Long {
		src = above
	}
	for _, l := range src {
		if c.Side.Sign()*(l.Price-c.Entry) > 0 {
			out = append(out, l)
		}
	}
	return out
}

func proximity(price, ref, windowBps float64) float64 {
	return domain.Clamp(1-domain.BpsDistance(price, ref)/math.Max(1e-6, windowBps), 0, 1)
}

// PoolScore sums weight × proximity over levels, boosting higher-timeframe
// tags by htfMult.
func PoolScore(levels []domain.LiquidityLevel, ref, htfMult, windowBps float64, htfTags map[domain.LevelTag]bool) float64 {
	total := 0.0
	for _, l := range levels {
		m := 1.0
		if htfTags[domain.LevelTag(strings.ToUpper(string(l.Tag)))] {
			m = htfMult
		}
		total += l.Weight * proximity(l.Price, ref, windowBps) * m
	}
	return total
}

// Contained reports whether the gap lies inside the range of the bars in the
// trailing window. With no bars in the window it falls back to a tail of
// max(5, tf/2) bars.
func Contained(cs []domain.Candle, gap domain.FVG, window time.Duration, tf domain.Timeframe) bool {
	if len(cs) == 0 {
		return false
	}
	from := cs[len(cs)-1].OpenTime - window.Milliseconds()
	w := domain.CandlesSince(cs, from)
	if len(w) == 0 {
		w = cs[max(0, len(cs)-max(5, tf.Minutes()/2)):]
	}
	hi, lo := domain.RangeHighLow(w)
	return gap.Low >= lo && gap.High <= hi
}

// LastPivots walks newest to oldest for the most recent pivot high/low:
// strictly beyond the window bars on the left, at least equal on the right.
func LastPivots(cs []domain.Candle, window int) (ph, pl float64, ok bool) {
	n := len(cs)
	if n < 2*window+1 {
		return 0, 0, false
	}
	var foundH, foundL bool
	for j := n - window - 1; j >= window && !(foundH && foundL); j-- {
		if !foundH && pivotHigh(cs, j, window) {
			ph, foundH = cs[j].High, true
		}
		if !foundL && pivotLow(cs, j, window) {
			pl, foundL = cs[j].Low, true
		}
	}
	return ph, pl, foundH && foundL
}

func pivotHigh(cs []domain.Candle, j, w int) bool {
	for k := j - w; k < j; k++ {
		if cs[k].High >= cs[j].High {
			return false
		}
	}
	for k := j + 1; k <= j+w; k++ {
		if cs[k].High > cs[j].High {
			return false
		}
	}
	return true
}

func pivotLow(cs []domain.Candle, j, w int) bool {
	for k := j - w; k < j; k++ {
		if cs[k].Low <= cs[j].Low {
			return false
		}
	}
	for k := j + 1; k <= j+w; k++ {
		if cs[k].Low < cs[j].Low {
			return false
		}
	}
	return true
}

// StructureBreaks evaluates break-of-structure (close beyond the last
// opposing pivot) and change-of-character (higher low for longs, lower high
// for shorts over the last three bars), both by a threshold of
// max(tick, 5% ATR).
func StructureBreaks(cs []domain.Candle, side domain.Side, tick float64) (bos, choch bool) {
	ph, pl, ok := LastPivots(cs, 4)
	if !ok {
		return false, false
	}
	n := len(cs)
	last := cs[n-1].Close
	thr := math.Max(math.Max(tick, domain.Eps), 0.05*domain.ATR(cs, 14))
	if side == domain.Short {
		bos = last < pl-thr
		choch = n >= 3 && cs[n-3].High-cs[n-1].High >= thr
		return bos, choch
	}
	bos = last > ph+thr
	choch = n >= 3 && cs[n-1].Low-cs[n-3].Low >= thr
	return bos, choch
}

// HTFBias combines EMA(20) signs on two higher timeframes. A timeframe
// whose close is within hystBps of its EMA contributes 0.
func HTFBias(h1, h4 []domain.Candle, hystBps float64) float64 {
	sign := func(cs []domain.Candle) float64 {
		if len(cs) == 0 {
			return 0
		}
		px := cs[len(cs)-1].Close
		e := domain.EMA(domain.Closes(cs), 20)
		if domain.WithinBps(px, e, hystBps) {
			return 0
		}
		if px > e {
			return 1
		}
		return -1
	}
	b := sign(h1) + sign(h4)
	switch {
	case b > 0:
		return 1
	case b < 0:
		return -1
	}
	return 0
}
