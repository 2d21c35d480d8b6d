package domain

import "math"

// FVG es un desequilibrio de tres velas (fair value gap).
type FVG struct {
	Bullish  bool
	Low      float64
	High     float64
	BarIndex int // índice de la tercera vela dentro del slice analizado
}

// Mid es el punto medio del gap.
func (f FVG) Mid() float64 { return (f.Low + f.High) / 2 }

// FVGParams define el umbral mínimo del gap.
type FVGParams struct {
	UseBps   bool    // umbral en bps del ancla en lugar de ticks
	MinTicks float64 // umbral en ticks
	MinBps   float64
	RelaxBps float64 // relajación restada del umbral, anclada igual que MinBps
}

// DetectFVGs escanea todas las ventanas de tres velas. Un gap alcista existe
// cuando low[i] >= high[i-2] + umbral; bajista cuando low[i-2] >= high[i] + umbral.
func DetectFVGs(cs []Candle, p FVGParams, tick float64) []FVG {
	if len(cs) < 5 {
		return nil
	}
	var out []FVG
	tickAbs := math.Max(tick, Eps)
	relax := math.Max(0, p.RelaxBps) / 1e4
	for i := 2; i < len(cs); i++ {
		h2, l2 := cs[i-2].High, cs[i-2].Low
		var thrBull, thrBear float64
		if p.UseBps {
			thrBull = h2 * p.MinBps / 1e4
			thrBear = l2 * p.MinBps / 1e4
		} else {
			thrBull = p.MinTicks * tickAbs
			thrBear = thrBull
		}
		thrBull = math.Max(0, thrBull-h2*relax)
		thrBear = math.Max(0, thrBear-l2*relax)

		if cs[i].Low >= h2+thrBull {
			out = append(out, FVG{Bullish: true, Low: h2, High: cs[i].Low, BarIndex: i})
		}
		if l2 >= cs[i].High+thrBear {
			out = append(out, FVG{Bullish: false, Low: cs[i].High, High: l2, BarIndex: i})
		}
	}
	return out
}

// FillRule decide cuándo un gap se considera rellenado.
type FillRule string

const (
	FillTouch FillRule = "touch"
	FillMid   FillRule = "mid"
	FillFull  FillRule = "full"
)

// FillPolicy parametriza FVGFilled.
type FillPolicy struct {
	Rule              FillRule
	RequireBody       bool    // usar el cuerpo de la vela en lugar de las mechas
	MinPenetrationATR float64 // profundidad mínima en múltiplos de ATR(14)
	MinConsecutive    int
}

// FVGFilled reports whether any run of MinConsecutive bars in cs satisfies
// the fill rule for the gap [low, high].
func FVGFilled(cs []Candle, low, high float64, pol FillPolicy) bool {
	if len(cs) == 0 || math.IsNaN(low) || math.IsNaN(high) {
		return false
	}
	if low > high {
		low, high = high, low
	}
	mid := (low + high) / 2
	a := ATR(cs, 14)
	if a == 0 {
		a = Eps
	}
	needDepth := math.Max(0, pol.MinPenetrationATR) * a
	need := max(1, pol.MinConsecutive)

	consec := 0
	for _, c := range cs {
		testLow, testHigh := c.Low, c.High
		if pol.RequireBody {
			testLow, testHigh = math.Min(c.Open, c.Close), math.Max(c.Open, c.Close)
		}
		overlaps := testHigh >= low && testLow <= high
		depth := 0.0
		if overlaps {
			depth = math.Min(testHigh, high) - math.Max(testLow, low)
		}
		var ok bool
		switch pol.Rule {
		case FillMid:
			ok = testLow <= mid && mid <= testHigh && depth >= needDepth
		case FillFull:
			ok = testLow <= low && testHigh >= high
		default:
			ok = overlaps && depth >= needDepth
		}
		if !ok {
			consec = 0
			continue
		}
		consec++
		if consec >= need {
			return true
		}
	}
	return false
}

// QualityParams pondera tamaño de gap y volumen relativo.
type QualityParams struct {
	GapWeight float64
	VolWeight float64
	GapNorm   float64 // gap/ATR que satura el término
	VolShift  float64
	VolScale  float64
}

// DefaultQuality son los pesos usados cuando la config no los define.
var DefaultQuality = QualityParams{GapWeight: 0.60, VolWeight: 0.40, GapNorm: 2, VolShift: 2, VolScale: 4}

// FVGQuality scores a gap in [0,1] from its ATR-normalised size and the
// volume z-score of the last bar of cs.
func FVGQuality(cs []Candle, low, high float64, q QualityParams) float64 {
	if len(cs) == 0 {
		return 0
	}
	a := ATR(cs, 14)
	if a == 0 {
		a = Eps
	}
	gap := math.Max(0, high-low) / a
	vz := VolZScore(cs, 20)
	score := q.GapWeight*Clamp(gap/math.Max(Eps, q.GapNorm), 0, 1) +
		q.VolWeight*Clamp((vz+q.VolShift)/math.Max(Eps, q.VolScale), 0, 1)
	return Clamp(score, 0, 1)
}
