package domain

import (
	"math"
	"sort"
)

// Eps evita divisiones por cero en normalizaciones.
const Eps = 1e-12

// Clamp limita v al rango [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// BpsDistance es la distancia simétrica entre a y b en puntos básicos,
// normalizada por la media de sus valores absolutos.
func BpsDistance(a, b float64) float64 {
	den := (math.Abs(a) + math.Abs(b)) / 2
	if den < Eps {
		return 0
	}
	return math.Abs(a-b) / den * 1e4
}

// WithinBps reports whether a and b are at most bps apart.
func WithinBps(a, b, bps float64) bool {
	return BpsDistance(a, b) <= bps
}

// ATR es la media simple de los últimos period true ranges.
// Devuelve 0 si no hay period+1 velas.
func ATR(cs []Candle, period int) float64 {
	if period <= 0 || len(cs) < period+1 {
		return 0
	}
	sum := 0.0
	for i := len(cs) - period; i < len(cs); i++ {
		h, l, pc := cs[i].High, cs[i].Low, cs[i-1].Close
		tr := math.Max(h-l, math.Max(math.Abs(h-pc), math.Abs(l-pc)))
		sum += tr
	}
	v := sum / float64(period)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// VolZScore is the z-score of the last volume against the trailing window,
// using the sample standard deviation.
func VolZScore(cs []Candle, window int) float64 {
	if window < 2 || len(cs) < window {
		return 0
	}
	tail := cs[len(cs)-window:]
	mu := 0.0
	for _, c := range tail {
		mu += c.Volume
	}
	mu /= float64(window)
	ss := 0.0
	for _, c := range tail {
		d := c.Volume - mu
		ss += d * d
	}
	sd := math.Sqrt(ss / float64(window-1))
	return (tail[len(tail)-1].Volume - mu) / (sd + Eps)
}

// EMA returns the last value of an exponential moving average with
// alpha = 2/(span+1), seeded with the first value.
func EMA(values []float64, span int) float64 {
	if len(values) == 0 || span <= 0 {
		return 0
	}
	alpha := 2.0 / (float64(span) + 1)
	e := values[0]
	for _, v := range values[1:] {
		e = alpha*v + (1-alpha)*e
	}
	return e
}

// Closes extracts close prices.
func Closes(cs []Candle) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Close
	}
	return out
}

// MedianInt64 devuelve la mediana; para longitud par, el promedio entero
// de los dos centrales.
func MedianInt64(xs []int64) int64 {
	if len(xs) == 0 {
		return 0
	}
	s := append([]int64(nil), xs...)
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
	m := len(s) / 2
	if len(s)%2 == 1 {
		return s[m]
	}
	return (s[m-1] + s[m]) / 2
}

// RangeHighLow devuelve el máximo high y el mínimo low de cs.
func RangeHighLow(cs []Candle) (hi, lo float64) {
	if len(cs) == 0 {
		return 0, 0
	}
	hi, lo = cs[0].High, cs[0].Low
	for _, c := range cs[1:] {
		hi = math.Max(hi, c.High)
		lo = math.Min(lo, c.Low)
	}
	return hi, lo
}
