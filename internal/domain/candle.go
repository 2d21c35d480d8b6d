package domain

import (
	"fmt"
	"time"
)

// Candle es una vela cerrada. Inmutable una vez cerrada.
type Candle struct {
	OpenTime int64 // ms epoch
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Time devuelve la apertura de la vela en UTC.
func (c Candle) Time() time.Time {
	return time.UnixMilli(c.OpenTime).UTC()
}

// Body es el tamaño absoluto del cuerpo.
func (c Candle) Body() float64 {
	if c.Close >= c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Timeframe is an exchange kline interval such as "1m" or "4h".
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF3m  Timeframe = "3m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
	TF1w  Timeframe = "1w"
	TF1M  Timeframe = "1M"
)

// Duration returns the nominal length of one bar. Months count as 30 days.
func (tf Timeframe) Duration() (time.Duration, error) {
	switch tf {
	case TF1m:
		return time.Minute, nil
	case TF3m:
		return 3 * time.Minute, nil
	case TF5m:
		return 5 * time.Minute, nil
	case TF15m:
		return 15 * time.Minute, nil
	case TF30m:
		return 30 * time.Minute, nil
	case TF1h:
		return time.Hour, nil
	case TF4h:
		return 4 * time.Hour, nil
	case TF1d:
		return 24 * time.Hour, nil
	case TF1w:
		return 7 * 24 * time.Hour, nil
	case TF1M:
		return 30 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("domain: unknown timeframe %q", string(tf))
}

// Minutes is Duration in whole minutes, 0 for unknown timeframes.
func (tf Timeframe) Minutes() int {
	d, err := tf.Duration()
	if err != nil {
		return 0
	}
	return int(d / time.Minute)
}

// CandleRing es un buffer circular de velas cerradas, ordenado por OpenTime.
// No es seguro para uso concurrente; el llamador sostiene el lock.
type CandleRing struct {
	buf   []Candle
	start int
	size  int
}

// NewCandleRing crea un ring con capacidad fija.
func NewCandleRing(capacity int) *CandleRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &CandleRing{buf: make([]Candle, capacity)}
}

// Len devuelve el número de velas almacenadas.
func (r *CandleRing) Len() int { return r.size }

// Cap devuelve la capacidad.
func (r *CandleRing) Cap() int { return len(r.buf) }

// Last devuelve la vela más reciente.
func (r *CandleRing) Last() (Candle, bool) {
	if r.size == 0 {
		return Candle{}, false
	}
	return r.buf[(r.start+r.size-1)%len(r.buf)], true
}

// Append agrega una vela si su OpenTime es estrictamente posterior a la última.
// Las entregas repetidas o fuera de orden se descartan y devuelve false.
func (r *CandleRing) Append(c Candle) bool {
	if last, ok := r.Last(); ok && c.OpenTime <= last.OpenTime {
		return false
	}
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = c
		r.size++
		return true
	}
	r.buf[r.start] = c
	r.start = (r.start + 1) % len(r.buf)
	return true
}

// Replace descarta el contenido y carga las últimas Cap() velas de cs
// respetando el orden y la deduplicación de Append.
func (r *CandleRing) Replace(cs []Candle) {
	r.start, r.size = 0, 0
	if len(cs) > len(r.buf) {
		cs = cs[len(cs)-len(r.buf):]
	}
	for _, c := range cs {
		r.Append(c)
	}
}

// Snapshot copia el contenido en orden cronológico.
func (r *CandleRing) Snapshot() []Candle {
	out := make([]Candle, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// CandlesSince returns the suffix of cs whose OpenTime is >= fromMs.
func CandlesSince(cs []Candle, fromMs int64) []Candle {
	for i, c := range cs {
		if c.OpenTime >= fromMs {
			return cs[i:]
		}
	}
	return nil
}
