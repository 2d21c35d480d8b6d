package domain

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Candidate es el setup producido por el detector. Vive un solo ciclo.
type Candidate struct {
	Side      Side
	Entry     float64
	Stop      float64
	BaseScore float64
	Gap       FVG
	SweepBar  int      // índice de la vela que barrió el nivel
	Level     float64  // nivel barrido
	Tags      []string // p.ej. "sweep_below"
}

// StopDistance es la distancia absoluta entrada-stop.
func (c Candidate) StopDistance() float64 { return math.Abs(c.Entry - c.Stop) }

// QuantizePrice redondea p hacia abajo a un múltiplo de tick*bucketTicks.
func QuantizePrice(p, tick float64, bucketTicks int) float64 {
	if tick <= 0 {
		return p
	}
	step := tick * float64(max(1, bucketTicks))
	return math.Floor(p/step) * step
}

// SignalIDParams son las piezas de la identidad de un setup.
type SignalIDParams struct {
	ServerMs  int64
	Loc       *time.Location
	Side      Side
	GapLow    float64
	GapHigh   float64
	BarOfDay  int // índice de la vela del gap contado desde el inicio del día
	PoolRef   float64
	PoolCount int
	PoolTag   string
	Tick      float64
	BinTicks  int
}

// MakeSignalID builds the dedupe key. Prices are snapped to the tick grid
// before formatting so sub-tick jitter yields the same identity.
func MakeSignalID(p SignalIDParams) string {
	loc := p.Loc
	if loc == nil {
		loc = time.UTC
	}
	day := time.UnixMilli(p.ServerMs).In(loc).Format("20060102")
	dec := int(Decimals(p.Tick))
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', dec, 64) }
	snap := func(v float64) float64 { return RoundToTick(v, p.Tick, RoundNearest) }

	// el ref se ajusta a la grilla antes de cuantizar para que el floor no
	// dependa de ruido de punto flotante
	ref := snap(p.PoolRef)
	prQ := QuantizePrice(ref+p.Tick/2, p.Tick, 5)
	prBin := QuantizePrice(ref+p.Tick/2, p.Tick, p.BinTicks)

	tag := strings.ToUpper(strings.TrimSpace(p.PoolTag))
	if tag == "" {
		tag = "NA"
	} else if len(tag) > 6 {
		tag = tag[:6]
	}
	return fmt.Sprintf("%s|%s|%s-%s|%s|b%d|n%d|q%s|t%s",
		day, p.Side, f(snap(p.GapLow)), f(snap(p.GapHigh)), f(prQ),
		p.BarOfDay, max(0, p.PoolCount), f(prBin), tag)
}

// EpochMinute convierte ms de servidor a minutos epoch.
func EpochMinute(serverMs int64) int64 { return serverMs / 60000 }

// DedupeBook maps a signal identity to the epoch minute it last fired.
type DedupeBook map[string]int64

// Allowed reports whether id may fire at nowMin given the cooldown.
func (b DedupeBook) Allowed(id string, nowMin int64, cooldownMin int) bool {
	last, ok := b[id]
	if !ok {
		return true
	}
	return nowMin-last >= int64(cooldownMin)
}

// Mark registra el disparo de id.
func (b DedupeBook) Mark(id string, nowMin int64) { b[id] = nowMin }

// Trim conserva las keep entradas más recientes.
func (b DedupeBook) Trim(keep int) {
	if keep < 0 || len(b) <= keep {
		return
	}
	type kv struct {
		k string
		v int64
	}
	all := make([]kv, 0, len(b))
	for k, v := range b {
		all = append(all, kv{k, v})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].v != all[j].v {
			return all[i].v > all[j].v
		}
		return all[i].k < all[j].k
	})
	for _, e := range all[keep:] {
		delete(b, e.k)
	}
}
