package strategy

import (
	"math"

	"github.com/alejandrodnm/sweepbot/internal/domain"
)

// Targets son los take-profits elegidos para un candidato.
type Targets struct {
	Final   float64
	Partial float64 // 0 = sin parcial
}

// HasPartial indica si hay take-profit parcial.
func (t Targets) HasPartial() bool { return t.Partial > 0 }

// Targets implementa Strategy.
func (s *SweepFVG) Targets(setup Setup, tick float64) Targets {
	if setup.Candidate == nil {
		return Targets{}
	}
	rr := setup.Regime.RR
	if rr <= 0 {
		rr = s.cfg.Targets.RR
	}
	return ChooseTargets(*setup.Candidate, setup.Above, setup.Below, rr, tick, s.cfg.Targets)
}

// ChooseTargets picks a fee-adjusted RR target capped at RRCap, pulled in to
// the nearest level beyond entry when that level still pays MinRRPool. The
// partial sits at that level, or at 1R when 1R is nearer than the final.
func ChooseTargets(c domain.Candidate, above, below []domain.LiquidityLevel, rr, tick float64, tc TargetConfig) Targets {
	dist := math.Max(c.StopDistance(), domain.Eps)
	sign := c.Side.Sign()
	feeMult := math.Max(0, 1-2*tc.FeeBps/1e4)
	base := c.Entry + sign*rr*feeMult*dist
	capTP := c.Entry + sign*domain.Clamp(tc.RRCap, 0.5, 10)*dist

	final := base
	var partial float64
	if nearest, ok := nearestAhead(c, above, below); ok && math.Abs(nearest-c.Entry)/dist >= tc.MinRRPool {
		if c.Side == domain.Long {
			final = math.Min(base, nearest)
		} else {
			final = math.Max(base, nearest)
		}
		partial = nearest
	}
	if c.Side == domain.Long {
		final = math.Min(final, capTP)
	} else {
		final = math.Max(final, capTP)
	}
	if partial == 0 {
		oneR := c.Entry + sign*dist
		if sign*(final-oneR) > 0 {
			partial = oneR
		}
	}

	final = domain.EntryPrice(c.Side, final, tick)
	if partial > 0 {
		partial = domain.EntryPrice(c.Side, partial, tick)
		if math.Abs(partial-final) < math.Max(domain.Eps, tick)/2 {
			partial = 0
		}
	}
	return Targets{Final: final, Partial: partial}
}

func nearestAhead(c domain.Candidate, above, below []domain.LiquidityLevel) (float64, bool) {
	best, found := 0.0, false
	for _, l := range aheadLevels(c, above, below) {
		if !found || math.Abs(l.Price-c.Entry) < math.Abs(best-c.Entry) {
			best, found = l.Price, true
		}
	}
	return best, found
}

// SignalRef es el nivel cercano que ancla la identidad de un setup.
type SignalRef struct {
	Price float64
	Count int
	Tag   string
}

// SignalRef implementa Strategy. Uses the nearest level beyond entry in the
// trade direction, else the nearest directional level, else last price.
func (s *SweepFVG) SignalRef(setup Setup, last float64) SignalRef {
	if setup.Candidate == nil {
		return SignalRef{Price: last}
	}
	c := *setup.Candidate
	dir := setup.Below
	if c.Side == domain.Long {
		dir = setup.Above
	}
	if len(dir) == 0 {
		return SignalRef{Price: last}
	}
	pool := dir
	if ahead := aheadLevels(c, setup.Above, setup.Below); len(ahead) > 0 {
		pool = ahead
	}
	ref := pool[0].Price
	for _, l := range pool[1:] {
		if math.Abs(l.Price-c.Entry) < math.Abs(ref-c.Entry) {
			ref = l.Price
		}
	}
	out := SignalRef{Price: ref, Count: len(pool)}
	for _, l := range dir {
		if domain.WithinBps(l.Price, ref, s.cfg.Levels.ClusterBps) {
			out.Tag = string(l.Tag)
			break
		}
	}
	return out
}
