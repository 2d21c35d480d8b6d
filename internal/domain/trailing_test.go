package domain

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var trailParams = TrailParams{ActivationR: 1.5, ATRMult: 0.75, MinTicks: 1}

func TestProposeTrail_BelowOneR(t *testing.T) {
	_, ok, reason := ProposeTrail(TrailInput{Side: Long, Entry: 100, Stop: 99, Price: 100.5, ATR: 1}, trailParams)
	assert.False(t, ok)
	assert.Equal(t, "below_1r", reason)
}

func TestProposeTrail_Breakeven(t *testing.T) {
	stop, ok, _ := ProposeTrail(TrailInput{Side: Long, Entry: 100, Stop: 99, Price: 101.2, ATR: 1}, trailParams)
	require.True(t, ok)
	assert.Equal(t, 100.0, stop)

	stop, ok, _ = ProposeTrail(TrailInput{Side: Short, Entry: 100, Stop: 101, Price: 98.8, ATR: 1}, trailParams)
	require.True(t, ok)
	assert.Equal(t, 100.0, stop)
}

func TestProposeTrail_ATRTrail(t *testing.T) {
	stop, ok, _ := ProposeTrail(TrailInput{Side: Long, Entry: 100, Stop: 99, Price: 103, ATR: 1}, trailParams)
	require.True(t, ok)
	assert.InDelta(t, 102.25, stop, 1e-9)

	stop, ok, _ = ProposeTrail(TrailInput{Side: Short, Entry: 100, Stop: 101, Price: 97, ATR: 1}, trailParams)
	require.True(t, ok)
	assert.InDelta(t, 97.75, stop, 1e-9)

	_, ok, reason := ProposeTrail(TrailInput{Side: Long, Entry: 100, Stop: 99, Price: 103}, trailParams)
	assert.False(t, ok)
	assert.Equal(t, "atr_zero", reason)
}

func TestTrailingStopRecord_Improves(t *testing.T) {
	rec := TrailingStopRecord{Side: Long, StopPrice: 100, ClientID: "a"}
	assert.True(t, rec.Improves(Long, 100.1, 0.1, 1))
	assert.False(t, rec.Improves(Long, 100.05, 0.1, 1))
	assert.False(t, rec.Improves(Long, 99, 0.1, 1))

	short := TrailingStopRecord{Side: Short, StopPrice: 100, ClientID: "a"}
	assert.True(t, short.Improves(Short, 99.9, 0.1, 1))
	assert.False(t, short.Improves(Short, 100.2, 0.1, 1))

	assert.True(t, TrailingStopRecord{}.Improves(Long, 1, 0.1, 1), "no tracked stop")
}

// The tracked stop only ever ratchets in the protective direction.
func TestTrailing_Monotonic(t *testing.T) {
	for _, side := range []Side{Long, Short} {
		rng := rand.New(rand.NewSource(7))
		entry, init := 100.0, 100-side.Sign()*1
		rec := TrailingStopRecord{Side: side, StopPrice: init, ClientID: "s0", Entry: entry, InitStop: init}
		price := entry
		for i := 0; i < 500; i++ {
			price += (rng.Float64() - 0.45*side.Sign()) * 0.8 * side.Sign()
			atr := 0.2 + rng.Float64()
			next, ok, _ := ProposeTrail(TrailInput{Side: side, Entry: entry, Stop: init, Price: price, ATR: atr}, trailParams)
			if !ok {
				continue
			}
			next = ProtectivePrice(side, next, 0.1)
			if !rec.Improves(side, next, 0.1, 1) {
				continue
			}
			if side == Long {
				require.GreaterOrEqual(t, next, rec.StopPrice)
			} else {
				require.LessOrEqual(t, next, rec.StopPrice)
			}
			rec.StopPrice = next
		}
	}
}

func TestCircuitBreaker(t *testing.T) {
	cb := CircuitBreaker{Name: "blocked", Threshold: 3, Pause: 7}
	assert.Zero(t, cb.Record())
	assert.Zero(t, cb.Record())
	assert.EqualValues(t, 7, cb.Record())
	assert.Equal(t, 0, cb.Count())
	cb.Record()
	cb.Reset()
	assert.Equal(t, 0, cb.Count())
}
