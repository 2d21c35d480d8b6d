package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bar(t int64, o, h, l, c float64) Candle {
	return Candle{OpenTime: t * 60000, Open: o, High: h, Low: l, Close: c, Volume: 1}
}

func TestCandleRing_AppendDedupesByOpenTime(t *testing.T) {
	r := NewCandleRing(3)
	assert.True(t, r.Append(bar(1, 1, 1, 1, 1)))
	assert.True(t, r.Append(bar(2, 2, 2, 2, 2)))
	assert.False(t, r.Append(bar(2, 9, 9, 9, 9)), "repeated delivery")
	assert.False(t, r.Append(bar(1, 9, 9, 9, 9)), "out of order")
	assert.Equal(t, 2, r.Len())

	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, 2.0, last.Close)
}

func TestCandleRing_EvictsOldest(t *testing.T) {
	r := NewCandleRing(3)
	for i := int64(1); i <= 5; i++ {
		r.Append(bar(i, 0, 0, 0, float64(i)))
	}
	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, []float64{3, 4, 5}, Closes(snap))
}

func TestCandleRing_Replace(t *testing.T) {
	r := NewCandleRing(2)
	r.Append(bar(10, 0, 0, 0, 10))
	r.Replace([]Candle{bar(1, 0, 0, 0, 1), bar(2, 0, 0, 0, 2), bar(3, 0, 0, 0, 3)})
	assert.Equal(t, []float64{2, 3}, Closes(r.Snapshot()))
}

func TestTimeframe_Minutes(t *testing.T) {
	assert.Equal(t, 1, TF1m.Minutes())
	assert.Equal(t, 240, TF4h.Minutes())
	assert.Equal(t, 0, Timeframe("7x").Minutes())
}

func TestCandlesSince(t *testing.T) {
	cs := []Candle{bar(1, 0, 0, 0, 1), bar(2, 0, 0, 0, 2), bar(3, 0, 0, 0, 3)}
	assert.Len(t, CandlesSince(cs, 2*60000), 2)
	assert.Nil(t, CandlesSince(cs, 99*60000))
}
