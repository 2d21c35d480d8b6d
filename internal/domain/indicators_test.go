package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBpsDistance_Symmetric(t *testing.T) {
	assert.InDelta(t, BpsDistance(100, 101), BpsDistance(101, 100), 1e-12)
	assert.InDelta(t, 99.5, BpsDistance(100, 101), 0.01)
	assert.Equal(t, 0.0, BpsDistance(0, 0))
	assert.True(t, WithinBps(100, 100.05, 8))
	assert.False(t, WithinBps(100, 101, 8))
}

func TestATR_ConstantRange(t *testing.T) {
	var cs []Candle
	for i := int64(0); i < 20; i++ {
		cs = append(cs, bar(i, 100, 101, 99, 100))
	}
	assert.InDelta(t, 2.0, ATR(cs, 14), 1e-9)
	assert.Equal(t, 0.0, ATR(cs[:14], 14), "needs period+1 bars")
}

func TestATR_UsesPreviousClose(t *testing.T) {
	cs := []Candle{bar(0, 100, 100, 100, 100), bar(1, 105, 106, 105, 106)}
	// gap up: TR = high - prevClose = 6
	assert.InDelta(t, 6.0, ATR(cs, 1), 1e-9)
}

func TestVolZScore(t *testing.T) {
	var cs []Candle
	for i := int64(0); i < 20; i++ {
		c := bar(i, 1, 1, 1, 1)
		c.Volume = 10
		cs = append(cs, c)
	}
	assert.InDelta(t, 0.0, VolZScore(cs, 20), 1e-6)
	cs[19].Volume = 100
	assert.Greater(t, VolZScore(cs, 20), 3.0)
	assert.Equal(t, 0.0, VolZScore(cs[:5], 20))
}

func TestEMA(t *testing.T) {
	assert.InDelta(t, 10.0, EMA([]float64{10, 10, 10}, 20), 1e-12)
	// alpha = 2/3
	assert.InDelta(t, 0*1.0/3+10*2.0/3, EMA([]float64{0, 10}, 2), 1e-12)
}

func TestMedianInt64(t *testing.T) {
	assert.Equal(t, int64(5), MedianInt64([]int64{9, 5, 1}))
	assert.Equal(t, int64(3), MedianInt64([]int64{1, 5}))
	assert.Equal(t, int64(0), MedianInt64(nil))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 1.0, Clamp(3, 0, 1))
	assert.Equal(t, 0.0, Clamp(-3, 0, 1))
	assert.Equal(t, 0.5, Clamp(0.5, 0, 1))
}
