package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatBars(n int, px float64) []Candle {
	cs := make([]Candle, n)
	for i := range cs {
		cs[i] = Candle{OpenTime: int64(i) * 60000, Open: px, High: px + 0.5, Low: px - 0.5, Close: px, Volume: 10}
	}
	return cs
}

func TestDetectFVGs_BullishAndBearish(t *testing.T) {
	cs := flatBars(8, 100)
	// bullish: bar 5 low above bar 3 high
	cs[3] = Candle{OpenTime: 3 * 60000, Open: 100, High: 100.5, Low: 99.5, Close: 100.4, Volume: 10}
	cs[4] = Candle{OpenTime: 4 * 60000, Open: 100.4, High: 103, Low: 100.4, Close: 102.8, Volume: 30}
	cs[5] = Candle{OpenTime: 5 * 60000, Open: 102.8, High: 103.5, Low: 102, Close: 103, Volume: 10}

	fvgs := DetectFVGs(cs, FVGParams{MinTicks: 2}, 0.1)
	require.NotEmpty(t, fvgs)
	var bull *FVG
	for i := range fvgs {
		if fvgs[i].Bullish && fvgs[i].BarIndex == 5 {
			bull = &fvgs[i]
		}
	}
	require.NotNil(t, bull)
	assert.InDelta(t, 100.5, bull.Low, 1e-9)
	assert.InDelta(t, 102.0, bull.High, 1e-9)

	// mirror image produces a bearish gap
	down := flatBars(8, 100)
	down[3] = Candle{OpenTime: 3 * 60000, Open: 100, High: 100.5, Low: 99.5, Close: 99.6, Volume: 10}
	down[4] = Candle{OpenTime: 4 * 60000, Open: 99.6, High: 99.6, Low: 97, Close: 97.2, Volume: 30}
	down[5] = Candle{OpenTime: 5 * 60000, Open: 97.2, High: 98, Low: 96.5, Close: 97, Volume: 10}
	fvgs = DetectFVGs(down, FVGParams{MinTicks: 2}, 0.1)
	found := false
	for _, f := range fvgs {
		if !f.Bullish && f.BarIndex == 5 {
			found = true
			assert.InDelta(t, 98.0, f.Low, 1e-9)
			assert.InDelta(t, 99.5, f.High, 1e-9)
		}
	}
	assert.True(t, found)
}

func TestDetectFVGs_ThresholdInBps(t *testing.T) {
	cs := flatBars(6, 100)
	cs[2].High = 100.5
	cs[4].Low = 100.55 // 5 cents over the anchor = 5 bps
	assert.Empty(t, DetectFVGs(cs, FVGParams{UseBps: true, MinBps: 8}, 0.01))
	assert.NotEmpty(t, DetectFVGs(cs, FVGParams{UseBps: true, MinBps: 8, RelaxBps: 4}, 0.01))
}

func TestDetectFVGs_TooShort(t *testing.T) {
	assert.Nil(t, DetectFVGs(flatBars(4, 100), FVGParams{MinTicks: 1}, 0.1))
}

func TestFVGFilled_Rules(t *testing.T) {
	touch := []Candle{{Open: 105, High: 105, Low: 101.9, Close: 104}}
	mid := []Candle{{Open: 105, High: 105, Low: 100.9, Close: 104}}
	full := []Candle{{Open: 105, High: 105, Low: 99, Close: 100}}

	pTouch := FillPolicy{Rule: FillTouch, MinConsecutive: 1}
	pMid := FillPolicy{Rule: FillMid, MinConsecutive: 1}
	pFull := FillPolicy{Rule: FillFull, MinConsecutive: 1}

	assert.True(t, FVGFilled(touch, 100, 102, pTouch))
	assert.False(t, FVGFilled(touch, 100, 102, pMid))
	assert.True(t, FVGFilled(mid, 100, 102, pMid))
	assert.False(t, FVGFilled(mid, 100, 102, pFull))
	assert.True(t, FVGFilled(full, 100, 102, pFull))
}

func TestFVGFilled_BodyAndConsecutive(t *testing.T) {
	wick := []Candle{{Open: 105, High: 105, Low: 101, Close: 104}}
	assert.False(t, FVGFilled(wick, 100, 102, FillPolicy{Rule: FillTouch, RequireBody: true}))

	one := []Candle{{Open: 101.5, High: 103, Low: 101, Close: 103}, {Open: 104, High: 105, Low: 104, Close: 105}}
	assert.False(t, FVGFilled(one, 100, 102, FillPolicy{Rule: FillTouch, MinConsecutive: 2}))
	two := []Candle{{Open: 101.5, High: 103, Low: 101, Close: 103}, {Open: 101.8, High: 103, Low: 101.5, Close: 102}}
	assert.True(t, FVGFilled(two, 100, 102, FillPolicy{Rule: FillTouch, MinConsecutive: 2}))
}

func TestFVGQuality_Bounded(t *testing.T) {
	cs := flatBars(30, 100)
	q := FVGQuality(cs, 100, 101, DefaultQuality)
	assert.GreaterOrEqual(t, q, 0.0)
	assert.LessOrEqual(t, q, 1.0)

	bigger := FVGQuality(cs, 100, 101.5, DefaultQuality)
	assert.Greater(t, bigger, q)
	assert.Equal(t, 0.0, FVGQuality(nil, 1, 2, DefaultQuality))
}
