package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundToTick(t *testing.T) {
	assert.InDelta(t, 100.1, RoundToTick(100.17, 0.1, RoundFloor), 1e-9)
	assert.InDelta(t, 100.2, RoundToTick(100.11, 0.1, RoundCeil), 1e-9)
	assert.InDelta(t, 100.2, RoundToTick(100.16, 0.1, RoundNearest), 1e-9)
	// exact grid values are stable in both directions
	assert.InDelta(t, 0.3, RoundToTick(0.1+0.2, 0.1, RoundFloor), 1e-12)
	assert.InDelta(t, 0.3, RoundToTick(0.1+0.2, 0.1, RoundCeil), 1e-12)
	assert.Equal(t, 5.5, RoundToTick(5.5, 0, RoundFloor))
}

func TestSideAwareRounding(t *testing.T) {
	assert.InDelta(t, 100.0, EntryPrice(Long, 100.05, 0.1), 1e-9)
	assert.InDelta(t, 100.1, EntryPrice(Short, 100.05, 0.1), 1e-9)
	assert.InDelta(t, 99.9, ProtectivePrice(Long, 99.95, 0.1), 1e-9)
	assert.InDelta(t, 100.0, ProtectivePrice(Short, 99.95, 0.1), 1e-9)
}

func TestFloorToStep(t *testing.T) {
	assert.InDelta(t, 0.123, FloorToStep(0.12399, 0.001), 1e-12)
	assert.Equal(t, 0.0, FloorToStep(-1, 0.001))
}

func TestFormatIncrement(t *testing.T) {
	assert.Equal(t, int32(2), Decimals(0.01))
	assert.Equal(t, int32(0), Decimals(1))
	assert.Equal(t, int32(0), Decimals(10))
	assert.Equal(t, "100.10", FormatIncrement(100.1, 0.01))
	assert.Equal(t, "0.004", FormatIncrement(0.004, 0.001))
	assert.Equal(t, "42", FormatIncrement(42, 1))
}
