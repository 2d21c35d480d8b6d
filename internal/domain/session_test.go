package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionWindow_Contains(t *testing.T) {
	day := SessionWindow{Name: "LON", Start: 7 * 60, End: 16 * 60}
	assert.True(t, day.Contains(7*60))
	assert.False(t, day.Contains(16*60), "end is exclusive")

	wrap := SessionWindow{Name: "X", Start: 22 * 60, End: 2 * 60}
	assert.True(t, wrap.Contains(23*60))
	assert.True(t, wrap.Contains(60))
	assert.False(t, wrap.Contains(12*60))
}

func TestActiveSessions_Overlap(t *testing.T) {
	ws := []SessionWindow{
		{Name: "ASIA", Start: 0, End: 8 * 60},
		{Name: "LON", Start: 7 * 60, End: 16 * 60},
		{Name: "NY", Start: 13 * 60, End: 22 * 60},
	}
	at := time.Date(2025, 3, 4, 7, 30, 0, 0, time.UTC)
	active := ActiveSessions(at, ws, time.UTC)
	require.Len(t, active, 2)
	assert.InDelta(t, 0.14, SessionBonus(len(active), 0.06, 0.08), 1e-9)

	off := time.Date(2025, 3, 4, 23, 0, 0, 0, time.UTC)
	assert.Empty(t, ActiveSessions(off, ws, time.UTC))
	assert.Equal(t, 0.0, SessionBonus(0, 0.06, 0.08))
}

func TestParseHM(t *testing.T) {
	m, err := ParseHM("13:30")
	require.NoError(t, err)
	assert.Equal(t, 810, m)
	_, err = ParseHM("25:00")
	assert.Error(t, err)
}

func TestDayKey_UsesLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	ms := time.Date(2025, 1, 2, 3, 0, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, "2025-01-02", DayKey(ms, time.UTC))
	assert.Equal(t, "2025-01-01", DayKey(ms, ny))
	assert.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC).UnixMilli(), DayStartMs(ms, time.UTC))
}
