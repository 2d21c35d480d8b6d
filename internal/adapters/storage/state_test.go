package storage_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alejandrodnm/sweepbot/internal/adapters/storage"
	"github.com/alejandrodnm/sweepbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateFile_MissingIsNotAnError(t *testing.T) {
	s := storage.NewStateFile(filepath.Join(t.TempDir(), "nope.json"))
	_, ok, err := s.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStateFile_RoundTripCreatesDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "BTCUSDT_state.json")
	s := storage.NewStateFile(path)
	want := domain.PersistedState{
		DayStartEquity: 1000,
		DayStartDate:   "2025-06-10",
		TradesToday:    2,
		RealizedToday:  -12.5,
		LastLossMs:     1749550000000,
		Dedupe:         domain.DedupeBook{"id-1": 29159000},
		CRBaselines:    map[string]float64{"BTCUSDT": 300},
	}
	require.NoError(t, s.Save(want))

	got, ok, err := s.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	// sin temporales huérfanos
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStateFile_NilMapsAreInitialised(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"day_start_equity": 5}`), 0o644))

	got, ok, err := storage.NewStateFile(path).Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotNil(t, got.Dedupe)
	assert.NotNil(t, got.CRBaselines)
	assert.Equal(t, 5.0, got.DayStartEquity)
}

func TestStateFile_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o644))
	_, _, err := storage.NewStateFile(path).Load()
	assert.Error(t, err)
}
