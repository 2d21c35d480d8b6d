package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/sweepbot/internal/adapters/storage"
	"github.com/alejandrodnm/sweepbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openJournal(t *testing.T) *storage.Journal {
	t.Helper()
	j, err := storage.NewJournal(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func makeEntry(cid string, ms int64) domain.EntryRecord {
	return domain.EntryRecord{
		ClientID: cid, SignalID: "sig-" + cid, Symbol: "BTCUSDT", Side: domain.Long,
		Qty: 0.01, AvgPrice: 100000, Stop: 99500, TPFinal: 101000, TPPartial: 100500,
		Notional: 1000, ServerMs: ms,
	}
}

func TestJournal_StatsAggregates(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	require.NoError(t, j.RecordSignal(ctx, domain.SignalRecord{
		SignalID: "a", Symbol: "BTCUSDT", Side: domain.Long, Decision: "entered", ServerMs: now,
	}))
	require.NoError(t, j.RecordSignal(ctx, domain.SignalRecord{
		SignalID: "b", Symbol: "BTCUSDT", Side: domain.Short, Decision: "blocked", Reason: "dedupe", ServerMs: now,
	}))
	require.NoError(t, j.RecordEntry(ctx, makeEntry("e1", now-1000)))
	require.NoError(t, j.RecordEntry(ctx, makeEntry("e2", now)))

	minute := now / 60000
	require.NoError(t, j.RecordBlocked(ctx, []domain.BlockedCount{
		{Minute: minute, Reason: "stale_data", Count: 3},
		{Minute: minute, Reason: "no_setup", Count: 10},
	}))
	require.NoError(t, j.RecordBlocked(ctx, []domain.BlockedCount{
		{Minute: minute, Reason: "stale_data", Count: 2},
	}))

	st, err := j.Stats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Signals)
	assert.Equal(t, 2, st.Entries)
	assert.Equal(t, 15, st.Blocked)
	require.Len(t, st.TopReasons, 2)
	assert.Equal(t, domain.ReasonCount{Reason: "no_setup", Count: 10}, st.TopReasons[0])
	assert.Equal(t, domain.ReasonCount{Reason: "stale_data", Count: 5}, st.TopReasons[1])
	require.Len(t, st.LastEntries, 1)
	assert.Equal(t, "e2", st.LastEntries[0].ClientID)
	assert.Equal(t, domain.Long, st.LastEntries[0].Side)
}

func TestJournal_RecordEntryUpsertsByClientID(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()

	e := makeEntry("e1", 1)
	require.NoError(t, j.RecordEntry(ctx, e))
	e.AvgPrice = 100010
	require.NoError(t, j.RecordEntry(ctx, e))

	st, err := j.Stats(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Entries)
	assert.InDelta(t, 100010, st.LastEntries[0].AvgPrice, 1e-9)
}

func TestJournal_RecordBlockedEmpty(t *testing.T) {
	j := openJournal(t)
	require.NoError(t, j.RecordBlocked(context.Background(), nil))
}
