package live

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/sweepbot/internal/domain"
)

func TestRecordDrift_Hysteresis(t *testing.T) {
	h := Config{}.withDefaults().Health
	h.SafeMode, h.SafeAutoRecover = true, true
	st := NewRunState(10, domain.TF1m)

	assert.Equal(t, driftSteady, st.RecordDrift(6000, h))
	assert.Equal(t, driftSteady, st.RecordDrift(-6000, h))
	assert.Equal(t, driftEnterSafe, st.RecordDrift(5000, h))
	on, why := st.Safe()
	require.True(t, on)
	assert.Equal(t, "clock_drift_5000ms>=hard_5000ms", why)

	// bajo hard pero no bajo hard/2: no se recupera
	assert.Equal(t, driftSteady, st.RecordDrift(3000, h))
	assert.Equal(t, driftSteady, st.RecordDrift(100, h))
	assert.Equal(t, driftSteady, st.RecordDrift(100, h))
	on, _ = st.Safe()
	assert.True(t, on)

	assert.Equal(t, driftRecovered, st.RecordDrift(100, h))
	on, _ = st.Safe()
	assert.False(t, on)
}

func TestRecordDrift_StreakResetsOnGoodSample(t *testing.T) {
	h := Config{}.withDefaults().Health
	h.SafeMode = true
	st := NewRunState(10, domain.TF1m)

	st.RecordDrift(6000, h)
	st.RecordDrift(6000, h)
	st.RecordDrift(10, h)
	st.RecordDrift(6000, h)
	on, _ := st.Safe()
	assert.False(t, on)
}

func TestRecordDrift_DoesNotClearOtherSafeReasons(t *testing.T) {
	h := Config{}.withDefaults().Health
	h.SafeMode, h.SafeAutoRecover = true, true
	st := NewRunState(10, domain.TF1m)
	st.SetSafe(true, reasonStaleHard)

	for i := 0; i < 5; i++ {
		st.RecordDrift(10, h)
	}
	on, why := st.Safe()
	assert.True(t, on)
	assert.Equal(t, reasonStaleHard, why)
}

func TestTakeBlocked_FlushesPreviousMinute(t *testing.T) {
	st := NewRunState(10, domain.TF1m)

	assert.Nil(t, st.TakeBlocked(100))
	st.Block("dedupe")
	st.Block("dedupe")
	st.Block("cooldown")
	assert.Nil(t, st.TakeBlocked(100), "same minute keeps accumulating")

	got := st.TakeBlocked(101)
	assert.ElementsMatch(t, []domain.BlockedCount{
		{Minute: 100, Reason: "dedupe", Count: 2},
		{Minute: 100, Reason: "cooldown", Count: 1},
	}, got)
	assert.Empty(t, st.BlockedCounts())

	st.Block("stale_data")
	got = st.TakeBlocked(105)
	require.Len(t, got, 1)
	assert.Equal(t, int64(101), got[0].Minute)
}

func TestRollover(t *testing.T) {
	st := NewRunState(10, domain.TF1m)

	assert.True(t, st.Rollover("2026-03-01", 1000, 400))
	l := st.Ledger()
	assert.Equal(t, "2026-03-01", l.Date)
	assert.Equal(t, 1000.0, l.StartEquity)

	st.IncTrades()
	st.ApplyRealized("BTCUSDT", 0, 1)
	st.ApplyRealized("BTCUSDT", -10, 2)
	assert.False(t, st.Rollover("2026-03-01", 2000, 400))
	assert.Equal(t, -10.0, st.Ledger().RealizedToday)

	assert.True(t, st.Rollover("2026-03-02", 0, 400))
	l = st.Ledger()
	assert.Equal(t, 0, l.TradesToday)
	assert.Zero(t, l.RealizedToday)
	assert.Equal(t, 1000.0, l.StartEquity, "zero balance keeps the previous equity")
	assert.Empty(t, st.Persisted().CRBaselines)
}

func TestRollover_TrimsDedupe(t *testing.T) {
	st := NewRunState(10, domain.TF1m)
	st.Rollover("2026-03-01", 1000, 2)
	for i := int64(0); i < 5; i++ {
		st.MarkSignal(string(rune('a'+i)), i)
	}
	st.Rollover("2026-03-02", 1000, 2)
	assert.Len(t, st.Persisted().Dedupe, 2)
}

func TestRollover_FirstDayWithoutBalanceUsesOne(t *testing.T) {
	st := NewRunState(10, domain.TF1m)
	st.Rollover("2026-03-01", 0, 400)
	assert.Equal(t, 1.0, st.Ledger().StartEquity)
}

func TestSetRealizedTotal_DecreaseIsLoss(t *testing.T) {
	st := NewRunState(10, domain.TF1m)
	st.SetRealizedTotal(5, 1000)
	assert.Zero(t, st.Ledger().LastLossServerMs)

	st.SetRealizedTotal(2, 2000)
	assert.Equal(t, int64(2000), st.Ledger().LastLossServerMs)
	assert.Equal(t, 2.0, st.Ledger().RealizedToday)
}

func TestCachedBalance_ExpiresAndInvalidates(t *testing.T) {
	st := NewRunState(10, domain.TF1m)
	now := time.Unix(1_700_000_000, 0)

	_, ok := st.CachedBalance(now, time.Second)
	assert.False(t, ok)

	st.SetBalance(500, now)
	v, ok := st.CachedBalance(now.Add(500*time.Millisecond), time.Second)
	assert.True(t, ok)
	assert.Equal(t, 500.0, v)

	_, ok = st.CachedBalance(now.Add(2*time.Second), time.Second)
	assert.False(t, ok)

	st.SetBalance(500, now)
	st.ApplyRealized("BTCUSDT", 0, 1)
	st.ApplyRealized("BTCUSDT", 3, 2)
	_, ok = st.CachedBalance(now, time.Second)
	assert.False(t, ok, "realized pnl invalidates the cached balance")
}

func TestPersistRoundTrip(t *testing.T) {
	st := NewRunState(10, domain.TF1m)
	st.Rollover("2026-03-01", 1000, 400)
	st.IncTrades()
	st.MarkSignal("sig", 42)
	st.ApplyRealized("BTCUSDT", 7, 1)

	other := NewRunState(10, domain.TF1m)
	other.Restore(st.Persisted())

	assert.Equal(t, st.Ledger(), other.Ledger())
	assert.False(t, other.DedupeAllowed("sig", 43, 45))
	assert.Equal(t, st.Persisted(), other.Persisted())
}

func TestRunFeeds_AppliesMarketAndUserEvents(t *testing.T) {
	clock := newClock()
	feed := &fakeMarketFeed{}
	cs := flatCandles(clock, 3, 100)
	for _, c := range cs {
		feed.events = append(feed.events, domain.MarketEvent{Kind: domain.EventKline, Interval: domain.TF1m, Candle: c})
	}
	// repetida: se descarta
	feed.events = append(feed.events,
		domain.MarketEvent{Kind: domain.EventKline, Interval: domain.TF1m, Candle: cs[2]},
		domain.MarketEvent{Kind: domain.EventBookTicker, Bid: 99.9, Ask: 100.1},
	)
	user := &fakeUserFeed{events: []domain.UserEvent{
		{Kind: domain.EventAccountUpdate, EventTime: 1, Positions: []domain.AccountPosition{{Symbol: "BTCUSDT", CumRealized: 10}}},
		{Kind: domain.EventAccountUpdate, EventTime: 2, Positions: []domain.AccountPosition{{Symbol: "BTCUSDT", CumRealized: 4}}},
	}}

	env := newTestEnv(t, func(_ *Config, d *Deps) {
		d.Market = feed
	})
	env.e.RunFeeds(context.Background(), user, 1)

	st := env.e.State()
	assert.Equal(t, 3, st.BufferLen(domain.TF1m))
	bid, ask, at := st.Book()
	assert.Equal(t, 99.9, bid)
	assert.Equal(t, 100.1, ask)
	assert.Equal(t, clock.Now(), at)
	assert.Equal(t, -6.0, st.Ledger().RealizedToday)
}

type fakeUserFeed struct {
	events []domain.UserEvent
}

func (u *fakeUserFeed) Run(_ context.Context, sink func(domain.UserEvent)) error {
	for _, ev := range u.events {
		sink(ev)
	}
	return nil
}
