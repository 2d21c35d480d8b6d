package live

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/sweepbot/internal/domain"
)

func stopOrder(id int64, cid string, side domain.OrderSide, price float64, updated int64) domain.Order {
	return domain.Order{
		OrderID: id, ClientID: cid, Symbol: "BTCUSDT", Side: side,
		Type: domain.OrderStopMarket, ClosePosition: true, StopPrice: price, UpdateTime: updated,
	}
}

func tpOrder(id int64, side domain.OrderSide, price float64) domain.Order {
	return domain.Order{
		OrderID: id, Symbol: "BTCUSDT", Side: side,
		Type: domain.OrderTakeProfitMarket, ReduceOnly: true, StopPrice: price, OrigQty: 1,
	}
}

func openIDs(t *testing.T, ex *fakeExchange) []int64 {
	t.Helper()
	open, err := ex.OpenOrders(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	ids := make([]int64, 0, len(open))
	for _, o := range open {
		ids = append(ids, o.OrderID)
	}
	return ids
}

func TestReconcile_LongConvergesToOneStopTwoTargets(t *testing.T) {
	env := newTestEnv(t)
	env.ex.positions = []domain.Position{{Symbol: "BTCUSDT", Amount: 3, EntryPrice: 100}}
	env.ex.open = []domain.Order{
		stopOrder(1, "stop_old", domain.Sell, 98, 100),
		stopOrder(2, "stop_new", domain.Sell, 99, 200),
		stopOrder(3, "stop_wrong", domain.Buy, 102, 300),
		tpOrder(10, domain.Sell, 105),
		tpOrder(11, domain.Sell, 105),
		tpOrder(12, domain.Sell, 103),
		tpOrder(13, domain.Sell, 104),
		tpOrder(14, domain.Buy, 95),
		{OrderID: 20, Symbol: "BTCUSDT", Side: domain.Buy, Type: "LIMIT"},
	}

	rep, err := env.e.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, rep.StopsKept)
	assert.Equal(t, 2, rep.StopsCanceled)
	assert.Equal(t, 2, rep.TPsKept)
	assert.Equal(t, 3, rep.TPsCanceled)
	assert.Equal(t, 1, rep.Unclassified)
	assert.True(t, rep.TrailRestored)
	assert.ElementsMatch(t, []int64{2, 10, 13, 20}, openIDs(t, env.ex))

	trail := env.e.State().Trail()
	assert.Equal(t, domain.Long, trail.Side)
	assert.Equal(t, "stop_new", trail.ClientID)
	assert.Equal(t, 99.0, trail.StopPrice)
}

func TestReconcile_ShortKeepsLowestTargets(t *testing.T) {
	env := newTestEnv(t)
	env.ex.positions = []domain.Position{{Symbol: "BTCUSDT", Amount: -3, EntryPrice: 100}}
	env.ex.open = []domain.Order{
		stopOrder(1, "s", domain.Buy, 101, 1),
		tpOrder(10, domain.Buy, 97),
		tpOrder(11, domain.Buy, 95),
		tpOrder(12, domain.Buy, 96),
	}

	rep, err := env.e.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, rep.TPsKept)
	assert.ElementsMatch(t, []int64{1, 11, 12}, openIDs(t, env.ex))
}

func TestReconcile_FlatCancelsEverythingProtective(t *testing.T) {
	env := newTestEnv(t)
	env.ex.open = []domain.Order{
		stopOrder(1, "s", domain.Sell, 98, 1),
		tpOrder(10, domain.Sell, 105),
		{OrderID: 20, Symbol: "BTCUSDT", Type: "LIMIT"},
	}
	env.e.State().SetTrail(domain.TrailingStopRecord{Side: domain.Long, StopPrice: 98, ClientID: "s"})

	rep, err := env.e.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, rep.StopsCanceled)
	assert.Equal(t, 1, rep.TPsCanceled)
	assert.ElementsMatch(t, []int64{20}, openIDs(t, env.ex))
	assert.False(t, env.e.State().Trail().Valid())
}

func TestReconcile_PositionWithoutStopClearsTrailKeepingSide(t *testing.T) {
	env := newTestEnv(t)
	env.ex.positions = []domain.Position{{Symbol: "BTCUSDT", Amount: -1, EntryPrice: 100}}
	env.e.State().SetTrail(domain.TrailingStopRecord{Side: domain.Short, StopPrice: 101, ClientID: "gone"})

	rep, err := env.e.Reconcile(context.Background())
	require.NoError(t, err)

	assert.False(t, rep.TrailRestored)
	trail := env.e.State().Trail()
	assert.False(t, trail.Valid())
	assert.Equal(t, domain.Short, trail.Side)
}

func TestReconcile_IsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.ex.positions = []domain.Position{{Symbol: "BTCUSDT", Amount: 3, EntryPrice: 100}}
	env.ex.open = []domain.Order{
		stopOrder(1, "a", domain.Sell, 98, 1),
		stopOrder(2, "b", domain.Sell, 99, 2),
		tpOrder(10, domain.Sell, 105),
		tpOrder(11, domain.Sell, 104),
		tpOrder(12, domain.Sell, 103),
	}

	_, err := env.e.Reconcile(context.Background())
	require.NoError(t, err)
	first := openIDs(t, env.ex)

	rep, err := env.e.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rep.StopsCanceled+rep.TPsCanceled)
	assert.ElementsMatch(t, first, openIDs(t, env.ex))
}

func TestApplyUser_TakeProfitFilledWhenFlatCancelsStops(t *testing.T) {
	env := newTestEnv(t)
	env.ex.open = []domain.Order{stopOrder(1, "s", domain.Sell, 98, 1)}
	env.e.State().SetTrail(domain.TrailingStopRecord{Side: domain.Long, StopPrice: 98, ClientID: "s"})

	tp := tpOrder(10, domain.Sell, 105)
	tp.Status = domain.StatusFilled
	env.e.applyUser(context.Background(), domain.UserEvent{Kind: domain.EventOrderUpdate, Order: tp})

	assert.Empty(t, openIDs(t, env.ex))
	assert.False(t, env.e.State().Trail().Valid())
}

func TestApplyUser_TakeProfitFilledWithPositionKeepsStop(t *testing.T) {
	env := newTestEnv(t)
	env.ex.positions = []domain.Position{{Symbol: "BTCUSDT", Amount: 1, EntryPrice: 100}}
	env.ex.open = []domain.Order{stopOrder(1, "s", domain.Sell, 98, 1)}

	tp := tpOrder(10, domain.Sell, 101.5)
	tp.Status = domain.StatusFilled
	env.e.applyUser(context.Background(), domain.UserEvent{Kind: domain.EventOrderUpdate, Order: tp})

	assert.Equal(t, []int64{1}, openIDs(t, env.ex))
	assert.Empty(t, env.ex.canceled)
}

func TestApplyUser_StopFilledCancelsTakeProfits(t *testing.T) {
	env := newTestEnv(t)
	env.ex.open = []domain.Order{
		tpOrder(10, domain.Sell, 105),
		tpOrder(11, domain.Sell, 103),
		{OrderID: 20, Symbol: "BTCUSDT", Type: "LIMIT"},
	}
	env.e.State().SetTrail(domain.TrailingStopRecord{Side: domain.Long, StopPrice: 98, ClientID: "s"})

	stop := stopOrder(1, "s", domain.Sell, 98, 1)
	stop.Status = domain.StatusFilled
	env.e.applyUser(context.Background(), domain.UserEvent{Kind: domain.EventOrderUpdate, Order: stop})

	assert.Equal(t, []int64{20}, openIDs(t, env.ex))
	assert.False(t, env.e.State().Trail().Valid())
}

func TestApplyUser_IgnoresNonFilledAndOtherSymbols(t *testing.T) {
	env := newTestEnv(t)
	env.ex.open = []domain.Order{tpOrder(10, domain.Sell, 105)}

	stop := stopOrder(1, "s", domain.Sell, 98, 1)
	stop.Status = domain.StatusNew
	env.e.applyUser(context.Background(), domain.UserEvent{Kind: domain.EventOrderUpdate, Order: stop})

	other := stopOrder(2, "x", domain.Sell, 98, 1)
	other.Symbol = "ETHUSDT"
	other.Status = domain.StatusFilled
	env.e.applyUser(context.Background(), domain.UserEvent{Kind: domain.EventOrderUpdate, Order: other})

	assert.Empty(t, env.ex.canceled)
}

func TestApplyUser_AccountUpdateSeedsThenAppliesDeltas(t *testing.T) {
	env := newTestEnv(t)
	ev := func(cum float64, at int64) domain.UserEvent {
		return domain.UserEvent{
			Kind:      domain.EventAccountUpdate,
			EventTime: at,
			Positions: []domain.AccountPosition{{Symbol: "BTCUSDT", CumRealized: cum}},
		}
	}

	env.e.applyUser(context.Background(), ev(-20, 1_000))
	l := env.e.State().Ledger()
	assert.Zero(t, l.RealizedToday, "first update only seeds the baseline")

	env.e.applyUser(context.Background(), ev(-25, 2_000))
	l = env.e.State().Ledger()
	assert.Equal(t, -5.0, l.RealizedToday)
	assert.Equal(t, int64(2_000), l.LastLossServerMs)

	env.e.applyUser(context.Background(), ev(-22, 3_000))
	l = env.e.State().Ledger()
	assert.Equal(t, -2.0, l.RealizedToday)
	assert.Equal(t, int64(2_000), l.LastLossServerMs, "a gain does not move the last loss")
}

func TestApplyUser_ListenKeyExpiredCallsHook(t *testing.T) {
	called := 0
	env := newTestEnv(t, func(_ *Config, d *Deps) {
		d.OnKeyExpired = func() { called++ }
	})

	env.e.applyUser(context.Background(), domain.UserEvent{Kind: domain.EventListenKeyExpired})
	assert.Equal(t, 1, called)
}
