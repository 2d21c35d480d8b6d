package live

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/sweepbot/internal/domain"
	"github.com/alejandrodnm/sweepbot/internal/strategy"
)

// --- clock ---

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 2, 10, 0, 30, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// --- exchange ---

// submitOutcome programa la respuesta de un SubmitOrder. persist=true crea
// la orden aunque devuelva err (ack perdido).
type submitOutcome struct {
	err     error
	persist bool
}

type fakeExchange struct {
	mu    sync.Mutex
	clock *fakeClock

	inst      domain.Instrument
	klines    []domain.Candle
	klinesErr error
	htf       map[domain.Timeframe][]domain.Candle
	skewMs    int64
	funding   domain.FundingInfo
	prices    map[string]float64
	dual      bool
	margin    string
	modeErr   error
	positions []domain.Position
	total     float64
	avail     float64
	realized  float64
	fillPrice float64

	open      []domain.Order
	orders    map[string]domain.Order // por client id
	nextID    int64
	outcomes  []submitOutcome
	cancelErr error

	submitted  []domain.OrderRequest
	canceled   []domain.OrderRef
	queryCalls int
	leverage   int
	offset     int64
	bumped     bool
}

func newFakeExchange(clock *fakeClock) *fakeExchange {
	return &fakeExchange{
		clock:     clock,
		inst:      domain.Instrument{Symbol: "BTCUSDT", QuoteAsset: "USDT", Tick: 0.1, Step: 0.001, MinNotional: 5},
		htf:       make(map[domain.Timeframe][]domain.Candle),
		margin:    "cross",
		total:     1000,
		avail:     1000,
		fillPrice: 100,
		orders:    make(map[string]domain.Order),
		nextID:    1000,
	}
}

func (f *fakeExchange) Klines(_ context.Context, _ string, tf domain.Timeframe, limit int) ([]domain.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.klinesErr != nil {
		return nil, f.klinesErr
	}
	cs := f.klines
	if tf != domain.TF1m {
		cs = f.htf[tf]
	}
	if len(cs) > limit {
		cs = cs[len(cs)-limit:]
	}
	return append([]domain.Candle(nil), cs...), nil
}

func (f *fakeExchange) ServerTime(context.Context) (int64, error) {
	return f.clock.Now().UnixMilli() + f.skewMs, nil
}

func (f *fakeExchange) Funding(context.Context, string) (domain.FundingInfo, error) {
	return f.funding, nil
}

func (f *fakeExchange) LastPrices(context.Context) (map[string]float64, error) {
	return f.prices, nil
}

func (f *fakeExchange) Instrument(context.Context, string) (domain.Instrument, error) {
	return f.inst, nil
}

func (f *fakeExchange) SetLeverage(_ context.Context, _ string, lev int) error {
	f.leverage = lev
	return nil
}

func (f *fakeExchange) PositionModeDual(context.Context) (bool, error) { return f.dual, f.modeErr }

func (f *fakeExchange) MarginType(context.Context, string) (string, error) { return f.margin, nil }

func (f *fakeExchange) Positions(_ context.Context, symbol string) ([]domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Position
	for _, p := range f.positions {
		if symbol == "" || p.Symbol == symbol {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeExchange) Balance(context.Context, string) (float64, float64, error) {
	return f.total, f.avail, nil
}

func (f *fakeExchange) RealizedPnL(context.Context, string, int64) (float64, error) {
	return f.realized, nil
}

func (f *fakeExchange) SubmitOrder(_ context.Context, symbol string, req domain.OrderRequest) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)

	var out submitOutcome
	if len(f.outcomes) > 0 {
		out, f.outcomes = f.outcomes[0], f.outcomes[1:]
	}
	if out.err != nil && !out.persist {
		return domain.Order{}, out.err
	}

	f.nextID++
	qty, _ := strconv.ParseFloat(req.Quantity, 64)
	stop, _ := strconv.ParseFloat(req.StopPrice, 64)
	o := domain.Order{
		OrderID:       f.nextID,
		ClientID:      req.ClientID,
		Symbol:        symbol,
		Side:          req.Side,
		Type:          req.Type,
		Status:        domain.StatusNew,
		StopPrice:     stop,
		OrigQty:       qty,
		ReduceOnly:    req.ReduceOnly,
		ClosePosition: req.ClosePosition,
		UpdateTime:    f.clock.Now().UnixMilli(),
	}
	if req.Type == domain.OrderMarket {
		o.Status = domain.StatusFilled
		o.ExecutedQty = qty
		o.AvgPrice = f.fillPrice
		o.CumQuote = qty * f.fillPrice
	} else {
		f.open = append(f.open, o)
	}
	f.orders[req.ClientID] = o
	return o, out.err
}

func (f *fakeExchange) CancelOrder(_ context.Context, _ string, ref domain.OrderRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, ref)
	if f.cancelErr != nil {
		return f.cancelErr
	}
	kept := f.open[:0]
	for _, o := range f.open {
		if (ref.OrderID != 0 && o.OrderID == ref.OrderID) || (ref.ClientID != "" && o.ClientID == ref.ClientID) {
			continue
		}
		kept = append(kept, o)
	}
	f.open = kept
	return nil
}

func (f *fakeExchange) QueryOrder(_ context.Context, _ string, clientID string) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	o, ok := f.orders[clientID]
	if !ok {
		return domain.Order{}, &domain.ExchangeError{Kind: domain.KindRejected, Op: "query_order", Code: -2013, Msg: "Order does not exist."}
	}
	return o, nil
}

func (f *fakeExchange) OpenOrders(context.Context, string) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Order(nil), f.open...), nil
}

func (f *fakeExchange) StartUserStream(context.Context) (string, error) { return "lk", nil }

func (f *fakeExchange) KeepaliveUserStream(context.Context, string) error { return nil }

func (f *fakeExchange) SetTimeOffset(driftMs int64) { f.offset = driftMs }

func (f *fakeExchange) BumpRecvWindow(bump bool) { f.bumped = bump }

func (f *fakeExchange) submittedOfType(t domain.OrderType) []domain.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.OrderRequest
	for _, r := range f.submitted {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

func transientErr(op string) error {
	return &domain.ExchangeError{Kind: domain.KindTransient, Op: op, Msg: "i/o timeout"}
}

func rejectedErr(op string) error {
	return &domain.ExchangeError{Kind: domain.KindRejected, Op: op, Code: -2021, Msg: "Order would immediately trigger."}
}

// --- strategy ---

type fakeStrategy struct {
	setup   strategy.Setup
	targets strategy.Targets
	ref     strategy.SignalRef
	calls   int
}

func (s *fakeStrategy) Name() string { return "fake" }

func (s *fakeStrategy) Evaluate(strategy.Snapshot) strategy.Setup {
	s.calls++
	return s.setup
}

func (s *fakeStrategy) Targets(strategy.Setup, float64) strategy.Targets { return s.targets }

func (s *fakeStrategy) SignalRef(strategy.Setup, float64) strategy.SignalRef { return s.ref }

func longSetup() *fakeStrategy {
	return &fakeStrategy{
		setup: strategy.Setup{
			Candidate: &domain.Candidate{
				Side:  domain.Long,
				Entry: 100,
				Stop:  99,
				Gap:   domain.FVG{Bullish: true, Low: 99.8, High: 100.3, BarIndex: 50},
				Level: 99.5,
			},
			Score: 1.0,
		},
		targets: strategy.Targets{Final: 103, Partial: 101.5},
		ref:     strategy.SignalRef{Price: 101.5, Count: 2, Tag: "EQH"},
	}
}

// --- market feed ---

type fakeMarketFeed struct {
	events     []domain.MarketEvent
	reconnects int
}

func (m *fakeMarketFeed) Run(_ context.Context, sink func(domain.MarketEvent)) error {
	for _, ev := range m.events {
		sink(ev)
	}
	return nil
}

func (m *fakeMarketFeed) Reconnect() { m.reconnects++ }

// --- helpers ---

// flatCandles arma n velas de 1m cerradas, la última terminando en el minuto
// anterior al reloj, todas cerrando en px con rango ±0.2.
func flatCandles(clock *fakeClock, n int, px float64) []domain.Candle {
	end := clock.Now().Truncate(time.Minute).Add(-time.Minute)
	cs := make([]domain.Candle, n)
	for i := range cs {
		open := end.Add(-time.Duration(n-1-i) * time.Minute)
		cs[i] = domain.Candle{
			OpenTime: open.UnixMilli(),
			Open:     px,
			High:     px + 0.2,
			Low:      px - 0.2,
			Close:    px,
			Volume:   10,
		}
	}
	return cs
}

func testConfig() Config {
	return Config{
		Symbol:    "BTCUSDT",
		Timeframe: domain.TF1m,
		Risk: RiskConfig{
			RiskPct:        0.01,
			ScoreThreshold: 0.5,
			MaxTrades:      6,
			MaxDailyLoss:   0.03,
			LossCooldown:   20 * time.Minute,
			MinStopTicks:   2,
			PartialFrac:    0.35,
		},
		Trail: domain.TrailParams{ActivationR: 1.5, ATRMult: 1.0, MinTicks: 2},
		Health: HealthConfig{
			SafeMode:        true,
			SafeAutoRecover: true,
		},
	}
}

type testEnv struct {
	clock *fakeClock
	ex    *fakeExchange
	strat *fakeStrategy
	e     *Engine
}

func newTestEnv(t *testing.T, mutate ...func(*Config, *Deps)) *testEnv {
	t.Helper()
	clock := newClock()
	ex := newFakeExchange(clock)
	ex.klines = flatCandles(clock, 200, 100)
	strat := longSetup()

	cfg := testConfig()
	deps := Deps{Exchange: ex, Strategy: strat}
	for _, m := range mutate {
		m(&cfg, &deps)
	}
	e, err := New(cfg, deps)
	require.NoError(t, err)
	e.now = clock.Now
	e.sleep = func(context.Context, time.Duration) {}
	e.inst = ex.inst
	e.instAt = clock.Now()
	return &testEnv{clock: clock, ex: ex, strat: strat, e: e}
}
