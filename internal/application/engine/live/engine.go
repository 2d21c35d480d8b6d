package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alejandrodnm/sweepbot/internal/domain"
	"github.com/alejandrodnm/sweepbot/internal/ports"
	"github.com/alejandrodnm/sweepbot/internal/strategy"
)

const (
	DecisionEntered     = "entered"
	DecisionSkipped     = "skipped"
	DecisionNoSetup     = "no_setup"
	DecisionEntryFailed = "entry_failed"
)

// ErrInvariant marca fallos de arranque que ningún reintento arregla.
var ErrInvariant = errors.New("startup invariant violated")

// Deps son los colaboradores del engine. Store, Journal, Notifier y Market
// son opcionales; Metrics nil usa un recolector vacío.
type Deps struct {
	Exchange     ports.Exchange
	Strategy     strategy.Strategy
	Store        ports.StateStore
	Journal      ports.Journal
	Notifier     ports.Notifier
	Metrics      ports.Metrics
	Market       ports.MarketFeed
	UserHealthy  func() bool
	OnKeyExpired func()
}

// CycleResult resume un ciclo de decisión.
type CycleResult struct {
	Cycle    int64
	Decision string
	Reason   string
	SignalID string
	Entry    *domain.EntryRecord
	Position float64
	Pause    time.Duration // pausa pedida por un circuito
	SafeMode bool
}

// Engine ejecuta el loop de decisión contra un exchange real. RunOnce y las
// tareas periódicas corren en una sola goroutine; los feeds escriben en
// RunState desde las suyas.
type Engine struct {
	ex           ports.Exchange
	strat        strategy.Strategy
	store        ports.StateStore
	journal      ports.Journal
	notifier     ports.Notifier
	metrics      ports.Metrics
	market       ports.MarketFeed
	userHealthy  func() bool
	onKeyExpired func()

	cfg Config
	st  *RunState

	inst   domain.Instrument
	instAt time.Time

	cycle      int64
	backfilled bool
	grace      int

	restCache []domain.Candle
	restAt    time.Time

	prior   []domain.LiquidityLevel
	priorAt time.Time
	bias    float64
	biasAt  time.Time

	prices   map[string]float64
	pricesAt time.Time

	lastTimePoll     time.Time
	lastRealizedPoll time.Time
	watchdogFired    bool

	blockedCB domain.CircuitBreaker
	orderCB   domain.CircuitBreaker
	staleCB   domain.CircuitBreaker

	// foto del último ciclo para el heartbeat
	lastPx       float64
	lastPos      domain.Position
	feedAge      time.Duration
	lastDecision string

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// New crea el engine. No hace I/O: Start inicializa contra el exchange.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Exchange == nil {
		return nil, errors.New("live.New: exchange is required")
	}
	if deps.Strategy == nil {
		return nil, errors.New("live.New: strategy is required")
	}
	if cfg.Symbol == "" {
		return nil, errors.New("live.New: symbol is required")
	}
	cfg = cfg.withDefaults()
	if _, err := cfg.Timeframe.Duration(); err != nil {
		return nil, fmt.Errorf("live.New: %w", err)
	}

	m := deps.Metrics
	if m == nil {
		m = nopMetrics{}
	}
	return &Engine{
		ex:           deps.Exchange,
		strat:        deps.Strategy,
		store:        deps.Store,
		journal:      deps.Journal,
		notifier:     deps.Notifier,
		metrics:      m,
		market:       deps.Market,
		userHealthy:  deps.UserHealthy,
		onKeyExpired: deps.OnKeyExpired,
		cfg:          cfg,
		st:           NewRunState(cfg.BufferSize, cfg.Timeframe),
		blockedCB:    domain.CircuitBreaker{Name: "blocked", Threshold: cfg.Circuit.BlockedN, Pause: cfg.Circuit.BlockedPause},
		orderCB:      domain.CircuitBreaker{Name: "order", Threshold: cfg.Circuit.OrderN, Pause: cfg.Circuit.OrderPause},
		staleCB:      domain.CircuitBreaker{Name: "stale", Threshold: cfg.Circuit.StaleN, Pause: cfg.Circuit.StalePause},
		now:          time.Now,
		sleep:        sleepCtx,
	}, nil
}

// State expone el estado compartido (feeds, heartbeat, tests).
func (e *Engine) State() *RunState { return e.st }

// Config devuelve la configuración efectiva con defaults.
func (e *Engine) Config() Config { return e.cfg }

// Start inicializa el instrumento, el apalancamiento y los chequeos de modo,
// restaura el estado persistido y reconcilia las órdenes abiertas.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.refreshInstrument(ctx); err != nil {
		return fmt.Errorf("live.Start: instrument: %w", err)
	}
	if e.cfg.Leverage > 0 {
		if err := e.ex.SetLeverage(ctx, e.cfg.Symbol, e.cfg.Leverage); err != nil {
			return fmt.Errorf("live.Start: leverage: %w", err)
		}
	}
	if err := e.sanity(ctx); err != nil {
		return err
	}

	e.updateDrift(ctx, true)
	e.loadState()

	if _, err := e.Reconcile(ctx); err != nil {
		return fmt.Errorf("live.Start: %w", err)
	}
	slog.Info("live: engine started",
		"symbol", e.cfg.Symbol,
		"tf", e.cfg.Timeframe,
		"strategy", e.strat.Name(),
		"tick", e.inst.Tick,
		"step", e.inst.Step,
		"leverage", e.cfg.Leverage,
	)
	return nil
}

// sanity verifica modo de posición y tipo de margen. Un desajuste es fatal;
// si la consulta misma falla el engine arranca en safe mode.
func (e *Engine) sanity(ctx context.Context) error {
	dual, err := e.ex.PositionModeDual(ctx)
	switch {
	case err != nil:
		e.enterSafe("sanity:position_mode", err)
	case dual && e.cfg.RequireOneWay:
		return fmt.Errorf("live.Start: %w: account is in hedge mode, one-way required", ErrInvariant)
	}

	if e.cfg.MarginType == "" {
		return nil
	}
	mt, err := e.ex.MarginType(ctx, e.cfg.Symbol)
	switch {
	case err != nil:
		e.enterSafe("sanity:margin_type", err)
	case !strings.EqualFold(mt, e.cfg.MarginType):
		return fmt.Errorf("live.Start: %w: margin type %s, want %s", ErrInvariant, mt, e.cfg.MarginType)
	}
	return nil
}

func (e *Engine) enterSafe(reason string, err error) {
	e.st.SetSafe(true, reason)
	e.metrics.SetSafeMode(true)
	slog.Warn("live: safe mode on", "reason", reason, "err", err)
}

func (e *Engine) loadState() {
	if e.store == nil {
		return
	}
	p, ok, err := e.store.Load()
	if err != nil {
		slog.Warn("live: state load failed, starting fresh", "err", err)
		return
	}
	if !ok {
		return
	}
	e.st.Restore(p)
	l := e.st.Ledger()
	e.metrics.SetRealizedToday(l.RealizedToday)
	slog.Info("live: state restored",
		"date", l.Date, "trades", l.TradesToday, "realized", l.RealizedToday, "dedupe", len(p.Dedupe))
}

// RunOnce ejecuta un ciclo: mantenimiento → velas → staleness → gestión de
// la posición → safe gate → estrategia → dedupe → gates → sizing → entrada.
func (e *Engine) RunOnce(ctx context.Context) (CycleResult, error) {
	e.cycle++
	res := CycleResult{Cycle: e.cycle}

	e.maintain(ctx)
	e.decide(ctx, &res)

	res.SafeMode, _ = e.st.Safe()
	e.lastDecision = res.Decision
	if res.Reason != "" {
		e.lastDecision += ":" + res.Reason
	}
	e.afterCycle(ctx, res)
	return res, ctx.Err()
}

func (e *Engine) decide(ctx context.Context, res *CycleResult) {
	cs, fresh, err := e.execCandles(ctx)
	if err != nil || len(cs) == 0 {
		if err != nil {
			slog.Warn("live: candles unavailable", "err", err)
		}
		e.skipStale(res)
		return
	}
	last := cs[len(cs)-1]
	stale, age := e.checkStale(last)
	e.feedAge = age
	if stale {
		slog.Warn("live: last closed candle is stale", "age", age.Round(time.Second))
		e.skipStale(res)
		return
	}
	e.staleCB.Reset()

	px := e.currentPrice(last, fresh)
	e.lastPx = px

	pos, err := e.position(ctx)
	if err != nil {
		slog.Warn("live: positions unavailable", "err", err)
		e.skip(res, "positions_unavailable", true)
		return
	}
	e.lastPos = pos
	res.Position = pos.Amount
	e.manageTrailing(ctx, pos, cs, px)

	if blocked, why := e.safeGate(fresh); blocked {
		e.skip(res, "safe."+why, true)
		return
	}
	if pos.Amount != 0 {
		e.skip(res, "position_open", false)
		return
	}

	srv := e.serverNow()
	setup := e.strat.Evaluate(strategy.Snapshot{
		Candles:    cs,
		Timeframe:  e.cfg.Timeframe,
		LastPrice:  px,
		Tick:       e.inst.Tick,
		ServerTime: time.UnixMilli(srv),
		Prior:      e.priorLevels(ctx),
		HTFBias:    e.htfBias(ctx),
	})
	if setup.Candidate == nil {
		res.Decision = DecisionNoSetup
		e.blockedCB.Reset()
		return
	}
	c := *setup.Candidate

	ref := e.strat.SignalRef(setup, px)
	sigID := domain.MakeSignalID(domain.SignalIDParams{
		ServerMs:  srv,
		Loc:       e.cfg.Location,
		Side:      c.Side,
		GapLow:    c.Gap.Low,
		GapHigh:   c.Gap.High,
		BarOfDay:  e.barOfDay(cs, c.Gap.BarIndex, srv),
		PoolRef:   ref.Price,
		PoolCount: ref.Count,
		PoolTag:   ref.Tag,
		Tick:      e.inst.Tick,
		BinTicks:  e.cfg.DedupeBinTicks,
	})
	res.SignalID = sigID
	nowMin := domain.EpochMinute(srv)
	if !e.st.DedupeAllowed(sigID, nowMin, e.cfg.DedupeCooldownMin) {
		e.skip(res, "dedupe", false)
		return
	}

	g := e.evaluateGates(ctx, setup, srv)
	if g.blocked() {
		e.skip(res, g.reason, g.counted)
		e.recordSignal(ctx, sigID, c, g.score, DecisionSkipped, g.reason, srv)
		return
	}

	stop := domain.ClampStop(c.Side, c.Entry, c.Stop, e.inst.Tick, e.cfg.Risk.MinStopTicks)
	c.Stop = stop
	size, gross := e.sizeEntry(ctx, c, g.riskFrac, px)
	if size.Reason != "" {
		e.skip(res, size.Reason, false)
		e.recordSignal(ctx, sigID, c, g.score, DecisionSkipped, size.Reason, srv)
		return
	}
	tg := e.strat.Targets(setup, e.inst.Tick)

	o, err := e.submitEntry(ctx, c.Side, size.Qty)
	if err != nil {
		res.Decision = DecisionEntryFailed
		res.Reason = "order_error"
		res.Pause = max(res.Pause, e.orderError("entry", err))
		slog.Error("live: entry failed", "symbol", e.cfg.Symbol, "signal", sigID, "client_id", o.ClientID, "err", err)
		e.recordSignal(ctx, sigID, c, g.score, DecisionEntryFailed, err.Error(), srv)
		return
	}

	e.checkFill(ctx, o, gross)
	fillPx := o.AvgPrice
	if fillPx <= 0 {
		fillPx = px
	}
	e.protectNewPosition(ctx, c.Side, fillPx, stop, size.Qty, tg)

	e.st.MarkSignal(sigID, nowMin)
	e.st.IncTrades()
	e.blockedCB.Reset()
	e.metrics.IncEntry(c.Side)

	rec := domain.EntryRecord{
		ClientID:  o.ClientID,
		SignalID:  sigID,
		Symbol:    e.cfg.Symbol,
		Side:      c.Side,
		Qty:       size.Qty,
		AvgPrice:  o.AvgPrice,
		Stop:      stop,
		TPFinal:   tg.Final,
		TPPartial: tg.Partial,
		Notional:  size.Notional,
		ServerMs:  srv,
	}
	res.Decision = DecisionEntered
	res.Entry = &rec
	e.recordSignal(ctx, sigID, c, g.score, DecisionEntered, "", srv)
	if e.journal != nil {
		if err := e.journal.RecordEntry(ctx, rec); err != nil {
			slog.Warn("live: journal entry failed", "err", err)
		}
	}
	slog.Info("live: entry placed",
		"symbol", e.cfg.Symbol,
		"side", c.Side,
		"qty", size.Qty,
		"entry", c.Entry,
		"stop", stop,
		"tp_final", tg.Final,
		"tp_partial", tg.Partial,
		"score", fmt.Sprintf("%.3f", g.score),
		"risk", g.riskFrac,
		"client_id", o.ClientID,
		"signal", sigID,
	)
}

// barOfDay cuenta la vela del gap desde el inicio del día de trading.
func (e *Engine) barOfDay(cs []domain.Candle, idx int, srv int64) int {
	if idx < 0 || idx >= len(cs) {
		return 0
	}
	d, err := e.cfg.Timeframe.Duration()
	if err != nil || d <= 0 {
		return 0
	}
	start := domain.DayStartMs(srv, e.cfg.Location)
	return int((cs[idx].OpenTime - start) / d.Milliseconds())
}

// currentPrice usa el mid del book si el stream está fresco, si no el
// cierre de la última vela.
func (e *Engine) currentPrice(last domain.Candle, fresh bool) float64 {
	if fresh {
		if bid, ask, _ := e.st.Book(); bid > 0 && ask > 0 {
			return (bid + ask) / 2
		}
	}
	return last.Close
}

func (e *Engine) skip(res *CycleResult, reason string, counted bool) {
	res.Decision = DecisionSkipped
	res.Reason = reason
	e.st.Block(reason)
	if counted {
		if p := e.blockedCB.Record(); p > 0 {
			res.Pause = max(res.Pause, p)
			slog.Warn("live: blocked circuit tripped", "reason", reason, "pause", p)
		}
	}
	slog.Debug("live: cycle skipped", "reason", reason)
}

func (e *Engine) skipStale(res *CycleResult) {
	res.Decision = DecisionSkipped
	res.Reason = reasonStale
	e.st.Block(reasonStale)
	if p := e.staleCB.Record(); p > 0 {
		res.Pause = max(res.Pause, p)
		slog.Warn("live: stale circuit tripped", "pause", p)
	}
}

func (e *Engine) recordSignal(ctx context.Context, id string, c domain.Candidate, score float64, decision, reason string, srv int64) {
	if e.journal == nil {
		return
	}
	err := e.journal.RecordSignal(ctx, domain.SignalRecord{
		SignalID: id,
		Symbol:   e.cfg.Symbol,
		Side:     c.Side,
		Entry:    c.Entry,
		Stop:     c.Stop,
		Score:    score,
		Decision: decision,
		Reason:   reason,
		ServerMs: srv,
	})
	if err != nil {
		slog.Warn("live: journal signal failed", "err", err)
	}
}

// afterCycle emite el heartbeat y persiste el estado en su cadencia.
func (e *Engine) afterCycle(ctx context.Context, res CycleResult) {
	if e.notifier != nil && e.cycle%int64(e.cfg.HeartbeatEvery) == 0 {
		if err := e.notifier.Heartbeat(e.heartbeat()); err != nil {
			slog.Debug("live: heartbeat failed", "err", err)
		}
	}
	if e.cycle%int64(e.cfg.SaveEvery) == 0 {
		if err := e.SaveState(); err != nil {
			slog.Warn("live: state save failed", "err", err)
		}
	}
	slog.Debug("live: cycle done", "cycle", res.Cycle, "decision", res.Decision, "reason", res.Reason)
}

func (e *Engine) heartbeat() ports.Heartbeat {
	bid, ask, _ := e.st.Book()
	safe, why := e.st.Safe()
	eq, _ := e.st.CachedBalance(e.now(), time.Hour)
	hb := ports.Heartbeat{
		Symbol:       e.cfg.Symbol,
		Cycle:        e.cycle,
		ServerMs:     e.serverNow(),
		LastPrice:    e.lastPx,
		Bid:          bid,
		Ask:          ask,
		Equity:       eq,
		TrailStop:    e.st.Trail().StopPrice,
		Ledger:       e.st.Ledger(),
		SafeMode:     safe,
		SafeReason:   why,
		DriftMs:      e.st.Drift(),
		FeedAgeSec:   e.feedAge.Seconds(),
		Blocked:      e.st.BlockedCounts(),
		LastDecision: e.lastDecision,
	}
	if e.lastPos.Amount != 0 {
		p := e.lastPos
		hb.Position = &p
	}
	return hb
}

// SaveState persiste ledger, dedupe y baselines.
func (e *Engine) SaveState() error {
	// el book se persiste recortado
	e.st.TrimDedupe(e.cfg.DedupeKeep)
	if e.store == nil {
		return nil
	}
	if err := e.store.Save(e.st.Persisted()); err != nil {
		return fmt.Errorf("live.SaveState: %w", err)
	}
	return nil
}

// Shutdown vuelca los bloqueos pendientes y guarda el estado.
func (e *Engine) Shutdown(ctx context.Context) error {
	if counts := e.st.TakeBlocked(domain.EpochMinute(e.serverNow()) + 1); len(counts) > 0 && e.journal != nil {
		if err := e.journal.RecordBlocked(ctx, counts); err != nil {
			slog.Warn("live: journal blocked counts failed", "err", err)
		}
	}
	return e.SaveState()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

type nopMetrics struct{}

func (nopMetrics) IncBlocked(string, int) {}
func (nopMetrics) IncEntry(domain.Side) {}
func (nopMetrics) IncOrderError(string) {}
func (nopMetrics) IncTrailUpdate() {}
func (nopMetrics) IncReconnect(string) {}
func (nopMetrics) SetSafeMode(bool) {}
func (nopMetrics) SetDrift(int64) {}
func (nopMetrics) SetFeedAge(float64) {}
func (nopMetrics) SetRealizedToday(float64) {}
