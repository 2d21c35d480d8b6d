package live

import (
	"maps"
	"sync"
	"time"

	"github.com/alejandrodnm/sweepbot/internal/domain"
)

// RunState es el estado mutable compartido entre el loop de decisión y los
// consumidores de los streams. mu se sostiene solo para copiar o escribir,
// nunca durante una llamada de red.
type RunState struct {
	mu sync.Mutex

	rings        map[domain.Timeframe]*domain.CandleRing
	bid, ask     float64
	lastMarketAt time.Time // hora local del último mensaje de mercado

	ledger    domain.DayLedger
	baselines map[string]float64 // realizado acumulado por símbolo (ACCOUNT_UPDATE)
	dedupe    domain.DedupeBook
	trail     domain.TrailingStopRecord

	safe       bool
	safeReason string

	driftMs      int64
	driftSamples []int64
	driftStreak  int

	serverMs  int64 // última hora de servidor conocida
	balance   float64
	balanceAt time.Time

	blocked       map[string]int // motivos del minuto en curso
	blockedMinute int64
}

// NewRunState crea el estado con un ring por timeframe.
func NewRunState(capacity int, tfs ...domain.Timeframe) *RunState {
	st := &RunState{
		rings:     make(map[domain.Timeframe]*domain.CandleRing, len(tfs)),
		baselines: make(map[string]float64),
		dedupe:    make(domain.DedupeBook),
		blocked:   make(map[string]int),
	}
	for _, tf := range tfs {
		st.rings[tf] = domain.NewCandleRing(capacity)
	}
	return st
}

// AppendCandle agrega una vela cerrada al ring del timeframe. Las entregas
// repetidas o fuera de orden se descartan.
func (st *RunState) AppendCandle(tf domain.Timeframe, c domain.Candle, at time.Time) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.lastMarketAt = at
	r, ok := st.rings[tf]
	if !ok {
		return false
	}
	return r.Append(c)
}

// SetBook registra el mejor bid/ask.
func (st *RunState) SetBook(bid, ask float64, at time.Time) {
	st.mu.Lock()
	st.bid, st.ask = bid, ask
	st.lastMarketAt = at
	st.mu.Unlock()
}

// Book devuelve bid, ask y la hora del último mensaje de mercado.
func (st *RunState) Book() (bid, ask float64, at time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.bid, st.ask, st.lastMarketAt
}

// Candles copia el ring del timeframe.
func (st *RunState) Candles(tf domain.Timeframe) []domain.Candle {
	st.mu.Lock()
	defer st.mu.Unlock()
	r, ok := st.rings[tf]
	if !ok {
		return nil
	}
	return r.Snapshot()
}

// BufferLen devuelve cuántas velas hay en el ring.
func (st *RunState) BufferLen(tf domain.Timeframe) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	if r, ok := st.rings[tf]; ok {
		return r.Len()
	}
	return 0
}

// LoadCandles reemplaza el ring (backfill) o agrega solo las velas nuevas.
func (st *RunState) LoadCandles(tf domain.Timeframe, cs []domain.Candle, replace bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	r, ok := st.rings[tf]
	if !ok {
		return
	}
	if replace {
		r.Replace(cs)
		return
	}
	for _, c := range cs {
		r.Append(c)
	}
}

// Ledger devuelve una copia del ledger diario.
func (st *RunState) Ledger() domain.DayLedger {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.ledger
}

// ApplyRealized aplica el realizado acumulado de un ACCOUNT_UPDATE. El primer
// valor por símbolo solo fija la base; devuelve el delta aplicado.
func (st *RunState) ApplyRealized(symbol string, cum float64, serverMs int64) (delta float64, seeded bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	prev, ok := st.baselines[symbol]
	if !ok {
		st.baselines[symbol] = cum
		return 0, true
	}
	delta = cum - prev
	if delta == 0 {
		return 0, false
	}
	st.baselines[symbol] = cum
	if serverMs <= 0 {
		serverMs = st.serverMs
	}
	st.ledger.RecordRealized(delta, serverMs)
	st.balanceAt = time.Time{}
	return delta, false
}

// SetRealizedTotal fija el realizado del día desde REST. Una caída respecto
// del valor anterior cuenta como pérdida.
func (st *RunState) SetRealizedTotal(total float64, serverMs int64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if total < st.ledger.RealizedToday && serverMs > 0 {
		st.ledger.LastLossServerMs = serverMs
	}
	st.ledger.RealizedToday = total
}

// IncTrades cuenta una entrada colocada.
func (st *RunState) IncTrades() {
	st.mu.Lock()
	st.ledger.TradesToday++
	st.mu.Unlock()
}

// Rollover reinicia el ledger si dayKey cambió. Devuelve true si hubo cambio.
// La primera llamada sin fecha solo fija el día y la equity.
func (st *RunState) Rollover(dayKey string, equity float64, keep int) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.ledger.Date == dayKey {
		return false
	}
	first := st.ledger.Date == ""
	st.ledger.Date = dayKey
	if equity > 0 {
		st.ledger.StartEquity = equity
	} else if st.ledger.StartEquity <= 0 {
		st.ledger.StartEquity = 1
	}
	if first {
		return true
	}
	st.ledger.RealizedToday = 0
	st.ledger.TradesToday = 0
	st.baselines = make(map[string]float64)
	st.dedupe.Trim(keep)
	return true
}

// Trail devuelve el registro del stop de protección.
func (st *RunState) Trail() domain.TrailingStopRecord {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.trail
}

// SetTrail reemplaza el registro del stop.
func (st *RunState) SetTrail(r domain.TrailingStopRecord) {
	st.mu.Lock()
	st.trail = r
	st.mu.Unlock()
}

// ClearTrail borra el registro; side queda como pista para el próximo ciclo.
func (st *RunState) ClearTrail(side domain.Side) {
	st.mu.Lock()
	st.trail = domain.TrailingStopRecord{Side: side}
	st.mu.Unlock()
}

// DedupeAllowed consulta el book de dedupe.
func (st *RunState) DedupeAllowed(id string, nowMin int64, cooldownMin int) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.dedupe.Allowed(id, nowMin, cooldownMin)
}

// MarkSignal registra el disparo de una señal.
func (st *RunState) MarkSignal(id string, nowMin int64) {
	st.mu.Lock()
	st.dedupe.Mark(id, nowMin)
	st.mu.Unlock()
}

// TrimDedupe recorta el book a las keep entradas más recientes.
func (st *RunState) TrimDedupe(keep int) {
	st.mu.Lock()
	st.dedupe.Trim(keep)
	st.mu.Unlock()
}

// SetSafe entra o sale de safe mode.
func (st *RunState) SetSafe(on bool, reason string) {
	st.mu.Lock()
	st.safe = on
	if on {
		st.safeReason = reason
	} else {
		st.safeReason = ""
	}
	st.mu.Unlock()
}

// Safe devuelve el flag de safe mode y su motivo.
func (st *RunState) Safe() (bool, string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.safe, st.safeReason
}

// SetServerMs registra la última hora de servidor.
func (st *RunState) SetServerMs(ms int64) {
	st.mu.Lock()
	st.serverMs = ms
	st.mu.Unlock()
}

// ServerMs devuelve la última hora de servidor conocida (0 si ninguna).
func (st *RunState) ServerMs() int64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.serverMs
}

// Drift devuelve el último offset servidor-local en ms.
func (st *RunState) Drift() int64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.driftMs
}

// CachedBalance devuelve el balance si no venció.
func (st *RunState) CachedBalance(now time.Time, ttl time.Duration) (float64, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.balance <= 0 || st.balanceAt.IsZero() || now.Sub(st.balanceAt) > ttl {
		return st.balance, false
	}
	return st.balance, true
}

// SetBalance guarda el balance consultado.
func (st *RunState) SetBalance(v float64, now time.Time) {
	st.mu.Lock()
	st.balance, st.balanceAt = v, now
	st.mu.Unlock()
}

// InvalidateBalance fuerza la próxima consulta de balance.
func (st *RunState) InvalidateBalance() {
	st.mu.Lock()
	st.balanceAt = time.Time{}
	st.mu.Unlock()
}

// Block cuenta un ciclo bloqueado por reason en el minuto en curso.
func (st *RunState) Block(reason string) {
	st.mu.Lock()
	st.blocked[reason]++
	st.mu.Unlock()
}

// BlockedCounts copia los contadores del minuto en curso.
func (st *RunState) BlockedCounts() map[string]int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return maps.Clone(st.blocked)
}

// TakeBlocked devuelve y reinicia los contadores cuando el minuto de servidor
// avanzó. La primera llamada solo fija el minuto.
func (st *RunState) TakeBlocked(nowMin int64) []domain.BlockedCount {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.blockedMinute == 0 {
		st.blockedMinute = nowMin
		return nil
	}
	if nowMin == st.blockedMinute || len(st.blocked) == 0 {
		if len(st.blocked) == 0 {
			st.blockedMinute = nowMin
		}
		return nil
	}
	out := make([]domain.BlockedCount, 0, len(st.blocked))
	for r, n := range st.blocked {
		out = append(out, domain.BlockedCount{Minute: st.blockedMinute, Reason: r, Count: n})
	}
	st.blocked = make(map[string]int)
	st.blockedMinute = nowMin
	return out
}

// Persisted arma el estado que sobrevive a un reinicio.
func (st *RunState) Persisted() domain.PersistedState {
	st.mu.Lock()
	defer st.mu.Unlock()
	return domain.PersistedState{
		DayStartEquity: st.ledger.StartEquity,
		DayStartDate:   st.ledger.Date,
		TradesToday:    st.ledger.TradesToday,
		RealizedToday:  st.ledger.RealizedToday,
		LastLossMs:     st.ledger.LastLossServerMs,
		Dedupe:         maps.Clone(st.dedupe),
		CRBaselines:    maps.Clone(st.baselines),
	}
}

// Restore carga el estado persistido.
func (st *RunState) Restore(p domain.PersistedState) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.ledger = p.Ledger()
	if p.Dedupe != nil {
		st.dedupe = maps.Clone(p.Dedupe)
	}
	if p.CRBaselines != nil {
		st.baselines = maps.Clone(p.CRBaselines)
	}
}
