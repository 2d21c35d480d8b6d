package ports

import "github.com/alejandrodnm/sweepbot/internal/domain"

// Heartbeat es la foto periódica del engine que se muestra al operador.
type Heartbeat struct {
	Symbol       string
	Cycle        int64
	ServerMs     int64
	LastPrice    float64
	Bid, Ask     float64
	Equity       float64
	Position     *domain.Position
	TrailStop    float64
	Ledger       domain.DayLedger
	SafeMode     bool
	SafeReason   string
	DriftMs      int64
	FeedAgeSec   float64
	Blocked      map[string]int
	LastDecision string
}

// Notifier presenta el estado del engine al operador.
type Notifier interface {
	Heartbeat(hb Heartbeat) error
}

// Metrics recibe los contadores y gauges del engine.
type Metrics interface {
	IncBlocked(reason string, n int)
	IncEntry(side domain.Side)
	IncOrderError(op string)
	IncTrailUpdate()
	IncReconnect(feed string)
	SetSafeMode(on bool)
	SetDrift(ms int64)
	SetFeedAge(seconds float64)
	SetRealizedToday(v float64)
}
