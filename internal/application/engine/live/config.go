package live

import (
	"time"

	"github.com/alejandrodnm/sweepbot/internal/domain"
)

const (
	defaultBufferSize     = 1500
	defaultBackfillBars   = 600
	defaultWorkingType    = "MARK_PRICE"
	defaultPriceSource    = "last"
	restKlinesLimit       = 1000
	minFreshWindow        = 20 * time.Second
	htfBiasRefreshFloor   = 5 * time.Minute
	htfBiasBars           = 60
	priorExtremesBars     = 3
	blockedCircuitDefault = 5
	orderCircuitDefault   = 4
	staleCircuitDefault   = 5
)

// RiskConfig agrupa guardrails, sizing y umbral de score.
type RiskConfig struct {
	RiskPct        float64 // fracción de equity arriesgada por trade
	ScoreThreshold float64
	MaxTrades      int
	MaxDailyLoss   float64 // fracción de la equity de inicio del día
	LossCooldown   time.Duration
	Throttle       domain.ThrottleLadder
	MinStopTicks   int
	PartialFrac    float64
	NotionalCap    float64 // 0 = sin límite
	GrossCap       float64 // 0 = sin límite
	PriceSource    string  // "last" | "mark"
	UseAvailable   bool    // dimensionar con el balance disponible
	BalanceTTL     time.Duration
}

// HealthConfig parametriza drift, frescura y safe mode.
type HealthConfig struct {
	DriftSoftMs    int64
	DriftHardMs    int64
	DriftBreachN   int // muestras duras consecutivas para entrar en safe mode
	DriftRecoverM  int // muestras bajo hard/2 para salir
	DriftWindow    int
	DriftEvery     int // ciclos entre muestreos
	DriftSampleGap time.Duration

	StaleAfter      time.Duration
	StaleHard       time.Duration
	FreshMax        time.Duration // tope de la ventana de frescura del stream
	Watchdog        time.Duration
	FreshGrace      int // ciclos de gracia tras el backfill
	MinBufferBars   int
	RestMinInterval time.Duration

	SafeMode         bool
	SafeAutoRecover  bool
	RequireListenKey bool
}

// CircuitConfig define los tres circuitos del loop.
type CircuitConfig struct {
	BlockedN     int
	BlockedPause time.Duration
	OrderN       int
	OrderPause   time.Duration
	StaleN       int
	StalePause   time.Duration
}

// ContextConfig controla los niveles de timeframes mayores.
type ContextConfig struct {
	PriorEnabled bool
	PriorWeight  float64
	PriorTTL     time.Duration
	PriorWorkers int
	BiasEnabled  bool
	BiasHystBps  float64
	BiasRefresh  time.Duration
}

// Config es la configuración del engine de ejecución.
type Config struct {
	Symbol         string
	Timeframe      domain.Timeframe
	Location       *time.Location
	BufferSize     int
	BackfillBars   int
	Leverage       int
	WorkingType    string
	RequireOneWay  bool
	MarginType     string // "cross" | "isolated"
	RestoreATRMult float64

	Risk    RiskConfig
	Funding domain.FundingPolicy
	Trail   domain.TrailParams
	Health  HealthConfig
	Circuit CircuitConfig
	Context ContextConfig

	DedupeCooldownMin int
	DedupeKeep        int
	DedupeBinTicks    int

	HeartbeatEvery    int
	SaveEvery         int
	ReconcileEvery    int
	TimePoll          time.Duration
	InstrumentRefresh time.Duration
	RealizedPoll      time.Duration
	QueryRetries      int
	QueryDelay        time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeframe == "" {
		c.Timeframe = domain.TF1m
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.BackfillBars <= 0 {
		c.BackfillBars = defaultBackfillBars
	}
	if c.WorkingType == "" {
		c.WorkingType = defaultWorkingType
	}
	if c.RestoreATRMult <= 0 {
		c.RestoreATRMult = 1.5
	}
	if c.Risk.PriceSource == "" {
		c.Risk.PriceSource = defaultPriceSource
	}
	if c.Risk.BalanceTTL <= 0 {
		c.Risk.BalanceTTL = 10 * time.Second
	}
	if c.Risk.MinStopTicks <= 0 {
		c.Risk.MinStopTicks = 2
	}

	h := &c.Health
	if h.DriftSoftMs <= 0 {
		h.DriftSoftMs = 2000
	}
	if h.DriftHardMs <= 0 {
		h.DriftHardMs = 5000
	}
	if h.DriftBreachN <= 0 {
		h.DriftBreachN = 3
	}
	if h.DriftRecoverM <= 0 {
		h.DriftRecoverM = 3
	}
	if h.DriftWindow <= 0 {
		h.DriftWindow = 9
	}
	if h.DriftEvery <= 0 {
		h.DriftEvery = 10
	}
	if h.DriftSampleGap <= 0 {
		h.DriftSampleGap = 50 * time.Millisecond
	}
	if h.StaleAfter <= 0 {
		h.StaleAfter = 10 * time.Minute
	}
	if h.StaleHard <= 0 {
		h.StaleHard = 30 * time.Minute
	}
	if h.FreshMax <= 0 {
		h.FreshMax = 90 * time.Second
	}
	if h.Watchdog <= 0 {
		h.Watchdog = 90 * time.Second
	}
	if h.FreshGrace <= 0 {
		h.FreshGrace = 2
	}
	if h.MinBufferBars <= 0 {
		h.MinBufferBars = 50
	}
	if h.RestMinInterval <= 0 {
		h.RestMinInterval = 3 * time.Second
	}

	ci := &c.Circuit
	if ci.BlockedN <= 0 {
		ci.BlockedN = blockedCircuitDefault
	}
	if ci.BlockedPause <= 0 {
		ci.BlockedPause = 7 * time.Second
	}
	if ci.OrderN <= 0 {
		ci.OrderN = orderCircuitDefault
	}
	if ci.OrderPause <= 0 {
		ci.OrderPause = 15 * time.Second
	}
	if ci.StaleN <= 0 {
		ci.StaleN = staleCircuitDefault
	}
	if ci.StalePause <= 0 {
		ci.StalePause = 7 * time.Second
	}

	x := &c.Context
	if x.PriorWeight <= 0 {
		x.PriorWeight = 0.80
	}
	if x.PriorTTL <= 0 {
		x.PriorTTL = 120 * time.Second
	}
	if x.PriorWorkers <= 0 {
		x.PriorWorkers = 3
	}
	if x.BiasRefresh < htfBiasRefreshFloor {
		x.BiasRefresh = htfBiasRefreshFloor
	}

	if c.DedupeCooldownMin <= 0 {
		c.DedupeCooldownMin = 45
	}
	if c.DedupeKeep <= 0 {
		c.DedupeKeep = 400
	}
	if c.DedupeBinTicks <= 0 {
		c.DedupeBinTicks = 10
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = 3
	}
	if c.SaveEvery <= 0 {
		c.SaveEvery = 5
	}
	if c.ReconcileEvery <= 0 {
		c.ReconcileEvery = 60
	}
	if c.TimePoll <= 0 {
		c.TimePoll = 10 * time.Second
	}
	if c.InstrumentRefresh <= 0 {
		c.InstrumentRefresh = 6 * time.Hour
	}
	if c.RealizedPoll <= 0 {
		c.RealizedPoll = 30 * time.Second
	}
	if c.QueryRetries <= 0 {
		c.QueryRetries = 2
	}
	if c.QueryDelay <= 0 {
		c.QueryDelay = 300 * time.Millisecond
	}
	return c
}
