package strategy

import (
	"time"

	"github.com/alejandrodnm/sweepbot/internal/domain"
)

// Strategy define el contrato de evaluación de un ciclo de decisión.
// Las implementaciones son puras: no hacen I/O ni guardan estado entre ciclos.
type Strategy interface {
	// Name devuelve el identificador único de la estrategia.
	Name() string

	// Evaluate construye los niveles, busca un candidato y lo puntúa.
	// Setup.Candidate es nil si no hay setup en este ciclo.
	Evaluate(snap Snapshot) Setup

	// Targets elige take-profit final y parcial para el candidato del setup.
	Targets(setup Setup, tick float64) Targets

	// SignalRef devuelve el nivel de referencia usado en la identidad del setup.
	SignalRef(setup Setup, last float64) SignalRef
}

// Snapshot es la vista consistente del mercado que recibe la estrategia.
type Snapshot struct {
	Candles    []domain.Candle // velas cerradas del timeframe de ejecución
	Timeframe  domain.Timeframe
	LastPrice  float64
	Tick       float64
	ServerTime time.Time
	Prior      []domain.LiquidityLevel // extremos PDH/PDL/PWH/... ya ponderados
	HTFBias    float64                 // -1, 0 o +1
}

// Setup es el resultado de evaluar un Snapshot.
type Setup struct {
	Above     []domain.LiquidityLevel // más cercano primero
	Below     []domain.LiquidityLevel
	Sessions  []string
	Regime    Regime
	Candidate *domain.Candidate
	Score     float64
	Terms     ScoreTerms
}

// LevelConfig controla qué fuentes de niveles se usan y cuánto pesan.
type LevelConfig struct {
	EQEnabled     bool
	EQLookback    int
	EQSpreadTicks int
	EQMinHits     int

	SessionsEnabled bool

	ORBEnabled bool
	ORBAnchor  string // "midnight" o "session"
	ORBSession string // nombre de la sesión ancla
	ORBMinutes int

	RangeEnabled    bool
	RangeWindow     int
	RangeMinTouches int
	RangeATRFracMax float64

	FVGEdgesEnabled bool
	FVGEdgeMaxAge   int

	FiguresEnabled  bool
	FigureIncrement float64
	FigureQuarters  bool

	VWAPEnabled bool
	VWAPStdK    float64

	WeightEQ      float64
	WeightSession float64
	WeightFVG     float64
	WeightFigure  float64
	WeightORB     float64
	WeightRange   float64
	WeightVWAP    float64

	ClusterBps float64
	TopK       int
}

// DetectConfig parametriza el detector de sweep + FVG.
type DetectConfig struct {
	FVG                domain.FVGParams
	Fill               domain.FillPolicy
	Quality            domain.QualityParams
	PenetrationBps     float64
	CloseBackBps       float64
	MaxRejectBars      int
	MinBars            int
	RegimeAdapt        bool
	BaseOffset         float64
	QualityWeight      float64
	DisplacementWeight float64
}

// ScoreConfig pondera los términos del score final.
type ScoreConfig struct {
	SessionBonus   float64
	OverlapBonus   float64
	PoolScoreGain  float64
	PoolNearUnit   float64
	PoolV2Weight   float64
	ProximityBps   float64
	HTFTagMult     float64
	HTFTags        map[domain.LevelTag]bool
	ContainmentW   float64
	ContainmentWin time.Duration
	BOSWeight      float64
	CHOCHWeight    float64
	HTFWeight      float64
}

// TargetConfig controla la elección de take-profits.
type TargetConfig struct {
	RR        float64
	RRCap     float64
	MinRRPool float64
	FeeBps    float64
}

// Config agrupa toda la configuración de la estrategia.
type Config struct {
	Sessions []domain.SessionWindow
	Location *time.Location
	Levels   LevelConfig
	Detect   DetectConfig
	Score    ScoreConfig
	Targets  TargetConfig
}

const sweepFVGName = "sweep_fvg"

// SweepFVG detecta barridas de liquidez seguidas de un FVG en contra.
type SweepFVG struct {
	cfg Config
}

// New crea la estrategia con la configuración dada.
func New(cfg Config) *SweepFVG {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Detect.MinBars <= 0 {
		cfg.Detect.MinBars = 30
	}
	if cfg.Score.ContainmentWin <= 0 {
		cfg.Score.ContainmentWin = 15 * time.Minute
	}
	return &SweepFVG{cfg: cfg}
}

// Name implementa Strategy.
func (s *SweepFVG) Name() string { return sweepFVGName }

// Config devuelve la configuración efectiva.
func (s *SweepFVG) Config() Config { return s.cfg }

// Evaluate implementa Strategy.
func (s *SweepFVG) Evaluate(snap Snapshot) Setup {
	var out Setup
	active := domain.ActiveSessions(snap.ServerTime, s.cfg.Sessions, s.cfg.Location)
	for _, w := range active {
		out.Sessions = append(out.Sessions, w.Name)
	}
	out.Above, out.Below = s.BuildLevels(snap, active)
	out.Regime = s.AdaptRegime(snap.Candles)

	cand := s.Detect(snap.Candles, out.Above, out.Below, snap.LastPrice, snap.Tick, out.Regime)
	if cand == nil {
		return out
	}
	out.Candidate = cand
	out.Terms = s.ScoreCandidate(*cand, snap, out.Above, out.Below, len(active))
	out.Score = out.Terms.Total()
	return out
}
