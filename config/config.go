package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/sweepbot/internal/domain"
)

const (
	defaultStateDir   = "state"
	defaultHTFTagList = "PMH,PML,PWH,PWL,PDH,PDL,NY_H,NY_L,LON_H,LON_L,ASIA_H,ASIA_L"
)

// Config es la configuración completa del bot.
type Config struct {
	Exchange  ExchangeConfig `yaml:"exchange"`
	Symbol    string         `yaml:"symbol" validate:"required,uppercase"`
	Timeframe string         `yaml:"timeframe" validate:"oneof=1m 3m 5m 15m"`
	LoopSleep time.Duration  `yaml:"loop_sleep" validate:"gt=0"`
	Strategy  StrategyConfig `yaml:"strategy"`
	Risk      RiskConfig     `yaml:"risk"`
	Funding   FundingConfig  `yaml:"funding"`
	Trailing  TrailingConfig `yaml:"trailing"`
	Health    HealthConfig   `yaml:"health"`
	Stream    StreamConfig   `yaml:"stream"`
	Storage   StorageConfig  `yaml:"storage"`
	Metrics   MetricsConfig  `yaml:"metrics"`
	Log       LogConfig      `yaml:"log"`
}

// ExchangeConfig agrupa credenciales, endpoints y expectativas de la cuenta.
type ExchangeConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
	RestBase  string `yaml:"rest_base"` // vacío = default de go-binance
	WSBase    string `yaml:"ws_base"`

	RecvWindowBase int64         `yaml:"recv_window_base" validate:"gt=0"`
	RecvWindowBump int64         `yaml:"recv_window_bump" validate:"gte=0"`
	RecvWindowMax  int64         `yaml:"recv_window_max" validate:"gtefield=RecvWindowBase"`
	HTTPTimeout    time.Duration `yaml:"http_timeout" validate:"gt=0"`
	KlineRetries   int           `yaml:"kline_retries" validate:"gte=1"`
	SignedRetries  int           `yaml:"signed_safe_retries" validate:"gte=1"`
	RequestsPerSec float64       `yaml:"requests_per_sec" validate:"gt=0"`
	Burst          int           `yaml:"burst" validate:"gte=1"`

	RequireOneWay bool   `yaml:"require_one_way"`
	MarginType    string `yaml:"margin_type" validate:"omitempty,oneof=cross isolated"`
	Leverage      int    `yaml:"leverage" validate:"gte=0,lte=125"`
	WorkingType   string `yaml:"working_type" validate:"oneof=MARK_PRICE CONTRACT_PRICE"`
}

// SessionConfig es una ventana de sesión en "HH:MM", fin exclusivo.
type SessionConfig struct {
	Name  string `yaml:"name" validate:"required"`
	Start string `yaml:"start" validate:"required"`
	End   string `yaml:"end" validate:"required"`
}

// StrategyConfig controla niveles, detección y score.
type StrategyConfig struct {
	Timezone string          `yaml:"timezone" validate:"required"`
	Sessions []SessionConfig `yaml:"sessions" validate:"dive"`
	Levels   LevelsConfig    `yaml:"levels"`
	Detect   DetectConfig    `yaml:"detect"`
	Score    ScoreConfig     `yaml:"score"`
	Bias     BiasConfig      `yaml:"bias"`
}

// LevelsConfig activa y pondera las fuentes de niveles de liquidez.
type LevelsConfig struct {
	EQ            bool    `yaml:"eq"`
	EQLookback    int     `yaml:"eq_lookback" validate:"gte=10"`
	EQSpreadTicks int     `yaml:"eq_spread_ticks" validate:"gte=0"`
	EQMinHits     int     `yaml:"eq_min_hits" validate:"gte=2"`
	WeightEQ      float64 `yaml:"w_eq" validate:"gte=0"`

	Sessions      bool    `yaml:"sessions"`
	WeightSession float64 `yaml:"w_session" validate:"gte=0"`

	ORB        bool    `yaml:"orb"`
	ORBAnchor  string  `yaml:"orb_anchor" validate:"oneof=midnight session"`
	ORBSession string  `yaml:"orb_session"`
	ORBMinutes int     `yaml:"orb_minutes" validate:"gt=0"`
	WeightORB  float64 `yaml:"w_orb" validate:"gte=0"`

	Range           bool    `yaml:"range"`
	RangeWindow     int     `yaml:"range_window" validate:"gt=0"`
	RangeMinTouches int     `yaml:"range_min_touches" validate:"gte=1"`
	RangeATRFracMax float64 `yaml:"range_atr_frac_max" validate:"gt=0"`
	WeightRange     float64 `yaml:"w_range" validate:"gte=0"`

	FVGEdges      bool    `yaml:"fvg_edges"`
	FVGEdgeMaxAge int     `yaml:"fvg_edge_max_age" validate:"gt=0"`
	WeightFVG     float64 `yaml:"w_fvg" validate:"gte=0"`

	Figures         bool    `yaml:"figures"`
	FigureIncrement float64 `yaml:"figure_increment" validate:"gt=0"`
	FigureQuarters  bool    `yaml:"figure_quarters"`
	WeightFigure    float64 `yaml:"w_figure" validate:"gte=0"`

	VWAP       bool    `yaml:"vwap"`
	VWAPStdK   float64 `yaml:"vwap_std_k" validate:"gt=0"`
	WeightVWAP float64 `yaml:"w_vwap" validate:"gte=0"`

	Prior       bool          `yaml:"prior_extremes"`
	PriorWeight float64       `yaml:"w_htf_levels" validate:"gte=0"`
	PriorTTL    time.Duration `yaml:"prior_ttl" validate:"gt=0"`

	ClusterBps float64 `yaml:"cluster_bps" validate:"gte=0"`
	TopK       int     `yaml:"top_k" validate:"gte=1"`
}

// DetectConfig parametriza la barrida y el gap.
type DetectConfig struct {
	PenetrationBps float64 `yaml:"penetration_bps" validate:"gte=0"`
	CloseBackBps   float64 `yaml:"close_back_bps" validate:"gte=0"`
	MaxRejectBars  int     `yaml:"tmax_bars" validate:"gte=0"`
	MinBars        int     `yaml:"min_bars" validate:"gte=5"`
	RegimeAdapt    bool    `yaml:"regime_adapt"`

	FVGMinTicks float64 `yaml:"fvg_min_ticks" validate:"gte=0"`
	FVGUseBps   bool    `yaml:"fvg_use_bps"`
	FVGMinBps   float64 `yaml:"fvg_min_bps" validate:"gte=0"`
	FVGRelaxBps float64 `yaml:"fvg_relax_bps" validate:"gte=0"`

	FillRule           string  `yaml:"fill_rule" validate:"oneof=touch mid full"`
	FillRequireBody    bool    `yaml:"fill_require_body"`
	FillMinATR         float64 `yaml:"fill_min_atr" validate:"gte=0"`
	FillMinConsecutive int     `yaml:"fill_min_consecutive" validate:"gte=1"`

	QualityGapW     float64 `yaml:"quality_gap_w" validate:"gte=0"`
	QualityVolW     float64 `yaml:"quality_vol_w" validate:"gte=0"`
	QualityGapNorm  float64 `yaml:"quality_gap_norm" validate:"gt=0"`
	QualityVolShift float64 `yaml:"quality_vol_shift"`
	QualityVolScale float64 `yaml:"quality_vol_scale" validate:"gt=0"`

	BaseOffset         float64 `yaml:"base_offset"`
	QualityWeight      float64 `yaml:"quality_weight" validate:"gte=0"`
	DisplacementWeight float64 `yaml:"displacement_weight" validate:"gte=0"`
}

// ScoreConfig pondera el score final y fija el umbral de entrada.
type ScoreConfig struct {
	Threshold     float64  `yaml:"threshold" validate:"gte=0"`
	SessionBonus  float64  `yaml:"session_bonus" validate:"gte=0"`
	OverlapBonus  float64  `yaml:"overlap_bonus" validate:"gte=0"`
	PoolScoreGain float64  `yaml:"pool_score_gain" validate:"gte=0"`
	PoolNearUnit  float64  `yaml:"pool_near_unit" validate:"gte=0"`
	PoolV2Weight  float64  `yaml:"pool_v2_weight" validate:"gte=0"`
	ProximityBps  float64  `yaml:"proximity_bps" validate:"gt=0"`
	HTFTagMult    float64  `yaml:"htf_tag_mult" validate:"gte=1"`
	HTFTags       []string `yaml:"htf_tags"`
	ContainmentW  float64  `yaml:"containment_w" validate:"gte=0"`
	BOSWeight     float64  `yaml:"bos_w" validate:"gte=0"`
	CHOCHWeight   float64  `yaml:"choch_w" validate:"gte=0"`
	HTFWeight     float64  `yaml:"htf_w" validate:"gte=0"`
}

// BiasConfig controla el sesgo EMA de 1h/4h.
type BiasConfig struct {
	Enabled bool          `yaml:"enabled"`
	HystBps float64       `yaml:"hysteresis_bps" validate:"gte=0"`
	Refresh time.Duration `yaml:"refresh" validate:"gte=0"`
}

// RiskConfig agrupa sizing, targets y guardrails.
type RiskConfig struct {
	RiskPct       float64       `yaml:"risk_pct" validate:"gt=0,lte=0.05"`
	RR            float64       `yaml:"rr" validate:"gt=0"`
	RRCap         float64       `yaml:"rr_cap" validate:"gtefield=RR"`
	MinRRPool     float64       `yaml:"min_rr_pool" validate:"gt=0"`
	FeeBps        float64       `yaml:"fee_bps" validate:"gte=0"`
	MaxTrades     int           `yaml:"max_trades" validate:"gte=1"`
	MaxDailyLoss  float64       `yaml:"max_daily_loss" validate:"gt=0,lte=1"`
	LossCooldown  time.Duration `yaml:"loss_cooldown" validate:"gte=0"`
	ThrottleDD1   float64       `yaml:"throttle_dd1" validate:"gte=0,lte=1"`
	ThrottleDD2   float64       `yaml:"throttle_dd2" validate:"gtefield=ThrottleDD1,lte=1"`
	ThrottleMult1 float64       `yaml:"throttle_mult1" validate:"gte=0,lte=1"`
	ThrottleMult2 float64       `yaml:"throttle_mult2" validate:"gte=0,lte=1"`
	MinStopTicks  int           `yaml:"min_stop_ticks" validate:"gte=1"`
	PartialFrac   float64       `yaml:"partial_frac" validate:"gte=0,lt=1"`
	NotionalCap   float64       `yaml:"max_notional_per_trade" validate:"gte=0"`
	GrossCap      float64       `yaml:"max_gross_exposure" validate:"gte=0"`
	PriceSource   string        `yaml:"exposure_price_source" validate:"oneof=last mark"`
	UseAvailable  bool          `yaml:"use_available_balance"`
	BalanceTTL    time.Duration `yaml:"balance_ttl" validate:"gt=0"`
}

// FundingConfig controla el gate de funding.
type FundingConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Window       time.Duration `yaml:"window" validate:"gte=0"`
	Symmetric    bool          `yaml:"symmetric"`
	BlockNear    bool          `yaml:"block_near"`
	Penalty      float64       `yaml:"penalty" validate:"gte=0"`
	HighAbsBps   float64       `yaml:"high_abs_bps" validate:"gte=0"`
	HighRiskMult float64       `yaml:"high_risk_mult" validate:"gt=0,lte=1"`
}

// TrailingConfig controla el trailing stop y la restauración de stops.
type TrailingConfig struct {
	ActivationR    float64 `yaml:"activation_r" validate:"gt=0"`
	ATRMult        float64 `yaml:"atr_k" validate:"gt=0"`
	MinTicks       int     `yaml:"min_improve_ticks" validate:"gte=1"`
	RestoreATRMult float64 `yaml:"restore_atr_mult" validate:"gt=0"`
}

// HealthConfig agrupa drift, frescura, safe mode y circuitos.
type HealthConfig struct {
	DriftSoftMs   int64 `yaml:"drift_soft_ms" validate:"gt=0"`
	DriftHardMs   int64 `yaml:"drift_hard_ms" validate:"gtfield=DriftSoftMs"`
	DriftBreachN  int   `yaml:"drift_breach_n" validate:"gte=1"`
	DriftRecoverM int   `yaml:"drift_recover_m" validate:"gte=1"`
	DriftEvery    int   `yaml:"drift_every" validate:"gte=1"`

	StaleAfter time.Duration `yaml:"stale_after" validate:"gt=0"`
	StaleHard  time.Duration `yaml:"stale_hard" validate:"gtfield=StaleAfter"`
	FreshMax   time.Duration `yaml:"fresh_max" validate:"gt=0"`
	Watchdog   time.Duration `yaml:"watchdog" validate:"gt=0"`
	FreshGrace int           `yaml:"fresh_grace_cycles" validate:"gte=0"`

	SafeMode         bool `yaml:"safe_mode"`
	SafeAutoRecover  bool `yaml:"safe_auto_recover"`
	RequireListenKey bool `yaml:"require_listen_key"`

	BlockedN     int           `yaml:"circuit_blocked_n" validate:"gte=1"`
	BlockedPause time.Duration `yaml:"circuit_blocked_pause" validate:"gte=0"`
	OrderN       int           `yaml:"circuit_order_n" validate:"gte=1"`
	OrderPause   time.Duration `yaml:"circuit_order_pause" validate:"gte=0"`
	StaleN       int           `yaml:"circuit_stale_n" validate:"gte=1"`
	StalePause   time.Duration `yaml:"circuit_stale_pause" validate:"gte=0"`

	HeartbeatEvery int `yaml:"heartbeat_every" validate:"gte=1"`
	ReconcileEvery int `yaml:"reconcile_every" validate:"gte=1"`
}

// StreamConfig controla los websockets y la listen key.
type StreamConfig struct {
	BackoffMin     time.Duration `yaml:"backoff_min" validate:"gt=0"`
	BackoffMax     time.Duration `yaml:"backoff_max" validate:"gtefield=BackoffMin"`
	BackoffFactor  float64       `yaml:"backoff_factor" validate:"gt=1"`
	ListenKeyRenew time.Duration `yaml:"listen_key_renew" validate:"gt=0"`
	Capacity       int           `yaml:"channel_capacity" validate:"gte=1"`
	BookTicker     bool          `yaml:"book_ticker"`
}

// StorageConfig controla dónde se persisten estado y journal.
type StorageConfig struct {
	StatePath      string `yaml:"state_path"`
	JournalPath    string `yaml:"journal_path"` // "" = default por símbolo, ":memory:" para pruebas
	SaveEvery      int    `yaml:"save_every" validate:"gte=1"`
	DedupeKeep     int    `yaml:"dedupe_keep" validate:"gte=1"`
	DedupeCooldown int    `yaml:"dedupe_cooldown_min" validate:"gte=1"`
}

// MetricsConfig controla el endpoint de Prometheus. Addr vacío lo desactiva.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Default devuelve la configuración con todos los valores por defecto.
// Load decodifica el YAML encima, así los campos ausentes conservan el default.
func Default() Config {
	return Config{
		Exchange: ExchangeConfig{
			RecvWindowBase: 5000,
			RecvWindowBump: 5000,
			RecvWindowMax:  12000,
			HTTPTimeout:    12 * time.Second,
			KlineRetries:   3,
			SignedRetries:  2,
			RequestsPerSec: 8,
			Burst:          4,
			RequireOneWay:  true,
			MarginType:     "cross",
			Leverage:       5,
			WorkingType:    "MARK_PRICE",
		},
		Symbol:    "BTCUSDT",
		Timeframe: "1m",
		LoopSleep: 2 * time.Second,
		Strategy: StrategyConfig{
			Timezone: "UTC",
			Sessions: []SessionConfig{
				{Name: "ASIA", Start: "00:00", End: "08:00"},
				{Name: "LON", Start: "07:00", End: "16:00"},
				{Name: "NY", Start: "13:00", End: "22:00"},
			},
			Levels: LevelsConfig{
				EQ:              true,
				EQLookback:      120,
				EQSpreadTicks:   2,
				EQMinHits:       2,
				WeightEQ:        0.55,
				Sessions:        true,
				WeightSession:   0.60,
				ORB:             true,
				ORBAnchor:       "midnight",
				ORBSession:      "NY",
				ORBMinutes:      60,
				WeightORB:       0.45,
				Range:           true,
				RangeWindow:     60,
				RangeMinTouches: 3,
				RangeATRFracMax: 0.60,
				WeightRange:     0.45,
				FVGEdges:        true,
				FVGEdgeMaxAge:   40,
				WeightFVG:       0.35,
				FigureIncrement: 100,
				WeightFigure:    0.20,
				VWAPStdK:        1.0,
				WeightVWAP:      0.25,
				Prior:           true,
				PriorWeight:     0.80,
				PriorTTL:        120 * time.Second,
				ClusterBps:      8,
				TopK:            4,
			},
			Detect: DetectConfig{
				PenetrationBps:     2,
				CloseBackBps:       2,
				MaxRejectBars:      5,
				MinBars:            30,
				RegimeAdapt:        true,
				FVGMinTicks:        2,
				FVGMinBps:          8,
				FillRule:           "touch",
				FillMinConsecutive: 1,
				QualityGapW:        domain.DefaultQuality.GapWeight,
				QualityVolW:        domain.DefaultQuality.VolWeight,
				QualityGapNorm:     domain.DefaultQuality.GapNorm,
				QualityVolShift:    domain.DefaultQuality.VolShift,
				QualityVolScale:    domain.DefaultQuality.VolScale,
				BaseOffset:         0.5,
				QualityWeight:      0.35,
				DisplacementWeight: 0.05,
			},
			Score: ScoreConfig{
				Threshold:     0.75,
				SessionBonus:  0.06,
				OverlapBonus:  0.08,
				PoolScoreGain: 0.20,
				PoolNearUnit:  0.15,
				PoolV2Weight:  0.15,
				ProximityBps:  30,
				HTFTagMult:    1.25,
				HTFTags:       strings.Split(defaultHTFTagList, ","),
				ContainmentW:  0.05,
				BOSWeight:     0.05,
				CHOCHWeight:   0.05,
				HTFWeight:     0.10,
			},
			Bias: BiasConfig{
				Enabled: true,
				HystBps: 8,
				Refresh: 10 * time.Minute,
			},
		},
		Risk: RiskConfig{
			RiskPct:       0.005,
			RR:            2.0,
			RRCap:         4.0,
			MinRRPool:     1.2,
			FeeBps:        5,
			MaxTrades:     6,
			MaxDailyLoss:  0.03,
			LossCooldown:  20 * time.Minute,
			ThrottleDD1:   0.02,
			ThrottleDD2:   0.05,
			ThrottleMult1: 0.5,
			ThrottleMult2: 0.25,
			MinStopTicks:  2,
			PartialFrac:   0.35,
			PriceSource:   "last",
			UseAvailable:  true,
			BalanceTTL:    30 * time.Second,
		},
		Funding: FundingConfig{
			Enabled:      true,
			Window:       7 * time.Minute,
			Symmetric:    true,
			BlockNear:    true,
			Penalty:      0.15,
			HighAbsBps:   10,
			HighRiskMult: 0.6,
		},
		Trailing: TrailingConfig{
			ActivationR:    1.5,
			ATRMult:        0.75,
			MinTicks:       1,
			RestoreATRMult: 1.5,
		},
		Health: HealthConfig{
			DriftSoftMs:      2000,
			DriftHardMs:      5000,
			DriftBreachN:     3,
			DriftRecoverM:    3,
			DriftEvery:       10,
			StaleAfter:       10 * time.Minute,
			StaleHard:        30 * time.Minute,
			FreshMax:         120 * time.Second,
			Watchdog:         90 * time.Second,
			FreshGrace:       2,
			SafeMode:         true,
			SafeAutoRecover:  true,
			RequireListenKey: true,
			BlockedN:         5,
			BlockedPause:     7 * time.Second,
			OrderN:           4,
			OrderPause:       15 * time.Second,
			StaleN:           5,
			StalePause:       7 * time.Second,
			HeartbeatEvery:   3,
			ReconcileEvery:   60,
		},
		Stream: StreamConfig{
			BackoffMin:     600 * time.Millisecond,
			BackoffMax:     30 * time.Second,
			BackoffFactor:  1.7,
			ListenKeyRenew: 25 * time.Minute,
			Capacity:       256,
		},
		Storage: StorageConfig{
			SaveEvery:      5,
			DedupeKeep:     400,
			DedupeCooldown: 45,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben los valores del YAML.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodifica YAML sobre los defaults, aplica el entorno y valida.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: env: %w", err)
	}
	setDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Validate aplica las reglas de los struct tags y las que cruzan campos.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if _, err := c.SessionWindows(); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	return nil
}

// Location devuelve la zona horaria de sesiones y del día de trading.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Strategy.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Strategy.Timezone, err)
	}
	return loc, nil
}

// SessionWindows convierte las sesiones "HH:MM" a minutos del día.
func (c *Config) SessionWindows() ([]domain.SessionWindow, error) {
	out := make([]domain.SessionWindow, 0, len(c.Strategy.Sessions))
	for _, s := range c.Strategy.Sessions {
		start, err := domain.ParseHM(s.Start)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", s.Name, err)
		}
		end, err := domain.ParseHM(s.End)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", s.Name, err)
		}
		out = append(out, domain.SessionWindow{Name: strings.ToUpper(s.Name), Start: start, End: end})
	}
	return out, nil
}

// StopFile es el archivo que, si existe, termina el loop.
func (c *Config) StopFile() string {
	return filepath.Join(filepath.Dir(c.Storage.StatePath), "STOP")
}

// HasCredentials indica si hay API key y secret.
func (c *Config) HasCredentials() bool {
	return c.Exchange.APIKey != "" && c.Exchange.APISecret != ""
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		cfg.Exchange.APIKey = v
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		cfg.Exchange.APISecret = v
	}
	if v := os.Getenv("BOT_SYMBOL"); v != "" {
		cfg.Symbol = strings.ToUpper(v)
	}
	if v := os.Getenv("BOT_TESTNET"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BOT_TESTNET: %w", err)
		}
		cfg.Exchange.Testnet = b
	}
	if v := os.Getenv("BOT_LEVERAGE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BOT_LEVERAGE: %w", err)
		}
		cfg.Exchange.Leverage = n
	}
	if v := os.Getenv("BOT_RISK_PCT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("BOT_RISK_PCT: %w", err)
		}
		cfg.Risk.RiskPct = f
	}
	if v := os.Getenv("BOT_WS_BASE"); v != "" {
		cfg.Exchange.WSBase = v
	}
	if v := os.Getenv("BOT_STATE_PATH"); v != "" {
		cfg.Storage.StatePath = v
	}
	if v := os.Getenv("BOT_JOURNAL_PATH"); v != "" {
		cfg.Storage.JournalPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	return nil
}

// setDefaults completa lo que depende de otros campos: las rutas por
// símbolo para que dos bots no compartan estado.
func setDefaults(cfg *Config) {
	cfg.Symbol = strings.ToUpper(strings.TrimSpace(cfg.Symbol))
	sym := strings.ToLower(cfg.Symbol)
	if cfg.Storage.StatePath == "" {
		cfg.Storage.StatePath = filepath.Join(defaultStateDir, sym+"_state.json")
	}
	if cfg.Storage.JournalPath == "" {
		cfg.Storage.JournalPath = filepath.Join(defaultStateDir, sym+"_journal.db")
	}
	cfg.Exchange.MarginType = strings.ToLower(cfg.Exchange.MarginType)
	cfg.Exchange.WorkingType = strings.ToUpper(cfg.Exchange.WorkingType)
	if len(cfg.Strategy.Score.HTFTags) == 0 {
		cfg.Strategy.Score.HTFTags = strings.Split(defaultHTFTagList, ",")
	}
}
