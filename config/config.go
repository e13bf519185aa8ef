package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del bot. Se construye una sola vez en
// el arranque y se pasa por referencia a cada stage; ningún componente lee
// estado global.
type Config struct {
	Trading   TradingConfig   `yaml:"trading"`
	Risk      RiskConfig      `yaml:"risk"`
	Arbitrage ArbitrageConfig `yaml:"arbitrage"`
	API       APIConfig       `yaml:"api"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

// TradingConfig controla el ciclo de trading: cadencias, workers y los
// umbrales de decisión.
type TradingConfig struct {
	TradeIntervalSeconds int `yaml:"trade_interval_seconds"`
	TrackIntervalSeconds int `yaml:"track_interval_seconds"`
	EvalIntervalSeconds  int `yaml:"eval_interval_seconds"`
	CycleTimeoutSeconds  int `yaml:"cycle_timeout_seconds"`

	// Workers y pacing del pool de análisis. El invariante
	// workers/pacing <= forecast_rate se comprueba en Validate.
	Workers               int     `yaml:"workers"`
	RequestPacingSeconds  float64 `yaml:"request_pacing_seconds"`
	ForecastRatePerSecond float64 `yaml:"forecast_rate_per_second"`

	MinConfidence        float64 `yaml:"min_confidence"`
	MinEdge              float64 `yaml:"min_edge"`
	CooldownHours        float64 `yaml:"cooldown_hours"`
	MaxAnalysesPerMarket int     `yaml:"max_analyses_per_market_per_day"`
	DailyForecastBudget  float64 `yaml:"daily_forecast_budget_usd"`
	MaxCostPerDecision   float64 `yaml:"max_cost_per_decision_usd"`

	MinVolume          float64  `yaml:"min_volume"`
	MaxDaysToExpiry    float64  `yaml:"max_days_to_expiry"`
	MinHoursToExpiry   float64  `yaml:"min_hours_to_expiry"`
	ExcludedCategories []string `yaml:"excluded_categories"`

	// Estrategia high-confidence cerca de expiración.
	HighConfidenceEnabled     bool    `yaml:"high_confidence_enabled"`
	HighConfidenceMarketOdds  float64 `yaml:"high_confidence_market_odds"`
	HighConfidenceThreshold   float64 `yaml:"high_confidence_threshold"`
	HighConfidenceExpiryHours float64 `yaml:"high_confidence_expiry_hours"`

	FillPollAttempts int     `yaml:"fill_poll_attempts"`
	FillPollSeconds  float64 `yaml:"fill_poll_seconds"`
}

// RiskConfig contiene los límites duros del allocator. Un breach bloquea
// aperturas nuevas; nunca bloquea cierres.
type RiskConfig struct {
	MaxPositionPct    float64            `yaml:"max_position_pct"`
	KellyFraction     float64            `yaml:"kelly_fraction"`
	Buckets           map[string]float64 `yaml:"buckets"`
	MaxVolatility     float64            `yaml:"max_volatility"`
	MaxCorrelation    float64            `yaml:"max_correlation"`
	MaxDrawdown       float64            `yaml:"max_drawdown"`
	MaxDailyLossPct   float64            `yaml:"max_daily_loss_pct"`
	MinCashReservePct float64            `yaml:"min_cash_reserve_pct"`
	MaxPositions      int                `yaml:"max_positions"`
}

// ArbitrageConfig controla el scanner multi-leg.
type ArbitrageConfig struct {
	MinNetProfit   float64 `yaml:"min_net_profit_usd"`
	PriceTolerance float64 `yaml:"price_tolerance_usd"`
	MaxGroupUnits  int     `yaml:"max_group_units"`
	TakerFeeRate   string  `yaml:"taker_fee_rate"`
	MakerFeeRate   string  `yaml:"maker_fee_rate"`
}

// APIConfig contiene los base URLs de los gateways externos. Las credenciales
// nunca viven en el YAML; llegan por variables de entorno.
type APIConfig struct {
	KalshiBase     string `yaml:"kalshi_base"`
	KalshiDemoBase string `yaml:"kalshi_demo_base"`
	ForecastBase   string `yaml:"forecast_base"`
	ForecastModel  string `yaml:"forecast_model"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del entorno sobreescriben los del YAML para las keys que
// correspondan. Devuelve error si la configuración resultante viola algún
// invariante entre campos.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// TradeInterval devuelve la cadencia del ciclo ingest→decide→execute.
func (c *Config) TradeInterval() time.Duration {
	return time.Duration(c.Trading.TradeIntervalSeconds) * time.Second
}

// TrackInterval devuelve la cadencia del tracker de posiciones.
func (c *Config) TrackInterval() time.Duration {
	return time.Duration(c.Trading.TrackIntervalSeconds) * time.Second
}

// EvalInterval devuelve la cadencia del job de evaluación.
func (c *Config) EvalInterval() time.Duration {
	return time.Duration(c.Trading.EvalIntervalSeconds) * time.Second
}

// CycleTimeout es el deadline supervisor de un ciclo individual.
func (c *Config) CycleTimeout() time.Duration {
	return time.Duration(c.Trading.CycleTimeoutSeconds) * time.Second
}

// RequestPacing es el intervalo mínimo entre llamadas de un mismo worker.
func (c *Config) RequestPacing() time.Duration {
	return time.Duration(c.Trading.RequestPacingSeconds * float64(time.Second))
}

// Validate comprueba los invariantes entre campos. El más importante: el
// pool de workers no puede producir más llamadas por segundo de las que
// tolera el gateway de forecast.
func (c *Config) Validate() error {
	t := c.Trading
	if t.Workers <= 0 {
		return fmt.Errorf("trading.workers must be positive, got %d", t.Workers)
	}
	if t.RequestPacingSeconds <= 0 {
		return fmt.Errorf("trading.request_pacing_seconds must be positive")
	}
	aggregate := float64(t.Workers) / t.RequestPacingSeconds
	if aggregate > t.ForecastRatePerSecond {
		return fmt.Errorf(
			"trading: %d workers at one call per %.1fs produce %.2f calls/s, above the gateway limit of %.2f/s",
			t.Workers, t.RequestPacingSeconds, aggregate, t.ForecastRatePerSecond)
	}
	if t.MinConfidence <= 0 || t.MinConfidence > 1 {
		return fmt.Errorf("trading.min_confidence must be in (0, 1], got %.2f", t.MinConfidence)
	}
	if t.MinEdge < 0 || t.MinEdge >= 1 {
		return fmt.Errorf("trading.min_edge must be in [0, 1), got %.2f", t.MinEdge)
	}
	if t.DailyForecastBudget <= 0 {
		return fmt.Errorf("trading.daily_forecast_budget_usd must be positive")
	}

	r := c.Risk
	if r.MaxPositionPct <= 0 || r.MaxPositionPct > 1 {
		return fmt.Errorf("risk.max_position_pct must be in (0, 1], got %.2f", r.MaxPositionPct)
	}
	if r.KellyFraction <= 0 || r.KellyFraction > 1 {
		return fmt.Errorf("risk.kelly_fraction must be in (0, 1], got %.2f", r.KellyFraction)
	}
	var bucketSum float64
	for name, share := range r.Buckets {
		if share <= 0 || share > 1 {
			return fmt.Errorf("risk.buckets[%s] must be in (0, 1], got %.2f", name, share)
		}
		bucketSum += share
	}
	if bucketSum > 1.0001 {
		return fmt.Errorf("risk.buckets shares sum to %.2f, must not exceed 1.0", bucketSum)
	}

	if c.Arbitrage.MinNetProfit < 0 {
		return fmt.Errorf("arbitrage.min_net_profit_usd must not be negative")
	}
	return nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("KALSHI_BASE_URL"); v != "" {
		cfg.API.KalshiBase = v
	}
	if v := os.Getenv("FORECAST_BASE_URL"); v != "" {
		cfg.API.ForecastBase = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	t := &cfg.Trading
	if t.TradeIntervalSeconds <= 0 {
		t.TradeIntervalSeconds = 120
	}
	if t.TrackIntervalSeconds <= 0 {
		t.TrackIntervalSeconds = 60
	}
	if t.EvalIntervalSeconds <= 0 {
		t.EvalIntervalSeconds = 300
	}
	if t.CycleTimeoutSeconds <= 0 {
		t.CycleTimeoutSeconds = 90
	}
	if t.Workers <= 0 {
		t.Workers = 5
	}
	if t.RequestPacingSeconds <= 0 {
		t.RequestPacingSeconds = 2
	}
	if t.ForecastRatePerSecond <= 0 {
		t.ForecastRatePerSecond = 5
	}
	if t.MinConfidence <= 0 {
		t.MinConfidence = 0.55
	}
	if t.MinEdge <= 0 {
		t.MinEdge = 0.08
	}
	if t.CooldownHours <= 0 {
		t.CooldownHours = 2
	}
	if t.MaxAnalysesPerMarket <= 0 {
		t.MaxAnalysesPerMarket = 6
	}
	if t.DailyForecastBudget <= 0 {
		t.DailyForecastBudget = 15
	}
	if t.MaxCostPerDecision <= 0 {
		t.MaxCostPerDecision = 0.12
	}
	if t.MinVolume <= 0 {
		t.MinVolume = 500
	}
	if t.MaxDaysToExpiry <= 0 {
		t.MaxDaysToExpiry = 30
	}
	if t.MinHoursToExpiry <= 0 {
		t.MinHoursToExpiry = 1
	}
	if t.HighConfidenceMarketOdds <= 0 {
		t.HighConfidenceMarketOdds = 0.85
	}
	if t.HighConfidenceThreshold <= 0 {
		t.HighConfidenceThreshold = 0.80
	}
	if t.HighConfidenceExpiryHours <= 0 {
		t.HighConfidenceExpiryHours = 48
	}
	if t.FillPollAttempts <= 0 {
		t.FillPollAttempts = 5
	}
	if t.FillPollSeconds <= 0 {
		t.FillPollSeconds = 0.5
	}

	r := &cfg.Risk
	if r.MaxPositionPct <= 0 {
		r.MaxPositionPct = 0.05
	}
	if r.KellyFraction <= 0 {
		r.KellyFraction = 0.25
	}
	if len(r.Buckets) == 0 {
		r.Buckets = map[string]float64{
			"directional": 0.50,
			"marketmake":  0.40,
			"arbitrage":   0.10,
		}
	}
	if r.MaxVolatility <= 0 {
		r.MaxVolatility = 0.80
	}
	if r.MaxCorrelation <= 0 {
		r.MaxCorrelation = 0.95
	}
	if r.MaxDrawdown <= 0 {
		r.MaxDrawdown = 0.50
	}
	if r.MaxDailyLossPct <= 0 {
		r.MaxDailyLossPct = 0.10
	}
	if r.MinCashReservePct <= 0 {
		r.MinCashReservePct = 0.15
	}
	if r.MaxPositions <= 0 {
		r.MaxPositions = 15
	}

	a := &cfg.Arbitrage
	if a.MinNetProfit <= 0 {
		a.MinNetProfit = 0.02
	}
	if a.PriceTolerance <= 0 {
		a.PriceTolerance = 0.01
	}
	if a.MaxGroupUnits <= 0 {
		a.MaxGroupUnits = 100
	}
	if a.TakerFeeRate == "" {
		a.TakerFeeRate = "0.07"
	}
	if a.MakerFeeRate == "" {
		a.MakerFeeRate = "0"
	}

	if cfg.API.KalshiBase == "" {
		cfg.API.KalshiBase = "https://api.elections.kalshi.com/trade-api/v2"
	}
	if cfg.API.KalshiDemoBase == "" {
		cfg.API.KalshiDemoBase = "https://demo-api.kalshi.co/trade-api/v2"
	}
	if cfg.API.ForecastBase == "" {
		cfg.API.ForecastBase = "https://api.x.ai/v1"
	}
	if cfg.API.ForecastModel == "" {
		cfg.API.ForecastModel = "grok-4"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "kalshibot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
