package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/shortsbot/internal/application/engine"
	"github.com/alejandrodnm/shortsbot/internal/domain"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del proceso.
type Config struct {
	Engine  EngineConfig   `yaml:"engine"`
	Quote   QuoteConfig    `yaml:"quote"`
	Bots    BotsConfig     `yaml:"bots"`
	Markets []MarketConfig `yaml:"markets"`
	Feeds   FeedsConfig    `yaml:"feeds"`
	Storage StorageConfig  `yaml:"storage"`
	HTTP    HTTPConfig     `yaml:"http"`
	Log     LogConfig      `yaml:"log"`
}

// EngineConfig controla el loop de rondas y liquidación.
type EngineConfig struct {
	TickMs                int       `yaml:"tick_ms"`
	FlushMs               int       `yaml:"flush_ms"`            // cada cuánto el oráculo publica el buffer
	StaleAfterSeconds     float64   `yaml:"stale_after_seconds"` // sin updates → offline
	LockWindowSeconds     float64   `yaml:"lock_window_seconds"` // 0 desactiva el bloqueo previo al final
	PayoutModel           string    `yaml:"payout_model"`        // fixed-rate | per-share
	PayoutRate            float64   `yaml:"payout_rate"`         // fixed-rate: beneficio por token ganado
	PayoutPerShare        float64   `yaml:"payout_per_share"`    // per-share: pago por acción ganadora
	PushEpsilon           float64   `yaml:"push_epsilon"`        // |close-open| <= epsilon es push
	SettledRetention      int       `yaml:"settled_retention"`
	RecentRounds          int       `yaml:"recent_rounds"`
	StartBalance          float64   `yaml:"start_balance"`
	StakeSizes            []float64 `yaml:"stake_sizes"`
	StatusIntervalSeconds int       `yaml:"status_interval_seconds"`
	Sound                 bool      `yaml:"sound"` // bell en los wins
}

// QuoteConfig sobreescribe los parámetros del quote. Los ceros usan el default.
type QuoteConfig struct {
	Sensitivity          float64 `yaml:"sensitivity"`
	UrgencyMin           float64 `yaml:"urgency_min"`
	UrgencyMax           float64 `yaml:"urgency_max"`
	UrgencyExp           float64 `yaml:"urgency_exp"`
	BaseMin              float64 `yaml:"base_min"`
	BaseMax              float64 `yaml:"base_max"`
	ReleaseMin           float64 `yaml:"release_min"`
	ReleaseMax           float64 `yaml:"release_max"`
	ReleaseWindowSeconds float64 `yaml:"release_window_seconds"`
	RampExp              float64 `yaml:"ramp_exp"`
	VirtualLiquidity     float64 `yaml:"virtual_liquidity"`
	MinCents             int     `yaml:"min_cents"`
}

// BotsConfig controla la actividad simulada de otros participantes.
type BotsConfig struct {
	Enabled    bool      `yaml:"enabled"`
	MaxPerTick int       `yaml:"max_per_tick"`
	Sizes      []float64 `yaml:"sizes"`
	Weights    []float64 `yaml:"weights"`
	Noise      float64   `yaml:"noise"`
	LateBoost  float64   `yaml:"late_boost"`
}

// MarketConfig define un mercado.
type MarketConfig struct {
	Key             string  `yaml:"key"`
	Asset           string  `yaml:"asset"`
	Symbol          string  `yaml:"symbol"` // par de Binance, ej. BTCUSDT
	DurationSeconds float64 `yaml:"duration_seconds"`
	SimStartPrice   float64 `yaml:"sim_start_price"` // precio inicial del feed simulado
}

// FeedsConfig controla las fuentes de precio.
type FeedsConfig struct {
	BinanceWS     EndpointConfig `yaml:"binance_ws"`
	CoinbaseWS    EndpointConfig `yaml:"coinbase_ws"`
	BinanceREST   EndpointConfig `yaml:"binance_rest"`
	Simulate      bool           `yaml:"simulate"`
	SimVolatility float64        `yaml:"sim_volatility"`
	SimIntervalMs int            `yaml:"sim_interval_ms"`
	SimSeed       uint64         `yaml:"sim_seed"`
}

// EndpointConfig es una fuente de precio.
type EndpointConfig struct {
	Enabled         bool    `yaml:"enabled"`
	URL             string  `yaml:"url"`              // vacío usa la URL de producción
	IntervalSeconds float64 `yaml:"interval_seconds"` // solo REST
}

// StorageConfig controla dónde se persiste el journal.
type StorageConfig struct {
	DSN           string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
	RetentionDays int    `yaml:"retention_days"`
}

// HTTPConfig controla la API JSON.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
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

// Parse decodifica YAML, aplica overrides de entorno y defaults, y valida.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("SHORTS_START_BALANCE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SHORTS_START_BALANCE %q: %w", v, err)
		}
		cfg.Engine.StartBalance = f
	}
	if v := os.Getenv("SHORTS_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
		cfg.HTTP.Enabled = true
	}
	if v := os.Getenv("SHORTS_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	return nil
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	e := &cfg.Engine
	if e.TickMs <= 0 {
		e.TickMs = int(engine.DefaultTickInterval / time.Millisecond)
	}
	if e.FlushMs <= 0 {
		e.FlushMs = 250
	}
	if e.StaleAfterSeconds <= 0 {
		e.StaleAfterSeconds = 10
	}
	if e.PayoutModel == "" {
		e.PayoutModel = string(domain.PayoutFixedRate)
	}
	if e.PayoutRate <= 0 {
		e.PayoutRate = 0.9
	}
	if e.PayoutPerShare <= 0 {
		e.PayoutPerShare = 1
	}
	if e.SettledRetention <= 0 {
		e.SettledRetention = engine.DefaultSettledRetention
	}
	if e.StartBalance <= 0 {
		e.StartBalance = 1000
	}
	if len(e.StakeSizes) == 0 {
		e.StakeSizes = []float64{1, 5, 10, 25, 50, 100}
	}
	if e.StatusIntervalSeconds <= 0 {
		e.StatusIntervalSeconds = 5
	}

	if cfg.Feeds.SimVolatility <= 0 {
		cfg.Feeds.SimVolatility = 0.0005
	}
	if cfg.Feeds.SimIntervalMs <= 0 {
		cfg.Feeds.SimIntervalMs = 200
	}
	if cfg.Feeds.BinanceREST.IntervalSeconds <= 0 {
		cfg.Feeds.BinanceREST.IntervalSeconds = 2
	}
	for i := range cfg.Markets {
		m := &cfg.Markets[i]
		m.Asset = strings.ToUpper(m.Asset)
		if m.Symbol == "" && m.Asset != "" {
			m.Symbol = m.Asset + "USDT"
		}
		m.Symbol = strings.ToUpper(m.Symbol)
	}

	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "shorts.db"
	}
	if cfg.Storage.RetentionDays <= 0 {
		cfg.Storage.RetentionDays = 30
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = "127.0.0.1:8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// Validate rechaza configuraciones con las que el engine no puede arrancar.
func (c *Config) Validate() error {
	if len(c.Markets) == 0 {
		return fmt.Errorf("no markets configured")
	}
	seen := make(map[string]bool, len(c.Markets))
	for i, m := range c.Markets {
		if strings.TrimSpace(m.Key) == "" {
			return fmt.Errorf("markets[%d]: empty key", i)
		}
		if seen[m.Key] {
			return fmt.Errorf("markets[%d]: duplicate key %q", i, m.Key)
		}
		seen[m.Key] = true
		if m.Asset == "" {
			return fmt.Errorf("market %q: empty asset", m.Key)
		}
		if m.DurationSeconds <= 0 {
			return fmt.Errorf("market %q: duration_seconds must be > 0", m.Key)
		}
	}

	switch domain.PayoutModel(c.Engine.PayoutModel) {
	case domain.PayoutFixedRate, domain.PayoutPerShare:
	default:
		return fmt.Errorf("engine.payout_model: unknown %q", c.Engine.PayoutModel)
	}
	for _, s := range c.Engine.StakeSizes {
		if s <= 0 {
			return fmt.Errorf("engine.stake_sizes: %v must be > 0", s)
		}
	}
	if c.Engine.PushEpsilon < 0 {
		return fmt.Errorf("engine.push_epsilon: must be >= 0")
	}
	if c.Engine.LockWindowSeconds < 0 {
		return fmt.Errorf("engine.lock_window_seconds: must be >= 0")
	}
	if lw := c.Engine.LockWindowSeconds; lw > 0 {
		for _, m := range c.Markets {
			if lw >= m.DurationSeconds {
				return fmt.Errorf("engine.lock_window_seconds: %v must be < duration_seconds of market %q (%v)",
					lw, m.Key, m.DurationSeconds)
			}
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: unknown %q", c.Log.Format)
	}
	return nil
}

// DomainMarkets convierte los mercados configurados.
func (c *Config) DomainMarkets() []domain.Market {
	out := make([]domain.Market, 0, len(c.Markets))
	for _, m := range c.Markets {
		out = append(out, domain.Market{
			Key:      m.Key,
			Asset:    m.Asset,
			Symbol:   m.Symbol,
			Duration: seconds(m.DurationSeconds),
		})
	}
	return out
}

// Assets devuelve los activos distintos en orden de aparición.
func (c *Config) Assets() []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range c.Markets {
		if !seen[m.Asset] {
			seen[m.Asset] = true
			out = append(out, m.Asset)
		}
	}
	return out
}

// Symbols devuelve el mapa símbolo de exchange → activo.
func (c *Config) Symbols() map[string]string {
	out := make(map[string]string, len(c.Markets))
	for _, m := range c.Markets {
		out[m.Symbol] = m.Asset
	}
	return out
}

// SimStartPrices devuelve el precio inicial del feed simulado por activo.
func (c *Config) SimStartPrices() map[string]float64 {
	out := make(map[string]float64)
	for _, m := range c.Markets {
		if _, ok := out[m.Asset]; !ok || m.SimStartPrice > 0 {
			out[m.Asset] = m.SimStartPrice
		}
	}
	return out
}

// StartBalance devuelve el balance inicial del ledger.
func (c *Config) StartBalance() decimal.Decimal {
	return decimal.NewFromFloat(c.Engine.StartBalance).Round(domain.MoneyPlaces)
}

// TickInterval devuelve el intervalo del loop del engine.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Engine.TickMs) * time.Millisecond
}

// FlushInterval devuelve cada cuánto publica el oráculo.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.Engine.FlushMs) * time.Millisecond
}

// SimInterval devuelve el paso del feed simulado.
func (c *Config) SimInterval() time.Duration {
	return time.Duration(c.Feeds.SimIntervalMs) * time.Millisecond
}

// RESTInterval devuelve el intervalo del poller REST.
func (c *Config) RESTInterval() time.Duration {
	return seconds(c.Feeds.BinanceREST.IntervalSeconds)
}

// StaleAfter devuelve la ventana de staleness del oráculo.
func (c *Config) StaleAfter() time.Duration {
	return seconds(c.Engine.StaleAfterSeconds)
}

// StatusInterval devuelve cada cuánto se imprime la línea de estado.
func (c *Config) StatusInterval() time.Duration {
	return time.Duration(c.Engine.StatusIntervalSeconds) * time.Second
}

// Retention devuelve cuánto se guarda el journal.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Storage.RetentionDays) * 24 * time.Hour
}

// EngineConfig arma la configuración del engine.
func (c *Config) EngineConfig() engine.Config {
	stakes := make([]decimal.Decimal, 0, len(c.Engine.StakeSizes))
	for _, s := range c.Engine.StakeSizes {
		stakes = append(stakes, decimal.NewFromFloat(s).Round(domain.MoneyPlaces))
	}

	return engine.Config{
		Markets:      c.DomainMarkets(),
		TickInterval: c.TickInterval(),
		LockWindow:   seconds(c.Engine.LockWindowSeconds),
		Payout: domain.PayoutConfig{
			Model:    domain.PayoutModel(c.Engine.PayoutModel),
			Rate:     decimal.NewFromFloat(c.Engine.PayoutRate),
			PerShare: decimal.NewFromFloat(c.Engine.PayoutPerShare),
		},
		PushEpsilon:      c.Engine.PushEpsilon,
		SettledRetention: c.Engine.SettledRetention,
		RecentRounds:     c.Engine.RecentRounds,
		StakeSizes:       stakes,
		Quote:            c.Quote.params(),
		Bots: engine.BotConfig{
			Enabled:    c.Bots.Enabled,
			MaxPerTick: c.Bots.MaxPerTick,
			Sizes:      c.Bots.Sizes,
			Weights:    c.Bots.Weights,
			Noise:      c.Bots.Noise,
			LateBoost:  c.Bots.LateBoost,
		},
	}
}

// params mezcla los overrides con DefaultQuoteParams.
func (q QuoteConfig) params() domain.QuoteParams {
	p := domain.DefaultQuoteParams()
	set := func(dst *float64, v float64) {
		if v > 0 {
			*dst = v
		}
	}
	set(&p.Sensitivity, q.Sensitivity)
	set(&p.UrgencyMin, q.UrgencyMin)
	set(&p.UrgencyMax, q.UrgencyMax)
	set(&p.UrgencyExp, q.UrgencyExp)
	set(&p.BaseMin, q.BaseMin)
	set(&p.BaseMax, q.BaseMax)
	set(&p.ReleaseMin, q.ReleaseMin)
	set(&p.ReleaseMax, q.ReleaseMax)
	set(&p.RampExp, q.RampExp)
	set(&p.VirtualLiquidity, q.VirtualLiquidity)
	if q.ReleaseWindowSeconds > 0 {
		p.ReleaseWindow = seconds(q.ReleaseWindowSeconds)
	}
	if q.MinCents > 0 {
		p.MinCents = q.MinCents
	}
	return p
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
