package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alejandrodnm/smcbot/internal/domain"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del bot.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Risk    RiskConfig    `yaml:"risk"`
	Orders  OrdersConfig  `yaml:"orders"`
	HFT     HFTConfig     `yaml:"hft"`
	Broker  BrokerConfig  `yaml:"broker"`
	Paper   PaperConfig   `yaml:"paper"`
	Storage StorageConfig `yaml:"storage"`
	State   StateConfig   `yaml:"state"`
	API     APIConfig     `yaml:"api"`
	Redis   RedisConfig   `yaml:"redis"`
	Log     LogConfig     `yaml:"log"`
}

// EngineConfig controla el scheduler. Los campos de cadencia son overrides
// del perfil del modo; 0 o vacío deja el valor del perfil.
type EngineConfig struct {
	Mode             string   `yaml:"mode"`      // standard | scalp | hft
	Execution        string   `yaml:"execution"` // dry-run | paper | live
	Symbols          []string `yaml:"symbols"`
	Workers          int      `yaml:"workers"`
	CycleSeconds     int      `yaml:"cycle_seconds"`
	SymbolDelayMS    int      `yaml:"symbol_delay_ms"`
	Timeframe        string   `yaml:"timeframe"`
	ConfirmTimeframe *string  `yaml:"confirm_timeframe"` // "" desactiva la confirmación
	MinATR           float64  `yaml:"min_atr"`
	StopFile         string   `yaml:"stop_file"`
}

// RiskConfig son los límites de riesgo. Validate los exige en rango.
type RiskConfig struct {
	RiskFraction         float64 `yaml:"risk_fraction"`           // por operación, (0, 0.1]
	MaxDailyLossFraction float64 `yaml:"max_daily_loss_fraction"` // sobre el balance de apertura, (0, 1)
	MinEquity            float64 `yaml:"min_equity"`
	StopATRMultiplier    float64 `yaml:"stop_atr_multiplier"`
}

// OrdersConfig ajusta el ciclo de vida de las órdenes.
type OrdersConfig struct {
	SubmitAttempts    int     `yaml:"submit_attempts"`
	SubmitDelayMS     int     `yaml:"submit_delay_ms"`
	VerifyPolls       int     `yaml:"verify_polls"`
	VerifyDelayMS     int     `yaml:"verify_delay_ms"`
	SlippageTolerance float64 `yaml:"slippage_tolerance"`
	CloseTolerance    float64 `yaml:"close_tolerance"`
}

// HFTConfig es la primera mitad de la doble confirmación; la passphrase
// llega por SMCBOT_HFT_PASSPHRASE.
type HFTConfig struct {
	Enabled        bool   `yaml:"enabled"`
	PassphraseHash string `yaml:"passphrase_hash"` // bcrypt
	Passphrase     string `yaml:"-"`
}

// BrokerConfig apunta al bridge HTTP del terminal. Credenciales solo por env.
type BrokerConfig struct {
	URL               string  `yaml:"url"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	RatePerSec        float64 `yaml:"rate_per_sec"`
	Deviation         int     `yaml:"deviation"`
	Magic             int     `yaml:"magic"`
	ReadAttempts      int     `yaml:"read_attempts"`
	ReconnectAttempts int     `yaml:"reconnect_attempts"`
	Login             string  `yaml:"-"`
	Password          string  `yaml:"-"`
	Server            string  `yaml:"-"`
}

// PaperConfig controla el simulador.
type PaperConfig struct {
	InitialBalance float64 `yaml:"initial_balance"`
}

// StorageConfig controla dónde se persiste el journal.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// StateConfig controla el snapshot en disco para dashboards y CLIs.
type StateConfig struct {
	Path string `yaml:"path"`
}

// APIConfig controla el servidor HTTP (webhook, estado, métricas, websocket).
type APIConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Addr          string `yaml:"addr"`
	QueueSize     int    `yaml:"queue_size"`
	WebhookSecret string `yaml:"-"`
	WSToken       string `yaml:"-"`
}

// RedisConfig activa el mirror del estado en Redis cuando Addr no está vacío.
type RedisConfig struct {
	Addr       string `yaml:"addr"`
	DB         int    `yaml:"db"`
	Prefix     string `yaml:"prefix"`
	TTLSeconds int    `yaml:"ttl_seconds"`
	Password   string `yaml:"-"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los secretos solo llegan por entorno. Devuelve error si la config no es válida.
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

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("BROKER_URL"); v != "" {
		cfg.Broker.URL = v
	}
	cfg.Broker.Login = os.Getenv("BROKER_LOGIN")
	cfg.Broker.Password = os.Getenv("BROKER_PASSWORD")
	cfg.Broker.Server = os.Getenv("BROKER_SERVER")
	cfg.HFT.Passphrase = os.Getenv("SMCBOT_HFT_PASSPHRASE")
	cfg.API.WebhookSecret = os.Getenv("WEBHOOK_SECRET")
	cfg.API.WSToken = os.Getenv("WS_TOKEN")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Engine.Mode == "" {
		cfg.Engine.Mode = string(domain.ModeStandard)
	}
	if cfg.Engine.Execution == "" {
		cfg.Engine.Execution = string(domain.ExecDryRun)
	}
	for i, s := range cfg.Engine.Symbols {
		cfg.Engine.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	if cfg.Engine.Workers <= 0 {
		cfg.Engine.Workers = 1
	}
	if cfg.Engine.StopFile == "" {
		cfg.Engine.StopFile = "STOP_SMCBOT"
	}
	if cfg.Risk.StopATRMultiplier <= 0 {
		cfg.Risk.StopATRMultiplier = domain.DefaultStopATRMultiplier
	}
	if cfg.Paper.InitialBalance <= 0 {
		cfg.Paper.InitialBalance = 10000
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "smcbot.db"
	}
	if cfg.State.Path == "" {
		cfg.State.Path = "state/runtime_state.json"
	}
	if cfg.API.Addr == "" {
		cfg.API.Addr = ":8090"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// Validate devuelve los errores de config que impiden arrancar el motor.
func (c *Config) Validate() error {
	var errs []error
	if _, err := domain.ParseMode(c.Engine.Mode); err != nil {
		errs = append(errs, fmt.Errorf("engine.mode: %w", err))
	}
	exec, err := domain.ParseExecutionMode(c.Engine.Execution)
	if err != nil {
		errs = append(errs, fmt.Errorf("engine.execution: %w", err))
	}
	if len(c.Engine.Symbols) == 0 {
		errs = append(errs, errors.New("engine.symbols: at least one symbol required"))
	}
	if !(c.Risk.RiskFraction > 0) || c.Risk.RiskFraction > 0.1 {
		errs = append(errs, fmt.Errorf("risk.risk_fraction: %v not in (0, 0.1]", c.Risk.RiskFraction))
	}
	if !(c.Risk.MaxDailyLossFraction > 0) || c.Risk.MaxDailyLossFraction >= 1 {
		errs = append(errs, fmt.Errorf("risk.max_daily_loss_fraction: %v not in (0, 1)", c.Risk.MaxDailyLossFraction))
	}
	if c.Risk.MinEquity < 0 {
		errs = append(errs, errors.New("risk.min_equity: negative"))
	}
	if exec == domain.ExecLive {
		if c.Broker.URL == "" {
			errs = append(errs, errors.New("broker.url: required for live execution"))
		}
		if c.Broker.Login == "" || c.Broker.Password == "" || c.Broker.Server == "" {
			errs = append(errs, errors.New("broker credentials: BROKER_LOGIN, BROKER_PASSWORD and BROKER_SERVER required for live execution"))
		}
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// ModeName devuelve el modo ya validado.
func (c *Config) ModeName() domain.Mode {
	m, _ := domain.ParseMode(c.Engine.Mode)
	return m
}

// ExecutionMode devuelve el modo de ejecución ya validado.
func (c *Config) ExecutionMode() domain.ExecutionMode {
	e, _ := domain.ParseExecutionMode(c.Engine.Execution)
	return e
}

// Profile devuelve el perfil del modo con los overrides de la config aplicados.
func (c *Config) Profile() domain.ModeProfile {
	p := domain.DefaultProfile(c.ModeName())
	if c.Engine.CycleSeconds > 0 {
		p.CycleInterval = time.Duration(c.Engine.CycleSeconds) * time.Second
	}
	if c.Engine.SymbolDelayMS > 0 {
		p.SymbolDelay = time.Duration(c.Engine.SymbolDelayMS) * time.Millisecond
	}
	if c.Engine.Timeframe != "" {
		p.Timeframe = c.Engine.Timeframe
	}
	if c.Engine.ConfirmTimeframe != nil {
		p.ConfirmTimeframe = *c.Engine.ConfirmTimeframe
	}
	if c.Engine.MinATR > 0 {
		p.MinATR = c.Engine.MinATR
	}
	return p
}

// BrokerTimeout devuelve el timeout por llamada al bridge.
func (c *Config) BrokerTimeout() time.Duration {
	return time.Duration(c.Broker.TimeoutSeconds) * time.Second
}

// HasBridge indica si hay un bridge configurado para datos de mercado.
func (c *Config) HasBridge() bool {
	return c.Broker.URL != ""
}
