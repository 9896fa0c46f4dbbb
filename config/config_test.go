package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alejandrodnm/smcbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const riskBlock = `
risk:
  risk_fraction: 0.01
  max_daily_loss_fraction: 0.03
`

const minimal = `
engine:
  symbols: [eurusd, " gbpusd "]
` + riskBlock

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal))
	require.NoError(t, err)

	assert.Equal(t, []string{"EURUSD", "GBPUSD"}, cfg.Engine.Symbols)
	assert.Equal(t, domain.ModeStandard, cfg.ModeName())
	assert.Equal(t, domain.ExecDryRun, cfg.ExecutionMode())
	assert.Equal(t, 1, cfg.Engine.Workers)
	assert.Equal(t, "STOP_SMCBOT", cfg.Engine.StopFile)
	assert.Equal(t, 10000.0, cfg.Paper.InitialBalance)
	assert.Equal(t, domain.DefaultStopATRMultiplier, cfg.Risk.StopATRMultiplier)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.HasBridge())

	p := cfg.Profile()
	assert.Equal(t, 60*time.Second, p.CycleInterval)
	assert.Equal(t, "H1", p.ConfirmTimeframe)
}

func TestLoad_EnvOverridesAndSecrets(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("BROKER_URL", "http://bridge:8787")
	t.Setenv("BROKER_LOGIN", "5550001")
	t.Setenv("BROKER_PASSWORD", "pw")
	t.Setenv("BROKER_SERVER", "Demo-Server")
	t.Setenv("SMCBOT_HFT_PASSPHRASE", "fast")
	t.Setenv("WEBHOOK_SECRET", "hook")
	t.Setenv("WS_TOKEN", "tok")
	t.Setenv("REDIS_PASSWORD", "redispw")

	cfg, err := Load(writeConfig(t, riskBlock+`
engine:
  symbols: [EURUSD]
  execution: live
`))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "http://bridge:8787", cfg.Broker.URL)
	assert.Equal(t, "5550001", cfg.Broker.Login)
	assert.Equal(t, "fast", cfg.HFT.Passphrase)
	assert.Equal(t, "hook", cfg.API.WebhookSecret)
	assert.Equal(t, "tok", cfg.API.WSToken)
	assert.Equal(t, "redispw", cfg.Redis.Password)
	assert.Equal(t, domain.ExecLive, cfg.ExecutionMode())
}

func TestLoad_ProfileOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, riskBlock+`
engine:
  symbols: [EURUSD]
  mode: scalp
  cycle_seconds: 5
  symbol_delay_ms: 100
  timeframe: M5
  confirm_timeframe: ""
  min_atr: 0.0003
`))
	require.NoError(t, err)

	p := cfg.Profile()
	assert.Equal(t, domain.ModeScalp, p.Mode)
	assert.Equal(t, 5*time.Second, p.CycleInterval)
	assert.Equal(t, 100*time.Millisecond, p.SymbolDelay)
	assert.Equal(t, "M5", p.Timeframe)
	assert.Empty(t, p.ConfirmTimeframe)
	assert.Equal(t, 0.0003, p.MinATR)
	assert.Equal(t, 25.0, p.Thresholds.RSIOversold)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Config{
			Engine: EngineConfig{Symbols: []string{"EURUSD"}},
			Risk:   RiskConfig{RiskFraction: 0.01, MaxDailyLossFraction: 0.03},
		}
		setDefaults(&c)
		return c
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"ok", func(*Config) {}, ""},
		{"no symbols", func(c *Config) { c.Engine.Symbols = nil }, "engine.symbols"},
		{"risk zero", func(c *Config) { c.Risk.RiskFraction = 0 }, "risk.risk_fraction"},
		{"risk too high", func(c *Config) { c.Risk.RiskFraction = 0.5 }, "risk.risk_fraction"},
		{"daily loss one", func(c *Config) { c.Risk.MaxDailyLossFraction = 1 }, "max_daily_loss_fraction"},
		{"bad mode", func(c *Config) { c.Engine.Mode = "turbo" }, "engine.mode"},
		{"bad execution", func(c *Config) { c.Engine.Execution = "yolo" }, "engine.execution"},
		{"live without bridge", func(c *Config) { c.Engine.Execution = "live" }, "broker.url"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(&c)
			err := c.Validate()
			if tc.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
